package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/blukai/snakeparty/internal/admin"
	"github.com/blukai/snakeparty/internal/gameserver"
	"github.com/blukai/snakeparty/internal/keys"
	"github.com/blukai/snakeparty/internal/metrics"
	"github.com/blukai/snakeparty/internal/snake"
	"github.com/hashicorp/go-multierror"
	"github.com/kelseyhightower/envconfig"
	"github.com/phuslu/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type Config struct {
	Addr             string        `envconfig:"ADDR" default:"localhost:5555"`
	Rows             int           `envconfig:"ROWS" default:"20"`
	Snacks           int           `envconfig:"SNACKS" default:"5"`
	TickInterval     time.Duration `envconfig:"TICK_INTERVAL" default:"200ms"`
	TickSleepStep    time.Duration `envconfig:"TICK_SLEEP_STEP" default:"10ms"`
	RecvBuffer       int           `envconfig:"RECV_BUFFER" default:"2048"`
	HandshakeTimeout time.Duration `envconfig:"HANDSHAKE_TIMEOUT" default:"5s"`
	// empty disables the admin server
	AdminAddr string `envconfig:"ADMIN_ADDR"`
	Debug     bool   `envconfig:"DEBUG"`
}

func loadConfig() (*Config, error) {
	config := new(Config)
	if err := envconfig.Process("snake", config); err != nil {
		return nil, err
	}
	if config.Rows <= 0 {
		return nil, fmt.Errorf("rows must be positive (got %d)", config.Rows)
	}
	if config.Snacks < 0 {
		return nil, fmt.Errorf("snacks must not be negative (got %d)", config.Snacks)
	}
	return config, nil
}

func configureLogger(debug bool) *log.Logger {
	logger := log.DefaultLogger

	// https://github.com/phuslu/log?tab=readme-ov-file#pretty-console-writer
	logger.Caller = 1
	logger.TimeFormat = "15:04:05"
	logger.Writer = &log.ConsoleWriter{
		ColorOutput:    true,
		QuoteString:    true,
		EndWithMessage: true,
	}
	if debug {
		logger.Level = log.DebugLevel
	}

	return &logger
}

func erringMain() error {
	config, err := loadConfig()
	if err != nil {
		return fmt.Errorf("could not process config: %w", err)
	}

	logger := configureLogger(config.Debug)

	kp, err := keys.Generate()
	if err != nil {
		return fmt.Errorf("could not generate keys: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	game := snake.NewGame(config.Rows, config.Snacks, rand.New(rand.NewSource(time.Now().UnixNano())))

	gameServer, err := gameserver.NewGameServer("tcp", config.Addr, kp, game, logger,
		gameserver.WithTickInterval(config.TickInterval),
		gameserver.WithSleepStep(config.TickSleepStep),
		gameserver.WithRecvBuffer(config.RecvBuffer),
		gameserver.WithHandshakeTimeout(config.HandshakeTimeout),
		gameserver.WithMetrics(metrics.New(registry)),
	)
	if err != nil {
		return fmt.Errorf("could not construct game server: %w", err)
	}
	logger.Info().Msgf("started game server on %s", gameServer.Addr())

	var adminServer *admin.Server
	if config.AdminAddr != "" {
		router := admin.NewRouter(gameServer, registry)
		adminServer, err = admin.NewServer(config.AdminAddr, router, logger)
		if err != nil {
			return fmt.Errorf("could not construct admin server: %w", err)
		}
		logger.Info().Msgf("started admin server on %s", adminServer.Addr())
	}

	wg := new(sync.WaitGroup)
	ctx, cancel := context.WithCancel(context.Background())

	wg.Add(1)
	var gameServerRunErr error
	go func() {
		defer wg.Done()
		gameServerRunErr = gameServer.Run(ctx)
	}()

	var adminServerRunErr error
	if adminServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			adminServerRunErr = adminServer.Run(ctx)
		}()
	}

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGTERM, syscall.SIGINT)

	sig := <-signalChan
	logger.Info().Msgf("received %+v signal", sig)

	cancel()
	wg.Wait()

	var errs error
	if gameServerRunErr != nil {
		errs = multierror.Append(errs, fmt.Errorf("game server run failed: %w", gameServerRunErr))
	}
	if adminServerRunErr != nil {
		errs = multierror.Append(errs, fmt.Errorf("admin server run failed: %w", adminServerRunErr))
	}
	return errs
}

func main() {
	if err := erringMain(); err != nil {
		fmt.Fprintf(os.Stderr, "fucky wucky! %v\n", err)
		os.Exit(42)
	}
}
