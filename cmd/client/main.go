package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blukai/snakeparty/internal/gameclient"
	"github.com/blukai/snakeparty/internal/termui"
	"github.com/kelseyhightower/envconfig"
	"github.com/phuslu/log"
)

type Config struct {
	Addr        string        `envconfig:"ADDR" default:"localhost:5555"`
	Rows        int           `envconfig:"ROWS" default:"20"`
	LogFile     string        `envconfig:"LOG_FILE" default:"snakeparty-client.log"`
	DialTimeout time.Duration `envconfig:"DIAL_TIMEOUT" default:"5s"`
}

func loadConfig() (*Config, error) {
	config := new(Config)
	if err := envconfig.Process("snake", config); err != nil {
		return nil, err
	}
	if config.Rows <= 0 {
		return nil, fmt.Errorf("rows must be positive (got %d)", config.Rows)
	}
	return config, nil
}

// the terminal belongs to the board, logs go to a file
func configureLogger(writer *log.FileWriter) *log.Logger {
	logger := log.DefaultLogger

	logger.Caller = 1
	logger.TimeFormat = "15:04:05"
	logger.Writer = writer

	return &logger
}

func erringMain() error {
	config, err := loadConfig()
	if err != nil {
		return fmt.Errorf("could not process config: %w", err)
	}

	logWriter := &log.FileWriter{
		Filename:   config.LogFile,
		MaxBackups: 3,
	}
	defer logWriter.Close()
	logger := configureLogger(logWriter)

	gameClient, err := gameclient.NewGameClient("tcp", config.Addr, logger,
		gameclient.WithDialTimeout(config.DialTimeout))
	if err != nil {
		return fmt.Errorf("could not connect to game server: %w", err)
	}
	defer gameClient.Close()

	ui, err := termui.New(config.Rows, logger)
	if err != nil {
		return fmt.Errorf("could not construct ui: %w", err)
	}
	defer ui.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := gameClient.Run(ctx, ui, ui); err != nil && ctx.Err() == nil {
		return fmt.Errorf("game client run failed: %w", err)
	}
	logger.Info().Msg("bye")

	return nil
}

func main() {
	if err := erringMain(); err != nil {
		fmt.Fprintf(os.Stderr, "fucky wucky! %v\n", err)
		os.Exit(42)
	}
}
