package gameclient

import (
	"bufio"
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/blukai/snakeparty/internal/frame"
	"github.com/blukai/snakeparty/internal/keys"
	"github.com/blukai/snakeparty/internal/protocol"
	"github.com/blukai/snakeparty/internal/secchan"
	"github.com/cespare/xxhash/v2"
	"github.com/phuslu/log"
)

const (
	DefaultDialTimeout      = 5 * time.Second
	DefaultHandshakeTimeout = 5 * time.Second
)

// Input yields at most one command per call and must not block. It returns
// protocol.Poll() when there is nothing to send.
type Input interface {
	Poll() protocol.Command
}

// Renderer draws snapshots and surfaces chat lines.
type Renderer interface {
	Render(snapshot protocol.Snapshot) error
	Chat(line string)
}

type options struct {
	dialTimeout      time.Duration
	handshakeTimeout time.Duration
	keyPair          *keys.KeyPair
}

type Option func(*options)

func WithDialTimeout(d time.Duration) Option {
	return func(o *options) { o.dialTimeout = d }
}

func WithHandshakeTimeout(d time.Duration) Option {
	return func(o *options) { o.handshakeTimeout = d }
}

// WithKeyPair skips key generation.
func WithKeyPair(kp *keys.KeyPair) Option {
	return func(o *options) { o.keyPair = kp }
}

type GameClient struct {
	conn   net.Conn
	reader *frame.Reader

	keys      *keys.KeyPair
	serverKey *rsa.PublicKey

	logger *log.Logger
}

// NewGameClient connects and exchanges keys. The returned client is ready
// for Send.
func NewGameClient(network, address string, logger *log.Logger, opts ...Option) (*GameClient, error) {
	o := options{
		dialTimeout:      DefaultDialTimeout,
		handshakeTimeout: DefaultHandshakeTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}

	// if logger is nil (which might be true in tests) => use default, but
	// silenced logger
	if logger == nil {
		tmp := log.DefaultLogger
		logger = &tmp
		logger.Writer = &log.IOWriter{Writer: io.Discard}
	}

	kp := o.keyPair
	if kp == nil {
		var err error
		if kp, err = keys.Generate(); err != nil {
			return nil, err
		}
	}

	conn, err := net.DialTimeout(network, address, o.dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("could not dial: %w", err)
	}

	gc := &GameClient{
		conn:   conn,
		reader: frame.NewReader(bufio.NewReader(conn)),

		keys: kp,

		logger: logger,
	}

	if err := gc.handshake(o.handshakeTimeout); err != nil {
		conn.Close()
		return nil, fmt.Errorf("handshake failed: %w", err)
	}

	logger.Info().
		Str("addr", conn.RemoteAddr().String()).
		Msg("connected")

	return gc, nil
}

func (gc *GameClient) handshake(timeout time.Duration) error {
	if err := gc.conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return fmt.Errorf("could not set deadline: %w", err)
	}

	if err := frame.Write(gc.conn, gc.keys.PublicPEM()); err != nil {
		return fmt.Errorf("could not send key: %w", err)
	}

	payload, err := gc.reader.Read()
	if err != nil {
		return fmt.Errorf("could not read server key: %w", err)
	}
	serverKey, err := keys.ParsePublicPEM(payload)
	if err != nil {
		return fmt.Errorf("could not parse server key: %w", err)
	}
	gc.serverKey = serverKey

	return gc.conn.SetDeadline(time.Time{})
}

func (gc *GameClient) Close() error {
	return gc.conn.Close()
}

func (gc *GameClient) LocalAddr() net.Addr {
	return gc.conn.LocalAddr()
}

// Send is blocking: it encrypts cmd for the server, sends it and waits for
// the matching reply.
func (gc *GameClient) Send(cmd protocol.Command) (protocol.Reply, error) {
	return gc.SendText(cmd.String())
}

// SendText sends raw command text, which lets callers send things the
// Command type can not express.
func (gc *GameClient) SendText(text string) (protocol.Reply, error) {
	ciphertext, err := secchan.Encrypt(gc.serverKey, []byte(text))
	if err != nil {
		return protocol.Reply{}, err
	}

	if err := frame.Write(gc.conn, ciphertext); err != nil {
		return protocol.Reply{}, fmt.Errorf("could not send: %w", err)
	}

	payload, err := gc.reader.Read()
	if err != nil {
		return protocol.Reply{}, fmt.Errorf("could not recv: %w", err)
	}

	// replies come in plaintext; a tagged one would be for our key
	plaintext, err := secchan.Open(gc.keys.Private(), payload)
	if err != nil {
		return protocol.Reply{}, fmt.Errorf("could not open reply: %w", err)
	}

	return protocol.ParseReply(string(plaintext)), nil
}

// Run drives one round trip per iteration until the user quits, ctx is
// cancelled or the connection breaks. The pace is set by the network, not
// by a clock.
func (gc *GameClient) Run(ctx context.Context, input Input, renderer Renderer) error {
	var (
		lastDigest uint64
		rendered   bool
	)

	for {
		cmd := input.Poll()
		if ctx.Err() != nil {
			cmd = protocol.Quit()
		}

		reply, err := gc.Send(cmd)
		if err != nil {
			if errors.Is(err, secchan.ErrMessageTooLong) {
				gc.logger.Error().
					Str("cmd", cmd.Kind.String()).
					Msgf("could not send: %v", err)
				continue
			}
			return err
		}

		if reply.HasChat {
			gc.logger.Info().
				Str("chat", reply.Chat).
				Msg("chat")
			renderer.Chat(reply.Chat)
		}

		if reply.HasPos {
			digest := xxhash.Sum64String(reply.Pos)
			if !rendered || digest != lastDigest {
				snapshot, err := reply.Snapshot()
				if err != nil {
					// keep whatever is on screen
					gc.logger.Error().
						Str("pos", reply.Pos).
						Msgf("could not decode snapshot: %v", err)
				} else if err := renderer.Render(snapshot); err != nil {
					gc.logger.Error().
						Msgf("could not render: %v", err)
				} else {
					lastDigest = digest
					rendered = true
				}
			}
		}

		if cmd.Kind == protocol.CommandQuit {
			return ctx.Err()
		}
	}
}
