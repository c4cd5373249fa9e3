package gameserver

import (
	"bufio"
	"crypto/rsa"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blukai/snakeparty/internal/frame"
	"github.com/blukai/snakeparty/internal/keys"
	"github.com/blukai/snakeparty/internal/protocol"
	"github.com/blukai/snakeparty/internal/secchan"
)

type SessionState int32

const (
	StateConnecting SessionState = iota
	StateKeyExchanged
	StateActive
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateKeyExchanged:
		return "key-exchanged"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

const mailboxSize = 64

var ErrMailboxFull = errors.New("chat mailbox full")

// mailbox holds chat lines until the owner's next reply.
type mailbox struct {
	mu    sync.Mutex
	lines []string
}

func (mb *mailbox) push(line string) error {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	if len(mb.lines) >= mailboxSize {
		return ErrMailboxFull
	}
	mb.lines = append(mb.lines, line)
	return nil
}

func (mb *mailbox) pop() (string, bool) {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	if len(mb.lines) == 0 {
		return "", false
	}
	line := mb.lines[0]
	mb.lines = mb.lines[1:]
	return line, true
}

// session is owned by the goroutine running serve. Only the mailbox and the
// state are touched from other goroutines.
type session struct {
	gs     *GameServer
	conn   net.Conn
	reader *bufio.Reader

	id      string
	index   int
	color   protocol.Color
	peerKey *rsa.PublicKey

	state   atomic.Int32
	mailbox mailbox
}

func (s *session) setState(state SessionState) {
	s.state.Store(int32(state))
}

func (s *session) getState() SessionState {
	return SessionState(s.state.Load())
}

func (s *session) readFrame() ([]byte, error) {
	fr := frame.Reader{R: s.reader, MaxSize: CmdMaxSize}
	return fr.Read()
}

// handshake receives the client's public key and answers with the server's.
// Both travel as plaintext frames.
func (s *session) handshake(timeout time.Duration) error {
	if err := s.conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return fmt.Errorf("could not set deadline: %w", err)
	}

	payload, err := s.readFrame()
	if err != nil {
		return fmt.Errorf("could not read client key: %w", err)
	}
	peerKey, err := keys.ParsePublicPEM(payload)
	if err != nil {
		return fmt.Errorf("could not parse client key: %w", err)
	}
	s.peerKey = peerKey

	if err := frame.Write(s.conn, s.gs.keys.PublicPEM()); err != nil {
		return fmt.Errorf("could not send server key: %w", err)
	}

	// no deadlines once active; a client that goes quiet keeps its session
	if err := s.conn.SetDeadline(time.Time{}); err != nil {
		return fmt.Errorf("could not clear deadline: %w", err)
	}
	return nil
}

// reply sends the latest snapshot, plus one queued chat line if any.
func (s *session) reply() error {
	r := protocol.Reply{
		Pos:    s.gs.snapshot.Load().text,
		HasPos: true,
	}
	if line, ok := s.mailbox.pop(); ok {
		r = r.WithChat(line)
	}
	return frame.Write(s.conn, []byte(r.String()))
}

func (s *session) run() {
	logger := s.gs.logger

	for {
		payload, err := s.readFrame()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				logger.Info().
					Str("session", s.id).
					Msg("client went away")
			} else {
				logger.Error().
					Str("session", s.id).
					Msgf("could not read frame: %v", err)
			}
			return
		}

		keep := s.apply(payload)

		// every frame that made it in gets an answer, the client is
		// blocked on it. the command has been applied by the time the
		// reply leaves, so a move acknowledged by the server is always
		// part of the next tick.
		if err := s.reply(); err != nil {
			logger.Error().
				Str("session", s.id).
				Msgf("could not send reply: %v", err)
			return
		}

		if !keep {
			return
		}
	}
}

// apply decrypts and handles one command frame and reports whether the
// session continues.
func (s *session) apply(payload []byte) bool {
	logger := s.gs.logger

	text, err := secchan.OpenCiphertext(s.gs.keys.Private(), payload)
	if err != nil {
		logger.Error().
			Str("session", s.id).
			Msgf("could not decrypt command: %v", err)
		return false
	}
	if len(text) == 0 {
		logger.Info().
			Str("session", s.id).
			Msg("empty command")
		return false
	}

	return s.handle(protocol.ParseCommand(string(text)))
}

// handle applies one command and reports whether the session continues.
func (s *session) handle(cmd protocol.Command) bool {
	gs := s.gs
	gs.metrics.Commands.WithLabelValues(cmd.Kind.String()).Inc()

	switch cmd.Kind {
	case protocol.CommandQuit:
		gs.logger.Info().
			Str("session", s.id).
			Msg("received quit")
		return false
	case protocol.CommandReset:
		gs.engine.ResetPlayer(s.id)
	case protocol.CommandMove:
		gs.moves.Add(protocol.Move{SessionID: s.id, Direction: cmd.Direction})
	case protocol.CommandChat:
		if err := gs.broadcast(s.id, cmd.Text); err != nil {
			gs.logger.Error().
				Str("session", s.id).
				Msgf("could not deliver chat to everyone: %v", err)
		}
	case protocol.CommandPoll:
		// nothing to do, the reply already carried the snapshot
	default:
		gs.logger.Info().
			Str("session", s.id).
			Str("data", cmd.Text).
			Msg("invalid command")
	}
	return true
}
