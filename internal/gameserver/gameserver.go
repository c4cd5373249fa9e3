package gameserver

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blukai/snakeparty/internal/keys"
	"github.com/blukai/snakeparty/internal/metrics"
	"github.com/blukai/snakeparty/internal/protocol"
	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/phuslu/log"
)

const (
	DefaultTickInterval     = 200 * time.Millisecond
	DefaultSleepStep        = 10 * time.Millisecond
	DefaultRecvBuffer       = 2048
	DefaultHandshakeTimeout = 5 * time.Second

	// commands are a single oaep block in base64 (344 bytes for 2048-bit
	// keys); the handshake pem is about 450. anything past this is not ours.
	CmdMaxSize = 4 << 10

	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

// Engine is the simulation. It must be safe for concurrent use: sessions
// add, remove and reset players while the tick loop moves and reads it.
//
// Move receives every distinct (session, direction) pair queued since the
// previous tick in submission order. How several directions for one session
// resolve is up to the engine.
type Engine interface {
	AddPlayer(id string, color protocol.Color) error
	RemovePlayer(id string)
	ResetPlayer(id string)
	Move(moves []protocol.Move)
	Snapshot() protocol.Snapshot
}

type options struct {
	tickInterval     time.Duration
	sleepStep        time.Duration
	recvBuffer       int
	handshakeTimeout time.Duration
	metrics          *metrics.Metrics
}

type Option func(*options)

func WithTickInterval(d time.Duration) Option {
	return func(o *options) { o.tickInterval = d }
}

// WithSleepStep sets the granularity of the sleep between ticks.
func WithSleepStep(d time.Duration) Option {
	return func(o *options) { o.sleepStep = d }
}

func WithRecvBuffer(n int) Option {
	return func(o *options) { o.recvBuffer = n }
}

func WithHandshakeTimeout(d time.Duration) Option {
	return func(o *options) { o.handshakeTimeout = d }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

type published struct {
	snapshot protocol.Snapshot
	text     string
	digest   uint64
}

type GameServer struct {
	listener net.Listener
	keys     *keys.KeyPair
	engine   Engine

	logger  *log.Logger
	metrics *metrics.Metrics
	opts    options

	moves    *MoveQueue
	snapshot atomic.Pointer[published]
	tick     atomic.Uint64

	mu       sync.RWMutex
	sessions map[string]*session
	accepted int

	sessionsWg sync.WaitGroup
}

// NewGameServer binds the listener right away so that a bad address is
// reported to the caller rather than from Run.
func NewGameServer(
	network, address string,
	kp *keys.KeyPair,
	engine Engine,
	logger *log.Logger,
	opts ...Option,
) (*GameServer, error) {
	o := options{
		tickInterval:     DefaultTickInterval,
		sleepStep:        DefaultSleepStep,
		recvBuffer:       DefaultRecvBuffer,
		handshakeTimeout: DefaultHandshakeTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.metrics == nil {
		o.metrics = metrics.New(nil)
	}

	listener, err := net.Listen(network, address)
	if err != nil {
		return nil, fmt.Errorf("could not listen: %w", err)
	}

	// if logger is nil (which might be true in tests) => use default, but
	// silenced logger
	if logger == nil {
		tmp := log.DefaultLogger
		logger = &tmp
		logger.Writer = &log.IOWriter{Writer: io.Discard}
	}

	gs := &GameServer{
		listener: listener,
		keys:     kp,
		engine:   engine,

		logger:  logger,
		metrics: o.metrics,
		opts:    o,

		moves:    NewMoveQueue(),
		sessions: make(map[string]*session),
	}
	gs.publish(engine.Snapshot())

	return gs, nil
}

// Addr can be useful to retrieve server's address when GameServer was
// constructed with ":0".
func (gs *GameServer) Addr() net.Addr {
	return gs.listener.Addr()
}

func (gs *GameServer) Metrics() *metrics.Metrics {
	return gs.metrics
}

// Run serves until ctx is cancelled, then closes the listener and every
// connection and waits for all session goroutines.
func (gs *GameServer) Run(ctx context.Context) error {
	wg := &sync.WaitGroup{}

	wg.Add(1)
	go func() {
		defer wg.Done()
		gs.runAccept(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		gs.runTicker(ctx)
	}()

	<-ctx.Done()

	var errs error
	if err := gs.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		errs = multierror.Append(errs, fmt.Errorf("could not close listener: %w", err))
	}

	wg.Wait()
	// every accepted conn is closed by its context.AfterFunc
	gs.sessionsWg.Wait()

	return errs
}

func (gs *GameServer) runAccept(ctx context.Context) {
	// back off on repeated accept failures (e.g. EMFILE) the way
	// net/http.Server.Serve does
	var delay time.Duration

	for {
		conn, err := gs.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return
			}

			if delay == 0 {
				delay = minAcceptDelay
			} else {
				delay *= 2
			}
			if delay > maxAcceptDelay {
				delay = maxAcceptDelay
			}
			gs.logger.Error().
				Dur("retry_in", delay).
				Msgf("could not accept: %v", err)

			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}
		delay = 0

		gs.logger.Info().
			Str("addr", conn.RemoteAddr().String()).
			Msg("accepted connection")

		gs.sessionsWg.Add(1)
		go func() {
			defer gs.sessionsWg.Done()
			gs.serve(ctx, conn)
		}()
	}
}

func (gs *GameServer) serve(ctx context.Context, conn net.Conn) {
	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	defer stop()

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		if err := tcpConn.SetReadBuffer(gs.opts.recvBuffer); err != nil {
			gs.logger.Debug().
				Msgf("could not set read buffer: %v", err)
		}
	}

	s := &session{
		gs:     gs,
		conn:   conn,
		reader: bufio.NewReaderSize(conn, gs.opts.recvBuffer),
	}
	s.setState(StateConnecting)

	if err := s.handshake(gs.opts.handshakeTimeout); err != nil {
		gs.metrics.HandshakeFailures.Inc()
		gs.logger.Error().
			Str("addr", conn.RemoteAddr().String()).
			Msgf("handshake failed: %v", err)
		s.setState(StateClosed)
		conn.Close()
		return
	}
	s.setState(StateKeyExchanged)

	if err := gs.register(s); err != nil {
		gs.logger.Error().
			Str("addr", conn.RemoteAddr().String()).
			Msgf("could not register session: %v", err)
		s.setState(StateClosed)
		conn.Close()
		return
	}
	defer gs.unregister(s)

	s.run()
}

func (gs *GameServer) register(s *session) error {
	gs.mu.Lock()
	defer gs.mu.Unlock()

	s.id = uuid.NewString()
	s.index = gs.accepted
	s.color = protocol.PaletteColor(s.index)
	gs.accepted += 1

	if err := gs.engine.AddPlayer(s.id, s.color); err != nil {
		return fmt.Errorf("could not add player: %w", err)
	}
	gs.sessions[s.id] = s
	s.setState(StateActive)

	gs.metrics.SessionsActive.Inc()
	gs.metrics.SessionsTotal.Inc()
	gs.logger.Info().
		Str("session", s.id).
		Str("color", s.color.String()).
		Str("addr", s.conn.RemoteAddr().String()).
		Msg("session active")

	return nil
}

// unregister runs on every exit path of an active session.
func (gs *GameServer) unregister(s *session) {
	gs.engine.RemovePlayer(s.id)

	gs.mu.Lock()
	delete(gs.sessions, s.id)
	gs.mu.Unlock()

	if err := s.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		gs.logger.Error().
			Str("session", s.id).
			Msgf("could not close connection: %v", err)
	}
	s.setState(StateClosed)

	gs.metrics.SessionsActive.Dec()
	gs.logger.Info().
		Str("session", s.id).
		Msg("session closed")
}

// broadcast queues a chat line for every active session except the sender.
// Lines ride along with each recipient's next reply.
func (gs *GameServer) broadcast(senderID, text string) error {
	line := protocol.ChatLine(senderID, text)

	gs.mu.RLock()
	defer gs.mu.RUnlock()

	var errs error
	for id, s := range gs.sessions {
		// don't send to the sender
		if id == senderID {
			continue
		}
		if err := s.mailbox.push(line); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("session %s: %w", id, err))
			continue
		}
		gs.metrics.ChatBroadcasts.Inc()
	}
	return errs
}

func (gs *GameServer) publish(snapshot protocol.Snapshot) *published {
	text := protocol.EncodeSnapshot(snapshot)
	p := &published{
		snapshot: snapshot,
		text:     text,
		digest:   xxhash.Sum64String(text),
	}
	gs.snapshot.Store(p)
	return p
}

// Snapshot returns the last published snapshot. Callers must not modify it.
func (gs *GameServer) Snapshot() protocol.Snapshot {
	return gs.snapshot.Load().snapshot
}

func (gs *GameServer) SnapshotText() string {
	return gs.snapshot.Load().text
}

// SnapshotDigest is the xxhash of SnapshotText.
func (gs *GameServer) SnapshotDigest() uint64 {
	return gs.snapshot.Load().digest
}

// Ticks returns how many ticks have been applied.
func (gs *GameServer) Ticks() uint64 {
	return gs.tick.Load()
}

type SessionInfo struct {
	ID    string
	Color protocol.Color
	State SessionState
	Addr  string
}

// Sessions lists active sessions in the order they were accepted.
func (gs *GameServer) Sessions() []SessionInfo {
	gs.mu.RLock()
	all := make([]*session, 0, len(gs.sessions))
	for _, s := range gs.sessions {
		all = append(all, s)
	}
	gs.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].index < all[j].index })

	infos := make([]SessionInfo, len(all))
	for i, s := range all {
		infos[i] = SessionInfo{
			ID:    s.id,
			Color: s.color,
			State: s.getState(),
			Addr:  s.conn.RemoteAddr().String(),
		}
	}
	return infos
}
