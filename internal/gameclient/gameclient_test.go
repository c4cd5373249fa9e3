package gameclient_test

import (
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/blukai/snakeparty/internal/gameclient"
	"github.com/blukai/snakeparty/internal/gameserver"
	"github.com/blukai/snakeparty/internal/keys"
	"github.com/blukai/snakeparty/internal/protocol"
	"github.com/matryer/is"
)

var (
	keysOnce   sync.Once
	serverKeys *keys.KeyPair
	clientKeys *keys.KeyPair
)

func testKeys(t *testing.T) (*keys.KeyPair, *keys.KeyPair) {
	t.Helper()
	keysOnce.Do(func() {
		var err error
		if serverKeys, err = keys.Generate(); err != nil {
			panic(err)
		}
		if clientKeys, err = keys.Generate(); err != nil {
			panic(err)
		}
	})
	return serverKeys, clientKeys
}

type stubEngine struct {
	mu       sync.Mutex
	moves    []protocol.Move
	snapshot protocol.Snapshot
}

func (e *stubEngine) AddPlayer(string, protocol.Color) error { return nil }
func (e *stubEngine) RemovePlayer(string)                    {}
func (e *stubEngine) ResetPlayer(string)                     {}

func (e *stubEngine) Move(moves []protocol.Move) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.moves = append(e.moves, moves...)
}

func (e *stubEngine) Snapshot() protocol.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot
}

func (e *stubEngine) setSnapshot(s protocol.Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.snapshot = s
}

func (e *stubEngine) drained() []protocol.Move {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]protocol.Move(nil), e.moves...)
}

func startServer(t *testing.T, engine *stubEngine) *gameserver.GameServer {
	t.Helper()
	sk, _ := testKeys(t)

	gs, err := gameserver.NewGameServer("tcp", "127.0.0.1:0", sk, engine, nil,
		gameserver.WithTickInterval(time.Hour))
	if err != nil {
		t.Fatalf("could not create server: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		gs.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return gs
}

func connect(t *testing.T, gs *gameserver.GameServer) *gameclient.GameClient {
	t.Helper()
	_, ck := testKeys(t)

	gc, err := gameclient.NewGameClient("tcp", gs.Addr().String(), nil,
		gameclient.WithKeyPair(ck))
	if err != nil {
		t.Fatalf("could not connect: %v", err)
	}
	t.Cleanup(func() { gc.Close() })
	return gc
}

// scriptedInput plays steps in order and then asks to quit.
type scriptedInput struct {
	steps []func() protocol.Command
}

func (in *scriptedInput) Poll() protocol.Command {
	if len(in.steps) == 0 {
		return protocol.Quit()
	}
	step := in.steps[0]
	in.steps = in.steps[1:]
	return step()
}

func cmd(c protocol.Command) func() protocol.Command {
	return func() protocol.Command { return c }
}

type recordingRenderer struct {
	rendered []protocol.Snapshot
	chat     []string
}

func (r *recordingRenderer) Render(s protocol.Snapshot) error {
	r.rendered = append(r.rendered, s)
	return nil
}

func (r *recordingRenderer) Chat(line string) {
	r.chat = append(r.chat, line)
}

var testSnapshot = protocol.Snapshot{
	Players: []protocol.Player{{{X: 1, Y: 1}}},
	Snacks:  []protocol.Position{{X: 2, Y: 2}},
}

func TestSendPoll(t *testing.T) {
	is := is.New(t)

	engine := &stubEngine{snapshot: testSnapshot}
	gs := startServer(t, engine)
	gc := connect(t, gs)

	reply, err := gc.Send(protocol.Poll())
	is.NoErr(err)
	is.True(reply.HasPos)
	is.True(!reply.HasChat)
	is.Equal(reply.Pos, "(1,1)|(2,2)")

	snapshot, err := reply.Snapshot()
	is.NoErr(err)
	is.Equal(snapshot, testSnapshot)
}

func TestRunRendersOnlyChanges(t *testing.T) {
	is := is.New(t)

	engine := &stubEngine{snapshot: testSnapshot}
	gs := startServer(t, engine)
	gc := connect(t, gs)

	moved := protocol.Snapshot{
		Players: []protocol.Player{{{X: 2, Y: 1}}},
		Snacks:  []protocol.Position{{X: 2, Y: 2}},
	}

	input := &scriptedInput{steps: []func() protocol.Command{
		cmd(protocol.Steer(protocol.Right)),
		cmd(protocol.Poll()),
		func() protocol.Command {
			engine.setSnapshot(moved)
			gs.Tick()
			return protocol.Poll()
		},
		cmd(protocol.Poll()),
	}}
	renderer := &recordingRenderer{}

	err := gc.Run(context.Background(), input, renderer)
	is.NoErr(err)

	is.Equal(renderer.rendered, []protocol.Snapshot{testSnapshot, moved})
	is.Equal(len(renderer.chat), 0)

	is.Equal(len(engine.drained()), 1)
	is.Equal(engine.drained()[0].Direction, protocol.Right)
}

func TestRunSurfacesChat(t *testing.T) {
	is := is.New(t)

	engine := &stubEngine{}
	gs := startServer(t, engine)
	alice := connect(t, gs)
	bob := connect(t, gs)

	// bob has to be registered before alice talks
	_, err := bob.Send(protocol.Poll())
	is.NoErr(err)

	reply, err := alice.Send(protocol.Chat("hello"))
	is.NoErr(err)
	is.True(!reply.HasChat) // the sender does not hear itself

	renderer := &recordingRenderer{}
	err = bob.Run(context.Background(), &scriptedInput{}, renderer)
	is.NoErr(err)

	is.Equal(len(renderer.chat), 1)
	is.True(strings.HasSuffix(renderer.chat[0], ": hello"))
}

func TestRunQuitsOnCancel(t *testing.T) {
	is := is.New(t)

	gs := startServer(t, &stubEngine{})
	gc := connect(t, gs)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// polls forever unless the client gives up on its own
	input := &scriptedInput{}
	for i := 0; i < 100; i++ {
		input.steps = append(input.steps, cmd(protocol.Poll()))
	}

	err := gc.Run(ctx, input, &recordingRenderer{})
	is.Equal(err, context.Canceled)
	is.Equal(len(input.steps), 99)
}

func TestRunSkipsOversizedChat(t *testing.T) {
	is := is.New(t)

	gs := startServer(t, &stubEngine{})
	gc := connect(t, gs)

	input := &scriptedInput{steps: []func() protocol.Command{
		cmd(protocol.Chat(strings.Repeat("x", 500))),
		cmd(protocol.Poll()),
	}}
	renderer := &recordingRenderer{}

	is.NoErr(gc.Run(context.Background(), input, renderer))
	is.Equal(len(renderer.rendered), 1)
}

func TestDialFailure(t *testing.T) {
	is := is.New(t)
	_, ck := testKeys(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	is.NoErr(err)
	addr := ln.Addr().String()
	ln.Close()

	_, err = gameclient.NewGameClient("tcp", addr, nil,
		gameclient.WithKeyPair(ck),
		gameclient.WithDialTimeout(time.Second))
	is.True(err != nil)
}

func TestHandshakeFailure(t *testing.T) {
	is := is.New(t)
	_, ck := testKeys(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	is.NoErr(err)
	defer ln.Close()

	// hangs up without sending a key
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		conn.Close()
	}()

	_, err = gameclient.NewGameClient("tcp", ln.Addr().String(), nil,
		gameclient.WithKeyPair(ck),
		gameclient.WithHandshakeTimeout(time.Second))
	is.True(err != nil)
	is.True(strings.Contains(err.Error(), "handshake failed"))
}
