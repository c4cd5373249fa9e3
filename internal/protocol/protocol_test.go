package protocol_test

import (
	"errors"
	"testing"

	"github.com/blukai/snakeparty/internal/protocol"
	"github.com/matryer/is"
)

func TestParseCommand(t *testing.T) {
	is := is.New(t)

	testCases := []struct {
		in   string
		want protocol.Command
	}{
		{"up", protocol.Steer(protocol.Up)},
		{"down", protocol.Steer(protocol.Down)},
		{"left", protocol.Steer(protocol.Left)},
		{"right", protocol.Steer(protocol.Right)},
		{"reset", protocol.Reset()},
		{"quit", protocol.Quit()},
		{"control:get", protocol.Poll()},
		{"chat:hello", protocol.Chat("hello")},
		{"chat:", protocol.Chat("")},
		{"chat:a:b", protocol.Chat("a:b")},
		{"UP", protocol.Command{Kind: protocol.CommandInvalid, Text: "UP"}},
		{"jump", protocol.Command{Kind: protocol.CommandInvalid, Text: "jump"}},
		{"", protocol.Command{Kind: protocol.CommandInvalid}},
	}

	for _, tc := range testCases {
		got := protocol.ParseCommand(tc.in)
		is.Equal(got, tc.want)
		is.Equal(got.String(), tc.in) // wire text is preserved
	}
}

func TestSteerIsMoveCommand(t *testing.T) {
	is := is.New(t)

	cmd := protocol.Steer(protocol.Left)
	is.Equal(cmd.Kind, protocol.CommandMove)
	is.Equal(cmd.Direction, protocol.Left)

	// a queued move carries the same direction under its session
	m := protocol.Move{SessionID: "a", Direction: cmd.Direction}
	is.Equal(m.Direction, protocol.Left)

	head, ok := protocol.Player{{X: 3, Y: 4}, {X: 2, Y: 4}}.Head()
	is.True(ok)
	is.Equal(head, protocol.Position{X: 3, Y: 4})
	_, ok = protocol.Player{}.Head()
	is.True(!ok)
}

func TestDirection(t *testing.T) {
	is := is.New(t)

	for _, d := range protocol.Directions {
		is.True(d.Valid())
		is.Equal(d.Opposite().Opposite(), d)

		parsed, ok := protocol.ParseDirection(d.String())
		is.True(ok)
		is.Equal(parsed, d)

		dx, dy := d.Delta()
		odx, ody := d.Opposite().Delta()
		is.Equal(dx, -odx)
		is.Equal(dy, -ody)
	}

	dx, dy := protocol.Right.Delta()
	is.Equal(dx, 1)
	is.Equal(dy, 0)

	_, ok := protocol.ParseDirection("north")
	is.True(!ok)
	is.True(!protocol.Direction(0).Valid())
}

func TestSnapshotEncoding(t *testing.T) {
	is := is.New(t)

	testCases := []struct {
		name     string
		snapshot protocol.Snapshot
		text     string
	}{
		{
			name: "empty",
			text: "|",
		},
		{
			name: "snacks only",
			snapshot: protocol.Snapshot{
				Snacks: []protocol.Position{{X: 3, Y: 4}, {X: 0, Y: 19}},
			},
			text: "|(3,4)**(0,19)",
		},
		{
			name: "players only",
			snapshot: protocol.Snapshot{
				Players: []protocol.Player{{{X: 1, Y: 2}}},
			},
			text: "(1,2)|",
		},
		{
			name: "full",
			snapshot: protocol.Snapshot{
				Players: []protocol.Player{
					{{X: 5, Y: 5}, {X: 4, Y: 5}, {X: 3, Y: 5}},
					{{X: 10, Y: 0}},
				},
				Snacks: []protocol.Position{{X: 7, Y: 8}},
			},
			text: "(5,5)*(4,5)*(3,5)**(10,0)|(7,8)",
		},
		{
			name: "negative coordinates",
			snapshot: protocol.Snapshot{
				Players: []protocol.Player{{{X: -1, Y: -20}}},
				Snacks:  []protocol.Position{{X: -3, Y: 0}},
			},
			text: "(-1,-20)|(-3,0)",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			is := is.New(t)

			text := protocol.EncodeSnapshot(tc.snapshot)
			is.Equal(text, tc.text)

			decoded, err := protocol.DecodeSnapshot(text)
			is.NoErr(err)
			is.Equal(decoded, tc.snapshot)

			marshaled, err := tc.snapshot.MarshalText()
			is.NoErr(err)
			var unmarshaled protocol.Snapshot
			is.NoErr(unmarshaled.UnmarshalText(marshaled))
			is.Equal(unmarshaled, tc.snapshot)
		})
	}

	is.Equal(protocol.Snapshot{}.String(), "|")
}

func TestSnapshotDecodingTolerance(t *testing.T) {
	is := is.New(t)

	testCases := []struct {
		name string
		text string
		want protocol.Snapshot
	}{
		{
			name: "trailing position separator",
			text: "(1,2)*|",
			want: protocol.Snapshot{Players: []protocol.Player{{{X: 1, Y: 2}}}},
		},
		{
			name: "trailing player separator",
			text: "(1,2)**|(3,3)**",
			want: protocol.Snapshot{
				Players: []protocol.Player{{{X: 1, Y: 2}}},
				Snacks:  []protocol.Position{{X: 3, Y: 3}},
			},
		},
		{
			name: "empty player segment is dropped",
			text: "(1,2)****(3,4)|",
			want: protocol.Snapshot{
				Players: []protocol.Player{{{X: 1, Y: 2}}, {{X: 3, Y: 4}}},
			},
		},
		{
			name: "blanks inside positions",
			text: " (1, 2)*( 3 ,4 )|(5, 6) ",
			want: protocol.Snapshot{
				Players: []protocol.Player{{{X: 1, Y: 2}, {X: 3, Y: 4}}},
				Snacks:  []protocol.Position{{X: 5, Y: 6}},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			is := is.New(t)

			got, err := protocol.DecodeSnapshot(tc.text)
			is.NoErr(err)
			is.Equal(got, tc.want)
		})
	}
}

func TestSnapshotDecodingMalformed(t *testing.T) {
	is := is.New(t)

	testCases := []string{
		"",
		"garbage",
		"(1,2)",
		"(1,2)|(3,4)|(5,6)",
		"(1,2|",
		"1,2)|",
		"(1;2)|",
		"(a,b)|",
		"(1,2,3)|",
		"|(1,2)*(3,4)",
		"|()",
		"(1,2)x(3,4)|",
		"(99999999999999999999999,1)|",
	}

	for _, tc := range testCases {
		got, err := protocol.DecodeSnapshot(tc)
		is.True(errors.Is(err, protocol.ErrMalformedSnapshot)) // malformed input reports an error
		is.Equal(got, protocol.Snapshot{})
	}

	var s protocol.Snapshot
	err := s.UnmarshalText([]byte("garbage"))
	is.True(errors.Is(err, protocol.ErrMalformedSnapshot))
}

func TestPositionUnmarshal(t *testing.T) {
	is := is.New(t)

	var p protocol.Position
	is.NoErr(p.UnmarshalText([]byte("(12,-3)")))
	is.Equal(p, protocol.Position{X: 12, Y: -3})

	err := p.UnmarshalText([]byte("(12)"))
	is.True(errors.Is(err, protocol.ErrMalformedPosition))
	is.Equal(p, protocol.Position{X: 12, Y: -3}) // untouched on failure
}

func TestReplyEncoding(t *testing.T) {
	is := is.New(t)

	snapshot := protocol.Snapshot{
		Players: []protocol.Player{{{X: 1, Y: 1}}},
		Snacks:  []protocol.Position{{X: 2, Y: 2}},
	}

	r := protocol.PosReply(snapshot)
	is.Equal(r.String(), "pos:(1,1)|(2,2)")

	r = r.WithChat(protocol.ChatLine("abc", "hello"))
	is.Equal(r.String(), "chat:abc: hellopos:(1,1)|(2,2)")

	parsed := protocol.ParseReply(r.String())
	is.Equal(parsed, r)

	decoded, err := parsed.Snapshot()
	is.NoErr(err)
	is.Equal(decoded, snapshot)

	is.Equal(protocol.Reply{}.String(), "")
}

func TestParseReply(t *testing.T) {
	is := is.New(t)

	testCases := []struct {
		in   string
		want protocol.Reply
	}{
		{"", protocol.Reply{}},
		{"hello", protocol.Reply{}},
		{"pos:|", protocol.Reply{Pos: "|", HasPos: true}},
		{"pos: (1,1)| \n", protocol.Reply{Pos: "(1,1)|", HasPos: true}},
		{"chat:x: hi", protocol.Reply{Chat: "x: hi", HasChat: true}},
		{
			"chat:x: hipos:|(1,1)",
			protocol.Reply{Chat: "x: hi", HasChat: true, Pos: "|(1,1)", HasPos: true},
		},
		{
			// order on the wire does not matter
			"pos:|(1,1)chat:x: hi",
			protocol.Reply{Chat: "x: hi", HasChat: true, Pos: "|(1,1)", HasPos: true},
		},
		{
			// documented ambiguity: the chat text is cut at the embedded marker
			"chat:x: see pos: herepos:|",
			protocol.Reply{Chat: "x: see ", HasChat: true, Pos: "here", HasPos: true},
		},
	}

	for _, tc := range testCases {
		is.Equal(protocol.ParseReply(tc.in), tc.want)
	}
}

func TestPaletteColor(t *testing.T) {
	is := is.New(t)

	is.Equal(protocol.PaletteColor(0), protocol.Palette[0])
	is.Equal(protocol.PaletteColor(len(protocol.Palette)), protocol.Palette[0])
	is.Equal(protocol.PaletteColor(7), protocol.Palette[2])
	is.Equal(protocol.PaletteColor(0).String(), "#ff0000")
}
