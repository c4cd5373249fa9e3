package protocol

import (
	"strings"
)

// NOTE(blukai): the wire format is plain text inherited from the first
// (python) version of the game. everything is decoded into the types below
// at the edge; nothing past the session handler looks at raw strings.

const (
	CmdUp      = "up"
	CmdDown    = "down"
	CmdLeft    = "left"
	CmdRight   = "right"
	CmdReset   = "reset"
	CmdQuit    = "quit"
	CmdPoll    = "control:get"
	ChatMarker = "chat:"
	PosMarker  = "pos:"
)

type Direction uint8

const (
	_ Direction = iota
	Up
	Down
	Left
	Right
)

// Directions lists every valid direction in wire order.
var Directions = [...]Direction{Up, Down, Left, Right}

func ParseDirection(s string) (Direction, bool) {
	switch s {
	case CmdUp:
		return Up, true
	case CmdDown:
		return Down, true
	case CmdLeft:
		return Left, true
	case CmdRight:
		return Right, true
	}
	return 0, false
}

func (d Direction) String() string {
	switch d {
	case Up:
		return CmdUp
	case Down:
		return CmdDown
	case Left:
		return CmdLeft
	case Right:
		return CmdRight
	}
	return "invalid"
}

func (d Direction) Valid() bool {
	return d >= Up && d <= Right
}

func (d Direction) Opposite() Direction {
	switch d {
	case Up:
		return Down
	case Down:
		return Up
	case Left:
		return Right
	case Right:
		return Left
	}
	return 0
}

// Delta returns the grid offset of one step. Rows grow downwards.
func (d Direction) Delta() (dx, dy int) {
	switch d {
	case Up:
		return 0, -1
	case Down:
		return 0, 1
	case Left:
		return -1, 0
	case Right:
		return 1, 0
	}
	return 0, 0
}

type CommandKind uint8

const (
	CommandInvalid CommandKind = iota
	CommandMove
	CommandReset
	CommandQuit
	CommandChat
	CommandPoll
)

func (k CommandKind) String() string {
	switch k {
	case CommandMove:
		return "move"
	case CommandReset:
		return "reset"
	case CommandQuit:
		return "quit"
	case CommandChat:
		return "chat"
	case CommandPoll:
		return "poll"
	}
	return "invalid"
}

// Command is one client to server message.
type Command struct {
	Kind      CommandKind
	Direction Direction // CommandMove only
	Text      string    // chat text for CommandChat, raw input for CommandInvalid
}

func Steer(d Direction) Command { return Command{Kind: CommandMove, Direction: d} }
func Reset() Command            { return Command{Kind: CommandReset} }
func Quit() Command             { return Command{Kind: CommandQuit} }
func Poll() Command             { return Command{Kind: CommandPoll} }
func Chat(text string) Command  { return Command{Kind: CommandChat, Text: text} }

// ParseCommand never fails; unknown input yields CommandInvalid with the
// raw text preserved for logging.
func ParseCommand(s string) Command {
	if d, ok := ParseDirection(s); ok {
		return Steer(d)
	}

	switch s {
	case CmdReset:
		return Reset()
	case CmdQuit:
		return Quit()
	case CmdPoll:
		return Poll()
	}

	if text, ok := strings.CutPrefix(s, ChatMarker); ok {
		return Chat(text)
	}

	return Command{Kind: CommandInvalid, Text: s}
}

// String returns the exact wire text.
func (c Command) String() string {
	switch c.Kind {
	case CommandMove:
		return c.Direction.String()
	case CommandReset:
		return CmdReset
	case CommandQuit:
		return CmdQuit
	case CommandPoll:
		return CmdPoll
	case CommandChat:
		return ChatMarker + c.Text
	}
	return c.Text
}

// ChatLine formats a broadcast chat message as seen by the other players.
func ChatLine(sender, text string) string {
	return sender + ": " + text
}

// Move is one pending player input between submission and the next tick.
type Move struct {
	SessionID string
	Direction Direction
}

func (m Move) String() string {
	return m.SessionID + ":" + m.Direction.String()
}
