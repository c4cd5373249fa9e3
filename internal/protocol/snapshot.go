package protocol

import (
	"encoding"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// snapshot := players "|" snacks
// players  := "" | player ("**" player)*
// player   := "" | position ("*" position)*
// snacks   := "" | position ("**" position)*
// position := "(" integer "," integer ")"
const (
	sectionSep  = "|"
	playerSep   = "**"
	positionSep = "*"
)

var (
	ErrMalformedSnapshot = errors.New("malformed snapshot")
	ErrMalformedPosition = errors.New("malformed position")
)

type Position struct {
	X int
	Y int
}

func (p Position) Add(dx, dy int) Position {
	return Position{X: p.X + dx, Y: p.Y + dy}
}

var (
	_ encoding.TextMarshaler   = Position{}
	_ encoding.TextUnmarshaler = (*Position)(nil)
)

func (p Position) String() string {
	return "(" + strconv.Itoa(p.X) + "," + strconv.Itoa(p.Y) + ")"
}

func (p Position) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText accepts blanks around the numbers ("(1, 2)") because the
// first server printed tuples that way.
func (p *Position) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))

	inner, ok := strings.CutPrefix(s, "(")
	if ok {
		inner, ok = strings.CutSuffix(inner, ")")
	}
	if !ok {
		return fmt.Errorf("%w: %q", ErrMalformedPosition, s)
	}

	xs, ys, ok := strings.Cut(inner, ",")
	if !ok {
		return fmt.Errorf("%w: %q", ErrMalformedPosition, s)
	}

	x, err := strconv.Atoi(strings.TrimSpace(xs))
	if err != nil {
		return fmt.Errorf("%w: %q: %w", ErrMalformedPosition, s, err)
	}
	y, err := strconv.Atoi(strings.TrimSpace(ys))
	if err != nil {
		return fmt.Errorf("%w: %q: %w", ErrMalformedPosition, s, err)
	}

	p.X, p.Y = x, y
	return nil
}

// Player is a snake body, head first.
type Player []Position

func (pl Player) Head() (Position, bool) {
	if len(pl) == 0 {
		return Position{}, false
	}
	return pl[0], true
}

// Snapshot is the world state published after every tick.
type Snapshot struct {
	Players []Player
	Snacks  []Position
}

var (
	_ encoding.TextMarshaler   = Snapshot{}
	_ encoding.TextUnmarshaler = (*Snapshot)(nil)
)

func (s Snapshot) MarshalText() ([]byte, error) {
	return []byte(EncodeSnapshot(s)), nil
}

func (s *Snapshot) UnmarshalText(text []byte) error {
	decoded, err := DecodeSnapshot(string(text))
	if err != nil {
		return err
	}
	*s = decoded
	return nil
}

func (s Snapshot) String() string {
	return EncodeSnapshot(s)
}

func EncodeSnapshot(s Snapshot) string {
	sb := strings.Builder{}

	for i, player := range s.Players {
		if i > 0 {
			sb.WriteString(playerSep)
		}
		for j, pos := range player {
			if j > 0 {
				sb.WriteString(positionSep)
			}
			sb.WriteString(pos.String())
		}
	}

	sb.WriteString(sectionSep)

	for i, pos := range s.Snacks {
		if i > 0 {
			sb.WriteString(playerSep)
		}
		sb.WriteString(pos.String())
	}

	return sb.String()
}

// DecodeSnapshot parses the snapshot text. On any error the returned
// snapshot is zero and the caller decides whether to keep its last good one.
//
// Empty sections decode to empty lists, empty tokens left by trailing
// separators are skipped, and a player segment without positions is
// dropped, so a snapshot only round trips when every player has at least
// one position.
func DecodeSnapshot(text string) (Snapshot, error) {
	playersText, snacksText, ok := strings.Cut(strings.TrimSpace(text), sectionSep)
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: missing %q", ErrMalformedSnapshot, sectionSep)
	}
	if strings.Contains(snacksText, sectionSep) {
		return Snapshot{}, fmt.Errorf("%w: more than one %q", ErrMalformedSnapshot, sectionSep)
	}

	s := Snapshot{}

	if playersText != "" {
		for _, playerText := range strings.Split(playersText, playerSep) {
			player, err := decodePositions(playerText, positionSep)
			if err != nil {
				return Snapshot{}, fmt.Errorf("%w: player %d: %w", ErrMalformedSnapshot, len(s.Players), err)
			}
			if len(player) == 0 {
				continue
			}
			s.Players = append(s.Players, Player(player))
		}
	}

	snacks, err := decodePositions(snacksText, playerSep)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: snacks: %w", ErrMalformedSnapshot, err)
	}
	s.Snacks = snacks

	return s, nil
}

func decodePositions(text, sep string) ([]Position, error) {
	if text == "" {
		return nil, nil
	}

	var positions []Position
	for _, token := range strings.Split(text, sep) {
		// a doubled or trailing separator leaves empty tokens behind
		if strings.TrimSpace(token) == "" {
			continue
		}
		var pos Position
		if err := pos.UnmarshalText([]byte(token)); err != nil {
			return nil, err
		}
		positions = append(positions, pos)
	}
	return positions, nil
}
