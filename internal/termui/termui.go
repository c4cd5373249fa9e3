// Package termui draws the board in a terminal and turns key presses into
// commands.
package termui

import (
	"fmt"

	"github.com/blukai/snakeparty/internal/protocol"
	"github.com/nsf/termbox-go"
	"github.com/phuslu/log"
)

const (
	chatHistory = 5
	queueSize   = 16
)

// canned chat lines bound to keys
var quickChat = map[rune]string{
	'z': "Congratulations!",
	'x': "It works!",
	'c': "Ready?",
}

// KeyCommand maps one terminal event to a command. ok is false for events
// that mean nothing to the game.
func KeyCommand(ev termbox.Event) (cmd protocol.Command, ok bool) {
	if ev.Type != termbox.EventKey {
		return protocol.Command{}, false
	}

	switch ev.Key {
	case termbox.KeyArrowUp:
		return protocol.Steer(protocol.Up), true
	case termbox.KeyArrowDown:
		return protocol.Steer(protocol.Down), true
	case termbox.KeyArrowLeft:
		return protocol.Steer(protocol.Left), true
	case termbox.KeyArrowRight:
		return protocol.Steer(protocol.Right), true
	case termbox.KeySpace:
		return protocol.Reset(), true
	case termbox.KeyEsc, termbox.KeyCtrlC:
		return protocol.Quit(), true
	}

	if text, ok := quickChat[ev.Ch]; ok {
		return protocol.Chat(text), true
	}
	return protocol.Command{}, false
}

type Cell struct {
	X, Y  int
	Ch    rune
	Color protocol.Color
}

// Layout places snacks and players on a rows x rows board. Players are laid
// out after snacks so they stay visible when sharing a cell; off-board
// positions are dropped.
func Layout(snapshot protocol.Snapshot, rows int) []Cell {
	var cells []Cell
	onBoard := func(p protocol.Position) bool {
		return p.X >= 0 && p.X < rows && p.Y >= 0 && p.Y < rows
	}

	for _, snack := range snapshot.Snacks {
		if onBoard(snack) {
			cells = append(cells, Cell{X: snack.X, Y: snack.Y, Ch: '*', Color: protocol.SnackColor})
		}
	}

	for i, player := range snapshot.Players {
		color := protocol.PaletteColor(i)
		for j, p := range player {
			if !onBoard(p) {
				continue
			}
			ch := 'o'
			if j == 0 {
				ch = '@'
			}
			cells = append(cells, Cell{X: p.X, Y: p.Y, Ch: ch, Color: color})
		}
	}

	return cells
}

// UI implements gameclient.Input and gameclient.Renderer on top of termbox.
type UI struct {
	rows   int
	logger *log.Logger

	cmds chan protocol.Command
	done chan struct{}

	last protocol.Snapshot
	chat []string
}

// New takes over the terminal. Close must be called to give it back.
func New(rows int, logger *log.Logger) (*UI, error) {
	if err := termbox.Init(); err != nil {
		return nil, fmt.Errorf("could not init terminal: %w", err)
	}
	termbox.SetInputMode(termbox.InputEsc)
	termbox.SetOutputMode(termbox.Output256)

	ui := &UI{
		rows:   rows,
		logger: logger,
		cmds:   make(chan protocol.Command, queueSize),
		done:   make(chan struct{}),
	}
	go ui.readKeys()

	return ui, nil
}

func (ui *UI) readKeys() {
	defer close(ui.done)

	for {
		ev := termbox.PollEvent()
		switch ev.Type {
		case termbox.EventInterrupt:
			return
		case termbox.EventError:
			ui.logger.Error().Msgf("could not read terminal event: %v", ev.Err)
			return
		}

		cmd, ok := KeyCommand(ev)
		if !ok {
			continue
		}
		select {
		case ui.cmds <- cmd:
		default:
			// the client is falling behind, drop the key
			ui.logger.Debug().Str("cmd", cmd.String()).Msg("dropped key")
		}
	}
}

// Poll returns the oldest pending key press, or a poll command.
func (ui *UI) Poll() protocol.Command {
	select {
	case cmd := <-ui.cmds:
		return cmd
	default:
		return protocol.Poll()
	}
}

func (ui *UI) Render(snapshot protocol.Snapshot) error {
	ui.last = snapshot
	return ui.draw()
}

func (ui *UI) Chat(line string) {
	ui.chat = append(ui.chat, line)
	if len(ui.chat) > chatHistory {
		ui.chat = ui.chat[len(ui.chat)-chatHistory:]
	}
	if err := ui.draw(); err != nil {
		ui.logger.Error().Msgf("could not draw chat: %v", err)
	}
}

func (ui *UI) draw() error {
	if err := termbox.Clear(termbox.ColorDefault, termbox.ColorDefault); err != nil {
		return err
	}

	// border, two terminal columns per board cell
	width := ui.rows*2 + 2
	for x := 0; x < width; x++ {
		termbox.SetCell(x, 0, '-', termbox.ColorDefault, termbox.ColorDefault)
		termbox.SetCell(x, ui.rows+1, '-', termbox.ColorDefault, termbox.ColorDefault)
	}
	for y := 1; y <= ui.rows; y++ {
		termbox.SetCell(0, y, '|', termbox.ColorDefault, termbox.ColorDefault)
		termbox.SetCell(width-1, y, '|', termbox.ColorDefault, termbox.ColorDefault)
	}

	for _, c := range Layout(ui.last, ui.rows) {
		termbox.SetCell(1+c.X*2, 1+c.Y, c.Ch, attribute(c.Color), termbox.ColorDefault)
	}

	for i, line := range ui.chat {
		x := 0
		for _, ch := range line {
			termbox.SetCell(x, ui.rows+3+i, ch, termbox.ColorDefault, termbox.ColorDefault)
			x++
		}
	}

	return termbox.Flush()
}

// Close restores the terminal.
func (ui *UI) Close() {
	termbox.Interrupt()
	<-ui.done
	termbox.Close()
}

// attribute picks the nearest color of the xterm 6x6x6 cube. In Output256
// mode attributes are the color index plus one.
func attribute(c protocol.Color) termbox.Attribute {
	return termbox.Attribute(16+36*cube(c.R)+6*cube(c.G)+cube(c.B)) + 1
}

func cube(v uint8) int {
	return (int(v)*5 + 127) / 255
}
