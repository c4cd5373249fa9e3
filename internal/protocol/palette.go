package protocol

import "fmt"

type Color struct {
	R, G, B uint8
}

func (c Color) String() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// Palette is shared by both ends: the server hands colors out by session
// index, the client paints players by their index in the snapshot. The two
// drift apart once a player leaves, since snapshots carry no color.
var Palette = [...]Color{
	{255, 0, 0},   // red
	{0, 255, 0},   // green
	{0, 0, 255},   // blue
	{255, 255, 0}, // yellow
	{255, 165, 0}, // orange
}

var SnackColor = Color{0, 255, 0}

// PaletteColor cycles the palette.
func PaletteColor(i int) Color {
	if i < 0 {
		i = -i
	}
	return Palette[i%len(Palette)]
}
