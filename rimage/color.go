package rimage

import (
	"fmt"
	"image/color"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"
)

// Color is an 8-bit RGB color. The zero value is black.
type Color struct {
	R, G, B uint8
}

// NewColor returns a Color from its three channels.
func NewColor(r, g, b uint8) Color {
	return Color{R: r, G: g, B: b}
}

// NewColorFromHex parses "#rrggbb" (the leading '#' is optional).
func NewColorFromHex(hex string) (Color, error) {
	if len(hex) > 0 && hex[0] != '#' {
		hex = "#" + hex
	}
	cc, err := colorful.Hex(hex)
	if err != nil {
		return Color{}, errors.Wrapf(err, "couldn't parse hex %q", hex)
	}
	r, g, b := cc.RGB255()
	return NewColor(r, g, b), nil
}

// NewColorFromColor converts any color.Color into a Color, dropping alpha.
func NewColorFromColor(c color.Color) Color {
	if cc, ok := c.(Color); ok {
		return cc
	}
	cc, ok := colorful.MakeColor(c)
	if !ok {
		// fully transparent.
		return Color{}
	}
	r, g, b := cc.RGB255()
	return NewColor(r, g, b)
}

func (c Color) String() string {
	return c.Hex()
}

// Hex returns the color as "#rrggbb".
func (c Color) Hex() string {
	return fmt.Sprintf("#%.2x%.2x%.2x", c.R, c.G, c.B)
}

// RGBA implements color.Color. Colors are always opaque.
func (c Color) RGBA() (r, g, b, a uint32) {
	return color.RGBA{c.R, c.G, c.B, 0xff}.RGBA()
}
