package groundtruth

import (
	"fmt"
	"math"
	"strings"

	"github.com/schizzz8/lucrezio-semantic-perception/rimage"
)

// paletteSize is the number of known categories. Category i gets the color i/paletteSize of the
// way through 0x000000..0xFFFFFF, truncated toward zero, so "tomato" is 0x7FFFFF.
const paletteSize = 4

var categoryIndex = map[string]int{
	"table":  1,
	"tomato": 2,
	"salt":   3,
	"milk":   4,
}

var (
	// BackgroundColor fills every pixel no detection claims.
	BackgroundColor = rimage.NewColor(0, 0, 0)
	// UnknownColor is used for types whose category is not in the palette.
	UnknownColor = rimage.NewColor(0x80, 0x80, 0x80)
)

// Category returns the type up to its first '_', so "tomato_0" is "tomato".
func Category(typ string) string {
	if i := strings.IndexByte(typ, '_'); i >= 0 {
		return typ[:i]
	}
	return typ
}

// TypeToColor returns the label color of a model type. ok is false, and the color is
// UnknownColor, when the type's category has no palette entry.
func TypeToColor(typ string) (rimage.Color, bool) {
	idx, ok := categoryIndex[Category(typ)]
	if !ok {
		return UnknownColor, false
	}
	hex := int64(math.Floor(float64(idx) / paletteSize * 0xFFFFFF))
	c, err := rimage.NewColorFromHex(fmt.Sprintf("%06x", hex))
	if err != nil {
		return UnknownColor, false
	}
	return c, true
}

// Categories returns the known categories in palette order.
func Categories() []string {
	out := make([]string, len(categoryIndex))
	for name, idx := range categoryIndex {
		out[idx-1] = name
	}
	return out
}
