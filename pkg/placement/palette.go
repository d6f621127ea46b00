package placement

// FallbackColor is used when a palette is empty.
const FallbackColor = "#1B2FDB"

// Palette is an ordered list of color tokens (hex strings) injected by the theme.
type Palette []string

var (
	Light = Palette{"#E76E50", "#2A9D90", "#274754", "#E8C468", "#F4A462"}
	Dark  = Palette{"#2662D9", "#2EB88A", "#E88C30", "#AF57DB", "#E23670"}
)

// For returns the default palette for a theme.
func For(dark bool) Palette {
	if dark {
		return Dark
	}
	return Light
}

func (p Palette) Color(id string) string {
	return p.At(ColorIndex(id, len(p)))
}

func (p Palette) At(i int) string {
	if len(p) == 0 {
		return FallbackColor
	}
	return p[i%len(p)]
}
