// Package placement maps an item id onto a screen region and a palette slot. Every viewer
// computes the same answer for the same id, so no layout data is exchanged.
package placement

const (
	offsetBasis uint32 = 2166136261
	prime       uint32 = 16777619
)

type Side string

const (
	Left   Side = "left"
	Right  Side = "right"
	Bottom Side = "bottom"
)

var sides = [...]Side{Left, Right, Bottom}

// Placement is an edge of the screen plus a percentage along that edge.
type Placement struct {
	Side   Side    `json:"side"`
	Offset float64 `json:"offset"`
}

// Hash is 32-bit FNV-1a over the bytes of seed.
func Hash(seed string) uint32 {
	h := offsetBasis
	for i := 0; i < len(seed); i++ {
		h ^= uint32(seed[i])
		h *= prime
	}
	return h
}

// Place picks the side and offset for id. Bottom offsets land in [10, 70) and side offsets
// in [5, 75) percent so items stay inside the visible band.
func Place(id string) Placement {
	side := sides[Hash(id+"side")%uint32(len(sides))]
	seed := float64(Hash(id+"off")%100) / 100
	if side == Bottom {
		return Placement{Side: side, Offset: seed*60 + 10}
	}
	return Placement{Side: side, Offset: seed*70 + 5}
}

// ColorIndex picks a palette slot for id. It returns 0 for an empty palette.
func ColorIndex(id string, paletteSize int) int {
	if paletteSize <= 0 {
		return 0
	}
	return int(Hash(id+"col") % uint32(paletteSize))
}
