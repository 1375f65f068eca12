package spot

import (
	"fmt"
	"sort"
)

type bandRange struct {
	meters    int
	low, high float64
}

// Edges in kHz, inclusive. 60m is the channelized allocation widened by
// 1.5 kHz on each side.
var bandPlan = []bandRange{
	{meters: 160, low: 1800, high: 2000},
	{meters: 80, low: 3500, high: 4000},
	{meters: 60, low: 5329, high: 5405},
	{meters: 40, low: 7000, high: 7300},
	{meters: 30, low: 10100, high: 10150},
	{meters: 20, low: 14000, high: 14350},
	{meters: 17, low: 18068, high: 18168},
	{meters: 15, low: 21000, high: 21450},
	{meters: 12, low: 24890, high: 24990},
	{meters: 10, low: 28000, high: 29700},
	{meters: 6, low: 50000, high: 50100},
}

// BandOf returns the band in meters containing freq (kHz).
func BandOf(freq float64) (int, bool) {
	for _, b := range bandPlan {
		if freq >= b.low && freq <= b.high {
			return b.meters, true
		}
	}
	return 0, false
}

// KnownBands lists every supported band in meters, longest first.
func KnownBands() []int {
	out := make([]int, len(bandPlan))
	for i, b := range bandPlan {
		out[i] = b.meters
	}
	return out
}

// Bands is a set of bands to accept. The zero value accepts everything.
type Bands struct {
	set map[int]bool
}

// NewBands builds a filter from band numbers in meters.
func NewBands(meters []int) (Bands, error) {
	if len(meters) == 0 {
		return Bands{}, nil
	}
	known := make(map[int]bool, len(bandPlan))
	for _, b := range bandPlan {
		known[b.meters] = true
	}
	set := make(map[int]bool, len(meters))
	for _, m := range meters {
		if !known[m] {
			return Bands{}, fmt.Errorf("unknown band %dm (known: %v)", m, KnownBands())
		}
		set[m] = true
	}
	return Bands{set: set}, nil
}

// All reports whether the filter accepts every frequency.
func (b Bands) All() bool {
	return len(b.set) == 0
}

// Contains reports whether freq (kHz) falls inside a selected band.
func (b Bands) Contains(freq float64) bool {
	if b.All() {
		return true
	}
	m, ok := BandOf(freq)
	return ok && b.set[m]
}

// List returns the selected bands, longest first.
func (b Bands) List() []int {
	out := make([]int, 0, len(b.set))
	for m := range b.set {
		out = append(out, m)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return out
}
