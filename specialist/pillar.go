// Package specialist defines the specialist record, its reusable template
// blueprint, and the persisted document format shared by every storage
// backend.
//
// A specialist is a narrow-domain agent attached to exactly one pillar. Its
// statistics and expertise level move with outcome feedback; its instruction
// text drives every reasoning call made on its behalf.
package specialist

import (
	"fmt"
	"strings"
)

// Pillar is one of the four coarse reasoning categories a specialist
// branches from.
type Pillar string

const (
	PillarLogos      Pillar = "LOGOS"      // analytical reasoning
	PillarAurora     Pillar = "AURORA"     // creative synthesis
	PillarPrometheus Pillar = "PROMETHEUS" // strategic planning
	PillarThalamus   Pillar = "THALAMUS"   // safety and judgement
)

var pillars = []Pillar{PillarLogos, PillarAurora, PillarPrometheus, PillarThalamus}

// Pillars returns every pillar in canonical order.
func Pillars() []Pillar {
	out := make([]Pillar, len(pillars))
	copy(out, pillars)
	return out
}

// Valid reports whether p is one of the enumerated pillars.
func (p Pillar) Valid() bool {
	for _, known := range pillars {
		if p == known {
			return true
		}
	}
	return false
}

func (p Pillar) String() string {
	return string(p)
}

// ParsePillar resolves a case-insensitive pillar name.
func ParsePillar(s string) (Pillar, error) {
	p := Pillar(strings.ToUpper(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidPillar, s)
	}
	return p, nil
}
