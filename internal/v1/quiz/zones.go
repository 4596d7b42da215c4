package quiz

import (
	"math"

	"github.com/oxarena/ox-arena/backend/go/internal/v1/types"
)

// Judgement reasons attached to a null choice.
const (
	ReasonCenterLine      = "center-line"
	ReasonOutOfLane       = "out-of-lane"
	ReasonOffZone         = "off-zone"
	ReasonInvalidPosition = "invalid-position"
)

// centerLineSlack widens the divider strip so players straddling it are
// never judged by rounding error.
const centerLineSlack = 0.8

// Zone is an axis-aligned answer rectangle on the arena floor.
type Zone struct {
	MinX float64 `json:"minX"`
	MaxX float64 `json:"maxX"`
	MinZ float64 `json:"minZ"`
	MaxZ float64 `json:"maxZ"`
}

// innerMargin shrinks the zone so a player must stand clearly inside it.
func (z Zone) innerMargin() float64 {
	dim := math.Min(z.MaxX-z.MinX, z.MaxZ-z.MinZ)
	return math.Min(0.5, 0.2*dim)
}

// containsInner reports whether (x, z) is strictly inside the zone after
// applying the inner margin.
func (z Zone) containsInner(x, zc float64) bool {
	m := z.innerMargin()
	return x > z.MinX+m && x < z.MaxX-m && zc > z.MinZ+m && zc < z.MaxZ-m
}

// contains reports whether (x, z) is inside the raw zone bounds.
func (z Zone) contains(x, zc float64) bool {
	return x >= z.MinX && x <= z.MaxX && zc >= z.MinZ && zc <= z.MaxZ
}

// ZoneSet is the arena's answer layout: the O zone, the X zone, and the
// divider strip between them.
type ZoneSet struct {
	O            Zone    `json:"o"`
	X            Zone    `json:"x"`
	DividerWidth float64 `json:"dividerWidth"`
}

// DefaultZones places O on negative x and X on positive x, separated by a
// 2-unit divider at x=0.
func DefaultZones() ZoneSet {
	return ZoneSet{
		O:            Zone{MinX: -40, MaxX: -1, MinZ: -20, MaxZ: 20},
		X:            Zone{MinX: 1, MaxX: 40, MinZ: -20, MaxZ: 20},
		DividerWidth: 2,
	}
}

// Judge resolves a player's answer from their position at lock time.
// A null choice carries the reason the position did not count.
func (zs ZoneSet) Judge(x, z float64) (types.ChoiceType, string) {
	if math.IsNaN(x) || math.IsNaN(z) || math.IsInf(x, 0) || math.IsInf(z, 0) {
		return types.ChoiceNone, ReasonInvalidPosition
	}

	inO := zs.O.containsInner(x, z)
	inX := zs.X.containsInner(x, z)
	switch {
	case inO && !zs.X.contains(x, z):
		return types.ChoiceO, ""
	case inX && !zs.O.contains(x, z):
		return types.ChoiceX, ""
	}

	if math.Abs(x) <= zs.DividerWidth/2+centerLineSlack {
		return types.ChoiceNone, ReasonCenterLine
	}

	minZ := math.Min(zs.O.MinZ, zs.X.MinZ)
	maxZ := math.Max(zs.O.MaxZ, zs.X.MaxZ)
	if z < minZ || z > maxZ {
		return types.ChoiceNone, ReasonOutOfLane
	}

	return types.ChoiceNone, ReasonOffZone
}
