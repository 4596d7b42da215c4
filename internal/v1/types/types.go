// Package types holds the domain identifiers, wire frames and payload
// structs shared between the transport, room and gateway layers. Keeping
// them here breaks the import cycle between those packages.
package types

import (
	"math"
	"regexp"
	"strings"
)

// --- Core Domain Types ---

// ClientIdType represents a unique identifier for a client connection.
type ClientIdType string

// RoomCodeType represents a room's join code (uppercase, e.g. "OX-K7Q2M").
type RoomCodeType string

// DisplayNameType represents the human-readable name for a player.
type DisplayNameType string

// ChoiceType is a player's quiz answer derived from their zone.
type ChoiceType string

const (
	ChoiceO    ChoiceType = "O"
	ChoiceX    ChoiceType = "X"
	ChoiceNone ChoiceType = ""
)

// World bounds. Proposed player states outside these are clamped, never
// rejected.
const (
	WorldMinXZ   = -512.0
	WorldMaxXZ   = 512.0
	WorldMinY    = 0.0
	WorldMaxY    = 128.0
	MinPitch     = -1.55
	MaxPitch     = 1.55
	MaxNameLen   = 16
	MaxChatLen   = 200
	MaxPortalURL = 420
)

// DefaultDisplayName is used when a client supplies no usable name.
const DefaultDisplayName DisplayNameType = "PLAYER"

// PlayerState is the authoritative positional state of a player.
type PlayerState struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Z         float64 `json:"z"`
	Yaw       float64 `json:"yaw"`
	Pitch     float64 `json:"pitch"`
	UpdatedAt int64   `json:"updatedAt"` // unix millis of last accept
}

// Vec3 is a simple 3-component vector used for velocities and deltas.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

var nameWhitespace = regexp.MustCompile(`\s+`)

// SanitizeDisplayName collapses whitespace to underscores, trims to
// MaxNameLen runes and falls back to DefaultDisplayName.
func SanitizeDisplayName(raw string) DisplayNameType {
	name := nameWhitespace.ReplaceAllString(strings.TrimSpace(raw), "_")
	if name == "" {
		return DefaultDisplayName
	}
	runes := []rune(name)
	if len(runes) > MaxNameLen {
		runes = runes[:MaxNameLen]
	}
	return DisplayNameType(string(runes))
}

// ClampState clamps every field of a proposed state into world bounds.
// Non-finite values fall back to the corresponding previous field.
func ClampState(proposed, previous PlayerState) PlayerState {
	s := proposed
	s.X = clampFinite(s.X, previous.X, WorldMinXZ, WorldMaxXZ)
	s.Z = clampFinite(s.Z, previous.Z, WorldMinXZ, WorldMaxXZ)
	s.Y = clampFinite(s.Y, previous.Y, WorldMinY, WorldMaxY)
	s.Yaw = clampFinite(s.Yaw, previous.Yaw, -math.Pi, math.Pi)
	s.Pitch = clampFinite(s.Pitch, previous.Pitch, MinPitch, MaxPitch)
	return s
}

func clampFinite(v, fallback, lo, hi float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		v = fallback
	}
	return math.Min(hi, math.Max(lo, v))
}
