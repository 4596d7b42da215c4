package types

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeDisplayName(t *testing.T) {
	assert.Equal(t, DisplayNameType("Alice"), SanitizeDisplayName("Alice"))
	assert.Equal(t, DisplayNameType("two_words"), SanitizeDisplayName("  two   words "))
	assert.Equal(t, DefaultDisplayName, SanitizeDisplayName(""))
	assert.Equal(t, DefaultDisplayName, SanitizeDisplayName("   \t  "))

	long := SanitizeDisplayName(strings.Repeat("a", 40))
	assert.Len(t, []rune(string(long)), MaxNameLen)

	// Rune-aware truncation, not byte slicing.
	wide := SanitizeDisplayName(strings.Repeat("あ", 40))
	assert.Len(t, []rune(string(wide)), MaxNameLen)
}

func TestClampState_WorldBounds(t *testing.T) {
	s := ClampState(PlayerState{X: 9999, Y: -50, Z: -9999, Pitch: 3}, PlayerState{})
	assert.Equal(t, WorldMaxXZ, s.X)
	assert.Equal(t, WorldMinY, s.Y)
	assert.Equal(t, WorldMinXZ, s.Z)
	assert.Equal(t, MaxPitch, s.Pitch)
}

func TestClampState_NonFiniteFallsBack(t *testing.T) {
	prev := PlayerState{X: 3, Y: 4, Z: 5, Yaw: 0.5}
	s := ClampState(PlayerState{X: math.NaN(), Y: math.Inf(1), Z: 5, Yaw: math.Inf(-1)}, prev)
	assert.Equal(t, prev.X, s.X)
	assert.Equal(t, prev.Y, s.Y)
	assert.Equal(t, 5.0, s.Z)
	assert.Equal(t, prev.Yaw, s.Yaw)
}

func TestAckHelpers(t *testing.T) {
	assert.Equal(t, Ack{OK: true}, AckOK())
	assert.Equal(t, Ack{OK: false, Error: "room is full"}, AckErr("room is full"))
}
