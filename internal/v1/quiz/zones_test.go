package quiz

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/oxarena/ox-arena/backend/go/internal/v1/types"
)

func TestJudge_InsideZones(t *testing.T) {
	zs := DefaultZones()

	choice, reason := zs.Judge(-20, 0)
	assert.Equal(t, types.ChoiceO, choice)
	assert.Empty(t, reason)

	choice, reason = zs.Judge(20, 0)
	assert.Equal(t, types.ChoiceX, choice)
	assert.Empty(t, reason)
}

func TestJudge_CenterLine(t *testing.T) {
	zs := DefaultZones()

	for _, x := range []float64{0, 0.5, -0.5, 1.4, -1.4} {
		choice, reason := zs.Judge(x, 0)
		assert.Equal(t, types.ChoiceNone, choice, "x=%v", x)
		assert.Equal(t, ReasonCenterLine, reason, "x=%v", x)
	}
}

func TestJudge_OutOfLane(t *testing.T) {
	zs := DefaultZones()

	choice, reason := zs.Judge(-20, 25)
	assert.Equal(t, types.ChoiceNone, choice)
	assert.Equal(t, ReasonOutOfLane, reason)

	choice, reason = zs.Judge(20, -30)
	assert.Equal(t, types.ChoiceNone, choice)
	assert.Equal(t, ReasonOutOfLane, reason)
}

func TestJudge_OffZone(t *testing.T) {
	zs := DefaultZones()

	choice, reason := zs.Judge(45, 0)
	assert.Equal(t, types.ChoiceNone, choice)
	assert.Equal(t, ReasonOffZone, reason)
}

func TestJudge_InnerMarginExcludesZoneEdge(t *testing.T) {
	zs := DefaultZones()

	// On the O zone's outer boundary: inside the raw rect but not clearly
	// inside, so the position does not count.
	choice, reason := zs.Judge(-40, 0)
	assert.Equal(t, types.ChoiceNone, choice)
	assert.Equal(t, ReasonOffZone, reason)
}

func TestJudge_InvalidPosition(t *testing.T) {
	zs := DefaultZones()

	for _, pos := range [][2]float64{
		{math.NaN(), 0},
		{0, math.NaN()},
		{math.Inf(1), 0},
		{0, math.Inf(-1)},
	} {
		choice, reason := zs.Judge(pos[0], pos[1])
		assert.Equal(t, types.ChoiceNone, choice)
		assert.Equal(t, ReasonInvalidPosition, reason)
	}
}

func TestJudge_Deterministic(t *testing.T) {
	zs := DefaultZones()
	c1, r1 := zs.Judge(-13.37, 4.2)
	c2, r2 := zs.Judge(-13.37, 4.2)
	assert.Equal(t, c1, c2)
	assert.Equal(t, r1, r2)
}

func TestInnerMargin(t *testing.T) {
	assert.InDelta(t, 0.5, Zone{MinX: -40, MaxX: -1, MinZ: -20, MaxZ: 20}.innerMargin(), 1e-9)
	// Tiny zones shrink by 20% of the smaller dimension instead.
	assert.InDelta(t, 0.2, Zone{MinX: 0, MaxX: 1, MinZ: 0, MaxZ: 10}.innerMargin(), 1e-9)
}
