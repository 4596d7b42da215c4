// Package motion implements the authoritative movement pipeline: the
// per-sync validator that clamps proposed player states against speed,
// acceleration and teleport ceilings, and the per-receiver AOI delta
// encoder driven by the server tick.
package motion

import (
	"math"
	"time"

	"github.com/oxarena/ox-arena/backend/go/internal/v1/types"
)

// Limits are the movement ceilings applied to every accepted sync.
type Limits struct {
	MaxSpeed         float64       // horizontal units/s
	MaxVerticalSpeed float64       // units/s on y
	MaxAccel         float64       // units/s^2
	TeleportCap      float64       // max total displacement per sync
	Margin           float64       // latency jitter allowance per sync
	MinDt            time.Duration // elapsed time floor
	MaxDt            time.Duration // elapsed time ceiling

	CorrectionMinDist float64       // clamp distance below which no correction is sent
	CorrectionCooldown time.Duration // min gap between corrections to one player
}

// DefaultLimits returns the production movement ceilings.
func DefaultLimits() Limits {
	return Limits{
		MaxSpeed:           17.5,
		MaxVerticalSpeed:   24,
		MaxAccel:           46,
		TeleportCap:        18,
		Margin:             0.4,
		MinDt:              time.Second / 120,
		MaxDt:              250 * time.Millisecond,
		CorrectionMinDist:  0.08,
		CorrectionCooldown: 90 * time.Millisecond,
	}
}

// Result is the outcome of validating one proposed state.
type Result struct {
	Accepted types.PlayerState
	Velocity types.Vec3
	// Clamped reports whether the accepted state differs from the proposal.
	Clamped bool
	// ClampDistance is |accepted - proposal| after all clamps.
	ClampDistance float64
	// Correct reports whether a player:correct should be emitted, honoring
	// the per-player cooldown.
	Correct bool
}

// Validator clamps proposed player states. It is stateless; per-player
// tracking (last accepted state, velocity, correction time) lives on the
// player record.
type Validator struct {
	limits Limits
}

// NewValidator returns a validator with the given limits.
func NewValidator(limits Limits) *Validator {
	return &Validator{limits: limits}
}

// Validate clamps proposed against previous. The validator never rejects:
// the returned state is always accepted, possibly scaled back toward the
// previous position. lastCorrection gates the Correct flag.
func (v *Validator) Validate(previous types.PlayerState, prevVel types.Vec3, proposed types.PlayerState, now time.Time, lastCorrection time.Time) Result {
	lim := v.limits
	nowMs := now.UnixMilli()

	clamped := types.ClampState(proposed, previous)

	// First sync for this player: accept wholesale, no velocity history.
	if previous.UpdatedAt == 0 {
		clamped.UpdatedAt = nowMs
		return Result{Accepted: clamped}
	}

	dt := time.Duration(nowMs-previous.UpdatedAt) * time.Millisecond
	if dt < lim.MinDt {
		dt = lim.MinDt
	} else if dt > lim.MaxDt {
		dt = lim.MaxDt
	}
	dts := dt.Seconds()

	dx := clamped.X - previous.X
	dy := clamped.Y - previous.Y
	dz := clamped.Z - previous.Z

	// 1. Horizontal speed + acceleration bound.
	maxH := lim.Margin + lim.MaxSpeed*dts + 0.5*lim.MaxAccel*dts*dts
	if dh := math.Hypot(dx, dz); dh > maxH {
		scale := maxH / dh
		dx *= scale
		dz *= scale
	}

	// 2. Vertical bound.
	maxV := lim.Margin + lim.MaxVerticalSpeed*dts
	if math.Abs(dy) > maxV {
		dy = math.Copysign(maxV, dy)
	}

	// 3. Teleport cap on the total displacement.
	if dTotal := math.Sqrt(dx*dx + dy*dy + dz*dz); dTotal > lim.TeleportCap {
		scale := lim.TeleportCap / dTotal
		dx *= scale
		dy *= scale
		dz *= scale
	}

	// 4. Acceleration smoothing on the implied velocity change.
	vel := types.Vec3{X: dx / dts, Y: dy / dts, Z: dz / dts}
	dvx := vel.X - prevVel.X
	dvy := vel.Y - prevVel.Y
	dvz := vel.Z - prevVel.Z
	maxDv := 1.8 * lim.MaxAccel * dts
	if dv := math.Sqrt(dvx*dvx + dvy*dvy + dvz*dvz); dv > maxDv {
		scale := maxDv / dv
		vel.X = prevVel.X + dvx*scale
		vel.Y = prevVel.Y + dvy*scale
		vel.Z = prevVel.Z + dvz*scale
		dx = vel.X * dts
		dy = vel.Y * dts
		dz = vel.Z * dts
	}

	accepted := clamped
	accepted.X = previous.X + dx
	accepted.Y = previous.Y + dy
	accepted.Z = previous.Z + dz
	accepted = types.ClampState(accepted, previous)
	accepted.UpdatedAt = nowMs

	cdx := accepted.X - proposed.X
	cdy := accepted.Y - proposed.Y
	cdz := accepted.Z - proposed.Z
	clampDist := math.Sqrt(cdx*cdx + cdy*cdy + cdz*cdz)

	res := Result{
		Accepted:      accepted,
		Velocity:      vel,
		Clamped:       clampDist > 1e-9,
		ClampDistance: clampDist,
	}
	if clampDist >= lim.CorrectionMinDist && now.Sub(lastCorrection) >= lim.CorrectionCooldown {
		res.Correct = true
	}
	return res
}
