package motion

import (
	"math"

	"github.com/oxarena/ox-arena/backend/go/internal/v1/types"
)

// Wire quantization: positions to 0.01 units, rotations to 0.001 rad,
// transmitted as signed integers.
const (
	PosScale = 100
	RotScale = 1000
)

// HeartbeatTicks forces a full update for a cached remote every N ticks
// regardless of movement, guarding liveness against lost frames.
const HeartbeatTicks = 20

// Distance tiers (units) and their broadcast cadence in ticks.
const (
	nearDist = 42.0
	midDist  = 82.0
	farDist  = 128.0
)

// QuantizePos rounds a world coordinate to wire precision.
func QuantizePos(v float64) int32 { return int32(math.Round(v * PosScale)) }

// QuantizeRot rounds a rotation to wire precision.
func QuantizeRot(v float64) int32 { return int32(math.Round(v * RotScale)) }

// Snapshot is the packed per-player snapshot diffed against the receiver's
// cache. X and Z carry the unquantized position for distance tiering and
// are not serialized.
type Snapshot struct {
	ID    types.ClientIdType
	Name  types.DisplayNameType
	Alive uint8
	PX    int32
	PY    int32
	PZ    int32
	RYaw  int32
	RPitch int32

	X float64 `json:"-"`
	Z float64 `json:"-"`
}

// BuildSnapshot packs a player's current state.
func BuildSnapshot(id types.ClientIdType, name types.DisplayNameType, alive bool, st types.PlayerState) Snapshot {
	a := uint8(0)
	if alive {
		a = 1
	}
	return Snapshot{
		ID:     id,
		Name:   name,
		Alive:  a,
		PX:     QuantizePos(st.X),
		PY:     QuantizePos(st.Y),
		PZ:     QuantizePos(st.Z),
		RYaw:   QuantizeRot(st.Yaw),
		RPitch: QuantizeRot(st.Pitch),
		X:      st.X,
		Z:      st.Z,
	}
}

// Update is one remote player's field-level diff. Absent fields are
// unchanged since the receiver's cache.
type Update struct {
	ID types.ClientIdType     `json:"id"`
	N  *types.DisplayNameType `json:"n,omitempty"`
	A  *uint8                 `json:"a,omitempty"`
	P  []int32                `json:"p,omitempty"` // [px, py, pz]
	R  []int32                `json:"r,omitempty"` // [yaw, pitch]
}

// Delta is the per-tick payload for one receiver.
type Delta struct {
	Room    types.RoomCodeType   `json:"room"`
	Tick    uint64               `json:"tick"`
	Updates []Update             `json:"updates,omitempty"`
	Removes []types.ClientIdType `json:"removes,omitempty"`
}

type cacheEntry struct {
	snap     Snapshot
	lastTick uint64
}

// ReceiverCache holds the last-sent snapshot per remote player for one
// receiver in one room. It is owned by the connection and dropped when the
// connection leaves the room.
type ReceiverCache struct {
	entries map[types.ClientIdType]*cacheEntry
}

// NewReceiverCache returns an empty cache.
func NewReceiverCache() *ReceiverCache {
	return &ReceiverCache{entries: make(map[types.ClientIdType]*cacheEntry)}
}

// cadenceFor resolves the broadcast cadence from squared horizontal distance.
func cadenceFor(distSq float64) uint64 {
	switch {
	case distSq <= nearDist*nearDist:
		return 1
	case distSq <= midDist*midDist:
		return 2
	case distSq <= farDist*farDist:
		return 4
	default:
		return 8
	}
}

// Encode produces the delta for one receiver at the given tick, diffing
// each remote snapshot against the cache and updating it in place. Returns
// nil when nothing changed and no removals are pending.
func (c *ReceiverCache) Encode(room types.RoomCodeType, tick uint64, receiver types.PlayerState, remotes []Snapshot) *Delta {
	delta := &Delta{Room: room, Tick: tick}
	seen := make(map[types.ClientIdType]struct{}, len(remotes))

	for i := range remotes {
		snap := &remotes[i]
		seen[snap.ID] = struct{}{}

		entry, cached := c.entries[snap.ID]

		ddx := snap.X - receiver.X
		ddz := snap.Z - receiver.Z
		cadence := cadenceFor(ddx*ddx + ddz*ddz)

		heartbeatDue := cached && tick-entry.lastTick >= HeartbeatTicks
		if cached && !heartbeatDue && tick%cadence != 0 {
			continue
		}

		var upd Update
		upd.ID = snap.ID

		if !cached || heartbeatDue {
			// Full snapshot: new remote, or liveness heartbeat.
			name := snap.Name
			alive := snap.Alive
			upd.N = &name
			upd.A = &alive
			upd.P = []int32{snap.PX, snap.PY, snap.PZ}
			upd.R = []int32{snap.RYaw, snap.RPitch}
		} else {
			if snap.Name != entry.snap.Name {
				name := snap.Name
				upd.N = &name
			}
			if snap.Alive != entry.snap.Alive {
				alive := snap.Alive
				upd.A = &alive
			}
			if snap.PX != entry.snap.PX || snap.PY != entry.snap.PY || snap.PZ != entry.snap.PZ {
				upd.P = []int32{snap.PX, snap.PY, snap.PZ}
			}
			if snap.RYaw != entry.snap.RYaw || snap.RPitch != entry.snap.RPitch {
				upd.R = []int32{snap.RYaw, snap.RPitch}
			}
			if upd.N == nil && upd.A == nil && upd.P == nil && upd.R == nil {
				continue
			}
		}

		delta.Updates = append(delta.Updates, upd)
		if cached {
			entry.snap = *snap
			entry.lastTick = tick
		} else {
			c.entries[snap.ID] = &cacheEntry{snap: *snap, lastTick: tick}
		}
	}

	for id := range c.entries {
		if _, ok := seen[id]; !ok {
			delta.Removes = append(delta.Removes, id)
			delete(c.entries, id)
		}
	}

	if len(delta.Updates) == 0 && len(delta.Removes) == 0 {
		return nil
	}
	return delta
}
