package room

import (
	"time"

	"github.com/oxarena/ox-arena/backend/go/internal/v1/motion"
	"github.com/oxarena/ox-arena/backend/go/internal/v1/types"
)

// Conn is the transport surface a room drives. Send uses the normal queue
// and may drop under backpressure; SendPriority uses the reserved queue for
// state-changing events and blocks only on a dead peer. DeltaCache returns
// the per-receiver AOI cache for the given room, creating it on first use;
// caches for other rooms are discarded.
type Conn interface {
	ID() types.ClientIdType
	Send(event types.Event, payload any) bool
	SendPriority(event types.Event, payload any)
	DeltaCache(room types.RoomCodeType) *motion.ReceiverCache
	Kick(reason string)
}

// Player is one connection's membership in a room. All fields are guarded
// by the room's mutex.
type Player struct {
	Conn Conn
	ID   types.ClientIdType
	Name types.DisplayNameType

	State    types.PlayerState
	Velocity types.Vec3

	Host  bool
	Alive bool
	Score int

	LastChoice       types.ChoiceType
	LastChoiceReason string

	Admitted           bool
	QueuedForAdmission bool
	PriorityNextRound  bool

	ChatMuted bool

	JoinedAt       time.Time
	joinOrder      uint64
	lastCorrection time.Time
	rejectedMoves  uint64
}

// PlayerInfo is the public per-player entry in room:update.
type PlayerInfo struct {
	ID       types.ClientIdType    `json:"id"`
	Name     types.DisplayNameType `json:"name"`
	Host     bool                  `json:"host"`
	Alive    bool                  `json:"alive"`
	Score    int                   `json:"score"`
	Admitted bool                  `json:"admitted"`
	Queued   bool                  `json:"queued,omitempty"`
	Muted    bool                  `json:"muted,omitempty"`
}

func (p *Player) info() PlayerInfo {
	return PlayerInfo{
		ID:       p.ID,
		Name:     p.Name,
		Host:     p.Host,
		Alive:    p.Alive,
		Score:    p.Score,
		Admitted: p.Admitted,
		Queued:   p.QueuedForAdmission,
		Muted:    p.ChatMuted,
	}
}
