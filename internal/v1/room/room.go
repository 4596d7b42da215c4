// Package room implements the authoritative arena room: the insertion
// ordered roster with host succession, movement validation and per-tick
// AOI delta fan-out, chat, moderation, the entry gate and the embedded
// quiz engine. All room state is serialized behind one mutex; timer
// callbacks re-enter through Schedule so they run under the same guard.
package room

import (
	"container/list"
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/oxarena/ox-arena/backend/go/internal/v1/auth"
	"github.com/oxarena/ox-arena/backend/go/internal/v1/logging"
	"github.com/oxarena/ox-arena/backend/go/internal/v1/metrics"
	"github.com/oxarena/ox-arena/backend/go/internal/v1/motion"
	"github.com/oxarena/ox-arena/backend/go/internal/v1/quiz"
	"github.com/oxarena/ox-arena/backend/go/internal/v1/types"
)

const maxChatHistory = 50

// Options configures a new room.
type Options struct {
	Capacity         int
	ParticipantLimit int
	Persistent       bool
	Owner            *auth.OwnerKeyChecker
	QuizConfig       quiz.Config

	// OnRosterChanged fires after any join, leave or kick, outside the
	// room lock. OnEmpty fires when the last player leaves a
	// non-persistent room.
	OnRosterChanged func(r *Room)
	OnEmpty         func(r *Room)
}

// Room is one arena instance.
type Room struct {
	Code types.RoomCodeType

	mu        sync.Mutex
	players   map[types.ClientIdType]*Player
	nextOrder uint64
	destroyed bool

	capacity         int
	participantLimit int
	persistent       bool
	createdAt        time.Time
	tick             uint64

	validator *motion.Validator
	engine    *quiz.Engine
	gate      gateState

	chatHistory *list.List

	portalTarget string
	billboards   map[string]types.MediaChannel

	owner *auth.OwnerKeyChecker

	onRosterChanged func(r *Room)
	onEmpty         func(r *Room)
}

// New creates an empty room with the given code.
func New(code types.RoomCodeType, opts Options) *Room {
	if opts.Capacity <= 0 {
		opts.Capacity = 120
	}
	if opts.ParticipantLimit <= 0 || opts.ParticipantLimit > opts.Capacity {
		opts.ParticipantLimit = 50
	}
	r := &Room{
		Code:             code,
		players:          make(map[types.ClientIdType]*Player),
		capacity:         opts.Capacity,
		participantLimit: opts.ParticipantLimit,
		persistent:       opts.Persistent,
		createdAt:        time.Now(),
		validator:        motion.NewValidator(motion.DefaultLimits()),
		chatHistory:      list.New(),
		billboards:       make(map[string]types.MediaChannel),
		owner:            opts.Owner,
		onRosterChanged:  opts.OnRosterChanged,
		onEmpty:          opts.OnEmpty,
	}
	cfg := opts.QuizConfig
	if len(cfg.Questions) == 0 {
		cfg = quiz.DefaultConfig()
	}
	r.engine = quiz.NewEngine((*arena)(r), cfg)
	metrics.ActiveRooms.Inc()
	return r
}

// Persistent reports whether the room survives emptying.
func (r *Room) Persistent() bool { return r.persistent }

// CreatedAt returns the room creation time.
func (r *Room) CreatedAt() time.Time { return r.createdAt }

// Destroy tears the room down: every pending timer is cancelled and all
// remaining connections are released. Idempotent.
func (r *Room) Destroy() {
	r.mu.Lock()
	if r.destroyed {
		r.mu.Unlock()
		return
	}
	r.destroyed = true
	r.engine.Shutdown()
	r.cancelAdmissionTimer()
	n := len(r.players)
	r.players = make(map[types.ClientIdType]*Player)
	r.mu.Unlock()

	metrics.ActiveRooms.Dec()
	metrics.RoomPlayers.WithLabelValues(string(r.Code)).Set(0)
	logging.Info(context.Background(), "room destroyed",
		zap.String("room_code", string(r.Code)), zap.Int("players", n))
}

// PlayerCount returns the current roster size.
func (r *Room) PlayerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.players)
}

// Join admits a connection to the room. While the portal is open arrivals
// queue for admission; during an active quiz they become spectators.
func (r *Room) Join(conn Conn, name string) error {
	r.mu.Lock()
	if r.destroyed {
		r.mu.Unlock()
		return ErrRoomNotFound
	}
	if len(r.players) >= r.capacity {
		r.mu.Unlock()
		return ErrRoomFull
	}
	if _, ok := r.players[conn.ID()]; ok {
		r.mu.Unlock()
		return nil
	}

	p := &Player{
		Conn:      conn,
		ID:        conn.ID(),
		Name:      types.SanitizeDisplayName(name),
		JoinedAt:  time.Now(),
		joinOrder: r.nextOrder,
	}
	r.nextOrder++

	switch {
	case r.gate.portalOpen:
		p.QueuedForAdmission = true
	case r.engine.Active():
		// Spectator until the next round admits them.
	case r.admittedCountLocked() >= r.participantLimit:
		p.PriorityNextRound = true
	default:
		p.Admitted = true
		p.Alive = true
	}
	if len(r.players) == 0 {
		p.Host = true
		r.engine.HostChanged(p.ID)
	}
	r.players[p.ID] = p

	r.broadcastRoomUpdateLocked()
	r.replayChatHistoryLocked(p)
	r.engine.SnapshotFor(func(event types.Event, payload any) {
		conn.SendPriority(event, payload)
	})
	r.engine.OnRosterChange()
	count := len(r.players)
	r.mu.Unlock()

	metrics.RoomPlayers.WithLabelValues(string(r.Code)).Set(float64(count))
	logging.Info(context.Background(), "player joined",
		zap.String("room_code", string(r.Code)),
		zap.String("player_id", string(p.ID)),
		zap.String("name", string(p.Name)),
		zap.Int("players", count))
	r.notifyRosterChanged()
	return nil
}

// Leave removes a connection from the room, running host succession and
// roster reconciliation.
func (r *Room) Leave(conn Conn) {
	r.mu.Lock()
	p, ok := r.players[conn.ID()]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.players, p.ID)
	wasHost := p.Host
	empty := len(r.players) == 0

	if wasHost && !empty {
		next := r.oldestPlayerLocked()
		next.Host = true
		r.engine.HostChanged(next.ID)
		// A mid-countdown host change invalidates the gate.
		r.resetGateLocked()
	}
	if !empty {
		r.broadcastRoomUpdateLocked()
		r.engine.OnRosterChange()
	}
	count := len(r.players)
	r.mu.Unlock()

	metrics.RoomPlayers.WithLabelValues(string(r.Code)).Set(float64(count))
	logging.Info(context.Background(), "player left",
		zap.String("room_code", string(r.Code)),
		zap.String("player_id", string(p.ID)),
		zap.Int("players", count))
	r.notifyRosterChanged()
	if empty && !r.persistent && r.onEmpty != nil {
		r.onEmpty(r)
	}
}

func (r *Room) notifyRosterChanged() {
	if r.onRosterChanged != nil {
		r.onRosterChanged(r)
	}
}

// oldestPlayerLocked returns the remaining player with the lowest join
// order. Roster must be non-empty.
func (r *Room) oldestPlayerLocked() *Player {
	var oldest *Player
	for _, p := range r.players {
		if oldest == nil || p.joinOrder < oldest.joinOrder {
			oldest = p
		}
	}
	return oldest
}

func (r *Room) admittedCountLocked() int {
	n := 0
	for _, p := range r.players {
		if p.Admitted {
			n++
		}
	}
	return n
}

// --- Movement ---

// Sync validates a proposed state for the sending player. Clamped states
// beyond the correction threshold emit player:correct back to the sender.
func (r *Room) Sync(conn Conn, req types.SyncRequest) {
	r.mu.Lock()
	p, ok := r.players[conn.ID()]
	if !ok {
		r.mu.Unlock()
		return
	}
	now := time.Now()
	proposed := types.PlayerState{X: req.X, Y: req.Y, Z: req.Z, Yaw: req.Yaw, Pitch: req.Pitch}
	res := r.validator.Validate(p.State, p.Velocity, proposed, now, p.lastCorrection)
	p.State = res.Accepted
	p.Velocity = res.Velocity
	correct := res.Correct
	if correct {
		p.lastCorrection = now
		p.rejectedMoves++
	}
	accepted := res.Accepted
	r.mu.Unlock()

	if correct {
		metrics.MovementCorrections.Inc()
		conn.SendPriority(types.EventPlayerCorrect, CorrectionPayload{
			X: accepted.X, Y: accepted.Y, Z: accepted.Z,
			Yaw: accepted.Yaw, Pitch: accepted.Pitch,
		})
	}
}

// CorrectionPayload is the authoritative state pushed on player:correct.
type CorrectionPayload struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
	Yaw   float64 `json:"yaw"`
	Pitch float64 `json:"pitch"`
}

// Tick advances the room one server tick, encoding and fanning out AOI
// deltas per receiver. Deltas ride the droppable queue; a slow consumer
// loses heartbeats, not state events.
func (r *Room) Tick() {
	r.mu.Lock()
	if r.destroyed || len(r.players) < 2 {
		r.mu.Unlock()
		return
	}
	r.tick++
	tick := r.tick

	snapshots := make([]motion.Snapshot, 0, len(r.players))
	for _, p := range r.players {
		snapshots = append(snapshots, motion.BuildSnapshot(p.ID, p.Name, p.Alive, p.State))
	}

	type delivery struct {
		conn  Conn
		delta *motion.Delta
	}
	deliveries := make([]delivery, 0, len(r.players))
	remotes := make([]motion.Snapshot, 0, len(snapshots)-1)
	for _, p := range r.players {
		remotes = remotes[:0]
		for _, s := range snapshots {
			if s.ID != p.ID {
				remotes = append(remotes, s)
			}
		}
		cache := p.Conn.DeltaCache(r.Code)
		if delta := cache.Encode(r.Code, tick, p.State, remotes); delta != nil {
			deliveries = append(deliveries, delivery{conn: p.Conn, delta: delta})
		}
	}
	r.mu.Unlock()

	for _, d := range deliveries {
		d.conn.Send(types.EventPlayerDelta, d.delta)
	}
}

// --- Broadcast & snapshots ---

// broadcastLocked fans a state event out on the priority queue.
func (r *Room) broadcastLocked(event types.Event, payload any) {
	for _, p := range r.players {
		p.Conn.SendPriority(event, payload)
	}
}

// RoomUpdate is the full public room state pushed on room:update.
type RoomUpdate struct {
	Code             types.RoomCodeType `json:"code"`
	Players          []PlayerInfo       `json:"players"`
	HostID           types.ClientIdType `json:"hostId,omitempty"`
	Capacity         int                `json:"capacity"`
	ParticipantLimit int                `json:"participantLimit"`
	PortalOpen       bool               `json:"portalOpen"`
	PortalTarget     string             `json:"portalTarget,omitempty"`
	Quiz             quiz.StatePayload  `json:"quiz"`
	CreatedAt        int64              `json:"createdAt"`
}

func (r *Room) roomUpdateLocked() RoomUpdate {
	infos := make([]PlayerInfo, 0, len(r.players))
	var hostID types.ClientIdType
	for _, p := range r.players {
		infos = append(infos, p.info())
		if p.Host {
			hostID = p.ID
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return RoomUpdate{
		Code:             r.Code,
		Players:          infos,
		HostID:           hostID,
		Capacity:         r.capacity,
		ParticipantLimit: r.participantLimit,
		PortalOpen:       r.gate.portalOpen,
		PortalTarget:     r.portalTarget,
		Quiz:             r.engine.State(),
		CreatedAt:        r.createdAt.UnixMilli(),
	}
}

func (r *Room) broadcastRoomUpdateLocked() {
	r.broadcastLocked(types.EventRoomUpdate, r.roomUpdateLocked())
}

// Update returns the current room:update payload.
func (r *Room) Update() RoomUpdate {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.roomUpdateLocked()
}

// Summary returns the public listing entry.
func (r *Room) Summary() types.RoomSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	var hostName string
	for _, p := range r.players {
		if p.Host {
			hostName = string(p.Name)
			break
		}
	}
	return types.RoomSummary{
		Code:       r.Code,
		Players:    len(r.players),
		Capacity:   r.capacity,
		HostName:   hostName,
		QuizActive: r.engine.Active(),
		QuizPhase:  string(r.engine.CurrentPhase()),
		CreatedAt:  r.createdAt.UnixMilli(),
		Persistent: r.persistent,
	}
}

// QuizState returns the engine snapshot for health reporting.
func (r *Room) QuizState() quiz.StatePayload {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.engine.State()
}

// --- quiz.Arena ---

// arena adapts Room to the quiz engine. Engine callbacks always run under
// the room lock, so these methods use the locked helpers directly.
type arena Room

func (a *arena) room() *Room { return (*Room)(a) }

func (a *arena) Participants() []quiz.Participant {
	r := a.room()
	out := make([]quiz.Participant, 0, len(r.players))
	for _, p := range r.players {
		out = append(out, quiz.Participant{
			ID:       p.ID,
			Name:     p.Name,
			X:        p.State.X,
			Z:        p.State.Z,
			Alive:    p.Alive,
			Score:    p.Score,
			Host:     p.Host,
			Admitted: p.Admitted,
			Queued:   p.QueuedForAdmission,
		})
	}
	return out
}

// ResetForStart revives every admitted player and zeroes elimination state
// for the new run. Scores persist across runs.
func (a *arena) ResetForStart() {
	r := a.room()
	for _, p := range r.players {
		if p.Admitted && !p.Host {
			p.Alive = true
		}
		p.LastChoice = types.ChoiceNone
		p.LastChoiceReason = ""
	}
	r.broadcastRoomUpdateLocked()
}

func (a *arena) Award(id types.ClientIdType, choice types.ChoiceType) {
	if p, ok := a.room().players[id]; ok {
		p.Score++
		p.LastChoice = choice
		p.LastChoiceReason = ""
	}
}

func (a *arena) Eliminate(id types.ClientIdType, choice types.ChoiceType, reason string) {
	if p, ok := a.room().players[id]; ok {
		p.Alive = false
		p.LastChoice = choice
		p.LastChoiceReason = reason
	}
}

func (a *arena) Broadcast(event types.Event, payload any) {
	a.room().broadcastLocked(event, payload)
}

// Schedule runs fn after d under the room lock, skipping it if the room
// was destroyed meanwhile. The returned cancel is safe to call twice.
func (a *arena) Schedule(d time.Duration, fn func()) func() {
	r := a.room()
	t := time.AfterFunc(d, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.destroyed {
			return
		}
		fn()
	})
	return func() { t.Stop() }
}
