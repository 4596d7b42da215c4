// Package transport owns the websocket surface: the connection registry,
// the per-room registry with grace-period cleanup, the 20Hz tick loop and
// the ingress frame router.
package transport

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/oxarena/ox-arena/backend/go/internal/v1/auth"
	"github.com/oxarena/ox-arena/backend/go/internal/v1/config"
	"github.com/oxarena/ox-arena/backend/go/internal/v1/logging"
	"github.com/oxarena/ox-arena/backend/go/internal/v1/metrics"
	"github.com/oxarena/ox-arena/backend/go/internal/v1/quiz"
	"github.com/oxarena/ox-arena/backend/go/internal/v1/ratelimit"
	"github.com/oxarena/ox-arena/backend/go/internal/v1/room"
	"github.com/oxarena/ox-arena/backend/go/internal/v1/types"
)

// Directory is the optional cross-worker room directory (Redis-backed).
type Directory interface {
	PublishRooms(ctx context.Context, rooms []types.RoomSummary)
	Close() error
}

// Hub coordinates every room and connection on this worker.
type Hub struct {
	mu                  sync.Mutex
	rooms               map[types.RoomCodeType]*room.Room
	clients             map[*Client]struct{}
	pendingRoomCleanups map[types.RoomCodeType]*time.Timer

	cfg         *config.Config
	owner       *auth.OwnerKeyChecker
	routeTokens *auth.RouteTokenService
	bus         Directory
	rateLimiter *ratelimit.RateLimiter

	cleanupGracePeriod time.Duration
	requireRouteToken  bool
	allowedOrigins     []string
	draining           bool

	tickStop chan struct{}
	tickDone chan struct{}
}

// Options wires a Hub's collaborators. Bus and RouteTokens are optional.
type Options struct {
	Config      *config.Config
	Owner       *auth.OwnerKeyChecker
	RouteTokens *auth.RouteTokenService
	// RequireRouteToken makes room:quick-join demand a valid one-time
	// token, the posture of a worker behind a gateway.
	RequireRouteToken bool
	Bus               Directory
	RateLimiter       *ratelimit.RateLimiter
}

// NewHub creates a Hub. Run must be called to start the tick loop.
func NewHub(opts Options) *Hub {
	return &Hub{
		rooms:               make(map[types.RoomCodeType]*room.Room),
		clients:             make(map[*Client]struct{}),
		pendingRoomCleanups: make(map[types.RoomCodeType]*time.Timer),
		cfg:                 opts.Config,
		owner:               opts.Owner,
		routeTokens:         opts.RouteTokens,
		bus:                 opts.Bus,
		rateLimiter:         opts.RateLimiter,
		cleanupGracePeriod:  5 * time.Second,
		requireRouteToken:   opts.RequireRouteToken,
		allowedOrigins:      auth.ParseAllowedOrigins(opts.Config.CORSOrigin),
		tickStop:            make(chan struct{}),
		tickDone:            make(chan struct{}),
	}
}

// Run drives the fixed tick loop until Shutdown. Each tick snapshots the
// room set first so room create/destroy never races the iteration.
func (h *Hub) Run() {
	interval := time.Second / time.Duration(h.cfg.TickRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer close(h.tickDone)

	for {
		select {
		case <-h.tickStop:
			return
		case <-ticker.C:
			start := time.Now()
			for _, r := range h.snapshotRooms() {
				r.Tick()
			}
			metrics.TickDuration.Observe(time.Since(start).Seconds())
		}
	}
}

func (h *Hub) snapshotRooms() []*room.Room {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*room.Room, 0, len(h.rooms))
	for _, r := range h.rooms {
		out = append(out, r)
	}
	return out
}

// ServeWs upgrades an HTTP request to a websocket connection and starts
// the pumps. The server role banner is the first egress frame.
func (h *Hub) ServeWs(c *gin.Context) {
	if h.rateLimiter != nil && !h.rateLimiter.CheckWebSocket(c) {
		return
	}
	if err := validateOrigin(c.Request, h.allowedOrigins); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "origin not allowed"})
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return validateOrigin(r, h.allowedOrigins) == nil
		},
		WriteBufferPool: &sync.Pool{
			New: func() any { return make([]byte, 4096) },
		},
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Error(c.Request.Context(), "failed to upgrade connection", zap.Error(err))
		return
	}

	h.HandleConnection(conn)
}

// HandleConnection registers an established connection and starts its
// pumps. Split from ServeWs so tests can drive mock connections.
func (h *Hub) HandleConnection(conn wsConnection) *Client {
	client := newClient(conn, h, types.ClientIdType(uuid.NewString()))

	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()

	metrics.IncConnection()
	logging.Info(context.Background(), "client connected",
		zap.String("client_id", string(client.id)))

	go client.writePump()
	go client.readPump()

	client.SendPriority(types.EventServerRole, types.ServerRole{
		Role:             "worker",
		ParticipantLimit: h.cfg.ParticipantLimit,
	})
	return client
}

// handleDisconnect detaches a closing connection from its room and the
// registry.
func (h *Hub) handleDisconnect(c *Client) {
	if r := c.Room(); r != nil {
		r.Leave(c)
		c.setRoom(nil)
	}
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.Disconnect()
	logging.Info(context.Background(), "client disconnected",
		zap.String("client_id", string(c.id)))
}

// getRoom returns the registered room, cancelling any pending cleanup.
func (h *Hub) getRoom(code types.RoomCodeType) *room.Room {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[code]
	if !ok {
		return nil
	}
	if timer, pending := h.pendingRoomCleanups[code]; pending {
		timer.Stop()
		delete(h.pendingRoomCleanups, code)
	}
	return r
}

// createRoom registers a new room under code, enforcing the active-room
// cap. An empty code generates one.
func (h *Hub) createRoom(code types.RoomCodeType, persistent bool) (*room.Room, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.draining {
		return nil, errGatewayDraining
	}
	if code == "" {
		code = room.GenerateRoomCode(func(c types.RoomCodeType) bool {
			_, taken := h.rooms[c]
			return taken
		})
	} else if _, taken := h.rooms[code]; taken {
		return nil, room.ErrRoomExists
	}
	if len(h.rooms) >= h.cfg.MaxRooms {
		return nil, room.ErrRoomLimitReached
	}

	r := room.New(code, room.Options{
		Capacity:         h.cfg.RoomCapacity,
		ParticipantLimit: h.cfg.ParticipantLimit,
		Persistent:       persistent,
		Owner:            h.owner,
		QuizConfig:       quiz.DefaultConfig(),
		OnRosterChanged:  h.onRosterChanged,
		OnEmpty:          h.scheduleRoomCleanup,
	})
	h.rooms[code] = r
	logging.Info(context.Background(), "room created",
		zap.String("room_code", string(code)), zap.Int("rooms", len(h.rooms)))
	return r, nil
}

// scheduleRoomCleanup removes an emptied room after a grace period, so a
// quick reconnect finds its room intact. Persistent rooms are never
// removed.
func (h *Hub) scheduleRoomCleanup(r *room.Room) {
	if r.Persistent() {
		return
	}
	code := r.Code

	h.mu.Lock()
	if existing, ok := h.pendingRoomCleanups[code]; ok {
		existing.Stop()
	}
	h.pendingRoomCleanups[code] = time.AfterFunc(h.cleanupGracePeriod, func() {
		h.mu.Lock()
		target, ok := h.rooms[code]
		if ok && target.PlayerCount() == 0 {
			delete(h.rooms, code)
			delete(h.pendingRoomCleanups, code)
			h.mu.Unlock()
			target.Destroy()
			logging.Info(context.Background(), "removed room after grace period",
				zap.String("room_code", string(code)))
			h.publishRooms()
			return
		}
		delete(h.pendingRoomCleanups, code)
		h.mu.Unlock()
	})
	h.mu.Unlock()
}

// onRosterChanged fans the room listing out to the directory and to every
// connected client. Runs outside any room lock.
func (h *Hub) onRosterChanged(*room.Room) {
	h.publishRooms()
}

func (h *Hub) publishRooms() {
	summaries := h.RoomSummaries()

	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	payload := roomListPayload{Rooms: summaries}
	for _, c := range clients {
		c.Send(types.EventRoomListed, payload)
	}
	if h.bus != nil {
		h.bus.PublishRooms(context.Background(), summaries)
	}
}

// RoomSummaries returns the public listing of every room on this worker.
func (h *Hub) RoomSummaries() []types.RoomSummary {
	rooms := h.snapshotRooms()
	out := make([]types.RoomSummary, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, r.Summary())
	}
	return out
}

// Stats is the health snapshot of this worker.
type Stats struct {
	Rooms           int
	Online          int
	TotalPlayers    int
	ActiveQuizRooms int
	TopRoom         *TopRoom
}

// TopRoom describes the busiest room for the health endpoint.
type TopRoom struct {
	Code     types.RoomCodeType
	Players  int
	Capacity int
	HostName string
	Quiz     quiz.StatePayload
}

// Stats gathers the health snapshot.
func (h *Hub) Stats() Stats {
	h.mu.Lock()
	online := len(h.clients)
	h.mu.Unlock()

	s := Stats{Online: online}
	var top *room.Room
	var topSummary types.RoomSummary
	for _, r := range h.snapshotRooms() {
		sum := r.Summary()
		s.Rooms++
		s.TotalPlayers += sum.Players
		if sum.QuizActive {
			s.ActiveQuizRooms++
		}
		if top == nil || sum.Players > topSummary.Players {
			top = r
			topSummary = sum
		}
	}
	if top != nil {
		s.TopRoom = &TopRoom{
			Code:     topSummary.Code,
			Players:  topSummary.Players,
			Capacity: topSummary.Capacity,
			HostName: topSummary.HostName,
			Quiz:     top.QuizState(),
		}
	}
	return s
}

// Shutdown stops the tick loop and tears down every room and connection.
func (h *Hub) Shutdown(ctx context.Context) error {
	logging.Info(ctx, "shutting down hub")

	close(h.tickStop)
	select {
	case <-h.tickDone:
	case <-ctx.Done():
	}

	h.mu.Lock()
	h.draining = true
	for code, timer := range h.pendingRoomCleanups {
		timer.Stop()
		delete(h.pendingRoomCleanups, code)
	}
	rooms := make([]*room.Room, 0, len(h.rooms))
	for _, r := range h.rooms {
		rooms = append(rooms, r)
	}
	h.rooms = make(map[types.RoomCodeType]*room.Room)
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, r := range rooms {
		r.Destroy()
	}
	for _, c := range clients {
		c.Disconnect()
	}
	if h.bus != nil {
		if err := h.bus.Close(); err != nil {
			logging.Error(ctx, "failed to close room directory", zap.Error(err))
		}
	}
	logging.Info(ctx, "hub shutdown complete", zap.Int("rooms", len(rooms)))
	return nil
}

// validateOrigin checks the request origin against the allowlist. A nil
// allowlist or absent Origin header allows the request.
func validateOrigin(r *http.Request, allowedOrigins []string) error {
	origin := r.Header.Get("Origin")
	if origin == "" || allowedOrigins == nil {
		return nil
	}
	originURL, err := url.Parse(origin)
	if err != nil {
		return err
	}
	for _, allowed := range allowedOrigins {
		allowedURL, err := url.Parse(allowed)
		if err != nil {
			continue
		}
		if originURL.Scheme == allowedURL.Scheme && originURL.Host == allowedURL.Host {
			return nil
		}
	}
	logging.Warn(context.Background(), "origin not in allowed list",
		zap.String("origin", origin), zap.Strings("allowed_origins", allowedOrigins))
	return errOriginNotAllowed
}
