package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/oxarena/ox-arena/backend/go/internal/v1/auth"
	"github.com/oxarena/ox-arena/backend/go/internal/v1/bus"
	"github.com/oxarena/ox-arena/backend/go/internal/v1/logging"
	"github.com/oxarena/ox-arena/backend/go/internal/v1/metrics"
	"github.com/oxarena/ox-arena/backend/go/internal/v1/ratelimit"
	"github.com/oxarena/ox-arena/backend/go/internal/v1/types"
)

var (
	errDraining      = errors.New("gateway draining")
	errRedirectBuild = errors.New("redirect build failed")
)

// Server is the gateway's websocket front. Connections here are short
// lived: the client asks for a room, receives a redirect and reconnects
// to the worker.
type Server struct {
	router         *Router
	directory      *bus.Service
	rateLimiter    *ratelimit.RateLimiter
	allowedOrigins []string
	upgrader       websocket.Upgrader
}

// NewServer creates the gateway websocket front. directory may be nil, in
// which case room:list only reflects what this gateway has routed.
func NewServer(router *Router, directory *bus.Service, rl *ratelimit.RateLimiter, corsOrigin string) *Server {
	origins := auth.ParseAllowedOrigins(corsOrigin)
	return &Server{
		router:      router,
		directory:   directory,
		rateLimiter: rl,
		allowedOrigins: origins,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return originAllowed(r.Header.Get("Origin"), origins)
			},
		},
	}
}

func originAllowed(origin string, allowed []string) bool {
	if origin == "" || allowed == nil {
		return true
	}
	for _, a := range allowed {
		if a == origin {
			return true
		}
	}
	return false
}

// ServeWs handles one gateway connection: role banner first, then a short
// request loop until redirect or disconnect.
func (s *Server) ServeWs(c *gin.Context) {
	if s.rateLimiter != nil && !s.rateLimiter.CheckWebSocket(c) {
		return
	}
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Error(c.Request.Context(), "gateway upgrade failed", zap.Error(err))
		return
	}
	metrics.IncConnection()
	go s.serve(conn)
}

func (s *Server) serve(conn *websocket.Conn) {
	defer func() {
		conn.Close()
		metrics.DecConnection()
	}()

	clientID := types.ClientIdType(uuid.NewString())
	var writeMu sync.Mutex
	write := func(frame types.OutFrame) {
		data, err := json.Marshal(frame)
		if err != nil {
			return
		}
		writeMu.Lock()
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		_ = conn.WriteMessage(websocket.TextMessage, data)
		writeMu.Unlock()
	}

	write(types.OutFrame{Event: types.EventServerRole, Data: types.ServerRole{
		Role:             "gateway",
		ParticipantLimit: s.router.cfg.ParticipantLimit,
	}})

	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		var frame types.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}

		switch frame.Event {
		case types.EventPing:
			if frame.Seq != 0 {
				write(types.OutFrame{Event: types.EventAck, Seq: frame.Seq, Data: types.AckOK()})
			}

		case types.EventRoomQuickJoin:
			var req types.QuickJoinRequest
			_ = json.Unmarshal(frame.Data, &req)
			redirect, err := s.router.Route(clientID, req.RoomCode)
			if err != nil {
				metrics.WebsocketEvents.WithLabelValues(string(frame.Event), "error").Inc()
				if frame.Seq != 0 {
					write(types.OutFrame{Event: types.EventAck, Seq: frame.Seq, Data: types.AckErr(err.Error())})
				}
				continue
			}
			metrics.WebsocketEvents.WithLabelValues(string(frame.Event), "ok").Inc()
			write(types.OutFrame{Event: types.EventRouteAssign, Data: redirect})
			if frame.Seq != 0 {
				write(types.OutFrame{Event: types.EventAck, Seq: frame.Seq, Data: map[string]any{
					"ok":       true,
					"redirect": redirect,
				}})
			}
			// The client reconnects to the worker; this socket is done.
			return

		case types.EventRoomList:
			rooms := s.listRooms()
			if frame.Seq != 0 {
				write(types.OutFrame{Event: types.EventAck, Seq: frame.Seq, Data: map[string]any{
					"ok":    true,
					"rooms": rooms,
				}})
			} else {
				write(types.OutFrame{Event: types.EventRoomListed, Data: map[string]any{"rooms": rooms}})
			}

		default:
			if frame.Seq != 0 {
				write(types.OutFrame{Event: types.EventAck, Seq: frame.Seq, Data: types.AckErr("room not found")})
			}
		}
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	}
}

// listRooms merges the cross-worker directory when available.
func (s *Server) listRooms() []types.RoomSummary {
	if s.directory == nil {
		return []types.RoomSummary{}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	rooms, err := s.directory.Snapshot(ctx)
	if err != nil || rooms == nil {
		return []types.RoomSummary{}
	}
	return rooms
}
