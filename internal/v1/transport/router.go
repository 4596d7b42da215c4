package transport

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/oxarena/ox-arena/backend/go/internal/v1/logging"
	"github.com/oxarena/ox-arena/backend/go/internal/v1/metrics"
	"github.com/oxarena/ox-arena/backend/go/internal/v1/room"
	"github.com/oxarena/ox-arena/backend/go/internal/v1/types"
)

var (
	errGatewayDraining  = errors.New("gateway draining")
	errAuthFailed       = errors.New("auth failed")
	errOriginNotAllowed = errors.New("origin not allowed")
)

type roomListPayload struct {
	Rooms []types.RoomSummary `json:"rooms"`
}

type joinedPayload struct {
	Room room.RoomUpdate `json:"room"`
}

// route dispatches one ingress frame. Registry operations are handled
// here; everything else goes to the client's current room. A seq on the
// frame always produces exactly one ack.
func (c *Client) ack(seq uint64, extra any, err error) {
	if seq == 0 {
		return
	}
	c.Ack(seq, ackPayload(extra, err))
}

// ackPayload merges an optional reply object with the ok/error envelope.
func ackPayload(extra any, err error) any {
	if err != nil {
		return types.AckErr(err.Error())
	}
	if extra == nil {
		return types.AckOK()
	}
	merged := map[string]any{}
	if data, merr := json.Marshal(extra); merr == nil {
		_ = json.Unmarshal(data, &merged)
	}
	merged["ok"] = true
	return merged
}

func (h *Hub) route(c *Client, frame types.Frame) {
	start := time.Now()
	status := "ok"
	defer func() {
		metrics.WebsocketEvents.WithLabelValues(string(frame.Event), status).Inc()
		metrics.MessageProcessingDuration.WithLabelValues(string(frame.Event)).Observe(time.Since(start).Seconds())
	}()

	switch frame.Event {
	case types.EventPing:
		c.ack(frame.Seq, nil, nil)
		return

	case types.EventRoomQuickJoin:
		extra, err := h.handleQuickJoin(c, frame.Data)
		if err != nil {
			status = "error"
		}
		c.ack(frame.Seq, extra, err)
		return

	case types.EventRoomCreate:
		extra, err := h.handleCreate(c, frame.Data)
		if err != nil {
			status = "error"
		}
		c.ack(frame.Seq, extra, err)
		return

	case types.EventRoomJoin:
		extra, err := h.handleJoin(c, frame.Data)
		if err != nil {
			status = "error"
		}
		c.ack(frame.Seq, extra, err)
		return

	case types.EventRoomLeave:
		if r := c.Room(); r != nil {
			r.Leave(c)
			c.setRoom(nil)
		}
		c.ack(frame.Seq, nil, nil)
		return

	case types.EventRoomList:
		c.ack(frame.Seq, roomListPayload{Rooms: h.RoomSummaries()}, nil)
		return
	}

	r := c.Room()
	if r == nil {
		status = "error"
		c.ack(frame.Seq, nil, room.ErrRoomNotFound)
		return
	}
	extra, err := r.Dispatch(c, frame)
	if err != nil {
		status = "error"
	}
	c.ack(frame.Seq, extra, err)
}

// handleQuickJoin picks or creates a joinable room, preferring the
// requested code. Behind a gateway the one-time routing token is consumed
// first; an invalid token gets auth:error and the connection is dropped.
func (h *Hub) handleQuickJoin(c *Client, data json.RawMessage) (any, error) {
	var req types.QuickJoinRequest
	_ = json.Unmarshal(data, &req)

	if h.requireRouteToken {
		if h.routeTokens == nil {
			return nil, errAuthFailed
		}
		claims, err := h.routeTokens.Consume(req.Token)
		if err != nil {
			c.SendPriority(types.EventAuthError, types.AckErr(errAuthFailed.Error()))
			c.Disconnect()
			return nil, errAuthFailed
		}
		if req.RoomCode == "" {
			req.RoomCode = string(claims.RoomCode)
		}
	}

	if existing := c.Room(); existing != nil {
		existing.Leave(c)
		c.setRoom(nil)
	}

	var target *room.Room
	if req.RoomCode != "" {
		code := room.NormalizeRoomCode(req.RoomCode)
		if !room.ValidRoomCode(code) {
			return nil, room.ErrInvalidRoomCode
		}
		target = h.getRoom(code)
		if target == nil {
			created, err := h.createRoom(code, false)
			if err != nil {
				return nil, err
			}
			target = created
		}
	} else {
		target = h.pickJoinableRoom()
		if target == nil {
			created, err := h.createRoom("", false)
			if err != nil {
				if errors.Is(err, room.ErrRoomLimitReached) {
					return nil, room.ErrNoCapacity
				}
				return nil, err
			}
			target = created
		}
	}

	if err := target.Join(c, req.Name); err != nil {
		return nil, err
	}
	c.setRoom(target)

	if req.OwnerKey != "" {
		if err := target.ClaimHost(c, req.OwnerKey); err != nil {
			logging.Warn(context.Background(), "owner key rejected on quick-join",
				zap.String("client_id", string(c.id)))
		}
	}
	return joinedPayload{Room: target.Update()}, nil
}

// pickJoinableRoom returns the fullest room that still has space, biasing
// quick-join toward concentrating players.
func (h *Hub) pickJoinableRoom() *room.Room {
	var best *room.Room
	bestPlayers := -1
	for _, r := range h.snapshotRooms() {
		sum := r.Summary()
		if sum.Players >= sum.Capacity {
			continue
		}
		if sum.Players > bestPlayers {
			best = r
			bestPlayers = sum.Players
		}
	}
	return best
}

func (h *Hub) handleCreate(c *Client, data json.RawMessage) (any, error) {
	var req types.CreateRoomRequest
	_ = json.Unmarshal(data, &req)

	var code types.RoomCodeType
	if req.Code != "" {
		code = room.NormalizeRoomCode(req.Code)
		if !room.ValidRoomCode(code) {
			return nil, room.ErrInvalidRoomCode
		}
	}
	target, err := h.createRoom(code, false)
	if err != nil {
		return nil, err
	}
	if existing := c.Room(); existing != nil {
		existing.Leave(c)
		c.setRoom(nil)
	}
	if err := target.Join(c, req.Name); err != nil {
		return nil, err
	}
	c.setRoom(target)
	return joinedPayload{Room: target.Update()}, nil
}

func (h *Hub) handleJoin(c *Client, data json.RawMessage) (any, error) {
	var req types.JoinRoomRequest
	_ = json.Unmarshal(data, &req)
	if req.Code == "" {
		return nil, room.ErrRoomCodeRequired
	}
	code := room.NormalizeRoomCode(req.Code)
	if !room.ValidRoomCode(code) {
		return nil, room.ErrInvalidRoomCode
	}
	target := h.getRoom(code)
	if target == nil {
		return nil, room.ErrRoomNotFound
	}
	if existing := c.Room(); existing != nil {
		existing.Leave(c)
		c.setRoom(nil)
	}
	if err := target.Join(c, req.Name); err != nil {
		return nil, err
	}
	c.setRoom(target)
	return joinedPayload{Room: target.Update()}, nil
}
