package transport

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/oxarena/ox-arena/backend/go/internal/v1/logging"
	"github.com/oxarena/ox-arena/backend/go/internal/v1/metrics"
	"github.com/oxarena/ox-arena/backend/go/internal/v1/motion"
	"github.com/oxarena/ox-arena/backend/go/internal/v1/room"
	"github.com/oxarena/ox-arena/backend/go/internal/v1/types"
)

// wsConnection is the websocket surface the client drives. Satisfied by
// *websocket.Conn and by test doubles.
type wsConnection interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
	SetWriteDeadline(t time.Time) error
}

// Client is one websocket connection. It implements room.Conn. Deltas and
// other droppable traffic ride send; state-changing events and acks ride
// prioritySend, which the write pump always drains first.
type Client struct {
	conn wsConnection
	hub  *Hub
	id   types.ClientIdType
	name string

	mu        sync.RWMutex
	closed    bool
	kicked    bool
	current   *room.Room
	cacheRoom types.RoomCodeType
	cache     *motion.ReceiverCache

	closeOnce sync.Once

	send         chan []byte
	prioritySend chan []byte
	done         chan struct{}
}

func newClient(conn wsConnection, hub *Hub, id types.ClientIdType) *Client {
	return &Client{
		conn:         conn,
		hub:          hub,
		id:           id,
		send:         make(chan []byte, 256),
		prioritySend: make(chan []byte, 256),
		done:         make(chan struct{}),
	}
}

// ID returns the connection's identifier.
func (c *Client) ID() types.ClientIdType { return c.id }

// Room returns the room this connection currently occupies, if any.
func (c *Client) Room() *room.Room {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

func (c *Client) setRoom(r *room.Room) {
	c.mu.Lock()
	c.current = r
	c.mu.Unlock()
}

// DeltaCache returns the AOI cache for the given room, discarding any cache
// held for a previous room so stale remote state never leaks across joins.
func (c *Client) DeltaCache(code types.RoomCodeType) *motion.ReceiverCache {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cache == nil || c.cacheRoom != code {
		c.cache = motion.NewReceiverCache()
		c.cacheRoom = code
	}
	return c.cache
}

// Send queues a droppable event on the normal channel. Returns false when
// the event was dropped due to backpressure or a closed connection.
func (c *Client) Send(event types.Event, payload any) bool {
	data, ok := c.marshal(event, 0, payload)
	if !ok {
		return false
	}
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		logging.GetLogger().Debug("send channel full, dropping event",
			zap.String("client_id", string(c.id)), zap.String("event", string(event)))
		return false
	}
}

// SendPriority queues a state-changing event on the reserved channel. A
// full priority channel indicates a dead peer; the event is dropped with a
// log rather than blocking the room.
func (c *Client) SendPriority(event types.Event, payload any) {
	c.sendPriorityRaw(event, 0, payload)
}

// Ack replies to an ingress frame carrying a seq.
func (c *Client) Ack(seq uint64, payload any) {
	c.sendPriorityRaw(types.EventAck, seq, payload)
}

func (c *Client) sendPriorityRaw(event types.Event, seq uint64, payload any) {
	data, ok := c.marshal(event, seq, payload)
	if !ok {
		return
	}
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return
	}
	select {
	case c.prioritySend <- data:
	default:
		logging.Error(context.Background(), "priority channel full, dropping event",
			zap.String("client_id", string(c.id)), zap.String("event", string(event)))
	}
}

func (c *Client) marshal(event types.Event, seq uint64, payload any) ([]byte, bool) {
	data, err := json.Marshal(types.OutFrame{Event: event, Seq: seq, Data: payload})
	if err != nil {
		logging.Error(context.Background(), "failed to marshal frame",
			zap.String("event", string(event)), zap.Error(err))
		return nil, false
	}
	return data, true
}

// Kick marks the connection non-rejoinable and tears it down.
func (c *Client) Kick(reason string) {
	c.mu.Lock()
	c.kicked = true
	c.mu.Unlock()
	logging.Info(context.Background(), "kicking client",
		zap.String("client_id", string(c.id)), zap.String("reason", reason))
	c.Disconnect()
}

// Kicked reports whether this connection was kicked.
func (c *Client) Kicked() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.kicked
}

// Disconnect signals the write pump to flush pending priority frames and
// close the socket. The outbound channels are never closed, so a room that
// sends outside its lock can race a disconnect without panicking; late
// sends simply find closed set and drop. Idempotent.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// readPump decodes ingress frames and hands them to the hub router.
// Malformed frames are logged and dropped; they never kill the connection.
func (c *Client) readPump() {
	defer func() {
		c.hub.handleDisconnect(c)
		c.conn.Close()
		metrics.DecConnection()
	}()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var frame types.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			logging.Warn(context.Background(), "failed to unmarshal frame",
				zap.String("client_id", string(c.id)), zap.Error(err))
			continue
		}
		if frame.Event == "" {
			continue
		}

		c.hub.route(c, frame)
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()
	writeWait := 10 * time.Second

	write := func(message []byte) bool {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			logging.Error(context.Background(), "error writing message", zap.Error(err))
			return false
		}
		return true
	}

	for {
		// Priority traffic drains completely before the droppable queue
		// gets a turn.
		select {
		case message := <-c.prioritySend:
			if !write(message) {
				return
			}
			continue
		default:
		}

		select {
		case <-c.done:
			// Flush queued priority frames (final acks, auth errors) before
			// the close handshake.
			for {
				select {
				case message := <-c.prioritySend:
					if !write(message) {
						return
					}
				default:
					_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
			}
		case message := <-c.prioritySend:
			if !write(message) {
				return
			}
		case message := <-c.send:
			if !write(message) {
				return
			}
		}
	}
}
