package room

import (
	"sync"
	"testing"

	"github.com/oxarena/ox-arena/backend/go/internal/v1/motion"
	"github.com/oxarena/ox-arena/backend/go/internal/v1/quiz"
	"github.com/oxarena/ox-arena/backend/go/internal/v1/types"
)

type sentEvent struct {
	event    types.Event
	payload  any
	priority bool
}

// mockConn records everything a room sends to one connection.
type mockConn struct {
	id types.ClientIdType

	mu         sync.Mutex
	sent       []sentEvent
	cache      *motion.ReceiverCache
	cacheRoom  types.RoomCodeType
	kickReason string
}

func newMockConn(id string) *mockConn {
	return &mockConn{id: types.ClientIdType(id)}
}

func (c *mockConn) ID() types.ClientIdType { return c.id }

func (c *mockConn) Send(event types.Event, payload any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, sentEvent{event: event, payload: payload})
	return true
}

func (c *mockConn) SendPriority(event types.Event, payload any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, sentEvent{event: event, payload: payload, priority: true})
}

func (c *mockConn) DeltaCache(room types.RoomCodeType) *motion.ReceiverCache {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cache == nil || c.cacheRoom != room {
		c.cache = motion.NewReceiverCache()
		c.cacheRoom = room
	}
	return c.cache
}

func (c *mockConn) Kick(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kickReason = reason
}

func (c *mockConn) count(event types.Event) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, s := range c.sent {
		if s.event == event {
			n++
		}
	}
	return n
}

func (c *mockConn) last(t *testing.T, event types.Event) any {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.sent) - 1; i >= 0; i-- {
		if c.sent[i].event == event {
			return c.sent[i].payload
		}
	}
	t.Fatalf("conn %s never received %s", c.id, event)
	return nil
}

func (c *mockConn) kicked() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.kickReason
}

// newTestRoom builds a room with auto mode off so no countdown timers race
// the test.
func newTestRoom(t *testing.T, opts Options) *Room {
	t.Helper()
	if len(opts.QuizConfig.Questions) == 0 {
		cfg := quiz.DefaultConfig()
		cfg.AutoMode = false
		opts.QuizConfig = cfg
	}
	r := New("OX-TEST1", opts)
	t.Cleanup(r.Destroy)
	return r
}

func mustJoin(t *testing.T, r *Room, conn Conn, name string) {
	t.Helper()
	if err := r.Join(conn, name); err != nil {
		t.Fatalf("join %s: %v", conn.ID(), err)
	}
}
