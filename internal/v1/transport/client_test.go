package transport

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxarena/ox-arena/backend/go/internal/v1/types"
)

func TestSendRacesDisconnect(t *testing.T) {
	// Rooms deliberately send outside their lock, so Send and SendPriority
	// must tolerate a concurrent Disconnect on every interleaving.
	for i := 0; i < 500; i++ {
		c := newClient(newMockWsConn(), nil, "racer")

		var wg sync.WaitGroup
		start := make(chan struct{})
		for g := 0; g < 4; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				for j := 0; j < 8; j++ {
					c.Send(types.EventPlayerDelta, nil)
					c.SendPriority(types.EventRoomUpdate, nil)
				}
			}()
		}
		close(start)
		c.Disconnect()
		wg.Wait()
	}
}

func TestSendAfterDisconnectDrops(t *testing.T) {
	c := newClient(newMockWsConn(), nil, "gone")
	c.Disconnect()
	c.Disconnect() // idempotent

	assert.False(t, c.Send(types.EventPlayerDelta, nil))
	c.SendPriority(types.EventRoomUpdate, nil)
	select {
	case <-c.prioritySend:
		t.Fatal("priority frame queued after disconnect")
	default:
	}
}

func TestWritePumpDrainsPriorityFirst(t *testing.T) {
	conn := newMockWsConn()
	c := newClient(conn, nil, "writer")
	c.send <- []byte(`{"event":"player:delta","seq":0}`)
	c.prioritySend <- []byte(`{"event":"room:update","seq":0}`)

	go c.writePump()
	defer c.Disconnect()

	require.Eventually(t, func() bool {
		return len(conn.written()) == 2
	}, time.Second, 5*time.Millisecond)

	frames := conn.written()
	assert.Equal(t, types.EventRoomUpdate, decodeFrame(t, frames[0]).Event)
	assert.Equal(t, types.EventPlayerDelta, decodeFrame(t, frames[1]).Event)
}

func TestDisconnectFlushesQueuedPriority(t *testing.T) {
	conn := newMockWsConn()
	c := newClient(conn, nil, "flusher")
	c.prioritySend <- []byte(`{"event":"auth:error","seq":0}`)
	c.Disconnect()

	go c.writePump()

	require.Eventually(t, func() bool {
		return len(conn.written()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, types.EventAuthError, decodeFrame(t, conn.written()[0]).Event)
}
