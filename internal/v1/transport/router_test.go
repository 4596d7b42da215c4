package transport

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxarena/ox-arena/backend/go/internal/v1/auth"
	"github.com/oxarena/ox-arena/backend/go/internal/v1/types"
)

func TestAckPayload(t *testing.T) {
	assert.Equal(t, types.AckOK(), ackPayload(nil, nil))
	assert.Equal(t, types.AckErr("boom"), ackPayload(nil, errors.New("boom")))

	merged, ok := ackPayload(struct {
		Value int `json:"value"`
	}{Value: 7}, nil).(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, merged["ok"])
	assert.Equal(t, float64(7), merged["value"])
}

func TestPing_Acked(t *testing.T) {
	h := newTestHub(t, Options{})
	c := newRoutedClient(h, "c1")

	h.route(c, ingress(types.EventPing, 9, `{}`))
	ack := lastAck(t, c)
	assert.Equal(t, uint64(9), ack.Seq)
	assert.Equal(t, true, ackBody(t, ack)["ok"])
}

func TestSeqZero_NoAck(t *testing.T) {
	h := newTestHub(t, Options{})
	c := newRoutedClient(h, "c1")

	h.route(c, ingress(types.EventPing, 0, `{}`))
	select {
	case data := <-c.prioritySend:
		t.Fatalf("unexpected frame %s", data)
	default:
	}
}

func TestQuickJoin_RouteTokenRequired(t *testing.T) {
	tokens := auth.NewRouteTokenService("route-secret-key")
	h := newTestHub(t, Options{RouteTokens: tokens, RequireRouteToken: true})
	c := newRoutedClient(h, "c1")

	h.route(c, ingress(types.EventRoomQuickJoin, 1, `{"token":"garbage"}`))

	authErr := nextPriority(t, c)
	assert.Equal(t, types.EventAuthError, authErr.Event)
	assert.Nil(t, c.Room())

	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	assert.True(t, closed, "invalid token drops the connection")
}

func TestQuickJoin_RouteTokenConsumedOnce(t *testing.T) {
	tokens := auth.NewRouteTokenService("route-secret-key")
	h := newTestHub(t, Options{RouteTokens: tokens, RequireRouteToken: true})

	token, err := tokens.Mint("c1", "OX-ROUTE")
	require.NoError(t, err)

	c := newRoutedClient(h, "c1")
	h.route(c, ingress(types.EventRoomQuickJoin, 1, `{"token":"`+token+`"}`))
	require.NotNil(t, c.Room())
	assert.Equal(t, types.RoomCodeType("OX-ROUTE"), c.Room().Code)

	// The jti is burned: a replay fails even with the same token.
	d := newRoutedClient(h, "c2")
	h.route(d, ingress(types.EventRoomQuickJoin, 1, `{"token":"`+token+`"}`))
	assert.Nil(t, d.Room())
}

func TestQuickJoin_OwnerKeyClaimsHost(t *testing.T) {
	h := newTestHub(t, Options{Owner: auth.NewOwnerKeyChecker("owner-secret")})

	first := newRoutedClient(h, "first")
	h.route(first, ingress(types.EventRoomQuickJoin, 1, `{}`))
	code := first.Room().Code

	claimer := newRoutedClient(h, "claimer")
	h.route(claimer, ingress(types.EventRoomQuickJoin, 1,
		`{"roomCode":"`+string(code)+`","ownerKey":"owner-secret"}`))

	require.NotNil(t, claimer.Room())
	assert.Equal(t, types.ClientIdType("claimer"), claimer.Room().Update().HostID)
}

func TestQuickJoin_BadOwnerKeyStillJoins(t *testing.T) {
	h := newTestHub(t, Options{Owner: auth.NewOwnerKeyChecker("owner-secret")})
	c := newRoutedClient(h, "c1")

	h.route(c, ingress(types.EventRoomQuickJoin, 1, `{"ownerKey":"wrong"}`))
	require.NotNil(t, c.Room())
	body := ackBody(t, lastAck(t, c))
	assert.Equal(t, true, body["ok"])
}

func TestQuickJoin_SwitchingRoomsLeavesOldOne(t *testing.T) {
	h := newTestHub(t, Options{})
	c := newRoutedClient(h, "c1")

	h.route(c, ingress(types.EventRoomQuickJoin, 1, `{"roomCode":"OX-FIRST"}`))
	h.route(c, ingress(types.EventRoomQuickJoin, 2, `{"roomCode":"OX-SECND"}`))

	require.NotNil(t, c.Room())
	assert.Equal(t, types.RoomCodeType("OX-SECND"), c.Room().Code)

	first := h.getRoom("OX-FIRST")
	require.NotNil(t, first)
	assert.Zero(t, first.PlayerCount())
}

func TestClientSend_DropsWhenFull(t *testing.T) {
	h := newTestHub(t, Options{})
	c := newRoutedClient(h, "c1")

	for i := 0; i < cap(c.send); i++ {
		require.True(t, c.Send(types.EventPlayerDelta, i))
	}
	assert.False(t, c.Send(types.EventPlayerDelta, "overflow"))
}

func TestClientSend_ClosedConnection(t *testing.T) {
	h := newTestHub(t, Options{})
	c := newRoutedClient(h, "c1")
	c.Disconnect()
	assert.False(t, c.Send(types.EventPlayerDelta, nil))
}

func TestClientDeltaCache_ResetAcrossRooms(t *testing.T) {
	h := newTestHub(t, Options{})
	c := newRoutedClient(h, "c1")

	first := c.DeltaCache("OX-AAAAA")
	assert.Same(t, first, c.DeltaCache("OX-AAAAA"))
	assert.NotSame(t, first, c.DeltaCache("OX-BBBBB"))
}

func TestKick_MarksConnection(t *testing.T) {
	h := newTestHub(t, Options{})
	c := newRoutedClient(h, "c1")

	c.Kick("kicked by host")
	assert.True(t, c.Kicked())
	assert.False(t, c.Send(types.EventPlayerDelta, nil))
}
