package room

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxarena/ox-arena/backend/go/internal/v1/types"
)

func TestSendChat_FansOutToRoom(t *testing.T) {
	r := newTestRoom(t, Options{})
	a, b := newMockConn("a"), newMockConn("b")
	mustJoin(t, r, a, "Alice")
	mustJoin(t, r, b, "Bob")

	require.NoError(t, r.SendChat(a, types.ChatRequest{Text: " hello arena "}))

	for _, conn := range []*mockConn{a, b} {
		msg := conn.last(t, types.EventChatMessage).(types.ChatMessage)
		assert.Equal(t, types.ClientIdType("a"), msg.PlayerID)
		assert.Equal(t, types.DisplayNameType("Alice"), msg.Name)
		assert.Equal(t, "hello arena", msg.Text)
		assert.NotEmpty(t, msg.ID)
	}
}

func TestSendChat_EmptyMessage(t *testing.T) {
	r := newTestRoom(t, Options{})
	a := newMockConn("a")
	mustJoin(t, r, a, "a")

	err := r.SendChat(a, types.ChatRequest{Text: "   \t  "})
	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.Zero(t, a.count(types.EventChatMessage))
}

func TestSendChat_Truncation(t *testing.T) {
	r := newTestRoom(t, Options{})
	a := newMockConn("a")
	mustJoin(t, r, a, "a")

	require.NoError(t, r.SendChat(a, types.ChatRequest{Text: strings.Repeat("x", 300)}))
	msg := a.last(t, types.EventChatMessage).(types.ChatMessage)
	assert.Len(t, []rune(msg.Text), types.MaxChatLen)
}

func TestSendChat_MutedSenderBlocked(t *testing.T) {
	r := newTestRoom(t, Options{})
	host, muted := newMockConn("host"), newMockConn("muted")
	mustJoin(t, r, host, "host")
	mustJoin(t, r, muted, "muted")
	require.NoError(t, r.SetChatMuted(host, "muted", true))

	err := r.SendChat(muted, types.ChatRequest{Text: "let me speak"})
	assert.ErrorIs(t, err, ErrChatMuted)
	assert.Equal(t, 1, muted.count(types.EventChatBlocked))
	assert.Zero(t, host.count(types.EventChatMessage))
}

func TestSendChat_UpdatesDisplayName(t *testing.T) {
	r := newTestRoom(t, Options{})
	a := newMockConn("a")
	mustJoin(t, r, a, "old")

	require.NoError(t, r.SendChat(a, types.ChatRequest{Text: "hi", Name: "new name"}))
	msg := a.last(t, types.EventChatMessage).(types.ChatMessage)
	assert.Equal(t, types.DisplayNameType("new_name"), msg.Name)
	assert.Equal(t, types.DisplayNameType("new_name"), playerByID(t, r.Update(), "a").Name)
}

func TestChatHistory_ReplayedToLateJoiner(t *testing.T) {
	r := newTestRoom(t, Options{})
	a := newMockConn("a")
	mustJoin(t, r, a, "a")
	require.NoError(t, r.SendChat(a, types.ChatRequest{Text: "first"}))
	require.NoError(t, r.SendChat(a, types.ChatRequest{Text: "second"}))

	late := newMockConn("late")
	mustJoin(t, r, late, "late")

	history := late.last(t, types.EventChatHistory).([]types.ChatMessage)
	require.Len(t, history, 2)
	assert.Equal(t, "first", history[0].Text)
	assert.Equal(t, "second", history[1].Text)
}

func TestChatHistory_CappedAtFifty(t *testing.T) {
	r := newTestRoom(t, Options{})
	a := newMockConn("a")
	mustJoin(t, r, a, "a")
	for i := 0; i < maxChatHistory+5; i++ {
		require.NoError(t, r.SendChat(a, types.ChatRequest{Text: "msg " + strconv.Itoa(i)}))
	}

	late := newMockConn("late")
	mustJoin(t, r, late, "late")

	history := late.last(t, types.EventChatHistory).([]types.ChatMessage)
	require.Len(t, history, maxChatHistory)
	assert.Equal(t, "msg 5", history[0].Text)
}

func TestChatHistory_NoReplayWhenEmpty(t *testing.T) {
	r := newTestRoom(t, Options{})
	late := newMockConn("late")
	mustJoin(t, r, late, "late")
	assert.Zero(t, late.count(types.EventChatHistory))
}
