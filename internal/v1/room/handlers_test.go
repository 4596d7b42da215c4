package room

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxarena/ox-arena/backend/go/internal/v1/quiz"
	"github.com/oxarena/ox-arena/backend/go/internal/v1/types"
)

func frame(event types.Event, data string) types.Frame {
	return types.Frame{Event: event, Data: json.RawMessage(data)}
}

func TestDispatch_ChatSend(t *testing.T) {
	r := newOwnedRoom(t)
	a := newMockConn("a")
	mustJoin(t, r, a, "a")

	_, err := r.Dispatch(a, frame(types.EventChatSend, `{"text":"hi"}`))
	require.NoError(t, err)
	assert.Equal(t, 1, a.count(types.EventChatMessage))

	_, err = r.Dispatch(a, frame(types.EventChatSend, `{"text":""}`))
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestDispatch_QuizCommandsAreHostOnly(t *testing.T) {
	r := newOwnedRoom(t)
	host, p1 := newMockConn("host"), newMockConn("p1")
	mustJoin(t, r, host, "host")
	mustJoin(t, r, p1, "p1")

	for _, event := range []types.Event{
		types.EventQuizStart, types.EventQuizStop, types.EventQuizNext,
		types.EventQuizPrev, types.EventQuizForceLock, types.EventQuizState,
	} {
		_, err := r.Dispatch(p1, frame(event, `{}`))
		assert.ErrorIs(t, err, ErrHostOnly, string(event))
	}

	_, err := r.Dispatch(host, frame(types.EventQuizStart, `{}`))
	require.NoError(t, err)
	assert.Equal(t, 1, host.count(types.EventQuizStarted))
}

func TestDispatch_QuizState(t *testing.T) {
	r := newOwnedRoom(t)
	host := newMockConn("host")
	mustJoin(t, r, host, "host")

	payload, err := r.Dispatch(host, frame(types.EventQuizState, `{}`))
	require.NoError(t, err)
	state, ok := payload.(quiz.StatePayload)
	require.True(t, ok)
	assert.False(t, state.Active)
	assert.Equal(t, quiz.PhaseIdle, state.Phase)
}

func TestDispatch_QuizConfigRequiresOwnerKey(t *testing.T) {
	r := newOwnedRoom(t)
	host := newMockConn("host")
	mustJoin(t, r, host, "host")

	_, err := r.Dispatch(host, frame(types.EventQuizConfigSet,
		`{"ownerKey":"wrong","questions":[{"text":"q","answer":"O"}]}`))
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = r.Dispatch(host, frame(types.EventQuizConfigSet,
		`{"ownerKey":"`+testOwnerKey+`","questions":[{"text":"q","answer":"O"}],"lockSeconds":5}`))
	require.NoError(t, err)

	payload, err := r.Dispatch(host, frame(types.EventQuizConfigGet, `{"ownerKey":"`+testOwnerKey+`"}`))
	require.NoError(t, err)
	cfg, ok := payload.(quiz.Config)
	require.True(t, ok)
	assert.Equal(t, 5, cfg.LockSeconds)
	require.Len(t, cfg.Questions, 1)
	assert.Equal(t, "q", cfg.Questions[0].Text)
}

func TestDispatch_BillboardSet(t *testing.T) {
	r := newOwnedRoom(t)
	host := newMockConn("host")
	mustJoin(t, r, host, "host")

	_, err := r.Dispatch(host, frame(types.EventBillboardMediaSet,
		`{"ownerKey":"`+testOwnerKey+`","target":"board1","media":{"visualType":"image","visualUrl":"https://x.example.com/a.png"}}`))
	require.NoError(t, err)
	assert.Equal(t, "image", r.Billboards()[BoardOne].VisualType)
}

func TestDispatch_UnknownEventIsIgnored(t *testing.T) {
	r := newOwnedRoom(t)
	host := newMockConn("host")
	mustJoin(t, r, host, "host")

	payload, err := r.Dispatch(host, frame("no:such:event", `{}`))
	assert.Nil(t, payload)
	assert.NoError(t, err)
}

func TestDispatch_MalformedSyncIgnored(t *testing.T) {
	r := newOwnedRoom(t)
	host := newMockConn("host")
	mustJoin(t, r, host, "host")

	_, err := r.Dispatch(host, frame(types.EventPlayerSync, `{"x":"not a number"`))
	assert.NoError(t, err)
}
