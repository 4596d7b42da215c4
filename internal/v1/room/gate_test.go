package room

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxarena/ox-arena/backend/go/internal/v1/types"
)

// finishAdmission flips the gate immediately instead of waiting out the
// countdown timer.
func finishAdmission(r *Room) {
	r.mu.Lock()
	r.cancelAdmissionTimer()
	r.finishAdmissionLocked()
	r.mu.Unlock()
}

func TestOpenLobby_HostOnly(t *testing.T) {
	r := newTestRoom(t, Options{})
	host, p1 := newMockConn("host"), newMockConn("p1")
	mustJoin(t, r, host, "host")
	mustJoin(t, r, p1, "p1")

	assert.ErrorIs(t, r.OpenLobby(p1), ErrHostOnly)
	assert.ErrorIs(t, r.OpenLobby(newMockConn("ghost")), ErrPlayerNotFound)

	require.NoError(t, r.OpenLobby(host))
	assert.True(t, r.Update().PortalOpen)
	assert.ErrorIs(t, r.OpenLobby(host), ErrLobbyAlreadyOpen)
}

func TestStartLobby_Preconditions(t *testing.T) {
	r := newTestRoom(t, Options{})
	host := newMockConn("host")
	mustJoin(t, r, host, "host")

	assert.ErrorIs(t, r.StartLobby(host), ErrLobbyNotOpen)

	require.NoError(t, r.OpenLobby(host))
	assert.ErrorIs(t, r.StartLobby(host), ErrNoWaitingPlayers)
}

func TestAdmission_FillsSlotsAndDemotesOverflow(t *testing.T) {
	r := newTestRoom(t, Options{Capacity: 120, ParticipantLimit: 3})
	host := newMockConn("host")
	mustJoin(t, r, host, "host")
	require.NoError(t, r.OpenLobby(host))

	conns := make([]*mockConn, 4)
	for i, id := range []string{"q1", "q2", "q3", "q4"} {
		conns[i] = newMockConn(id)
		mustJoin(t, r, conns[i], id)
		assert.True(t, playerByID(t, r.Update(), conns[i].ID()).Queued)
	}

	require.NoError(t, r.StartLobby(host))
	assert.ErrorIs(t, r.StartLobby(host), ErrAdmissionInProgress)
	finishAdmission(r)

	// Host holds one of the three participant slots: q1 and q2 get the
	// remaining two in arrival order, q3 and q4 become spectators.
	admitted := host.last(t, types.EventPortalLobbyAdmitted).(types.LobbyAdmitted)
	assert.Equal(t, 2, admitted.AdmittedCount)
	assert.Equal(t, 2, admitted.SpectatorCount)
	assert.Equal(t, 2, admitted.PriorityPlayers)
	assert.Equal(t, []types.ClientIdType{"q1", "q2"}, admitted.AdmittedIDs)

	u := r.Update()
	assert.False(t, u.PortalOpen)
	assert.True(t, playerByID(t, u, "q1").Admitted)
	assert.True(t, playerByID(t, u, "q1").Alive)
	assert.True(t, playerByID(t, u, "q2").Admitted)
	assert.False(t, playerByID(t, u, "q3").Admitted)
	assert.False(t, playerByID(t, u, "q4").Admitted)
}

func TestAdmission_PriorityBeatsArrivalOrder(t *testing.T) {
	r := newTestRoom(t, Options{Capacity: 120, ParticipantLimit: 2})
	host := newMockConn("host")
	mustJoin(t, r, host, "host")
	require.NoError(t, r.OpenLobby(host))

	early, late := newMockConn("early"), newMockConn("late")
	mustJoin(t, r, early, "early")
	mustJoin(t, r, late, "late")

	// The late arrival carries priority from a previous demotion.
	r.mu.Lock()
	r.players["late"].PriorityNextRound = true
	r.mu.Unlock()

	require.NoError(t, r.StartLobby(host))
	r.mu.Lock()
	pending := append([]types.ClientIdType(nil), r.gate.pendingAdmit...)
	r.mu.Unlock()
	assert.Equal(t, []types.ClientIdType{"late"}, pending)
}

func TestOpenLobby_RequeuesPrioritySpectators(t *testing.T) {
	r := newTestRoom(t, Options{Capacity: 120, ParticipantLimit: 2})
	host := newMockConn("host")
	mustJoin(t, r, host, "host")
	require.NoError(t, r.OpenLobby(host))

	q1, q2 := newMockConn("q1"), newMockConn("q2")
	mustJoin(t, r, q1, "q1")
	mustJoin(t, r, q2, "q2")
	require.NoError(t, r.StartLobby(host))
	finishAdmission(r)

	// q2 was demoted with priority; the next open re-queues it.
	require.NoError(t, r.OpenLobby(host))
	assert.True(t, playerByID(t, r.Update(), "q2").Queued)
}

func TestHostLeaveResetsGate(t *testing.T) {
	r := newTestRoom(t, Options{})
	host, q1 := newMockConn("host"), newMockConn("q1")
	mustJoin(t, r, host, "host")
	require.NoError(t, r.OpenLobby(host))
	mustJoin(t, r, q1, "q1")
	assert.True(t, playerByID(t, r.Update(), "q1").Queued)

	r.Leave(host)

	u := r.Update()
	assert.False(t, u.PortalOpen)
	assert.Equal(t, types.ClientIdType("q1"), u.HostID)
	assert.False(t, playerByID(t, u, "q1").Queued)
}
