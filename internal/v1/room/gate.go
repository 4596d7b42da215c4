package room

import (
	"sort"
	"time"

	"github.com/oxarena/ox-arena/backend/go/internal/v1/types"
)

// admissionCountdown is the grace between portal:lobby-start and the
// moment queued players flip to admitted.
const admissionCountdown = 1500 * time.Millisecond

// gateState is the entry gate for one room. Guarded by the room mutex.
type gateState struct {
	portalOpen          bool
	openedAt            time.Time
	admissionInProgress bool
	admissionStartsAt   time.Time
	pendingAdmit        []types.ClientIdType
	cancelAdmission     func()
}

// OpenLobby opens the portal so arrivals queue for the next round.
func (r *Room) OpenLobby(conn Conn) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[conn.ID()]
	if !ok {
		return ErrPlayerNotFound
	}
	if !p.Host {
		return ErrHostOnly
	}
	if r.gate.portalOpen {
		return ErrLobbyAlreadyOpen
	}
	if r.gate.admissionInProgress {
		return ErrAdmissionInProgress
	}
	r.gate.portalOpen = true
	r.gate.openedAt = time.Now()

	// Priority spectators from the previous round re-enter the queue first.
	for _, q := range r.players {
		if q.PriorityNextRound && !q.Admitted {
			q.QueuedForAdmission = true
		}
	}
	r.broadcastRoomUpdateLocked()
	return nil
}

// StartLobby begins admission: the first participantLimit queued players
// (priority flags first, then arrival order) are marked for admission and
// the rest demoted to spectators carrying priority for the next round. The
// flip happens when the countdown expires.
func (r *Room) StartLobby(conn Conn) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[conn.ID()]
	if !ok {
		return ErrPlayerNotFound
	}
	if !p.Host {
		return ErrHostOnly
	}
	if !r.gate.portalOpen {
		return ErrLobbyNotOpen
	}
	if r.gate.admissionInProgress {
		return ErrAdmissionInProgress
	}

	queued := make([]*Player, 0)
	for _, q := range r.players {
		if q.QueuedForAdmission {
			queued = append(queued, q)
		}
	}
	if len(queued) == 0 {
		return ErrNoWaitingPlayers
	}
	sort.Slice(queued, func(i, j int) bool {
		if queued[i].PriorityNextRound != queued[j].PriorityNextRound {
			return queued[i].PriorityNextRound
		}
		return queued[i].joinOrder < queued[j].joinOrder
	})

	slots := r.participantLimit - r.admittedCountLocked()
	if slots < 0 {
		slots = 0
	}
	admit := queued
	if len(admit) > slots {
		admit = queued[:slots]
	}
	demoted := queued[len(admit):]

	r.gate.pendingAdmit = r.gate.pendingAdmit[:0]
	for _, q := range admit {
		r.gate.pendingAdmit = append(r.gate.pendingAdmit, q.ID)
	}
	for _, q := range demoted {
		q.QueuedForAdmission = false
		q.Admitted = false
		q.PriorityNextRound = true
	}

	r.gate.admissionInProgress = true
	r.gate.admissionStartsAt = time.Now().Add(admissionCountdown)
	r.gate.cancelAdmission = (*arena)(r).Schedule(admissionCountdown, r.finishAdmissionLocked)
	r.broadcastRoomUpdateLocked()
	return nil
}

// finishAdmissionLocked flips pending players to admitted and closes the
// portal. Runs under the room lock via Schedule.
func (r *Room) finishAdmissionLocked() {
	if !r.gate.admissionInProgress {
		return
	}
	admitted := make([]types.ClientIdType, 0, len(r.gate.pendingAdmit))
	for _, id := range r.gate.pendingAdmit {
		p, ok := r.players[id]
		if !ok {
			continue
		}
		p.Admitted = true
		p.QueuedForAdmission = false
		p.PriorityNextRound = false
		if !r.engine.Active() {
			p.Alive = true
		}
		admitted = append(admitted, id)
	}

	spectators, priority := 0, 0
	for _, p := range r.players {
		if !p.Admitted && !p.Host {
			spectators++
			if p.PriorityNextRound {
				priority++
			}
		}
	}

	r.gate.portalOpen = false
	r.gate.admissionInProgress = false
	r.gate.pendingAdmit = nil
	r.gate.cancelAdmission = nil

	r.broadcastLocked(types.EventPortalLobbyAdmitted, types.LobbyAdmitted{
		AdmittedCount:    len(admitted),
		SpectatorCount:   spectators,
		PriorityPlayers:  priority,
		ParticipantLimit: r.participantLimit,
		CountdownMs:      admissionCountdown.Milliseconds(),
		AdmittedIDs:      admitted,
	})
	r.broadcastRoomUpdateLocked()
	r.engine.OnRosterChange()
}

// resetGateLocked abandons any open portal or in-flight admission. Queued
// players keep their priority flag for the next open.
func (r *Room) resetGateLocked() {
	r.cancelAdmissionTimer()
	if !r.gate.portalOpen && !r.gate.admissionInProgress {
		return
	}
	for _, p := range r.players {
		if p.QueuedForAdmission {
			p.QueuedForAdmission = false
			p.PriorityNextRound = true
		}
	}
	r.gate.portalOpen = false
	r.gate.admissionInProgress = false
	r.gate.pendingAdmit = nil
}

func (r *Room) cancelAdmissionTimer() {
	if r.gate.cancelAdmission != nil {
		r.gate.cancelAdmission()
		r.gate.cancelAdmission = nil
	}
}
