package room

import (
	"encoding/json"

	"github.com/oxarena/ox-arena/backend/go/internal/v1/quiz"
	"github.com/oxarena/ox-arena/backend/go/internal/v1/types"
)

// QuizConfigRequest is the quiz:config:set payload.
type QuizConfigRequest struct {
	OwnerKey    string                `json:"ownerKey"`
	Questions   []quiz.QuestionConfig `json:"questions"`
	LockSeconds int                   `json:"lockSeconds,omitempty"`
	AutoMode    bool                  `json:"autoMode"`
	AutoFinish  bool                  `json:"autoFinish"`
	MinPlayers  int                   `json:"minPlayers,omitempty"`
}

// Dispatch routes one in-room ingress frame to its handler. The returned
// payload, if any, is merged into the ack; a returned error becomes the
// ack's error string. Malformed payloads fall back to zero values rather
// than failing the frame.
func (r *Room) Dispatch(conn Conn, frame types.Frame) (any, error) {
	switch frame.Event {
	case types.EventPlayerSync:
		var req types.SyncRequest
		if err := json.Unmarshal(frame.Data, &req); err != nil {
			return nil, nil
		}
		r.Sync(conn, req)
		return nil, nil

	case types.EventChatSend:
		var req types.ChatRequest
		_ = json.Unmarshal(frame.Data, &req)
		return nil, r.SendChat(conn, req)

	case types.EventQuizStart:
		return nil, r.QuizStart(conn)
	case types.EventQuizStop:
		return nil, r.QuizStop(conn)
	case types.EventQuizNext:
		return nil, r.QuizNext(conn)
	case types.EventQuizPrev:
		return nil, r.QuizPrev(conn)
	case types.EventQuizForceLock:
		return nil, r.QuizForceLock(conn)
	case types.EventQuizState:
		return r.QuizStateFor(conn)
	case types.EventQuizConfigGet:
		var req QuizConfigRequest
		_ = json.Unmarshal(frame.Data, &req)
		return r.QuizConfigGet(conn, req.OwnerKey)
	case types.EventQuizConfigSet:
		var req QuizConfigRequest
		if err := json.Unmarshal(frame.Data, &req); err != nil {
			return nil, quiz.ErrInvalidConfig
		}
		return nil, r.QuizConfigSet(conn, req)

	case types.EventPortalLobbyOpen:
		return nil, r.OpenLobby(conn)
	case types.EventPortalLobbyStart:
		return nil, r.StartLobby(conn)
	case types.EventPortalSetTarget:
		var req types.PortalTargetRequest
		_ = json.Unmarshal(frame.Data, &req)
		return nil, r.SetPortalTarget(conn, req.TargetURL)

	case types.EventHostClaim:
		var req types.ClaimHostRequest
		_ = json.Unmarshal(frame.Data, &req)
		return nil, r.ClaimHost(conn, req.OwnerKey)
	case types.EventHostKick:
		var req types.KickRequest
		_ = json.Unmarshal(frame.Data, &req)
		return nil, r.KickPlayer(conn, req.TargetID)
	case types.EventHostSetMuted:
		var req types.MuteRequest
		_ = json.Unmarshal(frame.Data, &req)
		return nil, r.SetChatMuted(conn, req.TargetID, req.Muted)

	case types.EventBillboardMediaSet:
		var req struct {
			OwnerKey string `json:"ownerKey"`
			types.BillboardSetRequest
		}
		if err := json.Unmarshal(frame.Data, &req); err != nil {
			return nil, ErrInvalidBillboardMedia
		}
		return nil, r.SetBillboard(conn, req.OwnerKey, req.BillboardSetRequest)
	}
	return nil, nil
}

// hostLocked resolves the calling player and enforces host-only access.
func (r *Room) hostLocked(conn Conn) (*Player, error) {
	p, ok := r.players[conn.ID()]
	if !ok {
		return nil, ErrPlayerNotFound
	}
	if !p.Host {
		return nil, ErrHostOnly
	}
	return p, nil
}

// QuizStart begins a run at the host's request.
func (r *Room) QuizStart(conn Conn) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, err := r.hostLocked(conn)
	if err != nil {
		return err
	}
	return r.engine.Start(p.ID)
}

func (r *Room) QuizStop(conn Conn) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.hostLocked(conn); err != nil {
		return err
	}
	return r.engine.Stop()
}

func (r *Room) QuizNext(conn Conn) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.hostLocked(conn); err != nil {
		return err
	}
	return r.engine.Next()
}

func (r *Room) QuizPrev(conn Conn) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.hostLocked(conn); err != nil {
		return err
	}
	return r.engine.Prev()
}

func (r *Room) QuizForceLock(conn Conn) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.hostLocked(conn); err != nil {
		return err
	}
	return r.engine.ForceLock()
}

// QuizStateFor returns the machine snapshot. Host-only, matching the
// other quiz commands.
func (r *Room) QuizStateFor(conn Conn) (quiz.StatePayload, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.hostLocked(conn); err != nil {
		return quiz.StatePayload{}, err
	}
	return r.engine.State(), nil
}

// QuizConfigGet reads the configuration. Requires host plus the owner key.
func (r *Room) QuizConfigGet(conn Conn, ownerKey string) (quiz.Config, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.hostLocked(conn); err != nil {
		return quiz.Config{}, err
	}
	if r.owner == nil || !r.owner.Check(ownerKey) {
		return quiz.Config{}, ErrUnauthorized
	}
	return r.engine.ConfigSnapshot(), nil
}

// QuizConfigSet replaces the question bank and end policy. Requires host
// plus the owner key; rejected while a run is active.
func (r *Room) QuizConfigSet(conn Conn, req QuizConfigRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.hostLocked(conn); err != nil {
		return err
	}
	if r.owner == nil || !r.owner.Check(req.OwnerKey) {
		return ErrUnauthorized
	}
	return r.engine.ApplyConfig(req.Questions, req.LockSeconds, req.AutoMode, req.AutoFinish, req.MinPlayers)
}
