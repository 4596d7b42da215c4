package types

import "encoding/json"

// Frame is the transport envelope for every message in both directions.
// Seq is client-assigned; a non-zero Seq on an ingress frame requests an
// ack frame carrying the same Seq.
type Frame struct {
	Event Event           `json:"event"`
	Seq   uint64          `json:"seq,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// OutFrame is the egress counterpart with an arbitrary payload.
type OutFrame struct {
	Event Event  `json:"event"`
	Seq   uint64 `json:"seq,omitempty"`
	Data  any    `json:"data,omitempty"`
}

// Ack is the generic acknowledgement payload. Extra reply fields are merged
// by using a concrete struct embedding Ack instead.
type Ack struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// AckOK returns a plain success ack.
func AckOK() Ack { return Ack{OK: true} }

// AckErr returns a failed ack with the given user-facing error string.
func AckErr(msg string) Ack { return Ack{OK: false, Error: msg} }

// --- Ingress payloads ---

type QuickJoinRequest struct {
	Name     string `json:"name,omitempty"`
	RoomCode string `json:"roomCode,omitempty"`
	OwnerKey string `json:"ownerKey,omitempty"`
	Token    string `json:"token,omitempty"` // one-time routing token from a gateway
}

type CreateRoomRequest struct {
	Code string `json:"code,omitempty"`
	Name string `json:"name,omitempty"`
}

type JoinRoomRequest struct {
	Code string `json:"code"`
	Name string `json:"name,omitempty"`
}

// SyncRequest is a proposed player state. S is the client's sprint flag,
// observed but not trusted.
type SyncRequest struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
	Yaw   float64 `json:"yaw"`
	Pitch float64 `json:"pitch"`
	S     bool    `json:"s,omitempty"`
}

type ChatRequest struct {
	Name string `json:"name,omitempty"`
	Text string `json:"text"`
}

type PortalTargetRequest struct {
	TargetURL string `json:"targetUrl"`
}

type ClaimHostRequest struct {
	OwnerKey string `json:"ownerKey"`
}

type KickRequest struct {
	TargetID ClientIdType `json:"targetId"`
}

type MuteRequest struct {
	TargetID ClientIdType `json:"targetId"`
	Muted    bool         `json:"muted"`
}

// MediaChannel describes one billboard channel.
type MediaChannel struct {
	VisualType string `json:"visualType"` // none | video | image
	VisualURL  string `json:"visualUrl,omitempty"`
	AudioURL   string `json:"audioUrl,omitempty"`
}

type BillboardSetRequest struct {
	Target string       `json:"target"` // board1 | board2
	Media  MediaChannel `json:"media"`
}

// --- Egress payloads ---

// RoomSummary is the public listing entry for a room.
type RoomSummary struct {
	Code       RoomCodeType `json:"code"`
	Players    int          `json:"players"`
	Capacity   int          `json:"capacity"`
	HostName   string       `json:"hostName,omitempty"`
	QuizActive bool         `json:"quizActive"`
	QuizPhase  string       `json:"quizPhase,omitempty"`
	CreatedAt  int64        `json:"createdAt"`
	Persistent bool         `json:"persistent,omitempty"`
	Endpoint   string       `json:"endpoint,omitempty"` // set by the bus for cross-worker listings
}

// Redirect tells a gateway client which worker to reconnect to.
type Redirect struct {
	Endpoint string       `json:"endpoint"`
	Token    string       `json:"token"`
	RoomCode RoomCodeType `json:"roomCode"`
}

type ServerRole struct {
	Role             string `json:"role"` // "gateway" | "worker"
	ParticipantLimit int    `json:"participantLimit"`
}

type ChatMessage struct {
	ID        string          `json:"id"`
	PlayerID  ClientIdType    `json:"playerId"`
	Name      DisplayNameType `json:"name"`
	Text      string          `json:"text"`
	Timestamp int64           `json:"timestamp"`
}

type KickedNotice struct {
	Reason string `json:"reason"`
}

type MutedNotice struct {
	Muted bool `json:"muted"`
}

type PortalTargetUpdate struct {
	TargetURL string `json:"targetUrl"`
}

type BillboardMediaUpdate struct {
	Target string       `json:"target"`
	Media  MediaChannel `json:"media"`
}

type LobbyAdmitted struct {
	AdmittedCount    int            `json:"admittedCount"`
	SpectatorCount   int            `json:"spectatorCount"`
	PriorityPlayers  int            `json:"priorityPlayers"`
	ParticipantLimit int            `json:"participantLimit"`
	CountdownMs      int64          `json:"countdownMs"`
	AdmittedIDs      []ClientIdType `json:"admittedIds,omitempty"`
}
