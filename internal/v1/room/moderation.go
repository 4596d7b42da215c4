package room

import (
	"context"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/oxarena/ox-arena/backend/go/internal/v1/logging"
	"github.com/oxarena/ox-arena/backend/go/internal/v1/types"
)

// Billboard targets.
const (
	BoardOne = "board1"
	BoardTwo = "board2"
)

// ClaimHost transfers host to the caller when the supplied owner key
// matches. The comparison is constant time.
func (r *Room) ClaimHost(conn Conn, ownerKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[conn.ID()]
	if !ok {
		return ErrPlayerNotFound
	}
	if r.owner == nil || !r.owner.Check(ownerKey) {
		return ErrUnauthorized
	}
	for _, q := range r.players {
		q.Host = false
	}
	p.Host = true
	p.Admitted = true
	r.engine.HostChanged(p.ID)
	r.broadcastRoomUpdateLocked()
	logging.Info(context.Background(), "host claimed",
		zap.String("room_code", string(r.Code)), zap.String("player_id", string(p.ID)))
	return nil
}

// KickPlayer removes the target and terminates its transport. The kicked
// connection may not rejoin this room instance.
func (r *Room) KickPlayer(conn Conn, targetID types.ClientIdType) error {
	r.mu.Lock()
	p, ok := r.players[conn.ID()]
	if !ok {
		r.mu.Unlock()
		return ErrPlayerNotFound
	}
	if !p.Host {
		r.mu.Unlock()
		return ErrHostOnly
	}
	if targetID == "" {
		r.mu.Unlock()
		return ErrTargetRequired
	}
	if targetID == p.ID {
		r.mu.Unlock()
		return ErrCannotTargetSelf
	}
	target, ok := r.players[targetID]
	if !ok {
		r.mu.Unlock()
		return ErrPlayerNotFound
	}
	targetConn := target.Conn
	r.mu.Unlock()

	targetConn.SendPriority(types.EventHostKicked, types.KickedNotice{Reason: "kicked by host"})
	targetConn.Kick("kicked by host")
	r.Leave(targetConn)
	logging.Info(context.Background(), "player kicked",
		zap.String("room_code", string(r.Code)),
		zap.String("player_id", string(targetID)),
		zap.String("by", string(p.ID)))
	return nil
}

// SetChatMuted toggles the target's chat mute and notifies them.
func (r *Room) SetChatMuted(conn Conn, targetID types.ClientIdType, muted bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[conn.ID()]
	if !ok {
		return ErrPlayerNotFound
	}
	if !p.Host {
		return ErrHostOnly
	}
	if targetID == "" {
		return ErrTargetRequired
	}
	if targetID == p.ID {
		return ErrCannotTargetSelf
	}
	target, ok := r.players[targetID]
	if !ok {
		return ErrPlayerNotFound
	}
	target.ChatMuted = muted
	target.Conn.SendPriority(types.EventHostChatMuted, types.MutedNotice{Muted: muted})
	r.broadcastRoomUpdateLocked()
	return nil
}

// SetPortalTarget updates the portal destination URL and broadcasts it.
func (r *Room) SetPortalTarget(conn Conn, rawURL string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[conn.ID()]
	if !ok {
		return ErrPlayerNotFound
	}
	if !p.Host {
		return ErrHostOnly
	}
	target := strings.TrimSpace(rawURL)
	if !validHTTPURL(target) {
		return ErrInvalidPortalTarget
	}
	r.portalTarget = target
	r.broadcastLocked(types.EventPortalTargetUpdate, types.PortalTargetUpdate{TargetURL: target})
	return nil
}

// SetBillboard installs a media channel on one of the two boards. Requires
// host plus the owner key.
func (r *Room) SetBillboard(conn Conn, ownerKey string, req types.BillboardSetRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[conn.ID()]
	if !ok {
		return ErrPlayerNotFound
	}
	if !p.Host {
		return ErrHostOnly
	}
	if r.owner == nil || !r.owner.Check(ownerKey) {
		return ErrUnauthorized
	}
	if req.Target != BoardOne && req.Target != BoardTwo {
		return ErrInvalidBillboardTarget
	}
	media := req.Media
	switch media.VisualType {
	case "none":
		media.VisualURL = ""
	case "video", "image":
		if !validHTTPURL(media.VisualURL) {
			return ErrInvalidBillboardMedia
		}
	default:
		return ErrInvalidBillboardMedia
	}
	if media.AudioURL != "" && !validHTTPURL(media.AudioURL) {
		return ErrInvalidBillboardMedia
	}
	r.billboards[req.Target] = media
	r.broadcastLocked(types.EventBillboardMediaUpdate, types.BillboardMediaUpdate{
		Target: req.Target,
		Media:  media,
	})
	return nil
}

// Billboards returns a copy of the current board state.
func (r *Room) Billboards() map[string]types.MediaChannel {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]types.MediaChannel, len(r.billboards))
	for k, v := range r.billboards {
		out[k] = v
	}
	return out
}

// validHTTPURL accepts absolute http/https URLs up to the portal length cap.
func validHTTPURL(raw string) bool {
	if raw == "" || len(raw) > types.MaxPortalURL {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
