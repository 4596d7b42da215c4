package room

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/oxarena/ox-arena/backend/go/internal/v1/types"
)

// SendChat validates and fans out one chat message. Muted senders get a
// chat:blocked notice and an error ack; nothing reaches the room.
func (r *Room) SendChat(conn Conn, req types.ChatRequest) error {
	r.mu.Lock()
	p, ok := r.players[conn.ID()]
	if !ok {
		r.mu.Unlock()
		return ErrPlayerNotFound
	}
	if p.ChatMuted {
		r.mu.Unlock()
		conn.SendPriority(types.EventChatBlocked, types.MutedNotice{Muted: true})
		return ErrChatMuted
	}

	text := strings.TrimSpace(req.Text)
	if text == "" {
		r.mu.Unlock()
		return ErrEmptyMessage
	}
	if runes := []rune(text); len(runes) > types.MaxChatLen {
		text = string(runes[:types.MaxChatLen])
	}
	if req.Name != "" {
		p.Name = types.SanitizeDisplayName(req.Name)
	}

	msg := types.ChatMessage{
		ID:        uuid.NewString(),
		PlayerID:  p.ID,
		Name:      p.Name,
		Text:      text,
		Timestamp: time.Now().UnixMilli(),
	}
	r.appendChatLocked(msg)
	r.broadcastLocked(types.EventChatMessage, msg)
	r.mu.Unlock()
	return nil
}

func (r *Room) appendChatLocked(msg types.ChatMessage) {
	r.chatHistory.PushBack(msg)
	for r.chatHistory.Len() > maxChatHistory {
		r.chatHistory.Remove(r.chatHistory.Front())
	}
}

// replayChatHistoryLocked delivers the retained history to a new joiner.
func (r *Room) replayChatHistoryLocked(p *Player) {
	if r.chatHistory.Len() == 0 {
		return
	}
	history := make([]types.ChatMessage, 0, r.chatHistory.Len())
	for e := r.chatHistory.Front(); e != nil; e = e.Next() {
		history = append(history, e.Value.(types.ChatMessage))
	}
	p.Conn.SendPriority(types.EventChatHistory, history)
}
