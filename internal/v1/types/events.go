package types

// Event is a wire event name. The client and server exchange frames of the
// shape {"event": ..., "seq": ..., "data": ...}; a frame carrying a seq
// expects an "ack" frame with the same seq in return.
type Event string

// Ingress operations.
const (
	EventRoomQuickJoin Event = "room:quick-join"
	EventRoomCreate    Event = "room:create"
	EventRoomJoin      Event = "room:join"
	EventRoomLeave     Event = "room:leave"
	EventRoomList      Event = "room:list"

	EventPlayerSync Event = "player:sync"
	EventChatSend   Event = "chat:send"

	EventQuizStart     Event = "quiz:start"
	EventQuizStop      Event = "quiz:stop"
	EventQuizNext      Event = "quiz:next"
	EventQuizPrev      Event = "quiz:prev"
	EventQuizForceLock Event = "quiz:force-lock"
	EventQuizState     Event = "quiz:state"
	EventQuizConfigGet Event = "quiz:config:get"
	EventQuizConfigSet Event = "quiz:config:set"

	EventPortalLobbyOpen  Event = "portal:lobby-open"
	EventPortalLobbyStart Event = "portal:lobby-start"
	EventPortalSetTarget  Event = "portal:set-target"

	EventHostClaim    Event = "host:claim-host"
	EventHostKick     Event = "host:kick-player"
	EventHostSetMuted Event = "host:set-chat-muted"

	EventBillboardMediaSet Event = "billboard:media:set"

	EventPing Event = "ping"
)

// Egress events.
const (
	EventAck Event = "ack"

	EventRoomUpdate    Event = "room:update"
	EventRoomListed    Event = "room:list"
	EventPlayerDelta   Event = "player:delta"
	EventPlayerCorrect Event = "player:correct"

	EventChatMessage Event = "chat:message"
	EventChatHistory Event = "chat:history"
	EventChatBlocked Event = "chat:blocked"

	EventQuizAutoCountdown Event = "quiz:auto-countdown"
	EventQuizStarted       Event = "quiz:start"
	EventQuizQuestion      Event = "quiz:question"
	EventQuizLock          Event = "quiz:lock"
	EventQuizResult        Event = "quiz:result"
	EventQuizScore         Event = "quiz:score"
	EventQuizEnd           Event = "quiz:end"

	EventPortalTargetUpdate  Event = "portal:target:update"
	EventPortalLobbyAdmitted Event = "portal:lobby-admitted"

	EventHostKicked    Event = "host:kicked"
	EventHostChatMuted Event = "host:chat-muted"

	EventAuthError  Event = "auth:error"
	EventServerRole Event = "server:role"
	EventRouteAssign Event = "route:assign"

	EventBillboardMediaUpdate Event = "billboard:media:update"
)
