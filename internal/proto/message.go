package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	ProtocolVersion = 1

	// Watches: each opens an independent live view backed by its own
	// subscription. A client may hold several at once (list + thread +
	// bell); they filter and merge separately.
	InboundTypeWatchList   = "watch_list"
	InboundTypeWatchThread = "watch_thread"
	InboundTypeWatchBell   = "watch_bell"
	InboundTypeUnwatch     = "unwatch"
	InboundTypeSend        = "send"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"
)

// WatchThreadData requests a live view of the thread with one peer.
type WatchThreadData struct {
	PeerID int64 `json:"peer_id"`
}

// UnwatchData releases a previously opened watch.
type UnwatchData struct {
	WatchID string `json:"watch_id"`
}

// SendData is a direct message send. ClientKey is the caller's correlation
// id for its optimistic local echo; it is echoed back on the confirmation.
type SendData struct {
	ReceiverID int64  `json:"receiver_id"`
	Body       string `json:"body"`
	ClientKey  string `json:"client_key,omitempty"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type    string `json:"type"`
	Event   string `json:"event,omitempty"`
	WatchID string `json:"watch_id,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

// Outbound event names.
const (
	EventWatchOpened   = "watch_opened"
	EventWatchClosed   = "watch_closed"
	EventConversations = "conversations"
	EventThread        = "thread"
	EventBellCount     = "bell_count"
	EventSendAck       = "send_ack"
)

// MessagePayload is one message as seen on the wire.
type MessagePayload struct {
	ID         int64  `json:"id"`
	ClientKey  string `json:"client_key,omitempty"`
	SenderID   int64  `json:"sender_id"`
	SenderName string `json:"sender_name"`
	ReceiverID int64  `json:"receiver_id"`
	Body       string `json:"body"`
	Read       bool   `json:"read"`
	TS         int64  `json:"ts"`
}

// ConversationPayload is one derived conversation as seen on the wire.
type ConversationPayload struct {
	PeerID      int64            `json:"peer_id"`
	PeerName    string           `json:"peer_name,omitempty"`
	LastMessage MessagePayload   `json:"last_message"`
	UnreadCount int              `json:"unread_count"`
	Messages    []MessagePayload `json:"messages"`
}

// BellCountPayload carries the live notification badge count.
type BellCountPayload struct {
	Count int `json:"count"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
