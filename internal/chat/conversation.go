// Package chat derives per-viewer conversation state from the flat direct
// message log and keeps it live against the change feed.
package chat

import (
	"sort"
	"time"

	"github.com/vendalink/salechat-server/internal/store"
)

// reconcileWindow is how far apart the optimistic local echo and the
// confirmed row may sit in created_at and still be treated as the same
// logical send when no client key matched.
const reconcileWindow = 3 * time.Second

// Message is the view-level message. ClientKey carries the client-generated
// correlation id of an optimistic send until the server-confirmed row
// (ID != 0) replaces it.
type Message struct {
	ID         int64     `json:"id"`
	ClientKey  string    `json:"client_key,omitempty"`
	SenderID   int64     `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	ReceiverID int64     `json:"receiver_id"`
	Body       string    `json:"body"`
	Read       bool      `json:"read"`
	CreatedAt  time.Time `json:"created_at"`
}

// Confirmed reports whether the message carries a server-assigned id.
func (m Message) Confirmed() bool {
	return m.ID != 0
}

// FromStore converts a stored row to a view message.
func FromStore(m *store.Message) Message {
	return Message{
		ID:         m.ID,
		SenderID:   m.SenderID,
		SenderName: m.SenderName,
		ReceiverID: m.ReceiverID,
		Body:       m.Body,
		Read:       m.Read,
		CreatedAt:  m.CreatedAt,
	}
}

// FromStoreSlice converts stored rows preserving order.
func FromStoreSlice(msgs []*store.Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, FromStore(m))
	}
	return out
}

// Conversation is the derived thread with one peer, keyed by the other
// participant relative to the viewer. It is recomputed on demand and never
// persisted.
type Conversation struct {
	PeerID      int64     `json:"peer_id"`
	PeerName    string    `json:"peer_name,omitempty"`
	Messages    []Message `json:"messages"`
	LastMessage Message   `json:"last_message"`
	UnreadCount int       `json:"unread_count"`
}

// PeerOf returns the other participant of a message relative to the viewer.
func PeerOf(viewerID int64, m Message) int64 {
	if m.SenderID == viewerID {
		return m.ReceiverID
	}
	return m.SenderID
}

// BuildConversations derives the viewer's conversation list from a full
// message set, sorted by last message time descending. An empty input
// yields an empty list.
func BuildConversations(viewerID int64, msgs []Message) []Conversation {
	byPeer := make(map[int64]*Conversation)
	order := make([]int64, 0)

	for _, m := range msgs {
		peer := PeerOf(viewerID, m)
		conv, ok := byPeer[peer]
		if !ok {
			conv = &Conversation{PeerID: peer}
			byPeer[peer] = conv
			order = append(order, peer)
		}
		conv.Messages = mergeInto(conv.Messages, m)
	}

	convs := make([]Conversation, 0, len(order))
	for _, peer := range order {
		conv := byPeer[peer]
		refresh(viewerID, conv)
		convs = append(convs, *conv)
	}
	sortConversations(convs)
	return convs
}

// MergeMessage folds one incoming message into the conversation list,
// creating a conversation for a previously unseen peer. Idempotent on
// message id: re-applying the same confirmed message leaves the list
// unchanged.
func MergeMessage(viewerID int64, convs []Conversation, m Message) []Conversation {
	peer := PeerOf(viewerID, m)

	for i := range convs {
		if convs[i].PeerID != peer {
			continue
		}
		convs[i].Messages = mergeInto(convs[i].Messages, m)
		refresh(viewerID, &convs[i])
		sortConversations(convs)
		return convs
	}

	conv := Conversation{PeerID: peer, Messages: []Message{m}}
	refresh(viewerID, &conv)
	convs = append(convs, conv)
	sortConversations(convs)
	return convs
}

// ApplyRead marks the given message ids read across the list and
// recomputes unread counts. Unknown ids are ignored.
func ApplyRead(viewerID int64, convs []Conversation, ids []int64) []Conversation {
	if len(ids) == 0 {
		return convs
	}
	idSet := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		idSet[id] = struct{}{}
	}
	for i := range convs {
		changed := false
		for j := range convs[i].Messages {
			if _, ok := idSet[convs[i].Messages[j].ID]; ok && !convs[i].Messages[j].Read {
				convs[i].Messages[j].Read = true
				changed = true
			}
		}
		if changed {
			refresh(viewerID, &convs[i])
		}
	}
	return convs
}

// mergeInto inserts a message into an ordered thread, deduplicating by id
// and reconciling optimistic entries against their confirmed rows.
//
// Matching precedence: server id, then client key, then an unconfirmed
// entry with the same participants and body within reconcileWindow.
func mergeInto(msgs []Message, m Message) []Message {
	if m.Confirmed() {
		for i := range msgs {
			if msgs[i].ID == m.ID {
				// Same durable row seen again (optimistic echo confirmed, or
				// duplicate push): keep exactly one entry, prefer the newer
				// read flag since read never reverts.
				m.Read = m.Read || msgs[i].Read
				msgs[i] = m
				return msgs
			}
		}
		if i := matchProvisional(msgs, m); i >= 0 {
			key := msgs[i].ClientKey
			msgs[i] = m
			msgs[i].ClientKey = key
			return resort(msgs)
		}
	} else {
		for i := range msgs {
			if m.ClientKey != "" && msgs[i].ClientKey == m.ClientKey {
				// Optimistic entry applied twice, or arriving after its
				// confirmation: never displace a confirmed row.
				if !msgs[i].Confirmed() {
					msgs[i] = m
				}
				return msgs
			}
		}
	}

	msgs = append(msgs, m)
	return resort(msgs)
}

// matchProvisional finds the optimistic entry a confirmed row reconciles
// against, or -1.
func matchProvisional(msgs []Message, m Message) int {
	for i := range msgs {
		if msgs[i].Confirmed() {
			continue
		}
		if m.ClientKey != "" && msgs[i].ClientKey == m.ClientKey {
			return i
		}
		if msgs[i].SenderID == m.SenderID && msgs[i].ReceiverID == m.ReceiverID &&
			msgs[i].Body == m.Body && within(msgs[i].CreatedAt, m.CreatedAt, reconcileWindow) {
			return i
		}
	}
	return -1
}

func within(a, b time.Time, d time.Duration) bool {
	diff := a.Sub(b)
	if diff < 0 {
		diff = -diff
	}
	return diff <= d
}

// resort restores the (created_at, id) total order after an insert or a
// reconciliation that changed timestamps.
func resort(msgs []Message) []Message {
	sort.SliceStable(msgs, func(i, j int) bool {
		if !msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
		}
		return msgs[i].ID < msgs[j].ID
	})
	return msgs
}

// refresh recomputes the derived fields of a conversation.
func refresh(viewerID int64, conv *Conversation) {
	unread := 0
	for _, m := range conv.Messages {
		if m.ReceiverID == viewerID && !m.Read {
			unread++
		}
		if m.SenderID == conv.PeerID && m.SenderName != "" {
			conv.PeerName = m.SenderName
		}
	}
	conv.UnreadCount = unread
	if n := len(conv.Messages); n > 0 {
		conv.LastMessage = conv.Messages[n-1]
	}
}

func sortConversations(convs []Conversation) {
	sort.SliceStable(convs, func(i, j int) bool {
		return convs[i].LastMessage.CreatedAt.After(convs[j].LastMessage.CreatedAt)
	})
}
