package http

import (
	"github.com/vendalink/salechat-server/internal/chat"
	"github.com/vendalink/salechat-server/internal/proto"
	"github.com/vendalink/salechat-server/internal/store"
)

// toMessagePayload converts a view message to its wire shape.
func toMessagePayload(m chat.Message) proto.MessagePayload {
	return proto.MessagePayload{
		ID:         m.ID,
		ClientKey:  m.ClientKey,
		SenderID:   m.SenderID,
		SenderName: m.SenderName,
		ReceiverID: m.ReceiverID,
		Body:       m.Body,
		Read:       m.Read,
		TS:         m.CreatedAt.UnixMilli(),
	}
}

func toMessagePayloads(msgs []chat.Message) []proto.MessagePayload {
	out := make([]proto.MessagePayload, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessagePayload(m))
	}
	return out
}

// toConversationPayload converts a derived conversation to its wire shape.
func toConversationPayload(conv chat.Conversation) proto.ConversationPayload {
	return proto.ConversationPayload{
		PeerID:      conv.PeerID,
		PeerName:    conv.PeerName,
		LastMessage: toMessagePayload(conv.LastMessage),
		UnreadCount: conv.UnreadCount,
		Messages:    toMessagePayloads(conv.Messages),
	}
}

func toConversationPayloads(convs []chat.Conversation) []proto.ConversationPayload {
	out := make([]proto.ConversationPayload, 0, len(convs))
	for _, conv := range convs {
		out = append(out, toConversationPayload(conv))
	}
	return out
}

// storeMessagePayload converts a persisted message row to its wire shape.
func storeMessagePayload(m *store.Message) proto.MessagePayload {
	return toMessagePayload(chat.FromStore(m))
}
