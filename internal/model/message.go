package model

import "time"

type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
)

// ImagePlaceholder is the fixed conteudo carried by image messages.
const ImagePlaceholder = "Imagem"

// Message is one chat message. Wire field names follow the service schema:
// conteudo is the text payload, lida the read flag (false→true only, set by
// the recipient). ID and CreatedAt are assigned by the store.
type Message struct {
	ID          string      `json:"id"`
	ChatID      string      `json:"chat_id"`
	SenderID    string      `json:"sender_id"`
	Conteudo    string      `json:"conteudo"`
	MessageType MessageType `json:"message_type"`
	MediaURL    *string     `json:"media_url,omitempty"`
	Lida        bool        `json:"lida"`
	CreatedAt   time.Time   `json:"created_at"`

	// Client-side delivery state, never serialized. A pending message holds a
	// provisional LocalID as its ID until the store-confirmed row replaces it.
	LocalID string `json:"-"`
	Pending bool   `json:"-"`
	Failed  bool   `json:"-"`
}

// Less imposes the deterministic total order on messages: creation time
// ascending, id as the tiebreak for store timestamps of coarse resolution.
func (m Message) Less(other Message) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	return m.ID < other.ID
}

// MessageInsert is the request body for creating a message. The store assigns
// id, created_at and the initial lida=false.
type MessageInsert struct {
	ChatID      string      `json:"chat_id"`
	SenderID    string      `json:"sender_id"`
	Conteudo    string      `json:"conteudo"`
	MessageType MessageType `json:"message_type"`
	MediaURL    *string     `json:"media_url,omitempty"`
}

// TypingSignal is the ephemeral presence payload exchanged between the two
// viewers of a conversation. It is never persisted; last write wins per sender.
type TypingSignal struct {
	ChatID   string `json:"chat_id"`
	UserID   string `json:"user_id"`
	IsTyping bool   `json:"is_typing"`
}
