package model

import "time"

// Chat is one conversation between a client and a freelancer. The pair of
// participants is fixed at creation; updated_at moves on every message write.
type Chat struct {
	ID           string    `json:"id"`
	ClienteID    string    `json:"cliente_id"`
	FreelancerID string    `json:"freelancer_id"`
	ProjectID    *string   `json:"project_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// OtherParticipant returns the participant that is not userID.
func (c Chat) OtherParticipant(userID string) string {
	if c.ClienteID == userID {
		return c.FreelancerID
	}
	return c.ClienteID
}

// HasParticipant reports whether userID is one of the two participants.
func (c Chat) HasParticipant(userID string) bool {
	return c.ClienteID == userID || c.FreelancerID == userID
}

// PairKey returns the unordered participant-pair key. Two chats with the same
// key are duplicates of the same conversation (the find-or-create check in the
// client is not atomic, so duplicates can exist and are collapsed by this key).
func (c Chat) PairKey() string {
	if c.ClienteID < c.FreelancerID {
		return c.ClienteID + "|" + c.FreelancerID
	}
	return c.FreelancerID + "|" + c.ClienteID
}

// Summary is the derived per-conversation row of the chat list: the chat, the
// counterparty profile, the most recent message and the viewer's unread count.
// Degraded is set when the counterparty profile could not be resolved; the
// rest of the summary is still valid.
type Summary struct {
	Chat        Chat     `json:"chat"`
	Other       *Profile `json:"other,omitempty"`
	LastMessage *Message `json:"last_message,omitempty"`
	UnreadCount int      `json:"unread_count"`
	Degraded    bool     `json:"degraded,omitempty"`
}
