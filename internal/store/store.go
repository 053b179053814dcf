// Package store defines the client interfaces to the durable data service:
// request/response CRUD over profiles, chats and messages plus binary media
// upload. Implementations: rest (hosted service) and postgres (direct, self-hosted).
package store

import (
	"context"
	"errors"
	"io"

	"github.com/MetaFacil/AppConecta/internal/model"
)

var (
	// ErrNotFound — the row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUnavailable — transient store/transport failure; the caller may retry
	// with backoff. Surfaced to the UI as a non-blocking condition.
	ErrUnavailable = errors.New("store unavailable")
)

// MessageStore issues message CRUD against the durable store. No local logic
// beyond request shaping.
type MessageStore interface {
	// ListByChat returns the full persisted message set for a conversation,
	// ordered ascending by (created_at, id).
	ListByChat(ctx context.Context, chatID string) ([]model.Message, error)
	// Insert persists a message and returns the store-confirmed row
	// (store-assigned id and created_at).
	Insert(ctx context.Context, ins model.MessageInsert) (model.Message, error)
	// MarkRead flips lida=true on every message in the chat whose sender is
	// not readerID and which is still unread. Redundant calls are no-ops.
	MarkRead(ctx context.Context, chatID, readerID string) error
}

// ChatStore issues conversation CRUD.
type ChatStore interface {
	// ListForUser returns every chat the user participates in, ordered by
	// updated_at descending.
	ListForUser(ctx context.Context, userID string) ([]model.Chat, error)
	// FindByPair returns a chat between the two participants in either role,
	// or ErrNotFound.
	FindByPair(ctx context.Context, userA, userB string) (model.Chat, error)
	// Create creates a chat. The check-then-insert in the caller is not atomic
	// against the store; duplicates under concurrent creation are tolerated
	// downstream, not prevented here.
	Create(ctx context.Context, clienteID, freelancerID string, projectID *string) (model.Chat, error)
	Chat(ctx context.Context, id string) (model.Chat, error)
}

// ProfileStore reads user profiles and the freelancer directory.
type ProfileStore interface {
	Profile(ctx context.Context, id string) (model.Profile, error)
	ListFreelancers(ctx context.Context) ([]model.Profile, error)
	// Search filters freelancers by a substring over nome/descricao/cidade and
	// an optional category.
	Search(ctx context.Context, query, categoryID string) ([]model.Profile, error)
}

// DirectoryStore reads categories and per-freelancer services.
type DirectoryStore interface {
	Categories(ctx context.Context) ([]model.Category, error)
	ServicesByFreelancer(ctx context.Context, freelancerID string) ([]model.Service, error)
}

// MediaStore uploads a binary object under a caller-chosen path and returns a
// stable public reference for it.
type MediaStore interface {
	Upload(ctx context.Context, path, contentType string, r io.Reader) (string, error)
}
