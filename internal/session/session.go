// Package session holds the active user identity. A Session is created once
// after sign-in and passed by reference to every component that needs the
// identity; it is replaced wholesale on sign-in/out, never mutated in place.
package session

import (
	"errors"

	"github.com/MetaFacil/AppConecta/internal/model"
)

// ErrAuthRequired is returned by operations that need an active identity.
// They fail immediately rather than queue work for a future sign-in.
var ErrAuthRequired = errors.New("auth required")

type Session struct {
	UserID      string
	AccessToken string
	Profile     model.Profile
}

// New builds a session for the given profile.
func New(profile model.Profile, accessToken string) *Session {
	return &Session{
		UserID:      profile.ID,
		AccessToken: accessToken,
		Profile:     profile,
	}
}

// Valid reports whether the session carries a usable identity.
func (s *Session) Valid() bool {
	return s != nil && s.UserID != ""
}
