// Package directory exposes the freelancer directory: listing, category
// browsing and search. It sits outside the chat core; its only tie to chat is
// that a directory hit is where a conversation gets created from.
package directory

import (
	"context"
	"fmt"
	"strings"

	"github.com/MetaFacil/AppConecta/internal/model"
	"github.com/MetaFacil/AppConecta/internal/store"
)

// Service wraps the profile and directory stores.
type Service struct {
	profiles store.ProfileStore
	dir      store.DirectoryStore
}

func New(profiles store.ProfileStore, dir store.DirectoryStore) *Service {
	return &Service{profiles: profiles, dir: dir}
}

// Freelancers returns the full directory, newest first.
func (s *Service) Freelancers(ctx context.Context) ([]model.Profile, error) {
	out, err := s.profiles.ListFreelancers(ctx)
	if err != nil {
		return nil, fmt.Errorf("directory.Freelancers: %w", err)
	}
	return out, nil
}

// Search queries the store with a substring over nome/descricao/cidade and an
// optional category. An empty query with no category is the full listing.
func (s *Service) Search(ctx context.Context, query, categoryID string) ([]model.Profile, error) {
	if query == "" && categoryID == "" {
		return s.Freelancers(ctx)
	}
	out, err := s.profiles.Search(ctx, query, categoryID)
	if err != nil {
		return nil, fmt.Errorf("directory.Search: %w", err)
	}
	return out, nil
}

func (s *Service) Categories(ctx context.Context) ([]model.Category, error) {
	out, err := s.dir.Categories(ctx)
	if err != nil {
		return nil, fmt.Errorf("directory.Categories: %w", err)
	}
	return out, nil
}

func (s *Service) Services(ctx context.Context, freelancerID string) ([]model.Service, error) {
	out, err := s.dir.ServicesByFreelancer(ctx, freelancerID)
	if err != nil {
		return nil, fmt.Errorf("directory.Services: %w", err)
	}
	return out, nil
}

// Filter narrows an already-loaded listing without a round trip, matching the
// query case-insensitively against nome, descricao and cidade.
func Filter(profiles []model.Profile, query string) []model.Profile {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return profiles
	}
	out := make([]model.Profile, 0, len(profiles))
	for _, p := range profiles {
		if strings.Contains(strings.ToLower(p.Nome), q) ||
			strings.Contains(strings.ToLower(p.Descricao), q) ||
			strings.Contains(strings.ToLower(p.Cidade), q) {
			out = append(out, p)
		}
	}
	return out
}
