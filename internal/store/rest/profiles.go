package rest

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/MetaFacil/AppConecta/internal/logger"
	"github.com/MetaFacil/AppConecta/internal/model"
)

// Profile returns one profile by id.
func (c *Client) Profile(ctx context.Context, id string) (model.Profile, error) {
	defer logger.DeferLogDuration("rest.GetProfile", time.Now())()
	var out model.Profile
	if err := c.getJSON(ctx, "/v1/profiles/"+url.PathEscape(id), &out); err != nil {
		return model.Profile{}, fmt.Errorf("rest.GetProfile: %w", err)
	}
	return out, nil
}

// ListFreelancers returns the freelancer directory, newest first.
func (c *Client) ListFreelancers(ctx context.Context) ([]model.Profile, error) {
	defer logger.DeferLogDuration("rest.ListFreelancers", time.Now())()
	var out []model.Profile
	if err := c.getJSON(ctx, "/v1/profiles?tipo=freelancer", &out); err != nil {
		return nil, fmt.Errorf("rest.ListFreelancers: %w", err)
	}
	return out, nil
}

// Search filters freelancers by substring and optional category.
func (c *Client) Search(ctx context.Context, query, categoryID string) ([]model.Profile, error) {
	defer logger.DeferLogDuration("rest.SearchFreelancers", time.Now())()
	path := "/v1/profiles?tipo=freelancer&q=" + url.QueryEscape(query)
	if categoryID != "" {
		path += "&category_id=" + url.QueryEscape(categoryID)
	}
	var out []model.Profile
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, fmt.Errorf("rest.SearchFreelancers: %w", err)
	}
	return out, nil
}

// Categories returns the service categories, ordered by nome.
func (c *Client) Categories(ctx context.Context) ([]model.Category, error) {
	defer logger.DeferLogDuration("rest.Categories", time.Now())()
	var out []model.Category
	if err := c.getJSON(ctx, "/v1/categories", &out); err != nil {
		return nil, fmt.Errorf("rest.Categories: %w", err)
	}
	return out, nil
}

// ServicesByFreelancer returns the active offerings of one freelancer.
func (c *Client) ServicesByFreelancer(ctx context.Context, freelancerID string) ([]model.Service, error) {
	defer logger.DeferLogDuration("rest.Services", time.Now())()
	var out []model.Service
	if err := c.getJSON(ctx, "/v1/services?freelancer_id="+url.QueryEscape(freelancerID), &out); err != nil {
		return nil, fmt.Errorf("rest.Services: %w", err)
	}
	return out, nil
}
