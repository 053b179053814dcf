package rest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/MetaFacil/AppConecta/internal/logger"
	"github.com/MetaFacil/AppConecta/internal/model"
)

// ListForUser returns every chat the user participates in, updated_at descending.
func (c *Client) ListForUser(ctx context.Context, userID string) ([]model.Chat, error) {
	defer logger.DeferLogDuration("rest.ListChats", time.Now())()
	var out []model.Chat
	if err := c.getJSON(ctx, "/v1/chats?user_id="+url.QueryEscape(userID), &out); err != nil {
		return nil, fmt.Errorf("rest.ListChats: %w", err)
	}
	return out, nil
}

// FindByPair returns the chat between the two users in either role, or
// store.ErrNotFound.
func (c *Client) FindByPair(ctx context.Context, userA, userB string) (model.Chat, error) {
	defer logger.DeferLogDuration("rest.FindChatByPair", time.Now())()
	var out model.Chat
	path := "/v1/chats/pair?user_a=" + url.QueryEscape(userA) + "&user_b=" + url.QueryEscape(userB)
	if err := c.getJSON(ctx, path, &out); err != nil {
		return model.Chat{}, fmt.Errorf("rest.FindChatByPair: %w", err)
	}
	return out, nil
}

type chatInsert struct {
	ClienteID    string  `json:"cliente_id"`
	FreelancerID string  `json:"freelancer_id"`
	ProjectID    *string `json:"project_id,omitempty"`
}

// Create creates a chat; uniqueness of the participant pair is not enforced
// here, duplicates are collapsed downstream.
func (c *Client) Create(ctx context.Context, clienteID, freelancerID string, projectID *string) (model.Chat, error) {
	defer logger.DeferLogDuration("rest.InsertChat", time.Now())()
	var row model.Chat
	ins := chatInsert{ClienteID: clienteID, FreelancerID: freelancerID, ProjectID: projectID}
	if err := c.sendJSON(ctx, http.MethodPost, "/v1/chats", ins, &row); err != nil {
		return model.Chat{}, fmt.Errorf("rest.InsertChat: %w", err)
	}
	return row, nil
}

// Chat returns one chat by id.
func (c *Client) Chat(ctx context.Context, id string) (model.Chat, error) {
	defer logger.DeferLogDuration("rest.GetChat", time.Now())()
	var out model.Chat
	if err := c.getJSON(ctx, "/v1/chats/"+url.PathEscape(id), &out); err != nil {
		return model.Chat{}, fmt.Errorf("rest.GetChat: %w", err)
	}
	return out, nil
}
