package rest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/MetaFacil/AppConecta/internal/logger"
	"github.com/MetaFacil/AppConecta/internal/model"
	"github.com/MetaFacil/AppConecta/internal/store"
)

// ListByChat returns the full persisted message set, ascending (created_at, id).
func (c *Client) ListByChat(ctx context.Context, chatID string) ([]model.Message, error) {
	defer logger.DeferLogDuration("rest.ListByChat", time.Now())()
	var out []model.Message
	path := "/v1/chats/" + url.PathEscape(chatID) + "/messages"
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, fmt.Errorf("rest.ListByChat: %w", err)
	}
	return out, nil
}

// Insert persists one message and returns the store-confirmed row.
func (c *Client) Insert(ctx context.Context, ins model.MessageInsert) (model.Message, error) {
	defer logger.DeferLogDuration("rest.InsertMessage", time.Now())()
	var row model.Message
	if err := c.sendJSON(ctx, http.MethodPost, "/v1/messages", ins, &row); err != nil {
		return model.Message{}, fmt.Errorf("rest.InsertMessage: %w", err)
	}
	return row, nil
}

type markReadRequest struct {
	ReaderID string `json:"reader_id"`
}

// MarkRead flips lida for every unread counterparty message in the chat.
func (c *Client) MarkRead(ctx context.Context, chatID, readerID string) error {
	defer logger.DeferLogDuration("rest.MarkRead", time.Now())()
	path := "/v1/chats/" + url.PathEscape(chatID) + "/read"
	if err := c.sendJSON(ctx, http.MethodPost, path, markReadRequest{ReaderID: readerID}, nil); err != nil {
		return fmt.Errorf("rest.MarkRead: %w", err)
	}
	return nil
}

type uploadResponse struct {
	URL string `json:"url"`
}

// Upload stores a binary object under the configured bucket and caller-chosen
// path and returns its stable public URL.
func (c *Client) Upload(ctx context.Context, path, contentType string, r io.Reader) (string, error) {
	defer logger.DeferLogDuration("rest.Upload", time.Now())()
	req, err := c.newRequest(ctx, http.MethodPost, "/v1/media/"+url.PathEscape(c.bucket)+"/"+path, r)
	if err != nil {
		return "", fmt.Errorf("rest.Upload: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("rest.Upload: %w: %v", store.ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if err := statusErr(resp); err != nil {
		return "", fmt.Errorf("rest.Upload: %w", err)
	}
	var out uploadResponse
	if err := decodeBody(resp.Body, &out); err != nil {
		return "", fmt.Errorf("rest.Upload decode: %w", err)
	}
	return out.URL, nil
}
