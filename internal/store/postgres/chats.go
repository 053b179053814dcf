package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/MetaFacil/AppConecta/internal/logger"
	"github.com/MetaFacil/AppConecta/internal/model"
)

const chatCols = `id, cliente_id, freelancer_id, project_id, created_at, updated_at`

func scanChat(s interface{ Scan(dest ...any) error }, c *model.Chat) error {
	return s.Scan(&c.ID, &c.ClienteID, &c.FreelancerID, &c.ProjectID, &c.CreatedAt, &c.UpdatedAt)
}

// ListForUser returns every chat the user participates in, most recently
// active first.
func (st *Store) ListForUser(ctx context.Context, userID string) ([]model.Chat, error) {
	defer logger.DeferLogDuration("pg.ListChats", time.Now())()
	rows, err := st.pool.Query(ctx,
		`SELECT `+chatCols+`
		 FROM chats
		 WHERE cliente_id = $1 OR freelancer_id = $1
		 ORDER BY updated_at DESC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("pg.ListChats query: %w", err)
	}
	defer rows.Close()

	var chats []model.Chat
	for rows.Next() {
		var c model.Chat
		if err := scanChat(rows, &c); err != nil {
			return nil, fmt.Errorf("pg.ListChats scan: %w", err)
		}
		chats = append(chats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pg.ListChats rows: %w", err)
	}
	return chats, nil
}

// FindByPair looks the chat up regardless of which side is the cliente.
// Returns store.ErrNotFound when the pair never talked.
func (st *Store) FindByPair(ctx context.Context, userA, userB string) (model.Chat, error) {
	defer logger.DeferLogDuration("pg.FindByPair", time.Now())()
	var c model.Chat
	row := st.pool.QueryRow(ctx,
		`SELECT `+chatCols+`
		 FROM chats
		 WHERE (cliente_id = $1 AND freelancer_id = $2)
		    OR (cliente_id = $2 AND freelancer_id = $1)
		 ORDER BY updated_at DESC
		 LIMIT 1`, userA, userB,
	)
	if err := scanChat(row, &c); err != nil {
		return model.Chat{}, mapErr("pg.FindByPair", err)
	}
	return c, nil
}

func (st *Store) Create(ctx context.Context, clienteID, freelancerID string, projectID *string) (model.Chat, error) {
	defer logger.DeferLogDuration("pg.CreateChat", time.Now())()
	var c model.Chat
	row := st.pool.QueryRow(ctx,
		`INSERT INTO chats (cliente_id, freelancer_id, project_id)
		 VALUES ($1, $2, $3)
		 RETURNING `+chatCols,
		clienteID, freelancerID, projectID,
	)
	if err := scanChat(row, &c); err != nil {
		return model.Chat{}, fmt.Errorf("pg.CreateChat: %w", err)
	}
	return c, nil
}

func (st *Store) Chat(ctx context.Context, chatID string) (model.Chat, error) {
	defer logger.DeferLogDuration("pg.GetChat", time.Now())()
	var c model.Chat
	row := st.pool.QueryRow(ctx,
		`SELECT `+chatCols+` FROM chats WHERE id = $1`, chatID,
	)
	if err := scanChat(row, &c); err != nil {
		return model.Chat{}, mapErr("pg.GetChat", err)
	}
	return c, nil
}
