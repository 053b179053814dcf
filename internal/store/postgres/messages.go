package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/MetaFacil/AppConecta/internal/logger"
	"github.com/MetaFacil/AppConecta/internal/model"
)

const messageCols = `id, chat_id, sender_id, conteudo, message_type, media_url, lida, created_at`

func scanMessage(s interface{ Scan(dest ...any) error }, m *model.Message) error {
	return s.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.Conteudo, &m.MessageType, &m.MediaURL, &m.Lida, &m.CreatedAt)
}

// ListByChat returns the chat's messages ascending by (created_at, id) — the
// same total order the reconciler maintains.
func (st *Store) ListByChat(ctx context.Context, chatID string) ([]model.Message, error) {
	defer logger.DeferLogDuration("pg.ListByChat", time.Now())()
	rows, err := st.pool.Query(ctx,
		`SELECT `+messageCols+`
		 FROM messages
		 WHERE chat_id = $1
		 ORDER BY created_at, id`, chatID,
	)
	if err != nil {
		return nil, fmt.Errorf("pg.ListByChat query: %w", err)
	}
	defer rows.Close()

	msgs := make([]model.Message, 0, 64)
	for rows.Next() {
		var m model.Message
		if err := scanMessage(rows, &m); err != nil {
			return nil, fmt.Errorf("pg.ListByChat scan: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pg.ListByChat rows: %w", err)
	}
	return msgs, nil
}

// Insert persists a message; id, created_at and the initial lida are assigned
// by the database. The chat's updated_at moves via trigger.
func (st *Store) Insert(ctx context.Context, ins model.MessageInsert) (model.Message, error) {
	defer logger.DeferLogDuration("pg.InsertMessage", time.Now())()
	var m model.Message
	row := st.pool.QueryRow(ctx,
		`INSERT INTO messages (chat_id, sender_id, conteudo, message_type, media_url)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+messageCols,
		ins.ChatID, ins.SenderID, ins.Conteudo, ins.MessageType, ins.MediaURL,
	)
	if err := scanMessage(row, &m); err != nil {
		return model.Message{}, fmt.Errorf("pg.InsertMessage: %w", err)
	}
	return m, nil
}

// MarkRead flips lida on every unread counterparty message. false→true only;
// redundant calls match zero rows.
func (st *Store) MarkRead(ctx context.Context, chatID, readerID string) error {
	defer logger.DeferLogDuration("pg.MarkRead", time.Now())()
	_, err := st.pool.Exec(ctx,
		`UPDATE messages SET lida = true
		 WHERE chat_id = $1 AND sender_id <> $2 AND lida = false`,
		chatID, readerID,
	)
	if err != nil {
		return fmt.Errorf("pg.MarkRead: %w", err)
	}
	return nil
}
