package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ent0n29/chatrelay/internal/message"
)

// PostgresStore writes presence, delivery status and reactions into the
// chat service's PostgreSQL tables. The schema belongs to the chat service:
//
//	users(id, is_online, last_seen)
//	messages(id, conversation_id, sender_id, receiver_id, content_type,
//	         message_status, reactions jsonb)
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) SetPresence(ctx context.Context, userID string, online bool, lastSeen time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE users SET is_online=$2, last_seen=$3 WHERE id=$1`,
		userID, online, lastSeen.UTC(),
	)
	if err != nil {
		return fmt.Errorf("set presence: %w", err)
	}
	return nil
}

func (s *PostgresStore) LastSeen(ctx context.Context, userID string) (time.Time, bool, error) {
	var lastSeen *time.Time
	err := s.pool.QueryRow(ctx, `SELECT last_seen FROM users WHERE id=$1`, userID).Scan(&lastSeen)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("query last seen: %w", err)
	}
	if lastSeen == nil {
		return time.Time{}, false, nil
	}
	return lastSeen.UTC(), true, nil
}

// SetMessageStatus only moves rows forward; a row already at or past status
// is left untouched.
func (s *PostgresStore) SetMessageStatus(ctx context.Context, ids []string, status message.Status) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE messages SET message_status=$2
		 WHERE id = ANY($1)
		   AND (CASE message_status WHEN 'read' THEN 3 WHEN 'delivered' THEN 2 ELSE 1 END) <
		       (CASE $2::text WHEN 'read' THEN 3 WHEN 'delivered' THEN 2 ELSE 1 END)`,
		ids, string(status),
	)
	if err != nil {
		return fmt.Errorf("set message status: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetReactions(ctx context.Context, messageID string, reactions []message.Reaction) error {
	if reactions == nil {
		reactions = []message.Reaction{}
	}
	raw, err := json.Marshal(reactions)
	if err != nil {
		return fmt.Errorf("encode reactions: %w", err)
	}
	if _, err := s.pool.Exec(ctx, `UPDATE messages SET reactions=$2 WHERE id=$1`, messageID, raw); err != nil {
		return fmt.Errorf("set reactions: %w", err)
	}
	return nil
}

func (s *PostgresStore) LoadMessages(ctx context.Context, ids []string) ([]message.Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, conversation_id, sender_id, receiver_id, content_type, message_status, reactions
		 FROM messages WHERE id = ANY($1)`,
		ids,
	)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	out := make([]message.Message, 0, len(ids))
	for rows.Next() {
		var (
			m            message.Message
			contentType  *string
			status       *string
			rawReactions []byte
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.ReceiverID, &contentType, &status, &rawReactions); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		if contentType != nil {
			m.ContentType = message.ContentType(*contentType)
		}
		m.Status = message.StatusSent
		if status != nil {
			if st, ok := message.ParseStatus(*status); ok {
				m.Status = st
			}
		}
		if len(rawReactions) > 0 {
			if err := json.Unmarshal(rawReactions, &m.Reactions); err != nil {
				return nil, fmt.Errorf("decode reactions for %s: %w", m.ID, err)
			}
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate message rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
