package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/echocast/internal/models"
	"github.com/lalith-99/echocast/internal/repository"
)

var _ repository.MessageRepository = (*MessageStore)(nil)

// MessageStore is the Postgres message cache. It survives restarts, which
// the in-memory cache does not; reconciliation still works the same way
// against it because deduplication is the table's unique id.
type MessageStore struct {
	pool *pgxpool.Pool
}

func NewMessageStore(pool *pgxpool.Pool) *MessageStore {
	return &MessageStore{pool: pool}
}

func (s *MessageStore) Ingest(ctx context.Context, msg *models.Message) (bool, error) {
	// ON CONFLICT DO NOTHING makes check-and-insert one statement: a
	// duplicate id returns no row instead of an error.
	query := `
		INSERT INTO channel_messages (id, channel_id, sender_id, content, sent_at, delivered)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
		RETURNING seq`

	var seq int64
	err := s.pool.QueryRow(ctx, query,
		msg.ID,
		msg.ChannelID,
		msg.SenderID,
		msg.Content,
		msg.Timestamp,
		msg.Delivered,
	).Scan(&seq)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert message: %w", err)
	}

	msg.Seq = seq
	return true, nil
}

func (s *MessageStore) ListByChannel(ctx context.Context, channelID string, limit int) ([]models.Message, error) {
	query := `
		SELECT id, channel_id, sender_id, content, sent_at, delivered, seq
		FROM channel_messages
		WHERE channel_id = $1
		ORDER BY sent_at DESC, seq DESC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, channelID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var msg models.Message
		if err := rows.Scan(
			&msg.ID,
			&msg.ChannelID,
			&msg.SenderID,
			&msg.Content,
			&msg.Timestamp,
			&msg.Delivered,
			&msg.Seq,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Timestamp = msg.Timestamp.UTC()
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return messages, nil
}

func (s *MessageStore) CountByChannel(ctx context.Context, channelID string) (int, error) {
	return s.count(ctx, `SELECT count(*) FROM channel_messages WHERE channel_id = $1`, channelID)
}

func (s *MessageStore) CountBySender(ctx context.Context, senderID string) (int, error) {
	return s.count(ctx, `SELECT count(*) FROM channel_messages WHERE sender_id = $1`, senderID)
}

func (s *MessageStore) Count(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT count(*) FROM channel_messages`)
}

func (s *MessageStore) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

// Reset empties the cache. The seq sequence keeps counting.
func (s *MessageStore) Reset(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `TRUNCATE channel_messages`); err != nil {
		return fmt.Errorf("truncate messages: %w", err)
	}
	return nil
}
