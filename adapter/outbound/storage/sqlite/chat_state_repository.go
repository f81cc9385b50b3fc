package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/zquestz/nexus/domain/port/outbound"
)

const (
	keyTopic      = "topic"
	keyTopicSetBy = "topic_set_by"
)

// ChatStateRepository persists live chat state in the chat_state table,
// kept separate from server configuration.
type ChatStateRepository struct {
	db *sql.DB
}

func NewChatStateRepository(db *DB) *ChatStateRepository {
	return &ChatStateRepository{db: db.SQL()}
}

var _ outbound.ChatStateRepository = (*ChatStateRepository)(nil)

func (r *ChatStateRepository) Topic(ctx context.Context) (string, string, error) {
	topic, err := r.get(ctx, keyTopic)
	if err != nil {
		return "", "", err
	}
	setBy, err := r.get(ctx, keyTopicSetBy)
	if err != nil {
		return "", "", err
	}
	return topic, setBy, nil
}

func (r *ChatStateRepository) SetTopic(ctx context.Context, topic, setBy string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const upsert = "INSERT OR REPLACE INTO chat_state (key, value) VALUES (?, ?)"
	if _, err := tx.ExecContext(ctx, upsert, keyTopic, topic); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, upsert, keyTopicSetBy, setBy); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *ChatStateRepository) get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM chat_state WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}
