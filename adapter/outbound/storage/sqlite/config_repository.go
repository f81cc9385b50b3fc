package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strconv"

	"github.com/zquestz/nexus/domain/port/outbound"
)

const (
	keyServerName          = "server_name"
	keyServerDescription   = "server_description"
	keyServerImage         = "server_image"
	keyMaxConnectionsPerIP = "max_connections_per_ip"
	keyChatEnabled         = "chat_enabled"

	defaultServerName          = "Nexus"
	defaultMaxConnectionsPerIP = 5
)

// ConfigRepository reads and writes the config key/value table. Absent keys
// resolve to defaults so adding a setting never needs a schema change.
type ConfigRepository struct {
	db *sql.DB
}

func NewConfigRepository(db *DB) *ConfigRepository {
	return &ConfigRepository{db: db.SQL()}
}

var _ outbound.ConfigRepository = (*ConfigRepository)(nil)

func (r *ConfigRepository) ServerName(ctx context.Context) (string, error) {
	return r.get(ctx, keyServerName, defaultServerName)
}

func (r *ConfigRepository) SetServerName(ctx context.Context, name string) error {
	return r.set(ctx, keyServerName, name)
}

func (r *ConfigRepository) ServerDescription(ctx context.Context) (string, error) {
	return r.get(ctx, keyServerDescription, "")
}

func (r *ConfigRepository) SetServerDescription(ctx context.Context, description string) error {
	return r.set(ctx, keyServerDescription, description)
}

func (r *ConfigRepository) ServerImage(ctx context.Context) (string, error) {
	return r.get(ctx, keyServerImage, "")
}

func (r *ConfigRepository) SetServerImage(ctx context.Context, image string) error {
	return r.set(ctx, keyServerImage, image)
}

func (r *ConfigRepository) MaxConnectionsPerIP(ctx context.Context) (uint32, error) {
	raw, err := r.get(ctx, keyMaxConnectionsPerIP, "")
	if err != nil {
		return 0, err
	}
	if raw == "" {
		return defaultMaxConnectionsPerIP, nil
	}
	limit, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || limit == 0 {
		// A corrupt value must not turn the gate off.
		return defaultMaxConnectionsPerIP, nil
	}
	return uint32(limit), nil
}

func (r *ConfigRepository) SetMaxConnectionsPerIP(ctx context.Context, limit uint32) error {
	return r.set(ctx, keyMaxConnectionsPerIP, strconv.FormatUint(uint64(limit), 10))
}

func (r *ConfigRepository) ChatEnabled(ctx context.Context) (bool, error) {
	raw, err := r.get(ctx, keyChatEnabled, "true")
	if err != nil {
		return false, err
	}
	return raw != "false", nil
}

func (r *ConfigRepository) SetChatEnabled(ctx context.Context, enabled bool) error {
	return r.set(ctx, keyChatEnabled, strconv.FormatBool(enabled))
}

func (r *ConfigRepository) get(ctx context.Context, key, fallback string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return fallback, nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func (r *ConfigRepository) set(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO config (key, value) VALUES (?, ?)", key, value)
	return err
}
