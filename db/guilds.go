package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/onnwee/livewatch/guild"
)

// GuildStore keeps one JSONB row per guild in guild_configs.
type GuildStore struct {
	db *sql.DB
}

// NewGuildStore returns a guild.Store backed by db.
func NewGuildStore(db *sql.DB) *GuildStore { return &GuildStore{db: db} }

func (s *GuildStore) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT guild_id FROM guild_configs ORDER BY guild_id`)
	if err != nil {
		return nil, fmt.Errorf("list guilds: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan guild id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *GuildStore) Get(ctx context.Context, id string) (guild.Config, error) {
	var name string
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT name, data FROM guild_configs WHERE guild_id=$1`, id).Scan(&name, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return guild.Default(id), nil
	}
	if err != nil {
		return guild.Config{}, fmt.Errorf("get guild %s: %w", id, err)
	}
	var cfg guild.Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return guild.Config{}, fmt.Errorf("decode guild %s: %w", id, err)
	}
	cfg.ID = id
	cfg.Name = name
	cfg.Normalize()
	return cfg, nil
}

func (s *GuildStore) Put(ctx context.Context, cfg guild.Config) error {
	cfg.Normalize()
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode guild %s: %w", cfg.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO guild_configs (guild_id, name, data, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (guild_id) DO UPDATE SET name=EXCLUDED.name, data=EXCLUDED.data, updated_at=NOW()`,
		cfg.ID, cfg.Name, data)
	if err != nil {
		return fmt.Errorf("put guild %s: %w", cfg.ID, err)
	}
	return nil
}

var _ guild.Store = (*GuildStore)(nil)
