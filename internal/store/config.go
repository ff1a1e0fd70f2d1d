package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/triage-ai/constitutional/internal/engine"
)

// DefaultConfigName is the engine_config row a single deployment reads.
const DefaultConfigName = "default"

// StoredConfig is a row in the engine_config table.
type StoredConfig struct {
	Name      string
	Config    engine.Config
	CreatedAt time.Time
	UpdatedAt time.Time
}

// GetConfig returns the persisted engine configuration, or nil if none was saved.
func (s *Store) GetConfig(ctx context.Context, name string) (*StoredConfig, error) {
	var (
		c   StoredConfig
		raw []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT name, config, created_at, updated_at
		FROM engine_config WHERE name = $1`, name,
	).Scan(&c.Name, &raw, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetConfig: %w", err)
	}
	return decodeStoredConfig(&c, raw, "GetConfig")
}

// SaveConfig upserts the full engine configuration.
func (s *Store) SaveConfig(ctx context.Context, name string, cfg engine.Config) (*StoredConfig, error) {
	body, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("SaveConfig: %w", err)
	}

	var (
		c   StoredConfig
		raw []byte
	)
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO engine_config (name, config)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET
			config     = EXCLUDED.config,
			updated_at = now()
		RETURNING name, config, created_at, updated_at`,
		name, body,
	).Scan(&c.Name, &raw, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("SaveConfig: %w", err)
	}
	return decodeStoredConfig(&c, raw, "SaveConfig")
}

// PatchConfig merges the set fields of p into the stored document. Returns
// nil if no configuration was saved yet.
func (s *Store) PatchConfig(ctx context.Context, name string, p engine.PartialConfig) (*StoredConfig, error) {
	patch, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("PatchConfig: %w", err)
	}

	var (
		c   StoredConfig
		raw []byte
	)
	err = s.db.QueryRowContext(ctx, `
		UPDATE engine_config SET
			config     = config || $2::jsonb,
			updated_at = now()
		WHERE name = $1
		RETURNING name, config, created_at, updated_at`,
		name, patch,
	).Scan(&c.Name, &raw, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("PatchConfig: %w", err)
	}
	return decodeStoredConfig(&c, raw, "PatchConfig")
}

// decodeStoredConfig layers the stored document over the defaults, so
// fields added after the row was written keep their default values.
func decodeStoredConfig(c *StoredConfig, raw []byte, op string) (*StoredConfig, error) {
	c.Config = engine.DefaultConfig()
	if err := json.Unmarshal(raw, &c.Config); err != nil {
		return nil, fmt.Errorf("%s: decode config: %w", op, err)
	}
	return c, nil
}
