// Package pg persists keyword tables and plugin state in Postgres.
package pg

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mikann-OMO/bot/internal/keyword"
	"github.com/mikann-OMO/bot/internal/store"
	"github.com/mikann-OMO/bot/internal/store/migrations"
)

// Store is a Postgres-backed store.Store.
type Store struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

// Open connects to dsn, pings the server and applies migrations.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	m, err := migrations.NewPostgres(dsn)
	if err != nil {
		pool.Close()
		return nil, err
	}
	defer m.Close()
	if err := migrations.Up(m); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) LoadKeywords(ctx context.Context) (keyword.State, error) {
	var st keyword.State

	rows, err := s.pool.Query(ctx,
		`SELECT table_kind, position, pattern, reply FROM keywords ORDER BY table_kind, position`)
	if err != nil {
		return st, fmt.Errorf("query keywords: %w", err)
	}
	var r store.Row
	_, err = pgx.ForEachRow(rows, []any{&r.Table, &r.Position, &r.Pattern, &r.Reply}, func() error {
		store.AppendRow(&st, r)
		return nil
	})
	if err != nil {
		return st, fmt.Errorf("scan keywords: %w", err)
	}

	groupsSet := false
	rows, err = s.pool.Query(ctx, `SELECT name, value FROM keyword_settings`)
	if err != nil {
		return st, fmt.Errorf("query settings: %w", err)
	}
	var name, value string
	_, err = pgx.ForEachRow(rows, []any{&name, &value}, func() error {
		store.ApplySetting(&st, name, value, &groupsSet)
		return nil
	})
	if err != nil {
		return st, fmt.Errorf("scan settings: %w", err)
	}
	if !groupsSet {
		return st, nil
	}

	rows, err = s.pool.Query(ctx, `SELECT group_id FROM keyword_groups ORDER BY group_id`)
	if err != nil {
		return st, fmt.Errorf("query groups: %w", err)
	}
	groups, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return st, fmt.Errorf("scan groups: %w", err)
	}
	st.EnableGroups = append([]string{}, groups...)
	return st, nil
}

// SaveKeywords replaces all keyword rows, groups and settings in one transaction.
func (s *Store) SaveKeywords(ctx context.Context, st keyword.State) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		batch.Queue(`DELETE FROM keywords`)
		for _, r := range store.Rows(st) {
			batch.Queue(`INSERT INTO keywords (table_kind, position, pattern, reply) VALUES ($1, $2, $3, $4)`,
				r.Table, r.Position, r.Pattern, r.Reply)
		}
		batch.Queue(`DELETE FROM keyword_groups`)
		for _, id := range st.EnableGroups {
			batch.Queue(`INSERT INTO keyword_groups (group_id) VALUES ($1) ON CONFLICT DO NOTHING`, id)
		}
		for name, value := range map[string]string{
			store.SettingCooldownMS: strconv.FormatInt(st.CooldownTime, 10),
			store.SettingGroupsSet:  "1",
		} {
			batch.Queue(`INSERT INTO keyword_settings (name, value) VALUES ($1, $2)
				ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value`, name, value)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("save keywords: %w", err)
		}
		return nil
	})
}

func (s *Store) LoadPlugins(ctx context.Context) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx, `SELECT name, enabled FROM plugin_state`)
	if err != nil {
		return nil, fmt.Errorf("query plugins: %w", err)
	}
	var out map[string]bool
	var name string
	var enabled bool
	_, err = pgx.ForEachRow(rows, []any{&name, &enabled}, func() error {
		if out == nil {
			out = map[string]bool{}
		}
		out[name] = enabled
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan plugins: %w", err)
	}
	return out, nil
}

func (s *Store) SavePlugins(ctx context.Context, states map[string]bool) error {
	batch := &pgx.Batch{}
	for name, enabled := range states {
		batch.Queue(`INSERT INTO plugin_state (name, enabled) VALUES ($1, $2)
			ON CONFLICT (name) DO UPDATE SET enabled = EXCLUDED.enabled, updated_at = now()`, name, enabled)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("save plugins: %w", err)
	}
	return nil
}
