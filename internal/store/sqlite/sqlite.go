// Package sqlite persists keyword tables and plugin state in SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	_ "modernc.org/sqlite"

	"github.com/mikann-OMO/bot/internal/keyword"
	"github.com/mikann-OMO/bot/internal/store"
	"github.com/mikann-OMO/bot/internal/store/migrations"
)

// Store is a SQLite-backed store.Store.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path and applies migrations.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	m, err := migrations.NewSQLite(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := migrations.Up(m); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// DB exposes the handle for migration commands.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) LoadKeywords(ctx context.Context) (keyword.State, error) {
	var st keyword.State

	rows, err := s.db.QueryContext(ctx,
		`SELECT table_kind, position, pattern, reply FROM keywords ORDER BY table_kind, position`)
	if err != nil {
		return st, fmt.Errorf("query keywords: %w", err)
	}
	for rows.Next() {
		var r store.Row
		if err := rows.Scan(&r.Table, &r.Position, &r.Pattern, &r.Reply); err != nil {
			rows.Close()
			return st, fmt.Errorf("scan keyword: %w", err)
		}
		store.AppendRow(&st, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return st, err
	}

	groupsSet := false
	settings, err := s.db.QueryContext(ctx, `SELECT name, value FROM keyword_settings`)
	if err != nil {
		return st, fmt.Errorf("query settings: %w", err)
	}
	for settings.Next() {
		var name, value string
		if err := settings.Scan(&name, &value); err != nil {
			settings.Close()
			return st, fmt.Errorf("scan setting: %w", err)
		}
		store.ApplySetting(&st, name, value, &groupsSet)
	}
	settings.Close()

	if !groupsSet {
		return st, nil
	}
	groups, err := s.db.QueryContext(ctx, `SELECT group_id FROM keyword_groups ORDER BY rowid`)
	if err != nil {
		return st, fmt.Errorf("query groups: %w", err)
	}
	defer groups.Close()
	st.EnableGroups = []string{}
	for groups.Next() {
		var id string
		if err := groups.Scan(&id); err != nil {
			return st, fmt.Errorf("scan group: %w", err)
		}
		st.EnableGroups = append(st.EnableGroups, id)
	}
	return st, groups.Err()
}

// SaveKeywords replaces all keyword rows, groups and settings in one transaction.
func (s *Store) SaveKeywords(ctx context.Context, st keyword.State) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM keywords`); err != nil {
		return fmt.Errorf("clear keywords: %w", err)
	}
	for _, r := range store.Rows(st) {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO keywords (table_kind, position, pattern, reply) VALUES (?, ?, ?, ?)`,
			r.Table, r.Position, r.Pattern, r.Reply); err != nil {
			return fmt.Errorf("insert keyword %q: %w", r.Pattern, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM keyword_groups`); err != nil {
		return fmt.Errorf("clear groups: %w", err)
	}
	for _, id := range st.EnableGroups {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO keyword_groups (group_id) VALUES (?)`, id); err != nil {
			return fmt.Errorf("insert group %s: %w", id, err)
		}
	}

	settings := map[string]string{
		store.SettingCooldownMS: strconv.FormatInt(st.CooldownTime, 10),
		store.SettingGroupsSet:  "1",
	}
	for name, value := range settings {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO keyword_settings (name, value) VALUES (?, ?)
			 ON CONFLICT (name) DO UPDATE SET value = excluded.value`, name, value); err != nil {
			return fmt.Errorf("save setting %s: %w", name, err)
		}
	}
	return tx.Commit()
}

func (s *Store) LoadPlugins(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, enabled FROM plugin_state`)
	if err != nil {
		return nil, fmt.Errorf("query plugins: %w", err)
	}
	defer rows.Close()
	var out map[string]bool
	for rows.Next() {
		var name string
		var enabled bool
		if err := rows.Scan(&name, &enabled); err != nil {
			return nil, fmt.Errorf("scan plugin: %w", err)
		}
		if out == nil {
			out = map[string]bool{}
		}
		out[name] = enabled
	}
	return out, rows.Err()
}

func (s *Store) SavePlugins(ctx context.Context, states map[string]bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()
	for name, enabled := range states {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO plugin_state (name, enabled) VALUES (?, ?)
			 ON CONFLICT (name) DO UPDATE SET enabled = excluded.enabled`, name, enabled); err != nil {
			return fmt.Errorf("save plugin %s: %w", name, err)
		}
	}
	return tx.Commit()
}
