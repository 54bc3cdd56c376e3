package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/mikann-OMO/bot/internal/config"
	"github.com/mikann-OMO/bot/internal/keyword"
	"github.com/mikann-OMO/bot/internal/store"
	"github.com/mikann-OMO/bot/internal/store/file"
	"github.com/mikann-OMO/bot/internal/store/pg"
	"github.com/mikann-OMO/bot/internal/store/sqlite"
)

// openStore opens the configured persistence backend. The returned
// *file.Store is non-nil only for the file backend, whose directory is
// watched for external edits.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, *file.Store, error) {
	switch cfg.Storage.Backend {
	case "", store.BackendFile:
		fs := file.New(cfg.KeywordDataDir())
		slog.Info("using file store", "dir", fs.Dir())
		return fs, fs, nil

	case store.BackendSQLite:
		path := sqlitePath(cfg)
		st, err := sqlite.Open(path)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		slog.Info("using sqlite store", "path", path)
		return st, nil, nil

	case store.BackendPostgres:
		st, err := pg.Open(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres store: %w", err)
		}
		slog.Info("using postgres store")
		return st, nil, nil
	}
	return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
}

func sqlitePath(cfg *config.Config) string {
	if cfg.Storage.SQLitePath != "" {
		return config.ExpandHome(cfg.Storage.SQLitePath)
	}
	return filepath.Join(config.ExpandHome(cfg.Storage.DataDir), "bot.db")
}

// loadKeywordState reads the persisted tables, filling in the configured
// group scope when the backend has never stored one.
func loadKeywordState(ctx context.Context, st keyword.Loader, cfg *config.Config) (keyword.State, error) {
	state, err := st.LoadKeywords(ctx)
	if err != nil {
		return keyword.State{}, fmt.Errorf("load keywords: %w", err)
	}
	if state.EnableGroups == nil {
		state.EnableGroups = append([]string(nil), cfg.Keyword.EnableGroups...)
	}
	return state, nil
}
