package cmd

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/mikann-OMO/bot/internal/config"
	"github.com/mikann-OMO/bot/internal/keyword"
	"github.com/mikann-OMO/bot/internal/schedule"
	"github.com/mikann-OMO/bot/internal/store"
)

func backupDir(cfg *config.Config) string {
	if cfg.Backup.Dir != "" {
		return config.ExpandHome(cfg.Backup.Dir)
	}
	return filepath.Join(cfg.KeywordDataDir(), "backups")
}

// makeBackupJob snapshots the live keyword tables into the backup directory.
func makeBackupJob(cfg *config.Config, svc *keyword.Service) schedule.Job {
	dir := backupDir(cfg)
	keep := cfg.Backup.Keep
	return schedule.Job{
		Name: "keyword-backup",
		Expr: cfg.Backup.Schedule,
		Run: func(_ context.Context) error {
			path, err := store.WriteBackup(dir, svc.State(), time.Now(), keep)
			if err != nil {
				return err
			}
			slog.Info("keyword backup written", "path", path)
			return nil
		},
	}
}
