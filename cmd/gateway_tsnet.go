//go:build tsnet

package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"tailscale.com/tsnet"

	"github.com/mikann-OMO/bot/internal/config"
)

// initTailscale serves handler on the tailnet as well as on the main
// listener. Returns nil when tailscale.hostname is unset.
func initTailscale(ctx context.Context, cfg *config.Config, handler http.Handler) func() {
	tc := cfg.Tailscale
	if tc.Hostname == "" {
		return nil
	}

	dir := config.ExpandHome(tc.StateDir)
	if dir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			base = os.TempDir()
		}
		dir = filepath.Join(base, "tsnet-"+tc.Hostname)
	}

	srv := &tsnet.Server{
		Hostname:  tc.Hostname,
		Dir:       dir,
		AuthKey:   tc.AuthKey,
		Ephemeral: tc.Ephemeral,
		Logf:      func(string, ...any) {},
	}

	ln, err := srv.Listen("tcp", ":80")
	if err != nil {
		slog.Error("tailscale listen failed", "hostname", tc.Hostname, "error", err)
		srv.Close()
		return nil
	}

	httpSrv := &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Warn("tailscale listener stopped", "error", err)
		}
	}()
	slog.Info("admin api listening on tailnet", "hostname", tc.Hostname)

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpSrv.Shutdown(shutdownCtx)
		srv.Close()
	}
}
