// Package store defines the persistence backends for keyword tables and
// plugin state.
package store

import (
	"github.com/mikann-OMO/bot/internal/keyword"
	"github.com/mikann-OMO/bot/internal/plugins"
)

// Backend names accepted in storage.backend.
const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Store persists keyword tables and plugin enablement.
type Store interface {
	keyword.Persister
	keyword.Loader
	plugins.Persister
	plugins.Loader
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Backend     string
	DataDir     string // file backend
	SQLitePath  string
	PostgresDSN string
}
