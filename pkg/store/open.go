package store

import (
	"fmt"

	"mercator-hq/tether/pkg/config"
)

// Open creates the backend selected by cfg.
func Open(cfg config.StoreConfig) (Backend, error) {
	switch cfg.Backend {
	case "memory":
		return NewMemoryBackend(), nil
	case "sqlite":
		return NewSQLiteBackendWithConfig(SQLiteBackendConfig{
			DBPath:      cfg.Path,
			BusyTimeout: cfg.BusyTimeout,
		})
	case "file":
		return NewFileBackend(cfg.Path, cfg.Debounce)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}
