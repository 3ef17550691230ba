package storage

import (
	"fmt"

	"mercator-hq/tether/pkg/audit"
	"mercator-hq/tether/pkg/config"
)

// Open creates the storage selected by cfg.
func Open(cfg config.AuditConfig) (audit.Storage, error) {
	switch cfg.Backend {
	case "memory":
		return NewMemoryStorage(), nil
	case "sqlite":
		sc := DefaultSQLiteConfig()
		sc.Path = cfg.Path
		return NewSQLiteStorage(sc)
	default:
		return nil, fmt.Errorf("unknown audit backend %q", cfg.Backend)
	}
}
