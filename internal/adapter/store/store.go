package store

import (
	"fmt"

	"github.com/berfenger/sib2mqtt/internal/config"
	"github.com/berfenger/sib2mqtt/internal/core/port"
)

const STORAGE_KEY = "core.config_entries"

// FromConfig opens the entry store selected by the storage driver.
func FromConfig(cfg config.StorageConfig) (port.EntryStore, error) {
	switch cfg.Driver {
	case config.STORAGE_DRIVER_FILE:
		return NewFileStore(cfg.Path), nil
	case config.STORAGE_DRIVER_SQLITE:
		return NewSQLiteStore(cfg.Path)
	case config.STORAGE_DRIVER_MEMORY:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
