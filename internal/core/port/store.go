package port

import (
	"context"

	"github.com/berfenger/sib2mqtt/internal/core/domain"
)

// EntryStore persists config entries. Save replaces the whole collection.
type EntryStore interface {
	Load(ctx context.Context) ([]domain.ConfigurationEntry, error)
	Save(ctx context.Context, entries []domain.ConfigurationEntry) error
	Close() error
}
