package port

import (
	"context"

	"github.com/berfenger/sib2mqtt/internal/core/domain"
)

type AddEntitiesFunc func(ctx context.Context, entities []domain.Entity, updateBeforeAdd bool) error

type UpdateListener func(ctx context.Context, entry domain.ConfigurationEntry) error

// EntryHost is the part of the host framework an integration calls back into.
type EntryHost interface {
	ForwardEntrySetups(ctx context.Context, entry domain.ConfigurationEntry, platforms []string) error
	ForwardEntryUnload(ctx context.Context, entry domain.ConfigurationEntry, platform string) (bool, error)
	ReloadEntry(ctx context.Context, entryId string) error
	UpdateEntry(ctx context.Context, entryId string, options domain.EntryOptions) (domain.ConfigurationEntry, error)
	AddUpdateListener(entryId string, listener UpdateListener) (remove func())
	UniqueIdConfigured(uniqueId string) bool
}

// Integration is what the host drives for every config entry of its domain.
type Integration interface {
	Domain() string
	SetupEntry(ctx context.Context, host EntryHost, entry domain.ConfigurationEntry) error
	UnloadEntry(ctx context.Context, host EntryHost, entry domain.ConfigurationEntry) (bool, error)
	SetupPlatform(ctx context.Context, platform string, entry domain.ConfigurationEntry, addEntities AddEntitiesFunc) error
	NewConfigFlow(host EntryHost) Flow
	NewOptionsFlow(entry domain.ConfigurationEntry) Flow
}

// Flow is a multi-step form. Init shows the first step, Step submits the
// current one and returns the next result.
type Flow interface {
	Handler() string
	Init(ctx context.Context) (domain.FlowResult, error)
	Step(ctx context.Context, input map[string]any) (domain.FlowResult, error)
}

type EntityPlatform interface {
	AddEntities(ctx context.Context, entry domain.ConfigurationEntry, platform string, entities []domain.Entity, updateBeforeAdd bool) error
	RemoveEntities(ctx context.Context, entryId string) error
	States(ctx context.Context, entryId string) ([]domain.EntityState, error)
}
