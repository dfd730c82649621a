package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/berfenger/sib2mqtt/internal/core/domain"
	"github.com/berfenger/sib2mqtt/internal/core/entity"
	"github.com/berfenger/sib2mqtt/internal/core/port"

	"go.uber.org/zap"
)

type entryData struct {
	sensors        []domain.SensorDescriptor
	binarySensors  []domain.Entity
	removeListener func()
}

// Integration ties config entries to their binary sensor platform. It owns
// one state record per loaded entry, created on setup and dropped on unload.
type Integration struct {
	mu     sync.Mutex
	data   map[string]*entryData
	logger *zap.Logger
}

func NewIntegration(logger *zap.Logger) *Integration {
	return &Integration{
		data:   make(map[string]*entryData),
		logger: logger.With(zap.String("integration", domain.DOMAIN)),
	}
}

func (i *Integration) Domain() string {
	return domain.DOMAIN
}

func (i *Integration) SetupEntry(ctx context.Context, host port.EntryHost, entry domain.ConfigurationEntry) error {
	logger := i.logger.With(zap.String("entry_id", entry.EntryId))

	i.mu.Lock()
	if _, ok := i.data[entry.EntryId]; ok {
		i.mu.Unlock()
		return fmt.Errorf("entry %s is already set up", entry.EntryId)
	}
	i.data[entry.EntryId] = &entryData{
		sensors: domain.CloneSensors(entry.Sensors),
	}
	i.mu.Unlock()

	logger.Debug("setup entry", zap.Any("sensors", entry.Sensors))

	if err := host.ForwardEntrySetups(ctx, entry, domain.Platforms); err != nil {
		i.drop(entry.EntryId)
		return fmt.Errorf("forward entry setups: %w", err)
	}

	remove := host.AddUpdateListener(entry.EntryId, func(ctx context.Context, updated domain.ConfigurationEntry) error {
		return i.optionsUpdateListener(ctx, host, updated)
	})

	i.mu.Lock()
	if d, ok := i.data[entry.EntryId]; ok {
		d.removeListener = remove
	}
	i.mu.Unlock()
	return nil
}

// UnloadEntry unloads the platform of an entry. Unloading an entry that is not
// loaded fails with ErrUnregistrationConflict.
func (i *Integration) UnloadEntry(ctx context.Context, host port.EntryHost, entry domain.ConfigurationEntry) (bool, error) {
	i.mu.Lock()
	d, ok := i.data[entry.EntryId]
	i.mu.Unlock()
	if !ok {
		return false, fmt.Errorf("unload entry %s: %w", entry.EntryId, domain.ErrUnregistrationConflict)
	}

	unloadOk, err := host.ForwardEntryUnload(ctx, entry, domain.PLATFORM_BINARY_SENSOR)
	if err != nil {
		return false, fmt.Errorf("unload entry %s: %w", entry.EntryId, err)
	}
	if unloadOk {
		if d.removeListener != nil {
			d.removeListener()
		}
		i.drop(entry.EntryId)
		i.logger.Debug("entry unloaded", zap.String("entry_id", entry.EntryId))
	}
	return unloadOk, nil
}

func (i *Integration) SetupPlatform(ctx context.Context, platform string, entry domain.ConfigurationEntry, addEntities port.AddEntitiesFunc) error {
	if platform != domain.PLATFORM_BINARY_SENSOR {
		return fmt.Errorf("%s: %w", platform, domain.ErrUnknownPlatform)
	}

	entities := make([]domain.Entity, 0, len(entry.Sensors))
	for _, sensor := range entry.Sensors {
		entities = append(entities, entity.NewBinarySensor(entry.EntryId, sensor))
	}

	i.mu.Lock()
	if d, ok := i.data[entry.EntryId]; ok {
		d.binarySensors = entities
	}
	i.mu.Unlock()

	i.logger.Debug("binary_sensor setup", zap.String("entry_id", entry.EntryId), zap.Int("entities", len(entities)))
	return addEntities(ctx, entities, true)
}

func (i *Integration) NewConfigFlow(host port.EntryHost) port.Flow {
	return NewConfigFlow(host.UniqueIdConfigured, i.logger)
}

func (i *Integration) NewOptionsFlow(entry domain.ConfigurationEntry) port.Flow {
	return NewOptionsFlow(entry, i.logger)
}

// Loaded reports whether an entry currently has a state record.
func (i *Integration) Loaded(entryId string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	_, ok := i.data[entryId]
	return ok
}

// Entities returns the entities built for an entry at its last setup.
func (i *Integration) Entities(entryId string) []domain.Entity {
	i.mu.Lock()
	defer i.mu.Unlock()
	if d, ok := i.data[entryId]; ok {
		out := make([]domain.Entity, len(d.binarySensors))
		copy(out, d.binarySensors)
		return out
	}
	return nil
}

// Sensors returns the sensor list an entry was set up with.
func (i *Integration) Sensors(entryId string) []domain.SensorDescriptor {
	i.mu.Lock()
	defer i.mu.Unlock()
	if d, ok := i.data[entryId]; ok {
		return domain.CloneSensors(d.sensors)
	}
	return nil
}

// optionsUpdateListener reloads the entry; no incremental diff is attempted.
func (i *Integration) optionsUpdateListener(ctx context.Context, host port.EntryHost, entry domain.ConfigurationEntry) error {
	i.logger.Debug("options updated, reloading", zap.String("entry_id", entry.EntryId), zap.Int("sensors", len(entry.Sensors)))
	return host.ReloadEntry(ctx, entry.EntryId)
}

func (i *Integration) drop(entryId string) {
	i.mu.Lock()
	delete(i.data, entryId)
	i.mu.Unlock()
}

var _ port.Integration = (*Integration)(nil)
