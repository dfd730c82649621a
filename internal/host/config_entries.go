package host

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/berfenger/sib2mqtt/internal/core/domain"
	"github.com/berfenger/sib2mqtt/internal/core/port"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ConfigEntries owns the configured entries of the integration, keeps them
// persisted and drives their setup and unload.
//
// opMu serializes lifecycle operations. mu only guards the maps and is the
// only lock taken by the callbacks the integration makes into the host.
type ConfigEntries struct {
	opMu sync.Mutex

	mu           sync.Mutex
	entries      []domain.ConfigurationEntry
	loaded       map[string]bool
	listeners    map[string]map[uint64]port.UpdateListener
	nextListener uint64
	onRemove     []func(entryId string)

	store       port.EntryStore
	integration port.Integration
	platform    port.EntityPlatform
	logger      *zap.Logger
}

func NewConfigEntries(store port.EntryStore, integration port.Integration, platform port.EntityPlatform, logger *zap.Logger) *ConfigEntries {
	return &ConfigEntries{
		loaded:      make(map[string]bool),
		listeners:   make(map[string]map[uint64]port.UpdateListener),
		store:       store,
		integration: integration,
		platform:    platform,
		logger:      logger.With(zap.String("component", "config_entries")),
	}
}

// Load reads the persisted entries and sets each one up. An entry that fails
// to set up stays configured but not loaded.
func (c *ConfigEntries) Load(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	entries, err := c.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config entries: %w", err)
	}
	c.mu.Lock()
	c.entries = entries
	c.mu.Unlock()

	for _, entry := range entries {
		if err := c.setupEntry(ctx, entry); err != nil {
			c.logger.Error("entry setup failed", zap.String("entry_id", entry.EntryId), zap.Error(err))
		}
	}
	return nil
}

// CreateEntry stores a new entry produced by a config flow and sets it up.
func (c *ConfigEntries) CreateEntry(ctx context.Context, entry domain.ConfigurationEntry) (domain.ConfigurationEntry, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if c.UniqueIdConfigured(entry.UniqueId) {
		return domain.ConfigurationEntry{}, fmt.Errorf("%s: %w", entry.UniqueId, domain.ErrDuplicateInterface)
	}

	entry = entry.Clone()
	entry.EntryId = uuid.NewString()
	if entry.Domain == "" {
		entry.Domain = c.integration.Domain()
	}

	c.mu.Lock()
	c.entries = append(c.entries, entry)
	c.mu.Unlock()

	if err := c.persist(ctx); err != nil {
		c.mu.Lock()
		c.entries = removeEntry(c.entries, entry.EntryId)
		c.mu.Unlock()
		return domain.ConfigurationEntry{}, err
	}
	c.logger.Info("entry created", zap.String("entry_id", entry.EntryId), zap.String("title", entry.Title))

	if err := c.setupEntry(ctx, entry); err != nil {
		c.logger.Error("entry setup failed", zap.String("entry_id", entry.EntryId), zap.Error(err))
	}
	return entry.Clone(), nil
}

// RemoveEntry unloads an entry if needed and deletes it.
func (c *ConfigEntries) RemoveEntry(ctx context.Context, entryId string) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	entry, ok := c.Get(entryId)
	if !ok {
		return fmt.Errorf("%s: %w", entryId, domain.ErrEntryNotFound)
	}
	if c.Loaded(entryId) {
		if _, err := c.unloadEntry(ctx, entry); err != nil {
			return err
		}
	}

	c.mu.Lock()
	c.entries = removeEntry(c.entries, entryId)
	delete(c.listeners, entryId)
	onRemove := append([]func(string){}, c.onRemove...)
	c.mu.Unlock()

	for _, f := range onRemove {
		f(entryId)
	}
	c.logger.Info("entry removed", zap.String("entry_id", entryId))
	return c.persist(ctx)
}

// UnloadEntry unloads an entry without deleting it. Unloading an entry that is
// not loaded fails with ErrUnregistrationConflict.
func (c *ConfigEntries) UnloadEntry(ctx context.Context, entryId string) (bool, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	entry, ok := c.Get(entryId)
	if !ok {
		return false, fmt.Errorf("%s: %w", entryId, domain.ErrEntryNotFound)
	}
	return c.unloadEntry(ctx, entry)
}

// SetupEntry loads an entry that is configured but not loaded.
func (c *ConfigEntries) SetupEntry(ctx context.Context, entryId string) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	entry, ok := c.Get(entryId)
	if !ok {
		return fmt.Errorf("%s: %w", entryId, domain.ErrEntryNotFound)
	}
	return c.setupEntry(ctx, entry)
}

func (c *ConfigEntries) ReloadEntry(ctx context.Context, entryId string) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	entry, ok := c.Get(entryId)
	if !ok {
		return fmt.Errorf("%s: %w", entryId, domain.ErrEntryNotFound)
	}
	if c.Loaded(entryId) {
		unloaded, err := c.unloadEntry(ctx, entry)
		if err != nil {
			return err
		}
		if !unloaded {
			return fmt.Errorf("reload %s: unload refused", entryId)
		}
	}
	c.logger.Debug("reloading entry", zap.String("entry_id", entryId))
	return c.setupEntry(ctx, entry)
}

// UpdateEntry replaces the options of an entry, persists them, then runs the
// update listeners of the entry once the lifecycle lock is released.
func (c *ConfigEntries) UpdateEntry(ctx context.Context, entryId string, options domain.EntryOptions) (domain.ConfigurationEntry, error) {
	c.opMu.Lock()

	c.mu.Lock()
	idx := c.indexOf(entryId)
	if idx < 0 {
		c.mu.Unlock()
		c.opMu.Unlock()
		return domain.ConfigurationEntry{}, fmt.Errorf("%s: %w", entryId, domain.ErrEntryNotFound)
	}
	previous := c.entries[idx].Sensors
	c.entries[idx].Sensors = domain.CloneSensors(options.Sensors)
	updated := c.entries[idx].Clone()
	listeners := make([]port.UpdateListener, 0, len(c.listeners[entryId]))
	for _, listener := range c.listeners[entryId] {
		listeners = append(listeners, listener)
	}
	c.mu.Unlock()

	if err := c.persist(ctx); err != nil {
		c.mu.Lock()
		if idx := c.indexOf(entryId); idx >= 0 {
			c.entries[idx].Sensors = previous
		}
		c.mu.Unlock()
		c.opMu.Unlock()
		return domain.ConfigurationEntry{}, err
	}
	c.opMu.Unlock()

	c.logger.Info("entry updated", zap.String("entry_id", entryId), zap.Int("sensors", len(updated.Sensors)))

	var errs []error
	for _, listener := range listeners {
		if err := listener(ctx, updated.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return updated, errors.Join(errs...)
}

func (c *ConfigEntries) AddUpdateListener(entryId string, listener port.UpdateListener) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextListener++
	id := c.nextListener
	if c.listeners[entryId] == nil {
		c.listeners[entryId] = make(map[uint64]port.UpdateListener)
	}
	c.listeners[entryId][id] = listener

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners[entryId], id)
	}
}

// AddRemoveListener registers f to run after an entry is removed.
func (c *ConfigEntries) AddRemoveListener(f func(entryId string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onRemove = append(c.onRemove, f)
}

func (c *ConfigEntries) ForwardEntrySetups(ctx context.Context, entry domain.ConfigurationEntry, platforms []string) error {
	for _, platform := range platforms {
		err := c.integration.SetupPlatform(ctx, platform, entry, func(ctx context.Context, entities []domain.Entity, updateBeforeAdd bool) error {
			return c.platform.AddEntities(ctx, entry, platform, entities, updateBeforeAdd)
		})
		if err != nil {
			return fmt.Errorf("setup platform %s: %w", platform, err)
		}
	}
	return nil
}

func (c *ConfigEntries) ForwardEntryUnload(ctx context.Context, entry domain.ConfigurationEntry, platform string) (bool, error) {
	if err := c.platform.RemoveEntities(ctx, entry.EntryId); err != nil {
		return false, fmt.Errorf("unload platform %s: %w", platform, err)
	}
	return true, nil
}

func (c *ConfigEntries) UniqueIdConfigured(uniqueId string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		if e.UniqueId == uniqueId {
			return true
		}
	}
	return false
}

func (c *ConfigEntries) Get(entryId string) (domain.ConfigurationEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if idx := c.indexOf(entryId); idx >= 0 {
		return c.entries[idx].Clone(), true
	}
	return domain.ConfigurationEntry{}, false
}

// Entries returns all entries in creation order.
func (c *ConfigEntries) Entries() []domain.ConfigurationEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.ConfigurationEntry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e.Clone())
	}
	return out
}

func (c *ConfigEntries) Loaded(entryId string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loaded[entryId]
}

// Unload unloads every loaded entry, newest first.
func (c *ConfigEntries) Unload(ctx context.Context) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	entries := c.Entries()
	for i := len(entries) - 1; i >= 0; i-- {
		if !c.Loaded(entries[i].EntryId) {
			continue
		}
		if _, err := c.unloadEntry(ctx, entries[i]); err != nil {
			c.logger.Warn("entry unload failed", zap.String("entry_id", entries[i].EntryId), zap.Error(err))
		}
	}
}

func (c *ConfigEntries) setupEntry(ctx context.Context, entry domain.ConfigurationEntry) error {
	if err := c.integration.SetupEntry(ctx, c, entry); err != nil {
		return err
	}
	c.mu.Lock()
	c.loaded[entry.EntryId] = true
	c.mu.Unlock()
	c.logger.Debug("entry loaded", zap.String("entry_id", entry.EntryId))
	return nil
}

func (c *ConfigEntries) unloadEntry(ctx context.Context, entry domain.ConfigurationEntry) (bool, error) {
	ok, err := c.integration.UnloadEntry(ctx, c, entry)
	if err != nil {
		return false, err
	}
	if ok {
		c.mu.Lock()
		delete(c.loaded, entry.EntryId)
		c.mu.Unlock()
	}
	return ok, nil
}

func (c *ConfigEntries) persist(ctx context.Context) error {
	entries := c.Entries()
	if err := c.store.Save(ctx, entries); err != nil {
		return fmt.Errorf("save config entries: %w", err)
	}
	return nil
}

// indexOf must be called with mu held.
func (c *ConfigEntries) indexOf(entryId string) int {
	for i, e := range c.entries {
		if e.EntryId == entryId {
			return i
		}
	}
	return -1
}

func removeEntry(entries []domain.ConfigurationEntry, entryId string) []domain.ConfigurationEntry {
	out := entries[:0]
	for _, e := range entries {
		if e.EntryId != entryId {
			out = append(out, e)
		}
	}
	return out
}

var _ port.EntryHost = (*ConfigEntries)(nil)
