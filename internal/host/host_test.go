package host

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	adactor "github.com/berfenger/sib2mqtt/internal/adapter/actor"
	"github.com/berfenger/sib2mqtt/internal/adapter/store"
	coreactor "github.com/berfenger/sib2mqtt/internal/core/actor"
	"github.com/berfenger/sib2mqtt/internal/core/domain"
	"github.com/berfenger/sib2mqtt/internal/core/service"
	"github.com/berfenger/sib2mqtt/internal/util"
	"github.com/berfenger/sib2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// memoryPlatform records entities without running them.
type memoryPlatform struct {
	mu       sync.Mutex
	entities map[string][]domain.Entity
	adds     int
	removes  int
}

func newMemoryPlatform() *memoryPlatform {
	return &memoryPlatform{entities: make(map[string][]domain.Entity)}
}

func (p *memoryPlatform) AddEntities(_ context.Context, entry domain.ConfigurationEntry, _ string, entities []domain.Entity, _ bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entities[entry.EntryId] = entities
	p.adds++
	return nil
}

func (p *memoryPlatform) RemoveEntities(_ context.Context, entryId string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.entities[entryId]; !ok {
		return domain.ErrUnregistrationConflict
	}
	delete(p.entities, entryId)
	p.removes++
	return nil
}

func (p *memoryPlatform) States(_ context.Context, entryId string) ([]domain.EntityState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entities, ok := p.entities[entryId]
	if !ok {
		return nil, domain.ErrEntryNotFound
	}
	states := make([]domain.EntityState, 0, len(entities))
	for _, e := range entities {
		states = append(states, domain.EntityState{UniqueId: e.UniqueId(), Name: e.Name(), IsOn: e.IsOn()})
	}
	return states, nil
}

type testHost struct {
	store    *store.MemoryStore
	platform *memoryPlatform
	entries  *ConfigEntries
	flows    *FlowManager
}

func newTestHost(t *testing.T, persisted ...domain.ConfigurationEntry) *testHost {
	logger := zap.NewNop()
	integration := service.NewIntegration(logger)
	h := &testHost{
		store:    store.NewMemoryStore(persisted...),
		platform: newMemoryPlatform(),
	}
	h.entries = NewConfigEntries(h.store, integration, h.platform, logger)
	h.flows = NewFlowManager(h.entries, integration, time.Hour, logger)
	require.NoError(t, h.entries.Load(context.Background()))
	return h
}

func setupEntry(t *testing.T, flows *FlowManager, iface string) domain.FlowResult {
	ctx := context.Background()
	res, err := flows.StartConfigFlow(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.STEP_USER, res.StepId)

	res, err = flows.Configure(ctx, res.FlowId, map[string]any{"interface": iface, "baud_rate": "500000"})
	require.NoError(t, err)
	return res
}

func addSensors(t *testing.T, flows *FlowManager, entryId string, sensors ...domain.SensorDescriptor) domain.FlowResult {
	ctx := context.Background()
	res, err := flows.StartOptionsFlow(ctx, entryId)
	require.NoError(t, err)
	flowId := res.FlowId
	for _, s := range sensors {
		res, err = flows.Configure(ctx, flowId, map[string]any{"add_binary_sensor": true})
		require.NoError(t, err)
		require.Equal(t, domain.STEP_ADD_BINARY_SENSOR, res.StepId)
		res, err = flows.Configure(ctx, flowId, map[string]any{"name": s.Name, "address": s.Address, "device_class": s.DeviceClass})
		require.NoError(t, err)
		require.Equal(t, domain.STEP_INIT, res.StepId, "errors: %v", res.Errors)
	}
	res, err = flows.Configure(ctx, flowId, map[string]any{"add_binary_sensor": false})
	require.NoError(t, err)
	return res
}

func TestSetupCreatesAndLoadsEntry(t *testing.T) {

	require := require.New(t)

	h := newTestHost(t)
	res := setupEntry(t, h.flows, "CAN0")
	require.Equal(domain.FLOW_RESULT_CREATE_ENTRY, res.Type)
	require.NotNil(res.Entry)
	require.NotEmpty(res.Entry.EntryId)
	require.Equal("sib_CAN0", res.Entry.UniqueId)
	require.Empty(res.Entry.Sensors)

	require.True(h.entries.Loaded(res.Entry.EntryId))
	require.Len(h.entries.Entries(), 1)
	require.Empty(h.flows.Progress(), "finished flow is forgotten")

	persisted, err := h.store.Load(context.Background())
	require.NoError(err)
	require.Len(persisted, 1)

	dup := setupEntry(t, h.flows, "CAN0")
	require.Equal(domain.FLOW_RESULT_ABORT, dup.Type)
	require.Equal(domain.ABORT_ALREADY_CONFIGURED, dup.Reason)
	require.Len(h.entries.Entries(), 1)

	other := setupEntry(t, h.flows, "CAN1")
	require.Equal(domain.FLOW_RESULT_CREATE_ENTRY, other.Type)
	require.Len(h.entries.Entries(), 2)
}

func TestOptionsFlowCommitReloadsEntry(t *testing.T) {

	require := require.New(t)

	h := newTestHost(t)
	entryId := setupEntry(t, h.flows, "CAN0").Entry.EntryId

	res := addSensors(t, h.flows, entryId,
		domain.SensorDescriptor{Name: "front_door", Address: "0:1", DeviceClass: domain.DEVICE_CLASS_DOOR},
		domain.SensorDescriptor{Name: "trunk", Address: "2:5", DeviceClass: domain.DEVICE_CLASS_OPENING},
	)
	require.Equal(domain.FLOW_RESULT_CREATE_ENTRY, res.Type)

	entry, ok := h.entries.Get(entryId)
	require.True(ok)
	require.Len(entry.Sensors, 2)

	states, err := h.platform.States(context.Background(), entryId)
	require.NoError(err)
	require.Len(states, 2)
	require.Equal(entryId+"_0:1", states[0].UniqueId)
	require.Equal(entryId+"_2:5", states[1].UniqueId)
	require.Equal(1, h.platform.removes, "reload unloads the previous platform")
}

func TestAbandonedOptionsFlowChangesNothing(t *testing.T) {

	require := require.New(t)
	ctx := context.Background()

	h := newTestHost(t)
	entryId := setupEntry(t, h.flows, "CAN0").Entry.EntryId
	saves := h.store.Saves()

	res, err := h.flows.StartOptionsFlow(ctx, entryId)
	require.NoError(err)
	_, err = h.flows.Configure(ctx, res.FlowId, map[string]any{"add_binary_sensor": true})
	require.NoError(err)
	_, err = h.flows.Configure(ctx, res.FlowId, map[string]any{"name": "front_door", "address": "0:1"})
	require.NoError(err)

	_, err = h.flows.StartOptionsFlow(ctx, entryId)
	require.ErrorIs(err, domain.ErrFlowInProgress)

	require.NoError(h.flows.Abort(res.FlowId))
	require.ErrorIs(h.flows.Abort(res.FlowId), domain.ErrFlowNotFound)

	entry, _ := h.entries.Get(entryId)
	require.Empty(entry.Sensors)
	require.Equal(saves, h.store.Saves())

	_, err = h.flows.Configure(ctx, res.FlowId, map[string]any{})
	require.ErrorIs(err, domain.ErrFlowNotFound)
}

func TestUnloadTwiceConflicts(t *testing.T) {

	require := require.New(t)
	ctx := context.Background()

	h := newTestHost(t)
	entryId := setupEntry(t, h.flows, "CAN0").Entry.EntryId

	ok, err := h.entries.UnloadEntry(ctx, entryId)
	require.NoError(err)
	require.True(ok)
	require.False(h.entries.Loaded(entryId))

	_, err = h.entries.UnloadEntry(ctx, entryId)
	require.ErrorIs(err, domain.ErrUnregistrationConflict)

	require.NoError(h.entries.SetupEntry(ctx, entryId))
	require.True(h.entries.Loaded(entryId))
}

func TestLoadSetsUpPersistedEntries(t *testing.T) {

	entry := domain.NewConfigurationEntry("CAN0", 500000)
	entry.EntryId = "entry1"
	entry.Sensors = []domain.SensorDescriptor{{Name: "front_door", Address: "0:1"}}

	h := newTestHost(t, entry)
	assert.True(t, h.entries.Loaded("entry1"))
	assert.True(t, h.entries.UniqueIdConfigured("sib_CAN0"))

	states, err := h.platform.States(context.Background(), "entry1")
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Equal(t, "entry1_0:1", states[0].UniqueId)
}

func TestRemoveEntry(t *testing.T) {

	require := require.New(t)
	ctx := context.Background()

	h := newTestHost(t)
	entryId := setupEntry(t, h.flows, "CAN0").Entry.EntryId

	require.NoError(h.entries.RemoveEntry(ctx, entryId))
	require.Empty(h.entries.Entries())
	require.False(h.entries.UniqueIdConfigured("sib_CAN0"))

	err := h.entries.RemoveEntry(ctx, entryId)
	require.True(errors.Is(err, domain.ErrEntryNotFound))

	_, err = h.flows.StartOptionsFlow(ctx, entryId)
	require.ErrorIs(err, domain.ErrEntryNotFound)
}

func TestActorPlatformEndToEnd(t *testing.T) {

	require := require.New(t)
	ctx := context.Background()

	cfg := util.LoadTestConfig()
	logger := zap.NewNop()
	as := actorutil.NewActorSystemWithZapLogger(logger)
	defer as.Shutdown()

	props := actor.PropsFromProducer(func() actor.Actor {
		return coreactor.NewMasterActor(cfg, nil, func(es *eventstream.EventStream) *adactor.MQTTActor {
			return adactor.NewTestMQTTActor(&cfg, es, nil, logger)
		}, logger)
	})
	master, err := as.Root.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	require.NoError(err)

	integration := service.NewIntegration(logger)
	platform := NewActorPlatform(as.Root, master, 2*time.Second)
	entries := NewConfigEntries(store.NewMemoryStore(), integration, platform, logger)
	flows := NewFlowManager(entries, integration, time.Hour, logger)
	require.NoError(entries.Load(ctx))

	entryId := setupEntry(t, flows, "CAN0").Entry.EntryId
	addSensors(t, flows, entryId,
		domain.SensorDescriptor{Name: "front_door", Address: "0:1", DeviceClass: domain.DEVICE_CLASS_DOOR},
		domain.SensorDescriptor{Name: "trunk", Address: "2:5", DeviceClass: domain.DEVICE_CLASS_OPENING},
	)

	states, err := platform.States(ctx, entryId)
	require.NoError(err)
	require.Len(states, 2)
	require.Equal(entryId+"_0:1", states[0].UniqueId)
	require.Equal(domain.DEVICE_CLASS_DOOR, states[0].DeviceClass)
	require.Equal(entryId+"_2:5", states[1].UniqueId)

	ok, err := entries.UnloadEntry(ctx, entryId)
	require.NoError(err)
	require.True(ok)

	_, err = entries.UnloadEntry(ctx, entryId)
	require.ErrorIs(err, domain.ErrUnregistrationConflict)

	_, err = platform.States(ctx, entryId)
	require.ErrorIs(err, domain.ErrEntryNotFound)
}

// gatedPlatform blocks the first RemoveEntities until gate is closed.
type gatedPlatform struct {
	*memoryPlatform
	entered chan struct{}
	gate    chan struct{}
}

func (p *gatedPlatform) RemoveEntities(ctx context.Context, entryId string) error {
	select {
	case p.entered <- struct{}{}:
	default:
	}
	<-p.gate
	return p.memoryPlatform.RemoveEntities(ctx, entryId)
}

func TestOptionsFlowCommitKeepsEntryReserved(t *testing.T) {

	require := require.New(t)
	ctx := context.Background()
	logger := zap.NewNop()

	platform := &gatedPlatform{
		memoryPlatform: newMemoryPlatform(),
		entered:        make(chan struct{}, 1),
		gate:           make(chan struct{}),
	}
	integration := service.NewIntegration(logger)
	entries := NewConfigEntries(store.NewMemoryStore(), integration, platform, logger)
	flows := NewFlowManager(entries, integration, time.Hour, logger)
	require.NoError(entries.Load(ctx))

	entryId := setupEntry(t, flows, "CAN0").Entry.EntryId

	first, err := flows.StartOptionsFlow(ctx, entryId)
	require.NoError(err)
	_, err = flows.Configure(ctx, first.FlowId, map[string]any{"add_binary_sensor": true})
	require.NoError(err)
	res, err := flows.Configure(ctx, first.FlowId, map[string]any{"name": "a", "address": "0:1"})
	require.NoError(err)
	require.Equal(domain.STEP_INIT, res.StepId)

	// a reload holds the lifecycle lock, so the commit below has to wait
	reloaded := make(chan error, 1)
	go func() {
		reloaded <- entries.ReloadEntry(ctx, entryId)
	}()
	<-platform.entered

	committed := make(chan error, 1)
	go func() {
		_, err := flows.Configure(ctx, first.FlowId, map[string]any{"add_binary_sensor": false})
		committed <- err
	}()
	require.Eventually(func() bool {
		return len(flows.Progress()) == 0
	}, time.Second, 5*time.Millisecond)

	_, err = flows.StartOptionsFlow(ctx, entryId)
	require.ErrorIs(err, domain.ErrFlowInProgress, "entry stays reserved until the commit is applied")

	close(platform.gate)
	require.NoError(<-reloaded)
	require.NoError(<-committed)

	addSensors(t, flows, entryId, domain.SensorDescriptor{Name: "b", Address: "2:5"})

	entry, ok := entries.Get(entryId)
	require.True(ok)
	require.Len(entry.Sensors, 2)
	require.Equal("0:1", entry.Sensors[0].Address)
	require.Equal("2:5", entry.Sensors[1].Address)
}

func TestIdleFlowsExpire(t *testing.T) {

	require := require.New(t)
	ctx := context.Background()

	h := newTestHost(t)
	entryId := setupEntry(t, h.flows, "CAN0").Entry.EntryId

	now := time.Now()
	h.flows.now = func() time.Time { return now }

	stale, err := h.flows.StartOptionsFlow(ctx, entryId)
	require.NoError(err)
	_, err = h.flows.Configure(ctx, stale.FlowId, map[string]any{"add_binary_sensor": true})
	require.NoError(err)
	_, err = h.flows.Configure(ctx, stale.FlowId, map[string]any{"name": "front_door", "address": "0:1"})
	require.NoError(err)
	config, err := h.flows.StartConfigFlow(ctx)
	require.NoError(err)

	now = now.Add(30 * time.Minute)
	_, err = h.flows.StartOptionsFlow(ctx, entryId)
	require.ErrorIs(err, domain.ErrFlowInProgress, "flow is not idle yet")

	now = now.Add(31 * time.Minute)
	fresh, err := h.flows.StartOptionsFlow(ctx, entryId)
	require.NoError(err)

	_, err = h.flows.Configure(ctx, stale.FlowId, map[string]any{"add_binary_sensor": false})
	require.ErrorIs(err, domain.ErrFlowNotFound)
	_, err = h.flows.Configure(ctx, config.FlowId, map[string]any{"interface": "CAN1", "baud_rate": 500000})
	require.ErrorIs(err, domain.ErrFlowNotFound)

	progress := h.flows.Progress()
	require.Len(progress, 1)
	require.Equal(fresh.FlowId, progress[0].FlowId)

	entry, _ := h.entries.Get(entryId)
	require.Empty(entry.Sensors)
}

func TestRemoveEntryAbortsItsFlows(t *testing.T) {

	require := require.New(t)
	ctx := context.Background()

	h := newTestHost(t)
	entryId := setupEntry(t, h.flows, "CAN0").Entry.EntryId
	otherId := setupEntry(t, h.flows, "CAN1").Entry.EntryId

	res, err := h.flows.StartOptionsFlow(ctx, entryId)
	require.NoError(err)
	other, err := h.flows.StartOptionsFlow(ctx, otherId)
	require.NoError(err)

	require.NoError(h.entries.RemoveEntry(ctx, entryId))

	progress := h.flows.Progress()
	require.Len(progress, 1)
	require.Equal(other.FlowId, progress[0].FlowId)

	_, err = h.flows.Configure(ctx, res.FlowId, map[string]any{"add_binary_sensor": false})
	require.ErrorIs(err, domain.ErrFlowNotFound)
}
