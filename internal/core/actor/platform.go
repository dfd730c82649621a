package actor

import (
	"context"
	"fmt"
	"time"

	"github.com/berfenger/sib2mqtt/internal/config"
	"github.com/berfenger/sib2mqtt/internal/core/domain"
	"github.com/berfenger/sib2mqtt/internal/core/events"
	. "github.com/berfenger/sib2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

// PlatformActor owns the entities of one config entry and polls them.
type PlatformActor struct {
	behavior   actor.Behavior
	stash      *Stash
	scheduler  *scheduler.TimerScheduler
	cancelTick scheduler.CancelFunc

	config          *config.Config
	entryId         string
	entities        []domain.Entity
	components      []domain.GenericBinarySensor
	lastUpdated     map[string]time.Time
	updateBeforeAdd bool
	announced       bool
	eventStream     *eventstream.EventStream

	logger *zap.Logger
}

type platformTick struct {
}

type pollResult struct {
	failed map[string]error
}

func NewPlatformActor(config *config.Config, req domain.SpawnPlatformRequest, viaDevice string, eventStream *eventstream.EventStream, logger *zap.Logger) *PlatformActor {
	act := &PlatformActor{
		config:          config,
		behavior:        actor.NewBehavior(),
		stash:           &Stash{},
		entryId:         req.EntryId,
		entities:        req.Entities,
		components:      events.BinarySensorComponents(events.EntryDevice(req.EntryId, req.Title, viaDevice), req.EntryId, req.Entities),
		lastUpdated:     make(map[string]time.Time, len(req.Entities)),
		updateBeforeAdd: req.UpdateBeforeAdd,
		eventStream:     eventStream,
		logger:          ActorLogger(fmt.Sprintf("%s_%s", domain.ACTOR_ID_PLATFORM, req.EntryId), logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *PlatformActor) Receive(ctx actor.Context) {
	switch ctx.Message().(type) {
	case *actor.Stopping:
		state.stop()
	case *actor.Stopped:
	default:
		state.behavior.Receive(ctx)
	}
}

func (state *PlatformActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("platform@starting started", zap.Int("entities", len(state.entities)))
		state.scheduler = scheduler.NewTimerScheduler(ctx)

		if state.updateBeforeAdd {
			state.poll(ctx)
			return
		}
		state.announce()
		state.scheduleTick(ctx)
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
	default:
		state.logger.Debug("platform@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *PlatformActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("platform@default ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_PLATFORM,
			Healthy: true,
			State:   "idle",
		})
	case platformTick:
		state.logger.Debug("platform@default tick")
		state.poll(ctx)
	case domain.GetEntityStatesRequest:
		state.logger.Debug("platform@default GetEntityStatesRequest")
		ForRequest(msg).Respond(ctx, domain.GetEntityStatesResponse{
			EntryId: state.entryId,
			States:  state.states(),
		})
	default:
		state.logger.Debug("platform@default stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

// PollingReceive holds every message until the running poll completes, so
// entities are never read while they update.
func (state *PlatformActor) PollingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case pollResult:
		for _, ent := range state.entities {
			if err, failed := msg.failed[ent.UniqueId()]; failed {
				state.logger.Warn("platform@polling entity update failed", zap.String("unique_id", ent.UniqueId()), zap.Error(err))
				continue
			}
			state.lastUpdated[ent.UniqueId()] = time.Now()
		}
		if !state.announced {
			state.announce()
		}
		for _, ent := range state.entities {
			if _, failed := msg.failed[ent.UniqueId()]; !failed {
				state.eventStream.Publish(events.BinarySensorUpdateEvent(state.entryId, ent))
			}
		}
		state.scheduleTick(ctx)
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
	default:
		state.logger.Debug("platform@polling stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

// poll updates every entity on a background goroutine bounded by the update
// timeout and reports back with a pollResult.
func (state *PlatformActor) poll(ctx actor.Context) {
	entities := state.entities
	timeout := time.Duration(state.config.PlatformConfig.UpdateTimeoutMillis) * time.Millisecond

	go NewBackgroundTask[pollResult](ctx, func() (*pollResult, error) {
		updateCtx := context.Background()
		if timeout > 0 {
			var cancel context.CancelFunc
			updateCtx, cancel = context.WithTimeout(updateCtx, timeout)
			defer cancel()
		}
		res := pollResult{failed: make(map[string]error)}
		for _, ent := range entities {
			if err := ent.Update(updateCtx); err != nil {
				res.failed[ent.UniqueId()] = err
			}
		}
		return &res, nil
	}).WithTimeout(timeout).Recover(func(err error) pollResult {
		res := pollResult{failed: make(map[string]error, len(entities))}
		for _, ent := range entities {
			res.failed[ent.UniqueId()] = err
		}
		return res
	}).PipeTo(ctx.Self())

	state.behavior.Become(state.PollingReceive)
}

func (state *PlatformActor) scheduleTick(ctx actor.Context) {
	interval := time.Duration(state.config.PlatformConfig.ScanIntervalMillis) * time.Millisecond
	if interval <= 0 || state.scheduler == nil {
		return
	}
	state.cancelTick = state.scheduler.RequestOnce(interval, ctx.Self(), platformTick{})
}

func (state *PlatformActor) announce() {
	state.announced = true
	state.eventStream.Publish(domain.EntitiesAddedEvent{
		EntryId:       state.entryId,
		BinarySensors: state.components,
	})
}

func (state *PlatformActor) states() []domain.EntityState {
	states := make([]domain.EntityState, 0, len(state.entities))
	for _, ent := range state.entities {
		states = append(states, domain.EntityState{
			UniqueId:    ent.UniqueId(),
			Name:        ent.Name(),
			DeviceClass: ent.DeviceClass(),
			IsOn:        ent.IsOn(),
			Attributes:  ent.ExtraStateAttributes(),
			LastUpdated: state.lastUpdated[ent.UniqueId()],
		})
	}
	return states
}

func (state *PlatformActor) stop() {
	state.logger.Debug("platform@stopping")
	if state.cancelTick != nil {
		state.cancelTick()
		state.cancelTick = nil
	}
	if state.announced {
		state.eventStream.Publish(domain.EntitiesRemovedEvent{
			EntryId:       state.entryId,
			BinarySensors: state.components,
		})
	}
}
