package actor

import (
	"errors"
	"fmt"
	"time"

	adactor "github.com/berfenger/sib2mqtt/internal/adapter/actor"
	"github.com/berfenger/sib2mqtt/internal/config"
	"github.com/berfenger/sib2mqtt/internal/core/domain"
	"github.com/berfenger/sib2mqtt/internal/core/events"
	. "github.com/berfenger/sib2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

var ErrPlatformRunning = errors.New("platform already running for entry")

type MQTTActorProvider func(*eventstream.EventStream) *adactor.MQTTActor

// MasterActor supervises the MQTT actor and one PlatformActor per loaded entry.
type MasterActor struct {
	config   config.Config
	behavior actor.Behavior
	stash    *Stash

	currentHealthCheck healthCheckResult
	eventStream        *eventstream.EventStream
	mqttActor          *actor.PID
	platforms          map[string]*actor.PID
	generation         uint64
	mqttActorProvider  MQTTActorProvider
	logger             *zap.Logger
}

type healthCheckResult struct {
	expected       int
	checksReceived int
	unhealthy      []string
	respondTo      *actor.PID
}

func NewMasterActor(config config.Config, eventStream *eventstream.EventStream, mqttActorProvider MQTTActorProvider, logger *zap.Logger) *MasterActor {
	if eventStream == nil {
		eventStream = &eventstream.EventStream{}
	}
	act := &MasterActor{
		config:            config,
		behavior:          actor.NewBehavior(),
		stash:             &Stash{},
		logger:            ActorLogger(domain.ACTOR_ID_MASTER, logger),
		eventStream:       eventStream,
		platforms:         make(map[string]*actor.PID),
		mqttActorProvider: mqttActorProvider,
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MasterActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MasterActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("master@starting started")

		// start MQTT child
		mqttActorPID, err := state.startMQTTActor(ctx)
		if err != nil {
			panic(err)
		}
		state.mqttActor = mqttActorPID

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("master@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("master@default ActorHealthRequest")
		state.currentHealthCheck = healthCheckResult{
			expected:  1 + len(state.platforms),
			respondTo: ctx.Sender(),
		}
		state.requestHealth(ctx, state.mqttActor, domain.ACTOR_ID_MQTT)
		for entryId, pid := range state.platforms {
			state.requestHealth(ctx, pid, fmt.Sprintf("%s_%s", domain.ACTOR_ID_PLATFORM, entryId))
		}

		ctx.SetReceiveTimeout(1 * time.Second)
		state.behavior.BecomeStacked(state.HealthCheckReceive)
	case domain.SpawnPlatformRequest:
		state.logger.Debug("master@default SpawnPlatformRequest", zap.String("entry_id", msg.EntryId), zap.Int("entities", len(msg.Entities)))
		req := ForRequest(msg)
		if msg.Platform != domain.PLATFORM_BINARY_SENSOR {
			req.Respond(ctx, domain.SpawnPlatformResponse{
				ActorResponseMixIn: domain.ErrorResponse(fmt.Errorf("%w: %s", domain.ErrUnknownPlatform, msg.Platform)),
				EntryId:            msg.EntryId,
			})
			return
		}
		if _, exists := state.platforms[msg.EntryId]; exists {
			req.Respond(ctx, domain.SpawnPlatformResponse{
				ActorResponseMixIn: domain.ErrorResponse(fmt.Errorf("%w: %s", ErrPlatformRunning, msg.EntryId)),
				EntryId:            msg.EntryId,
			})
			return
		}
		pid, err := state.startPlatformActor(ctx, msg)
		if err != nil {
			state.logger.Error("master@default could not spawn platform", zap.String("entry_id", msg.EntryId), zap.Error(err))
		} else {
			state.platforms[msg.EntryId] = pid
		}
		req.Respond(ctx, domain.SpawnPlatformResponse{
			ActorResponseMixIn: domain.ErrorResponse(err),
			EntryId:            msg.EntryId,
		})
	case domain.StopPlatformRequest:
		state.logger.Debug("master@default StopPlatformRequest", zap.String("entry_id", msg.EntryId))
		req := ForRequest(msg)
		pid, exists := state.platforms[msg.EntryId]
		if !exists {
			req.Respond(ctx, domain.StopPlatformResponse{
				ActorResponseMixIn: domain.ErrorResponse(fmt.Errorf("%w: %s", domain.ErrUnregistrationConflict, msg.EntryId)),
				EntryId:            msg.EntryId,
			})
			return
		}
		delete(state.platforms, msg.EntryId)
		ctx.Stop(pid)
		req.Respond(ctx, domain.StopPlatformResponse{EntryId: msg.EntryId})
	case domain.GetEntityStatesRequest:
		state.logger.Debug("master@default GetEntityStatesRequest", zap.String("entry_id", msg.EntryId))
		pid, exists := state.platforms[msg.EntryId]
		if !exists {
			ForRequest(msg).Respond(ctx, domain.GetEntityStatesResponse{
				ActorResponseMixIn: domain.ErrorResponse(fmt.Errorf("%w: %s", domain.ErrEntryNotFound, msg.EntryId)),
				EntryId:            msg.EntryId,
			})
			return
		}
		ctx.Forward(pid)
	case *actor.Stopping, *actor.Stopped, *actor.Restarting:
	case *actor.Terminated:
		for entryId, pid := range state.platforms {
			if pid.Equal(msg.Who) {
				state.logger.Warn("master@default platform terminated", zap.String("entry_id", entryId))
				delete(state.platforms, entryId)
			}
		}
	default:
		state.logger.Debug("master@default stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterActor) HealthCheckReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.ReceiveTimeout:
		// if some actor does not respond to healthCheck, assume not healthy
		ctx.CancelReceiveTimeout()
		state.currentHealthCheck.respond(ctx)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthResponse:
		state.logger.Debug("master@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.currentHealthCheck.checksReceived++
		if !msg.Healthy {
			state.currentHealthCheck.unhealthy = append(state.currentHealthCheck.unhealthy, msg.Id)
		}
		if state.currentHealthCheck.allReceived() {
			ctx.CancelReceiveTimeout()
			state.currentHealthCheck.respond(ctx)
			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
		} else {
			ctx.SetReceiveTimeout(1 * time.Second)
		}
	default:
		state.logger.Debug("master@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterActor) requestHealth(ctx actor.Context, pid *actor.PID, id string) {
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(pid, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
		return domain.ActorHealthResponse{
			Id:      id,
			Healthy: false,
		}
	})
}

func (state *MasterActor) startMQTTActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	mqttProps := actor.PropsFromProducer(func() actor.Actor {
		return state.mqttActorProvider(state.eventStream)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(mqttProps, domain.ACTOR_ID_MQTT)
}

func (state *MasterActor) platformDecider(entryId string) actor.DeciderFunc {
	return func(reason interface{}) actor.Directive {
		state.logger.Warn("master@default platform failed, restarting", zap.String("entry_id", entryId), zap.Any("reason", reason))
		return actor.RestartDirective
	}
}

func (state *MasterActor) startPlatformActor(ctx actor.Context, req domain.SpawnPlatformRequest) (*actor.PID, error) {

	supervisor := actor.NewOneForOneStrategy(3, 10*time.Second, state.platformDecider(req.EntryId))

	viaDevice := events.BridgeDevice(state.config.MQTT.BaseTopic).Id
	platformProps := actor.PropsFromProducer(func() actor.Actor {
		return NewPlatformActor(&state.config, req, viaDevice, state.eventStream, state.logger)
	}, actor.WithSupervisor(supervisor))

	// a reload spawns the replacement before the old actor has fully stopped
	state.generation++
	return ctx.SpawnNamed(platformProps, fmt.Sprintf("%s_%s_%d", domain.ACTOR_ID_PLATFORM, req.EntryId, state.generation))
}

func (state *healthCheckResult) allReceived() bool {
	return state.checksReceived >= state.expected
}

func (state *healthCheckResult) respond(ctx actor.Context) {
	healthy := state.allReceived() && len(state.unhealthy) == 0
	resp := domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_MASTER,
		Healthy: healthy,
		State:   fmt.Sprintf("received %d/%d checks", state.checksReceived, state.expected),
	}
	if state.respondTo != nil {
		ctx.Send(state.respondTo, resp)
	}
}
