package actor

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/berfenger/sib2mqtt/internal/config"
	"github.com/berfenger/sib2mqtt/internal/core/domain"
	"github.com/berfenger/sib2mqtt/internal/core/events"
	"github.com/berfenger/sib2mqtt/internal/mqtt"
	"github.com/berfenger/sib2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

type MQTTActor struct {
	config         *config.Config
	behavior       actor.Behavior
	stash          *actorutil.Stash
	client         *mqtt.MQTTClient
	eventStream    *eventstream.EventStream
	eventStreamSub *eventstream.Subscription
	// discovery components announced so far, by entry id
	components map[string][]domain.GenericBinarySensor
	sink       PublishSink
	logger     *zap.Logger
}

// PublishSink receives the messages a dummy actor would have published.
type PublishSink func(topic string, payload string, retain bool)

type MQTTConnected struct {
}

type MQTTSubscribed struct {
}

type MQTTConnectionLost struct {
	Error error
}

type HABirth struct {
}

type OnEventStreamMessage struct {
	message any
}

type publishResult struct {
	ReplyTo *actor.PID
	Error   error
}

type rawMessage struct {
	topic   string
	message string
	retain  bool
}

func NewMQTTActor(config *config.Config, eventStream *eventstream.EventStream, logger *zap.Logger) *MQTTActor {
	act := &MQTTActor{
		config:      config,
		behavior:    actor.NewBehavior(),
		stash:       &actorutil.Stash{},
		eventStream: eventStream,
		components:  make(map[string][]domain.GenericBinarySensor),
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_MQTT, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MQTTActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MQTTActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("mqtt@starting started")
		send := actorutil.SelfSender(ctx)

		// create MQTT client
		state.client = mqtt.CreateMQTTClient(state.config, mqtt.OptsFromConfig(state.config), func(_ pahomqtt.Client) {
		}, func(_ pahomqtt.Client, err error) {
			send(MQTTConnectionLost{Error: err})
		})

		// connect to MQTT server
		state.client.Connect(func(err error) {
			if err != nil {
				send(MQTTConnectionLost{Error: err})
			} else {
				send(MQTTConnected{})
			}
		}, 10*time.Second)

	case MQTTConnected:
		state.logger.Debug("mqtt@starting connected")
		send := actorutil.SelfSender(ctx)

		state.client.Publish(state.client.BridgeStateTopic(), mqtt.MQTT_PAYLOAD_ONLINE, 0, true, func(error) {}, 500*time.Millisecond)
		state.subscribeToEventStream(ctx)

		if !state.config.MQTT.HADiscoveryEnable {
			send(MQTTSubscribed{})
			return
		}
		state.publishDiscovery(state.bridgeDiscovery())

		// republish discovery whenever Home Assistant comes back online
		state.client.SubscribeToHAStatusTopic(func(c pahomqtt.Client, m pahomqtt.Message) {
			if state.client.IsHABirthMessage(m) {
				send(HABirth{})
			}
		}, func(err error) {
			if err != nil {
				send(MQTTConnectionLost{Error: err})
			} else {
				send(MQTTSubscribed{})
			}
		}, 1*time.Second)
	case MQTTSubscribed:
		// init completed, transition to default state
		state.logger.Debug("mqtt@starting subscribed")
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case MQTTConnectionLost:
		// if connection lost, stop actor and let supervisor decide
		state.logger.Error("mqtt@starting connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	default:
		state.logger.Debug("mqtt@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MQTTActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	case domain.ActorHealthRequest:
		state.logger.Debug("mqtt@default ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MQTT,
			Healthy: true,
			State:   "idle",
		})
	case OnEventStreamMessage:
		state.logger.Debug("mqtt@default OnEventStreamMessage", zap.String("type", fmt.Sprintf("%T", msg.message)))
		switch ev := msg.message.(type) {
		case domain.SensorUpdateEvent:
			state.publishSensorValue(ctx, ev, false, nil)
		default:
			for _, raw := range state.eventMessages(ev) {
				state.publishAndForget(raw)
			}
		}
	case HABirth:
		state.logger.Debug("mqtt@default HABirth")
		state.publishDiscovery(state.bridgeDiscovery())
		for _, components := range state.components {
			state.publishDiscovery(components)
		}
	case domain.PublishMessageRequest:
		state.logger.Debug("mqtt@default PublishMessageRequest", zap.String("topic", msg.Topic))
		state.publishMessage(ctx, msg.Topic, msg.Payload, msg.Retain, actorutil.ForRequest(msg).ReplyTo(ctx))
	case domain.PublishSensorUpdateRequest:
		state.logger.Debug("mqtt@default PublishSensorUpdateRequest", zap.String("type", fmt.Sprintf("%T", msg.Event)))
		state.publishSensorValue(ctx, msg.Event, msg.Retain, actorutil.ForRequest(msg).ReplyTo(ctx))
	case domain.PublishDiscoveryRequest:
		state.logger.Debug("mqtt@default PublishDiscoveryRequest")
		state.publishDiscovery(msg.BinarySensors)
	case domain.RemoveDiscoveryRequest:
		state.logger.Debug("mqtt@default RemoveDiscoveryRequest")
		for _, raw := range state.removalMessages(msg.BinarySensors) {
			state.publishAndForget(raw)
		}
	case MQTTConnectionLost:
		// if connection lost, stop actor and let supervisor decide
		state.logger.Error("mqtt@default connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	default:
		state.logger.Debug("mqtt@default unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MQTTActor) subscribeToEventStream(ctx actor.Context) {
	if state.eventStream == nil || state.eventStreamSub != nil {
		return
	}
	send := actorutil.SelfSender(ctx)
	state.eventStreamSub = state.eventStream.Subscribe(func(value any) {
		send(OnEventStreamMessage{
			message: value,
		})
	})
}

// eventMessages maps an event stream message to the MQTT messages it produces.
// Entity additions and removals also update the set of announced components.
func (state *MQTTActor) eventMessages(event any) []rawMessage {
	switch msg := event.(type) {
	case domain.SensorUpdateEvent:
		if raw := state.event2MQTTMessage(msg); raw != nil {
			return []rawMessage{*raw}
		}
	case domain.EntitiesAddedEvent:
		state.components[msg.EntryId] = msg.BinarySensors
		return state.discoveryMessages(msg.BinarySensors)
	case domain.EntitiesRemovedEvent:
		delete(state.components, msg.EntryId)
		return state.removalMessages(msg.BinarySensors)
	}
	return nil
}

func (state *MQTTActor) event2MQTTMessage(event domain.SensorUpdateEvent) *rawMessage {
	switch msg := event.(type) {
	case domain.BinarySensorUpdateEvent:
		return &rawMessage{
			topic:   state.client.BinarySensorStateTopic(msg.Id),
			message: bool2MQTTPayload(msg.Value),
		}
	case domain.BridgeStateUpdateEvent:
		var stringMessage string
		if msg.Value {
			stringMessage = mqtt.MQTT_PAYLOAD_ONLINE
		} else {
			stringMessage = mqtt.MQTT_PAYLOAD_OFFLINE
		}
		return &rawMessage{
			topic:   state.client.BridgeStateTopic(),
			message: stringMessage,
			retain:  true,
		}
	default:
		return nil
	}
}

func (state *MQTTActor) bridgeDiscovery() []domain.GenericBinarySensor {
	return []domain.GenericBinarySensor{
		events.BridgeStateSensor(events.BridgeDevice(state.config.MQTT.BaseTopic)),
	}
}

func (state *MQTTActor) discoveryMessages(sensors []domain.GenericBinarySensor) []rawMessage {
	if !state.config.MQTT.HADiscoveryEnable {
		return nil
	}
	msgs := make([]rawMessage, 0, len(sensors))
	for i := range sensors {
		payload, err := json.Marshal(mqtt.GenericBinarySensorToHADiscoveryMessage(state.client, sensors[i]))
		if err != nil {
			state.logger.Error("mqtt@discovery could not encode discovery config", zap.String("unique_id", sensors[i].UniqueId), zap.Error(err))
			continue
		}
		msgs = append(msgs, rawMessage{
			topic:   mqtt.HADiscoveryBinarySensorTopic(state.client, sensors[i]),
			message: string(payload),
			retain:  true,
		})
	}
	return msgs
}

// removalMessages clear the retained discovery configs of the given components.
func (state *MQTTActor) removalMessages(sensors []domain.GenericBinarySensor) []rawMessage {
	if !state.config.MQTT.HADiscoveryEnable {
		return nil
	}
	msgs := make([]rawMessage, 0, len(sensors))
	for i := range sensors {
		msgs = append(msgs, rawMessage{
			topic:  mqtt.HADiscoveryBinarySensorTopic(state.client, sensors[i]),
			retain: true,
		})
	}
	return msgs
}

func (state *MQTTActor) publishDiscovery(sensors []domain.GenericBinarySensor) {
	for _, raw := range state.discoveryMessages(sensors) {
		state.publishAndForget(raw)
	}
}

func (state *MQTTActor) publishAndForget(msg rawMessage) {
	state.logger.Sugar().Debugf("mqtt@publish: publish %s => %s", msg.topic, msg.message)
	state.client.Publish(msg.topic, msg.message, 0, msg.retain, func(err error) {
		if err != nil {
			state.logger.Error("mqtt@publish could not publish a message", zap.String("topic", msg.topic), zap.Error(err))
		}
	}, 1*time.Second)
}

func (state *MQTTActor) publishSensorValue(ctx actor.Context, event domain.SensorUpdateEvent, retain bool, replyTo *actor.PID) {
	msg := state.event2MQTTMessage(event)
	if msg == nil {
		if replyTo != nil {
			ctx.Send(replyTo, domain.PublishSensorUpdateResponse{})
		}
		return
	}
	state.logger.Sugar().Debugf("mqtt@publish: sensor publish %s => %s", msg.topic, msg.message)
	send := actorutil.SelfSender(ctx)
	state.client.Publish(msg.topic, msg.message, 1, msg.retain || retain, func(err error) {
		send(publishResult{ReplyTo: replyTo, Error: err})
	}, 5*time.Second)
	state.behavior.BecomeStacked(state.EventPublishResultReceive)
}

func (state *MQTTActor) publishMessage(ctx actor.Context, topic, payload string, retain bool, replyTo *actor.PID) {
	state.logger.Sugar().Debugf("mqtt@publish: message publish %s => %s", topic, payload)
	send := actorutil.SelfSender(ctx)
	state.client.Publish(topic, payload, 1, retain, func(err error) {
		send(publishResult{ReplyTo: replyTo, Error: err})
	}, 5*time.Second)
	state.behavior.BecomeStacked(state.MessagePublishResultReceive)
}

func (state *MQTTActor) MessagePublishResultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case publishResult:
		if msg.Error != nil {
			state.logger.Error("mqtt@publishing could not publish a message", zap.Error(msg.Error))
		}
		if msg.ReplyTo != nil {
			ctx.Send(msg.ReplyTo, domain.PublishMessageResponse{
				ActorResponseMixIn: domain.ErrorResponse(msg.Error),
			})
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashOldest(ctx)
	case *actor.Stopping:
		state.stop()
	default:
		state.logger.Debug("mqtt@publishing stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MQTTActor) EventPublishResultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case publishResult:
		if msg.Error != nil {
			state.logger.Error("mqtt@publishing could not publish a message", zap.Error(msg.Error))
		}
		if msg.ReplyTo != nil {
			ctx.Send(msg.ReplyTo, domain.PublishSensorUpdateResponse{
				ActorResponseMixIn: domain.ErrorResponse(msg.Error),
			})
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashOldest(ctx)
	case *actor.Stopping:
		state.stop()
	default:
		state.logger.Debug("mqtt@publishing stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MQTTActor) stop() {
	state.logger.Debug("mqtt: disconnect")
	if state.eventStreamSub != nil {
		state.eventStream.Unsubscribe(state.eventStreamSub)
		state.eventStreamSub = nil
	}
	if state.client != nil {
		state.client.Publish(state.client.BridgeStateTopic(), mqtt.MQTT_PAYLOAD_OFFLINE, 0, true, func(error) {}, 500*time.Millisecond)
		state.client.Disconnect(500 * time.Millisecond)
	}
}

func bool2MQTTPayload(value bool) string {
	if value {
		return mqtt.MQTT_PAYLOAD_ON
	}
	return mqtt.MQTT_PAYLOAD_OFF
}

// Dummy actor, used when MQTT is disabled and in tests.
// It never connects; messages it would publish go to the sink, if any.
func NewTestMQTTActor(config *config.Config, eventStream *eventstream.EventStream, sink PublishSink, logger *zap.Logger) *MQTTActor {
	act := &MQTTActor{
		config:      config,
		behavior:    actor.NewBehavior(),
		stash:       &actorutil.Stash{},
		eventStream: eventStream,
		components:  make(map[string][]domain.GenericBinarySensor),
		sink:        sink,
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_MQTT, logger),
	}
	act.behavior.Become(act.DummyReceive)
	return act
}

func (state *MQTTActor) DummyReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.client = mqtt.CreateMQTTClient(state.config, mqtt.OptsFromConfig(state.config), nil, nil)
		state.subscribeToEventStream(ctx)
	case *actor.Stopping:
		if state.eventStreamSub != nil {
			state.eventStream.Unsubscribe(state.eventStreamSub)
			state.eventStreamSub = nil
		}
	case domain.ActorHealthRequest:
		state.logger.Debug("mqtt@dummy ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MQTT,
			Healthy: true,
			State:   "dummy",
		})
	case OnEventStreamMessage:
		for _, raw := range state.eventMessages(msg.message) {
			state.logger.Debug("mqtt@dummy publish", zap.String("topic", raw.topic), zap.String("value", raw.message))
			if state.sink != nil {
				state.sink(raw.topic, raw.message, raw.retain)
			}
		}
	case domain.PublishSensorUpdateRequest:
		if msg.ReplyToRef != nil || ctx.Sender() != nil {
			actorutil.ForRequest(msg).Respond(ctx, domain.PublishSensorUpdateResponse{})
		}
	case domain.PublishMessageRequest:
		if state.sink != nil {
			state.sink(msg.Topic, msg.Payload, msg.Retain)
		}
		if msg.ReplyToRef != nil || ctx.Sender() != nil {
			actorutil.ForRequest(msg).Respond(ctx, domain.PublishMessageResponse{})
		}
	}
}
