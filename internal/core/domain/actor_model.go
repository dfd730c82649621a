package domain

import "time"

const (
	ACTOR_ID_MASTER   = "master"
	ACTOR_ID_MQTT     = "mqtt"
	ACTOR_ID_PLATFORM = "platform"
)

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}

// SpawnPlatformRequest asks the master to start the entity platform of one entry.
type SpawnPlatformRequest struct {
	ActorRequestMixIn
	EntryId         string
	Title           string
	Platform        string
	Entities        []Entity
	UpdateBeforeAdd bool
}

type SpawnPlatformResponse struct {
	ActorResponseMixIn
	EntryId string
}

type StopPlatformRequest struct {
	ActorRequestMixIn
	EntryId string
}

type StopPlatformResponse struct {
	ActorResponseMixIn
	EntryId string
}

type GetEntityStatesRequest struct {
	ActorRequestMixIn
	EntryId string
}

type GetEntityStatesResponse struct {
	ActorResponseMixIn
	EntryId string
	States  []EntityState
}

type PublishMessageRequest struct {
	ActorRequestMixIn
	Topic   string
	Payload string
	Retain  bool
}

type PublishMessageResponse struct {
	ActorResponseMixIn
}

type PublishSensorUpdateRequest struct {
	ActorRequestMixIn
	Retain bool
	Event  SensorUpdateEvent
}

type PublishSensorUpdateResponse struct {
	ActorResponseMixIn
}

type PublishDiscoveryRequest struct {
	ActorRequestMixIn
	BinarySensors []GenericBinarySensor
}

type PublishDiscoveryResponse struct {
	ActorResponseMixIn
}

type RemoveDiscoveryRequest struct {
	ActorRequestMixIn
	BinarySensors []GenericBinarySensor
}

// EntityState is a point-in-time view of an entity, as served to the HTTP API.
type EntityState struct {
	UniqueId    string         `json:"unique_id"`
	Name        string         `json:"name"`
	DeviceClass string         `json:"device_class,omitempty"`
	IsOn        bool           `json:"is_on"`
	Attributes  map[string]any `json:"attributes,omitempty"`
	LastUpdated time.Time      `json:"last_updated"`
}
