package domain

import "fmt"

type SensorUpdateEventMixIn struct {
	Id string
}

type SensorUpdateEvent interface {
	SensorUpdateEvent() string
	SensorId() string
}

func (e SensorUpdateEventMixIn) SensorUpdateEvent() string {
	return fmt.Sprintf("%T", e)
}

func (e SensorUpdateEventMixIn) SensorId() string {
	return e.Id
}

type BinarySensorUpdateEvent struct {
	SensorUpdateEventMixIn
	EntryId string
	Value   bool
}

type BridgeStateUpdateEvent struct {
	SensorUpdateEventMixIn
	Value bool
}

// EntitiesAddedEvent is published by a platform once its entities are live.
type EntitiesAddedEvent struct {
	EntryId       string
	BinarySensors []GenericBinarySensor
}

// EntitiesRemovedEvent is published by a platform when it stops.
type EntitiesRemovedEvent struct {
	EntryId       string
	BinarySensors []GenericBinarySensor
}
