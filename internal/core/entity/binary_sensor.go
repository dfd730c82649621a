package entity

import (
	"context"
	"fmt"

	"github.com/berfenger/sib2mqtt/internal/core/domain"
)

const ATTR_STATE_ADDRESS = "sib_state_address"

// BinarySensor is a placeholder for a bus state. It does not read the bus:
// every update flips the reported state.
type BinarySensor struct {
	entryId     string
	uniqueId    string
	name        string
	address     string
	deviceClass string
	isOn        bool
}

func NewBinarySensor(entryId string, sensor domain.SensorDescriptor) *BinarySensor {
	return &BinarySensor{
		entryId:     entryId,
		uniqueId:    UniqueId(entryId, sensor.Address),
		name:        sensor.Name,
		address:     sensor.Address,
		deviceClass: sensor.DeviceClass,
	}
}

func UniqueId(entryId, address string) string {
	return fmt.Sprintf("%s_%s", entryId, address)
}

func (s *BinarySensor) UniqueId() string {
	return s.uniqueId
}

func (s *BinarySensor) EntryId() string {
	return s.entryId
}

func (s *BinarySensor) Name() string {
	return s.name
}

func (s *BinarySensor) Address() string {
	return s.address
}

func (s *BinarySensor) DeviceClass() string {
	return s.deviceClass
}

func (s *BinarySensor) IsOn() bool {
	return s.isOn
}

func (s *BinarySensor) ExtraStateAttributes() map[string]any {
	return map[string]any{
		ATTR_STATE_ADDRESS: s.address,
	}
}

// Poll flips the state and returns the new value.
func (s *BinarySensor) Poll() bool {
	// TODO: decode the state from the bus frame at s.address once the CAN transport exists
	s.isOn = !s.isOn
	return s.isOn
}

func (s *BinarySensor) Update(_ context.Context) error {
	s.Poll()
	return nil
}

var _ domain.Entity = (*BinarySensor)(nil)
