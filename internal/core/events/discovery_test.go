package events

import (
	"context"
	"testing"

	"github.com/berfenger/sib2mqtt/internal/core/domain"

	"github.com/stretchr/testify/assert"
)

type testEntity struct {
	uniqueId string
	on       bool
}

func (e *testEntity) UniqueId() string                     { return e.uniqueId }
func (e *testEntity) Name() string                         { return "test " + e.uniqueId }
func (e *testEntity) DeviceClass() string                  { return domain.DEVICE_CLASS_DOOR }
func (e *testEntity) IsOn() bool                           { return e.on }
func (e *testEntity) ExtraStateAttributes() map[string]any { return nil }
func (e *testEntity) Update(context.Context) error         { return nil }

func TestObjectId(t *testing.T) {

	assert := assert.New(t)

	assert.Equal("abc_0_1", ObjectId("abc_0:1"))
	assert.Equal("a-b_c", ObjectId("a-b c"))
	assert.Equal("AZaz09", ObjectId("AZaz09"))
}

func TestBinarySensorComponents(t *testing.T) {

	assert := assert.New(t)

	entryDevice := EntryDevice("entry1", "SIB on CAN0 (500000bps)", "bridge")
	entities := []domain.Entity{
		&testEntity{uniqueId: "entry1_0:1"},
		&testEntity{uniqueId: "entry1_2:5"},
	}

	components := BinarySensorComponents(entryDevice, "entry1", entities)
	assert.Len(components, 2)
	assert.Equal("entry1_0_1", components[0].Id)
	assert.Equal("entry1_0:1", components[0].UniqueId)
	assert.Equal(domain.DEVICE_CLASS_DOOR, components[0].DeviceClass)
	assert.Equal(entryDevice, components[0].Device)
	assert.Equal(entryDevice.Id, components[1].Device.Id)
	assert.Empty(components[1].Device.Model, "only the first component carries the full device")
}

func TestBinarySensorUpdateEvent(t *testing.T) {

	ev := BinarySensorUpdateEvent("entry1", &testEntity{uniqueId: "entry1_2:5", on: true})
	assert.Equal(t, "entry1_2_5", ev.SensorId())
	assert.Equal(t, "entry1", ev.EntryId)
	assert.True(t, ev.Value)
}

func TestEntryDeviceIsStable(t *testing.T) {

	a := EntryDevice("entry1", "x", "")
	b := EntryDevice("entry1", "y", "")
	assert.Equal(t, a.Id, b.Id)
	assert.NotEqual(t, a.Id, EntryDevice("entry2", "x", "").Id)
}
