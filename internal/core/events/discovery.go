package events

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/berfenger/sib2mqtt/internal/core/domain"

	"github.com/carlmjohnson/versioninfo"
)

const (
	SENSOR_ID_BRIDGE_STATE = "bridge"
	SENSOR_TYPE_BINARY     = "binary_sensor"
	MANUFACTURER           = "SIB"
)

func BridgeDevice(baseTopic string) domain.Device {
	return domain.Device{
		Id:           fmt.Sprintf("sib_bridge_%s", md5HashShort(baseTopic)),
		Manufacturer: MANUFACTURER,
		Model:        "sib2mqtt",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("SIB bridge %s", md5HashShort(baseTopic)),
	}
}

// BridgeStateSensor reports the availability of the bridge itself.
func BridgeStateSensor(bridge domain.Device) domain.GenericBinarySensor {
	return domain.GenericBinarySensor{
		Device:      bridge,
		Id:          SENSOR_ID_BRIDGE_STATE,
		Name:        "Bridge state",
		UniqueId:    fmt.Sprintf("%s_%s", bridge.Id, SENSOR_ID_BRIDGE_STATE),
		DeviceClass: domain.DEVICE_CLASS_CONNECTIVITY,
	}
}

// EntryDevice is the device grouping the entities of one config entry.
func EntryDevice(entryId, title, viaDevice string) domain.Device {
	return domain.Device{
		Id:           fmt.Sprintf("sib_entry_%s", md5HashShort(entryId)),
		Manufacturer: MANUFACTURER,
		Model:        "SIB bus",
		Name:         title,
		ViaDevice:    viaDevice,
	}
}

func IdDevice(device domain.Device) domain.Device {
	return domain.Device{
		Id:   device.Id,
		Name: device.Name,
	}
}

// BinarySensorComponents describes the entities of an entry for discovery.
// Only the first component carries the full device description.
func BinarySensorComponents(entryDevice domain.Device, entryId string, entities []domain.Entity) []domain.GenericBinarySensor {
	components := make([]domain.GenericBinarySensor, 0, len(entities))
	for i, ent := range entities {
		device := entryDevice
		if i > 0 {
			device = IdDevice(entryDevice)
		}
		components = append(components, domain.GenericBinarySensor{
			Device:      device,
			Id:          ObjectId(ent.UniqueId()),
			EntryId:     entryId,
			Name:        ent.Name(),
			UniqueId:    ent.UniqueId(),
			DeviceClass: ent.DeviceClass(),
		})
	}
	return components
}

func BinarySensorUpdateEvent(entryId string, ent domain.Entity) domain.BinarySensorUpdateEvent {
	return domain.BinarySensorUpdateEvent{
		SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{
			Id: ObjectId(ent.UniqueId()),
		},
		EntryId: entryId,
		Value:   ent.IsOn(),
	}
}

// ObjectId maps a unique id to the character set allowed in discovery topics.
func ObjectId(uniqueId string) string {
	out := []byte(uniqueId)
	for i, c := range out {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '-':
		default:
			out[i] = '_'
		}
	}
	return string(out)
}

func md5HashShort(str string) string {
	hash := md5.Sum([]byte(str))
	return hex.EncodeToString(hash[:])[:8]
}
