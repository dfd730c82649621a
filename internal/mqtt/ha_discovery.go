package mqtt

import (
	"github.com/berfenger/sib2mqtt/internal/core/domain"
	"github.com/berfenger/sib2mqtt/internal/core/events"
)

type HADiscoveryConfig struct {
	Device      HADiscoveryDevice `json:"device"`
	StateTopic  string            `json:"state_topic"`
	DeviceClass string            `json:"device_class,omitempty"`
	AvTopic     string            `json:"availability_topic,omitempty"`
	Name        string            `json:"name"`
	UniqueId    string            `json:"unique_id"`
	ObjectId    string            `json:"object_id,omitempty"`
	Platform    string            `json:"platform"`
	PayloadOn   string            `json:"payload_on,omitempty"`
	PayloadOff  string            `json:"payload_off,omitempty"`
	Icon        string            `json:"icon,omitempty"`
}

type HADiscoveryDevice struct {
	Id           []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Version      string   `json:"sw_version,omitempty"`
	Model        string   `json:"model,omitempty"`
	Name         string   `json:"name,omitempty"`
	ViaDevice    string   `json:"via_device,omitempty"`
}

func HADiscoveryBinarySensorTopic(client *MQTTClient, sensor domain.GenericBinarySensor) string {
	return client.HADiscoveryBinarySensorTopic(sensor.Device.Id, sensor.Id)
}

func GenericBinarySensorToHADiscoveryMessage(client *MQTTClient, sensor domain.GenericBinarySensor) HADiscoveryConfig {
	disConfig := HADiscoveryConfig{
		Device:      device(sensor.Device),
		StateTopic:  client.BinarySensorStateTopic(sensor.Id),
		DeviceClass: sensor.DeviceClass,
		AvTopic:     client.BridgeStateTopic(),
		Name:        sensor.Name,
		UniqueId:    sensor.UniqueId,
		ObjectId:    sensor.Id,
		Icon:        sensor.Icon,
		Platform:    "mqtt",
		PayloadOn:   MQTT_PAYLOAD_ON,
		PayloadOff:  MQTT_PAYLOAD_OFF,
	}
	if sensor.Id == events.SENSOR_ID_BRIDGE_STATE {
		disConfig.StateTopic = client.BridgeStateTopic()
		disConfig.AvTopic = ""
		disConfig.PayloadOn = MQTT_PAYLOAD_ONLINE
		disConfig.PayloadOff = MQTT_PAYLOAD_OFFLINE
	}
	return disConfig
}

func device(d domain.Device) HADiscoveryDevice {
	return HADiscoveryDevice{
		Id:           []string{d.Id},
		Manufacturer: d.Manufacturer,
		Version:      d.Version,
		Model:        d.Model,
		Name:         d.Name,
		ViaDevice:    d.ViaDevice,
	}
}
