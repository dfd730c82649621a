package domain

import "fmt"

const (
	DOMAIN                 = "sib"
	PLATFORM_BINARY_SENSOR = "binary_sensor"
	DEFAULT_INTERFACE      = "CAN0"
	DEFAULT_BAUD_RATE      = 500000
)

// Platforms lists the entity platforms an entry is forwarded to.
var Platforms = []string{PLATFORM_BINARY_SENSOR}

type SensorDescriptor struct {
	Name        string `json:"name"`
	Address     string `json:"address"`
	DeviceClass string `json:"device_class,omitempty"`
}

// ConfigurationEntry is one configured bus. Interface and BaudRate are set once
// by the setup flow; Sensors is replaced as a whole by the options flow.
type ConfigurationEntry struct {
	EntryId   string             `json:"entry_id"`
	Domain    string             `json:"domain"`
	Title     string             `json:"title"`
	UniqueId  string             `json:"unique_id"`
	Interface string             `json:"interface"`
	BaudRate  int                `json:"baud_rate"`
	Sensors   []SensorDescriptor `json:"sensors"`
}

type EntryOptions struct {
	Sensors []SensorDescriptor `json:"sensors"`
}

func NewConfigurationEntry(iface string, baudRate int) ConfigurationEntry {
	return ConfigurationEntry{
		Domain:    DOMAIN,
		Title:     EntryTitle(iface, baudRate),
		UniqueId:  EntryUniqueId(iface),
		Interface: iface,
		BaudRate:  baudRate,
		Sensors:   []SensorDescriptor{},
	}
}

func EntryUniqueId(iface string) string {
	return fmt.Sprintf("%s_%s", DOMAIN, iface)
}

func EntryTitle(iface string, baudRate int) string {
	return fmt.Sprintf("SIB on %s (%dbps)", iface, baudRate)
}

func (e ConfigurationEntry) Clone() ConfigurationEntry {
	c := e
	c.Sensors = CloneSensors(e.Sensors)
	return c
}

func (e ConfigurationEntry) Options() EntryOptions {
	return EntryOptions{Sensors: CloneSensors(e.Sensors)}
}

// CloneSensors returns a copy that shares nothing with the input. The result is never nil.
func CloneSensors(sensors []SensorDescriptor) []SensorDescriptor {
	out := make([]SensorDescriptor, len(sensors))
	copy(out, sensors)
	return out
}
