package domain

type Device struct {
	Id           string
	Name         string
	Version      string
	Model        string
	Manufacturer string
	ViaDevice    string
}

type GenericBinarySensor struct {
	Device      Device
	Id          string
	EntryId     string
	Name        string
	UniqueId    string
	DeviceClass string // door, opening, motion, ...
	Icon        string
}
