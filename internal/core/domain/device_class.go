package domain

import (
	"fmt"
	"slices"
)

const (
	DEVICE_CLASS_BATTERY          = "battery"
	DEVICE_CLASS_BATTERY_CHARGING = "battery_charging"
	DEVICE_CLASS_CARBON_MONOXIDE  = "carbon_monoxide"
	DEVICE_CLASS_COLD             = "cold"
	DEVICE_CLASS_CONNECTIVITY     = "connectivity"
	DEVICE_CLASS_DOOR             = "door"
	DEVICE_CLASS_GARAGE_DOOR      = "garage_door"
	DEVICE_CLASS_GAS              = "gas"
	DEVICE_CLASS_HEAT             = "heat"
	DEVICE_CLASS_LIGHT            = "light"
	DEVICE_CLASS_LOCK             = "lock"
	DEVICE_CLASS_MOISTURE         = "moisture"
	DEVICE_CLASS_MOTION           = "motion"
	DEVICE_CLASS_MOVING           = "moving"
	DEVICE_CLASS_OCCUPANCY        = "occupancy"
	DEVICE_CLASS_OPENING          = "opening"
	DEVICE_CLASS_PLUG             = "plug"
	DEVICE_CLASS_POWER            = "power"
	DEVICE_CLASS_PRESENCE         = "presence"
	DEVICE_CLASS_PROBLEM          = "problem"
	DEVICE_CLASS_RUNNING          = "running"
	DEVICE_CLASS_SAFETY           = "safety"
	DEVICE_CLASS_SMOKE            = "smoke"
	DEVICE_CLASS_SOUND            = "sound"
	DEVICE_CLASS_TAMPER           = "tamper"
	DEVICE_CLASS_UPDATE           = "update"
	DEVICE_CLASS_VIBRATION        = "vibration"
	DEVICE_CLASS_WINDOW           = "window"
)

var binarySensorDeviceClasses = []string{
	DEVICE_CLASS_BATTERY,
	DEVICE_CLASS_BATTERY_CHARGING,
	DEVICE_CLASS_CARBON_MONOXIDE,
	DEVICE_CLASS_COLD,
	DEVICE_CLASS_CONNECTIVITY,
	DEVICE_CLASS_DOOR,
	DEVICE_CLASS_GARAGE_DOOR,
	DEVICE_CLASS_GAS,
	DEVICE_CLASS_HEAT,
	DEVICE_CLASS_LIGHT,
	DEVICE_CLASS_LOCK,
	DEVICE_CLASS_MOISTURE,
	DEVICE_CLASS_MOTION,
	DEVICE_CLASS_MOVING,
	DEVICE_CLASS_OCCUPANCY,
	DEVICE_CLASS_OPENING,
	DEVICE_CLASS_PLUG,
	DEVICE_CLASS_POWER,
	DEVICE_CLASS_PRESENCE,
	DEVICE_CLASS_PROBLEM,
	DEVICE_CLASS_RUNNING,
	DEVICE_CLASS_SAFETY,
	DEVICE_CLASS_SMOKE,
	DEVICE_CLASS_SOUND,
	DEVICE_CLASS_TAMPER,
	DEVICE_CLASS_UPDATE,
	DEVICE_CLASS_VIBRATION,
	DEVICE_CLASS_WINDOW,
}

func BinarySensorDeviceClasses() []string {
	return slices.Clone(binarySensorDeviceClasses)
}

// IsBinarySensorDeviceClass reports whether class is empty or in the catalogue.
func IsBinarySensorDeviceClass(class string) bool {
	return class == "" || slices.Contains(binarySensorDeviceClasses, class)
}

func ValidateDeviceClass(class string) error {
	if !IsBinarySensorDeviceClass(class) {
		return fmt.Errorf("%q: %w", class, ErrInvalidDeviceClass)
	}
	return nil
}
