package domain

import "errors"

var (
	ErrDuplicateInterface     = errors.New("interface already configured")
	ErrInvalidAddressFormat   = errors.New("invalid address format, expected main:sub with main in [0,7] and sub in [0,255]")
	ErrInvalidDeviceClass     = errors.New("invalid device class")
	ErrUnregistrationConflict = errors.New("entry platform is not registered")
	ErrEntryNotFound          = errors.New("config entry not found")
	ErrFlowNotFound           = errors.New("flow not found")
	ErrFlowInProgress         = errors.New("an options flow is already in progress for this entry")
	ErrUnknownStep            = errors.New("unknown flow step")
	ErrUnknownPlatform        = errors.New("unknown platform")
)
