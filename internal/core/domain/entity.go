package domain

import "context"

// Entity is what an entity platform hosts and polls. Update is the seam where
// a real bus read will replace the placeholder behavior.
type Entity interface {
	UniqueId() string
	Name() string
	DeviceClass() string
	IsOn() bool
	ExtraStateAttributes() map[string]any
	Update(ctx context.Context) error
}
