package entity

import (
	"context"
	"testing"

	"github.com/berfenger/sib2mqtt/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBinarySensorTogglesOnPoll(t *testing.T) {

	require := require.New(t)

	s := NewBinarySensor("entry1", domain.SensorDescriptor{Name: "front_door", Address: "0:1", DeviceClass: domain.DEVICE_CLASS_DOOR})
	require.False(s.IsOn(), "initial state is off")

	for k := 1; k <= 7; k++ {
		got := s.Poll()
		require.Equal(k%2 == 1, got, "poll %d", k)
		require.Equal(got, s.IsOn())
	}
}

func TestBinarySensorUpdateFlips(t *testing.T) {

	s := NewBinarySensor("entry1", domain.SensorDescriptor{Name: "trunk", Address: "2:5"})

	assert.NoError(t, s.Update(context.Background()))
	assert.True(t, s.IsOn())
	assert.NoError(t, s.Update(context.Background()))
	assert.False(t, s.IsOn())
}

func TestBinarySensorAttributes(t *testing.T) {

	assert := assert.New(t)

	s := NewBinarySensor("abc123", domain.SensorDescriptor{Name: "trunk", Address: "2:5", DeviceClass: domain.DEVICE_CLASS_OPENING})

	assert.Equal("abc123_2:5", s.UniqueId())
	assert.Equal("trunk", s.Name())
	assert.Equal(domain.DEVICE_CLASS_OPENING, s.DeviceClass())
	assert.Equal(map[string]any{ATTR_STATE_ADDRESS: "2:5"}, s.ExtraStateAttributes())
}
