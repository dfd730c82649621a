package util

import (
	"github.com/berfenger/sib2mqtt/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		MQTT: config.MQTTConfig{
			Enable:            false,
			Host:              "localhost",
			Port:              1883,
			BaseTopic:         "sib",
			HADiscoveryEnable: true,
			HADiscoveryTopic:  "homeassistant",
		},
		StorageConfig: config.StorageConfig{
			Driver: config.STORAGE_DRIVER_MEMORY,
		},
		PlatformConfig: config.PlatformConfig{
			ScanIntervalMillis:  1000,
			UpdateTimeoutMillis: 500,
		},
		FlowConfig: config.FlowConfig{
			IdleTimeoutMillis: 60000,
		},
		Port: 8080,
	}
}
