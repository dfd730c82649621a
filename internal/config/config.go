package config

import (
	"errors"
	"regexp"
	"strings"

	"go.uber.org/zap/zapcore"
)

const (
	STORAGE_DRIVER_FILE   = "file"
	STORAGE_DRIVER_SQLITE = "sqlite"
	STORAGE_DRIVER_MEMORY = "memory"
)

type Config struct {
	LogLevel       zapcore.Level
	MQTT           MQTTConfig     `mapstructure:"mqtt"`
	StorageConfig  StorageConfig  `mapstructure:"storage"`
	PlatformConfig PlatformConfig `mapstructure:"platform"`
	FlowConfig     FlowConfig     `mapstructure:"flow"`
	Port           uint           `mapstructure:"port"`
	HttpLog        bool           `mapstructure:"http_log"`
}

type StorageConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

type PlatformConfig struct {
	ScanIntervalMillis  uint32 `mapstructure:"scan_interval_millis"`
	UpdateTimeoutMillis uint32 `mapstructure:"update_timeout_millis"`
}

type FlowConfig struct {
	IdleTimeoutMillis uint32 `mapstructure:"idle_timeout_millis"`
}

type MQTTConfig struct {
	Enable            bool
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
}

var topicRegexp = regexp.MustCompile("^[a-z0-9_]+$")

func CheckMQTTTopic(baseTopic string) (string, error) {
	lowerBaseTopic := strings.ToLower(baseTopic)
	if !topicRegexp.MatchString(lowerBaseTopic) {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}

func CheckStorageDriver(driver string) (string, error) {
	switch d := strings.ToLower(driver); d {
	case STORAGE_DRIVER_FILE, STORAGE_DRIVER_SQLITE, STORAGE_DRIVER_MEMORY:
		return d, nil
	}
	return "", errors.New("invalid storage driver. must be one of file, sqlite, memory")
}
