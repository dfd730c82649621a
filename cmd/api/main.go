package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	adactor "github.com/berfenger/sib2mqtt/internal/adapter/actor"
	"github.com/berfenger/sib2mqtt/internal/adapter/store"
	"github.com/berfenger/sib2mqtt/internal/config"
	"github.com/berfenger/sib2mqtt/internal/core/actor"
	"github.com/berfenger/sib2mqtt/internal/core/domain"
	"github.com/berfenger/sib2mqtt/internal/core/service"
	"github.com/berfenger/sib2mqtt/internal/host"
	"github.com/berfenger/sib2mqtt/internal/server"
	"github.com/berfenger/sib2mqtt/internal/util/actorutil"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	// the server has 5 seconds to finish the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	done <- true
}

func main() {

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		return
	}
	safePrintConfig(*cfg)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())
	defer logger.Sync()

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterActor(*cfg, nil, mqttActorProvider(cfg, logger), logger)
	})
	pid, err := ctx.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	if err != nil {
		logger.Error("could not spawn master actor", zap.Error(err))
		return
	}

	// config entries
	entryStore, err := store.FromConfig(cfg.StorageConfig)
	if err != nil {
		logger.Error("could not open storage", zap.Error(err))
		return
	}
	defer entryStore.Close()

	integration := service.NewIntegration(logger)
	platform := host.NewActorPlatform(ctx, pid, 10*time.Second)
	entries := host.NewConfigEntries(entryStore, integration, platform, logger)
	flows := host.NewFlowManager(entries, integration, time.Duration(cfg.FlowConfig.IdleTimeoutMillis)*time.Millisecond, logger)

	if err := entries.Load(context.Background()); err != nil {
		logger.Error("could not load config entries", zap.Error(err))
		return
	}

	server := server.NewServer(*cfg, ctx, pid, entries, flows, platform, logger)
	done := make(chan bool, 1)

	go gracefulShutdown(server, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")

	entries.Unload(context.Background())
	if err := ctx.StopFuture(pid).Wait(); err != nil {
		logger.Warn("master actor did not stop cleanly", zap.Error(err))
	}
	as.Shutdown()
}

func initConfig() (*config.Config, error) {

	// alias PORT => SIB_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("SIB_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("sib")
	viper.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err = viper.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	// parse log level
	switch viper.GetString("log_level") {
	case "trace", "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	// check and fix base topic
	baseTopic, err := config.CheckMQTTTopic(cfg.MQTT.BaseTopic)
	if err != nil {
		return nil, errors.New("invalid base topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.BaseTopic = baseTopic

	// check and fix homeassistant discovery topic
	hadBaseTopic, err := config.CheckMQTTTopic(cfg.MQTT.HADiscoveryTopic)
	if err != nil {
		return nil, errors.New("invalid homeassistant discovery topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.HADiscoveryTopic = hadBaseTopic

	driver, err := config.CheckStorageDriver(cfg.StorageConfig.Driver)
	if err != nil {
		return nil, err
	}
	cfg.StorageConfig.Driver = driver
	if driver != config.STORAGE_DRIVER_MEMORY && cfg.StorageConfig.Path == "" {
		return nil, errors.New("config param storage.path is required")
	}

	// check bounds
	if cfg.PlatformConfig.ScanIntervalMillis < 1000 {
		return nil, errors.New("config param platform.scan_interval_millis should be >= 1000")
	}
	if cfg.PlatformConfig.UpdateTimeoutMillis == 0 {
		return nil, errors.New("config param platform.update_timeout_millis should be > 0")
	}

	return &cfg, nil
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	if !cfg.MQTT.Enable {
		return func(es *eventstream.EventStream) *adactor.MQTTActor {
			return adactor.NewTestMQTTActor(cfg, es, nil, logger)
		}
	}
	return func(es *eventstream.EventStream) *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, es, logger)
	}
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("port", 8080)
	viper.SetDefault("http_log", false)
	viper.SetDefault("storage.driver", config.STORAGE_DRIVER_FILE)
	viper.SetDefault("storage.path", ".storage/core.config_entries")
	viper.SetDefault("platform.scan_interval_millis", 30000)
	viper.SetDefault("flow.idle_timeout_millis", 1800000)
	viper.SetDefault("platform.update_timeout_millis", 5000)
	viper.SetDefault("mqtt.enable", false)
	viper.SetDefault("mqtt.host", "localhost")
	viper.SetDefault("mqtt.port", 1883)
	viper.SetDefault("mqtt.username", "")
	viper.SetDefault("mqtt.password", "")
	viper.SetDefault("mqtt.base_topic", "sib")
	viper.SetDefault("mqtt.ha_discovery_enable", false)
	viper.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
}

func safePrintConfig(cfg config.Config) {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	slog.Info("Using", "config", cfg)
}
