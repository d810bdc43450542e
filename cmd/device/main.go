package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kuretru/hass-discovery-device/entity"
	"github.com/kuretru/hass-discovery-device/internal/database"
	"github.com/kuretru/hass-discovery-device/internal/discovery"
	"github.com/kuretru/hass-discovery-device/internal/homeassistant"
	"github.com/kuretru/hass-discovery-device/internal/loop"
	"github.com/kuretru/hass-discovery-device/internal/mqtt"
	"github.com/kuretru/hass-discovery-device/internal/sensor"
	"github.com/kuretru/hass-discovery-device/internal/settings"
	"github.com/kuretru/hass-discovery-device/internal/terminal"
	"github.com/kuretru/hass-discovery-device/internal/web"
)

// Set with -ldflags "-X main.version=..."
var version = "dev"

const shutdownTimeout = 5 * time.Second

func main() {
	config := loadConfig()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	output := &logOutput{w: os.Stderr}
	logger := newLogger(config, output)
	slog.SetDefault(logger)

	store, err := settings.Open(config.Settings.Path)
	if err != nil {
		logger.Error("Main: open settings failed", "err", err)
		os.Exit(1)
	}

	identifier := config.Device.Identifier
	if identifier == "" {
		if identifier, err = settings.LoadOrCreateIdentifier(config.Settings.DataDir); err != nil {
			logger.Error("Main: device identifier unavailable", "err", err)
			os.Exit(1)
		}
	}

	hostname := config.Device.Hostname
	if hostname == "" {
		hostname, _ = os.Hostname()
	}
	hostname = store.GetString(homeassistant.KeyHostname, hostname)
	config.resolveTopics(hostname)

	db := database.New(config.Relays, config.Light)
	registerMagnitudes(config, db, logger)

	l := loop.New(0, logger)
	bus := mqtt.NewClient(config.MQTT, l, logger)
	module := homeassistant.New(homeassistant.Options{
		Context:    ctx,
		Defaults:   config.HomeAssistant,
		Hostname:   hostname,
		Identifier: identifier,
		Build: entity.BuildInfo{
			Version:      version,
			Manufacturer: config.Device.Manufacturer,
			Model:        config.Device.Model,
		},
		Topics: discovery.Topics{
			Root:    config.MQTT.Topic,
			Setter:  config.MQTT.Setter,
			Status:  config.MQTT.Status,
			Online:  config.MQTT.Online,
			Offline: config.MQTT.Offline,
		},
		Settings: store,
		Store:    db,
		Bus:      bus,
		Timer:    l.NewTimer(),
		Logger:   logger,
	})

	store.OnReload(module.Configure)
	bus.OnConnect(module.OnConnected)
	bus.OnDisconnect(module.OnDisconnected)
	bus.OnMessage(module.OnMessage)

	heartbeat := l.NewTicker(config.MQTT.Heartbeat, func() {
		if config.OneWire.Enabled {
			sensor.Refresh(db)
		}
		module.Heartbeat()
	})
	l.Post(func() {
		module.Configure()
		heartbeat.Start()
	})
	go l.Run(ctx)

	run := func(fn func()) { l.Call(fn) }

	if config.Web.Listen != "" {
		server := web.New(config.Web, module, store, db, run, logger)
		go func() {
			if err := server.Run(ctx); err != nil {
				logger.Error("Main: web server stopped", "err", err)
			}
		}()
	}

	if config.Console.Enabled {
		console, err := terminal.New(config.Console, module, store, run)
		if err != nil {
			logger.Error("Main: console unavailable", "err", err)
		} else {
			output.Redirect(console.Stdout())
			go console.Run(ctx, stop)
		}
	}

	if err = bus.Start(ctx); err != nil {
		logger.Error("Main: start mqtt failed", "err", err)
		os.Exit(1)
	}
	logger.Info("Main: started", "version", version, "hostname", hostname, "identifier", identifier)

	<-ctx.Done()
	logger.Info("Main: received shutdown signal, exiting gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err = bus.Stop(shutdownCtx); err != nil {
		logger.Warn("Main: stop mqtt failed", "err", err)
	}
}

func registerMagnitudes(config *Config, db *database.Store, logger *slog.Logger) {
	for _, s := range config.Sensors {
		db.AddMagnitude(entity.Magnitude{Type: s.Type, Units: s.Units})
	}
	if !config.OneWire.Enabled {
		return
	}

	probes, err := sensor.ScanW1(config.OneWire.Path)
	if err != nil {
		logger.Warn("Main: 1-wire scan failed", "err", err)
		return
	}
	for _, probe := range probes {
		magnitude := db.AddMagnitude(probe)
		logger.Info("Main: 1-wire probe found", "path", probe.Path, "topic", magnitude.Topic)
	}
	sensor.Refresh(db)
}
