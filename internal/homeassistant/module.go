// Package homeassistant ties discovery to the device: it follows the "ha"
// settings, reacts to bus events and the Home Assistant birth message, and
// handles the light JSON schema and the periodic state reports.
package homeassistant

import (
	"context"
	"log/slog"
	"strings"

	"github.com/kuretru/hass-discovery-device/entity"
	"github.com/kuretru/hass-discovery-device/internal/discovery"
)

// Bus is the MQTT client as seen by the module.
type Bus interface {
	discovery.Bus
	Subscribe(topic string)
	Unsubscribe(topic string)
	Reconnect(ctx context.Context)
	PublishState(topic, payload string, retain bool)
}

// Store provides the entities and their state.
type Store interface {
	discovery.Relays
	discovery.Lights
	discovery.Sensors
	Relays() []bool
	ApplyRelayPayload(id int, payload string) (bool, bool)
	Magnitudes() []entity.Magnitude
	Light() entity.LightState
	UpdateLight(fn func(state *entity.LightState)) entity.LightState
}

type Options struct {
	Context    context.Context
	Defaults   entity.HomeAssistantConfig
	Hostname   string
	Identifier string
	Build      entity.BuildInfo
	Topics     discovery.Topics
	Capacity   int
	Settings   Settings
	Store      Store
	Bus        Bus
	Timer      discovery.Timer
	Logger     *slog.Logger
}

// Module must only be used from the device loop.
type Module struct {
	ctx        context.Context
	defaults   entity.HomeAssistantConfig
	hostname   string
	identifier string
	build      entity.BuildInfo
	topics     discovery.Topics
	capacity   int
	settings   Settings
	store      Store
	bus        Bus
	driver     *discovery.Driver
	logger     *slog.Logger

	configured   bool
	enabled      bool
	retain       bool
	birthTopic   string
	birthPayload string
}

func New(opts Options) *Module {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	defaults := Defaults(opts.Defaults)
	m := &Module{
		ctx:        opts.Context,
		defaults:   defaults,
		hostname:   opts.Hostname,
		identifier: opts.Identifier,
		build:      opts.Build,
		topics:     opts.Topics,
		capacity:   opts.Capacity,
		settings:   opts.Settings,
		store:      opts.Store,
		bus:        opts.Bus,
		logger:     opts.Logger,
		enabled:    defaults.Enabled,
		retain:     defaults.Retain,
	}
	m.driver = discovery.NewDriver(opts.Bus, opts.Timer, m.makeTask, opts.Logger)
	m.settings.RegisterQuery(KeyPrefix, m.Query)
	return m
}

func (m *Module) Driver() *discovery.Driver {
	return m.driver
}

func (m *Module) Enabled() bool {
	return m.enabled
}

// makeTask builds a run over every entity family. The queue is consumed
// front to back, so the sensors go first and the light last.
func (m *Module) makeTask(state discovery.State) *discovery.Task {
	desc := discovery.NewDescriptor(m.settingHostname(), m.identifier, m.settingPrefix(), m.build)
	ctx := discovery.NewContext(desc, m.capacity)

	task := discovery.NewTask(ctx, state, m.logger)
	task.Add(discovery.NewLight(ctx, m.store, m.topics))
	task.Add(discovery.NewRelay(ctx, m.store, m.topics))
	task.Add(discovery.NewSensor(ctx, m.store, m.topics))
	return task
}

// Configure re-reads the settings. The first call only records them.
func (m *Module) Configure() {
	m.retain = m.settingRetain()
	m.driver.SetRetain(m.retain)

	previous := m.enabled
	m.enabled = m.settingEnabled()

	reconnect := false
	if topic := m.settingBirthTopic(); topic != m.birthTopic {
		if m.configured && m.birthTopic != "" {
			m.bus.Unsubscribe(m.birthTopic)
		}
		m.birthTopic = topic
		reconnect = true
	}
	if payload := m.settingBirthPayload(); payload != m.birthPayload {
		m.birthPayload = payload
		reconnect = true
	}

	if !m.configured {
		m.configured = true
		return
	}
	if previous != m.enabled {
		if m.enabled {
			m.subscribe()
		} else {
			m.unsubscribe()
		}
	}
	if reconnect {
		m.logger.Info("HomeAssistant: birth message changed, reconnecting", "topic", m.birthTopic)
		m.bus.Reconnect(m.ctx)
	}
	if previous != m.enabled {
		m.Publish(m.enabled)
	}
}

// subscribe follows the light commands and the birth message, both only
// needed while discovery is enabled.
func (m *Module) subscribe() {
	if m.store.LightChannels() > 0 {
		m.bus.Subscribe(m.topics.SetterTopic(discovery.LightTopic))
	}
	if m.birthTopic != "" {
		m.bus.Subscribe(m.birthTopic)
	}
}

func (m *Module) unsubscribe() {
	if m.store.LightChannels() > 0 {
		m.bus.Unsubscribe(m.topics.SetterTopic(discovery.LightTopic))
	}
	if m.birthTopic != "" {
		m.bus.Unsubscribe(m.birthTopic)
	}
}

// Publish starts a run that either advertises (true) or retracts (false)
// every entity.
func (m *Module) Publish(state bool) {
	if state {
		m.driver.PublishForState(discovery.Enabled)
	} else {
		m.driver.PublishForState(discovery.Disabled)
	}
}

func (m *Module) Send() {
	m.Publish(true)
}

func (m *Module) Clear() {
	m.Publish(false)
}

func (m *Module) OnConnected() {
	m.Heartbeat()
	if m.store.RelayCount() > 0 {
		m.bus.Subscribe(m.topics.SetterTopic("relay", "+"))
	}
	if !m.enabled {
		return
	}
	m.Send()
	m.subscribe()
}

func (m *Module) OnDisconnected() {
	m.driver.Stop()
}

func (m *Module) OnMessage(topic, payload string) {
	if m.enabled && m.store.LightChannels() > 0 && topic == m.topics.SetterTopic(discovery.LightTopic) {
		if m.ReceiveLightJSON(payload) {
			m.PublishLight()
		}
		return
	}

	if id, ok := m.relayFromTopic(topic); ok {
		if state, ok := m.store.ApplyRelayPayload(id, payload); ok {
			m.bus.PublishState(m.topics.Topic("relay", itoa(id)), m.store.RelayPayload(state), m.retain)
		}
		return
	}

	if !m.enabled || m.birthTopic == "" || topic != m.birthTopic {
		return
	}
	if m.birthPayload == "" || payload != m.birthPayload {
		return
	}
	// retained configs are still on the broker
	if m.retain && (m.driver.SentOnce() || m.driver.Active()) {
		m.logger.Debug("HomeAssistant: birth ignored, configs are retained")
		return
	}
	m.logger.Info("HomeAssistant: birth received", "topic", topic)
	m.Send()
}

func (m *Module) relayFromTopic(topic string) (int, bool) {
	prefix := m.topics.Topic("relay") + "/"
	if !strings.HasPrefix(topic, prefix) || !strings.HasSuffix(topic, m.topics.Setter) {
		return 0, false
	}
	middle := strings.TrimSuffix(strings.TrimPrefix(topic, prefix), m.topics.Setter)
	id := atoi(middle)
	if id < 0 || id >= m.store.RelayCount() {
		return 0, false
	}
	return id, true
}
