package homeassistant

import (
	"strconv"
)

// Heartbeat reports the state of every relay, every magnitude and the
// light on the device's own topics.
func (m *Module) Heartbeat() {
	if !m.bus.Connected() {
		return
	}
	for id, on := range m.store.Relays() {
		m.bus.PublishState(m.topics.Topic("relay", itoa(id)), m.store.RelayPayload(on), m.retain)
	}
	for _, magnitude := range m.store.Magnitudes() {
		m.bus.PublishState(m.topics.Topic(magnitude.Topic), strconv.FormatFloat(magnitude.Value, 'f', -1, 64), m.retain)
	}
	m.PublishLight()
	m.logger.Debug("HomeAssistant: heartbeat published")
}
