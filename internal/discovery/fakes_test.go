package discovery

import (
	"time"

	"github.com/kuretru/hass-discovery-device/entity"
)

type fakeRelays struct {
	count int
}

func (f fakeRelays) RelayCount() int {
	return f.count
}

func (f fakeRelays) RelayPayload(on bool) string {
	if on {
		return "1"
	}
	return "0"
}

type fakeLights struct {
	channels              int
	color, warm, cold, ww bool
}

func (f fakeLights) LightChannels() int      { return f.channels }
func (f fakeLights) LightHasColor() bool     { return f.color }
func (f fakeLights) LightHasWarmWhite() bool { return f.warm }
func (f fakeLights) LightHasColdWhite() bool { return f.cold }
func (f fakeLights) LightHasWhite() bool     { return f.ww }
func (f fakeLights) LightMiredsRange() (int, int) {
	return 153, 500
}

type fakeSensors []entity.Magnitude

func (f fakeSensors) MagnitudeCount() int {
	return len(f)
}

func (f fakeSensors) MagnitudeInfo(index int) entity.Magnitude {
	return f[index]
}

var testTopics = Topics{
	Root:    "kitchen",
	Setter:  "/set",
	Status:  "status",
	Online:  "1",
	Offline: "0",
}

func testContext() *Context {
	desc := NewDescriptor("Kitchen-Node", "A1B2C3", "homeassistant", entity.BuildInfo{
		Version:      "1.2.3",
		Manufacturer: "ACME",
		Model:        "SWITCH2",
	})
	return NewContext(desc, DefaultCapacity)
}

type published struct {
	topic   string
	payload string
	retain  bool
	qos     byte
	id      uint16
}

type fakeBus struct {
	connected bool
	accept    bool
	nextID    uint16
	sent      []published
	callbacks map[uint16]func()
}

func newFakeBus() *fakeBus {
	return &fakeBus{connected: true, accept: true, callbacks: make(map[uint16]func())}
}

func (b *fakeBus) Connected() bool {
	return b.connected
}

func (b *fakeBus) Publish(topic, payload string, retain bool, qos byte) (uint16, bool) {
	if !b.accept {
		return 0, false
	}
	b.nextID++
	b.sent = append(b.sent, published{topic: topic, payload: payload, retain: retain, qos: qos, id: b.nextID})
	return b.nextID, true
}

func (b *fakeBus) OnDelivered(id uint16, fn func()) {
	b.callbacks[id] = fn
}

// deliverAll acknowledges every outstanding publish.
func (b *fakeBus) deliverAll() {
	for id, fn := range b.callbacks {
		delete(b.callbacks, id)
		fn()
	}
}

type fakeTimer struct {
	wait   time.Duration
	fn     func()
	active bool
	armed  int
}

func (t *fakeTimer) ScheduleOnce(d time.Duration, fn func()) {
	t.wait, t.fn, t.active = d, fn, true
	t.armed++
}

func (t *fakeTimer) Stop() {
	t.active = false
	t.fn = nil
}

func (t *fakeTimer) Active() bool {
	return t.active
}

// fire runs the pending callback; it reports false when nothing is armed.
func (t *fakeTimer) fire() bool {
	if !t.active || t.fn == nil {
		return false
	}
	fn := t.fn
	t.active, t.fn = false, nil
	fn()
	return true
}
