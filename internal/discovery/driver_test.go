package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type driverFixture struct {
	bus    *fakeBus
	timer  *fakeTimer
	driver *Driver
	built  []State
}

func newDriverFixture(relays, lights int, sensors fakeSensors) *driverFixture {
	f := &driverFixture{bus: newFakeBus(), timer: &fakeTimer{}}
	f.driver = NewDriver(f.bus, f.timer, func(state State) *Task {
		f.built = append(f.built, state)
		return newTestTask(state, relays, lights, sensors)
	}, nil)
	return f
}

func TestDriverPublishesAndWaitsForDelivery(t *testing.T) {
	f := newDriverFixture(2, 0, temperature)
	f.driver.SetRetain(true)

	f.driver.PublishForState(Enabled)
	require.True(t, f.driver.Active())
	assert.Equal(t, WaitShort, f.timer.wait)

	for i := 0; i < 3; i++ {
		require.True(t, f.timer.fire())
		require.Len(t, f.bus.sent, i+1)
		f.bus.deliverAll()
	}
	assert.Equal(t, "homeassistant/sensor/a1b2c3_temperature_0/config", f.bus.sent[0].topic)
	assert.Equal(t, "homeassistant/switch/a1b2c3_relay_0/config", f.bus.sent[1].topic)
	assert.Equal(t, "homeassistant/switch/a1b2c3_relay_1/config", f.bus.sent[2].topic)
	for _, p := range f.bus.sent {
		assert.True(t, p.retain)
		assert.Equal(t, QoS, p.qos)
	}

	assert.False(t, f.driver.SentOnce())
	require.True(t, f.timer.fire())
	assert.True(t, f.driver.SentOnce())
	assert.False(t, f.driver.Active())
	assert.Len(t, f.bus.sent, 3)
}

func TestDriverRetriesUnconfirmedThenRestarts(t *testing.T) {
	f := newDriverFixture(2, 0, fakeSensors{})

	f.driver.PublishForState(Enabled)
	require.True(t, f.timer.fire())
	require.Len(t, f.bus.sent, 1)

	// relay_0 is sent but never confirmed
	for i := 1; i < Retries; i++ {
		require.True(t, f.timer.fire())
		assert.Equal(t, WaitShort, f.timer.wait)
	}
	require.True(t, f.timer.fire())
	assert.Equal(t, WaitRestart, f.timer.wait)
	assert.Equal(t, []State{Enabled, Enabled}, f.built)
	assert.Len(t, f.bus.sent, 1, "nothing is published while waiting")

	// the brand new task starts over
	require.True(t, f.timer.fire())
	require.Len(t, f.bus.sent, 2)
	assert.Equal(t, f.bus.sent[0].topic, f.bus.sent[1].topic)
}

func TestDriverRetriesRejectedPublish(t *testing.T) {
	f := newDriverFixture(1, 0, fakeSensors{})
	f.bus.accept = false

	f.driver.PublishForState(Disabled)
	for i := 1; i < Retries; i++ {
		require.True(t, f.timer.fire())
		assert.Equal(t, WaitShort, f.timer.wait)
	}
	require.True(t, f.timer.fire())
	assert.Equal(t, WaitRestart, f.timer.wait)
	assert.Equal(t, []State{Disabled, Disabled}, f.built)

	f.bus.accept = true
	require.True(t, f.timer.fire())
	require.Len(t, f.bus.sent, 1)
	assert.Empty(t, f.bus.sent[0].payload)
}

func TestDriverRecoversAfterLateDelivery(t *testing.T) {
	f := newDriverFixture(2, 0, fakeSensors{})

	f.driver.PublishForState(Enabled)
	require.True(t, f.timer.fire())
	require.True(t, f.timer.fire()) // still unconfirmed, consumes a retry
	f.bus.deliverAll()
	require.True(t, f.timer.fire())

	require.Len(t, f.bus.sent, 2)
	assert.Equal(t, "homeassistant/switch/a1b2c3_relay_1/config", f.bus.sent[1].topic)
}

func TestDriverStopsWhenDisconnected(t *testing.T) {
	f := newDriverFixture(2, 0, fakeSensors{})

	f.driver.PublishForState(Enabled)
	f.bus.connected = false
	require.True(t, f.timer.fire())

	assert.Empty(t, f.bus.sent)
	assert.False(t, f.driver.Active())
	assert.True(t, f.driver.SentOnce())
}

func TestDriverStopCancelsRun(t *testing.T) {
	f := newDriverFixture(2, 0, fakeSensors{})

	f.driver.PublishForState(Enabled)
	require.True(t, f.timer.fire())
	pending := f.timer.fn
	require.NotNil(t, pending)

	f.driver.Stop()
	assert.False(t, f.driver.Active())
	assert.False(t, f.driver.SentOnce())

	// an expiration already in flight is ignored
	pending()
	assert.Len(t, f.bus.sent, 1)
	assert.False(t, f.driver.Active())
}

func TestDriverPublishForStateRequiresConnection(t *testing.T) {
	f := newDriverFixture(2, 0, fakeSensors{})
	f.bus.connected = false

	f.driver.PublishForState(Enabled)
	assert.False(t, f.driver.Active())
	assert.Empty(t, f.built)
}

func TestDriverIgnoresEmptyTask(t *testing.T) {
	ctx := testContext()
	f := &driverFixture{bus: newFakeBus(), timer: &fakeTimer{}}
	f.driver = NewDriver(f.bus, f.timer, func(state State) *Task {
		return NewTask(ctx, state, nil)
	}, nil)

	f.driver.PublishForState(Enabled)
	assert.False(t, f.driver.Active())
}

func TestDriverNewRunReplacesCurrent(t *testing.T) {
	f := newDriverFixture(1, 0, fakeSensors{})

	f.driver.PublishForState(Enabled)
	stale := f.timer.fn
	f.driver.PublishForState(Disabled)

	stale()
	assert.Empty(t, f.bus.sent)

	require.True(t, f.timer.fire())
	require.Len(t, f.bus.sent, 1)
	assert.Empty(t, f.bus.sent[0].payload)
}
