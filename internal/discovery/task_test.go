package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuretru/hass-discovery-device/entity"
)

type sent struct {
	topic   string
	payload string
}

func recorder(out *[]sent, accept bool) PublishFunc {
	return func(topic, payload string) bool {
		if accept {
			*out = append(*out, sent{topic, payload})
		}
		return accept
	}
}

func newTestTask(state State, relays, lights int, sensors fakeSensors) *Task {
	ctx := testContext()
	task := NewTask(ctx, state, nil)
	task.Add(NewLight(ctx, fakeLights{channels: lights}, testTopics))
	task.Add(NewRelay(ctx, fakeRelays{count: relays}, testTopics))
	task.Add(NewSensor(ctx, sensors, testTopics))
	return task
}

var temperature = fakeSensors{{Type: "temperature", Index: 0, Topic: "temperature/0", Units: "°C"}}

func TestTaskAddPutsEntityInFront(t *testing.T) {
	ctx := testContext()
	task := NewTask(ctx, Enabled, nil)
	first := NewRelay(ctx, fakeRelays{count: 1}, testTopics)
	second := NewSensor(ctx, temperature, testTopics)
	task.Add(first)
	task.Add(second)

	var out []sent
	require.True(t, task.Send(recorder(&out, true)))
	assert.Equal(t, "homeassistant/sensor/a1b2c3_temperature_0/config", out[0].topic)
	assert.Equal(t, 1, task.Len())
}

func TestTaskDrainsAllFamilies(t *testing.T) {
	task := newTestTask(Enabled, 2, 0, temperature)

	var out []sent
	for !task.Done() {
		require.True(t, task.Send(recorder(&out, true)))
	}

	require.Len(t, out, 3)
	assert.Equal(t, "homeassistant/sensor/a1b2c3_temperature_0/config", out[0].topic)
	assert.Equal(t, "homeassistant/switch/a1b2c3_relay_0/config", out[1].topic)
	assert.Equal(t, "homeassistant/switch/a1b2c3_relay_1/config", out[2].topic)
	for _, s := range out {
		assert.NotEmpty(t, s.payload)
	}
	assert.True(t, task.Done())
	assert.False(t, task.OK())
	assert.False(t, task.Send(recorder(&out, true)))
}

func TestTaskSkipsEmptyFamilies(t *testing.T) {
	task := newTestTask(Enabled, 0, 0, fakeSensors{})
	require.Equal(t, 3, task.Len())

	calls := 0
	assert.False(t, task.Send(func(string, string) bool {
		calls++
		return true
	}))
	assert.Zero(t, calls)
	assert.Zero(t, task.Len())
	assert.True(t, task.Done())
}

func TestTaskRejectedPublishIsRepeated(t *testing.T) {
	task := newTestTask(Enabled, 1, 0, fakeSensors{})

	var attempts []sent
	reject := func(topic, payload string) bool {
		attempts = append(attempts, sent{topic, payload})
		return false
	}
	assert.False(t, task.Send(reject))
	assert.False(t, task.Send(reject))
	require.Len(t, attempts, 2)
	assert.Equal(t, attempts[0], attempts[1])

	var out []sent
	assert.True(t, task.Send(recorder(&out, true)))
	assert.Equal(t, attempts[0], out[0])
}

func TestTaskRetryExhaustion(t *testing.T) {
	task := newTestTask(Enabled, 2, 1, temperature)

	for i := 1; i < Retries; i++ {
		assert.True(t, task.Retry(), "retry %d", i)
		assert.False(t, task.Done())
	}
	assert.False(t, task.Retry())
	assert.True(t, task.Done())
	assert.False(t, task.Retry())
	assert.False(t, task.OK())

	calls := 0
	assert.False(t, task.Send(func(string, string) bool {
		calls++
		return true
	}))
	assert.Zero(t, calls)
}

func TestTaskSuccessRefillsRetries(t *testing.T) {
	task := newTestTask(Enabled, 1, 0, temperature)

	for i := 1; i < Retries; i++ {
		task.Retry()
	}
	var out []sent
	require.True(t, task.Send(recorder(&out, true)))

	for i := 1; i < Retries; i++ {
		assert.True(t, task.Retry())
	}
}

func TestTaskDisabledSendsEmptyPayloads(t *testing.T) {
	var enabled, disabled []sent

	task := newTestTask(Enabled, 2, 1, temperature)
	for !task.Done() {
		task.Send(recorder(&enabled, true))
	}
	task = newTestTask(Disabled, 2, 1, temperature)
	for !task.Done() {
		task.Send(recorder(&disabled, true))
	}

	require.Len(t, disabled, len(enabled))
	for i := range enabled {
		assert.Equal(t, enabled[i].topic, disabled[i].topic)
		assert.NotEmpty(t, enabled[i].payload)
		assert.Empty(t, disabled[i].payload)
	}
}

func TestTaskOK(t *testing.T) {
	ctx := testContext()
	task := NewTask(ctx, Enabled, nil)
	assert.False(t, task.OK(), "an empty task is done, not ok")

	task.Add(NewSensor(ctx, fakeSensors{}, testTopics))
	assert.True(t, task.OK(), "queued entities without data")

	task.Add(NewRelay(ctx, fakeRelays{count: 1}, testTopics))
	assert.False(t, task.OK())
}

func TestTaskDropsEntityThatDoesNotFit(t *testing.T) {
	desc := NewDescriptor("node", "id", "homeassistant", entity.BuildInfo{})
	ctx := NewContext(desc, 64)
	task := NewTask(ctx, Enabled, nil)
	task.Add(NewRelay(ctx, fakeRelays{count: 2}, testTopics))

	calls := 0
	assert.False(t, task.Send(func(string, string) bool {
		calls++
		return true
	}))
	assert.Zero(t, calls)
	assert.True(t, task.Done())
}

func TestTaskResetsArenaBetweenMessages(t *testing.T) {
	task := newTestTask(Enabled, 8, 0, fakeSensors{})

	var out []sent
	for !task.Done() {
		require.True(t, task.Send(recorder(&out, true)))
		assert.Zero(t, task.Context().Size())
	}
	assert.Len(t, out, 8)
}
