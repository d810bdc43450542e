package homeassistant

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuretru/hass-discovery-device/entity"
)

func TestReceiveLightJSONIgnoresInvalid(t *testing.T) {
	f := newFixture(t, entity.HomeAssistantConfig{Enabled: true})
	before := f.store.Light()

	for _, payload := range []string{
		"",
		"not json",
		`{"brightness":10}`,
		`{"state":"TOGGLE","brightness":10}`,
		`{"state":1}`,
	} {
		assert.False(t, f.module.ReceiveLightJSON(payload), payload)
	}
	assert.Equal(t, before, f.store.Light())

	f.module.OnMessage("kitchen/light_json/set", "garbage")
	assert.Empty(t, f.bus.states)
}

func TestReceiveLightJSON(t *testing.T) {
	f := newFixture(t, entity.HomeAssistantConfig{Enabled: true})

	require.True(t, f.module.ReceiveLightJSON(
		`{"state":"ON","brightness":128,"transition":1.5,"color_temp":300,"color":{"r":1,"g":2,"b":3,"w":4}}`))
	state := f.store.Light()
	assert.True(t, state.On)
	assert.Equal(t, 128, state.Brightness)
	assert.Equal(t, 1500*time.Millisecond, state.Transition)
	assert.Equal(t, 300, state.Mireds)
	assert.True(t, state.UseRGB)
	assert.Equal(t, [4]int{1, 2, 3, 4}, [4]int{state.Red, state.Green, state.Blue, state.Warm})

	assert.Equal(t,
		`{"state":"ON","brightness":128,"color_mode":"rgbw","color":{"b":3,"g":2,"r":1,"w":4}}`,
		f.module.LightStatePayload())

	require.True(t, f.module.ReceiveLightJSON(`{"state":"ON","color":{"h":120,"s":50}}`))
	assert.Equal(t,
		`{"state":"ON","brightness":128,"color_mode":"hs","color":{"h":120,"s":50}}`,
		f.module.LightStatePayload())

	require.True(t, f.module.ReceiveLightJSON(`{"state":"OFF"}`))
	assert.Equal(t, `{"state":"OFF"}`, f.module.LightStatePayload())
}

func TestLightStateOmitsColorInWhiteMode(t *testing.T) {
	f := newFixture(t, entity.HomeAssistantConfig{Enabled: true})

	require.True(t, f.module.ReceiveLightJSON(`{"state":"ON","brightness":64,"color_temp":250}`))
	assert.False(t, f.store.Light().Color)
	assert.Equal(t, `{"state":"ON","brightness":64}`, f.module.LightStatePayload())

	require.True(t, f.module.ReceiveLightJSON(`{"state":"ON","color":{"r":9,"g":8,"b":7}}`))
	assert.True(t, f.store.Light().Color)
	assert.Equal(t,
		`{"state":"ON","brightness":64,"color_mode":"rgbw","color":{"b":7,"g":8,"r":9,"w":0}}`,
		f.module.LightStatePayload())
}

func TestLightCommandPublishesState(t *testing.T) {
	f := newFixture(t, entity.HomeAssistantConfig{Enabled: true, Retain: true})

	f.module.OnMessage("kitchen/light_json/set", `{"state":"ON","brightness":10}`)
	require.Len(t, f.bus.states, 1)
	assert.Equal(t, "kitchen/light_json", f.bus.states[0].topic)
	assert.False(t, f.bus.states[0].retain)
	assert.JSONEq(t, `{"state":"ON","brightness":10,"color_mode":"hs","color":{"h":0,"s":0}}`, f.bus.states[0].payload)
}
