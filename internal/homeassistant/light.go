package homeassistant

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/kuretru/hass-discovery-device/entity"
	"github.com/kuretru/hass-discovery-device/entity/hass"
	"github.com/kuretru/hass-discovery-device/internal/discovery"
	"github.com/kuretru/hass-discovery-device/internal/utils"
)

const (
	stateOn  = "ON"
	stateOff = "OFF"
)

// ReceiveLightJSON applies a JSON schema command. Anything unparsable, or
// without an ON/OFF state, is dropped without a trace. It reports whether
// the light was updated.
func (m *Module) ReceiveLightJSON(payload string) bool {
	var command hass.LightCommand
	if err := json.Unmarshal([]byte(payload), &command); err != nil {
		return false
	}
	if command.State == nil {
		return false
	}
	var on bool
	switch *command.State {
	case stateOn:
		on = true
	case stateOff:
	default:
		return false
	}

	hasColor := m.store.LightHasColor()
	m.store.UpdateLight(func(state *entity.LightState) {
		state.On = on
		if command.Transition != nil && *command.Transition > 0 {
			state.Transition = time.Duration(*command.Transition * float64(time.Second))
		}
		if command.ColorTemp != nil {
			state.Mireds = *command.ColorTemp
			state.Color = false
		}
		if command.Brightness != nil {
			state.Brightness = *command.Brightness
		}
		if hasColor && command.Color != nil {
			state.Color = true
			applyColor(state, command.Color)
		}
	})
	return true
}

func applyColor(state *entity.LightState, color *hass.LightColors) {
	switch {
	case color.Hue != nil && color.Saturation != nil:
		state.UseRGB = false
		state.Hue, state.Saturation = *color.Hue, *color.Saturation
	case color.Red != nil && color.Green != nil && color.Blue != nil:
		state.UseRGB = true
		state.Red, state.Green, state.Blue = *color.Red, *color.Green, *color.Blue
	}
	if color.Warm != nil {
		state.Warm = *color.Warm
	}
	if color.Cold != nil {
		state.Cold = *color.Cold
	}
}

// LightStatePayload renders the state document of the light.
func (m *Module) LightStatePayload() string {
	state := m.store.Light()
	report := hass.LightReport{State: stateOff}
	if state.On {
		report.State = stateOn
		brightness := state.Brightness
		report.Brightness = &brightness
		if m.store.LightHasColor() && state.Color {
			report.Color = make(map[string]int)
			if state.UseRGB {
				report.ColorMode = m.rgbColor(state, report.Color)
			} else {
				report.ColorMode = hass.ColorModeHS
				report.Color["h"] = state.Hue
				report.Color["s"] = state.Saturation
			}
		}
	}
	data, _ := json.Marshal(report)
	return string(data)
}

func (m *Module) rgbColor(state entity.LightState, color map[string]int) string {
	color["r"], color["g"], color["b"] = state.Red, state.Green, state.Blue
	switch {
	case m.store.LightHasWarmWhite() && m.store.LightHasColdWhite():
		color["c"], color["w"] = state.Cold, state.Warm
		return hass.ColorModeRGBWW
	case m.store.LightHasWarmWhite():
		color["w"] = state.Warm
		return hass.ColorModeRGBW
	}
	return hass.ColorModeRGB
}

// PublishLight reports the light state, never retained.
func (m *Module) PublishLight() {
	if m.store.LightChannels() == 0 {
		return
	}
	m.bus.PublishState(m.topics.Topic(discovery.LightTopic), m.LightStatePayload(), false)
}

func itoa(i int) string {
	return strconv.Itoa(i)
}

func atoi(value string) int {
	return utils.ParseIntOrDefault(value, -1)
}
