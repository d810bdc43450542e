package discovery

import (
	"github.com/kuretru/hass-discovery-device/entity/hass"
	"github.com/kuretru/hass-discovery-device/internal/arena"
)

// LightTopic carries the JSON schema state and, with the setter suffix,
// the commands.
const LightTopic = "light_json"

// Light advertises the aggregate light of the device as a single JSON
// schema entity. It exists only when there is at least one channel.
type Light struct {
	cursor
	lights Lights
	topics Topics
}

func NewLight(ctx *Context, lights Lights, topics Topics) *Light {
	count := 0
	if lights.LightChannels() > 0 {
		count = 1
	}
	return &Light{
		cursor: cursor{ctx: ctx, count: count},
		lights: lights,
		topics: topics,
	}
}

func (l *Light) UniqueID() string {
	if l.uniqueID == "" {
		l.uniqueID = l.ctx.Identifier() + "_light"
	}
	return l.uniqueID
}

func (l *Light) Topic() string {
	return l.configTopic(hass.DomainLight, l.UniqueID())
}

// ColorModes lists the supported color modes, in the order they are
// advertised.
func ColorModes(lights Lights) []string {
	var modes []string
	if lights.LightHasColor() {
		modes = append(modes, hass.ColorModeHS, hass.ColorModeRGB)
		if lights.LightHasWarmWhite() && lights.LightHasColdWhite() {
			modes = append(modes, hass.ColorModeRGBWW)
		} else if lights.LightHasWarmWhite() {
			modes = append(modes, hass.ColorModeRGBW)
		}
	}
	if lights.LightHasColor() || lights.LightHasWhite() {
		modes = append(modes, hass.ColorModeColorTemp, hass.ColorModeWhite)
	}
	if len(modes) == 0 {
		modes = append(modes, hass.ColorModeBrightness)
	}
	return modes
}

func (l *Light) Message() (string, error) {
	return l.render(func(obj *arena.Object) error {
		if err := setDevice(obj, l.ctx); err != nil {
			return err
		}
		err := setAll(obj,
			pair{hass.FieldSchema, "json"},
			pair{hass.FieldUniqueID, l.UniqueID()},
			pair{hass.FieldName, l.ctx.Name() + " Light"},
			pair{hass.FieldStateTopic, l.topics.Topic(LightTopic)},
			pair{hass.FieldCommandTopic, l.topics.SetterTopic(LightTopic)},
		)
		if err != nil {
			return err
		}
		if err = setAvailability(obj, l.topics); err != nil {
			return err
		}
		if err = setAll(obj,
			pair{hass.FieldBrightness, true},
			pair{hass.FieldColorMode, true},
		); err != nil {
			return err
		}

		// mireds are only an input, the state never reports them back
		if l.lights.LightHasColor() || l.lights.LightHasWhite() {
			cold, warm := l.lights.LightMiredsRange()
			if err = setAll(obj,
				pair{hass.FieldMinMireds, cold},
				pair{hass.FieldMaxMireds, warm},
			); err != nil {
				return err
			}
		}

		modes, err := obj.Array(hass.FieldSupportedColorModes)
		if err != nil {
			return err
		}
		for _, mode := range ColorModes(l.lights) {
			if err = modes.Add(mode); err != nil {
				return err
			}
		}
		return nil
	})
}

func (l *Light) Advance() bool {
	return l.advance()
}
