package hass

// Abbreviated discovery keys, the long form is never sent.
const (
	FieldDevice             = "dev"
	FieldUniqueID           = "uniq_id"
	FieldName               = "name"
	FieldStateTopic         = "stat_t"
	FieldCommandTopic       = "cmd_t"
	FieldAvailabilityTopic  = "avty_t"
	FieldPayloadAvailable   = "pl_avail"
	FieldPayloadUnavailable = "pl_not_avail"
	FieldPayloadOn          = "pl_on"
	FieldPayloadOff         = "pl_off"
	FieldUnitOfMeasurement  = "unit_of_meas"

	// light, json schema
	FieldSchema              = "schema"
	FieldBrightness          = "brightness"
	FieldColorMode           = "color_mode"
	FieldSupportedColorModes = "supported_color_modes"
	FieldMinMireds           = "min_mirs"
	FieldMaxMireds           = "max_mirs"
)

const (
	DomainSwitch = "switch"
	DomainLight  = "light"
	DomainSensor = "sensor"
)

const (
	ColorModeHS         = "hs"
	ColorModeRGB        = "rgb"
	ColorModeRGBW       = "rgbw"
	ColorModeRGBWW      = "rgbww"
	ColorModeColorTemp  = "color_temp"
	ColorModeWhite      = "white"
	ColorModeBrightness = "brightness"
)

// DeviceBlock groups every entity of this device on a single device page.
type DeviceBlock struct {
	Name         string   `json:"name"`
	Identifiers  []string `json:"ids"`
	Version      string   `json:"sw"`
	Manufacturer string   `json:"mf"`
	Model        string   `json:"mdl"`
}

// LightCommand is received on the light command topic. Pointers tell apart
// absent keys from zero values.
type LightCommand struct {
	State      *string      `json:"state"`
	Brightness *int         `json:"brightness"`
	ColorTemp  *int         `json:"color_temp"`
	Transition *float64     `json:"transition"`
	Color      *LightColors `json:"color"`
}

type LightColors struct {
	Hue        *int `json:"h"`
	Saturation *int `json:"s"`
	Red        *int `json:"r"`
	Green      *int `json:"g"`
	Blue       *int `json:"b"`
	Warm       *int `json:"w"`
	Cold       *int `json:"c"`
}

// LightReport is published on the light state topic.
type LightReport struct {
	State      string         `json:"state"`
	Brightness *int           `json:"brightness,omitempty"`
	ColorMode  string         `json:"color_mode,omitempty"`
	Color      map[string]int `json:"color,omitempty"`
}
