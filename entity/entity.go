package entity

import "time"

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

type MQTTConfig struct {
	URL         string        `yaml:"url"`
	Keepalive   uint16        `yaml:"keepalive"`
	ClientID    string        `yaml:"client_id"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
	Topic       string        `yaml:"topic"`  // root topic of this device, "{hostname}" is replaced
	Setter      string        `yaml:"setter"` // suffix of command topics
	Status      string        `yaml:"status"` // availability topic, relative to root
	Online      string        `yaml:"online"`
	Offline     string        `yaml:"offline"`
	MaxInflight int           `yaml:"max_inflight"`
	Heartbeat   time.Duration `yaml:"heartbeat"`
}

// HomeAssistantConfig holds the build defaults, runtime settings override them.
type HomeAssistantConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Prefix       string `yaml:"prefix"`
	Retain       bool   `yaml:"retain"`
	BirthTopic   string `yaml:"birth_topic"`
	BirthPayload string `yaml:"birth_payload"`
}

type DeviceConfig struct {
	Hostname     string `yaml:"hostname"`
	Identifier   string `yaml:"identifier"`
	Manufacturer string `yaml:"manufacturer"`
	Model        string `yaml:"model"`
}

type RelayConfig struct {
	Count      int    `yaml:"count"`
	PayloadOn  string `yaml:"payload_on"`
	PayloadOff string `yaml:"payload_off"`
}

type LightConfig struct {
	Channels   int  `yaml:"channels"`
	Color      bool `yaml:"color"`
	WarmWhite  bool `yaml:"warm_white"`
	ColdWhite  bool `yaml:"cold_white"`
	MiredsCold int  `yaml:"mireds_cold"`
	MiredsWarm int  `yaml:"mireds_warm"`
}

type SensorConfig struct {
	Type  string `yaml:"type"`
	Units string `yaml:"units"`
}

type OneWireConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type ConsoleConfig struct {
	Enabled bool   `yaml:"enabled"`
	Prompt  string `yaml:"prompt"`
}

type WebConfig struct {
	Listen string `yaml:"listen"`
}

type SettingsConfig struct {
	Path    string `yaml:"path"`
	DataDir string `yaml:"data_dir"`
}

// BuildInfo is the build metadata advertised in the device block.
type BuildInfo struct {
	Version      string
	Manufacturer string
	Model        string
}

// Magnitude is one value reported by a sensor, e.g. the second temperature.
type Magnitude struct {
	Type  string // temperature, humidity, ...
	Index int    // index among magnitudes of the same type
	Topic string // relative to the device root topic
	Units string
	Value float64
	Path  string // backing file for 1-wire probes
}

// LightState is the last known output of the light.
type LightState struct {
	On         bool
	Brightness int
	// Color is false while the light runs in white (color temperature) mode.
	Color      bool
	UseRGB     bool
	Red        int
	Green      int
	Blue       int
	Hue        int
	Saturation int
	Warm       int
	Cold       int
	Mireds     int
	Transition time.Duration
}
