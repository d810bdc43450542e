package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/kuretru/hass-discovery-device/entity"
	"github.com/kuretru/hass-discovery-device/internal/discovery"
	"github.com/kuretru/hass-discovery-device/internal/sensor"
)

type Config struct {
	Log           entity.LogConfig           `yaml:"log"`
	MQTT          entity.MQTTConfig          `yaml:"mqtt"`
	HomeAssistant entity.HomeAssistantConfig `yaml:"homeassistant"`
	Device        entity.DeviceConfig        `yaml:"device"`
	Relays        entity.RelayConfig         `yaml:"relays"`
	Light         entity.LightConfig         `yaml:"light"`
	Sensors       []entity.SensorConfig      `yaml:"sensors"`
	OneWire       entity.OneWireConfig       `yaml:"onewire"`
	Console       entity.ConsoleConfig       `yaml:"console"`
	Web           entity.WebConfig           `yaml:"web"`
	Settings      entity.SettingsConfig      `yaml:"settings"`
}

func loadConfig() *Config {
	configFilePath := flag.String("config", "./configs/device.yaml", "Config file path")
	flag.Parse()
	if configFilePath == nil || *configFilePath == "" {
		_, _ = fmt.Fprintf(os.Stderr, "Config file not provide")
		os.Exit(2)
	}
	if _, err := os.Stat(*configFilePath); err != nil {
		if os.IsNotExist(err) {
			_, _ = fmt.Fprintf(os.Stderr, "Config file not exist")
		} else {
			_, _ = fmt.Fprintf(os.Stderr, "Stat config file failed, %v", err)
		}
		os.Exit(3)
	}

	configBytes, err := os.ReadFile(*configFilePath)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Read config file failed, %v", err)
		os.Exit(3)
	}
	var config Config
	if err = yaml.Unmarshal(configBytes, &config); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Unmarshal config file failed, %v", err)
		os.Exit(3)
	}
	config.applyDefaults()
	if err = config.validate(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Invalid config file, %v", err)
		os.Exit(3)
	}
	return &config
}

func (c *Config) applyDefaults() {
	if c.MQTT.Topic == "" {
		c.MQTT.Topic = "{hostname}"
	}
	if c.MQTT.Setter == "" {
		c.MQTT.Setter = "/set"
	}
	if c.MQTT.Status == "" {
		c.MQTT.Status = "status"
	}
	if c.MQTT.Online == "" {
		c.MQTT.Online = "1"
	}
	if c.MQTT.Offline == "" {
		c.MQTT.Offline = "0"
	}
	if c.MQTT.Heartbeat <= 0 {
		c.MQTT.Heartbeat = 5 * time.Minute
	}
	if c.OneWire.Path == "" {
		c.OneWire.Path = sensor.DefaultW1Path
	}
	if c.Settings.Path == "" {
		c.Settings.Path = "./data/settings.yaml"
	}
	if c.Settings.DataDir == "" {
		c.Settings.DataDir = "./data"
	}
	for i := range c.Sensors {
		c.Sensors[i].Type = discovery.Normalize(c.Sensors[i].Type, true)
	}
}

// validate rejects values that cannot end up in a topic or a unique id.
func (c *Config) validate() error {
	if strings.ContainsAny(c.MQTT.Topic, "+#") {
		return fmt.Errorf("mqtt topic %q contains a wildcard", c.MQTT.Topic)
	}
	for i, s := range c.Sensors {
		if strings.Trim(s.Type, "_") == "" {
			return fmt.Errorf("sensor %d has no type", i)
		}
	}
	return nil
}

// resolveTopics fills in the hostname placeholders once it is known. The
// hostname is normalized for the topic, the client id keeps it as is.
func (c *Config) resolveTopics(hostname string) {
	c.MQTT.Topic = strings.ReplaceAll(c.MQTT.Topic, "{hostname}", discovery.Normalize(hostname, true))
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = hostname
	}
}
