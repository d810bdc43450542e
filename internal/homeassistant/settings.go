package homeassistant

import (
	"fmt"
	"io"

	"github.com/kuretru/hass-discovery-device/entity"
	"github.com/kuretru/hass-discovery-device/internal/settings"
	"github.com/kuretru/hass-discovery-device/internal/utils"
)

// Settings keys, all sharing the "ha" prefix.
const (
	KeyPrefix       = "ha"
	KeyEnabled      = "haEnabled"
	KeyDiscovery    = "haPrefix"
	KeyRetain       = "haRetain"
	KeyBirthTopic   = "haBirthTopic"
	KeyBirthPayload = "haBirthPayload"

	// KeyHostname is shared with the rest of the device.
	KeyHostname = "hostname"
)

const (
	DefaultPrefix       = "homeassistant"
	DefaultBirthTopic   = "homeassistant/status"
	DefaultBirthPayload = "online"
)

// Keys lists the module settings in dump order.
var Keys = []string{KeyEnabled, KeyDiscovery, KeyRetain, KeyBirthTopic, KeyBirthPayload}

// Settings is the runtime store the module reads from.
type Settings interface {
	GetString(key, fallback string) string
	GetBool(key string, fallback bool) bool
	RegisterQuery(prefix string, fn settings.QueryFunc)
}

// Defaults fills in the build defaults left empty in the config file.
func Defaults(config entity.HomeAssistantConfig) entity.HomeAssistantConfig {
	if config.Prefix == "" {
		config.Prefix = DefaultPrefix
	}
	if config.BirthTopic == "" {
		config.BirthTopic = DefaultBirthTopic
	}
	if config.BirthPayload == "" {
		config.BirthPayload = DefaultBirthPayload
	}
	return config
}

func (m *Module) settingEnabled() bool {
	return m.settings.GetBool(KeyEnabled, m.defaults.Enabled)
}

func (m *Module) settingPrefix() string {
	return m.settings.GetString(KeyDiscovery, m.defaults.Prefix)
}

func (m *Module) settingRetain() bool {
	return m.settings.GetBool(KeyRetain, m.defaults.Retain)
}

func (m *Module) settingBirthTopic() string {
	return m.settings.GetString(KeyBirthTopic, m.defaults.BirthTopic)
}

func (m *Module) settingBirthPayload() string {
	return m.settings.GetString(KeyBirthPayload, m.defaults.BirthPayload)
}

func (m *Module) settingHostname() string {
	return m.settings.GetString(KeyHostname, m.hostname)
}

// Query answers settings lookups for the "ha" keys, booleans serialized
// as 1 or 0.
func (m *Module) Query(key string) (string, bool) {
	switch key {
	case KeyEnabled:
		return utils.FormatBool(m.settingEnabled()), true
	case KeyDiscovery:
		return m.settingPrefix(), true
	case KeyRetain:
		return utils.FormatBool(m.settingRetain()), true
	case KeyBirthTopic:
		return m.settingBirthTopic(), true
	case KeyBirthPayload:
		return m.settingBirthPayload(), true
	}
	return "", false
}

// Snapshot is the settings view sent to web clients.
func (m *Module) Snapshot() map[string]any {
	return map[string]any{
		KeyEnabled:      m.settingEnabled(),
		KeyDiscovery:    m.settingPrefix(),
		KeyRetain:       m.settingRetain(),
		KeyBirthTopic:   m.settingBirthTopic(),
		KeyBirthPayload: m.settingBirthPayload(),
	}
}

// Dump writes the effective value of every module setting.
func (m *Module) Dump(w io.Writer) {
	for _, key := range Keys {
		value, _ := m.Query(key)
		_, _ = fmt.Fprintf(w, "%v => %q\n", key, value)
	}
}
