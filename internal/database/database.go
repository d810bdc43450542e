package database

import (
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/kuretru/hass-discovery-device/entity"
)

const (
	defaultPayloadOn     = "1"
	defaultPayloadOff    = "0"
	defaultPayloadToggle = "2"

	defaultMiredsCold = 153
	defaultMiredsWarm = 500
)

// Store is the in-memory state of everything the device exposes: relay
// channels, the light and the sensor magnitudes.
type Store struct {
	lock sync.RWMutex

	payloadOn  string
	payloadOff string
	relays     []bool

	light      entity.LightConfig
	lightState entity.LightState

	magnitudes []entity.Magnitude
	lastSeen   time.Time
}

func New(relays entity.RelayConfig, light entity.LightConfig) *Store {
	store := &Store{
		payloadOn:  relays.PayloadOn,
		payloadOff: relays.PayloadOff,
		relays:     make([]bool, max(relays.Count, 0)),
		light:      light,
	}
	if store.payloadOn == "" {
		store.payloadOn = defaultPayloadOn
	}
	if store.payloadOff == "" {
		store.payloadOff = defaultPayloadOff
	}
	if store.light.MiredsCold == 0 {
		store.light.MiredsCold = defaultMiredsCold
	}
	if store.light.MiredsWarm == 0 {
		store.light.MiredsWarm = defaultMiredsWarm
	}
	store.lightState.Brightness = 255
	store.lightState.Color = light.Color
	return store
}

// --- Relays ---

func (s *Store) RelayCount() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return len(s.relays)
}

func (s *Store) RelayPayload(on bool) string {
	if on {
		return s.payloadOn
	}
	return s.payloadOff
}

func (s *Store) RelayState(id int) (bool, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if id < 0 || id >= len(s.relays) {
		return false, false
	}
	return s.relays[id], true
}

func (s *Store) Relays() []bool {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return append([]bool(nil), s.relays...)
}

// ApplyRelayPayload sets relay id from a command payload: on, off or
// toggle. It returns the new state and whether the command was understood.
func (s *Store) ApplyRelayPayload(id int, payload string) (bool, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if id < 0 || id >= len(s.relays) {
		slog.Warn("Database: relay command ignored, no such relay", "id", id)
		return false, false
	}

	switch payload {
	case s.payloadOn:
		s.relays[id] = true
	case s.payloadOff:
		s.relays[id] = false
	case defaultPayloadToggle:
		s.relays[id] = !s.relays[id]
	default:
		slog.Warn("Database: relay command ignored, unknown payload", "id", id, "payload", payload)
		return s.relays[id], false
	}
	s.lastSeen = time.Now()
	return s.relays[id], true
}

// --- Light ---

func (s *Store) LightChannels() int {
	return s.light.Channels
}

func (s *Store) LightHasColor() bool {
	return s.light.Color
}

func (s *Store) LightHasWarmWhite() bool {
	return s.light.WarmWhite
}

func (s *Store) LightHasColdWhite() bool {
	return s.light.ColdWhite
}

func (s *Store) LightHasWhite() bool {
	return s.light.WarmWhite || s.light.ColdWhite
}

func (s *Store) LightMiredsRange() (int, int) {
	return s.light.MiredsCold, s.light.MiredsWarm
}

func (s *Store) Light() entity.LightState {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.lightState
}

// UpdateLight applies fn to the light state under the store lock.
func (s *Store) UpdateLight(fn func(state *entity.LightState)) entity.LightState {
	s.lock.Lock()
	defer s.lock.Unlock()
	fn(&s.lightState)
	s.lightState.Brightness = clamp(s.lightState.Brightness, 0, 255)
	if s.lightState.Mireds != 0 {
		s.lightState.Mireds = clamp(s.lightState.Mireds, s.light.MiredsCold, s.light.MiredsWarm)
	}
	s.lastSeen = time.Now()
	return s.lightState
}

// --- Magnitudes ---

// AddMagnitude registers a magnitude. Its index is the count of earlier
// magnitudes of the same type; the state topic defaults to "<type>/<index>".
func (s *Store) AddMagnitude(magnitude entity.Magnitude) entity.Magnitude {
	s.lock.Lock()
	defer s.lock.Unlock()

	magnitude.Index = 0
	for _, m := range s.magnitudes {
		if m.Type == magnitude.Type {
			magnitude.Index++
		}
	}
	if magnitude.Topic == "" {
		magnitude.Topic = magnitude.Type + "/" + strconv.Itoa(magnitude.Index)
	}
	s.magnitudes = append(s.magnitudes, magnitude)
	return magnitude
}

func (s *Store) MagnitudeCount() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return len(s.magnitudes)
}

func (s *Store) MagnitudeInfo(index int) entity.Magnitude {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if index < 0 || index >= len(s.magnitudes) {
		return entity.Magnitude{}
	}
	return s.magnitudes[index]
}

func (s *Store) Magnitudes() []entity.Magnitude {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return append([]entity.Magnitude(nil), s.magnitudes...)
}

func (s *Store) SetMagnitudeValue(index int, value float64) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if index < 0 || index >= len(s.magnitudes) {
		return
	}
	s.magnitudes[index].Value = value
	s.lastSeen = time.Now()
}

// LastSeen is the time of the last state change.
func (s *Store) LastSeen() time.Time {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.lastSeen
}

func clamp(value, low, high int) int {
	return min(max(value, low), high)
}
