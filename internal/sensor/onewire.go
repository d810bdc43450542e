// Package sensor finds 1-wire temperature probes through the Linux w1
// subsystem and reads them.
package sensor

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kuretru/hass-discovery-device/entity"
	"github.com/kuretru/hass-discovery-device/internal/utils"
)

const (
	DefaultW1Path = "/sys/bus/w1/devices"

	TypeTemperature  = "temperature"
	UnitsCelsius     = "°C"
	invalidMilliTemp = -1 << 31
)

var ErrCRC = errors.New("sensor: 1-wire crc check failed")

// Family codes of the temperature probes the w1_therm driver handles.
var temperatureFamilies = map[string]string{
	"10": "DS18S20",
	"22": "DS1822",
	"28": "DS18B20",
	"3b": "DS1825",
	"42": "DS28EA00",
}

// ScanW1 lists the temperature probes below root, ordered by address.
func ScanW1(root string) ([]entity.Magnitude, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("Sensor.W1: read %v failed, %w", root, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		family, _, ok := strings.Cut(e.Name(), "-")
		if !ok {
			continue
		}
		if _, ok = temperatureFamilies[strings.ToLower(family)]; ok {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	result := make([]entity.Magnitude, 0, len(names))
	for _, name := range names {
		result = append(result, entity.Magnitude{
			Type:  TypeTemperature,
			Units: UnitsCelsius,
			Path:  filepath.Join(root, name),
		})
	}
	return result, nil
}

// ReadW1 returns the temperature of the probe at path in degrees Celsius.
// Newer kernels expose a plain "temperature" file in millidegrees, older
// ones only the two-line "w1_slave" dump.
func ReadW1(path string) (float64, error) {
	if data, err := os.ReadFile(filepath.Join(path, "temperature")); err == nil {
		milli := utils.ParseIntOrDefault(string(data), invalidMilliTemp)
		if milli == invalidMilliTemp {
			return 0, fmt.Errorf("Sensor.W1: unparsable temperature %q", strings.TrimSpace(string(data)))
		}
		return float64(milli) / 1000, nil
	}

	data, err := os.ReadFile(filepath.Join(path, "w1_slave"))
	if err != nil {
		return 0, fmt.Errorf("Sensor.W1: read %v failed, %w", path, err)
	}
	return parseSlave(string(data))
}

// 72 01 4b 46 7f ff 0e 10 57 : crc=57 YES
// 72 01 4b 46 7f ff 0e 10 57 t=23125
func parseSlave(data string) (float64, error) {
	lines := strings.Split(strings.TrimSpace(data), "\n")
	if len(lines) < 2 {
		return 0, fmt.Errorf("Sensor.W1: short w1_slave output")
	}
	if !strings.HasSuffix(strings.TrimSpace(lines[0]), "YES") {
		return 0, ErrCRC
	}
	_, value, ok := strings.Cut(lines[1], "t=")
	if !ok {
		return 0, fmt.Errorf("Sensor.W1: no temperature in w1_slave output")
	}
	milli := utils.ParseIntOrDefault(value, invalidMilliTemp)
	if milli == invalidMilliTemp {
		return 0, fmt.Errorf("Sensor.W1: unparsable temperature %q", value)
	}
	return float64(milli) / 1000, nil
}

// Store is where readings end up.
type Store interface {
	Magnitudes() []entity.Magnitude
	SetMagnitudeValue(index int, value float64)
}

// Refresh reads every magnitude backed by a probe and stores the values.
// Failed reads keep the previous value.
func Refresh(store Store) {
	for i, m := range store.Magnitudes() {
		if m.Path == "" {
			continue
		}
		value, err := ReadW1(m.Path)
		if err != nil {
			slog.Warn("Sensor.W1: read failed", "path", m.Path, "err", err)
			continue
		}
		store.SetMagnitudeValue(i, value)
	}
}
