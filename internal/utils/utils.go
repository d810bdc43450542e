package utils

import (
	"strconv"
	"strings"
)

func ParseIntOrDefault(value string, fallback int) int {
	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return result
}

// ParseBoolOrDefault accepts 1/0, true/false, yes/no and on/off.
func ParseBoolOrDefault(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

func FormatBool(value bool) string {
	if value {
		return "1"
	}
	return "0"
}
