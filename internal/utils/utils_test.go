package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseIntOrDefault(t *testing.T) {
	assert.Equal(t, 21062, ParseIntOrDefault("21062\n", -1))
	assert.Equal(t, -1, ParseIntOrDefault("", -1))
}

func TestParseBoolOrDefault(t *testing.T) {
	tests := []struct {
		value    string
		fallback bool
		want     bool
	}{
		{"1", false, true},
		{"TRUE", false, true},
		{"on", false, true},
		{"0", true, false},
		{"No", true, false},
		{"", true, true},
		{"garbage", false, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseBoolOrDefault(tt.value, tt.fallback), tt.value)
	}
	assert.Equal(t, "1", FormatBool(true))
	assert.Equal(t, "0", FormatBool(false))
}
