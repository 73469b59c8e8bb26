package sanitize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botaas/flowengine/pkg/domain"
)

func TestInput_SizeLimit(t *testing.T) {
	tests := []struct {
		name      string
		inputSize int
		limit     int
		wantErr   bool
	}{
		{"Under Default", DefaultMaxInputSize - 1, 0, false},
		{"Exact Default", DefaultMaxInputSize, 0, false},
		{"Over Default", DefaultMaxInputSize + 1, 0, true},
		{"Custom Limit", 11, 10, true},
		{"Within Custom", 5, 10, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Input(strings.Repeat("a", tt.inputSize), tt.limit)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInputTooLarge)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestInput_ControlChars(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Normal Text", "Hello World", "Hello World"},
		{"Safe Controls", "Line1\nLine2\tTabbed\r", "Line1\nLine2\tTabbed\r"},
		{"ANSI Code", "\x1b[31mRed\x1b[0m", "[31mRed[0m"},
		{"Null Byte", "Null\x00Byte", "NullByte"},
		{"Bell", "Ding\x07", "Ding"},
		{"Emoji", "hi 👋", "hi 👋"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Input(tt.input, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestInput_InvalidUTF8(t *testing.T) {
	_, err := Input("bad\xff", 0)
	assert.ErrorIs(t, err, ErrInvalidUTF8)
}
