package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGenerateID(t *testing.T) {
	a := GenerateID("frame")
	b := GenerateID("frame")

	assert.NotEqual(t, a, b)
	assert.Regexp(t, `^frame_[0-9a-f]{16}$`, a)
}

func TestGenerateRoomID(t *testing.T) {
	a := GenerateRoomID()
	b := GenerateRoomID()

	assert.NotEqual(t, a, b)
	assert.NotContains(t, a, "=")
	assert.Equal(t, a, SanitizeString(a))
}

func TestGeneratePeerID(t *testing.T) {
	assert.Regexp(t, `^peer_`, GeneratePeerID())
}

func TestGenerateFrameID(t *testing.T) {
	assert.Regexp(t, `^frame_`, GenerateFrameID())
}

func TestSanitizeString(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "hello", "hello"},
		{"control chars removed", "hello\x00world", "helloworld"},
		{"line breaks kept", "hello\nworld", "hello\nworld"},
		{"tabs kept", "a\tb", "a\tb"},
		{"whitespace trimmed", "  hello  ", "hello"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, SanitizeString(tc.in))
		})
	}
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "hello", TruncateString("hello", 10))
	assert.Equal(t, "he...", TruncateString("hello world", 5))
	assert.Equal(t, "he", TruncateString("hello", 2))
	assert.Equal(t, "hello", TruncateString("hello", 5))
}

func TestMaskSensitive(t *testing.T) {
	assert.Equal(t, "cha********", MaskSensitive("change-me!!", 3))
	assert.Equal(t, "*****", MaskSensitive("short", 10))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "100ms", FormatDuration(100*time.Millisecond))
	assert.Equal(t, "2.00s", FormatDuration(2*time.Second))
	assert.Equal(t, "2m30s", FormatDuration(2*time.Minute+30*time.Second))
	assert.Equal(t, "2h30m", FormatDuration(2*time.Hour+30*time.Minute))
}

func TestParseDurationSafe(t *testing.T) {
	assert.Equal(t, 250*time.Millisecond, ParseDurationSafe("250ms", time.Second))
	assert.Equal(t, time.Second, ParseDurationSafe("bogus", time.Second))
}

func TestIsExpired(t *testing.T) {
	now := time.Now()
	assert.True(t, IsExpired(now.Add(-2*time.Hour), time.Hour))
	assert.False(t, IsExpired(now.Add(-30*time.Minute), time.Hour))
}

func TestIsEmpty(t *testing.T) {
	assert.True(t, IsEmpty(""))
	assert.True(t, IsEmpty("   "))
	assert.False(t, IsEmpty("  x  "))
}
