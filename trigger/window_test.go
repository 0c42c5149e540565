package trigger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func utcClock(hour, minute int) time.Time {
	return time.Date(2025, 3, 3, hour, minute, 0, 0, time.UTC)
}

func TestWindow_Overnight(t *testing.T) {
	w, err := ParseWindow("22:00", "05:00", "UTC")
	require.NoError(t, err)

	assert.True(t, w.Contains(utcClock(22, 0)))
	assert.True(t, w.Contains(utcClock(23, 30)))
	assert.True(t, w.Contains(utcClock(0, 0)))
	assert.True(t, w.Contains(utcClock(4, 59)))
	assert.False(t, w.Contains(utcClock(5, 0)))
	assert.False(t, w.Contains(utcClock(12, 0)))
	assert.False(t, w.Contains(utcClock(21, 59)))
}

func TestWindow_SameDay(t *testing.T) {
	w, err := ParseWindow("09:30", "16:00", "UTC")
	require.NoError(t, err)

	assert.False(t, w.Contains(utcClock(9, 29)))
	assert.True(t, w.Contains(utcClock(9, 30)))
	assert.True(t, w.Contains(utcClock(15, 59)))
	assert.False(t, w.Contains(utcClock(16, 0)))
	assert.False(t, w.Contains(utcClock(23, 0)))
}

func TestWindow_Timezone(t *testing.T) {
	w, err := ParseWindow("09:30", "16:00", "America/New_York")
	require.NoError(t, err)

	// 2025-03-03 美东为 EST (UTC-5)
	assert.True(t, w.Contains(utcClock(14, 30)))
	assert.False(t, w.Contains(utcClock(13, 0)))
}

func TestWindow_ZeroValueIsAllDay(t *testing.T) {
	w, err := ParseWindow("", "", "")
	require.NoError(t, err)
	assert.True(t, w.Contains(utcClock(3, 0)))
	assert.True(t, Window{}.Contains(utcClock(15, 0)))
	assert.Equal(t, "all day", w.String())
}

func TestParseWindow_Invalid(t *testing.T) {
	for name, args := range map[string][3]string{
		"missing end": {"22:00", "", ""},
		"bad format":  {"9am", "16:00", ""},
		"empty range": {"10:00", "10:00", ""},
		"bad zone":    {"09:30", "16:00", "Mars/Olympus"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseWindow(args[0], args[1], args[2])
			assert.Error(t, err)
		})
	}
}
