package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindow(t *testing.T) {
	t.Run("explicit end date", func(t *testing.T) {
		cfg := &Config{WindowDays: 30, WindowEnd: "2025-06-30"}
		start, end, err := cfg.Window()
		require.NoError(t, err)
		assert.Equal(t, time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC), end)
		assert.Equal(t, time.Date(2025, 5, 31, 0, 0, 0, 0, time.UTC), start)
	})

	t.Run("default end is now", func(t *testing.T) {
		cfg := &Config{WindowDays: 7}
		start, end, err := cfg.Window()
		require.NoError(t, err)
		assert.WithinDuration(t, time.Now().UTC(), end, time.Minute)
		assert.Equal(t, 7*24*time.Hour, end.Sub(start))
	})

	t.Run("bad date rejected", func(t *testing.T) {
		cfg := &Config{WindowDays: 30, WindowEnd: "30/06/2025"}
		_, _, err := cfg.Window()
		assert.Error(t, err)
	})

	t.Run("non-positive window rejected", func(t *testing.T) {
		cfg := &Config{WindowDays: 0, WindowEnd: "2025-06-30"}
		_, _, err := cfg.Window()
		assert.Error(t, err)
	})
}
