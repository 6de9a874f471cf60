package logger

import (
	"log/slog"
	"testing"
	"unicode/utf8"

	"claimchat/backend/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, level(config.Config{Env: "development"}))
	assert.Equal(t, slog.LevelInfo, level(config.Config{Env: "production"}))
	assert.Equal(t, slog.LevelWarn, level(config.Config{Env: "development", LogLevel: "WARN"}))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "abc...", Truncate("abcdef", 3))

	// Cyrillic letters take two bytes each.
	assert.Equal(t, "П...", Truncate("Привіт", 3))
	assert.Equal(t, "Пр...", Truncate("Привіт", 4))
	for n := 0; n < len("ключі 🔑"); n++ {
		assert.True(t, utf8.ValidString(Truncate("ключі 🔑", n)), "cut at %d", n)
	}
}
