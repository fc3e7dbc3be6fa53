package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewReturnsLogger(t *testing.T) {
	log := New("test-component")
	assert.NotNil(t, log)
	// Must not panic.
	log.Infof("hello %s", "world")
	log.Debugw("structured", map[string]any{"key": "value"})
}

func TestLevelFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")
	assert.Equal(t, "warn", level().String())

	t.Setenv("LOG_LEVEL", "nonsense")
	assert.Equal(t, "info", level().String())
}

func TestDevConsoleWriter(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	log := New("dev-component")
	assert.NotNil(t, log)
	log.Warnf("console output %d", 1)
}
