package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestInitLevel(t *testing.T) {
	t.Cleanup(func() {
		Use(zap.NewNop())
		level.SetLevel(zapcore.InfoLevel)
	})

	require.NoError(t, Init(Config{Env: "prod", Format: "console", Level: "WARN"}))
	assert.Equal(t, zapcore.WarnLevel, level.Level())
	assert.False(t, L().Core().Enabled(zapcore.InfoLevel))

	before := L()
	err := Init(Config{Level: "verbose"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `log level "verbose"`)
	assert.Equal(t, zapcore.WarnLevel, level.Level())
	assert.Same(t, before, L())
}

func TestSetLevel(t *testing.T) {
	t.Cleanup(func() { level.SetLevel(zapcore.InfoLevel) })

	SetLevel(LevelDebug)
	assert.Equal(t, zapcore.DebugLevel, level.Level())
	SetLevel("bogus")
	assert.Equal(t, zapcore.InfoLevel, level.Level())
}
