package logger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observe(t *testing.T, lvl zapcore.Level) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(lvl)
	Use(zap.New(core))
	t.Cleanup(func() { Use(zap.NewNop()) })
	return logs
}

func TestPrefixNamesEntries(t *testing.T) {
	logs := observe(t, zapcore.InfoLevel)
	SetPrefix("api")
	t.Cleanup(func() { SetPrefix("") })

	Infof("listening on %s", ":8080")
	Errorf("boom: %v", assert.AnError)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "api", entries[0].LoggerName)
	assert.Equal(t, "listening on :8080", entries[0].Message)
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
}

func TestLogDurationOnlySlowAtInfo(t *testing.T) {
	logs := observe(t, zapcore.InfoLevel)

	LogDuration("fast", time.Now())
	assert.Equal(t, 0, logs.Len())

	LogDuration("slow", time.Now().Add(-250*time.Millisecond))
	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "slow", fields["fn"])
	assert.GreaterOrEqual(t, fields["duration_ms"], int64(250))
}

func TestLogDurationAllAtDebug(t *testing.T) {
	logs := observe(t, zapcore.DebugLevel)
	done := DeferLogDuration("quick", time.Now())
	done()
	assert.Equal(t, 1, logs.FilterField(zap.String("fn", "quick")).Len())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("trace"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("WARN"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel(""))
}
