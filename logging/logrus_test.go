package logging

import (
	"testing"

	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskforge/go-exec-engine/core"
)

func TestLogrusLogger_ForwardsLevelAndFields(t *testing.T) {
	backend, hook := logrustest.NewNullLogger()
	backend.SetLevel(logrus.DebugLevel)
	logger := NewLogrusLogger(backend)

	logger.Info("pool started", core.F("pool", "p1"), core.F("workers", 4))
	logger.Error("worker lost", core.F("worker", 2))
	logger.Debug("debug line")
	logger.Warn("warn line")

	entries := hook.AllEntries()
	require.Len(t, entries, 4)

	assert.Equal(t, logrus.InfoLevel, entries[0].Level)
	assert.Equal(t, "pool started", entries[0].Message)
	assert.Equal(t, "p1", entries[0].Data["pool"])
	assert.Equal(t, 4, entries[0].Data["workers"])

	assert.Equal(t, logrus.ErrorLevel, entries[1].Level)
	assert.Equal(t, 2, entries[1].Data["worker"])

	assert.Equal(t, logrus.DebugLevel, entries[2].Level)
	assert.Equal(t, logrus.WarnLevel, entries[3].Level)
}

func TestNewLogrusLogger_NilUsesStandardLogger(t *testing.T) {
	logger := NewLogrusLogger(nil)
	require.NotNil(t, logger)
	// Must not panic with no fields.
	logger.Info("no fields")
}
