package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, WarnLevel, ParseLevel("warning"))
	assert.Equal(t, InfoLevel, ParseLevel("bogus"))
	assert.Equal(t, "ERROR", ErrorLevel.String())
}

func TestLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("info", "json", &buf, false)

	log.Debug("hidden")
	log.Info("export started", Fields{"rows": 3})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry LogEntry
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "INFO", entry.Level)
	assert.Equal(t, "export started", entry.Message)
	assert.EqualValues(t, 3, entry.Fields["rows"])
}

func TestContextLogger_CopiesOnWith(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("debug", "json", &buf, true)

	base := log.WithContext(context.Background()).WithComponent("sink")
	task := base.WithTaskID("task-1")
	task.LogTaskFailed("export failed", "WRITER_ERROR", "disk full", nil)
	base.LogInfo("Idle", "nothing to do", nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var failed, idle LogEntry
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &failed))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &idle))

	assert.Equal(t, "task-1", failed.TaskID)
	assert.Equal(t, "TaskFailed", failed.Event)
	assert.Equal(t, "WRITER_ERROR", failed.Error.Code)
	assert.Contains(t, failed.Caller, "logger_test.go")
	assert.Equal(t, "sink", idle.Component)
	assert.Empty(t, idle.TaskID)
}

func TestLogger_Text(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("info", "text", &buf, false)

	log.WithContext(context.Background()).WithTaskID("t1").LogFileFinalized("done", 12, Fields{"b": 2, "a": 1})

	out := buf.String()
	assert.Contains(t, out, "INFO [FileFinalized] done taskID=t1 a=1 b=2")
}
