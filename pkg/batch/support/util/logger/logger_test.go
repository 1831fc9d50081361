package logger

import (
	"bytes"
	"log"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		log.SetOutput(os.Stderr)
		SetLogLevel("INFO")
	})

	SetLogLevel("warn")
	Infof("hidden %d", 1)
	Warnf("shown %d", 2)
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "[WARN] shown 2")
	assert.False(t, IsDebugEnabled())

	SetLogLevel("DEBUG")
	Debugf("truncating %s", "message")
	assert.Contains(t, buf.String(), "[DEBUG] truncating message")
	assert.True(t, IsDebugEnabled())
}

func TestSetLogLevel_UnknownFallsBackToInfo(t *testing.T) {
	t.Cleanup(func() { SetLogLevel("INFO") })

	SetLogLevel("verbose")
	assert.Equal(t, LevelInfo, GetLogLevel())
	assert.Equal(t, "INFO", GetLogLevel().String())
}
