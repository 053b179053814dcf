package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetLevelWinsOverEnvironment(t *testing.T) {
	t.Setenv("LOG_LEVEL", "info")
	t.Cleanup(func() { SetLevel("info") })

	SetLevel("debug")
	assert.Equal(t, levelDebug, logLevel)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, levelDebug, parseLevel("debug"))
	assert.Equal(t, levelDebug, parseLevel("trace"))
	assert.Equal(t, levelInfo, parseLevel("info"))
	assert.Equal(t, levelInfo, parseLevel("garbage"))
	assert.Equal(t, levelInfo, parseLevel(""))
}
