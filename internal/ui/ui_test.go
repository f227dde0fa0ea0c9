package ui

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRenderer_PlainForNonTTY(t *testing.T) {
	// Given: a buffer, which is never a terminal
	buf := &bytes.Buffer{}

	// When: creating a renderer
	r := NewRenderer(NewConfig(buf))

	// Then: plain output is chosen
	_, ok := r.(*PlainRenderer)
	assert.True(t, ok)
}

func TestNewRenderer_ForcePlain(t *testing.T) {
	r := NewRenderer(NewConfig(&bytes.Buffer{}, WithForcePlain(true)))
	_, ok := r.(*PlainRenderer)
	assert.True(t, ok)
}

func TestNewConfig_Options(t *testing.T) {
	cfg := NewConfig(&bytes.Buffer{},
		WithNoColor(true),
		WithTitle("telegram"),
		WithQueueSize(64))

	assert.True(t, cfg.NoColor)
	assert.Equal(t, "telegram", cfg.Title)
	assert.Equal(t, 64, cfg.QueueSize)
	assert.Positive(t, cfg.PlainInterval)
}

func TestIsTTY_NonFileWriter(t *testing.T) {
	assert.False(t, IsTTY(&bytes.Buffer{}))
}

func TestDetectCI(t *testing.T) {
	// Setenv registers a restore; Unsetenv then clears the variable.
	for _, v := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"} {
		t.Setenv(v, "")
		require.NoError(t, os.Unsetenv(v))
	}
	assert.False(t, DetectCI())

	t.Setenv("GITHUB_ACTIONS", "true")
	assert.True(t, DetectCI())
}

func TestDetectNoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	assert.True(t, DetectNoColor())
}
