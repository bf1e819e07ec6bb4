package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 8*time.Millisecond, cfg.CommitBudget())
	assert.Equal(t, time.Second, cfg.ProfilerInterval())
	assert.Len(t, cfg.PassesOptions(), 7)
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "viewer.toml", `
backend = "wgpu"

[window]
title = "molecules"
width = 800

[render]
transparency = "wboit"
multi_sample = "temporal"
sample_level = 3
clear_color = [1.0, 1.0, 1.0, 1.0]
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, BackendWGPU, cfg.Backend)
	assert.Equal(t, "molecules", cfg.Window.Title)
	assert.Equal(t, 800, cfg.Window.Width)
	// unset keys keep their defaults
	assert.Equal(t, 720, cfg.Window.Height)
	assert.Equal(t, "wboit", cfg.Render.Transparency)
	assert.Equal(t, 3, cfg.Render.SampleLevel)
	assert.Equal(t, [4]float32{1, 1, 1, 1}, cfg.Render.ClearColor)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "viewer.yml", `
debug: true
render:
  color_type: float32
  pick_base_scale: 0.25
profiler:
  enabled: true
  interval_ms: 500
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "float32", cfg.Render.ColorType)
	assert.InDelta(t, 0.25, cfg.Render.PickBaseScale, 1e-9)
	assert.True(t, cfg.Profiler.Enabled)
	assert.Equal(t, 500*time.Millisecond, cfg.ProfilerInterval())
	assert.Equal(t, BackendGL, cfg.Backend)
}

func TestLoadRejectsUnknownExtension(t *testing.T) {
	_, err := Load(writeFile(t, "viewer.json", `{}`))
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadDecodeError(t *testing.T) {
	_, err := Load(writeFile(t, "bad.toml", `backend = `))
	assert.Error(t, err)
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Backend = "vulkan"
	cfg.Render.Transparency = "sorted"
	cfg.Render.SampleLevel = 9
	cfg.Render.PickBaseScale = 0
	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"vulkan", "sorted", "sample_level", "pick_base_scale"} {
		assert.Contains(t, err.Error(), want)
	}
}
