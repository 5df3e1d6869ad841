package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)

	assert.Equal(t, ModeToggle, cfg.Mode)
	assert.Equal(t, "Alt+Space", cfg.Hotkey)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "portaudio", cfg.Audio.Backend)
	assert.Equal(t, 2, cfg.Audio.MaxChannels)
	assert.Equal(t, 512, cfg.Audio.FramesPerBuffer)
	assert.True(t, cfg.Audio.DropOnContention)
	assert.Equal(t, "Untitled episode", cfg.Episode.Title)
	assert.False(t, cfg.Control.Enabled)
	assert.Equal(t, "127.0.0.1:7465", cfg.Control.Addr)
}

func TestLoadFromFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{
  "mode": "PushToTalk",
  "audio": {"backend": "malgo", "device_id": "USB Mic", "frames_per_buffer": 256},
  "episode": {"title": "Pilot"}
}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, ModePushToTalk, cfg.Mode)
	assert.Equal(t, "malgo", cfg.Audio.Backend)
	assert.Equal(t, "USB Mic", cfg.Audio.DeviceID)
	assert.Equal(t, 256, cfg.Audio.FramesPerBuffer)
	assert.True(t, cfg.Audio.DropOnContention, "unset keys keep their defaults")
	assert.Equal(t, "Pilot", cfg.Episode.Title)
}

func TestLoadFromEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"audio": {"backend": "portaudio"}}`), 0644))

	t.Setenv("PODREC_AUDIO_BACKEND", "malgo")
	t.Setenv("PODREC_CONTROL_ENABLED", "true")

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "malgo", cfg.Audio.Backend)
	assert.True(t, cfg.Control.Enabled)
}

func TestLoadFromRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"bad mode", `{"mode": "Always"}`},
		{"bad frames", `{"audio": {"frames_per_buffer": 0}}`},
		{"negative channel cap", `{"audio": {"max_channels": -1}}`},
		{"bad json", `{"mode": `},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.data), 0644))

			_, err := LoadFrom(path)
			assert.Error(t, err)
		})
	}
}

func TestSaveWritesLoadablePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	cfg.Audio.DeviceID = "USB Mic"
	cfg.Episode.Title = "Episode 7"
	require.NoError(t, cfg.Save())
	assert.Equal(t, path, cfg.Path())

	reloaded, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "USB Mic", reloaded.Audio.DeviceID)
	assert.Equal(t, "Episode 7", reloaded.Episode.Title)
}

func TestPlatformHotkey(t *testing.T) {
	cfg := &Config{Hotkey: "Alt+Space", HotkeyDarwin: "Ctrl+Space"}
	want := "Alt+Space"
	if runtime.GOOS == "darwin" {
		want = "Ctrl+Space"
	}
	assert.Equal(t, want, cfg.PlatformHotkey())
}

func TestPreallocateSamples(t *testing.T) {
	assert.Equal(t, 0, AudioConfig{}.PreallocateSamples())
	assert.Equal(t, 96000, AudioConfig{PreallocateSeconds: 1}.PreallocateSamples())
}
