package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

const (
	ModePushToTalk = "PushToTalk"
	ModeToggle     = "Toggle"
)

type Config struct {
	Hotkey       string        `mapstructure:"hotkey" json:"hotkey"`
	HotkeyDarwin string        `mapstructure:"hotkey_darwin" json:"hotkey_darwin"`
	Mode         string        `mapstructure:"mode" json:"mode"` // "PushToTalk" or "Toggle"
	LogLevel     string        `mapstructure:"log_level" json:"log_level"`
	Audio        AudioConfig   `mapstructure:"audio" json:"audio"`
	Episode      EpisodeConfig `mapstructure:"episode" json:"episode"`
	Control      ControlConfig `mapstructure:"control" json:"control"`

	path string
}

type AudioConfig struct {
	Backend          string `mapstructure:"backend" json:"backend"` // "portaudio" or "malgo"
	DeviceID         string `mapstructure:"device_id" json:"device_id"`
	FramesPerBuffer  int    `mapstructure:"frames_per_buffer" json:"frames_per_buffer"`
	DropOnContention bool   `mapstructure:"drop_on_contention" json:"drop_on_contention"`
	// MaxChannels caps the channel count PortAudio opens. ALSA's "default"
	// and "pulse" devices advertise 32 or more inputs. 0 disables the cap.
	MaxChannels int `mapstructure:"max_channels" json:"max_channels"`
	// PreallocateSeconds reserves buffer room up front, at 48 kHz stereo.
	PreallocateSeconds int `mapstructure:"preallocate_seconds" json:"preallocate_seconds"`
}

type EpisodeConfig struct {
	Title string `mapstructure:"title" json:"title"`
}

type ControlConfig struct {
	Enabled bool   `mapstructure:"enabled" json:"enabled"`
	Addr    string `mapstructure:"addr" json:"addr"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("hotkey", "Alt+Space")
	v.SetDefault("hotkey_darwin", "Alt+Space") // Option+Space
	v.SetDefault("mode", ModeToggle)
	v.SetDefault("log_level", "info")
	v.SetDefault("audio.backend", "portaudio")
	v.SetDefault("audio.device_id", "")
	v.SetDefault("audio.frames_per_buffer", 512)
	v.SetDefault("audio.drop_on_contention", true)
	v.SetDefault("audio.max_channels", 2)
	v.SetDefault("audio.preallocate_seconds", 0)
	v.SetDefault("episode.title", "Untitled episode")
	v.SetDefault("control.enabled", false)
	v.SetDefault("control.addr", "127.0.0.1:7465")
}

// Load reads the config from the platform config path or returns defaults
func Load() (*Config, error) {
	return LoadFrom(configPath())
}

// LoadFrom reads the config at path. A missing file yields defaults.
// PODREC_* environment variables override file values, e.g.
// PODREC_AUDIO_BACKEND=malgo.
func LoadFrom(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("podrec")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.Is(err, fs.ErrNotExist) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg := &Config{path: path}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the rest of the program cannot run with.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModePushToTalk, ModeToggle:
	default:
		return fmt.Errorf("invalid mode %q: want %s or %s", c.Mode, ModePushToTalk, ModeToggle)
	}
	if c.Audio.FramesPerBuffer <= 0 {
		return fmt.Errorf("invalid audio.frames_per_buffer %d", c.Audio.FramesPerBuffer)
	}
	if c.Audio.MaxChannels < 0 {
		return fmt.Errorf("invalid audio.max_channels %d", c.Audio.MaxChannels)
	}
	return nil
}

// Save writes the config to disk
func (c *Config) Save() error {
	path := c.path
	if path == "" {
		path = configPath()
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Path returns the file the config was loaded from.
func (c *Config) Path() string {
	if c.path == "" {
		return configPath()
	}
	return c.path
}

// PlatformHotkey returns the appropriate hotkey for the current platform
func (c *Config) PlatformHotkey() string {
	if runtime.GOOS == "darwin" && c.HotkeyDarwin != "" {
		return c.HotkeyDarwin
	}
	return c.Hotkey
}

// PreallocateSamples converts PreallocateSeconds to a sample count.
func (c AudioConfig) PreallocateSamples() int {
	return c.PreallocateSeconds * 48000 * 2
}

// configPath returns the platform-specific config file path
func configPath() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("APPDATA")
	default: // linux
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.config"
		}
	}

	return filepath.Join(base, "podrec", "config.json")
}
