package audio

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/petems/podrec/internal/config"
)

const (
	BackendPortAudio = "portaudio"
	BackendMalgo     = "malgo"
)

// NewHost opens the platform audio host selected by cfg.Backend.
func NewHost(cfg config.AudioConfig, log zerolog.Logger) (Host, error) {
	switch cfg.Backend {
	case "", BackendPortAudio:
		return NewPortAudioHost(cfg.MaxChannels)
	case BackendMalgo:
		return NewMalgoHost(log)
	default:
		return nil, fmt.Errorf("unknown audio backend %q", cfg.Backend)
	}
}

// New creates a capture engine on the host selected by cfg.
func New(cfg config.AudioConfig, log zerolog.Logger, opts ...EngineOption) (*Engine, error) {
	host, err := NewHost(cfg, log)
	if err != nil {
		return nil, err
	}
	ec := EngineConfig{
		Host:            host,
		FramesPerBuffer: cfg.FramesPerBuffer,
		Logger:          log,
	}
	for _, opt := range opts {
		opt(&ec)
	}
	return NewEngine(ec), nil
}
