package audio

import (
	"errors"
	"fmt"
	"iter"
	"slices"
	"sync"

	"github.com/rs/zerolog"

	"github.com/petems/podrec/internal/metrics"
)

// Engine opens input streams on a Host and feeds them into sinks.
type Engine struct {
	host            Host
	framesPerBuffer int
	log             zerolog.Logger
	metrics         *metrics.Metrics

	mu      sync.Mutex
	streams map[string]*StreamHandle
}

type EngineConfig struct {
	Host            Host
	FramesPerBuffer int
	Logger          zerolog.Logger
	Metrics         *metrics.Metrics // Optional
}

type EngineOption func(*EngineConfig)

func WithMetrics(m *metrics.Metrics) EngineOption {
	return func(c *EngineConfig) { c.Metrics = m }
}

func NewEngine(cfg EngineConfig) *Engine {
	return &Engine{
		host:            cfg.Host,
		framesPerBuffer: cfg.FramesPerBuffer,
		log:             cfg.Logger.With().Str("host", cfg.Host.Name()).Logger(),
		metrics:         cfg.Metrics,
		streams:         make(map[string]*StreamHandle),
	}
}

// EnumerateDevices queries the host for input devices. A host failure yields
// an empty sequence and an error wrapping ErrDeviceEnumeration; it is logged
// and never fatal. Iterate again by calling EnumerateDevices again.
func (e *Engine) EnumerateDevices() (iter.Seq[AudioDevice], error) {
	devices, err := e.host.Devices()
	if err != nil {
		e.log.Warn().Err(err).Msg("Failed to enumerate audio devices")
		return func(func(AudioDevice) bool) {}, fmt.Errorf("%w: %w", ErrDeviceEnumeration, err)
	}
	return slices.Values(devices), nil
}

// ListDevices collects EnumerateDevices into a slice.
func (e *Engine) ListDevices() ([]AudioDevice, error) {
	seq, err := e.EnumerateDevices()
	return slices.Collect(seq), err
}

// OpenDefaultDevice returns the host's default input device.
func (e *Engine) OpenDefaultDevice() (AudioDevice, error) {
	dev, err := e.host.DefaultInputDevice()
	if err != nil {
		if errors.Is(err, ErrNoDevice) {
			return AudioDevice{}, err
		}
		return AudioDevice{}, fmt.Errorf("%w: %w", ErrNoDevice, err)
	}
	return dev, nil
}

// OpenDevice selects a device by ID or name; an empty id selects the default.
func (e *Engine) OpenDevice(id string) (AudioDevice, error) {
	if id == "" {
		return e.OpenDefaultDevice()
	}

	devices, err := e.ListDevices()
	if err != nil {
		return AudioDevice{}, err
	}
	for _, d := range devices {
		if d.ID == id || d.Name == id {
			return d, nil
		}
	}
	return AudioDevice{}, fmt.Errorf("%w: device not found: %s", ErrNoDevice, id)
}

// StartStream opens an input stream on device at its native configuration
// and starts delivering blocks to sink.
func (e *Engine) StartStream(device AudioDevice, sink Sink) (*StreamHandle, error) {
	h := newStreamHandle(device, sink, e.log, e.metrics)

	drv, err := e.host.OpenInput(device, e.framesPerBuffer, Callbacks{
		Data:    h.deliver,
		Fail:    h.fail,
		Overrun: h.overrun,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open %q: %w", ErrStreamCreation, device.Name, err)
	}
	h.driver = drv

	if err := h.start(); err != nil {
		return nil, fmt.Errorf("%w: failed to start %q: %w", ErrStreamCreation, device.Name, err)
	}

	e.mu.Lock()
	e.streams[h.id] = h
	e.mu.Unlock()

	go e.forget(h)

	cfg := h.Config()
	h.log.Info().
		Float64("sample_rate", cfg.SampleRate).
		Int("channels", cfg.Channels).
		Str("format", cfg.Format.String()).
		Msg("Capture stream started")
	return h, nil
}

// StopStream stops h. See StreamHandle.Stop.
func (e *Engine) StopStream(h *StreamHandle) error {
	if h == nil {
		return nil
	}
	err := h.Stop()

	e.mu.Lock()
	delete(e.streams, h.id)
	e.mu.Unlock()
	return err
}

// Close stops every stream still tracked and closes the host.
func (e *Engine) Close() error {
	e.mu.Lock()
	live := make([]*StreamHandle, 0, len(e.streams))
	for _, h := range e.streams {
		live = append(live, h)
	}
	e.mu.Unlock()

	var errs []error
	for _, h := range live {
		if err := h.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := e.host.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// forget drops h from the live set once it has stopped. Failed streams stay
// tracked so Close still releases their driver.
func (e *Engine) forget(h *StreamHandle) {
	<-h.Done()
	if h.Status() != StateStopped {
		return
	}
	e.mu.Lock()
	delete(e.streams, h.id)
	e.mu.Unlock()
}
