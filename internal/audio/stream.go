package audio

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/petems/podrec/internal/metrics"
)

// StreamState is the lifecycle state of a StreamHandle.
type StreamState int32

const (
	StateCreated StreamState = iota
	StatePlaying
	StateStopped
	StateFailed
)

func (s StreamState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StatePlaying:
		return "playing"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("StreamState(%d)", int32(s))
	}
}

// Terminal reports whether no further transitions can happen.
func (s StreamState) Terminal() bool {
	return s == StateStopped || s == StateFailed
}

// StreamHandle is a running capture stream. Blocks reach the sink only while
// the handle is playing.
type StreamHandle struct {
	id      string
	device  AudioDevice
	sink    Sink
	driver  Driver
	log     zerolog.Logger
	metrics *metrics.Metrics

	// mu is write-locked for transitions; deliveries hold it for reading.
	mu    sync.RWMutex
	state atomic.Int32
	err   error

	done     chan struct{}
	doneOnce sync.Once
	stopOnce sync.Once
	stopErr  error
}

func newStreamHandle(device AudioDevice, sink Sink, log zerolog.Logger, m *metrics.Metrics) *StreamHandle {
	id := uuid.NewString()
	return &StreamHandle{
		id:      id,
		device:  device,
		sink:    sink,
		log:     log.With().Str("stream", id).Str("device", device.Name).Logger(),
		metrics: m,
		done:    make(chan struct{}),
	}
}

func (h *StreamHandle) ID() string          { return h.id }
func (h *StreamHandle) Device() AudioDevice { return h.device }

// Config returns the configuration negotiated with the device.
func (h *StreamHandle) Config() StreamConfig {
	if h.driver == nil {
		return h.device.Config
	}
	return h.driver.Config()
}

func (h *StreamHandle) Status() StreamState {
	return StreamState(h.state.Load())
}

// Err returns the failure that moved the stream to StateFailed, if any.
func (h *StreamHandle) Err() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.err
}

// Done is closed when the stream reaches a terminal state.
func (h *StreamHandle) Done() <-chan struct{} {
	return h.done
}

// start moves Created to Playing and starts the driver.
func (h *StreamHandle) start() error {
	h.mu.Lock()
	h.state.Store(int32(StatePlaying))
	h.mu.Unlock()

	if err := h.driver.Start(); err != nil {
		h.mu.Lock()
		h.state.Store(int32(StateFailed))
		h.err = err
		h.mu.Unlock()
		h.release()
		h.closeDone()
		return err
	}
	h.metrics.StreamStarted()
	return nil
}

// deliver is the driver's data callback.
func (h *StreamHandle) deliver(block []float32) {
	if !h.mu.TryRLock() {
		h.metrics.BlockDropped(metrics.DropTeardown)
		return
	}
	defer h.mu.RUnlock()

	if StreamState(h.state.Load()) != StatePlaying {
		return
	}
	h.sink.Write(block)
}

func (h *StreamHandle) overrun() {
	h.metrics.BlockDropped(metrics.DropOverflow)
}

// fail is the driver's failure callback.
func (h *StreamHandle) fail(cause error) {
	h.mu.Lock()
	if StreamState(h.state.Load()).Terminal() {
		h.mu.Unlock()
		return
	}
	h.state.Store(int32(StateFailed))
	h.err = fmt.Errorf("%w: %w", ErrStreamFailed, cause)
	h.mu.Unlock()

	h.log.Error().Err(cause).Msg("Capture stream failed")
	h.metrics.StreamFailed()
	h.closeDone()
}

// Stop tears the stream down. When it returns the sink receives no further
// blocks. Calling Stop again is a no-op.
func (h *StreamHandle) Stop() error {
	h.mu.Lock()
	if !StreamState(h.state.Load()).Terminal() {
		h.state.Store(int32(StateStopped))
	}
	h.mu.Unlock()

	err := h.release()
	h.closeDone()
	return err
}

func (h *StreamHandle) release() error {
	h.stopOnce.Do(func() {
		if h.driver != nil {
			h.stopErr = h.driver.Stop()
		}
		h.log.Debug().Str("state", h.Status().String()).Msg("Capture stream released")
	})
	return h.stopErr
}

func (h *StreamHandle) closeDone() {
	h.doneOnce.Do(func() { close(h.done) })
}
