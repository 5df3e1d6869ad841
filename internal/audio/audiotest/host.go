// Package audiotest provides an in-memory audio.Host for tests. Drivers do not
// run a thread of their own; tests push blocks with Emit and simulate device
// loss with Disconnect.
package audiotest

import (
	"errors"
	"sync"

	"github.com/petems/podrec/internal/audio"
)

// Mic returns a mono 48 kHz default device.
func Mic(name string) audio.AudioDevice {
	return audio.AudioDevice{
		ID:      name,
		Name:    name,
		Default: true,
		Config: audio.StreamConfig{
			SampleRate: 48000,
			Channels:   1,
			Format:     audio.FormatFloat32,
		},
	}
}

type Host struct {
	mu      sync.Mutex
	devices []audio.AudioDevice
	drivers []*Driver
	closed  bool

	// EnumerateErr fails Devices and DefaultInputDevice.
	EnumerateErr error
	// OpenErr fails OpenInput.
	OpenErr error
	// StartErr fails Driver.Start.
	StartErr error
}

func NewHost(devices ...audio.AudioDevice) *Host {
	return &Host{devices: devices}
}

func (h *Host) Name() string { return "fake" }

func (h *Host) Devices() ([]audio.AudioDevice, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.EnumerateErr != nil {
		return nil, h.EnumerateErr
	}
	return append([]audio.AudioDevice(nil), h.devices...), nil
}

func (h *Host) DefaultInputDevice() (audio.AudioDevice, error) {
	devices, err := h.Devices()
	if err != nil {
		return audio.AudioDevice{}, err
	}
	for _, d := range devices {
		if d.Default {
			return d, nil
		}
	}
	return audio.AudioDevice{}, audio.ErrNoDevice
}

func (h *Host) OpenInput(dev audio.AudioDevice, framesPerBuffer int, cb audio.Callbacks) (audio.Driver, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.OpenErr != nil {
		return nil, h.OpenErr
	}
	d := &Driver{device: dev, cb: cb, startErr: h.StartErr, FramesPerBuffer: framesPerBuffer}
	h.drivers = append(h.drivers, d)
	return d, nil
}

func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

func (h *Host) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// Drivers returns every driver opened so far.
func (h *Host) Drivers() []*Driver {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*Driver(nil), h.drivers...)
}

// Last returns the most recently opened driver, or nil.
func (h *Host) Last() *Driver {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.drivers) == 0 {
		return nil
	}
	return h.drivers[len(h.drivers)-1]
}

var ErrUnplugged = errors.New("device unplugged")

type Driver struct {
	device   audio.AudioDevice
	cb       audio.Callbacks
	startErr error

	FramesPerBuffer int

	mu      sync.Mutex
	started bool
	stopped bool
}

func (d *Driver) Config() audio.StreamConfig { return d.device.Config }

func (d *Driver) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.startErr != nil {
		return d.startErr
	}
	d.started = true
	return nil
}

func (d *Driver) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	return nil
}

func (d *Driver) Started() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.started
}

func (d *Driver) Stopped() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopped
}

// Emit invokes the data callback the way an audio thread would. It does not
// consult the driver state, so it also simulates callbacks racing teardown.
func (d *Driver) Emit(block []float32) {
	d.cb.Data(block)
}

// Overrun reports a dropped device buffer.
func (d *Driver) Overrun() {
	if d.cb.Overrun != nil {
		d.cb.Overrun()
	}
}

// Disconnect simulates the device vanishing mid-stream.
func (d *Driver) Disconnect(err error) {
	if err == nil {
		err = ErrUnplugged
	}
	d.cb.Fail(err)
}
