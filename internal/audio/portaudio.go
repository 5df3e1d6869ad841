package audio

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

type portAudioHost struct {
	maxChannels int
}

// NewPortAudioHost initializes PortAudio. Close terminates it. Devices are
// opened with at most maxChannels input channels; 0 means no cap.
func NewPortAudioHost(maxChannels int) (Host, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return &portAudioHost{maxChannels: maxChannels}, nil
}

func (p *portAudioHost) Name() string { return BackendPortAudio }

func (p *portAudioHost) Devices() ([]AudioDevice, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	result := make([]AudioDevice, 0, len(devices))
	defaultDevice, _ := portaudio.DefaultInputDevice()

	for _, d := range devices {
		if d.MaxInputChannels > 0 {
			result = append(result, portAudioDevice(d, d == defaultDevice, p.maxChannels))
		}
	}

	return result, nil
}

func (p *portAudioHost) DefaultInputDevice() (AudioDevice, error) {
	device, err := portaudio.DefaultInputDevice()
	if err != nil {
		return AudioDevice{}, fmt.Errorf("%w: %w", ErrNoDevice, err)
	}
	if device == nil || device.MaxInputChannels <= 0 {
		return AudioDevice{}, ErrNoDevice
	}
	return portAudioDevice(device, true, p.maxChannels), nil
}

func (p *portAudioHost) OpenInput(dev AudioDevice, framesPerBuffer int, cb Callbacks) (Driver, error) {
	device, err := p.lookup(dev.ID)
	if err != nil {
		return nil, err
	}

	cfg := dev.Config
	if cfg.Channels <= 0 {
		return nil, fmt.Errorf("device %q has no input channels", dev.Name)
	}

	// Native rate and channel count, float32 interleaved
	buffer := make([]float32, framesPerBuffer*cfg.Channels)
	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: cfg.Channels,
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      cfg.SampleRate,
		FramesPerBuffer: framesPerBuffer,
	}, buffer)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio stream: %w", err)
	}

	return &portAudioDriver{
		stream: stream,
		buffer: buffer,
		cfg:    cfg,
		cb:     cb,
		quit:   make(chan struct{}),
		exited: make(chan struct{}),
	}, nil
}

func (p *portAudioHost) Close() error {
	return portaudio.Terminate()
}

func (p *portAudioHost) lookup(id string) (*portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	for _, d := range devices {
		if d.Name == id {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: device not found: %s", ErrNoDevice, id)
}

func portAudioDevice(d *portaudio.DeviceInfo, isDefault bool, maxChannels int) AudioDevice {
	channels := d.MaxInputChannels
	if maxChannels > 0 {
		channels = min(channels, maxChannels)
	}
	return AudioDevice{
		ID:      d.Name,
		Name:    d.Name,
		Default: isDefault,
		Config: StreamConfig{
			SampleRate: d.DefaultSampleRate,
			Channels:   channels,
			Format:     FormatFloat32,
		},
	}
}

// portAudioDriver reads the stream with blocking reads on its own goroutine,
// which acts as the audio thread.
type portAudioDriver struct {
	stream *portaudio.Stream
	buffer []float32
	cfg    StreamConfig
	cb     Callbacks

	mu      sync.Mutex
	started bool
	stopped bool
	quit    chan struct{}
	exited  chan struct{}
}

func (d *portAudioDriver) Config() StreamConfig { return d.cfg }

func (d *portAudioDriver) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.stream.Start(); err != nil {
		return fmt.Errorf("failed to start audio stream: %w", err)
	}
	d.started = true
	go d.readLoop()
	return nil
}

func (d *portAudioDriver) readLoop() {
	defer close(d.exited)
	for {
		select {
		case <-d.quit:
			return
		default:
		}

		if err := d.stream.Read(); err != nil {
			if errors.Is(err, portaudio.InputOverflowed) {
				if d.cb.Overrun != nil {
					d.cb.Overrun()
				}
				continue
			}
			select {
			case <-d.quit:
				// Abort from Stop interrupted the read
			default:
				d.cb.Fail(fmt.Errorf("failed to read audio stream: %w", err))
			}
			return
		}
		d.cb.Data(d.buffer)
	}
}

func (d *portAudioDriver) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return nil
	}
	d.stopped = true
	close(d.quit)

	var errs []error
	if d.started {
		if err := d.stream.Abort(); err != nil {
			errs = append(errs, fmt.Errorf("failed to abort audio stream: %w", err))
		}
		<-d.exited
	}
	if err := d.stream.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close audio stream: %w", err))
	}
	return errors.Join(errs...)
}
