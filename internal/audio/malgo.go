package audio

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
	"github.com/rs/zerolog"
)

// errDeviceLost is reported when miniaudio stops a device we did not stop.
var errDeviceLost = errors.New("capture device stopped unexpectedly")

type malgoHost struct {
	ctx *malgo.AllocatedContext
}

// NewMalgoHost initializes a miniaudio context with automatic backend
// selection. Backend log messages go to log at debug level.
func NewMalgoHost(log zerolog.Logger) (Host, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		log.Debug().Str("backend", BackendMalgo).Msg(message)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize miniaudio context: %w", err)
	}
	return &malgoHost{ctx: ctx}, nil
}

func (m *malgoHost) Name() string { return BackendMalgo }

func (m *malgoHost) infos() ([]malgo.DeviceInfo, error) {
	infos, err := m.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("failed to list capture devices: %w", err)
	}
	return infos, nil
}

func (m *malgoHost) Devices() ([]AudioDevice, error) {
	infos, err := m.infos()
	if err != nil {
		return nil, err
	}
	result := make([]AudioDevice, 0, len(infos))
	for _, info := range infos {
		result = append(result, malgoDevice(info))
	}
	return result, nil
}

func (m *malgoHost) DefaultInputDevice() (AudioDevice, error) {
	infos, err := m.infos()
	if err != nil {
		return AudioDevice{}, fmt.Errorf("%w: %w", ErrNoDevice, err)
	}
	if len(infos) == 0 {
		return AudioDevice{}, ErrNoDevice
	}
	for _, info := range infos {
		if info.IsDefault > 0 {
			return malgoDevice(info), nil
		}
	}
	// No device flagged: miniaudio falls back to the first one.
	dev := malgoDevice(infos[0])
	dev.Default = true
	return dev, nil
}

func (m *malgoHost) OpenInput(dev AudioDevice, framesPerBuffer int, cb Callbacks) (Driver, error) {
	infos, err := m.infos()
	if err != nil {
		return nil, err
	}
	var info *malgo.DeviceInfo
	for i := range infos {
		if infos[i].ID.String() == dev.ID {
			info = &infos[i]
			break
		}
	}
	if info == nil {
		return nil, fmt.Errorf("%w: device not found: %s", ErrNoDevice, dev.ID)
	}

	d := &malgoDriver{info: *info, cb: cb}

	// Zero channels and sample rate select the device's native values.
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = 0
	deviceConfig.SampleRate = 0
	deviceConfig.Capture.DeviceID = d.info.ID.Pointer()
	if framesPerBuffer > 0 {
		deviceConfig.PeriodSizeInFrames = uint32(framesPerBuffer)
	}

	device, err := malgo.InitDevice(m.ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: d.onData,
		Stop: d.onStop,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize capture device: %w", err)
	}
	d.device = device
	d.cfg = StreamConfig{
		SampleRate: float64(device.SampleRate()),
		Channels:   int(device.CaptureChannels()),
		Format:     FormatFloat32,
	}
	return d, nil
}

func (m *malgoHost) Close() error {
	err := m.ctx.Uninit()
	m.ctx.Free()
	if err != nil {
		return fmt.Errorf("failed to uninitialize miniaudio context: %w", err)
	}
	return nil
}

func malgoDevice(info malgo.DeviceInfo) AudioDevice {
	return AudioDevice{
		ID:      info.ID.String(),
		Name:    info.Name(),
		Default: info.IsDefault > 0,
		Config:  StreamConfig{Format: FormatFloat32},
	}
}

// malgoDriver is a miniaudio callback device. miniaudio owns the audio thread.
type malgoDriver struct {
	info   malgo.DeviceInfo
	device *malgo.Device
	cfg    StreamConfig
	cb     Callbacks

	// scratch is only touched from the audio thread.
	scratch []float32

	mu       sync.Mutex
	stopping atomic.Bool
	stopped  bool
}

func (d *malgoDriver) Config() StreamConfig { return d.cfg }

func (d *malgoDriver) onData(_, input []byte, _ uint32) {
	d.scratch = DecodeFloat32LE(d.scratch, input)
	d.cb.Data(d.scratch)
}

// onStop runs for every stop, including the ones we request.
func (d *malgoDriver) onStop() {
	if d.stopping.Load() {
		return
	}
	// Report off the miniaudio thread.
	go d.cb.Fail(errDeviceLost)
}

func (d *malgoDriver) Start() error {
	if err := d.device.Start(); err != nil {
		return fmt.Errorf("failed to start capture device: %w", err)
	}
	return nil
}

func (d *malgoDriver) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return nil
	}
	d.stopped = true
	d.stopping.Store(true)

	err := d.device.Stop()
	// Uninit waits for the device thread, so no callback follows it.
	d.device.Uninit()
	if err != nil {
		return fmt.Errorf("failed to stop capture device: %w", err)
	}
	return nil
}
