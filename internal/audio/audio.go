package audio

import "errors"

var (
	// ErrDeviceEnumeration means the audio host could not list its devices.
	ErrDeviceEnumeration = errors.New("device enumeration failed")
	// ErrNoDevice means no usable input device exists.
	ErrNoDevice = errors.New("no input device")
	// ErrStreamCreation means a stream could not be opened or started.
	ErrStreamCreation = errors.New("stream creation failed")
	// ErrStreamFailed means a running stream died, e.g. the device was unplugged.
	ErrStreamFailed = errors.New("stream failed")
)

// SampleFormat is the sample encoding delivered by the device.
type SampleFormat int

const (
	FormatUnknown SampleFormat = iota
	FormatFloat32
	FormatInt16
)

func (f SampleFormat) String() string {
	switch f {
	case FormatFloat32:
		return "float32"
	case FormatInt16:
		return "int16"
	default:
		return "unknown"
	}
}

// StreamConfig is a device's native stream configuration. Zero fields mean
// the host did not report a value and the device default is used.
type StreamConfig struct {
	SampleRate float64
	Channels   int
	Format     SampleFormat
}

// AudioDevice represents an audio input device
type AudioDevice struct {
	ID      string
	Name    string
	Default bool
	Config  StreamConfig
}

// Sink receives sample blocks from the audio thread. Write must not block
// indefinitely and must copy the block if it keeps it.
type Sink interface {
	Write(block []float32) bool
}

// Callbacks are handed to a Driver. Data runs on the audio thread with an
// interleaved block that is only valid for the duration of the call. Fail is
// called at most once, never from inside Data, when the stream dies. Overrun
// is optional and reports input the device discarded.
type Callbacks struct {
	Data    func(block []float32)
	Fail    func(err error)
	Overrun func()
}

// Driver is one opened input stream on a Host.
type Driver interface {
	Start() error
	// Stop returns once Data will not be called again. Safe to call on a
	// driver that never started or already failed.
	Stop() error
	// Config reports the configuration actually negotiated with the device.
	Config() StreamConfig
}

// Host is a platform audio API.
type Host interface {
	Name() string
	Devices() ([]AudioDevice, error)
	DefaultInputDevice() (AudioDevice, error)
	OpenInput(device AudioDevice, framesPerBuffer int, cb Callbacks) (Driver, error)
	Close() error
}
