package audio_test

import (
	"errors"
	"slices"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/petems/podrec/internal/audio"
	"github.com/petems/podrec/internal/audio/audiotest"
	"github.com/petems/podrec/internal/metrics"
	"github.com/petems/podrec/internal/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newEngine(t *testing.T, host audio.Host) (*audio.Engine, *metrics.Metrics) {
	t.Helper()
	m, err := metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)
	return audio.NewEngine(audio.EngineConfig{
		Host:            host,
		FramesPerBuffer: 10,
		Logger:          zerolog.Nop(),
		Metrics:         m,
	}), m
}

func tenSamples() []float32 {
	return []float32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
}

func TestEnumerateDevices(t *testing.T) {
	host := audiotest.NewHost(audiotest.Mic("Built-in"), audio.AudioDevice{ID: "usb", Name: "USB Mic"})
	engine, _ := newEngine(t, host)

	seq, err := engine.EnumerateDevices()
	require.NoError(t, err)

	var names []string
	for d := range seq {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"Built-in", "USB Mic"}, names)
}

func TestEnumerateDevicesHostUnreachable(t *testing.T) {
	host := audiotest.NewHost(audiotest.Mic("Built-in"))
	host.EnumerateErr = errors.New("no audio server")
	engine, _ := newEngine(t, host)

	seq, err := engine.EnumerateDevices()
	require.ErrorIs(t, err, audio.ErrDeviceEnumeration)
	require.NotNil(t, seq)
	assert.Empty(t, slices.Collect(seq))

	devices, err := engine.ListDevices()
	require.ErrorIs(t, err, audio.ErrDeviceEnumeration)
	assert.Empty(t, devices)
}

func TestOpenDefaultDeviceNoDevices(t *testing.T) {
	host := audiotest.NewHost()
	engine, _ := newEngine(t, host)

	_, err := engine.OpenDefaultDevice()
	require.ErrorIs(t, err, audio.ErrNoDevice)
	assert.Empty(t, host.Drivers(), "no stream may be created")
}

func TestOpenDefaultDeviceWrapsHostError(t *testing.T) {
	host := audiotest.NewHost(audiotest.Mic("Built-in"))
	host.EnumerateErr = errors.New("host gone")
	engine, _ := newEngine(t, host)

	_, err := engine.OpenDefaultDevice()
	require.ErrorIs(t, err, audio.ErrNoDevice)
}

func TestOpenDevice(t *testing.T) {
	usb := audio.AudioDevice{ID: "usb-1", Name: "USB Mic"}
	engine, _ := newEngine(t, audiotest.NewHost(audiotest.Mic("Built-in"), usb))

	dev, err := engine.OpenDevice("")
	require.NoError(t, err)
	assert.Equal(t, "Built-in", dev.Name)

	dev, err = engine.OpenDevice("USB Mic")
	require.NoError(t, err)
	assert.Equal(t, "usb-1", dev.ID)

	_, err = engine.OpenDevice("missing")
	require.ErrorIs(t, err, audio.ErrNoDevice)
}

func TestStartStreamCreationErrors(t *testing.T) {
	t.Run("open", func(t *testing.T) {
		host := audiotest.NewHost(audiotest.Mic("Built-in"))
		host.OpenErr = errors.New("device busy")
		engine, _ := newEngine(t, host)

		h, err := engine.StartStream(audiotest.Mic("Built-in"), session.New())
		require.ErrorIs(t, err, audio.ErrStreamCreation)
		assert.Nil(t, h)
	})

	t.Run("start", func(t *testing.T) {
		host := audiotest.NewHost(audiotest.Mic("Built-in"))
		host.StartErr = errors.New("format not supported")
		engine, _ := newEngine(t, host)

		h, err := engine.StartStream(audiotest.Mic("Built-in"), session.New())
		require.ErrorIs(t, err, audio.ErrStreamCreation)
		assert.Nil(t, h)
		assert.True(t, host.Last().Stopped(), "driver must be released after a failed start")
	})
}

func TestArmedStreamCapturesBlocksInOrder(t *testing.T) {
	host := audiotest.NewHost(audiotest.Mic("Built-in"))
	engine, m := newEngine(t, host)
	sess := session.New()

	h, err := engine.StartStream(audiotest.Mic("Built-in"), sess)
	require.NoError(t, err)
	assert.Equal(t, audio.StatePlaying, h.Status())
	assert.NotEmpty(t, h.ID())
	assert.InDelta(t, 1, testutil.ToFloat64(m.StreamsStarted), 0)

	drv := host.Last()
	sess.Arm()
	for i := 0; i < 3; i++ {
		block := tenSamples()
		for j := range block {
			block[j] += float32(i * 10)
		}
		drv.Emit(block)
	}
	sess.Disarm()

	got := sess.Snapshot()
	require.Len(t, got, 30)
	for i, v := range got {
		assert.Equal(t, float32(i), v)
	}

	require.NoError(t, engine.StopStream(h))
}

func TestNeverArmedStreamCapturesNothing(t *testing.T) {
	host := audiotest.NewHost(audiotest.Mic("Built-in"))
	engine, _ := newEngine(t, host)
	sess := session.New()

	h, err := engine.StartStream(audiotest.Mic("Built-in"), sess)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		host.Last().Emit(tenSamples())
	}
	assert.Empty(t, sess.Snapshot())
	require.NoError(t, engine.StopStream(h))
}

func TestStopStreamBlocksFurtherAppends(t *testing.T) {
	host := audiotest.NewHost(audiotest.Mic("Built-in"))
	engine, _ := newEngine(t, host)
	sess := session.New()

	h, err := engine.StartStream(audiotest.Mic("Built-in"), sess)
	require.NoError(t, err)
	drv := host.Last()

	sess.Arm()
	drv.Emit(tenSamples())
	require.NoError(t, engine.StopStream(h))
	assert.Equal(t, audio.StateStopped, h.Status())
	assert.True(t, drv.Stopped())

	for i := 0; i < 5; i++ {
		drv.Emit(tenSamples())
	}
	assert.Len(t, sess.Snapshot(), 10)

	select {
	case <-h.Done():
	default:
		t.Fatal("Done must be closed after stop")
	}
}

func TestStopStreamIdempotent(t *testing.T) {
	host := audiotest.NewHost(audiotest.Mic("Built-in"))
	engine, _ := newEngine(t, host)

	h, err := engine.StartStream(audiotest.Mic("Built-in"), session.New())
	require.NoError(t, err)

	require.NoError(t, engine.StopStream(h))
	require.NoError(t, engine.StopStream(h))
	require.NoError(t, h.Stop())
	assert.Equal(t, audio.StateStopped, h.Status())
	assert.NoError(t, engine.StopStream(nil))
}

func TestDisconnectFailsStream(t *testing.T) {
	host := audiotest.NewHost(audiotest.Mic("Built-in"))
	engine, m := newEngine(t, host)
	sess := session.New()

	h, err := engine.StartStream(audiotest.Mic("Built-in"), sess)
	require.NoError(t, err)
	drv := host.Last()

	sess.Arm()
	drv.Emit(tenSamples())
	drv.Disconnect(nil)

	<-h.Done()
	assert.Equal(t, audio.StateFailed, h.Status())
	require.ErrorIs(t, h.Err(), audio.ErrStreamFailed)
	require.ErrorIs(t, h.Err(), audiotest.ErrUnplugged)
	assert.InDelta(t, 1, testutil.ToFloat64(m.StreamFailures), 0)

	// Still armed, but a dead stream must not append.
	require.True(t, sess.IsArmed())
	drv.Emit(tenSamples())
	assert.Len(t, sess.Snapshot(), 10)

	// Stopping a failed stream releases the driver and keeps the failure.
	require.NoError(t, engine.StopStream(h))
	assert.Equal(t, audio.StateFailed, h.Status())
	assert.True(t, drv.Stopped())
}

func TestFailureAfterStopIgnored(t *testing.T) {
	host := audiotest.NewHost(audiotest.Mic("Built-in"))
	engine, _ := newEngine(t, host)

	h, err := engine.StartStream(audiotest.Mic("Built-in"), session.New())
	require.NoError(t, err)
	require.NoError(t, engine.StopStream(h))

	host.Last().Disconnect(nil)
	assert.Equal(t, audio.StateStopped, h.Status())
	assert.NoError(t, h.Err())
}

func TestOverrunCounted(t *testing.T) {
	host := audiotest.NewHost(audiotest.Mic("Built-in"))
	engine, m := newEngine(t, host)

	h, err := engine.StartStream(audiotest.Mic("Built-in"), session.New())
	require.NoError(t, err)
	host.Last().Overrun()
	assert.InDelta(t, 1, testutil.ToFloat64(m.BlocksDropped.WithLabelValues(metrics.DropOverflow)), 0)
	require.NoError(t, engine.StopStream(h))
}

func TestEngineCloseStopsStreams(t *testing.T) {
	host := audiotest.NewHost(audiotest.Mic("Built-in"))
	engine, _ := newEngine(t, host)

	a, err := engine.StartStream(audiotest.Mic("Built-in"), session.New())
	require.NoError(t, err)
	b, err := engine.StartStream(audiotest.Mic("Built-in"), session.New())
	require.NoError(t, err)
	host.Drivers()[1].Disconnect(nil)
	<-b.Done()

	require.NoError(t, engine.Close())
	assert.Equal(t, audio.StateStopped, a.Status())
	assert.Equal(t, audio.StateFailed, b.Status())
	for _, d := range host.Drivers() {
		assert.True(t, d.Stopped())
	}
	assert.True(t, host.Closed())
}

func TestStreamConfigFromDriver(t *testing.T) {
	dev := audiotest.Mic("Built-in")
	dev.Config.Channels = 2
	host := audiotest.NewHost(dev)
	engine, _ := newEngine(t, host)

	h, err := engine.StartStream(dev, session.New())
	require.NoError(t, err)
	assert.Equal(t, 2, h.Config().Channels)
	assert.Equal(t, 10, host.Last().FramesPerBuffer)
	require.NoError(t, engine.StopStream(h))
}
