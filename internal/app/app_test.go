package app

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petems/podrec/internal/audio"
	"github.com/petems/podrec/internal/audio/audiotest"
	"github.com/petems/podrec/internal/config"
	"github.com/petems/podrec/internal/session"
)

// Mock implementations for testing
type mockStatus struct {
	mu     sync.Mutex
	states []string
}

func (m *mockStatus) record(s string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = append(m.states, s)
}

func (m *mockStatus) SetIdle()      { m.record("idle") }
func (m *mockStatus) SetRecording() { m.record("recording") }
func (m *mockStatus) SetError()     { m.record("error") }

func (m *mockStatus) last() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.states) == 0 {
		return ""
	}
	return m.states[len(m.states)-1]
}

type fixture struct {
	app    *App
	host   *audiotest.Host
	sess   *session.Session
	cfg    *config.Config
	status *mockStatus
}

func newFixture(t *testing.T, mode string, devices ...audio.AudioDevice) *fixture {
	t.Helper()
	if devices == nil {
		devices = []audio.AudioDevice{audiotest.Mic("Built-in")}
	}

	cfg, err := config.LoadFrom(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)
	cfg.Mode = mode

	host := audiotest.NewHost(devices...)
	engine := audio.NewEngine(audio.EngineConfig{Host: host, FramesPerBuffer: 10, Logger: zerolog.Nop()})
	sess := session.New()
	status := &mockStatus{}

	a := New(Config{
		Engine:        engine,
		Session:       sess,
		Config:        cfg,
		Logger:        zerolog.Nop(),
		StatusUpdater: status,
	})
	t.Cleanup(func() {
		require.NoError(t, a.Shutdown(context.Background()))
		require.NoError(t, engine.Close())
	})

	return &fixture{app: a, host: host, sess: sess, cfg: cfg, status: status}
}

func TestToggleModeKeyPress(t *testing.T) {
	f := newFixture(t, config.ModeToggle)
	app := f.app

	// Initially not recording
	if app.IsRecording() {
		t.Error("App should not be recording initially")
	}

	// First key press - should start recording
	app.OnHotkey(true)
	if !app.IsRecording() {
		t.Error("App should be recording after first key press")
	}

	// Key release - should NOT stop recording in Toggle mode
	app.OnHotkey(false)
	if !app.IsRecording() {
		t.Error("App should still be recording after key release in Toggle mode")
	}

	// Second key press - should stop recording
	app.OnHotkey(true)
	if app.IsRecording() {
		t.Error("App should have stopped recording after second key press")
	}
}

func TestPushToTalkModeKeyPress(t *testing.T) {
	f := newFixture(t, config.ModePushToTalk)
	app := f.app

	app.OnHotkey(true)
	if !app.IsRecording() {
		t.Error("App should be recording after key press")
	}

	// Key release - should stop recording in PushToTalk mode
	app.OnHotkey(false)
	if app.IsRecording() {
		t.Error("App should have stopped recording after key release")
	}
}

func TestToggleModeIgnoresKeyRelease(t *testing.T) {
	f := newFixture(t, config.ModeToggle)
	app := f.app

	// Key release when not recording - should do nothing
	app.OnHotkey(false)
	if app.IsRecording() {
		t.Error("App should not start recording on key release")
	}

	app.OnHotkey(true)
	app.OnHotkey(false)
	app.OnHotkey(false)
	app.OnHotkey(false)
	if !app.IsRecording() {
		t.Error("App should still be recording after multiple key releases in Toggle mode")
	}
}

func TestRecordingCapturesWhileArmed(t *testing.T) {
	f := newFixture(t, config.ModeToggle)

	require.NoError(t, f.app.StartRecording())
	assert.Equal(t, "recording", f.status.last())
	drv := f.host.Last()
	require.NotNil(t, drv)

	drv.Emit(make([]float32, 480))
	f.app.StopRecording()
	assert.Equal(t, "idle", f.status.last())
	drv.Emit(make([]float32, 480))

	st := f.app.Status()
	assert.False(t, st.Recording)
	assert.Equal(t, 480, st.Samples)
	assert.Equal(t, 10*time.Millisecond, st.Duration)
	assert.Equal(t, "Built-in", st.Device)
	assert.Equal(t, audio.StatePlaying, st.StreamState)
	assert.Len(t, f.app.Snapshot(), 480)

	// The stream is reused for the next take.
	require.NoError(t, f.app.StartRecording())
	assert.Len(t, f.host.Drivers(), 1)
}

func TestStartRecordingWithoutDevice(t *testing.T) {
	f := newFixture(t, config.ModeToggle, []audio.AudioDevice{}...)

	err := f.app.StartRecording()
	require.ErrorIs(t, err, audio.ErrNoDevice)
	assert.False(t, f.app.IsRecording())
	assert.Equal(t, "error", f.status.last())
	assert.ErrorIs(t, f.app.Status().Err, audio.ErrNoDevice)
	assert.Empty(t, f.host.Drivers())
}

func TestStreamFailureDisarms(t *testing.T) {
	f := newFixture(t, config.ModeToggle)

	require.NoError(t, f.app.StartRecording())
	drv := f.host.Last()
	drv.Emit(make([]float32, 10))
	drv.Disconnect(nil)

	require.Eventually(t, func() bool { return !f.app.IsRecording() }, time.Second, 5*time.Millisecond)

	st := f.app.Status()
	assert.ErrorIs(t, st.Err, audio.ErrStreamFailed)
	assert.Equal(t, audio.StateStopped, st.StreamState, "failed stream is released")
	assert.Equal(t, 10, st.Samples)
	assert.True(t, drv.Stopped())
	require.Eventually(t, func() bool { return f.status.last() == "error" }, time.Second, 5*time.Millisecond)

	// Recording again opens a fresh stream.
	require.NoError(t, f.app.StartRecording())
	assert.Len(t, f.host.Drivers(), 2)
	assert.NoError(t, f.app.Status().Err)
}

func TestRestartReleasesStreamThatFailedUnderLock(t *testing.T) {
	f := newFixture(t, config.ModeToggle)

	require.NoError(t, f.app.StartRecording())
	f.app.StopRecording()
	first := f.host.Last()

	// The stream dies while a consumer holds the app lock, so the watcher
	// cannot run before the restart.
	f.app.mu.Lock()
	first.Disconnect(nil)
	err := f.app.startRecordingLocked()
	f.app.mu.Unlock()
	require.NoError(t, err)

	assert.True(t, first.Stopped(), "failed driver is released")
	assert.Len(t, f.host.Drivers(), 2)
	assert.True(t, f.app.IsRecording())

	f.host.Last().Emit(make([]float32, 10))
	st := f.app.Status()
	assert.Equal(t, audio.StatePlaying, st.StreamState)
	assert.Equal(t, 10, st.Samples)
}

func TestSetDeviceRejectedWhileRecording(t *testing.T) {
	usb := audio.AudioDevice{ID: "usb", Name: "USB Mic", Config: audio.StreamConfig{SampleRate: 44100, Channels: 2}}
	f := newFixture(t, config.ModeToggle, audiotest.Mic("Built-in"), usb)

	require.NoError(t, f.app.StartRecording())
	require.ErrorIs(t, f.app.SetDevice("usb"), session.ErrInvalidState)

	f.app.StopRecording()
	require.NoError(t, f.app.SetDevice("usb"))
	assert.True(t, f.host.Last().Stopped(), "old stream released")
	assert.Equal(t, "usb", f.cfg.Audio.DeviceID)

	require.NoError(t, f.app.StartRecording())
	st := f.app.Status()
	assert.Equal(t, "USB Mic", st.Device)
	assert.Equal(t, 2, st.Channels)
}

func TestSetTitleAndReset(t *testing.T) {
	f := newFixture(t, config.ModeToggle)

	require.NoError(t, f.app.SetTitle("Episode 12"))
	assert.Equal(t, "Episode 12", f.app.Status().Title)
	assert.Equal(t, "Episode 12", f.cfg.Episode.Title)

	require.NoError(t, f.app.StartRecording())
	f.host.Last().Emit(make([]float32, 10))
	require.ErrorIs(t, f.app.SetTitle("Other"), session.ErrInvalidState)
	require.ErrorIs(t, f.app.Reset(), session.ErrInvalidState)
	assert.Len(t, f.app.Snapshot(), 10)

	f.app.StopRecording()
	require.NoError(t, f.app.Reset())
	assert.Empty(t, f.app.Snapshot())
}

func TestSetMode(t *testing.T) {
	f := newFixture(t, config.ModeToggle)

	require.NoError(t, f.app.SetMode(config.ModePushToTalk))
	assert.Equal(t, config.ModePushToTalk, f.app.Mode())
	assert.Error(t, f.app.SetMode("Sometimes"))
}

func TestShutdownStopsStream(t *testing.T) {
	f := newFixture(t, config.ModeToggle)

	require.NoError(t, f.app.StartRecording())
	require.NoError(t, f.app.Shutdown(context.Background()))
	assert.False(t, f.app.IsRecording())
	assert.True(t, f.host.Last().Stopped())
}
