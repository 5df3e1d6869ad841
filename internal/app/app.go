package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/petems/podrec/internal/audio"
	"github.com/petems/podrec/internal/config"
	"github.com/petems/podrec/internal/session"
)

type Mode int

const (
	PushToTalk Mode = iota
	Toggle
)

// ErrRecording is returned by changes that are only allowed while idle.
var ErrRecording = fmt.Errorf("%w: cannot change while recording", session.ErrInvalidState)

// StatusUpdater is an interface for updating status (e.g., tray icon)
type StatusUpdater interface {
	SetIdle()
	SetRecording()
	SetError()
}

type Config struct {
	Engine        *audio.Engine
	Session       *session.Session
	Config        *config.Config
	Logger        zerolog.Logger
	StatusUpdater StatusUpdater // Optional - can be nil
}

// Status is a point-in-time view for consumers.
type Status struct {
	Recording   bool
	Title       string
	StartedAt   time.Time
	Samples     int
	Dropped     uint64
	Duration    time.Duration
	Device      string
	SampleRate  float64
	Channels    int
	StreamState audio.StreamState
	Err         error
}

type App struct {
	engine  *audio.Engine
	session *session.Session
	cfg     *config.Config
	log     zerolog.Logger

	mu      sync.Mutex
	status  StatusUpdater
	stream  *audio.StreamHandle
	lastErr error
	watchWG sync.WaitGroup
}

func New(cfg Config) *App {
	return &App{
		engine:  cfg.Engine,
		session: cfg.Session,
		cfg:     cfg.Config,
		log:     cfg.Logger,
		status:  cfg.StatusUpdater,
	}
}

// SetStatusUpdater sets the status sink (for circular dependency resolution)
func (a *App) SetStatusUpdater(s StatusUpdater) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.status = s
}

func (a *App) OnHotkey(pressed bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	mode := PushToTalk
	if a.cfg.Mode == config.ModeToggle {
		mode = Toggle
	}

	var err error
	switch mode {
	case PushToTalk:
		if pressed {
			err = a.startRecordingLocked()
		} else {
			a.stopRecordingLocked()
		}
	case Toggle:
		if !pressed {
			return
		}
		if !a.session.IsArmed() {
			err = a.startRecordingLocked()
		} else {
			a.stopRecordingLocked()
		}
	}
	if err != nil {
		a.log.Error().Err(err).Msg("Failed to start recording")
	}
}

// StartRecording opens the configured device if no stream is running and arms
// the session.
func (a *App) StartRecording() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.startRecordingLocked()
}

func (a *App) startRecordingLocked() error {
	if a.session.IsArmed() {
		return nil
	}

	if err := a.ensureStreamLocked(); err != nil {
		a.lastErr = err
		if a.status != nil {
			a.status.SetError()
		}
		return err
	}

	a.log.Info().Str("title", a.session.Title()).Msg("Starting recording")
	a.lastErr = nil
	a.session.Arm()

	// Update status to recording
	if a.status != nil {
		a.status.SetRecording()
	}
	return nil
}

// StopRecording disarms the session. The stream keeps running.
func (a *App) StopRecording() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopRecordingLocked()
}

func (a *App) stopRecordingLocked() {
	if !a.session.IsArmed() {
		return
	}

	a.session.Disarm()
	a.log.Info().
		Int("samples", a.session.Len()).
		Dur("duration", a.session.Duration()).
		Msg("Stopped recording")

	if a.status != nil {
		a.status.SetIdle()
	}
}

// ToggleRecording starts or stops recording.
func (a *App) ToggleRecording() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.session.IsArmed() {
		a.stopRecordingLocked()
		return nil
	}
	return a.startRecordingLocked()
}

func (a *App) ensureStreamLocked() error {
	if a.stream != nil {
		if a.stream.Status() == audio.StatePlaying {
			return nil
		}
		// Died before the watcher could take a.mu; release it here.
		a.log.Warn().Err(a.stream.Err()).Msg("Reopening failed capture stream")
		a.releaseStreamLocked()
	}

	device, err := a.engine.OpenDevice(a.cfg.Audio.DeviceID)
	if err != nil {
		return err
	}

	stream, err := a.engine.StartStream(device, a.session)
	if err != nil {
		return err
	}

	cfg := stream.Config()
	a.session.SetFormat(session.Format{SampleRate: cfg.SampleRate, Channels: cfg.Channels})
	a.stream = stream

	a.watchWG.Add(1)
	go a.watch(stream)
	return nil
}

// watch disarms the session when the stream dies so no consumer keeps
// showing a recording that is not happening.
func (a *App) watch(stream *audio.StreamHandle) {
	defer a.watchWG.Done()
	<-stream.Done()

	if stream.Status() != audio.StateFailed {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stream != stream {
		return
	}
	a.session.Disarm()
	a.releaseStreamLocked()
	a.log.Error().Err(a.lastErr).Msg("Recording stopped: capture stream failed")

	if a.status != nil {
		a.status.SetError()
	}
}

// releaseStreamLocked stops a.stream, keeping its failure as lastErr.
func (a *App) releaseStreamLocked() {
	stream := a.stream
	a.stream = nil
	if err := stream.Err(); err != nil {
		a.lastErr = err
	}
	if err := a.engine.StopStream(stream); err != nil {
		a.log.Warn().Err(err).Msg("Failed to release failed stream")
	}
}

func (a *App) Shutdown(ctx context.Context) error {
	a.mu.Lock()

	a.stopRecordingLocked()
	stream := a.stream
	a.stream = nil
	a.mu.Unlock()

	err := a.engine.StopStream(stream)

	done := make(chan struct{})
	go func() {
		a.watchWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return errors.Join(err, ctx.Err())
	}
	return err
}

// Consumer actions

func (a *App) SetMode(mode string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if mode != config.ModePushToTalk && mode != config.ModeToggle {
		return fmt.Errorf("invalid mode %q", mode)
	}
	a.cfg.Mode = mode
	return a.cfg.Save()
}

// SetDevice selects the capture device for the next recording. The running
// stream, if any, is released.
func (a *App) SetDevice(id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.session.IsArmed() {
		return ErrRecording
	}

	if a.stream != nil {
		if err := a.engine.StopStream(a.stream); err != nil {
			a.log.Warn().Err(err).Msg("Failed to stop stream")
		}
		a.stream = nil
	}

	a.cfg.Audio.DeviceID = id
	a.log.Info().Str("device", id).Msg("Changed audio device")
	return a.cfg.Save()
}

func (a *App) SetTitle(title string) error {
	if err := a.session.SetTitle(title); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.cfg.Episode.Title = title
	return a.cfg.Save()
}

// Reset discards captured audio. It fails while recording.
func (a *App) Reset() error {
	if err := a.session.Reset(); err != nil {
		return err
	}
	a.log.Info().Msg("Recording buffer cleared")
	return nil
}

func (a *App) Snapshot() []float32 {
	return a.session.Snapshot()
}

func (a *App) IsRecording() bool {
	return a.session.IsArmed()
}

func (a *App) Mode() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg.Mode
}

func (a *App) ListDevices() ([]audio.AudioDevice, error) {
	return a.engine.ListDevices()
}

func (a *App) Status() Status {
	a.mu.Lock()
	stream := a.stream
	lastErr := a.lastErr
	a.mu.Unlock()

	ep := a.session.Episode()
	f := a.session.Format()
	st := Status{
		Recording:   a.session.IsArmed(),
		Title:       ep.Title,
		StartedAt:   ep.StartedAt,
		Samples:     a.session.Len(),
		Dropped:     a.session.Dropped(),
		Duration:    a.session.Duration(),
		SampleRate:  f.SampleRate,
		Channels:    f.Channels,
		StreamState: audio.StateStopped,
		Err:         lastErr,
	}
	if stream != nil {
		st.Device = stream.Device().Name
		st.StreamState = stream.Status()
	}
	return st
}
