package tray

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/atotto/clipboard"
	"github.com/getlantern/systray"
	"github.com/rs/zerolog"

	"github.com/petems/podrec/internal/app"
	"github.com/petems/podrec/internal/audio"
	"github.com/petems/podrec/internal/config"
	"github.com/petems/podrec/internal/logging"
	"github.com/petems/podrec/internal/session"
)

const pollInterval = time.Second

type UI struct {
	app     *app.App
	cfg     *config.Config
	version string
	commit  string
	log     zerolog.Logger

	stop     chan struct{}
	stopOnce sync.Once

	// Menu items
	mStartStop *systray.MenuItem
	mEpisode   *systray.MenuItem
	mProgress  *systray.MenuItem
	mMode      *systray.MenuItem
	mDevices   *systray.MenuItem
	mReset     *systray.MenuItem
	mCopy      *systray.MenuItem

	devMu       sync.Mutex
	deviceItems map[string]*systray.MenuItem
}

// Status update methods for the app to call
func (u *UI) SetIdle() {
	u.updateStatus(statusIdle)
}

func (u *UI) SetRecording() {
	u.updateStatus(statusRecording)
}

func (u *UI) SetError() {
	u.updateStatus(statusError)
}

func New(application *app.App, cfg *config.Config, version, commit string, log zerolog.Logger) *UI {
	return &UI{
		app:         application,
		cfg:         cfg,
		version:     version,
		commit:      commit,
		log:         log.With().Str("component", "tray").Logger(),
		stop:        make(chan struct{}),
		deviceItems: make(map[string]*systray.MenuItem),
	}
}

// Run blocks on the tray event loop until Quit is clicked or ctx is done.
// It must be called from the main goroutine.
func (u *UI) Run(ctx context.Context) error {
	go func() {
		select {
		case <-ctx.Done():
			systray.Quit()
		case <-u.stop:
		}
	}()
	systray.Run(u.onReady, u.onExit)
	return nil
}

func (u *UI) onReady() {
	u.updateStatus(statusIdle)
	systray.SetTooltip("Podcast recorder")

	// Build menu
	u.mStartStop = systray.AddMenuItem("Start Recording", "Arm the recorder")
	u.mEpisode = systray.AddMenuItem("", "Episode title")
	u.mEpisode.Disable()
	u.mProgress = systray.AddMenuItem("", "Captured audio")
	u.mProgress.Disable()
	systray.AddSeparator()

	u.mMode = systray.AddMenuItem(modeLabel(u.app.Mode()), "Toggle between modes")
	u.mDevices = systray.AddMenuItem("Microphone", "Select audio device")
	u.buildDeviceMenu()
	systray.AddSeparator()

	u.mReset = systray.AddMenuItem("Clear Recording", "Discard captured audio")
	u.mCopy = systray.AddMenuItem("Copy Summary", "Copy recording status to the clipboard")

	systray.AddSeparator()
	mLogs := systray.AddMenuItem("Open Logs", "View application logs")
	mAbout := systray.AddMenuItem("About", "About podrec")
	mQuit := systray.AddMenuItem("Quit", "Exit application")

	u.refresh()

	go u.poll()
	go u.handleEvents(mLogs, mAbout, mQuit)
}

func (u *UI) handleEvents(mLogs, mAbout, mQuit *systray.MenuItem) {
	for {
		select {
		case <-u.mStartStop.ClickedCh:
			if err := u.app.ToggleRecording(); err != nil {
				u.log.Error().Err(err).Msg("Failed to start recording")
			}
			u.refresh()
		case <-u.mMode.ClickedCh:
			u.toggleMode()
		case <-u.mReset.ClickedCh:
			u.resetBuffer()
		case <-u.mCopy.ClickedCh:
			u.copySummary()
		case <-mLogs.ClickedCh:
			u.openLogs()
		case <-mAbout.ClickedCh:
			u.showAbout()
		case <-mQuit.ClickedCh:
			systray.Quit()
			return
		case <-u.stop:
			return
		}
	}
}

func (u *UI) poll() {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-u.stop:
			return
		case <-ticker.C:
			u.refresh()
		}
	}
}

// refresh redraws the labels that depend on app state.
func (u *UI) refresh() {
	st := u.app.Status()

	if st.Recording {
		u.mStartStop.SetTitle("Stop Recording")
		u.mReset.Disable()
	} else {
		u.mStartStop.SetTitle("Start Recording")
		u.mReset.Enable()
	}
	u.mEpisode.SetTitle("Episode: " + st.Title)
	u.mProgress.SetTitle(progressLabel(st))
}

func (u *UI) buildDeviceMenu() {
	devices, err := u.app.ListDevices()
	if err != nil {
		u.log.Error().Err(err).Msg("Failed to list audio devices")
		return
	}

	selected := u.cfg.Audio.DeviceID
	for _, dev := range devices {
		item := u.mDevices.AddSubMenuItem(dev.Name, "")
		if dev.ID == selected || (selected == "" && dev.Default) {
			item.Check()
		}
		u.deviceItems[dev.ID] = item

		go u.watchDeviceItem(dev, item)
	}
}

func (u *UI) watchDeviceItem(dev audio.AudioDevice, item *systray.MenuItem) {
	for {
		select {
		case <-u.stop:
			return
		case <-item.ClickedCh:
		}

		if err := u.app.SetDevice(dev.ID); err != nil {
			if errors.Is(err, session.ErrInvalidState) {
				u.log.Warn().Str("device", dev.Name).Msg("Stop recording before switching microphones")
			} else {
				u.log.Error().Err(err).Str("device", dev.Name).Msg("Failed to change audio device")
			}
			continue
		}

		u.devMu.Lock()
		for id, itm := range u.deviceItems {
			if id != dev.ID {
				itm.Uncheck()
			}
		}
		item.Check()
		u.devMu.Unlock()
	}
}

func (u *UI) toggleMode() {
	oldMode := u.app.Mode()
	newMode := config.ModeToggle
	if oldMode == config.ModeToggle {
		newMode = config.ModePushToTalk
	}
	if err := u.app.SetMode(newMode); err != nil {
		u.log.Error().Err(err).Msg("Failed to save mode")
	}
	u.mMode.SetTitle(modeLabel(newMode))
	u.log.Info().Str("from", oldMode).Str("to", newMode).Msg("Changed mode")
}

func (u *UI) resetBuffer() {
	if err := u.app.Reset(); err != nil {
		u.log.Warn().Err(err).Msg("Failed to clear recording")
		return
	}
	u.refresh()
}

func (u *UI) copySummary() {
	text := summary(u.app.Status())
	if err := clipboard.WriteAll(text); err != nil {
		u.log.Error().Err(err).Msg("Failed to copy summary")
		return
	}
	u.log.Debug().Str("summary", text).Msg("Copied summary to clipboard")
}

func (u *UI) openLogs() {
	path := logging.LogPath()

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", "", path)
	default:
		cmd = exec.Command("xdg-open", path)
	}
	if err := cmd.Start(); err != nil {
		u.log.Error().Err(err).Str("path", path).Msg("Failed to open logs")
		return
	}
	go func() { _ = cmd.Wait() }()
}

func (u *UI) showAbout() {
	u.log.Info().Str("version", u.version).Str("commit", u.commit).Msg("podrec, local podcast recorder")
}

func (u *UI) onExit() {
	u.stopOnce.Do(func() { close(u.stop) })
}

type trayStatus int

const (
	statusIdle trayStatus = iota
	statusRecording
	statusError
)

// updateStatus sets the tray title with microphone emoji and status indicator
func (u *UI) updateStatus(status trayStatus) {
	systray.SetTitle(fmt.Sprintf("🎙️ %s", emojiForStatus(status)))
}

// emojiForStatus returns the appropriate status emoji
func emojiForStatus(status trayStatus) string {
	switch status {
	case statusRecording:
		return "🔴" // Red - recording
	case statusError:
		return "⚪️" // White - error
	default:
		return "🟢" // Green - ready/idle
	}
}

func modeLabel(mode string) string {
	if mode == config.ModePushToTalk {
		return "Mode: Push-to-Talk"
	}
	return "Mode: Toggle"
}

func progressLabel(st app.Status) string {
	label := formatDuration(st.Duration)
	if st.Err != nil {
		return label + " (capture failed)"
	}
	if st.Dropped > 0 {
		label += fmt.Sprintf(" (%d dropped)", st.Dropped)
	}
	return label
}

// formatDuration renders d as h:mm:ss.
func formatDuration(d time.Duration) string {
	d = d.Truncate(time.Second)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second
	return fmt.Sprintf("%d:%02d:%02d", h, m, s)
}

// summary is the plain-text status copied to the clipboard.
func summary(st app.Status) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Episode: %s\n", st.Title)
	if st.Recording {
		fmt.Fprintf(&b, "State: recording since %s\n", st.StartedAt.Format(time.Kitchen))
	} else {
		b.WriteString("State: idle\n")
	}
	fmt.Fprintf(&b, "Captured: %s (%d samples)\n", formatDuration(st.Duration), st.Samples)
	if st.Device != "" {
		fmt.Fprintf(&b, "Device: %s, %g Hz, %d ch\n", st.Device, st.SampleRate, st.Channels)
	}
	if st.Dropped > 0 {
		fmt.Fprintf(&b, "Dropped blocks: %d\n", st.Dropped)
	}
	if st.Err != nil {
		fmt.Fprintf(&b, "Error: %v\n", st.Err)
	}
	return b.String()
}
