// Package control exposes the recorder over a local HTTP API so scripts and
// other front ends can drive it alongside the tray.
package control

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/petems/podrec/internal/app"
	"github.com/petems/podrec/internal/audio"
	"github.com/petems/podrec/internal/session"
)

// Recorder is the part of app.App the API drives.
type Recorder interface {
	StartRecording() error
	StopRecording()
	SetTitle(title string) error
	SetDevice(id string) error
	Reset() error
	Snapshot() []float32
	ListDevices() ([]audio.AudioDevice, error)
	Status() app.Status
}

type Server struct {
	echo *echo.Echo
	rec  Recorder
	log  zerolog.Logger
}

// New builds the API. gatherer may be nil to omit /metrics.
func New(rec Recorder, gatherer prometheus.Gatherer, log zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{echo: e, rec: rec, log: log.With().Str("component", "control").Logger()}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod: true,
		LogURI:    true,
		LogStatus: true,
		LogError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			ev := s.log.Debug()
			if v.Error != nil {
				ev = s.log.Warn().Err(v.Error)
			}
			ev.Str("method", v.Method).Str("uri", v.URI).Int("status", v.Status).Msg("Control request")
			return nil
		},
	}))

	api := e.Group("/api/v1")
	api.GET("/status", s.getStatus)
	api.POST("/recording/start", s.startRecording)
	api.POST("/recording/stop", s.stopRecording)
	api.PUT("/episode", s.putEpisode)
	api.GET("/devices", s.getDevices)
	api.PUT("/device", s.putDevice)
	api.GET("/buffer", s.getBuffer)
	api.DELETE("/buffer", s.deleteBuffer)

	if gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	return s
}

// Handler returns the API as a plain http.Handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.log.Info().Str("addr", addr).Msg("Control API listening")
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

type statusResponse struct {
	Recording       bool       `json:"recording"`
	Title           string     `json:"title"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	Samples         int        `json:"samples"`
	DroppedBlocks   uint64     `json:"dropped_blocks"`
	DurationSeconds float64    `json:"duration_seconds"`
	Device          string     `json:"device,omitempty"`
	SampleRate      float64    `json:"sample_rate"`
	Channels        int        `json:"channels"`
	Stream          string     `json:"stream"`
	Error           string     `json:"error,omitempty"`
}

func newStatusResponse(st app.Status) statusResponse {
	resp := statusResponse{
		Recording:       st.Recording,
		Title:           st.Title,
		Samples:         st.Samples,
		DroppedBlocks:   st.Dropped,
		DurationSeconds: st.Duration.Seconds(),
		Device:          st.Device,
		SampleRate:      st.SampleRate,
		Channels:        st.Channels,
		Stream:          st.StreamState.String(),
	}
	if !st.StartedAt.IsZero() {
		t := st.StartedAt
		resp.StartedAt = &t
	}
	if st.Err != nil {
		resp.Error = st.Err.Error()
	}
	return resp
}

type deviceResponse struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Default    bool    `json:"default"`
	SampleRate float64 `json:"sample_rate,omitempty"`
	Channels   int     `json:"channels,omitempty"`
}

type devicesResponse struct {
	Devices []deviceResponse `json:"devices"`
	Error   string           `json:"error,omitempty"`
}

type episodeRequest struct {
	Title string `json:"title"`
}

type deviceRequest struct {
	DeviceID string `json:"device_id"`
}

func (s *Server) getStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, newStatusResponse(s.rec.Status()))
}

func (s *Server) startRecording(c echo.Context) error {
	if err := s.rec.StartRecording(); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, newStatusResponse(s.rec.Status()))
}

func (s *Server) stopRecording(c echo.Context) error {
	s.rec.StopRecording()
	return c.JSON(http.StatusOK, newStatusResponse(s.rec.Status()))
}

func (s *Server) putEpisode(c echo.Context) error {
	var req episodeRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if req.Title == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "title must not be empty")
	}
	if err := s.rec.SetTitle(req.Title); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, newStatusResponse(s.rec.Status()))
}

// getDevices lists devices. Enumeration failures still answer 200 with an
// empty list and the error, since they never block the rest of the API.
func (s *Server) getDevices(c echo.Context) error {
	devices, err := s.rec.ListDevices()
	resp := devicesResponse{Devices: make([]deviceResponse, 0, len(devices))}
	for _, d := range devices {
		resp.Devices = append(resp.Devices, deviceResponse{
			ID:         d.ID,
			Name:       d.Name,
			Default:    d.Default,
			SampleRate: d.Config.SampleRate,
			Channels:   d.Config.Channels,
		})
	}
	if err != nil {
		resp.Error = err.Error()
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) putDevice(c echo.Context) error {
	var req deviceRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := s.rec.SetDevice(req.DeviceID); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// getBuffer returns the snapshot as raw little-endian float32, interleaved.
func (s *Server) getBuffer(c echo.Context) error {
	st := s.rec.Status()
	samples := s.rec.Snapshot()

	raw := make([]byte, 4*len(samples))
	for i, v := range samples {
		binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(v))
	}

	h := c.Response().Header()
	h.Set("X-Sample-Format", "float32le")
	h.Set("X-Sample-Rate", strconv.FormatFloat(st.SampleRate, 'f', -1, 64))
	h.Set("X-Channels", strconv.Itoa(st.Channels))
	return c.Blob(http.StatusOK, echo.MIMEOctetStream, raw)
}

func (s *Server) deleteBuffer(c echo.Context) error {
	if err := s.rec.Reset(); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func httpError(err error) error {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrInvalidState):
		code = http.StatusConflict
	case errors.Is(err, audio.ErrNoDevice):
		code = http.StatusServiceUnavailable
	case errors.Is(err, audio.ErrStreamCreation):
		code = http.StatusBadGateway
	}
	return echo.NewHTTPError(code, err.Error()).SetInternal(err)
}
