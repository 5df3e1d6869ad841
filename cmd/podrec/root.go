package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/petems/podrec/internal/app"
	"github.com/petems/podrec/internal/audio"
	"github.com/petems/podrec/internal/config"
	"github.com/petems/podrec/internal/logging"
	"github.com/petems/podrec/internal/metrics"
	"github.com/petems/podrec/internal/session"
)

// options holds the persistent flags and what PersistentPreRunE builds from
// them.
type options struct {
	configPath string
	logLevel   string

	cfg *config.Config
	log zerolog.Logger
}

func rootCommand() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "podrec",
		Short:         "Local podcast recorder",
		Long:          "Capture microphone audio into an in-memory episode buffer, driven from the system tray, a hotkey, the CLI or a local HTTP API.",
		Version:       fmt.Sprintf("%s (%s)", Version, Commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTray(cmd.Context(), opts)
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to the config file (default: platform config dir)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override the configured log level")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return opts.load()
	}

	rootCmd.AddCommand(
		trayCommand(opts),
		devicesCommand(opts),
		recordCommand(opts),
		serveCommand(opts),
	)

	return rootCmd
}

func (o *options) load() error {
	var (
		cfg *config.Config
		err error
	)
	if o.configPath != "" {
		cfg, err = config.LoadFrom(o.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		log := logging.New()
		log.Error().Err(err).Msg("Failed to load config")
		return err
	}

	level := cfg.LogLevel
	if o.logLevel != "" {
		level = o.logLevel
	}
	o.cfg = cfg
	o.log = logging.NewWithLevel(level)
	return nil
}

// recorder is the wired core shared by every command.
type recorder struct {
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	engine   *audio.Engine
	session  *session.Session
	app      *app.App
	log      zerolog.Logger
}

func newRecorder(opts *options) (*recorder, error) {
	cfg, log := opts.cfg, opts.log

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	engine, err := audio.New(cfg.Audio, log, audio.WithMetrics(m))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio: %w", err)
	}

	sess := session.New(
		session.WithDropOnContention(cfg.Audio.DropOnContention),
		session.WithCapacity(cfg.Audio.PreallocateSamples()),
		session.WithMetrics(m),
	)
	if err := sess.SetTitle(cfg.Episode.Title); err != nil {
		return nil, err
	}

	return &recorder{
		registry: reg,
		metrics:  m,
		engine:   engine,
		session:  sess,
		app: app.New(app.Config{
			Engine:  engine,
			Session: sess,
			Config:  cfg,
			Logger:  log,
		}),
		log: log,
	}, nil
}

// close disarms, stops the stream and releases the audio host.
func (r *recorder) close(ctx context.Context) error {
	return errors.Join(r.app.Shutdown(ctx), r.engine.Close())
}
