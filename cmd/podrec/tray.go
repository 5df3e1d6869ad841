package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/petems/podrec/internal/control"
	"github.com/petems/podrec/internal/hotkey"
	"github.com/petems/podrec/internal/permissions"
	"github.com/petems/podrec/internal/tray"
)

func trayCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "tray",
		Short: "Run the system tray recorder (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTray(cmd.Context(), opts)
		},
	}
}

func runTray(ctx context.Context, opts *options) error {
	log := opts.log

	// macOS requires explicit microphone approval before capture works
	if err := permissions.EnsurePermissions(); err != nil {
		log.Error().Err(err).Msg("Required permissions not granted")
		return err
	}

	rec, err := newRecorder(opts)
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize recorder")
		return err
	}

	trayUI := tray.New(rec.app, opts.cfg, Version, Commit, log)
	rec.app.SetStatusUpdater(trayUI)

	// A missing hotkey leaves the tray and API usable.
	hkManager, err := hotkey.New()
	if err != nil {
		log.Warn().Err(err).Msg("Global hotkey unavailable")
	} else {
		defer hkManager.Close()
		if err := hkManager.Register(opts.cfg.PlatformHotkey(), rec.app.OnHotkey); err != nil {
			log.Warn().Err(err).Str("hotkey", opts.cfg.PlatformHotkey()).Msg("Failed to register hotkey")
		}
	}

	var srv *control.Server
	if opts.cfg.Control.Enabled {
		srv = control.New(rec.app, rec.registry, log)
		go func() {
			if err := srv.Start(opts.cfg.Control.Addr); err != nil {
				log.Error().Err(err).Msg("Control API stopped")
			}
		}()
	}

	log.Info().Str("version", Version).Msg("podrec starting...")

	// Start tray UI - MUST run on main thread
	err = trayUI.Run(ctx)

	log.Info().Msg("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if srv != nil {
		if serr := srv.Shutdown(shutdownCtx); serr != nil {
			log.Error().Err(serr).Msg("Control API shutdown error")
		}
	}
	if cerr := rec.close(shutdownCtx); cerr != nil {
		log.Error().Err(cerr).Msg("Shutdown error")
	}
	return err
}
