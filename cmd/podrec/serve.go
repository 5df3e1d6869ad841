package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/petems/podrec/internal/control"
)

func serveCommand(opts *options) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the recorder headless behind the control API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = opts.cfg.Control.Addr
			}
			return runServe(cmd.Context(), opts, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default: control.addr from config)")

	return cmd
}

func runServe(ctx context.Context, opts *options, addr string) error {
	rec, err := newRecorder(opts)
	if err != nil {
		return err
	}

	srv := control.New(rec.app, rec.registry, rec.log)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(addr) }()

	select {
	case <-ctx.Done():
	case err = <-errCh:
	}

	rec.log.Info().Msg("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		rec.log.Error().Err(serr).Msg("Control API shutdown error")
	}
	if cerr := rec.close(shutdownCtx); cerr != nil {
		rec.log.Error().Err(cerr).Msg("Shutdown error")
	}
	return err
}
