package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/spf13/cobra"

	"github.com/petems/podrec/internal/app"
)

func recordCommand(opts *options) *cobra.Command {
	var (
		duration time.Duration
		title    string
	)

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record from the configured device without the tray",
		Long:  "Arm the recorder, capture until --duration elapses or the process is interrupted, then print a summary of the captured audio.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if title != "" {
				opts.cfg.Episode.Title = title
			}
			return runRecord(cmd.Context(), opts, duration, cmd.OutOrStdout())
		},
	}

	cmd.Flags().DurationVar(&duration, "duration", 0, "Stop after this long (0 records until interrupted)")
	cmd.Flags().StringVar(&title, "title", "", "Episode title for this take")

	return cmd
}

func runRecord(ctx context.Context, opts *options, duration time.Duration, out io.Writer) error {
	rec, err := newRecorder(opts)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rec.close(shutdownCtx); err != nil {
			rec.log.Error().Err(err).Msg("Shutdown error")
		}
	}()

	if err := rec.app.StartRecording(); err != nil {
		return err
	}

	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

wait:
	for {
		select {
		case <-ctx.Done():
			break wait
		case <-ticker.C:
			if st := rec.app.Status(); !st.Recording {
				// The stream failed underneath us.
				if st.Err != nil {
					return st.Err
				}
				break wait
			}
		}
	}

	rec.app.StopRecording()
	printTake(out, rec.app.Status(), peak(rec.app.Snapshot()))
	return nil
}

func printTake(out io.Writer, st app.Status, peak float64) {
	fmt.Fprintf(out, "Episode:  %s\n", st.Title)
	fmt.Fprintf(out, "Device:   %s (%g Hz, %d ch)\n", st.Device, st.SampleRate, st.Channels)
	fmt.Fprintf(out, "Captured: %s, %d samples\n", st.Duration.Round(time.Millisecond), st.Samples)
	fmt.Fprintf(out, "Dropped:  %d blocks\n", st.Dropped)
	fmt.Fprintf(out, "Peak:     %s\n", formatPeak(peak))
}

// peak returns the largest absolute sample value.
func peak(samples []float32) float64 {
	var p float64
	for _, s := range samples {
		p = math.Max(p, math.Abs(float64(s)))
	}
	return p
}

func formatPeak(p float64) string {
	if p == 0 {
		return "silence"
	}
	return fmt.Sprintf("%.1f dBFS", 20*math.Log10(p))
}
