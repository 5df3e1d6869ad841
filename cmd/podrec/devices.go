package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/petems/podrec/internal/audio"
)

func devicesCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List audio input devices",
		Long:  "List the input devices of the configured backend with their native sample rate and channel count.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := audio.New(opts.cfg.Audio, opts.log)
			if err != nil {
				return fmt.Errorf("failed to initialize audio: %w", err)
			}
			defer engine.Close()

			devices, err := engine.EnumerateDevices()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "DEFAULT\tID\tNAME\tRATE\tCHANNELS")
			for d := range devices {
				mark := ""
				if d.Default {
					mark = "*"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%g\t%d\n", mark, d.ID, d.Name, d.Config.SampleRate, d.Config.Channels)
			}
			return w.Flush()
		},
	}
}
