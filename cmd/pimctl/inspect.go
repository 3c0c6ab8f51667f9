package main

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mcdoradca/PIM/internal/icc"
	"github.com/mcdoradca/PIM/internal/jpegenc"
	"github.com/mcdoradca/PIM/internal/normalize"
)

func newCheckCommand(root *rootOptions) *cobra.Command {
	var minWidth, minHeight int

	cmd := &cobra.Command{
		Use:   "check FILE...",
		Short: "Apply the minimum resolution gate without decoding pixels",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			minResolution := normalize.Size{Width: root.cfg.Normalize.MinWidth, Height: root.cfg.Normalize.MinHeight}
			if minWidth > 0 {
				minResolution.Width = minWidth
			}
			if minHeight > 0 {
				minResolution.Height = minHeight
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "FILE\tFORMAT\tSIZE\tRESULT")
			rejected := 0
			for _, file := range args {
				raw, err := os.ReadFile(file)
				if err != nil {
					return err
				}
				probe, err := normalize.ProbeImage(raw)
				if err != nil {
					return fmt.Errorf("%s: %w", file, err)
				}
				result := "ok"
				if !normalize.ValidateSize(root.logger.WithField("file", file), probe.Size, minResolution) {
					result = "below " + minResolution.String()
					rejected++
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", file, probe.Format, probe.Size, result)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if rejected > 0 {
				return fmt.Errorf("%d of %d sources rejected", rejected, len(args))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&minWidth, "min-width", 0, "minimum width (default from PIM_MIN_WIDTH)")
	cmd.Flags().IntVar(&minHeight, "min-height", 0, "minimum height (default from PIM_MIN_HEIGHT)")
	return cmd
}

func newIdentifyCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "identify FILE",
		Short: "Print format, color layout and JPEG markers of an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			probe, err := normalize.ProbeImage(raw)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "format:      %s (%s)\n", probe.Format, probe.MIME)
			fmt.Fprintf(out, "size:        %s\n", probe.Size)
			if probe.Format != "jpeg" {
				return nil
			}

			info, err := jpegenc.Inspect(raw)
			if err != nil {
				root.logger.WithError(err).Debug("jpeg marker scan failed")
				return nil
			}
			fmt.Fprintf(out, "components:  %d\n", len(info.Components))
			fmt.Fprintf(out, "subsampling: %s\n", info.Subsampling())
			fmt.Fprintf(out, "progressive: %t\n", info.Progressive)
			fmt.Fprintf(out, "markers:     %s\n", strings.Join(info.Markers, " "))
			return nil
		},
	}
}

func newProfileCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "profile FILE",
		Short: "Describe an ICC profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := icc.LoadProfile(args[0])
			if err != nil {
				return err
			}
			tags := p.Tags()
			slices.Sort(tags)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "version:     %s\n", p.Info.Version)
			fmt.Fprintf(out, "class:       %s\n", icc.ProfileClassName(p.Info.Class))
			fmt.Fprintf(out, "color space: %s\n", icc.ColorSpaceName(p.Info.ColorSpace))
			fmt.Fprintf(out, "pcs:         %s\n", icc.ColorSpaceName(p.Info.PCS))
			fmt.Fprintf(out, "intent:      %s\n", p.Info.Intent)
			fmt.Fprintf(out, "tags:        %s\n", strings.Join(tags, " "))
			return nil
		},
	}
}
