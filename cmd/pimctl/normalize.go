package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mcdoradca/PIM/internal/bootstrap"
	"github.com/mcdoradca/PIM/internal/normalize"
	"github.com/mcdoradca/PIM/internal/pipeline"
	"github.com/mcdoradca/PIM/internal/storage"
)

type normalizeOptions struct {
	outDir      string
	width       int
	height      int
	quality     int
	minWidth    int
	minHeight   int
	keepAlpha   bool
	gate        bool
	concurrency int
	profile     string
	intent      string
}

func newNormalizeCommand(root *rootOptions) *cobra.Command {
	opts := &normalizeOptions{}

	cmd := &cobra.Command{
		Use:   "normalize FILE...",
		Short: "Write a golden-record JPEG for each input file",
		Long: "Each FILE is normalized to the configured canvas and written to the output\n" +
			"directory as <name>.jpg, where name is the file name without extension.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNormalize(cmd, root, opts, args)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.outDir, "out", "o", "golden", "output directory")
	f.IntVar(&opts.width, "width", 0, "canvas width (default from PIM_TARGET_WIDTH)")
	f.IntVar(&opts.height, "height", 0, "canvas height (default from PIM_TARGET_HEIGHT)")
	f.IntVar(&opts.quality, "quality", 0, "JPEG quality 1..100 (default from PIM_JPEG_QUALITY)")
	f.IntVar(&opts.minWidth, "min-width", 0, "minimum source width for --gate")
	f.IntVar(&opts.minHeight, "min-height", 0, "minimum source height for --gate")
	f.BoolVar(&opts.keepAlpha, "no-white", false, "flatten transparency onto black instead of white")
	f.BoolVar(&opts.gate, "gate", false, "skip sources below the minimum resolution")
	f.IntVarP(&opts.concurrency, "concurrency", "j", runtime.NumCPU(), "files processed in parallel")
	f.StringVar(&opts.profile, "profile", "", "CMYK ICC profile (default from PIM_CMYK_PROFILE)")
	f.StringVar(&opts.intent, "intent", "", "rendering intent (default from PIM_RENDERING_INTENT)")
	return cmd
}

func (o *normalizeOptions) spec(defaults normalize.Spec) normalize.Spec {
	spec := defaults
	if o.width > 0 && o.height > 0 {
		spec.TargetSize = normalize.Size{Width: o.width, Height: o.height}
	}
	if o.quality > 0 {
		spec.Quality = o.quality
	}
	if o.minWidth > 0 {
		spec.MinResolution.Width = o.minWidth
	}
	if o.minHeight > 0 {
		spec.MinResolution.Height = o.minHeight
	}
	if o.keepAlpha {
		spec.ForceWhiteBackground = false
	}
	return spec
}

func runNormalize(cmd *cobra.Command, root *rootOptions, opts *normalizeOptions, files []string) error {
	if (opts.width > 0) != (opts.height > 0) {
		return fmt.Errorf("--width and --height must be set together")
	}

	profiles := root.cfg.Profiles
	if opts.profile != "" {
		profiles.CMYKPath = opts.profile
	}
	if opts.intent != "" {
		profiles.Intent = opts.intent
	}

	if err := normalize.Startup(); err != nil {
		return err
	}
	defer normalize.Shutdown()

	normalizer, err := bootstrap.NewNormalizer(profiles, root.logger, normalize.WithMaxSourcePixels(int64(root.cfg.Normalize.MaxSourcePixels)))
	if err != nil {
		return err
	}
	spec := opts.spec(bootstrap.DefaultSpec(root.cfg.Normalize))
	if err := spec.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(opts.outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	var (
		mu      sync.Mutex
		out     = cmd.OutOrStdout()
		skipped int
	)
	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(max(1, opts.concurrency))

	for _, file := range files {
		g.Go(func() error {
			line, ok, err := normalizeFile(ctx, root.logger, normalizer, spec, opts, file)
			if err != nil {
				return fmt.Errorf("%s: %w", file, err)
			}
			mu.Lock()
			defer mu.Unlock()
			if !ok {
				skipped++
			}
			fmt.Fprintln(out, line)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if skipped > 0 {
		return fmt.Errorf("%d of %d sources below minimum resolution %s", skipped, len(files), spec.MinResolution)
	}
	return nil
}

// normalizeFile returns one report line and false when the gate rejected
// the source.
func normalizeFile(ctx context.Context, logger logrus.FieldLogger, n *normalize.Normalizer, spec normalize.Spec, opts *normalizeOptions, file string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	raw, err := os.ReadFile(file)
	if err != nil {
		return "", false, err
	}

	if opts.gate {
		probe, err := normalize.ProbeImage(raw)
		if err != nil {
			return "", false, err
		}
		if !normalize.ValidateSize(logger.WithField("file", file), probe.Size, spec.MinResolution) {
			return fmt.Sprintf("%s\trejected\t%s", file, probe.Size), false, nil
		}
	}

	result, err := n.Normalize(raw, spec)
	if err != nil {
		return "", false, err
	}
	contentID, err := storage.ContentID(result.Data)
	if err != nil {
		return "", false, err
	}

	stem := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	target := filepath.Join(opts.outDir, pipeline.GoldenRecordName(stem))
	if err := os.WriteFile(target, result.Data, 0o644); err != nil {
		return "", false, err
	}
	return fmt.Sprintf("%s\t%s\t%s -> %s\t%s", file, target, result.Source.Size(), spec.TargetSize, contentID), true, nil
}
