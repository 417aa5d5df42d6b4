package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/agleyzer/hlsclip/internal/parser"
	"github.com/agleyzer/hlsclip/internal/playlist"
	"github.com/agleyzer/hlsclip/internal/segment"
	"github.com/agleyzer/hlsclip/internal/selection"
	"github.com/spf13/cobra"
)

func trimCmd() *cobra.Command {
	var (
		cutsPath string
		rangeArg []string
		first    string
		outPath  string
	)

	cmd := &cobra.Command{
		Use:   "trim [playlist]",
		Short: "Rebuild a playlist that plays only the selected ranges",
		Long: `Rebuild an HLS media playlist restricted to the selected time ranges.

The playlist is a local file or an http(s) URL; it may also come from the
cut list "source" field. Ranges come from a YAML cut list (--cuts), from
--range flags, or both. Chunks are referenced, never re-encoded, and a
discontinuity is marked wherever the result skips source media.`,
		Example: `  hlsclip trim playlist.m3u8 --range 5-11
  hlsclip trim https://example.com/vod.m3u8 --cuts cuts.yaml -o trimmed.m3u8
  hlsclip trim playlist.m3u8 --first 1m30s`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			var extra []cutRange
			if first != "" {
				d, err := time.ParseDuration(first)
				if err != nil {
					return fmt.Errorf("invalid --first duration %q: %w", first, err)
				}
				if d <= 0 {
					return fmt.Errorf("--first duration must be positive, got: %s", first)
				}
				extra = append(extra, cutRange{Start: 0, End: seconds(d.Seconds())})
			}

			cl, err := collectRanges(cutsPath, rangeArg, extra...)
			if err != nil {
				return err
			}
			source, err := pickSource(args, cl)
			if err != nil {
				return err
			}

			idx, err := loadIndex(cmd.Context(), source)
			if err != nil {
				return err
			}
			logger.Info("parsed media playlist",
				"source", source,
				"chunks", idx.Len(),
				"duration", idx.Total(),
				"targetDuration", idx.TargetDuration(),
			)

			content, rec, err := trim(idx, cl.timeRanges())
			if err != nil {
				return err
			}
			logger.Info("rebuilt playlist", "chunks", rec.Len(), "duration", rec.Duration())

			return writeOutput(cmd.OutOrStdout(), outPath, content)
		},
	}

	cmd.Flags().StringVarP(&cutsPath, "cuts", "c", "", "YAML cut list")
	cmd.Flags().StringArrayVarP(&rangeArg, "range", "r", nil, "Range to keep as START-END, in seconds or hh:mm:ss (repeatable)")
	cmd.Flags().StringVar(&first, "first", "", "Keep the first DURATION of the stream (e.g. 10s, 1m30s)")
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "Output file (default: stdout)")

	return cmd
}

// trim renders the playlist restricted to ranges. Overlapping cut list
// entries are merged rather than rejected.
func trim(idx *segment.Index, ranges []selection.TimeRange) (string, playlist.Reconstructed, error) {
	rec := playlist.Build(idx, selection.Normalize(ranges))
	content, err := rec.Encode()
	if err != nil {
		return "", playlist.Reconstructed{}, fmt.Errorf("encode playlist: %w", err)
	}
	return content, rec, nil
}

func pickSource(args []string, cl cutList) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	if cl.Source != "" {
		return cl.Source, nil
	}
	return "", fmt.Errorf("no playlist given; pass it as an argument or set source in the cut list")
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// loadIndex parses a media playlist from a URL or a local file.
func loadIndex(ctx context.Context, source string) (*segment.Index, error) {
	if isURL(source) {
		return parser.Fetch(ctx, source)
	}

	f, err := os.Open(source)
	if err != nil {
		return nil, fmt.Errorf("open playlist: %w", err)
	}
	defer f.Close()

	return parser.BuildFrom(f)
}

func writeOutput(stdout io.Writer, path, content string) error {
	if path == "" || path == "-" {
		_, err := io.WriteString(stdout, content)
		return err
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
