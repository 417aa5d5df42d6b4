package main

import (
	"context"
	"fmt"
	"time"

	"github.com/agleyzer/hlsclip/internal/ffmpeg"
	"github.com/agleyzer/hlsclip/internal/merge"
	"github.com/spf13/cobra"
)

func mergeCmd() *cobra.Command {
	var (
		cutsPath  string
		rangeArg  []string
		outputDir string
		timeout   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "merge [source]",
		Short: "Merge the selected ranges into one media file",
		Long: `Cut the selected ranges out of a source with ffmpeg and concatenate
them into a single MP4 file. The source is anything ffmpeg can open,
typically the HLS playlist itself. The output path is printed on success.`,
		Example: `  hlsclip merge hls/output.m3u8 --range 5-11 --range 20-30
  hlsclip merge --cuts cuts.yaml --output-dir clips`,
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

			flags := cmd.Flags()
			if flags.Changed("output-dir") {
				cfg.OutputDir = outputDir
			}
			if !flags.Changed("timeout") {
				timeout = cfg.MergeTimeout
			}

			cl, err := collectRanges(cutsPath, rangeArg)
			if err != nil {
				return err
			}
			source, err := pickSource(args, cl)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			builder := merge.NewBuilder(ffmpeg.New(cfg.FFmpegPath, cfg.OutputDir), logger)
			artifact, err := builder.Merge(ctx, source, cl.timeRanges())
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), artifact.Path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&cutsPath, "cuts", "c", "", "YAML cut list")
	cmd.Flags().StringArrayVarP(&rangeArg, "range", "r", nil, "Range to keep as START-END, in seconds or hh:mm:ss (repeatable)")
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "Directory for the merged file (overrides HLSCLIP_OUTPUT_DIR)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Merge time limit (overrides HLSCLIP_MERGE_TIMEOUT)")

	return cmd
}
