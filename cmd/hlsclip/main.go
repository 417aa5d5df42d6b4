// The hlsclip command selects time ranges of an HLS stream and turns them into
// a new playlist or a merged media file.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/agleyzer/hlsclip/internal/config"
	"github.com/spf13/cobra"
)

// Version information set via ldflags during build.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hlsclip",
		Short: "Cut time ranges out of HLS streams",
		Long: `hlsclip selects time ranges of an HLS media playlist and either rebuilds
a playlist that plays only those ranges or merges them into one media file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().String("env-file", "", "Path to .env file (default: .env in current directory)")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(serveCmd())
	cmd.AddCommand(trimCmd())
	cmd.AddCommand(mergeCmd())
	cmd.AddCommand(versionCmd())

	return cmd
}

// loadConfig loads configuration from the .env file and environment, then
// applies the persistent flags.
func loadConfig(cmd *cobra.Command) (config.EnvConfig, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	cfg, err := config.Load(envFile)
	if err != nil {
		return config.EnvConfig{}, fmt.Errorf("load config: %w", err)
	}

	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.LogLevel = "DEBUG"
	}
	return cfg, nil
}

// newLogger builds the logger for commands whose stdout carries data.
func newLogger(cfg config.EnvConfig, w io.Writer) (*slog.Logger, error) {
	logger, err := cfg.NewLogger(w)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return logger, nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "hlsclip version %s\n", version)
			fmt.Fprintf(cmd.OutOrStdout(), "  commit: %s\n", commit)
		},
	}
}
