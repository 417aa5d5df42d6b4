package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/agleyzer/hlsclip/internal/cluster"
	"github.com/agleyzer/hlsclip/internal/config"
	"github.com/agleyzer/hlsclip/internal/ffmpeg"
	"github.com/agleyzer/hlsclip/internal/merge"
	"github.com/agleyzer/hlsclip/internal/server"
	"github.com/agleyzer/hlsclip/internal/store"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func serveCmd() *cobra.Command {
	var (
		host      string
		port      int
		hlsDir    string
		playlist  string
		outputDir string
		raftID    string
		raftBind  string
		raftPeers []string
		withRaft  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Start the HTTP API server.

Serves the source HLS stream, rebuilds playlists from selected time ranges,
publishes the result and merges ranges into downloadable files.

Configuration is loaded from environment variables (HLSCLIP_ prefix):
  HLSCLIP_HOST               Server host (default: 0.0.0.0)
  HLSCLIP_PORT               Server port (default: 4000)
  HLSCLIP_HLS_DIR            Source playlist directory (default: hls)
  HLSCLIP_PLAYLIST           Source playlist file (default: output.m3u8)
  HLSCLIP_SOURCE_URL         Source handed to ffmpeg (default: playlist path)
  HLSCLIP_OUTPUT_DIR         Merged file directory (default: output)
  HLSCLIP_FFMPEG_PATH        ffmpeg binary (default: ffmpeg)
  HLSCLIP_MERGE_TIMEOUT      Merge time limit (default: 10m)
  HLSCLIP_CORS_ORIGINS       Allowed origins (default: *)
  HLSCLIP_LOG_LEVEL          Log level (default: INFO)
  HLSCLIP_LOG_FORMAT         Log format, text or json (default: text)
  HLSCLIP_CLUSTER_ENABLED    Replicate published playlists with Raft
  HLSCLIP_CLUSTER_RAFT_ID    Raft node ID (default: bind address)
  HLSCLIP_CLUSTER_BIND       Raft bind address
  HLSCLIP_CLUSTER_PEERS      Comma-separated Raft peer addresses
  HLSCLIP_CLUSTER_LOG_LEVEL  Raft library log level (default: off)

Command-line flags override environment variables.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("host") {
				cfg.Host = host
			}
			if flags.Changed("port") {
				cfg.Port = port
			}
			if flags.Changed("hls-dir") {
				cfg.HLSDir = hlsDir
			}
			if flags.Changed("playlist") {
				cfg.Playlist = playlist
			}
			if flags.Changed("output-dir") {
				cfg.OutputDir = outputDir
			}
			if flags.Changed("cluster") {
				cfg.Cluster.Enabled = withRaft
			}
			if flags.Changed("raft-id") {
				cfg.Cluster.RaftID = raftID
			}
			if flags.Changed("raft-bind") {
				cfg.Cluster.Bind = raftBind
			}
			if flags.Changed("raft-peers") {
				cfg.Cluster.Peers = raftPeers
			}

			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Server host (overrides HLSCLIP_HOST)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Server port (overrides HLSCLIP_PORT)")
	cmd.Flags().StringVar(&hlsDir, "hls-dir", "", "Source playlist directory (overrides HLSCLIP_HLS_DIR)")
	cmd.Flags().StringVar(&playlist, "playlist", "", "Source playlist file name (overrides HLSCLIP_PLAYLIST)")
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "Merged file directory (overrides HLSCLIP_OUTPUT_DIR)")
	cmd.Flags().BoolVar(&withRaft, "cluster", false, "Replicate published playlists with Raft")
	cmd.Flags().StringVar(&raftID, "raft-id", "", "Raft node ID")
	cmd.Flags().StringVar(&raftBind, "raft-bind", "", "Raft bind address (host:port)")
	cmd.Flags().StringSliceVar(&raftPeers, "raft-peers", nil, "Raft peer addresses, this node included")

	return cmd
}

func runServe(parent context.Context, cfg config.EnvConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}
	logger.Info("hlsclip starting", "version", version, "addr", cfg.Addr())

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, shutdown, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer shutdown()

	adapter := ffmpeg.New(cfg.FFmpegPath, cfg.OutputDir)
	srv := server.New(server.Config{
		Addr:         cfg.Addr(),
		HLSDir:       cfg.HLSDir,
		Playlist:     cfg.Playlist,
		OutputDir:    cfg.OutputDir,
		SourceURL:    cfg.SourceURL,
		MergeTimeout: cfg.MergeTimeout,
		CORSOrigins:  cfg.CORSOrigins,
	}, st, merge.NewBuilder(adapter, logger), logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(gctx)
	})

	logger.Info("hlsclip ready",
		"source", fmt.Sprintf("http://%s/api/hls", cfg.Addr()),
		"published", fmt.Sprintf("http://%s/api/%s", cfg.Addr(), server.PublishedName),
	)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("hlsclip stopped")
	return nil
}

// openStore returns the published playlist store: in memory for a single
// node, Raft-replicated when clustering is enabled.
func openStore(ctx context.Context, cfg config.EnvConfig, logger *slog.Logger) (store.Store, func(), error) {
	if !cfg.Cluster.Enabled {
		return store.NewMemory(), func() {}, nil
	}

	manager, err := cluster.NewManager(cfg.ClusterConfig(), logger)
	if err != nil {
		return nil, nil, fmt.Errorf("create cluster manager: %w", err)
	}
	if err := manager.Start(ctx); err != nil {
		return nil, nil, fmt.Errorf("start cluster: %w", err)
	}

	shutdown := func() {
		if err := manager.Shutdown(); err != nil {
			logger.Error("cluster shutdown", "error", err)
		}
	}
	return manager, shutdown, nil
}
