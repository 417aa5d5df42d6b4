// Package config provides application configuration.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/agleyzer/hlsclip/internal/cluster"
	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every environment variable name.
const Prefix = "HLSCLIP"

// EnvConfig holds all environment-based configuration.
// Field names map to environment variables with the HLSCLIP_ prefix.
// Nested structs use underscore delimiter (e.g., HLSCLIP_CLUSTER_BIND).
type EnvConfig struct {
	// Host is the server host to bind to.
	// Env: HLSCLIP_HOST (default: 0.0.0.0)
	Host string `envconfig:"HOST" default:"0.0.0.0"`

	// Port is the HTTP port.
	// Env: HLSCLIP_PORT (default: 4000)
	Port int `envconfig:"PORT" default:"4000"`

	// HLSDir holds the source playlist and its segment files.
	// Env: HLSCLIP_HLS_DIR (default: hls)
	HLSDir string `envconfig:"HLS_DIR" default:"hls"`

	// Playlist is the source playlist file name inside HLSDir.
	// Env: HLSCLIP_PLAYLIST (default: output.m3u8)
	Playlist string `envconfig:"PLAYLIST" default:"output.m3u8"`

	// SourceURL is the locator handed to ffmpeg for merges.
	// Env: HLSCLIP_SOURCE_URL
	// Default: the source playlist file path
	SourceURL string `envconfig:"SOURCE_URL"`

	// OutputDir receives merged and extracted files.
	// Env: HLSCLIP_OUTPUT_DIR (default: output)
	OutputDir string `envconfig:"OUTPUT_DIR" default:"output"`

	// FFmpegPath is the ffmpeg binary.
	// Env: HLSCLIP_FFMPEG_PATH (default: ffmpeg)
	FFmpegPath string `envconfig:"FFMPEG_PATH" default:"ffmpeg"`

	// MergeTimeout bounds a single merge request.
	// Env: HLSCLIP_MERGE_TIMEOUT (default: 10m)
	MergeTimeout time.Duration `envconfig:"MERGE_TIMEOUT" default:"10m"`

	// CORSOrigins is a comma-separated list of allowed origins.
	// Env: HLSCLIP_CORS_ORIGINS (default: *)
	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"*"`

	// LogLevel is the log verbosity level.
	// Env: HLSCLIP_LOG_LEVEL (default: INFO)
	LogLevel string `envconfig:"LOG_LEVEL" default:"INFO"`

	// LogFormat is the log output format (text or json).
	// Env: HLSCLIP_LOG_FORMAT (default: text)
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`

	// Cluster configures Raft replication of published playlists.
	Cluster ClusterEnv `envconfig:"CLUSTER"`
}

// ClusterEnv holds Raft settings.
type ClusterEnv struct {
	// Enabled turns on replication.
	// Env: HLSCLIP_CLUSTER_ENABLED (default: false)
	Enabled bool `envconfig:"ENABLED" default:"false"`

	// RaftID is this node's Raft ID.
	// Env: HLSCLIP_CLUSTER_RAFT_ID
	RaftID string `envconfig:"RAFT_ID"`

	// Bind is the Raft bind address (host:port).
	// Env: HLSCLIP_CLUSTER_BIND
	Bind string `envconfig:"BIND"`

	// Peers is a comma-separated list of all Raft addresses, this node included.
	// Env: HLSCLIP_CLUSTER_PEERS
	Peers []string `envconfig:"PEERS"`

	// LogLevel is the Raft library log level.
	// Env: HLSCLIP_CLUSTER_LOG_LEVEL (default: off)
	LogLevel string `envconfig:"LOG_LEVEL" default:"off"`
}

// LoadFromEnv loads configuration from HLSCLIP_ environment variables.
func LoadFromEnv() (EnvConfig, error) {
	var cfg EnvConfig
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return EnvConfig{}, err
	}
	return cfg, nil
}

// Load loads configuration from a .env file (optional) and the environment.
// Variables already set in the environment win over the file.
func Load(envPath string) (EnvConfig, error) {
	if err := LoadDotEnv(envPath); err != nil {
		return EnvConfig{}, fmt.Errorf("load %s: %w", envPath, err)
	}
	return LoadFromEnv()
}

// Validate checks the configuration and fills derived defaults.
func (e *EnvConfig) Validate() error {
	if e.Port <= 0 || e.Port > 65535 {
		return fmt.Errorf("invalid port %d", e.Port)
	}
	if e.HLSDir == "" {
		return fmt.Errorf("hls dir is required")
	}
	if e.Playlist == "" {
		return fmt.Errorf("playlist is required")
	}
	if e.MergeTimeout < 0 {
		return fmt.Errorf("merge timeout must not be negative")
	}
	if _, err := parseLogLevel(e.LogLevel); err != nil {
		return err
	}
	switch strings.ToLower(e.LogFormat) {
	case "text", "pretty", "json":
	default:
		return fmt.Errorf("invalid log format %q", e.LogFormat)
	}

	if e.SourceURL == "" {
		e.SourceURL = e.PlaylistPath()
	}

	if e.Cluster.Enabled {
		cc := e.ClusterConfig()
		if err := cc.Validate(); err != nil {
			return fmt.Errorf("cluster: %w", err)
		}
	}

	return nil
}

// Addr returns the HTTP listen address.
func (e EnvConfig) Addr() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

// PlaylistPath returns the source playlist file path.
func (e EnvConfig) PlaylistPath() string {
	return filepath.Join(e.HLSDir, e.Playlist)
}

// ClusterConfig converts the cluster settings for cluster.NewManager.
func (e EnvConfig) ClusterConfig() cluster.Config {
	id := e.Cluster.RaftID
	if id == "" {
		id = e.Cluster.Bind
	}
	return cluster.Config{
		RaftID:   id,
		BindAddr: e.Cluster.Bind,
		Peers:    e.Cluster.Peers,
		LogLevel: e.Cluster.LogLevel,
	}
}

// NewLogger builds the application logger writing to w.
func (e EnvConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	if w == nil {
		w = os.Stderr
	}

	lvl, err := parseLogLevel(e.LogLevel)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(e.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func parseLogLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s)
	}
	return lvl, nil
}
