package cluster

import (
	"io"
	"log/slog"

	"github.com/hashicorp/go-hclog"
)

// newRaftLogger returns the hclog.Logger handed to Raft. Raft output is
// forwarded to the application slog handler; level "off" silences it.
func newRaftLogger(logger *slog.Logger, level string) hclog.Logger {
	lvl := hclog.LevelFromString(level)
	if lvl == hclog.Off || lvl == hclog.NoLevel || logger == nil {
		return hclog.New(&hclog.LoggerOptions{
			Name:   "raft",
			Level:  hclog.Off,
			Output: io.Discard,
		})
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:            "raft",
		Level:           lvl,
		Output:          slog.NewLogLogger(logger.Handler(), slog.LevelInfo).Writer(),
		DisableTime:     true,
		IncludeLocation: false,
	})
}
