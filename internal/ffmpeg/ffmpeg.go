// Package ffmpeg runs merges with the ffmpeg command line tool.
package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/agleyzer/hlsclip/internal/merge"
	"github.com/google/uuid"
)

// Adapter implements merge.Collaborator by shelling out to ffmpeg.
type Adapter struct {
	ffmpeg string
	outDir string
}

// New creates an Adapter writing into outDir. An empty ffmpegPath uses ffmpeg from PATH.
func New(ffmpegPath, outDir string) *Adapter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if outDir == "" {
		outDir = os.TempDir()
	}
	return &Adapter{ffmpeg: ffmpegPath, outDir: outDir}
}

// OutDir returns the directory merged files are written to.
func (a *Adapter) OutDir() string {
	return a.outDir
}

// Merge cuts every part of req out of source and concatenates them into a new
// MP4 file. A failed run leaves no output behind. Cancelling ctx kills ffmpeg.
func (a *Adapter) Merge(ctx context.Context, source string, req merge.Request) (merge.Artifact, error) {
	if len(req) == 0 {
		return merge.Artifact{}, merge.ErrEmptyRequest
	}
	if err := os.MkdirAll(a.outDir, 0o755); err != nil {
		return merge.Artifact{}, fmt.Errorf("create output dir: %w", err)
	}

	out := filepath.Join(a.outDir, "merged-"+uuid.NewString()+".mp4")
	cmd := exec.CommandContext(ctx, a.ffmpeg, BuildArgs(source, req, out)...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		_ = os.Remove(out)
		return merge.Artifact{}, fmt.Errorf("ffmpeg merge: %w\n%s", err, tail(string(b), 20))
	}

	info, err := os.Stat(out)
	if err != nil {
		return merge.Artifact{}, fmt.Errorf("stat merged file: %w", err)
	}
	return merge.Artifact{Path: out, Size: info.Size()}, nil
}

// BuildArgs returns the ffmpeg arguments for merging req out of source into out.
// Each part becomes its own seeked input; two or more inputs are joined with the
// concat filter.
func BuildArgs(source string, req merge.Request, out string) []string {
	args := []string{"-y"}
	for _, p := range req {
		args = append(args,
			"-ss", fmtSeconds(p.Start),
			"-t", fmtSeconds(p.Duration),
			"-i", source,
		)
	}

	if len(req) > 1 {
		var filter strings.Builder
		for i := range req {
			fmt.Fprintf(&filter, "[%d:v:0][%d:a:0]", i, i)
		}
		fmt.Fprintf(&filter, "concat=n=%d:v=1:a=1[v][a]", len(req))
		args = append(args,
			"-filter_complex", filter.String(),
			"-map", "[v]",
			"-map", "[a]",
		)
	}

	args = append(args,
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", "18",
		"-c:a", "aac",
		"-b:a", "192k",
		"-movflags", "+faststart",
		out,
	)
	return args
}

func fmtSeconds(sec float64) string {
	return strconv.FormatFloat(sec, 'f', 3, 64)
}

// tail keeps the last n lines of ffmpeg output, which is where the error is.
func tail(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
