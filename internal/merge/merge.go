// Package merge turns a selection into a merge request for an external
// transcoding engine and runs it.
package merge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/agleyzer/hlsclip/internal/selection"
)

var (
	// ErrEmptyRequest is returned when there is nothing to merge.
	ErrEmptyRequest = errors.New("merge request has no ranges")

	// ErrAbandoned is returned by Job.Wait after Job.Cancel.
	ErrAbandoned = errors.New("merge job abandoned")
)

// Part is one interval of the source to copy into the merged output, in seconds.
type Part struct {
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
}

// Request is the ordered list of parts. The output concatenates them in order.
type Request []Part

// Duration returns the total length of the merged output.
func (r Request) Duration() float64 {
	var d float64
	for _, p := range r {
		d += p.Duration
	}
	return d
}

// InvalidRangeError reports a range with no positive duration. Normalized
// ranges never produce one, so seeing it means a caller skipped normalization.
type InvalidRangeError struct {
	Position int
	Range    selection.TimeRange
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid range at position %d: start %.3f, end %.3f", e.Position, e.Range.Start, e.Range.End)
}

// ToMergeRequest maps ranges one to one onto parts.
func ToMergeRequest(ranges []selection.TimeRange) (Request, error) {
	req := make(Request, 0, len(ranges))
	for i, r := range ranges {
		d := r.End - r.Start
		if d <= 0 {
			return nil, &InvalidRangeError{Position: i, Range: r}
		}
		req = append(req, Part{Start: r.Start, Duration: d})
	}
	return req, nil
}

// Artifact is the finished media file produced by a collaborator.
type Artifact struct {
	Path string
	Size int64
}

// Collaborator is an external engine that concatenates the requested parts of
// source into one media file.
type Collaborator interface {
	Merge(ctx context.Context, source string, req Request) (Artifact, error)
}

// CollaboratorFailure wraps an error reported by the collaborator.
type CollaboratorFailure struct {
	Cause error
}

func (e *CollaboratorFailure) Error() string {
	return "merge failed: " + e.Cause.Error()
}

func (e *CollaboratorFailure) Unwrap() error {
	return e.Cause
}

// Builder submits normalized selections to a Collaborator.
type Builder struct {
	collab Collaborator
	logger *slog.Logger
}

// NewBuilder creates a Builder.
func NewBuilder(collab Collaborator, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{collab: collab, logger: logger}
}

// Merge normalizes ranges and invokes the collaborator exactly once. The
// result is atomic: an Artifact, or an error and no output. Failures are not
// retried.
func (b *Builder) Merge(ctx context.Context, source string, ranges []selection.TimeRange) (Artifact, error) {
	req, err := ToMergeRequest(selection.Normalize(ranges))
	if err != nil {
		return Artifact{}, err
	}
	if len(req) == 0 {
		return Artifact{}, ErrEmptyRequest
	}

	b.logger.Info("merging ranges",
		"source", source,
		"parts", len(req),
		"duration", req.Duration())

	start := time.Now()
	artifact, err := b.collab.Merge(ctx, source, req)
	if err != nil {
		b.logger.Error("merge failed", "source", source, "error", err)
		return Artifact{}, &CollaboratorFailure{Cause: err}
	}

	b.logger.Info("merge completed",
		"path", artifact.Path,
		"size", artifact.Size,
		"elapsed", time.Since(start))

	return artifact, nil
}

// Submit runs Merge in the background.
func (b *Builder) Submit(ctx context.Context, source string, ranges []selection.TimeRange) *Job {
	ctx, cancel := context.WithCancel(ctx)
	j := &Job{
		cancel:    cancel,
		done:      make(chan struct{}),
		abandoned: make(chan struct{}),
	}

	go func() {
		defer close(j.done)
		defer cancel()
		j.artifact, j.err = b.Merge(ctx, source, ranges)
	}()

	return j
}

// Job is a merge running in the background.
type Job struct {
	cancel    context.CancelFunc
	done      chan struct{}
	abandoned chan struct{}
	once      sync.Once

	// Written before done is closed.
	artifact Artifact
	err      error
}

// Done is closed when the collaborator returns.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the job finishes, ctx ends or the job is cancelled.
func (j *Job) Wait(ctx context.Context) (Artifact, error) {
	select {
	case <-j.done:
		return j.artifact, j.err
	case <-j.abandoned:
		return Artifact{}, ErrAbandoned
	case <-ctx.Done():
		return Artifact{}, ctx.Err()
	}
}

// Cancel abandons interest in the result and cancels the job context.
// The engine may keep running if it does not honor cancellation.
func (j *Job) Cancel() {
	j.once.Do(func() {
		close(j.abandoned)
		j.cancel()
	})
}
