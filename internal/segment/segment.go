// Package segment defines the chunk index built from an HLS media playlist.
package segment

import (
	"math"
	"net/url"
	"sort"
)

// Chunk represents a single HLS media segment placed on the source timeline.
type Chunk struct {
	// Index is the position in the original playlist
	Index int

	// URI is the chunk reference as it appears in the playlist (usually relative)
	URI string

	// Duration is the chunk duration in seconds
	Duration float64

	// Start is the sum of the durations of all preceding chunks
	Start float64

	// End is Start + Duration
	End float64
}

// Index is the ordered, cumulative-time-indexed list of chunks of one media playlist.
// An Index is read-only after construction and may be shared between goroutines.
type Index struct {
	chunks []Chunk
	total  float64
}

// NewIndex builds an Index from chunks in playlist order.
// Chunk indices and cumulative bounds are recomputed from the durations.
func NewIndex(chunks []Chunk) *Index {
	out := make([]Chunk, len(chunks))
	var total float64
	for i, c := range chunks {
		c.Index = i
		c.Start = total
		total += c.Duration
		c.End = total
		out[i] = c
	}

	return &Index{chunks: out, total: total}
}

// Len returns the number of chunks.
func (x *Index) Len() int {
	return len(x.chunks)
}

// Chunk returns the chunk at position i.
func (x *Index) Chunk(i int) Chunk {
	return x.chunks[i]
}

// Chunks returns a copy of all chunks.
func (x *Index) Chunks() []Chunk {
	out := make([]Chunk, len(x.chunks))
	copy(out, x.chunks)
	return out
}

// Total returns the total duration of the timeline in seconds.
func (x *Index) Total() float64 {
	return x.total
}

// TargetDuration returns the maximum chunk duration rounded up to whole seconds.
func (x *Index) TargetDuration() int {
	maxDuration := 0.0
	for _, c := range x.chunks {
		if c.Duration > maxDuration {
			maxDuration = c.Duration
		}
	}
	return int(math.Ceil(maxDuration))
}

// Lookup returns the index of the chunk whose [Start, End) contains t.
// When t equals the total duration the last chunk is returned.
// The boolean is false when t lies outside the timeline.
func (x *Index) Lookup(t float64) (int, bool) {
	n := len(x.chunks)
	if n == 0 || t < 0 || t > x.total {
		return 0, false
	}
	if t == x.total {
		return n - 1, true
	}

	// First chunk ending strictly after t. Zero-length chunks are skipped.
	i := sort.Search(n, func(i int) bool {
		return x.chunks[i].End > t
	})
	if i == n {
		return n - 1, true
	}
	return i, true
}

// Resolve returns a new Index whose chunk URIs are resolved against base.
// Absolute URIs are kept as-is.
func (x *Index) Resolve(base string) (*Index, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, err
	}

	out := &Index{chunks: make([]Chunk, len(x.chunks)), total: x.total}
	for i, c := range x.chunks {
		rel, err := url.Parse(c.URI)
		if err != nil {
			return nil, err
		}
		c.URI = baseURL.ResolveReference(rel).String()
		out.chunks[i] = c
	}
	return out, nil
}
