// Package playlist rebuilds HLS media playlists from a segment index and a set of
// selected time ranges.
package playlist

import (
	"fmt"
	"math"

	"github.com/agleyzer/hlsclip/internal/segment"
	"github.com/agleyzer/hlsclip/internal/selection"
	"github.com/grafov/m3u8"
)

// Epsilon is the tolerance used when comparing cumulative chunk times.
// Cumulative sums drift, so exact float equality would report spurious gaps.
const Epsilon = 1e-6

// Entry is one chunk of a reconstructed playlist.
type Entry struct {
	Chunk segment.Chunk

	// DiscontinuityBefore is set when the chunk does not continue the previous
	// entry on the source timeline.
	DiscontinuityBefore bool
}

// Reconstructed is a media playlist restricted to selected ranges.
// It is produced fresh by Build and never mutated.
type Reconstructed struct {
	Entries []Entry
}

// Build selects the chunks of idx covered by ranges.
//
// A chunk is included when it intersects a range, boundaries inclusive: the
// chunk containing a range start is included, and so is a chunk starting
// exactly at a range end. Chunks are emitted once each, in index order. The
// first entry is compared against the timeline origin, so a selection that
// does not begin at 0 opens with a discontinuity.
//
// ranges are normalized before use; passing already normalized ranges is the
// expected case and costs nothing extra in behavior.
func Build(idx *segment.Index, ranges []selection.TimeRange) Reconstructed {
	var entries []Entry
	next := 0
	prevEnd := 0.0

	for _, r := range selection.Normalize(ranges) {
		first, last, ok := span(idx, r)
		if !ok {
			continue
		}
		if first < next {
			first = next
		}

		for i := first; i <= last; i++ {
			c := idx.Chunk(i)
			entries = append(entries, Entry{
				Chunk:               c,
				DiscontinuityBefore: math.Abs(c.Start-prevEnd) > Epsilon,
			})
			prevEnd = c.End
		}

		if last+1 > next {
			next = last + 1
		}
	}

	return Reconstructed{Entries: entries}
}

// span maps r onto the inclusive chunk index interval it covers.
func span(idx *segment.Index, r selection.TimeRange) (int, int, bool) {
	n := idx.Len()
	if n == 0 {
		return 0, 0, false
	}

	total := idx.Total()
	start := math.Max(r.Start, 0)
	end := math.Min(r.End, total)
	if start > total+Epsilon || end < start {
		return 0, 0, false
	}

	first, ok := idx.Lookup(math.Min(start, total))
	if !ok {
		return 0, 0, false
	}
	// Drift can land the start a hair before a chunk boundary.
	for first < n-1 && idx.Chunk(first).End <= start+Epsilon {
		first++
	}

	last, ok := idx.Lookup(end)
	if !ok {
		return 0, 0, false
	}
	for last < n-1 && idx.Chunk(last+1).Start <= r.End+Epsilon {
		last++
	}

	if first > last {
		return 0, 0, false
	}
	return first, last, true
}

// Len returns the number of entries.
func (p Reconstructed) Len() int {
	return len(p.Entries)
}

// Duration returns the playback duration of the reconstructed playlist.
func (p Reconstructed) Duration() float64 {
	var d float64
	for _, e := range p.Entries {
		d += e.Chunk.Duration
	}
	return d
}

// Encode renders the playlist as a closed (VOD) HLS media playlist.
// An empty playlist is valid and encodes to a header and end marker only.
// EXTINF durations are written with millisecond precision, so reparsing the
// output can differ from the source durations by up to 1 ms per chunk.
func (p Reconstructed) Encode() (string, error) {
	capacity := uint(len(p.Entries))
	if capacity == 0 {
		capacity = 1
	}

	mp, err := m3u8.NewMediaPlaylist(0, capacity)
	if err != nil {
		return "", fmt.Errorf("create media playlist: %w", err)
	}
	mp.MediaType = m3u8.VOD

	for i, e := range p.Entries {
		if err := mp.Append(e.Chunk.URI, e.Chunk.Duration, ""); err != nil {
			return "", fmt.Errorf("append chunk %d: %w", i, err)
		}
		if e.DiscontinuityBefore {
			if err := mp.SetDiscontinuity(); err != nil {
				return "", fmt.Errorf("mark discontinuity at chunk %d: %w", i, err)
			}
		}
	}

	mp.Close()
	return mp.Encode().String(), nil
}
