package playlist

import (
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/agleyzer/hlsclip/internal/segment"
	"github.com/agleyzer/hlsclip/internal/selection"
	"github.com/grafov/m3u8"
)

func createTestIndex(durations ...float64) *segment.Index {
	chunks := make([]segment.Chunk, len(durations))
	for i, d := range durations {
		chunks[i] = segment.Chunk{
			URI:      fmt.Sprintf("https://example.com/chunk%d.ts", i),
			Duration: d,
		}
	}
	return segment.NewIndex(chunks)
}

func ranges(bounds ...[2]float64) []selection.TimeRange {
	out := make([]selection.TimeRange, len(bounds))
	for i, b := range bounds {
		out[i] = selection.NewRange(b[0], b[1])
	}
	return out
}

func indices(p Reconstructed) []int {
	out := make([]int, len(p.Entries))
	for i, e := range p.Entries {
		out[i] = e.Chunk.Index
	}
	return out
}

func discontinuities(p Reconstructed) []int {
	var out []int
	for _, e := range p.Entries {
		if e.DiscontinuityBefore {
			out = append(out, e.Chunk.Index)
		}
	}
	return out
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestBuild(t *testing.T) {
	tests := []struct {
		name      string
		durations []float64
		ranges    [][2]float64
		want      []int
		wantDisc  []int
	}{
		{
			name:      "range inside the timeline",
			durations: []float64{4, 4, 4},
			ranges:    [][2]float64{{5, 11}},
			want:      []int{1, 2},
			wantDisc:  []int{1},
		},
		{
			name:      "full range has no discontinuity",
			durations: []float64{4, 4, 4},
			ranges:    [][2]float64{{0, 12}},
			want:      []int{0, 1, 2},
		},
		{
			name:      "chunk starting at range end is included",
			durations: []float64{4, 4, 4},
			ranges:    [][2]float64{{4, 8}},
			want:      []int{1, 2},
			wantDisc:  []int{1},
		},
		{
			name:      "gap between ranges",
			durations: []float64{4, 4, 4, 4, 4},
			ranges:    [][2]float64{{0, 3}, {13, 19}},
			want:      []int{0, 3, 4},
			wantDisc:  []int{3},
		},
		{
			name:      "touching ranges emit each chunk once",
			durations: []float64{4, 4, 4},
			ranges:    [][2]float64{{0, 4}, {4, 8}},
			want:      []int{0, 1, 2},
		},
		{
			name:      "overlapping ranges are merged",
			durations: []float64{4, 4, 4},
			ranges:    [][2]float64{{5, 10}, {0, 6}},
			want:      []int{0, 1, 2},
		},
		{
			name:      "range past the end",
			durations: []float64{4, 4, 4},
			ranges:    [][2]float64{{20, 30}},
		},
		{
			name:      "no ranges",
			durations: []float64{4, 4, 4},
		},
		{
			name:   "empty index",
			ranges: [][2]float64{{0, 10}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Build(createTestIndex(tt.durations...), ranges(tt.ranges...))

			if !equalInts(indices(got), tt.want) {
				t.Errorf("chunks = %v, want %v", indices(got), tt.want)
			}
			if !equalInts(discontinuities(got), tt.wantDisc) {
				t.Errorf("discontinuities = %v, want %v", discontinuities(got), tt.wantDisc)
			}
		})
	}
}

func TestBuild_ToleratesCumulativeDrift(t *testing.T) {
	durations := make([]float64, 30)
	for i := range durations {
		durations[i] = 0.1
	}
	idx := createTestIndex(durations...)

	full := Build(idx, ranges([2]float64{0, idx.Total()}))
	if full.Len() != 30 {
		t.Fatalf("Len() = %d, want 30", full.Len())
	}
	if d := discontinuities(full); len(d) != 0 {
		t.Errorf("unexpected discontinuities at %v", d)
	}

	// 0.1*3 sums to 0.30000000000000004, a hair past the range start.
	partial := Build(idx, ranges([2]float64{0.3, 0.6}))
	if want := []int{3, 4, 5, 6}; !equalInts(indices(partial), want) {
		t.Errorf("chunks = %v, want %v", indices(partial), want)
	}
	if want := []int{3}; !equalInts(discontinuities(partial), want) {
		t.Errorf("discontinuities = %v, want %v", discontinuities(partial), want)
	}
}

func TestBuild_DiscontinuityMatchesSourceGaps(t *testing.T) {
	idx := createTestIndex(2, 3, 4, 5, 6, 7)
	got := Build(idx, ranges([2]float64{0, 4}, [2]float64{9.5, 14.5}, [2]float64{21, 27}))

	for i, e := range got.Entries {
		var prevEnd float64
		if i > 0 {
			prevEnd = got.Entries[i-1].Chunk.End
		}
		gap := math.Abs(e.Chunk.Start-prevEnd) > Epsilon
		if e.DiscontinuityBefore != gap {
			t.Errorf("entry %d (chunk %d): DiscontinuityBefore = %v, want %v", i, e.Chunk.Index, e.DiscontinuityBefore, gap)
		}
	}
}

func TestReconstructed_Duration(t *testing.T) {
	idx := createTestIndex(4, 4, 4)
	got := Build(idx, ranges([2]float64{5, 11}))

	if got.Duration() != 8 {
		t.Errorf("Duration() = %v, want 8", got.Duration())
	}
}

func TestEncode_RoundTrip(t *testing.T) {
	idx := createTestIndex(4, 4, 4, 4, 4)
	rec := Build(idx, ranges([2]float64{0, 3}, [2]float64{13, 19}))

	content, err := rec.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	p, listType, err := m3u8.DecodeFrom(strings.NewReader(content), true)
	if err != nil {
		t.Fatalf("decode output: %v\n%s", err, content)
	}
	if listType != m3u8.MEDIA {
		t.Fatalf("list type = %v, want MEDIA", listType)
	}
	mp := p.(*m3u8.MediaPlaylist)

	if !mp.Closed {
		t.Error("playlist should end with #EXT-X-ENDLIST")
	}
	if mp.TargetDuration != 4 {
		t.Errorf("TargetDuration = %v, want 4", mp.TargetDuration)
	}

	var got []*m3u8.MediaSegment
	for _, s := range mp.Segments {
		if s != nil {
			got = append(got, s)
		}
	}
	if len(got) != 3 {
		t.Fatalf("decoded %d segments, want 3", len(got))
	}

	wantURIs := []string{
		"https://example.com/chunk0.ts",
		"https://example.com/chunk3.ts",
		"https://example.com/chunk4.ts",
	}
	wantDisc := []bool{false, true, false}
	for i, s := range got {
		if s.URI != wantURIs[i] {
			t.Errorf("segment %d URI = %q, want %q", i, s.URI, wantURIs[i])
		}
		if s.Discontinuity != wantDisc[i] {
			t.Errorf("segment %d Discontinuity = %v, want %v", i, s.Discontinuity, wantDisc[i])
		}
		if math.Abs(s.Duration-4) > 0.001 {
			t.Errorf("segment %d Duration = %v, want 4", i, s.Duration)
		}
	}
}

func TestEncode_DiscontinuityPrecedesSegment(t *testing.T) {
	rec := Build(createTestIndex(4, 4, 4), ranges([2]float64{5, 11}))

	content, err := rec.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	disc := strings.Index(content, "#EXT-X-DISCONTINUITY")
	inf := strings.Index(content, "#EXTINF")
	if disc < 0 || inf < 0 || disc > inf {
		t.Errorf("discontinuity tag must come before the first EXTINF:\n%s", content)
	}
	if strings.Count(content, "#EXT-X-DISCONTINUITY") != 1 {
		t.Errorf("want exactly one discontinuity tag:\n%s", content)
	}
}

func TestEncode_DurationsRoundedToMilliseconds(t *testing.T) {
	rec := Build(createTestIndex(4.0045, 3.33333), ranges([2]float64{0, 8}))

	content, err := rec.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	p, _, err := m3u8.DecodeFrom(strings.NewReader(content), true)
	if err != nil {
		t.Fatalf("decode output: %v\n%s", err, content)
	}
	mp := p.(*m3u8.MediaPlaylist)

	for i, want := range []float64{4.0045, 3.33333} {
		s := mp.Segments[i]
		if s == nil {
			t.Fatalf("segment %d missing:\n%s", i, content)
		}
		if math.Abs(s.Duration-want) > 0.001 {
			t.Errorf("segment %d Duration = %v, want %v within 1ms", i, s.Duration, want)
		}
	}
	if strings.Contains(content, "3.33333") {
		t.Errorf("durations should be written with three decimals:\n%s", content)
	}
}

func TestEncode_Empty(t *testing.T) {
	content, err := Reconstructed{}.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	if !strings.HasPrefix(content, "#EXTM3U") {
		t.Errorf("missing header:\n%s", content)
	}
	if !strings.Contains(content, "#EXT-X-ENDLIST") {
		t.Errorf("missing end marker:\n%s", content)
	}
	if strings.Contains(content, "#EXTINF") {
		t.Errorf("empty playlist must not list segments:\n%s", content)
	}
}
