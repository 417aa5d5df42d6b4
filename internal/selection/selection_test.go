package selection

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustAdd(t *testing.T, s Set, start, end float64) (Set, TimeRange) {
	t.Helper()
	r := NewRange(start, end)
	next, err := s.Add(r)
	require.NoError(t, err)
	return next, r
}

func bounds(ranges []TimeRange) [][2]float64 {
	out := make([][2]float64, len(ranges))
	for i, r := range ranges {
		out[i] = [2]float64{r.Start, r.End}
	}
	return out
}

func TestNewRange_OrdersEndpoints(t *testing.T) {
	r := NewRange(8, 2)
	assert.Equal(t, 2.0, r.Start)
	assert.Equal(t, 8.0, r.End)
	assert.NotEmpty(t, r.ID)
	assert.NotEqual(t, r.ID, NewRange(2, 8).ID)
}

func TestAdd_RejectsOverlap(t *testing.T) {
	s := New(100)
	s, first := mustAdd(t, s, 2, 6)

	next, err := s.Add(NewRange(4, 8))
	assert.ErrorIs(t, err, ErrOverlap)
	assert.Equal(t, s, next)
	require.Equal(t, 1, next.Len())
	assert.Equal(t, first, next.Ranges()[0])
}

func TestAdd_TouchingRangesAccepted(t *testing.T) {
	s := New(100)
	s, _ = mustAdd(t, s, 2, 6)
	s, _ = mustAdd(t, s, 6, 8)
	s, _ = mustAdd(t, s, 0, 2)

	assert.Equal(t, [][2]float64{{0, 2}, {2, 6}, {6, 8}}, bounds(s.Ranges()))
}

func TestAdd_ClampsToTimeline(t *testing.T) {
	s := New(10)
	s, err := s.Add(NewRange(-3, 12))
	require.NoError(t, err)
	assert.Equal(t, [][2]float64{{0, 10}}, bounds(s.Ranges()))
}

func TestAdd_RejectsEmpty(t *testing.T) {
	s := New(10)

	_, err := s.Add(NewRange(4, 4))
	assert.ErrorIs(t, err, ErrEmptyRange)

	_, err = s.Add(NewRange(11, 15))
	assert.ErrorIs(t, err, ErrEmptyRange)
}

func TestAdd_RejectsDuplicateID(t *testing.T) {
	s := New(100)
	s, first := mustAdd(t, s, 0, 10)

	dup := NewRange(20, 30)
	dup.ID = first.ID
	next, err := s.Add(dup)
	assert.ErrorIs(t, err, ErrDuplicateID)
	assert.Equal(t, s, next)

	// Resize and Move must still see the other range.
	s, _ = mustAdd(t, s, 20, 30)
	_, err = s.Resize(first.ID, HandleEnd, 25)
	assert.ErrorIs(t, err, ErrOverlap)
}

func TestAdd_DoesNotMutateReceiver(t *testing.T) {
	s := New(100)
	s, _ = mustAdd(t, s, 10, 20)

	_, _ = mustAdd(t, s, 30, 40)
	assert.Equal(t, 1, s.Len())
}

func TestAdd_KeepsStartOrder(t *testing.T) {
	s := New(100)
	s, _ = mustAdd(t, s, 50, 60)
	s, _ = mustAdd(t, s, 10, 20)
	s, _ = mustAdd(t, s, 30, 40)

	assert.Equal(t, [][2]float64{{10, 20}, {30, 40}, {50, 60}}, bounds(s.Ranges()))
}

func TestResize(t *testing.T) {
	base := New(20)
	base, a := mustAdd(t, base, 2, 6)
	base, _ = mustAdd(t, base, 10, 14)

	tests := []struct {
		name    string
		handle  Handle
		time    float64
		wantErr error
		want    [2]float64
	}{
		{"grow end", HandleEnd, 8, nil, [2]float64{2, 8}},
		{"shrink start", HandleStart, 3, nil, [2]float64{3, 6}},
		{"start clamped at zero", HandleStart, -5, nil, [2]float64{0, 6}},
		{"end up to neighbour", HandleEnd, 10, nil, [2]float64{2, 10}},
		{"end into neighbour", HandleEnd, 11, ErrOverlap, [2]float64{2, 6}},
		{"start past end", HandleStart, 6, ErrInverted, [2]float64{2, 6}},
		{"end before start", HandleEnd, 1, ErrInverted, [2]float64{2, 6}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, err := base.Resize(a.ID, tt.handle, tt.time)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, base, next)
			} else {
				assert.NoError(t, err)
			}

			got, ok := next.Get(a.ID)
			require.True(t, ok)
			assert.Equal(t, tt.want, [2]float64{got.Start, got.End})
		})
	}
}

func TestResize_EndClampedToDuration(t *testing.T) {
	s := New(20)
	s, a := mustAdd(t, s, 15, 18)

	s, err := s.Resize(a.ID, HandleEnd, 25)
	require.NoError(t, err)
	got, _ := s.Get(a.ID)
	assert.Equal(t, 20.0, got.End)
	assert.Equal(t, 15.0, got.Start)
}

func TestResize_UnknownID(t *testing.T) {
	s := New(20)
	_, err := s.Resize("missing", HandleEnd, 5)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResize_NeverInverts(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	s := New(60)
	s, a := mustAdd(t, s, 20, 30)
	s, _ = mustAdd(t, s, 40, 50)

	for i := 0; i < 500; i++ {
		handle := HandleStart
		if rng.Intn(2) == 1 {
			handle = HandleEnd
		}
		s, _ = s.Resize(a.ID, handle, rng.Float64()*80-10)

		for _, r := range s.Ranges() {
			require.Less(t, r.Start, r.End)
		}
		assertNoOverlap(t, s.Ranges())
	}
}

func TestMove(t *testing.T) {
	base := New(30)
	base, a := mustAdd(t, base, 2, 6)
	base, _ = mustAdd(t, base, 10, 14)

	tests := []struct {
		name    string
		start   float64
		wantErr error
		want    [2]float64
	}{
		{"move right", 4, nil, [2]float64{4, 8}},
		{"clamped at zero", -3, nil, [2]float64{0, 4}},
		{"clamped at duration", 40, nil, [2]float64{26, 30}},
		{"onto neighbour", 9, ErrOverlap, [2]float64{2, 6}},
		{"jump past neighbour", 16, nil, [2]float64{16, 20}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, err := base.Move(a.ID, tt.start)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}

			got, ok := next.Get(a.ID)
			require.True(t, ok)
			assert.Equal(t, tt.want, [2]float64{got.Start, got.End})
		})
	}
}

func TestRemove(t *testing.T) {
	s := New(30)
	s, a := mustAdd(t, s, 2, 6)
	s, b := mustAdd(t, s, 10, 14)

	after := s.Remove(a.ID)
	assert.Equal(t, 1, after.Len())
	_, ok := after.Get(b.ID)
	assert.True(t, ok)

	assert.Equal(t, after, after.Remove("missing"))
	assert.Equal(t, 2, s.Len())
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input [][2]float64
		want  [][2]float64
	}{
		{"empty", nil, [][2]float64{}},
		{"overlapping pair merges", [][2]float64{{0, 5}, {3, 8}}, [][2]float64{{0, 8}}},
		{"contained range discarded", [][2]float64{{0, 10}, {2, 4}}, [][2]float64{{0, 10}}},
		{"unsorted input", [][2]float64{{10, 12}, {0, 5}}, [][2]float64{{0, 5}, {10, 12}}},
		{"touching ranges stay separate", [][2]float64{{0, 5}, {5, 8}}, [][2]float64{{0, 5}, {5, 8}}},
		{"same start sorted by end", [][2]float64{{0, 8}, {0, 3}}, [][2]float64{{0, 8}}},
		{"chain of overlaps", [][2]float64{{0, 4}, {3, 6}, {5, 9}, {20, 21}}, [][2]float64{{0, 9}, {20, 21}}},
		{"zero width dropped", [][2]float64{{3, 3}, {4, 6}}, [][2]float64{{4, 6}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := make([]TimeRange, len(tt.input))
			for i, b := range tt.input {
				input[i] = NewRange(b[0], b[1])
			}

			got := Normalize(input)
			assert.Equal(t, tt.want, bounds(got))
			assert.Equal(t, got, Normalize(got), "Normalize must be idempotent")
		})
	}
}

func TestNormalize_KeepsFirstID(t *testing.T) {
	a := NewRange(0, 5)
	b := NewRange(3, 8)

	got := Normalize([]TimeRange{b, a})
	require.Len(t, got, 1)
	assert.Equal(t, a.ID, got[0].ID)
}

func TestNormalize_CoversUnionOfAcceptedAdds(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 50; round++ {
		s := New(100)
		var accepted []TimeRange
		for i := 0; i < 30; i++ {
			start := rng.Float64() * 100
			next, err := s.Add(NewRange(start, start+rng.Float64()*20))
			if err == nil {
				s = next
				accepted = s.Ranges()
			}
		}

		normalized := s.Normalized()
		assertNoOverlap(t, normalized)
		assert.Equal(t, normalized, Normalize(normalized))

		for probe := 0.0; probe < 100; probe += 0.25 {
			assert.Equal(t, covered(accepted, probe), covered(normalized, probe), "coverage differs at %v", probe)
		}
	}
}

func TestTruncate(t *testing.T) {
	s := New(30)
	s, _ = mustAdd(t, s, 10, 14)
	s, _ = mustAdd(t, s, 20, 22)

	tests := []struct {
		name    string
		anchor  float64
		pointer float64
		wantOK  bool
		want    [2]float64
	}{
		{"free space", 2, 6, true, [2]float64{2, 6}},
		{"dragging left", 6, 2, true, [2]float64{2, 6}},
		{"stops at next range", 16, 25, true, [2]float64{16, 20}},
		{"stops at previous range", 16, 5, true, [2]float64{14, 16}},
		{"anchor inside range", 12, 18, false, [2]float64{}},
		{"anchor at range start moving right", 10, 12, false, [2]float64{}},
		{"clamped to timeline", 25, 40, true, [2]float64{25, 30}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := s.Truncate(tt.anchor, tt.pointer)
			require.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.want, [2]float64{got.Start, got.End})
				_, err := s.Add(got)
				assert.NoError(t, err, "preview must be committable")
			}
		})
	}
}

func assertNoOverlap(t *testing.T, ranges []TimeRange) {
	t.Helper()
	for i := 1; i < len(ranges); i++ {
		assert.LessOrEqual(t, ranges[i-1].End, ranges[i].Start)
	}
}

func covered(ranges []TimeRange, t float64) bool {
	for _, r := range ranges {
		if r.Start <= t && t < r.End {
			return true
		}
	}
	return false
}
