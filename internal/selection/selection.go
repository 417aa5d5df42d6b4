// Package selection holds user time-range selections over a source timeline.
//
// A Set is an immutable value: every mutation returns a new Set and leaves the
// receiver untouched, so snapshots can be handed to renderers and merge code
// without copying or locking. Rejected mutations are ordinary outcomes; they
// return the unchanged receiver together with one of the sentinel errors below.
package selection

import (
	"errors"
	"math"
	"sort"

	"github.com/google/uuid"
)

// Rejection reasons for Add, Resize and Move.
var (
	ErrOverlap     = errors.New("range overlaps an existing range")
	ErrInverted    = errors.New("range start must be before its end")
	ErrEmptyRange  = errors.New("range has zero width")
	ErrNotFound    = errors.New("range not found")
	ErrDuplicateID = errors.New("range id already in use")
)

// Handle names the boundary of a range being resized.
type Handle int

const (
	HandleStart Handle = iota
	HandleEnd
)

func (h Handle) String() string {
	if h == HandleEnd {
		return "end"
	}
	return "start"
}

// TimeRange is a selected interval of the source timeline, in seconds.
type TimeRange struct {
	ID    string  `json:"id" yaml:"id,omitempty"`
	Start float64 `json:"start" yaml:"start"`
	End   float64 `json:"end" yaml:"end"`
}

// NewRange returns a range with a fresh ID. Endpoints may be given in either order.
func NewRange(start, end float64) TimeRange {
	if end < start {
		start, end = end, start
	}
	return TimeRange{ID: uuid.NewString(), Start: start, End: end}
}

// Width returns End - Start.
func (r TimeRange) Width() float64 {
	return r.End - r.Start
}

// Overlaps reports whether r and o share more than a boundary point.
func (r TimeRange) Overlaps(o TimeRange) bool {
	return r.Start < o.End && r.End > o.Start
}

// Contains reports whether o lies entirely inside r.
func (r TimeRange) Contains(o TimeRange) bool {
	return r.Start <= o.Start && r.End >= o.End
}

// Set is an ordered collection of non-overlapping ranges on a timeline of fixed duration.
type Set struct {
	duration float64
	ranges   []TimeRange
}

// New returns an empty Set for a timeline of the given duration.
// A non-positive duration leaves the timeline unbounded on the right.
func New(duration float64) Set {
	if duration <= 0 {
		duration = math.Inf(1)
	}
	return Set{duration: duration}
}

// Duration returns the length of the timeline.
func (s Set) Duration() float64 {
	return s.duration
}

// Len returns the number of ranges.
func (s Set) Len() int {
	return len(s.ranges)
}

// Ranges returns a copy of the ranges ordered by start.
func (s Set) Ranges() []TimeRange {
	out := make([]TimeRange, len(s.ranges))
	copy(out, s.ranges)
	return out
}

// Get returns the range with the given ID.
func (s Set) Get(id string) (TimeRange, bool) {
	if i := s.find(id); i >= 0 {
		return s.ranges[i], true
	}
	return TimeRange{}, false
}

// Add inserts r when it does not overlap any existing range.
// The candidate is first ordered and clamped to the timeline. An empty ID is
// replaced by a fresh one; an ID already in the set is rejected.
func (s Set) Add(r TimeRange) (Set, error) {
	if r.End < r.Start {
		r.Start, r.End = r.End, r.Start
	}
	r.Start = s.clamp(r.Start)
	r.End = s.clamp(r.End)
	if r.End <= r.Start {
		return s, ErrEmptyRange
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	} else if s.find(r.ID) >= 0 {
		return s, ErrDuplicateID
	}
	if s.overlapsOther(r, "") {
		return s, ErrOverlap
	}

	return s.with(append(s.Ranges(), r)), nil
}

// Resize moves one boundary of range id to t, clamped to the timeline.
// The other boundary never moves.
func (s Set) Resize(id string, handle Handle, t float64) (Set, error) {
	i := s.find(id)
	if i < 0 {
		return s, ErrNotFound
	}

	r := s.ranges[i]
	t = s.clamp(t)
	if handle == HandleStart {
		r.Start = t
	} else {
		r.End = t
	}

	if r.Start >= r.End {
		return s, ErrInverted
	}
	if s.overlapsOther(r, id) {
		return s, ErrOverlap
	}

	return s.replace(i, r), nil
}

// Move translates range id so that it starts at proposedStart, keeping its width.
// The translated range is clamped to stay on the timeline.
func (s Set) Move(id string, proposedStart float64) (Set, error) {
	i := s.find(id)
	if i < 0 {
		return s, ErrNotFound
	}

	r := s.ranges[i]
	width := r.Width()
	start := math.Max(0, math.Min(proposedStart, s.duration-width))
	r.Start, r.End = start, start+width

	if s.overlapsOther(r, id) {
		return s, ErrOverlap
	}

	return s.replace(i, r), nil
}

// Remove deletes range id. Removing an absent id returns s unchanged.
func (s Set) Remove(id string) Set {
	i := s.find(id)
	if i < 0 {
		return s
	}

	out := make([]TimeRange, 0, len(s.ranges)-1)
	out = append(out, s.ranges[:i]...)
	out = append(out, s.ranges[i+1:]...)
	return Set{duration: s.duration, ranges: out}
}

// Normalized returns the normalized ranges of s.
func (s Set) Normalized() []TimeRange {
	return Normalize(s.ranges)
}

// Truncate computes the live preview for a drag that started at anchor and is
// now at pointer. The preview is shrunk so it stops at the nearest committed
// range on the side the pointer moved to. It reports false when the anchor lies
// inside a committed range or the preview has no width.
func (s Set) Truncate(anchor, pointer float64) (TimeRange, bool) {
	anchor = s.clamp(anchor)
	pointer = s.clamp(pointer)

	lo, hi := 0.0, s.duration
	for _, r := range s.ranges {
		if r.Start < anchor && anchor < r.End {
			return TimeRange{}, false
		}
		if r.End <= anchor && r.End > lo {
			lo = r.End
		}
		if r.Start >= anchor && r.Start < hi {
			hi = r.Start
		}
	}

	pointer = math.Max(lo, math.Min(pointer, hi))
	start, end := math.Min(anchor, pointer), math.Max(anchor, pointer)
	if end <= start {
		return TimeRange{}, false
	}
	return TimeRange{Start: start, End: end}, true
}

func (s Set) clamp(t float64) float64 {
	return math.Max(0, math.Min(t, s.duration))
}

func (s Set) find(id string) int {
	for i, r := range s.ranges {
		if r.ID == id {
			return i
		}
	}
	return -1
}

func (s Set) overlapsOther(r TimeRange, skipID string) bool {
	for _, o := range s.ranges {
		if skipID != "" && o.ID == skipID {
			continue
		}
		if r.Overlaps(o) {
			return true
		}
	}
	return false
}

func (s Set) replace(i int, r TimeRange) Set {
	out := s.Ranges()
	out[i] = r
	return s.with(out)
}

func (s Set) with(ranges []TimeRange) Set {
	sortRanges(ranges)
	return Set{duration: s.duration, ranges: ranges}
}

func sortRanges(ranges []TimeRange) {
	sort.SliceStable(ranges, func(i, j int) bool {
		if ranges[i].Start != ranges[j].Start {
			return ranges[i].Start < ranges[j].Start
		}
		return ranges[i].End < ranges[j].End
	})
}

// Normalize converts arbitrary, possibly overlapping ranges into the minimal
// ordered sequence of non-overlapping ranges covering the same union.
// Ranges are swept in (start, end) order; a range overlapping the previously
// accepted one is clamped to its end and absorbed into it, and a range left
// empty or contained by the clamp is discarded. Ranges that merely touch stay
// separate. The input is not modified and Normalize is idempotent.
func Normalize(ranges []TimeRange) []TimeRange {
	sorted := make([]TimeRange, 0, len(ranges))
	for _, r := range ranges {
		if r.End < r.Start {
			r.Start, r.End = r.End, r.Start
		}
		if r.End > r.Start {
			sorted = append(sorted, r)
		}
	}
	sortRanges(sorted)

	out := make([]TimeRange, 0, len(sorted))
	for _, curr := range sorted {
		if len(out) == 0 {
			out = append(out, curr)
			continue
		}

		prev := &out[len(out)-1]
		if curr.Start < prev.End {
			curr.Start = prev.End
			if curr.Start >= curr.End || prev.Contains(curr) {
				continue
			}
			// What is left of curr continues prev without a gap.
			prev.End = curr.End
			continue
		}

		out = append(out, curr)
	}

	return out
}
