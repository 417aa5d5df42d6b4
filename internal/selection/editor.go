package selection

import "log/slog"

// DragKind identifies what a pointer drag is doing.
type DragKind int

const (
	DragNone DragKind = iota
	DragCreate
	DragResize
	DragMove
)

func (k DragKind) String() string {
	switch k {
	case DragCreate:
		return "create"
	case DragResize:
		return "resize"
	case DragMove:
		return "move"
	default:
		return "none"
	}
}

// Target describes what the pointer went down on.
// An empty RangeID means the bare timeline.
type Target struct {
	RangeID string
	// Handle is only meaningful when OnHandle is set.
	Handle   Handle
	OnHandle bool
}

// dragState is the Dragging(kind, rangeID?, handle?) state. kind == DragNone is Idle.
type dragState struct {
	kind    DragKind
	rangeID string
	handle  Handle
	anchor  float64 // create: press time
	offset  float64 // move: press time minus range start
}

// Editor drives a Set from discrete pointer events:
//
//	Idle --down--> Dragging(create|resize|move) --move*--> Dragging --up--> Idle
//
// Every event is evaluated against the absolute pointer time, so intermediate
// moves may be coalesced or dropped. An Editor belongs to one timeline and is
// not safe for concurrent use.
type Editor struct {
	set     Set
	state   dragState
	preview *TimeRange
	logger  *slog.Logger
}

// NewEditor creates an Editor over an empty timeline of the given duration.
func NewEditor(duration float64, logger *slog.Logger) *Editor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Editor{set: New(duration), logger: logger}
}

// Set returns the committed selection snapshot.
func (e *Editor) Set() Set {
	return e.set
}

// Dragging returns the current drag kind; DragNone when idle.
func (e *Editor) Dragging() DragKind {
	return e.state.kind
}

// Preview returns the in-progress creation range, if any.
func (e *Editor) Preview() (TimeRange, bool) {
	if e.preview == nil {
		return TimeRange{}, false
	}
	return *e.preview, true
}

// PointerDown starts a drag. A press while already dragging is ignored.
func (e *Editor) PointerDown(target Target, t float64) {
	if e.state.kind != DragNone {
		return
	}

	if target.RangeID == "" {
		e.state = dragState{kind: DragCreate, anchor: t}
		e.preview = nil
		return
	}

	r, ok := e.set.Get(target.RangeID)
	if !ok {
		e.logger.Debug("pointer down on unknown range", "range", target.RangeID)
		return
	}

	if target.OnHandle {
		e.state = dragState{kind: DragResize, rangeID: r.ID, handle: target.Handle}
		return
	}
	e.state = dragState{kind: DragMove, rangeID: r.ID, offset: t - r.Start}
}

// PointerMove updates the drag in progress.
func (e *Editor) PointerMove(t float64) {
	switch e.state.kind {
	case DragCreate:
		if r, ok := e.set.Truncate(e.state.anchor, t); ok {
			e.preview = &r
		} else {
			e.preview = nil
		}
	case DragResize:
		e.apply(e.set.Resize(e.state.rangeID, e.state.handle, t))
	case DragMove:
		e.apply(e.set.Move(e.state.rangeID, t-e.state.offset))
	}
}

// PointerUp finishes the drag and returns to Idle. A creation drag commits the
// full anchor-to-pointer range, not the truncated preview, so a drag across a
// committed range is rejected with ErrOverlap.
func (e *Editor) PointerUp(t float64) {
	switch e.state.kind {
	case DragNone:
		return
	case DragCreate:
		e.apply(e.set.Add(NewRange(e.state.anchor, t)))
	default:
		e.PointerMove(t)
	}

	e.state = dragState{}
	e.preview = nil
}

// Cancel abandons the drag in progress. Resize and move steps already applied are kept.
func (e *Editor) Cancel() {
	e.state = dragState{}
	e.preview = nil
}

// Remove deletes a committed range.
func (e *Editor) Remove(id string) {
	e.set = e.set.Remove(id)
}

func (e *Editor) apply(next Set, err error) {
	if err != nil {
		e.logger.Debug("selection change rejected", "kind", e.state.kind, "error", err)
		return
	}
	e.set = next
}
