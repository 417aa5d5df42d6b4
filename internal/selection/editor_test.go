package selection

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestEditor(duration float64) *Editor {
	return NewEditor(duration, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestEditor_CreateRange(t *testing.T) {
	e := createTestEditor(60)
	assert.Equal(t, DragNone, e.Dragging())

	e.PointerDown(Target{}, 5)
	assert.Equal(t, DragCreate, e.Dragging())

	e.PointerMove(8)
	e.PointerMove(12)
	preview, ok := e.Preview()
	require.True(t, ok)
	assert.Equal(t, [2]float64{5, 12}, [2]float64{preview.Start, preview.End})
	assert.Equal(t, 0, e.Set().Len(), "preview is not committed")

	e.PointerUp(15)
	assert.Equal(t, DragNone, e.Dragging())
	_, ok = e.Preview()
	assert.False(t, ok)

	ranges := e.Set().Ranges()
	require.Len(t, ranges, 1)
	assert.Equal(t, 5.0, ranges[0].Start)
	assert.Equal(t, 15.0, ranges[0].End)
}

func TestEditor_CreateAcrossExistingRangeRejected(t *testing.T) {
	e := createTestEditor(60)
	e.PointerDown(Target{}, 20)
	e.PointerUp(30)

	e.PointerDown(Target{}, 10)
	e.PointerMove(25)
	preview, ok := e.Preview()
	require.True(t, ok)
	assert.Equal(t, 20.0, preview.End, "preview stops at the committed range")

	e.PointerUp(40)
	assert.Equal(t, [][2]float64{{20, 30}}, bounds(e.Set().Ranges()))
	assert.Equal(t, DragNone, e.Dragging())
	_, ok = e.Preview()
	assert.False(t, ok)
}

func TestEditor_CreateUpToExistingRange(t *testing.T) {
	e := createTestEditor(60)
	e.PointerDown(Target{}, 20)
	e.PointerUp(30)

	e.PointerDown(Target{}, 10)
	e.PointerUp(20)
	assert.Equal(t, [][2]float64{{10, 20}, {20, 30}}, bounds(e.Set().Ranges()))
}

func TestEditor_CreateClampedToTimeline(t *testing.T) {
	e := createTestEditor(60)
	e.PointerDown(Target{}, 50)
	e.PointerUp(75)
	assert.Equal(t, [][2]float64{{50, 60}}, bounds(e.Set().Ranges()))
}

func TestEditor_ClickWithoutDragCreatesNothing(t *testing.T) {
	e := createTestEditor(60)
	e.PointerDown(Target{}, 10)
	e.PointerUp(10)

	assert.Equal(t, 0, e.Set().Len())
	assert.Equal(t, DragNone, e.Dragging())
}

func TestEditor_ResizeHandle(t *testing.T) {
	e := createTestEditor(60)
	e.PointerDown(Target{}, 10)
	e.PointerUp(20)
	id := e.Set().Ranges()[0].ID

	e.PointerDown(Target{RangeID: id, Handle: HandleEnd, OnHandle: true}, 20)
	assert.Equal(t, DragResize, e.Dragging())

	e.PointerMove(22)
	e.PointerMove(5) // would invert; rejected, range stays at last valid state
	got, _ := e.Set().Get(id)
	assert.Equal(t, 22.0, got.End)

	e.PointerUp(26)
	got, _ = e.Set().Get(id)
	assert.Equal(t, [2]float64{10, 26}, [2]float64{got.Start, got.End})
}

func TestEditor_MoveKeepsGrabOffset(t *testing.T) {
	e := createTestEditor(60)
	e.PointerDown(Target{}, 10)
	e.PointerUp(20)
	id := e.Set().Ranges()[0].ID

	// Grab the body 3s after its start.
	e.PointerDown(Target{RangeID: id}, 13)
	assert.Equal(t, DragMove, e.Dragging())

	// Intermediate events may be dropped; only the absolute position matters.
	e.PointerUp(33)

	got, _ := e.Set().Get(id)
	assert.Equal(t, [2]float64{30, 40}, [2]float64{got.Start, got.End})
}

func TestEditor_MoveRejectedOnOverlap(t *testing.T) {
	e := createTestEditor(60)
	e.PointerDown(Target{}, 0)
	e.PointerUp(10)
	e.PointerDown(Target{}, 20)
	e.PointerUp(30)
	first := e.Set().Ranges()[0]

	e.PointerDown(Target{RangeID: first.ID}, 0)
	e.PointerMove(15)
	e.PointerUp(15)

	got, _ := e.Set().Get(first.ID)
	assert.Equal(t, first, got)
}

func TestEditor_PointerDownOnUnknownRangeStaysIdle(t *testing.T) {
	e := createTestEditor(60)
	e.PointerDown(Target{RangeID: "missing"}, 5)
	assert.Equal(t, DragNone, e.Dragging())
}

func TestEditor_CancelAndRemove(t *testing.T) {
	e := createTestEditor(60)
	e.PointerDown(Target{}, 5)
	e.PointerMove(9)
	e.Cancel()
	assert.Equal(t, DragNone, e.Dragging())
	assert.Equal(t, 0, e.Set().Len())

	e.PointerDown(Target{}, 5)
	e.PointerUp(9)
	id := e.Set().Ranges()[0].ID
	e.Remove(id)
	assert.Equal(t, 0, e.Set().Len())
}

func TestEditors_AreIndependent(t *testing.T) {
	a := createTestEditor(60)
	b := createTestEditor(60)

	a.PointerDown(Target{}, 0)
	a.PointerUp(10)

	assert.Equal(t, 1, a.Set().Len())
	assert.Equal(t, 0, b.Set().Len())
}
