// Package history implements linear undo/redo over deep-copied snapshots of
// a whole document.
package history

import (
	"fmt"

	"github.com/tiendc/go-deepcopy"
)

// DefaultLimit is the undo depth used when none is configured.
const DefaultLimit = 10

// History keeps bounded undo and redo stacks of snapshots of type S.
// S must be deep-copyable: exported fields only.
type History[S any] struct {
	limit int
	undo  []S
	redo  []S
}

// New returns a History holding at most limit undo entries.
// A limit below 1 is raised to 1.
func New[S any](limit int) *History[S] {
	if limit < 1 {
		limit = 1
	}
	return &History[S]{limit: limit}
}

// Push records a copy of s as the newest undo entry and clears redo.
// The oldest entry is evicted once the limit is exceeded.
func (h *History[S]) Push(s S) {
	h.undo = append(h.undo, Clone(s))
	if len(h.undo) > h.limit {
		h.undo = h.undo[len(h.undo)-h.limit:]
	}
	h.redo = nil
}

// Undo moves current onto the redo stack and returns the newest undo entry.
// It reports false and changes nothing when there is nothing to undo.
func (h *History[S]) Undo(current S) (S, bool) {
	var zero S
	if len(h.undo) == 0 {
		return zero, false
	}
	prev := h.undo[len(h.undo)-1]
	h.undo = h.undo[:len(h.undo)-1]
	h.redo = append(h.redo, Clone(current))
	return prev, true
}

// Redo moves current onto the undo stack and returns the newest redo entry.
func (h *History[S]) Redo(current S) (S, bool) {
	var zero S
	if len(h.redo) == 0 {
		return zero, false
	}
	next := h.redo[len(h.redo)-1]
	h.redo = h.redo[:len(h.redo)-1]
	h.undo = append(h.undo, Clone(current))
	if len(h.undo) > h.limit {
		h.undo = h.undo[len(h.undo)-h.limit:]
	}
	return next, true
}

// CanUndo reports whether Undo has a snapshot to restore.
func (h *History[S]) CanUndo() bool { return len(h.undo) > 0 }

// CanRedo reports whether Redo has a snapshot to restore. Any Push empties
// the redo stack.
func (h *History[S]) CanRedo() bool { return len(h.redo) > 0 }

// Len returns the undo and redo depths.
func (h *History[S]) Len() (undo, redo int) {
	return len(h.undo), len(h.redo)
}

// Limit returns the undo bound in effect: the value given to New, raised
// to 1 when it was lower. Older snapshots beyond it are dropped on Push.
func (h *History[S]) Limit() int { return h.limit }

// Clear empties both stacks.
func (h *History[S]) Clear() {
	h.undo = nil
	h.redo = nil
}

// Clone returns a deep copy of v. Snapshot types are plain data, so a copy
// failure is a programming error and panics.
func Clone[S any](v S) S {
	var out S
	if err := deepcopy.Copy(&out, v); err != nil {
		panic(fmt.Sprintf("history: clone %T: %v", v, err))
	}
	return out
}
