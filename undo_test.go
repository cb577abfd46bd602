// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Victor Bush
// Source: github.com/victorbush/ego.nefsedit

package nefs

import "testing"

// recordingCommand tracks its applied state.
type recordingCommand struct {
	name    string
	applied bool
}

func (c *recordingCommand) Do()   { c.applied = true }
func (c *recordingCommand) Undo() { c.applied = false }

func TestUndoBufferUndoRedo(t *testing.T) {
	b := NewUndoBuffer(nil)

	a := &recordingCommand{name: "a"}
	bb := &recordingCommand{name: "b"}

	b.Execute(a)
	b.Execute(bb)

	if !a.applied || !bb.applied {
		t.Fatal("commands not applied")
	}

	if !b.Undo() {
		t.Fatal("undo failed")
	}
	if bb.applied {
		t.Error("b still applied after undo")
	}
	if !b.CanRedo() {
		t.Error("b not redoable after undo")
	}

	if !b.Redo() {
		t.Fatal("redo failed")
	}
	if !bb.applied {
		t.Error("b not re-applied")
	}

	if b.Redo() {
		t.Error("redo past end succeeded")
	}
}

func TestUndoBufferExecuteDiscardsRedoTail(t *testing.T) {
	b := NewUndoBuffer(nil)

	a := &recordingCommand{name: "a"}
	bb := &recordingCommand{name: "b"}
	c := &recordingCommand{name: "c"}

	b.Execute(a)
	b.Execute(bb)
	b.Undo()
	b.Execute(c)

	if b.CanRedo() {
		t.Error("redo tail survived a new execute")
	}
	if bb.applied {
		t.Error("discarded command still applied")
	}
	if !c.applied {
		t.Error("new command not applied")
	}
}

func TestUndoBufferModifiedWatermark(t *testing.T) {
	b := NewUndoBuffer(nil)
	if b.Modified() {
		t.Error("fresh buffer reports modified")
	}

	b.Execute(&recordingCommand{})
	if !b.Modified() {
		t.Error("buffer not modified after execute")
	}

	b.MarkAsSaved()
	if b.Modified() {
		t.Error("buffer modified right after save")
	}

	b.Undo()
	if !b.Modified() {
		t.Error("undo below watermark not reported modified")
	}

	b.Redo()
	if b.Modified() {
		t.Error("redo back to watermark still modified")
	}
}

func TestUndoBufferSavedStateDiscarded(t *testing.T) {
	b := NewUndoBuffer(nil)

	b.Execute(&recordingCommand{})
	b.Execute(&recordingCommand{})
	b.MarkAsSaved()
	b.Undo()

	// The saved state sits in the discarded tail now.
	b.Execute(&recordingCommand{})
	if !b.Modified() {
		t.Error("unreachable saved state reported as current")
	}

	// No undo sequence can reach the saved state again.
	for b.Undo() {
	}
	if !b.Modified() {
		t.Error("empty state equals discarded save")
	}
}

func TestUndoBufferChangeCallback(t *testing.T) {
	var kinds []ChangeKind
	b := NewUndoBuffer(func(k ChangeKind) { kinds = append(kinds, k) })

	b.Execute(&recordingCommand{})
	b.Undo()
	b.Redo()

	want := []ChangeKind{ChangeNew, ChangeUndo, ChangeRedo}
	if len(kinds) != len(want) {
		t.Fatalf("callbacks = %v", kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("callback %d = %v, want %v", i, kinds[i], want[i])
		}
	}
}

func TestUndoBufferReset(t *testing.T) {
	b := NewUndoBuffer(nil)
	b.Execute(&recordingCommand{})
	b.Reset()

	if b.CanUndo() || b.CanRedo() || b.Modified() {
		t.Error("reset buffer retains state")
	}
}
