// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Victor Bush
// Source: github.com/victorbush/ego.nefsedit

package nefs

// Command is one reversible edit operation.
type Command interface {
	// Do applies the command.
	Do()
	// Undo reverts the command. Called only after Do.
	Undo()
}

// ChangeKind classifies how the undo buffer last changed state.
type ChangeKind int

// Change kinds reported to the buffer's change callback.
const (
	ChangeNew ChangeKind = iota + 1
	ChangeUndo
	ChangeRedo
)

// UndoBuffer is a linear undo/redo history with a saved-state watermark.
// Executing a new command discards any redoable tail. Not safe for
// concurrent use.
type UndoBuffer struct {
	// onChange is invoked after every state transition.
	onChange func(ChangeKind)
	cmds     []Command
	// next indexes the first redoable command; commands before it are undoable.
	next int
	// saved is the next value at the last save, or -1 when the saved
	// state was discarded from history.
	saved int
}

// NewUndoBuffer returns an empty buffer. onChange may be nil.
func NewUndoBuffer(onChange func(ChangeKind)) *UndoBuffer {
	return &UndoBuffer{onChange: onChange}
}

func (b *UndoBuffer) notify(kind ChangeKind) {
	if b.onChange != nil {
		b.onChange(kind)
	}
}

// Execute applies cmd and records it, discarding the redo tail.
func (b *UndoBuffer) Execute(cmd Command) {
	// If the saved state sits in the tail being discarded, it becomes
	// unreachable: no sequence of undo/redo restores it.
	if b.saved > b.next {
		b.saved = -1
	}

	b.cmds = append(b.cmds[:b.next], cmd)
	cmd.Do()
	b.next++
	b.notify(ChangeNew)
}

// Undo reverts the most recent applied command. Returns false when
// there is nothing to undo.
func (b *UndoBuffer) Undo() bool {
	if b.next == 0 {
		return false
	}

	b.next--
	b.cmds[b.next].Undo()
	b.notify(ChangeUndo)
	return true
}

// Redo re-applies the most recently undone command. Returns false when
// there is nothing to redo.
func (b *UndoBuffer) Redo() bool {
	if b.next == len(b.cmds) {
		return false
	}

	b.cmds[b.next].Do()
	b.next++
	b.notify(ChangeRedo)
	return true
}

// CanUndo reports whether at least one command is undoable.
func (b *UndoBuffer) CanUndo() bool { return b.next > 0 }

// CanRedo reports whether at least one command is redoable.
func (b *UndoBuffer) CanRedo() bool { return b.next < len(b.cmds) }

// Modified reports whether the current state differs from the last save.
func (b *UndoBuffer) Modified() bool { return b.next != b.saved }

// MarkAsSaved records the current state as the saved watermark.
func (b *UndoBuffer) MarkAsSaved() {
	b.saved = b.next
}

// Reset drops all history and marks the empty state as saved.
func (b *UndoBuffer) Reset() {
	b.cmds = nil
	b.next = 0
	b.saved = 0
}
