package armir

import (
	"fmt"
	"io"
)

// InstrList is the doubly linked, O(1)-insert/remove instruction sequence of
// spec.md §3. Iteration order is execution order.
type InstrList struct {
	head, tail *Instr
}

// NewInstrList returns an empty list.
func NewInstrList() *InstrList {
	return &InstrList{}
}

// First returns the first instruction, or nil if the list is empty.
func (l *InstrList) First() *Instr { return l.head }

// Last returns the last instruction, or nil if the list is empty.
func (l *InstrList) Last() *Instr { return l.tail }

// Next returns the instruction following i in its list, or nil at the end.
func (i *Instr) Next() *Instr { return i.next }

// Prev returns the instruction preceding i in its list, or nil at the start.
func (i *Instr) Prev() *Instr { return i.prev }

// Append adds newInstr at the end of the list.
func (l *InstrList) Append(newInstr *Instr) {
	newInstr.list = l
	if l.tail == nil {
		l.head, l.tail = newInstr, newInstr
		return
	}
	newInstr.prev = l.tail
	l.tail.next = newInstr
	l.tail = newInstr
}

// InsertBefore splices newInstr into the list immediately before at.
// This is `instrlist_meta_preinsert`/`instrlist_preinsert` in the teacher's
// vocabulary (spec.md §6 "List operations: insert-before/after").
func (l *InstrList) InsertBefore(at, newInstr *Instr) {
	newInstr.list = l
	newInstr.next = at
	newInstr.prev = at.prev
	if at.prev != nil {
		at.prev.next = newInstr
	} else {
		l.head = newInstr
	}
	at.prev = newInstr
}

// InsertAfter splices newInstr into the list immediately after at.
func (l *InstrList) InsertAfter(at, newInstr *Instr) {
	newInstr.list = l
	newInstr.prev = at
	newInstr.next = at.next
	if at.next != nil {
		at.next.prev = newInstr
	} else {
		l.tail = newInstr
	}
	at.next = newInstr
}

// Remove unlinks i from the list. i's own prev/next are left pointing at its
// former neighbors so that a caller holding i can still discover where it
// used to sit, matching the teacher's instr_destroy-adjacent convention of
// leaving a just-removed node's links inspectable until it is discarded.
func (l *InstrList) Remove(i *Instr) {
	if i.prev != nil {
		i.prev.next = i.next
	} else {
		l.head = i.next
	}
	if i.next != nil {
		i.next.prev = i.prev
	} else {
		l.tail = i.prev
	}
}

// NewLabel creates a detached meta label instruction, not yet inserted.
func NewLabel() *Instr {
	return &Instr{Op: OpLabel, Pred: CondNone}
}

// Disassemble writes a simple textual listing of the list to w, for debug
// logging (spec.md §6 "List operations: ... disassemble (for debug logging)").
// This is deliberately not a real ARM disassembler — that lives in the
// out-of-scope decode/disassemble layer — it just renders enough of each
// Instr to make test failures and CLI output legible.
func Disassemble(w io.Writer, l *InstrList) {
	for i := l.First(); i != nil; i = i.Next() {
		tag := "app "
		if i.IsMeta() {
			tag = "meta"
		}
		pred := ""
		if i.Pred.IsPredicated() {
			pred = "." + i.Pred.String()
		}
		fmt.Fprintf(w, "[%s] op=%d%s dsts=%v srcs=%v\n", tag, i.Op, pred, i.Dsts, i.Srcs)
	}
}
