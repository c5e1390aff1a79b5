package armir

import (
	"strings"
	"testing"

	"armcache/mangle/internal/testing/require"
)

func xlate(pc uint32) *uint32 { v := pc; return &v }

func TestInstrListAppendAndIteration(t *testing.T) {
	l := NewInstrList()
	a := &Instr{Op: OpMOV, Pred: AL, Xlate: xlate(0x100)}
	b := &Instr{Op: OpADD, Pred: AL, Xlate: xlate(0x104)}
	l.Append(a)
	l.Append(b)

	require.Equal(t, a, l.First())
	require.Equal(t, b, l.Last())
	require.Equal(t, b, a.Next())
	require.Equal(t, a, b.Prev())
}

func TestInstrListInsertBeforeAndAfter(t *testing.T) {
	l := NewInstrList()
	mid := &Instr{Op: OpMOV, Pred: AL, Xlate: xlate(0x200)}
	l.Append(mid)

	before := &Instr{Op: OpSUB, Pred: AL, Xlate: xlate(0x1fc)}
	l.InsertBefore(mid, before)
	require.Equal(t, before, l.First())
	require.Equal(t, mid, before.Next())

	after := &Instr{Op: OpADD, Pred: AL, Xlate: xlate(0x204)}
	l.InsertAfter(mid, after)
	require.Equal(t, after, l.Last())
	require.Equal(t, mid, after.Prev())
}

func TestInstrListRemoveFixesNeighbors(t *testing.T) {
	l := NewInstrList()
	a := &Instr{Op: OpMOV, Pred: AL, Xlate: xlate(0x300)}
	b := &Instr{Op: OpADD, Pred: AL, Xlate: xlate(0x304)}
	c := &Instr{Op: OpSUB, Pred: AL, Xlate: xlate(0x308)}
	l.Append(a)
	l.Append(b)
	l.Append(c)

	l.Remove(b)
	require.Equal(t, c, a.Next())
	require.Equal(t, a, c.Prev())
	require.Equal(t, a, l.First())
	require.Equal(t, c, l.Last())
}

func TestInstrListRemoveHeadAndTail(t *testing.T) {
	l := NewInstrList()
	a := &Instr{Op: OpMOV, Pred: AL, Xlate: xlate(0x400)}
	b := &Instr{Op: OpADD, Pred: AL, Xlate: xlate(0x404)}
	l.Append(a)
	l.Append(b)

	l.Remove(a)
	require.Equal(t, b, l.First())
	require.Nil(t, b.Prev())

	l.Remove(b)
	require.Nil(t, l.First())
	require.Nil(t, l.Last())
}

func TestNewLabelIsMeta(t *testing.T) {
	lbl := NewLabel()
	require.True(t, lbl.IsMeta())
	require.Equal(t, OpLabel, lbl.Op)
}

func TestDisassembleRendersAppAndMetaTags(t *testing.T) {
	l := NewInstrList()
	l.Append(&Instr{Op: OpMOV, Pred: AL, Xlate: xlate(0x500),
		Dsts: []Operand{NewReg(R0)}, Srcs: []Operand{NewReg(R1)}})
	l.Append(SaveToTLS(R0, TLSSlotReg0))

	var buf strings.Builder
	Disassemble(&buf, l)
	out := buf.String()
	require.True(t, strings.Contains(out, "[app "), "expected an app-tagged line in %q", out)
	require.True(t, strings.Contains(out, "[meta]"), "expected a meta-tagged line in %q", out)
}
