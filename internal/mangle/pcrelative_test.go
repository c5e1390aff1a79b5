package mangle

import (
	"testing"

	"armcache/mangle/internal/armir"
	"armcache/mangle/internal/testing/require"
)

func TestManglePCAsBaseRelocatesLoadBase(t *testing.T) {
	cfg := newCfg(t)
	l := armir.NewInstrList()
	ldr := &armir.Instr{Op: armir.OpLDR, Pred: armir.AL, Mode: armir.A32, Xlate: xlatePtr(0x6000),
		Dsts: []armir.Operand{armir.NewReg(armir.R0)},
		Srcs: []armir.Operand{armir.NewMemBase(armir.PC, 40, false)}}
	following := &armir.Instr{Op: armir.OpADD, Mode: armir.A32, Xlate: xlatePtr(0x6004)}
	l.Append(ldr)
	l.Append(following)

	next := ManglePCAsBase(l, ldr, following, 0x6008, cfg)

	require.Equal(t, following, next, "no IT block splitting outside thumb, next is unchanged")
	require.NotEqual(t, armir.PC, ldr.Srcs[0].Reg)
	require.Equal(t, int32(40), ldr.Srcs[0].Disp, "displacement survives the base swap")

	base := ldr.Srcs[0].Reg
	foundRestore := false
	for i := l.First(); i != nil; i = i.Next() {
		if r, ok := armir.TLSRestoreTarget(i); ok && r == base {
			foundRestore = true
		}
	}
	require.True(t, foundRestore, "the scratch register must be restored before the following instruction")
}

func TestManglePCAsBaseRelocatesStoreBase(t *testing.T) {
	cfg := newCfg(t)
	l := armir.NewInstrList()
	str := &armir.Instr{Op: armir.OpSTR, Pred: armir.AL, Mode: armir.A32, Xlate: xlatePtr(0x6100),
		Dsts: []armir.Operand{armir.NewMemBase(armir.PC, 8, false)},
		Srcs: []armir.Operand{armir.NewReg(armir.R0)}}
	following := &armir.Instr{Op: armir.OpADD, Mode: armir.A32, Xlate: xlatePtr(0x6104)}
	l.Append(str)
	l.Append(following)

	ManglePCAsBase(l, str, following, 0x6108, cfg)

	require.NotEqual(t, armir.PC, str.Dsts[0].Reg)
}

func TestManglePCAsBaseFoldsLargeNegatedT32DispIntoAppPC(t *testing.T) {
	cfg := newCfg(t)
	l := armir.NewInstrList()
	ldr := &armir.Instr{Op: armir.OpLDR, Pred: armir.AL, Mode: armir.T32, Xlate: xlatePtr(0x6300),
		Dsts: []armir.Operand{armir.NewReg(armir.R0)},
		Srcs: []armir.Operand{armir.NewMemBase(armir.PC, 300, true)}}
	following := &armir.Instr{Op: armir.OpADD, Mode: armir.T32, Xlate: xlatePtr(0x6304)}
	l.Append(ldr)
	l.Append(following)

	appPC := uint32(0x6308)
	ManglePCAsBase(l, ldr, following, appPC, cfg)

	require.Equal(t, int32(0), ldr.Srcs[0].Disp, "the negated displacement must be folded away, not kept on the operand")
	require.False(t, ldr.Srcs[0].Negated)

	var movw *armir.Instr
	for i := l.First(); i != nil; i = i.Next() {
		if i.Op == armir.OpMOVW {
			movw = i
		}
	}
	require.NotNil(t, movw)
	require.Equal(t, int64((appPC-300)&0xffff), movw.Srcs[0].Imm, "the materialized base must already have disp subtracted out")
}

func TestManglePCAsBaseLeavesSmallNegatedT32DispAlone(t *testing.T) {
	cfg := newCfg(t)
	l := armir.NewInstrList()
	ldr := &armir.Instr{Op: armir.OpLDR, Pred: armir.AL, Mode: armir.T32, Xlate: xlatePtr(0x6400),
		Dsts: []armir.Operand{armir.NewReg(armir.R0)},
		Srcs: []armir.Operand{armir.NewMemBase(armir.PC, 100, true)}}
	following := &armir.Instr{Op: armir.OpADD, Mode: armir.T32, Xlate: xlatePtr(0x6404)}
	l.Append(ldr)
	l.Append(following)

	ManglePCAsBase(l, ldr, following, 0x6408, cfg)

	require.Equal(t, int32(100), ldr.Srcs[0].Disp, "disp below the 256 threshold is left on the operand")
	require.True(t, ldr.Srcs[0].Negated)
}

func TestManglePCReadReplacesSourceWithScratch(t *testing.T) {
	cfg := newCfg(t)
	l := armir.NewInstrList()
	add := &armir.Instr{Op: armir.OpADD, Pred: armir.AL, Mode: armir.A32, Xlate: xlatePtr(0x6200),
		Dsts: []armir.Operand{armir.NewReg(armir.R0)},
		Srcs: []armir.Operand{armir.NewReg(armir.PC), armir.NewImm(4)}}
	following := &armir.Instr{Op: armir.OpMOV, Mode: armir.A32, Xlate: xlatePtr(0x6204)}
	l.Append(add)
	l.Append(following)

	ManglePCRead(l, add, following, 0x6208, cfg)

	require.False(t, add.Srcs[0].IsReg(armir.PC))
	require.True(t, add.Srcs[0].Kind == armir.OpReg)
}
