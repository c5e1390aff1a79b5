package mangle

import (
	"testing"

	"armcache/mangle/internal/armir"
	"armcache/mangle/internal/testing/require"
)

func TestMangleSyscallPanicsOnPredicatedSVC(t *testing.T) {
	cfg := newCfg(t)
	l := armir.NewInstrList()
	svc := &armir.Instr{Op: armir.OpSVC, Pred: armir.EQ, Mode: armir.A32}
	following := &armir.Instr{Op: armir.OpADD, Mode: armir.A32}
	l.Append(svc)
	l.Append(following)

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected a panic for a predicated system call")
		}
		if _, ok := r.(*BugError); !ok {
			t.Fatalf("expected a *BugError, got %T", r)
		}
	}()
	MangleSyscall(l, svc, following, cfg)
}

func TestMangleSyscallSwapsThroughR10WhenStolenRegIsCallerSaved(t *testing.T) {
	cfg, err := armir.NewConfig(armir.R8, armir.R1, 4)
	require.NoError(t, err)
	l := armir.NewInstrList()
	svc := &armir.Instr{Op: armir.OpSVC, Pred: armir.AL, Mode: armir.A32}
	following := &armir.Instr{Op: armir.OpADD, Mode: armir.A32}
	l.Append(svc)
	l.Append(following)

	MangleSyscall(l, svc, following, cfg)

	require.True(t, armir.IsTLSSaveOf(l.First(), armir.R10))
	moveStolenToR10 := l.First().Next()
	require.Equal(t, armir.OpMOV, moveStolenToR10.Op)
	require.Equal(t, armir.R10, moveStolenToR10.Dsts[0].Reg)
	require.Equal(t, cfg.StolenReg, moveStolenToR10.Srcs[0].Reg)

	require.True(t, armir.IsTLSSaveOf(moveStolenToR10.Next(), armir.R0), "r0 is saved so a syscall restart can recover the app's original argument")
	require.Equal(t, svc, moveStolenToR10.Next().Next())

	moveBack := svc.Next()
	require.Equal(t, armir.OpMOV, moveBack.Op)
	require.Equal(t, cfg.StolenReg, moveBack.Dsts[0].Reg)
	require.Equal(t, armir.R10, moveBack.Srcs[0].Reg)
	require.True(t, armir.IsTLSRestoreOf(moveBack.Next(), armir.R10))
	require.Equal(t, following, moveBack.Next().Next())
}

func TestMangleSyscallSkipsTheSwapWhenStolenRegIsCalleeSaved(t *testing.T) {
	cfg := newCfg(t) // newCfg's stolen reg is r10, callee-saved under the EABI
	l := armir.NewInstrList()
	svc := &armir.Instr{Op: armir.OpSVC, Pred: armir.AL, Mode: armir.A32}
	following := &armir.Instr{Op: armir.OpADD, Mode: armir.A32}
	l.Append(svc)
	l.Append(following)

	MangleSyscall(l, svc, following, cfg)

	require.True(t, armir.IsTLSSaveOf(l.First(), armir.R0), "no r10/r11 swap means the only thing saved before the svc is r0")
	require.Equal(t, svc, l.First().Next())
	require.Equal(t, following, svc.Next())
}

func TestMangleInsertCloneCodeBuildsParentChildSplit(t *testing.T) {
	l := armir.NewInstrList()
	svc := &armir.Instr{Op: armir.OpSVC, Pred: armir.AL, Mode: armir.A32, Xlate: xlatePtr(0x900)}
	afterSyscall := &armir.Instr{Op: armir.OpADD, Mode: armir.A32, Xlate: xlatePtr(0x904)}
	l.Append(svc)
	l.Append(afterSyscall)

	MangleInsertCloneCode(l, svc, 0x7000, armir.R2)

	cbnz := svc.Next()
	require.Equal(t, armir.OpCBNZ, cbnz.Op)
	require.Equal(t, armir.R0, cbnz.Srcs[0].Reg)

	foundMovPC := false
	cur := cbnz.Next()
	var parentLabel *armir.Instr
	for cur != nil && cur != afterSyscall {
		if cur.Op == armir.OpMOV && len(cur.Dsts) == 1 && cur.Dsts[0].IsReg(armir.PC) {
			foundMovPC = true
		}
		if cur.Op == armir.OpLabel {
			parentLabel = cur
		}
		cur = cur.Next()
	}
	require.True(t, foundMovPC, "the child path must jump to the new thread entry point")
	require.NotNil(t, parentLabel, "the cbnz needs a parent label to branch to")
	require.Equal(t, cbnz.Dsts[0].Target, parentLabel)
	require.Equal(t, afterSyscall, parentLabel.Next())
}
