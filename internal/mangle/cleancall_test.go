package mangle

import (
	"testing"

	"armcache/mangle/internal/armir"
	"armcache/mangle/internal/testing/require"
)

func TestInsertPushAllRegistersOrderMatchesPopAllRegisters(t *testing.T) {
	l := armir.NewInstrList()
	where := &armir.Instr{Op: armir.OpOther, Mode: armir.A32}
	l.Append(where)

	InsertPushAllRegisters(l, where, armir.A32, armir.R4, false)

	var ops []armir.Opcode
	for i := l.First(); i != where; i = i.Next() {
		ops = append(ops, i.Op)
	}
	require.Equal(t, []armir.Opcode{
		armir.OpVSTMDB, armir.OpVSTMDB, armir.OpMRS, armir.OpPUSH, armir.OpSUB, armir.OpPUSH, armir.OpSTM,
	}, ops)
}

func TestInsertPopAllRegistersRestoresFlagsUnlessSkipped(t *testing.T) {
	l := armir.NewInstrList()
	where := &armir.Instr{Op: armir.OpOther, Mode: armir.A32}
	l.Append(where)

	InsertPopAllRegisters(l, where, armir.A32, armir.R4, false)

	foundMSR := false
	for i := l.First(); i != where; i = i.Next() {
		if i.Op == armir.OpMSR {
			foundMSR = true
		}
	}
	require.True(t, foundMSR)
}

func TestInsertPopAllRegistersSkipsFlagsWhenRequested(t *testing.T) {
	l := armir.NewInstrList()
	where := &armir.Instr{Op: armir.OpOther, Mode: armir.A32}
	l.Append(where)

	InsertPopAllRegisters(l, where, armir.A32, armir.R4, true)

	for i := l.First(); i != where; i = i.Next() {
		if i.Op == armir.OpMSR {
			t.Fatal("skipAflags must suppress the flags restore")
		}
	}
}

func TestPushAllRegistersAndPopAllRegistersAccountForTheSameWords(t *testing.T) {
	for _, skipAflags := range []bool{false, true} {
		pushList := armir.NewInstrList()
		pushWhere := &armir.Instr{Op: armir.OpOther, Mode: armir.A32}
		pushList.Append(pushWhere)
		InsertPushAllRegisters(pushList, pushWhere, armir.A32, armir.R4, skipAflags)

		popList := armir.NewInstrList()
		popWhere := &armir.Instr{Op: armir.OpOther, Mode: armir.A32}
		popList.Append(popWhere)
		InsertPopAllRegisters(popList, popWhere, armir.A32, armir.R4, skipAflags)

		require.Equal(t, stackWords(pushList, pushWhere), stackWords(popList, popWhere),
			"push and pop must move the same number of stack words (skipAflags=%v)", skipAflags)
	}
}

// stackWords approximates how many 4-byte stack slots a sequence of
// InsertPushAllRegisters/InsertPopAllRegisters instructions touches: each
// push/pop/stm/ldm contributes its register-list size (or 1 for a single
// register), each vstm/vldm contributes 16 double-words, and each
// reserve/discard add/sub against sp contributes delta/regSize.
func stackWords(l *armir.InstrList, until *armir.Instr) int {
	total := 0
	for i := l.First(); i != until; i = i.Next() {
		switch i.Op {
		case armir.OpVSTMDB, armir.OpVLDMIA:
			total += 16 * 2
		case armir.OpPUSH, armir.OpPOP:
			if i.Dsts[0].Kind == armir.OpRegList {
				total += i.Dsts[0].List.Count()
			} else {
				total++
			}
		case armir.OpSTM:
			total += i.Srcs[0].List.Count()
		case armir.OpLDM:
			total += i.Dsts[0].List.Count()
		case armir.OpADD, armir.OpSUB:
			total += int(i.Srcs[1].Imm) / regSize
		}
	}
	return total
}

func TestFullGPRListCoversR0ThroughR12(t *testing.T) {
	list := fullGPRList()
	for r := armir.R0; r <= armir.R12; r++ {
		require.True(t, list.Contains(r))
	}
	require.False(t, list.Contains(armir.SP))
	require.False(t, list.Contains(armir.LR))
	require.False(t, list.Contains(armir.PC))
}

func TestInsertParameterPreparationMovesRegistersAndImmediatesIntoPlace(t *testing.T) {
	cfg := newCfg(t)
	l := armir.NewInstrList()
	where := &armir.Instr{Op: armir.OpOther, Mode: armir.A32}
	l.Append(where)

	err := InsertParameterPreparation(l, where, armir.A32,
		[]armir.Operand{armir.NewImm(42), armir.NewReg(armir.R2)}, cfg)
	require.NoError(t, err)

	foundImmLoad := false
	foundMoveR2ToR1 := false
	for i := l.First(); i != where; i = i.Next() {
		if len(i.Dsts) == 1 && i.Dsts[0].Reg == armir.R0 && (i.Op == armir.OpMOVW || i.Op == armir.OpMVN) {
			foundImmLoad = true
		}
		if i.Op == armir.OpMOV && len(i.Dsts) == 1 && i.Dsts[0].Reg == armir.R1 && i.Srcs[0].Reg == armir.R2 {
			foundMoveR2ToR1 = true
		}
	}
	require.True(t, foundImmLoad, "the first argument (an immediate) is materialized into r0")
	require.True(t, foundMoveR2ToR1, "the second argument (r2) must move into r1")
}

func TestInsertParameterPreparationSkipsMoveWhenArgAlreadyInPlace(t *testing.T) {
	cfg := newCfg(t)
	l := armir.NewInstrList()
	where := &armir.Instr{Op: armir.OpOther, Mode: armir.A32}
	l.Append(where)

	err := InsertParameterPreparation(l, where, armir.A32, []armir.Operand{armir.NewReg(armir.R0)}, cfg)
	require.NoError(t, err)

	require.Equal(t, armir.OpLabel, l.First().Op, "no mov is needed, only the marker label remains before where")
	require.Equal(t, where, l.First().Next())
}

func TestInsertParameterPreparationRejectsTooManyArguments(t *testing.T) {
	cfg := newCfg(t)
	l := armir.NewInstrList()
	where := &armir.Instr{Op: armir.OpOther, Mode: armir.A32}
	l.Append(where)

	args := make([]armir.Operand, cfg.NumRegParm+1)
	for i := range args {
		args[i] = armir.NewImm(int64(i))
	}
	err := InsertParameterPreparation(l, where, armir.A32, args, cfg)
	require.Error(t, err)
}

func TestInsertParameterPreparationRejectsSPSourcedArgument(t *testing.T) {
	cfg := newCfg(t)
	l := armir.NewInstrList()
	where := &armir.Instr{Op: armir.OpOther, Mode: armir.A32}
	l.Append(where)

	err := InsertParameterPreparation(l, where, armir.A32, []armir.Operand{armir.NewReg(armir.SP)}, cfg)
	require.ErrorContains(t, err, "sp")
}
