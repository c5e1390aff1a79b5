package armir

import (
	"testing"

	"armcache/mangle/internal/testing/require"
)

func TestOperandIsReg(t *testing.T) {
	require.True(t, NewReg(R0).IsReg(R0))
	require.False(t, NewReg(R0).IsReg(R1))
	require.False(t, NewImm(0).IsReg(R0))
}

func TestOperandReadsRegMemBaseAndIndex(t *testing.T) {
	base := NewMemBase(R4, 12, false)
	require.True(t, base.ReadsReg(R4))
	require.False(t, base.ReadsReg(R5))

	indexed := NewMemIndexed(R4, R5, ShiftLSL, 2)
	require.True(t, indexed.ReadsReg(R4))
	require.True(t, indexed.ReadsReg(R5))
	require.False(t, indexed.ReadsReg(R6))
}

func TestOperandReadsRegList(t *testing.T) {
	op := NewRegList(RegList(0).Add(R0).Add(R3))
	require.True(t, op.ReadsReg(R0))
	require.True(t, op.ReadsReg(R3))
	require.False(t, op.ReadsReg(R1))
}

func TestOperandWithBasePreservesDisplacement(t *testing.T) {
	op := NewMemBase(PC, 40, false)
	moved := op.WithBase(R2)
	require.Equal(t, R2, moved.Reg)
	require.Equal(t, int32(40), moved.Disp)
	require.Equal(t, PC, op.Reg, "original operand must be unmodified")
}

func TestOperandWithDisp(t *testing.T) {
	op := NewMemBase(R0, 4, false)
	moved := op.WithDisp(-8)
	require.Equal(t, int32(-8), moved.Disp)
	require.Equal(t, int32(4), op.Disp, "original operand must be unmodified")
}

func TestTLSSlotOperandRoundTrips(t *testing.T) {
	op := NewTLSSlot(TLSSlotStolenAppValue)
	require.Equal(t, TLSSlotStolenAppValue, op.TLSSlotID())
}
