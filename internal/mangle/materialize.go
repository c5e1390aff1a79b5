package mangle

import "armcache/mangle/internal/armir"

// insertMovImmed loads the 32-bit constant val into dst before where,
// returning the inserted instruction(s) (the second is nil if one sufficed).
// Prefers a single MVN when the bitwise complement of val fits in an 8-bit
// immediate; otherwise emits MOVW for the low halfword, followed by a MOVT
// for the high halfword unless it is zero (MOVW already zero-extends)
// (mangle.c insert_mov_immed_arch, the non-OP_ldr-relative path: the
// from-a-decoded-instruction-address path is PC-relative materialization,
// out of scope for hand-built fixtures; this package has no function for it).
func insertMovImmed(l *armir.InstrList, where *armir.Instr, val uint32, dst armir.Reg) (first, second *armir.Instr) {
	inv := ^val
	if inv <= 0xff {
		mov := &armir.Instr{Op: armir.OpMVN, Pred: armir.AL, Mode: where.Mode,
			Dsts: []armir.Operand{armir.NewReg(dst)},
			Srcs: []armir.Operand{armir.NewImm(int64(inv))}}
		l.InsertBefore(where, mov)
		return mov, nil
	}

	low := val & 0xffff
	movw := &armir.Instr{Op: armir.OpMOVW, Pred: armir.AL, Mode: where.Mode,
		Dsts: []armir.Operand{armir.NewReg(dst)},
		Srcs: []armir.Operand{armir.NewImm(int64(low))}}
	l.InsertBefore(where, movw)

	high := (val >> 16) & 0xffff
	if high == 0 {
		return movw, nil
	}
	movt := &armir.Instr{Op: armir.OpMOVT, Pred: armir.AL, Mode: where.Mode,
		Dsts: []armir.Operand{armir.NewReg(dst)},
		Srcs: []armir.Operand{armir.NewImm(int64(high))}}
	l.InsertBefore(where, movt)
	return movw, movt
}

// setPred applies pred to first and second (second may be nil), used by
// callers that materialize a constant under a predicate - direct call's
// return-address load, or the inverted-predicate fallthrough target.
func setPred(pred armir.Cond, first, second *armir.Instr) {
	first.Pred = pred
	if second != nil {
		second.Pred = pred
	}
}
