package mangle

import "armcache/mangle/internal/armir"

// restoreAppValueToStolenReg spills the stolen register's TLS-base value
// into reg and reloads the application's original value into the stolen
// register, so instr can execute with the architectural value it expects.
// The reload is skipped only when instr provably always overwrites the
// stolen register unconditionally and never reads it first (mangle.c
// restore_app_value_to_stolen_reg).
func restoreAppValueToStolenReg(l *armir.InstrList, where *armir.Instr, reg armir.Reg, slot armir.TLSSlot, cfg *armir.Config) {
	insertSaveToTLSIfNecessary(l, where, reg, slot, cfg)
	mov := &armir.Instr{Op: armir.OpMOV, Pred: armir.AL, Mode: where.Mode,
		Dsts: []armir.Operand{armir.NewReg(reg)},
		Srcs: []armir.Operand{armir.NewReg(cfg.StolenReg)}}
	l.InsertBefore(where, mov)

	if where.ReadsReg(cfg.StolenReg) || !where.WritesRegUnconditionally(cfg.StolenReg) {
		l.InsertBefore(where, armir.RestoreFromTLS(cfg.StolenReg, armir.TLSSlotStolenAppValue))
	}
}

// restoreTLSBaseToStolenReg is the mirror of restoreAppValueToStolenReg,
// run after instr executes: if instr may have written a new application
// value into the stolen register, that value is first saved back to its TLS
// slot, and in all cases the stolen register is restored from reg, which
// still holds the TLS base (mangle.c restore_tls_base_to_stolen_reg). The
// code is inserted before after; instr is the nearest application
// instruction preceding after.
func restoreTLSBaseToStolenReg(l *armir.InstrList, after *armir.Instr, reg armir.Reg, cfg *armir.Config) {
	instr := after.Prev()
	for instr != nil && instr.IsMeta() {
		instr = instr.Prev()
	}
	if instr != nil && instr.WritesReg(cfg.StolenReg) {
		l.InsertBefore(after, armir.SaveToTLS(cfg.StolenReg, armir.TLSSlotStolenAppValue))
	}
	mov := &armir.Instr{Op: armir.OpMOV, Pred: armir.AL, Mode: after.Mode,
		Dsts: []armir.Operand{armir.NewReg(cfg.StolenReg)},
		Srcs: []armir.Operand{armir.NewReg(reg)}}
	l.InsertBefore(after, mov)
}

// MangleStolenReg rewrites a simple (non-gpr-list, non-meta) access to the
// stolen register so that it reads and writes the application's virtualized
// value rather than the engine's TLS base. Must run after every other
// mangling step on instr that performs its own register save/restore, since
// it is the step that actually swaps what the stolen register physically
// holds (mangle.c mangle_stolen_reg).
//
// next is the instruction after instr in application order (not necessarily
// instr.Next(), since callers may have already spliced mangling in between).
// instrRemoved tells MangleStolenReg that instr itself is about to be
// deleted by the caller, so the mov-to-ldr/str peephole below must not fire
// (it would otherwise mutate an instruction we're discarding).
func MangleStolenReg(l *armir.InstrList, instr *armir.Instr, next *armir.Instr, instrRemoved bool, cfg *armir.Config) {
	if instr.IsMeta() || !instr.UsesReg(cfg.StolenReg) {
		bug("MangleStolenReg", "called on a meta or non-stolen-reg-using instruction")
	}

	if instr.Op == armir.OpMOV && len(instr.Srcs) == 1 && instr.Srcs[0].Kind == armir.OpReg && !instrRemoved {
		src, dst := instr.Srcs[0].Reg, instr.Dsts[0].Reg
		if src == dst {
			return
		}
		if src == cfg.StolenReg {
			instr.Op = armir.OpLDR
			instr.Srcs = []armir.Operand{armir.NewTLSSlot(armir.TLSSlotStolenAppValue)}
			return
		}
		if dst == cfg.StolenReg {
			instr.Op = armir.OpSTR
			instr.Dsts = []armir.Operand{armir.NewTLSSlot(armir.TLSSlotStolenAppValue)}
			return
		}
	}

	tmp, slot, shouldRestore := pickScratchReg(cfg, instr, false)
	if tmp == armir.RegNone {
		bug("MangleStolenReg", "no scratch register available for stolen-reg mangling")
	}
	restoreAppValueToStolenReg(l, instr, tmp, slot, cfg)

	restoreTLSBaseToStolenReg(l, next, tmp, cfg)
	if shouldRestore {
		l.InsertBefore(next, armir.RestoreFromTLS(tmp, slot))
	}
}

// MangleReadsThreadRegister rewrites an MRC-style thread-register read into
// a TLS load of the application's library-TLS base. When the destination is
// the stolen register itself, r0 is used as a temporary holding place for
// the stolen register's TLS base while the load overwrites the stolen
// register; the loaded value is then saved to the stolen register's
// application slot and the TLS base moved back from r0, since the simple
// mov-peephole in MangleStolenReg does not apply to a TLS load (mangle.c
// mangle_reads_thread_register).
func MangleReadsThreadRegister(l *armir.InstrList, instr *armir.Instr, next *armir.Instr, cfg *armir.Config) *armir.Instr {
	if instr.IsMeta() {
		bug("MangleReadsThreadRegister", "called on a meta instruction")
	}
	dst := instr.Dsts[0].Reg
	if dst == armir.PC {
		bug("MangleReadsThreadRegister", "thread register read may not target pc")
	}

	inIT := instr.Mode == armir.T32 && instr.Predicated()
	boundStart := armir.NewLabel()
	if inIT {
		next = removeFromITBlock(l, instr, cfg)
	}
	l.InsertBefore(instr, boundStart)

	instr.Op = armir.OpLDR
	instr.Srcs = []armir.Operand{armir.NewTLSSlot(armir.TLSSlotAux)}

	if dst == cfg.StolenReg {
		insertSaveToTLSIfNecessary(l, instr, armir.R0, armir.TLSSlotReg0, cfg)
		mov := &armir.Instr{Op: armir.OpMOV, Pred: armir.AL, Mode: instr.Mode,
			Dsts: []armir.Operand{armir.NewReg(armir.R0)},
			Srcs: []armir.Operand{armir.NewReg(cfg.StolenReg)}}
		l.InsertBefore(instr, mov)

		after := instr.Next()
		restoreTLSBaseToStolenReg(l, after, armir.R0, cfg)
		l.InsertBefore(after, armir.RestoreFromTLS(armir.R0, armir.TLSSlotReg0))
	}

	if inIT {
		reinstateITBlocks(l, boundStart, next)
	}
	return next
}
