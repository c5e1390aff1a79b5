package mangle

import "armcache/mangle/internal/armir"

// isSpillOrRestore reports whether i is one of our own TLS spill/restore
// meta instructions, regardless of which register it moves - used when
// deciding which inserted instructions the predicated-fallthrough trick
// should leave unconditional (mangle.c instr_is_reg_spill_or_restore).
func isSpillOrRestore(i *armir.Instr) bool {
	if i.Op == armir.OpSTR && len(i.Dsts) == 1 && i.Dsts[0].Kind == armir.OpTLSSlot {
		return true
	}
	if i.Op == armir.OpLDR && len(i.Srcs) == 1 && i.Srcs[0].Kind == armir.OpTLSSlot {
		return true
	}
	return false
}

// mangleAddPredicatedFallThrough is the "predicated fall-through" trick: an
// app instruction that used to conditionally reach this control transfer,
// but whose taken path is now just one of several possible mangled
// instructions, needs an *explicit* materialization of the fall-through
// target under the inverted predicate, since the mangled sequence always
// executes its instructions regardless of the original condition (mangle.c
// mangle_add_predicated_fall_through).
//
// The taken path (everything already inserted between mangleStart and
// instr's removal point) is marked with the original predicate, unless
// instr itself uses the stolen register - in which case predicating that
// interacts badly with the stolen-register swap and is skipped, matching
// the teacher's bail-out.
func mangleAddPredicatedFallThrough(l *armir.InstrList, instr *armir.Instr, next *armir.Instr, mangleStart *armir.Instr, fallthroughPC uint32, cfg *armir.Config) {
	pred := instr.Pred
	if !instr.UsesReg(cfg.StolenReg) {
		for cur := mangleStart.Next(); cur != nil && cur != next; cur = cur.Next() {
			if cur.IsApp() || !isSpillOrRestore(cur) {
				cur.Pred = pred
			}
		}
	}

	first, second := insertMovImmed(l, next, armir.PCAsJmpTgt(instr.Mode, fallthroughPC), cfg.IBLTargetReg)
	setPred(pred.Invert(), first, second)
}

// MangleDirectCall replaces a direct BL/BLX with a materialized return
// address into LR followed by an unconditional branch to the callee,
// removing the original instruction. BLX additionally routes through the
// indirect-branch-lookup protocol because ARM has no direct-immediate
// mode-switching branch (mangle.c mangle_direct_call).
func MangleDirectCall(l *armir.InstrList, instr *armir.Instr, next *armir.Instr, target uint32, retAddr armir.AppReturnAddress, cfg *armir.Config) *armir.Instr {
	inIT := instr.Mode == armir.T32 && instr.Predicated()
	boundStart := armir.NewLabel()
	if inIT {
		next = removeFromITBlock(l, instr, cfg)
	}
	l.InsertBefore(instr, boundStart)

	ret := retAddr(instr)
	first, second := insertMovImmed(l, instr, armir.PCAsJmpTgt(instr.Mode, ret), armir.LR)

	if instr.Op == armir.OpBL {
		if instr.Predicated() {
			setPred(instr.Pred, first, second)
			l.InsertBefore(instr, &armir.Instr{Op: armir.OpB, Pred: instr.Pred, Mode: instr.Mode,
				Dsts: []armir.Operand{armir.NewImm(int64(target))}})
		} else {
			l.InsertBefore(instr, &armir.Instr{Op: armir.OpB, Pred: armir.AL, Mode: instr.Mode,
				Dsts: []armir.Operand{armir.NewImm(int64(target))}})
		}
	} else { // OpBLX: target mode always switches to Thumb, routed through IBL.
		thumbTarget := armir.PCAsJmpTgt(armir.T32, target&^1)
		l.InsertBefore(instr, armir.SaveToTLS(cfg.IBLTargetReg, armir.TLSSlotIBLTarget))
		insertMovImmed(l, instr, thumbTarget, cfg.IBLTargetReg)
		if instr.Predicated() {
			mangleAddPredicatedFallThrough(l, instr, next, boundStart, retAddr(instr), cfg)
		}
	}

	l.Remove(instr)
	if inIT {
		reinstateITBlocks(l, boundStart, next)
	}
	return next
}

// MangleIndirectCall replaces a register-indirect call (BLX Rm) with a
// sequence that spills the IBL target register, moves the call target into
// it (reading the stolen register's virtualized application value if that
// is the target), materializes the return address into LR, and - if
// predicated - adds the predicated fall-through (mangle.c
// mangle_indirect_call).
func MangleIndirectCall(l *armir.InstrList, instr *armir.Instr, next *armir.Instr, retAddr armir.AppReturnAddress, cfg *armir.Config) *armir.Instr {
	inIT := instr.Mode == armir.T32 && instr.Predicated()
	boundStart := armir.NewLabel()
	if inIT {
		next = removeFromITBlock(l, instr, cfg)
	}
	l.InsertBefore(instr, armir.SaveToTLS(cfg.IBLTargetReg, armir.TLSSlotIBLTarget))
	l.InsertBefore(instr, boundStart)

	targetReg := instr.Srcs[0].Reg
	if targetReg != cfg.IBLTargetReg {
		if targetReg == cfg.StolenReg {
			l.InsertBefore(instr, armir.RestoreFromTLS(cfg.IBLTargetReg, armir.TLSSlotStolenAppValue))
		} else {
			l.InsertBefore(instr, &armir.Instr{Op: armir.OpMOV, Pred: armir.AL, Mode: instr.Mode,
				Dsts: []armir.Operand{armir.NewReg(cfg.IBLTargetReg)},
				Srcs: []armir.Operand{armir.NewReg(targetReg)}})
		}
	}

	ret := retAddr(instr)
	insertMovImmed(l, instr, armir.PCAsJmpTgt(instr.Mode, ret), armir.LR)

	if instr.Predicated() {
		mangleAddPredicatedFallThrough(l, instr, next, boundStart, retAddr(instr), cfg)
	}

	l.Remove(instr)
	if inIT {
		reinstateITBlocks(l, boundStart, next)
	}
	return next
}

// MangleReturn mangles a function return identically to any other
// register-indirect jump (mangle.c mangle_return, which just forwards to
// mangle_indirect_jump).
func MangleReturn(l *armir.InstrList, instr *armir.Instr, next *armir.Instr, fallthroughAddr armir.AppReturnAddress, cfg *armir.Config) *armir.Instr {
	return MangleIndirectJump(l, instr, next, fallthroughAddr, cfg)
}

// MangleIndirectJump rewrites any control transfer that computes its target
// at runtime (BX/BXJ, the trailing "ldr pc" a gpr-list write was split into,
// or a plain instruction whose single explicit destination is the PC) into a
// materialization of the target into the IBL target register followed by
// removal of the original instruction, so that every indirect transfer in
// the mangled stream funnels through the same indirect-branch-lookup entry
// point (mangle.c mangle_indirect_jump). TBB/TBH are handled separately by
// MangleTableBranch below since their pc-relative jump-table addressing
// needs its own target-computation sequence instead of this function's
// single-register-move cases.
func MangleIndirectJump(l *armir.InstrList, instr *armir.Instr, next *armir.Instr, fallthroughAddr armir.AppReturnAddress, cfg *armir.Config) *armir.Instr {
	removeInstr := false
	inIT := instr.Mode == armir.T32 && instr.Predicated()
	boundStart := armir.NewLabel()
	if inIT {
		next = removeFromITBlock(l, instr, cfg)
	}
	l.InsertBefore(instr, armir.SaveToTLS(cfg.IBLTargetReg, armir.TLSSlotIBLTarget))
	l.InsertBefore(instr, boundStart)

	switch {
	case len(instr.Dsts) == 1 && instr.Dsts[0].Kind == armir.OpRegList && instr.Dsts[0].List.Contains(armir.PC):
		// Simple "pop {pc}" case NormalizeLDM left untouched: swap pc for the
		// IBL target register in the list and keep the pop/ldm itself.
		instr.Dsts[0] = armir.NewRegList(instr.Dsts[0].List.Remove(armir.PC).Add(cfg.IBLTargetReg))
	case instr.Op == armir.OpBX || instr.Op == armir.OpBXJ:
		srcReg := instr.Srcs[0].Reg
		if srcReg == cfg.StolenReg {
			l.InsertBefore(instr, armir.RestoreFromTLS(cfg.IBLTargetReg, armir.TLSSlotStolenAppValue))
		} else {
			l.InsertBefore(instr, &armir.Instr{Op: armir.OpMOV, Pred: armir.AL, Mode: instr.Mode,
				Dsts: []armir.Operand{armir.NewReg(cfg.IBLTargetReg)},
				Srcs: []armir.Operand{armir.NewReg(srcReg)}})
		}
		removeInstr = true
	default:
		found := false
		for i, d := range instr.Dsts {
			if d.IsReg(armir.PC) {
				instr.Dsts[i] = armir.NewReg(cfg.IBLTargetReg)
				found = true
				break
			}
		}
		if !found {
			bug("MangleIndirectJump", "instruction writes no pc destination to mangle")
		}
		if instr.Mode == armir.T32 && (instr.Op == armir.OpMOV || instr.Op == armir.OpADD) {
			src := armir.NewReg(cfg.IBLTargetReg)
			if instr.Op == armir.OpMOV && !instr.Predicated() {
				src = instr.Srcs[0]
				removeInstr = true
			}
			orr := &armir.Instr{Op: armir.OpORR, Pred: armir.AL, Mode: instr.Mode,
				Dsts: []armir.Operand{armir.NewReg(cfg.IBLTargetReg)},
				Srcs: []armir.Operand{src, armir.NewImm(1)}}
			l.InsertAfter(instr, orr)
		}
		if instr.UsesReg(cfg.StolenReg) {
			MangleStolenReg(l, instr, instr.Next(), removeInstr, cfg)
		}
	}

	if instr.Predicated() {
		mangleAddPredicatedFallThrough(l, instr, next, boundStart, fallthroughAddr(instr), cfg)
	}
	if removeInstr {
		l.Remove(instr)
	}
	if inIT {
		reinstateITBlocks(l, boundStart, next)
	}
	return next
}

// addDecodeTimePC adds val into reg a byte at a time, so the decode-time pc
// can be folded into a table-branch target without ever needing a second
// scratch register (mangle.c instr_indexed_table_branch's pc-rematerializing
// sequence). Zero bytes are skipped, matching the way insertMovImmed already
// elides a zero movt half.
func addDecodeTimePC(l *armir.InstrList, where *armir.Instr, reg armir.Reg, val uint32, pred armir.Cond, mode armir.ISAMode) {
	for shift := uint(0); shift < 32; shift += 8 {
		b := (val >> shift) & 0xff
		if b == 0 {
			continue
		}
		l.InsertBefore(where, &armir.Instr{Op: armir.OpADD, Pred: pred, Mode: mode,
			Dsts: []armir.Operand{armir.NewReg(reg)},
			Srcs: []armir.Operand{armir.NewReg(reg), armir.NewImm(int64(b << shift))}})
	}
}

// MangleTableBranch rewrites tbb/tbh - a byte/halfword-indexed jump table
// relative to the instruction's own address - into the indirect-branch-lookup
// protocol: the table entry is loaded into the IBL target register, doubled
// to turn a halfword count into a byte displacement, and the decode-time pc
// is added on top of it so the register alone holds the final Thumb target
// (mangle.c mangle_special_registers' OP_tbb/OP_tbh handling). Unlike
// MangleIndirectJump's single-register-move cases, the target here has to be
// computed rather than just relocated, so it gets its own function.
func MangleTableBranch(l *armir.InstrList, instr *armir.Instr, next *armir.Instr, appPC uint32, fallthroughAddr armir.AppReturnAddress, cfg *armir.Config) *armir.Instr {
	inIT := instr.Mode == armir.T32 && instr.Predicated()
	boundStart := armir.NewLabel()
	if inIT {
		next = removeFromITBlock(l, instr, cfg)
	}
	l.InsertBefore(instr, armir.SaveToTLS(cfg.IBLTargetReg, armir.TLSSlotIBLTarget))
	l.InsertBefore(instr, boundStart)

	mem := instr.Srcs[0]
	base := mem.Reg
	if base == cfg.StolenReg {
		l.InsertBefore(instr, armir.RestoreFromTLS(cfg.IBLTargetReg, armir.TLSSlotStolenAppValue))
		base = cfg.IBLTargetReg
	}

	loadOp := armir.OpLDRB
	if instr.Op == armir.OpTBH {
		loadOp = armir.OpLDRH
	}
	l.InsertBefore(instr, &armir.Instr{Op: loadOp, Pred: instr.Pred, Mode: instr.Mode,
		Dsts: []armir.Operand{armir.NewReg(cfg.IBLTargetReg)},
		Srcs: []armir.Operand{armir.NewMemIndexed(base, mem.Index, mem.Shift, mem.ShiftAmt)}})

	// lsl #1: doubling a register onto itself needs no extra scratch.
	l.InsertBefore(instr, &armir.Instr{Op: armir.OpADD, Pred: instr.Pred, Mode: instr.Mode,
		Dsts: []armir.Operand{armir.NewReg(cfg.IBLTargetReg)},
		Srcs: []armir.Operand{armir.NewReg(cfg.IBLTargetReg), armir.NewReg(cfg.IBLTargetReg)}})

	addDecodeTimePC(l, instr, cfg.IBLTargetReg, appPC, instr.Pred, instr.Mode)

	// Thumb mode marker: tbb/tbh only ever target Thumb code.
	l.InsertBefore(instr, &armir.Instr{Op: armir.OpORR, Pred: instr.Pred, Mode: instr.Mode,
		Dsts: []armir.Operand{armir.NewReg(cfg.IBLTargetReg)},
		Srcs: []armir.Operand{armir.NewReg(cfg.IBLTargetReg), armir.NewImm(1)}})

	if instr.Predicated() {
		mangleAddPredicatedFallThrough(l, instr, next, boundStart, fallthroughAddr(instr), cfg)
	}

	l.Remove(instr)
	if inIT {
		reinstateITBlocks(l, boundStart, next)
	}
	return next
}

// InsertReachableCTI materializes target into scratch and branches to it via
// a mov into pc, optionally first capturing the return address into LR when
// the transfer is a call that returns (mangle.c insert_reachable_cti). Used
// by syscall.go to emit the clone-child jump to the new-thread entry point.
func InsertReachableCTI(l *armir.InstrList, where *armir.Instr, mode armir.ISAMode, target uint32, isJmp, returns bool, retAddr uint32, scratch armir.Reg) {
	if scratch == armir.RegNone {
		bug("InsertReachableCTI", "scratch register is required")
	}
	postCall := armir.NewLabel()
	insertMovImmed(l, where, armir.PCAsJmpTgt(mode, target), scratch)
	if !isJmp && returns {
		insertMovImmed(l, where, armir.PCAsJmpTgt(mode, retAddr), armir.LR)
	}
	l.InsertBefore(where, &armir.Instr{Op: armir.OpMOV, Pred: armir.AL, Mode: mode,
		Dsts: []armir.Operand{armir.NewReg(armir.PC)},
		Srcs: []armir.Operand{armir.NewReg(scratch)}})
	l.InsertBefore(where, postCall)
}
