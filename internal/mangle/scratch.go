package mangle

import "armcache/mangle/internal/armir"

// findPriorScratchRegRestore walks backward over our own mangling labels
// looking for a just-inserted restore-from-TLS of some r0-r3, so that a
// later spill of that same register can be elided (spec i#1662 / mangle.c
// find_prior_scratch_reg_restore). Returns the restore instruction and the
// register it restored, or (nil, RegNone) if none applies.
func findPriorScratchRegRestore(instr *armir.Instr) (*armir.Instr, armir.Reg) {
	prev := instr.Prev()
	for prev != nil && prev.Op == armir.OpLabel && prev.IsMeta() {
		prev = prev.Prev()
	}
	if prev == nil {
		return nil, armir.RegNone
	}
	if reg, ok := armir.TLSRestoreTarget(prev); ok && reg.IsScratchCandidate() {
		return prev, reg
	}
	return nil, armir.RegNone
}

// insertSaveToTLSIfNecessary spills reg to slot before where, unless the
// immediately preceding instruction is our own restore of reg from the same
// slot - in which case the restore/respill pair cancels and is
// removed instead (mangle.c insert_save_to_tls_if_necessary).
func insertSaveToTLSIfNecessary(l *armir.InstrList, where *armir.Instr, reg armir.Reg, slot armir.TLSSlot, cfg *armir.Config) {
	prev, priorReg := findPriorScratchRegRestore(where)
	if prev != nil && priorReg == reg && prev.Srcs[0].TLSSlotID() == slot {
		l.Remove(prev)
		cfg.Stats.IncNonMBRRespillAvoided()
		return
	}
	l.InsertBefore(where, armir.SaveToTLS(reg, slot))
}

// pickScratchReg is the single-instruction-window scratch register picker:
// it considers only r0-r3, so callers that need to access more than four
// GPRs (gpr-list instructions) must split those up themselves first
// (mangle.c pick_scratch_reg).
//
// deadRegOK allows picking a register that is merely unread by instr (so it
// can be safely clobbered without saving it at all) rather than requiring a
// register that instr does not touch in any way; this is only safe when the
// scratch use does not have to survive across instr's own execution.
//
// Returns RegNone if every r0-r3 is unusable, which for everything other
// than a reglist instruction is a caller bug: at most four other operands
// can be live at once outside of a reglist.
func pickScratchReg(cfg *armir.Config, instr *armir.Instr, deadRegOK bool) (reg armir.Reg, slot armir.TLSSlot, shouldRestore bool) {
	shouldRestore = true
	avoidForCTI := func(r armir.Reg) bool {
		return instr.IsBranch() && r == cfg.IBLTargetReg
	}

	reg = armir.RegNone
	if prev, priorReg := findPriorScratchRegRestore(instr); prev != nil {
		if !instr.UsesReg(priorReg) && !avoidForCTI(priorReg) {
			reg = priorReg
		}
	}

	if reg == armir.RegNone {
		for r := armir.R0; r <= armir.R3; r++ {
			if !instr.UsesReg(r) && !avoidForCTI(r) {
				reg = r
				break
			}
		}
	}

	if reg == armir.RegNone && deadRegOK {
		for r := armir.R0; r <= armir.R3; r++ {
			if !instr.ReadsReg(r) && !avoidForCTI(r) {
				reg = r
				shouldRestore = false
				break
			}
		}
	}

	if reg == armir.RegNone || reg > armir.R3 {
		return armir.RegNone, 0, false
	}
	return reg, armir.ScratchSlot(reg), shouldRestore
}
