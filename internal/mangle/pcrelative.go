package mangle

import "armcache/mangle/internal/armir"

// ManglePCAsBase rewrites a PC-relative memory operand (a load or store
// whose base register is the architectural PC) into one based on a scratch
// register materialized with the application's PC value for instr, since
// the code-cache copy of instr does not sit at the same address as the
// application's original (mangle.c mangle_rel_addr).
//
// appPC is the value the application's own PC read would have produced for
// instr (ISA mode's read bias already applied by the caller's Decoder).
func ManglePCAsBase(l *armir.InstrList, instr *armir.Instr, next *armir.Instr, appPC uint32, cfg *armir.Config) *armir.Instr {
	reg, slot, shouldRestore := pickScratchReg(cfg, instr, true)
	if reg == armir.RegNone {
		bug("ManglePCAsBase", "no scratch register available for pc-relative relocation")
	}

	inIT := instr.Mode == armir.T32 && instr.Predicated()
	boundStart := armir.NewLabel()
	if inIT {
		next = removeFromITBlock(l, instr, cfg)
	}
	l.InsertBefore(instr, boundStart)

	memOperands := instr.Srcs
	store := len(instr.Dsts) > 0 && instr.Dsts[0].Kind == armir.OpMem
	if store {
		memOperands = instr.Dsts
	}
	if len(memOperands) == 0 || memOperands[0].Kind != armir.OpMem || memOperands[0].Reg != armir.PC {
		bug("ManglePCAsBase", "instruction has no pc-based memory operand")
	}

	mem := memOperands[0]
	if instr.Mode == armir.T32 && mem.Negated && mem.Disp >= 256 {
		// The non-pc-based form of this addressing mode has no 12-bit
		// negated immediate, so the subtraction has to be folded into the
		// relocated base instead of carried on the operand.
		appPC -= uint32(mem.Disp)
		mem = mem.WithDisp(0)
		mem.Negated = false
	}

	insertSaveToTLSIfNecessary(l, instr, reg, slot, cfg)
	insertMovImmed(l, instr, appPC, reg)

	if store {
		instr.Dsts[0] = mem.WithBase(reg)
	} else {
		instr.Srcs[0] = mem.WithBase(reg)
	}

	if shouldRestore {
		l.InsertBefore(next, armir.RestoreFromTLS(reg, slot))
	}

	if inIT {
		reinstateITBlocks(l, boundStart, next)
	}
	return next
}

// ManglePCRead rewrites a direct read of the PC register as a source operand
// (outside of a memory base, which ManglePCAsBase already handles, and
// outside of a register list, which ldmstm.go handles) into a reference to a
// scratch register materialized with the application's PC value (mangle.c
// mangle_pc_read).
func ManglePCRead(l *armir.InstrList, instr *armir.Instr, next *armir.Instr, appPC uint32, cfg *armir.Config) {
	if instr.IsMeta() || !instr.ReadsReg(armir.PC) {
		bug("ManglePCRead", "called on a meta or non-pc-reading instruction")
	}
	reg, slot, shouldRestore := pickScratchReg(cfg, instr, true)
	if reg == armir.RegNone {
		bug("ManglePCRead", "no scratch register available for pc read relocation")
	}

	insertSaveToTLSIfNecessary(l, instr, reg, slot, cfg)
	insertMovImmed(l, instr, appPC, reg)

	for i := range instr.Srcs {
		if instr.Srcs[i].IsReg(armir.PC) {
			instr.Srcs[i] = armir.NewReg(reg)
		}
	}

	if shouldRestore {
		l.InsertBefore(next, armir.RestoreFromTLS(reg, slot))
	}
}
