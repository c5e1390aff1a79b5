package mangle

import "armcache/mangle/internal/armir"

const regSize = 4

// ldmLayout is one row of the sixteen-entry table (four addressing modes by
// writeback by whether pc is in the list) that NormalizeLDM consults to
// decide how much to adjust the base register before and after splitting pc
// (and, if needed, a scratch register) out of the register list (mangle.c
// normalize_ldm_instr).
type ldmLayout struct {
	adjustPre  int32
	adjustPost int32
	ldrPCDisp  int32
	usePopPC   bool
}

func computeLDMLayout(mode armir.AddrMode, writeback, writePC bool, memsz int32, base armir.Reg) ldmLayout {
	switch mode {
	case armir.IA:
		if !writePC {
			return ldmLayout{}
		}
		if writeback {
			if base == armir.SP {
				return ldmLayout{usePopPC: true}
			}
			return ldmLayout{adjustPost: regSize, ldrPCDisp: -regSize}
		}
		return ldmLayout{ldrPCDisp: memsz - regSize}
	case armir.DA:
		pre := -memsz + regSize
		if !writePC {
			if writeback {
				return ldmLayout{adjustPre: pre, adjustPost: -memsz - regSize}
			}
			return ldmLayout{adjustPre: pre, adjustPost: -pre}
		}
		if writeback {
			return ldmLayout{adjustPre: pre, adjustPost: -memsz, ldrPCDisp: memsz + regSize}
		}
		return ldmLayout{adjustPre: pre, adjustPost: -pre}
	case armir.DB:
		pre := -memsz
		if !writePC {
			if writeback {
				return ldmLayout{adjustPre: pre, adjustPost: pre}
			}
			return ldmLayout{adjustPre: pre, adjustPost: -pre}
		}
		if writeback {
			return ldmLayout{adjustPre: pre, adjustPost: -(memsz - regSize), ldrPCDisp: memsz - regSize}
		}
		return ldmLayout{adjustPre: pre, adjustPost: -pre, ldrPCDisp: -regSize}
	case armir.IB:
		pre := int32(regSize)
		if !writePC {
			if writeback {
				return ldmLayout{adjustPre: pre, adjustPost: -regSize}
			}
			return ldmLayout{adjustPre: pre, adjustPost: -pre}
		}
		if writeback {
			return ldmLayout{adjustPre: pre}
		}
		return ldmLayout{adjustPre: pre, adjustPost: -pre, ldrPCDisp: memsz}
	default:
		bug("computeLDMLayout", "unsupported LDM addressing mode %v", mode)
		return ldmLayout{}
	}
}

// pickPeelReg chooses the register NormalizeLDM sacrifices to a standalone
// ldr when the stolen register needs a scratch that pickScratchReg could not
// find elsewhere: the lowest-numbered member of list, skipping base (an "ldm
// r0,{r0-rx,...}"-shaped instruction must not peel into the very register
// the rest of the load still needs to read) and pc (handled separately).
func pickPeelReg(list armir.RegList, base armir.Reg) armir.Reg {
	for r := armir.R0; r <= armir.R12; r++ {
		if list.Contains(r) && r != base {
			return r
		}
	}
	return armir.RegNone
}

func adjustInstr(base armir.Reg, delta int32, mode armir.ISAMode, pred armir.Cond) *armir.Instr {
	op := armir.OpADD
	amt := delta
	if delta < 0 {
		op = armir.OpSUB
		amt = -delta
	}
	return &armir.Instr{Op: op, Pred: pred, Mode: mode,
		Dsts: []armir.Operand{armir.NewReg(base)},
		Srcs: []armir.Operand{armir.NewReg(base), armir.NewImm(int64(amt))}}
}

// NormalizeLDM splits an LDM that writes the PC into a sequence: an optional
// base pre-adjust, an optional single-register peel (to free a scratch
// register when the stolen register appears in the list and none of r0-r3
// is otherwise free), the narrowed LDM itself, an optional base post-adjust,
// and a final "ldr pc, [base, disp]" (or "pop {pc}" when popping off the
// stack) left for the caller to hand to MangleIndirectJump (mangle.c
// normalize_ldm_instr). Returns the trailing pc-materializing instruction
// that the caller must mangle as an indirect branch.
func NormalizeLDM(l *armir.InstrList, instr *armir.Instr, cfg *armir.Config) *armir.Instr {
	list := instr.Dsts[0].List
	if list.Count() == 1 {
		// "pop {pc}": nothing to normalize, the caller mangles it directly.
		return instr
	}

	base := instr.Srcs[0].Reg
	writeback := instr.WriteBack
	writePC := list.Contains(armir.PC)
	memsz := int32(regSize * list.Count())
	pred := instr.Pred
	mode := instr.Mode

	layout := computeLDMLayout(instr.AddrMode, writeback, writePC, memsz, base)

	peelReg := armir.RegNone
	if list.Contains(cfg.StolenReg) {
		if reg, _, _ := pickScratchReg(cfg, instr, false); reg == armir.RegNone {
			layout.adjustPre += regSize
			if !list.Contains(base) {
				layout.adjustPost -= regSize
			}
			peelReg = pickPeelReg(list, base)
			list = list.Remove(peelReg)
			cfg.Stats.IncLDMPeeledRegisters()
		}
	}

	if layout.adjustPre != 0 {
		l.InsertBefore(instr, adjustInstr(base, layout.adjustPre, mode, pred))
	}

	if peelReg != armir.RegNone {
		// Valid only once base has already been repositioned above: the
		// peeled word sits at [base, -4] in the post-adjust addressing.
		peel := &armir.Instr{Op: armir.OpLDR, Pred: pred, Mode: mode,
			Dsts: []armir.Operand{armir.NewReg(peelReg)},
			Srcs: []armir.Operand{armir.NewMemBase(base, -regSize, false)}}
		l.InsertBefore(instr, peel)
	}

	if writePC {
		list = list.Remove(armir.PC)
	}
	instr.Dsts[0] = armir.NewRegList(list)

	if list.Count() == 1 {
		solo, _ := list.Lowest()
		instr.Op = armir.OpLDR
		instr.Dsts = []armir.Operand{armir.NewReg(solo)}
		instr.Srcs = []armir.Operand{armir.NewMemBase(base, 0, false)}
	}

	var trailer *armir.Instr
	if layout.usePopPC {
		trailer = &armir.Instr{Op: armir.OpPOP, Pred: pred, Mode: mode,
			Dsts: []armir.Operand{armir.NewRegList(armir.RegList(0).Add(armir.PC))},
			Srcs: []armir.Operand{armir.NewReg(armir.SP)}}
	} else {
		trailer = &armir.Instr{Op: armir.OpLDR, Pred: pred, Mode: mode,
			Dsts: []armir.Operand{armir.NewReg(armir.PC)},
			Srcs: []armir.Operand{armir.NewMemBase(base, layout.ldrPCDisp, layout.ldrPCDisp < 0)}}
	}
	l.InsertAfter(instr, trailer)

	if layout.adjustPost != 0 {
		l.InsertAfter(instr, adjustInstr(base, layout.adjustPost, mode, pred))
	}

	return trailer
}

// stmStoreOffset computes the byte offset (from fixBase, the register the
// store's base ends up holding once the instruction itself has executed) of
// the memory slot that reglist position pos (0-indexed, in increasing
// register order) was stored to, for each of the four STM addressing modes,
// mirroring computeLDMLayout's per-mode derivation (mangle.c
// store_reg_to_memlist). n is the reglist's total register count.
//
// Without writeback, fixBase still holds the address the store itself used,
// so the offset is simply each mode's per-slot stride from that base. With
// writeback, fixBase has already moved by the whole transfer's span, so the
// offset is taken relative to that moved value instead.
func stmStoreOffset(mode armir.AddrMode, writeback bool, pos, n int) int32 {
	p := int32(pos)
	count := int32(n)
	switch mode {
	case armir.IA:
		if !writeback {
			return p * regSize
		}
		return (p - count) * regSize
	case armir.IB:
		if !writeback {
			return (p + 1) * regSize
		}
		return (p + 1 - count) * regSize
	case armir.DA:
		if !writeback {
			return -p * regSize
		}
		return (count - p) * regSize
	case armir.DB:
		if !writeback {
			return -(p + 1) * regSize
		}
		return (count - p - 1) * regSize
	default:
		bug("stmStoreOffset", "unsupported STM addressing mode %v", mode)
		return 0
	}
}

// MangleGPRListRead fixes up an STM whose source register list contains the
// stolen register or the PC: the stored word must carry the application's
// value, not the engine's live register content, so the store executes
// normally and the affected memory slot is then overwritten with the
// correct application value (mangle.c mangle_gpr_list_read /
// store_reg_to_memlist). next is the instruction immediately following instr
// in application order.
func MangleGPRListRead(l *armir.InstrList, instr *armir.Instr, next *armir.Instr, cfg *armir.Config) {
	base := instr.Srcs[0].Reg
	stolenIsBase := base == cfg.StolenReg

	if stolenIsBase {
		restoreAppValueToStolenReg(l, instr, armir.R0, armir.TLSSlotReg0, cfg)
		restoreTLSBaseToStolenReg(l, instr.Next(), armir.R0, cfg)
	}

	fixBase := base
	fixSlot := armir.TLSSlotStolenAppValue
	if stolenIsBase {
		fixBase = armir.R0
		fixSlot = armir.TLSSlotReg0
		l.InsertBefore(next, armir.RestoreFromTLS(armir.R0, armir.TLSSlotStolenAppValue))
	}

	list := instr.Srcs[1].List
	needsFix := list.Contains(cfg.StolenReg) || list.Contains(armir.PC)
	if !needsFix {
		return
	}

	n := list.Count()
	idx := 0
	list.Each(func(r armir.Reg) {
		pos := idx
		idx++
		if r != cfg.StolenReg && r != armir.PC {
			return
		}
		if r == cfg.StolenReg && stolenIsBase {
			return // already the base; no separate fixup slot needed
		}
		var val armir.Reg
		if r == armir.PC {
			l.InsertBefore(next, armir.RestoreFromTLS(armir.R1, armir.TLSSlotReg1))
			val = armir.R1
		} else {
			l.InsertBefore(next, armir.RestoreFromTLS(armir.R1, fixSlot))
			val = armir.R1
		}
		disp := stmStoreOffset(instr.AddrMode, instr.WriteBack, pos, n)
		store := &armir.Instr{Op: armir.OpSTR, Pred: instr.Pred, Mode: instr.Mode,
			Dsts:  []armir.Operand{armir.NewMemBase(fixBase, disp, disp < 0)},
			Srcs:  []armir.Operand{armir.NewReg(val)},
			Xlate: instr.Xlate}
		l.InsertBefore(next, store)
	})

	if stolenIsBase {
		l.InsertBefore(next, armir.RestoreFromTLS(armir.R0, armir.TLSSlotReg0))
	}
}
