package mangle

import "armcache/mangle/internal/armir"

// InsertPushAllRegisters builds the clean-call entry sequence: the SIMD
// register file, the condition flags plus a saved-pc slot, lr, and core
// registers r0-r12 are all pushed onto the (switched) stack in the mirror
// order that InsertPopAllRegisters expects to find them, so that the called
// C function sees a priv_mcontext-shaped frame and any register it clobbers
// can be restored afterward (mangle.c insert_push_all_registers).
//
// scratch must be an otherwise-unused register since the condition-flag
// save needs somewhere to hold CPSR's value between the MRS and the push.
// skipAflags matches clean_call_info_t.skip_save_aflags: when true, neither
// the CPSR word nor the saved-pc word is pushed, and InsertPopAllRegisters
// must be called with the same flag so the two stay balanced.
func InsertPushAllRegisters(l *armir.InstrList, where *armir.Instr, mode armir.ISAMode, scratch armir.Reg, skipAflags bool) {
	l.InsertBefore(where, vstm(mode, simdRegListHigh))
	l.InsertBefore(where, vstm(mode, simdRegListLow))

	if !skipAflags {
		l.InsertBefore(where, &armir.Instr{Op: armir.OpMRS, Pred: armir.AL, Mode: mode,
			Dsts: []armir.Operand{armir.NewReg(scratch)}})
		l.InsertBefore(where, &armir.Instr{Op: armir.OpPUSH, Pred: armir.AL, Mode: mode,
			Dsts: []armir.Operand{armir.NewRegList(armir.RegList(1) << scratch)},
			Srcs: []armir.Operand{armir.NewReg(armir.SP)}})
		l.InsertBefore(where, adjustInstr(armir.SP, -regSize, mode, armir.AL)) // reserve saved-pc slot
	}

	l.InsertBefore(where, &armir.Instr{Op: armir.OpPUSH, Pred: armir.AL, Mode: mode,
		Dsts: []armir.Operand{armir.NewReg(armir.LR)},
		Srcs: []armir.Operand{armir.NewReg(armir.SP)}})
	l.InsertBefore(where, &armir.Instr{Op: armir.OpSTM, Pred: armir.AL, Mode: mode, AddrMode: armir.DB, WriteBack: true,
		Dsts: []armir.Operand{armir.NewMemList(armir.SP)},
		Srcs: []armir.Operand{armir.NewRegList(fullGPRList())}})
}

// InsertPopAllRegisters is the exact mirror of InsertPushAllRegisters, read
// in reverse: the saved-pc slot is discarded rather than loaded back into a
// live register, since the real return path comes through IBL, not this
// frame (mangle.c insert_pop_all_registers).
//
// skipAflags lets a caller that knows the clean call cannot have touched the
// flags skip the MSR restore, matching clean_call_info_t.skip_save_aflags;
// it must agree with the value passed to InsertPushAllRegisters for the same
// frame.
func InsertPopAllRegisters(l *armir.InstrList, where *armir.Instr, mode armir.ISAMode, scratch armir.Reg, skipAflags bool) {
	l.InsertBefore(where, &armir.Instr{Op: armir.OpLDM, Pred: armir.AL, Mode: mode, AddrMode: armir.IA, WriteBack: true,
		Srcs: []armir.Operand{armir.NewMemList(armir.SP)},
		Dsts: []armir.Operand{armir.NewRegList(fullGPRList())}})
	l.InsertBefore(where, &armir.Instr{Op: armir.OpPOP, Pred: armir.AL, Mode: mode,
		Dsts: []armir.Operand{armir.NewReg(armir.LR)}, Srcs: []armir.Operand{armir.NewReg(armir.SP)}})

	if !skipAflags {
		l.InsertBefore(where, adjustInstr(armir.SP, regSize, mode, armir.AL)) // discard saved-pc slot
		l.InsertBefore(where, armir.SaveToTLS(scratch, armir.TLSSlotReg0))
		l.InsertBefore(where, &armir.Instr{Op: armir.OpPOP, Pred: armir.AL, Mode: mode,
			Dsts: []armir.Operand{armir.NewReg(scratch)}, Srcs: []armir.Operand{armir.NewReg(armir.SP)}})
		l.InsertBefore(where, &armir.Instr{Op: armir.OpMSR, Pred: armir.AL, Mode: mode,
			Srcs: []armir.Operand{armir.NewReg(scratch)}})
		l.InsertBefore(where, armir.RestoreFromTLS(scratch, armir.TLSSlotReg0))
	}

	l.InsertBefore(where, vldm(mode, simdRegListLow))
	l.InsertBefore(where, vldm(mode, simdRegListHigh))
}

const (
	simdRegListLow  = 0 // d0-d15
	simdRegListHigh = 1 // d16-d31
)

// simdBank is carried as a plain immediate operand alongside the memory
// list operand: the IR has no dedicated SIMD-register-list operand kind
// since nothing else in this mangler ever touches d0-d31 individually, so
// which bank (d0-d15 vs d16-d31) is recorded this way instead.
func vstm(mode armir.ISAMode, which int) *armir.Instr {
	return &armir.Instr{Op: armir.OpVSTMDB, Pred: armir.AL, Mode: mode, AddrMode: armir.DB, WriteBack: true,
		Dsts: []armir.Operand{armir.NewMemList(armir.SP)},
		Srcs: []armir.Operand{armir.NewImm(int64(which))}}
}

func vldm(mode armir.ISAMode, which int) *armir.Instr {
	return &armir.Instr{Op: armir.OpVLDMIA, Pred: armir.AL, Mode: mode, AddrMode: armir.IA, WriteBack: true,
		Srcs: []armir.Operand{armir.NewMemList(armir.SP), armir.NewImm(int64(which))}}
}

func fullGPRList() armir.RegList {
	var list armir.RegList
	for r := armir.R0; r <= armir.R12; r++ {
		list = list.Add(r)
	}
	return list
}

// InsertParameterPreparation moves up to cfg.NumRegParm argument operands
// (each either an immediate or a register) into the platform's argument
// registers ahead of a clean-call branch. Only the naive case - arguments
// that are plain immediates or registers not conflicting with the
// destination argument registers - is implemented; anything else is
// reported rather than silently mishandled (mangle.c
// insert_parameter_preparation).
func InsertParameterPreparation(l *armir.InstrList, where *armir.Instr, mode armir.ISAMode, args []armir.Operand, cfg *armir.Config) error {
	if len(args) > cfg.NumRegParm {
		return notImplemented("clean call with more arguments than available parameter registers")
	}
	for i, arg := range args {
		if arg.Kind == armir.OpReg && arg.Reg < armir.Reg(armir.R0)+armir.Reg(i) && !args[arg.Reg].IsReg(arg.Reg) {
			bug("InsertParameterPreparation", "argument %d reads %v after an earlier argument has overwritten it", i, arg.Reg)
		}
	}
	mark := armir.NewLabel()
	l.InsertBefore(where, mark)

	for i, arg := range args {
		dst := armir.Reg(armir.R0) + armir.Reg(i)
		switch arg.Kind {
		case armir.OpImm:
			insertMovImmed(l, where, uint32(arg.Imm), dst)
		case armir.OpReg:
			if arg.Reg == armir.SP {
				return notImplemented("clean call parameter sourced from sp")
			}
			if arg.Reg != dst {
				l.InsertBefore(where, &armir.Instr{Op: armir.OpMOV, Pred: armir.AL, Mode: mode,
					Dsts: []armir.Operand{armir.NewReg(dst)},
					Srcs: []armir.Operand{armir.NewReg(arg.Reg)}})
			}
		default:
			return notImplemented("clean call parameter operand kind other than immediate or register")
		}
	}
	return nil
}
