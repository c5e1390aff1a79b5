package mangle

import "armcache/mangle/internal/armir"

// MangleSyscall wraps a non-predicated SVC so that r0 - the first syscall
// argument and the return value - can be restored to its original
// application value if the syscall needs to be restarted after a signal
// (mangle.c mangle_syscall_arch).
//
// If the stolen register is r8 or r9 - caller-saved under the standard ARM
// EABI, and so liable to be clobbered by the kernel honoring its own
// calling convention - its TLS base is swapped through r10 around the call.
// r10 and r11 are callee-saved, so when the stolen register is one of those
// two no swap is needed at all: the kernel must preserve it on its own.
func MangleSyscall(l *armir.InstrList, instr *armir.Instr, next *armir.Instr, cfg *armir.Config) {
	if instr.Predicated() {
		bug("MangleSyscall", "inlined conditional system call mangling is not supported")
	}

	needsSwap := cfg.StolenReg == armir.R8 || cfg.StolenReg == armir.R9
	if needsSwap {
		l.InsertBefore(instr, armir.SaveToTLS(armir.R10, armir.TLSSlotAux))
		l.InsertBefore(instr, &armir.Instr{Op: armir.OpMOV, Pred: armir.AL, Mode: instr.Mode,
			Dsts: []armir.Operand{armir.NewReg(armir.R10)},
			Srcs: []armir.Operand{armir.NewReg(cfg.StolenReg)}})
	}

	l.InsertBefore(instr, armir.SaveToTLS(armir.R0, armir.TLSSlotReg0))

	if needsSwap {
		l.InsertBefore(next, &armir.Instr{Op: armir.OpMOV, Pred: armir.AL, Mode: instr.Mode,
			Dsts: []armir.Operand{armir.NewReg(cfg.StolenReg)},
			Srcs: []armir.Operand{armir.NewReg(armir.R10)}})
		l.InsertBefore(next, armir.RestoreFromTLS(armir.R10, armir.TLSSlotAux))
	}
}

// MangleInsertCloneCode inserts the parent/child fork-off sequence
// immediately after a clone syscall: the child (r0 == 0) falls through to
// jump to the engine's new-thread entry point, while the parent (r0 != 0)
// branches past that jump straight into ordinary post-syscall handling
// (mangle.c mangle_insert_clone_code):
//
//	svc 0
//	cbnz r0, parent
//	<reachable jump to newThreadEntry, clobbering scratch>
//
// parent:
//
//	<post system call, etc.>
func MangleInsertCloneCode(l *armir.InstrList, instr *armir.Instr, newThreadEntry uint32, scratch armir.Reg) {
	in := instr.Next()
	if in == nil {
		bug("MangleInsertCloneCode", "clone syscall has no following instruction")
	}
	parent := armir.NewLabel()
	l.InsertBefore(in, &armir.Instr{Op: armir.OpCBNZ, Pred: armir.AL, Mode: instr.Mode,
		Dsts: []armir.Operand{armir.NewInstrRef(parent)},
		Srcs: []armir.Operand{armir.NewReg(armir.R0)}})
	InsertReachableCTI(l, in, instr.Mode, newThreadEntry, true, false, 0, scratch)
	in.Prev().SetMeta()
	l.InsertBefore(in, parent)
}
