// Package fixture builds small, hand-assembled armir.InstrList programs used
// by package mangle's tests and by the armmangle CLI's demo subcommands.
// There is no decoder in this module (spec.md §1 scope), so every fixture
// here plays the decoder's role by hand: it builds Instr values exactly as a
// real decode step would have, translation PCs included.
package fixture

import "armcache/mangle/internal/armir"

// Program is a named, ready-to-mangle instruction list plus the metadata a
// caller needs to drive mangle.Dispatch over it without a real decoder.
type Program struct {
	Name string
	Mode armir.ISAMode
	List *armir.InstrList
	// BasePC is the translation address of the first instruction; every
	// instruction carries its own hand-assigned translation PC, and those
	// need not be contiguous.
	BasePC uint32
}

func xlate(pc uint32) *uint32 {
	v := pc
	return &v
}

func appInstr(mode armir.ISAMode, xlatePC uint32, op armir.Opcode) *armir.Instr {
	return &armir.Instr{Op: op, Pred: armir.AL, Mode: mode, Xlate: xlate(xlatePC)}
}

// WidenShortBranch returns a T32 program containing a single conditional
// short branch (OpBShort) targeting the application instruction 6 bytes
// after it; the dispatcher widens every short branch, whatever its reach,
// via mangle.ConvertShortToNear before any other mangling runs.
func WidenShortBranch() *Program {
	l := armir.NewInstrList()
	target := appInstr(armir.T32, 0x1000, armir.OpOther)
	br := appInstr(armir.T32, 0x1000-6, armir.OpBShort)
	br.Pred = armir.EQ
	br.Dsts = []armir.Operand{armir.NewInstrRef(target)}
	l.Append(br)
	l.Append(target)
	return &Program{Name: "widen-short-branch", Mode: armir.T32, List: l, BasePC: 0x1000 - 6}
}

// WidenCBZ returns a T32 program with an app CBNZ whose target is out of the
// 7-bit forward-only short-branch range, exercising the CBZ/CBNZ-specific
// widening path in mangle.ConvertShortToNear: since this is an app
// instruction it is rewritten in place as a 6-byte raw-bytes encoding rather
// than split into the three-instruction negate-and-jump-around metacode uses.
func WidenCBZ() *Program {
	l := armir.NewInstrList()
	target := appInstr(armir.T32, 0x2000, armir.OpOther)
	cbnz := appInstr(armir.T32, 0x2000-200, armir.OpCBNZ)
	cbnz.Srcs = []armir.Operand{armir.NewReg(armir.R0)}
	cbnz.Dsts = []armir.Operand{armir.NewInstrRef(target)}
	l.Append(cbnz)
	l.Append(target)
	return &Program{Name: "widen-cbz", Mode: armir.T32, List: l, BasePC: 0x2000 - 200}
}

// DirectCall returns a T32 program containing a single "bl #target"
// instruction, exercising mangle.MangleDirectCall's return-address
// materialization and callee branch.
func DirectCall() *Program {
	l := armir.NewInstrList()
	bl := appInstr(armir.T32, 0x3000, armir.OpBL)
	bl.Dsts = []armir.Operand{armir.NewImm(0x4000)}
	following := appInstr(armir.T32, 0x3004, armir.OpOther)
	l.Append(bl)
	l.Append(following)
	return &Program{Name: "direct-call", Mode: armir.T32, List: l, BasePC: 0x3000}
}

// PopR0ToR3AndPC returns an A32 program with "pop {r0-r3, pc}", exercising
// mangle.NormalizeLDM's writeback/write-pc case and the indirect-jump
// mangling of the trailing ldr-pc it produces.
func PopR0ToR3AndPC() *Program {
	l := armir.NewInstrList()
	pop := appInstr(armir.A32, 0x5000, armir.OpLDM)
	pop.AddrMode = armir.IA
	pop.WriteBack = true
	list := armir.RegList(0).Add(armir.R0).Add(armir.R1).Add(armir.R2).Add(armir.R3).Add(armir.PC)
	pop.Dsts = []armir.Operand{armir.NewRegList(list)}
	pop.Srcs = []armir.Operand{armir.NewMemList(armir.SP)}
	l.Append(pop)
	return &Program{Name: "pop-r0-r3-pc", Mode: armir.A32, List: l, BasePC: 0x5000}
}

// PCRelativeLoad returns an A32 program with "ldr r0, [pc, #40]",
// exercising mangle.ManglePCAsBase's relocation of a PC-based memory
// operand.
func PCRelativeLoad() *Program {
	l := armir.NewInstrList()
	ldr := appInstr(armir.A32, 0x6000, armir.OpLDR)
	ldr.Dsts = []armir.Operand{armir.NewReg(armir.R0)}
	ldr.Srcs = []armir.Operand{armir.NewMemBase(armir.PC, 40, false)}
	following := appInstr(armir.A32, 0x6004, armir.OpOther)
	l.Append(ldr)
	l.Append(following)
	return &Program{Name: "pc-relative-load", Mode: armir.A32, List: l, BasePC: 0x6000}
}

// MovStolenReg returns a T32 program with "mov r0, r10" where r10 is the
// stolen register, exercising mangle.MangleStolenReg's mov-to-ldr peephole.
func MovStolenReg(stolen armir.Reg) *Program {
	l := armir.NewInstrList()
	mov := appInstr(armir.T32, 0x7000, armir.OpMOV)
	mov.Dsts = []armir.Operand{armir.NewReg(armir.R0)}
	mov.Srcs = []armir.Operand{armir.NewReg(stolen)}
	following := appInstr(armir.T32, 0x7002, armir.OpOther)
	l.Append(mov)
	l.Append(following)
	return &Program{Name: "mov-stolen-reg", Mode: armir.T32, List: l, BasePC: 0x7000}
}

// CloneSyscall returns an A32 program with a bare SVC instruction,
// exercising mangle.MangleSyscall (mangle.Dispatch does not call
// mangle.MangleInsertCloneCode).
func CloneSyscall() *Program {
	l := armir.NewInstrList()
	svc := appInstr(armir.A32, 0x8000, armir.OpSVC)
	following := appInstr(armir.A32, 0x8004, armir.OpOther)
	l.Append(svc)
	l.Append(following)
	return &Program{Name: "clone-syscall", Mode: armir.A32, List: l, BasePC: 0x8000}
}

// All returns every fixture program, in a stable order, for the CLI's
// "mangle" subcommand and for table-driven tests that want full coverage
// without listing each constructor by hand.
func All() []*Program {
	return []*Program{
		WidenShortBranch(),
		WidenCBZ(),
		DirectCall(),
		PopR0ToR3AndPC(),
		PCRelativeLoad(),
		MovStolenReg(armir.R10),
		CloneSyscall(),
	}
}
