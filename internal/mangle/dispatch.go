package mangle

import "armcache/mangle/internal/armir"

// Collaborators bundles the out-of-scope decode/encode/address-generation
// hooks the mangler needs but never implements itself (spec.md §6): how to
// compute an app-visible PC read for an instruction at its current
// translation address, how to compute the app return address immediately
// after a call or a predicated control transfer, and how to (re-)encode a
// widened short branch.
type Collaborators struct {
	Decoder armir.Decoder
	Encoder armir.Encoder
	// CurAppPC returns instr's architectural PC-read value (the Decoder's
	// CurPC already biased by ISA mode).
	CurAppPC func(instr *armir.Instr) uint32
	// ReturnAddr returns the app address execution resumes at immediately
	// after instr (spec.md §6 get_call_return_address / the fall-through
	// PC used by the predicated-fallthrough trick).
	ReturnAddr armir.AppReturnAddress
}

// Dispatch mangles every application instruction in l in place, in a single
// forward pass, applying PC-relative relocation, stolen-register
// virtualization, register-list normalization, and control-transfer
// rewriting to each instruction as it is reached (mirrors the structure of
// DynamoRIO's per-bb mangle() driver loop, which walks once and fixes up
// each instr). Control transfers and syscalls are recognized first and
// handled on their own, since those are the steps that can delete instr or
// redirect the walk's next pointer; any other instruction goes through
// PC-relative addressing, then register lists, then thread-register reads,
// then plain PC reads, then the stolen register.
func Dispatch(l *armir.InstrList, cfg *armir.Config, col Collaborators) error {
	for instr := l.First(); instr != nil; {
		next := instr.Next()
		if instr.IsMeta() {
			instr = next
			continue
		}

		var err error
		next, err = dispatchOne(l, instr, next, cfg, col)
		if err != nil {
			return err
		}
		instr = next
	}
	return nil
}

func dispatchOne(l *armir.InstrList, instr, next *armir.Instr, cfg *armir.Config, col Collaborators) (*armir.Instr, error) {
	switch instr.Op {
	case armir.OpBL, armir.OpBLX:
		target := uint32(instr.Dsts[0].Imm)
		return MangleDirectCall(l, instr, next, target, col.ReturnAddr, cfg), nil

	case armir.OpBLXReg:
		return MangleIndirectCall(l, instr, next, col.ReturnAddr, cfg), nil

	case armir.OpBX, armir.OpBXJ:
		return MangleIndirectJump(l, instr, next, col.ReturnAddr, cfg), nil

	case armir.OpBShort, armir.OpCBZ, armir.OpCBNZ:
		// Conservatively widened unconditionally: once copied into the code
		// cache an instruction's neighbors are no longer the ones it was
		// encoded against, so a short-reaching branch can never be trusted
		// to still reach its target.
		var appPC uint32
		if instr.IsApp() {
			appPC = col.CurAppPC(instr)
		}
		widened := ConvertShortToNear(l, instr, col.Encoder, appPC)
		return widened.Next(), nil

	case armir.OpTBB, armir.OpTBH:
		appPC := col.CurAppPC(instr)
		return MangleTableBranch(l, instr, next, appPC, col.ReturnAddr, cfg), nil

	case armir.OpSVC:
		MangleSyscall(l, instr, next, cfg)
		return next, nil
	}

	if readsMemPC(instr) {
		appPC := col.CurAppPC(instr)
		next = ManglePCAsBase(l, instr, next, appPC, cfg)
	}

	if (instr.Op == armir.OpLDM || instr.Op == armir.OpPOP) && instr.WritesReg(armir.PC) {
		trailer := NormalizeLDM(l, instr, cfg)
		return MangleIndirectJump(l, trailer, next, col.ReturnAddr, cfg), nil
	}

	if instr.Op == armir.OpSTM && (instr.ReadsReg(cfg.StolenReg) || instr.ReadsReg(armir.PC)) {
		MangleGPRListRead(l, instr, next, cfg)
	}

	if instr.Op == armir.OpMRC {
		return MangleReadsThreadRegister(l, instr, next, cfg), nil
	}

	if instr.ReadsReg(armir.PC) && !readsMemPC(instr) {
		appPC := col.CurAppPC(instr)
		ManglePCRead(l, instr, next, appPC, cfg)
	}

	if instr.UsesReg(cfg.StolenReg) {
		MangleStolenReg(l, instr, next, false, cfg)
	}

	return next, nil
}

func readsMemPC(instr *armir.Instr) bool {
	operands := instr.Srcs
	if len(instr.Dsts) > 0 && instr.Dsts[0].Kind == armir.OpMem {
		operands = instr.Dsts
	}
	return len(operands) > 0 && operands[0].Kind == armir.OpMem && operands[0].Reg == armir.PC
}
