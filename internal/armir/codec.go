package armir

// Decoder and Encoder are the out-of-scope decode/encode collaborators of
// spec.md §1/§6. This module never implements their bodies — decoding raw
// bytes to the IR and encoding the IR back to bytes belong to the engine's
// decode/encode layer, not to the mangler. They exist here only as the
// narrow interfaces the mangler calls through, grounded on spec.md §6's
// "Decoder helpers: decode_cur_pc, decode_raw_jmp_target,
// encode_raw_jmp" and modeled on the teacher's `asm.Node`-style thin
// encoder-backend interface (internal/asm/golang_asm).
type Decoder interface {
	// CurPC returns the architectural PC-read value for instr at the given
	// translation PC, applying the ISA's read bias (spec.md §4.4 step 1).
	CurPC(mode ISAMode, xlatePC uint32) uint32
	// RawJmpTarget decodes the target embedded in a previously widened
	// short-branch's raw bytes (spec.md §4.6 `decode_raw_jmp_target`).
	RawJmpTarget(mode ISAMode, raw []byte) uint32
}

// Encoder produces the raw bytes of a 4-byte unconditional branch, used when
// widening a short branch (spec.md §4.6 `encode_raw_jmp`).
type Encoder interface {
	RawJmp(mode ISAMode, target uint32, pc uint32) [4]byte
}

// AppReturnAddress is the "get app return address" helper of spec.md §6: the
// PC immediately after instr in the original application stream, with the
// T32/A32 mode-marker bit set via PCAsJmpTgt. The mangler takes this as a
// plain function value rather than an interface method, since it needs
// nothing but instr's own translation PC and size - which only the
// out-of-scope decoder can supply (instruction length depends on T32's
// mixed 16/32-bit encoding).
type AppReturnAddress func(instr *Instr) uint32

// PCAsJmpTgt sets the T32 mode-marker bit (bit 0) on a branch target
// computed for T32, and leaves an A32 target unchanged (spec.md §6
// `PC_AS_JMP_TGT`).
func PCAsJmpTgt(mode ISAMode, pc uint32) uint32 {
	if mode == T32 {
		return pc | 1
	}
	return pc
}
