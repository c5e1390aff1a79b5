package mangle

import "armcache/mangle/internal/armir"

// ConvertShortToNear widens a short-reach branch (Thumb's narrow
// conditional B, or a CBZ/CBNZ whose 7-bit forward-only range cannot
// reach the mangled code cache) so it can target the destination
// instruction from anywhere in the code cache, preserving predicate and
// condition-negation semantics (mangle.c convert_to_near_rel_arch).
// OpBShort simply becomes an OpB under the same predicate. CBZ/CBNZ has no
// direct "wide" encoding, so meta (engine-inserted) uses are rewritten as
// their negation around an inserted label (CBZ r, L -> CBNZ r, skip; B L;
// skip:) - three instructions, since nothing depends on the original
// occupying a single translation-table slot. App uses must keep that 1:1
// slot, so instead they are rewritten in place into a single instruction
// carrying a 6-byte raw encoding (appPC is instr's own architectural PC-read
// value, needed only for that raw-bytes placeholder and unused otherwise).
func ConvertShortToNear(l *armir.InstrList, instr *armir.Instr, enc armir.Encoder, appPC uint32) *armir.Instr {
	switch instr.Op {
	case armir.OpBShort:
		instr.Op = armir.OpB
		return instr
	case armir.OpCBZ, armir.OpCBNZ:
		if instr.IsApp() {
			return convertAppShortCBToRawBytes(instr, enc, appPC)
		}
		target := instr.Dsts[0].Target
		skip := armir.NewLabel()
		inverted := &armir.Instr{Op: invertCBOp(instr.Op), Pred: armir.AL, Mode: instr.Mode,
			Srcs: instr.Srcs,
			Dsts: []armir.Operand{armir.NewInstrRef(skip)}}
		wide := &armir.Instr{Op: armir.OpB, Pred: armir.AL, Mode: instr.Mode,
			Dsts: []armir.Operand{armir.NewInstrRef(target)}}
		l.InsertBefore(instr, inverted)
		l.InsertBefore(instr, wide)
		l.InsertBefore(instr, skip)
		l.Remove(instr)
		return wide
	default:
		bug("ConvertShortToNear", "opcode %v is not a short-reach branch", instr.Op)
		return nil
	}
}

// convertAppShortCBToRawBytes rewrites an application cbz/cbnz in place into
// a single 6-byte raw-bytes instruction instead of metacode's three-
// instruction split, so the app instruction keeps exactly one translation-
// table slot: 2 bytes of the inverted compare-and-branch skipping the 4
// bytes that follow, then a wide b placeholder encoding targeting its own
// address. RemangleShortRewrite re-encodes that b at a new pc but keeps the
// target already held in the raw bytes, so it does not replace the
// placeholder target with the real one. The logical Srcs/Dsts operands are left exactly
// as they were so later passes can still query the real compared register
// and branch target; only Raw governs what actually executes.
func convertAppShortCBToRawBytes(instr *armir.Instr, enc armir.Encoder, appPC uint32) *armir.Instr {
	const wideBOffset = 2
	half := encodeNarrowCB(invertCBOp(instr.Op), instr.Srcs[0].Reg, wideBOffset)
	wideBPC := appPC + wideBOffset
	placeholder := enc.RawJmp(instr.Mode, wideBPC, wideBPC)

	raw := make([]byte, 6)
	raw[0] = byte(half)
	raw[1] = byte(half >> 8)
	copy(raw[wideBOffset:], placeholder[:])
	instr.Raw = raw
	return instr
}

// encodeNarrowCB builds the 16-bit T1 encoding of cbz (op=OpCBZ) or cbnz
// (op=OpCBNZ) over a low register (r0-r7) with a forward byte displacement
// (even, 0-126).
func encodeNarrowCB(op armir.Opcode, reg armir.Reg, disp uint8) uint16 {
	var opBit uint16
	if op == armir.OpCBNZ {
		opBit = 1
	}
	i := uint16(disp>>6) & 1
	imm5 := uint16(disp>>1) & 0x1f
	return 0xB100 | (opBit << 11) | (i << 9) | (imm5 << 3) | uint16(reg)
}

func invertCBOp(op armir.Opcode) armir.Opcode {
	if op == armir.OpCBZ {
		return armir.OpCBNZ
	}
	return armir.OpCBZ
}

// RemangleShortRewrite re-derives the 4-byte encoded b portion (at byte
// offset 2) of a previously-widened app cbz/cbnz's 6-byte raw encoding,
// after the code cache has shifted it relative to its target (e.g. a later
// fragment got patched in between). pc is the cbz/cbnz's own current
// translation address; the wide b's target is the one recovered from the
// existing raw bytes, and no other target can be supplied (mangle.c
// remangle_short_rewrite). This can be called repeatedly as layout settles.
func RemangleShortRewrite(dec armir.Decoder, enc armir.Encoder, instr *armir.Instr, pc uint32) {
	const wideBOffset = 2
	if len(instr.Raw) != 6 {
		bug("RemangleShortRewrite", "expected a 6-byte widened cbz/cbnz encoding, got %d bytes", len(instr.Raw))
	}
	target := dec.RawJmpTarget(instr.Mode, instr.Raw[wideBOffset:])
	wideBPC := pc + wideBOffset
	raw := enc.RawJmp(instr.Mode, target, wideBPC)
	copy(instr.Raw[wideBOffset:], raw[:])
}
