package armir

// SaveToTLS builds the meta instruction that spills r to its TLS slot
// (spec.md §6 `instr_create_save_to_tls`).
func SaveToTLS(r Reg, slot TLSSlot) *Instr {
	return &Instr{Op: OpSTR, Pred: AL, Mode: T32,
		Dsts: []Operand{NewTLSSlot(slot)},
		Srcs: []Operand{NewReg(r)}}
}

// RestoreFromTLS builds the meta instruction that reloads r from its TLS slot
// (spec.md §6 `instr_create_restore_from_tls`).
func RestoreFromTLS(r Reg, slot TLSSlot) *Instr {
	return &Instr{Op: OpLDR, Pred: AL, Mode: T32,
		Dsts: []Operand{NewReg(r)},
		Srcs: []Operand{NewTLSSlot(slot)}}
}

// WithPred returns i with its predicate replaced; used to mark inserted
// save/restore sequences with a taken- or inverted-predicate under the
// predicated-fallthrough trick (spec.md §4.9).
func (i *Instr) WithPred(c Cond) *Instr {
	i.Pred = c
	return i
}

// IsTLSSaveOf reports whether i is a save-to-TLS of register r.
func IsTLSSaveOf(i *Instr, r Reg) bool {
	return i != nil && i.Op == OpSTR && len(i.Dsts) == 1 && i.Dsts[0].Kind == OpTLSSlot &&
		len(i.Srcs) == 1 && i.Srcs[0].IsReg(r)
}

// IsTLSRestoreOf reports whether i is a restore-from-TLS into register r.
func IsTLSRestoreOf(i *Instr, r Reg) bool {
	return i != nil && i.Op == OpLDR && len(i.Srcs) == 1 && i.Srcs[0].Kind == OpTLSSlot &&
		len(i.Dsts) == 1 && i.Dsts[0].IsReg(r)
}

// TLSRestoreTarget returns the register a TLS-restore instruction reloads,
// and true, or (RegNone, false) if i is not a TLS restore.
func TLSRestoreTarget(i *Instr) (Reg, bool) {
	if i == nil || i.Op != OpLDR || len(i.Srcs) != 1 || i.Srcs[0].Kind != OpTLSSlot || len(i.Dsts) != 1 {
		return RegNone, false
	}
	return i.Dsts[0].Reg, true
}
