package armir

// OperandKind is the tag of the Operand sum type (spec.md §3 "Operand").
type OperandKind byte

const (
	// OpReg is a plain register operand.
	OpReg OperandKind = iota
	// OpImm is an immediate integer operand.
	OpImm
	// OpPC is the PC-relative pseudo-operand: "the value of r15 as architecturally
	// read at this instruction", before any relocation.
	OpPC
	// OpInstrRef refers to another instruction in the list (a label or a branch
	// target expressed as "the instruction this jumps to" rather than a bare pc).
	OpInstrRef
	// OpMem is a base+index+shift+displacement memory operand.
	OpMem
	// OpRegList is the register-list operand of ldm/stm/push/pop.
	OpRegList
	// OpMemList is the memory-side operand of ldm/stm: a base register whose
	// access size is implied by the paired OpRegList operand.
	OpMemList
	// OpTLSSlot is the engine's per-thread TLS save/restore slot (spec.md §6
	// "TLS helpers"): an abstract slot index, not a GPR or architectural
	// memory address — the out-of-scope TLS layout collaborator resolves it.
	OpTLSSlot
)

// ShiftKind is an ARM barrel-shifter operation applied to a memory index
// register or to a register operand.
type ShiftKind byte

const (
	ShiftNone ShiftKind = iota
	ShiftLSL
	ShiftLSR
	ShiftASR
	ShiftROR
	ShiftRRX
)

// Operand is the tagged variant described by spec.md §3. Only the fields
// relevant to Kind are meaningful; this mirrors the teacher's addressMode
// struct (isa/arm64/lower_mem.go) in spirit: one struct, a kind tag, and a
// handful of overloaded fields rather than a Go interface, so that operands
// can be copied, compared, and stored in slices cheaply.
type Operand struct {
	Kind OperandKind

	Reg Reg // OpReg, OpMem (base), OpMemList (base)

	Imm int64 // OpImm

	Target *Instr // OpInstrRef: the instruction (typically a label) this refers to

	// OpMem fields.
	Index    Reg
	HasIndex bool
	Shift    ShiftKind
	ShiftAmt uint8
	Disp     int32
	Negated  bool // T32-only: displacement is subtracted, not added

	// OpRegList / OpMemList fields.
	List RegList
}

// NewReg builds a register operand.
func NewReg(r Reg) Operand { return Operand{Kind: OpReg, Reg: r} }

// NewImm builds an immediate operand.
func NewImm(v int64) Operand { return Operand{Kind: OpImm, Imm: v} }

// NewPC builds the PC-relative pseudo-operand.
func NewPC() Operand { return Operand{Kind: OpPC} }

// NewInstrRef builds an operand referring to another instruction (a label
// or a branch target expressed relative to the list rather than an address).
func NewInstrRef(target *Instr) Operand { return Operand{Kind: OpInstrRef, Target: target} }

// NewMemBase builds a `[base, #disp]` memory operand with no index register.
func NewMemBase(base Reg, disp int32, negated bool) Operand {
	return Operand{Kind: OpMem, Reg: base, Disp: disp, Negated: negated}
}

// NewMemIndexed builds a `[base, index {, shift #amt}]` memory operand.
func NewMemIndexed(base, index Reg, shift ShiftKind, amt uint8) Operand {
	return Operand{Kind: OpMem, Reg: base, Index: index, HasIndex: true, Shift: shift, ShiftAmt: amt}
}

// NewRegList builds a register-list operand.
func NewRegList(l RegList) Operand { return Operand{Kind: OpRegList, List: l} }

// NewMemList builds the memory-side operand of an ldm/stm.
func NewMemList(base Reg) Operand { return Operand{Kind: OpMemList, Reg: base} }

// NewTLSSlot builds a reference to TLS save/restore slot id.
func NewTLSSlot(id TLSSlot) Operand { return Operand{Kind: OpTLSSlot, Imm: int64(id)} }

// TLSSlotID returns the slot id of an OpTLSSlot operand.
func (op Operand) TLSSlotID() TLSSlot { return TLSSlot(op.Imm) }

// IsReg reports whether op is a register operand equal to r.
func (op Operand) IsReg(r Reg) bool {
	return op.Kind == OpReg && op.Reg == r
}

// ReadsReg reports whether op, read as a source operand, observes r's value.
func (op Operand) ReadsReg(r Reg) bool {
	switch op.Kind {
	case OpReg:
		return op.Reg == r
	case OpMem, OpMemList:
		if op.Reg == r {
			return true
		}
		return op.Kind == OpMem && op.HasIndex && op.Index == r
	case OpRegList:
		return op.List.Contains(r)
	default:
		return false
	}
}

// WithBase returns a copy of a memory operand with its base register replaced,
// preserving index, shift, displacement, and the negated-displacement flag
// (spec.md §4.4 step 5).
func (op Operand) WithBase(base Reg) Operand {
	out := op
	out.Reg = base
	return out
}

// WithDisp returns a copy of a memory operand with its displacement replaced.
func (op Operand) WithDisp(disp int32) Operand {
	out := op
	out.Disp = disp
	return out
}
