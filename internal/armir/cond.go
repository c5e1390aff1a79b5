package armir

import "strconv"

// Cond is an ARM condition code. The encoding matches the architectural
// 4-bit condition field, shared by A32 predication and T32 IT blocks.
//
// https://developer.arm.com/documentation/dui0473/m/arm-and-thumb-instructions/condition-codes
type Cond uint8

const (
	EQ Cond = iota // equal
	NE             // not equal
	CS             // carry set / unsigned higher or same
	CC             // carry clear / unsigned lower
	MI             // minus / negative
	PL             // plus / positive or zero
	VS             // overflow
	VC             // no overflow
	HI             // unsigned higher
	LS             // unsigned lower or same
	GE             // signed greater than or equal
	LT             // signed less than
	GT             // signed greater than
	LE             // signed less than or equal
	AL             // always (unconditional)

	// CondNone marks an instruction that carries no predicate field at all
	// (as opposed to AL, an explicit always-true predicate). Non-branch T32
	// instructions with CondNone are not predicable and must never appear
	// inside an IT block.
	CondNone Cond = 0xff
)

// IsPredicated reports whether c represents a real predicate that requires
// IT-block membership for a T32 non-branch instruction (spec.md §4.1):
// AL and CondNone are both "no constraint", everything else is.
func (c Cond) IsPredicated() bool {
	return c != AL && c != CondNone
}

// Invert returns the logical negation of c, used by the predicated-fallthrough
// trick (spec.md §4.9) and by CBZ/CBNZ widening (spec.md §4.6).
func (c Cond) Invert() Cond {
	switch c {
	case EQ:
		return NE
	case NE:
		return EQ
	case CS:
		return CC
	case CC:
		return CS
	case MI:
		return PL
	case PL:
		return MI
	case VS:
		return VC
	case VC:
		return VS
	case HI:
		return LS
	case LS:
		return HI
	case GE:
		return LT
	case LT:
		return GE
	case GT:
		return LE
	case LE:
		return GT
	default:
		panic("armir: cannot invert " + c.String())
	}
}

// String implements fmt.Stringer.
func (c Cond) String() string {
	switch c {
	case EQ:
		return "eq"
	case NE:
		return "ne"
	case CS:
		return "cs"
	case CC:
		return "cc"
	case MI:
		return "mi"
	case PL:
		return "pl"
	case VS:
		return "vs"
	case VC:
		return "vc"
	case HI:
		return "hi"
	case LS:
		return "ls"
	case GE:
		return "ge"
	case LT:
		return "lt"
	case GT:
		return "gt"
	case LE:
		return "le"
	case AL:
		return "al"
	case CondNone:
		return "<none>"
	default:
		panic(strconv.Itoa(int(c)))
	}
}
