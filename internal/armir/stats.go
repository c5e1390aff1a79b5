package armir

import "sync/atomic"

// Stats holds the optional mangling counters named across spec.md (most
// prominently §4.3's non_mbr_respill_avoided). A nil *Stats is always safe
// to use via the Inc methods; this lets Config.Stats default to nil with no
// special-casing at call sites (spec.md §4.12).
type Stats struct {
	NonMBRRespillAvoided int64 // spill/restore pairs elided (spec.md §4.3)
	ITBlocksSplit        int64 // IT blocks divided by mangle_remove_from_it_block (spec.md §4.1)
	ITBlocksReinstated   int64 // IT blocks synthesized by reinstate_it_blocks (spec.md §4.1); no mangling step in this module increments it
	LDMPeeledRegisters   int64 // bottom registers peeled off to free a scratch (spec.md §4.7.1)
}

// IncNonMBRRespillAvoided, IncITBlocksSplit, IncITBlocksReinstated, and
// IncLDMPeeledRegisters are all safe to call on a nil *Stats (a no-op), so
// package mangle never has to special-case an embedder that opted out of
// diagnostics (spec.md §4.12).
func (s *Stats) IncNonMBRRespillAvoided() {
	if s != nil {
		atomic.AddInt64(&s.NonMBRRespillAvoided, 1)
	}
}

func (s *Stats) IncITBlocksSplit() {
	if s != nil {
		atomic.AddInt64(&s.ITBlocksSplit, 1)
	}
}

func (s *Stats) IncITBlocksReinstated() {
	if s != nil {
		atomic.AddInt64(&s.ITBlocksReinstated, 1)
	}
}

func (s *Stats) IncLDMPeeledRegisters() {
	if s != nil {
		atomic.AddInt64(&s.LDMPeeledRegisters, 1)
	}
}
