package mangle

import (
	"expvar"
	"sync"

	"armcache/mangle/internal/armir"
)

// publishedStats lazily registers one expvar.Map per distinct *armir.Stats
// instance the first time PublishStats sees it, so repeated calls (e.g. once
// per compilation unit sharing a single engine-wide Config) are idempotent
// and never panic on expvar.Publish's "already published" check.
var (
	publishedMu sync.Mutex
	published   = map[*armir.Stats]*expvar.Map{}
)

// PublishStats exposes s's counters under name via expvar, for the same
// operational-visibility reason the teacher's backend registers its lowering
// pass counters: so an operator can read mangling activity from a running
// process's /debug/vars without attaching a debugger. Safe to call multiple
// times with the same *armir.Stats; a nil s is a no-op.
func PublishStats(name string, s *armir.Stats) *expvar.Map {
	if s == nil {
		return nil
	}
	publishedMu.Lock()
	defer publishedMu.Unlock()
	if m, ok := published[s]; ok {
		return m
	}
	m := new(expvar.Map).Init()
	m.Set("non_mbr_respill_avoided", expvar.Func(func() interface{} { return s.NonMBRRespillAvoided }))
	m.Set("it_blocks_split", expvar.Func(func() interface{} { return s.ITBlocksSplit }))
	m.Set("it_blocks_reinstated", expvar.Func(func() interface{} { return s.ITBlocksReinstated }))
	m.Set("ldm_peeled_registers", expvar.Func(func() interface{} { return s.LDMPeeledRegisters }))
	expvar.Publish(name, m)
	published[s] = m
	return m
}
