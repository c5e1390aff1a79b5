package mangle

import "armcache/mangle/internal/armir"

const itBlockMaxInstrs = 4

// removeFromITBlock splits instr out of its enclosing IT block, leaving it
// as an isolated predicated instruction, and replaces the surrounding OpIT
// pseudo-instruction with a new leading one covering the instructions before
// instr and a new trailing one covering those after it, so that both halves
// remain legally encodable. Returns the new next
// instruction in the list (mangle.c mangle_remove_from_it_block).
//
// No-op outside Thumb or on an unpredicated instruction.
func removeFromITBlock(l *armir.InstrList, instr *armir.Instr, cfg *armir.Config) *armir.Instr {
	if instr.Mode != armir.T32 || !instr.Predicated() {
		return instr.Next()
	}

	var it *armir.Instr
	prior := 0
	for prev := instr.Prev(); prev != nil; prev = prev.Prev() {
		if prev.Op == armir.OpIT {
			it = prev
			break
		}
		prior++
	}
	if it == nil {
		bug("removeFromITBlock", "predicated Thumb instruction has no enclosing IT block")
	}
	count := it.ITCount
	if count <= prior || count > itBlockMaxInstrs {
		bug("removeFromITBlock", "IT block count %d inconsistent with position %d", count, prior)
	}

	if prior > 0 {
		head := newITBlock(it.ITPred, prior)
		l.InsertBefore(it, head)
	}

	remaining := count - prior - 1
	if remaining > 0 {
		tail := newITBlock(instr.Next().Pred, remaining)
		l.InsertAfter(instr, tail)
	}

	l.Remove(it)
	cfg.Stats.IncITBlocksSplit()
	return instr.Next()
}

func newITBlock(pred armir.Cond, count int) *armir.Instr {
	it := &armir.Instr{Op: armir.OpIT, Pred: armir.AL, Mode: armir.T32, ITPred: pred, ITCount: count}
	it.SetMeta()
	return it
}

// reinstateITBlocks scans [start, end) and wraps every run of compatibly
// predicated Thumb instructions in a freshly synthesized OpIT, so that
// mangling which left isolated predicated instructions behind (conditional
// branch/call/jump mangling, predicated-fallthrough insertion) produces a
// legally encodable stream again. A predicated instr counts as needing a
// block unless it is an OpB / OpBShort branch, whatever its predicate (those
// can't be patched if placed inside a block). Returns the number of IT instructions inserted
// (mangle.c reinstate_it_blocks).
// ReinstateITBlocks is the exported entry point to reinstateITBlocks, for
// callers (the armmangle CLI's itblocks subcommand) that want to exercise IT
// block synthesis directly without going through the full Dispatch pass. end
// may be nil to scan to the end of the list.
func ReinstateITBlocks(l *armir.InstrList, start, end *armir.Instr) int {
	return reinstateITBlocks(l, start, end)
}

func reinstateITBlocks(l *armir.InstrList, start, end *armir.Instr) int {
	inserted := 0
	var blockStart *armir.Instr
	var blockPred armir.Cond
	blockCount := 0
	existingITRemaining := 0

	flush := func(before *armir.Instr) {
		if blockStart == nil {
			return
		}
		it := newITBlock(blockPred, blockCount)
		if before == nil {
			l.Append(it)
		} else {
			l.InsertBefore(before, it)
		}
		inserted++
		blockStart = nil
		blockCount = 0
	}

	for instr := start; instr != nil && instr != end; {
		next := instr.Next()
		predicated := instr.Predicated() && instr.Op != armir.OpB && instr.Op != armir.OpBShort

		if blockStart != nil {
			matches := predicated && (instr.Pred == blockPred || instr.Pred == blockPred.Invert())
			if matches && blockCount < itBlockMaxInstrs {
				blockCount++
				instr = next
				continue
			}
			flush(blockStart)
		}

		switch {
		case existingITRemaining > 0:
			existingITRemaining--
		case instr.Op == armir.OpIT:
			existingITRemaining = instr.ITCount
		case predicated:
			blockStart = instr
			blockPred = instr.Pred
			blockCount = 1
		}
		instr = next
	}
	flush(blockStart)

	return inserted
}
