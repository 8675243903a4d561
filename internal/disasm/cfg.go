package disasm

import (
	"maps"
	"slices"
)

// BasicBlock represents a sequence of instructions with a single entry point.
type BasicBlock struct {
	ID      int
	Start   int    // index into FuncCFG.Insts (inclusive)
	End     int    // index into FuncCFG.Insts (exclusive)
	Succs   []Succ // successor edges
	IsEntry bool
	IsTerm  bool // ends with RET, BR, or a branch out of the function
}

// Succ describes a control-flow successor edge.
type Succ struct {
	BlockID int
	Cond    string // "" = unconditional, "T" = taken/true, "F" = fallthrough/false
}

// FuncCFG is a per-function control flow graph.
type FuncCFG struct {
	Name   string
	Blocks []BasicBlock
	Insts  []Inst
}

// Edge is a successor edge in address form: from the last instruction of
// one block to the first instruction of another.
type Edge struct {
	From, To uint64
	Cond     string
}

// BuildCFG constructs a control flow graph from a function's instruction stream.
//  1. Find block leaders: index 0, branch targets, instructions after terminators.
//  2. Partition instructions into blocks by leaders.
//  3. Compute successor edges from each block's last instruction.
func BuildCFG(name string, insts []Inst) FuncCFG {
	if len(insts) == 0 {
		return FuncCFG{Name: name, Insts: insts}
	}

	funcStart := insts[0].Addr
	funcEnd := insts[len(insts)-1].Addr + 4
	addrToIdx := make(map[uint64]int, len(insts))
	for i, inst := range insts {
		addrToIdx[inst.Addr] = i
	}
	inFunc := func(bi *BranchInfo) (int, bool) {
		if bi.IsRet || bi.Indirect || bi.Target < funcStart || bi.Target >= funcEnd {
			return 0, false
		}
		idx, ok := addrToIdx[bi.Target]
		return idx, ok
	}

	leaders := map[int]bool{0: true}
	for i, inst := range insts {
		bi := DecodeBranch(inst.Raw, inst.Addr)
		if bi == nil {
			continue
		}
		if i+1 < len(insts) {
			leaders[i+1] = true
		}
		if idx, ok := inFunc(bi); ok {
			leaders[idx] = true
		}
	}
	starts := slices.Sorted(maps.Keys(leaders))

	blocks := make([]BasicBlock, len(starts))
	leaderToBlock := make(map[int]int, len(starts))
	for i, start := range starts {
		end := len(insts)
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		blocks[i] = BasicBlock{ID: i, Start: start, End: end, IsEntry: start == 0}
		leaderToBlock[start] = i
	}

	for i := range blocks {
		blk := &blocks[i]
		last := insts[blk.End-1]
		next, hasNext := leaderToBlock[blk.End]
		bi := DecodeBranch(last.Raw, last.Addr)
		switch {
		case bi == nil:
			if hasNext {
				blk.Succs = append(blk.Succs, Succ{BlockID: next})
			}
		case bi.IsRet || bi.Indirect:
			blk.IsTerm = true
		default:
			target := -1
			if idx, ok := inFunc(bi); ok {
				target = leaderToBlock[idx]
			}
			switch {
			case bi.Cond:
				if target >= 0 {
					blk.Succs = append(blk.Succs, Succ{BlockID: target, Cond: "T"})
				}
				if hasNext {
					blk.Succs = append(blk.Succs, Succ{BlockID: next, Cond: "F"})
				}
			case target >= 0:
				blk.Succs = append(blk.Succs, Succ{BlockID: target})
			default:
				blk.IsTerm = true // tail call
			}
		}
	}

	return FuncCFG{Name: name, Blocks: blocks, Insts: insts}
}

// Edges returns every successor edge in address form, in block order.
func (c *FuncCFG) Edges() []Edge {
	var out []Edge
	for _, blk := range c.Blocks {
		from := c.Insts[blk.End-1].Addr
		for _, s := range blk.Succs {
			out = append(out, Edge{From: from, To: c.Insts[c.Blocks[s.BlockID].Start].Addr, Cond: s.Cond})
		}
	}
	return out
}

// IsThunk reports whether insts is a lone unconditional branch to an address
// outside of itself.
func IsThunk(insts []Inst) bool {
	if len(insts) != 1 {
		return false
	}
	bi := DecodeBranch(insts[0].Raw, insts[0].Addr)
	return bi != nil && !bi.Cond && !bi.IsRet && !bi.Indirect && bi.Target != insts[0].Addr
}
