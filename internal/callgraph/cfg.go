package callgraph

import (
	"github.com/zboralski/lattice"

	"binexport/internal/model"
)

// FromFlowGraph maps a flow graph record to a lattice.FuncCFG. Block Start
// and End index the function's instructions in block order. Edges are
// attached to the block ending at their source instruction and point at
// the block starting at their target; edges that match neither are
// dropped. Call targets become call sites named through names.
func FromFlowGraph(fg *model.FlowGraph, names Names) *lattice.FuncCFG {
	lcfg := &lattice.FuncCFG{Name: names.Name(fg.Address)}

	lastInst := make(map[uint64]int, len(fg.Blocks))
	firstInst := make(map[uint64]int, len(fg.Blocks))
	idx := 0
	for bi, blk := range fg.Blocks {
		lb := &lattice.BasicBlock{ID: bi, Start: idx, End: idx + len(blk.Instructions)}
		for ii, in := range blk.Instructions {
			for _, target := range in.CallTargets {
				lb.Calls = append(lb.Calls, lattice.CallSite{Offset: idx + ii, Callee: names.Name(target)})
			}
		}
		if n := len(blk.Instructions); n > 0 {
			firstInst[blk.Instructions[0].Address] = bi
			lastInst[blk.Instructions[n-1].Address] = bi
		}
		idx = lb.End
		lcfg.Blocks = append(lcfg.Blocks, lb)
	}

	for _, e := range fg.Edges {
		from, ok := lastInst[e.Source]
		if !ok {
			continue
		}
		to, ok := firstInst[e.Target]
		if !ok {
			continue
		}
		lcfg.Blocks[from].Succs = append(lcfg.Blocks[from].Succs, lattice.Successor{
			BlockID: to,
			Cond:    edgeCond(e.Type),
		})
	}
	for _, lb := range lcfg.Blocks {
		lb.Term = len(lb.Succs) == 0
	}
	return lcfg
}

// FromFlowGraphs collects several functions into one lattice.CFGGraph.
func FromFlowGraphs(fgs []*model.FlowGraph, names Names) *lattice.CFGGraph {
	cg := &lattice.CFGGraph{}
	for _, fg := range fgs {
		cg.Funcs = append(cg.Funcs, FromFlowGraph(fg, names))
	}
	return cg
}

func edgeCond(t model.EdgeType) string {
	switch t.Effective() {
	case model.EdgeConditionTrue:
		return "T"
	case model.EdgeConditionFalse:
		return "F"
	case model.EdgeSwitch:
		return "S"
	}
	return ""
}
