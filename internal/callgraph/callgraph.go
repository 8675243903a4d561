// Package callgraph maps decoded container records onto lattice graphs for
// rendering.
package callgraph

import (
	"fmt"

	"github.com/zboralski/lattice"

	"binexport/internal/model"
)

// Names resolves function addresses through the call graph vertices,
// falling back to sub_<hex>.
type Names map[uint64]string

// NewNames indexes the vertex names of cg.
func NewNames(cg *model.CallGraph) Names {
	n := make(Names, len(cg.Vertices))
	for i := range cg.Vertices {
		v := &cg.Vertices[i]
		if name := v.Name(); name != "" {
			n[v.Address] = name
		}
	}
	return n
}

// Name returns the name of the function at addr.
func (n Names) Name(addr uint64) string {
	if name, ok := n[addr]; ok {
		return name
	}
	return fmt.Sprintf("sub_%x", addr)
}

// FromCallGraph builds a lattice.Graph with one node per vertex and one
// edge per distinct caller/callee pair.
func FromCallGraph(cg *model.CallGraph) *lattice.Graph {
	names := NewNames(cg)
	g := &lattice.Graph{}
	for _, v := range cg.Vertices {
		g.Nodes = append(g.Nodes, names.Name(v.Address))
	}
	for _, e := range cg.Edges {
		g.Edges = append(g.Edges, lattice.Edge{
			Caller: names.Name(e.SourceFunction),
			Callee: names.Name(e.TargetFunction),
		})
	}
	g.Dedup()
	return g
}
