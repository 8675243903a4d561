package render

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"binexport/internal/callgraph"
	"binexport/internal/model"
)

// CallGraphDOT renders the call graph as DOT. Vertices are styled by
// function type and parallel call edges are merged into one edge labeled
// with the call count. maxNodes limits the vertices rendered, keeping the
// ones with the most incident edges (0 = all).
func CallGraphDOT(cg *model.CallGraph, title string, t Theme, maxNodes int) string {
	names := callgraph.NewNames(cg)

	type edgeKey struct{ from, to uint64 }
	counts := make(map[edgeKey]int)
	var order []edgeKey
	degree := make(map[uint64]int)
	for _, e := range cg.Edges {
		k := edgeKey{e.SourceFunction, e.TargetFunction}
		if counts[k] == 0 {
			order = append(order, k)
			degree[k.from]++
			degree[k.to]++
		}
		counts[k]++
	}

	keep := make(map[uint64]bool, len(cg.Vertices))
	for _, v := range cg.Vertices {
		keep[v.Address] = true
	}
	if maxNodes > 0 && len(cg.Vertices) > maxNodes {
		keep = topByDegree(cg.Vertices, degree, maxNodes)
	}

	var b strings.Builder
	b.WriteString("digraph callgraph {\n")
	b.WriteString("  rankdir=LR;\n")
	fmt.Fprintf(&b, "  bgcolor=%q;\n", t.Background)
	fmt.Fprintf(&b, "  node [shape=rect, style=filled, fillcolor=%q, color=%q, penwidth=0.5, fontname=\"Helvetica Neue,Helvetica\", fontsize=9, fontcolor=%q];\n",
		t.NodeFill, t.NodeBorder, t.TextColor)
	fmt.Fprintf(&b, "  edge [penwidth=0.7, arrowsize=0.5, arrowhead=vee, color=%q];\n", t.EdgeDirect)
	if title != "" {
		fmt.Fprintf(&b, "  labelloc=t;\n  label=%q;\n", title)
	}
	b.WriteByte('\n')

	for _, v := range cg.Vertices {
		if !keep[v.Address] {
			continue
		}
		label := dotEscape(truncLabel(names.Name(v.Address), 60))
		fmt.Fprintf(&b, "  %s [label=<%s<br/><font point-size=\"7\">0x%x</font>>%s];\n",
			dotID(v.Address), label, v.Address, vertexAttrs(v, t))
	}
	b.WriteByte('\n')

	for _, k := range order {
		if !keep[k.from] || !keep[k.to] {
			continue
		}
		attrs := ""
		if n := counts[k]; n > 1 {
			attrs = fmt.Sprintf(" [label=\"%d\"]", n)
		}
		fmt.Fprintf(&b, "  %s -> %s%s;\n", dotID(k.from), dotID(k.to), attrs)
	}

	b.WriteString("}\n")
	return b.String()
}

func vertexAttrs(v model.Vertex, t Theme) string {
	switch v.Type {
	case model.FunctionLibrary:
		return fmt.Sprintf(", fillcolor=%q", t.LibraryFill)
	case model.FunctionImported:
		return fmt.Sprintf(", style=dashed, fontcolor=%q", t.ExternalText)
	case model.FunctionThunk:
		return fmt.Sprintf(", fillcolor=%q, shape=cds", t.StubFill)
	case model.FunctionInvalid:
		return fmt.Sprintf(", color=%q", t.EdgeFalse)
	}
	if !v.HasRealName {
		return fmt.Sprintf(", fontcolor=%q", t.ExternalText)
	}
	return ""
}

// topByDegree keeps the n vertices with the most distinct call partners,
// breaking ties by address.
func topByDegree(vs []model.Vertex, degree map[uint64]int, n int) map[uint64]bool {
	addrs := make([]uint64, len(vs))
	for i, v := range vs {
		addrs[i] = v.Address
	}
	slices.SortStableFunc(addrs, func(a, b uint64) int {
		if c := cmp.Compare(degree[b], degree[a]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	keep := make(map[uint64]bool, n)
	for _, a := range addrs[:n] {
		keep[a] = true
	}
	return keep
}
