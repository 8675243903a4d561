package render

import (
	"fmt"
	"strings"

	"binexport/internal/callgraph"
	"binexport/internal/markup"
	"binexport/internal/model"
)

// maxBlockLines caps the listing shown in one block node.
const maxBlockLines = 12

// FlowGraphDOT renders one function's flow graph as DOT, one node per basic
// block with its instruction listing. The entry block is highlighted and
// conditional edges use T/F colors. It fails if an operand stream does not
// decode.
func FlowGraphDOT(fg *model.FlowGraph, names callgraph.Names, t Theme) (string, error) {
	if len(fg.Blocks) == 0 {
		return "", nil
	}

	var b strings.Builder
	b.WriteString("digraph cfg {\n")
	b.WriteString("  rankdir=TB;\n")
	b.WriteString("  nodesep=0.3;\n")
	b.WriteString("  ranksep=0.4;\n")
	fmt.Fprintf(&b, "  bgcolor=%q;\n", t.Background)
	fmt.Fprintf(&b, "  node [shape=rect, style=filled, fillcolor=%q, color=%q, penwidth=0.5, fontname=\"Courier,monospace\", fontsize=8, fontcolor=%q, margin=\"0.08,0.04\"];\n",
		t.NodeFill, t.NodeBorder, t.TextColor)
	fmt.Fprintf(&b, "  edge [penwidth=0.7, arrowsize=0.5, arrowhead=vee];\n")
	fmt.Fprintf(&b, "  labelloc=t;\n  labeljust=l;\n")
	fmt.Fprintf(&b, "  label=<<font face=\"Helvetica Neue,Helvetica\" point-size=\"9\" color=\"%s\">%s</font>>;\n",
		t.TextColor, dotEscape(names.Name(fg.Address)))
	b.WriteByte('\n')

	first := make(map[uint64]int, len(fg.Blocks))
	last := make(map[uint64]int, len(fg.Blocks))
	hasSucc := make([]bool, len(fg.Blocks))
	for bi, blk := range fg.Blocks {
		if n := len(blk.Instructions); n > 0 {
			first[blk.Instructions[0].Address] = bi
			last[blk.Instructions[n-1].Address] = bi
		}
	}
	for _, e := range fg.Edges {
		if bi, ok := last[e.Source]; ok {
			hasSucc[bi] = true
		}
	}

	for bi, blk := range fg.Blocks {
		var lines []string
		for i := range blk.Instructions {
			line, err := instructionLine(&blk.Instructions[i], t)
			if err != nil {
				return "", fmt.Errorf("render: function 0x%x: %w", fg.Address, err)
			}
			lines = append(lines, line)
		}
		if len(lines) > maxBlockLines {
			kept := append(lines[:5], fmt.Sprintf("... (%d more)", len(lines)-10))
			lines = append(kept, lines[len(lines)-5:]...)
		}
		label := strings.Join(lines, "<br align=\"left\"/>") + "<br align=\"left\"/>"

		attrs := ""
		if len(blk.Instructions) > 0 && blk.Instructions[0].Address == fg.Address {
			attrs = fmt.Sprintf(", penwidth=1.5, color=%q", t.EdgeTrue)
		}
		if !hasSucc[bi] {
			attrs += fmt.Sprintf(", fillcolor=%q", t.StubFill)
		}
		fmt.Fprintf(&b, "  bb%d [label=<%s>%s];\n", bi, label, attrs)
	}
	b.WriteByte('\n')

	for _, e := range fg.Edges {
		from, ok := last[e.Source]
		if !ok {
			continue
		}
		to, ok := first[e.Target]
		if !ok {
			continue
		}
		switch e.Type.Effective() {
		case model.EdgeConditionTrue:
			fmt.Fprintf(&b, "  bb%d -> bb%d [color=%q, label=<<font point-size=\"7\" color=\"%s\">T</font>>];\n",
				from, to, t.EdgeTrue, t.EdgeTrue)
		case model.EdgeConditionFalse:
			fmt.Fprintf(&b, "  bb%d -> bb%d [color=%q, label=<<font point-size=\"7\" color=\"%s\">F</font>>];\n",
				from, to, t.EdgeFalse, t.EdgeFalse)
		case model.EdgeSwitch:
			fmt.Fprintf(&b, "  bb%d -> bb%d [color=%q, style=dashed];\n", from, to, t.EdgeSwitch)
		default:
			fmt.Fprintf(&b, "  bb%d -> bb%d [color=%q];\n", from, to, t.EdgeDirect)
		}
	}

	b.WriteString("}\n")
	return b.String(), nil
}

func instructionLine(in *model.Instruction, t Theme) (string, error) {
	runs, err := in.OperandRuns()
	if err != nil {
		return "", fmt.Errorf("instruction 0x%x: %w", in.Address, err)
	}
	line := fmt.Sprintf("0x%x: %s", in.Address, in.Mnemonic)
	if ops := markup.Text(runs); ops != "" {
		line += " " + ops
	}
	line = dotEscape(line)
	for _, c := range in.Comments {
		line += fmt.Sprintf(" <font color=\"%s\">; %s</font>", t.CommentText, dotEscape(truncLabel(c.Text, 40)))
	}
	return line, nil
}
