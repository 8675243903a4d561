package container

import (
	"errors"

	"binexport/internal/diag"
)

// Report summarizes a full pass over a container.
type Report struct {
	FlowGraphs     int        `json:"flow_graphs"`
	Decoded        int        `json:"decoded"`
	Functions      int        `json:"functions"`
	Instructions   int        `json:"instructions"`
	BasicBlocks    int        `json:"basic_blocks"`
	Edges          int        `json:"edges"`
	CallGraphEdges int        `json:"call_graph_edges"`
	MarkupErrors   int        `json:"markup_errors"`
	MetaOK         bool       `json:"meta_ok"`
	CallGraphOK    bool       `json:"call_graph_ok"`
	Diags          diag.Diags `json:"-"`
}

// OK reports whether verification found nothing to complain about.
func (rep *Report) OK() bool { return rep.Diags.Len() == 0 }

// Verify decodes every record of r and cross-checks them: call graph
// consistency, flow graphs without a matching vertex, library functions
// carrying flow graphs, operand markup, and Meta counts. Failures are
// collected as diagnostics; one bad record does not stop the pass.
func Verify(r *Reader) *Report {
	rep := &Report{FlowGraphs: r.FlowGraphCount()}
	if !r.IndexSorted() {
		rep.Diags.Add(fixedHeaderSize, diag.KindOrder, "flow graph index not sorted by address")
	}

	meta, err := r.Meta()
	if err != nil {
		addRecordDiag(&rep.Diags, err)
	} else {
		rep.MetaOK = true
	}

	var vertices map[uint64]int
	cg, err := r.CallGraph()
	if err != nil {
		addRecordDiag(&rep.Diags, err)
	} else {
		rep.CallGraphOK = true
		rep.CallGraphEdges = len(cg.Edges)
		if err := cg.Validate(); err != nil {
			rep.Diags.Add(uint64(r.header.CallGraphOffset), diag.KindDangling, err.Error())
		}
		vertices = cg.VertexIndex()
	}

	for i, e := range r.header.FlowGraphs {
		fg, err := r.FlowGraphAt(i)
		if err != nil {
			addRecordDiag(&rep.Diags, err)
			continue
		}
		rep.Decoded++
		rep.Functions++
		rep.BasicBlocks += len(fg.Blocks)
		rep.Edges += len(fg.Edges)
		for bi := range fg.Blocks {
			for ii := range fg.Blocks[bi].Instructions {
				in := &fg.Blocks[bi].Instructions[ii]
				rep.Instructions++
				if _, err := in.OperandRuns(); err != nil {
					rep.MarkupErrors++
					rep.Diags.Addf(uint64(e.Offset), diag.KindMarkup, "flowgraph 0x%x instruction 0x%x: %v", e.Address, in.Address, err)
				}
			}
		}
		if vertices == nil {
			continue
		}
		vi, ok := vertices[e.Address]
		if !ok {
			rep.Diags.Addf(uint64(e.Offset), diag.KindDangling, "flowgraph 0x%x has no callgraph vertex", e.Address)
			continue
		}
		if t := cg.Vertices[vi].Type; !t.HasFlowGraph() {
			rep.Diags.Addf(uint64(e.Offset), diag.KindInvalid, "flowgraph 0x%x belongs to a %s function", e.Address, t)
		}
	}

	if meta != nil && rep.Decoded == rep.FlowGraphs {
		checkCount(&rep.Diags, r.header.MetaOffset, "instructions", meta.NumInstructions, rep.Instructions)
		checkCount(&rep.Diags, r.header.MetaOffset, "basic blocks", meta.NumBasicBlocks, rep.BasicBlocks)
		checkCount(&rep.Diags, r.header.MetaOffset, "edges", meta.NumEdges, rep.Edges)
	}
	return rep
}

func checkCount(d *diag.Diags, off uint32, what string, declared uint32, counted int) {
	if int(declared) != counted {
		d.Addf(uint64(off), diag.KindInvalid, "meta declares %d %s, flow graphs hold %d", declared, what, counted)
	}
}

func addRecordDiag(d *diag.Diags, err error) {
	var re *RecordError
	if !errors.As(err, &re) {
		d.Add(0, diag.KindInvalid, err.Error())
		return
	}
	kind := diag.KindInvalid
	if re.Err != nil && errors.Is(re.Err, errTruncated) {
		kind = diag.KindTruncated
	}
	d.Add(uint64(re.Offset), kind, re.Error())
}
