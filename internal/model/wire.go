package model

import (
	"fmt"

	"binexport/internal/codec"
)

// MarshalMeta encodes a Meta record.
func MarshalMeta(m *Meta) ([]byte, error) {
	return codec.Marshal(m)
}

// UnmarshalMeta decodes a Meta record.
func UnmarshalMeta(data []byte) (*Meta, error) {
	var m Meta
	if err := codec.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// MarshalCallGraph checks vertex types and encodes a CallGraph record.
func MarshalCallGraph(cg *CallGraph) ([]byte, error) {
	if err := cg.validateTypes(); err != nil {
		return nil, err
	}
	return codec.Marshal(cg)
}

// UnmarshalCallGraph decodes a CallGraph record. Graph consistency is not
// checked here; see CallGraph.Validate.
func UnmarshalCallGraph(data []byte) (*CallGraph, error) {
	var cg CallGraph
	if err := codec.Unmarshal(data, &cg); err != nil {
		return nil, err
	}
	for _, v := range cg.Vertices {
		if !v.Type.Valid() {
			return nil, fmt.Errorf("vertex 0x%x has unknown type %d", v.Address, v.Type)
		}
	}
	return &cg, nil
}

// MarshalFlowGraph validates and encodes a FlowGraph record. Unset edge
// types are written as EdgeUnconditional; fg itself is not modified.
func MarshalFlowGraph(fg *FlowGraph) ([]byte, error) {
	if err := fg.Validate(); err != nil {
		return nil, err
	}
	out := *fg
	for i, e := range fg.Edges {
		if e.Type == 0 {
			out.Edges = make([]FlowEdge, len(fg.Edges))
			copy(out.Edges, fg.Edges)
			for j := i; j < len(out.Edges); j++ {
				out.Edges[j].Type = out.Edges[j].Type.Effective()
			}
			break
		}
	}
	return codec.Marshal(&out)
}

// UnmarshalFlowGraph decodes a FlowGraph record and applies the edge type
// default.
func UnmarshalFlowGraph(data []byte) (*FlowGraph, error) {
	var fg FlowGraph
	if err := codec.Unmarshal(data, &fg); err != nil {
		return nil, err
	}
	for i := range fg.Edges {
		e := &fg.Edges[i]
		if !e.Type.Valid() {
			return nil, fmt.Errorf("edge %d has unknown type %d", i, e.Type)
		}
		e.Type = e.Type.Effective()
	}
	return &fg, nil
}
