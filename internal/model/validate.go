package model

import (
	"errors"
	"fmt"
)

// ErrInvariant marks a record that violates a producer-side invariant.
// Such records are rejected before any of their bytes are written.
var ErrInvariant = errors.New("model: invariant violation")

// InvariantError locates an invariant violation.
type InvariantError struct {
	Record  string // "meta", "callgraph", "flowgraph"
	Address uint64 // function address for flow graphs
	Msg     string
}

func (e *InvariantError) Error() string {
	if e.Record == "flowgraph" {
		return fmt.Sprintf("model: flowgraph 0x%x: %s", e.Address, e.Msg)
	}
	return fmt.Sprintf("model: %s: %s", e.Record, e.Msg)
}

func (e *InvariantError) Unwrap() error { return ErrInvariant }

// Validate checks the invariants a flow graph must satisfy before it is
// encoded: at least one block, no empty block, known edge types.
func (fg *FlowGraph) Validate() error {
	if len(fg.Blocks) == 0 {
		return &InvariantError{Record: "flowgraph", Address: fg.Address, Msg: "no basic blocks"}
	}
	for i := range fg.Blocks {
		if len(fg.Blocks[i].Instructions) == 0 {
			return &InvariantError{Record: "flowgraph", Address: fg.Address,
				Msg: fmt.Sprintf("basic block %d has no instructions", i)}
		}
	}
	for i, e := range fg.Edges {
		if !e.Type.Valid() {
			return &InvariantError{Record: "flowgraph", Address: fg.Address,
				Msg: fmt.Sprintf("edge %d has unknown type %d", i, e.Type)}
		}
	}
	return nil
}

// Validate checks call graph vertex types and address uniqueness, and that
// every edge leaves a known vertex. Writers only enforce types; readers use
// the full check.
func (cg *CallGraph) Validate() error {
	if err := cg.validateTypes(); err != nil {
		return err
	}
	seen := make(map[uint64]bool, len(cg.Vertices))
	for _, v := range cg.Vertices {
		if seen[v.Address] {
			return &InvariantError{Record: "callgraph", Msg: fmt.Sprintf("duplicate vertex 0x%x", v.Address)}
		}
		seen[v.Address] = true
	}
	for i, e := range cg.Edges {
		if !seen[e.SourceFunction] {
			return &InvariantError{Record: "callgraph",
				Msg: fmt.Sprintf("edge %d source function 0x%x is not a vertex", i, e.SourceFunction)}
		}
	}
	return nil
}

func (cg *CallGraph) validateTypes() error {
	for _, v := range cg.Vertices {
		if !v.Type.Valid() {
			return &InvariantError{Record: "callgraph",
				Msg: fmt.Sprintf("vertex 0x%x has unknown type %d", v.Address, v.Type)}
		}
	}
	return nil
}

// VertexIndex maps vertex addresses to their position in Vertices.
func (cg *CallGraph) VertexIndex() map[uint64]int {
	m := make(map[uint64]int, len(cg.Vertices))
	for i, v := range cg.Vertices {
		if _, dup := m[v.Address]; !dup {
			m[v.Address] = i
		}
	}
	return m
}
