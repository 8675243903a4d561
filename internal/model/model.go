// Package model defines the three record kinds stored in a .BinExport
// container: Meta, CallGraph and FlowGraph.
//
// Field numbers in the cbor tags are the wire contract. Never renumber a
// field; add new fields with new numbers.
//
// Zero values are omitted on the wire, so an empty slice and a nil slice
// encode identically and every empty slice decodes as nil. Records compare
// equal after a round trip only when empty slices are written as nil.
package model

import (
	"binexport/internal/markup"
)

// Meta describes the exported binary. Counts exclude library functions.
type Meta struct {
	InputBinary     string `cbor:"1,keyasint,omitempty"`
	InputHash       []byte `cbor:"2,keyasint,omitempty"`
	AddressBits     uint32 `cbor:"3,keyasint,omitempty"`
	Architecture    string `cbor:"4,keyasint,omitempty"`
	MaxMnemonicLen  uint32 `cbor:"5,keyasint,omitempty"`
	NumInstructions uint32 `cbor:"6,keyasint,omitempty"`
	NumFunctions    uint32 `cbor:"7,keyasint,omitempty"`
	NumBasicBlocks  uint32 `cbor:"8,keyasint,omitempty"`
	NumEdges        uint32 `cbor:"9,keyasint,omitempty"`
}

// CallGraph is the whole-binary graph of functions and call sites.
type CallGraph struct {
	Vertices []Vertex   `cbor:"1,keyasint,omitempty"`
	Edges    []CallEdge `cbor:"2,keyasint,omitempty"`
}

// Vertex is one function in the call graph.
type Vertex struct {
	Address       uint64       `cbor:"1,keyasint"`
	Prime         uint64       `cbor:"2,keyasint,omitempty"`
	Type          FunctionType `cbor:"3,keyasint,omitempty"`
	HasRealName   bool         `cbor:"4,keyasint,omitempty"`
	MangledName   string       `cbor:"5,keyasint,omitempty"`
	DemangledName string       `cbor:"6,keyasint,omitempty"` // set only when it differs from MangledName
}

// Name returns the demangled name when present, else the mangled one.
func (v *Vertex) Name() string {
	if v.DemangledName != "" {
		return v.DemangledName
	}
	return v.MangledName
}

// CallEdge is a call from the instruction SourceInstruction inside
// SourceFunction to TargetFunction. Edges are not deduplicated.
type CallEdge struct {
	SourceFunction    uint64 `cbor:"1,keyasint"`
	SourceInstruction uint64 `cbor:"2,keyasint"`
	TargetFunction    uint64 `cbor:"3,keyasint"`
}

// FlowGraph is one function's basic blocks, stored in address order, and
// the branches between them. Address is the function entry, which need
// not be the first block.
type FlowGraph struct {
	Address uint64       `cbor:"1,keyasint"`
	Blocks  []BasicBlock `cbor:"2,keyasint,omitempty"`
	Edges   []FlowEdge   `cbor:"3,keyasint,omitempty"`
}

// BasicBlock holds at least one instruction.
type BasicBlock struct {
	Prime        uint64        `cbor:"1,keyasint,omitempty"`
	Instructions []Instruction `cbor:"2,keyasint,omitempty"`
}

// Instruction is one disassembled instruction. Operands holds the markup
// byte stream; see OperandRuns.
type Instruction struct {
	Address         uint64    `cbor:"1,keyasint"`
	Prime           uint32    `cbor:"2,keyasint,omitempty"`
	StringReference uint32    `cbor:"3,keyasint,omitempty"`
	Mnemonic        string    `cbor:"4,keyasint,omitempty"`
	Operands        []byte    `cbor:"5,keyasint,omitempty"`
	Bytes           []byte    `cbor:"6,keyasint,omitempty"`
	CallTargets     []uint64  `cbor:"7,keyasint,omitempty"`
	Comments        []Comment `cbor:"8,keyasint,omitempty"`
}

// OperandRuns decodes the operand markup.
func (in *Instruction) OperandRuns() ([]markup.Run, error) {
	return markup.Decode(in.Operands)
}

// Comment is a disassembler comment with its packed attribute word.
type Comment struct {
	Text  string `cbor:"1,keyasint"`
	Flags uint32 `cbor:"2,keyasint"`
}

// NewComment packs the attributes into a Comment.
func NewComment(text string, repeatable bool, typ markup.CommentType, operandID uint16) Comment {
	return Comment{Text: text, Flags: markup.PackFlags(repeatable, typ, operandID)}
}

// Repeatable reports bit 0 of the flags.
func (c Comment) Repeatable() bool {
	r, _, _ := markup.UnpackFlags(c.Flags)
	return r
}

// Type returns the comment type stored in bits 1-3.
func (c Comment) Type() markup.CommentType {
	_, t, _ := markup.UnpackFlags(c.Flags)
	return t
}

// OperandID returns the operand index stored in bits 16+.
func (c Comment) OperandID() uint16 {
	_, _, op := markup.UnpackFlags(c.Flags)
	return op
}

// FlowEdge is a branch between two instructions of the same function.
type FlowEdge struct {
	Source uint64   `cbor:"1,keyasint"`
	Target uint64   `cbor:"2,keyasint"`
	Type   EdgeType `cbor:"3,keyasint"`
}

// NumInstructions counts instructions over all blocks.
func (fg *FlowGraph) NumInstructions() int {
	n := 0
	for i := range fg.Blocks {
		n += len(fg.Blocks[i].Instructions)
	}
	return n
}
