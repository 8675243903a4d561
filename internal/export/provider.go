// Package export turns a disassembly model into a .BinExport container.
//
// A Provider supplies functions, call edges and per-function bodies. Export
// walks the provider twice: once to compute function fingerprints and the
// Meta counts, then again to encode and append one flow graph per function.
// Bodies are never all held in memory at once.
package export

import (
	"context"

	"binexport/internal/markup"
	"binexport/internal/model"
)

// Provider is the disassembly model being exported. Body may be called
// concurrently from several goroutines and more than once per function.
type Provider interface {
	Functions(ctx context.Context) ([]Function, error)
	CallEdges(ctx context.Context) ([]model.CallEdge, error)
	Body(ctx context.Context, fn Function) (*Body, error)
}

// Function is one call graph vertex as the provider sees it.
type Function struct {
	Address       uint64
	Type          model.FunctionType
	MangledName   string
	DemangledName string
	HasRealName   bool
}

// Body is a function's basic blocks, in address order, and its branches.
type Body struct {
	Blocks []Block
	Edges  []model.FlowEdge
}

// Block is an ordered run of instructions.
type Block struct {
	Instructions []Instruction
}

// Instruction carries everything the encoder needs for one instruction.
// StringData holds the bytes of a referenced string, if any.
type Instruction struct {
	Address     uint64
	Bytes       []byte
	Mnemonic    string
	Operands    []markup.Run
	StringData  []byte
	CallTargets []uint64
	Comments    []Comment
}

// Comment is an unpacked comment.
type Comment struct {
	Text       string
	Repeatable bool
	Type       markup.CommentType
	OperandID  uint16
}

// NumInstructions counts instructions over all blocks.
func (b *Body) NumInstructions() int {
	n := 0
	for i := range b.Blocks {
		n += len(b.Blocks[i].Instructions)
	}
	return n
}
