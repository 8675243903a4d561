package export

import (
	"cmp"
	"fmt"
	"slices"

	"binexport/internal/fingerprint"
	"binexport/internal/markup"
	"binexport/internal/model"
)

// EncodeFlowGraph builds the flow graph record for the function at addr.
// Blocks are ordered by their first instruction address. Instruction and
// block primes, string hashes, operand markup and comment flags are filled
// in here; the result is validated before it is returned.
func EncodeFlowGraph(addr uint64, body *Body) (*model.FlowGraph, error) {
	fg := &model.FlowGraph{Address: addr}
	if body == nil {
		return nil, fg.Validate()
	}
	blocks := sortedBlocks(body.Blocks)
	fg.Blocks = make([]model.BasicBlock, len(blocks))
	for bi, blk := range blocks {
		var acc fingerprint.Accumulator
		out := &fg.Blocks[bi]
		out.Instructions = make([]model.Instruction, len(blk.Instructions))
		for ii := range blk.Instructions {
			in, err := encodeInstruction(&blk.Instructions[ii])
			if err != nil {
				return nil, fmt.Errorf("export: function 0x%x: %w", addr, err)
			}
			acc.AddPrime(in.Prime)
			out.Instructions[ii] = in
		}
		out.Prime = acc.Sum()
	}
	if len(body.Edges) > 0 {
		fg.Edges = make([]model.FlowEdge, len(body.Edges))
		for i, e := range body.Edges {
			e.Type = e.Type.Effective()
			fg.Edges[i] = e
		}
	}
	if err := fg.Validate(); err != nil {
		return nil, err
	}
	return fg, nil
}

func encodeOperands(in *Instruction) ([]byte, error) {
	ops, err := markup.Encode(in.Operands)
	if err != nil {
		return nil, fmt.Errorf("instruction 0x%x operands: %w", in.Address, err)
	}
	return ops, nil
}

func encodeInstruction(in *Instruction) (model.Instruction, error) {
	out := model.Instruction{
		Address:     in.Address,
		Prime:       fingerprint.Instruction(in.Mnemonic),
		Mnemonic:    in.Mnemonic,
		Bytes:       in.Bytes,
		CallTargets: in.CallTargets,
	}
	if len(in.Operands) > 0 {
		ops, err := encodeOperands(in)
		if err != nil {
			return out, err
		}
		out.Operands = ops
	}
	if len(in.StringData) > 0 {
		out.StringReference = fingerprint.SDBM(in.StringData)
	}
	if len(in.Comments) > 0 {
		out.Comments = make([]model.Comment, len(in.Comments))
		for i, c := range in.Comments {
			out.Comments[i] = model.NewComment(c.Text, c.Repeatable, c.Type, c.OperandID)
		}
	}
	return out, nil
}

// FunctionPrime is the sequence fingerprint over every mnemonic of the
// function, blocks taken in address order.
func FunctionPrime(body *Body) uint64 {
	if body == nil {
		return 0
	}
	var acc fingerprint.Accumulator
	for _, blk := range sortedBlocks(body.Blocks) {
		for i := range blk.Instructions {
			acc.Add(blk.Instructions[i].Mnemonic)
		}
	}
	return acc.Sum()
}

// sortedBlocks returns blocks in address order. Empty blocks sort first;
// they are rejected later by validation.
func sortedBlocks(blocks []Block) []Block {
	start := func(b Block) uint64 {
		if len(b.Instructions) == 0 {
			return 0
		}
		return b.Instructions[0].Address
	}
	if slices.IsSortedFunc(blocks, func(a, b Block) int { return cmp.Compare(start(a), start(b)) }) {
		return blocks
	}
	out := slices.Clone(blocks)
	slices.SortStableFunc(out, func(a, b Block) int { return cmp.Compare(start(a), start(b)) })
	return out
}
