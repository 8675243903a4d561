package main

import (
	"fmt"
	"os"

	"binexport/internal/container"
	"binexport/internal/diag"
	"binexport/internal/model"
	"binexport/internal/output"
)

type infoReport struct {
	File        string                 `json:"file"`
	Size        int64                  `json:"size"`
	IndexSorted bool                   `json:"index_sorted"`
	Meta        *infoMeta              `json:"meta"`
	Vertices    map[string]int         `json:"vertices"`
	CallEdges   int                    `json:"call_edges"`
	FlowGraphs  int                    `json:"flow_graphs"`
	Entries     []container.IndexEntry `json:"entries,omitempty"`
}

type infoMeta struct {
	InputBinary     string `json:"input_binary"`
	InputHash       string `json:"input_hash"`
	AddressBits     uint32 `json:"address_bits"`
	Architecture    string `json:"architecture"`
	MaxMnemonicLen  uint32 `json:"max_mnemonic_len"`
	NumFunctions    uint32 `json:"num_functions"`
	NumInstructions uint32 `json:"num_instructions"`
	NumBasicBlocks  uint32 `json:"num_basic_blocks"`
	NumEdges        uint32 `json:"num_edges"`
}

func cmdInfo(args []string) error {
	fs := newFlagSet("info")
	in := fs.String("in", "", "path to a .BinExport file")
	asJSON := fs.Bool("json", false, "print JSON")
	entries := fs.Bool("entries", false, "include the flow graph index")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		return fmt.Errorf("--in is required")
	}

	r, err := container.Open(*in, container.Options{Mode: diag.ModeBestEffort})
	if err != nil {
		return err
	}
	defer r.Close()

	meta, err := r.Meta()
	if err != nil {
		return err
	}
	cg, err := r.CallGraph()
	if err != nil {
		return err
	}

	rep := infoReport{
		File:        *in,
		Size:        r.Size(),
		IndexSorted: r.IndexSorted(),
		Meta: &infoMeta{
			InputBinary:     meta.InputBinary,
			InputHash:       fmt.Sprintf("%x", meta.InputHash),
			AddressBits:     meta.AddressBits,
			Architecture:    meta.Architecture,
			MaxMnemonicLen:  meta.MaxMnemonicLen,
			NumFunctions:    meta.NumFunctions,
			NumInstructions: meta.NumInstructions,
			NumBasicBlocks:  meta.NumBasicBlocks,
			NumEdges:        meta.NumEdges,
		},
		Vertices:   vertexCounts(cg),
		CallEdges:  len(cg.Edges),
		FlowGraphs: r.FlowGraphCount(),
	}
	if *entries {
		rep.Entries = r.Entries()
	}

	if *asJSON {
		return output.WriteJSON(os.Stdout, rep)
	}

	m := rep.Meta
	fmt.Printf("file:           %s (%d bytes)\n", rep.File, rep.Size)
	fmt.Printf("input:          %s\n", m.InputBinary)
	fmt.Printf("input hash:     %s\n", m.InputHash)
	fmt.Printf("architecture:   %s (%d-bit)\n", m.Architecture, m.AddressBits)
	fmt.Printf("functions:      %d\n", m.NumFunctions)
	fmt.Printf("basic blocks:   %d\n", m.NumBasicBlocks)
	fmt.Printf("instructions:   %d\n", m.NumInstructions)
	fmt.Printf("edges:          %d\n", m.NumEdges)
	fmt.Printf("max mnemonic:   %d\n", m.MaxMnemonicLen)
	fmt.Printf("vertices:       %d", len(cg.Vertices))
	for t := model.FunctionNormal; t <= model.FunctionInvalid; t++ {
		if n := rep.Vertices[t.String()]; n > 0 {
			fmt.Printf(" %s=%d", t, n)
		}
	}
	fmt.Println()
	fmt.Printf("call edges:     %d\n", rep.CallEdges)
	fmt.Printf("flow graphs:    %d\n", rep.FlowGraphs)
	if !rep.IndexSorted {
		fmt.Println("index:          not sorted by address")
	}
	for _, e := range rep.Entries {
		fmt.Printf("  0x%016x @ 0x%x\n", e.Address, e.Offset)
	}
	return nil
}

func vertexCounts(cg *model.CallGraph) map[string]int {
	counts := make(map[string]int)
	for _, v := range cg.Vertices {
		counts[v.Type.String()]++
	}
	return counts
}
