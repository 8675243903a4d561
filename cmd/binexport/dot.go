package main

import (
	"fmt"
	"path/filepath"
	"strconv"

	lrender "github.com/zboralski/lattice/render"

	"binexport/internal/callgraph"
	"binexport/internal/container"
	"binexport/internal/diag"
	"binexport/internal/model"
	"binexport/internal/output"
	"binexport/internal/render"
)

func cmdDot(args []string) error {
	fs := newFlagSet("dot")
	in := fs.String("in", "", "path to a .BinExport file")
	addrStr := fs.String("addr", "", "function entry address; renders its flow graph")
	out := fs.String("out", "-", "output .dot path (- = stdout)")
	style := fs.String("style", "listing", "listing (instructions) or lattice (calls only)")
	maxNodes := fs.Int("max-nodes", 0, "call graph vertex limit (0 = all)")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		return fmt.Errorf("--in is required")
	}
	if *style != "listing" && *style != "lattice" {
		return fmt.Errorf("--style must be listing or lattice, got %q", *style)
	}

	r, err := container.Open(*in, container.Options{Mode: diag.ModeBestEffort})
	if err != nil {
		return err
	}
	defer r.Close()

	cg, err := r.CallGraph()
	if err != nil {
		return err
	}
	title := filepath.Base(*in)

	if *addrStr == "" {
		var dot string
		if *style == "lattice" {
			dot = lrender.DOT(callgraph.FromCallGraph(cg), title)
		} else {
			dot = render.CallGraphDOT(cg, title, render.NASA, *maxNodes)
		}
		return output.WriteText(*out, dot)
	}

	addr, err := strconv.ParseUint(*addrStr, 0, 64)
	if err != nil {
		return fmt.Errorf("--addr: %w", err)
	}
	fg, err := r.FlowGraphForAddress(addr)
	if err != nil {
		return err
	}
	names := callgraph.NewNames(cg)
	var dot string
	if *style == "lattice" {
		dot = lrender.DOTCFG(callgraph.FromFlowGraphs([]*model.FlowGraph{fg}, names), names.Name(addr))
	} else if dot, err = render.FlowGraphDOT(fg, names, render.NASA); err != nil {
		return err
	}
	return output.WriteText(*out, dot)
}
