package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"binexport/internal/config"
	"binexport/internal/elfsrc"
	"binexport/internal/elfx"
	"binexport/internal/export"
	"binexport/internal/output"
)

func cmdExport(args []string) error {
	fs := newFlagSet("export")
	lib := fs.String("lib", "", "path to the ARM64 ELF file")
	out := fs.String("out", "", "output .BinExport path (default <lib>.BinExport)")
	configPath := fs.String("config", "", "YAML config file")
	workers := fs.Int("workers", 0, "flow graph encoders (0 = one per CPU)")
	hashAlg := fs.String("hash", "", "input digest: sha256 or blake3")
	arch := fs.String("arch", "", "architecture name written to Meta")
	refWindow := fs.Int("ref-window", 0, "instructions an ADRP page stays live")
	libs := fs.StringSlice("library", nil, "regexp marking LIBRARY functions (repeatable)")
	stats := fs.String("stats", "", "write export statistics as JSON to this path")
	verbose := fs.BoolP("verbose", "v", false, "debug logging")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *lib == "" {
		return fmt.Errorf("--lib is required")
	}
	if *out == "" {
		*out = *lib + ".BinExport"
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if fs.Changed("workers") {
		cfg.Workers = *workers
	}
	if fs.Changed("hash") {
		cfg.Hash = config.HashAlgorithm(*hashAlg)
	}
	if fs.Changed("arch") {
		cfg.Architecture = *arch
	}
	if fs.Changed("ref-window") {
		cfg.RefWindow = *refWindow
	}
	if fs.Changed("library") {
		cfg.LibraryPatterns = append(cfg.LibraryPatterns, *libs...)
	}
	if fs.Changed("verbose") {
		cfg.Verbose = *verbose
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	log := newLogger(cfg.Verbose)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	ef, err := elfx.Open(*lib)
	if err != nil {
		return err
	}
	defer ef.Close()

	src, err := elfsrc.New(ef, elfsrc.Options{
		LibraryPatterns: cfg.LibraryPatterns,
		StringMax:       cfg.StringMax,
		RefWindow:       cfg.RefWindow,
		Logger:          log,
	})
	if err != nil {
		return err
	}
	digest, err := hashFile(*lib, cfg.Hash)
	if err != nil {
		return err
	}

	f, err := os.Create(*out)
	if err != nil {
		return fmt.Errorf("create %s: %w", *out, err)
	}
	st, err := export.Export(ctx, f, src, export.Options{
		InputBinary:  filepath.Base(*lib),
		InputHash:    digest,
		AddressBits:  64,
		Architecture: cfg.Architecture,
		Workers:      cfg.Workers,
		Logger:       log,
	})
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close %s: %w", *out, cerr)
	}
	if err != nil {
		os.Remove(*out)
		return err
	}

	fmt.Printf("wrote %s: %d functions, %d flow graphs, %d instructions, %d bytes\n",
		*out, st.Functions, st.FlowGraphs, st.Instructions, st.Bytes)
	if *stats != "" {
		return output.WriteJSONFile(*stats, st)
	}
	return nil
}
