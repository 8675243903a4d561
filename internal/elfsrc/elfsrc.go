// Package elfsrc supplies the export model for an AArch64 ELF file. It
// reads function symbols, disassembles their bodies, recovers basic blocks
// and branches, and annotates call sites and string references.
package elfsrc

import (
	"cmp"
	"context"
	"debug/elf"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"regexp"
	"slices"
	"strconv"
	"unicode"
	"unicode/utf8"

	"binexport/internal/disasm"
	"binexport/internal/elfx"
	"binexport/internal/export"
	"binexport/internal/markup"
	"binexport/internal/model"
)

// ErrNoBody is returned by Body for a function without disassembly.
var ErrNoBody = errors.New("elfsrc: function has no body")

const (
	defaultStringMax = 256
	defaultRefWindow = 8
)

// Options tune symbol classification and reference recovery.
type Options struct {
	// LibraryPatterns are regular expressions; a function whose name
	// matches any of them is exported as LIBRARY and gets no flow graph.
	LibraryPatterns []string
	StringMax       int // longest string read for a reference; 0 = 256
	RefWindow       int // instructions an ADRP page stays live; 0 = 8
	Logger          *slog.Logger
}

type funcRange struct {
	name string
	size uint64
}

// Source implements export.Provider over an opened ELF file. All state is
// built by New; Body only reads it and is safe for concurrent use.
type Source struct {
	f         *elfx.File
	stringMax int
	window    int

	funcs  []export.Function
	bodies map[uint64]funcRange
	names  map[uint64]string
	edges  []model.CallEdge
}

var _ export.Provider = (*Source)(nil)

// New scans f: function symbols in executable segments become vertices,
// BL instructions become call edges, and BL targets that no symbol covers
// become IMPORTED vertices named sub_<hex>.
func New(f *elfx.File, opts Options) (*Source, error) {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	libs := make([]*regexp.Regexp, 0, len(opts.LibraryPatterns))
	for _, p := range opts.LibraryPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("elfsrc: library pattern %q: %w", p, err)
		}
		libs = append(libs, re)
	}
	s := &Source{
		f:         f,
		stringMax: cmp.Or(opts.StringMax, defaultStringMax),
		window:    cmp.Or(opts.RefWindow, defaultRefWindow),
		bodies:    make(map[uint64]funcRange),
		names:     make(map[uint64]string),
	}

	syms, err := f.Symbols()
	if err != nil {
		return nil, fmt.Errorf("elfsrc: %w", err)
	}
	segs := f.LoadSegments()
	for _, sym := range syms {
		s.names[sym.Addr] = sym.Name
		if !sym.Func || sym.Size == 0 || !f.IsExecutable(sym.Addr) {
			continue
		}
		if !inCode(segs, sym.Addr, sym.Size) {
			log.Warn("symbol runs past its segment", "name", sym.Name,
				"addr", fmt.Sprintf("0x%x", sym.Addr), "size", sym.Size)
			continue
		}
		s.bodies[sym.Addr] = funcRange{name: sym.Name, size: sym.Size}
	}

	for _, addr := range slices.Sorted(maps.Keys(s.bodies)) {
		fr := s.bodies[addr]
		insts, err := s.disassemble(addr, fr.size)
		if err != nil {
			return nil, err
		}
		if len(insts) == 0 {
			delete(s.bodies, addr)
			continue
		}
		typ := model.FunctionNormal
		switch {
		case matchAny(libs, fr.name):
			typ = model.FunctionLibrary
		case disasm.IsThunk(insts):
			typ = model.FunctionThunk
		}
		s.funcs = append(s.funcs, export.Function{
			Address:     addr,
			Type:        typ,
			MangledName: fr.name,
			HasRealName: true,
		})
		for _, ce := range disasm.ExtractCallEdges(insts) {
			if ce.Kind != "bl" {
				continue
			}
			s.edges = append(s.edges, model.CallEdge{
				SourceFunction:    addr,
				SourceInstruction: ce.FromPC,
				TargetFunction:    ce.TargetPC,
			})
		}
	}

	seen := make(map[uint64]bool, len(s.funcs))
	for _, fn := range s.funcs {
		seen[fn.Address] = true
	}
	for _, e := range s.edges {
		if seen[e.TargetFunction] {
			continue
		}
		seen[e.TargetFunction] = true
		name, named := s.names[e.TargetFunction]
		if !named {
			name = fmt.Sprintf("sub_%x", e.TargetFunction)
		}
		s.funcs = append(s.funcs, export.Function{
			Address:     e.TargetFunction,
			Type:        model.FunctionImported,
			MangledName: name,
			HasRealName: named,
		})
	}
	slices.SortFunc(s.funcs, func(a, b export.Function) int { return cmp.Compare(a.Address, b.Address) })

	log.Debug("elf scanned",
		"symbols", len(syms),
		"functions", len(s.bodies),
		"vertices", len(s.funcs),
		"call_edges", len(s.edges))
	return s, nil
}

// Functions returns every vertex in address order.
func (s *Source) Functions(ctx context.Context) ([]export.Function, error) {
	return s.funcs, nil
}

// CallEdges returns one edge per BL instruction, in address order.
func (s *Source) CallEdges(ctx context.Context) ([]model.CallEdge, error) {
	return s.edges, nil
}

// Body disassembles fn and splits it into basic blocks.
func (s *Source) Body(ctx context.Context, fn export.Function) (*export.Body, error) {
	fr, ok := s.bodies[fn.Address]
	if !ok {
		return nil, fmt.Errorf("%w: 0x%x", ErrNoBody, fn.Address)
	}
	insts, err := s.disassemble(fn.Address, fr.size)
	if err != nil {
		return nil, err
	}
	cfg := disasm.BuildCFG(fr.name, insts)

	refs := make(map[uint64]disasm.Ref)
	for _, r := range disasm.ScanRefs(insts, s.window) {
		if r.Kind == disasm.RefAdd {
			refs[r.PC] = r
		}
	}

	body := &export.Body{Blocks: make([]export.Block, len(cfg.Blocks))}
	for bi, blk := range cfg.Blocks {
		out := make([]export.Instruction, 0, blk.End-blk.Start)
		for _, inst := range insts[blk.Start:blk.End] {
			out = append(out, s.instruction(inst, refs))
		}
		body.Blocks[bi].Instructions = out
	}
	for _, e := range cfg.Edges() {
		body.Edges = append(body.Edges, model.FlowEdge{Source: e.From, Target: e.To, Type: edgeType(e.Cond)})
	}
	return body, nil
}

func (s *Source) instruction(inst disasm.Inst, refs map[uint64]disasm.Ref) export.Instruction {
	out := export.Instruction{
		Address:  inst.Addr,
		Bytes:    inst.Bytes(),
		Mnemonic: inst.Mnemonic,
		Operands: disasm.OperandRuns(inst, s.lookup),
	}
	for _, ce := range disasm.ExtractCallEdges([]disasm.Inst{inst}) {
		if ce.Kind != "bl" {
			continue
		}
		out.CallTargets = append(out.CallTargets, ce.TargetPC)
		if name, ok := s.names[ce.TargetPC]; ok {
			out.Comments = append(out.Comments, export.Comment{
				Text: name,
				Type: markup.CommentFunction,
			})
		}
	}
	if r, ok := refs[inst.Addr]; ok {
		if str, ok := s.f.CString(r.Addr, s.stringMax); ok && printable(str) {
			out.StringData = str
			out.Comments = append(out.Comments, export.Comment{
				Text:      strconv.Quote(string(str)),
				Type:      markup.CommentGlobalReference,
				OperandID: 2,
			})
		}
	}
	return out
}

func (s *Source) lookup(addr uint64) (string, bool) {
	name, ok := s.names[addr]
	return name, ok
}

// inCode reports whether [addr, addr+size) lies in the file-backed part of
// one executable segment.
func inCode(segs []elfx.SegmentInfo, addr, size uint64) bool {
	for _, seg := range segs {
		if seg.Flags&elf.PF_X == 0 || addr < seg.Vaddr || addr-seg.Vaddr >= seg.Filesz {
			continue
		}
		return size <= seg.Filesz-(addr-seg.Vaddr)
	}
	return false
}

func (s *Source) disassemble(addr, size uint64) ([]disasm.Inst, error) {
	code, err := s.f.ReadBytesAtVA(addr, int(min(size, math.MaxInt32)))
	if err != nil {
		return nil, fmt.Errorf("elfsrc: read 0x%x: %w", addr, err)
	}
	return disasm.Disassemble(code, disasm.Options{BaseAddr: addr}), nil
}

func edgeType(cond string) model.EdgeType {
	switch cond {
	case "T":
		return model.EdgeConditionTrue
	case "F":
		return model.EdgeConditionFalse
	}
	return model.EdgeUnconditional
}

func matchAny(res []*regexp.Regexp, name string) bool {
	for _, re := range res {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

// printable accepts non-empty UTF-8 text with no control characters other
// than tab and newlines.
func printable(b []byte) bool {
	if len(b) == 0 || !utf8.Valid(b) {
		return false
	}
	for _, r := range string(b) {
		if unicode.IsControl(r) && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}
