package container

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"binexport/internal/diag"
	"binexport/internal/markup"
	"binexport/internal/model"
)

func simpleFlowGraph(addr uint64, mnemonics ...string) *model.FlowGraph {
	if len(mnemonics) == 0 {
		mnemonics = []string{"ret"}
	}
	bb := model.BasicBlock{}
	for i, m := range mnemonics {
		bb.Instructions = append(bb.Instructions, model.Instruction{
			Address:  addr + uint64(4*i),
			Mnemonic: m,
			Bytes:    []byte{0x00, 0x00, 0x00, byte(i)},
		})
	}
	return &model.FlowGraph{Address: addr, Blocks: []model.BasicBlock{bb}}
}

// writeFile writes meta, cg and fgs to a fresh file and returns its path.
func writeFile(t *testing.T, meta *model.Meta, cg *model.CallGraph, fgs ...*model.FlowGraph) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.BinExport")
	w, err := Create(path, len(fgs))
	require.NoError(t, err)
	require.NoError(t, w.WriteMeta(meta))
	require.NoError(t, w.WriteCallGraph(cg))
	for _, fg := range fgs {
		require.NoError(t, w.WriteFlowGraph(fg))
	}
	require.NoError(t, w.Close())
	return path
}

func openFile(t *testing.T, path string, mode diag.Mode) *Reader {
	t.Helper()
	r, err := Open(path, Options{Mode: mode})
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func threeFunctions() (*model.CallGraph, []*model.FlowGraph) {
	cg := &model.CallGraph{Vertices: []model.Vertex{
		{Address: 0x1000, MangledName: "f1", HasRealName: true},
		{Address: 0x2000, MangledName: "f2", HasRealName: true},
		{Address: 0x3000, MangledName: "f3", HasRealName: true},
	}}
	fgs := []*model.FlowGraph{
		simpleFlowGraph(0x1000, "push", "mov", "ret"),
		simpleFlowGraph(0x2000, "add", "ret"),
		simpleFlowGraph(0x3000, "ret"),
	}
	return cg, fgs
}

func TestRoundTrip(t *testing.T) {
	meta := &model.Meta{
		InputBinary:     "libfoo.so",
		InputHash:       []byte{0xde, 0xad, 0xbe, 0xef},
		AddressBits:     64,
		Architecture:    "arm64",
		MaxMnemonicLen:  4,
		NumInstructions: 6,
		NumFunctions:    3,
		NumBasicBlocks:  3,
	}
	cg, fgs := threeFunctions()
	path := writeFile(t, meta, cg, fgs...)
	r := openFile(t, path, diag.ModeBestEffort)

	assert.True(t, r.IndexSorted())
	assert.Equal(t, 3, r.FlowGraphCount())
	entries := r.Entries()
	require.Len(t, entries, 3)
	for i, want := range []uint64{0x1000, 0x2000, 0x3000} {
		assert.Equal(t, want, entries[i].Address)
		if i > 0 {
			// Index order is append order.
			assert.Greater(t, entries[i].Offset, entries[i-1].Offset)
		}
	}

	gotMeta, err := r.Meta()
	require.NoError(t, err)
	assert.Equal(t, meta, gotMeta)

	gotCG, err := r.CallGraph()
	require.NoError(t, err)
	assert.Equal(t, cg, gotCG)

	for _, want := range fgs {
		got, err := r.FlowGraphForAddress(want.Address)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestZeroFlowGraphs(t *testing.T) {
	path := writeFile(t, &model.Meta{InputBinary: "empty"}, &model.CallGraph{})
	r := openFile(t, path, diag.ModeStrict)

	assert.Equal(t, 0, r.FlowGraphCount())
	assert.Equal(t, uint32(HeaderSize(0)), r.Header().MetaOffset)
	m, err := r.Meta()
	require.NoError(t, err)
	assert.Equal(t, "empty", m.InputBinary)

	_, err = r.FlowGraphForAddress(0)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = r.FlowGraphAt(0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLibraryCallEndToEnd(t *testing.T) {
	meta := &model.Meta{
		InputBinary:     "a.exe",
		NumFunctions:    1,
		NumInstructions: 1,
		NumBasicBlocks:  1,
	}
	cg := &model.CallGraph{
		Vertices: []model.Vertex{
			{Address: 0x400000, Type: model.FunctionNormal, MangledName: "main", HasRealName: true},
			{Address: 0x401000, Type: model.FunctionLibrary, MangledName: "printf", HasRealName: true},
		},
		Edges: []model.CallEdge{
			{SourceFunction: 0x400000, SourceInstruction: 0x400010, TargetFunction: 0x401000},
		},
	}
	fg := &model.FlowGraph{
		Address: 0x400000,
		Blocks: []model.BasicBlock{{Instructions: []model.Instruction{{
			Address:     0x400010,
			Mnemonic:    "call",
			CallTargets: []uint64{0x401000},
		}}}},
	}
	path := writeFile(t, meta, cg, fg)
	r := openFile(t, path, diag.ModeStrict)

	gotCG, err := r.CallGraph()
	require.NoError(t, err)
	require.Len(t, gotCG.Vertices, 2)
	require.Len(t, gotCG.Edges, 1)
	assert.Equal(t, model.FunctionLibrary, gotCG.Vertices[1].Type)

	got, err := r.FlowGraphForAddress(0x400000)
	require.NoError(t, err)
	in := got.Blocks[0].Instructions[0]
	assert.Equal(t, "call", in.Mnemonic)
	assert.Equal(t, []uint64{0x401000}, in.CallTargets)

	_, err = r.FlowGraphForAddress(0x401000)
	assert.ErrorIs(t, err, ErrNotFound)

	rep := Verify(r)
	assert.True(t, rep.OK(), "diags: %v", rep.Diags.Items())
}

// corrupt overwrites the record extent of the flow graph at addr.
func corrupt(t *testing.T, path string, addr uint64) {
	t.Helper()
	r := openFile(t, path, diag.ModeBestEffort)
	i, ok := r.Lookup(addr)
	require.True(t, ok)
	off := r.Entries()[i].Offset
	j := 0
	for j < len(r.offsets) && r.offsets[j] <= off {
		j++
	}
	end := r.Size()
	if j < len(r.offsets) {
		end = int64(r.offsets[j])
	}
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	for k := int64(off); k < end; k++ {
		data[k] = 0xff
	}
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestRandomAccessSurvivesCorruptNeighbours(t *testing.T) {
	cg, fgs := threeFunctions()
	path := writeFile(t, &model.Meta{}, cg, fgs...)
	corrupt(t, path, 0x1000)
	corrupt(t, path, 0x3000)

	r := openFile(t, path, diag.ModeBestEffort)
	got, err := r.FlowGraphForAddress(0x2000)
	require.NoError(t, err)
	assert.Equal(t, fgs[1], got)

	for _, addr := range []uint64{0x1000, 0x3000} {
		_, err := r.FlowGraphForAddress(addr)
		require.ErrorIs(t, err, ErrRecord, "addr 0x%x", addr)
		var re *RecordError
		require.True(t, errors.As(err, &re))
		assert.Equal(t, addr, re.Address)
	}

	_, err = r.FlowGraphForAddress(0x9999)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrRecord)
}

func TestTruncatedLastRecord(t *testing.T) {
	cg, fgs := threeFunctions()
	path := writeFile(t, &model.Meta{}, cg, fgs...)

	r := openFile(t, path, diag.ModeBestEffort)
	var last IndexEntry
	for _, e := range r.Entries() {
		if e.Offset > last.Offset {
			last = e
		}
	}
	require.NoError(t, os.Truncate(path, int64(last.Offset)))

	r = openFile(t, path, diag.ModeBestEffort)
	for _, fg := range fgs {
		got, err := r.FlowGraphForAddress(fg.Address)
		if fg.Address == last.Address {
			require.ErrorIs(t, err, ErrRecord)
			assert.ErrorIs(t, err, errTruncated)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, fg, got)
	}

	rep := Verify(r)
	assert.False(t, rep.OK())
	assert.Equal(t, 2, rep.Decoded)
	var truncated int
	for _, d := range rep.Diags.Items() {
		if d.Kind == diag.KindTruncated {
			truncated++
		}
	}
	assert.Equal(t, 1, truncated)
}

func TestWriterRejectsEmptyBlock(t *testing.T) {
	var buf seekBuffer
	w, err := NewWriter(&buf, 2)
	require.NoError(t, err)
	require.NoError(t, w.WriteMeta(&model.Meta{}))
	require.NoError(t, w.WriteCallGraph(&model.CallGraph{}))
	require.NoError(t, w.WriteFlowGraph(simpleFlowGraph(0x1000)))

	before := w.Offset()
	size := len(buf.data)
	bad := &model.FlowGraph{Address: 0x2000, Blocks: []model.BasicBlock{{}}}
	err = w.WriteFlowGraph(bad)
	require.ErrorIs(t, err, model.ErrInvariant)
	assert.Equal(t, before, w.Offset())
	assert.Equal(t, size, len(buf.data))

	// The writer stays failed.
	assert.ErrorIs(t, w.WriteFlowGraph(simpleFlowGraph(0x3000)), model.ErrInvariant)
	assert.ErrorIs(t, w.Close(), model.ErrInvariant)
}

func TestWriterOrderAndCount(t *testing.T) {
	t.Run("flowgraph before callgraph", func(t *testing.T) {
		var buf seekBuffer
		w, err := NewWriter(&buf, 1)
		require.NoError(t, err)
		require.NoError(t, w.WriteMeta(&model.Meta{}))
		assert.Error(t, w.WriteFlowGraph(simpleFlowGraph(0x1000)))
	})
	t.Run("callgraph before meta", func(t *testing.T) {
		var buf seekBuffer
		w, err := NewWriter(&buf, 0)
		require.NoError(t, err)
		assert.Error(t, w.WriteCallGraph(&model.CallGraph{}))
	})
	t.Run("too many", func(t *testing.T) {
		var buf seekBuffer
		w, err := NewWriter(&buf, 1)
		require.NoError(t, err)
		require.NoError(t, w.WriteMeta(&model.Meta{}))
		require.NoError(t, w.WriteCallGraph(&model.CallGraph{}))
		require.NoError(t, w.WriteFlowGraph(simpleFlowGraph(0x1000)))
		assert.Error(t, w.WriteFlowGraph(simpleFlowGraph(0x2000)))
	})
	t.Run("too few", func(t *testing.T) {
		var buf seekBuffer
		w, err := NewWriter(&buf, 2)
		require.NoError(t, err)
		require.NoError(t, w.WriteMeta(&model.Meta{}))
		require.NoError(t, w.WriteCallGraph(&model.CallGraph{}))
		require.NoError(t, w.WriteFlowGraph(simpleFlowGraph(0x1000)))
		assert.Error(t, w.Close())
	})
	t.Run("duplicate address", func(t *testing.T) {
		var buf seekBuffer
		w, err := NewWriter(&buf, 2)
		require.NoError(t, err)
		require.NoError(t, w.WriteMeta(&model.Meta{}))
		require.NoError(t, w.WriteCallGraph(&model.CallGraph{}))
		require.NoError(t, w.WriteFlowGraph(simpleFlowGraph(0x1000)))
		assert.ErrorIs(t, w.WriteFlowGraph(simpleFlowGraph(0x1000)), model.ErrInvariant)
	})
	t.Run("descending address", func(t *testing.T) {
		var buf seekBuffer
		w, err := NewWriter(&buf, 2)
		require.NoError(t, err)
		require.NoError(t, w.WriteMeta(&model.Meta{}))
		require.NoError(t, w.WriteCallGraph(&model.CallGraph{}))
		require.NoError(t, w.WriteFlowGraph(simpleFlowGraph(0x3000)))
		err = w.WriteFlowGraph(simpleFlowGraph(0x1000))
		assert.ErrorIs(t, err, model.ErrInvariant)
		var ie *model.InvariantError
		require.ErrorAs(t, err, &ie)
		assert.Equal(t, uint64(0x1000), ie.Address)
		assert.ErrorIs(t, w.Close(), model.ErrInvariant)
	})
	t.Run("write after close", func(t *testing.T) {
		var buf seekBuffer
		w, err := NewWriter(&buf, 0)
		require.NoError(t, err)
		require.NoError(t, w.WriteMeta(&model.Meta{}))
		require.NoError(t, w.WriteCallGraph(&model.CallGraph{}))
		require.NoError(t, w.Close())
		assert.Error(t, w.WriteMeta(&model.Meta{}))
	})
}

func TestStructuralErrors(t *testing.T) {
	cg, fgs := threeFunctions()
	path := writeFile(t, &model.Meta{}, cg, fgs...)
	good, err := os.ReadFile(path)
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{"short file", func(b []byte) []byte { return b[:8] }},
		{"count past eof", func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b[8:], 1<<20)
			return b
		}},
		{"meta offset past eof", func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b[0:], uint32(len(b)))
			return b
		}},
		{"callgraph offset inside header", func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b[4:], 4)
			return b
		}},
		{"flowgraph offset inside header", func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b[fixedHeaderSize+8:], 0)
			return b
		}},
		{"duplicate address", func(b []byte) []byte {
			copy(b[fixedHeaderSize+indexEntrySize:fixedHeaderSize+indexEntrySize+8], b[fixedHeaderSize:fixedHeaderSize+8])
			return b
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.mutate(bytes.Clone(good))
			_, err := NewReader(bytes.NewReader(data), int64(len(data)), Options{})
			assert.ErrorIs(t, err, ErrStructure)
		})
	}
}

func TestUnsortedIndex(t *testing.T) {
	cg, fgs := threeFunctions()
	path := writeFile(t, &model.Meta{NumInstructions: 6, NumBasicBlocks: 3}, cg, fgs...)
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	// Reverse the index entries in place, as a foreign producer might.
	var h Header
	h.MetaOffset = binary.LittleEndian.Uint32(data[0:])
	h.CallGraphOffset = binary.LittleEndian.Uint32(data[4:])
	entries, err := parseIndex(data[fixedHeaderSize:HeaderSize(3)], 3)
	require.NoError(t, err)
	for i := range entries {
		h.FlowGraphs = append(h.FlowGraphs, entries[len(entries)-1-i])
	}
	hdr, err := h.MarshalBinary()
	require.NoError(t, err)
	copy(data, hdr)

	r, err := NewReader(bytes.NewReader(data), int64(len(data)), Options{})
	require.NoError(t, err)
	assert.False(t, r.IndexSorted())
	assert.Equal(t, uint64(0x1000), r.Entries()[0].Address)
	for _, fg := range fgs {
		got, err := r.FlowGraphForAddress(fg.Address)
		require.NoError(t, err)
		assert.Equal(t, fg, got)
	}

	rep := Verify(r)
	require.Equal(t, 1, rep.Diags.Len())
	assert.Equal(t, diag.KindOrder, rep.Diags.Items()[0].Kind)
}

// Records appended in discovery order rather than address order. Each
// extent must end at the next record in the file, not the next index entry.
func TestRecordsInDiscoveryOrder(t *testing.T) {
	cg, fgs := threeFunctions()
	order := []*model.FlowGraph{fgs[2], fgs[0], fgs[1]}

	var body bytes.Buffer
	h := Header{}
	start := HeaderSize(len(order))
	put := func(data []byte) uint32 {
		off := uint32(start + int64(body.Len()))
		body.Write(data)
		return off
	}
	meta, err := model.MarshalMeta(&model.Meta{NumInstructions: 6, NumBasicBlocks: 3})
	require.NoError(t, err)
	h.MetaOffset = put(meta)
	cgData, err := model.MarshalCallGraph(cg)
	require.NoError(t, err)
	h.CallGraphOffset = put(cgData)
	for _, fg := range order {
		data, err := model.MarshalFlowGraph(fg)
		require.NoError(t, err)
		h.FlowGraphs = append(h.FlowGraphs, IndexEntry{Address: fg.Address, Offset: put(data)})
	}
	hdr, err := h.MarshalBinary()
	require.NoError(t, err)
	data := append(hdr, body.Bytes()...)

	r, err := NewReader(bytes.NewReader(data), int64(len(data)), Options{Mode: diag.ModeStrict})
	require.NoError(t, err)
	assert.False(t, r.IndexSorted())
	for _, fg := range fgs {
		got, err := r.FlowGraphForAddress(fg.Address)
		require.NoError(t, err, "0x%x", fg.Address)
		assert.Equal(t, fg, got)
	}
}

func TestStrictMarkup(t *testing.T) {
	ops, err := markup.Encode([]markup.Run{
		{Tag: markup.Register, Text: "x0"},
		{Tag: markup.Operator, Text: ", "},
		{Tag: markup.ImmediateInt, Text: "#1"},
	})
	require.NoError(t, err)
	good := simpleFlowGraph(0x1000, "mov")
	good.Blocks[0].Instructions[0].Operands = ops
	bad := simpleFlowGraph(0x2000, "mov")
	bad.Blocks[0].Instructions[0].Operands = []byte{0x1f, 'x', '0'}

	cg := &model.CallGraph{Vertices: []model.Vertex{{Address: 0x1000}, {Address: 0x2000}}}
	path := writeFile(t, &model.Meta{}, cg, good, bad)

	lax := openFile(t, path, diag.ModeBestEffort)
	_, err = lax.FlowGraphForAddress(0x2000)
	require.NoError(t, err)
	rep := Verify(lax)
	assert.Equal(t, 1, rep.MarkupErrors)

	strict := openFile(t, path, diag.ModeStrict)
	fg, err := strict.FlowGraphForAddress(0x1000)
	require.NoError(t, err)
	runs, err := fg.Blocks[0].Instructions[0].OperandRuns()
	require.NoError(t, err)
	assert.Equal(t, "x0, #1", markup.Text(runs))

	_, err = strict.FlowGraphForAddress(0x2000)
	require.ErrorIs(t, err, ErrRecord)
	assert.ErrorIs(t, err, markup.ErrMarkup)
}

func TestVerifyCounts(t *testing.T) {
	cg, fgs := threeFunctions()
	cg.Vertices = append(cg.Vertices, model.Vertex{Address: 0x4000, Type: model.FunctionLibrary})
	meta := &model.Meta{NumFunctions: 3, NumInstructions: 6, NumBasicBlocks: 3}
	r := openFile(t, writeFile(t, meta, cg, fgs...), diag.ModeStrict)

	rep := Verify(r)
	assert.True(t, rep.OK(), "diags: %v", rep.Diags.Items())
	assert.Equal(t, 3, rep.Decoded)
	assert.Equal(t, 6, rep.Instructions)

	meta.NumInstructions = 7
	extra := simpleFlowGraph(0x4000)
	r = openFile(t, writeFile(t, meta, cg, append(fgs, extra)...), diag.ModeStrict)
	rep = Verify(r)
	kinds := map[diag.Kind]int{}
	for _, d := range rep.Diags.Items() {
		kinds[d.Kind]++
	}
	// 0x4000 is a library function, and the block count no longer matches.
	assert.Equal(t, 2, kinds[diag.KindInvalid])
}

func TestConcurrentLookups(t *testing.T) {
	cg := &model.CallGraph{}
	var fgs []*model.FlowGraph
	for i := 0; i < 64; i++ {
		addr := uint64(0x10000 + i*0x100)
		cg.Vertices = append(cg.Vertices, model.Vertex{Address: addr})
		fgs = append(fgs, simpleFlowGraph(addr, "mov", "ret"))
	}
	r := openFile(t, writeFile(t, &model.Meta{}, cg, fgs...), diag.ModeStrict)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := range fgs {
				fg := fgs[(i+g*7)%len(fgs)]
				got, err := r.FlowGraphForAddress(fg.Address)
				if err != nil {
					errs <- err
					return
				}
				if got.Address != fg.Address || got.NumInstructions() != 2 {
					errs <- fmt.Errorf("flowgraph 0x%x decoded as 0x%x", fg.Address, got.Address)
					return
				}
			}
		}(g)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestHeaderSize(t *testing.T) {
	assert.Equal(t, int64(12), HeaderSize(0))
	assert.Equal(t, int64(48), HeaderSize(3))
}

// seekBuffer is an in-memory io.WriteSeeker.
type seekBuffer struct {
	data []byte
	pos  int64
}

func (b *seekBuffer) Write(p []byte) (int, error) {
	end := b.pos + int64(len(p))
	if end > int64(len(b.data)) {
		b.data = append(b.data, make([]byte, end-int64(len(b.data)))...)
	}
	copy(b.data[b.pos:], p)
	b.pos = end
	return len(p), nil
}

func (b *seekBuffer) Seek(off int64, whence int) (int64, error) {
	switch whence {
	case 0:
		b.pos = off
	case 1:
		b.pos += off
	case 2:
		b.pos = int64(len(b.data)) + off
	}
	if b.pos < 0 {
		return 0, errors.New("negative position")
	}
	return b.pos, nil
}
