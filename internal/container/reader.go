package container

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"binexport/internal/diag"
	"binexport/internal/model"
)

// Options controls reader behavior.
type Options struct {
	Mode diag.Mode
}

// Reader gives random access to the records of one container. It only
// uses ReadAt, and its state is immutable after construction, so
// concurrent lookups on one Reader are safe.
type Reader struct {
	r      io.ReaderAt
	closer io.Closer
	size   int64
	mode   diag.Mode

	header  Header // FlowGraphs sorted by address
	sorted  bool   // index was already sorted on disk
	offsets []uint32
}

// Open opens the container at path.
func Open(path string, opts Options) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open: %w", ErrIO, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: stat: %w", ErrIO, err)
	}
	r, err := NewReader(f, info.Size(), opts)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.closer = f
	return r, nil
}

// NewReader reads and validates the header of a container of the given
// size. Header problems are reported as ErrStructure. Flow graph offsets
// past the end of the data are not structural: they surface as ErrRecord
// when that record is read.
func NewReader(ra io.ReaderAt, size int64, opts Options) (*Reader, error) {
	if size < fixedHeaderSize {
		return nil, structuralf("file is %d bytes, header needs %d", size, fixedHeaderSize)
	}
	fixed := make([]byte, fixedHeaderSize)
	if err := readFull(ra, fixed, 0); err != nil {
		return nil, fmt.Errorf("%w: read header: %w", ErrIO, err)
	}
	s := newStream(fixed)
	metaOff, _ := s.readUint32()
	cgOff, _ := s.readUint32()
	count, _ := s.readUint32()

	headerEnd := HeaderSize(int(count))
	if headerEnd > size {
		return nil, structuralf("header declares %d flow graphs (%d bytes) but file is %d bytes", count, headerEnd, size)
	}
	if int64(metaOff) < headerEnd || int64(metaOff) >= size {
		return nil, structuralf("meta offset 0x%x outside records [0x%x, 0x%x)", metaOff, headerEnd, size)
	}
	if int64(cgOff) < headerEnd || int64(cgOff) >= size {
		return nil, structuralf("callgraph offset 0x%x outside records [0x%x, 0x%x)", cgOff, headerEnd, size)
	}

	raw := make([]byte, headerEnd-fixedHeaderSize)
	if err := readFull(ra, raw, fixedHeaderSize); err != nil {
		return nil, fmt.Errorf("%w: read index: %w", ErrIO, err)
	}
	entries, err := parseIndex(raw, int(count))
	if err != nil {
		return nil, structuralf("%v", err)
	}

	rd := &Reader{
		r:    ra,
		size: size,
		mode: opts.Mode,
		header: Header{
			MetaOffset:      metaOff,
			CallGraphOffset: cgOff,
			FlowGraphs:      entries,
		},
		sorted: indexSorted(entries),
	}
	if !rd.sorted {
		sortIndex(rd.header.FlowGraphs)
	}

	offs := []uint32{metaOff, cgOff}
	for i, e := range rd.header.FlowGraphs {
		if int64(e.Offset) < headerEnd {
			return nil, structuralf("flowgraph 0x%x offset 0x%x inside header", e.Address, e.Offset)
		}
		if i > 0 && rd.header.FlowGraphs[i-1].Address == e.Address {
			return nil, structuralf("duplicate flowgraph address 0x%x", e.Address)
		}
		if int64(e.Offset) < size {
			offs = append(offs, e.Offset)
		}
	}
	sort.Slice(offs, func(i, j int) bool { return offs[i] < offs[j] })
	rd.offsets = offs
	return rd, nil
}

// Close closes the underlying file when the reader was created by Open.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// Size returns the container size in bytes.
func (r *Reader) Size() int64 { return r.size }

// Mode returns the decode mode.
func (r *Reader) Mode() diag.Mode { return r.mode }

// IndexSorted reports whether the producer wrote the index in address
// order. Unsorted indexes are sorted on load.
func (r *Reader) IndexSorted() bool { return r.sorted }

// Header returns the header with the index in address order.
func (r *Reader) Header() Header {
	h := r.header
	h.FlowGraphs = append([]IndexEntry(nil), r.header.FlowGraphs...)
	return h
}

// Entries returns the flow graph index in address order.
func (r *Reader) Entries() []IndexEntry {
	return append([]IndexEntry(nil), r.header.FlowGraphs...)
}

// FlowGraphCount returns the number of flow graphs declared in the header.
func (r *Reader) FlowGraphCount() int { return len(r.header.FlowGraphs) }

// Meta decodes the Meta record.
func (r *Reader) Meta() (*model.Meta, error) {
	data, err := r.record(KindMeta, -1, 0, r.header.MetaOffset)
	if err != nil {
		return nil, err
	}
	m, err := model.UnmarshalMeta(data)
	if err != nil {
		return nil, &RecordError{Kind: KindMeta, Index: -1, Offset: r.header.MetaOffset, Err: err}
	}
	return m, nil
}

// CallGraph decodes the CallGraph record.
func (r *Reader) CallGraph() (*model.CallGraph, error) {
	data, err := r.record(KindCallGraph, -1, 0, r.header.CallGraphOffset)
	if err != nil {
		return nil, err
	}
	cg, err := model.UnmarshalCallGraph(data)
	if err != nil {
		return nil, &RecordError{Kind: KindCallGraph, Index: -1, Offset: r.header.CallGraphOffset, Err: err}
	}
	return cg, nil
}

// FlowGraphAt decodes the flow graph at position i of the address-sorted
// index.
func (r *Reader) FlowGraphAt(i int) (*model.FlowGraph, error) {
	if i < 0 || i >= len(r.header.FlowGraphs) {
		return nil, fmt.Errorf("%w: index %d out of range [0, %d)", ErrNotFound, i, len(r.header.FlowGraphs))
	}
	e := r.header.FlowGraphs[i]
	data, err := r.record(KindFlowGraph, i, e.Address, e.Offset)
	if err != nil {
		return nil, err
	}
	fg, err := model.UnmarshalFlowGraph(data)
	if err == nil && fg.Address != e.Address {
		err = fmt.Errorf("record address 0x%x does not match index", fg.Address)
	}
	if err == nil && r.mode == diag.ModeStrict {
		err = checkMarkup(fg)
	}
	if err != nil {
		return nil, &RecordError{Kind: KindFlowGraph, Index: i, Address: e.Address, Offset: e.Offset, Err: err}
	}
	return fg, nil
}

// FlowGraphForAddress decodes the flow graph whose entry is addr. Only
// that record is read.
func (r *Reader) FlowGraphForAddress(addr uint64) (*model.FlowGraph, error) {
	i, ok := r.Lookup(addr)
	if !ok {
		return nil, fmt.Errorf("%w: 0x%x", ErrNotFound, addr)
	}
	return r.FlowGraphAt(i)
}

// Lookup returns the index position of the flow graph at addr.
func (r *Reader) Lookup(addr uint64) (int, bool) {
	fgs := r.header.FlowGraphs
	i := sort.Search(len(fgs), func(i int) bool { return fgs[i].Address >= addr })
	if i < len(fgs) && fgs[i].Address == addr {
		return i, true
	}
	return 0, false
}

// record reads the bytes of the record at off. The extent ends at the next
// larger record offset, or at end of file.
func (r *Reader) record(kind string, index int, addr uint64, off uint32) ([]byte, error) {
	if int64(off) >= r.size {
		return nil, &RecordError{Kind: kind, Index: index, Address: addr, Offset: off,
			Err: fmt.Errorf("%w (%d bytes)", errTruncated, r.size)}
	}
	end := r.size
	j := sort.Search(len(r.offsets), func(j int) bool { return r.offsets[j] > off })
	if j < len(r.offsets) {
		end = int64(r.offsets[j])
	}
	buf := make([]byte, end-int64(off))
	if err := readFull(r.r, buf, int64(off)); err != nil {
		return nil, fmt.Errorf("%w: read %s at 0x%x: %w", ErrIO, kind, off, err)
	}
	return buf, nil
}

func checkMarkup(fg *model.FlowGraph) error {
	for bi := range fg.Blocks {
		for ii := range fg.Blocks[bi].Instructions {
			in := &fg.Blocks[bi].Instructions[ii]
			if _, err := in.OperandRuns(); err != nil {
				return fmt.Errorf("instruction 0x%x: %w", in.Address, err)
			}
		}
	}
	return nil
}

func readFull(ra io.ReaderAt, buf []byte, off int64) error {
	n, err := ra.ReadAt(buf, off)
	if n == len(buf) {
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
