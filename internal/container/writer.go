package container

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"binexport/internal/model"
)

// Writer streams one container to a seekable store. The header region is
// reserved up front for the declared number of flow graphs; records are
// appended as they arrive and only the offset index is buffered. Close
// seeks back and patches the header.
//
// Records must be written in order: Meta, CallGraph, then every flow graph
// in ascending address order, so the index on disk matches append order.
// Any error is sticky: the store holds a partial file that the caller must
// discard.
type Writer struct {
	w        io.WriteSeeker
	closer   io.Closer
	pos      int64
	declared int
	header   Header
	meta     bool
	cg       bool
	err      error
	closed   bool
}

// NewWriter reserves a header for numFlowGraphs records at the current
// start of w.
func NewWriter(w io.WriteSeeker, numFlowGraphs int) (*Writer, error) {
	if numFlowGraphs < 0 || int64(numFlowGraphs) > math.MaxUint32 {
		return nil, fmt.Errorf("container: invalid flow graph count %d", numFlowGraphs)
	}
	size := HeaderSize(numFlowGraphs)
	if size > math.MaxUint32 {
		return nil, fmt.Errorf("%w: header for %d flow graphs", ErrOffsetOverflow, numFlowGraphs)
	}
	if _, err := w.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("%w: seek header: %w", ErrIO, err)
	}
	if _, err := w.Write(make([]byte, size)); err != nil {
		return nil, fmt.Errorf("%w: reserve header: %w", ErrIO, err)
	}
	return &Writer{
		w:        w,
		pos:      size,
		declared: numFlowGraphs,
		header:   Header{FlowGraphs: make([]IndexEntry, 0, numFlowGraphs)},
	}, nil
}

// Create creates path and returns a Writer that closes the file on Close.
func Create(path string, numFlowGraphs int) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("%w: create %s: %w", ErrIO, path, err)
	}
	w, err := NewWriter(f, numFlowGraphs)
	if err != nil {
		f.Close()
		return nil, err
	}
	w.closer = f
	return w, nil
}

// Offset returns the number of bytes written so far, header included.
func (w *Writer) Offset() int64 { return w.pos }

// Written returns the number of flow graphs appended.
func (w *Writer) Written() int { return len(w.header.FlowGraphs) }

// WriteMeta appends the Meta record.
func (w *Writer) WriteMeta(m *model.Meta) error {
	if err := w.check(); err != nil {
		return err
	}
	if w.meta {
		return w.fail(errors.New("container: meta already written"))
	}
	data, err := model.MarshalMeta(m)
	if err != nil {
		return w.fail(fmt.Errorf("container: encode meta: %w", err))
	}
	off, err := w.append(KindMeta, data)
	if err != nil {
		return err
	}
	w.header.MetaOffset = off
	w.meta = true
	return nil
}

// WriteCallGraph appends the CallGraph record.
func (w *Writer) WriteCallGraph(cg *model.CallGraph) error {
	if err := w.check(); err != nil {
		return err
	}
	if !w.meta || w.cg {
		return w.fail(errors.New("container: callgraph must follow meta exactly once"))
	}
	data, err := model.MarshalCallGraph(cg)
	if err != nil {
		return w.fail(fmt.Errorf("container: encode callgraph: %w", err))
	}
	off, err := w.append(KindCallGraph, data)
	if err != nil {
		return err
	}
	w.header.CallGraphOffset = off
	w.cg = true
	return nil
}

// WriteFlowGraph validates, encodes and appends one flow graph. A flow
// graph that violates an invariant is rejected before any byte is written.
func (w *Writer) WriteFlowGraph(fg *model.FlowGraph) error {
	if err := w.check(); err != nil {
		return err
	}
	if !w.cg {
		return w.fail(errors.New("container: flowgraphs must follow the callgraph"))
	}
	if len(w.header.FlowGraphs) == w.declared {
		return w.fail(fmt.Errorf("container: more than the %d declared flow graphs", w.declared))
	}
	if n := len(w.header.FlowGraphs); n > 0 {
		switch prev := w.header.FlowGraphs[n-1].Address; {
		case fg.Address == prev:
			return w.fail(&model.InvariantError{Record: KindFlowGraph, Address: fg.Address, Msg: "duplicate flow graph address"})
		case fg.Address < prev:
			return w.fail(&model.InvariantError{Record: KindFlowGraph, Address: fg.Address,
				Msg: fmt.Sprintf("address below previous flow graph 0x%x", prev)})
		}
	}
	data, err := model.MarshalFlowGraph(fg)
	if err != nil {
		return w.fail(fmt.Errorf("container: encode flowgraph 0x%x: %w", fg.Address, err))
	}
	off, err := w.append(KindFlowGraph, data)
	if err != nil {
		return err
	}
	w.header.FlowGraphs = append(w.header.FlowGraphs, IndexEntry{Address: fg.Address, Offset: off})
	return nil
}

// Close patches the header. Index entries are written in append order,
// which WriteFlowGraph keeps ascending by address.
func (w *Writer) Close() error {
	if w.closed {
		return w.err
	}
	w.closed = true
	err := w.finish()
	if w.closer != nil {
		if cerr := w.closer.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("%w: close: %w", ErrIO, cerr)
		}
	}
	if err != nil && w.err == nil {
		w.err = err
	}
	return err
}

func (w *Writer) finish() error {
	if w.err != nil {
		return w.err
	}
	if !w.meta || !w.cg {
		return errors.New("container: meta and callgraph are required")
	}
	if n := len(w.header.FlowGraphs); n != w.declared {
		return fmt.Errorf("container: wrote %d flow graphs, declared %d", n, w.declared)
	}
	buf, _ := w.header.MarshalBinary()
	if _, err := w.w.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("%w: seek header: %w", ErrIO, err)
	}
	if _, err := w.w.Write(buf); err != nil {
		return fmt.Errorf("%w: write header: %w", ErrIO, err)
	}
	if _, err := w.w.Seek(w.pos, io.SeekStart); err != nil {
		return fmt.Errorf("%w: seek end: %w", ErrIO, err)
	}
	return nil
}

func (w *Writer) append(kind string, data []byte) (uint32, error) {
	if w.pos > math.MaxUint32 {
		return 0, w.fail(fmt.Errorf("%w: %s at %d", ErrOffsetOverflow, kind, w.pos))
	}
	off := uint32(w.pos)
	n, err := w.w.Write(data)
	w.pos += int64(n)
	if err != nil {
		return 0, w.fail(fmt.Errorf("%w: write %s: %w", ErrIO, kind, err))
	}
	return off, nil
}

func (w *Writer) check() error {
	if w.closed {
		return errors.New("container: writer is closed")
	}
	return w.err
}

func (w *Writer) fail(err error) error {
	w.err = err
	return err
}
