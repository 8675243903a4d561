package container

import (
	"errors"
	"fmt"
)

var (
	// ErrIO wraps backing-store read, write and seek failures.
	ErrIO = errors.New("container: i/o failure")
	// ErrStructure means the header cannot be trusted; nothing is readable.
	ErrStructure = errors.New("container: malformed header")
	// ErrRecord means one record failed to decode; others stay readable.
	ErrRecord = errors.New("container: malformed record")
	// ErrNotFound is returned for lookups of absent flow graphs.
	ErrNotFound = errors.New("container: flow graph not found")
	// ErrOffsetOverflow is returned when a record would start beyond the
	// 32-bit offset range of the header.
	ErrOffsetOverflow = errors.New("container: record offset exceeds 32 bits")
)

var errTruncated = errors.New("offset beyond end of file")

// Record kinds used in errors and diagnostics.
const (
	KindMeta      = "meta"
	KindCallGraph = "callgraph"
	KindFlowGraph = "flowgraph"
)

// RecordError identifies the record that failed to decode. It matches both
// ErrRecord and the underlying cause with errors.Is.
type RecordError struct {
	Kind    string
	Index   int    // position in the sorted index; -1 for meta and callgraph
	Address uint64 // flow graph entry address
	Offset  uint32
	Err     error
}

func (e *RecordError) Error() string {
	if e.Kind == KindFlowGraph {
		return fmt.Sprintf("container: flowgraph %d (0x%x) at offset 0x%x: %v", e.Index, e.Address, e.Offset, e.Err)
	}
	return fmt.Sprintf("container: %s at offset 0x%x: %v", e.Kind, e.Offset, e.Err)
}

func (e *RecordError) Unwrap() []error { return []error{ErrRecord, e.Err} }

func structuralf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrStructure, fmt.Sprintf(format, args...))
}
