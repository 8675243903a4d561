package container

import (
	"encoding/binary"
	"fmt"
	"sort"
)

// Header layout (little-endian):
//
//	u32 meta_offset
//	u32 call_graph_offset
//	u32 num_flow_graphs
//	num_flow_graphs × { u64 entry_address, u32 offset }
const (
	fixedHeaderSize = 12
	indexEntrySize  = 12
)

// HeaderSize returns the size of a header declaring n flow graphs.
func HeaderSize(n int) int64 {
	return fixedHeaderSize + indexEntrySize*int64(n)
}

// IndexEntry locates one flow graph record.
type IndexEntry struct {
	Address uint64 `json:"address"`
	Offset  uint32 `json:"offset"`
}

// Header is the decoded file header.
type Header struct {
	MetaOffset      uint32
	CallGraphOffset uint32
	FlowGraphs      []IndexEntry
}

// MarshalBinary encodes the header in wire order.
func (h *Header) MarshalBinary() ([]byte, error) {
	buf := make([]byte, HeaderSize(len(h.FlowGraphs)))
	binary.LittleEndian.PutUint32(buf[0:], h.MetaOffset)
	binary.LittleEndian.PutUint32(buf[4:], h.CallGraphOffset)
	binary.LittleEndian.PutUint32(buf[8:], uint32(len(h.FlowGraphs)))
	off := fixedHeaderSize
	for _, e := range h.FlowGraphs {
		binary.LittleEndian.PutUint64(buf[off:], e.Address)
		binary.LittleEndian.PutUint32(buf[off+8:], e.Offset)
		off += indexEntrySize
	}
	return buf, nil
}

// parseIndex decodes n index entries.
func parseIndex(data []byte, n int) ([]IndexEntry, error) {
	s := newStream(data)
	entries := make([]IndexEntry, n)
	for i := range entries {
		addr, err := s.readUint64()
		if err != nil {
			return nil, fmt.Errorf("index entry %d: %w", i, err)
		}
		off, err := s.readUint32()
		if err != nil {
			return nil, fmt.Errorf("index entry %d: %w", i, err)
		}
		entries[i] = IndexEntry{Address: addr, Offset: off}
	}
	return entries, nil
}

// sortIndex orders entries by address, keeping the relative order of equal
// addresses.
func sortIndex(entries []IndexEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Address < entries[j].Address
	})
}

func indexSorted(entries []IndexEntry) bool {
	return sort.SliceIsSorted(entries, func(i, j int) bool {
		return entries[i].Address < entries[j].Address
	})
}
