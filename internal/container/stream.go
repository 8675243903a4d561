package container

import (
	"encoding/binary"
	"errors"
)

var errStreamEOF = errors.New("stream: unexpected end of data")

// stream reads little-endian fields from a header buffer.
type stream struct {
	data []byte
	pos  int
}

func newStream(data []byte) *stream {
	return &stream{data: data}
}

func (s *stream) readUint32() (uint32, error) {
	if s.pos+4 > len(s.data) {
		return 0, errStreamEOF
	}
	v := binary.LittleEndian.Uint32(s.data[s.pos:])
	s.pos += 4
	return v, nil
}

func (s *stream) readUint64() (uint64, error) {
	if s.pos+8 > len(s.data) {
		return 0, errStreamEOF
	}
	v := binary.LittleEndian.Uint64(s.data[s.pos:])
	s.pos += 8
	return v, nil
}
