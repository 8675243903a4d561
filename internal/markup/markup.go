// Package markup encodes typed operand text as a byte stream in which
// reserved control bytes mark the start of each run, and packs the comment
// attribute flags word.
//
// Stream layout: marker byte, run text, marker byte, run text, ...
// Every byte below 0x20 belongs to the marker range. Markers 0x10..0x1C
// map to the tags below; any other byte in the range is a decode error,
// never literal text.
package markup

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMarkup is wrapped by every encode and decode failure in this package.
var ErrMarkup = errors.New("markup: invalid operand stream")

// Tag classifies a run of operand text.
type Tag uint8

const (
	Mnemonic Tag = iota
	Symbol
	ImmediateInt
	ImmediateFloat
	Operator
	Register
	SizePrefix
	Dereference
	NewOperand
	StackVariable
	GlobalVariable
	JumpLabel
	Function

	numTags
)

const (
	markerBase  = 0x10
	markerLimit = 0x20 // bytes below this are markers
)

var tagNames = [numTags]string{
	"MNEMONIC", "SYMBOL", "IMMEDIATE_INT", "IMMEDIATE_FLOAT", "OPERATOR",
	"REGISTER", "SIZEPREFIX", "DEREFERENCE", "NEWOPERAND", "STACKVARIABLE",
	"GLOBALVARIABLE", "JUMPLABEL", "FUNCTION",
}

func (t Tag) String() string {
	if t < numTags {
		return tagNames[t]
	}
	return fmt.Sprintf("Tag(%d)", uint8(t))
}

// Valid reports whether t is a known tag.
func (t Tag) Valid() bool { return t < numTags }

// Marker returns the byte that introduces a run of this tag.
func (t Tag) Marker() byte { return markerBase + byte(t) }

// Run is one typed span of operand text.
type Run struct {
	Tag  Tag
	Text string
}

// DecodeError reports the first byte that could not be decoded.
type DecodeError struct {
	Offset int
	Byte   byte
	Msg    string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("markup: offset %d (0x%02x): %s", e.Offset, e.Byte, e.Msg)
}

func (e *DecodeError) Unwrap() error { return ErrMarkup }

// Encode flattens runs into the marker byte stream.
func Encode(runs []Run) ([]byte, error) {
	n := 0
	for _, r := range runs {
		n += 1 + len(r.Text)
	}
	out := make([]byte, 0, n)
	for i, r := range runs {
		if !r.Tag.Valid() {
			return nil, fmt.Errorf("%w: run %d has unknown tag %d", ErrMarkup, i, r.Tag)
		}
		for j := 0; j < len(r.Text); j++ {
			if r.Text[j] < markerLimit {
				return nil, fmt.Errorf("%w: run %d: byte 0x%02x at %d collides with marker range", ErrMarkup, i, r.Text[j], j)
			}
		}
		out = append(out, r.Tag.Marker())
		out = append(out, r.Text...)
	}
	return out, nil
}

// Decode splits a marker byte stream back into runs.
func Decode(data []byte) ([]Run, error) {
	var runs []Run
	i := 0
	for i < len(data) {
		b := data[i]
		if b >= markerLimit {
			return nil, &DecodeError{Offset: i, Byte: b, Msg: "literal text before first marker"}
		}
		if b < markerBase || b >= markerBase+byte(numTags) {
			return nil, &DecodeError{Offset: i, Byte: b, Msg: "unknown marker"}
		}
		start := i + 1
		end := start
		for end < len(data) && data[end] >= markerLimit {
			end++
		}
		runs = append(runs, Run{Tag: Tag(b - markerBase), Text: string(data[start:end])})
		i = end
	}
	return runs, nil
}

// Text concatenates the display text of runs.
func Text(runs []Run) string {
	var b strings.Builder
	for _, r := range runs {
		b.WriteString(r.Text)
	}
	return b.String()
}
