// Package disasm provides ARM64 disassembly for code in ELF objects: decoding,
// branch and call detection, basic-block construction, ADRP page tracking,
// and operand tokenizing.
package disasm

import (
	"encoding/binary"
	"fmt"
	"strings"

	"golang.org/x/arch/arm64/arm64asm"
)

// Inst is a decoded ARM64 instruction with address and raw bytes.
type Inst struct {
	Addr     uint64
	Raw      uint32
	Size     int // always 4 for ARM64
	Mnemonic string
	Args     []string // one entry per operand; PC-relative operands are absolute
	Target   uint64   // absolute address of the PC-relative operand
	PCRel    int      // index of the PC-relative operand in Args, or -1
	Text     string   // full disassembly line
}

// Operands returns the operand text as printed in Text.
func (i *Inst) Operands() string { return strings.Join(i.Args, ", ") }

// Bytes returns the little-endian encoding.
func (i *Inst) Bytes() []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, i.Raw)
	return b
}

// SymbolLookup resolves an address to a symbolic name. Returns ("", false) if unknown.
type SymbolLookup func(addr uint64) (name string, ok bool)

// Options controls disassembly behavior.
type Options struct {
	BaseAddr uint64 // VA of the first byte in Data
	MaxSteps int    // maximum instructions to decode; 0 = 10M
}

const defaultMaxSteps = 10_000_000

func (o Options) effectiveMax() int {
	if o.MaxSteps > 0 {
		return o.MaxSteps
	}
	return defaultMaxSteps
}

// Disassemble decodes ARM64 instructions from a byte region.
// Returns decoded instructions up to MaxSteps or end of data.
func Disassemble(data []byte, opts Options) []Inst {
	n := min(len(data)/4, opts.effectiveMax())
	result := make([]Inst, 0, n)
	for i := 0; i < n; i++ {
		off := i * 4
		result = append(result, decodeAt(data[off:off+4], opts.BaseAddr+uint64(off)))
	}
	return result
}

func decodeAt(b []byte, addr uint64) Inst {
	raw := binary.LittleEndian.Uint32(b)
	inst := Inst{Addr: addr, Raw: raw, Size: 4, PCRel: -1}

	dec, err := arm64asm.Decode(b)
	if err != nil {
		inst.Mnemonic = ".word"
		inst.Args = []string{fmt.Sprintf("0x%08x", raw)}
		inst.Text = ".word " + inst.Args[0]
		return inst
	}
	inst.Mnemonic = dec.Op.String()
	for _, arg := range dec.Args {
		if arg == nil {
			break
		}
		if rel, ok := arg.(arm64asm.PCRel); ok {
			base := addr
			if dec.Op == arm64asm.ADRP {
				base &^= 0xFFF
			}
			inst.Target = uint64(int64(base) + int64(rel))
			inst.PCRel = len(inst.Args)
			inst.Args = append(inst.Args, fmt.Sprintf("0x%x", inst.Target))
			continue
		}
		inst.Args = append(inst.Args, arg.String())
	}
	inst.Text = inst.Mnemonic
	if len(inst.Args) > 0 {
		inst.Text += " " + inst.Operands()
	}
	return inst
}
