package disasm

// RefKind says how a data address was formed.
type RefKind uint8

const (
	RefAdd  RefKind = iota + 1 // ADRP Xn, page; ADD Xd, Xn, #lo12
	RefLoad                    // ADRP Xn, page; LDR Xt, [Xn, #lo12]
)

// Ref is a data address materialized by an ADRP pair.
type Ref struct {
	PC   uint64 // the ADD or LDR completing the pair
	Addr uint64
	Kind RefKind
}

type pageDef struct {
	page uint64
	age  int
	ok   bool
}

// PageTracker follows ADRP page values through X0-X30 within a window of w
// instructions. Calls clobber everything.
type PageTracker struct {
	defs [31]pageDef
	w    int
}

// NewPageTracker creates a tracker with the given window size.
func NewPageTracker(w int) *PageTracker {
	return &PageTracker{w: w}
}

// Reset clears all tracked definitions. Call between functions.
func (t *PageTracker) Reset() {
	t.defs = [31]pageDef{}
}

func (t *PageTracker) tick() {
	for i := range t.defs {
		if !t.defs[i].ok {
			continue
		}
		t.defs[i].age++
		if t.defs[i].age > t.w {
			t.defs[i] = pageDef{}
		}
	}
}

func (t *PageTracker) lookup(r int) (uint64, bool) {
	if r < 0 || r > 30 || !t.defs[r].ok {
		return 0, false
	}
	return t.defs[r].page, true
}

func (t *PageTracker) kill(r int) {
	if r >= 0 && r <= 30 {
		t.defs[r] = pageDef{}
	}
}

// Step feeds one instruction and reports the address it completes, if any.
func (t *PageTracker) Step(inst Inst) (Ref, bool) {
	t.tick()
	if rd, page, ok := isADRP(inst.Raw, inst.Addr); ok {
		if rd <= 30 {
			t.defs[rd] = pageDef{page: page, ok: true}
		}
		return Ref{}, false
	}
	if IsCall(inst.Raw) {
		t.Reset()
		return Ref{}, false
	}
	if rd, rn, imm, ok := isADD64Immediate(inst.Raw); ok {
		page, tracked := t.lookup(rn)
		t.kill(rd)
		if tracked {
			return Ref{PC: inst.Addr, Addr: page + uint64(imm), Kind: RefAdd}, true
		}
		return Ref{}, false
	}
	if rn, off, ok := isLDR64UnsignedOffset(inst.Raw); ok {
		page, tracked := t.lookup(rn)
		t.kill(int(inst.Raw & 0x1F))
		if tracked {
			return Ref{PC: inst.Addr, Addr: page + uint64(off), Kind: RefLoad}, true
		}
		return Ref{}, false
	}
	t.kill(dstRegOfInst(inst.Raw))
	return Ref{}, false
}

// ScanRefs runs a fresh tracker over insts.
func ScanRefs(insts []Inst, w int) []Ref {
	t := NewPageTracker(w)
	var refs []Ref
	for _, inst := range insts {
		if r, ok := t.Step(inst); ok {
			refs = append(refs, r)
		}
	}
	return refs
}

// isADRP decodes ADRP Xd, label. Encoding: 1 | immlo | 10000 | immhi | Rd.
func isADRP(raw uint32, pc uint64) (rd int, page uint64, ok bool) {
	if raw&0x9F000000 != 0x90000000 {
		return 0, 0, false
	}
	immlo := (raw >> 29) & 0x3
	immhi := (raw >> 5) & 0x7FFFF
	off := int64(signExtend(immhi<<2|immlo, 21)) << 12
	return int(raw & 0x1F), uint64(int64(pc&^0xFFF) + off), true
}

// isADD64Immediate returns true if the raw instruction is ADD Xd, Xn, #imm
// (64-bit). Returns dest reg, source reg, and the effective immediate value
// (with shift applied).
//
// Encoding: sf=1 | op=0 | S=0 | 100010 | sh | imm12 | Rn | Rd
func isADD64Immediate(raw uint32) (rd, rn int, immValue int, ok bool) {
	if raw&0xFF800000 != 0x91000000 {
		return 0, 0, 0, false
	}
	rd = int(raw & 0x1F)
	rn = int((raw >> 5) & 0x1F)
	immValue = int((raw >> 10) & 0xFFF)
	if (raw>>22)&1 == 1 {
		immValue <<= 12
	}
	return rd, rn, immValue, true
}

// isLDR64UnsignedOffset matches LDR Xt, [Xn, #imm] (64-bit, unsigned
// offset) and returns the base register and byte offset.
//
// Encoding: size=11 | 111 | V=0 | 01 | opc=01 | imm12 | Rn | Rt
func isLDR64UnsignedOffset(raw uint32) (baseReg int, byteOffset int, ok bool) {
	if raw&0xFFC00000 != 0xF9400000 {
		return 0, 0, false
	}
	rn := int((raw >> 5) & 0x1F)
	imm12 := int((raw >> 10) & 0xFFF)
	return rn, imm12 << 3, true
}

// dstRegOfInst returns the destination register of common data-processing
// and load instructions, or -1 if not detected.
func dstRegOfInst(raw uint32) int {
	switch {
	case raw&0xFFC00000 == 0xF9400000, // LDR X, unsigned offset
		raw&0xFFC00000 == 0xB9400000, // LDR W, unsigned offset
		raw&0xFFE00C00 == 0xF8400000, // LDUR X
		raw&0xFFE00C00 == 0xB8400000, // LDUR W
		raw&0xFFE00C00 == 0xF8600800, // LDR X, register offset
		raw&0xFF000000 == 0x91000000, // ADD X, immediate
		raw&0xFF000000 == 0xD1000000, // SUB X, immediate
		raw&0xFF800000 == 0xD2800000, // MOVZ X
		raw&0xFF800000 == 0xF2800000, // MOVK X
		raw&0xFF800000 == 0x92800000, // MOVN X
		raw&0xFF800000 == 0xD3000000, // UBFM X
		raw&0x9F000000 == 0x10000000: // ADR
		return int(raw & 0x1F)
	}
	return -1
}
