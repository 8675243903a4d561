package disasm

// ARM64 branch detection from the raw 32-bit encoding. These identify
// basic-block terminators and extract branch targets.

// BranchInfo describes a decoded branch instruction.
type BranchInfo struct {
	Target   uint64 // absolute target address; 0 for RET and BR
	Cond     bool   // conditional, has a fallthrough
	IsRet    bool
	Indirect bool // BR Xn: target unknown
}

// branchForm is one PC-relative branch encoding: raw&mask == value, with a
// signed word offset of bits width starting at shift.
type branchForm struct {
	mask, value uint32
	shift, bits int
	cond        bool
}

var branchForms = [...]branchForm{
	{0xFC000000, 0x14000000, 0, 26, false}, // B
	{0xFF000010, 0x54000000, 5, 19, true},  // B.cond
	{0x7F000000, 0x34000000, 5, 19, true},  // CBZ
	{0x7F000000, 0x35000000, 5, 19, true},  // CBNZ
	{0x7F000000, 0x36000000, 5, 14, true},  // TBZ
	{0x7F000000, 0x37000000, 5, 14, true},  // TBNZ
}

// DecodeBranch decodes a branch instruction at pc. Returns nil when raw is
// not a branch. BL and BLR are calls, not branches.
func DecodeBranch(raw uint32, pc uint64) *BranchInfo {
	switch raw & 0xFFFFFC1F {
	case 0xD65F0000: // RET Xn
		return &BranchInfo{IsRet: true}
	case 0xD61F0000: // BR Xn
		return &BranchInfo{Indirect: true}
	}
	for _, f := range branchForms {
		if raw&f.mask != f.value {
			continue
		}
		imm := (raw >> f.shift) & (1<<f.bits - 1)
		offset := int64(signExtend(imm, f.bits)) * 4
		return &BranchInfo{Target: uint64(int64(pc) + offset), Cond: f.cond}
	}
	return nil
}

// signExtend sign-extends a value from the given bit width to int32.
func signExtend(val uint32, bits int) int32 {
	sign := uint32(1) << (bits - 1)
	mask := sign - 1
	if val&sign != 0 {
		return int32(val | ^mask)
	}
	return int32(val & mask)
}

// IsBranchTerminator returns true if the instruction terminates a basic block.
func IsBranchTerminator(raw uint32) bool {
	return DecodeBranch(raw, 0) != nil
}
