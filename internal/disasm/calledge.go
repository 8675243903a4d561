package disasm

import "fmt"

// CallEdge represents a call site extracted from disassembly.
type CallEdge struct {
	FromPC   uint64 `json:"from_pc"`
	Kind     string `json:"kind"`                // "bl" or "blr"
	TargetPC uint64 `json:"target_pc,omitempty"` // resolved VA for bl
	Reg      string `json:"reg,omitempty"`       // register for blr (e.g. "X16")
}

// isBL detects ARM64 BL (branch with link) instructions.
// Encoding: 1 | 00101 | imm26
// Returns the target address (sign-extended imm26 * 4 + PC).
func isBL(raw uint32, pc uint64) (target uint64, ok bool) {
	if raw&0xFC000000 != 0x94000000 {
		return 0, false
	}
	offset := int64(signExtend(raw&0x03FFFFFF, 26)) * 4
	return uint64(int64(pc) + offset), true
}

// isBLR detects ARM64 BLR (branch with link to register) instructions.
// Encoding: 1101011 | 0 | 0 | 01 | 11111 | 0000 | 0 | 0 | Rn | 00000
// Returns the register number.
func isBLR(raw uint32) (rn int, ok bool) {
	if raw&0xFFFFFC1F != 0xD63F0000 {
		return 0, false
	}
	return int((raw >> 5) & 0x1F), true
}

// IsCall reports whether raw is BL or BLR.
func IsCall(raw uint32) bool {
	if _, ok := isBL(raw, 0); ok {
		return true
	}
	_, ok := isBLR(raw)
	return ok
}

// ExtractCallEdges scans instructions for BL and BLR call sites.
func ExtractCallEdges(insts []Inst) []CallEdge {
	var edges []CallEdge
	for _, inst := range insts {
		if target, ok := isBL(inst.Raw, inst.Addr); ok {
			edges = append(edges, CallEdge{FromPC: inst.Addr, Kind: "bl", TargetPC: target})
			continue
		}
		if rn, ok := isBLR(inst.Raw); ok {
			edges = append(edges, CallEdge{FromPC: inst.Addr, Kind: "blr", Reg: fmt.Sprintf("X%d", rn)})
		}
	}
	return edges
}
