package disasm

import (
	"testing"
)

func TestIsBL(t *testing.T) {
	// BL #0x1234 at PC=0x1000:
	// imm26 = 0x1234/4 = 0x48D, encoding: 0x94000000 | 0x48D = 0x9400048D
	raw := uint32(0x9400048D)
	target, ok := isBL(raw, 0x1000)
	if !ok {
		t.Fatal("isBL failed to detect BL")
	}
	want := uint64(0x1000 + 0x48D*4)
	if target != want {
		t.Errorf("isBL target = 0x%x, want 0x%x", target, want)
	}

	// Negative offset: BL #-8 at PC=0x2000.
	// imm26 = -2 (signed), encoded as 0x03FFFFFE
	raw = 0x94000000 | 0x03FFFFFE
	target, ok = isBL(raw, 0x2000)
	if !ok {
		t.Fatal("isBL failed for negative offset")
	}
	want = uint64(0x2000 - 8)
	if target != want {
		t.Errorf("isBL negative = 0x%x, want 0x%x", target, want)
	}

	// Non-BL instruction should not match.
	_, ok = isBL(0xD503201F, 0) // NOP
	if ok {
		t.Error("isBL matched NOP")
	}
}

func TestIsBLR(t *testing.T) {
	// BLR X16: 1101 0110 0011 1111 0000 00 10000 00000 = 0xD63F0200
	raw := uint32(0xD63F0200)
	rn, ok := isBLR(raw)
	if !ok {
		t.Fatal("isBLR failed")
	}
	if rn != 16 {
		t.Errorf("isBLR rn = %d, want 16", rn)
	}

	// BLR X30: 0xD63F03C0
	rn, ok = isBLR(0xD63F03C0)
	if !ok {
		t.Fatal("isBLR X30 failed")
	}
	if rn != 30 {
		t.Errorf("isBLR rn = %d, want 30", rn)
	}

	// Non-BLR.
	_, ok = isBLR(0xD503201F)
	if ok {
		t.Error("isBLR matched NOP")
	}
}

func TestExtractCallEdges(t *testing.T) {
	insts := []Inst{
		{Addr: 0x1000, Raw: 0xD503201F}, // NOP
		{Addr: 0x1004, Raw: 0x94000002}, // BL .+8 → 0x100C
		{Addr: 0x1008, Raw: 0xD63F0200}, // BLR X16
		{Addr: 0x100C, Raw: 0xD65F03C0}, // RET
	}
	edges := ExtractCallEdges(insts)
	if len(edges) != 2 {
		t.Fatalf("got %d edges, want 2", len(edges))
	}
	if e := edges[0]; e.Kind != "bl" || e.FromPC != 0x1004 || e.TargetPC != 0x100C {
		t.Errorf("edge 0 = %+v", e)
	}
	if e := edges[1]; e.Kind != "blr" || e.Reg != "X16" || e.TargetPC != 0 {
		t.Errorf("edge 1 = %+v", e)
	}
}

func TestIsCall(t *testing.T) {
	tests := []struct {
		raw  uint32
		want bool
	}{
		{0x94000002, true},  // BL
		{0xD63F0200, true},  // BLR X16
		{0x14000002, false}, // B
		{0xD61F0200, false}, // BR X16
		{0xD503201F, false}, // NOP
	}
	for _, tc := range tests {
		if got := IsCall(tc.raw); got != tc.want {
			t.Errorf("IsCall(0x%08x) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}
