package disasm

import (
	"testing"

	"binexport/internal/markup"
)

func TestOperandRuns_Memory(t *testing.T) {
	inst := Inst{Args: []string{"X0", "[X1,#16]!"}, PCRel: -1}
	runs := OperandRuns(inst, nil)
	want := []markup.Run{
		{Tag: markup.Register, Text: "X0"},
		{Tag: markup.NewOperand, Text: ", "},
		{Tag: markup.Dereference, Text: "["},
		{Tag: markup.Register, Text: "X1"},
		{Tag: markup.Operator, Text: ","},
		{Tag: markup.ImmediateInt, Text: "#16"},
		{Tag: markup.Dereference, Text: "]"},
		{Tag: markup.Operator, Text: "!"},
	}
	if len(runs) != len(want) {
		t.Fatalf("runs = %+v, want %+v", runs, want)
	}
	for i := range want {
		if runs[i] != want[i] {
			t.Errorf("run %d = %+v, want %+v", i, runs[i], want[i])
		}
	}
	if got := markup.Text(runs); got != "X0, [X1,#16]!" {
		t.Errorf("text = %q", got)
	}
}

func TestOperandRuns_Shift(t *testing.T) {
	inst := Inst{Args: []string{"X0", "X1", "X2", "LSL #3"}, PCRel: -1}
	runs := OperandRuns(inst, nil)
	if got := markup.Text(runs); got != "X0, X1, X2, LSL #3" {
		t.Errorf("text = %q", got)
	}
	n := len(runs)
	if runs[n-3].Tag != markup.Operator || runs[n-3].Text != "LSL" {
		t.Errorf("shift run = %+v", runs[n-3])
	}
	if runs[n-1].Tag != markup.ImmediateInt {
		t.Errorf("shift amount = %+v", runs[n-1])
	}
	if _, err := markup.Encode(runs); err != nil {
		t.Errorf("encode: %v", err)
	}
}

func TestOperandRuns_PCRel(t *testing.T) {
	bl := Inst{Addr: 0x1004, Raw: 0x94000002, Args: []string{"0x100c"}, Target: 0x100C, PCRel: 0}
	syms := func(addr uint64) (string, bool) {
		if addr == 0x100C {
			return "target_func", true
		}
		return "", false
	}
	if r := OperandRuns(bl, syms); len(r) != 1 || r[0].Tag != markup.Function || r[0].Text != "target_func" {
		t.Errorf("named call = %+v", r)
	}
	if r := OperandRuns(bl, nil); len(r) != 1 || r[0].Tag != markup.JumpLabel || r[0].Text != "0x100c" {
		t.Errorf("unnamed call = %+v", r)
	}
	adrp := Inst{Raw: adrpX0, Args: []string{"X0", "0x3000"}, Target: 0x3000, PCRel: 1}
	r := OperandRuns(adrp, nil)
	if last := r[len(r)-1]; last.Tag != markup.ImmediateInt {
		t.Errorf("adrp page = %+v", last)
	}
	data := func(addr uint64) (string, bool) { return "table", addr == 0x3000 }
	r = OperandRuns(adrp, data)
	if last := r[len(r)-1]; last.Tag != markup.GlobalVariable || last.Text != "table" {
		t.Errorf("named adrp page = %+v", last)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		word string
		want markup.Tag
	}{
		{"X0", markup.Register},
		{"W30", markup.Register},
		{"V0.16B", markup.Register},
		{"SP", markup.Register},
		{"XZR", markup.Register},
		{"X100", markup.Symbol},
		{"EQ", markup.Symbol},
		{"#0x10", markup.ImmediateInt},
		{"#-0x8", markup.ImmediateInt},
		{"#1.5", markup.ImmediateFloat},
		{"UXTW", markup.Operator},
	}
	for _, tc := range tests {
		if got := classify(tc.word); got != tc.want {
			t.Errorf("classify(%q) = %v, want %v", tc.word, got, tc.want)
		}
	}
}
