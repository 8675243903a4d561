package fingerprint

import "testing"

func TestInstruction_Vectors(t *testing.T) {
	tests := []struct {
		in   string
		want uint32
	}{
		{"", 1},
		{"mov", 0x16190545},
		{"add", 0xa51b682b},
		{"call", 0xd0540adb},
		{"MOV", 0xcda1087d}, // case matters
		{"push", 0xdac4c489},
		{"ret", 0xd374a5d5},
	}
	for _, tt := range tests {
		if got := Instruction(tt.in); got != tt.want {
			t.Errorf("Instruction(%q) = 0x%x, want 0x%x", tt.in, got, tt.want)
		}
	}
}

func TestInstruction_SingleChar(t *testing.T) {
	// One byte at position 1: primes[c]^1.
	if got := Instruction("a"); got != primes['a'] {
		t.Errorf("Instruction(\"a\") = %d, want %d", got, primes['a'])
	}
	if primes[0] != 2 || primes[255] != 1619 {
		t.Errorf("prime table bounds = %d..%d, want 2..1619", primes[0], primes[255])
	}
}

func TestSequence_Vectors(t *testing.T) {
	tests := []struct {
		in   []string
		want uint64
	}{
		{nil, 0},
		{[]string{"call"}, 0xd0540adb},
		{[]string{"mov", "add"}, 0x6a7c5736a78dfc7e},
		{[]string{"add", "mov"}, 0x1e84f5a88b12cc4},
		{[]string{"push", "mov", "call"}, 0x281a1cd8a92f3c45},
	}
	for _, tt := range tests {
		if got := Sequence(tt.in); got != tt.want {
			t.Errorf("Sequence(%q) = 0x%x, want 0x%x", tt.in, got, tt.want)
		}
	}
}

func TestSequence_Deterministic(t *testing.T) {
	tokens := []string{"stp", "mov", "bl", "ldp", "ret"}
	a := Sequence(tokens)
	b := Sequence(tokens)
	if a != b {
		t.Fatalf("Sequence not deterministic: 0x%x != 0x%x", a, b)
	}
}

func TestSequence_OrderSensitive(t *testing.T) {
	pairs := [][2][]string{
		{{"mov", "add"}, {"add", "mov"}},
		{{"ldr", "str", "b"}, {"str", "ldr", "b"}},
		{{"push", "pop"}, {"pop", "push"}},
	}
	for _, p := range pairs {
		if Sequence(p[0]) == Sequence(p[1]) {
			t.Errorf("Sequence(%q) == Sequence(%q), want different", p[0], p[1])
		}
	}
}

func TestSequence_SingleMatchesInstruction(t *testing.T) {
	for _, m := range []string{"", "nop", "cbz", "b.eq"} {
		if got, want := Sequence([]string{m}), uint64(Instruction(m)); got != want {
			t.Errorf("Sequence([%q]) = 0x%x, want 0x%x", m, got, want)
		}
	}
}

func TestAccumulator_Incremental(t *testing.T) {
	tokens := []string{"sub", "stp", "add", "bl", "b"}

	var a Accumulator
	for _, m := range tokens[:2] {
		a.Add(m)
	}
	for _, m := range tokens[2:] {
		a.AddPrime(Instruction(m))
	}
	if a.Len() != len(tokens) {
		t.Errorf("Len = %d, want %d", a.Len(), len(tokens))
	}
	if a.Sum() != Sequence(tokens) {
		t.Errorf("incremental sum 0x%x != Sequence 0x%x", a.Sum(), Sequence(tokens))
	}
}

func TestSDBM_Vectors(t *testing.T) {
	tests := []struct {
		in   string
		want uint32
	}{
		{"", 0},
		{"a", 0x61},
		{"hello", 0x28d19932},
		{"Hello, world!", 0xcf856ff5},
	}
	for _, tt := range tests {
		if got := SDBM([]byte(tt.in)); got != tt.want {
			t.Errorf("SDBM(%q) = 0x%x, want 0x%x", tt.in, got, tt.want)
		}
	}
}
