package disasm

import (
	"strings"

	"binexport/internal/markup"
)

var shiftOps = map[string]bool{
	"LSL": true, "LSR": true, "ASR": true, "ROR": true, "MSL": true,
	"UXTB": true, "UXTH": true, "UXTW": true, "UXTX": true,
	"SXTB": true, "SXTH": true, "SXTW": true, "SXTX": true,
}

// OperandRuns tokenizes the operands of inst into markup runs. A named
// PC-relative operand becomes a FUNCTION run on branches and calls and a
// GLOBALVARIABLE run elsewhere. Unnamed branch targets are JUMPLABEL runs
// and other unnamed addresses immediates.
func OperandRuns(inst Inst, symbols SymbolLookup) []markup.Run {
	var runs []markup.Run
	for i, arg := range inst.Args {
		if i > 0 {
			runs = append(runs, markup.Run{Tag: markup.NewOperand, Text: ", "})
		}
		if i == inst.PCRel {
			runs = append(runs, pcRelRun(inst, arg, symbols))
			continue
		}
		runs = lexOperand(runs, arg)
	}
	return runs
}

func pcRelRun(inst Inst, text string, symbols SymbolLookup) markup.Run {
	flow := IsBranchTerminator(inst.Raw) || IsCall(inst.Raw)
	if symbols != nil {
		if name, ok := symbols(inst.Target); ok {
			if flow {
				return markup.Run{Tag: markup.Function, Text: name}
			}
			return markup.Run{Tag: markup.GlobalVariable, Text: name}
		}
	}
	if flow {
		return markup.Run{Tag: markup.JumpLabel, Text: text}
	}
	return markup.Run{Tag: markup.ImmediateInt, Text: text}
}

func isDelim(c byte) bool {
	return strings.IndexByte("[]{},! ", c) >= 0
}

// lexOperand splits one operand into runs: brackets are DEREFERENCE,
// punctuation and shift keywords OPERATOR, then registers, immediates and
// anything else as SYMBOL.
func lexOperand(runs []markup.Run, s string) []markup.Run {
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '[' || c == ']':
			runs = append(runs, markup.Run{Tag: markup.Dereference, Text: s[i : i+1]})
			i++
		case isDelim(c):
			j := i
			for j < len(s) && isDelim(s[j]) && s[j] != '[' && s[j] != ']' {
				j++
			}
			runs = append(runs, markup.Run{Tag: markup.Operator, Text: s[i:j]})
			i = j
		default:
			j := i
			for j < len(s) && !isDelim(s[j]) {
				j++
			}
			runs = append(runs, markup.Run{Tag: classify(s[i:j]), Text: s[i:j]})
			i = j
		}
	}
	return runs
}

func classify(word string) markup.Tag {
	switch {
	case word[0] == '#':
		imm := word[1:]
		if strings.ContainsAny(imm, ".eE") && !strings.HasPrefix(imm, "0x") && !strings.HasPrefix(imm, "-0x") {
			return markup.ImmediateFloat
		}
		return markup.ImmediateInt
	case shiftOps[word]:
		return markup.Operator
	case isRegister(word):
		return markup.Register
	}
	return markup.Symbol
}

// isRegister matches general, SIMD and special registers, with an optional
// arrangement suffix (V0.16B, D1).
func isRegister(word string) bool {
	switch word {
	case "SP", "WSP", "XZR", "WZR", "LR", "FP":
		return true
	}
	if len(word) < 2 || strings.IndexByte("XWBHSDQV", word[0]) < 0 {
		return false
	}
	n := 1
	for n < len(word) && word[n] >= '0' && word[n] <= '9' {
		n++
	}
	if n == 1 || n > 3 {
		return false
	}
	return n == len(word) || word[n] == '.'
}
