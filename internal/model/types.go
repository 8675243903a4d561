package model

import "fmt"

// FunctionType classifies a call graph vertex. The zero value is
// FunctionNormal, which is also the declared default.
type FunctionType uint8

const (
	FunctionNormal FunctionType = iota
	FunctionLibrary
	FunctionImported
	FunctionThunk
	FunctionInvalid
)

var functionTypeNames = [...]string{"NORMAL", "LIBRARY", "IMPORTED", "THUNK", "INVALID"}

func (t FunctionType) String() string {
	if int(t) < len(functionTypeNames) {
		return functionTypeNames[t]
	}
	return fmt.Sprintf("FunctionType(%d)", uint8(t))
}

// Valid reports whether t is a known function type.
func (t FunctionType) Valid() bool { return int(t) < len(functionTypeNames) }

// HasFlowGraph reports whether functions of this type are exported with a
// flow graph when they have a body.
func (t FunctionType) HasFlowGraph() bool {
	return t == FunctionNormal || t == FunctionThunk
}

// EdgeType classifies a flow graph branch. Wire values start at 1, so the
// zero value means "unset" and is read as EdgeUnconditional.
type EdgeType uint8

const (
	EdgeConditionTrue  EdgeType = 1
	EdgeConditionFalse EdgeType = 2
	EdgeUnconditional  EdgeType = 3
	EdgeSwitch         EdgeType = 4
)

func (t EdgeType) String() string {
	switch t.Effective() {
	case EdgeConditionTrue:
		return "CONDITION_TRUE"
	case EdgeConditionFalse:
		return "CONDITION_FALSE"
	case EdgeUnconditional:
		return "UNCONDITIONAL"
	case EdgeSwitch:
		return "SWITCH"
	}
	return fmt.Sprintf("EdgeType(%d)", uint8(t))
}

// Effective returns the edge type with the default applied.
func (t EdgeType) Effective() EdgeType {
	if t == 0 {
		return EdgeUnconditional
	}
	return t
}

// Valid reports whether t is unset or a known edge type.
func (t EdgeType) Valid() bool { return t <= EdgeSwitch }
