// Package diag provides diagnostics and error-handling modes shared by the
// container reader and verifier.
package diag

import "fmt"

// Kind classifies a diagnostic message.
type Kind string

const (
	KindTruncated Kind = "truncated"
	KindInvalid   Kind = "invalid"
	KindMarkup    Kind = "markup"
	KindDangling  Kind = "dangling"
	KindOrder     Kind = "order"
)

// Diag records a non-fatal issue found while reading a container.
type Diag struct {
	Offset uint64 `json:"offset"`
	Kind   Kind   `json:"kind"`
	Msg    string `json:"msg"`
}

func (d Diag) String() string {
	return fmt.Sprintf("[%s] 0x%x: %s", d.Kind, d.Offset, d.Msg)
}

// Diags accumulates diagnostics.
type Diags struct {
	items []Diag
}

func (d *Diags) Add(offset uint64, kind Kind, msg string) {
	d.items = append(d.items, Diag{Offset: offset, Kind: kind, Msg: msg})
}

func (d *Diags) Addf(offset uint64, kind Kind, format string, args ...any) {
	d.items = append(d.items, Diag{Offset: offset, Kind: kind, Msg: fmt.Sprintf(format, args...)})
}

func (d *Diags) Items() []Diag { return d.items }
func (d *Diags) Len() int      { return len(d.items) }

// Mode controls how strictly record contents are checked.
type Mode int

const (
	ModeBestEffort Mode = iota // decode records, leave operand markup undecoded
	ModeStrict                 // also decode every operand stream; markup errors fail the record
)

func (m Mode) String() string {
	if m == ModeStrict {
		return "strict"
	}
	return "best-effort"
}
