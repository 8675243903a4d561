package markup

// CommentType classifies a disassembler comment (3 bits).
type CommentType uint8

const (
	CommentRegular CommentType = iota
	CommentEnum
	CommentAnterior
	CommentPosterior
	CommentFunction
	CommentLocation
	CommentGlobalReference
	CommentLocalReference
)

var commentTypeNames = [...]string{
	"REGULAR", "ENUM", "ANTERIOR", "POSTERIOR", "FUNCTION", "LOCATION",
	"GLOBALREFERENCE", "LOCALREFERENCE",
}

func (c CommentType) String() string {
	if int(c) < len(commentTypeNames) {
		return commentTypeNames[c]
	}
	return "UNKNOWN"
}

// Flag word layout.
const (
	repeatableMask = 0x1
	typeMask       = 0xE
	typeShift      = 1
	operandMask    = 0xFFFF0000
	operandShift   = 16
)

// PackFlags builds the comment flags word:
// repeatable | type<<1 | operandID<<16.
func PackFlags(repeatable bool, typ CommentType, operandID uint16) uint32 {
	var f uint32
	if repeatable {
		f = 1
	}
	f |= (uint32(typ) << typeShift) & typeMask
	f |= uint32(operandID) << operandShift
	return f
}

// UnpackFlags is the inverse of PackFlags.
func UnpackFlags(f uint32) (repeatable bool, typ CommentType, operandID uint16) {
	repeatable = f&repeatableMask != 0
	typ = CommentType((f & typeMask) >> typeShift)
	operandID = uint16((f & operandMask) >> operandShift)
	return
}
