// Package codec holds the CBOR modes used for every container record.
//
// Records are CBOR maps keyed by small integers (`cbor:"N,keyasint"`), so
// each field carries a stable numeric tag and decoders skip fields they do
// not know. Encoding is Core Deterministic (RFC 8949 §4.2): equal records
// always produce identical bytes.
package codec

import (
	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

// maxArrayElements bounds a single decoded array. Flow graphs of very
// large functions exceed the library default of 131072.
const maxArrayElements = 1 << 26

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		MaxArrayElements: maxArrayElements,
		MaxMapPairs:      maxArrayElements,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v deterministically.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes exactly one CBOR item from data into v. Trailing bytes
// are an error.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}
