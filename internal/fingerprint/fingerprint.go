// Package fingerprint computes prime signatures: order-sensitive structural
// hashes of mnemonic sequences used to match instructions, basic blocks and
// functions across binaries independent of their addresses.
//
// An instruction's signature is the product of primes[c]^i over the bytes c
// of its mnemonic (i is the 1-based byte position), wrapping at 32 bits.
// A block or function signature is the sum of instruction signatures, each
// raised to its 1-based position in the sequence, wrapping at 64 bits.
package fingerprint

// primes holds the first 256 primes, indexed by byte value.
var primes = [256]uint32{
	2, 3, 5, 7, 11, 13, 17, 19, 23, 29, 31, 37, 41, 43, 47, 53,
	59, 61, 67, 71, 73, 79, 83, 89, 97, 101, 103, 107, 109, 113, 127, 131,
	137, 139, 149, 151, 157, 163, 167, 173, 179, 181, 191, 193, 197, 199, 211, 223,
	227, 229, 233, 239, 241, 251, 257, 263, 269, 271, 277, 281, 283, 293, 307, 311,
	313, 317, 331, 337, 347, 349, 353, 359, 367, 373, 379, 383, 389, 397, 401, 409,
	419, 421, 431, 433, 439, 443, 449, 457, 461, 463, 467, 479, 487, 491, 499, 503,
	509, 521, 523, 541, 547, 557, 563, 569, 571, 577, 587, 593, 599, 601, 607, 613,
	617, 619, 631, 641, 643, 647, 653, 659, 661, 673, 677, 683, 691, 701, 709, 719,
	727, 733, 739, 743, 751, 757, 761, 769, 773, 787, 797, 809, 811, 821, 823, 827,
	829, 839, 853, 857, 859, 863, 877, 881, 883, 887, 907, 911, 919, 929, 937, 941,
	947, 953, 967, 971, 977, 983, 991, 997, 1009, 1013, 1019, 1021, 1031, 1033, 1039, 1049,
	1051, 1061, 1063, 1069, 1087, 1091, 1093, 1097, 1103, 1109, 1117, 1123, 1129, 1151, 1153, 1163,
	1171, 1181, 1187, 1193, 1201, 1213, 1217, 1223, 1229, 1231, 1237, 1249, 1259, 1277, 1279, 1283,
	1289, 1291, 1297, 1301, 1303, 1307, 1319, 1321, 1327, 1361, 1367, 1373, 1381, 1399, 1409, 1423,
	1427, 1429, 1433, 1439, 1447, 1451, 1453, 1459, 1471, 1481, 1483, 1487, 1489, 1493, 1499, 1511,
	1523, 1531, 1543, 1549, 1553, 1559, 1567, 1571, 1579, 1583, 1597, 1601, 1607, 1609, 1613, 1619,
}

// Instruction returns the 32-bit prime signature of a single mnemonic.
// The empty mnemonic yields 1.
func Instruction(mnemonic string) uint32 {
	p := uint32(1)
	for i := 0; i < len(mnemonic); i++ {
		p *= ipow32(primes[mnemonic[i]], uint64(i+1))
	}
	return p
}

// Sequence returns the 64-bit prime signature of an ordered mnemonic
// sequence. An empty sequence yields 0.
func Sequence(mnemonics []string) uint64 {
	var a Accumulator
	for _, m := range mnemonics {
		a.Add(m)
	}
	return a.Sum()
}

// Accumulator builds a sequence signature incrementally. The zero value is
// an empty sequence.
type Accumulator struct {
	sum uint64
	n   uint64
}

// Add appends a mnemonic to the sequence.
func (a *Accumulator) Add(mnemonic string) {
	a.AddPrime(Instruction(mnemonic))
}

// AddPrime appends an already computed instruction signature.
func (a *Accumulator) AddPrime(p uint32) {
	a.n++
	a.sum += ipow64(uint64(p), a.n)
}

// Sum returns the signature of everything added so far.
func (a *Accumulator) Sum() uint64 { return a.sum }

// Len returns the number of mnemonics added.
func (a *Accumulator) Len() int { return int(a.n) }

func ipow32(base uint32, exp uint64) uint32 {
	r := uint32(1)
	for exp > 0 {
		if exp&1 != 0 {
			r *= base
		}
		base *= base
		exp >>= 1
	}
	return r
}

func ipow64(base, exp uint64) uint64 {
	r := uint64(1)
	for exp > 0 {
		if exp&1 != 0 {
			r *= base
		}
		base *= base
		exp >>= 1
	}
	return r
}
