package fingerprint

// SDBM hashes referenced string data with the 32-bit sdbm algorithm
// (h = c + (h << 6) + (h << 16) - h, seed 0). It is a coarse similarity
// key shared with other tools, not a cryptographic digest.
func SDBM(data []byte) uint32 {
	var h uint32
	for _, c := range data {
		h = uint32(c) + (h << 6) + (h << 16) - h
	}
	return h
}
