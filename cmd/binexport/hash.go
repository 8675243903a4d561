package main

import (
	"crypto/sha256"
	"fmt"
	"hash"
	"io"
	"os"

	"github.com/zeebo/blake3"

	"binexport/internal/config"
)

// hashFile streams the file at path through the selected digest.
func hashFile(path string, alg config.HashAlgorithm) ([]byte, error) {
	var h hash.Hash
	switch alg {
	case config.HashBLAKE3:
		h = blake3.New()
	case config.HashSHA256, "":
		h = sha256.New()
	default:
		return nil, fmt.Errorf("hash: unknown algorithm %q", alg)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("hash: open %s: %w", path, err)
	}
	defer f.Close()
	if _, err := io.Copy(h, f); err != nil {
		return nil, fmt.Errorf("hash: %s: %w", path, err)
	}
	return h.Sum(nil), nil
}
