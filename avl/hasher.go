package avl

import (
	"fmt"
	"hash"

	"github.com/minio/sha256-simd"
	"golang.org/x/crypto/blake2b"
)

// HashFactory returns a fresh hasher for each node.
type HashFactory func() hash.Hash

func SHA256() hash.Hash {
	return sha256.New()
}

func Blake2b256() hash.Hash {
	// only fails for keys longer than 64 bytes
	h, err := blake2b.New256(nil)
	if err != nil {
		panic(err)
	}
	return h
}

// HasherByName maps configuration names ("sha256", "blake2b") to hash factories.
func HasherByName(name string) (HashFactory, error) {
	switch name {
	case "", "sha256", "sha2-256":
		return SHA256, nil
	case "blake2b", "blake2b-256":
		return Blake2b256, nil
	default:
		return nil, fmt.Errorf("unsupported hash function: %q", name)
	}
}
