package core

import "crypto/sha256"

// HashSize is the length in bytes of every content hash used in the chain:
// block hashes, transaction ids, merkle nodes, and trie node hashes.
const HashSize = 32

// Hash is a fixed-width SHA-256 digest.
type Hash [HashSize]byte

// ZeroHash is the all-zero sentinel used for genesis previous-hash links
// and the empty-merkle-tree root.
var ZeroHash = Hash{}

// IsZero reports whether h is the all-zero sentinel.
func (h Hash) IsZero() bool {
	return h == ZeroHash
}

// Bytes returns a copy of the hash as a byte slice.
func (h Hash) Bytes() []byte {
	out := make([]byte, HashSize)
	copy(out, h[:])
	return out
}

// HashBytes computes the SHA-256 digest of data.
func HashBytes(data []byte) Hash {
	return sha256.Sum256(data)
}

// HashConcat computes SHA-256 over the concatenation of parts, without
// allocating an intermediate buffer per part.
func HashConcat(parts ...[]byte) Hash {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}
