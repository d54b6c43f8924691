package core

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // address derivation intentionally uses ripemd160
)

// AddressSize is the length in bytes of an account address.
const AddressSize = 20

// Address identifies an account: RIPEMD160(SHA256(pubkey)), the same
// scheme the wider secp256k1 ecosystem uses for P2PKH-style addresses.
type Address [AddressSize]byte

// String renders an address as a hex string.
func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// Bytes returns a copy of the address bytes.
func (a Address) Bytes() []byte {
	out := make([]byte, AddressSize)
	copy(out, a[:])
	return out
}

// IsZero reports whether a is the zero address.
func (a Address) IsZero() bool {
	return a == Address{}
}

// AddressFromBytes builds an Address from a raw 20-byte slice.
func AddressFromBytes(b []byte) (Address, bool) {
	var a Address
	if len(b) != AddressSize {
		return a, false
	}
	copy(a[:], b)
	return a, true
}

// DeriveAddress computes the account address for a compressed secp256k1
// public key.
func DeriveAddress(pubKey *secp256k1.PublicKey) Address {
	compressed := pubKey.SerializeCompressed()
	sha := sha256.Sum256(compressed)
	ripe := ripemd160.New()
	ripe.Write(sha[:])
	digest := ripe.Sum(nil)
	var addr Address
	copy(addr[:], digest)
	return addr
}

// ContractAddress deterministically derives a contract address from its
// deployer address and the deployer's account nonce at deployment time,
// following the usual CREATE-style derivation (hash of deployer || nonce
// truncated to AddressSize).
func ContractAddress(deployer Address, nonce uint64) Address {
	buf := make([]byte, AddressSize+8)
	copy(buf, deployer[:])
	for i := 0; i < 8; i++ {
		buf[AddressSize+i] = byte(nonce >> (56 - 8*i))
	}
	digest := sha256.Sum256(buf)
	var addr Address
	copy(addr[:], digest[:AddressSize])
	return addr
}
