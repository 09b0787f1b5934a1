package arm

import (
	"crypto/rand"

	"github.com/pkg/errors"

	"resourcemachine/internal/digest"
)

// NullifierKey is the secret that authorizes consuming a resource.
type NullifierKey [32]byte

// NullifierKeyCommitment is the public commitment stored in a resource.
type NullifierKeyCommitment = digest.Digest

// Commit returns the one-way commitment to the key.
func (k NullifierKey) Commit() NullifierKeyCommitment {
	return digest.Hash(k[:])
}

// RandomNullifierKeyPair draws a fresh key and returns it with its commitment.
func RandomNullifierKeyPair() (NullifierKey, NullifierKeyCommitment, error) {
	var k NullifierKey
	if _, err := rand.Read(k[:]); err != nil {
		return k, digest.Zero, errors.Wrap(err, "random nullifier key")
	}
	return k, k.Commit(), nil
}

// NullifierKeyFromBytes checks the length of b.
func NullifierKeyFromBytes(b []byte) (NullifierKey, error) {
	var k NullifierKey
	if len(b) != len(k) {
		return k, errors.Wrapf(ErrInvalidNullifierKey, "expected %d bytes, got %d", len(k), len(b))
	}
	copy(k[:], b)
	return k, nil
}
