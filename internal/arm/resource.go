// resource.go - Resources and the commitment, nullifier and tag derived from them.
//
// A resource is committed to by hashing all of its fields together with rcm, a
// value expanded from the resource's rand seed and nonce. Its nullifier is keyed
// by the nullifier key and bound to the commitment, so only the holder of the key
// matching nk_commitment can produce it.

package arm

import (
	"crypto/rand"
	"encoding/binary"

	"github.com/consensys/gnark-crypto/ecc/secp256k1/fr"
	"github.com/pkg/errors"
	"lukechampine.com/uint128"

	"resourcemachine/internal/digest"
)

// Prefix and tags used to expand rand_seed into rcm and psi.
var expandSeedPrefix = []byte("RISC0_ExpandSeed")

const (
	prfExpandPsi byte = 0
	prfExpandRcm byte = 1
)

// ResourceSize is the length of Resource.Encode.
const ResourceSize = 32 + 32 + 16 + 32 + 1 + 32 + 32 + 32

// Resource is a typed, quantified unit of ledger state.
type Resource struct {
	LogicRef     digest.Digest          `json:"logic_ref" cbor:"logic_ref"`
	LabelRef     digest.Digest          `json:"label_ref" cbor:"label_ref"`
	Quantity     uint128.Uint128        `json:"quantity" cbor:"quantity"`
	ValueRef     digest.Digest          `json:"value_ref" cbor:"value_ref"`
	IsEphemeral  bool                   `json:"is_ephemeral" cbor:"is_ephemeral"`
	Nonce        [32]byte               `json:"nonce" cbor:"nonce"`
	NkCommitment NullifierKeyCommitment `json:"nk_commitment" cbor:"nk_commitment"`
	RandSeed     [32]byte               `json:"rand_seed" cbor:"rand_seed"`
}

// NewResource creates a resource with a random nonce and rand seed.
func NewResource(logicRef, labelRef digest.Digest, quantity uint64, valueRef digest.Digest, ephemeral bool, nkc NullifierKeyCommitment) (*Resource, error) {
	r := &Resource{
		LogicRef:     logicRef,
		LabelRef:     labelRef,
		Quantity:     uint128.From64(quantity),
		ValueRef:     valueRef,
		IsEphemeral:  ephemeral,
		NkCommitment: nkc,
	}
	if _, err := rand.Read(r.Nonce[:]); err != nil {
		return nil, errors.Wrap(err, "resource nonce")
	}
	if err := r.ResetRandSeed(); err != nil {
		return nil, err
	}
	return r, nil
}

// ResetRandSeed draws a fresh rand seed, giving the resource a new commitment.
func (r *Resource) ResetRandSeed() error {
	if _, err := rand.Read(r.RandSeed[:]); err != nil {
		return errors.Wrap(err, "resource rand seed")
	}
	return nil
}

// SetNonceFromNullifier makes r the created counterpart of the resource whose
// nullifier is nf. Compliance requires the created nonce to equal it.
func (r *Resource) SetNonceFromNullifier(nf digest.Digest) {
	r.Nonce = nf
}

func (r *Resource) expandSeed(tag byte) digest.Digest {
	return digest.Hash(expandSeedPrefix, []byte{tag}, r.RandSeed[:], r.Nonce[:])
}

// Rcm is the commitment randomness.
func (r *Resource) Rcm() digest.Digest {
	return r.expandSeed(prfExpandRcm)
}

// Psi is the nullifier randomness.
func (r *Resource) Psi() digest.Digest {
	return r.expandSeed(prfExpandPsi)
}

func (r *Resource) quantityBytes() [16]byte {
	var q [16]byte
	r.Quantity.PutBytesBE(q[:])
	return q
}

// Commitment hashes every field of the resource in canonical order.
func (r *Resource) Commitment() digest.Digest {
	q := r.quantityBytes()
	eph := []byte{0}
	if r.IsEphemeral {
		eph[0] = 1
	}
	rcm := r.Rcm()
	return digest.Hash(
		r.LogicRef[:],
		r.LabelRef[:],
		q[:],
		r.ValueRef[:],
		eph,
		r.Nonce[:],
		r.NkCommitment[:],
		rcm[:],
	)
}

// Nullifier derives the nullifier with nfKey.
func (r *Resource) Nullifier(nfKey NullifierKey) (digest.Digest, error) {
	return r.NullifierFromCommitment(nfKey, r.Commitment())
}

// NullifierFromCommitment derives the nullifier from an already computed
// commitment. It fails with ErrInvalidNullifierKey unless nfKey opens the
// resource's nk_commitment.
func (r *Resource) NullifierFromCommitment(nfKey NullifierKey, cm digest.Digest) (digest.Digest, error) {
	if nfKey.Commit() != r.NkCommitment {
		return digest.Zero, ErrInvalidNullifierKey
	}
	psi := r.Psi()
	return digest.Hash(nfKey[:], r.Nonce[:], psi[:], cm[:]), nil
}

// Tag is the nullifier when the resource is consumed and the commitment when it is
// created.
func (r *Resource) Tag(isConsumed bool, nfKey NullifierKey) (digest.Digest, error) {
	if isConsumed {
		return r.Nullifier(nfKey)
	}
	return r.Commitment(), nil
}

// QuantityScalar reduces the quantity into the secp256k1 scalar field.
func (r *Resource) QuantityScalar() fr.Element {
	var s fr.Element
	s.SetBigInt(r.Quantity.Big())
	return s
}

// Encode returns the fixed-width byte layout of the resource.
func (r *Resource) Encode() []byte {
	out := make([]byte, 0, ResourceSize)
	q := r.quantityBytes()
	out = append(out, r.LogicRef[:]...)
	out = append(out, r.LabelRef[:]...)
	out = append(out, q[:]...)
	out = append(out, r.ValueRef[:]...)
	if r.IsEphemeral {
		out = append(out, 1)
	} else {
		out = append(out, 0)
	}
	out = append(out, r.Nonce[:]...)
	out = append(out, r.NkCommitment[:]...)
	return append(out, r.RandSeed[:]...)
}

// DecodeResource parses the layout written by Encode.
func DecodeResource(b []byte) (*Resource, error) {
	if len(b) != ResourceSize {
		return nil, errors.Wrapf(ErrDeserialization, "resource: expected %d bytes, got %d", ResourceSize, len(b))
	}
	r := &Resource{}
	off := 0
	next := func(n int) []byte {
		s := b[off : off+n]
		off += n
		return s
	}
	copy(r.LogicRef[:], next(32))
	copy(r.LabelRef[:], next(32))
	r.Quantity = uint128.FromBytesBE(next(16))
	copy(r.ValueRef[:], next(32))
	switch next(1)[0] {
	case 0:
	case 1:
		r.IsEphemeral = true
	default:
		return nil, errors.Wrap(ErrDeserialization, "resource: ephemeral flag")
	}
	copy(r.Nonce[:], next(32))
	copy(r.NkCommitment[:], next(32))
	copy(r.RandSeed[:], next(32))
	return r, nil
}

// DeriveNonce derives the nonce of the index-th created resource from the digest of
// the consumed nullifiers.
func DeriveNonce(index uint32, nullifiersDigest digest.Digest) [32]byte {
	var idx [4]byte
	binary.LittleEndian.PutUint32(idx[:], index)
	return digest.Hash(idx[:], nullifiersDigest[:])
}

// HashNullifiers hashes the concatenation of nfs.
func HashNullifiers(nfs []digest.Digest) digest.Digest {
	parts := make([][]byte, len(nfs))
	for i := range nfs {
		parts[i] = nfs[i][:]
	}
	return digest.Hash(parts...)
}
