// delta.go - The recoverable delta signature EVM verifiers expect.
//
// The protocol's delta proof is a Schnorr signature. Contracts instead recover an
// ECDSA signer from keccak256(message) and compare it with the delta instance, so
// transactions bound for them carry a 65-byte r || s || v signature made with the
// same delta witness.

package evm

import (
	"math/big"

	"github.com/btcsuite/btcd/btcec"
	"github.com/pkg/errors"
	"golang.org/x/crypto/sha3"

	"resourcemachine/internal/arm"
)

// RecoverableDeltaProofSize is the length of r || s || v.
const RecoverableDeltaProofSize = 65

// Keccak256 hashes data with legacy Keccak-256.
func Keccak256(data ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}

// SignDelta signs keccak256(msg) with the delta witness, deterministically.
func SignDelta(msg []byte, w *arm.DeltaWitness) ([]byte, error) {
	if w == nil {
		return nil, arm.ErrInvalidSigningKey
	}
	key := w.Bytes()
	if new(big.Int).SetBytes(key[:]).Sign() == 0 {
		return nil, arm.ErrInvalidSigningKey
	}
	sk, _ := btcec.PrivKeyFromBytes(btcec.S256(), key[:])
	compact, err := btcec.SignCompact(btcec.S256(), sk, Keccak256(msg), false)
	if err != nil {
		return nil, errors.Wrap(arm.ErrDeltaProofGenerationFailed, err.Error())
	}
	// btcec puts the header byte first: 27 + recid || r || s.
	out := make([]byte, 0, RecoverableDeltaProofSize)
	out = append(out, compact[1:]...)
	return append(out, compact[0]), nil
}

// VerifyRecoverableDelta recovers the signer of sig and compares it with the
// delta instance.
func VerifyRecoverableDelta(msg, sig []byte, instance *arm.DeltaInstance) error {
	if len(sig) != RecoverableDeltaProofSize {
		return errors.Wrapf(arm.ErrInvalidSignature, "expected %d bytes, got %d", RecoverableDeltaProofSize, len(sig))
	}
	v := sig[64]
	if v != 27 && v != 28 {
		return errors.Wrapf(arm.ErrInvalidSignature, "recovery byte %d", v)
	}
	compact := make([]byte, 0, RecoverableDeltaProofSize)
	compact = append(compact, v)
	compact = append(compact, sig[:64]...)
	pk, _, err := btcec.RecoverCompact(btcec.S256(), compact, Keccak256(msg))
	if err != nil {
		return errors.Wrap(arm.ErrDeltaProofVerificationFailed, err.Error())
	}

	p := instance.Point()
	if p.IsInfinity() {
		return errors.Wrap(arm.ErrInvalidPublicKey, "delta instance is the identity")
	}
	x, y := arm.EncodePoint(&p)
	if pk.X.Cmp(new(big.Int).SetBytes(x[:])) != 0 || pk.Y.Cmp(new(big.Int).SetBytes(y[:])) != 0 {
		return arm.ErrDeltaProofVerificationFailed
	}
	return nil
}

// VerifyDeltaProofBytes accepts either wire form of a delta proof: the 96-byte
// Schnorr encoding or the 65-byte recoverable signature.
func VerifyDeltaProofBytes(msg, proof []byte, instance *arm.DeltaInstance) error {
	switch len(proof) {
	case RecoverableDeltaProofSize:
		return VerifyRecoverableDelta(msg, proof, instance)
	case arm.DeltaProofSize:
		p, err := arm.DeltaProofFromBytes(proof)
		if err != nil {
			return err
		}
		return arm.VerifyDelta(msg, p, instance)
	default:
		return errors.Wrapf(arm.ErrInvalidSignature, "delta proof of %d bytes", len(proof))
	}
}
