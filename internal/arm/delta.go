// delta.go - Delta witness, instance and the Schnorr proof binding them.
//
// A transaction's delta instance is the sum of its units' delta points. When the
// transaction balances, the kind terms cancel and the instance equals w·G, where
// w is the sum of every unit's rcv. Knowledge of w is proven with a Schnorr
// signature over the transaction's delta message.

package arm

import (
	"encoding/hex"

	"github.com/consensys/gnark-crypto/ecc/secp256k1"
	"github.com/consensys/gnark-crypto/ecc/secp256k1/fr"
	"github.com/pkg/errors"

	"resourcemachine/internal/digest"
)

// DeltaProofSize is the length of the canonical delta proof encoding.
const DeltaProofSize = 3 * 32

// DeltaWitness is the aggregate blinding scalar of a transaction.
type DeltaWitness struct {
	key fr.Element
}

// DeltaWitnessFromScalars sums rcv values.
func DeltaWitnessFromScalars(rcvs ...[32]byte) (*DeltaWitness, error) {
	w := &DeltaWitness{}
	for i := range rcvs {
		s, err := ScalarFromBytes(rcvs[i][:])
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidRcv, "rcv %d: %v", i, err)
		}
		w.key.Add(&w.key, &s)
	}
	return w, nil
}

// DeltaWitnessFromCompliance sums the rcv of every witness.
func DeltaWitnessFromCompliance(ws ...*ComplianceWitness) (*DeltaWitness, error) {
	rcvs := make([][32]byte, len(ws))
	for i, w := range ws {
		rcvs[i] = w.Rcv
	}
	return DeltaWitnessFromScalars(rcvs...)
}

// Compose returns the witness of the union of two transactions.
func (w *DeltaWitness) Compose(o *DeltaWitness) *DeltaWitness {
	out := &DeltaWitness{}
	out.key.Add(&w.key, &o.key)
	return out
}

func (w *DeltaWitness) Bytes() [32]byte {
	return w.key.Bytes()
}

// PublicKey returns w·G.
func (w *DeltaWitness) PublicKey() secp256k1.G1Affine {
	p := mulBase(&w.key)
	return toAffine(&p)
}

func (w *DeltaWitness) MarshalText() ([]byte, error) {
	b := w.key.Bytes()
	return []byte(hex.EncodeToString(b[:])), nil
}

func (w *DeltaWitness) UnmarshalText(text []byte) error {
	b, err := hex.DecodeString(string(text))
	if err != nil {
		return errors.Wrap(ErrDeserialization, "delta witness: "+err.Error())
	}
	k, err := ScalarFromBytes(b)
	if err != nil {
		return errors.Wrap(ErrDeserialization, "delta witness: "+err.Error())
	}
	w.key = k
	return nil
}

// DeltaInstance is the aggregate delta point a delta proof is checked against.
type DeltaInstance struct {
	point secp256k1.G1Affine
}

// DeltaInstanceFromDeltas sums points.
func DeltaInstanceFromDeltas(points ...secp256k1.G1Affine) *DeltaInstance {
	var sum secp256k1.G1Jac
	sum.FromAffine(&secp256k1.G1Affine{})
	for i := range points {
		var pj secp256k1.G1Jac
		pj.FromAffine(&points[i])
		sum.AddAssign(&pj)
	}
	return &DeltaInstance{point: toAffine(&sum)}
}

// DeltaInstanceFromPoint wraps a single point.
func DeltaInstanceFromPoint(p secp256k1.G1Affine) *DeltaInstance {
	return &DeltaInstance{point: p}
}

func (d *DeltaInstance) Point() secp256k1.G1Affine { return d.point }

func (d *DeltaInstance) Equal(o *DeltaInstance) bool {
	return d.point.Equal(&o.point)
}

// DeltaProof is a Schnorr signature (R, s).
type DeltaProof struct {
	R secp256k1.G1Affine
	S fr.Element
}

func deltaChallenge(r *secp256k1.G1Affine, msg []byte) fr.Element {
	rx, ry := EncodePoint(r)
	h := digest.Hash(rx[:], ry[:], msg)
	var e fr.Element
	e.SetBytes(h[:])
	return e
}

// ProveDelta signs msg with the witness.
func ProveDelta(msg []byte, w *DeltaWitness) (*DeltaProof, error) {
	if w == nil || w.key.IsZero() {
		return nil, ErrInvalidSigningKey
	}
	k, err := RandomScalar()
	if err != nil {
		return nil, errors.Wrap(ErrDeltaProofGenerationFailed, err.Error())
	}
	rj := mulBase(&k)
	r := toAffine(&rj)
	e := deltaChallenge(&r, msg)

	var s fr.Element
	s.Mul(&e, &w.key).Add(&s, &k)
	return &DeltaProof{R: r, S: s}, nil
}

// VerifyDelta checks s·G == R + e·P.
func VerifyDelta(msg []byte, proof *DeltaProof, instance *DeltaInstance) error {
	if proof == nil {
		return errors.Wrap(ErrDeltaProofVerificationFailed, "missing proof")
	}
	if instance.point.IsInfinity() {
		return errors.Wrap(ErrInvalidPublicKey, "delta instance is the identity")
	}
	if proof.R.IsInfinity() || !proof.R.IsOnCurve() {
		return errors.Wrap(ErrInvalidSignature, "commitment point")
	}
	e := deltaChallenge(&proof.R, msg)

	lhs := mulBase(&proof.S)
	rhs := mul(&instance.point, &e)
	var rj secp256k1.G1Jac
	rj.FromAffine(&proof.R)
	rhs.AddAssign(&rj)

	l, r := toAffine(&lhs), toAffine(&rhs)
	if !l.Equal(&r) {
		return ErrDeltaProofVerificationFailed
	}
	return nil
}

// Bytes returns R.x || R.y || s.
func (p *DeltaProof) Bytes() []byte {
	rx, ry := EncodePoint(&p.R)
	s := p.S.Bytes()
	out := make([]byte, 0, DeltaProofSize)
	out = append(out, rx[:]...)
	out = append(out, ry[:]...)
	return append(out, s[:]...)
}

// DeltaProofFromBytes parses the canonical encoding.
func DeltaProofFromBytes(b []byte) (*DeltaProof, error) {
	if len(b) != DeltaProofSize {
		return nil, errors.Wrapf(ErrInvalidSignature, "delta proof: expected %d bytes, got %d", DeltaProofSize, len(b))
	}
	var rx, ry digest.Digest
	copy(rx[:], b[:32])
	copy(ry[:], b[32:64])
	r, err := DecodePoint(rx, ry)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidSignature, err.Error())
	}
	s, err := ScalarFromBytes(b[64:])
	if err != nil {
		return nil, errors.Wrap(ErrInvalidSignature, err.Error())
	}
	return &DeltaProof{R: r, S: s}, nil
}

func (p *DeltaProof) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(p.Bytes())), nil
}

func (p *DeltaProof) UnmarshalText(text []byte) error {
	b, err := hex.DecodeString(string(text))
	if err != nil {
		return errors.Wrap(ErrInvalidSignature, err.Error())
	}
	dp, err := DeltaProofFromBytes(b)
	if err != nil {
		return err
	}
	*p = *dp
	return nil
}
