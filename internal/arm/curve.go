package arm

import (
	"crypto"
	"math/big"

	"github.com/cloudflare/circl/expander"
	"github.com/consensys/gnark-crypto/ecc/secp256k1"
	"github.com/consensys/gnark-crypto/ecc/secp256k1/fp"
	"github.com/consensys/gnark-crypto/ecc/secp256k1/fr"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"

	"resourcemachine/internal/digest"
)

var kindDST = []byte("QUUX-V01-CS02-with-secp256k1_XMD:SHA-256_SSWU_RO_")

var (
	g1Gen     secp256k1.G1Affine
	g1GenJac  secp256k1.G1Jac
	kindCache *lru.Cache[[64]byte, secp256k1.G1Affine]
)

func init() {
	g1GenJac, g1Gen = secp256k1.Generators()
	var err error
	kindCache, err = lru.New[[64]byte, secp256k1.G1Affine](4096)
	if err != nil {
		panic(err)
	}
}

// Generator returns the secp256k1 base point.
func Generator() secp256k1.G1Affine {
	return g1Gen
}

// HashToCurve maps msg to a secp256k1 point with unknown discrete log relative to
// the generator. The field element is drawn with expand_message_xmd and the first
// x at or after it with a square right-hand side is taken, with the even y.
func HashToCurve(msg []byte) (secp256k1.G1Affine, error) {
	uniform := expander.NewExpanderMD(crypto.SHA256, kindDST).Expand(msg, 48)
	var x, one, seven fp.Element
	x.SetBigInt(new(big.Int).SetBytes(uniform))
	one.SetOne()
	seven.SetUint64(7)
	for i := 0; i < 256; i++ {
		var rhs, y fp.Element
		rhs.Square(&x).Mul(&rhs, &x).Add(&rhs, &seven)
		if y.Sqrt(&rhs) != nil {
			if b := y.Bytes(); b[len(b)-1]&1 == 1 {
				y.Neg(&y)
			}
			p := secp256k1.G1Affine{X: x, Y: y}
			if p.IsOnCurve() {
				return p, nil
			}
		}
		x.Add(&x, &one)
	}
	return secp256k1.G1Affine{}, ErrInvalidResourceKind
}

// Kind is the value generator of the resource's type: a hash to curve of its logic
// and label references. Resources of the same kind balance against each other.
func (r *Resource) Kind() (secp256k1.G1Affine, error) {
	var key [64]byte
	copy(key[:32], r.LogicRef[:])
	copy(key[32:], r.LabelRef[:])
	if p, ok := kindCache.Get(key); ok {
		return p, nil
	}
	p, err := HashToCurve(key[:])
	if err != nil {
		return p, err
	}
	kindCache.Add(key, p)
	return p, nil
}

func scalarBig(s *fr.Element) *big.Int {
	return s.BigInt(new(big.Int))
}

// mulBase returns s·G.
func mulBase(s *fr.Element) secp256k1.G1Jac {
	var r secp256k1.G1Jac
	r.ScalarMultiplication(&g1GenJac, scalarBig(s))
	return r
}

// mul returns s·p.
func mul(p *secp256k1.G1Affine, s *fr.Element) secp256k1.G1Jac {
	var pj, r secp256k1.G1Jac
	pj.FromAffine(p)
	r.ScalarMultiplication(&pj, scalarBig(s))
	return r
}

func toAffine(p *secp256k1.G1Jac) secp256k1.G1Affine {
	var a secp256k1.G1Affine
	a.FromJacobian(p)
	return a
}

// EncodePoint returns the big-endian affine coordinates of p.
func EncodePoint(p *secp256k1.G1Affine) (x, y digest.Digest) {
	return p.X.Bytes(), p.Y.Bytes()
}

// DecodePoint parses affine coordinates. Non-canonical coordinates, points off the
// curve and the point at infinity are rejected with ErrInvalidDelta.
func DecodePoint(x, y digest.Digest) (secp256k1.G1Affine, error) {
	var p secp256k1.G1Affine
	if err := p.X.SetBytesCanonical(x[:]); err != nil {
		return p, errors.Wrap(ErrInvalidDelta, "x coordinate")
	}
	if err := p.Y.SetBytesCanonical(y[:]); err != nil {
		return p, errors.Wrap(ErrInvalidDelta, "y coordinate")
	}
	if p.IsInfinity() || !p.IsOnCurve() {
		return p, errors.Wrap(ErrInvalidDelta, "point not on curve")
	}
	return p, nil
}

// ScalarFromBytes parses a canonical big-endian scalar.
func ScalarFromBytes(b []byte) (fr.Element, error) {
	var s fr.Element
	if len(b) != fr.Bytes {
		return s, errors.Errorf("scalar: expected %d bytes, got %d", fr.Bytes, len(b))
	}
	if err := s.SetBytesCanonical(b); err != nil {
		return s, errors.Wrap(err, "scalar")
	}
	return s, nil
}

// RandomScalar draws a uniformly random non-zero scalar.
func RandomScalar() (fr.Element, error) {
	var s fr.Element
	for {
		if _, err := s.SetRandom(); err != nil {
			return s, errors.Wrap(err, "random scalar")
		}
		if !s.IsZero() {
			return s, nil
		}
	}
}
