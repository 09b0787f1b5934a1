package arm

import (
	"context"

	"github.com/consensys/gnark-crypto/ecc/secp256k1"
	"github.com/pkg/errors"
)

// ComplianceUnit pairs a compliance proof with its instance. The proof is empty
// once the transaction's proofs have been aggregated.
type ComplianceUnit struct {
	Proof    []byte             `json:"proof,omitempty" cbor:"proof,omitempty"`
	Instance ComplianceInstance `json:"instance" cbor:"instance"`
}

// Verify checks the unit's proof against the compliance verifying key.
func (u *ComplianceUnit) Verify(ctx context.Context, params *Params) error {
	if len(u.Proof) == 0 {
		return errors.Wrap(ErrProofVerificationFailed, "missing compliance proof")
	}
	if err := params.Engine.Verify(ctx, params.Keys.Compliance, u.Instance.Encode(), u.Proof); err != nil {
		return errors.Wrapf(err, "compliance unit %s", u.Instance.ConsumedNullifier)
	}
	return nil
}

func (u *ComplianceUnit) Delta() (secp256k1.G1Affine, error) {
	return u.Instance.Delta()
}
