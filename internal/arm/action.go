package arm

import (
	"context"

	"github.com/consensys/gnark-crypto/ecc/secp256k1"
	"github.com/pkg/errors"

	"resourcemachine/internal/digest"
)

// Action bundles compliance units with the logic proofs of every tag they touch.
type Action struct {
	ComplianceUnits     []ComplianceUnit      `json:"compliance_units"`
	LogicVerifierInputs []LogicVerifierInputs `json:"logic_verifier_inputs"`
}

// NewAction strips each logic verifier down to its inputs.
func NewAction(units []ComplianceUnit, verifiers []*LogicVerifier) (*Action, error) {
	inputs := make([]LogicVerifierInputs, 0, len(verifiers))
	for _, v := range verifiers {
		in, err := v.Inputs()
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, in)
	}
	return &Action{ComplianceUnits: units, LogicVerifierInputs: inputs}, nil
}

// Tags returns the interleaved tags [nf0, cm0, nf1, cm1, ...] and the logic ref of
// each.
func (a *Action) Tags() (tags, logicRefs []digest.Digest) {
	tags = make([]digest.Digest, 0, 2*len(a.ComplianceUnits))
	logicRefs = make([]digest.Digest, 0, 2*len(a.ComplianceUnits))
	for i := range a.ComplianceUnits {
		ci := &a.ComplianceUnits[i].Instance
		tags = append(tags, ci.ConsumedNullifier, ci.CreatedCommitment)
		logicRefs = append(logicRefs, ci.ConsumedLogicRef, ci.CreatedLogicRef)
	}
	return tags, logicRefs
}

func (a *Action) ActionTree() *MerkleTree {
	tags, _ := a.Tags()
	return NewMerkleTree(tags)
}

// ActionTreeFromWitnesses builds the action tree before any unit is proven.
func ActionTreeFromWitnesses(ws ...*ComplianceWitness) (*MerkleTree, error) {
	tags := make([]digest.Digest, 0, 2*len(ws))
	for _, w := range ws {
		nf, err := w.ConsumedResource.Nullifier(w.NfKey)
		if err != nil {
			return nil, err
		}
		tags = append(tags, nf, w.CreatedResource.Commitment())
	}
	return NewMerkleTree(tags), nil
}

// LogicVerifiers matches every tag with its logic input and rebuilds the instance
// each logic proof attests to.
func (a *Action) LogicVerifiers() ([]*LogicVerifier, error) {
	tags, logicRefs := a.Tags()
	root, err := NewMerkleTree(tags).Root()
	if err != nil {
		return nil, err
	}
	if len(tags) != len(a.LogicVerifierInputs) {
		return nil, errors.Wrapf(ErrTagNotFound, "%d tags, %d logic inputs", len(tags), len(a.LogicVerifierInputs))
	}

	verifiers := make([]*LogicVerifier, 0, len(tags))
	for i, tag := range tags {
		in := a.findInput(tag)
		if in == nil {
			return nil, errors.Wrapf(ErrTagNotFound, "tag %s", tag)
		}
		if in.VerifyingKey != logicRefs[i] {
			return nil, errors.Wrapf(ErrVerifyingKeyMismatch, "tag %s", tag)
		}
		v, err := in.ToLogicVerifier(i%2 == 0, root)
		if err != nil {
			return nil, err
		}
		verifiers = append(verifiers, v)
	}
	return verifiers, nil
}

func (a *Action) findInput(tag digest.Digest) *LogicVerifierInputs {
	for i := range a.LogicVerifierInputs {
		if a.LogicVerifierInputs[i].Tag == tag {
			return &a.LogicVerifierInputs[i]
		}
	}
	return nil
}

// Verify checks every compliance and logic proof of the action.
func (a *Action) Verify(ctx context.Context, params *Params) error {
	verifiers, err := a.LogicVerifiers()
	if err != nil {
		return err
	}
	nu := len(a.ComplianceUnits)
	return forEach(ctx, params.concurrency(), nu+len(verifiers), func(ctx context.Context, i int) error {
		if i < nu {
			return a.ComplianceUnits[i].Verify(ctx, params)
		}
		return verifiers[i-nu].Verify(ctx, params)
	})
}

// Delta sums the deltas of the action's units.
func (a *Action) Delta() (secp256k1.G1Affine, error) {
	points := make([]secp256k1.G1Affine, 0, len(a.ComplianceUnits))
	for i := range a.ComplianceUnits {
		p, err := a.ComplianceUnits[i].Delta()
		if err != nil {
			return secp256k1.G1Affine{}, errors.Wrapf(err, "unit %d", i)
		}
		points = append(points, p)
	}
	return DeltaInstanceFromDeltas(points...).Point(), nil
}

func (a *Action) DeltaMessage() []byte {
	msg := make([]byte, 0, 2*digest.Size*len(a.ComplianceUnits))
	for i := range a.ComplianceUnits {
		msg = append(msg, a.ComplianceUnits[i].Instance.DeltaMessage()...)
	}
	return msg
}

func (a *Action) eraseProofs() {
	for i := range a.ComplianceUnits {
		a.ComplianceUnits[i].Proof = nil
	}
	for i := range a.LogicVerifierInputs {
		a.LogicVerifierInputs[i].Proof = nil
	}
}

func (a *Action) hasAllProofs() bool {
	for i := range a.ComplianceUnits {
		if len(a.ComplianceUnits[i].Proof) == 0 {
			return false
		}
	}
	for i := range a.LogicVerifierInputs {
		if len(a.LogicVerifierInputs[i].Proof) == 0 {
			return false
		}
	}
	return true
}
