// compliance.go - The compliance statement: one resource consumed, one created.

package arm

import (
	"context"

	"github.com/consensys/gnark-crypto/ecc/secp256k1"
	"github.com/consensys/gnark-crypto/ecc/secp256k1/fr"
	"github.com/pkg/errors"

	"resourcemachine/internal/digest"
)

// ComplianceInstance is the public journal of a compliance proof.
type ComplianceInstance struct {
	ConsumedNullifier          digest.Digest `json:"consumed_nullifier" cbor:"consumed_nullifier"`
	ConsumedLogicRef           digest.Digest `json:"consumed_logic_ref" cbor:"consumed_logic_ref"`
	ConsumedCommitmentTreeRoot digest.Digest `json:"consumed_commitment_tree_root" cbor:"consumed_commitment_tree_root"`
	CreatedCommitment          digest.Digest `json:"created_commitment" cbor:"created_commitment"`
	CreatedLogicRef            digest.Digest `json:"created_logic_ref" cbor:"created_logic_ref"`
	DeltaX                     digest.Digest `json:"delta_x" cbor:"delta_x"`
	DeltaY                     digest.Digest `json:"delta_y" cbor:"delta_y"`
}

func (ci *ComplianceInstance) fields() []*digest.Digest {
	return []*digest.Digest{
		&ci.ConsumedNullifier,
		&ci.ConsumedLogicRef,
		&ci.ConsumedCommitmentTreeRoot,
		&ci.CreatedCommitment,
		&ci.CreatedLogicRef,
		&ci.DeltaX,
		&ci.DeltaY,
	}
}

// Encode returns the fixed 224-byte journal layout.
func (ci *ComplianceInstance) Encode() []byte {
	out := make([]byte, 0, ComplianceInstanceSize)
	for _, f := range ci.fields() {
		out = append(out, f[:]...)
	}
	return out
}

// Words returns the journal as little-endian u32 words.
func (ci *ComplianceInstance) Words() []uint32 {
	return digest.BytesToWords(ci.Encode())
}

// DecodeComplianceInstance parses a compliance journal.
func DecodeComplianceInstance(journal []byte) (*ComplianceInstance, error) {
	if len(journal) != ComplianceInstanceSize {
		return nil, errors.Wrapf(ErrJournalDecoding, "compliance instance: expected %d bytes, got %d", ComplianceInstanceSize, len(journal))
	}
	ci := &ComplianceInstance{}
	for i, f := range ci.fields() {
		copy(f[:], journal[i*digest.Size:(i+1)*digest.Size])
	}
	return ci, nil
}

// Delta decodes the unit's delta commitment.
func (ci *ComplianceInstance) Delta() (secp256k1.G1Affine, error) {
	return DecodePoint(ci.DeltaX, ci.DeltaY)
}

// DeltaMessage is the unit's contribution to the signed delta message.
func (ci *ComplianceInstance) DeltaMessage() []byte {
	out := make([]byte, 0, 2*digest.Size)
	out = append(out, ci.ConsumedNullifier[:]...)
	return append(out, ci.CreatedCommitment[:]...)
}

// ComplianceWitness is the private input of the compliance program.
type ComplianceWitness struct {
	ConsumedResource Resource      `json:"consumed_resource" cbor:"consumed_resource"`
	MerklePath       MerklePath    `json:"merkle_path" cbor:"merkle_path,omitempty"`
	EphemeralRoot    digest.Digest `json:"ephemeral_root" cbor:"ephemeral_root"`
	NfKey            NullifierKey  `json:"nf_key" cbor:"nf_key"`
	CreatedResource  Resource      `json:"created_resource" cbor:"created_resource"`
	Rcv              [32]byte      `json:"rcv" cbor:"rcv"`
}

// NewComplianceWitness proves existence of a persistent consumed resource with
// path, and draws a random rcv.
func NewComplianceWitness(consumed *Resource, nfKey NullifierKey, path MerklePath, created *Resource) (*ComplianceWitness, error) {
	rcv, err := RandomScalar()
	if err != nil {
		return nil, err
	}
	return &ComplianceWitness{
		ConsumedResource: *consumed,
		MerklePath:       path,
		EphemeralRoot:    InitialRoot,
		NfKey:            nfKey,
		CreatedResource:  *created,
		Rcv:              rcv.Bytes(),
	}, nil
}

// NewEphemeralComplianceWitness uses latestRoot as the root of an ephemeral
// consumed resource, and draws a random rcv.
func NewEphemeralComplianceWitness(consumed *Resource, latestRoot digest.Digest, nfKey NullifierKey, created *Resource) (*ComplianceWitness, error) {
	rcv, err := RandomScalar()
	if err != nil {
		return nil, err
	}
	return &ComplianceWitness{
		ConsumedResource: *consumed,
		EphemeralRoot:    latestRoot,
		NfKey:            nfKey,
		CreatedResource:  *created,
		Rcv:              rcv.Bytes(),
	}, nil
}

// ComplianceWitnessWithFixedRcv sets rcv to one. Test helper.
func ComplianceWitnessWithFixedRcv(consumed *Resource, nfKey NullifierKey, created *Resource) *ComplianceWitness {
	var one fr.Element
	one.SetOne()
	return &ComplianceWitness{
		ConsumedResource: *consumed,
		EphemeralRoot:    InitialRoot,
		NfKey:            nfKey,
		CreatedResource:  *created,
		Rcv:              one.Bytes(),
	}
}

// RcvScalar parses rcv. Zero and non-canonical values are rejected.
func (w *ComplianceWitness) RcvScalar() (fr.Element, error) {
	rcv, err := ScalarFromBytes(w.Rcv[:])
	if err != nil {
		return rcv, errors.Wrap(ErrInvalidRcv, err.Error())
	}
	if rcv.IsZero() {
		return rcv, errors.Wrap(ErrInvalidRcv, "zero")
	}
	return rcv, nil
}

// ConsumedCommitmentTreeRoot is the ephemeral root for an ephemeral consumed
// resource and the path root of its commitment otherwise.
func (w *ComplianceWitness) ConsumedCommitmentTreeRoot(cm digest.Digest) digest.Digest {
	if w.ConsumedResource.IsEphemeral {
		return w.EphemeralRoot
	}
	return w.MerklePath.Root(cm)
}

// Constrain checks the witness and computes its public instance. A depth of zero
// accepts paths of any length.
func (w *ComplianceWitness) Constrain(depth int) (*ComplianceInstance, error) {
	consumed, created := &w.ConsumedResource, &w.CreatedResource

	cm := consumed.Commitment()
	nf, err := consumed.NullifierFromCommitment(w.NfKey, cm)
	if err != nil {
		return nil, err
	}
	if created.Nonce != nf {
		return nil, errors.Wrap(ErrInvalidResourceNonce, "created nonce must equal the consumed nullifier")
	}
	if !consumed.IsEphemeral && depth > 0 && len(w.MerklePath) != depth {
		return nil, errors.Wrapf(ErrMerkleDepthMismatch, "path has %d nodes, tree depth is %d", len(w.MerklePath), depth)
	}

	delta, err := w.delta()
	if err != nil {
		return nil, err
	}
	dx, dy := EncodePoint(&delta)

	return &ComplianceInstance{
		ConsumedNullifier:          nf,
		ConsumedLogicRef:           consumed.LogicRef,
		ConsumedCommitmentTreeRoot: w.ConsumedCommitmentTreeRoot(cm),
		CreatedCommitment:          created.Commitment(),
		CreatedLogicRef:            created.LogicRef,
		DeltaX:                     dx,
		DeltaY:                     dy,
	}, nil
}

// delta is rcv·G + q_created·K_created − q_consumed·K_consumed.
func (w *ComplianceWitness) delta() (secp256k1.G1Affine, error) {
	rcv, err := w.RcvScalar()
	if err != nil {
		return secp256k1.G1Affine{}, err
	}
	kConsumed, err := w.ConsumedResource.Kind()
	if err != nil {
		return secp256k1.G1Affine{}, err
	}
	kCreated, err := w.CreatedResource.Kind()
	if err != nil {
		return secp256k1.G1Affine{}, err
	}
	qConsumed := w.ConsumedResource.QuantityScalar()
	qCreated := w.CreatedResource.QuantityScalar()

	sum := mulBase(&rcv)
	created := mul(&kCreated, &qCreated)
	consumed := mul(&kConsumed, &qConsumed)
	sum.AddAssign(&created)
	sum.SubAssign(&consumed)

	p := toAffine(&sum)
	if p.IsInfinity() {
		return p, errors.Wrap(ErrInvalidDelta, "delta is the identity")
	}
	return p, nil
}

// ComplianceProgram is the guest program proving compliance witnesses.
type ComplianceProgram struct {
	ProgramID digest.Digest
	TreeDepth int
}

func (p ComplianceProgram) ID() digest.Digest { return p.ProgramID }

func (p ComplianceProgram) Execute(witness []byte) ([]byte, error) {
	var w ComplianceWitness
	if err := unmarshal(witness, &w); err != nil {
		return nil, err
	}
	ci, err := w.Constrain(p.TreeDepth)
	if err != nil {
		return nil, err
	}
	return ci.Encode(), nil
}

// ProveCompliance proves w and returns the resulting unit.
func ProveCompliance(ctx context.Context, params *Params, w *ComplianceWitness) (*ComplianceUnit, error) {
	wb, err := marshal(w)
	if err != nil {
		return nil, err
	}
	receipt, err := params.Engine.Prove(ctx, params.Keys.Compliance, wb)
	if err != nil {
		return nil, errors.Wrap(err, "compliance")
	}
	ci, err := DecodeComplianceInstance(receipt.Journal)
	if err != nil {
		return nil, err
	}
	params.Logger.Debug().
		Str("nullifier", ci.ConsumedNullifier.String()).
		Str("commitment", ci.CreatedCommitment.String()).
		Msg("compliance proved")
	return &ComplianceUnit{Proof: receipt.Seal, Instance: *ci}, nil
}
