// logic.go - Resource logic proofs: instances, app data and verifiers.

package arm

import (
	"context"

	"github.com/pkg/errors"

	"resourcemachine/internal/digest"
)

// DeletionCriterion tells external storage how long to keep a blob.
type DeletionCriterion uint8

const (
	DeleteImmediately DeletionCriterion = 0
	DeleteNever       DeletionCriterion = 1
)

func (c DeletionCriterion) String() string {
	switch c {
	case DeleteImmediately:
		return "immediately"
	case DeleteNever:
		return "never"
	default:
		return "unknown"
	}
}

type ExpirableBlob struct {
	Blob              []byte            `json:"blob" cbor:"blob,omitempty"`
	DeletionCriterion DeletionCriterion `json:"deletion_criterion" cbor:"deletion_criterion,omitempty"`
}

// AppData holds the payloads a logic proof publishes, by category.
type AppData struct {
	ResourcePayload    []ExpirableBlob `json:"resource_payload,omitempty" cbor:"resource_payload,omitempty"`
	DiscoveryPayload   []ExpirableBlob `json:"discovery_payload,omitempty" cbor:"discovery_payload,omitempty"`
	ExternalPayload    []ExpirableBlob `json:"external_payload,omitempty" cbor:"external_payload,omitempty"`
	ApplicationPayload []ExpirableBlob `json:"application_payload,omitempty" cbor:"application_payload,omitempty"`
}

func (a *AppData) AddResourcePayload(b ExpirableBlob)    { a.ResourcePayload = append(a.ResourcePayload, b) }
func (a *AppData) AddDiscoveryPayload(b ExpirableBlob)   { a.DiscoveryPayload = append(a.DiscoveryPayload, b) }
func (a *AppData) AddExternalPayload(b ExpirableBlob)    { a.ExternalPayload = append(a.ExternalPayload, b) }
func (a *AppData) AddApplicationPayload(b ExpirableBlob) { a.ApplicationPayload = append(a.ApplicationPayload, b) }

func (a *AppData) IsEmpty() bool {
	return len(a.ResourcePayload) == 0 && len(a.DiscoveryPayload) == 0 &&
		len(a.ExternalPayload) == 0 && len(a.ApplicationPayload) == 0
}

// LogicInstance is the public journal of a logic proof.
type LogicInstance struct {
	Tag        digest.Digest `json:"tag" cbor:"tag"`
	IsConsumed bool          `json:"is_consumed" cbor:"is_consumed"`
	Root       digest.Digest `json:"root" cbor:"root"`
	AppData    AppData       `json:"app_data" cbor:"app_data"`
}

// Encode returns the journal encoding. Equal instances encode to equal bytes.
func (li *LogicInstance) Encode() ([]byte, error) {
	return marshal(li)
}

func DecodeLogicInstance(journal []byte) (*LogicInstance, error) {
	li := &LogicInstance{}
	if err := unmarshal(journal, li); err != nil {
		return nil, errors.Wrap(ErrJournalDecoding, err.Error())
	}
	return li, nil
}

// LogicWitness is the private input of a resource logic program. Constrain
// returns an error wrapping ErrConstraintViolated when the logic rejects.
type LogicWitness interface {
	Constrain() (*LogicInstance, error)
}

// LogicProgram runs witnesses of type W natively.
type LogicProgram[W LogicWitness] struct {
	ProgramID digest.Digest
}

func (p LogicProgram[W]) ID() digest.Digest { return p.ProgramID }

func (p LogicProgram[W]) Execute(witness []byte) ([]byte, error) {
	var w W
	if err := unmarshal(witness, &w); err != nil {
		return nil, err
	}
	li, err := w.Constrain()
	if err != nil {
		return nil, err
	}
	return li.Encode()
}

// ProveLogic proves w with the logic program vk.
func ProveLogic(ctx context.Context, params *Params, vk digest.Digest, w LogicWitness) (*LogicVerifier, error) {
	wb, err := marshal(w)
	if err != nil {
		return nil, err
	}
	receipt, err := params.Engine.Prove(ctx, vk, wb)
	if err != nil {
		return nil, errors.Wrapf(err, "logic %s", vk)
	}
	return &LogicVerifier{Proof: receipt.Seal, Instance: receipt.Journal, VerifyingKey: vk}, nil
}

// LogicVerifier is a logic proof together with everything needed to check it.
type LogicVerifier struct {
	Proof        []byte        `json:"proof,omitempty"`
	Instance     []byte        `json:"instance"`
	VerifyingKey digest.Digest `json:"verifying_key"`
}

func (v *LogicVerifier) Verify(ctx context.Context, params *Params) error {
	if len(v.Proof) == 0 {
		return errors.Wrap(ErrProofVerificationFailed, "missing logic proof")
	}
	if err := params.Engine.Verify(ctx, v.VerifyingKey, v.Instance, v.Proof); err != nil {
		return errors.Wrapf(err, "logic %s", v.VerifyingKey)
	}
	return nil
}

func (v *LogicVerifier) LogicInstance() (*LogicInstance, error) {
	return DecodeLogicInstance(v.Instance)
}

// Inputs drops the parts of the verifier that the action recomputes.
func (v *LogicVerifier) Inputs() (LogicVerifierInputs, error) {
	li, err := v.LogicInstance()
	if err != nil {
		return LogicVerifierInputs{}, err
	}
	return LogicVerifierInputs{
		Tag:          li.Tag,
		VerifyingKey: v.VerifyingKey,
		AppData:      li.AppData,
		Proof:        v.Proof,
	}, nil
}

// LogicVerifierInputs is what an action carries for each tag.
type LogicVerifierInputs struct {
	Tag          digest.Digest `json:"tag"`
	VerifyingKey digest.Digest `json:"verifying_key"`
	AppData      AppData       `json:"app_data"`
	Proof        []byte        `json:"proof,omitempty"`
}

// ToLogicVerifier rebuilds the instance the proof must attest to.
func (in *LogicVerifierInputs) ToLogicVerifier(isConsumed bool, root digest.Digest) (*LogicVerifier, error) {
	li := LogicInstance{
		Tag:        in.Tag,
		IsConsumed: isConsumed,
		Root:       root,
		AppData:    in.AppData,
	}
	journal, err := li.Encode()
	if err != nil {
		return nil, err
	}
	return &LogicVerifier{Proof: in.Proof, Instance: journal, VerifyingKey: in.VerifyingKey}, nil
}
