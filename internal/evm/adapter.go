// Package evm converts transactions into the shape an EVM protocol adapter
// contract consumes: 32-byte words, flat logic proofs with explicit instances, and
// a recoverable delta signature.
package evm

import (
	"encoding/hex"
	"strings"

	"github.com/pkg/errors"

	"resourcemachine/internal/arm"
	"resourcemachine/internal/digest"
)

// Word is a big-endian 32-byte ABI word (bytes32 or uint256).
type Word [32]byte

func wordFromDigest(d digest.Digest) Word { return Word(d) }

// wordFromLE reads little-endian bytes as a uint256.
func wordFromLE(b [32]byte) Word {
	var w Word
	for i := range b {
		w[31-i] = b[i]
	}
	return w
}

func (w Word) MarshalText() ([]byte, error) {
	return []byte("0x" + hex.EncodeToString(w[:])), nil
}

func (w *Word) UnmarshalText(text []byte) error {
	b, err := hex.DecodeString(strings.TrimPrefix(string(text), "0x"))
	if err != nil {
		return err
	}
	if len(b) != len(w) {
		return errors.Errorf("word: expected %d bytes, got %d", len(w), len(b))
	}
	copy(w[:], b)
	return nil
}

type Resource struct {
	LogicRef               Word `json:"logicRef"`
	LabelRef               Word `json:"labelRef"`
	ValueRef               Word `json:"valueRef"`
	NullifierKeyCommitment Word `json:"nullifierKeyCommitment"`
	Quantity               Word `json:"quantity"`
	Nonce                  Word `json:"nonce"`
	RandSeed               Word `json:"randSeed"`
	Ephemeral              bool `json:"ephemeral"`
}

// FromResource converts r. The nonce and rand seed are read as little-endian
// integers.
func FromResource(r *arm.Resource) Resource {
	var q Word
	r.Quantity.PutBytesBE(q[16:])
	return Resource{
		LogicRef:               wordFromDigest(r.LogicRef),
		LabelRef:               wordFromDigest(r.LabelRef),
		ValueRef:               wordFromDigest(r.ValueRef),
		NullifierKeyCommitment: wordFromDigest(r.NkCommitment),
		Quantity:               q,
		Nonce:                  wordFromLE(r.Nonce),
		RandSeed:               wordFromLE(r.RandSeed),
		Ephemeral:              r.IsEphemeral,
	}
}

type ExpirableBlob struct {
	DeletionCriterion uint8  `json:"deletionCriterion"`
	Blob              []byte `json:"blob"`
}

type AppData struct {
	ResourcePayload    []ExpirableBlob `json:"resourcePayload"`
	DiscoveryPayload   []ExpirableBlob `json:"discoveryPayload"`
	ExternalPayload    []ExpirableBlob `json:"externalPayload"`
	ApplicationPayload []ExpirableBlob `json:"applicationPayload"`
}

func blobs(in []arm.ExpirableBlob) []ExpirableBlob {
	out := make([]ExpirableBlob, len(in))
	for i, b := range in {
		out[i] = ExpirableBlob{DeletionCriterion: uint8(b.DeletionCriterion), Blob: b.Blob}
	}
	return out
}

func fromAppData(a *arm.AppData) AppData {
	return AppData{
		ResourcePayload:    blobs(a.ResourcePayload),
		DiscoveryPayload:   blobs(a.DiscoveryPayload),
		ExternalPayload:    blobs(a.ExternalPayload),
		ApplicationPayload: blobs(a.ApplicationPayload),
	}
}

type LogicInstance struct {
	Tag        Word    `json:"tag"`
	IsConsumed bool    `json:"isConsumed"`
	Root       Word    `json:"root"`
	AppData    AppData `json:"appData"`
}

type LogicProof struct {
	Proof    []byte        `json:"proof"`
	Instance LogicInstance `json:"instance"`
	LogicRef Word          `json:"logicRef"`
}

type ConsumedRefs struct {
	Nullifier Word `json:"nullifier"`
	Root      Word `json:"root"`
	LogicRef  Word `json:"logicRef"`
}

type CreatedRefs struct {
	Commitment Word `json:"commitment"`
	LogicRef   Word `json:"logicRef"`
}

type ComplianceInstance struct {
	Consumed  ConsumedRefs `json:"consumed"`
	Created   CreatedRefs  `json:"created"`
	UnitDelta [2]Word      `json:"unitDelta"`
}

func fromComplianceInstance(ci *arm.ComplianceInstance) ComplianceInstance {
	return ComplianceInstance{
		Consumed: ConsumedRefs{
			Nullifier: wordFromDigest(ci.ConsumedNullifier),
			Root:      wordFromDigest(ci.ConsumedCommitmentTreeRoot),
			LogicRef:  wordFromDigest(ci.ConsumedLogicRef),
		},
		Created: CreatedRefs{
			Commitment: wordFromDigest(ci.CreatedCommitment),
			LogicRef:   wordFromDigest(ci.CreatedLogicRef),
		},
		UnitDelta: [2]Word{wordFromDigest(ci.DeltaX), wordFromDigest(ci.DeltaY)},
	}
}

type ComplianceUnit struct {
	Proof    []byte             `json:"proof"`
	Instance ComplianceInstance `json:"instance"`
}

type Action struct {
	LogicProofs     []LogicProof     `json:"logicProofs"`
	ComplianceUnits []ComplianceUnit `json:"complianceUnits"`
}

// FromAction rebuilds every logic instance the action's proofs attest to.
func FromAction(a *arm.Action) (*Action, error) {
	verifiers, err := a.LogicVerifiers()
	if err != nil {
		return nil, err
	}
	out := &Action{
		LogicProofs:     make([]LogicProof, 0, len(verifiers)),
		ComplianceUnits: make([]ComplianceUnit, 0, len(a.ComplianceUnits)),
	}
	for _, v := range verifiers {
		li, err := v.LogicInstance()
		if err != nil {
			return nil, err
		}
		out.LogicProofs = append(out.LogicProofs, LogicProof{
			Proof: v.Proof,
			Instance: LogicInstance{
				Tag:        wordFromDigest(li.Tag),
				IsConsumed: li.IsConsumed,
				Root:       wordFromDigest(li.Root),
				AppData:    fromAppData(&li.AppData),
			},
			LogicRef: wordFromDigest(v.VerifyingKey),
		})
	}
	for i := range a.ComplianceUnits {
		u := &a.ComplianceUnits[i]
		out.ComplianceUnits = append(out.ComplianceUnits, ComplianceUnit{
			Proof:    u.Proof,
			Instance: fromComplianceInstance(&u.Instance),
		})
	}
	return out, nil
}

type Transaction struct {
	Actions          []Action `json:"actions"`
	DeltaProof       []byte   `json:"deltaProof"`
	AggregationProof []byte   `json:"aggregationProof,omitempty"`
}

func fromActions(tx *arm.Transaction) ([]Action, error) {
	actions := make([]Action, 0, len(tx.Actions))
	for i := range tx.Actions {
		a, err := FromAction(&tx.Actions[i])
		if err != nil {
			return nil, errors.Wrapf(err, "action %d", i)
		}
		actions = append(actions, *a)
	}
	return actions, nil
}

// FromTransaction converts a proven transaction, keeping its Schnorr delta proof.
func FromTransaction(tx *arm.Transaction) (*Transaction, error) {
	if !tx.Delta.IsProof() {
		return nil, arm.ErrExpectedDeltaProof
	}
	actions, err := fromActions(tx)
	if err != nil {
		return nil, err
	}
	return &Transaction{
		Actions:          actions,
		DeltaProof:       tx.Delta.Proof.Bytes(),
		AggregationProof: tx.AggregationProof,
	}, nil
}

// FromWitnessTransaction converts a transaction still holding its delta witness,
// signing the delta message in the recoverable form.
func FromWitnessTransaction(tx *arm.Transaction) (*Transaction, error) {
	if tx.Delta.Witness == nil {
		return nil, errors.Wrap(arm.ErrMissingField, "delta witness")
	}
	actions, err := fromActions(tx)
	if err != nil {
		return nil, err
	}
	sig, err := SignDelta(tx.DeltaMessage(), tx.Delta.Witness)
	if err != nil {
		return nil, err
	}
	return &Transaction{Actions: actions, DeltaProof: sig, AggregationProof: tx.AggregationProof}, nil
}

// VerifyDelta checks the adapter transaction's delta proof, in either form,
// against the source transaction's delta message and instance.
func (t *Transaction) VerifyDelta(src *arm.Transaction) error {
	instance, err := src.DeltaInstance()
	if err != nil {
		return err
	}
	return VerifyDeltaProofBytes(src.DeltaMessage(), t.DeltaProof, instance)
}
