// transaction.go - Transactions, their delta state machine and verification.
//
// A transaction is authored with a delta witness. GenerateDeltaProof replaces the
// witness with a proof over the transaction's delta message; only then can the
// transaction be verified.

package arm

import (
	"context"
	"time"

	"github.com/consensys/gnark-crypto/ecc/secp256k1"
	"github.com/pkg/errors"

	"resourcemachine/internal/digest"
)

// Delta holds exactly one of Witness or Proof.
type Delta struct {
	Witness *DeltaWitness `json:"witness,omitempty"`
	Proof   *DeltaProof   `json:"proof,omitempty"`
}

func (d *Delta) IsProof() bool { return d.Proof != nil && d.Witness == nil }

type Transaction struct {
	Actions          []Action `json:"actions"`
	Delta            Delta    `json:"delta"`
	AggregationProof []byte   `json:"aggregation_proof,omitempty"`
}

// NewTransaction creates a transaction in the witness state.
func NewTransaction(actions []Action, witness *DeltaWitness) *Transaction {
	return &Transaction{Actions: actions, Delta: Delta{Witness: witness}}
}

// NumberOfResources counts consumed and created resources over all actions.
func (tx *Transaction) NumberOfResources() int {
	n := 0
	for i := range tx.Actions {
		n += 2 * len(tx.Actions[i].ComplianceUnits)
	}
	return n
}

// DeltaMessage concatenates nf || cm over actions then units.
func (tx *Transaction) DeltaMessage() []byte {
	var msg []byte
	for i := range tx.Actions {
		msg = append(msg, tx.Actions[i].DeltaMessage()...)
	}
	return msg
}

// DeltaInstance sums the deltas of every unit.
func (tx *Transaction) DeltaInstance() (*DeltaInstance, error) {
	if n := tx.NumberOfResources(); n > TxMaxResources {
		return nil, errors.Wrapf(ErrDeltaProofVerificationFailed, "%d resources exceed the limit of %d", n, TxMaxResources)
	}
	points := make([]secp256k1.G1Affine, 0, len(tx.Actions))
	for i := range tx.Actions {
		p, err := tx.Actions[i].Delta()
		if err != nil {
			return nil, errors.Wrapf(err, "action %d", i)
		}
		points = append(points, p)
	}
	return DeltaInstanceFromDeltas(points...), nil
}

// GenerateDeltaProof signs the delta message with the witness and moves the
// transaction to the proof state. A transaction already holding a proof is left
// unchanged.
func (tx *Transaction) GenerateDeltaProof() error {
	if tx.Delta.Witness == nil {
		if tx.Delta.Proof != nil {
			return nil
		}
		return errors.Wrap(ErrMissingField, "delta witness")
	}
	proof, err := ProveDelta(tx.DeltaMessage(), tx.Delta.Witness)
	if err != nil {
		return err
	}
	tx.Delta = Delta{Proof: proof}
	return nil
}

// Verify accepts the transaction only if its delta proof holds and every proof
// of every action verifies. Aggregated transactions are checked against their
// aggregation proof instead of the individual proofs.
func (tx *Transaction) Verify(ctx context.Context, params *Params) error {
	if tx.Delta.Witness != nil {
		return ErrExpectedDeltaProof
	}
	if tx.Delta.Proof == nil {
		return errors.Wrap(ErrMissingField, "delta proof")
	}
	start := time.Now()

	instance, err := tx.DeltaInstance()
	if err != nil {
		return err
	}
	if err := VerifyDelta(tx.DeltaMessage(), tx.Delta.Proof, instance); err != nil {
		return err
	}

	if tx.IsAggregated() {
		err = tx.VerifyAggregation(ctx, params)
	} else {
		err = forEach(ctx, params.concurrency(), len(tx.Actions), func(ctx context.Context, i int) error {
			return errors.Wrapf(tx.Actions[i].Verify(ctx, params), "action %d", i)
		})
	}
	if err != nil {
		return err
	}
	params.Logger.Debug().
		Int("actions", len(tx.Actions)).
		Int("resources", tx.NumberOfResources()).
		Dur("took", time.Since(start)).
		Msg("transaction verified")
	return nil
}

// Compose concatenates the actions of two witness-state transactions and sums
// their witnesses.
func Compose(tx1, tx2 *Transaction) (*Transaction, error) {
	if tx1.Delta.Witness == nil || tx2.Delta.Witness == nil {
		return nil, ErrComposeDeltaMismatch
	}
	actions := make([]Action, 0, len(tx1.Actions)+len(tx2.Actions))
	actions = append(actions, tx1.Actions...)
	actions = append(actions, tx2.Actions...)
	return NewTransaction(actions, tx1.Delta.Witness.Compose(tx2.Delta.Witness)), nil
}

// Nullifiers returns the consumed nullifiers in delta message order.
func (tx *Transaction) Nullifiers() []digest.Digest {
	var out []digest.Digest
	for i := range tx.Actions {
		for j := range tx.Actions[i].ComplianceUnits {
			out = append(out, tx.Actions[i].ComplianceUnits[j].Instance.ConsumedNullifier)
		}
	}
	return out
}

// Commitments returns the created commitments in delta message order.
func (tx *Transaction) Commitments() []digest.Digest {
	var out []digest.Digest
	for i := range tx.Actions {
		for j := range tx.Actions[i].ComplianceUnits {
			out = append(out, tx.Actions[i].ComplianceUnits[j].Instance.CreatedCommitment)
		}
	}
	return out
}

// Roots returns the consumed commitment tree root of every unit.
func (tx *Transaction) Roots() []digest.Digest {
	var out []digest.Digest
	for i := range tx.Actions {
		for j := range tx.Actions[i].ComplianceUnits {
			out = append(out, tx.Actions[i].ComplianceUnits[j].Instance.ConsumedCommitmentTreeRoot)
		}
	}
	return out
}

// LogicInstances rebuilds the logic instance of every tag, in action order.
func (tx *Transaction) LogicInstances() ([]*LogicInstance, error) {
	var out []*LogicInstance
	for i := range tx.Actions {
		vs, err := tx.Actions[i].LogicVerifiers()
		if err != nil {
			return nil, err
		}
		for _, v := range vs {
			li, err := v.LogicInstance()
			if err != nil {
				return nil, err
			}
			out = append(out, li)
		}
	}
	return out, nil
}
