// aggregation.go - Batch aggregation of a transaction's compliance and logic proofs.
//
// The aggregation program verifies every base receipt of a transaction and commits
// to the batch of their instances and verifying keys. Once aggregated, a
// transaction carries one aggregation proof and no base proofs.

package arm

import (
	"context"
	"runtime"

	"github.com/pkg/errors"

	"resourcemachine/internal/digest"
	"resourcemachine/internal/zkvm"
)

// BatchInstance is the journal of the aggregation program.
type BatchInstance struct {
	ComplianceInstances [][]uint32      `json:"compliance_instances" cbor:"compliance_instances"`
	ComplianceKey       digest.Digest   `json:"compliance_key" cbor:"compliance_key"`
	LogicInstances      [][]byte        `json:"logic_instances" cbor:"logic_instances"`
	LogicKeys           []digest.Digest `json:"logic_keys" cbor:"logic_keys"`
}

// AggregationWitness carries the base proofs alongside the batch they attest to.
type AggregationWitness struct {
	Batch            BatchInstance `cbor:"batch"`
	ComplianceProofs [][]byte      `cbor:"compliance_proofs"`
	LogicProofs      [][]byte      `cbor:"logic_proofs"`
}

// AggregationProgram checks inner receipts with Verifier.
type AggregationProgram struct {
	ProgramID digest.Digest
	Verifier  zkvm.Verifier
}

func (p AggregationProgram) ID() digest.Digest { return p.ProgramID }

func (p AggregationProgram) Execute(witness []byte) ([]byte, error) {
	var w AggregationWitness
	if err := unmarshal(witness, &w); err != nil {
		return nil, err
	}
	b := &w.Batch
	if len(w.ComplianceProofs) != len(b.ComplianceInstances) {
		return nil, errors.Wrap(ErrConstraintViolated, "compliance proof count")
	}
	if len(w.LogicProofs) != len(b.LogicInstances) || len(b.LogicKeys) != len(b.LogicInstances) {
		return nil, errors.Wrap(ErrConstraintViolated, "logic proof count")
	}
	nc := len(b.ComplianceInstances)
	err := forEach(context.Background(), runtime.GOMAXPROCS(0), nc+len(b.LogicInstances), func(ctx context.Context, i int) error {
		if i < nc {
			journal := digest.WordsToBytes(b.ComplianceInstances[i])
			return p.Verifier.Verify(ctx, b.ComplianceKey, journal, w.ComplianceProofs[i])
		}
		i -= nc
		return p.Verifier.Verify(ctx, b.LogicKeys[i], b.LogicInstances[i], w.LogicProofs[i])
	})
	if err != nil {
		return nil, errors.Wrap(err, "inner receipt")
	}
	return marshal(b)
}

func (tx *Transaction) IsAggregated() bool { return len(tx.AggregationProof) > 0 }

func (tx *Transaction) hasAllProofs() bool {
	for i := range tx.Actions {
		if !tx.Actions[i].hasAllProofs() {
			return false
		}
	}
	return true
}

func (tx *Transaction) batch(params *Params) (*AggregationWitness, error) {
	w := &AggregationWitness{Batch: BatchInstance{ComplianceKey: params.Keys.Compliance}}
	for i := range tx.Actions {
		a := &tx.Actions[i]
		for j := range a.ComplianceUnits {
			u := &a.ComplianceUnits[j]
			w.Batch.ComplianceInstances = append(w.Batch.ComplianceInstances, u.Instance.Words())
			w.ComplianceProofs = append(w.ComplianceProofs, u.Proof)
		}
		vs, err := a.LogicVerifiers()
		if err != nil {
			return nil, errors.Wrapf(err, "action %d", i)
		}
		for _, v := range vs {
			w.Batch.LogicInstances = append(w.Batch.LogicInstances, v.Instance)
			w.Batch.LogicKeys = append(w.Batch.LogicKeys, v.VerifyingKey)
			w.LogicProofs = append(w.LogicProofs, v.Proof)
		}
	}
	return w, nil
}

// Aggregate proves all base proofs at once and erases them.
func (tx *Transaction) Aggregate(ctx context.Context, params *Params) error {
	if !tx.hasAllProofs() {
		return errors.Wrap(ErrProveFailed, "cannot aggregate: missing individual proof(s)")
	}
	w, err := tx.batch(params)
	if err != nil {
		return err
	}
	wb, err := marshal(w)
	if err != nil {
		return err
	}
	receipt, err := params.Engine.Prove(ctx, params.Keys.Aggregation, wb)
	if err != nil {
		return errors.Wrap(err, "aggregation")
	}
	tx.AggregationProof = receipt.Seal
	for i := range tx.Actions {
		tx.Actions[i].eraseProofs()
	}
	params.Logger.Debug().
		Int("compliance", len(w.ComplianceProofs)).
		Int("logic", len(w.LogicProofs)).
		Msg("transaction aggregated")
	return nil
}

// VerifyAggregation checks the aggregation proof against the batch rebuilt from
// the transaction's instances.
func (tx *Transaction) VerifyAggregation(ctx context.Context, params *Params) error {
	if !tx.IsAggregated() {
		return errors.Wrap(ErrProofVerificationFailed, "missing aggregation proof")
	}
	w, err := tx.batch(params)
	if err != nil {
		return err
	}
	journal, err := marshal(&w.Batch)
	if err != nil {
		return err
	}
	if err := params.Engine.Verify(ctx, params.Keys.Aggregation, journal, tx.AggregationProof); err != nil {
		return errors.Wrap(err, "aggregation")
	}
	return nil
}
