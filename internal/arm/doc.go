// Package arm implements the transaction-validity core of a resource machine.
//
// Overview:
//   - Resources are typed, quantified units of state. A created resource is
//     identified by its commitment, a consumed one by its nullifier; both are tags.
//   - A compliance unit proves that one resource is validly consumed and one validly
//     created, and carries a Pedersen-style commitment (the delta) to the change in
//     quantity on secp256k1.
//   - Logic proofs show that each resource's own program accepts the action.
//   - An action bundles compliance units and logic proofs; a transaction bundles
//     actions and one Schnorr delta proof showing the summed deltas open to zero
//     quantity, signed over every nullifier and commitment in the transaction.
//
// Proving is delegated to a zkvm.Engine. Verifying keys are not globals: they are
// carried in Keys inside Params, which every prove and verify call receives.
//
// Usage:
//   - Build resources, derive nullifiers with a NullifierKey, obtain Merkle paths
//     from a CommitmentTree, and prove compliance with ProveCompliance.
//   - Prove one logic witness per tag with ProveLogic, assemble an Action, wrap the
//     actions in a Transaction with the summed DeltaWitness and call
//     GenerateDeltaProof.
//   - Validators call Transaction.Verify.
//
// The commitment tree the compliance units prove membership against is not
// mutated here; see package ledger.
package arm
