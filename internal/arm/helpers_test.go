package arm

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"resourcemachine/internal/digest"
)

var testLogicID = digest.Hash([]byte("test/accept-logic"))

// acceptLogicWitness is a logic that accepts every resource and optionally
// publishes a memo.
type acceptLogicWitness struct {
	Resource   Resource     `cbor:"resource"`
	Path       MerklePath   `cbor:"path,omitempty"`
	IsConsumed bool         `cbor:"is_consumed"`
	NfKey      NullifierKey `cbor:"nf_key"`
	Memo       []byte       `cbor:"memo,omitempty"`
}

func (w acceptLogicWitness) Constrain() (*LogicInstance, error) {
	tag, err := w.Resource.Tag(w.IsConsumed, w.NfKey)
	if err != nil {
		return nil, err
	}
	li := &LogicInstance{Tag: tag, IsConsumed: w.IsConsumed, Root: w.Path.Root(tag)}
	if len(w.Memo) > 0 {
		li.AppData.AddApplicationPayload(ExpirableBlob{Blob: w.Memo, DeletionCriterion: DeleteNever})
	}
	return li, nil
}

func newTestParams(t *testing.T) *Params {
	t.Helper()
	params, engine := NewDevParams(zerolog.Nop())
	engine.Register(LogicProgram[acceptLogicWitness]{ProgramID: testLogicID})
	return params
}

type transferFixture struct {
	nfKey    NullifierKey
	tree     *CommitmentTree
	consumed *Resource
	created  *Resource
	witness  *ComplianceWitness
}

// newTransferFixture places a persistent resource of quantity in a commitment tree
// and creates a resource of the same kind with the same quantity.
func newTransferFixture(t *testing.T, params *Params, quantity uint64) *transferFixture {
	t.Helper()
	nfKey, nkc, err := RandomNullifierKeyPair()
	require.NoError(t, err)
	_, receiver, err := RandomNullifierKeyPair()
	require.NoError(t, err)

	label := digest.Hash([]byte("test-token"))
	consumed, err := NewResource(testLogicID, label, quantity, digest.Hash([]byte("alice")), false, nkc)
	require.NoError(t, err)
	created, err := NewResource(testLogicID, label, quantity, digest.Hash([]byte("bob")), false, receiver)
	require.NoError(t, err)
	nf, err := consumed.Nullifier(nfKey)
	require.NoError(t, err)
	created.SetNonceFromNullifier(nf)

	tree, err := NewCommitmentTree(params.CommitmentTreeDepth)
	require.NoError(t, err)
	_, err = tree.Append(digest.Hash([]byte("someone else")))
	require.NoError(t, err)
	idx, err := tree.Append(consumed.Commitment())
	require.NoError(t, err)
	path, err := tree.Path(idx)
	require.NoError(t, err)

	w, err := NewComplianceWitness(consumed, nfKey, path, created)
	require.NoError(t, err)
	return &transferFixture{nfKey: nfKey, tree: tree, consumed: consumed, created: created, witness: w}
}

// paddingWitness returns an ephemeral compliance witness over a padding pair.
func paddingWitness(t *testing.T, params *Params) *ComplianceWitness {
	t.Helper()
	nfKey, _, err := RandomNullifierKeyPair()
	require.NoError(t, err)
	consumed, created, err := PaddingPair(params.Keys, nfKey)
	require.NoError(t, err)
	w, err := NewEphemeralComplianceWitness(consumed, InitialRoot, nfKey, created)
	require.NoError(t, err)
	return w
}

func logicWitness(params *Params, r *Resource, path MerklePath, nfKey NullifierKey, isConsumed bool) LogicWitness {
	if r.LogicRef == params.Keys.PaddingLogic {
		return NewTrivialLogicWitness(r, path, nfKey, isConsumed)
	}
	return acceptLogicWitness{Resource: *r, Path: path, IsConsumed: isConsumed, NfKey: nfKey}
}

// proveAction proves every compliance witness and the logic of every tag.
func proveAction(t *testing.T, params *Params, ws ...*ComplianceWitness) *Action {
	t.Helper()
	ctx := context.Background()
	tree, err := ActionTreeFromWitnesses(ws...)
	require.NoError(t, err)

	units := make([]ComplianceUnit, 0, len(ws))
	var verifiers []*LogicVerifier
	for _, w := range ws {
		u, err := ProveCompliance(ctx, params, w)
		require.NoError(t, err)
		units = append(units, *u)

		for _, side := range []struct {
			r          *Resource
			tag        digest.Digest
			isConsumed bool
		}{
			{&w.ConsumedResource, u.Instance.ConsumedNullifier, true},
			{&w.CreatedResource, u.Instance.CreatedCommitment, false},
		} {
			path, err := tree.GeneratePath(side.tag)
			require.NoError(t, err)
			v, err := ProveLogic(ctx, params, side.r.LogicRef, logicWitness(params, side.r, path, w.NfKey, side.isConsumed))
			require.NoError(t, err)
			verifiers = append(verifiers, v)
		}
	}
	a, err := NewAction(units, verifiers)
	require.NoError(t, err)
	return a
}

// proveTransaction builds a witness-state transaction with one action per group.
func proveTransaction(t *testing.T, params *Params, groups ...[]*ComplianceWitness) *Transaction {
	t.Helper()
	var actions []Action
	var all []*ComplianceWitness
	for _, g := range groups {
		actions = append(actions, *proveAction(t, params, g...))
		all = append(all, g...)
	}
	dw, err := DeltaWitnessFromCompliance(all...)
	require.NoError(t, err)
	return NewTransaction(actions, dw)
}
