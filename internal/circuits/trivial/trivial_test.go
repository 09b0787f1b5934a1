package trivial

import (
	"context"
	"testing"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/test"
	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resourcemachine/internal/arm"
	"resourcemachine/internal/digest"
	"resourcemachine/internal/zkvm"
)

func paddingWitness(t *testing.T, keys arm.Keys, isConsumed bool) []byte {
	t.Helper()
	nfKey, _, err := arm.RandomNullifierKeyPair()
	require.NoError(t, err)
	consumed, created, err := arm.PaddingPair(keys, nfKey)
	require.NoError(t, err)
	r := created
	if isConsumed {
		r = consumed
	}
	tree := arm.NewMerkleTree([]digest.Digest{digest.Hash([]byte("tag"))})
	tag, err := r.Tag(isConsumed, nfKey)
	require.NoError(t, err)
	tree.Insert(tag)
	path, err := tree.GeneratePath(tag)
	require.NoError(t, err)

	b, err := cbor.Marshal(arm.NewTrivialLogicWitness(r, path, nfKey, isConsumed))
	require.NoError(t, err)
	return b
}

func TestCircuitSolves(t *testing.T) {
	if testing.Short() {
		t.Skip("sha256 circuit")
	}
	p := NewProgram(arm.DefaultKeys())
	for _, consumed := range []bool{true, false} {
		assignment, _, err := p.Assign(paddingWitness(t, arm.DefaultKeys(), consumed))
		require.NoError(t, err)
		err = test.IsSolved(&Circuit{}, assignment, ecc.BN254.ScalarField())
		assert.NoError(t, err)
	}
}

func TestCircuitRejectsWrongTag(t *testing.T) {
	if testing.Short() {
		t.Skip("sha256 circuit")
	}
	p := NewProgram(arm.DefaultKeys())
	assignment, _, err := p.Assign(paddingWitness(t, arm.DefaultKeys(), true))
	require.NoError(t, err)
	c := assignment.(*Circuit)
	c.Tag[0] = 0
	c.Tag[1] = 0
	err = test.IsSolved(&Circuit{}, c, ecc.BN254.ScalarField())
	assert.Error(t, err)
}

func TestAssignRejectsPersistentResource(t *testing.T) {
	keys := arm.DefaultKeys()
	nfKey, nkc, err := arm.RandomNullifierKeyPair()
	require.NoError(t, err)
	r, err := arm.NewResource(keys.PaddingLogic, digest.Zero, 1, digest.Zero, false, nkc)
	require.NoError(t, err)
	b, err := cbor.Marshal(arm.NewTrivialLogicWitness(r, nil, nfKey, false))
	require.NoError(t, err)

	_, _, err = NewProgram(keys).Assign(b)
	assert.True(t, errors.Is(err, arm.ErrConstraintViolated))
}

func TestPublicAssignmentRejectsAppData(t *testing.T) {
	li := arm.LogicInstance{Tag: digest.Hash([]byte("t"))}
	li.AppData.AddExternalPayload(arm.ExpirableBlob{Blob: []byte{1}})
	journal, err := li.Encode()
	require.NoError(t, err)
	_, err = NewProgram(arm.DefaultKeys()).PublicAssignment(journal)
	assert.Error(t, err)

	_, err = NewProgram(arm.DefaultKeys()).PublicAssignment([]byte{0xff})
	assert.True(t, errors.Is(err, arm.ErrJournalDecoding))
}

func TestGroth16PaddingLogic(t *testing.T) {
	if testing.Short() {
		t.Skip("groth16 setup of the sha256 circuit")
	}
	ctx := context.Background()
	keys := arm.DefaultKeys()
	engine, err := zkvm.NewGroth16Engine(t.TempDir(), 2, zerolog.Nop())
	require.NoError(t, err)
	engine.Register(NewProgram(keys))

	r, err := engine.Prove(ctx, keys.PaddingLogic, paddingWitness(t, keys, true))
	require.NoError(t, err)
	require.NoError(t, engine.Verify(ctx, keys.PaddingLogic, r.Journal, r.Seal))

	li, err := arm.DecodeLogicInstance(r.Journal)
	require.NoError(t, err)
	li.IsConsumed = false
	forged, err := li.Encode()
	require.NoError(t, err)
	err = engine.Verify(ctx, keys.PaddingLogic, forged, r.Seal)
	assert.True(t, errors.Is(err, zkvm.ErrProofVerificationFailed))
}
