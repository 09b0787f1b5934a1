package evm

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lukechampine.com/uint128"

	"resourcemachine/internal/arm"
	"resourcemachine/internal/digest"
)

func testWitness(t *testing.T) (*arm.DeltaWitness, *arm.DeltaInstance) {
	t.Helper()
	s, err := arm.RandomScalar()
	require.NoError(t, err)
	w, err := arm.DeltaWitnessFromScalars(s.Bytes())
	require.NoError(t, err)
	return w, arm.DeltaInstanceFromPoint(w.PublicKey())
}

func TestRecoverableDelta(t *testing.T) {
	w, instance := testWitness(t)
	msg := []byte("delta message")

	sig, err := SignDelta(msg, w)
	require.NoError(t, err)
	require.Len(t, sig, RecoverableDeltaProofSize)
	assert.Contains(t, []byte{27, 28}, sig[64])

	again, err := SignDelta(msg, w)
	require.NoError(t, err)
	assert.Equal(t, sig, again)

	require.NoError(t, VerifyRecoverableDelta(msg, sig, instance))
	require.NoError(t, VerifyDeltaProofBytes(msg, sig, instance))

	err = VerifyRecoverableDelta([]byte("other message"), sig, instance)
	assert.True(t, errors.Is(err, arm.ErrDeltaProofVerificationFailed))

	_, other := testWitness(t)
	err = VerifyRecoverableDelta(msg, sig, other)
	assert.True(t, errors.Is(err, arm.ErrDeltaProofVerificationFailed))

	bad := append([]byte(nil), sig...)
	bad[64] = 29
	err = VerifyRecoverableDelta(msg, bad, instance)
	assert.True(t, errors.Is(err, arm.ErrInvalidSignature))

	err = VerifyDeltaProofBytes(msg, sig[:64], instance)
	assert.True(t, errors.Is(err, arm.ErrInvalidSignature))

	_, err = SignDelta(msg, nil)
	assert.True(t, errors.Is(err, arm.ErrInvalidSigningKey))
}

func TestVerifyDeltaProofBytesSchnorr(t *testing.T) {
	w, instance := testWitness(t)
	msg := []byte("delta message")
	p, err := arm.ProveDelta(msg, w)
	require.NoError(t, err)

	require.NoError(t, VerifyDeltaProofBytes(msg, p.Bytes(), instance))
	err = VerifyDeltaProofBytes([]byte("tampered"), p.Bytes(), instance)
	assert.True(t, errors.Is(err, arm.ErrDeltaProofVerificationFailed))
}

func TestKeccak256(t *testing.T) {
	assert.Equal(t,
		digest.MustFromHex("c5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470").Bytes(),
		Keccak256(nil))
}

// paddingTransaction builds a one-unit transaction over a padding pair, still in
// the witness state.
func paddingTransaction(t *testing.T) (*arm.Params, *arm.Transaction) {
	t.Helper()
	ctx := context.Background()
	params, _ := arm.NewDevParams(zerolog.Nop())
	nfKey, _, err := arm.RandomNullifierKeyPair()
	require.NoError(t, err)
	consumed, created, err := arm.PaddingPair(params.Keys, nfKey)
	require.NoError(t, err)
	cw, err := arm.NewEphemeralComplianceWitness(consumed, arm.InitialRoot, nfKey, created)
	require.NoError(t, err)

	unit, err := arm.ProveCompliance(ctx, params, cw)
	require.NoError(t, err)
	tree, err := arm.ActionTreeFromWitnesses(cw)
	require.NoError(t, err)
	var verifiers []*arm.LogicVerifier
	for _, side := range []struct {
		r   *arm.Resource
		tag digest.Digest
		in  bool
	}{
		{consumed, unit.Instance.ConsumedNullifier, true},
		{created, unit.Instance.CreatedCommitment, false},
	} {
		path, err := tree.GeneratePath(side.tag)
		require.NoError(t, err)
		v, err := arm.ProvePaddingLogic(ctx, params, arm.NewTrivialLogicWitness(side.r, path, nfKey, side.in))
		require.NoError(t, err)
		verifiers = append(verifiers, v)
	}
	action, err := arm.NewAction([]arm.ComplianceUnit{*unit}, verifiers)
	require.NoError(t, err)
	dw, err := arm.DeltaWitnessFromCompliance(cw)
	require.NoError(t, err)
	return params, arm.NewTransaction([]arm.Action{*action}, dw)
}

func TestFromTransaction(t *testing.T) {
	params, tx := paddingTransaction(t)

	_, err := FromTransaction(tx)
	assert.True(t, errors.Is(err, arm.ErrExpectedDeltaProof))

	recoverable, err := FromWitnessTransaction(tx)
	require.NoError(t, err)
	require.Len(t, recoverable.DeltaProof, RecoverableDeltaProofSize)
	require.NoError(t, recoverable.VerifyDelta(tx))

	require.NoError(t, tx.GenerateDeltaProof())
	require.NoError(t, tx.Verify(context.Background(), params))
	converted, err := FromTransaction(tx)
	require.NoError(t, err)
	require.Len(t, converted.DeltaProof, arm.DeltaProofSize)
	require.NoError(t, converted.VerifyDelta(tx))

	_, err = FromWitnessTransaction(tx)
	assert.True(t, errors.Is(err, arm.ErrMissingField))

	require.Len(t, converted.Actions, 1)
	a := converted.Actions[0]
	require.Len(t, a.ComplianceUnits, 1)
	require.Len(t, a.LogicProofs, 2)
	ci := tx.Actions[0].ComplianceUnits[0].Instance
	assert.Equal(t, Word(ci.ConsumedNullifier), a.ComplianceUnits[0].Instance.Consumed.Nullifier)
	assert.Equal(t, Word(ci.DeltaY), a.ComplianceUnits[0].Instance.UnitDelta[1])

	root, err := tx.Actions[0].ActionTree().Root()
	require.NoError(t, err)
	for _, lp := range a.LogicProofs {
		assert.Equal(t, Word(root), lp.Instance.Root)
		assert.Equal(t, Word(params.Keys.PaddingLogic), lp.LogicRef)
	}
	assert.True(t, a.LogicProofs[0].Instance.IsConsumed)
	assert.False(t, a.LogicProofs[1].Instance.IsConsumed)
}

func TestFromResource(t *testing.T) {
	r := &arm.Resource{
		LogicRef: digest.Hash([]byte("logic")),
		Quantity: uint128.From64(0x0102),
	}
	r.Nonce[0] = 0x42
	r.RandSeed[31] = 0x07

	got := FromResource(r)
	assert.Equal(t, Word(r.LogicRef), got.LogicRef)
	assert.Equal(t, byte(0x01), got.Quantity[30])
	assert.Equal(t, byte(0x02), got.Quantity[31])
	assert.Equal(t, byte(0x42), got.Nonce[31])
	assert.Equal(t, byte(0x07), got.RandSeed[0])
}

func TestWordJSON(t *testing.T) {
	w := Word{0xab}
	b, err := json.Marshal(w)
	require.NoError(t, err)
	assert.Equal(t, `"0xab00000000000000000000000000000000000000000000000000000000000000"`, string(b))

	var back Word
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, w, back)
	assert.Error(t, json.Unmarshal([]byte(`"0xab"`), &back))
}
