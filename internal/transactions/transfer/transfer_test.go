package transfer

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lukechampine.com/uint128"

	"resourcemachine/internal/arm"
	"resourcemachine/internal/digest"
)

var testToken = Token{Forwarder: Address20{0xf0}, Address: Address20{0x70}}

func newParams(t *testing.T) *arm.Params {
	t.Helper()
	params, engine := arm.NewDevParams(zerolog.Nop())
	engine.Register(Program())
	return params
}

func newAccount(t *testing.T) *Account {
	t.Helper()
	a, err := NewAccount()
	require.NoError(t, err)
	return a
}

// appendCreated adds the commitments of tx to tree and returns the path of r.
func appendCreated(t *testing.T, tree *arm.CommitmentTree, tx *arm.Transaction, r *arm.Resource) arm.MerklePath {
	t.Helper()
	idx := -1
	for _, cm := range tx.Commitments() {
		i, err := tree.Append(cm)
		require.NoError(t, err)
		if cm == r.Commitment() {
			idx = i
		}
	}
	require.GreaterOrEqual(t, idx, 0)
	path, err := tree.Path(idx)
	require.NoError(t, err)
	return path
}

func TestMintTransferBurn(t *testing.T) {
	ctx := context.Background()
	params := newParams(t)
	b := NewBuilder(params, testToken)
	alice, bob := newAccount(t), newAccount(t)
	tree, err := arm.NewCommitmentTree(params.CommitmentTreeDepth)
	require.NoError(t, err)

	user := Address20{0xaa}
	minted, err := b.Mint(ctx, user, alice.Address(), 100, tree.Root())
	require.NoError(t, err)
	require.NoError(t, minted.Tx.Verify(ctx, params))

	found, err := alice.Scan(minted.Tx)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, minted.Created[0].Commitment(), found[0].Commitment())
	assert.True(t, alice.Owns(found[0]))

	others, err := bob.Scan(minted.Tx)
	require.NoError(t, err)
	assert.Empty(t, others)

	lis, err := minted.Tx.LogicInstances()
	require.NoError(t, err)
	var call *ForwarderCall
	for _, li := range lis {
		if len(li.AppData.ExternalPayload) > 0 {
			call, err = DecodeForwarderCall(li.AppData.ExternalPayload[0].Blob)
			require.NoError(t, err)
		}
	}
	require.NotNil(t, call)
	assert.Equal(t, CallWrap, call.CallType)
	assert.Equal(t, user, call.User)

	note := found[0]
	path := appendCreated(t, tree, minted.Tx, note)
	sent, err := b.Transfer(ctx, alice, note, path, bob.Address(), 30)
	require.NoError(t, err)
	require.NoError(t, sent.Tx.Verify(ctx, params))
	require.Len(t, sent.Created, 2)
	assert.Equal(t, uint128.From64(30), sent.Created[0].Quantity)
	assert.Equal(t, uint128.From64(70), sent.Created[1].Quantity)

	bobs, err := bob.Scan(sent.Tx)
	require.NoError(t, err)
	require.Len(t, bobs, 1)
	change, err := alice.Scan(sent.Tx)
	require.NoError(t, err)
	require.Len(t, change, 1)

	bobPath := appendCreated(t, tree, sent.Tx, bobs[0])
	burned, err := b.Burn(ctx, bob, bobs[0], bobPath, Address20{0xbb})
	require.NoError(t, err)
	require.NoError(t, burned.Tx.Verify(ctx, params))
	assert.Empty(t, burned.Created)
}

func TestTransferWholeNote(t *testing.T) {
	ctx := context.Background()
	params := newParams(t)
	b := NewBuilder(params, testToken)
	alice, bob := newAccount(t), newAccount(t)
	tree, err := arm.NewCommitmentTree(params.CommitmentTreeDepth)
	require.NoError(t, err)

	minted, err := b.Mint(ctx, Address20{1}, alice.Address(), 5, tree.Root())
	require.NoError(t, err)
	path := appendCreated(t, tree, minted.Tx, minted.Created[0])

	sent, err := b.Transfer(ctx, alice, minted.Created[0], path, bob.Address(), 5)
	require.NoError(t, err)
	assert.Len(t, sent.Created, 1)
	assert.Equal(t, 2, sent.Tx.NumberOfResources())
	require.NoError(t, sent.Tx.Verify(ctx, params))

	_, err = b.Transfer(ctx, alice, minted.Created[0], path, bob.Address(), 6)
	assert.Error(t, err)
	_, err = b.Transfer(ctx, bob, minted.Created[0], path, alice.Address(), 1)
	assert.Error(t, err)
}

func TestConsumeRequiresAuthorization(t *testing.T) {
	alice, mallory := newAccount(t), newAccount(t)
	addr := alice.Address()
	r, err := arm.NewResource(LogicID, testToken.Label(), 3, addr.AuthKey.ValueRef(), false, addr.NkCommitment)
	require.NoError(t, err)
	root := digest.Hash([]byte("action tree"))
	nfKey := alice.NfKey

	sig, err := alice.Auth.Sign(root)
	require.NoError(t, err)
	w := Witness{
		Resource:       *r,
		IsConsumed:     true,
		ActionTreeRoot: root,
		NfKey:          &nfKey,
		Auth:           &AuthorizationInfo{VerifyingKey: addr.AuthKey, Signature: sig},
	}
	li, err := w.Constrain()
	require.NoError(t, err)
	assert.True(t, li.AppData.IsEmpty())

	other := w
	other.ActionTreeRoot = digest.Hash([]byte("other tree"))
	_, err = other.Constrain()
	assert.True(t, errors.Is(err, arm.ErrConstraintViolated))

	forged, err := mallory.Auth.Sign(root)
	require.NoError(t, err)
	stolen := w
	stolen.Auth = &AuthorizationInfo{VerifyingKey: mallory.Auth.VerifyingKey(), Signature: forged}
	_, err = stolen.Constrain()
	assert.True(t, errors.Is(err, arm.ErrConstraintViolated))

	noAuth := w
	noAuth.Auth = nil
	_, err = noAuth.Constrain()
	assert.True(t, errors.Is(err, arm.ErrMissingField))

	noKey := w
	noKey.NfKey = nil
	_, err = noKey.Constrain()
	assert.True(t, errors.Is(err, arm.ErrMissingField))
}

func TestForwarderConstraints(t *testing.T) {
	user := Address20{0xcc}
	_, nkc, err := arm.RandomNullifierKeyPair()
	require.NoError(t, err)
	r, err := arm.NewResource(LogicID, testToken.Label(), 9, UserValueRef(user), true, nkc)
	require.NoError(t, err)
	info := &ForwarderInfo{CallType: CallUnwrap, Forwarder: testToken.Forwarder, Token: testToken.Address, User: user}

	li, err := Witness{Resource: *r, Forwarder: info}.Constrain()
	require.NoError(t, err)
	require.Len(t, li.AppData.ExternalPayload, 1)
	assert.Equal(t, arm.DeleteImmediately, li.AppData.ExternalPayload[0].DeletionCriterion)
	call, err := DecodeForwarderCall(li.AppData.ExternalPayload[0].Blob)
	require.NoError(t, err)
	assert.Equal(t, CallUnwrap, call.CallType)
	assert.True(t, call.Root.IsZero())

	wrap := *info
	wrap.CallType = CallWrap
	_, err = Witness{Resource: *r, Forwarder: &wrap}.Constrain()
	assert.True(t, errors.Is(err, arm.ErrConstraintViolated), "wrap of a created resource")

	wrongUser := *info
	wrongUser.User = Address20{0xdd}
	_, err = Witness{Resource: *r, Forwarder: &wrongUser}.Constrain()
	assert.True(t, errors.Is(err, arm.ErrConstraintViolated))

	wrongToken := *info
	wrongToken.Token = Address20{0x01}
	_, err = Witness{Resource: *r, Forwarder: &wrongToken}.Constrain()
	assert.True(t, errors.Is(err, arm.ErrConstraintViolated))

	_, err = Witness{Resource: *r}.Constrain()
	assert.True(t, errors.Is(err, arm.ErrMissingField))
}

func TestCreatedResourceIsEncrypted(t *testing.T) {
	bob := newAccount(t)
	addr := bob.Address()
	r, err := arm.NewResource(LogicID, testToken.Label(), 4, addr.AuthKey.ValueRef(), false, addr.NkCommitment)
	require.NoError(t, err)
	enc, err := NewEncryptionInfo(addr)
	require.NoError(t, err)

	w := Witness{Resource: *r, Encryption: enc}
	li, err := w.Constrain()
	require.NoError(t, err)
	again, err := w.Constrain()
	require.NoError(t, err)
	assert.Equal(t, li, again)

	require.Len(t, li.AppData.ResourcePayload, 1)
	assert.Equal(t, arm.DeleteNever, li.AppData.ResourcePayload[0].DeletionCriterion)
	opened, err := bob.OpenResource(li.AppData.ResourcePayload[0].Blob)
	require.NoError(t, err)
	assert.Equal(t, r.Commitment(), opened.Commitment())
	assert.True(t, bob.Discover(li.AppData.DiscoveryPayload[0].Blob))

	bad := *enc
	bad.Nonce = []byte{1, 2, 3}
	_, err = Witness{Resource: *r, Encryption: &bad}.Constrain()
	assert.Error(t, err)

	_, err = Witness{Resource: *r}.Constrain()
	assert.True(t, errors.Is(err, arm.ErrMissingField))
}

func TestAuthorizationKeyRoundTrip(t *testing.T) {
	k, err := NewAuthorizationKey()
	require.NoError(t, err)
	loaded, err := AuthorizationKeyFromBytes(k.Bytes())
	require.NoError(t, err)
	assert.Equal(t, k.VerifyingKey(), loaded.VerifyingKey())

	root := digest.Hash([]byte("root"))
	sig, err := loaded.Sign(root)
	require.NoError(t, err)
	assert.NoError(t, k.VerifyingKey().Verify(root, sig))
	assert.Error(t, k.VerifyingKey().Verify(root, sig[:len(sig)-1]))

	_, err = AuthorizationKeyFromBytes([]byte{1})
	assert.Error(t, err)
}
