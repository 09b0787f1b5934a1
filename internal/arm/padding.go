package arm

import (
	"context"
	"crypto/rand"

	"github.com/pkg/errors"
	"lukechampine.com/uint128"
)

// TrivialLogicWitness is the witness of the padding logic, which accepts any
// ephemeral resource of zero quantity and publishes no app data.
type TrivialLogicWitness struct {
	Resource       Resource     `json:"resource" cbor:"resource"`
	ActionTreePath MerklePath   `json:"action_tree_path" cbor:"action_tree_path,omitempty"`
	IsConsumed     bool         `json:"is_consumed" cbor:"is_consumed"`
	NfKey          NullifierKey `json:"nf_key" cbor:"nf_key"`
}

func NewTrivialLogicWitness(resource *Resource, path MerklePath, nfKey NullifierKey, isConsumed bool) TrivialLogicWitness {
	return TrivialLogicWitness{
		Resource:       *resource,
		ActionTreePath: path,
		IsConsumed:     isConsumed,
		NfKey:          nfKey,
	}
}

func (w TrivialLogicWitness) Constrain() (*LogicInstance, error) {
	if !w.Resource.Quantity.IsZero() {
		return nil, errors.Wrap(ErrConstraintViolated, "padding resource must have zero quantity")
	}
	if !w.Resource.IsEphemeral {
		return nil, errors.Wrap(ErrConstraintViolated, "padding resource must be ephemeral")
	}
	tag, err := w.Resource.Tag(w.IsConsumed, w.NfKey)
	if err != nil {
		return nil, err
	}
	return &LogicInstance{
		Tag:        tag,
		IsConsumed: w.IsConsumed,
		Root:       w.ActionTreePath.Root(tag),
	}, nil
}

// NewPaddingResource returns an ephemeral zero-quantity resource governed by the
// padding logic, with a random nonce and rand seed.
func NewPaddingResource(keys Keys, nkc NullifierKeyCommitment) (*Resource, error) {
	r := &Resource{
		LogicRef:     keys.PaddingLogic,
		Quantity:     uint128.Zero,
		IsEphemeral:  true,
		NkCommitment: nkc,
	}
	if _, err := rand.Read(r.Nonce[:]); err != nil {
		return nil, errors.Wrap(err, "padding nonce")
	}
	if err := r.ResetRandSeed(); err != nil {
		return nil, err
	}
	return r, nil
}

// ProvePaddingLogic proves w with the padding logic program.
func ProvePaddingLogic(ctx context.Context, params *Params, w TrivialLogicWitness) (*LogicVerifier, error) {
	return ProveLogic(ctx, params, params.Keys.PaddingLogic, w)
}

// PaddingPair returns a consumed padding resource and the created padding resource
// whose nonce is its nullifier.
func PaddingPair(keys Keys, nfKey NullifierKey) (consumed, created *Resource, err error) {
	nkc := nfKey.Commit()
	if consumed, err = NewPaddingResource(keys, nkc); err != nil {
		return nil, nil, err
	}
	if created, err = NewPaddingResource(keys, nkc); err != nil {
		return nil, nil, err
	}
	nf, err := consumed.Nullifier(nfKey)
	if err != nil {
		return nil, nil, err
	}
	created.SetNonceFromNullifier(nf)
	return consumed, created, nil
}

var _ LogicWitness = TrivialLogicWitness{}

