package transfer

import (
	"context"

	"github.com/pkg/errors"
	"lukechampine.com/uint128"

	"resourcemachine/internal/arm"
	"resourcemachine/internal/digest"
)

// Token identifies an external token held through a forwarder contract.
type Token struct {
	Forwarder Address20 `json:"forwarder" yaml:"forwarder"`
	Address   Address20 `json:"address" yaml:"address"`
}

func (t Token) Label() digest.Digest { return LabelRef(t.Forwarder, t.Address) }

// Builder assembles balanced, fully proven token transactions.
type Builder struct {
	params *arm.Params
	token  Token
}

func NewBuilder(params *arm.Params, token Token) *Builder {
	return &Builder{params: params, token: token}
}

// Result is a proven transaction and the persistent resources it creates.
type Result struct {
	Tx      *arm.Transaction
	Created []*arm.Resource
}

type logicWitness struct {
	vk digest.Digest
	w  arm.LogicWitness
}

func (b *Builder) persistent(quantity uint128.Uint128, to Address) (*arm.Resource, error) {
	r, err := arm.NewResource(LogicID, b.token.Label(), 0, to.AuthKey.ValueRef(), false, to.NkCommitment)
	if err != nil {
		return nil, err
	}
	r.Quantity = quantity
	return r, nil
}

func (b *Builder) ephemeral(quantity uint128.Uint128, user Address20) (*arm.Resource, arm.NullifierKey, error) {
	nfKey, nkc, err := arm.RandomNullifierKeyPair()
	if err != nil {
		return nil, nfKey, err
	}
	r, err := arm.NewResource(LogicID, b.token.Label(), 0, UserValueRef(user), true, nkc)
	if err != nil {
		return nil, nfKey, err
	}
	r.Quantity = quantity
	return r, nfKey, nil
}

func (b *Builder) forwarder(call CallType, user Address20) *ForwarderInfo {
	return &ForwarderInfo{CallType: call, Forwarder: b.token.Forwarder, Token: b.token.Address, User: user}
}

// Mint wraps quantity tokens of user into a persistent resource owned by to.
// latestRoot is a commitment tree root the ledger knows.
func (b *Builder) Mint(ctx context.Context, user Address20, to Address, quantity uint64, latestRoot digest.Digest) (*Result, error) {
	q := uint128.From64(quantity)
	consumed, nfKey, err := b.ephemeral(q, user)
	if err != nil {
		return nil, err
	}
	created, err := b.persistent(q, to)
	if err != nil {
		return nil, err
	}
	nf, err := consumed.Nullifier(nfKey)
	if err != nil {
		return nil, err
	}
	created.SetNonceFromNullifier(nf)

	cw, err := arm.NewEphemeralComplianceWitness(consumed, latestRoot, nfKey, created)
	if err != nil {
		return nil, err
	}
	root, err := actionRoot(cw)
	if err != nil {
		return nil, err
	}
	enc, err := NewEncryptionInfo(to)
	if err != nil {
		return nil, err
	}
	tx, err := b.prove(ctx, []*arm.ComplianceWitness{cw}, []logicWitness{
		{LogicID, Witness{Resource: *consumed, IsConsumed: true, ActionTreeRoot: root, NfKey: &nfKey, Forwarder: b.forwarder(CallWrap, user)}},
		{LogicID, Witness{Resource: *created, ActionTreeRoot: root, Encryption: enc}},
	})
	if err != nil {
		return nil, errors.Wrap(err, "mint")
	}
	return &Result{Tx: tx, Created: []*arm.Resource{created}}, nil
}

// Transfer sends amount of note to to. Any remainder comes back to from as a
// change resource created in a second compliance unit against a padding resource.
// path proves note in the ledger's commitment tree.
func (b *Builder) Transfer(ctx context.Context, from *Account, note *arm.Resource, path arm.MerklePath, to Address, amount uint64) (*Result, error) {
	if !from.Owns(note) {
		return nil, errors.New("transfer: note is not owned by sender")
	}
	if note.Quantity.Cmp64(amount) < 0 {
		return nil, errors.Errorf("transfer: amount %d exceeds note quantity %s", amount, note.Quantity)
	}
	nf, err := note.Nullifier(from.NfKey)
	if err != nil {
		return nil, err
	}
	sent, err := b.persistent(uint128.From64(amount), to)
	if err != nil {
		return nil, err
	}
	sent.SetNonceFromNullifier(nf)
	cw, err := arm.NewComplianceWitness(note, from.NfKey, path, sent)
	if err != nil {
		return nil, err
	}
	cws := []*arm.ComplianceWitness{cw}
	created := []*arm.Resource{sent}
	receivers := []Address{to}

	var padding *arm.Resource
	var paddingKey arm.NullifierKey
	if change := note.Quantity.Sub64(amount); !change.IsZero() {
		paddingKey, _, err = arm.RandomNullifierKeyPair()
		if err != nil {
			return nil, err
		}
		padding, err = arm.NewPaddingResource(b.params.Keys, paddingKey.Commit())
		if err != nil {
			return nil, err
		}
		back, err := b.persistent(change, from.Address())
		if err != nil {
			return nil, err
		}
		pnf, err := padding.Nullifier(paddingKey)
		if err != nil {
			return nil, err
		}
		back.SetNonceFromNullifier(pnf)
		pw, err := arm.NewEphemeralComplianceWitness(padding, arm.InitialRoot, paddingKey, back)
		if err != nil {
			return nil, err
		}
		cws = append(cws, pw)
		created = append(created, back)
		receivers = append(receivers, from.Address())
	}

	tree, err := arm.ActionTreeFromWitnesses(cws...)
	if err != nil {
		return nil, err
	}
	root, err := tree.Root()
	if err != nil {
		return nil, err
	}
	sig, err := from.Auth.Sign(root)
	if err != nil {
		return nil, err
	}
	nfKey := from.NfKey
	logic := []logicWitness{{LogicID, Witness{
		Resource:       *note,
		IsConsumed:     true,
		ActionTreeRoot: root,
		NfKey:          &nfKey,
		Auth:           &AuthorizationInfo{VerifyingKey: from.Auth.VerifyingKey(), Signature: sig},
	}}}
	for i, r := range created {
		enc, err := NewEncryptionInfo(receivers[i])
		if err != nil {
			return nil, err
		}
		logic = append(logic, logicWitness{LogicID, Witness{Resource: *r, ActionTreeRoot: root, Encryption: enc}})
	}
	if padding != nil {
		pnf, err := padding.Nullifier(paddingKey)
		if err != nil {
			return nil, err
		}
		ppath, err := tree.GeneratePath(pnf)
		if err != nil {
			return nil, err
		}
		logic = append(logic, logicWitness{b.params.Keys.PaddingLogic, arm.NewTrivialLogicWitness(padding, ppath, paddingKey, true)})
	}

	tx, err := b.prove(ctx, cws, logic)
	if err != nil {
		return nil, errors.Wrap(err, "transfer")
	}
	return &Result{Tx: tx, Created: created}, nil
}

// Burn unwraps the whole of note to the external user.
func (b *Builder) Burn(ctx context.Context, from *Account, note *arm.Resource, path arm.MerklePath, user Address20) (*Result, error) {
	if !from.Owns(note) {
		return nil, errors.New("burn: note is not owned by sender")
	}
	nf, err := note.Nullifier(from.NfKey)
	if err != nil {
		return nil, err
	}
	out, _, err := b.ephemeral(note.Quantity, user)
	if err != nil {
		return nil, err
	}
	out.SetNonceFromNullifier(nf)
	cw, err := arm.NewComplianceWitness(note, from.NfKey, path, out)
	if err != nil {
		return nil, err
	}
	root, err := actionRoot(cw)
	if err != nil {
		return nil, err
	}
	sig, err := from.Auth.Sign(root)
	if err != nil {
		return nil, err
	}
	nfKey := from.NfKey
	tx, err := b.prove(ctx, []*arm.ComplianceWitness{cw}, []logicWitness{
		{LogicID, Witness{
			Resource:       *note,
			IsConsumed:     true,
			ActionTreeRoot: root,
			NfKey:          &nfKey,
			Auth:           &AuthorizationInfo{VerifyingKey: from.Auth.VerifyingKey(), Signature: sig},
		}},
		{LogicID, Witness{Resource: *out, ActionTreeRoot: root, Forwarder: b.forwarder(CallUnwrap, user)}},
	})
	if err != nil {
		return nil, errors.Wrap(err, "burn")
	}
	return &Result{Tx: tx}, nil
}

func actionRoot(cws ...*arm.ComplianceWitness) (digest.Digest, error) {
	tree, err := arm.ActionTreeFromWitnesses(cws...)
	if err != nil {
		return digest.Zero, err
	}
	return tree.Root()
}

// prove proves every compliance unit and logic, then seals the transaction with
// its delta proof.
func (b *Builder) prove(ctx context.Context, cws []*arm.ComplianceWitness, logic []logicWitness) (*arm.Transaction, error) {
	units := make([]arm.ComplianceUnit, 0, len(cws))
	for _, cw := range cws {
		u, err := arm.ProveCompliance(ctx, b.params, cw)
		if err != nil {
			return nil, err
		}
		units = append(units, *u)
	}
	verifiers := make([]*arm.LogicVerifier, 0, len(logic))
	for _, l := range logic {
		v, err := arm.ProveLogic(ctx, b.params, l.vk, l.w)
		if err != nil {
			return nil, err
		}
		verifiers = append(verifiers, v)
	}
	action, err := arm.NewAction(units, verifiers)
	if err != nil {
		return nil, err
	}
	dw, err := arm.DeltaWitnessFromCompliance(cws...)
	if err != nil {
		return nil, err
	}
	tx := arm.NewTransaction([]arm.Action{*action}, dw)
	if err := tx.GenerateDeltaProof(); err != nil {
		return nil, err
	}
	b.params.Logger.Info().
		Int("units", len(units)).
		Int("logic_proofs", len(verifiers)).
		Msg("token transaction proven")
	return tx, nil
}
