// Package transfer is a fungible token application on the resource machine.
//
// Persistent token resources are owned by an authorization key: consuming one
// needs a signature over the action tree root, and creating one publishes the
// resource encrypted to its receiver. Ephemeral token resources bridge to an
// external forwarder contract: a consumed ephemeral resource wraps tokens in, a
// created one unwraps them out, and either publishes the forwarder call as an
// external payload.
package transfer

import (
	"crypto/rand"

	"github.com/btcsuite/btcd/btcec"
	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"

	"resourcemachine/internal/arm"
	"resourcemachine/internal/digest"
	"resourcemachine/internal/encryption"
	"resourcemachine/internal/zkvm"
)

// LogicID is the verifying key of the transfer logic.
var LogicID = digest.Hash([]byte("resourcemachine/transfer-logic/v1"))

// Program returns the native transfer logic program.
func Program() zkvm.Program {
	return arm.LogicProgram[Witness]{ProgramID: LogicID}
}

// CallType selects the forwarder call of an ephemeral resource.
type CallType uint8

const (
	CallWrap   CallType = 1
	CallUnwrap CallType = 2
)

func (c CallType) String() string {
	switch c {
	case CallWrap:
		return "wrap"
	case CallUnwrap:
		return "unwrap"
	default:
		return "unknown"
	}
}

type Address20 = [20]byte

// LabelRef binds a token resource to a forwarder and the token it holds.
func LabelRef(forwarder, token Address20) digest.Digest {
	return digest.Hash(forwarder[:], token[:])
}

// UserValueRef is the value ref of an ephemeral resource: the external user's
// address, zero padded.
func UserValueRef(user Address20) digest.Digest {
	var d digest.Digest
	copy(d[:], user[:])
	return d
}

type AuthorizationInfo struct {
	VerifyingKey AuthorizationVerifyingKey `cbor:"vk"`
	Signature    []byte                    `cbor:"sig"`
}

// EncryptionInfo carries what a created persistent resource needs to publish
// itself to its receiver.
type EncryptionInfo struct {
	EncryptionKey   []byte `cbor:"encryption_key"`
	SenderKey       []byte `cbor:"sender_key"`
	Nonce           []byte `cbor:"nonce"`
	DiscoveryCipher []byte `cbor:"discovery_cipher"`
}

// NewEncryptionInfo draws a one-time sender key and nonce for to, and a discovery
// ciphertext that only to's discovery key opens.
func NewEncryptionInfo(to Address) (*EncryptionInfo, error) {
	discoveryKey, err := btcec.ParsePubKey(to.DiscoveryKey, btcec.S256())
	if err != nil {
		return nil, errors.Wrap(err, "discovery key")
	}
	discovery, err := encryption.EncryptRandom([]byte{0}, discoveryKey)
	if err != nil {
		return nil, err
	}
	sender, _, err := encryption.GenerateKey()
	if err != nil {
		return nil, err
	}
	var nonce [encryption.NonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, errors.Wrap(err, "encryption nonce")
	}
	return &EncryptionInfo{
		EncryptionKey:   to.EncryptionKey,
		SenderKey:       sender.Serialize(),
		Nonce:           nonce[:],
		DiscoveryCipher: discovery,
	}, nil
}

func (e *EncryptionInfo) encrypt(r *arm.Resource) (encryption.Ciphertext, error) {
	receiver, err := btcec.ParsePubKey(e.EncryptionKey, btcec.S256())
	if err != nil {
		return nil, errors.Wrap(encryption.ErrEncryptionFailed, err.Error())
	}
	if len(e.SenderKey) != btcec.PrivKeyBytesLen {
		return nil, errors.Wrap(encryption.ErrEncryptionFailed, "sender key")
	}
	sender, _ := btcec.PrivKeyFromBytes(btcec.S256(), e.SenderKey)
	nonce, err := encryption.NonceFromBytes(e.Nonce)
	if err != nil {
		return nil, err
	}
	return encryption.Encrypt(r.Encode(), receiver, sender, nonce)
}

type ForwarderInfo struct {
	CallType  CallType  `cbor:"call_type"`
	Forwarder Address20 `cbor:"forwarder"`
	Token     Address20 `cbor:"token"`
	User      Address20 `cbor:"user"`
}

// ForwarderCall is the external payload of an ephemeral resource. Wraps carry the
// action tree root so the forwarder can bind the deposit to this action.
type ForwarderCall struct {
	CallType  CallType      `cbor:"call_type"`
	Forwarder Address20     `cbor:"forwarder"`
	Token     Address20     `cbor:"token"`
	User      Address20     `cbor:"user"`
	Quantity  [16]byte      `cbor:"quantity"`
	Root      digest.Digest `cbor:"root,omitempty"`
}

func DecodeForwarderCall(b []byte) (*ForwarderCall, error) {
	var c ForwarderCall
	if err := cbor.Unmarshal(b, &c); err != nil {
		return nil, errors.Wrap(arm.ErrDeserialization, err.Error())
	}
	return &c, nil
}

// Witness is the private input of the transfer logic. Which of the optional parts
// is required depends on whether the resource is ephemeral and consumed.
type Witness struct {
	Resource       arm.Resource       `cbor:"resource"`
	IsConsumed     bool               `cbor:"is_consumed"`
	ActionTreeRoot digest.Digest      `cbor:"action_tree_root"`
	NfKey          *arm.NullifierKey  `cbor:"nf_key,omitempty"`
	Auth           *AuthorizationInfo `cbor:"auth,omitempty"`
	Encryption     *EncryptionInfo    `cbor:"encryption,omitempty"`
	Forwarder      *ForwarderInfo     `cbor:"forwarder,omitempty"`
}

var _ arm.LogicWitness = Witness{}

func violated(format string, args ...interface{}) error {
	return errors.Wrapf(arm.ErrConstraintViolated, format, args...)
}

func missing(field string) error {
	return errors.Wrap(arm.ErrMissingField, field)
}

func (w Witness) Constrain() (*arm.LogicInstance, error) {
	r := &w.Resource
	cm := r.Commitment()
	tag := cm
	if w.IsConsumed {
		if w.NfKey == nil {
			return nil, missing("nullifier key")
		}
		nf, err := r.NullifierFromCommitment(*w.NfKey, cm)
		if err != nil {
			return nil, err
		}
		tag = nf
	}

	li := &arm.LogicInstance{Tag: tag, IsConsumed: w.IsConsumed, Root: w.ActionTreeRoot}
	var err error
	switch {
	case r.IsEphemeral:
		err = w.constrainForwarder(li)
	case w.IsConsumed:
		err = w.constrainAuthorization()
	default:
		err = w.constrainEncryption(li)
	}
	if err != nil {
		return nil, err
	}
	return li, nil
}

func (w Witness) constrainForwarder(li *arm.LogicInstance) error {
	f := w.Forwarder
	if f == nil {
		return missing("forwarder info")
	}
	r := &w.Resource
	if r.LabelRef != LabelRef(f.Forwarder, f.Token) {
		return violated("label ref does not match forwarder and token")
	}
	if r.ValueRef != UserValueRef(f.User) {
		return violated("value ref does not match user")
	}
	call := ForwarderCall{
		CallType:  f.CallType,
		Forwarder: f.Forwarder,
		Token:     f.Token,
		User:      f.User,
	}
	r.Quantity.PutBytesBE(call.Quantity[:])
	switch f.CallType {
	case CallWrap:
		if !w.IsConsumed {
			return violated("wrap must consume the ephemeral resource")
		}
		call.Root = w.ActionTreeRoot
	case CallUnwrap:
		if w.IsConsumed {
			return violated("unwrap must create the ephemeral resource")
		}
	default:
		return violated("call type %d", f.CallType)
	}
	b, err := cbor.Marshal(call)
	if err != nil {
		return errors.Wrap(arm.ErrSerialization, err.Error())
	}
	li.AppData.AddExternalPayload(arm.ExpirableBlob{Blob: b, DeletionCriterion: arm.DeleteImmediately})
	return nil
}

func (w Witness) constrainAuthorization() error {
	a := w.Auth
	if a == nil {
		return missing("authorization info")
	}
	if w.Resource.ValueRef != a.VerifyingKey.ValueRef() {
		return violated("value ref does not match authorization key")
	}
	if err := a.VerifyingKey.Verify(w.ActionTreeRoot, a.Signature); err != nil {
		return violated("%v", err)
	}
	return nil
}

func (w Witness) constrainEncryption(li *arm.LogicInstance) error {
	e := w.Encryption
	if e == nil {
		return missing("encryption info")
	}
	cipher, err := e.encrypt(&w.Resource)
	if err != nil {
		return err
	}
	li.AppData.AddDiscoveryPayload(arm.ExpirableBlob{Blob: e.DiscoveryCipher, DeletionCriterion: arm.DeleteNever})
	li.AppData.AddResourcePayload(arm.ExpirableBlob{Blob: cipher, DeletionCriterion: arm.DeleteNever})
	return nil
}
