package transfer

import (
	"github.com/btcsuite/btcd/btcec"
	"github.com/pkg/errors"

	"resourcemachine/internal/arm"
	"resourcemachine/internal/encryption"
)

// Account holds the secrets of one token holder.
type Account struct {
	NfKey         arm.NullifierKey
	Auth          *AuthorizationKey
	EncryptionKey *btcec.PrivateKey
	DiscoveryKey  *btcec.PrivateKey
}

// Address is the public part of an Account, everything a sender needs.
type Address struct {
	NkCommitment  arm.NullifierKeyCommitment `json:"nk_commitment"`
	AuthKey       AuthorizationVerifyingKey  `json:"auth_key"`
	EncryptionKey []byte                     `json:"encryption_key"`
	DiscoveryKey  []byte                     `json:"discovery_key"`
}

func NewAccount() (*Account, error) {
	nfKey, _, err := arm.RandomNullifierKeyPair()
	if err != nil {
		return nil, err
	}
	auth, err := NewAuthorizationKey()
	if err != nil {
		return nil, err
	}
	enc, _, err := encryption.GenerateKey()
	if err != nil {
		return nil, err
	}
	disc, _, err := encryption.GenerateKey()
	if err != nil {
		return nil, err
	}
	return &Account{NfKey: nfKey, Auth: auth, EncryptionKey: enc, DiscoveryKey: disc}, nil
}

func (a *Account) Address() Address {
	return Address{
		NkCommitment:  a.NfKey.Commit(),
		AuthKey:       a.Auth.VerifyingKey(),
		EncryptionKey: a.EncryptionKey.PubKey().SerializeCompressed(),
		DiscoveryKey:  a.DiscoveryKey.PubKey().SerializeCompressed(),
	}
}

// Owns reports whether r is a persistent resource a can consume.
func (a *Account) Owns(r *arm.Resource) bool {
	return !r.IsEphemeral && r.NkCommitment == a.NfKey.Commit() &&
		r.ValueRef == a.Auth.VerifyingKey().ValueRef()
}

// Discover reports whether a discovery payload was addressed to a.
func (a *Account) Discover(blob []byte) bool {
	_, err := encryption.Ciphertext(blob).Decrypt(a.DiscoveryKey)
	return err == nil
}

// OpenResource decrypts a resource payload addressed to a.
func (a *Account) OpenResource(blob []byte) (*arm.Resource, error) {
	plain, err := encryption.Ciphertext(blob).Decrypt(a.EncryptionKey)
	if err != nil {
		return nil, err
	}
	r, err := arm.DecodeResource(plain)
	if err != nil {
		return nil, errors.Wrap(err, "resource payload")
	}
	return r, nil
}

// Scan returns the resources of tx's created persistent resources addressed to a.
func (a *Account) Scan(tx *arm.Transaction) ([]*arm.Resource, error) {
	var found []*arm.Resource
	for i := range tx.Actions {
		for _, in := range tx.Actions[i].LogicVerifierInputs {
			d := in.AppData
			if len(d.DiscoveryPayload) == 0 || len(d.ResourcePayload) == 0 {
				continue
			}
			if !a.Discover(d.DiscoveryPayload[0].Blob) {
				continue
			}
			r, err := a.OpenResource(d.ResourcePayload[0].Blob)
			if err != nil {
				return nil, err
			}
			if r.Commitment() != in.Tag {
				return nil, errors.Errorf("resource payload does not open tag %s", in.Tag)
			}
			found = append(found, r)
		}
	}
	return found, nil
}
