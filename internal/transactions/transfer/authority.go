package transfer

import (
	"crypto/sha256"

	"github.com/btcsuite/btcd/btcec"
	"github.com/pkg/errors"

	"resourcemachine/internal/digest"
)

// Authorization signatures are domain separated from every other use of the key.
var authDomain = []byte("ARM_AUTH_V1")

// AuthorizationKey signs the action tree roots that consume its owner's resources.
type AuthorizationKey struct {
	sk *btcec.PrivateKey
}

func NewAuthorizationKey() (*AuthorizationKey, error) {
	sk, err := btcec.NewPrivateKey(btcec.S256())
	if err != nil {
		return nil, errors.Wrap(err, "authorization key")
	}
	return &AuthorizationKey{sk: sk}, nil
}

// AuthorizationKeyFromBytes loads a 32-byte secret key.
func AuthorizationKeyFromBytes(b []byte) (*AuthorizationKey, error) {
	if len(b) != btcec.PrivKeyBytesLen {
		return nil, errors.Errorf("authorization key: expected %d bytes, got %d", btcec.PrivKeyBytesLen, len(b))
	}
	sk, _ := btcec.PrivKeyFromBytes(btcec.S256(), b)
	return &AuthorizationKey{sk: sk}, nil
}

func (k *AuthorizationKey) Bytes() []byte { return k.sk.Serialize() }

// VerifyingKey returns the compressed public key.
func (k *AuthorizationKey) VerifyingKey() AuthorizationVerifyingKey {
	return k.sk.PubKey().SerializeCompressed()
}

func authMessage(root digest.Digest) []byte {
	h := sha256.New()
	h.Write(authDomain)
	h.Write(root[:])
	return h.Sum(nil)
}

// Sign returns a DER-encoded signature over root.
func (k *AuthorizationKey) Sign(root digest.Digest) ([]byte, error) {
	sig, err := k.sk.Sign(authMessage(root))
	if err != nil {
		return nil, errors.Wrap(err, "sign action tree root")
	}
	return sig.Serialize(), nil
}

// AuthorizationVerifyingKey is a compressed secp256k1 public key.
type AuthorizationVerifyingKey []byte

// ValueRef is the value ref of resources owned by the key.
func (vk AuthorizationVerifyingKey) ValueRef() digest.Digest {
	return digest.Hash(vk)
}

func (vk AuthorizationVerifyingKey) Verify(root digest.Digest, sig []byte) error {
	pk, err := btcec.ParsePubKey(vk, btcec.S256())
	if err != nil {
		return errors.Wrap(err, "authorization verifying key")
	}
	s, err := btcec.ParseDERSignature(sig, btcec.S256())
	if err != nil {
		return errors.Wrap(err, "authorization signature")
	}
	if !s.Verify(authMessage(root), pk) {
		return errors.New("authorization signature does not match")
	}
	return nil
}
