// Package encryption encrypts resource payloads to a receiver's secp256k1 key.
//
// The sender and receiver agree on a key by ECDH, stretch it with HKDF-SHA256 and
// seal the payload with ChaCha20-Poly1305. A ciphertext carries the sender's
// compressed public key and the nonce, so the receiver needs only its own secret
// key. Encryption is deterministic in the sender key and nonce.
package encryption

import (
	"crypto/rand"
	"crypto/sha256"
	"io"

	"github.com/btcsuite/btcd/btcec"
	"github.com/pkg/errors"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

var (
	ErrEncryptionFailed       = errors.New("encryption failed")
	ErrDecryptionFailed       = errors.New("decryption failed")
	ErrInvalidEncryptionNonce = errors.New("invalid encryption nonce")
)

// NonceSize is the length of an encryption nonce.
const NonceSize = chacha20poly1305.NonceSize

const pubKeySize = btcec.PubKeyBytesLenCompressed

var kdfInfo = []byte("resourcemachine/payload-encryption/v1")

// Ciphertext is sender public key || nonce || sealed payload.
type Ciphertext []byte

// GenerateKey returns a fresh secp256k1 key pair.
func GenerateKey() (*btcec.PrivateKey, *btcec.PublicKey, error) {
	sk, err := btcec.NewPrivateKey(btcec.S256())
	if err != nil {
		return nil, nil, errors.Wrap(err, "generate key")
	}
	return sk, sk.PubKey(), nil
}

// NonceFromBytes checks the length of b.
func NonceFromBytes(b []byte) ([NonceSize]byte, error) {
	var n [NonceSize]byte
	if len(b) != NonceSize {
		return n, errors.Wrapf(ErrInvalidEncryptionNonce, "expected %d bytes, got %d", NonceSize, len(b))
	}
	copy(n[:], b)
	return n, nil
}

func sharedKey(sk *btcec.PrivateKey, pk *btcec.PublicKey, senderPub []byte) ([]byte, error) {
	secret := btcec.GenerateSharedSecret(sk, pk)
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, senderPub, kdfInfo), key); err != nil {
		return nil, err
	}
	return key, nil
}

// Encrypt seals msg for receiver with a key agreed from sender's secret key.
func Encrypt(msg []byte, receiver *btcec.PublicKey, sender *btcec.PrivateKey, nonce [NonceSize]byte) (Ciphertext, error) {
	if receiver == nil || sender == nil {
		return nil, errors.Wrap(ErrEncryptionFailed, "missing key")
	}
	senderPub := sender.PubKey().SerializeCompressed()
	key, err := sharedKey(sender, receiver, senderPub)
	if err != nil {
		return nil, errors.Wrap(ErrEncryptionFailed, err.Error())
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, errors.Wrap(ErrEncryptionFailed, err.Error())
	}
	out := make([]byte, 0, pubKeySize+NonceSize+len(msg)+aead.Overhead())
	out = append(out, senderPub...)
	out = append(out, nonce[:]...)
	return aead.Seal(out, nonce[:], msg, senderPub), nil
}

// EncryptRandom seals msg under a one-time sender key and a random nonce.
func EncryptRandom(msg []byte, receiver *btcec.PublicKey) (Ciphertext, error) {
	sender, _, err := GenerateKey()
	if err != nil {
		return nil, errors.Wrap(ErrEncryptionFailed, err.Error())
	}
	var nonce [NonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, errors.Wrap(ErrEncryptionFailed, err.Error())
	}
	return Encrypt(msg, receiver, sender, nonce)
}

// SenderPublicKey parses the sender key embedded in c.
func (c Ciphertext) SenderPublicKey() (*btcec.PublicKey, error) {
	if len(c) < pubKeySize+NonceSize {
		return nil, errors.Wrap(ErrDecryptionFailed, "ciphertext too short")
	}
	pk, err := btcec.ParsePubKey(c[:pubKeySize], btcec.S256())
	if err != nil {
		return nil, errors.Wrap(ErrDecryptionFailed, err.Error())
	}
	return pk, nil
}

// Decrypt opens c with the receiver's secret key.
func (c Ciphertext) Decrypt(sk *btcec.PrivateKey) ([]byte, error) {
	senderPub, err := c.SenderPublicKey()
	if err != nil {
		return nil, err
	}
	key, err := sharedKey(sk, senderPub, c[:pubKeySize])
	if err != nil {
		return nil, errors.Wrap(ErrDecryptionFailed, err.Error())
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, errors.Wrap(ErrDecryptionFailed, err.Error())
	}
	nonce := c[pubKeySize : pubKeySize+NonceSize]
	msg, err := aead.Open(nil, nonce, c[pubKeySize+NonceSize:], c[:pubKeySize])
	if err != nil {
		return nil, errors.Wrap(ErrDecryptionFailed, err.Error())
	}
	return msg, nil
}
