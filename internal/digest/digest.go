// digest.go - Fixed-width hash values shared by every layer of the resource machine.
//
// A Digest is a 32-byte SHA-256 output. Commitments, nullifiers, logic references,
// Merkle nodes and program identifiers are all digests. The proving engine reads
// guest data as little-endian u32 words, so conversions to and from that layout
// live here too.

package digest

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	"github.com/pkg/errors"
)

// Size is the byte length of a digest.
const Size = 32

// Words is the number of u32 words in a digest.
const Words = Size / 4

// Digest is a 32-byte hash value.
type Digest [Size]byte

// Zero is the all-zero digest.
var Zero Digest

// Hash returns SHA-256 over the concatenation of the given byte slices.
func Hash(parts ...[]byte) Digest {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	var d Digest
	copy(d[:], h.Sum(nil))
	return d
}

// HashTwo combines two digests in left-then-right order. It is the node hash of
// every Merkle tree in the module.
func HashTwo(left, right Digest) Digest {
	return Hash(left[:], right[:])
}

// FromBytes copies b into a digest. b must be exactly Size bytes long.
func FromBytes(b []byte) (Digest, error) {
	var d Digest
	if len(b) != Size {
		return d, errors.Errorf("digest: expected %d bytes, got %d", Size, len(b))
	}
	copy(d[:], b)
	return d, nil
}

// FromHex parses a 64 character hex string.
func FromHex(s string) (Digest, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Digest{}, errors.Wrap(err, "digest")
	}
	return FromBytes(b)
}

// MustFromHex is FromHex for package-level constants.
func MustFromHex(s string) Digest {
	d, err := FromHex(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Bytes returns a copy of the digest as a slice.
func (d Digest) Bytes() []byte {
	out := make([]byte, Size)
	copy(out, d[:])
	return out
}

// IsZero reports whether every byte is zero.
func (d Digest) IsZero() bool {
	return d == Zero
}

// Equal compares two digests.
func (d Digest) Equal(o Digest) bool {
	return bytes.Equal(d[:], o[:])
}

func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// MarshalText encodes the digest as lowercase hex, so digests read naturally in
// JSON ledgers and YAML configs.
func (d Digest) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(d[:])), nil
}

// UnmarshalText parses a hex encoded digest.
func (d *Digest) UnmarshalText(text []byte) error {
	parsed, err := FromHex(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Words returns the digest as little-endian u32 words.
func (d Digest) Words() [Words]uint32 {
	var w [Words]uint32
	for i := range w {
		w[i] = binary.LittleEndian.Uint32(d[i*4:])
	}
	return w
}

// FromWords is the inverse of Words.
func FromWords(w [Words]uint32) Digest {
	var d Digest
	for i, v := range w {
		binary.LittleEndian.PutUint32(d[i*4:], v)
	}
	return d
}

// BytesToWords packs b into little-endian u32 words, zero padding the final word.
func BytesToWords(b []byte) []uint32 {
	n := (len(b) + 3) / 4
	words := make([]uint32, n)
	for i := 0; i < n; i++ {
		var chunk [4]byte
		copy(chunk[:], b[i*4:])
		words[i] = binary.LittleEndian.Uint32(chunk[:])
	}
	return words
}

// WordsToBytes unpacks little-endian u32 words.
func WordsToBytes(words []uint32) []byte {
	out := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(out[i*4:], w)
	}
	return out
}
