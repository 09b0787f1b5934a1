// Package trivial is the padding resource logic as a gnark circuit.
//
// The circuit recomputes the resource commitment with in-circuit SHA-256, and the
// nullifier when the resource is consumed, and exposes the resulting tag. The
// quantity and ephemeral flag enter the commitment as constants, so only zero
// quantity ephemeral resources can satisfy it.
package trivial

import (
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/hash/sha2"
	"github.com/consensys/gnark/std/math/uints"
)

var expandSeedPrefix = []byte("RISC0_ExpandSeed")

// Circuit defines the padding logic constraints.
type Circuit struct {
	// Public inputs
	Tag        [32]frontend.Variable `gnark:",public"`
	Root       [32]frontend.Variable `gnark:",public"`
	IsConsumed frontend.Variable     `gnark:",public"`

	// Private inputs
	LogicRef     [32]frontend.Variable
	LabelRef     [32]frontend.Variable
	ValueRef     [32]frontend.Variable
	Nonce        [32]frontend.Variable
	NkCommitment [32]frontend.Variable
	RandSeed     [32]frontend.Variable
	NfKey        [32]frontend.Variable
}

// Define declares the circuit constraints.
func (c *Circuit) Define(api frontend.API) error {
	uapi, err := uints.New[uints.U32](api)
	if err != nil {
		return err
	}
	bytesOf := func(vs []frontend.Variable) []uints.U8 {
		out := make([]uints.U8, len(vs))
		for i := range vs {
			out[i] = uapi.ByteValueOf(vs[i])
		}
		return out
	}
	sum := func(parts ...[]uints.U8) ([]uints.U8, error) {
		h, err := sha2.New(api)
		if err != nil {
			return nil, err
		}
		for _, p := range parts {
			h.Write(p)
		}
		return h.Sum(), nil
	}

	api.AssertIsBoolean(c.IsConsumed)

	nonce := bytesOf(c.Nonce[:])
	seed := bytesOf(c.RandSeed[:])
	nkc := bytesOf(c.NkCommitment[:])
	nk := bytesOf(c.NfKey[:])
	bytesOf(c.Root[:])

	rcm, err := sum(uints.NewU8Array(expandSeedPrefix), uints.NewU8Array([]byte{1}), seed, nonce)
	if err != nil {
		return err
	}
	psi, err := sum(uints.NewU8Array(expandSeedPrefix), uints.NewU8Array([]byte{0}), seed, nonce)
	if err != nil {
		return err
	}
	cm, err := sum(
		bytesOf(c.LogicRef[:]),
		bytesOf(c.LabelRef[:]),
		uints.NewU8Array(make([]byte, 16)),
		bytesOf(c.ValueRef[:]),
		uints.NewU8Array([]byte{1}),
		nonce,
		nkc,
		rcm,
	)
	if err != nil {
		return err
	}

	// A consumed resource must be opened with the key behind nk_commitment.
	nkHash, err := sum(nk)
	if err != nil {
		return err
	}
	for i := range nkc {
		api.AssertIsEqual(api.Mul(c.IsConsumed, api.Sub(nkHash[i].Val, nkc[i].Val)), 0)
	}

	nf, err := sum(nk, nonce, psi, cm)
	if err != nil {
		return err
	}
	for i := range c.Tag {
		api.AssertIsEqual(api.Select(c.IsConsumed, nf[i].Val, cm[i].Val), c.Tag[i])
	}
	return nil
}
