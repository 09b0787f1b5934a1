package zkvm

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"testing"

	"github.com/consensys/gnark/frontend"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resourcemachine/internal/digest"
)

// squareProgram proves knowledge of x with x*x == y, where y is the journal.
type squareProgram struct{}

type squareCircuit struct {
	X frontend.Variable
	Y frontend.Variable `gnark:",public"`
}

func (c *squareCircuit) Define(api frontend.API) error {
	api.AssertIsEqual(api.Mul(c.X, c.X), c.Y)
	return nil
}

func (squareProgram) ID() digest.Digest { return digest.Hash([]byte("test/square")) }

func (squareProgram) Execute(witness []byte) ([]byte, error) {
	if len(witness) != 8 {
		return nil, fmt.Errorf("witness must be 8 bytes")
	}
	x := binary.BigEndian.Uint64(witness)
	if x > 1<<31 {
		return nil, fmt.Errorf("x too large")
	}
	journal := make([]byte, 8)
	binary.BigEndian.PutUint64(journal, x*x)
	return journal, nil
}

func (squareProgram) Circuit() frontend.Circuit { return &squareCircuit{} }

func (p squareProgram) Assign(witness []byte) (frontend.Circuit, []byte, error) {
	journal, err := p.Execute(witness)
	if err != nil {
		return nil, nil, err
	}
	return &squareCircuit{
		X: binary.BigEndian.Uint64(witness),
		Y: binary.BigEndian.Uint64(journal),
	}, journal, nil
}

func (squareProgram) PublicAssignment(journal []byte) (frontend.Circuit, error) {
	if len(journal) != 8 {
		return nil, fmt.Errorf("journal must be 8 bytes")
	}
	return &squareCircuit{Y: binary.BigEndian.Uint64(journal)}, nil
}

func u64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func TestDevEngineRoundTrip(t *testing.T) {
	ctx := context.Background()
	e := NewDevEngine(zerolog.Nop(), squareProgram{})
	id := squareProgram{}.ID()

	r, err := e.Prove(ctx, id, u64(7))
	require.NoError(t, err)
	assert.Equal(t, u64(49), r.Journal)
	require.NoError(t, e.Verify(ctx, id, r.Journal, r.Seal))

	err = e.Verify(ctx, id, u64(48), r.Seal)
	assert.True(t, errors.Is(err, ErrProofVerificationFailed))

	err = e.Verify(ctx, digest.Hash([]byte("other")), r.Journal, r.Seal)
	assert.True(t, errors.Is(err, ErrProofVerificationFailed))
}

func TestDevEngineErrors(t *testing.T) {
	ctx := context.Background()
	e := NewDevEngine(zerolog.Nop(), squareProgram{})
	id := squareProgram{}.ID()

	_, err := e.Prove(ctx, digest.Hash([]byte("missing")), nil)
	assert.True(t, errors.Is(err, ErrProgramNotFound))

	_, err = e.Prove(ctx, id, []byte{1})
	assert.True(t, errors.Is(err, ErrProveFailed))

	err = e.Verify(ctx, id, nil, []byte{1, 2})
	assert.True(t, errors.Is(err, ErrInnerReceiptDeserialization))

	err = e.Verify(ctx, id, nil, append(selectorGroth16[:], make([]byte, 32)...))
	assert.True(t, errors.Is(err, ErrUnsupportedProofType))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = e.Prove(cancelled, id, u64(2))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMuxRoutesByProgram(t *testing.T) {
	ctx := context.Background()
	fallback := NewDevEngine(zerolog.Nop())
	routed := NewDevEngine(zerolog.Nop(), squareProgram{})
	m := NewMux(fallback)
	id := squareProgram{}.ID()

	_, err := m.Prove(ctx, id, u64(3))
	assert.True(t, errors.Is(err, ErrProgramNotFound))

	m.Handle(id, routed)
	r, err := m.Prove(ctx, id, u64(3))
	require.NoError(t, err)
	require.NoError(t, m.Verify(ctx, id, r.Journal, r.Seal))
}

func TestGroth16EngineRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	e, err := NewGroth16Engine(dir, 2, zerolog.Nop())
	require.NoError(t, err)
	e.Register(squareProgram{})
	id := squareProgram{}.ID()

	r, err := e.Prove(ctx, id, u64(12))
	require.NoError(t, err)
	assert.Equal(t, u64(144), r.Journal)
	require.NoError(t, e.Verify(ctx, id, r.Journal, r.Seal))

	err = e.Verify(ctx, id, u64(145), r.Seal)
	assert.True(t, errors.Is(err, ErrProofVerificationFailed))

	err = e.Verify(ctx, id, r.Journal, r.Seal[:10])
	assert.True(t, errors.Is(err, ErrInnerReceiptDeserialization))

	// keys were persisted and a fresh engine reuses them
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	reloaded, err := NewGroth16Engine(dir, 2, zerolog.Nop())
	require.NoError(t, err)
	reloaded.Register(squareProgram{})
	require.NoError(t, reloaded.Verify(ctx, id, r.Journal, r.Seal))
}

func TestStrictRejectsDevSeals(t *testing.T) {
	ctx := context.Background()
	dev := NewDevEngine(zerolog.Nop(), squareProgram{})
	strict := Strict{Engine: dev}
	id := squareProgram{}.ID()

	// proving still works; the receipt is only refused at verification
	r, err := strict.Prove(ctx, id, u64(5))
	require.NoError(t, err)
	require.NoError(t, dev.Verify(ctx, id, r.Journal, r.Seal))
	err = strict.Verify(ctx, id, r.Journal, r.Seal)
	assert.True(t, errors.Is(err, ErrDevSealRejected))

	// a seal computed from public data alone, for a journal never proven
	forged := devSeal(id, u64(1000))
	require.NoError(t, dev.Verify(ctx, id, u64(1000), forged))
	err = strict.Verify(ctx, id, u64(1000), forged)
	assert.True(t, errors.Is(err, ErrDevSealRejected))

	err = strict.Verify(ctx, id, nil, []byte{1})
	assert.True(t, errors.Is(err, ErrInnerReceiptDeserialization))
}

func TestStrictPassesGroth16Seals(t *testing.T) {
	if testing.Short() {
		t.Skip("groth16 setup")
	}
	ctx := context.Background()
	g16, err := NewGroth16Engine("", 2, zerolog.Nop())
	require.NoError(t, err)
	g16.Register(squareProgram{})
	m := NewMux(NewDevEngine(zerolog.Nop()))
	id := squareProgram{}.ID()
	m.Handle(id, g16)
	strict := Strict{Engine: m}

	r, err := strict.Prove(ctx, id, u64(9))
	require.NoError(t, err)
	require.NoError(t, strict.Verify(ctx, id, r.Journal, r.Seal))
}

func TestSaveKeysReportsErrors(t *testing.T) {
	if testing.Short() {
		t.Skip("groth16 setup")
	}
	g16, err := NewGroth16Engine("", 1, zerolog.Nop())
	require.NoError(t, err)
	g16.Register(squareProgram{})
	sys, err := g16.system(context.Background(), squareProgram{}.ID())
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, SaveProvingKey(dir+"/pk.bin", sys.pk))
	require.NoError(t, SaveVerifyingKey(dir+"/vk.bin", sys.vk))
	_, err = LoadVerifyingKey(dir + "/vk.bin")
	require.NoError(t, err)

	assert.Error(t, SaveProvingKey(dir+"/missing/pk.bin", sys.pk))
	assert.Error(t, SaveVerifyingKey(dir+"/missing/vk.bin", sys.vk))
}
