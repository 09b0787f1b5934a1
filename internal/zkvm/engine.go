// Package zkvm defines the proving engine the resource machine delegates to, and
// ships two implementations: a development engine that executes guest programs
// natively and binds receipts to their journals, and a Groth16 engine backed by
// gnark circuits.
package zkvm

import (
	"context"

	"github.com/pkg/errors"

	"resourcemachine/internal/digest"
)

var (
	ErrProgramNotFound             = errors.New("program not registered")
	ErrProveFailed                 = errors.New("prove failed")
	ErrProofVerificationFailed     = errors.New("proof verification failed")
	ErrInnerReceiptDeserialization = errors.New("inner receipt deserialization error")
	ErrUnsupportedProofType        = errors.New("unsupported proof type")
	ErrJournalDecoding             = errors.New("journal decoding error")
	ErrDevSealRejected             = errors.New("dev seal rejected outside dev mode")
)

// Program is a guest program. Execute runs the program's constraints over an
// encoded witness and returns the public journal, or an error if any constraint
// does not hold.
type Program interface {
	ID() digest.Digest
	Execute(witness []byte) ([]byte, error)
}

// Receipt is the result of proving: the journal the program committed to and the
// seal attesting to it.
type Receipt struct {
	Journal []byte
	Seal    []byte
}

type Prover interface {
	Prove(ctx context.Context, programID digest.Digest, witness []byte) (*Receipt, error)
}

type Verifier interface {
	Verify(ctx context.Context, programID digest.Digest, journal, seal []byte) error
}

// Engine proves and verifies guest programs.
type Engine interface {
	Prover
	Verifier
}

// Seal selectors. The first four bytes of every seal name the proof system that
// produced it.
var (
	selectorDev     = [4]byte{'D', 'E', 'V', 0}
	selectorGroth16 = [4]byte{'G', '1', '6', 0}
)

func splitSeal(seal []byte) ([4]byte, []byte, error) {
	var sel [4]byte
	if len(seal) < len(sel) {
		return sel, nil, errors.Wrap(ErrInnerReceiptDeserialization, "seal too short")
	}
	copy(sel[:], seal)
	return sel, seal[len(sel):], nil
}
