package zkvm

import (
	"context"
	"crypto/subtle"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"resourcemachine/internal/digest"
)

// DevEngine executes programs natively. Its seal is a digest binding the program id
// to the journal, so any change to the journal or a swap of program id fails
// verification. It offers no zero-knowledge and no soundness against a malicious
// prover; it is meant for tests and local runs.
type DevEngine struct {
	mu       sync.RWMutex
	programs map[digest.Digest]Program
	log      zerolog.Logger
}

func NewDevEngine(log zerolog.Logger, programs ...Program) *DevEngine {
	e := &DevEngine{
		programs: make(map[digest.Digest]Program),
		log:      log,
	}
	e.Register(programs...)
	return e
}

// Register adds programs, replacing any already registered under the same id.
func (e *DevEngine) Register(programs ...Program) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, p := range programs {
		e.programs[p.ID()] = p
	}
}

func (e *DevEngine) program(id digest.Digest) (Program, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.programs[id]
	if !ok {
		return nil, errors.Wrapf(ErrProgramNotFound, "program %s", id)
	}
	return p, nil
}

func (e *DevEngine) Prove(ctx context.Context, programID digest.Digest, witness []byte) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := e.program(programID)
	if err != nil {
		return nil, err
	}
	journal, err := p.Execute(witness)
	if err != nil {
		e.log.Debug().Str("program", programID.String()).Err(err).Msg("guest execution failed")
		return nil, errors.Wrap(ErrProveFailed, err.Error())
	}
	seal := devSeal(programID, journal)
	e.log.Debug().
		Str("program", programID.String()).
		Int("journal_bytes", len(journal)).
		Msg("dev receipt produced")
	return &Receipt{Journal: journal, Seal: seal}, nil
}

func (e *DevEngine) Verify(ctx context.Context, programID digest.Digest, journal, seal []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sel, body, err := splitSeal(seal)
	if err != nil {
		return err
	}
	if sel != selectorDev {
		return errors.Wrapf(ErrUnsupportedProofType, "selector %x", sel)
	}
	if len(body) != digest.Size {
		return errors.Wrap(ErrInnerReceiptDeserialization, "dev seal length")
	}
	want := devSeal(programID, journal)
	if subtle.ConstantTimeCompare(want, seal) != 1 {
		return errors.Wrapf(ErrProofVerificationFailed, "program %s", programID)
	}
	return nil
}

func devSeal(programID digest.Digest, journal []byte) []byte {
	journalDigest := digest.Hash(journal)
	binding := digest.Hash(selectorDev[:], programID[:], journalDigest[:])
	seal := make([]byte, 0, len(selectorDev)+digest.Size)
	seal = append(seal, selectorDev[:]...)
	return append(seal, binding[:]...)
}

// Strict wraps an engine and refuses dev seals on verification. Anyone can compute
// a dev seal from public data, so receipts from other parties are checked through
// Strict unless dev mode is on. Proving passes through unchanged.
type Strict struct {
	Engine
}

func (s Strict) Verify(ctx context.Context, programID digest.Digest, journal, seal []byte) error {
	sel, _, err := splitSeal(seal)
	if err != nil {
		return err
	}
	if sel == selectorDev {
		return errors.Wrapf(ErrDevSealRejected, "program %s", programID)
	}
	return s.Engine.Verify(ctx, programID, journal, seal)
}
