package zkvm

import (
	"bytes"
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"resourcemachine/internal/digest"
)

// CircuitProgram is a Program that also has a gnark circuit. Assign turns an
// encoded witness into a full circuit assignment plus the journal it commits to;
// PublicAssignment rebuilds the public part of the assignment from a journal.
type CircuitProgram interface {
	Program
	Circuit() frontend.Circuit
	Assign(witness []byte) (frontend.Circuit, []byte, error)
	PublicAssignment(journal []byte) (frontend.Circuit, error)
}

type provingSystem struct {
	ccs constraint.ConstraintSystem
	pk  groth16.ProvingKey
	vk  groth16.VerifyingKey
}

// Groth16Engine proves circuit programs with Groth16 over BN254. Compiled
// constraint systems and keys are cached; keys are persisted under keyDir.
type Groth16Engine struct {
	keyDir string
	log    zerolog.Logger

	mu       sync.RWMutex
	programs map[digest.Digest]CircuitProgram

	systems *lru.Cache[digest.Digest, *provingSystem]
	setup   singleflight.Group
}

// NewGroth16Engine creates an engine persisting keys under keyDir. An empty keyDir
// keeps keys in memory only.
func NewGroth16Engine(keyDir string, cacheSize int, log zerolog.Logger) (*Groth16Engine, error) {
	if cacheSize <= 0 {
		cacheSize = 8
	}
	cache, err := lru.New[digest.Digest, *provingSystem](cacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "new groth16 engine")
	}
	return &Groth16Engine{
		keyDir:   keyDir,
		log:      log,
		programs: make(map[digest.Digest]CircuitProgram),
		systems:  cache,
	}, nil
}

func (e *Groth16Engine) Register(programs ...CircuitProgram) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, p := range programs {
		e.programs[p.ID()] = p
	}
}

func (e *Groth16Engine) program(id digest.Digest) (CircuitProgram, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.programs[id]
	if !ok {
		return nil, errors.Wrapf(ErrProgramNotFound, "program %s", id)
	}
	return p, nil
}

func (e *Groth16Engine) keyPaths(id digest.Digest) (string, string) {
	if e.keyDir == "" {
		return "", ""
	}
	name := id.String()[:16]
	return filepath.Join(e.keyDir, name+"_pk.bin"), filepath.Join(e.keyDir, name+"_vk.bin")
}

// Setup compiles the program's circuit and loads or generates its keys.
func (e *Groth16Engine) Setup(ctx context.Context, programID digest.Digest) error {
	_, err := e.system(ctx, programID)
	return err
}

func (e *Groth16Engine) system(ctx context.Context, id digest.Digest) (*provingSystem, error) {
	if sys, ok := e.systems.Get(id); ok {
		return sys, nil
	}
	p, err := e.program(id)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, err, _ := e.setup.Do(id.String(), func() (interface{}, error) {
		if sys, ok := e.systems.Get(id); ok {
			return sys, nil
		}
		start := time.Now()
		ccs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, p.Circuit())
		if err != nil {
			return nil, errors.Wrap(err, "compile circuit")
		}
		pkPath, vkPath := e.keyPaths(id)
		pk, vk, err := SetupOrLoadKeys(ccs, pkPath, vkPath)
		if err != nil {
			return nil, err
		}
		e.log.Info().
			Str("program", id.String()).
			Int("constraints", ccs.GetNbConstraints()).
			Str("pk_file", pkPath).
			Str("vk_file", vkPath).
			Dur("elapsed", time.Since(start)).
			Msg("groth16 circuit ready")
		sys := &provingSystem{ccs: ccs, pk: pk, vk: vk}
		e.systems.Add(id, sys)
		return sys, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*provingSystem), nil
}

func (e *Groth16Engine) Prove(ctx context.Context, programID digest.Digest, witness []byte) (*Receipt, error) {
	p, err := e.program(programID)
	if err != nil {
		return nil, err
	}
	sys, err := e.system(ctx, programID)
	if err != nil {
		return nil, err
	}
	assignment, journal, err := p.Assign(witness)
	if err != nil {
		return nil, errors.Wrap(ErrProveFailed, err.Error())
	}
	w, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField())
	if err != nil {
		return nil, errors.Wrap(ErrProveFailed, err.Error())
	}
	proof, err := groth16.Prove(sys.ccs, sys.pk, w)
	if err != nil {
		return nil, errors.Wrap(ErrProveFailed, err.Error())
	}
	var buf bytes.Buffer
	buf.Write(selectorGroth16[:])
	if _, err := proof.WriteTo(&buf); err != nil {
		return nil, errors.Wrap(ErrProveFailed, "proof marshaling failed")
	}
	return &Receipt{Journal: journal, Seal: buf.Bytes()}, nil
}

func (e *Groth16Engine) Verify(ctx context.Context, programID digest.Digest, journal, seal []byte) error {
	sel, body, err := splitSeal(seal)
	if err != nil {
		return err
	}
	if sel != selectorGroth16 {
		return errors.Wrapf(ErrUnsupportedProofType, "selector %x", sel)
	}
	p, err := e.program(programID)
	if err != nil {
		return err
	}
	sys, err := e.system(ctx, programID)
	if err != nil {
		return err
	}
	proof := groth16.NewProof(ecc.BN254)
	if _, err := proof.ReadFrom(bytes.NewReader(body)); err != nil {
		return errors.Wrap(ErrInnerReceiptDeserialization, err.Error())
	}
	public, err := p.PublicAssignment(journal)
	if err != nil {
		return errors.Wrap(ErrJournalDecoding, err.Error())
	}
	w, err := frontend.NewWitness(public, ecc.BN254.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return errors.Wrap(ErrJournalDecoding, err.Error())
	}
	if err := groth16.Verify(proof, sys.vk, w); err != nil {
		return errors.Wrapf(ErrProofVerificationFailed, "program %s: %v", programID, err)
	}
	return nil
}
