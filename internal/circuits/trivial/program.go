package trivial

import (
	"bytes"

	"github.com/consensys/gnark/frontend"
	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"

	"resourcemachine/internal/arm"
	"resourcemachine/internal/digest"
	"resourcemachine/internal/zkvm"
)

// Program proves arm.TrivialLogicWitness values with Circuit.
type Program struct {
	native arm.LogicProgram[arm.TrivialLogicWitness]
}

// NewProgram binds the circuit to the padding logic key.
func NewProgram(keys arm.Keys) Program {
	return Program{native: arm.LogicProgram[arm.TrivialLogicWitness]{ProgramID: keys.PaddingLogic}}
}

var _ zkvm.CircuitProgram = Program{}

func (p Program) ID() digest.Digest { return p.native.ID() }

// Execute runs the padding logic natively.
func (p Program) Execute(witness []byte) ([]byte, error) {
	return p.native.Execute(witness)
}

func (p Program) Circuit() frontend.Circuit { return &Circuit{} }

func byteVars(b []byte) [32]frontend.Variable {
	var out [32]frontend.Variable
	for i := range out {
		out[i] = int(b[i])
	}
	return out
}

func boolVar(b bool) frontend.Variable {
	if b {
		return 1
	}
	return 0
}

func (p Program) Assign(witness []byte) (frontend.Circuit, []byte, error) {
	journal, err := p.Execute(witness)
	if err != nil {
		return nil, nil, err
	}
	var w arm.TrivialLogicWitness
	if err := cbor.Unmarshal(witness, &w); err != nil {
		return nil, nil, errors.Wrap(err, "trivial witness")
	}
	li, err := arm.DecodeLogicInstance(journal)
	if err != nil {
		return nil, nil, err
	}
	r := &w.Resource
	return &Circuit{
		Tag:          byteVars(li.Tag[:]),
		Root:         byteVars(li.Root[:]),
		IsConsumed:   boolVar(li.IsConsumed),
		LogicRef:     byteVars(r.LogicRef[:]),
		LabelRef:     byteVars(r.LabelRef[:]),
		ValueRef:     byteVars(r.ValueRef[:]),
		Nonce:        byteVars(r.Nonce[:]),
		NkCommitment: byteVars(r.NkCommitment[:]),
		RandSeed:     byteVars(r.RandSeed[:]),
		NfKey:        byteVars(w.NfKey[:]),
	}, journal, nil
}

// PublicAssignment accepts only journals in canonical encoding with no app data,
// which is all the padding logic can produce.
func (p Program) PublicAssignment(journal []byte) (frontend.Circuit, error) {
	li, err := arm.DecodeLogicInstance(journal)
	if err != nil {
		return nil, err
	}
	if !li.AppData.IsEmpty() {
		return nil, errors.New("padding logic publishes no app data")
	}
	canonical, err := li.Encode()
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(canonical, journal) {
		return nil, errors.New("non-canonical journal")
	}
	return &Circuit{
		Tag:        byteVars(li.Tag[:]),
		Root:       byteVars(li.Root[:]),
		IsConsumed: boolVar(li.IsConsumed),
	}, nil
}
