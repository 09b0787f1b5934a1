package arm

import (
	"runtime"

	"github.com/rs/zerolog"

	"resourcemachine/internal/digest"
	"resourcemachine/internal/zkvm"
)

var (
	// PaddingLeaf fills unused leaves of every Merkle tree.
	PaddingLeaf = digest.MustFromHex("cc1d2f838445db7aec431df9ee8a871f40e7aa5e064fc056633ef8c60fab7b06")

	// InitialRoot is the default ephemeral root.
	InitialRoot = PaddingLeaf
)

const (
	// ComplianceInstanceWords is the size of an encoded compliance instance in u32
	// words.
	ComplianceInstanceWords = 56
	// ComplianceInstanceSize is the same in bytes.
	ComplianceInstanceSize = ComplianceInstanceWords * 4

	// TxMaxResources bounds the number of resources in one transaction.
	TxMaxResources = 128

	// DefaultCommitmentTreeDepth is the depth of the persistent commitment tree.
	DefaultCommitmentTreeDepth = 32
)

// Keys holds the verifying keys (program ids) of the protocol-wide programs.
// Application logic programs carry their own keys in resource logic refs.
type Keys struct {
	Compliance   digest.Digest `json:"compliance" yaml:"compliance"`
	PaddingLogic digest.Digest `json:"padding_logic" yaml:"padding_logic"`
	Aggregation  digest.Digest `json:"aggregation" yaml:"aggregation"`
}

// DefaultKeys derives the program ids from fixed names.
func DefaultKeys() Keys {
	return Keys{
		Compliance:   digest.Hash([]byte("resourcemachine/compliance/v1")),
		PaddingLogic: digest.Hash([]byte("resourcemachine/padding-logic/v1")),
		Aggregation:  digest.Hash([]byte("resourcemachine/batch-aggregation/v1")),
	}
}

// Params is the process-wide protocol configuration passed to every prove and
// verify call.
type Params struct {
	Engine zkvm.Engine
	Keys   Keys

	// CommitmentTreeDepth is the depth every non-ephemeral Merkle path must have.
	CommitmentTreeDepth int

	// MaxConcurrency bounds parallel proof checks. Zero means GOMAXPROCS.
	MaxConcurrency int

	Logger zerolog.Logger
}

// NewParams returns params with default keys and tree depth.
func NewParams(engine zkvm.Engine) *Params {
	return &Params{
		Engine:              engine,
		Keys:                DefaultKeys(),
		CommitmentTreeDepth: DefaultCommitmentTreeDepth,
		Logger:              zerolog.Nop(),
	}
}

func (p *Params) concurrency() int {
	if p.MaxConcurrency > 0 {
		return p.MaxConcurrency
	}
	return runtime.GOMAXPROCS(0)
}

// Programs returns the protocol programs for keys: compliance, padding logic and
// batch aggregation. The aggregation program checks inner receipts with verifier.
func Programs(keys Keys, depth int, verifier zkvm.Verifier) []zkvm.Program {
	return []zkvm.Program{
		ComplianceProgram{ProgramID: keys.Compliance, TreeDepth: depth},
		LogicProgram[TrivialLogicWitness]{ProgramID: keys.PaddingLogic},
		AggregationProgram{ProgramID: keys.Aggregation, Verifier: verifier},
	}
}

// NewDevParams wires a development engine with the protocol programs registered.
func NewDevParams(log zerolog.Logger) (*Params, *zkvm.DevEngine) {
	engine := zkvm.NewDevEngine(log)
	params := NewParams(engine)
	params.Logger = log
	engine.Register(Programs(params.Keys, params.CommitmentTreeDepth, engine)...)
	return params, engine
}
