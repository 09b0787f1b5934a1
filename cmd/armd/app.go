// app.go - Wiring of engines, params and ledger from the daemon configuration
package main

import (
	"context"
	"os"
	"time"

	"github.com/pkg/errors"

	"resourcemachine/internal/arm"
	"resourcemachine/internal/circuits/trivial"
	"resourcemachine/internal/ledger"
	"resourcemachine/internal/transactions/transfer"
	"resourcemachine/internal/zkvm"
)

// App holds everything a command needs.
type App struct {
	cfg     *Config
	log     *Logger
	params  *arm.Params
	groth16 *zkvm.Groth16Engine
	ledger  *ledger.Ledger
}

// ErrNoProvingSystem is returned when neither groth16 nor dev mode is enabled.
var ErrNoProvingSystem = errors.New("no proving system: enable groth16 or dev_mode")

// NewApp builds the proving engines and opens the ledger. Programs run on the
// development engine unless groth16 is enabled, in which case the padding logic
// is routed to the Groth16 engine. Outside dev mode every verification goes through
// zkvm.Strict, so dev receipts are refused.
func NewApp(cfg *Config, log *Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	keys := cfg.ProtocolKeys()

	dev := zkvm.NewDevEngine(log.Logger)
	mux := zkvm.NewMux(dev)

	var engine zkvm.Engine = mux
	if cfg.DevModeEnabled() {
		log.Warn().Msg("dev mode: receipts are not proofs, accept transactions only from trusted provers")
	} else {
		if !cfg.Groth16 {
			return nil, ErrNoProvingSystem
		}
		engine = zkvm.Strict{Engine: mux}
	}

	params := arm.NewParams(engine)
	params.Keys = keys
	params.CommitmentTreeDepth = cfg.CommitmentTreeDepth
	params.MaxConcurrency = cfg.MaxConcurrency
	params.Logger = log.Logger

	dev.Register(arm.Programs(keys, cfg.CommitmentTreeDepth, engine)...)
	dev.Register(transfer.Program())

	app := &App{cfg: cfg, log: log, params: params}
	if cfg.Groth16 {
		g16, err := zkvm.NewGroth16Engine(cfg.KeyDir, 0, log.Logger)
		if err != nil {
			return nil, err
		}
		g16.Register(trivial.NewProgram(keys))
		mux.Handle(keys.PaddingLogic, g16)
		app.groth16 = g16
	}

	l, err := openLedger(cfg.LedgerPath, params)
	if err != nil {
		return nil, err
	}
	app.ledger = l
	log.Info().
		Str("ledger", cfg.LedgerPath).
		Bool("groth16", cfg.Groth16).
		Int("depth", cfg.CommitmentTreeDepth).
		Msg("resource machine ready")
	return app, nil
}

func openLedger(path string, params *arm.Params) (*ledger.Ledger, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return ledger.New(params)
		}
		return nil, errors.Wrap(err, "failed to stat ledger")
	}
	return ledger.LoadFromFile(path, params)
}

// Context returns a context bounded by the configured timeout.
func (a *App) Context(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, time.Duration(a.cfg.TimeoutSeconds)*time.Second)
}

// Submit appends tx to the ledger and persists it.
func (a *App) Submit(ctx context.Context, tx *arm.Transaction) error {
	if err := a.ledger.Submit(ctx, tx); err != nil {
		RecordError("submit")
		return err
	}
	if err := a.ledger.SaveToFile(a.cfg.LedgerPath); err != nil {
		RecordError("persist")
		return err
	}
	a.log.Audit("transaction_submitted", map[string]interface{}{
		"nullifiers":  len(tx.Nullifiers()),
		"commitments": len(tx.Commitments()),
		"root":        a.ledger.Root().String(),
	})
	return nil
}

// Setup generates or loads the Groth16 keys of the padding logic circuit.
func (a *App) Setup(ctx context.Context) error {
	if a.groth16 == nil {
		return errors.New("groth16 is disabled in the config")
	}
	start := time.Now()
	if err := a.groth16.Setup(ctx, a.params.Keys.PaddingLogic); err != nil {
		return err
	}
	a.log.Info().Dur("elapsed", time.Since(start)).Str("key_dir", a.cfg.KeyDir).Msg("groth16 setup complete")
	return nil
}
