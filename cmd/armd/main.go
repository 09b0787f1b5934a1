// main.go - Resource machine daemon.
//
// armd keeps an append-only ledger of resource machine transactions and exposes
// it over HTTP. It also carries a demo token scenario:
//   - alice wraps 100 units of an external token into a persistent resource
//   - alice sends 30 to bob and keeps 70 as change
//   - bob unwraps his 30 back to an external address
//
// Every transaction is proven, verified and appended to the ledger file. Only the
// padding logic has a circuit, so the demo needs dev mode (dev_mode in the config
// or ARMD_DEV_MODE=1). Outside dev mode dev receipts are refused on verification.
//
// Usage:
//   ARMD_DEV_MODE=1 armd demo
//   armd serve
//   armd verify tx.json --evm
//   armd ledger
//   armd setup

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"resourcemachine/internal/arm"
	"resourcemachine/internal/evm"
	"resourcemachine/internal/transactions/transfer"
)

const version = "0.1.0"

var (
	configPath string
	evmOutput  bool

	stdout io.Writer = os.Stdout
)

var rootCmd = &cobra.Command{
	Use:           "armd",
	Short:         "Resource machine ledger daemon",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Mint, transfer and burn a token against the ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), runDemo)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the ledger over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, app *App) error {
			err := NewServer(app).Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify <tx.json>",
	Short: "Verify a JSON encoded transaction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, app *App) error {
			return runVerify(ctx, app, args[0])
		})
	},
}

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Print ledger statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(_ context.Context, app *App) error {
			return printJSON(app.ledger.Stats())
		})
	},
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Generate or load the Groth16 keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, app *App) error {
			return app.Setup(ctx)
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "armd.json", "Path to the config file (JSON or YAML)")
	verifyCmd.Flags().BoolVar(&evmOutput, "evm", false, "Print the transaction in its EVM adapter form")
	rootCmd.AddCommand(demoCmd, serveCmd, verifyCmd, ledgerCmd, setupCmd)
}

func withApp(ctx context.Context, fn func(context.Context, *App) error) error {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return err
	}
	var audit string
	if cfg.EnableAudit {
		audit = cfg.AuditLogPath
	}
	log, err := NewLogger(cfg.LogLevel, cfg.LogFile, audit, os.Stderr)
	if err != nil {
		return err
	}
	defer log.Close()

	app, err := NewApp(cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("startup failed")
		return err
	}
	return fn(ctx, app)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// prove times a proving step and submits its transaction.
func prove(ctx context.Context, app *App, kind string, build func(context.Context) (*transfer.Result, error)) (*transfer.Result, error) {
	ctx, cancel := app.Context(ctx)
	defer cancel()

	start := time.Now()
	res, err := build(ctx)
	if err != nil {
		RecordError("prove")
		return nil, errors.Wrapf(err, "%s failed", kind)
	}
	RecordProofGeneration(kind, time.Since(start))

	if err := app.Submit(ctx, res.Tx); err != nil {
		return nil, errors.Wrapf(err, "%s rejected", kind)
	}
	app.log.Info().
		Str("kind", kind).
		Int("created", len(res.Created)).
		Str("root", app.ledger.Root().String()).
		Msg("transaction appended")
	return res, nil
}

func scanOne(acc *transfer.Account, tx *arm.Transaction) (*arm.Resource, error) {
	found, err := acc.Scan(tx)
	if err != nil {
		return nil, err
	}
	if len(found) != 1 {
		return nil, errors.Errorf("expected one resource, found %d", len(found))
	}
	return found[0], nil
}

func runDemo(ctx context.Context, app *App) error {
	token, err := app.cfg.Token()
	if err != nil {
		return err
	}
	b := transfer.NewBuilder(app.params, token)

	alice, err := transfer.NewAccount()
	if err != nil {
		return err
	}
	bob, err := transfer.NewAccount()
	if err != nil {
		return err
	}

	minted, err := prove(ctx, app, "mint", func(ctx context.Context) (*transfer.Result, error) {
		return b.Mint(ctx, transfer.Address20{0xa1}, alice.Address(), 100, app.ledger.Root())
	})
	if err != nil {
		return err
	}
	note, err := scanOne(alice, minted.Tx)
	if err != nil {
		return err
	}

	path, err := app.ledger.Path(note.Commitment())
	if err != nil {
		return err
	}
	sent, err := prove(ctx, app, "transfer", func(ctx context.Context) (*transfer.Result, error) {
		return b.Transfer(ctx, alice, note, path, bob.Address(), 30)
	})
	if err != nil {
		return err
	}
	received, err := scanOne(bob, sent.Tx)
	if err != nil {
		return err
	}

	path, err = app.ledger.Path(received.Commitment())
	if err != nil {
		return err
	}
	if _, err := prove(ctx, app, "burn", func(ctx context.Context) (*transfer.Result, error) {
		return b.Burn(ctx, bob, received, path, transfer.Address20{0xb0})
	}); err != nil {
		return err
	}

	app.log.Audit("demo_complete", map[string]interface{}{
		"bob_received": received.Quantity.String(),
		"root":         app.ledger.Root().String(),
	})
	return printJSON(app.ledger.Stats())
}

func runVerify(ctx context.Context, app *App, path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "failed to read transaction")
	}
	var tx arm.Transaction
	if err := json.Unmarshal(b, &tx); err != nil {
		return errors.Wrap(err, "failed to decode transaction")
	}

	ctx, cancel := app.Context(ctx)
	defer cancel()
	if err := tx.Verify(ctx, app.params); err != nil {
		RecordError("verify")
		return err
	}
	app.log.Info().
		Int("actions", len(tx.Actions)).
		Int("resources", tx.NumberOfResources()).
		Bool("aggregated", tx.IsAggregated()).
		Msg("transaction verified")

	if evmOutput {
		out, err := evm.FromTransaction(&tx)
		if err != nil {
			return err
		}
		return printJSON(out)
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "armd:", err)
		os.Exit(1)
	}
}
