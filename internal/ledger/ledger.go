// ledger.go - Append-only ledger of verified resource machine transactions.
//
// The Ledger records every commitment, nullifier and commitment tree root, and the
// transactions that produced them. A transaction is appended only after it
// verifies, spends no recorded nullifier, and proves its consumed resources against
// a root the ledger has seen. The ledger is persisted as a single JSON file.

package ledger

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"

	"resourcemachine/internal/arm"
	"resourcemachine/internal/digest"
)

var (
	ErrDoubleSpend         = errors.New("double spend: nullifier already in ledger")
	ErrUnknownRoot         = errors.New("unknown commitment tree root")
	ErrUnknownCommitment   = errors.New("unknown commitment")
	ErrDuplicateCommitment = errors.New("commitment already in ledger")
)

// Ledger is safe for concurrent use.
type Ledger struct {
	mu     sync.RWMutex
	saveMu sync.Mutex
	params *arm.Params

	tree         *arm.CommitmentTree
	index        map[digest.Digest]int
	spent        map[digest.Digest]struct{}
	roots        map[digest.Digest]struct{}
	history      []digest.Digest
	nullifiers   []digest.Digest
	transactions []*arm.Transaction
}

// New creates an empty ledger whose commitment tree has the params' depth.
func New(params *arm.Params) (*Ledger, error) {
	tree, err := arm.NewCommitmentTree(params.CommitmentTreeDepth)
	if err != nil {
		return nil, err
	}
	l := &Ledger{
		params: params,
		tree:   tree,
		index:  make(map[digest.Digest]int),
		spent:  make(map[digest.Digest]struct{}),
		roots:  make(map[digest.Digest]struct{}),
	}
	l.roots[arm.InitialRoot] = struct{}{}
	l.recordRoot()
	return l, nil
}

func (l *Ledger) recordRoot() {
	root := l.tree.Root()
	l.roots[root] = struct{}{}
	l.history = append(l.history, root)
}

// check runs the ledger rules that need no proof verification.
func (l *Ledger) check(tx *arm.Transaction) error {
	seen := make(map[digest.Digest]struct{})
	for _, nf := range tx.Nullifiers() {
		if _, ok := l.spent[nf]; ok {
			return errors.Wrapf(ErrDoubleSpend, "nullifier %s", nf)
		}
		if _, ok := seen[nf]; ok {
			return errors.Wrapf(ErrDoubleSpend, "nullifier %s repeated in transaction", nf)
		}
		seen[nf] = struct{}{}
	}
	for _, root := range tx.Roots() {
		if _, ok := l.roots[root]; !ok {
			return errors.Wrapf(ErrUnknownRoot, "root %s", root)
		}
	}
	for _, cm := range tx.Commitments() {
		if _, ok := l.index[cm]; ok {
			return errors.Wrapf(ErrDuplicateCommitment, "commitment %s", cm)
		}
	}
	return nil
}

// Submit verifies tx and appends it.
func (l *Ledger) Submit(ctx context.Context, tx *arm.Transaction) error {
	start := time.Now()
	err := l.submit(ctx, tx)
	observeSubmit(err, time.Since(start))
	log := l.params.Logger
	if err != nil {
		log.Warn().Err(err).Msg("transaction rejected")
		return err
	}
	log.Info().
		Int("resources", tx.NumberOfResources()).
		Str("root", l.Root().String()).
		Msg("transaction appended")
	return nil
}

func (l *Ledger) submit(ctx context.Context, tx *arm.Transaction) error {
	l.mu.RLock()
	err := l.check(tx)
	l.mu.RUnlock()
	if err != nil {
		return err
	}
	if err := tx.Verify(ctx, l.params); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	// Another submission may have landed while the proofs were checked.
	if err := l.check(tx); err != nil {
		return err
	}
	cms := tx.Commitments()
	if l.tree.Len()+len(cms) > 1<<uint(l.tree.Depth()) {
		return errors.Wrap(arm.ErrTreeTooLarge, "commitment tree is full")
	}
	for _, nf := range tx.Nullifiers() {
		l.spent[nf] = struct{}{}
		l.nullifiers = append(l.nullifiers, nf)
	}
	for _, cm := range cms {
		i, err := l.tree.Append(cm)
		if err != nil {
			return err
		}
		l.index[cm] = i
	}
	l.recordRoot()
	l.transactions = append(l.transactions, tx)
	setSizes(len(l.index), len(l.spent))
	return nil
}

// Root is the current commitment tree root.
func (l *Ledger) Root() digest.Digest {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.tree.Root()
}

// IsKnownRoot reports whether root is the initial root or any root the tree has had.
func (l *Ledger) IsKnownRoot(root digest.Digest) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.roots[root]
	return ok
}

// Path proves cm against the current root.
func (l *Ledger) Path(cm digest.Digest) (arm.MerklePath, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	i, ok := l.index[cm]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownCommitment, "commitment %s", cm)
	}
	return l.tree.Path(i)
}

func (l *Ledger) HasCommitment(cm digest.Digest) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.index[cm]
	return ok
}

func (l *Ledger) HasNullifier(nf digest.Digest) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.spent[nf]
	return ok
}

// Stats summarizes the ledger contents.
type Stats struct {
	Transactions int           `json:"transactions"`
	Commitments  int           `json:"commitments"`
	Nullifiers   int           `json:"nullifiers"`
	Roots        int           `json:"roots"`
	Root         digest.Digest `json:"root"`
}

func (l *Ledger) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Stats{
		Transactions: len(l.transactions),
		Commitments:  l.tree.Len(),
		Nullifiers:   len(l.nullifiers),
		Roots:        len(l.history),
		Root:         l.tree.Root(),
	}
}

// Transactions returns the appended transactions in order.
func (l *Ledger) Transactions() []*arm.Transaction {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]*arm.Transaction(nil), l.transactions...)
}

// file is the JSON layout of a saved ledger.
type file struct {
	Depth        int                `json:"depth"`
	Commitments  []digest.Digest    `json:"commitments"`
	Nullifiers   []digest.Digest    `json:"nullifiers"`
	Roots        []digest.Digest    `json:"roots"`
	Transactions []*arm.Transaction `json:"transactions"`
}

// SaveToFile writes the ledger as indented JSON, replacing path. Saves are
// serialized from snapshot to rename, so the file never goes back to an older
// state than one already written.
func (l *Ledger) SaveToFile(path string) error {
	l.saveMu.Lock()
	defer l.saveMu.Unlock()

	l.mu.RLock()
	f := file{
		Depth:        l.tree.Depth(),
		Commitments:  l.tree.Leaves(),
		Nullifiers:   l.nullifiers,
		Roots:        l.history,
		Transactions: l.transactions,
	}
	b, err := json.MarshalIndent(f, "", "  ")
	l.mu.RUnlock()
	if err != nil {
		return errors.Wrap(err, "encode ledger")
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "write ledger")
	}
	defer os.Remove(tmp.Name())
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return errors.Wrap(err, "write ledger")
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return errors.Wrap(err, "write ledger")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "write ledger")
	}
	return errors.Wrap(os.Rename(tmp.Name(), path), "write ledger")
}

// LoadFromFile reads a ledger saved by SaveToFile. The file's tree depth must
// match params.
func LoadFromFile(path string, params *arm.Params) (*Ledger, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read ledger")
	}
	var f file
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, errors.Wrap(err, "decode ledger")
	}
	if f.Depth != params.CommitmentTreeDepth {
		return nil, errors.Errorf("ledger depth %d does not match configured depth %d", f.Depth, params.CommitmentTreeDepth)
	}
	tree, err := arm.NewCommitmentTree(f.Depth, f.Commitments...)
	if err != nil {
		return nil, err
	}
	l := &Ledger{
		params:       params,
		tree:         tree,
		index:        make(map[digest.Digest]int, len(f.Commitments)),
		spent:        make(map[digest.Digest]struct{}, len(f.Nullifiers)),
		roots:        make(map[digest.Digest]struct{}, len(f.Roots)+1),
		history:      f.Roots,
		nullifiers:   f.Nullifiers,
		transactions: f.Transactions,
	}
	for i, cm := range f.Commitments {
		l.index[cm] = i
	}
	for _, nf := range f.Nullifiers {
		l.spent[nf] = struct{}{}
	}
	l.roots[arm.InitialRoot] = struct{}{}
	for _, r := range f.Roots {
		l.roots[r] = struct{}{}
	}
	if _, ok := l.roots[tree.Root()]; !ok {
		return nil, errors.Errorf("ledger root %s is not in its root history", tree.Root())
	}
	setSizes(len(l.index), len(l.spent))
	return l, nil
}
