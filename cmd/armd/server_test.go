package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resourcemachine/internal/ledger"
	"resourcemachine/internal/transactions/transfer"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.LedgerPath = filepath.Join(dir, "ledger.json")
	cfg.EnableAudit = false
	cfg.DevMode = true
	cfg.BurstRequests = 2
	cfg.RequestsPerSec = 1
	log, err := NewLogger("error", "", "", io.Discard)
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })
	app, err := NewApp(cfg, log)
	require.NoError(t, err)
	return app
}

func TestServerRootAndHealth(t *testing.T) {
	app := newTestApp(t)
	h := NewServer(app).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/root", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, app.ledger.Root().String(), body["root"])

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var health SystemHealth
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, Healthy, health.Status)
	assert.Len(t, health.Components, 2)
}

func TestServerSubmit(t *testing.T) {
	app := newTestApp(t)
	s := NewServer(app)
	now := time.Now()
	s.limiter.now = func() time.Time { return now }
	h := s.Handler()
	token, err := app.cfg.Token()
	require.NoError(t, err)
	alice, err := transfer.NewAccount()
	require.NoError(t, err)

	minted, err := transfer.NewBuilder(app.params, token).
		Mint(context.Background(), transfer.Address20{1}, alice.Address(), 5, app.ledger.Root())
	require.NoError(t, err)
	body, err := json.Marshal(minted.Tx)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/transactions", bytes.NewReader(body)))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.True(t, app.ledger.HasCommitment(minted.Created[0].Commitment()))
	assert.FileExists(t, app.cfg.LedgerPath)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/transactions", bytes.NewReader(body)))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/transactions", bytes.NewReader([]byte("{"))))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestServerRejectsGarbage(t *testing.T) {
	app := newTestApp(t)
	h := NewServer(app).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/transactions", bytes.NewReader([]byte("not json"))))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitStatus(t *testing.T) {
	assert.Equal(t, http.StatusConflict, submitStatus(ledger.ErrDoubleSpend))
	assert.Equal(t, http.StatusConflict, submitStatus(ledger.ErrUnknownRoot))
	assert.Equal(t, http.StatusGatewayTimeout, submitStatus(context.DeadlineExceeded))
}

func TestRateLimiter(t *testing.T) {
	now := time.Unix(0, 0)
	rl := NewRateLimiter(1, 2)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))

	now = now.Add(time.Second)
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))

	now = now.Add(10 * time.Second)
	rl.Prune()
	assert.Empty(t, rl.buckets)
}
