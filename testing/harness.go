package stakeberrytest

import (
	"context"
	"testing"
	"time"

	"github.com/blockberries/stakeberry"
	"github.com/blockberries/stakeberry/ledger"
	"github.com/blockberries/stakeberry/server"
	"github.com/blockberries/stakeberry/types"
)

// GenesisTime is the genesis time used by DefaultGenesis and MakeBlock.
var GenesisTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Harness drives an application through the lifecycle guard and fails
// the test on any transport-level error.
type Harness struct {
	t   testing.TB
	srv *server.Server
}

// NewHarness creates a harness wrapping app.
func NewHarness(t testing.TB, app stakeberry.Lifecycle, opts ...server.Option) *Harness {
	t.Helper()
	return &Harness{t: t, srv: server.New(app, opts...)}
}

// Server returns the underlying server.
func (h *Harness) Server() *server.Server {
	return h.srv
}

// Genesis performs a genesis handshake.
func (h *Harness) Genesis(genesis types.GenesisDoc) types.HandshakeResponse {
	h.t.Helper()
	resp, err := h.srv.Handshake(context.Background(), types.HandshakeRequest{Genesis: &genesis})
	if err != nil {
		h.t.Fatalf("Handshake (genesis) failed: %v", err)
	}
	return resp
}

// GenesisDefault performs a genesis handshake with DefaultGenesis.
func (h *Harness) GenesisDefault() types.HandshakeResponse {
	h.t.Helper()
	return h.Genesis(DefaultGenesis())
}

// GenesisWithAppState performs a genesis handshake carrying appState.
func (h *Harness) GenesisWithAppState(appState []byte) types.HandshakeResponse {
	h.t.Helper()
	doc := DefaultGenesis()
	doc.AppState = appState
	return h.Genesis(doc)
}

// Restart performs a restart handshake at block.
func (h *Harness) Restart(block types.BlockID) types.HandshakeResponse {
	h.t.Helper()
	resp, err := h.srv.Handshake(context.Background(), types.HandshakeRequest{LastCommitted: &block})
	if err != nil {
		h.t.Fatalf("Handshake (restart) failed: %v", err)
	}
	return resp
}

// ExecuteBlock executes a block without committing.
func (h *Harness) ExecuteBlock(block types.FinalizedBlock) types.BlockOutcome {
	h.t.Helper()
	outcome, err := h.srv.ExecuteBlock(context.Background(), block)
	if err != nil {
		h.t.Fatalf("ExecuteBlock (height=%d) failed: %v", block.Height, err)
	}
	return outcome
}

// Commit commits the last executed block.
func (h *Harness) Commit() types.CommitResult {
	h.t.Helper()
	result, err := h.srv.Commit(context.Background())
	if err != nil {
		h.t.Fatalf("Commit failed: %v", err)
	}
	return result
}

// ExecuteAndCommit executes and commits block.
func (h *Harness) ExecuteAndCommit(block types.FinalizedBlock) types.BlockOutcome {
	h.t.Helper()
	outcome := h.ExecuteBlock(block)
	h.Commit()
	return outcome
}

// CheckTx gate-checks a first-seen transaction.
func (h *Harness) CheckTx(tx types.Tx) types.GateVerdict {
	h.t.Helper()
	return h.checkTx(tx, types.MempoolFirstSeen)
}

// RecheckTx re-validates a previously admitted transaction.
func (h *Harness) RecheckTx(tx types.Tx) types.GateVerdict {
	h.t.Helper()
	return h.checkTx(tx, types.MempoolRevalidation)
}

func (h *Harness) checkTx(tx types.Tx, mctx types.MempoolContext) types.GateVerdict {
	h.t.Helper()
	verdict, err := h.srv.CheckTx(context.Background(), tx, mctx)
	if err != nil {
		h.t.Fatalf("CheckTx failed: %v", err)
	}
	return verdict
}

// Query reads committed state.
func (h *Harness) Query(path types.QueryPath, data []byte) types.StateQueryResult {
	h.t.Helper()
	result, err := h.srv.Query(context.Background(), types.StateQuery{Path: path, Data: data})
	if err != nil {
		h.t.Fatalf("Query failed: %v", err)
	}
	return result
}

// Simulate dry-runs tx.
func (h *Harness) Simulate(tx types.Tx) types.TxOutcome {
	h.t.Helper()
	outcome, err := h.srv.Simulate(context.Background(), tx)
	if err != nil {
		h.t.Fatalf("Simulate failed: %v", err)
	}
	return outcome
}

// MustAcceptTx asserts that tx is admitted.
func (h *Harness) MustAcceptTx(tx types.Tx) types.GateVerdict {
	h.t.Helper()
	v := h.CheckTx(tx)
	if !v.Accepted() {
		h.t.Fatalf("expected tx accepted, got code=%d info=%q", v.Code, v.Info)
	}
	return v
}

// MustRejectTx asserts that tx is rejected and returns the verdict.
func (h *Harness) MustRejectTx(tx types.Tx) types.GateVerdict {
	h.t.Helper()
	v := h.CheckTx(tx)
	if v.Accepted() {
		h.t.Fatal("expected tx rejected, got accepted")
	}
	return v
}

// --- Factories ---

// DefaultGenesis returns a minimal genesis document with no app state.
func DefaultGenesis() types.GenesisDoc {
	return types.GenesisDoc{
		ChainID:       "test-chain",
		GenesisTime:   types.TimeToTimestamp(GenesisTime),
		InitialHeight: 1,
	}
}

// MakeBlock creates a block at height, timed five seconds per height
// after GenesisTime.
func MakeBlock(height uint64, txs ...types.Tx) types.FinalizedBlock {
	at := GenesisTime.Add(time.Duration(height) * 5 * time.Second)
	return MakeBlockAt(height, at.Unix(), txs...)
}

// MakeBlockAt creates a block at height with the given unix time.
func MakeBlockAt(height uint64, unix int64, txs ...types.Tx) types.FinalizedBlock {
	return types.FinalizedBlock{
		Height: height,
		Time:   types.UnixTimestamp(unix),
		Txs:    txs,
	}
}

// MakeEmptyBlock creates an empty block at height.
func MakeEmptyBlock(height uint64) types.FinalizedBlock {
	return MakeBlock(height)
}

// EncodeTx encodes ins as a transaction.
func EncodeTx(t testing.TB, ins ledger.Instruction) types.Tx {
	t.Helper()
	data, err := ins.Encode()
	if err != nil {
		t.Fatalf("encode instruction: %v", err)
	}
	return data
}
