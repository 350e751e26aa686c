package server

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/blockberries/stakeberry"
	"github.com/blockberries/stakeberry/types"
)

// testApp is a minimal app defined here to avoid an import cycle with
// the testing package.
type testApp struct {
	caps      types.Capabilities
	lastBlock *types.BlockID
	commitErr error
	executed  []uint64
}

var (
	_ stakeberry.Lifecycle = (*testApp)(nil)
	_ stakeberry.Simulator = (*testApp)(nil)
)

func (a *testApp) Handshake(_ context.Context, _ types.HandshakeRequest) (types.HandshakeResponse, error) {
	return types.HandshakeResponse{LastBlock: a.lastBlock, Capabilities: a.caps}, nil
}

func (a *testApp) CheckTx(_ context.Context, _ types.Tx, _ types.MempoolContext) (types.GateVerdict, error) {
	return types.GateVerdict{}, nil
}

func (a *testApp) ExecuteBlock(_ context.Context, block types.FinalizedBlock) (types.BlockOutcome, error) {
	a.executed = append(a.executed, block.Height)
	outcomes := make([]types.TxOutcome, len(block.Txs))
	for i := range block.Txs {
		outcomes[i] = types.TxOutcome{Index: uint32(i)}
	}
	return types.BlockOutcome{TxOutcomes: outcomes, AppHash: types.AppHash{0x01}}, nil
}

func (a *testApp) Commit(_ context.Context) (types.CommitResult, error) {
	return types.CommitResult{}, a.commitErr
}

func (a *testApp) Query(_ context.Context, _ types.StateQuery) (types.StateQueryResult, error) {
	return types.StateQueryResult{}, nil
}

func (a *testApp) Simulate(_ context.Context, _ types.Tx) (types.TxOutcome, error) {
	return types.TxOutcome{Info: "simulated"}, nil
}

// lifecycleOnly hides the Simulator method.
type lifecycleOnly struct{ stakeberry.Lifecycle }

func genesis(t *testing.T, srv *Server, initial uint64) {
	t.Helper()
	_, err := srv.Handshake(context.Background(), types.HandshakeRequest{
		Genesis: &types.GenesisDoc{ChainID: "test", InitialHeight: initial},
	})
	if err != nil {
		t.Fatalf("handshake failed: %v", err)
	}
}

func TestServer_ExecuteCommitCycle(t *testing.T) {
	srv := New(&testApp{})
	genesis(t, srv, 1)

	outcome, err := srv.ExecuteBlock(context.Background(), types.FinalizedBlock{Height: 1, Txs: []types.Tx{{0x01}}})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if len(outcome.TxOutcomes) != 1 {
		t.Fatalf("expected 1 tx outcome, got %d", len(outcome.TxOutcomes))
	}
	if srv.LastOutcome() == nil {
		t.Fatal("expected pending outcome between execute and commit")
	}
	if _, err := srv.Commit(context.Background()); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if srv.LastOutcome() != nil {
		t.Fatal("expected no pending outcome after commit")
	}
	if srv.NextHeight() != 2 {
		t.Fatalf("expected next height 2, got %d", srv.NextHeight())
	}
}

func TestServer_HeightSequencing(t *testing.T) {
	app := &testApp{}
	srv := New(app)
	genesis(t, srv, 5)

	_, err := srv.ExecuteBlock(context.Background(), types.FinalizedBlock{Height: 1})
	if !errors.Is(err, ErrUnexpectedHeight) {
		t.Fatalf("expected ErrUnexpectedHeight, got %v", err)
	}
	if len(app.executed) != 0 {
		t.Fatal("out-of-sequence block reached the app")
	}

	// The guard is back in Ready, so the right block still executes.
	if _, err := srv.ExecuteBlock(context.Background(), types.FinalizedBlock{Height: 5}); err != nil {
		t.Fatalf("execute failed: %v", err)
	}
}

func TestServer_RestartResumesAfterLastBlock(t *testing.T) {
	srv := New(&testApp{lastBlock: &types.BlockID{Height: 9}})
	last := types.BlockID{Height: 9}
	if _, err := srv.Handshake(context.Background(), types.HandshakeRequest{LastCommitted: &last}); err != nil {
		t.Fatalf("handshake failed: %v", err)
	}
	if srv.NextHeight() != 10 {
		t.Fatalf("expected next height 10, got %d", srv.NextHeight())
	}
}

func TestServer_FailedCommitKeepsHeight(t *testing.T) {
	app := &testApp{commitErr: errors.New("disk full")}
	srv := New(app)
	genesis(t, srv, 1)

	if _, err := srv.ExecuteBlock(context.Background(), types.FinalizedBlock{Height: 1}); err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if _, err := srv.Commit(context.Background()); err == nil {
		t.Fatal("expected commit error")
	}
	if srv.NextHeight() != 1 {
		t.Fatalf("expected next height 1, got %d", srv.NextHeight())
	}

	app.commitErr = nil
	if _, err := srv.ExecuteBlock(context.Background(), types.FinalizedBlock{Height: 1}); err != nil {
		t.Fatalf("re-execute failed: %v", err)
	}
}

func TestServer_CheckTxConcurrent(t *testing.T) {
	srv := New(&testApp{})
	genesis(t, srv, 1)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := srv.CheckTx(context.Background(), types.Tx{0x01}, types.MempoolFirstSeen); err != nil {
				t.Errorf("CheckTx error: %v", err)
			}
		}()
	}
	wg.Wait()
}

func TestServer_SimulationGating(t *testing.T) {
	srv := New(&testApp{})
	genesis(t, srv, 1)
	if srv.AsSimulator() != nil {
		t.Fatal("expected nil Simulator when not declared")
	}
	if _, err := srv.Simulate(context.Background(), types.Tx{1}); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}

	srv = New(&testApp{caps: types.CapSimulation})
	genesis(t, srv, 1)
	out, err := srv.Simulate(context.Background(), types.Tx{1})
	if err != nil {
		t.Fatalf("simulate failed: %v", err)
	}
	if out.Info != "simulated" {
		t.Fatalf("unexpected outcome %+v", out)
	}
}

func TestServer_UndeliverableCapability(t *testing.T) {
	app := lifecycleOnly{&testApp{caps: types.CapSimulation}}
	srv := New(app)
	_, err := srv.Handshake(context.Background(), types.HandshakeRequest{Genesis: &types.GenesisDoc{}})
	if err == nil {
		t.Fatal("expected error for declared but unimplemented Simulator")
	}
	if srv.guard.State() != "Init" {
		t.Fatalf("expected Init after failed handshake, got %s", srv.guard.State())
	}
}

// handshakeSimulator exposes simulation only through AsSimulator, and
// only after its own handshake has declared it.
type handshakeSimulator struct {
	stakeberry.Lifecycle
	inner *Server
}

func (c handshakeSimulator) AsSimulator() stakeberry.Simulator { return c.inner.AsSimulator() }

func TestServer_SimulatorFromConnection(t *testing.T) {
	inner := New(&testApp{caps: types.CapSimulation})
	srv := New(handshakeSimulator{Lifecycle: inner, inner: inner})
	genesis(t, srv, 1)

	if !srv.Capabilities().Has(types.CapSimulation) {
		t.Fatalf("capabilities = %v", srv.Capabilities())
	}
	out, err := srv.Simulate(context.Background(), types.Tx{1})
	if err != nil {
		t.Fatalf("simulate failed: %v", err)
	}
	if out.Info != "simulated" {
		t.Fatalf("unexpected outcome %+v", out)
	}
}
