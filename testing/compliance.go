package stakeberrytest

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/blockberries/stakeberry"
	"github.com/blockberries/stakeberry/server"
	"github.com/blockberries/stakeberry/types"
)

// RunComplianceSuite checks that an application behaves correctly under
// the lifecycle guard. factory must return a fresh instance per call.
func RunComplianceSuite(t *testing.T, factory func() stakeberry.Lifecycle) {
	t.Helper()

	garbage := types.Tx{0xFF, 0x00, 0x13, 0x37}

	t.Run("genesis_handshake", func(t *testing.T) {
		resp := NewHarness(t, factory()).GenesisDefault()
		if resp.LastBlock != nil {
			t.Error("genesis handshake should return nil LastBlock")
		}
		if resp.AppHash == nil {
			t.Error("genesis handshake should return an AppHash")
		}
	})

	t.Run("execute_commit_cycle", func(t *testing.T) {
		h := NewHarness(t, factory())
		h.GenesisDefault()
		for i := uint64(1); i <= 5; i++ {
			outcome := h.ExecuteAndCommit(MakeEmptyBlock(i))
			if outcome.AppHash == (types.AppHash{}) {
				t.Errorf("height %d: zero app hash", i)
			}
		}
	})

	t.Run("deterministic", func(t *testing.T) {
		h1 := NewHarness(t, factory())
		h1.GenesisDefault()
		h2 := NewHarness(t, factory())
		h2.GenesisDefault()

		blocks := []types.FinalizedBlock{
			MakeEmptyBlock(1),
			MakeBlock(2, garbage),
			MakeBlock(3, garbage, garbage),
		}
		for _, block := range blocks {
			o1 := h1.ExecuteAndCommit(block)
			o2 := h2.ExecuteAndCommit(block)
			if o1.AppHash != o2.AppHash {
				t.Errorf("height %d: non-deterministic: %x != %x", block.Height, o1.AppHash, o2.AppHash)
			}
			if len(o1.TxOutcomes) != len(o2.TxOutcomes) {
				t.Errorf("height %d: outcome count mismatch", block.Height)
			}
		}
	})

	t.Run("tx_outcome_indices", func(t *testing.T) {
		h := NewHarness(t, factory())
		h.GenesisDefault()
		outcome := h.ExecuteAndCommit(MakeBlock(1, garbage, garbage, garbage))
		if len(outcome.TxOutcomes) != 3 {
			t.Fatalf("expected 3 tx outcomes, got %d", len(outcome.TxOutcomes))
		}
		for i, o := range outcome.TxOutcomes {
			if o.Index != uint32(i) {
				t.Errorf("tx %d: expected index %d, got %d", i, i, o.Index)
			}
		}
	})

	t.Run("out_of_order_block_rejected", func(t *testing.T) {
		h := NewHarness(t, factory())
		h.GenesisDefault()
		_, err := h.Server().ExecuteBlock(context.Background(), MakeEmptyBlock(2))
		if !errors.Is(err, server.ErrUnexpectedHeight) {
			t.Fatalf("expected ErrUnexpectedHeight, got %v", err)
		}
		h.ExecuteAndCommit(MakeEmptyBlock(1))
	})

	t.Run("concurrent_reads_after_handshake", func(t *testing.T) {
		h := NewHarness(t, factory())
		h.GenesisDefault()

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				if _, err := h.Server().CheckTx(context.Background(), garbage, types.MempoolFirstSeen); err != nil {
					t.Errorf("concurrent CheckTx failed: %v", err)
				}
			}()
			go func() {
				defer wg.Done()
				if _, err := h.Server().Query(context.Background(), types.StateQuery{Path: "/compliance"}); err != nil {
					t.Errorf("concurrent Query failed: %v", err)
				}
			}()
		}
		wg.Wait()
	})

	t.Run("query_returns_height", func(t *testing.T) {
		h := NewHarness(t, factory())
		h.GenesisDefault()
		h.ExecuteAndCommit(MakeEmptyBlock(1))
		h.ExecuteAndCommit(MakeEmptyBlock(2))
		if got := h.Query("/compliance", nil).Height; got != 2 {
			t.Errorf("query height should be 2 after two commits, got %d", got)
		}
	})
}
