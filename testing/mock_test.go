package stakeberrytest

import (
	"context"
	"testing"

	"github.com/blockberries/stakeberry"
	"github.com/blockberries/stakeberry/types"
)

func TestMockApp_Compliance(t *testing.T) {
	RunComplianceSuite(t, func() stakeberry.Lifecycle {
		return &MockApp{}
	})
}

func TestMockApp_Overrides(t *testing.T) {
	app := &MockApp{
		DeclaredCapabilities: types.CapSimulation,
		SimulateFn: func(_ context.Context, tx types.Tx) (types.TxOutcome, error) {
			return types.TxOutcome{Code: 9, Info: string(tx)}, nil
		},
	}
	h := NewHarness(t, app)
	resp := h.GenesisDefault()
	if !resp.Capabilities.Has(types.CapSimulation) {
		t.Fatal("expected CapSimulation")
	}

	out := h.Simulate(types.Tx("dry"))
	if out.Code != 9 || out.Info != "dry" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	h.ExecuteAndCommit(MakeBlockAt(1, 1_700_000_000))

	if app.HandshakeCalls.Load() != 1 || app.SimulateCalls.Load() != 1 {
		t.Fatal("call counters not updated")
	}
	if app.ExecuteBlockCalls.Load() != 1 || app.CommitCalls.Load() != 1 {
		t.Fatal("lifecycle counters not updated")
	}
}

func TestMakeBlock_Timing(t *testing.T) {
	b := MakeBlock(4)
	if got := b.Time.Seconds - GenesisTime.Unix(); got != 20 {
		t.Fatalf("block 4 should be 20s after genesis, got %d", got)
	}
	if MakeBlockAt(2, 300).Time.Seconds != 300 {
		t.Fatal("MakeBlockAt ignored the given time")
	}
}
