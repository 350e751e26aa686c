// Package stakeberry defines the boundary between a block-driven host
// runtime and the staking application.
//
// The host drives every application through [Lifecycle]. Dry-run
// execution is an optional capability, discovered via Go type assertion
// at handshake time.
package stakeberry

import (
	"context"

	"github.com/blockberries/stakeberry/types"
)

// Lifecycle is the interface every application must implement.
//
// The host guarantees the following call order:
//  1. Handshake is called exactly once, before anything else.
//  2. ExecuteBlock(h) is called exactly once per committed height h.
//  3. Commit is called exactly once after each ExecuteBlock.
//  4. CheckTx, Query may be called concurrently at any time after Handshake.
type Lifecycle interface {
	// Handshake is called once on every startup.
	//
	// If LastCommitted is nil the chain is fresh and Genesis is set.
	// The application reports its own last committed block so the host
	// can detect divergence.
	Handshake(ctx context.Context, req types.HandshakeRequest) (types.HandshakeResponse, error)

	// CheckTx gate-checks a transaction before it enters the mempool.
	// It MUST be safe for concurrent use.
	CheckTx(ctx context.Context, tx types.Tx, mctx types.MempoolContext) (types.GateVerdict, error)

	// ExecuteBlock deterministically executes a finalized block.
	//
	// Every transaction is executed in order. Nothing is persisted until
	// Commit. All correct nodes executing the same block must produce the
	// same AppHash.
	ExecuteBlock(ctx context.Context, block types.FinalizedBlock) (types.BlockOutcome, error)

	// Commit persists the state produced by the last ExecuteBlock.
	// Either all changes land or none do.
	Commit(ctx context.Context) (types.CommitResult, error)

	// Query reads the last committed state. It MUST be safe for
	// concurrent use, including concurrently with ExecuteBlock.
	Query(ctx context.Context, req types.StateQuery) (types.StateQueryResult, error)
}

// Simulator dry-runs transactions.
//
// Declared via: types.CapSimulation in HandshakeResponse.Capabilities
type Simulator interface {
	// Simulate executes tx against committed state without persisting
	// any changes. It MUST be safe for concurrent use.
	Simulate(ctx context.Context, tx types.Tx) (types.TxOutcome, error)
}

// Application is a Lifecycle that also supports simulation.
type Application interface {
	Lifecycle
	Simulator
}

// Connection is a transport-agnostic connection to an application.
// Both gRPC clients and in-process adapters implement it.
type Connection interface {
	Lifecycle

	// Capabilities returns the capabilities discovered at handshake.
	// Must only be called after Handshake completes.
	Capabilities() types.Capabilities

	// AsSimulator returns the Simulator interface if available.
	AsSimulator() Simulator

	// Close terminates the connection.
	Close() error
}
