// Package local provides an in-process connection to an application
// compiled into the same binary as the host. Calls go through the
// lifecycle guard without any serialization.
package local

import (
	"context"

	"github.com/blockberries/stakeberry"
	"github.com/blockberries/stakeberry/server"
	"github.com/blockberries/stakeberry/types"
)

var _ stakeberry.Connection = (*Connection)(nil)

// Connection wraps a local application with lifecycle enforcement.
type Connection struct {
	srv *server.Server
}

// NewConnection creates an in-process connection to app.
func NewConnection(app stakeberry.Lifecycle, opts ...server.Option) *Connection {
	return &Connection{srv: server.New(app, opts...)}
}

func (c *Connection) Handshake(ctx context.Context, req types.HandshakeRequest) (types.HandshakeResponse, error) {
	return c.srv.Handshake(ctx, req)
}

func (c *Connection) CheckTx(ctx context.Context, tx types.Tx, mctx types.MempoolContext) (types.GateVerdict, error) {
	return c.srv.CheckTx(ctx, tx, mctx)
}

func (c *Connection) ExecuteBlock(ctx context.Context, block types.FinalizedBlock) (types.BlockOutcome, error) {
	return c.srv.ExecuteBlock(ctx, block)
}

func (c *Connection) Commit(ctx context.Context) (types.CommitResult, error) {
	return c.srv.Commit(ctx)
}

func (c *Connection) Query(ctx context.Context, req types.StateQuery) (types.StateQueryResult, error) {
	return c.srv.Query(ctx, req)
}

func (c *Connection) Capabilities() types.Capabilities {
	return c.srv.Capabilities()
}

func (c *Connection) AsSimulator() stakeberry.Simulator {
	if c.srv.AsSimulator() == nil {
		return nil
	}
	return c.srv
}

func (c *Connection) Close() error { return nil }

// Server returns the underlying server.
func (c *Connection) Server() *server.Server {
	return c.srv
}
