package server

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/blockberries/stakeberry"
	"github.com/blockberries/stakeberry/types"
)

var (
	// ErrUnexpectedHeight is returned when the host delivers a block out
	// of sequence.
	ErrUnexpectedHeight = errors.New("stakeberry: unexpected block height")
	// ErrUnsupported is returned for a capability the app did not declare.
	ErrUnsupported = errors.New("stakeberry: capability not supported")
)

// Server wraps an application with lifecycle enforcement and
// capability routing.
type Server struct {
	app       stakeberry.Lifecycle
	simulator stakeberry.Simulator
	guard     *LifecycleGuard
	caps      types.Capabilities
	logger    zerolog.Logger

	// Guarded by mu. pending is the outcome held between ExecuteBlock
	// and Commit; next is the height the host must deliver next.
	mu            sync.Mutex
	pending       *types.BlockOutcome
	pendingHeight uint64
	next          uint64
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger used for capability warnings.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// New creates a Server wrapping app.
func New(app stakeberry.Lifecycle, opts ...Option) *Server {
	s := &Server{
		app:    app,
		guard:  NewLifecycleGuard(),
		logger: zerolog.Nop(),
	}
	s.simulator, _ = app.(stakeberry.Simulator)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handshake performs the startup handshake, validates the declared
// capabilities and moves the lifecycle to Ready.
func (s *Server) Handshake(ctx context.Context, req types.HandshakeRequest) (types.HandshakeResponse, error) {
	s.guard.AcquireHandshake()

	resp, err := s.app.Handshake(ctx, req)
	if err != nil {
		s.guard.FailHandshake()
		return resp, err
	}
	if err := s.discoverCapabilities(resp.Capabilities); err != nil {
		s.guard.FailHandshake()
		return resp, err
	}

	next := firstHeight(req, resp)
	s.mu.Lock()
	s.next = next
	s.mu.Unlock()

	s.caps = resp.Capabilities
	s.guard.CompleteHandshake()
	s.logger.Debug().Stringer("capabilities", s.caps).Uint64("next_height", next).Msg("handshake complete")
	return resp, nil
}

// firstHeight is the height the host must execute after handshake.
func firstHeight(req types.HandshakeRequest, resp types.HandshakeResponse) uint64 {
	switch {
	case resp.LastBlock != nil:
		return resp.LastBlock.Height + 1
	case req.Genesis != nil && req.Genesis.InitialHeight > 0:
		return req.Genesis.InitialHeight
	default:
		return 1
	}
}

// CheckTx gate-checks a transaction. Safe for concurrent use.
func (s *Server) CheckTx(ctx context.Context, tx types.Tx, mctx types.MempoolContext) (types.GateVerdict, error) {
	s.guard.CheckConcurrent()
	return s.app.CheckTx(ctx, tx, mctx)
}

// ExecuteBlock executes a finalized block. Blocks must arrive at
// consecutive heights.
func (s *Server) ExecuteBlock(ctx context.Context, block types.FinalizedBlock) (types.BlockOutcome, error) {
	s.guard.AcquireExecute()

	s.mu.Lock()
	next := s.next
	s.mu.Unlock()
	if block.Height != next {
		s.guard.FailExecute()
		return types.BlockOutcome{}, fmt.Errorf("%w: got %d, expected %d", ErrUnexpectedHeight, block.Height, next)
	}

	outcome, err := s.app.ExecuteBlock(ctx, block)
	if err != nil {
		s.guard.FailExecute()
		return outcome, err
	}

	s.mu.Lock()
	s.pending = &outcome
	s.pendingHeight = block.Height
	s.mu.Unlock()

	s.guard.CompleteExecute()
	return outcome, nil
}

// Commit persists the state from the last ExecuteBlock. A failed commit
// leaves the expected height unchanged.
func (s *Server) Commit(ctx context.Context) (types.CommitResult, error) {
	s.guard.AcquireCommit()
	defer s.guard.CompleteCommit()

	result, err := s.app.Commit(ctx)

	s.mu.Lock()
	if err == nil {
		s.next = s.pendingHeight + 1
	}
	s.pending = nil
	s.mu.Unlock()

	return result, err
}

// Query reads committed state. Safe for concurrent use.
func (s *Server) Query(ctx context.Context, req types.StateQuery) (types.StateQueryResult, error) {
	s.guard.CheckConcurrent()
	return s.app.Query(ctx, req)
}

// Simulate dry-runs tx if the app declared simulation.
// Safe for concurrent use.
func (s *Server) Simulate(ctx context.Context, tx types.Tx) (types.TxOutcome, error) {
	sim := s.AsSimulator()
	if sim == nil {
		return types.TxOutcome{}, fmt.Errorf("%w: Simulator", ErrUnsupported)
	}
	s.guard.CheckConcurrent()
	return sim.Simulate(ctx, tx)
}

// Capabilities returns the capabilities declared at handshake.
func (s *Server) Capabilities() types.Capabilities {
	return s.caps
}

// AsSimulator returns the Simulator if it was declared, or nil.
func (s *Server) AsSimulator() stakeberry.Simulator {
	if s.caps.Has(types.CapSimulation) {
		return s.simulator
	}
	return nil
}

// LastOutcome returns the outcome pending Commit, or nil.
func (s *Server) LastOutcome() *types.BlockOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// NextHeight returns the height the next ExecuteBlock must carry.
func (s *Server) NextHeight() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// Close is a no-op for the server wrapper.
func (s *Server) Close() error { return nil }

// simulatorSource is a connection that offers simulation only once its
// handshake has settled the capabilities, such as a remote client.
type simulatorSource interface {
	AsSimulator() stakeberry.Simulator
}

// discoverCapabilities checks the declared bitfield against the
// interfaces the app implements.
func (s *Server) discoverCapabilities(declared types.Capabilities) error {
	if src, ok := s.app.(simulatorSource); ok && s.simulator == nil {
		s.simulator = src.AsSimulator()
	}
	hasSimulator := s.simulator != nil
	if declared.Has(types.CapSimulation) && !hasSimulator {
		return fmt.Errorf("stakeberry: app declared CapSimulation but does not implement Simulator")
	}
	if !declared.Has(types.CapSimulation) && hasSimulator {
		s.logger.Warn().Msg("app implements Simulator but did not declare it; capability will not be used")
	}
	return nil
}

var _ stakeberry.Connection = (*Server)(nil)
