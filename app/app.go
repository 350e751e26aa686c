// Package app runs the staking ledger as a block-driven application.
//
// Each transaction carries one encoded ledger.Instruction. Blocks are
// executed against a staged copy of the committed accounts using the
// block time as the clock, and Commit swaps the staged copy in and
// persists it.
package app

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/blockberries/stakeberry"
	"github.com/blockberries/stakeberry/ledger"
	"github.com/blockberries/stakeberry/metrics"
	"github.com/blockberries/stakeberry/store"
	"github.com/blockberries/stakeberry/types"
)

var (
	_ stakeberry.Lifecycle = (*App)(nil)
	_ stakeberry.Simulator = (*App)(nil)
)

// ErrNothingToCommit is returned by Commit without a preceding
// ExecuteBlock.
var ErrNothingToCommit = errors.New("no executed block to commit")

// Gate priorities. Withdrawals go first so a stake in the same block
// cannot starve them.
const (
	PriorityUnstake int64 = 3
	PriorityStake   int64 = 2
	PriorityDefault int64 = 1
)

// state is one version of the application state.
type state struct {
	height   uint64
	hash     types.AppHash
	accounts *ledger.MemAccounts
}

// App is the staking application.
type App struct {
	ledger  *ledger.Ledger
	store   *store.Store
	metrics *metrics.Metrics
	logger  zerolog.Logger
	wall    ledger.Clock
	program ledger.Address
	chainID string

	mu      sync.RWMutex
	current *state
	staged  *state
}

// Option configures an App.
type Option func(*App)

// WithProgramID sets the program identity record addresses derive from.
func WithProgramID(id ledger.Address) Option {
	return func(a *App) { a.program = id }
}

// WithChainID makes genesis reject documents for any other chain.
func WithChainID(id string) Option {
	return func(a *App) { a.chainID = id }
}

// WithStore persists committed state to s and restores it on New.
func WithStore(s *store.Store) Option {
	return func(a *App) { a.store = s }
}

// WithMetrics records instrumentation to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(a *App) { a.logger = logger }
}

// WithClock sets the wall clock used by Simulate and the /points query.
// Block execution always uses block time.
func WithClock(c ledger.Clock) Option {
	return func(a *App) { a.wall = c }
}

// New creates the application. With a store, the last committed state
// is loaded from it.
func New(opts ...Option) (*App, error) {
	a := &App{
		logger:  zerolog.Nop(),
		wall:    ledger.SystemClock(),
		program: ledger.DefaultProgramID,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.ledger = ledger.New(a.program, ledger.WithLogger(a.logger.With().Str("module", "ledger").Logger()))

	accounts := ledger.NewMemAccounts()
	a.current = &state{hash: appHash(accounts), accounts: accounts}
	if a.store != nil {
		snap, err := a.store.Load()
		if err != nil {
			return nil, fmt.Errorf("load committed state: %w", err)
		}
		if snap.Height > 0 || len(snap.Accounts.Records) > 0 || len(snap.Accounts.Balances) > 0 {
			a.current = &state{height: snap.Height, hash: snap.AppHash, accounts: snap.Accounts}
			if got := appHash(snap.Accounts); got != snap.AppHash {
				return nil, stakeberry.NewHaltError(snap.Height,
					fmt.Sprintf("stored app hash %X does not match stored state %X", snap.AppHash, got))
			}
		}
	}
	return a, nil
}

// Ledger returns the ledger the app executes against.
func (a *App) Ledger() *ledger.Ledger {
	return a.ledger
}

// Height returns the last committed height.
func (a *App) Height() uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.current.height
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

func (a *App) Handshake(_ context.Context, req types.HandshakeRequest) (types.HandshakeResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if req.LastCommitted == nil {
		if err := a.initGenesis(req.Genesis); err != nil {
			return types.HandshakeResponse{}, err
		}
		h := a.current.hash
		return types.HandshakeResponse{AppHash: &h, Capabilities: types.CapSimulation}, nil
	}

	if a.current.height > req.LastCommitted.Height {
		return types.HandshakeResponse{}, stakeberry.NewHaltError(a.current.height,
			fmt.Sprintf("app is ahead of host (host at %d)", req.LastCommitted.Height))
	}
	h := a.current.hash
	resp := types.HandshakeResponse{AppHash: &h, Capabilities: types.CapSimulation}
	if a.current.height > 0 {
		resp.LastBlock = &types.BlockID{Height: a.current.height}
	}
	a.logger.Info().
		Uint64("app_height", a.current.height).
		Uint64("host_height", req.LastCommitted.Height).
		Msg("restart handshake")
	return resp, nil
}

// initGenesis loads the genesis balances. Must be called with mu held.
func (a *App) initGenesis(doc *types.GenesisDoc) error {
	if a.current.height > 0 {
		return stakeberry.NewHaltError(a.current.height, "genesis requested but app has committed state")
	}
	var raw []byte
	if doc != nil {
		if a.chainID != "" && doc.ChainID != a.chainID {
			return fmt.Errorf("%w: chain id %q, app configured for %q", ErrInvalidGenesis, doc.ChainID, a.chainID)
		}
		raw = doc.AppState
	}
	g, err := ParseGenesis(raw)
	if err != nil {
		return err
	}
	if g.ProgramID != "" {
		id, err := ledger.ParseAddress(g.ProgramID)
		if err != nil {
			return fmt.Errorf("%w: program_id: %v", ErrInvalidGenesis, err)
		}
		if id != a.program {
			return fmt.Errorf("%w: program_id %s, app built for %s", ErrInvalidGenesis, id, a.program)
		}
	}
	accounts, err := g.Accounts()
	if err != nil {
		return err
	}

	next := &state{hash: appHash(accounts), accounts: accounts}
	if a.store != nil {
		if err := a.store.Save(store.Snapshot{AppHash: next.hash, Accounts: accounts}, nil); err != nil {
			return err
		}
	}
	a.current = next
	a.logger.Info().Int("balances", len(accounts.Balances)).Msg("genesis loaded")
	return nil
}

func (a *App) CheckTx(_ context.Context, tx types.Tx, mctx types.MempoolContext) (types.GateVerdict, error) {
	ins, err := ledger.DecodeInstruction(tx)
	if err == nil {
		err = ins.ValidateBasic()
	}
	if err == nil && ins.Kind == ledger.KindUnstake && ins.Amount == 0 {
		err = ledger.ErrInvalidAmount
	}
	if err == nil && mctx == types.MempoolRevalidation && ins.Kind == ledger.KindCreateRecord {
		err = a.checkCreate(ins.Signer)
	}
	if err != nil {
		return types.Reject(ledger.Code(err), err.Error()), nil
	}

	priority := PriorityDefault
	switch ins.Kind {
	case ledger.KindUnstake:
		priority = PriorityUnstake
	case ledger.KindStake:
		priority = PriorityStake
	}
	return types.Admit(priority, ins.Signer.String()), nil
}

// checkCreate rejects a create for an owner whose record was committed
// since the tx was admitted.
func (a *App) checkCreate(owner ledger.Address) error {
	addr, _, err := a.ledger.RecordAddress(owner)
	if err != nil {
		return err
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if _, ok := a.current.accounts.Record(addr); ok {
		return fmt.Errorf("%w: %s", ledger.ErrAlreadyExists, addr)
	}
	return nil
}

func (a *App) ExecuteBlock(ctx context.Context, block types.FinalizedBlock) (types.BlockOutcome, error) {
	a.mu.RLock()
	accounts := a.current.accounts.Clone()
	a.mu.RUnlock()

	clock := ledger.FixedClock(block.Time.Seconds)
	outcomes := make([]types.TxOutcome, len(block.Txs))
	for i, tx := range block.Txs {
		if err := ctx.Err(); err != nil {
			return types.BlockOutcome{}, err
		}
		outcomes[i] = a.executeTx(accounts, clock, uint32(i), tx)
	}

	next := &state{height: block.Height, hash: appHash(accounts), accounts: accounts}
	a.mu.Lock()
	a.staged = next
	a.mu.Unlock()

	a.logger.Debug().
		Uint64("height", block.Height).
		Int("txs", len(block.Txs)).
		Hex("app_hash", next.hash[:]).
		Msg("block executed")
	return types.BlockOutcome{TxOutcomes: outcomes, AppHash: next.hash}, nil
}

// executeTx runs one transaction against accounts. A failed instruction
// leaves accounts unchanged.
func (a *App) executeTx(accounts ledger.Accounts, clock ledger.Clock, index uint32, tx types.Tx) types.TxOutcome {
	ins, err := ledger.DecodeInstruction(tx)
	if err != nil {
		a.metrics.ObserveInstruction("malformed", ledger.Code(err))
		return types.TxOutcome{Index: index, Code: ledger.Code(err), Info: err.Error()}
	}

	res, err := a.ledger.Execute(accounts, clock, ins)
	code := ledger.Code(err)
	a.metrics.ObserveInstruction(ins.Kind.String(), code)
	if err != nil {
		return types.TxOutcome{Index: index, Code: code, Info: err.Error()}
	}
	if res.Kind == ledger.KindClaimPoints {
		a.metrics.ObserveClaim(res.Amount)
	}
	return types.TxOutcome{
		Index:  index,
		Data:   res.State.Bytes(),
		Events: []types.Event{resultEvent(res)},
	}
}

func (a *App) Commit(_ context.Context) (types.CommitResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.staged == nil {
		return types.CommitResult{}, ErrNothingToCommit
	}
	start := time.Now()
	if a.store != nil {
		snap := store.Snapshot{Height: a.staged.height, AppHash: a.staged.hash, Accounts: a.staged.accounts}
		if err := a.store.Save(snap, a.current.accounts); err != nil {
			return types.CommitResult{}, err
		}
	}
	a.current = a.staged
	a.staged = nil
	a.metrics.ObserveCommit(a.current.height, time.Since(start))
	return types.CommitResult{}, nil
}

// ---------------------------------------------------------------------------
// Queries
// ---------------------------------------------------------------------------

// Query paths.
const (
	PathRecord  types.QueryPath = "/record"
	PathAddress types.QueryPath = "/address"
	PathBalance types.QueryPath = "/balance"
	PathPoints  types.QueryPath = "/points"
)

// Query result codes beyond the ledger's.
const (
	CodeUnknownPath uint32 = 100 + iota
	CodeBadQuery
	CodeHeightUnavailable
)

// Query reads committed state.
//
//	/record   data = record address  value = 65-byte record
//	/address  data = owner           value = record address ++ bump
//	/balance  data = any address     value = 8-byte big-endian balance
//	/points   data = record address  value = 8-byte big-endian points,
//	          settled to the wall clock without persisting
//
// Addresses are 32 raw bytes or base58 text.
func (a *App) Query(_ context.Context, req types.StateQuery) (types.StateQueryResult, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	cur := a.current
	res := types.StateQueryResult{Key: req.Data, Height: cur.height}
	if req.Height != nil && *req.Height != cur.height {
		res.Code, res.Info = CodeHeightUnavailable, fmt.Sprintf("only height %d is retained", cur.height)
		return res, nil
	}

	fail := func(code uint32, err error) (types.StateQueryResult, error) {
		res.Code, res.Info = code, err.Error()
		return res, nil
	}

	switch req.Path {
	case PathRecord, PathAddress, PathBalance, PathPoints:
	default:
		return fail(CodeUnknownPath, fmt.Errorf("unknown query path %q", req.Path))
	}
	addr, err := queryAddress(req.Data)
	if err != nil {
		return fail(CodeBadQuery, err)
	}

	switch req.Path {
	case PathRecord:
		rec, ok := cur.accounts.Record(addr)
		if !ok {
			return fail(ledger.CodeRecordNotFound, ledger.ErrRecordNotFound)
		}
		res.Value = rec.Bytes()

	case PathAddress:
		derived, bump, err := a.ledger.RecordAddress(addr)
		if err != nil {
			return fail(ledger.Code(err), err)
		}
		res.Value = append(derived[:], bump)

	case PathBalance:
		res.Value = encodeUint64(cur.accounts.Balance(addr))

	case PathPoints:
		rec, ok := cur.accounts.Record(addr)
		if !ok {
			return fail(ledger.CodeRecordNotFound, ledger.ErrRecordNotFound)
		}
		if err := ledger.Settle(&rec, a.wall.Now()); err != nil {
			return fail(ledger.Code(err), err)
		}
		res.Value = encodeUint64(rec.TotalPoints)
	}
	return res, nil
}

func queryAddress(data []byte) (ledger.Address, error) {
	if len(data) == ledger.AddressSize {
		return ledger.Address(data), nil
	}
	return ledger.ParseAddress(string(data))
}

func encodeUint64(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

// ---------------------------------------------------------------------------
// Simulator
// ---------------------------------------------------------------------------

// Simulate executes tx against a copy of committed state at wall-clock
// time. Nothing is persisted and no metrics are recorded.
func (a *App) Simulate(_ context.Context, tx types.Tx) (types.TxOutcome, error) {
	a.mu.RLock()
	accounts := a.current.accounts.Clone()
	a.mu.RUnlock()

	ins, err := ledger.DecodeInstruction(tx)
	if err != nil {
		return types.TxOutcome{Code: ledger.Code(err), Info: err.Error()}, nil
	}
	res, err := a.ledger.Execute(accounts, a.wall, ins)
	if err != nil {
		return types.TxOutcome{Code: ledger.Code(err), Info: err.Error()}, nil
	}
	return types.TxOutcome{Data: res.State.Bytes(), Events: []types.Event{resultEvent(res)}}, nil
}
