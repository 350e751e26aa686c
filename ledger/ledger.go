// Package ledger implements the time-weighted staking state machine.
//
// Each owner has one StakeRecord stored at an address derived from the
// owner and the program identity. Staked funds move between the owner's
// external balance and the custody balance held at the record address.
// While funds are staked the record accrues points at one point per
// staked unit per second.
//
// Every operation settles accrued points against the current clock
// reading before it touches the staked amount, and every operation is
// atomic: on error nothing it wrote is visible.
package ledger

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Ledger executes staking instructions for one program identity.
// It holds no state of its own and is safe for concurrent use; callers
// serialize access to the Accounts they pass in.
type Ledger struct {
	program Address
	logger  zerolog.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// New creates a Ledger for the given program identity.
func New(program Address, opts ...Option) *Ledger {
	l := &Ledger{
		program: program,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ProgramID returns the program identity addresses are derived under.
func (l *Ledger) ProgramID() Address {
	return l.program
}

// RecordAddress returns the canonical record address and bump for owner.
func (l *Ledger) RecordAddress(owner Address) (Address, uint8, error) {
	return FindAddress(l.program, owner)
}

// Result describes the effect of a successful instruction.
type Result struct {
	Kind   Kind
	Owner  Address
	Record Address
	// Amount is the quantity moved (stake, unstake) or the points
	// paid out (claim).
	Amount uint64
	// State is the record after the operation.
	State StakeRecord
}

// Execute reads the clock once and dispatches the instruction.
func (l *Ledger) Execute(acc Accounts, clock Clock, ins Instruction) (Result, error) {
	if err := ins.ValidateBasic(); err != nil {
		return Result{}, err
	}
	now := clock.Now()

	switch ins.Kind {
	case KindCreateRecord:
		return l.CreateRecord(acc, ins.Signer, ins.Record, now)
	case KindStake:
		return l.Stake(acc, ins.Signer, ins.Record, ins.Amount, now)
	case KindUnstake:
		return l.Unstake(acc, ins.Signer, ins.Record, ins.Amount, now)
	case KindClaimPoints:
		return l.ClaimPoints(acc, ins.Signer, ins.Record, now)
	case KindGetPoints:
		return l.GetPoints(acc, ins.Signer, ins.Record, now)
	default:
		return Result{}, fmt.Errorf("%w: kind %d", ErrUnknownInstruction, uint8(ins.Kind))
	}
}

// CreateRecord creates owner's record at its derived address. If record
// is non-zero it must equal the derived address.
func (l *Ledger) CreateRecord(acc Accounts, owner, record Address, now int64) (Result, error) {
	addr, bump, err := l.RecordAddress(owner)
	if err != nil {
		return Result{}, err
	}
	if !record.IsZero() && record != addr {
		return Result{}, fmt.Errorf("%w: expected %s, got %s", ErrAddressMismatch, addr, record)
	}
	if _, ok := acc.Record(addr); ok {
		return Result{}, fmt.Errorf("%w: %s", ErrAlreadyExists, addr)
	}

	rec := NewStakeRecord(owner, bump, now)
	acc.SetRecord(addr, rec)

	l.logger.Debug().Stringer("owner", owner).Stringer("record", addr).Msg("stake record created")
	return Result{Kind: KindCreateRecord, Owner: owner, Record: addr, State: rec}, nil
}

// Stake settles the record, moves amount from the caller's balance into
// custody and adds it to the staked amount. A zero amount is allowed and
// only settles.
func (l *Ledger) Stake(acc Accounts, caller, record Address, amount uint64, now int64) (Result, error) {
	rec, err := l.authorize(acc, caller, record)
	if err != nil {
		return Result{}, err
	}

	ov := newOverlay(acc)
	if err := Settle(&rec, now); err != nil {
		return Result{}, err
	}
	if err := transfer(ov, caller, record, amount); err != nil {
		return Result{}, err
	}
	staked, ok := AddUint64(rec.StakedAmount, amount)
	if !ok {
		return Result{}, ErrMathOverflow
	}
	rec.StakedAmount = staked
	ov.SetRecord(record, rec)
	ov.flush()

	return Result{Kind: KindStake, Owner: caller, Record: record, Amount: amount, State: rec}, nil
}

// Unstake settles the record, moves amount from custody back to the
// caller and subtracts it from the staked amount.
//
// The staked amount must be strictly greater than amount, so the last
// unit of a stake cannot be withdrawn.
func (l *Ledger) Unstake(acc Accounts, caller, record Address, amount uint64, now int64) (Result, error) {
	rec, err := l.authorize(acc, caller, record)
	if err != nil {
		return Result{}, err
	}
	if amount == 0 {
		return Result{}, ErrInvalidAmount
	}
	if rec.StakedAmount <= amount {
		return Result{}, fmt.Errorf("%w: staked %d, requested %d", ErrInsufficientStake, rec.StakedAmount, amount)
	}

	if err := Settle(&rec, now); err != nil {
		return Result{}, err
	}

	custody := acc.Balance(record)
	if custody < amount {
		return Result{}, fmt.Errorf("%w: custody holds %d, requested %d", ErrInsufficientStake, custody, amount)
	}
	newCustody, ok := subUint64(custody, amount)
	if !ok {
		return Result{}, ErrMathOverflow
	}
	newCaller, ok := AddUint64(acc.Balance(caller), amount)
	if !ok {
		return Result{}, ErrMathOverflow
	}
	staked, ok := subUint64(rec.StakedAmount, amount)
	if !ok {
		return Result{}, ErrMathOverflow
	}
	rec.StakedAmount = staked

	ov := newOverlay(acc)
	ov.SetBalance(record, newCustody)
	ov.SetBalance(caller, newCaller)
	ov.SetRecord(record, rec)
	ov.flush()

	return Result{Kind: KindUnstake, Owner: caller, Record: record, Amount: amount, State: rec}, nil
}

// ClaimPoints settles the record and resets its points to zero. The
// settled points are reported in Result.Amount; paying them out is up
// to the caller.
func (l *Ledger) ClaimPoints(acc Accounts, caller, record Address, now int64) (Result, error) {
	rec, err := l.authorize(acc, caller, record)
	if err != nil {
		return Result{}, err
	}
	if err := Settle(&rec, now); err != nil {
		return Result{}, err
	}
	claimed := rec.TotalPoints
	rec.TotalPoints = 0
	acc.SetRecord(record, rec)

	l.logger.Info().Stringer("owner", caller).Uint64("points", claimed).Msg("points claimed")
	return Result{Kind: KindClaimPoints, Owner: caller, Record: record, Amount: claimed, State: rec}, nil
}

// GetPoints settles the record and persists it, leaving points in place.
func (l *Ledger) GetPoints(acc Accounts, caller, record Address, now int64) (Result, error) {
	rec, err := l.authorize(acc, caller, record)
	if err != nil {
		return Result{}, err
	}
	if err := Settle(&rec, now); err != nil {
		return Result{}, err
	}
	acc.SetRecord(record, rec)
	return Result{Kind: KindGetPoints, Owner: caller, Record: record, Amount: rec.TotalPoints, State: rec}, nil
}

// authorize loads the record at addr and checks that caller owns it and
// that addr is the address derived from the stored owner and bump.
func (l *Ledger) authorize(acc Accounts, caller, addr Address) (StakeRecord, error) {
	rec, ok := acc.Record(addr)
	if !ok {
		return StakeRecord{}, fmt.Errorf("%w: %s", ErrRecordNotFound, addr)
	}
	if rec.Owner != caller {
		return StakeRecord{}, ErrNotOwner
	}
	derived, err := DeriveAddress(l.program, rec.Owner, rec.Bump)
	if err != nil || derived != addr {
		return StakeRecord{}, fmt.Errorf("%w: %s", ErrAddressMismatch, addr)
	}
	return rec, nil
}

// transfer moves amount between two external balances.
func transfer(acc Accounts, from, to Address, amount uint64) error {
	if amount == 0 || from == to {
		return nil
	}
	fromBal := acc.Balance(from)
	if fromBal < amount {
		return fmt.Errorf("%w: %s holds %d, needs %d", ErrInsufficientFunds, from, fromBal, amount)
	}
	newFrom, ok := subUint64(fromBal, amount)
	if !ok {
		return ErrMathOverflow
	}
	newTo, ok := AddUint64(acc.Balance(to), amount)
	if !ok {
		return ErrMathOverflow
	}
	acc.SetBalance(from, newFrom)
	acc.SetBalance(to, newTo)
	return nil
}
