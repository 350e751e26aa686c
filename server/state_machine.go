// Package server wraps an application with lifecycle enforcement and
// capability routing. The host talks to the application only through it.
package server

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// phase is a state of the lifecycle state machine.
type phase uint32

const (
	// phaseInit: waiting for Handshake. Nothing else is allowed.
	phaseInit phase = iota
	// phaseReady: handshake done, waiting for the next block. CheckTx,
	// Query and Simulate may run concurrently from here on.
	phaseReady
	// phaseExecuting: ExecuteBlock is running.
	phaseExecuting
	// phaseExecuted: ExecuteBlock returned. Only Commit may follow.
	phaseExecuted
	// phaseCommitting: Commit is running.
	phaseCommitting
)

var phaseNames = [...]string{
	phaseInit:       "Init",
	phaseReady:      "Ready",
	phaseExecuting:  "Executing",
	phaseExecuted:   "Executed",
	phaseCommitting: "Committing",
}

func (p phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("unknown(%d)", uint32(p))
}

// LifecycleGuard enforces the call order Handshake, then repeated
// ExecuteBlock/Commit pairs. Out-of-order calls are programming errors
// in the host and panic.
type LifecycleGuard struct {
	phase atomic.Uint32
	// seq serializes ExecuteBlock and Commit.
	seq sync.Mutex
	// open is set once Handshake succeeded.
	open atomic.Bool
}

// NewLifecycleGuard creates a guard in the Init phase.
func NewLifecycleGuard() *LifecycleGuard {
	return &LifecycleGuard{}
}

// State returns the name of the current phase.
func (g *LifecycleGuard) State() string {
	return g.current().String()
}

// IsReady returns true if the guard is waiting for the next block.
func (g *LifecycleGuard) IsReady() bool {
	return g.current() == phaseReady
}

func (g *LifecycleGuard) current() phase {
	return phase(g.phase.Load())
}

// AcquireHandshake moves Init to Ready. Panics in any other phase.
func (g *LifecycleGuard) AcquireHandshake() {
	if !g.phase.CompareAndSwap(uint32(phaseInit), uint32(phaseReady)) {
		panic(misuse("Handshake", g.current(), phaseInit))
	}
}

// CompleteHandshake opens the guard for concurrent calls.
func (g *LifecycleGuard) CompleteHandshake() {
	g.open.Store(true)
}

// FailHandshake returns to Init so the handshake can be retried.
func (g *LifecycleGuard) FailHandshake() {
	g.phase.Store(uint32(phaseInit))
}

// AcquireExecute moves Ready to Executing, waiting for any sequential
// call in progress. Panics if not Ready.
func (g *LifecycleGuard) AcquireExecute() {
	g.enter("ExecuteBlock", phaseReady, phaseExecuting)
}

// CompleteExecute moves Executing to Executed.
func (g *LifecycleGuard) CompleteExecute() {
	g.leave(phaseExecuted)
}

// FailExecute moves Executing back to Ready so the block can be retried.
func (g *LifecycleGuard) FailExecute() {
	g.leave(phaseReady)
}

// AcquireCommit moves Executed to Committing. Panics if not Executed.
func (g *LifecycleGuard) AcquireCommit() {
	g.enter("Commit", phaseExecuted, phaseCommitting)
}

// CompleteCommit moves Committing to Ready.
func (g *LifecycleGuard) CompleteCommit() {
	g.leave(phaseReady)
}

// CheckConcurrent panics if Handshake has not completed.
func (g *LifecycleGuard) CheckConcurrent() {
	if !g.open.Load() {
		panic("stakeberry: concurrent call before Handshake completed")
	}
}

func (g *LifecycleGuard) enter(call string, from, to phase) {
	g.seq.Lock()
	if cur := g.current(); cur != from {
		g.seq.Unlock()
		panic(misuse(call, cur, from))
	}
	g.phase.Store(uint32(to))
}

func (g *LifecycleGuard) leave(to phase) {
	g.phase.Store(uint32(to))
	g.seq.Unlock()
}

func misuse(call string, got, want phase) string {
	return fmt.Sprintf("stakeberry: %s called in state %s (expected %s)", call, got, want)
}
