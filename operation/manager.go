// Package operation manages the single running operation of a device, such as the current
// motion of a mobile base.
package operation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ErrSuperseded is the cancellation cause of an operation replaced by a newer one.
var ErrSuperseded = errors.New("operation superseded by a newer operation")

// SingleOperationManager ensures only 1 operation is happening a time
// An operation can be nested, so if there is already an operation in progress,
// it can have sub-operations without an issue.
// Starting a new operation cancels the previous one and waits for it to finish, so the
// previous operation never observes the state written by its successor.
type SingleOperationManager struct {
	mu        sync.Mutex
	currentOp *anOp
}

// NewSingleOperationManager constructs a SingleOperationManager.
func NewSingleOperationManager() *SingleOperationManager {
	return &SingleOperationManager{}
}

type somCtxKey byte

const somCtxKeySingleOp = somCtxKey(iota)

type anOp struct {
	id         uuid.UUID
	started    time.Time
	ctx        context.Context
	cancelFunc context.CancelCauseFunc
	finished   chan struct{}
	closeOnce  sync.Once
}

// CancelRunningWithCause cancels the current operation unless it's mine and waits for it to
// finish. The running operation can read cause with context.Cause. It reports whether an
// operation was running.
func (sm *SingleOperationManager) CancelRunningWithCause(ctx context.Context, cause error) bool {
	if ctx.Value(somCtxKeySingleOp) != nil {
		return false
	}
	sm.mu.Lock()
	op := sm.cancelInLock(ctx, cause)
	sm.mu.Unlock()

	if op == nil {
		return false
	}
	<-op.finished
	return true
}

// OpRunning returns if there is a current operation.
func (sm *SingleOperationManager) OpRunning() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.currentOp != nil
}

// New creates a new operation, cancels the previous one and waits for it to call its done
// function, then returns a new context and function to call when done.
func (sm *SingleOperationManager) New(ctx context.Context) (context.Context, func()) {
	// handle nested ops
	if ctx.Value(somCtxKeySingleOp) != nil {
		return ctx, func() {}
	}

	sm.mu.Lock()

	// first cancel any old operation
	oldOp := sm.cancelInLock(ctx, ErrSuperseded)

	theOp := &anOp{
		id:       uuid.New(),
		started:  time.Now(),
		finished: make(chan struct{}),
	}

	ctx = context.WithValue(ctx, somCtxKeySingleOp, theOp)

	theOp.ctx, theOp.cancelFunc = context.WithCancelCause(ctx)
	sm.currentOp = theOp
	sm.mu.Unlock()

	if oldOp != nil {
		<-oldOp.finished
	}

	return theOp.ctx, func() {
		theOp.closeOnce.Do(func() {
			theOp.cancelFunc(nil)
			close(theOp.finished)
		})
		sm.mu.Lock()
		if theOp == sm.currentOp {
			sm.currentOp = nil
		}
		sm.mu.Unlock()
	}
}

func (sm *SingleOperationManager) cancelInLock(ctx context.Context, cause error) *anOp {
	myOp := ctx.Value(somCtxKeySingleOp)
	op := sm.currentOp

	if op == nil || myOp == op {
		return nil
	}

	op.cancelFunc(cause)

	sm.currentOp = nil
	return op
}

// ID returns the ID of the operation carried by ctx, or uuid.Nil outside an operation.
func ID(ctx context.Context) uuid.UUID {
	op, ok := ctx.Value(somCtxKeySingleOp).(*anOp)
	if !ok {
		return uuid.Nil
	}
	return op.id
}

// Started returns when the operation carried by ctx started.
func Started(ctx context.Context) time.Time {
	op, ok := ctx.Value(somCtxKeySingleOp).(*anOp)
	if !ok {
		return time.Time{}
	}
	return op.started
}
