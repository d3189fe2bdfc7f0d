package chain

import (
	"context"
	"time"

	"passport/internal/receipts"
)

type frameKey struct{}

type hook struct {
	name string
	fn   func(ctx context.Context) error
}

// Frame is the state of one active call.
type Frame struct {
	name      string
	blockTime time.Time
	undo      []func()
	receipts  []receipts.Receipt
	hooks     []hook
}

// FrameFrom returns the active call frame carried by ctx.
func FrameFrom(ctx context.Context) (*Frame, bool) {
	f, ok := ctx.Value(frameKey{}).(*Frame)
	return f, ok && f != nil
}

func (f *Frame) Name() string         { return f.name }
func (f *Frame) BlockTime() time.Time { return f.blockTime }

func (f *Frame) revert() {
	for i := len(f.undo) - 1; i >= 0; i-- {
		f.undo[i]()
	}
	f.undo = nil
	f.receipts = nil
	f.hooks = nil
}

// Record journals undo for the active call. Outside a call it is a no-op and
// the mutation it describes is permanent.
func Record(ctx context.Context, undo func()) {
	if f, ok := FrameFrom(ctx); ok {
		f.undo = append(f.undo, undo)
	}
}

// Emit buffers r until the active call commits. Outside a call r is dropped.
func Emit(ctx context.Context, r receipts.Receipt) {
	if f, ok := FrameFrom(ctx); ok {
		f.receipts = append(f.receipts, r)
	}
}

// AfterCommit schedules fn to run once the active call has committed and the
// writer lock is released. Outside a call fn is dropped.
func AfterCommit(ctx context.Context, name string, fn func(ctx context.Context) error) {
	if f, ok := FrameFrom(ctx); ok {
		f.hooks = append(f.hooks, hook{name: name, fn: fn})
	}
}

// BlockTime returns the block time of the active call, or the zero time.
func BlockTime(ctx context.Context) time.Time {
	if f, ok := FrameFrom(ctx); ok {
		return f.blockTime
	}
	return time.Time{}
}
