// Package chain is the execution environment every state-changing call runs in.
//
// It serializes calls behind a single writer, journals mutations so a failing
// call leaves no trace, rejects re-entry from external callbacks, and carries
// the caller identity and attached value for the current call.
package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Msg is the caller identity and attached native value of a call.
type Msg struct {
	Caller common.Address
	Value  *big.Int
}

type msgKey struct{}

// WithMsg attaches msg to ctx. A nil Value is treated as zero.
func WithMsg(ctx context.Context, msg Msg) context.Context {
	if msg.Value == nil {
		msg.Value = new(big.Int)
	}
	return context.WithValue(ctx, msgKey{}, msg)
}

// MsgFrom returns the Msg attached to ctx, or a zero-caller zero-value Msg.
func MsgFrom(ctx context.Context) Msg {
	if msg, ok := ctx.Value(msgKey{}).(Msg); ok {
		return msg
	}
	return Msg{Value: new(big.Int)}
}

// Caller returns the caller address of the current call.
func Caller(ctx context.Context) common.Address {
	return MsgFrom(ctx).Caller
}

// Value returns a copy of the attached value of the current call.
func Value(ctx context.Context) *big.Int {
	return new(big.Int).Set(MsgFrom(ctx).Value)
}

// Delegate derives the context for an internal call made by caller with no
// attached value. The active frame, if any, is kept.
func Delegate(ctx context.Context, caller common.Address) context.Context {
	return WithMsg(ctx, Msg{Caller: caller, Value: new(big.Int)})
}
