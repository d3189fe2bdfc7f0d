package chain

import (
	"context"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"passport/internal/platform/tracing"
	"passport/internal/receipts"
	dErrors "passport/pkg/domain-errors"
)

// ErrReentrantCall is returned when a call is entered while another call is
// still active on the same context, such as from a payout callback.
var ErrReentrantCall = dErrors.New(dErrors.CodeConflict, "REENTRANT_CALL")

// Env runs state-changing calls one at a time. Every call either commits all
// of its journaled mutations and receipts or none of them.
type Env struct {
	mu       sync.RWMutex
	chainID  *big.Int
	clock    func() time.Time
	sink     receipts.Sink
	logger   *slog.Logger
	tracer   trace.Tracer
	sequence uint64

	codeMu    sync.RWMutex
	contracts map[common.Address]struct{}
}

type Option func(*Env)

func WithChainID(id *big.Int) Option {
	return func(e *Env) {
		if id != nil {
			e.chainID = new(big.Int).Set(id)
		}
	}
}

// WithClock sets the block clock. Each call captures its block time once.
func WithClock(clock func() time.Time) Option {
	return func(e *Env) {
		if clock != nil {
			e.clock = clock
		}
	}
}

func WithSink(sink receipts.Sink) Option {
	return func(e *Env) {
		if sink != nil {
			e.sink = sink
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Env) {
		e.logger = logger
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(e *Env) {
		e.tracer = tracer
	}
}

func New(opts ...Option) *Env {
	e := &Env{
		chainID:   big.NewInt(1),
		clock:     time.Now,
		sink:      receipts.Discard{},
		contracts: make(map[common.Address]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ChainID returns a copy of the chain id signatures are bound to.
func (e *Env) ChainID() *big.Int {
	return new(big.Int).Set(e.chainID)
}

// Now returns the block time of the active call, or the clock time outside one.
func (e *Env) Now(ctx context.Context) time.Time {
	if f, ok := FrameFrom(ctx); ok {
		return f.blockTime
	}
	return e.clock().UTC()
}

// RegisterContract marks addr as carrying code.
func (e *Env) RegisterContract(addr common.Address) {
	e.codeMu.Lock()
	defer e.codeMu.Unlock()
	e.contracts[addr] = struct{}{}
}

// IsContract reports whether addr carries code.
func (e *Env) IsContract(addr common.Address) bool {
	e.codeMu.RLock()
	defer e.codeMu.RUnlock()
	_, ok := e.contracts[addr]
	return ok
}

// Execute runs fn as one atomic call. On error or panic every journaled
// mutation is undone in reverse order and the buffered receipts and hooks are
// dropped. On success the receipts reach the sink before the next call starts
// and the post-commit hooks run afterwards.
func (e *Env) Execute(ctx context.Context, name string, fn func(ctx context.Context) error) (err error) {
	if _, active := FrameFrom(ctx); active {
		return ErrReentrantCall
	}

	ctx, span := tracing.Start(ctx, e.tracer, name,
		attribute.String("caller", Caller(ctx).Hex()),
		attribute.String("value", MsgFrom(ctx).Value.String()),
	)
	defer func() { tracing.End(span, err) }()

	e.mu.Lock()
	f := &Frame{name: name, blockTime: e.clock().UTC()}
	committed := false
	defer func() {
		if !committed {
			f.revert()
			e.mu.Unlock()
		}
	}()

	if err = fn(context.WithValue(ctx, frameKey{}, f)); err != nil {
		return err
	}

	batch := e.stamp(f)
	committed = true
	if len(batch) > 0 {
		if sinkErr := e.sink.Append(ctx, batch); sinkErr != nil {
			e.logWarn(ctx, "receipt sink append failed", "call", name, "error", sinkErr)
		}
	}
	e.mu.Unlock()

	for _, h := range f.hooks {
		if hookErr := h.fn(ctx); hookErr != nil {
			e.logWarn(ctx, "post-commit hook failed", "call", name, "hook", h.name, "error", hookErr)
		}
	}
	return nil
}

// View runs fn under the shared lock, or inline when ctx carries an active call.
func (e *Env) View(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, active := FrameFrom(ctx); active {
		return fn(ctx)
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return fn(ctx)
}

func (e *Env) stamp(f *Frame) []receipts.Receipt {
	batch := f.receipts
	for i := range batch {
		e.sequence++
		batch[i].Sequence = e.sequence
		batch[i].BlockTime = f.blockTime
		if batch[i].ID == uuid.Nil {
			batch[i].ID = uuid.New()
		}
	}
	return batch
}

func (e *Env) logWarn(ctx context.Context, msg string, args ...any) {
	if e.logger != nil {
		e.logger.WarnContext(ctx, msg, args...)
	}
}
