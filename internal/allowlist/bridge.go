package allowlist

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	ledger "passport/internal/ledger/models"
	"passport/pkg/orderedset"
	"passport/pkg/platform/circuit"
)

// AMLReader returns the AML records attested for a DID.
type AMLReader interface {
	AMLRecords(ctx context.Context, did common.Hash) ([]ledger.AttributeRecord, error)
}

// AMLReaderFunc adapts a function to AMLReader.
type AMLReaderFunc func(ctx context.Context, did common.Hash) ([]ledger.AttributeRecord, error)

func (f AMLReaderFunc) AMLRecords(ctx context.Context, did common.Hash) ([]ledger.AttributeRecord, error) {
	return f(ctx, did)
}

// Thresholds supplies the governance AML threshold.
type Thresholds interface {
	AMLThreshold() *big.Int
}

// Bridge keeps the registry status of every account behind a DID in line
// with the worst AML score attested for that DID. It runs after the write that
// triggered it has committed, so failures are logged and never returned.
//
// Accounts that no longer hold any DID are cleared to NONE. Failed syncs and
// clears are kept pending and retried once the registry has recovered.
type Bridge struct {
	reader   AMLReader
	policy   Thresholds
	registry Registry
	breaker  *circuit.Breaker
	logger   *slog.Logger

	mu       sync.Mutex
	pending  map[common.Hash]*orderedset.Set[common.Address]
	departed *orderedset.Set[common.Address]
}

type Option func(*Bridge)

func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		b.logger = logger
	}
}

func WithBreaker(breaker *circuit.Breaker) Option {
	return func(b *Bridge) {
		if breaker != nil {
			b.breaker = breaker
		}
	}
}

func NewBridge(reader AMLReader, policy Thresholds, registry Registry, opts ...Option) (*Bridge, error) {
	if reader == nil {
		return nil, errors.New("AML reader is required")
	}
	if policy == nil {
		return nil, errors.New("policy is required")
	}
	if registry == nil {
		return nil, errors.New("registry is required")
	}
	b := &Bridge{
		reader:   reader,
		policy:   policy,
		registry: registry,
		breaker:  circuit.New("allowlist-registry"),
		pending:  make(map[common.Hash]*orderedset.Set[common.Address]),
		departed: orderedset.New[common.Address](),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Sync re-evaluates did against the threshold and updates accounts, which
// must be the accounts currently holding did.
func (b *Bridge) Sync(ctx context.Context, did common.Hash, accounts []common.Address) {
	b.rejoin(accounts)
	if err := b.apply(ctx, did, accounts); err != nil {
		b.remember(did, accounts)
		b.failed(ctx, "allow-list sync failed", err, "did", did.Hex())
		return
	}
	b.succeeded(ctx)
}

// Clear sets accounts that hold no DID any more to NONE. ADMIN is kept.
func (b *Bridge) Clear(ctx context.Context, accounts []common.Address) {
	if len(accounts) == 0 {
		return
	}
	b.leave(accounts)
	if err := b.clear(ctx, accounts); err != nil {
		b.mu.Lock()
		for _, a := range accounts {
			b.departed.Add(a)
		}
		b.mu.Unlock()
		b.failed(ctx, "allow-list clear failed", err, "accounts", len(accounts))
		return
	}
	b.succeeded(ctx)
}

func (b *Bridge) failed(ctx context.Context, msg string, err error, args ...any) {
	degraded, change := b.breaker.RecordFailure()
	if change.Opened {
		b.logWarn(ctx, "allow-list registry circuit opened", "error", err)
	}
	if !degraded {
		b.logWarn(ctx, msg, append(args, "error", err)...)
	}
}

func (b *Bridge) succeeded(ctx context.Context) {
	recovered, change := b.breaker.RecordSuccess()
	if change.Closed && b.logger != nil {
		b.logger.InfoContext(ctx, "allow-list registry circuit closed")
	}
	if recovered {
		b.flush(ctx)
	}
}

// Pending returns the number of DIDs and cleared accounts waiting for a retry.
func (b *Bridge) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending) + b.departed.Len()
}

// Target returns the status accounts behind did should hold.
func (b *Bridge) Target(ctx context.Context, did common.Hash) (Status, error) {
	recs, err := b.reader.AMLRecords(ctx, did)
	if err != nil {
		return "", err
	}
	if len(recs) == 0 {
		return StatusNone, nil
	}
	worst := new(big.Int)
	for _, r := range recs {
		if v := r.Uint(); v.Cmp(worst) > 0 {
			worst = v
		}
	}
	if worst.Cmp(b.policy.AMLThreshold()) <= 0 {
		return StatusAllowed, nil
	}
	return StatusNone, nil
}

func (b *Bridge) apply(ctx context.Context, did common.Hash, accounts []common.Address) error {
	target, err := b.Target(ctx, did)
	if err != nil {
		return err
	}
	for _, account := range accounts {
		if err := b.set(ctx, account, target); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bridge) clear(ctx context.Context, accounts []common.Address) error {
	for _, account := range accounts {
		if err := b.set(ctx, account, StatusNone); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bridge) set(ctx context.Context, account common.Address, target Status) error {
	current, err := b.registry.Status(ctx, account)
	if err != nil {
		return err
	}
	if current == StatusAdmin || current == target {
		return nil
	}
	err = b.registry.SetStatus(ctx, account, target)
	if errors.Is(err, ErrProtectedStatus) {
		return nil
	}
	return err
}

// leave drops accounts from every pending DID retry.
func (b *Bridge) leave(accounts []common.Address) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for did, set := range b.pending {
		for _, a := range accounts {
			set.Remove(a)
		}
		if set.Len() == 0 {
			delete(b.pending, did)
		}
	}
}

// rejoin drops pending clears for accounts that hold a DID again.
func (b *Bridge) rejoin(accounts []common.Address) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, a := range accounts {
		b.departed.Remove(a)
	}
}

func (b *Bridge) remember(did common.Hash, accounts []common.Address) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.pending[did]
	if !ok {
		set = orderedset.New[common.Address]()
		b.pending[did] = set
	}
	for _, a := range accounts {
		set.Add(a)
	}
}

// flush retries every pending DID and clear once.
func (b *Bridge) flush(ctx context.Context) {
	b.mu.Lock()
	if len(b.pending) == 0 && b.departed.Len() == 0 {
		b.mu.Unlock()
		return
	}
	retry, departed := b.pending, b.departed
	b.pending = make(map[common.Hash]*orderedset.Set[common.Address])
	b.departed = orderedset.New[common.Address]()
	b.mu.Unlock()

	for did, accounts := range retry {
		if err := b.apply(ctx, did, accounts.Values()); err != nil {
			b.remember(did, accounts.Values())
			b.breaker.RecordFailure()
			b.logWarn(ctx, "allow-list retry failed", "did", did.Hex(), "error", err)
		}
	}
	if departed.Len() == 0 {
		return
	}
	if err := b.clear(ctx, departed.Values()); err != nil {
		b.mu.Lock()
		for _, a := range departed.Values() {
			b.departed.Add(a)
		}
		b.mu.Unlock()
		b.breaker.RecordFailure()
		b.logWarn(ctx, "allow-list clear retry failed", "accounts", departed.Len(), "error", err)
	}
}

func (b *Bridge) logWarn(ctx context.Context, msg string, args ...any) {
	if b.logger == nil {
		return
	}
	b.logger.WarnContext(ctx, msg, args...)
}
