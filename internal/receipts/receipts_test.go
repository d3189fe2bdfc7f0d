package receipts

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"
)

var (
	subjectA = common.HexToAddress("0xa1")
	subjectB = common.HexToAddress("0xb2")
)

func TestMemoryLog(t *testing.T) {
	ctx := context.Background()
	log := NewMemoryLog()
	require.NoError(t, log.Append(ctx, []Receipt{
		{Kind: KindSetAttribute, Subject: subjectA},
		{Kind: KindTransferSingle, To: subjectA, TokenID: 1, Amount: big.NewInt(1)},
		{Kind: KindTransferSingle, From: subjectB, TokenID: 1, Amount: big.NewInt(1)},
	}))
	require.NoError(t, log.Append(ctx, []Receipt{{Kind: KindQuery, Subject: subjectB}}))

	t.Run("commit order", func(t *testing.T) {
		all := log.All()
		require.Len(t, all, 4)
		assert.Equal(t, KindQuery, all[3].Kind)
	})

	t.Run("transfers index the moving account", func(t *testing.T) {
		a := log.BySubject(subjectA)
		require.Len(t, a, 2)
		assert.Equal(t, KindTransferSingle, a[1].Kind)

		b := log.BySubject(subjectB)
		require.Len(t, b, 2)
		assert.Equal(t, subjectB, b[0].From)
		assert.Equal(t, KindQuery, b[1].Kind)
	})

	t.Run("by kind", func(t *testing.T) {
		assert.Len(t, log.ByKind(KindTransferSingle), 2)
		assert.Empty(t, log.ByKind(KindWithdraw))
	})

	t.Run("clear", func(t *testing.T) {
		log.Clear()
		assert.Zero(t, log.Len())
		assert.Empty(t, log.BySubject(subjectA))
	})
}

type failingSink struct{ err error }

func (f failingSink) Append(context.Context, []Receipt) error { return f.err }

func TestFanoutStopsAtFirstFailure(t *testing.T) {
	first, last := NewMemoryLog(), NewMemoryLog()
	boom := errors.New("sink down")
	fan := Fanout{first, failingSink{err: boom}, last}

	err := fan.Append(context.Background(), []Receipt{{Kind: KindQuery}})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, first.Len())
	assert.Zero(t, last.Len())

	assert.NoError(t, Discard{}.Append(context.Background(), []Receipt{{Kind: KindQuery}}))
}

// =============================================================================
// Outbox Worker Test Suite
// =============================================================================
// Justification for unit tests: a batch must only be marked published once
// the broker acknowledged it, otherwise receipts are lost.

type fakeOutbox struct {
	mu        sync.Mutex
	entries   []OutboxEntry
	published map[uuid.UUID]bool
	fetchErr  error
}

func (o *fakeOutbox) FetchUnpublished(_ context.Context, limit int) ([]OutboxEntry, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fetchErr != nil {
		return nil, o.fetchErr
	}
	var out []OutboxEntry
	for _, e := range o.entries {
		if !o.published[e.ID] && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (o *fakeOutbox) MarkPublished(_ context.Context, ids []uuid.UUID) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, id := range ids {
		o.published[id] = true
	}
	return nil
}

type fakeProducer struct {
	mu      sync.Mutex
	records []*kgo.Record
	err     error
}

func (p *fakeProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	p.mu.Lock()
	defer p.mu.Unlock()
	results := make(kgo.ProduceResults, len(rs))
	for i, r := range rs {
		results[i] = kgo.ProduceResult{Record: r, Err: p.err}
		if p.err == nil {
			p.records = append(p.records, r)
		}
	}
	return results
}

type OutboxWorkerSuite struct {
	suite.Suite
	outbox   *fakeOutbox
	producer *fakeProducer
	worker   *OutboxWorker
}

func TestOutboxWorkerSuite(t *testing.T) {
	suite.Run(t, new(OutboxWorkerSuite))
}

func (s *OutboxWorkerSuite) SetupTest() {
	s.outbox = &fakeOutbox{published: make(map[uuid.UUID]bool)}
	for i := 0; i < 3; i++ {
		s.outbox.entries = append(s.outbox.entries, OutboxEntry{
			ID:       uuid.New(),
			Sequence: uint64(i + 1),
			Kind:     KindSetAttribute,
			Subject:  subjectA.Hex(),
			Payload:  []byte(`{}`),
		})
	}
	s.producer = &fakeProducer{}
	s.worker = NewOutboxWorker(s.outbox, NewKafkaPublisher(s.producer, "passport.receipts"), WithBatchSize(2))
}

func (s *OutboxWorkerSuite) TestDrainPublishesInBatches() {
	n, err := s.worker.Drain(context.Background())
	s.Require().NoError(err)
	s.Equal(2, n)

	n, err = s.worker.Drain(context.Background())
	s.Require().NoError(err)
	s.Equal(1, n)

	n, err = s.worker.Drain(context.Background())
	s.Require().NoError(err)
	s.Zero(n)

	s.Require().Len(s.producer.records, 3)
	rec := s.producer.records[0]
	s.Equal("passport.receipts", rec.Topic)
	s.Equal([]byte(subjectA.Hex()), rec.Key)
	s.Equal("kind", rec.Headers[0].Key)
	s.Equal([]byte(KindSetAttribute), rec.Headers[0].Value)
	s.Equal([]byte(s.outbox.entries[0].ID.String()), rec.Headers[1].Value)
}

func (s *OutboxWorkerSuite) TestFailedPublishLeavesBatchPending() {
	s.producer.err = errors.New("broker unavailable")
	_, err := s.worker.Drain(context.Background())
	s.ErrorContains(err, "produce receipts")
	s.Empty(s.outbox.published)

	s.producer.err = nil
	n, err := s.worker.Drain(context.Background())
	s.Require().NoError(err)
	s.Equal(2, n)
}

func (s *OutboxWorkerSuite) TestFetchFailure() {
	s.outbox.fetchErr = errors.New("db down")
	_, err := s.worker.Drain(context.Background())
	s.Error(err)
	s.Empty(s.producer.records)
}

func (s *OutboxWorkerSuite) TestRunStopsOnCancel() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.ErrorIs(s.worker.Run(ctx), context.Canceled)
}
