package receipts

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	txcontext "passport/pkg/platform/tx"
)

// OutboxSchema creates the receipt outbox table.
const OutboxSchema = `
CREATE TABLE IF NOT EXISTS receipt_outbox (
	id              UUID PRIMARY KEY,
	sequence        BIGINT NOT NULL,
	kind            TEXT NOT NULL,
	subject         TEXT NOT NULL,
	attribute_types TEXT[] NOT NULL DEFAULT '{}',
	payload         JSONB NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL,
	published_at    TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS receipt_outbox_unpublished ON receipt_outbox (sequence) WHERE published_at IS NULL;
`

// OutboxEntry is an unpublished outbox row.
type OutboxEntry struct {
	ID             uuid.UUID
	Sequence       uint64
	Kind           Kind
	Subject        string
	AttributeTypes []string
	Payload        []byte
}

// PostgresOutbox writes receipts to the outbox table; the OutboxWorker
// publishes them to Kafka.
type PostgresOutbox struct {
	db    *sql.DB
	clock func() time.Time
}

type PostgresOutboxOption func(*PostgresOutbox)

func WithOutboxClock(clock func() time.Time) PostgresOutboxOption {
	return func(o *PostgresOutbox) {
		if clock != nil {
			o.clock = clock
		}
	}
}

func NewPostgresOutbox(db *sql.DB, opts ...PostgresOutboxOption) *PostgresOutbox {
	o := &PostgresOutbox{db: db, clock: time.Now}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// EnsureSchema creates the outbox table when missing.
func (o *PostgresOutbox) EnsureSchema(ctx context.Context) error {
	if _, err := o.db.ExecContext(ctx, OutboxSchema); err != nil {
		return fmt.Errorf("create receipt outbox: %w", err)
	}
	return nil
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Append inserts the batch in one transaction, joining the caller's transaction
// when ctx carries one.
func (o *PostgresOutbox) Append(ctx context.Context, batch []Receipt) error {
	if len(batch) == 0 {
		return nil
	}
	err := txcontext.Run(ctx, o.db, func(ctx context.Context, tx *sql.Tx) error {
		return o.insert(ctx, tx, batch)
	})
	if err != nil {
		return fmt.Errorf("append outbox batch: %w", err)
	}
	return nil
}

func (o *PostgresOutbox) insert(ctx context.Context, exec dbExecutor, batch []Receipt) error {
	query := `
		INSERT INTO receipt_outbox (id, sequence, kind, subject, attribute_types, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`
	now := o.clock()
	for _, r := range batch {
		payload, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("marshal receipt: %w", err)
		}
		types := make([]string, len(r.AttributeTypes))
		for i, t := range r.AttributeTypes {
			types[i] = t.Hex()
		}
		if _, err := exec.ExecContext(ctx, query,
			r.ID,
			int64(r.Sequence),
			string(r.Kind),
			r.Subject.Hex(),
			pq.Array(types),
			payload,
			now,
		); err != nil {
			return fmt.Errorf("insert outbox receipt: %w", err)
		}
	}
	return nil
}

// FetchUnpublished returns up to limit unpublished rows in sequence order.
func (o *PostgresOutbox) FetchUnpublished(ctx context.Context, limit int) ([]OutboxEntry, error) {
	rows, err := o.db.QueryContext(ctx, `
		SELECT id, sequence, kind, subject, attribute_types, payload
		FROM receipt_outbox
		WHERE published_at IS NULL
		ORDER BY sequence
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	var entries []OutboxEntry
	for rows.Next() {
		var (
			e    OutboxEntry
			seq  int64
			kind string
		)
		if err := rows.Scan(&e.ID, &seq, &kind, &e.Subject, pq.Array(&e.AttributeTypes), &e.Payload); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		e.Sequence = uint64(seq)
		e.Kind = Kind(kind)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox: %w", err)
	}
	return entries, nil
}

// MarkPublished stamps the given rows as published.
func (o *PostgresOutbox) MarkPublished(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = id.String()
	}
	_, err := o.db.ExecContext(ctx,
		`UPDATE receipt_outbox SET published_at = $1 WHERE id = ANY($2::uuid[])`,
		o.clock(), pq.Array(raw))
	if err != nil {
		return fmt.Errorf("mark outbox published: %w", err)
	}
	return nil
}
