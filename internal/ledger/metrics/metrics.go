package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the attestation ledger.
type Metrics struct {
	AttestationsWritten *prometheus.CounterVec
	WritesRejected      *prometheus.CounterVec
	RecordsRevoked      *prometheus.CounterVec
	PassportsMinted     prometheus.Counter
	PassportsBurned     prometheus.Counter
	RecordsMigrated     prometheus.Counter
	WriteDuration       prometheus.Histogram
}

// New registers the ledger metrics on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		AttestationsWritten: f.NewCounterVec(prometheus.CounterOpts{
			Name: "passport_attestations_written_total",
			Help: "Attribute records written, by write path",
		}, []string{"path"}),
		WritesRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "passport_writes_rejected_total",
			Help: "Rejected ledger calls, by failure reason",
		}, []string{"reason"}),
		RecordsRevoked: f.NewCounterVec(prometheus.CounterOpts{
			Name: "passport_records_revoked_total",
			Help: "Attribute records removed, by revocation path",
		}, []string{"path"}),
		PassportsMinted: f.NewCounter(prometheus.CounterOpts{
			Name: "passport_tokens_minted_total",
			Help: "Soulbound balances flipped from 0 to 1",
		}),
		PassportsBurned: f.NewCounter(prometheus.CounterOpts{
			Name: "passport_tokens_burned_total",
			Help: "Soulbound balances flipped from 1 to 0",
		}),
		RecordsMigrated: f.NewCounter(prometheus.CounterOpts{
			Name: "passport_records_migrated_total",
			Help: "Attribute records copied from a prior ledger",
		}),
		WriteDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "passport_write_duration_seconds",
			Help:    "Duration of attestation write calls",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),
	}
}

func (m *Metrics) IncrementWritten(path string, n int) {
	m.AttestationsWritten.WithLabelValues(path).Add(float64(n))
}

func (m *Metrics) IncrementRejected(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	m.WritesRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncrementRevoked(path string, n int) {
	m.RecordsRevoked.WithLabelValues(path).Add(float64(n))
}

func (m *Metrics) IncrementMinted() { m.PassportsMinted.Inc() }
func (m *Metrics) IncrementBurned() { m.PassportsBurned.Inc() }

func (m *Metrics) IncrementMigrated(n int) { m.RecordsMigrated.Add(float64(n)) }

// ObserveWrite records the duration of a write call.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveWrite(start time.Time) {
	m.WriteDuration.Observe(time.Since(start).Seconds())
}
