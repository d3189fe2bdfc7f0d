package metrics

import (
	"math/big"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for paid reads and withdrawals.
type Metrics struct {
	QueriesServed     *prometheus.CounterVec
	QueriesRejected   *prometheus.CounterVec
	FeesCollectedWei  prometheus.Counter
	DonationsWei      prometheus.Counter
	Withdrawals       prometheus.Counter
	WithdrawalsFailed *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		QueriesServed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "passport_queries_served_total",
			Help: "Paid queries served, by entry point",
		}, []string{"entry"}),
		QueriesRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "passport_queries_rejected_total",
			Help: "Rejected paid queries, by failure reason",
		}, []string{"reason"}),
		FeesCollectedWei: f.NewCounter(prometheus.CounterOpts{
			Name: "passport_query_fees_collected_wei_total",
			Help: "Query fees split between issuers and beneficiaries",
		}),
		DonationsWei: f.NewCounter(prometheus.CounterOpts{
			Name: "passport_query_donations_wei_total",
			Help: "Overpayment credited to the protocol treasury",
		}),
		Withdrawals: f.NewCounter(prometheus.CounterOpts{
			Name: "passport_withdrawals_total",
			Help: "Successful pull-payment withdrawals",
		}),
		WithdrawalsFailed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "passport_withdrawals_failed_total",
			Help: "Failed withdrawals, by failure reason",
		}, []string{"reason"}),
	}
}

func (m *Metrics) IncrementServed(entry string) {
	m.QueriesServed.WithLabelValues(entry).Inc()
}

func (m *Metrics) IncrementRejected(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	m.QueriesRejected.WithLabelValues(reason).Inc()
}

// AddFees records a collected fee and any donation on top of it.
func (m *Metrics) AddFees(fee, donation *big.Int) {
	if fee != nil {
		f, _ := new(big.Float).SetInt(fee).Float64()
		m.FeesCollectedWei.Add(f)
	}
	if donation != nil {
		d, _ := new(big.Float).SetInt(donation).Float64()
		m.DonationsWei.Add(d)
	}
}

func (m *Metrics) IncrementWithdrawal() { m.Withdrawals.Inc() }

func (m *Metrics) IncrementWithdrawalFailed(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	m.WithdrawalsFailed.WithLabelValues(reason).Inc()
}
