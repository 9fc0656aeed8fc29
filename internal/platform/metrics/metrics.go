package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the gateway.
type Metrics struct {
	VerificationsSucceeded prometheus.Counter
	VerificationsFailed    prometheus.Counter
	EditsApplied           prometheus.Counter
	PersistFailures        prometheus.Counter
	TableReloads           prometheus.Counter
	BackupsWritten         prometheus.Counter
	BroadcastsDelivered    prometheus.Counter
	RecordRows             prometheus.Gauge
}

// New creates and registers all metrics against the given registerer. Tests
// pass a fresh prometheus.NewRegistry to stay isolated.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		VerificationsSucceeded: factory.NewCounter(prometheus.CounterOpts{
			Name: "regdesk_verifications_succeeded_total",
			Help: "Total number of successful identity verifications",
		}),
		VerificationsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "regdesk_verifications_failed_total",
			Help: "Total number of identity claims that matched no record",
		}),
		EditsApplied: factory.NewCounter(prometheus.CounterOpts{
			Name: "regdesk_edits_applied_total",
			Help: "Total number of record field edits applied",
		}),
		PersistFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "regdesk_persist_failures_total",
			Help: "Total number of failed table persists",
		}),
		TableReloads: factory.NewCounter(prometheus.CounterOpts{
			Name: "regdesk_table_reloads_total",
			Help: "Total number of record table reloads from disk",
		}),
		BackupsWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "regdesk_backups_written_total",
			Help: "Total number of table backup files written",
		}),
		BroadcastsDelivered: factory.NewCounter(prometheus.CounterOpts{
			Name: "regdesk_broadcasts_delivered_total",
			Help: "Total number of broadcast messages delivered to verified sessions",
		}),
		RecordRows: factory.NewGauge(prometheus.GaugeOpts{
			Name: "regdesk_record_rows",
			Help: "Current number of rows in the in-memory record table",
		}),
	}
}

func (m *Metrics) IncVerificationSucceeded() { m.VerificationsSucceeded.Inc() }
func (m *Metrics) IncVerificationFailed()    { m.VerificationsFailed.Inc() }
func (m *Metrics) IncEditsApplied()          { m.EditsApplied.Inc() }
func (m *Metrics) IncPersistFailures()       { m.PersistFailures.Inc() }
func (m *Metrics) IncTableReloads()          { m.TableReloads.Inc() }
func (m *Metrics) IncBackupsWritten()        { m.BackupsWritten.Inc() }
func (m *Metrics) IncBroadcastsDelivered()   { m.BroadcastsDelivered.Inc() }
func (m *Metrics) SetRecordRows(n int)       { m.RecordRows.Set(float64(n)) }
