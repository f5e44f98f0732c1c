package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ledgerIntact = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "qldb_ledger_intact",
		Help: "1 when the last background audit found the ledger intact, 0 otherwise.",
	})

	lastAuditTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "qldb_audit_last_run_timestamp_seconds",
		Help: "Unix time of the last completed background audit.",
	})
)

func recordAudit(st Status) {
	if st.Healthy {
		ledgerIntact.Set(1)
	} else {
		ledgerIntact.Set(0)
	}
	lastAuditTimestamp.Set(float64(st.CheckedAt.Unix()))
}
