package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	recordsAppended = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qldb_records_appended_total",
		Help: "Total ledger records appended.",
	})

	blocksSealed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qldb_blocks_sealed_total",
		Help: "Total blocks sealed.",
	})

	verifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qldb_verifications_total",
		Help: "Integrity sweeps by kind (chain, blocks) and result.",
	}, []string{"kind", "result"})

	proofsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qldb_proofs_total",
		Help: "Merkle proof requests by outcome.",
	}, []string{"outcome"})
)
