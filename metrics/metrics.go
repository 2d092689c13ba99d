// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package metrics

import (
	"time"

	"github.com/ava-labs/avalanchego/utils/wrappers"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	resultSuccess = "success"
	resultFailure = "failure"
)

// Metrics are the counters kept for a single gim process. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	operations      *prometheus.CounterVec
	mergeConflicts  prometheus.Counter
	downloadedBytes prometheus.Counter
	gateWait        prometheus.Histogram
}

func New(namespace string, registerer prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Instance operations by kind and result",
		}, []string{"operation", "result"}),
		mergeConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merge_conflicts_total",
			Help:      "Children skipped because their merge conflicted",
		}),
		downloadedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloaded_bytes_total",
			Help:      "Bytes transferred by completed downloads",
		}),
		gateWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "repository_gate_wait_seconds",
			Help:      "Time spent waiting for the shared repository",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
	}

	errs := wrappers.Errs{}
	errs.Add(
		registerer.Register(m.operations),
		registerer.Register(m.mergeConflicts),
		registerer.Register(m.downloadedBytes),
		registerer.Register(m.gateWait),
	)
	return m, errs.Err
}

func (m *Metrics) Operation(operation string, err error) {
	if m == nil {
		return
	}
	result := resultSuccess
	if err != nil {
		result = resultFailure
	}
	m.operations.WithLabelValues(operation, result).Inc()
}

func (m *Metrics) MergeConflict() {
	if m == nil {
		return
	}
	m.mergeConflicts.Inc()
}

func (m *Metrics) Downloaded(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.downloadedBytes.Add(float64(n))
}

func (m *Metrics) GateWait(d time.Duration) {
	if m == nil {
		return
	}
	m.gateWait.Observe(d.Seconds())
}

// WriteTextfile dumps everything gathered by g in the node exporter textfile
// format.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}
