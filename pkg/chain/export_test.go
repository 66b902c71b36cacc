package chain

import "github.com/prometheus/client_golang/prometheus"

func (m *Metrics) OperationsVec() *prometheus.CounterVec { return m.operations }

func (m *Metrics) MovedCounter() prometheus.Counter { return m.moved }
