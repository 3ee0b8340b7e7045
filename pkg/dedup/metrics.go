package dedup

import "github.com/zeromicro/go-zero/core/metric"

var pendingGauge = metric.NewGaugeVec(&metric.GaugeVecOpts{
	Namespace: "marketdata",
	Subsystem: "dedup",
	Name:      "pending",
	Help:      "In-flight deduplicated operations by group.",
	Labels:    []string{"group"},
})
