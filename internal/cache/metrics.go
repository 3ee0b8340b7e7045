package cache

import "github.com/zeromicro/go-zero/core/metric"

var requestsTotal = metric.NewCounterVec(&metric.CounterVecOpts{
	Namespace: "marketdata",
	Subsystem: "cache",
	Name:      "requests_total",
	Help:      "Tier lookups by result.",
	Labels:    []string{"tier", "result"},
})
