package fetch

import "github.com/zeromicro/go-zero/core/metric"

var retriesTotal = metric.NewCounterVec(&metric.CounterVecOpts{
	Namespace: "marketdata",
	Subsystem: "fetch",
	Name:      "retries_total",
	Help:      "Upstream call retries by endpoint.",
	Labels:    []string{"endpoint"},
})
