package breaker

import "github.com/zeromicro/go-zero/core/metric"

var tripsTotal = metric.NewCounterVec(&metric.CounterVecOpts{
	Namespace: "marketdata",
	Subsystem: "breaker",
	Name:      "trips_total",
	Help:      "Circuit trips by context.",
	Labels:    []string{"context"},
})
