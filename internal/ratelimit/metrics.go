package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var denialsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "api_cache_rate_limit_denials_total",
	Help: "Remote calls denied because a client's window was exhausted",
}, []string{"client"})
