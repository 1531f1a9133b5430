package lrucache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var cacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "lrucache_hits_total",
	Help: "Number of cache lookups which found an entry",
}, []string{"cache"})

var cacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "lrucache_misses_total",
	Help: "Number of cache lookups which found nothing",
}, []string{"cache"})

var cacheEvictions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "lrucache_evictions_total",
	Help: "Number of entries evicted to stay within capacity",
}, []string{"cache"})
