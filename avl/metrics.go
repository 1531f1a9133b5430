package avl

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var nodesLoaded = promauto.NewCounter(prometheus.CounterOpts{
	Name: "avl_nodes_loaded_total",
	Help: "Number of node records read and decoded from the backing store",
})

var nodesWritten = promauto.NewCounter(prometheus.CounterOpts{
	Name: "avl_nodes_written_total",
	Help: "Number of node records written by commits",
})

var commitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "avl_commit_duration_seconds",
	Help:    "Time taken to hash and persist a tree version",
	Buckets: prometheus.ExponentialBuckets(0.0005, 2, 16),
})
