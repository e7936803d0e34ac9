package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Catalog metrics
	ScansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schema_graph_scans_total",
			Help: "Number of datasource scans by outcome",
		},
		[]string{"source", "status"},
	)

	ScanDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "schema_graph_scan_duration_seconds",
			Help:    "Datasource scan latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	// Analyzer metrics
	SamplingFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schema_graph_sampling_failures_total",
			Help: "Column sampling queries that failed and were skipped",
		},
		[]string{"reason"},
	)

	RelationshipsDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schema_graph_relationships_detected_total",
			Help: "Relationships emitted by the detector",
		},
		[]string{"method"},
	)

	// Graph metrics
	GraphNodeCount = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "schema_graph_nodes",
			Help: "Nodes in the most recently built graph",
		},
		[]string{"node_type"},
	)

	GraphEdgeCount = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "schema_graph_edges",
			Help: "Edges in the most recently built graph",
		},
		[]string{"edge_type"},
	)
)

// RecordGraph 记录图的节点/边数量
func RecordGraph(nodesByType, edgesByType map[string]int) {
	GraphNodeCount.Reset()
	for t, n := range nodesByType {
		GraphNodeCount.WithLabelValues(t).Set(float64(n))
	}
	GraphEdgeCount.Reset()
	for t, n := range edgesByType {
		GraphEdgeCount.WithLabelValues(t).Set(float64(n))
	}
}
