// Package metrics defines the prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "tagkeep"
)

var (
	// Acquisitions counts finished acquisitions
	Acquisitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "acquisitions_total",
			Help:      "Total number of finished card acquisitions",
		},
		[]string{"intent", "outcome"}, // intent: register/identify/rename
	)

	// Submissions counts submit attempts, including rejected ones
	Submissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Total number of acquisition submissions",
		},
		[]string{"origin", "status"}, // status: accepted/busy/invalid
	)

	// ReadErrors counts cards that were present but could not be read
	ReadErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "read_errors_total",
			Help:      "Total number of failed card serial reads",
		},
	)

	// FlashSaves counts registry image writes
	FlashSaves = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flash_saves_total",
			Help:      "Total number of registry image saves",
		},
		[]string{"status"}, // ok/erase_error/program_error
	)

	// RegistryItems tracks active registry records
	RegistryItems = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registry_items",
			Help:      "Number of active registry records",
		},
	)

	// AcquisitionDuration measures time from submit to result
	AcquisitionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "acquisition_duration_seconds",
			Help:      "Time from submission to result in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2, 5, 10, 15},
		},
		[]string{"intent"},
	)
)
