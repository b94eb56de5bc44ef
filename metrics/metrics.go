// Copyright 2020 The Topomap Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics holds the Prometheus collectors of the synchroniser.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Tick outcomes used as the status label of TicksTotal.
const (
	StatusOK             = "ok"
	StatusTransportError = "transport_error"
	StatusPushError      = "push_error"
)

// Stages used as the stage label of DataErrors.
const (
	StageBuild = "build"
	StageMerge = "merge"
)

var (
	// TicksTotal counts broadcast ticks by outcome
	TicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "topomap_ticks_total",
			Help: "Total number of broadcast ticks",
		},
		[]string{"status"},
	)

	// TickDuration tracks the time spent ingesting, recomputing and publishing
	TickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "topomap_tick_duration_seconds",
			Help:    "Duration of a broadcast tick",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 3},
		},
	)

	// PushFailures counts payloads the push channel refused
	PushFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "topomap_push_failures_total",
			Help: "Total number of failed push publications",
		},
	)

	// DataErrors counts skipped entries
	DataErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "topomap_data_errors_total",
			Help: "Total number of registry entries skipped as invalid",
		},
		[]string{"stage"},
	)

	// UpdatesApplied counts merged registry updates
	UpdatesApplied = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "topomap_updates_applied_total",
			Help: "Total number of registry updates merged into node state",
		},
	)

	// Watermark exposes the timestamp of the most recent applied update
	Watermark = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "topomap_watermark",
			Help: "Timestamp of the most recent applied registry update",
		},
	)

	// LinksActive tracks the number of links with both endpoints active
	LinksActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "topomap_links_active",
			Help: "Number of links whose endpoints are both active",
		},
	)

	// BroadcastPeriod exposes the current broadcast interval
	BroadcastPeriod = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "topomap_broadcast_period_seconds",
			Help: "Current broadcast interval",
		},
	)

	// Subscribers tracks connected push subscribers
	Subscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "topomap_subscribers",
			Help: "Number of connected push subscribers",
		},
	)
)
