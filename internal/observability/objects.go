// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DynamicDB Contributors

package observability

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dynamicdb/dynamicdb/internal/dynamic"
)

// ObjectCounter reports the number of stored instances per class.
type ObjectCounter interface {
	CountObjects(ctx context.Context) ([]dynamic.ClassCount, error)
}

const collectTimeout = 5 * time.Second

// ObjectCollector exports the instance count of every class at scrape time.
type ObjectCollector struct {
	counter ObjectCounter
	logger  *slog.Logger
	objects *prometheus.Desc
	up      *prometheus.Desc
}

// NewObjectCollector creates a collector over counter.
func NewObjectCollector(counter ObjectCounter, logger *slog.Logger) *ObjectCollector {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ObjectCollector{
		counter: counter,
		logger:  logger,
		objects: prometheus.NewDesc(
			"dynamicdb_objects",
			"Number of stored object instances per class",
			[]string{"class_id", "class"}, nil,
		),
		up: prometheus.NewDesc(
			"dynamicdb_objects_scrape_success",
			"Whether the last count of stored objects succeeded",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *ObjectCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.objects
	ch <- c.up
}

// Collect implements prometheus.Collector.
func (c *ObjectCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), collectTimeout)
	defer cancel()

	counts, err := c.counter.CountObjects(ctx)
	if err != nil {
		c.logger.WarnContext(ctx, "count objects failed", "error", err)
		ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, 0)
		return
	}
	for _, count := range counts {
		ch <- prometheus.MustNewConstMetric(c.objects, prometheus.GaugeValue, float64(count.Objects),
			strconv.FormatInt(count.ClassID, 10), count.Class)
	}
	ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, 1)
}
