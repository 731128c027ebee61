// Copyright 2026 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"gvisor.dev/faultguard/pkg/faultguard"
)

// metricNamespace prefixes every exported metric.
const metricNamespace = "faultguard"

// statsCollector exports faultguard.ReadStats as Prometheus metrics.
type statsCollector struct {
	calls     *prometheus.Desc
	installed *prometheus.Desc
}

func newStatsCollector() *statsCollector {
	return &statsCollector{
		calls: prometheus.NewDesc(
			prometheus.BuildFQName(metricNamespace, "", "guarded_calls_total"),
			"Guarded calls by outcome.",
			[]string{"outcome"}, nil),
		installed: prometheus.NewDesc(
			prometheus.BuildFQName(metricNamespace, "", "trap_installed"),
			"Whether the fault trap is installed.",
			nil, nil),
	}
}

// Describe implements prometheus.Collector.Describe.
func (c *statsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.calls
	ch <- c.installed
}

// Collect implements prometheus.Collector.Collect.
func (c *statsCollector) Collect(ch chan<- prometheus.Metric) {
	s := faultguard.ReadStats()
	for _, v := range []struct {
		outcome string
		n       uint64
	}{
		{faultguard.Completed.String(), s.Completed},
		{faultguard.Recovered.String(), s.Recovered},
		{faultguard.AlreadyGuarded.String(), s.AlreadyGuarded},
		{"propagated", s.Propagated},
	} {
		ch <- prometheus.MustNewConstMetric(c.calls, prometheus.CounterValue, float64(v.n), v.outcome)
	}
	installed := 0.0
	if faultguard.Installed() {
		installed = 1
	}
	ch <- prometheus.MustNewConstMetric(c.installed, prometheus.GaugeValue, installed)
}

// writeMetrics writes the guarded call counters to w in the Prometheus text
// exposition format.
func writeMetrics(w io.Writer) error {
	reg := prometheus.NewPedanticRegistry()
	if err := reg.Register(newStatsCollector()); err != nil {
		return fmt.Errorf("registering collector: %w", err)
	}
	families, err := reg.Gather()
	if err != nil {
		return fmt.Errorf("gathering metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
