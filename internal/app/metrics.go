// Copyright (c) 2026 Sierra Lobo
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/Sierra-Lobo/imu-stamp-sw/internal/imu"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

var (
	samplesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imustamp_samples_total",
			Help: "Samples read from the stamp, by pair.",
		},
		[]string{"pair"},
	)
	sampleErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imustamp_sample_errors_total",
			Help: "Failed sample reads, by pair.",
		},
		[]string{"pair"},
	)
	publishErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "imustamp_publish_errors_total",
		Help: "Failed MQTT publishes.",
	})
	sampleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "imustamp_sample_duration_seconds",
		Help:    "Time to read one pair.",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 10),
	})
	registerOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imustamp_register_ops_total",
			Help: "Register reads and writes issued by the debug server.",
		},
		[]string{"op"},
	)
)

var registerOnce sync.Once

// RegisterMetrics adds the collectors to the default registry. Safe to call
// more than once.
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(samplesTotal)
		prometheus.MustRegister(sampleErrors)
		prometheus.MustRegister(publishErrors)
		prometheus.MustRegister(sampleDuration)
		prometheus.MustRegister(registerOps)
	})
}

// readSample reads one pair and records its duration and outcome.
func readSample(src imu.SampleSource, pair int) (imu.Sample, error) {
	label := strconv.Itoa(pair)
	start := time.Now()
	smp, err := src.Sample(pair)
	sampleDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		sampleErrors.WithLabelValues(label).Inc()
		return smp, err
	}
	samplesTotal.WithLabelValues(label).Inc()
	return smp, nil
}

// serveMetrics exposes the default registry on addr until ctx is done. An
// empty addr disables it.
func serveMetrics(ctx context.Context, addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		log.WithField("addr", addr).Info("metrics listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warnf("metrics server: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
}
