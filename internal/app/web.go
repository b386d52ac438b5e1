// Copyright (c) 2026 Sierra Lobo
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/Sierra-Lobo/imu-stamp-sw/internal/config"
	"github.com/Sierra-Lobo/imu-stamp-sw/internal/imu"
	"github.com/Sierra-Lobo/imu-stamp-sw/internal/stamp"
	log "github.com/sirupsen/logrus"
)

// PairCache keeps the last sample seen for every pair.
type PairCache struct {
	pairs [stamp.Pairs]latest
}

// Store records s under its pair. Samples with an out of range pair are
// dropped.
func (c *PairCache) Store(s imu.Sample) {
	if s.Pair < 0 || s.Pair >= stamp.Pairs {
		log.WithField("pair", s.Pair).Warn("web: sample for unknown pair dropped")
		return
	}
	c.pairs[s.Pair].set(s)
}

// ServeHTTP serves the latest sample of ?pair=N (default 0).
func (c *PairCache) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	pair := 0
	if p := r.URL.Query().Get("pair"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n >= stamp.Pairs {
			http.Error(w, "invalid pair parameter, use 0 or 1", http.StatusBadRequest)
			return
		}
		pair = n
	}

	s, have := c.pairs[pair].get()
	if !have {
		http.Error(w, "no data yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s); err != nil {
		log.Warnf("web: json encode: %v", err)
	}
}

// RunWeb bridges the producer's MQTT topics to HTTP until ctx is cancelled.
func RunWeb(ctx context.Context) error {
	cfg := config.Get()

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDWeb)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)
	log.WithField("broker", cfg.MQTTBroker).Info("web: connected")

	cache := &PairCache{}
	if err := subscribePairs(client, cfg, cache.Store); err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/api/latest", cache)
	srv := &http.Server{Addr: cfg.WebAddr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.WebAddr).Info("web server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
