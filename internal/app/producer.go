// Copyright (c) 2026 Sierra Lobo
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Sierra-Lobo/imu-stamp-sw/internal/config"
	"github.com/Sierra-Lobo/imu-stamp-sw/internal/imu"
	"github.com/Sierra-Lobo/imu-stamp-sw/internal/stamp"
	"github.com/dustin/go-humanize"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

// Publisher sends one retained message.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

type mqttPublisher struct {
	client mqtt.Client
}

func (p mqttPublisher) Publish(topic string, payload []byte) error {
	token := p.client.Publish(topic, 0, true, payload)
	token.Wait()
	return token.Error()
}

// connectMQTT connects with the given client id.
func connectMQTT(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("MQTT connect %s: %w", broker, token.Error())
	}
	return client, nil
}

// Producer reads every pair of a stamp once per tick and publishes the
// samples as JSON.
type Producer struct {
	Source imu.SampleSource
	Pub    Publisher
	Topic  func(pair int) string

	mu        sync.Mutex
	published uint64
	failed    uint64
	lastErr   time.Time
}

// Tick samples and publishes both pairs. A failing pair does not stop the
// other one; the last error is returned.
func (p *Producer) Tick() error {
	var last error
	for pair := 0; pair < stamp.Pairs; pair++ {
		if err := p.publishPair(pair); err != nil {
			p.mu.Lock()
			p.failed++
			p.lastErr = time.Now()
			p.mu.Unlock()
			log.WithField("pair", pair).Warnf("sample: %v", err)
			last = err
			continue
		}
		p.mu.Lock()
		p.published++
		p.mu.Unlock()
	}
	return last
}

func (p *Producer) publishPair(pair int) error {
	smp, err := readSample(p.Source, pair)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(smp)
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}
	if err := p.Pub.Publish(p.Topic(pair), payload); err != nil {
		publishErrors.Inc()
		return fmt.Errorf("MQTT publish: %w", err)
	}
	log.WithFields(log.Fields{
		"pair":  pair,
		"gyro":  smp.Rotation,
		"accel": smp.Acceleration,
		"mag":   smp.Magnetic,
	}).Debug("published")
	return nil
}

// Stats returns a one line summary of the counters.
func (p *Producer) Stats() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := fmt.Sprintf("published %s samples, %s failed", humanize.Comma(int64(p.published)), humanize.Comma(int64(p.failed)))
	if !p.lastErr.IsZero() {
		s += ", last failure " + humanize.Time(p.lastErr)
	}
	return s
}

// Run ticks every interval until ctx is done. statsEvery <= 0 disables the
// periodic stats line.
func (p *Producer) Run(ctx context.Context, interval, statsEvery time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var stats <-chan time.Time
	if statsEvery > 0 {
		t := time.NewTicker(statsEvery)
		defer t.Stop()
		stats = t.C
	}

	for {
		select {
		case <-ctx.Done():
			log.Info("producer stopping: " + p.Stats())
			return nil
		case <-ticker.C:
			p.Tick()
		case <-stats:
			log.Info(p.Stats())
		}
	}
}

// RunProducer opens the stamp, wakes the accelerometers and publishes
// samples of both pairs until ctx is cancelled.
func RunProducer(ctx context.Context) error {
	cfg := config.Get()
	log.Info("starting imu-stamp producer")

	s, bus, err := OpenStamp(cfg)
	if err != nil {
		return err
	}
	defer bus.Close()

	if err := s.Start(); err != nil {
		return err
	}
	defer func() {
		if err := s.Standby(); err != nil {
			log.Warnf("standby: %v", err)
		}
	}()

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDProducer)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)
	log.WithField("broker", cfg.MQTTBroker).Info("connected to MQTT, starting publish loop")
	serveMetrics(ctx, cfg.MetricsAddr)

	p := &Producer{
		Source: s,
		Pub:    mqttPublisher{client: client},
		Topic:  cfg.PairTopic,
	}
	return p.Run(ctx,
		time.Duration(cfg.SampleInterval)*time.Millisecond,
		time.Duration(cfg.StatsLogInterval)*time.Millisecond)
}
