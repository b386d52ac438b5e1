// Copyright (c) 2026 Sierra Lobo
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/Sierra-Lobo/imu-stamp-sw/internal/config"
	"github.com/Sierra-Lobo/imu-stamp-sw/internal/imu"
	"github.com/Sierra-Lobo/imu-stamp-sw/internal/stamp"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

// FormatSample renders one sample as a console line.
func FormatSample(s imu.Sample) string {
	return fmt.Sprintf(
		"[PAIR%d] gx=%8.2f gy=%8.2f gz=%8.2f dps  ax=%6.3f ay=%6.3f az=%6.3f g  mx=%8.2f my=%8.2f mz=%8.2f uT  t=%5.1fC",
		s.Pair,
		s.Rotation.X, s.Rotation.Y, s.Rotation.Z,
		s.Acceleration.X, s.Acceleration.Y, s.Acceleration.Z,
		s.Magnetic.X, s.Magnetic.Y, s.Magnetic.Z,
		s.GyroTemp,
	)
}

// sampleHandler decodes a sample message and passes it to fn.
func sampleHandler(fn func(imu.Sample)) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		var s imu.Sample
		if err := json.Unmarshal(msg.Payload(), &s); err != nil {
			log.WithField("topic", msg.Topic()).Warnf("sample unmarshal: %v", err)
			return
		}
		fn(s)
	}
}

// subscribePairs subscribes fn to the sample topic of every pair.
func subscribePairs(client mqtt.Client, cfg *config.Config, fn func(imu.Sample)) error {
	for pair := 0; pair < stamp.Pairs; pair++ {
		topic := cfg.PairTopic(pair)
		token := client.Subscribe(topic, 0, sampleHandler(fn))
		token.Wait()
		if token.Error() != nil {
			return fmt.Errorf("subscribe %s: %w", topic, token.Error())
		}
		log.WithField("topic", topic).Info("subscribed")
	}
	return nil
}

// RunConsole prints every published sample until ctx is cancelled.
func RunConsole(ctx context.Context) error {
	return runConsole(ctx, os.Stdout)
}

func runConsole(ctx context.Context, w io.Writer) error {
	cfg := config.Get()
	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDConsole)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)
	log.WithField("broker", cfg.MQTTBroker).Info("console: connected")

	if err := subscribePairs(client, cfg, func(s imu.Sample) {
		fmt.Fprintln(w, FormatSample(s))
	}); err != nil {
		return err
	}

	<-ctx.Done()
	log.Info("console: shutting down")
	return nil
}
