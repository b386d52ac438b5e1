// Copyright (c) 2026 Sierra Lobo
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/Sierra-Lobo/imu-stamp-sw/internal/config"
	"github.com/Sierra-Lobo/imu-stamp-sw/internal/imu"
	log "github.com/sirupsen/logrus"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
)

// Panel is the part of a display the renderer needs. *ssd1306.Dev
// implements it.
type Panel interface {
	Bounds() image.Rectangle
	Draw(r image.Rectangle, src image.Image, sp image.Point) error
}

// latest holds the most recent sample of the displayed pair.
type latest struct {
	mu     sync.RWMutex
	sample imu.Sample
	have   bool
}

func (l *latest) set(s imu.Sample) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sample = s
	l.have = true
}

func (l *latest) get() (imu.Sample, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sample, l.have
}

// newCanvas returns a blank 128x64 image with a drawer for basicfont text.
func newCanvas() (*image1bit.VerticalLSB, *font.Drawer) {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, 128, 64))
	return img, &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
}

// drawLines writes up to four lines of text, 13 px apart.
func drawLines(d *font.Drawer, x int, lines ...string) {
	for i, line := range lines {
		d.Dot = fixed.P(x, 13*(i+1))
		d.DrawString(line)
	}
}

// RenderSample draws gyro, accel and mag of one pair.
func RenderSample(pair int, s imu.Sample, have bool) image.Image {
	img, d := newCanvas()
	if !have {
		drawLines(d, 0, "", fmt.Sprintf("Pair %d", pair), "Waiting...")
		return img
	}
	drawLines(d, 0,
		fmt.Sprintf("P%d %5.1fC", pair, s.GyroTemp),
		fmt.Sprintf("G%6.0f%6.0f%6.0f", s.Rotation.X, s.Rotation.Y, s.Rotation.Z),
		fmt.Sprintf("A%6.2f%6.2f%6.2f", s.Acceleration.X, s.Acceleration.Y, s.Acceleration.Z),
		fmt.Sprintf("M%6.0f%6.0f%6.0f", s.Magnetic.X, s.Magnetic.Y, s.Magnetic.Z),
	)
	return img
}

func renderSplash() image.Image {
	img, d := newCanvas()
	drawLines(d, 10, "", "IMU Stamp", "Starting...")
	return img
}

// ssd1306Addr is the address the periph driver always talks to.
const ssd1306Addr = 0x3C

// remapBus forwards every transaction, moving the fixed SSD1306 address
// to the configured one.
type remapBus struct {
	i2c.Bus
	to uint16
}

func (b remapBus) Tx(addr uint16, w, r []byte) error {
	if addr == ssd1306Addr {
		addr = b.to
	}
	return b.Bus.Tx(addr, w, r)
}

func show(p Panel, img image.Image) error {
	return p.Draw(p.Bounds(), img, image.Point{})
}

// RunDisplay shows the configured pair on an SSD1306 until ctx is
// cancelled. Samples arrive over MQTT from the producer.
func RunDisplay(ctx context.Context) error {
	cfg := config.Get()

	bus, err := OpenBus(cfg)
	if err != nil {
		return err
	}
	defer bus.Close()

	dev, err := ssd1306.NewI2C(remapBus{Bus: bus, to: cfg.DisplayI2CAddr}, &ssd1306.DefaultOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize display: %w", err)
	}
	log.WithField("addr", fmt.Sprintf("0x%02X", cfg.DisplayI2CAddr)).Info("display initialized")
	if err := show(dev, renderSplash()); err != nil {
		log.Warnf("display: splash: %v", err)
	}

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDDisplay)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	data := &latest{}
	if err := subscribePairs(client, cfg, func(s imu.Sample) {
		if s.Pair == cfg.DisplayPair {
			data.set(s)
		}
	}); err != nil {
		return err
	}

	ticker := time.NewTicker(time.Duration(cfg.DisplayUpdateInterval) * time.Millisecond)
	defer ticker.Stop()
	log.Info("display: starting update loop")

	for {
		select {
		case <-ctx.Done():
			return dev.Halt()
		case <-ticker.C:
			s, have := data.get()
			if err := show(dev, RenderSample(cfg.DisplayPair, s, have)); err != nil {
				log.Warnf("display: update: %v", err)
			}
		}
	}
}
