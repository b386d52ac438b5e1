// Copyright (c) 2026 Sierra Lobo
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"

	"github.com/Sierra-Lobo/imu-stamp-sw/internal/config"
	"github.com/Sierra-Lobo/imu-stamp-sw/internal/i2csim"
	"github.com/Sierra-Lobo/imu-stamp-sw/internal/stamp"
	log "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// OpenBus opens the configured I²C bus, or a simulated stamp when SIMULATE
// is set.
func OpenBus(cfg *config.Config) (i2c.BusCloser, error) {
	if cfg.Simulate {
		log.WithField("xor", fmt.Sprintf("0x%02X/0x%02X", cfg.BoardXOR1, cfg.BoardXOR2)).Info("using simulated I2C bus")
		return i2csim.NewStamp(cfg.BoardXOR1, cfg.BoardXOR2), nil
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	bus, err := i2creg.Open(cfg.I2CBus)
	if err != nil {
		return nil, fmt.Errorf("open I2C bus %q: %w", cfg.I2CBus, err)
	}
	log.WithField("bus", bus.String()).Info("opened I2C bus")
	return bus, nil
}

// OpenStamp opens the bus, builds the six drivers and applies the
// configured profile. The accelerometers are left in Standby.
func OpenStamp(cfg *config.Config) (*stamp.Stamp, i2c.BusCloser, error) {
	bus, err := OpenBus(cfg)
	if err != nil {
		return nil, nil, err
	}
	s, err := stamp.New(bus, cfg.BoardXOR1, cfg.BoardXOR2, nil)
	if err != nil {
		bus.Close()
		return nil, nil, err
	}
	for _, n := range s.Addresses().List() {
		log.WithFields(log.Fields{"device": n.Name, "addr": fmt.Sprintf("0x%02X", n.Addr)}).Debug("device ready")
	}
	p := cfg.Profile()
	if err := s.Configure(p); err != nil {
		bus.Close()
		return nil, nil, err
	}
	log.WithFields(log.Fields{
		"gyro_dps":      p.GyroRange.DPS(),
		"gyro_averages": p.GyroAveraging.Samples(),
		"accel_range":   p.AccelRange,
	}).Info("profile applied")
	return s, bus, nil
}
