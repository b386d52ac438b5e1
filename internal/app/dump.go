// Copyright (c) 2026 Sierra Lobo
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Sierra-Lobo/imu-stamp-sw/internal/config"
	"github.com/Sierra-Lobo/imu-stamp-sw/internal/regmap"
	"github.com/Sierra-Lobo/imu-stamp-sw/internal/stamp"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// RegisterValue is one register read back from a device.
type RegisterValue struct {
	Address string           `json:"address" yaml:"address"`
	Name    string           `json:"name" yaml:"name"`
	Value   string           `json:"value" yaml:"value"`
	Fields  map[string]uint8 `json:"fields,omitempty" yaml:"fields,omitempty"`
}

// DeviceSnapshot is the readable register content of one device.
type DeviceSnapshot struct {
	Name      string          `json:"name" yaml:"name"`
	Chip      string          `json:"chip" yaml:"chip"`
	Addr      string          `json:"addr" yaml:"addr"`
	Registers []RegisterValue `json:"registers" yaml:"registers"`
}

// Snapshot is a register dump of a whole stamp.
type Snapshot struct {
	Version   int              `json:"version" yaml:"version"`
	Timestamp time.Time        `json:"timestamp" yaml:"timestamp"`
	Devices   []DeviceSnapshot `json:"devices" yaml:"devices"`
}

// fieldSpan parses a "hi:lo" or "n" bit span back into a Field.
func fieldSpan(reg uint8, bits string) (regmap.Field, error) {
	var hi, lo uint8
	if n, _ := fmt.Sscanf(bits, "%d:%d", &hi, &lo); n == 2 {
		return regmap.Bits(reg, hi-lo+1, lo), nil
	}
	if _, err := fmt.Sscanf(bits, "%d", &lo); err != nil {
		return regmap.Field{}, fmt.Errorf("bad bit span %q", bits)
	}
	return regmap.Bit(reg, lo), nil
}

// SnapshotDevice reads every readable register in the device's map.
func SnapshotDevice(d stamp.Device) (DeviceSnapshot, error) {
	out := DeviceSnapshot{
		Name: d.Name,
		Chip: d.Chip,
		Addr: d.Regs.String(),
	}
	for _, info := range d.Registers {
		if !info.Readable() {
			continue
		}
		v, err := d.Regs.ReadRegister(info.Address)
		if err != nil {
			return out, fmt.Errorf("%s: %w", d.Name, err)
		}
		rv := RegisterValue{
			Address: fmt.Sprintf("0x%02X", info.Address),
			Name:    info.Name,
			Value:   fmt.Sprintf("0x%02X", v),
		}
		for _, bf := range info.BitFields {
			f, err := fieldSpan(info.Address, bf.Bits)
			if err != nil {
				continue
			}
			if rv.Fields == nil {
				rv.Fields = map[string]uint8{}
			}
			rv.Fields[bf.Name] = f.Extract(v)
		}
		out.Registers = append(out.Registers, rv)
	}
	return out, nil
}

// TakeSnapshot dumps all six devices.
func TakeSnapshot(s *stamp.Stamp) (Snapshot, error) {
	snap := Snapshot{Version: 1, Timestamp: time.Now().UTC()}
	for _, d := range s.Devices() {
		ds, err := SnapshotDevice(d)
		if err != nil {
			return snap, err
		}
		snap.Devices = append(snap.Devices, ds)
	}
	return snap, nil
}

// WriteSnapshot encodes snap as YAML.
func WriteSnapshot(w io.Writer, snap Snapshot) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(snap); err != nil {
		return err
	}
	return enc.Close()
}

// RunDump writes a YAML register snapshot of the stamp to path, or stdout
// when path is empty or "-".
func RunDump(path string) error {
	cfg := config.Get()
	s, bus, err := OpenStamp(cfg)
	if err != nil {
		return err
	}
	defer bus.Close()

	snap, err := TakeSnapshot(s)
	if err != nil {
		return err
	}
	if path == "" || path == "-" {
		return WriteSnapshot(os.Stdout, snap)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := WriteSnapshot(f, snap); err != nil {
		return err
	}
	log.WithField("path", path).Info("register snapshot written")
	return nil
}

// RunReset builds the stamp and resets all six devices with ResetAll.
func RunReset() error {
	cfg := config.Get()
	bus, err := OpenBus(cfg)
	if err != nil {
		return err
	}
	defer bus.Close()

	s, err := stamp.New(bus, cfg.BoardXOR1, cfg.BoardXOR2, nil)
	if err != nil {
		return err
	}
	if err := s.ResetAll(); err != nil {
		return err
	}
	for _, n := range s.Addresses().List() {
		log.WithFields(log.Fields{"device": n.Name, "addr": fmt.Sprintf("0x%02X", n.Addr)}).Info("reset")
	}
	return nil
}
