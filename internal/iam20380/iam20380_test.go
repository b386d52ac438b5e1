// Copyright (c) 2026 Sierra Lobo
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package iam20380

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/Sierra-Lobo/imu-stamp-sw/internal/i2csim"
	"github.com/Sierra-Lobo/imu-stamp-sw/internal/regmap"
	"periph.io/x/conn/v3/physic"
)

const addr = 0x68

var fastOpts = &Opts{PollInterval: time.Microsecond, MaxPolls: 5}

func newTestDev(t *testing.T) (*Dev, *i2csim.Bus, *i2csim.Chip) {
	t.Helper()
	bus := i2csim.New()
	chip := bus.Attach(addr, i2csim.NewIAM20380())
	d, err := New(bus, addr, fastOpts)
	if err != nil {
		t.Fatal(err)
	}
	bus.ClearLog()
	return d, bus, chip
}

func TestNewWrongChip(t *testing.T) {
	bus := i2csim.New()
	chip := bus.Attach(addr, i2csim.NewIAM20380())
	chip.Set(regWhoAmI, 0x68)
	_, err := New(bus, addr, fastOpts)
	if !errors.Is(err, regmap.ErrDeviceNotFound) {
		t.Fatalf("New = %v, want ErrDeviceNotFound", err)
	}
	if w := bus.Writes(0); len(w) != 0 {
		t.Fatalf("New wrote to a foreign chip: %v", w)
	}
}

func TestNewNoDevice(t *testing.T) {
	_, err := New(i2csim.New(), addr, fastOpts)
	if !errors.Is(err, regmap.ErrBus) {
		t.Fatalf("New = %v, want ErrBus", err)
	}
}

func TestSensitivity(t *testing.T) {
	want := []float64{313.0, 65.5, 32.8, 16.4}
	for code, w := range want {
		got, err := Range(code).Sensitivity()
		if err != nil {
			t.Fatal(err)
		}
		if got != w {
			t.Errorf("Range(%d).Sensitivity() = %v, want %v", code, got, w)
		}
	}
	if _, err := Range(4).Sensitivity(); !errors.Is(err, regmap.ErrValidation) {
		t.Errorf("Range(4).Sensitivity() = %v, want ErrValidation", err)
	}
}

func TestResetDefaults(t *testing.T) {
	d, _, chip := newTestDev(t)
	// Scribble over the configuration, then reset again.
	chip.Set(regConfig, 0x01)
	chip.Set(regGyroConfig, 0x18)
	chip.Set(regSmplrtDiv, 0x07)
	if err := d.Reset(); err != nil {
		t.Fatal(err)
	}
	if r, _ := d.Range(); r != DefaultRange {
		t.Errorf("range = %d, want %d", r, DefaultRange)
	}
	if v, _ := d.DLPF(); v != 6 {
		t.Errorf("dlpf = %d, want 6", v)
	}
	if v, _ := d.SampleRateDivider(); v != 255 {
		t.Errorf("sample rate divider = %d, want 255", v)
	}
	if v, _ := d.Averaging(); v != Avg128 {
		t.Errorf("averaging = %d, want 7", v)
	}
	if v := chip.Get(regGyroConfig) & 0x03; v != 0 {
		t.Errorf("FCHOICE_B = %d, want 0", v)
	}
	if v := chip.Get(regLPModeCfg) & 0x80; v == 0 {
		t.Error("GYRO_CYCLE not set")
	}
	if v := chip.Get(regPwrMgmt1); v != 0x01 {
		t.Errorf("PWR_MGMT_1 = 0x%02X, want 0x01", v)
	}
}

func TestResetTimeout(t *testing.T) {
	d, _, chip := newTestDev(t)
	chip.Stuck = true
	if err := d.Reset(); !errors.Is(err, regmap.ErrTimeout) {
		t.Fatalf("Reset = %v, want ErrTimeout", err)
	}
}

func TestSettersValidate(t *testing.T) {
	d, bus, _ := newTestDev(t)
	tests := []struct {
		name string
		set  func() error
	}{
		{"range 4", func() error { return d.SetRange(4) }},
		{"dlpf 0", func() error { return d.SetDLPF(0) }},
		{"dlpf 7", func() error { return d.SetDLPF(7) }},
		{"averaging 8", func() error { return d.SetAveraging(8) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus.ClearLog()
			if err := tt.set(); !errors.Is(err, regmap.ErrValidation) {
				t.Fatalf("got %v, want ErrValidation", err)
			}
			if ops := bus.Ops(); len(ops) != 0 {
				t.Fatalf("bus traffic on invalid value: %v", ops)
			}
		})
	}
}

func TestSetRangePreservesFchoice(t *testing.T) {
	d, _, chip := newTestDev(t)
	chip.Set(regGyroConfig, 0x02)
	if err := d.SetRange(Range2000DPS); err != nil {
		t.Fatal(err)
	}
	if got := chip.Get(regGyroConfig); got != 0x1A {
		t.Fatalf("GYRO_CONFIG = 0x%02X, want 0x1A", got)
	}
}

func TestCheckWrite(t *testing.T) {
	d, bus, _ := newTestDev(t)
	tests := []struct {
		reg, v uint8
		ok     bool
	}{
		{regConfig, 0x03, true},
		{regConfig, 0x00, false},
		{regConfig, 0x07, false},
		{regGyroConfig, 0x18, true},
		{regLPModeCfg, 0xF0, true},
		{regSmplrtDiv, 0x00, true},
	}
	for _, tt := range tests {
		bus.ClearLog()
		err := d.CheckWrite(tt.reg, tt.v)
		if tt.ok && err != nil {
			t.Errorf("CheckWrite(0x%02X, 0x%02X) = %v", tt.reg, tt.v, err)
		}
		if !tt.ok && !errors.Is(err, regmap.ErrValidation) {
			t.Errorf("CheckWrite(0x%02X, 0x%02X) = %v, want ErrValidation", tt.reg, tt.v, err)
		}
		if n := len(bus.Writes(0)); n != 0 {
			t.Errorf("CheckWrite wrote %d times", n)
		}
	}
}

func TestScaleHelpers(t *testing.T) {
	for r, want := range []int{250, 500, 1000, 2000} {
		if got := Range(r).DPS(); got != want {
			t.Errorf("Range(%d).DPS() = %d, want %d", r, got, want)
		}
	}
	if got := Avg1.Samples(); got != 1 {
		t.Errorf("Avg1.Samples() = %d", got)
	}
	if got := DefaultAveraging.Samples(); got != 128 {
		t.Errorf("DefaultAveraging.Samples() = %d", got)
	}
}

func TestRotation(t *testing.T) {
	d, _, chip := newTestDev(t)
	for r := Range250DPS; r <= Range2000DPS; r++ {
		if err := d.SetRange(r); err != nil {
			t.Fatal(err)
		}
		sens := sensitivity[r]
		want := [3]float64{10, -42.5, 0}
		var raw [3]uint16
		for i, w := range want {
			raw[i] = uint16(math.Round(w*sens + 32768))
		}
		chip.SetOutput16(regGyroXoutH, binary.BigEndian, raw[:]...)
		got, err := d.Rotation()
		if err != nil {
			t.Fatal(err)
		}
		tol := 1 / sens
		for i, g := range [3]float64{got.X, got.Y, got.Z} {
			if math.Abs(g-want[i]) > tol {
				t.Errorf("range %d axis %d = %v, want %v", r, i, g, want[i])
			}
		}
	}
}

func TestTemperature(t *testing.T) {
	d, _, chip := newTestDev(t)
	tests := []struct {
		raw  uint16
		want float64
	}{
		{0x0000, 25},
		{3268, 35},
		{0xFFFF - 3267, 15},
		{0xFFFF, 25 - 1/326.8},
	}
	for _, tt := range tests {
		chip.SetOutput16(regTempOutH, binary.BigEndian, tt.raw)
		got, err := d.Temperature()
		if err != nil {
			t.Fatal(err)
		}
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("raw 0x%04X: %v°C, want %v", tt.raw, got, tt.want)
		}
	}
	var e physic.Env
	if err := d.SenseTemperature(&e); err != nil {
		t.Fatal(err)
	}
	if c := float64(e.Temperature-physic.ZeroCelsius) / float64(physic.Celsius); math.Abs(c-15) > 0.01 {
		t.Errorf("SenseTemperature = %v°C, want 15", c)
	}
}
