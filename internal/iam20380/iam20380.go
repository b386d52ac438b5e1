// Copyright (c) 2026 Sierra Lobo
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package iam20380 drives a TDK InvenSense IAM-20380 3-axis gyroscope over
// I²C.
//
// The chip samples continuously once configured; there is no standby gating
// of the configuration registers. Getters always re-read the device.
package iam20380

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/Sierra-Lobo/imu-stamp-sw/internal/imu"
	"github.com/Sierra-Lobo/imu-stamp-sw/internal/regmap"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// Range is the FS_SEL full scale code.
type Range uint8

// Full scale ranges.
const (
	Range250DPS Range = iota
	Range500DPS
	Range1000DPS
	Range2000DPS
)

// sensitivity is LSB/dps indexed by Range.
var sensitivity = [...]float64{
	Range250DPS:  313.0,
	Range500DPS:  65.5,
	Range1000DPS: 32.8,
	Range2000DPS: 16.4,
}

// Validate checks r is one of the four full scale codes.
func (r Range) Validate() error {
	if int(r) >= len(sensitivity) {
		return regmap.Invalid("range", int(r), "0-3")
	}
	return nil
}

// Sensitivity returns LSB/dps for r.
func (r Range) Sensitivity() (float64, error) {
	if err := r.Validate(); err != nil {
		return 0, err
	}
	return sensitivity[r], nil
}

// DPS returns the full scale in degrees per second.
func (r Range) DPS() int {
	return 250 << r
}

// DLPF is the DLPF_CFG low pass filter code.
type DLPF uint8

// Validate checks d is in [1, 6].
func (d DLPF) Validate() error {
	if d < 1 || d > 6 {
		return regmap.Invalid("dlpf", int(d), "1-6")
	}
	return nil
}

// Averaging is the G_AVGCFG code; the chip averages 2^n samples.
type Averaging uint8

// Averaging codes.
const (
	Avg1 Averaging = iota
	Avg2
	Avg4
	Avg8
	Avg16
	Avg32
	Avg64
	Avg128
)

// Validate checks a is in [0, 7].
func (a Averaging) Validate() error {
	if a > Avg128 {
		return regmap.Invalid("averaging", int(a), "0-7")
	}
	return nil
}

// Samples returns the number of samples averaged.
func (a Averaging) Samples() int {
	return 1 << a
}

// Defaults written by Reset.
const (
	DefaultRange             = Range250DPS
	DefaultDLPF         DLPF = 6
	DefaultSampleRateDiv     = 255
	DefaultAveraging         = Avg128
)

// Opts holds the timing of the reset sequence.
type Opts struct {
	// PollInterval is the delay between reads of the reset bit.
	PollInterval time.Duration
	// MaxPolls bounds the reset wait.
	MaxPolls int
}

// DefaultOpts polls every 10ms for up to one second.
var DefaultOpts = Opts{
	PollInterval: 10 * time.Millisecond,
	MaxPolls:     100,
}

// Dev is one IAM-20380.
type Dev struct {
	regs *regmap.Dev
	opts Opts
}

// New verifies the chip identity at addr and resets the device to the
// driver defaults.
func New(bus i2c.Bus, addr uint16, opts *Opts) (*Dev, error) {
	d := &Dev{
		regs: regmap.New(bus, addr, binary.BigEndian),
		opts: DefaultOpts,
	}
	if opts != nil {
		d.opts = *opts
	}
	id, err := d.regs.ReadRegister(regWhoAmI)
	if err != nil {
		return nil, err
	}
	if id != WhoAmI {
		return nil, fmt.Errorf("%w: IAM-20380 at 0x%02X: WHO_AM_I 0x%02X, want 0x%02X", regmap.ErrDeviceNotFound, addr, id, WhoAmI)
	}
	if err := d.Reset(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Dev) String() string {
	return "IAM-20380{" + d.regs.String() + "}"
}

// Registers exposes the register accessor to the debug tools.
func (d *Dev) Registers() *regmap.Dev {
	return d.regs
}

// Reset performs a device reset and writes the default configuration:
// auto clock, DLPF in path, ±250°/s, DLPF_CFG 6, SMPLRT_DIV 255, 128
// averages and low power duty cycling.
func (d *Dev) Reset() error {
	if err := d.regs.WriteFlag(fieldReset, true); err != nil {
		return err
	}
	if err := d.regs.WaitClear(fieldReset, d.opts.PollInterval, d.opts.MaxPolls); err != nil {
		return fmt.Errorf("IAM-20380 reset: %w", err)
	}
	if err := d.regs.WriteField(fieldClkSel, 1); err != nil {
		return err
	}
	if err := d.regs.WriteFlag(fieldSleep, false); err != nil {
		return err
	}
	if err := d.regs.WriteField(fieldFchoiceB, 0); err != nil {
		return err
	}
	if err := d.SetRange(DefaultRange); err != nil {
		return err
	}
	if err := d.SetDLPF(DefaultDLPF); err != nil {
		return err
	}
	if err := d.SetSampleRateDivider(DefaultSampleRateDiv); err != nil {
		return err
	}
	if err := d.SetAveraging(DefaultAveraging); err != nil {
		return err
	}
	return d.regs.WriteFlag(fieldGyroCycle, true)
}

// CheckWrite reports whether writing v to reg directly would be accepted
// by the setters. The gyroscope has no mode gating, only field codes.
func (d *Dev) CheckWrite(reg, v uint8) error {
	switch reg {
	case regConfig:
		return DLPF(fieldDLPFCfg.Extract(v)).Validate()
	case regGyroConfig:
		return Range(fieldFSSel.Extract(v)).Validate()
	case regLPModeCfg:
		return Averaging(fieldGAvgCfg.Extract(v)).Validate()
	}
	return nil
}

// Range returns the configured full scale.
func (d *Dev) Range() (Range, error) {
	v, err := d.regs.ReadField(fieldFSSel)
	return Range(v), err
}

// SetRange sets the full scale.
func (d *Dev) SetRange(r Range) error {
	if err := r.Validate(); err != nil {
		return err
	}
	return d.regs.WriteField(fieldFSSel, uint8(r))
}

// Sensitivity returns LSB/dps for the current range.
func (d *Dev) Sensitivity() (float64, error) {
	r, err := d.Range()
	if err != nil {
		return 0, err
	}
	return r.Sensitivity()
}

// DLPF returns the low pass filter code.
func (d *Dev) DLPF() (DLPF, error) {
	v, err := d.regs.ReadField(fieldDLPFCfg)
	return DLPF(v), err
}

// SetDLPF sets the low pass filter code.
func (d *Dev) SetDLPF(v DLPF) error {
	if err := v.Validate(); err != nil {
		return err
	}
	return d.regs.WriteField(fieldDLPFCfg, uint8(v))
}

// SampleRateDivider returns SMPLRT_DIV.
func (d *Dev) SampleRateDivider() (uint8, error) {
	return d.regs.ReadRegister(regSmplrtDiv)
}

// SetSampleRateDivider sets SMPLRT_DIV. Every uint8 is legal.
func (d *Dev) SetSampleRateDivider(v uint8) error {
	return d.regs.WriteRegister(regSmplrtDiv, v)
}

// Averaging returns the averaging code.
func (d *Dev) Averaging() (Averaging, error) {
	v, err := d.regs.ReadField(fieldGAvgCfg)
	return Averaging(v), err
}

// SetAveraging sets the averaging code.
func (d *Dev) SetAveraging(a Averaging) error {
	if err := a.Validate(); err != nil {
		return err
	}
	return d.regs.WriteField(fieldGAvgCfg, uint8(a))
}

// Temperature returns the die temperature in °C.
func (d *Dev) Temperature() (float64, error) {
	raw, err := d.regs.ReadUint16(regTempOutH)
	if err != nil {
		return 0, err
	}
	return TemperatureFromRaw(raw), nil
}

// SenseTemperature fills e.Temperature with the die temperature.
func (d *Dev) SenseTemperature(e *physic.Env) error {
	c, err := d.Temperature()
	if err != nil {
		return err
	}
	e.Temperature = physic.ZeroCelsius + physic.Temperature(c*float64(physic.Celsius))
	return nil
}

// TemperatureFromRaw converts TEMP_OUT to °C. TEMP_OUT is two's complement,
// not unsigned: 0xFFFF is just under 25 °C, not 225.5 °C.
func TemperatureFromRaw(raw uint16) float64 {
	return float64(int16(raw))/326.8 + 25
}

// Rotation returns the angular rate in degrees per second.
func (d *Dev) Rotation() (imu.Vec3, error) {
	sens, err := d.Sensitivity()
	if err != nil {
		return imu.Vec3{}, err
	}
	raw, err := d.regs.ReadTriplet(regGyroXoutH)
	if err != nil {
		return imu.Vec3{}, err
	}
	return imu.Scale(raw, sens), nil
}
