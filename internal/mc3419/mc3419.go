// Copyright (c) 2026 Sierra Lobo
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package mc3419 drives a memsic MC3419 3-axis accelerometer over I²C.
//
// The chip has two operating modes. Configuration registers can only be
// written in Standby and the output registers only update in Wake; the
// driver enforces both rules and reports violations with regmap.ErrMode.
package mc3419

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/Sierra-Lobo/imu-stamp-sw/internal/imu"
	"github.com/Sierra-Lobo/imu-stamp-sw/internal/regmap"
	"periph.io/x/conn/v3/i2c"
)

// Mode is the operating state.
type Mode uint8

// Operating states.
const (
	Standby Mode = 0b00
	Wake    Mode = 0b01
)

func (m Mode) String() string {
	switch m {
	case Standby:
		return "standby"
	case Wake:
		return "wake"
	default:
		return fmt.Sprintf("Mode(%d)", uint8(m))
	}
}

// Range is the full scale code.
type Range uint8

// Full scale ranges.
const (
	Range2G Range = iota
	Range4G
	Range8G
	Range12G
	Range16G
)

// sensitivity is LSB/g indexed by Range.
var sensitivity = [...]float64{
	Range2G:  16384,
	Range4G:  8192,
	Range8G:  4096,
	Range12G: 2730,
	Range16G: 2048,
}

// Validate checks r is in [0, 4].
func (r Range) Validate() error {
	if int(r) >= len(sensitivity) {
		return regmap.Invalid("range", int(r), "0-4")
	}
	return nil
}

// Sensitivity returns LSB/g for r.
func (r Range) Sensitivity() (float64, error) {
	if err := r.Validate(); err != nil {
		return 0, err
	}
	return sensitivity[r], nil
}

// DataRate is the IDR code.
type DataRate uint8

// Internal data rates.
const (
	Rate50Hz DataRate = iota
	Rate100Hz
	Rate125Hz
	Rate200Hz
	Rate250Hz
	Rate500Hz
	Rate1000Hz
	Rate2000Hz
)

// Validate checks r is in [0, 7].
func (r DataRate) Validate() error {
	if r > Rate2000Hz {
		return regmap.Invalid("data rate", int(r), "0-7")
	}
	return nil
}

// Decimation is the output decimation code. 0 disables decimation.
type Decimation uint8

// Decimation codes.
const (
	DecOff Decimation = iota
	Dec2
	Dec4
	Dec5
	Dec8
	Dec10
	Dec16
	Dec20
	Dec40
	Dec67
	Dec80
	Dec100
	Dec200
	Dec250
	Dec500
	Dec1000
)

// Validate checks d is in [0, 15].
func (d Decimation) Validate() error {
	if d > Dec1000 {
		return regmap.Invalid("decimation", int(d), "0-15")
	}
	return nil
}

// Bandwidth is the LPF_BW code. The legal codes are not contiguous.
type Bandwidth uint8

// Filter bandwidths as fractions of the IDR.
const (
	BWDiv4p255 Bandwidth = 0b001
	BWDiv6     Bandwidth = 0b010
	BWDiv12    Bandwidth = 0b011
	BWDiv16    Bandwidth = 0b101
)

// Validate checks b is one of 1, 2, 3 or 5.
func (b Bandwidth) Validate() error {
	switch b {
	case BWDiv4p255, BWDiv6, BWDiv12, BWDiv16:
		return nil
	}
	return regmap.Invalid("filter bandwidth", int(b), "1, 2, 3 or 5")
}

// Defaults written by Reset.
const (
	DefaultDataRate   = Rate500Hz
	DefaultDecimation = Dec1000
	DefaultRange      = Range2G
	DefaultBandwidth  = BWDiv16
)

// Opts holds the timing of mode changes and reset.
type Opts struct {
	// SettleDelay is waited after every mode transition.
	SettleDelay time.Duration
	// PollInterval is the delay between reads of the reset flag.
	PollInterval time.Duration
	// MaxPolls bounds the reset wait.
	MaxPolls int
}

// DefaultOpts matches the datasheet timing.
var DefaultOpts = Opts{
	SettleDelay:  time.Millisecond,
	PollInterval: 5 * time.Millisecond,
	MaxPolls:     100,
}

// Dev is one MC3419.
type Dev struct {
	regs *regmap.Dev
	opts Opts
}

// New verifies the chip identity at addr and resets the device to the
// driver defaults. The device is left in Standby.
func New(bus i2c.Bus, addr uint16, opts *Opts) (*Dev, error) {
	d := &Dev{
		regs: regmap.New(bus, addr, binary.LittleEndian),
		opts: DefaultOpts,
	}
	if opts != nil {
		d.opts = *opts
	}
	id, err := d.regs.ReadRegister(regChipID)
	if err != nil {
		return nil, err
	}
	if id != ChipID {
		return nil, fmt.Errorf("%w: MC3419 at 0x%02X: CHIP_ID 0x%02X, want 0x%02X", regmap.ErrDeviceNotFound, addr, id, ChipID)
	}
	if err := d.Reset(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Dev) String() string {
	return "MC3419{" + d.regs.String() + "}"
}

// Registers exposes the register accessor to the debug tools.
func (d *Dev) Registers() *regmap.Dev {
	return d.regs
}

// Reset returns the chip to Standby, issues a power-on reset and writes the
// default configuration: 500 Hz IDR, 1000x decimation, ±2g, IDR/16 low pass
// filter enabled and the I²C watchdog armed on both transitions.
func (d *Dev) Reset() error {
	if err := d.SetWake(false); err != nil {
		return err
	}
	if err := d.regs.WriteRegister(regReset, resetCommand); err != nil {
		return err
	}
	if err := d.regs.WaitClear(fieldResetBusy, d.opts.PollInterval, d.opts.MaxPolls); err != nil {
		return fmt.Errorf("MC3419 reset: %w", err)
	}
	if err := d.SetDataRate(DefaultDataRate); err != nil {
		return err
	}
	if err := d.SetDecimation(DefaultDecimation); err != nil {
		return err
	}
	if err := d.SetRange(DefaultRange); err != nil {
		return err
	}
	if err := d.SetBandwidth(DefaultBandwidth); err != nil {
		return err
	}
	if err := d.SetFilterEnable(true); err != nil {
		return err
	}
	return d.regs.WriteField(fieldI2CWDT, 0b11)
}

// Mode returns the current operating state.
func (d *Dev) Mode() (Mode, error) {
	v, err := d.regs.ReadField(fieldState)
	return Mode(v), err
}

// Wake reports whether the device is in Wake.
func (d *Dev) Wake() (bool, error) {
	m, err := d.Mode()
	return m == Wake, err
}

// SetWake moves the device to Wake (true) or Standby (false). Nothing is
// written when the device already is in the requested mode.
func (d *Dev) SetWake(wake bool) error {
	want := Standby
	if wake {
		want = Wake
	}
	cur, err := d.Mode()
	if err != nil {
		return err
	}
	if cur == want {
		return nil
	}
	if err := d.regs.WriteField(fieldModeState, uint8(want)); err != nil {
		return err
	}
	time.Sleep(d.opts.SettleDelay)
	return nil
}

// require fails with ErrMode unless the device is in mode want.
func (d *Dev) require(want Mode, op string) error {
	cur, err := d.Mode()
	if err != nil {
		return err
	}
	if cur != want {
		return fmt.Errorf("%w: MC3419 %s requires %s, device is in %s", regmap.ErrMode, op, want, cur)
	}
	return nil
}

// configure is the single write path for the Standby-only fields.
func (d *Dev) configure(f regmap.Field, v uint8, op string) error {
	if err := d.require(Standby, op); err != nil {
		return err
	}
	return d.regs.WriteField(f, v)
}

// CheckWrite reports whether writing v to reg directly would be accepted
// by the setters: every field must hold a legal code and configuration
// registers may only change in Standby. MODE and RESET are not checked.
func (d *Dev) CheckWrite(reg, v uint8) error {
	var err error
	switch reg {
	case regSR:
		err = DataRate(fieldIDR.Extract(v)).Validate()
	case regRange:
		if err = Range(fieldRange.Extract(v)).Validate(); err == nil {
			err = Bandwidth(fieldLPFBW.Extract(v)).Validate()
		}
	case regRate2:
		err = Decimation(fieldDec.Extract(v)).Validate()
	default:
		return nil
	}
	if err != nil {
		return err
	}
	return d.require(Standby, fmt.Sprintf("write to 0x%02X", reg))
}

// Range returns the full scale code.
func (d *Dev) Range() (Range, error) {
	v, err := d.regs.ReadField(fieldRange)
	return Range(v), err
}

// SetRange sets the full scale. Standby only.
func (d *Dev) SetRange(r Range) error {
	if err := r.Validate(); err != nil {
		return err
	}
	return d.configure(fieldRange, uint8(r), "set range")
}

// Sensitivity returns LSB/g for the current range.
func (d *Dev) Sensitivity() (float64, error) {
	r, err := d.Range()
	if err != nil {
		return 0, err
	}
	return r.Sensitivity()
}

// DataRate returns the internal data rate code.
func (d *Dev) DataRate() (DataRate, error) {
	v, err := d.regs.ReadField(fieldIDR)
	return DataRate(v), err
}

// SetDataRate sets the internal data rate. Standby only.
func (d *Dev) SetDataRate(r DataRate) error {
	if err := r.Validate(); err != nil {
		return err
	}
	return d.configure(fieldIDR, uint8(r), "set data rate")
}

// Decimation returns the decimation code.
func (d *Dev) Decimation() (Decimation, error) {
	v, err := d.regs.ReadField(fieldDec)
	return Decimation(v), err
}

// SetDecimation sets the output decimation. Standby only.
func (d *Dev) SetDecimation(v Decimation) error {
	if err := v.Validate(); err != nil {
		return err
	}
	return d.configure(fieldDec, uint8(v), "set decimation")
}

// Bandwidth returns the low pass filter bandwidth code.
func (d *Dev) Bandwidth() (Bandwidth, error) {
	v, err := d.regs.ReadField(fieldLPFBW)
	return Bandwidth(v), err
}

// SetBandwidth sets the low pass filter bandwidth. Standby only.
func (d *Dev) SetBandwidth(b Bandwidth) error {
	if err := b.Validate(); err != nil {
		return err
	}
	return d.configure(fieldLPFBW, uint8(b), "set filter bandwidth")
}

// FilterEnabled reports whether the low pass filter is on.
func (d *Dev) FilterEnabled() (bool, error) {
	return d.regs.ReadFlag(fieldLPFEn)
}

// SetFilterEnable switches the low pass filter. Standby only.
func (d *Dev) SetFilterEnable(on bool) error {
	var v uint8
	if on {
		v = 1
	}
	return d.configure(fieldLPFEn, v, "set filter enable")
}

// Acceleration returns the acceleration in g. Wake only.
func (d *Dev) Acceleration() (imu.Vec3, error) {
	if err := d.require(Wake, "acceleration"); err != nil {
		return imu.Vec3{}, err
	}
	sens, err := d.Sensitivity()
	if err != nil {
		return imu.Vec3{}, err
	}
	raw, err := d.regs.ReadTriplet(regXoutL)
	if err != nil {
		return imu.Vec3{}, err
	}
	return imu.Scale(raw, sens), nil
}
