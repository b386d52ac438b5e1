// Copyright (c) 2026 Sierra Lobo
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package mmc5603 drives a memsic MMC5603 3-axis magnetometer over I²C in
// one-shot mode.
package mmc5603

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/Sierra-Lobo/imu-stamp-sw/internal/imu"
	"github.com/Sierra-Lobo/imu-stamp-sw/internal/regmap"
	"periph.io/x/conn/v3/i2c"
)

// ProductID is the expected content of the Product_ID register.
const ProductID = 0x10

const (
	regXout0    = 0x00
	regTout     = 0x09
	regStatus1  = 0x18
	regODR      = 0x1A
	regCtrl0    = 0x1B
	regCtrl1    = 0x1C
	regCtrl2    = 0x1D
	regProduct  = 0x39
	center20bit = 1 << 19
	// MicroTeslaPerLSB is the 20-bit output resolution.
	MicroTeslaPerLSB = 0.00625
)

var (
	fieldMeasMDone = regmap.Bit(regStatus1, 6)
	fieldMeasTDone = regmap.Bit(regStatus1, 7)
)

const (
	ctrl0TakeMeasM = 1 << 0
	ctrl0TakeMeasT = 1 << 1
	ctrl0DoSet     = 1 << 3
	ctrl0DoReset   = 1 << 4
	ctrl1SWReset   = 1 << 7
)

// Opts holds the timing of reset and measurements.
type Opts struct {
	// ResetDelay is waited after a software reset.
	ResetDelay time.Duration
	// PulseDelay is waited after each SET/RESET pulse.
	PulseDelay time.Duration
	// PollInterval is the delay between reads of the measurement-done flags.
	PollInterval time.Duration
	// MaxPolls bounds the measurement wait.
	MaxPolls int
}

// DefaultOpts matches the datasheet timing.
var DefaultOpts = Opts{
	ResetDelay:   20 * time.Millisecond,
	PulseDelay:   time.Millisecond,
	PollInterval: 5 * time.Millisecond,
	MaxPolls:     20,
}

// Dev is one MMC5603.
type Dev struct {
	regs *regmap.Dev
	opts Opts
}

// New verifies the chip identity at addr and resets the device.
func New(bus i2c.Bus, addr uint16, opts *Opts) (*Dev, error) {
	d := &Dev{
		regs: regmap.New(bus, addr, binary.BigEndian),
		opts: DefaultOpts,
	}
	if opts != nil {
		d.opts = *opts
	}
	id, err := d.regs.ReadRegister(regProduct)
	if err != nil {
		return nil, err
	}
	if id != ProductID {
		return nil, fmt.Errorf("%w: MMC5603 at 0x%02X: Product_ID 0x%02X, want 0x%02X", regmap.ErrDeviceNotFound, addr, id, ProductID)
	}
	if err := d.Reset(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Dev) String() string {
	return "MMC5603{" + d.regs.String() + "}"
}

// Registers exposes the register accessor to the debug tools.
func (d *Dev) Registers() *regmap.Dev {
	return d.regs
}

// Reset issues a software reset followed by a SET and a RESET pulse to
// remove any residual magnetization of the sensing elements.
func (d *Dev) Reset() error {
	if err := d.regs.WriteRegister(regCtrl1, ctrl1SWReset); err != nil {
		return err
	}
	time.Sleep(d.opts.ResetDelay)
	if err := d.regs.WriteRegister(regCtrl0, ctrl0DoSet); err != nil {
		return err
	}
	time.Sleep(d.opts.PulseDelay)
	if err := d.regs.WriteRegister(regCtrl0, ctrl0DoReset); err != nil {
		return err
	}
	time.Sleep(d.opts.PulseDelay)
	return nil
}

// measure triggers a one-shot measurement and waits for its done flag.
func (d *Dev) measure(cmd uint8, done regmap.Field) error {
	if err := d.regs.WriteRegister(regCtrl0, cmd); err != nil {
		return err
	}
	for i := 0; i < d.opts.MaxPolls; i++ {
		ok, err := d.regs.ReadFlag(done)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		time.Sleep(d.opts.PollInterval)
	}
	return fmt.Errorf("%w: MMC5603 %s measurement not done after %d polls", regmap.ErrTimeout, d.regs, d.opts.MaxPolls)
}

// MagneticField takes a one-shot measurement and returns the field in µT.
func (d *Dev) MagneticField() (imu.Vec3, error) {
	if err := d.measure(ctrl0TakeMeasM, fieldMeasMDone); err != nil {
		return imu.Vec3{}, err
	}
	var buf [9]byte
	if err := d.regs.ReadBlock(regXout0, buf[:]); err != nil {
		return imu.Vec3{}, err
	}
	return FieldFromRaw(buf), nil
}

// FieldFromRaw converts the Xout0..Zout2 block to µT. Each axis is a 20-bit
// unsigned code: two high bytes plus the upper nibble of its *out2 byte.
func FieldFromRaw(buf [9]byte) imu.Vec3 {
	axis := func(hi, mid, lo byte) float64 {
		raw := uint32(hi)<<12 | uint32(mid)<<4 | uint32(lo)>>4
		return float64(int32(raw)-center20bit) * MicroTeslaPerLSB
	}
	return imu.Vec3{
		X: axis(buf[0], buf[1], buf[6]),
		Y: axis(buf[2], buf[3], buf[7]),
		Z: axis(buf[4], buf[5], buf[8]),
	}
}

// Temperature takes a one-shot measurement and returns °C.
func (d *Dev) Temperature() (float64, error) {
	if err := d.measure(ctrl0TakeMeasT, fieldMeasTDone); err != nil {
		return 0, err
	}
	v, err := d.regs.ReadRegister(regTout)
	if err != nil {
		return 0, err
	}
	return float64(v)*0.8 - 75, nil
}

// RegisterMap describes the registers the driver touches.
func RegisterMap() []regmap.RegisterInfo {
	return []regmap.RegisterInfo{
		{Address: regXout0, Name: "Xout0", Description: "X-Axis bits 19:12", Access: "R"},
		{Address: regXout0 + 1, Name: "Xout1", Description: "X-Axis bits 11:4", Access: "R"},
		{Address: regXout0 + 2, Name: "Yout0", Description: "Y-Axis bits 19:12", Access: "R"},
		{Address: regXout0 + 3, Name: "Yout1", Description: "Y-Axis bits 11:4", Access: "R"},
		{Address: regXout0 + 4, Name: "Zout0", Description: "Z-Axis bits 19:12", Access: "R"},
		{Address: regXout0 + 5, Name: "Zout1", Description: "Z-Axis bits 11:4", Access: "R"},
		{Address: regXout0 + 6, Name: "Xout2", Description: "X-Axis bits 3:0 in 7:4", Access: "R"},
		{Address: regXout0 + 7, Name: "Yout2", Description: "Y-Axis bits 3:0 in 7:4", Access: "R"},
		{Address: regXout0 + 8, Name: "Zout2", Description: "Z-Axis bits 3:0 in 7:4", Access: "R"},
		{Address: regTout, Name: "Tout", Description: "Temperature, 0.8 °C/LSB, -75 °C at 0", Access: "R"},
		{Address: regStatus1, Name: "Status1", Description: "Device Status", Access: "R",
			BitFields: []regmap.BitField{
				{Bits: regmap.FieldBits(fieldMeasTDone), Name: "Meas_t_done", Description: "Temperature measurement done"},
				{Bits: regmap.FieldBits(fieldMeasMDone), Name: "Meas_m_done", Description: "Magnetic measurement done"},
			}},
		{Address: regODR, Name: "ODR", Description: "Output Data Rate", Access: "W"},
		{Address: regCtrl0, Name: "Internal_Control_0", Description: "Measurement triggers", Access: "W",
			BitFields: []regmap.BitField{
				{Bits: "4", Name: "Do_Reset", Description: "RESET pulse"},
				{Bits: "3", Name: "Do_Set", Description: "SET pulse"},
				{Bits: "1", Name: "Take_meas_T", Description: "Trigger temperature measurement"},
				{Bits: "0", Name: "Take_meas_M", Description: "Trigger magnetic measurement"},
			}},
		{Address: regCtrl1, Name: "Internal_Control_1", Description: "Reset and bandwidth", Access: "W",
			BitFields: []regmap.BitField{
				{Bits: "7", Name: "Sw_reset", Description: "Software reset"},
				{Bits: "1:0", Name: "BW", Description: "Measurement bandwidth"},
			}},
		{Address: regCtrl2, Name: "Internal_Control_2", Description: "Continuous mode", Access: "W"},
		{Address: regProduct, Name: "Product_ID", Description: "Product ID (should be 0x10)", Access: "R", Default: "0x10"},
	}
}
