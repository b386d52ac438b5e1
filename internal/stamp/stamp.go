// Copyright (c) 2026 Sierra Lobo
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package stamp ties together the six chips of an IMU stamp: two
// IAM-20380 gyroscopes, two MC3419 accelerometers and two MMC5603
// magnetometers. Each chip type sits at a base address XORed with one of
// two board offsets; offset n selects pair n.
package stamp

import (
	"fmt"
	"time"

	"github.com/Sierra-Lobo/imu-stamp-sw/internal/iam20380"
	"github.com/Sierra-Lobo/imu-stamp-sw/internal/imu"
	"github.com/Sierra-Lobo/imu-stamp-sw/internal/mc3419"
	"github.com/Sierra-Lobo/imu-stamp-sw/internal/mmc5603"
	"github.com/Sierra-Lobo/imu-stamp-sw/internal/regmap"
	"go.uber.org/multierr"
	"periph.io/x/conn/v3/i2c"
)

// Base addresses before the board XOR is applied.
const (
	GyroBase  = 0x68
	AccelBase = 0x4C
	MagBase   = 0x30
)

// Pairs is the number of sensor pairs on a stamp.
const Pairs = 2

// AddressSet lists the six device addresses in construction order.
type AddressSet struct {
	Gyro  [Pairs]uint16
	Accel [Pairs]uint16
	Mag   [Pairs]uint16
}

// Addresses computes base ^ xor for every chip and pair.
func Addresses(xor1, xor2 uint8) AddressSet {
	var a AddressSet
	for i, x := range [Pairs]uint16{uint16(xor1), uint16(xor2)} {
		a.Gyro[i] = GyroBase ^ x
		a.Accel[i] = AccelBase ^ x
		a.Mag[i] = MagBase ^ x
	}
	return a
}

// List returns the addresses keyed by device name in construction order.
func (a AddressSet) List() []NamedAddr {
	return []NamedAddr{
		{"gyro0", a.Gyro[0]}, {"gyro1", a.Gyro[1]},
		{"accel0", a.Accel[0]}, {"accel1", a.Accel[1]},
		{"mag0", a.Mag[0]}, {"mag1", a.Mag[1]},
	}
}

// NamedAddr is a device name and its 7-bit address.
type NamedAddr struct {
	Name string
	Addr uint16
}

// Validate rejects addresses outside the 7-bit space and collisions.
func (a AddressSet) Validate() error {
	seen := map[uint16]string{}
	for _, n := range a.List() {
		if n.Addr > 0x7F {
			return fmt.Errorf("%w: %s address 0x%02X is not a 7-bit address", regmap.ErrValidation, n.Name, n.Addr)
		}
		if other, ok := seen[n.Addr]; ok {
			return fmt.Errorf("%w: %s and %s both at 0x%02X", regmap.ErrValidation, other, n.Name, n.Addr)
		}
		seen[n.Addr] = n.Name
	}
	return nil
}

// Opts carries per-driver options. nil fields use the driver defaults.
type Opts struct {
	Gyro  *iam20380.Opts
	Accel *mc3419.Opts
	Mag   *mmc5603.Opts
}

// Stamp owns the six drivers.
type Stamp struct {
	Gyro  [Pairs]*iam20380.Dev
	Accel [Pairs]*mc3419.Dev
	Mag   [Pairs]*mmc5603.Dev

	addrs AddressSet
}

// New builds gyro0, gyro1, accel0, accel1, mag0 and mag1 in that order.
// Each constructor verifies the chip identity and resets the device; the
// first failure is returned wrapped with the device name.
func New(bus i2c.Bus, xor1, xor2 uint8, opts *Opts) (*Stamp, error) {
	if opts == nil {
		opts = &Opts{}
	}
	addrs := Addresses(xor1, xor2)
	if err := addrs.Validate(); err != nil {
		return nil, err
	}
	s := &Stamp{addrs: addrs}
	var err error
	for i := range s.Gyro {
		if s.Gyro[i], err = iam20380.New(bus, addrs.Gyro[i], opts.Gyro); err != nil {
			return nil, fmt.Errorf("gyro%d: %w", i, err)
		}
	}
	for i := range s.Accel {
		if s.Accel[i], err = mc3419.New(bus, addrs.Accel[i], opts.Accel); err != nil {
			return nil, fmt.Errorf("accel%d: %w", i, err)
		}
	}
	for i := range s.Mag {
		if s.Mag[i], err = mmc5603.New(bus, addrs.Mag[i], opts.Mag); err != nil {
			return nil, fmt.Errorf("mag%d: %w", i, err)
		}
	}
	return s, nil
}

// Addresses returns the addresses the stamp was built with.
func (s *Stamp) Addresses() AddressSet {
	return s.addrs
}

// ResetAll resets both gyroscopes, then both accelerometers, then both
// magnetometers. It stops at the first failure.
func (s *Stamp) ResetAll() error {
	for i, g := range s.Gyro {
		if err := g.Reset(); err != nil {
			return fmt.Errorf("gyro%d: %w", i, err)
		}
	}
	for i, a := range s.Accel {
		if err := a.Reset(); err != nil {
			return fmt.Errorf("accel%d: %w", i, err)
		}
	}
	for i, m := range s.Mag {
		if err := m.Reset(); err != nil {
			return fmt.Errorf("mag%d: %w", i, err)
		}
	}
	return nil
}

// Start wakes both accelerometers. The gyroscopes run from reset.
func (s *Stamp) Start() error {
	for i, a := range s.Accel {
		if err := a.SetWake(true); err != nil {
			return fmt.Errorf("accel%d: %w", i, err)
		}
	}
	return nil
}

// Standby puts both accelerometers in Standby. Both are attempted; the
// errors are combined.
func (s *Stamp) Standby() error {
	var err error
	for i, a := range s.Accel {
		if e := a.SetWake(false); e != nil {
			err = multierr.Append(err, fmt.Errorf("accel%d: %w", i, e))
		}
	}
	return err
}

// Sample reads the gyroscope, accelerometer and magnetometer of one pair.
// The accelerometer must be awake.
func (s *Stamp) Sample(pair int) (imu.Sample, error) {
	if pair < 0 || pair >= Pairs {
		return imu.Sample{}, regmap.Invalid("pair", pair, "0 or 1")
	}
	out := imu.Sample{Pair: pair, Time: time.Now()}
	var err error
	if out.Rotation, err = s.Gyro[pair].Rotation(); err != nil {
		return out, fmt.Errorf("gyro%d: %w", pair, err)
	}
	if out.GyroTemp, err = s.Gyro[pair].Temperature(); err != nil {
		return out, fmt.Errorf("gyro%d: %w", pair, err)
	}
	if out.Acceleration, err = s.Accel[pair].Acceleration(); err != nil {
		return out, fmt.Errorf("accel%d: %w", pair, err)
	}
	if out.Magnetic, err = s.Mag[pair].MagneticField(); err != nil {
		return out, fmt.Errorf("mag%d: %w", pair, err)
	}
	return out, nil
}

// Device is a register handle and the metadata describing it.
type Device struct {
	Name      string
	Chip      string
	Regs      *regmap.Dev
	Registers []regmap.RegisterInfo
	// CheckWrite vets a raw register write against the driver's rules.
	// nil when the chip has none.
	CheckWrite func(reg, v uint8) error
}

// Devices lists the six register handles in construction order.
func (s *Stamp) Devices() []Device {
	var out []Device
	for i, g := range s.Gyro {
		out = append(out, Device{Name: fmt.Sprintf("gyro%d", i), Chip: "IAM-20380", Regs: g.Registers(), Registers: iam20380.RegisterMap(), CheckWrite: g.CheckWrite})
	}
	for i, a := range s.Accel {
		out = append(out, Device{Name: fmt.Sprintf("accel%d", i), Chip: "MC3419", Regs: a.Registers(), Registers: mc3419.RegisterMap(), CheckWrite: a.CheckWrite})
	}
	for i, m := range s.Mag {
		out = append(out, Device{Name: fmt.Sprintf("mag%d", i), Chip: "MMC5603", Regs: m.Registers(), Registers: mmc5603.RegisterMap()})
	}
	return out
}

// Device returns the named device.
func (s *Stamp) Device(name string) (Device, bool) {
	for _, d := range s.Devices() {
		if d.Name == name {
			return d, true
		}
	}
	return Device{}, false
}
