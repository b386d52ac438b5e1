// Copyright (c) 2026 Sierra Lobo
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package regmap is the register access layer shared by the stamp drivers.
//
// Every operation is one write-then-read I²C transaction against a fixed
// 7-bit address. Sub-byte fields are described declaratively with Field and
// updated with a read-modify-write that preserves the untouched bits.
package regmap

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/mmr"
)

// Field is a bit field inside an 8-bit register.
type Field struct {
	Reg    uint8
	Width  uint8
	Offset uint8
}

// Bit returns a one bit wide field.
func Bit(reg, offset uint8) Field {
	return Field{Reg: reg, Width: 1, Offset: offset}
}

// Bits returns a field width bits wide starting at offset.
func Bits(reg, width, offset uint8) Field {
	return Field{Reg: reg, Width: width, Offset: offset}
}

// Max is the largest value the field can hold.
func (f Field) Max() uint8 {
	return uint8(1<<f.Width - 1)
}

// Mask is the field mask in register position.
func (f Field) Mask() uint8 {
	return f.Max() << f.Offset
}

// Extract returns the field value from a full register value.
func (f Field) Extract(reg uint8) uint8 {
	return (reg & f.Mask()) >> f.Offset
}

// Insert returns reg with the field replaced by v.
func (f Field) Insert(reg, v uint8) uint8 {
	return reg&^f.Mask() | (v<<f.Offset)&f.Mask()
}

// Dev is a register-addressed device on an I²C bus.
type Dev struct {
	// mu serializes the read and write halves of a read-modify-write.
	mu   sync.Mutex
	regs mmr.Dev8
	addr uint16
}

// New returns a Dev for addr on bus. order is the byte order of the chip's
// 16-bit output registers.
func New(bus i2c.Bus, addr uint16, order binary.ByteOrder) *Dev {
	return &Dev{
		regs: mmr.Dev8{Conn: &i2c.Dev{Bus: bus, Addr: addr}, Order: order},
		addr: addr,
	}
}

// Addr returns the 7-bit device address.
func (d *Dev) Addr() uint16 {
	return d.addr
}

func (d *Dev) String() string {
	return fmt.Sprintf("0x%02X", d.addr)
}

// ReadRegister reads one register.
func (d *Dev) ReadRegister(reg uint8) (uint8, error) {
	v, err := d.regs.ReadUint8(reg)
	if err != nil {
		return 0, &BusError{Op: "read", Addr: d.addr, Reg: reg, Err: err}
	}
	return v, nil
}

// WriteRegister writes one register.
func (d *Dev) WriteRegister(reg, v uint8) error {
	if err := d.regs.WriteUint8(reg, v); err != nil {
		return &BusError{Op: "write", Addr: d.addr, Reg: reg, Err: err}
	}
	return nil
}

// ReadBlock reads len(b) consecutive registers starting at reg in a single
// transaction.
func (d *Dev) ReadBlock(reg uint8, b []byte) error {
	if len(b) == 0 {
		return fmt.Errorf("%w: empty read buffer", ErrValidation)
	}
	if err := d.regs.Conn.Tx([]byte{reg}, b); err != nil {
		return &BusError{Op: "read", Addr: d.addr, Reg: reg, Err: err}
	}
	return nil
}

// ReadUint16 reads a 16-bit register pair in the device byte order.
func (d *Dev) ReadUint16(reg uint8) (uint16, error) {
	v, err := d.regs.ReadUint16(reg)
	if err != nil {
		return 0, &BusError{Op: "read", Addr: d.addr, Reg: reg, Err: err}
	}
	return v, nil
}

// ReadTriplet reads three consecutive 16-bit values (x, y, z) in the device
// byte order.
func (d *Dev) ReadTriplet(reg uint8) ([3]uint16, error) {
	var buf [6]byte
	if err := d.ReadBlock(reg, buf[:]); err != nil {
		return [3]uint16{}, err
	}
	o := d.regs.Order
	return [3]uint16{o.Uint16(buf[0:2]), o.Uint16(buf[2:4]), o.Uint16(buf[4:6])}, nil
}

// ReadField reads a bit field.
func (d *Dev) ReadField(f Field) (uint8, error) {
	v, err := d.ReadRegister(f.Reg)
	if err != nil {
		return 0, err
	}
	return f.Extract(v), nil
}

// WriteField replaces a bit field, preserving the other bits of the
// register. v must fit in the field; nothing is written otherwise.
func (d *Dev) WriteField(f Field, v uint8) error {
	if v > f.Max() {
		return fmt.Errorf("%w: 0x%02X does not fit %d bits of reg 0x%02X", ErrValidation, v, f.Width, f.Reg)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	cur, err := d.ReadRegister(f.Reg)
	if err != nil {
		return err
	}
	return d.WriteRegister(f.Reg, f.Insert(cur, v))
}

// ReadFlag reads a one bit field as a bool.
func (d *Dev) ReadFlag(f Field) (bool, error) {
	v, err := d.ReadField(f)
	return v != 0, err
}

// WriteFlag writes a one bit field.
func (d *Dev) WriteFlag(f Field, on bool) error {
	var v uint8
	if on {
		v = 1
	}
	return d.WriteField(f, v)
}

// ReadBits reads width bits at offset of reg.
func (d *Dev) ReadBits(reg, width, offset uint8) (uint8, error) {
	return d.ReadField(Bits(reg, width, offset))
}

// WriteBits writes width bits at offset of reg.
func (d *Dev) WriteBits(reg, width, offset, v uint8) error {
	return d.WriteField(Bits(reg, width, offset), v)
}

// WaitClear polls f every interval until it reads zero. It gives up after
// maxPolls reads with ErrTimeout.
func (d *Dev) WaitClear(f Field, interval time.Duration, maxPolls int) error {
	var last uint8
	for i := 0; i < maxPolls; i++ {
		v, err := d.ReadRegister(f.Reg)
		if err != nil {
			return err
		}
		if f.Extract(v) == 0 {
			return nil
		}
		last = v
		time.Sleep(interval)
	}
	return fmt.Errorf("%w: %s reg 0x%02X still 0x%02X after %d polls", ErrTimeout, d, f.Reg, last, maxPolls)
}
