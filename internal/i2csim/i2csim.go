// Copyright (c) 2026 Sierra Lobo
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package i2csim is an in-memory I²C bus holding register-file models of the
// stamp chips. It backs the driver tests and the --simulate mode of the
// tools.
package i2csim

import (
	"encoding/binary"
	"fmt"
	"sync"

	"periph.io/x/conn/v3/physic"
)

// Op is one logged bus access.
type Op struct {
	Addr  uint16
	Reg   uint8
	Write bool
	Data  []byte
}

// Chip is a 256-byte register file with optional behavior hooks.
type Chip struct {
	Regs [256]byte

	// Stuck keeps self-clearing command bits set.
	Stuck bool

	onWrite func(c *Chip, reg, v uint8)
}

// Set stores raw register values starting at reg, bypassing the hooks.
func (c *Chip) Set(reg uint8, data ...byte) {
	for i, v := range data {
		c.Regs[reg+uint8(i)] = v
	}
}

// Get returns a raw register value.
func (c *Chip) Get(reg uint8) uint8 {
	return c.Regs[reg]
}

// SetOutput16 stores consecutive 16-bit values starting at reg.
func (c *Chip) SetOutput16(reg uint8, order binary.ByteOrder, vals ...uint16) {
	buf := make([]byte, 2*len(vals))
	for i, v := range vals {
		order.PutUint16(buf[2*i:], v)
	}
	c.Set(reg, buf...)
}

func (c *Chip) write(reg, v uint8) {
	c.Regs[reg] = v
	if c.onWrite != nil {
		c.onWrite(c, reg, v)
	}
}

// Bus implements periph's i2c.Bus on top of Chip models.
type Bus struct {
	mu    sync.Mutex
	chips map[uint16]*Chip
	log   []Op
	fail  error
}

// New returns an empty bus.
func New() *Bus {
	return &Bus{chips: map[uint16]*Chip{}}
}

// Attach places c at addr.
func (b *Bus) Attach(addr uint16, c *Chip) *Chip {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chips[addr] = c
	return c
}

// Chip returns the model at addr, or nil.
func (b *Bus) Chip(addr uint16) *Chip {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.chips[addr]
}

// FailWith makes every following transaction return err. nil restores
// normal operation.
func (b *Bus) FailWith(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fail = err
}

// Ops returns a copy of the access log.
func (b *Bus) Ops() []Op {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Op(nil), b.log...)
}

// Writes returns the logged writes, optionally filtered to one address
// (0 means all).
func (b *Bus) Writes(addr uint16) []Op {
	var out []Op
	for _, op := range b.Ops() {
		if op.Write && (addr == 0 || op.Addr == addr) {
			out = append(out, op)
		}
	}
	return out
}

// ClearLog drops the access log.
func (b *Bus) ClearLog() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.log = nil
}

func (b *Bus) String() string {
	return "i2csim"
}

// Close is a no-op; it lets the bus stand in for an i2c.BusCloser.
func (b *Bus) Close() error {
	return nil
}

// SetSpeed is accepted and ignored.
func (b *Bus) SetSpeed(f physic.Frequency) error {
	return nil
}

// Tx writes w[1:] starting at register w[0], then reads len(r) registers
// starting at the same register.
func (b *Bus) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail != nil {
		return b.fail
	}
	c, ok := b.chips[addr]
	if !ok {
		return fmt.Errorf("i2csim: no device at 0x%02X (nack)", addr)
	}
	if len(w) == 0 {
		return fmt.Errorf("i2csim: 0x%02X: transaction without register address", addr)
	}
	reg := w[0]
	if len(w) > 1 {
		for i, v := range w[1:] {
			c.write(reg+uint8(i), v)
		}
		b.log = append(b.log, Op{Addr: addr, Reg: reg, Write: true, Data: append([]byte(nil), w[1:]...)})
	}
	if len(r) > 0 {
		for i := range r {
			r[i] = c.Regs[reg+uint8(i)]
		}
		b.log = append(b.log, Op{Addr: addr, Reg: reg, Data: append([]byte(nil), r...)})
	}
	return nil
}
