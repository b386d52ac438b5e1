// Copyright (c) 2026 Sierra Lobo
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package i2csim

import "encoding/binary"

// Register addresses used by the models, taken from the datasheets.
const (
	iamWhoAmI   = 0x75
	iamPwrMgmt1 = 0x6B
	iamGyroOut  = 0x43

	mcDevStat = 0x05
	mcMode    = 0x07
	mcSR      = 0x08
	mcXoutL   = 0x0D
	mcChipID  = 0x18
	mcReset   = 0x1C
	mcRange   = 0x20
	mcRate2   = 0x30

	mmcXout0   = 0x00
	mmcTout    = 0x09
	mmcStatus1 = 0x18
	mmcODR     = 0x1A
	mmcCtrl0   = 0x1B
	mmcCtrl1   = 0x1C
	mmcCtrl2   = 0x1D
	mmcProduct = 0x39
)

// NewIAM20380 returns a gyroscope model in its power-on state.
func NewIAM20380() *Chip {
	c := &Chip{}
	c.Regs[iamWhoAmI] = 0xB5
	iamPowerOn(c)
	c.SetOutput16(iamGyroOut, binary.BigEndian, 0x8000, 0x8000, 0x8000)
	c.onWrite = func(c *Chip, reg, v uint8) {
		if reg == iamPwrMgmt1 && v&0x80 != 0 && !c.Stuck {
			iamPowerOn(c)
		}
	}
	return c
}

func iamPowerOn(c *Chip) {
	for reg := 0x19; reg <= 0x1E; reg++ {
		c.Regs[reg] = 0
	}
	c.Regs[iamPwrMgmt1] = 0x40
}

// NewMC3419 returns an accelerometer model in standby.
func NewMC3419() *Chip {
	c := &Chip{}
	c.Regs[mcChipID] = 0xA4
	mcPowerOn(c)
	c.SetOutput16(mcXoutL, binary.LittleEndian, 0x8000, 0x8000, 0x8000+16384)
	c.onWrite = func(c *Chip, reg, v uint8) {
		switch reg {
		case mcMode:
			c.Regs[mcDevStat] = c.Regs[mcDevStat]&^0x03 | v&0x03
		case mcReset:
			if v&0x40 != 0 && !c.Stuck {
				mcPowerOn(c)
			}
		}
	}
	return c
}

func mcPowerOn(c *Chip) {
	for _, reg := range []uint8{mcDevStat, mcMode, mcSR, mcReset, mcRange, mcRate2} {
		c.Regs[reg] = 0
	}
}

// NewMMC5603 returns a magnetometer model. Measurements complete
// immediately unless the chip is Stuck.
func NewMMC5603() *Chip {
	c := &Chip{}
	c.Regs[mmcProduct] = 0x10
	mmcPowerOn(c)
	// 20-bit mid scale on all axes, temperature byte for 25 °C.
	c.Set(mmcXout0, 0x80, 0x00, 0x80, 0x00, 0x80, 0x00, 0x00, 0x00, 0x00, 125)
	c.onWrite = func(c *Chip, reg, v uint8) {
		switch reg {
		case mmcCtrl0:
			if c.Stuck {
				break
			}
			if v&0x01 != 0 {
				c.Regs[mmcStatus1] |= 0x40
			}
			if v&0x02 != 0 {
				c.Regs[mmcStatus1] |= 0x80
			}
			c.Regs[mmcCtrl0] = 0
		case mmcCtrl1:
			if v&0x80 != 0 && !c.Stuck {
				mmcPowerOn(c)
			}
		}
	}
	return c
}

func mmcPowerOn(c *Chip) {
	for _, reg := range []uint8{mmcStatus1, mmcODR, mmcCtrl0, mmcCtrl1, mmcCtrl2} {
		c.Regs[reg] = 0
	}
}

// SetMagnetic stores 20-bit unsigned field codes for the three axes.
func SetMagnetic(c *Chip, x, y, z uint32) {
	c.Set(mmcXout0,
		byte(x>>12), byte(x>>4),
		byte(y>>12), byte(y>>4),
		byte(z>>12), byte(z>>4),
		byte(x<<4), byte(y<<4), byte(z<<4))
}

// NewStamp returns a bus populated with the six chips of a stamp at
// base ^ xor1 and base ^ xor2.
func NewStamp(xor1, xor2 uint8) *Bus {
	b := New()
	for _, x := range []uint16{uint16(xor1), uint16(xor2)} {
		b.Attach(0x68^x, NewIAM20380())
		b.Attach(0x4C^x, NewMC3419())
		b.Attach(0x30^x, NewMMC5603())
	}
	return b
}
