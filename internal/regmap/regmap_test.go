// Copyright (c) 2026 Sierra Lobo
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package regmap

import (
	"encoding/binary"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Sierra-Lobo/imu-stamp-sw/internal/i2csim"
	"periph.io/x/conn/v3/i2c/i2ctest"
)

func TestFieldInsertExtract(t *testing.T) {
	tests := []struct {
		name  string
		f     Field
		reg   uint8
		v     uint8
		want  uint8
		field uint8
	}{
		{"low bits", Bits(0x1A, 3, 0), 0b1111_1000, 0b110, 0b1111_1110, 0b110},
		{"middle bits", Bits(0x1B, 2, 3), 0b1110_0111, 0b11, 0b1111_1111, 0b11},
		{"clear middle", Bits(0x1B, 2, 3), 0b1111_1111, 0b00, 0b1110_0111, 0b00},
		{"top bit", Bit(0x6B, 7), 0b0100_0001, 1, 0b1100_0001, 1},
		{"full byte", Bits(0x19, 8, 0), 0x12, 0xFF, 0xFF, 0xFF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.f.Insert(tt.reg, tt.v)
			if got != tt.want {
				t.Fatalf("Insert(0x%02X, %d) = 0b%08b, want 0b%08b", tt.reg, tt.v, got, tt.want)
			}
			if x := tt.f.Extract(got); x != tt.field {
				t.Fatalf("Extract = %d, want %d", x, tt.field)
			}
		})
	}
}

func TestFieldBits(t *testing.T) {
	if got := FieldBits(Bits(0x20, 3, 4)); got != "6:4" {
		t.Errorf("FieldBits = %q, want 6:4", got)
	}
	if got := FieldBits(Bit(0x6B, 7)); got != "7" {
		t.Errorf("FieldBits = %q, want 7", got)
	}
}

func TestReadWriteRegister(t *testing.T) {
	bus := &i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: 0x68, W: []byte{0x75}, R: []byte{0xB5}},
			{Addr: 0x68, W: []byte{0x19, 0xFF}},
		},
		DontPanic: true,
	}
	d := New(bus, 0x68, binary.BigEndian)
	v, err := d.ReadRegister(0x75)
	if err != nil {
		t.Fatal(err)
	}
	if v != 0xB5 {
		t.Fatalf("ReadRegister = 0x%02X, want 0xB5", v)
	}
	if err := d.WriteRegister(0x19, 0xFF); err != nil {
		t.Fatal(err)
	}
	if err := bus.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestWriteBitsPreservesOtherBits(t *testing.T) {
	// FS_SEL (bits 4:3) set to 2 with every other bit of the register set.
	bus := &i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: 0x68, W: []byte{0x1B}, R: []byte{0b1110_0111}},
			{Addr: 0x68, W: []byte{0x1B, 0b1111_0111}},
		},
		DontPanic: true,
	}
	d := New(bus, 0x68, binary.BigEndian)
	if err := d.WriteBits(0x1B, 2, 3, 2); err != nil {
		t.Fatal(err)
	}
	if err := bus.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestWriteFieldRejectsOversizedValue(t *testing.T) {
	bus := &i2ctest.Playback{DontPanic: true}
	d := New(bus, 0x4C, binary.LittleEndian)
	err := d.WriteField(Bits(0x20, 3, 4), 8)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("WriteField = %v, want ErrValidation", err)
	}
	if err := bus.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestReadTripletByteOrder(t *testing.T) {
	data := []byte{0x80, 0x01, 0x7F, 0xFF, 0x00, 0x10}
	tests := []struct {
		order binary.ByteOrder
		want  [3]uint16
	}{
		{binary.BigEndian, [3]uint16{0x8001, 0x7FFF, 0x0010}},
		{binary.LittleEndian, [3]uint16{0x0180, 0xFF7F, 0x1000}},
	}
	for _, tt := range tests {
		t.Run(tt.order.String(), func(t *testing.T) {
			bus := &i2ctest.Playback{
				Ops:       []i2ctest.IO{{Addr: 0x10, W: []byte{0x43}, R: data}},
				DontPanic: true,
			}
			got, err := New(bus, 0x10, tt.order).ReadTriplet(0x43)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Fatalf("ReadTriplet = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestBusError(t *testing.T) {
	bus := i2csim.New()
	d := New(bus, 0x68, binary.BigEndian)
	_, err := d.ReadRegister(0x75)
	if !errors.Is(err, ErrBus) {
		t.Fatalf("ReadRegister on empty bus = %v, want ErrBus", err)
	}
	var be *BusError
	if !errors.As(err, &be) {
		t.Fatalf("%v is not a *BusError", err)
	}
	if be.Addr != 0x68 || be.Reg != 0x75 || be.Op != "read" {
		t.Errorf("BusError = %+v", be)
	}

	// A failing read half aborts the read-modify-write before any write.
	bus.Attach(0x68, &i2csim.Chip{})
	bus.FailWith(errors.New("arbitration lost"))
	if err := d.WriteBits(0x1B, 2, 3, 1); !errors.Is(err, ErrBus) {
		t.Fatalf("WriteBits = %v, want ErrBus", err)
	}
	bus.FailWith(nil)
	if w := bus.Writes(0); len(w) != 0 {
		t.Fatalf("writes after failed read: %v", w)
	}
}

func TestWaitClear(t *testing.T) {
	bus := i2csim.New()
	chip := bus.Attach(0x4C, &i2csim.Chip{})
	d := New(bus, 0x4C, binary.LittleEndian)
	f := Bit(0x1C, 6)

	if err := d.WaitClear(f, 0, 3); err != nil {
		t.Fatalf("WaitClear on clear bit = %v", err)
	}

	chip.Set(0x1C, 0x41)
	bus.ClearLog()
	err := d.WaitClear(f, time.Microsecond, 3)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("WaitClear on stuck bit = %v, want ErrTimeout", err)
	}
	if n := len(bus.Ops()); n != 3 {
		t.Fatalf("WaitClear polled %d times, want 3", n)
	}
	if !strings.Contains(err.Error(), "still 0x41") {
		t.Errorf("timeout error %q does not report the register value read", err)
	}
}
