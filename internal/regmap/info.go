// Copyright (c) 2026 Sierra Lobo
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package regmap

import "fmt"

// RegisterInfo describes one register for the debug tools.
type RegisterInfo struct {
	Address     uint8      `json:"address" yaml:"address"`
	Name        string     `json:"name" yaml:"name"`
	Description string     `json:"description" yaml:"description"`
	Access      string     `json:"access" yaml:"access"` // "R", "W", "RW"
	Default     string     `json:"default,omitempty" yaml:"default,omitempty"`
	BitFields   []BitField `json:"bit_fields,omitempty" yaml:"bit_fields,omitempty"`
}

// BitField describes a named field inside a register.
type BitField struct {
	Bits        string `json:"bits" yaml:"bits"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Values      string `json:"values,omitempty" yaml:"values,omitempty"`
}

// FieldBits formats the bit span of f the way the datasheets do ("4:3").
func FieldBits(f Field) string {
	hi := f.Offset + f.Width - 1
	if hi == f.Offset {
		return fmt.Sprintf("%d", hi)
	}
	return fmt.Sprintf("%d:%d", hi, f.Offset)
}

// Readable reports whether the register can be read back.
func (r RegisterInfo) Readable() bool {
	return r.Access != "W"
}

// Writable reports whether the register accepts writes.
func (r RegisterInfo) Writable() bool {
	return r.Access == "W" || r.Access == "RW"
}

// Lookup returns the entry for addr.
func Lookup(regs []RegisterInfo, addr uint8) (RegisterInfo, bool) {
	for _, r := range regs {
		if r.Address == addr {
			return r, true
		}
	}
	return RegisterInfo{}, false
}
