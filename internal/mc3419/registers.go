// Copyright (c) 2026 Sierra Lobo
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package mc3419

import "github.com/Sierra-Lobo/imu-stamp-sw/internal/regmap"

// ChipID is the expected content of the CHIP_ID register.
const ChipID = 0xA4

const (
	regDevStat = 0x05
	regMode    = 0x07
	regSR      = 0x08
	regXoutL   = 0x0D
	regStatus  = 0x13
	regChipID  = 0x18
	regReset   = 0x1C
	regRange   = 0x20
	regRate2   = 0x30

	resetCommand = 0x40
)

var (
	fieldState     = regmap.Bits(regDevStat, 2, 0)
	fieldModeState = regmap.Bits(regMode, 2, 0)
	fieldI2CWDT    = regmap.Bits(regMode, 2, 4)
	fieldIDR       = regmap.Bits(regSR, 3, 0)
	fieldResetBusy = regmap.Bit(regReset, 6)
	fieldRange     = regmap.Bits(regRange, 3, 4)
	fieldLPFEn     = regmap.Bit(regRange, 3)
	fieldLPFBW     = regmap.Bits(regRange, 3, 0)
	fieldDec       = regmap.Bits(regRate2, 4, 0)
)

// RegisterMap describes the registers the driver touches.
func RegisterMap() []regmap.RegisterInfo {
	return []regmap.RegisterInfo{
		{Address: regDevStat, Name: "DEV_STAT", Description: "Device Status", Access: "R",
			BitFields: []regmap.BitField{
				{Bits: regmap.FieldBits(fieldState), Name: "STATE", Description: "Operating state", Values: "0=Standby, 1=Wake"},
			}},
		{Address: regMode, Name: "MODE", Description: "Mode Control", Access: "RW", Default: "0x00",
			BitFields: []regmap.BitField{
				{Bits: regmap.FieldBits(fieldI2CWDT), Name: "I2C_WDT", Description: "I²C watchdog", Values: "bit4=negative, bit5=positive transitions"},
				{Bits: regmap.FieldBits(fieldModeState), Name: "STATE", Description: "Requested state", Values: "0=Standby, 1=Wake"},
			}},
		{Address: regSR, Name: "SR", Description: "Sample Rate", Access: "RW", Default: "0x00",
			BitFields: []regmap.BitField{
				{Bits: regmap.FieldBits(fieldIDR), Name: "IDR", Description: "Internal data rate", Values: "0=50, 1=100, 2=125, 3=200, 4=250, 5=500, 6=1000, 7=2000 Hz"},
			}},
		{Address: regXoutL, Name: "XOUT_EX_L", Description: "X-Axis Low Byte", Access: "R"},
		{Address: regXoutL + 1, Name: "XOUT_EX_H", Description: "X-Axis High Byte", Access: "R"},
		{Address: regXoutL + 2, Name: "YOUT_EX_L", Description: "Y-Axis Low Byte", Access: "R"},
		{Address: regXoutL + 3, Name: "YOUT_EX_H", Description: "Y-Axis High Byte", Access: "R"},
		{Address: regXoutL + 4, Name: "ZOUT_EX_L", Description: "Z-Axis Low Byte", Access: "R"},
		{Address: regXoutL + 5, Name: "ZOUT_EX_H", Description: "Z-Axis High Byte", Access: "R"},
		{Address: regStatus, Name: "STATUS", Description: "Status", Access: "R"},
		{Address: regChipID, Name: "CHIP_ID", Description: "Chip ID (should be 0xA4)", Access: "R", Default: "0xA4"},
		{Address: regReset, Name: "RESET", Description: "Reset", Access: "RW", Default: "0x00",
			BitFields: []regmap.BitField{
				{Bits: regmap.FieldBits(fieldResetBusy), Name: "RESET", Description: "Power-on reset, self-clearing", Values: "1=Reset"},
			}},
		{Address: regRange, Name: "RANGE", Description: "Range and Scale Control", Access: "RW", Default: "0x00",
			BitFields: []regmap.BitField{
				{Bits: regmap.FieldBits(fieldRange), Name: "RANGE", Description: "Full scale", Values: "0=±2g, 1=±4g, 2=±8g, 3=±12g, 4=±16g"},
				{Bits: regmap.FieldBits(fieldLPFEn), Name: "LPF_EN", Description: "Low pass filter enable", Values: "0=Disabled, 1=Enabled"},
				{Bits: regmap.FieldBits(fieldLPFBW), Name: "LPF_BW", Description: "Filter bandwidth", Values: "1=IDR/4.255, 2=IDR/6, 3=IDR/12, 5=IDR/16"},
			}},
		{Address: regRate2, Name: "RATE_2", Description: "Decimation", Access: "RW", Default: "0x00",
			BitFields: []regmap.BitField{
				{Bits: regmap.FieldBits(fieldDec), Name: "DEC_MODE_RATE", Description: "Output decimation", Values: "0=off, 1=2x ... 15=1000x"},
			}},
	}
}
