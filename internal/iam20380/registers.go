// Copyright (c) 2026 Sierra Lobo
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package iam20380

import "github.com/Sierra-Lobo/imu-stamp-sw/internal/regmap"

// WhoAmI is the expected content of the WHO_AM_I register.
const WhoAmI = 0xB5

const (
	regSmplrtDiv  = 0x19
	regConfig     = 0x1A
	regGyroConfig = 0x1B
	regLPModeCfg  = 0x1E
	regTempOutH   = 0x41
	regGyroXoutH  = 0x43
	regPwrMgmt1   = 0x6B
	regWhoAmI     = 0x75
)

var (
	fieldSmplrtDiv = regmap.Bits(regSmplrtDiv, 8, 0)
	fieldDLPFCfg   = regmap.Bits(regConfig, 3, 0)
	fieldFSSel     = regmap.Bits(regGyroConfig, 2, 3)
	fieldFchoiceB  = regmap.Bits(regGyroConfig, 2, 0)
	fieldGAvgCfg   = regmap.Bits(regLPModeCfg, 3, 4)
	fieldGyroCycle = regmap.Bit(regLPModeCfg, 7)
	fieldReset     = regmap.Bit(regPwrMgmt1, 7)
	fieldSleep     = regmap.Bit(regPwrMgmt1, 6)
	fieldClkSel    = regmap.Bits(regPwrMgmt1, 3, 0)
)

// RegisterMap describes the registers the driver touches.
func RegisterMap() []regmap.RegisterInfo {
	return []regmap.RegisterInfo{
		{Address: regSmplrtDiv, Name: "SMPLRT_DIV", Description: "Sample Rate Divider", Access: "RW", Default: "0x00",
			BitFields: []regmap.BitField{
				{Bits: regmap.FieldBits(fieldSmplrtDiv), Name: "SMPLRT_DIV", Description: "ODR = 1 kHz / (1 + SMPLRT_DIV)", Values: "0-255"},
			}},
		{Address: regConfig, Name: "CONFIG", Description: "Configuration", Access: "RW", Default: "0x00",
			BitFields: []regmap.BitField{
				{Bits: regmap.FieldBits(fieldDLPFCfg), Name: "DLPF_CFG", Description: "Digital low pass filter", Values: "1-6"},
			}},
		{Address: regGyroConfig, Name: "GYRO_CONFIG", Description: "Gyroscope Configuration", Access: "RW", Default: "0x00",
			BitFields: []regmap.BitField{
				{Bits: regmap.FieldBits(fieldFSSel), Name: "FS_SEL", Description: "Full scale range", Values: "0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s"},
				{Bits: regmap.FieldBits(fieldFchoiceB), Name: "FCHOICE_B", Description: "DLPF bypass", Values: "0=DLPF enabled"},
			}},
		{Address: regLPModeCfg, Name: "LP_MODE_CFG", Description: "Low Power Mode Configuration", Access: "RW", Default: "0x00",
			BitFields: []regmap.BitField{
				{Bits: regmap.FieldBits(fieldGyroCycle), Name: "GYRO_CYCLE", Description: "Low power duty cycling", Values: "0=Disabled, 1=Enabled"},
				{Bits: regmap.FieldBits(fieldGAvgCfg), Name: "G_AVGCFG", Description: "Averages per sample", Values: "2^n, 0-7"},
			}},
		{Address: regTempOutH, Name: "TEMP_OUT_H", Description: "Temperature High Byte", Access: "R"},
		{Address: regTempOutH + 1, Name: "TEMP_OUT_L", Description: "Temperature Low Byte", Access: "R"},
		{Address: regGyroXoutH, Name: "GYRO_XOUT_H", Description: "Gyroscope X-Axis High Byte", Access: "R"},
		{Address: regGyroXoutH + 1, Name: "GYRO_XOUT_L", Description: "Gyroscope X-Axis Low Byte", Access: "R"},
		{Address: regGyroXoutH + 2, Name: "GYRO_YOUT_H", Description: "Gyroscope Y-Axis High Byte", Access: "R"},
		{Address: regGyroXoutH + 3, Name: "GYRO_YOUT_L", Description: "Gyroscope Y-Axis Low Byte", Access: "R"},
		{Address: regGyroXoutH + 4, Name: "GYRO_ZOUT_H", Description: "Gyroscope Z-Axis High Byte", Access: "R"},
		{Address: regGyroXoutH + 5, Name: "GYRO_ZOUT_L", Description: "Gyroscope Z-Axis Low Byte", Access: "R"},
		{Address: regPwrMgmt1, Name: "PWR_MGMT_1", Description: "Power Management 1", Access: "RW", Default: "0x40",
			BitFields: []regmap.BitField{
				{Bits: regmap.FieldBits(fieldReset), Name: "DEVICE_RESET", Description: "Device reset, self-clearing", Values: "1=Reset"},
				{Bits: regmap.FieldBits(fieldSleep), Name: "SLEEP", Description: "Sleep mode", Values: "0=Run, 1=Sleep"},
				{Bits: regmap.FieldBits(fieldClkSel), Name: "CLKSEL", Description: "Clock source", Values: "0=Internal, 1=Auto select best"},
			}},
		{Address: regWhoAmI, Name: "WHO_AM_I", Description: "Device ID (should be 0xB5)", Access: "R", Default: "0xB5"},
	}
}
