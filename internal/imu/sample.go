// Copyright (c) 2026 Sierra Lobo
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import "time"

// CenterOffset is subtracted from the unsigned 16-bit output codes.
const CenterOffset = 1 << 15

// Vec3 is an (x, y, z) reading in physical units.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Scale converts three raw output codes to physical units:
// (raw - 32768) / sensitivity.
func Scale(raw [3]uint16, sensitivity float64) Vec3 {
	return Vec3{
		X: (float64(raw[0]) - CenterOffset) / sensitivity,
		Y: (float64(raw[1]) - CenterOffset) / sensitivity,
		Z: (float64(raw[2]) - CenterOffset) / sensitivity,
	}
}

// Sample is one reading of a sensor pair (gyro, accel, mag sharing an XOR
// offset).
type Sample struct {
	Pair int       `json:"pair"` // 0 or 1
	Time time.Time `json:"time"`

	Rotation     Vec3    `json:"gyro_dps"`
	GyroTemp     float64 `json:"gyro_temp_c"`
	Acceleration Vec3    `json:"accel_g"`
	Magnetic     Vec3    `json:"mag_ut"`
}

// SampleSource is anything that can produce pair samples.
type SampleSource interface {
	Sample(pair int) (Sample, error)
}
