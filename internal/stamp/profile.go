// Copyright (c) 2026 Sierra Lobo
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package stamp

import (
	"fmt"

	"github.com/Sierra-Lobo/imu-stamp-sw/internal/iam20380"
	"github.com/Sierra-Lobo/imu-stamp-sw/internal/mc3419"
	"go.uber.org/multierr"
)

// Profile is the sensor configuration applied to both pairs.
type Profile struct {
	GyroRange      iam20380.Range
	GyroDLPF       iam20380.DLPF
	GyroSmplrtDiv  uint8
	GyroAveraging  iam20380.Averaging
	AccelRange     mc3419.Range
	AccelDataRate  mc3419.DataRate
	AccelDecimate  mc3419.Decimation
	AccelBandwidth mc3419.Bandwidth
	AccelFilter    bool
}

// DefaultProfile is what the drivers write on reset.
func DefaultProfile() Profile {
	return Profile{
		GyroRange:      iam20380.DefaultRange,
		GyroDLPF:       iam20380.DefaultDLPF,
		GyroSmplrtDiv:  iam20380.DefaultSampleRateDiv,
		GyroAveraging:  iam20380.DefaultAveraging,
		AccelRange:     mc3419.DefaultRange,
		AccelDataRate:  mc3419.DefaultDataRate,
		AccelDecimate:  mc3419.DefaultDecimation,
		AccelBandwidth: mc3419.DefaultBandwidth,
		AccelFilter:    true,
	}
}

// Validate checks every field and reports all invalid ones.
func (p Profile) Validate() error {
	return multierr.Combine(
		p.GyroRange.Validate(),
		p.GyroDLPF.Validate(),
		p.GyroAveraging.Validate(),
		p.AccelRange.Validate(),
		p.AccelDataRate.Validate(),
		p.AccelDecimate.Validate(),
		p.AccelBandwidth.Validate(),
	)
}

// Configure validates p and writes it to all four configurable chips. The
// accelerometers are put in Standby first and left there; call Start to
// resume sampling.
func (s *Stamp) Configure(p Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	for i, g := range s.Gyro {
		if err := configureGyro(g, p); err != nil {
			return fmt.Errorf("gyro%d: %w", i, err)
		}
	}
	if err := s.Standby(); err != nil {
		return err
	}
	for i, a := range s.Accel {
		if err := configureAccel(a, p); err != nil {
			return fmt.Errorf("accel%d: %w", i, err)
		}
	}
	return nil
}

func configureGyro(g *iam20380.Dev, p Profile) error {
	if err := g.SetRange(p.GyroRange); err != nil {
		return err
	}
	if err := g.SetDLPF(p.GyroDLPF); err != nil {
		return err
	}
	if err := g.SetSampleRateDivider(p.GyroSmplrtDiv); err != nil {
		return err
	}
	return g.SetAveraging(p.GyroAveraging)
}

func configureAccel(a *mc3419.Dev, p Profile) error {
	if err := a.SetRange(p.AccelRange); err != nil {
		return err
	}
	if err := a.SetDataRate(p.AccelDataRate); err != nil {
		return err
	}
	if err := a.SetDecimation(p.AccelDecimate); err != nil {
		return err
	}
	if err := a.SetBandwidth(p.AccelBandwidth); err != nil {
		return err
	}
	return a.SetFilterEnable(p.AccelFilter)
}
