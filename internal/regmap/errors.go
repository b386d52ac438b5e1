// Copyright (c) 2026 Sierra Lobo
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package regmap

import (
	"errors"
	"fmt"
)

var (
	// ErrDeviceNotFound is returned when the chip-id register does not hold
	// the value expected for the driver.
	ErrDeviceNotFound = errors.New("device not found")
	// ErrValidation is returned when a configuration value is outside the
	// legal interval of its field. No bus write happens in that case.
	ErrValidation = errors.New("invalid value")
	// ErrMode is returned when the device is in the wrong operating mode for
	// the requested operation.
	ErrMode = errors.New("wrong operating mode")
	// ErrBus is matched by every BusError.
	ErrBus = errors.New("bus error")
	// ErrTimeout is returned when a self-clearing bit never clears.
	ErrTimeout = errors.New("timeout")
)

// BusError wraps a transport failure with the device address and register
// that were being accessed.
type BusError struct {
	Op   string // "read" or "write"
	Addr uint16
	Reg  uint8
	Err  error
}

func (e *BusError) Error() string {
	return fmt.Sprintf("bus error: %s 0x%02X reg 0x%02X: %v", e.Op, e.Addr, e.Reg, e.Err)
}

func (e *BusError) Unwrap() error { return e.Err }

// Is reports ErrBus as a match so callers can test with errors.Is.
func (e *BusError) Is(target error) bool { return target == ErrBus }

// Invalid builds an ErrValidation error for a named field.
func Invalid(field string, v int, legal string) error {
	return fmt.Errorf("%w: %s %d must be %s", ErrValidation, field, v, legal)
}
