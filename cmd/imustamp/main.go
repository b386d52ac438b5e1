// Copyright (c) 2026 Sierra Lobo
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import "github.com/Sierra-Lobo/imu-stamp-sw/internal/cmd"

func main() {
	cmd.Execute()
}
