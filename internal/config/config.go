// Copyright (c) 2026 Sierra Lobo
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/Sierra-Lobo/imu-stamp-sw/internal/iam20380"
	"github.com/Sierra-Lobo/imu-stamp-sw/internal/mc3419"
	"github.com/Sierra-Lobo/imu-stamp-sw/internal/stamp"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every key when looking for environment
// overrides (IMUSTAMP_SAMPLE_INTERVAL overrides SAMPLE_INTERVAL).
const EnvPrefix = "IMUSTAMP"

// DefaultPath is the config file looked up when no path is given.
const DefaultPath = "imustamp_config.txt"

// Config holds all application configuration values.
type Config struct {
	// Bus
	I2CBus    string // periph bus name, "" for the first bus
	BoardXOR1 uint8
	BoardXOR2 uint8
	Simulate  bool // use the in-memory bus instead of hardware

	// MQTT
	MQTTBroker           string
	MQTTClientIDProducer string
	MQTTClientIDConsole  string
	MQTTClientIDDisplay  string
	MQTTClientIDWeb      string
	TopicPrefix          string

	// Timing
	SampleInterval   int // milliseconds
	StatsLogInterval int // milliseconds

	// Gyroscope
	GyroRange     iam20380.Range
	GyroDLPF      iam20380.DLPF
	GyroSmplrtDiv uint8
	GyroAveraging iam20380.Averaging

	// Accelerometer
	AccelRange      mc3419.Range
	AccelDataRate   mc3419.DataRate
	AccelDecimation mc3419.Decimation
	AccelBandwidth  mc3419.Bandwidth
	AccelFilter     bool

	// HTTP
	DebugServerAddr string
	WebAddr         string
	MetricsAddr     string // producer /metrics, "" disables

	// Display
	DisplayI2CAddr        uint16
	DisplayPair           int
	DisplayUpdateInterval int // milliseconds

	LogLevel string
}

// defaults holds every known key with its default value. A key missing from
// this table is rejected.
var defaults = map[string]string{
	"I2C_BUS":                 "",
	"BOARD_XOR1":              "0x00",
	"BOARD_XOR2":              "0x01",
	"SIMULATE":                "false",
	"MQTT_BROKER":             "tcp://localhost:1883",
	"MQTT_CLIENT_ID_PRODUCER": "imustamp-producer",
	"MQTT_CLIENT_ID_CONSOLE":  "imustamp-console",
	"MQTT_CLIENT_ID_DISPLAY":  "imustamp-display",
	"MQTT_CLIENT_ID_WEB":      "imustamp-web",
	"TOPIC_PREFIX":            "imustamp",
	"SAMPLE_INTERVAL":         "50",
	"STATS_LOG_INTERVAL":      "5000",
	"GYRO_RANGE":              strconv.Itoa(int(iam20380.DefaultRange)),
	"GYRO_DLPF":               strconv.Itoa(int(iam20380.DefaultDLPF)),
	"GYRO_SMPLRT_DIV":         strconv.Itoa(iam20380.DefaultSampleRateDiv),
	"GYRO_AVG":                strconv.Itoa(int(iam20380.DefaultAveraging)),
	"ACCEL_RANGE":             strconv.Itoa(int(mc3419.DefaultRange)),
	"ACCEL_IDR":               strconv.Itoa(int(mc3419.DefaultDataRate)),
	"ACCEL_DECIMATION":        strconv.Itoa(int(mc3419.DefaultDecimation)),
	"ACCEL_LPF_BW":            strconv.Itoa(int(mc3419.DefaultBandwidth)),
	"ACCEL_LPF_EN":            "true",
	"DEBUG_SERVER_ADDR":       ":8080",
	"WEB_ADDR":                ":8081",
	"METRICS_ADDR":            ":9100",
	"DISPLAY_I2C_ADDR":        "0x3C",
	"DISPLAY_PAIR":            "0",
	"DISPLAY_UPDATE_INTERVAL": "500",
	"LOG_LEVEL":               "info",
}

// Package-level singleton: InitGlobal sets it once, Get reads it.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Load reads the KEY=VALUE file at configPath, applies IMUSTAMP_*
// environment overrides and returns the validated configuration. An empty
// path loads defaults and environment only.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var unknown []string
	for _, key := range v.AllKeys() {
		if _, ok := defaults[strings.ToUpper(key)]; !ok {
			unknown = append(unknown, strings.ToUpper(key))
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("unknown config key: %q", unknown[0])
	}

	cfg := &Config{}
	keys := make([]string, 0, len(defaults))
	for key := range defaults {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if err := cfg.setValue(key, strings.TrimSpace(v.GetString(key))); err != nil {
			return nil, err
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseInt(key, value string, lo, hi int) (int, error) {
	n, err := strconv.ParseInt(value, 0, 0)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if int(n) < lo || int(n) > hi {
		return 0, fmt.Errorf("%s must be %d-%d, got %d", key, lo, hi, n)
	}
	return int(n), nil
}

func parseBool(key, value string) (bool, error) {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return b, nil
}

// driverCode parses an integer and checks it with the driver's own
// validation.
func driverCode(key, value string, validate func(int) error) (int, error) {
	n, err := parseInt(key, value, 0, 255)
	if err != nil {
		return 0, err
	}
	if err := validate(n); err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error
	var n int
	switch key {
	// Bus
	case "I2C_BUS":
		c.I2CBus = value
	case "BOARD_XOR1":
		n, err = parseInt(key, value, 0, 0x7F)
		c.BoardXOR1 = uint8(n)
	case "BOARD_XOR2":
		n, err = parseInt(key, value, 0, 0x7F)
		c.BoardXOR2 = uint8(n)
	case "SIMULATE":
		c.Simulate, err = parseBool(key, value)

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_PRODUCER":
		c.MQTTClientIDProducer = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_DISPLAY":
		c.MQTTClientIDDisplay = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value
	case "TOPIC_PREFIX":
		c.TopicPrefix = strings.TrimSuffix(value, "/")

	// Timing
	case "SAMPLE_INTERVAL":
		c.SampleInterval, err = parseInt(key, value, 1, 60000)
	case "STATS_LOG_INTERVAL":
		c.StatsLogInterval, err = parseInt(key, value, 0, 3600000)

	// Gyroscope
	case "GYRO_RANGE":
		n, err = driverCode(key, value, func(n int) error { return iam20380.Range(n).Validate() })
		c.GyroRange = iam20380.Range(n)
	case "GYRO_DLPF":
		n, err = driverCode(key, value, func(n int) error { return iam20380.DLPF(n).Validate() })
		c.GyroDLPF = iam20380.DLPF(n)
	case "GYRO_SMPLRT_DIV":
		n, err = parseInt(key, value, 0, 255)
		c.GyroSmplrtDiv = uint8(n)
	case "GYRO_AVG":
		n, err = driverCode(key, value, func(n int) error { return iam20380.Averaging(n).Validate() })
		c.GyroAveraging = iam20380.Averaging(n)

	// Accelerometer
	case "ACCEL_RANGE":
		n, err = driverCode(key, value, func(n int) error { return mc3419.Range(n).Validate() })
		c.AccelRange = mc3419.Range(n)
	case "ACCEL_IDR":
		n, err = driverCode(key, value, func(n int) error { return mc3419.DataRate(n).Validate() })
		c.AccelDataRate = mc3419.DataRate(n)
	case "ACCEL_DECIMATION":
		n, err = driverCode(key, value, func(n int) error { return mc3419.Decimation(n).Validate() })
		c.AccelDecimation = mc3419.Decimation(n)
	case "ACCEL_LPF_BW":
		n, err = driverCode(key, value, func(n int) error { return mc3419.Bandwidth(n).Validate() })
		c.AccelBandwidth = mc3419.Bandwidth(n)
	case "ACCEL_LPF_EN":
		c.AccelFilter, err = parseBool(key, value)

	// HTTP
	case "DEBUG_SERVER_ADDR":
		c.DebugServerAddr = value
	case "WEB_ADDR":
		c.WebAddr = value
	case "METRICS_ADDR":
		c.MetricsAddr = value

	// Display
	case "DISPLAY_I2C_ADDR":
		n, err = parseInt(key, value, 0x03, 0x77)
		c.DisplayI2CAddr = uint16(n)
	case "DISPLAY_PAIR":
		c.DisplayPair, err = parseInt(key, value, 0, stamp.Pairs-1)
	case "DISPLAY_UPDATE_INTERVAL":
		c.DisplayUpdateInterval, err = parseInt(key, value, 1, 60000)

	case "LOG_LEVEL":
		c.LogLevel = strings.ToLower(value)

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}
	return err
}

// validate checks the cross-field constraints.
func (c *Config) validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if c.TopicPrefix == "" {
		return fmt.Errorf("TOPIC_PREFIX is required")
	}
	if err := stamp.Addresses(c.BoardXOR1, c.BoardXOR2).Validate(); err != nil {
		return fmt.Errorf("BOARD_XOR1/BOARD_XOR2: %w", err)
	}
	switch c.LogLevel {
	case "trace", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be trace, debug, info, warn or error, got %q", c.LogLevel)
	}
	return nil
}

// Profile returns the sensor configuration to apply after reset.
func (c *Config) Profile() stamp.Profile {
	return stamp.Profile{
		GyroRange:      c.GyroRange,
		GyroDLPF:       c.GyroDLPF,
		GyroSmplrtDiv:  c.GyroSmplrtDiv,
		GyroAveraging:  c.GyroAveraging,
		AccelRange:     c.AccelRange,
		AccelDataRate:  c.AccelDataRate,
		AccelDecimate:  c.AccelDecimation,
		AccelBandwidth: c.AccelBandwidth,
		AccelFilter:    c.AccelFilter,
	}
}

// PairTopic returns the MQTT topic samples of pair are published on.
func (c *Config) PairTopic(pair int) string {
	return fmt.Sprintf("%s/pair/%d", c.TopicPrefix, pair)
}

// InitGlobal initializes the global configuration from file. Only the first
// call has an effect.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance, nil before InitGlobal.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
