// Copyright (c) 2026 Sierra Lobo
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Sierra-Lobo/imu-stamp-sw/internal/app"
	"github.com/Sierra-Lobo/imu-stamp-sw/internal/config"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var RootCmd = &cobra.Command{
	Use:   "imustamp",
	Short: "tools for the IMU stamp (2x IAM-20380, MC3419, MMC5603)",
	Long: `imustamp drives the six sensors of an IMU stamp over I²C.
Configuration is read from the file given by --config, or from
imustamp_config.txt in the current directory when present. IMUSTAMP_*
environment variables override file values.
`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func loadConfig(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		if _, err := os.Stat(config.DefaultPath); err == nil {
			path = config.DefaultPath
		}
	}
	if err := config.InitGlobal(path); err != nil {
		return err
	}
	cfg := config.Get()

	if sim, _ := cmd.Flags().GetBool("simulate"); sim {
		cfg.Simulate = true
	}
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		level = log.DebugLevel
	}
	log.SetLevel(level)
	log.WithFields(log.Fields{"config": path, "simulate": cfg.Simulate}).Debug("configuration loaded")

	app.RegisterMetrics()
	return nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runWithSignals(run func(context.Context) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()
		return run(ctx)
	}
}

var ProduceCmd = &cobra.Command{
	Use:        "produce",
	SuggestFor: []string{"prod", "producer", "pub"},
	Short:      "sample both pairs and publish them over MQTT",
	Long: `produce resets and configures the stamp, wakes the accelerometers and
publishes one JSON sample per pair to <TOPIC_PREFIX>/pair/<n> every
SAMPLE_INTERVAL milliseconds. Prometheus metrics are served on METRICS_ADDR.
`,
	Example: `  imustamp produce --config=/etc/imustamp_config.txt`,
	RunE:    runWithSignals(app.RunProducer),
}

var ConsoleCmd = &cobra.Command{
	Use:        "console",
	SuggestFor: []string{"con", "cons"},
	Short:      "print published samples",
	RunE:       runWithSignals(app.RunConsole),
}

var WebCmd = &cobra.Command{
	Use:        "web",
	SuggestFor: []string{"http", "bridge"},
	Short:      "serve the latest published sample of each pair over HTTP",
	Example: `  imustamp web
  curl localhost:8081/api/latest?pair=1`,
	RunE: runWithSignals(app.RunWeb),
}

var DisplayCmd = &cobra.Command{
	Use:        "display",
	SuggestFor: []string{"disp", "oled"},
	Short:      "show one pair on an SSD1306 OLED",
	Long: `display subscribes to the producer's topics and draws DISPLAY_PAIR on an
SSD1306 at DISPLAY_I2C_ADDR every DISPLAY_UPDATE_INTERVAL milliseconds.
`,
	RunE: runWithSignals(app.RunDisplay),
}

var DebugCmd = &cobra.Command{
	Use:        "debug",
	SuggestFor: []string{"dbg", "registers"},
	Short:      "serve the register debugger",
	Long: `debug serves register access for all six devices on /ws/registers,
single samples on /api/sample and Prometheus metrics on /metrics. Raw
writes follow the driver rules and resets re-apply the configured profile.
`,
	Example: `  imustamp debug --simulate`,
	RunE:    runWithSignals(app.RunDebugServer),
}

var ResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "reset all six devices to their defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.RunReset()
	},
}

var DumpCmd = &cobra.Command{
	Use:        "dump",
	SuggestFor: []string{"regs", "snapshot"},
	Short:      "write a YAML snapshot of every readable register",
	Example: `  imustamp dump
  imustamp dump -o stamp.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("output")
		return app.RunDump(out)
	},
}

func getRootCmd() *cobra.Command {
	RootCmd.PersistentFlags().String("config", "", "configuration file (KEY=VALUE)")
	RootCmd.PersistentFlags().Bool("debug", false, "toggle debug logging")
	RootCmd.PersistentFlags().Bool("simulate", false, "use the in-memory stamp instead of the I²C bus")

	DumpCmd.Flags().StringP("output", "o", "-", "output file, - for stdout")

	RootCmd.AddCommand(ProduceCmd, ConsoleCmd, WebCmd, DisplayCmd, DebugCmd, ResetCmd, DumpCmd)
	return RootCmd
}

func Execute() {
	if err := getRootCmd().Execute(); err != nil {
		log.Fatal(err)
	}
}
