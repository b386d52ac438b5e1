// Copyright (c) 2026 Sierra Lobo
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/Sierra-Lobo/imu-stamp-sw/internal/config"
	"github.com/Sierra-Lobo/imu-stamp-sw/internal/regmap"
	"github.com/Sierra-Lobo/imu-stamp-sw/internal/stamp"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// RegisterCmd is a WebSocket request. Device is one of gyro0, gyro1,
// accel0, accel1, mag0, mag1 ("all" for reset).
type RegisterCmd struct {
	Action string `json:"action"` // get_map, read, read_all, write, reset, export_config
	Device string `json:"device"`
	Addr   string `json:"addr,omitempty"`
	Value  string `json:"value,omitempty"`
}

// RegisterResponse is sent for every request.
type RegisterResponse struct {
	Type        string                `json:"type"` // register_map, register_data, status, export_config, error
	Device      string                `json:"device,omitempty"`
	Chip        string                `json:"chip,omitempty"`
	Address     string                `json:"addr,omitempty"`
	Value       string                `json:"value,omitempty"`
	Registers   map[string]string     `json:"registers,omitempty"`
	RegisterMap []regmap.RegisterInfo `json:"register_map,omitempty"`
	Config      string                `json:"config,omitempty"`
	Filename    string                `json:"filename,omitempty"`
	Timestamp   string                `json:"timestamp,omitempty"`
	Message     string                `json:"message,omitempty"`
}

// DebugServer exposes the registers of a stamp over WebSocket and the
// latest samples over REST. All bus access goes through mu.
type DebugServer struct {
	mu       sync.Mutex
	stamp    *stamp.Stamp
	profile  stamp.Profile
	upgrader websocket.Upgrader
}

// NewDebugServer returns a server for s. profile is re-applied, and the
// accelerometers woken, after every reset.
func NewDebugServer(s *stamp.Stamp, profile stamp.Profile) *DebugServer {
	return &DebugServer{
		stamp:   s,
		profile: profile,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handler returns the HTTP routes.
func (d *DebugServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/registers", d.handleWS)
	mux.HandleFunc("/api/sample", d.handleSample)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func (d *DebugServer) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := d.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("register_debug: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	for {
		var cmd RegisterCmd
		if err := conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warnf("register_debug: websocket error: %v", err)
			}
			return
		}
		if err := conn.WriteJSON(d.Execute(cmd)); err != nil {
			log.Warnf("register_debug: write error: %v", err)
			return
		}
	}
}

func errorResponse(format string, args ...interface{}) RegisterResponse {
	return RegisterResponse{Type: "error", Message: fmt.Sprintf(format, args...)}
}

func parseByte(s string) (uint8, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid byte %q", s)
	}
	return uint8(v), nil
}

// Execute runs one command against the stamp.
func (d *DebugServer) Execute(cmd RegisterCmd) RegisterResponse {
	d.mu.Lock()
	defer d.mu.Unlock()

	if cmd.Action == "reset" && (cmd.Device == "" || cmd.Device == "all") {
		if err := d.stamp.ResetAll(); err != nil {
			return errorResponse("reset error: %v", err)
		}
		if err := d.restart(); err != nil {
			return errorResponse("reset error: %v", err)
		}
		return RegisterResponse{Type: "status", Device: "all", Message: "all devices reset, profile re-applied"}
	}

	dev, ok := d.stamp.Device(cmd.Device)
	if !ok {
		return errorResponse("unknown device: %q", cmd.Device)
	}
	resp := RegisterResponse{
		Device:    dev.Name,
		Chip:      dev.Chip,
		Timestamp: time.Now().Format(time.RFC3339),
	}

	switch cmd.Action {
	case "get_map":
		resp.Type = "register_map"
		resp.RegisterMap = dev.Registers

	case "read":
		addr, err := parseByte(cmd.Addr)
		if err != nil {
			return errorResponse("invalid address format: %s", cmd.Addr)
		}
		registerOps.WithLabelValues("read").Inc()
		v, err := dev.Regs.ReadRegister(addr)
		if err != nil {
			return errorResponse("read error: %v", err)
		}
		resp.Type = "register_data"
		resp.Address = fmt.Sprintf("0x%02X", addr)
		resp.Value = fmt.Sprintf("0x%02X", v)

	case "read_all":
		snap, err := SnapshotDevice(dev)
		registerOps.WithLabelValues("read").Add(float64(len(snap.Registers)))
		if err != nil {
			return errorResponse("read all error: %v", err)
		}
		resp.Type = "register_data"
		resp.Registers = make(map[string]string, len(snap.Registers))
		for _, r := range snap.Registers {
			resp.Registers[r.Address] = r.Value
		}

	case "write":
		addr, err := parseByte(cmd.Addr)
		if err != nil {
			return errorResponse("invalid address format: %s", cmd.Addr)
		}
		v, err := parseByte(cmd.Value)
		if err != nil {
			return errorResponse("invalid value format: %s", cmd.Value)
		}
		info, ok := regmap.Lookup(dev.Registers, addr)
		if !ok || !info.Writable() {
			return errorResponse("register 0x%02X of %s is not writable", addr, dev.Name)
		}
		if dev.CheckWrite != nil {
			if err := dev.CheckWrite(addr, v); err != nil {
				return errorResponse("write rejected: %v", err)
			}
		}
		registerOps.WithLabelValues("write").Inc()
		if err := dev.Regs.WriteRegister(addr, v); err != nil {
			return errorResponse("write error: %v", err)
		}
		resp.Type = "register_data"
		resp.Address = fmt.Sprintf("0x%02X", addr)
		resp.Value = fmt.Sprintf("0x%02X", v)
		resp.Message = "write successful"

	case "reset":
		if err := d.resetDevice(cmd.Device); err != nil {
			return errorResponse("reset error: %v", err)
		}
		if err := d.restart(); err != nil {
			return errorResponse("reset error: %v", err)
		}
		resp.Type = "status"
		resp.Message = dev.Name + " reset, profile re-applied"

	case "export_config":
		snap, err := SnapshotDevice(dev)
		if err != nil {
			return errorResponse("export error: %v", err)
		}
		var buf bytes.Buffer
		if err := WriteSnapshot(&buf, Snapshot{Version: 1, Timestamp: time.Now().UTC(), Devices: []DeviceSnapshot{snap}}); err != nil {
			return errorResponse("export error: %v", err)
		}
		resp.Type = "export_config"
		resp.Config = buf.String()
		resp.Filename = fmt.Sprintf("%s_%s_registers.yaml", dev.Name, time.Now().Format("20060102_150405"))

	default:
		return errorResponse("unknown action: %s", cmd.Action)
	}
	return resp
}

func (d *DebugServer) resetDevice(name string) error {
	for i := 0; i < stamp.Pairs; i++ {
		switch name {
		case fmt.Sprintf("gyro%d", i):
			return d.stamp.Gyro[i].Reset()
		case fmt.Sprintf("accel%d", i):
			return d.stamp.Accel[i].Reset()
		case fmt.Sprintf("mag%d", i):
			return d.stamp.Mag[i].Reset()
		}
	}
	return fmt.Errorf("unknown device %q", name)
}

// restart brings the stamp back to its serving state after a reset.
func (d *DebugServer) restart() error {
	if err := d.stamp.Configure(d.profile); err != nil {
		return err
	}
	return d.stamp.Start()
}

// handleSample serves one sample as JSON. Query: ?pair=0 or ?pair=1.
func (d *DebugServer) handleSample(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	pair := 0
	if p := r.URL.Query().Get("pair"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n >= stamp.Pairs {
			http.Error(w, `{"error": "invalid pair parameter, use 0 or 1"}`, http.StatusBadRequest)
			return
		}
		pair = n
	}

	d.mu.Lock()
	smp, err := readSample(d.stamp, pair)
	d.mu.Unlock()
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}
	json.NewEncoder(w).Encode(smp)
}

// RunDebugServer serves the register debugger until ctx is cancelled.
// The accelerometers are woken so /api/sample works.
func RunDebugServer(ctx context.Context) error {
	cfg := config.Get()
	s, bus, err := OpenStamp(cfg)
	if err != nil {
		return err
	}
	defer bus.Close()
	if err := s.Start(); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:    cfg.DebugServerAddr,
		Handler: NewDebugServer(s, cfg.Profile()).Handler(),
	}
	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.DebugServerAddr).Info("register debug server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return s.Standby()
}
