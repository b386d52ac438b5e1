// Copyright (c) 2026 Sierra Lobo
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Sierra-Lobo/imu-stamp-sw/internal/i2csim"
	"github.com/Sierra-Lobo/imu-stamp-sw/internal/iam20380"
	"github.com/Sierra-Lobo/imu-stamp-sw/internal/imu"
	"github.com/Sierra-Lobo/imu-stamp-sw/internal/mc3419"
	"github.com/Sierra-Lobo/imu-stamp-sw/internal/mmc5603"
	"github.com/Sierra-Lobo/imu-stamp-sw/internal/stamp"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gopkg.in/yaml.v3"
)

func newSimStamp(t *testing.T) (*stamp.Stamp, *i2csim.Bus) {
	t.Helper()
	bus := i2csim.NewStamp(0x00, 0x01)
	s, err := stamp.New(bus, 0x00, 0x01, &stamp.Opts{
		Gyro:  &iam20380.Opts{PollInterval: time.Microsecond, MaxPolls: 5},
		Accel: &mc3419.Opts{PollInterval: time.Microsecond, MaxPolls: 5},
		Mag:   &mmc5603.Opts{PollInterval: time.Microsecond, MaxPolls: 5},
	})
	if err != nil {
		t.Fatal(err)
	}
	return s, bus
}

type fakePublisher struct {
	msgs map[string][]byte
	err  error
}

func (f *fakePublisher) Publish(topic string, payload []byte) error {
	if f.err != nil {
		return f.err
	}
	if f.msgs == nil {
		f.msgs = map[string][]byte{}
	}
	f.msgs[topic] = payload
	return nil
}

func topic(pair int) string { return fmt.Sprintf("test/pair/%d", pair) }

func TestProducerTick(t *testing.T) {
	s, _ := newSimStamp(t)
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	pub := &fakePublisher{}
	p := &Producer{Source: s, Pub: pub, Topic: topic}
	before := testutil.ToFloat64(samplesTotal.WithLabelValues("1"))
	if err := p.Tick(); err != nil {
		t.Fatal(err)
	}
	if len(pub.msgs) != 2 {
		t.Fatalf("published %d topics, want 2", len(pub.msgs))
	}
	var smp imu.Sample
	if err := json.Unmarshal(pub.msgs["test/pair/1"], &smp); err != nil {
		t.Fatal(err)
	}
	if smp.Pair != 1 || smp.Acceleration.Z != 1 {
		t.Errorf("sample = %+v", smp)
	}
	if got := testutil.ToFloat64(samplesTotal.WithLabelValues("1")) - before; got != 1 {
		t.Errorf("samples_total{pair=1} grew by %v, want 1", got)
	}
	if !strings.HasPrefix(p.Stats(), "published 2 samples, 0 failed") {
		t.Errorf("Stats = %q", p.Stats())
	}
}

func TestProducerTickErrors(t *testing.T) {
	s, _ := newSimStamp(t)
	p := &Producer{Source: s, Pub: &fakePublisher{}, Topic: topic}
	// Accelerometers still in standby.
	if err := p.Tick(); err == nil {
		t.Fatal("Tick succeeded with sleeping accelerometers")
	}
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	before := testutil.ToFloat64(publishErrors)
	p.Pub = &fakePublisher{err: errors.New("broker gone")}
	if err := p.Tick(); err == nil {
		t.Fatal("Tick succeeded with failing publisher")
	}
	if got := testutil.ToFloat64(publishErrors) - before; got != 2 {
		t.Errorf("publish errors grew by %v, want 2", got)
	}
	if st := p.Stats(); !strings.Contains(st, "4 failed") || !strings.Contains(st, "last failure") {
		t.Errorf("Stats = %q", st)
	}
}

func TestSnapshot(t *testing.T) {
	s, _ := newSimStamp(t)
	snap, err := TakeSnapshot(s)
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Devices) != 6 {
		t.Fatalf("%d devices in snapshot", len(snap.Devices))
	}
	gyro := snap.Devices[0]
	if gyro.Name != "gyro0" || gyro.Addr != "0x68" {
		t.Fatalf("first device = %s at %s", gyro.Name, gyro.Addr)
	}
	found := false
	for _, r := range gyro.Registers {
		if r.Name == "GYRO_CONFIG" {
			found = true
			if r.Fields["FS_SEL"] != 0 || r.Fields["FCHOICE_B"] != 0 {
				t.Errorf("GYRO_CONFIG fields = %v", r.Fields)
			}
		}
		if r.Name == "WHO_AM_I" && r.Value != "0xB5" {
			t.Errorf("WHO_AM_I = %s", r.Value)
		}
	}
	if !found {
		t.Error("GYRO_CONFIG missing from snapshot")
	}

	var buf bytes.Buffer
	if err := WriteSnapshot(&buf, snap); err != nil {
		t.Fatal(err)
	}
	var back Snapshot
	if err := yaml.Unmarshal(buf.Bytes(), &back); err != nil {
		t.Fatal(err)
	}
	if len(back.Devices) != 6 || back.Devices[3].Name != "accel1" {
		t.Errorf("decoded snapshot devices = %+v", back.Devices)
	}
}

func TestDebugServerExecute(t *testing.T) {
	s, bus := newSimStamp(t)
	d := NewDebugServer(s, stamp.DefaultProfile())

	resp := d.Execute(RegisterCmd{Action: "read", Device: "accel0", Addr: "0x18"})
	if resp.Type != "register_data" || resp.Value != "0xA4" {
		t.Fatalf("read CHIP_ID = %+v", resp)
	}

	resp = d.Execute(RegisterCmd{Action: "write", Device: "gyro1", Addr: "0x19", Value: "0x09"})
	if resp.Type != "register_data" {
		t.Fatalf("write = %+v", resp)
	}
	if got := bus.Chip(0x69).Get(0x19); got != 0x09 {
		t.Fatalf("SMPLRT_DIV = 0x%02X after write", got)
	}

	resp = d.Execute(RegisterCmd{Action: "write", Device: "gyro1", Addr: "0x75", Value: "0x00"})
	if resp.Type != "error" {
		t.Fatalf("write to WHO_AM_I = %+v, want error", resp)
	}

	resp = d.Execute(RegisterCmd{Action: "reset", Device: "gyro1"})
	if resp.Type != "status" {
		t.Fatalf("reset = %+v", resp)
	}
	if got := bus.Chip(0x69).Get(0x19); got != 0xFF {
		t.Fatalf("SMPLRT_DIV = 0x%02X after reset, want 0xFF", got)
	}

	resp = d.Execute(RegisterCmd{Action: "read_all", Device: "mag1"})
	if resp.Registers["0x39"] != "0x10" {
		t.Fatalf("read_all mag1 = %+v", resp.Registers)
	}

	resp = d.Execute(RegisterCmd{Action: "export_config", Device: "accel1"})
	if resp.Type != "export_config" || !strings.Contains(resp.Config, "CHIP_ID") {
		t.Fatalf("export_config = %+v", resp)
	}

	for _, cmd := range []RegisterCmd{
		{Action: "read", Device: "gyro7", Addr: "0x75"},
		{Action: "read", Device: "gyro0", Addr: "zz"},
		{Action: "dance", Device: "gyro0"},
	} {
		if resp := d.Execute(cmd); resp.Type != "error" {
			t.Errorf("%+v = %+v, want error", cmd, resp)
		}
	}

	if resp := d.Execute(RegisterCmd{Action: "reset", Device: "all"}); resp.Type != "status" {
		t.Fatalf("reset all = %+v", resp)
	}
}

func TestDebugServerWriteFollowsDriverRules(t *testing.T) {
	s, bus := newSimStamp(t)
	d := NewDebugServer(s, stamp.DefaultProfile())
	accel := bus.Chip(0x4C)
	gyro := bus.Chip(0x68)
	rangeBefore := accel.Get(0x20)

	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	resp := d.Execute(RegisterCmd{Action: "write", Device: "accel0", Addr: "0x20", Value: "0x45"})
	if resp.Type != "error" || !strings.Contains(resp.Message, "wrong operating mode") {
		t.Fatalf("RANGE write in wake = %+v, want mode error", resp)
	}
	if got := accel.Get(0x20); got != rangeBefore {
		t.Fatalf("RANGE = 0x%02X after rejected write, want 0x%02X", got, rangeBefore)
	}
	// MODE stays writable so the chip can be put back in standby.
	if resp := d.Execute(RegisterCmd{Action: "write", Device: "accel0", Addr: "0x07", Value: "0x00"}); resp.Type != "register_data" {
		t.Fatalf("MODE write = %+v", resp)
	}

	resp = d.Execute(RegisterCmd{Action: "write", Device: "accel0", Addr: "0x20", Value: "0x44"})
	if resp.Type != "error" || !strings.Contains(resp.Message, "invalid value") {
		t.Fatalf("LPF_BW=4 write = %+v, want validation error", resp)
	}
	if got := accel.Get(0x20); got != rangeBefore {
		t.Fatalf("RANGE = 0x%02X after rejected write", got)
	}
	resp = d.Execute(RegisterCmd{Action: "write", Device: "accel0", Addr: "0x20", Value: "0x45"})
	if resp.Type != "register_data" || accel.Get(0x20) != 0x45 {
		t.Fatalf("RANGE write in standby = %+v, reg 0x%02X", resp, accel.Get(0x20))
	}

	cfgBefore := gyro.Get(0x1A)
	resp = d.Execute(RegisterCmd{Action: "write", Device: "gyro0", Addr: "0x1A", Value: "0x00"})
	if resp.Type != "error" || gyro.Get(0x1A) != cfgBefore {
		t.Fatalf("DLPF_CFG=0 write = %+v, reg 0x%02X", resp, gyro.Get(0x1A))
	}
}

func TestDebugServerResetReappliesProfile(t *testing.T) {
	s, bus := newSimStamp(t)
	p := stamp.DefaultProfile()
	p.GyroRange = iam20380.Range2000DPS
	d := NewDebugServer(s, p)
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}

	for _, dev := range []string{"all", "accel1", "gyro0"} {
		resp := d.Execute(RegisterCmd{Action: "reset", Device: dev})
		if resp.Type != "status" {
			t.Fatalf("reset %s = %+v", dev, resp)
		}
		for pair := 0; pair < stamp.Pairs; pair++ {
			if _, err := s.Sample(pair); err != nil {
				t.Fatalf("sample pair %d after reset %s: %v", pair, dev, err)
			}
		}
		if fs := bus.Chip(0x68).Get(0x1B) >> 3 & 0x3; fs != 3 {
			t.Fatalf("FS_SEL = %d after reset %s, want 3", fs, dev)
		}
	}
}

func TestSampleMetrics(t *testing.T) {
	RegisterMetrics()
	s, _ := newSimStamp(t)
	srv := httptest.NewServer(NewDebugServer(s, stamp.DefaultProfile()).Handler())
	defer srv.Close()

	errsBefore := testutil.ToFloat64(sampleErrors.WithLabelValues("0"))
	okBefore := testutil.ToFloat64(samplesTotal.WithLabelValues("0"))

	get := func(path string) string {
		t.Helper()
		res, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		defer res.Body.Close()
		var buf bytes.Buffer
		buf.ReadFrom(res.Body)
		return buf.String()
	}

	get("/api/sample?pair=0")
	if got := testutil.ToFloat64(sampleErrors.WithLabelValues("0")) - errsBefore; got != 1 {
		t.Errorf("sample errors grew by %v, want 1", got)
	}
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	get("/api/sample?pair=0")
	if got := testutil.ToFloat64(samplesTotal.WithLabelValues("0")) - okBefore; got != 1 {
		t.Errorf("samples grew by %v, want 1", got)
	}

	body := get("/metrics")
	for _, name := range []string{"imustamp_samples_total", "imustamp_sample_errors_total", "imustamp_sample_duration_seconds"} {
		if !strings.Contains(body, name) {
			t.Errorf("/metrics lacks %s", name)
		}
	}
}

func TestDebugServerRegisterMapsCoverDrivers(t *testing.T) {
	s, _ := newSimStamp(t)
	d := NewDebugServer(s, stamp.DefaultProfile())
	want := map[string][]string{
		"gyro0":  {"FS_SEL", "FCHOICE_B", "DLPF_CFG", "SMPLRT_DIV", "G_AVGCFG", "GYRO_CYCLE", "DEVICE_RESET", "SLEEP", "CLKSEL"},
		"accel0": {"STATE", "I2C_WDT", "IDR", "RESET", "RANGE", "LPF_EN", "LPF_BW", "DEC_MODE_RATE"},
		"mag0":   {"Meas_m_done", "Meas_t_done", "Do_Set", "Do_Reset", "Sw_reset"},
	}
	for dev, fields := range want {
		resp := d.Execute(RegisterCmd{Action: "get_map", Device: dev})
		have := map[string]bool{}
		for _, r := range resp.RegisterMap {
			for _, bf := range r.BitFields {
				have[bf.Name] = true
			}
		}
		for _, f := range fields {
			if !have[f] {
				t.Errorf("%s map lacks %s", dev, f)
			}
		}
	}
}

func TestDebugServerHTTP(t *testing.T) {
	s, _ := newSimStamp(t)
	srv := httptest.NewServer(NewDebugServer(s, stamp.DefaultProfile()).Handler())
	defer srv.Close()

	res, err := http.Get(srv.URL + "/api/sample?pair=0")
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusInternalServerError {
		t.Fatalf("sample in standby: status %d", res.StatusCode)
	}

	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	res, err = http.Get(srv.URL + "/api/sample?pair=1")
	if err != nil {
		t.Fatal(err)
	}
	var smp imu.Sample
	err = json.NewDecoder(res.Body).Decode(&smp)
	res.Body.Close()
	if err != nil {
		t.Fatal(err)
	}
	if smp.Pair != 1 {
		t.Fatalf("sample pair = %d", smp.Pair)
	}

	res, err = http.Get(srv.URL + "/api/sample?pair=2")
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("pair=2: status %d", res.StatusCode)
	}

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/registers", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	if err := conn.WriteJSON(RegisterCmd{Action: "read", Device: "gyro0", Addr: "0x75"}); err != nil {
		t.Fatal(err)
	}
	var resp RegisterResponse
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Value != "0xB5" {
		t.Fatalf("websocket read = %+v", resp)
	}
}

func TestFormatSample(t *testing.T) {
	line := FormatSample(imu.Sample{Pair: 1, Acceleration: imu.Vec3{Z: 1}, GyroTemp: 25})
	if !strings.HasPrefix(line, "[PAIR1]") || !strings.Contains(line, "az= 1.000") {
		t.Fatalf("FormatSample = %q", line)
	}
}

type recordPanel struct {
	img image.Image
}

func (p *recordPanel) Bounds() image.Rectangle { return image.Rect(0, 0, 128, 64) }

func (p *recordPanel) Draw(r image.Rectangle, src image.Image, sp image.Point) error {
	p.img = src
	return nil
}

func litPixels(img image.Image) int {
	n := 0
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if r, _, _, _ := img.At(x, y).RGBA(); r != 0 {
				n++
			}
		}
	}
	return n
}

func TestRenderSample(t *testing.T) {
	p := &recordPanel{}
	if err := show(p, RenderSample(0, imu.Sample{}, false)); err != nil {
		t.Fatal(err)
	}
	waiting := litPixels(p.img)
	if waiting == 0 {
		t.Fatal("waiting screen is blank")
	}
	if err := show(p, RenderSample(0, imu.Sample{Rotation: imu.Vec3{X: 12}, Acceleration: imu.Vec3{Z: 1}}, true)); err != nil {
		t.Fatal(err)
	}
	if litPixels(p.img) <= waiting {
		t.Error("sample screen draws less than the waiting screen")
	}
}

func TestRemapBus(t *testing.T) {
	bus := i2csim.New()
	chip := bus.Attach(0x3D, &i2csim.Chip{})
	rb := remapBus{Bus: bus, to: 0x3D}
	if err := rb.Tx(ssd1306Addr, []byte{0x00, 0xAE}, nil); err != nil {
		t.Fatal(err)
	}
	if chip.Get(0x00) != 0xAE {
		t.Fatal("write did not reach the remapped address")
	}
	if err := rb.Tx(0x68, []byte{0x75}, make([]byte, 1)); err == nil {
		t.Fatal("other addresses must pass through unchanged")
	}
}

func TestPairCache(t *testing.T) {
	c := &PairCache{}
	get := func(query string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		c.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/latest"+query, nil))
		return rec
	}

	if rec := get("?pair=1"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("empty cache: status %d", rec.Code)
	}
	c.Store(imu.Sample{Pair: 1, GyroTemp: 31.5})
	c.Store(imu.Sample{Pair: 5})

	rec := get("?pair=1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var s imu.Sample
	if err := json.NewDecoder(rec.Body).Decode(&s); err != nil {
		t.Fatal(err)
	}
	if s.Pair != 1 || s.GyroTemp != 31.5 {
		t.Fatalf("sample = %+v", s)
	}
	if rec := get(""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("pair 0 without data: status %d", rec.Code)
	}
	if rec := get("?pair=x"); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad pair: status %d", rec.Code)
	}
}
