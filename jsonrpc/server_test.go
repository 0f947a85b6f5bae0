package jsonrpc

import (
	"context"
	"encoding/json"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"pifanctrl/control"
	"pifanctrl/curve"
	"pifanctrl/reading"
	"pifanctrl/sensor"
	"pifanctrl/service"
	"pifanctrl/status"
	"pifanctrl/store"
)

type nopActuator struct {
	mu   sync.Mutex
	last float64
}

func (a *nopActuator) SetDutyCycle(_ context.Context, pct float64) error {
	a.mu.Lock()
	a.last = pct
	a.mu.Unlock()
	return nil
}

func startServer(t *testing.T, h HandlerFunc, keepAlive bool) *Server {
	t.Helper()
	s, err := NewServer("127.0.0.1:0", h, keepAlive)
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe() }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.Shutdown(ctx); err != nil {
			t.Errorf("shutdown: %v", err)
		}
		if err := <-done; err != nil {
			t.Errorf("serve: %v", err)
		}
	})
	return s
}

type env struct {
	store *store.Store
	sim   *sensor.Simulated
	calc  *curve.Calculator
	act   *nopActuator
}

func newHandler(t *testing.T) (HandlerFunc, *env) {
	st := store.New(50)
	t.Cleanup(st.Close)
	e := &env{
		store: st,
		sim:   sensor.NewSimulated(),
		calc:  curve.NewCalculator(curve.DefaultSettings()),
		act:   &nopActuator{},
	}
	duty := control.NewDutyCycle(e.act)
	svc := service.New(st, e.calc, e.sim, duty, status.NewProvider(st, duty, "S1", "RPM-Pin-26"))
	return NewHandler(svc), e
}

func echo(_ context.Context, req *Request) *Response {
	return Success(req.Command, req)
}

func TestEchoOneShot(t *testing.T) {
	s := startServer(t, echo, false)
	c := NewTCPClient(s.Addr().String())
	defer c.Shutdown()

	for i := 0; i < 3; i++ {
		resp, raw, err := c.Call("ping", "x")
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if resp.Command != "ping" || !strings.Contains(string(raw), `"parameter":"x"`) {
			t.Fatalf("call %d: %+v %s", i, resp, raw)
		}
	}
	if c.RedialCount < 3 {
		t.Fatalf("one-shot server should force a redial per call, got %d", c.RedialCount)
	}
}

func TestNilHandler(t *testing.T) {
	if _, err := NewServer("127.0.0.1:0", nil, false); err == nil {
		t.Fatal("server accepted a nil handler")
	}
}

func TestMalformedRequest(t *testing.T) {
	s := startServer(t, echo, false)
	conn, err := net.Dial("tcp", s.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("{not json\n")); err != nil {
		t.Fatal(err)
	}
	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != StatusError || !strings.Contains(resp.Error, "malformed") {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestCommands(t *testing.T) {
	h, e := newHandler(t)
	s := startServer(t, h, true)
	c := NewTCPClient(s.Addr().String())
	defer c.Shutdown()

	e.store.Add(reading.NewTemperature("S1", 42, false))

	if _, _, err := c.Call(CmdSimulate, "55.5"); err != nil {
		t.Fatal(err)
	}
	if v, ok := e.sim.Value(); !ok || v != 55.5 {
		t.Fatalf("simulated = %v, %v", v, ok)
	}
	if _, _, err := c.Call(CmdSimulate, 500); err == nil {
		t.Fatal("simulate 500 accepted")
	}

	_, raw, err := c.Call(CmdSummary, nil)
	if err != nil {
		t.Fatal(err)
	}
	var info status.SystemInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		t.Fatal(err)
	}
	if info.MeasuredTemperature != 42 || info.MeasuredFanRpm != status.Missing {
		t.Fatalf("summary = %+v", info)
	}

	_, raw, err = c.Call(CmdReadings, service.Filter{Source: "S1"})
	if err != nil {
		t.Fatal(err)
	}
	var rs []reading.Payload
	if err := json.Unmarshal(raw, &rs); err != nil {
		t.Fatal(err)
	}
	if len(rs) != 1 || rs[0].Value == nil || *rs[0].Value != 42 {
		t.Fatalf("readings = %s", raw)
	}

	if _, _, err := c.Call(CmdFanSpeed, 45); err != nil {
		t.Fatal(err)
	}
	_, raw, err = c.Call(CmdSettings, nil)
	if err != nil {
		t.Fatal(err)
	}
	var settings curve.Settings
	if err := json.Unmarshal(raw, &settings); err != nil {
		t.Fatal(err)
	}
	if settings.MinimumSpeed != 45 || settings.PanicSpeed != 45 {
		t.Fatalf("settings = %+v", settings)
	}

	settings.PanicSpeed = 90
	if _, _, err := c.Call(CmdSettings, settings); err != nil {
		t.Fatal(err)
	}
	if e.calc.Settings().PanicSpeed != 90 {
		t.Fatal("settings update not applied")
	}

	if _, _, err := c.Call(CmdOverride, 80); err != nil {
		t.Fatal(err)
	}
	if _, _, err := c.Call(CmdOverride, 180); err == nil {
		t.Fatal("override 180 accepted")
	}
	if _, _, err := c.Call(CmdRelease, nil); err != nil {
		t.Fatal(err)
	}

	if _, _, err := c.Call(CmdReset, nil); err != nil {
		t.Fatal(err)
	}
	if _, ok := e.sim.Value(); ok {
		t.Fatal("reset left the simulation on")
	}
	if e.calc.Settings().PanicSpeed != 100 {
		t.Fatal("reset left modified settings")
	}

	_, raw, err = c.Call(CmdVersion, nil)
	if err != nil || !strings.Contains(string(raw), `"Model":"PiFan"`) {
		t.Fatalf("version = %s, %v", raw, err)
	}

	resp, _, err := c.Call("reboot", nil)
	if err == nil || resp.Status != StatusError {
		t.Fatalf("unknown command = %+v, %v", resp, err)
	}
	if c.RedialCount != 1 {
		t.Fatalf("keepalive connection redialed %d times", c.RedialCount)
	}
}

func TestFloatParam(t *testing.T) {
	cases := map[string]float64{`12.5`: 12.5, `"7"`: 7, `" 3.25 "`: 3.25}
	for in, want := range cases {
		got, err := FloatParam(json.RawMessage(in))
		if err != nil || got != want {
			t.Errorf("FloatParam(%s) = %v, %v", in, got, err)
		}
	}
	for _, in := range []string{``, `"abc"`, `{}`} {
		if _, err := FloatParam(json.RawMessage(in)); err == nil {
			t.Errorf("FloatParam(%q) accepted", in)
		}
	}
}
