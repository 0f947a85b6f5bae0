package pwm

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// fakeChip lays out a pwmchip directory with channel 0 already exported.
func fakeChip(t *testing.T) (root string) {
	t.Helper()
	root = t.TempDir()
	dir := filepath.Join(root, "pwmchip0", "pwm0")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, f := range []string{"period", "duty_cycle", "enable"} {
		if err := os.WriteFile(filepath.Join(dir, f), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func read(t *testing.T, root, name string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(root, "pwmchip0", "pwm0", name))
	if err != nil {
		t.Fatal(err)
	}
	return strings.TrimSpace(string(b))
}

func TestDutyCyclePercent(t *testing.T) {
	root := fakeChip(t)
	p := NewPinAt(root, 0, 0)

	if err := p.Export(); err != nil {
		t.Fatal(err)
	}
	if err := p.SetPeriod(40000); err != nil {
		t.Fatal(err)
	}
	if err := p.SetDutyCyclePercent(37.5); err != nil {
		t.Fatal(err)
	}
	if got := read(t, root, "duty_cycle"); got != "15000" {
		t.Errorf("duty_cycle: got %s, want 15000", got)
	}

	pct, err := p.GetDutyCyclePercent()
	if err != nil || pct != 37.5 {
		t.Errorf("GetDutyCyclePercent: %v %v", pct, err)
	}
}

func TestEnable(t *testing.T) {
	root := fakeChip(t)
	p := NewPinAt(root, 0, 0)

	if err := p.Enable(true); err != nil {
		t.Fatal(err)
	}
	if got := read(t, root, "enable"); got != "1" {
		t.Errorf("enable: got %q", got)
	}
	if err := p.Enable(false); err != nil {
		t.Fatal(err)
	}
	if got := read(t, root, "enable"); got != "0" {
		t.Errorf("enable: got %q", got)
	}
}

func TestPercentWithoutPeriod(t *testing.T) {
	p := NewPinAt(fakeChip(t), 0, 0)
	if err := p.SetDutyCyclePercent(50); !errors.Is(err, ErrNoPeriod) {
		t.Errorf("got %v", err)
	}
}

func TestExportWritesChannel(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "pwmchip1"), 0o755); err != nil {
		t.Fatal(err)
	}
	ExportSettle = 0
	p := NewPinAt(root, 1, 2)
	if err := p.Export(); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(filepath.Join(root, "pwmchip1", "export"))
	if err != nil || string(b) != "2" {
		t.Errorf("export file: %q %v", b, err)
	}
}
