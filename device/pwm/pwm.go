// Package pwm drives a sysfs PWM channel (/sys/class/pwm/pwmchipN/pwmM).
package pwm

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"sync"
	"syscall"
	"time"
)

const SysfsRoot = "/sys/class/pwm"

// ExportSettle is how long udev gets to set up the channel files after an
// export.
var ExportSettle = 200 * time.Millisecond

var ErrNoPeriod = errors.New("pwm period not set")

type PWMPin struct {
	mu       sync.Mutex
	chipPath string
	channel  string
	enabled  bool
}

func NewPin(pwmChipID int, channel int) *PWMPin {
	return NewPinAt(SysfsRoot, pwmChipID, channel)
}

// NewPinAt is NewPin below a different sysfs root.
func NewPinAt(root string, pwmChipID int, channel int) *PWMPin {
	return &PWMPin{
		chipPath: root + "/pwmchip" + strconv.Itoa(pwmChipID),
		channel:  strconv.Itoa(channel),
	}
}

func (p *PWMPin) String() string {
	return p.pinDir()
}

// Export makes the channel available. An already exported channel is not an
// error.
func (p *PWMPin) Export() error {
	if _, err := os.Stat(p.pinDir()); err == nil {
		return nil
	}
	err := os.WriteFile(p.chipPath+"/export", []byte(p.channel), 0644)
	if err != nil {
		e, ok := err.(*os.PathError)
		if !ok || e.Err != syscall.EBUSY {
			return err
		}
	}

	time.Sleep(ExportSettle)

	return nil
}

func (p *PWMPin) Unexport() error {
	return os.WriteFile(p.chipPath+"/unexport", []byte(p.channel), 0644)
}

func (p *PWMPin) pinDir() string {
	return p.chipPath + "/pwm" + p.channel
}

func (p *PWMPin) Enable(enable bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.enabled == enable {
		return nil
	}
	v := "0"
	if enable {
		v = "1"
	}
	if err := os.WriteFile(p.pinDir()+"/enable", []byte(v), 0644); err != nil {
		return err
	}
	p.enabled = enable
	return nil
}

func (p *PWMPin) readUint(name string) (uint32, error) {
	buf, err := os.ReadFile(p.pinDir() + "/" + name)
	if err != nil {
		return 0, err
	}
	v := bytes.TrimSpace(buf)
	if len(v) == 0 {
		return 0, nil
	}
	val, err := strconv.ParseUint(string(v), 10, 32)
	return uint32(val), err
}

func (p *PWMPin) GetPeriod() (uint32, error) {
	return p.readUint("period")
}

// SetPeriod sets the period in nanoseconds.
func (p *PWMPin) SetPeriod(period uint32) error {
	return os.WriteFile(p.pinDir()+"/period", []byte(fmt.Sprintf("%v", period)), 0644)
}

func (p *PWMPin) GetDutyCycle() (uint32, error) {
	return p.readUint("duty_cycle")
}

func (p *PWMPin) SetDutyCycle(duty uint32) error {
	return os.WriteFile(p.pinDir()+"/duty_cycle", []byte(fmt.Sprintf("%v", duty)), 0644)
}

// SetDutyCyclePercent writes period*percent/100, rounded to the nearest
// nanosecond.
func (p *PWMPin) SetDutyCyclePercent(percent float64) error {
	period, err := p.GetPeriod()
	if err != nil {
		return err
	}
	if period == 0 {
		return ErrNoPeriod
	}
	duty := uint32(math.Round(float64(period) * percent / 100))
	return p.SetDutyCycle(duty)
}

func (p *PWMPin) GetDutyCyclePercent() (float64, error) {
	period, err := p.GetPeriod()
	if err != nil {
		return 0, err
	}
	if period == 0 {
		return 0, ErrNoPeriod
	}
	dutyCycle, err := p.GetDutyCycle()
	if err != nil {
		return 0, err
	}

	return float64(dutyCycle) * 100 / float64(period), nil
}
