package reading

import (
	"encoding/json"
	"fmt"
	"time"
)

// Payload is the wire form of a Reading. Value is null for readings that
// are not Active.
type Payload struct {
	Measurement string            `json:"measurement"`
	Source      string            `json:"source"`
	Value       *float64          `json:"value"`
	AsOf        time.Time         `json:"asOf"`
	Override    bool              `json:"override,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

func (r Reading) Payload() Payload {
	p := Payload{
		Measurement: r.Measurement(),
		Source:      r.Source,
		AsOf:        r.AsOf,
		Override:    r.Override,
		Metadata:    r.Metadata(),
	}
	if r.Active() {
		v := r.Value
		p.Value = &v
	}
	return p
}

func (r Reading) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Payload())
}

func ParseKind(measurement string) (Kind, error) {
	for _, k := range []Kind{KindTemperature, KindFanRpm, KindDutyCycle} {
		if k.Measurement() == measurement {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown measurement %q", measurement)
}
