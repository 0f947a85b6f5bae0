package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"pifanctrl/log"
	"pifanctrl/reading"
)

const SourcePrefix = "mqtt-"

type sample struct {
	value float64
	at    time.Time
}

// Sensor is a temperature sensor fed by remote devices publishing to topics
// like sensor/<device>/temperature. Each device becomes its own reading
// source; devices that stopped reporting for MaxAge are left out.
type Sensor struct {
	Filter string
	MaxAge time.Duration

	mu     sync.Mutex
	latest map[string]sample
	now    func() time.Time
}

func NewSensor(filter string, maxAge time.Duration) *Sensor {
	return &Sensor{Filter: filter, MaxAge: maxAge, latest: make(map[string]sample), now: time.Now}
}

func (s *Sensor) Name() string {
	return "MQTT"
}

func (s *Sensor) Subscribe(b Broker) error {
	if err := b.Subscribe(s.Filter, s.handle); err != nil {
		return fmt.Errorf("subscribe %s: %w", s.Filter, err)
	}
	log.Infof("mqtt: listening for temperatures on %s", s.Filter)
	return nil
}

// extractDeviceID returns the second topic level:
// "sensor/attic-01/temperature" -> "attic-01".
func extractDeviceID(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) >= 2 {
		return parts[1]
	}
	return ""
}

// parsePayload accepts {"value": 21.5, "timestamp": "<RFC3339>"} or a bare
// number. A missing or unparsable timestamp means now.
func parsePayload(payload []byte, now time.Time) (sample, error) {
	var msg struct {
		Value     *float64 `json:"value"`
		Timestamp string   `json:"timestamp"`
	}
	if err := json.Unmarshal(payload, &msg); err == nil && msg.Value != nil {
		at, err := time.Parse(time.RFC3339, msg.Timestamp)
		if err != nil {
			at = now
		}
		return sample{value: *msg.Value, at: at}, nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(payload)), 64)
	if err != nil {
		return sample{}, fmt.Errorf("payload %q is not a temperature", payload)
	}
	return sample{value: v, at: now}, nil
}

func (s *Sensor) handle(topic string, payload []byte) {
	device := extractDeviceID(topic)
	if device == "" {
		log.Warnf("mqtt: no device id in topic %s", topic)
		return
	}
	smp, err := parsePayload(payload, s.now())
	if err != nil {
		log.Warnf("mqtt: %s: %v", topic, err)
		return
	}
	s.mu.Lock()
	if prev, ok := s.latest[device]; !ok || !smp.at.Before(prev.at) {
		s.latest[device] = smp
	}
	s.mu.Unlock()
	log.Debugf("mqtt: %s reports %.2f", device, smp.value)
}

func (s *Sensor) ReadNextValues(context.Context) []reading.Reading {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	devices := make([]string, 0, len(s.latest))
	for d := range s.latest {
		devices = append(devices, d)
	}
	sort.Strings(devices)

	var out []reading.Reading
	for _, d := range devices {
		smp := s.latest[d]
		if s.MaxAge > 0 && now.Sub(smp.at) > s.MaxAge {
			continue
		}
		out = append(out, reading.NewTemperature(SourcePrefix+d, smp.value, false).At(smp.at.UTC()))
	}
	return out
}
