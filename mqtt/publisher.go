package mqtt

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"

	"pifanctrl/log"
	"pifanctrl/reading"
)

const DefaultQueueSize = 256

// Publisher forwards store notifications to the broker. Enqueue never
// blocks; readings arriving while the queue is full are dropped.
type Publisher struct {
	broker  Broker
	prefix  string
	queue   chan reading.Reading
	dropped atomic.Uint64
	failed  atomic.Uint64
}

func NewPublisher(broker Broker, prefix string, queueSize int) *Publisher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Publisher{
		broker: broker,
		prefix: strings.Trim(prefix, "/"),
		queue:  make(chan reading.Reading, queueSize),
	}
}

// Enqueue has the store listener signature.
func (p *Publisher) Enqueue(_ string, r reading.Reading) {
	select {
	case p.queue <- r:
	default:
		if n := p.dropped.Add(1); n == 1 || n%100 == 0 {
			log.Warnf("mqtt: publish queue full, %d readings dropped", n)
		}
	}
}

// Dropped returns the readings lost to a full queue and to publish errors.
func (p *Publisher) Dropped() (queueFull, failed uint64) {
	return p.dropped.Load(), p.failed.Load()
}

// Topic returns <prefix>/<source>/<measurement>. Characters MQTT reserves
// for filters are replaced in the source name.
func (p *Publisher) Topic(r reading.Reading) string {
	src := strings.NewReplacer("/", "_", "+", "_", "#", "_").Replace(r.Source)
	t := src + "/" + strings.ToLower(r.Measurement())
	if p.prefix != "" {
		t = p.prefix + "/" + t
	}
	return t
}

// Run publishes queued readings until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) error {
	log.Infof("mqtt: publishing readings under %q", p.prefix)
	for {
		select {
		case <-ctx.Done():
			return nil
		case r := <-p.queue:
			p.publish(r)
		}
	}
}

func (p *Publisher) publish(r reading.Reading) {
	payload, err := json.Marshal(r)
	if err != nil {
		log.Errorf("mqtt: encode %s reading: %v", r.Source, err)
		return
	}
	topic := p.Topic(r)
	if err := p.broker.Publish(topic, payload); err != nil {
		if n := p.failed.Add(1); n == 1 || n%100 == 0 {
			log.Errorf("mqtt: publish %s: %v (%d failures)", topic, err, n)
		}
		return
	}
	log.Debugf("mqtt: published %s", topic)
}
