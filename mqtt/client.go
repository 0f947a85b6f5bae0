// Package mqtt publishes readings to an MQTT broker and accepts remote
// temperature sensors that report through it.
package mqtt

import (
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"pifanctrl/log"
)

const (
	qos          = 1
	tokenTimeout = 10 * time.Second
)

// Broker is the part of a connection the publisher and sensor use.
type Broker interface {
	Publish(topic string, payload []byte) error
	Subscribe(filter string, fn func(topic string, payload []byte)) error
}

type ClientConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
}

// Client manages the broker connection. Subscriptions are restored after a
// reconnect.
type Client struct {
	client paho.Client
	config ClientConfig
}

func NewClient(config ClientConfig) (*Client, error) {
	opts := paho.NewClientOptions()
	opts.AddBroker(config.Broker)
	opts.SetClientID(config.ClientID)
	opts.SetUsername(config.Username)
	opts.SetPassword(config.Password)
	opts.SetOnConnectHandler(func(paho.Client) {
		log.Infof("mqtt: connected to %s", config.Broker)
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		log.Warnf("mqtt: connection lost: %v", err)
	})
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(false)
	opts.SetResumeSubs(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectTimeout(tokenTimeout)

	client := paho.NewClient(opts)
	if err := wait(client.Connect()); err != nil {
		return nil, fmt.Errorf("connect to mqtt broker %s: %w", config.Broker, err)
	}
	return &Client{client: client, config: config}, nil
}

func wait(t paho.Token) error {
	if !t.WaitTimeout(tokenTimeout) {
		return fmt.Errorf("timed out after %v", tokenTimeout)
	}
	return t.Error()
}

func (c *Client) Publish(topic string, payload []byte) error {
	return wait(c.client.Publish(topic, qos, false, payload))
}

func (c *Client) Subscribe(filter string, fn func(topic string, payload []byte)) error {
	return wait(c.client.Subscribe(filter, qos, func(_ paho.Client, msg paho.Message) {
		fn(msg.Topic(), msg.Payload())
	}))
}

func (c *Client) Close() {
	c.client.Disconnect(250)
	log.Infof("mqtt: disconnected from %s", c.config.Broker)
}
