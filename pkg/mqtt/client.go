// Package mqtt publishes selection outcomes to an MQTT broker.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"

	"github.com/markus-lassfolk/acsd/pkg/acs"
	"github.com/markus-lassfolk/acsd/pkg/logx"
	"github.com/markus-lassfolk/acsd/pkg/uci"
)

const (
	queueSize      = 32
	publishTimeout = 5 * time.Second
)

// Config holds MQTT configuration
type Config struct {
	Broker      string `json:"broker"`
	Port        int    `json:"port"`
	ClientID    string `json:"client_id"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	TopicPrefix string `json:"topic_prefix"`
	QoS         int    `json:"qos"`
	Retain      bool   `json:"retain"`
	Enabled     bool   `json:"enabled"`
}

// DefaultConfig returns default MQTT configuration
func DefaultConfig() *Config {
	return &Config{
		Broker:      "localhost",
		Port:        uci.DefaultMQTTPort,
		ClientID:    uci.DefaultMQTTClientID,
		TopicPrefix: uci.DefaultMQTTTopicPrefix,
		QoS:         1,
		Retain:      true,
		Enabled:     false,
	}
}

// ConfigFrom derives the MQTT settings from the daemon config
func ConfigFrom(cfg *uci.Config) *Config {
	c := DefaultConfig()
	c.Enabled = cfg.MQTTEnabled
	c.Broker = cfg.MQTTBroker
	c.Port = cfg.MQTTPort
	c.ClientID = cfg.MQTTClientID
	c.TopicPrefix = cfg.MQTTTopicPrefix
	return c
}

// publisher is the part of the paho client used for publishing
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) MQTT.Token
}

type message struct {
	topic   string
	payload []byte
}

// Client publishes every selection outcome to <prefix>/acs/<radio>/outcome.
// It implements acs.Observer; publishing happens on a worker goroutine so
// observers never block a selection cycle.
type Client struct {
	client MQTT.Client
	pub    publisher
	logger *logx.Logger
	config *Config

	queue chan message
	wg    sync.WaitGroup

	mu          sync.Mutex
	closed      bool
	connected   bool
	lastPublish time.Time
	dropped     int
}

// NewClient creates a disconnected client
func NewClient(config *Config, logger *logx.Logger) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	return &Client{
		logger: logger,
		config: config,
		queue:  make(chan message, queueSize),
	}
}

// Connect establishes the broker connection; paho reconnects on its own afterwards
func (c *Client) Connect() error {
	if !c.config.Enabled {
		c.logger.Debug("MQTT client disabled")
		return nil
	}

	opts := MQTT.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", c.config.Broker, c.config.Port))
	opts.SetClientID(c.config.ClientID)

	if c.config.Username != "" {
		opts.SetUsername(c.config.Username)
		opts.SetPassword(c.config.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(1 * time.Minute)

	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)

	c.client = MQTT.NewClient(opts)
	c.pub = c.client

	token := c.client.Connect()
	if !token.WaitTimeout(publishTimeout) {
		c.logger.Warn("MQTT broker not reachable yet, retrying in background",
			"broker", c.config.Broker,
			"port", c.config.Port)
		return nil
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}

	c.logger.Info("MQTT client connected", "broker", c.config.Broker, "port", c.config.Port)
	return nil
}

// Start runs the publish worker until ctx is cancelled or Disconnect is called
func (c *Client) Start(ctx context.Context) {
	if !c.config.Enabled {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-c.queue:
				if !ok {
					return
				}
				if err := c.publish(msg); err != nil {
					c.logger.Warn("Failed to publish outcome", "topic", msg.topic, "error", err)
				}
			}
		}
	}()
}

// Disconnect stops the worker after draining queued outcomes and closes the connection
func (c *Client) Disconnect() {
	if !c.config.Enabled {
		return
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.queue)
	c.mu.Unlock()
	c.wg.Wait()

	if c.client != nil {
		c.client.Disconnect(250)
		c.setConnected(false)
		c.logger.Info("MQTT client disconnected")
	}
}

func (c *Client) onConnect(MQTT.Client) {
	c.setConnected(true)
	c.logger.Info("MQTT connection established")
}

func (c *Client) onConnectionLost(_ MQTT.Client, err error) {
	c.setConnected(false)
	c.logger.Error("MQTT connection lost", "error", err)
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

// IsConnected returns whether the broker connection is up
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// OutcomeTopic returns the topic outcomes of radio are published to
func OutcomeTopic(prefix, radio string) string {
	return fmt.Sprintf("%s/acs/%s/outcome", strings.TrimSuffix(prefix, "/"), radio)
}

type outcomePayload struct {
	Timestamp time.Time   `json:"timestamp"`
	Outcome   acs.Outcome `json:"outcome"`
}

// SelectionFinished implements acs.Observer
func (c *Client) SelectionFinished(_ context.Context, o acs.Outcome) {
	if c == nil || !c.config.Enabled {
		return
	}

	data, err := json.Marshal(outcomePayload{Timestamp: time.Now().UTC(), Outcome: o})
	if err != nil {
		c.logger.Error("Failed to marshal outcome", "radio", o.Interface, "error", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.queue <- message{topic: OutcomeTopic(c.config.TopicPrefix, o.Interface), payload: data}:
	default:
		c.dropped++
		c.logger.Warn("Message queue full, dropping outcome", "radio", o.Interface)
	}
}

func (c *Client) publish(msg message) error {
	if c.pub == nil {
		return fmt.Errorf("not connected to MQTT broker")
	}

	token := c.pub.Publish(msg.topic, byte(c.config.QoS), c.config.Retain, msg.payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s timed out", msg.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", msg.topic, err)
	}

	c.mu.Lock()
	c.lastPublish = time.Now()
	c.mu.Unlock()

	c.logger.Debug("MQTT message published", "topic", msg.topic, "size", len(msg.payload))
	return nil
}

// GetLastPublish returns the timestamp of the last publish
func (c *Client) GetLastPublish() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastPublish
}

// Dropped returns how many outcomes were dropped because the queue was full
func (c *Client) Dropped() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}
