package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markus-lassfolk/acsd/pkg/acs"
	"github.com/markus-lassfolk/acsd/pkg/uci"
)

type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error                   { return t.err }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic   string
	qos     byte
	retain  bool
	payload []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (f *fakePublisher) Publish(topic string, qos byte, retained bool, payload interface{}) MQTT.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, published{topic: topic, qos: qos, retain: retained, payload: payload.([]byte)})
	return doneToken{err: f.err}
}

func (f *fakePublisher) Messages() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.msgs...)
}

func enabledClient(pub publisher) *Client {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.TopicPrefix = "home/ap"
	c := NewClient(cfg, nil)
	c.pub = pub
	return c
}

func TestOutcomeTopic(t *testing.T) {
	assert.Equal(t, "acsd/acs/radio0/outcome", OutcomeTopic("acsd", "radio0"))
	assert.Equal(t, "home/ap/acs/radio1/outcome", OutcomeTopic("home/ap/", "radio1"))
}

func TestConfigFrom(t *testing.T) {
	cfg := &uci.Config{
		MQTTEnabled:     true,
		MQTTBroker:      "broker.lan",
		MQTTPort:        8883,
		MQTTClientID:    "ap1",
		MQTTTopicPrefix: "site",
	}
	c := ConfigFrom(cfg)
	assert.True(t, c.Enabled)
	assert.Equal(t, "broker.lan", c.Broker)
	assert.Equal(t, 8883, c.Port)
	assert.Equal(t, "ap1", c.ClientID)
	assert.Equal(t, "site", c.TopicPrefix)
	assert.True(t, c.Retain)
}

func TestSelectionFinishedPublishes(t *testing.T) {
	pub := &fakePublisher{}
	c := enabledClient(pub)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)

	c.SelectionFinished(ctx, acs.Outcome{
		Interface:  "radio1",
		Cycle:      3,
		Channel:    36,
		Freq:       5180,
		CenterSeg0: 42,
		Bandwidth:  80,
		Reason:     "ok",
	})
	c.Disconnect()

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "home/ap/acs/radio1/outcome", msgs[0].topic)
	assert.Equal(t, byte(1), msgs[0].qos)
	assert.True(t, msgs[0].retain)

	var payload struct {
		Timestamp time.Time `json:"timestamp"`
		Outcome   struct {
			Interface  string `json:"interface"`
			Channel    int    `json:"channel"`
			CenterSeg0 int    `json:"center_seg0_idx"`
			Bandwidth  int    `json:"bandwidth_mhz"`
			Reason     string `json:"reason"`
		} `json:"outcome"`
	}
	require.NoError(t, json.Unmarshal(msgs[0].payload, &payload))
	assert.False(t, payload.Timestamp.IsZero())
	assert.Equal(t, "radio1", payload.Outcome.Interface)
	assert.Equal(t, 36, payload.Outcome.Channel)
	assert.Equal(t, 42, payload.Outcome.CenterSeg0)
	assert.Equal(t, 80, payload.Outcome.Bandwidth)
	assert.Equal(t, "ok", payload.Outcome.Reason)
	assert.False(t, c.GetLastPublish().IsZero())
}

func TestSelectionFinishedFailureOutcome(t *testing.T) {
	pub := &fakePublisher{}
	c := enabledClient(pub)
	c.Start(context.Background())

	c.SelectionFinished(context.Background(), acs.Outcome{
		Interface: "radio0",
		Reason:    "scan_fetch",
		Error:     "survey dump failed",
		Err:       acs.ErrScanFetch,
	})
	c.Disconnect()

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, string(msgs[0].payload), `"reason":"scan_fetch"`)
	assert.Contains(t, string(msgs[0].payload), `"error":"survey dump failed"`)
}

func TestSelectionFinishedDisabled(t *testing.T) {
	pub := &fakePublisher{}
	c := NewClient(DefaultConfig(), nil)
	c.pub = pub

	c.SelectionFinished(context.Background(), acs.Outcome{Interface: "radio0"})
	c.Disconnect()
	assert.Empty(t, pub.Messages())

	var nilClient *Client
	nilClient.SelectionFinished(context.Background(), acs.Outcome{Interface: "radio0"})
}

func TestQueueFullDrops(t *testing.T) {
	c := enabledClient(&fakePublisher{})
	for i := 0; i < queueSize+3; i++ {
		c.SelectionFinished(context.Background(), acs.Outcome{Interface: "radio0"})
	}
	assert.Equal(t, 3, c.Dropped())
}

func TestPublishError(t *testing.T) {
	c := enabledClient(&fakePublisher{err: errors.New("not authorized")})
	err := c.publish(message{topic: "x", payload: []byte("{}")})
	assert.ErrorContains(t, err, "not authorized")

	c.pub = nil
	assert.Error(t, c.publish(message{topic: "x"}))
}
