//go:build !no_mqtt

// Package mqtt republishes refreshed device telemetry to an MQTT broker.
package mqtt

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"meshdash/internal/dashboard"
	"meshdash/internal/device"
)

// StateTag marks display state messages.
const StateTag = "d"

// DefaultTopicPrefix is the root of the state topics.
const DefaultTopicPrefix = "/sensor"

// Config holds MQTT publisher configuration.
type Config struct {
	Broker      string
	Username    string
	Password    string
	TopicPrefix string
	ClientID    string
	// ConnectTimeout bounds the initial connect. Zero means DefaultConnectTimeout.
	ConnectTimeout time.Duration
}

// DefaultConnectTimeout is how long NewPublisher waits for the broker.
const DefaultConnectTimeout = 10 * time.Second

// StateMessage is the payload published for a refreshed device.
type StateMessage struct {
	Instance  string            `json:"instance"`
	Tag       string            `json:"tag"`
	TimeStamp string            `json:"ts"`
	Vcc       int               `json:"vcc"`
	Parent    device.ParentInfo `json:"parent"`
}

// Publisher publishes state_refreshed events as retained state messages.
type Publisher struct {
	client  pahomqtt.Client
	prefix  string
	logger  *slog.Logger
	unsub   func()
	publish func(topic string, payload []byte)
	now     func() time.Time
}

// NewPublisher creates and connects a publisher.
func NewPublisher(cfg Config, logger *slog.Logger) (*Publisher, error) {
	p := newPublisher(cfg.TopicPrefix, logger)

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "meshdash-" + uuid.NewString()[:8]
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(func(c pahomqtt.Client) {
			r := c.OptionsReader()
			p.logger.Info("MQTT connected", "servers", r.Servers())
		}).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			p.logger.Warn("MQTT connection lost", "err", err)
		}).
		SetReconnectingHandler(func(_ pahomqtt.Client, opts *pahomqtt.ClientOptions) {
			p.logger.Info("MQTT reconnecting", "servers", opts.Servers)
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		// Stops the connect retry loop.
		client.Disconnect(0)
		return nil, fmt.Errorf("mqtt connect to %s: timeout after %s", cfg.Broker, timeout)
	}
	if err := token.Error(); err != nil {
		client.Disconnect(0)
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}

	p.client = client
	p.publish = p.publishRetained
	return p, nil
}

func newPublisher(prefix string, logger *slog.Logger) *Publisher {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return &Publisher{
		prefix: strings.TrimRight(prefix, "/"),
		logger: logger.With("component", "mqtt"),
		now:    time.Now,
	}
}

// Start subscribes to dashboard events.
func (p *Publisher) Start(bus *dashboard.EventBus) {
	p.unsub = bus.On(dashboard.EventStateRefreshed, p.handleEvent)
	p.logger.Info("MQTT publisher started", "prefix", p.prefix)
}

// Stop unsubscribes and disconnects.
func (p *Publisher) Stop() {
	if p.unsub != nil {
		p.unsub()
	}
	if p.client != nil {
		p.client.Disconnect(1000)
	}
	p.logger.Info("MQTT publisher stopped")
}

func (p *Publisher) handleEvent(event dashboard.Event) {
	data, ok := event.Data.(dashboard.DeviceData)
	if !ok || data.Device == nil || data.Device.State == nil {
		return
	}
	topic, payload, err := stateMessage(p.prefix, data.Key, *data.Device, p.now())
	if err != nil {
		p.logger.Error("build state message", "id", data.Key, "err", err)
		return
	}
	p.publish(topic, payload)
}

// stateMessage builds the topic and payload for a device whose state was
// just refreshed. The instance reported by the device wins over the
// configured one; the key is the last resort.
func stateMessage(prefix, key string, dev device.Device, ts time.Time) (string, []byte, error) {
	st := dev.State
	if st == nil {
		return "", nil, fmt.Errorf("device %s has no state", key)
	}
	instance := st.Instance
	if instance == "" {
		instance = dev.Defaults.Instance
	}
	if instance == "" {
		instance = key
	}
	msg := StateMessage{
		Instance:  instance,
		Tag:       StateTag,
		TimeStamp: ts.Format(time.RFC3339),
		Vcc:       st.Vcc,
	}
	if st.Parent != nil {
		msg.Parent = *st.Parent
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("%s/%s/%s/state", prefix, instance, StateTag), payload, nil
}

func (p *Publisher) publishRetained(topic string, payload []byte) {
	if !p.client.IsConnectionOpen() {
		p.logger.Warn("MQTT not connected, dropping state", "topic", topic)
		return
	}
	token := p.client.Publish(topic, 1, true, payload)
	go func() {
		if !token.WaitTimeout(5 * time.Second) {
			p.logger.Warn("MQTT publish timeout", "topic", topic)
		} else if err := token.Error(); err != nil {
			p.logger.Warn("MQTT publish error", "topic", topic, "err", err)
		}
	}()
}
