// Package mqtt publishes scale readings to an MQTT broker, with
// optional Home Assistant discovery announcements.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/dstrnad/sencorscale/internal/config"
)

// Publisher forwards weight readings to a broker.
type Publisher struct {
	client    mqtt.Client
	cfg       config.MQTTConfig
	logger    *slog.Logger
	mu        sync.RWMutex
	connected bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

// Reading is the JSON body published for each propagated weight.
type Reading struct {
	Address   string    `json:"address"`
	Name      string    `json:"name,omitempty"`
	WeightG   int       `json:"weight_g"`
	Timestamp time.Time `json:"timestamp"`
}

func NewPublisher(cfg config.MQTTConfig, logger *slog.Logger) (*Publisher, error) {
	p := &Publisher{
		cfg:    cfg,
		logger: logger,
		stopCh: make(chan struct{}),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Broker, cfg.Port))
	// Random suffix so a second instance does not kick the first off the broker.
	opts.SetClientID(fmt.Sprintf("%s-%s", cfg.ClientID, uuid.NewString()[:8]))
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	// Callbacks keep internal state accurate
	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		p.setConnected(true)
		logger.Info("mqtt connected", "broker", cfg.Broker, "port", cfg.Port)
	})

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		p.setConnected(false)
		logger.Warn("mqtt connection lost", "error", err)
	})

	p.client = mqtt.NewClient(opts)
	return p, nil
}

// Connect establishes the broker connection. It waits for the initial
// connection and respects ctx and Disconnect().
func (p *Publisher) Connect(ctx context.Context) error {
	select {
	case <-p.stopCh:
		return fmt.Errorf("publisher stopped")
	default:
	}

	if p.IsConnected() {
		return nil
	}

	// With ConnectRetry(true) the token may keep retrying internally.
	token := p.client.Connect()

	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			// OnConnectHandler sets connected=true.
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stopCh:
			return fmt.Errorf("publisher stopped")
		default:
		}
	}
}

// PublishReading publishes one weight reading to the device topic.
func (p *Publisher) PublishReading(address, name string, weight int) error {
	if !p.IsConnected() {
		return fmt.Errorf("mqtt publisher not connected")
	}

	topic := readingTopic(p.cfg.TopicPrefix, address)

	reading := Reading{
		Address:   address,
		Name:      name,
		WeightG:   weight,
		Timestamp: time.Now(),
	}

	data, err := json.Marshal(reading)
	if err != nil {
		return fmt.Errorf("marshal reading: %w", err)
	}

	token := p.client.Publish(topic, 1, false, data)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish timeout for topic %s", topic)
	}
	if token.Error() != nil {
		p.logger.Error("failed to publish reading", "topic", topic, "error", token.Error())
		return fmt.Errorf("publish reading: %w", token.Error())
	}

	p.logger.Debug("published reading", "topic", topic, "address", address, "weight", weight)
	return nil
}

// PublishDiscovery announces a scale to Home Assistant. The config is
// retained so the entity survives Home Assistant restarts.
func (p *Publisher) PublishDiscovery(address, name string) error {
	if !p.IsConnected() {
		return fmt.Errorf("mqtt publisher not connected")
	}

	topic := discoveryTopic(p.cfg.DiscoveryPrefix, address)

	data, err := json.Marshal(newDiscoveryConfig(p.cfg.TopicPrefix, address, name))
	if err != nil {
		return fmt.Errorf("marshal discovery config: %w", err)
	}

	token := p.client.Publish(topic, 1, true, data) // retained
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish timeout for topic %s", topic)
	}
	if token.Error() != nil {
		p.logger.Error("failed to publish discovery config", "topic", topic, "error", token.Error())
		return fmt.Errorf("publish discovery config: %w", token.Error())
	}

	p.logger.Debug("published discovery config", "topic", topic, "address", address)
	return nil
}

// IsConnected returns whether the publisher is connected.
func (p *Publisher) IsConnected() bool {
	p.mu.RLock()
	connected := p.connected
	p.mu.RUnlock()
	return connected && p.client.IsConnected()
}

// Disconnect stops the publisher and closes the broker connection.
// Idempotent and safe to call multiple times.
func (p *Publisher) Disconnect() {
	p.stopOnce.Do(func() { close(p.stopCh) })

	if p.client != nil {
		// Paho quiesces in-flight work for the given ms.
		p.client.Disconnect(250)
	}

	p.setConnected(false)
	p.logger.Info("mqtt disconnected")
}

func (p *Publisher) setConnected(v bool) {
	p.mu.Lock()
	p.connected = v
	p.mu.Unlock()
}

// discoveryConfig is the Home Assistant MQTT discovery payload for one
// scale's weight sensor.
type discoveryConfig struct {
	Name              string          `json:"name"`
	UniqueID          string          `json:"unique_id"`
	StateTopic        string          `json:"state_topic"`
	ValueTemplate     string          `json:"value_template"`
	UnitOfMeasurement string          `json:"unit_of_measurement"`
	DeviceClass       string          `json:"device_class"`
	StateClass        string          `json:"state_class"`
	Icon              string          `json:"icon"`
	Device            discoveryDevice `json:"device"`
}

type discoveryDevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
}

func newDiscoveryConfig(topicPrefix, address, name string) discoveryConfig {
	id := sanitizeAddress(address)
	if name == "" {
		name = "Kitchen Scale " + id
	}
	return discoveryConfig{
		Name:              name,
		UniqueID:          "sencorscale_" + id,
		StateTopic:        readingTopic(topicPrefix, address),
		ValueTemplate:     "{{ value_json.weight_g }}",
		UnitOfMeasurement: "g",
		DeviceClass:       "weight",
		StateClass:        "measurement",
		Icon:              "mdi:scale",
		Device: discoveryDevice{
			Identifiers:  []string{"sencorscale_" + id},
			Name:         name,
			Manufacturer: "Sencor",
			Model:        "Kitchen Scale",
		},
	}
}

func readingTopic(prefix, address string) string {
	return fmt.Sprintf("%s/%s/weight", prefix, sanitizeAddress(address))
}

func discoveryTopic(prefix, address string) string {
	return fmt.Sprintf("%s/sensor/sencorscale_%s/weight/config", prefix, sanitizeAddress(address))
}

// sanitizeAddress turns a platform address into a topic-safe lowercase
// identifier.
func sanitizeAddress(address string) string {
	s := strings.ToLower(address)
	s = strings.ReplaceAll(s, ":", "")
	s = strings.ReplaceAll(s, "-", "")
	return s
}
