// Package publish streams filter snapshots to an MQTT broker as JSON.
package publish

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"omega-ahrs/internal/ahrs"
)

// Client is the subset of mqtt.Client the publisher uses.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

type Config struct {
	Broker   string
	ClientID string
	Topic    string
	QoS      byte
	Retained bool
	// Interval is the minimum spacing between messages; zero publishes every
	// snapshot.
	Interval time.Duration
	// Timeout bounds connect and per-message waits.
	Timeout time.Duration
}

// Message is the JSON document published per snapshot.
type Message struct {
	Step       uint64     `json:"step"`
	Quaternion [4]float64 `json:"quaternion"` // w, x, y, z
	YawDeg     float64    `json:"yaw_deg"`
	PitchDeg   float64    `json:"pitch_deg"`
	RollDeg    float64    `json:"roll_deg"`
	HeadingDeg float64    `json:"heading_deg"`
	GyroBias   [3]float64 `json:"gyro_bias"`
	GLoad      float64    `json:"g_load"`
	State      string     `json:"state"`
	Error      float64    `json:"e"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// NewMessage converts a snapshot into its JSON form.
func NewMessage(s ahrs.Snapshot) Message {
	e := s.Euler.Degrees()
	return Message{
		Step:       s.Step,
		Quaternion: [4]float64{s.Attitude.W, s.Attitude.V[0], s.Attitude.V[1], s.Attitude.V[2]},
		YawDeg:     e.Yaw,
		PitchDeg:   e.Pitch,
		RollDeg:    e.Roll,
		HeadingDeg: s.HeadingDeg,
		GyroBias:   s.BiasEstimate(),
		GLoad:      s.GLoad,
		State:      s.State.String(),
		Error:      s.ErrorMetric,
		UpdatedAt:  s.UpdatedAt,
	}
}

type Publisher struct {
	client Client
	cfg    Config
	now    func() time.Time

	mu     sync.Mutex
	last   time.Time
	sent   uint64
	failed uint64
}

// Connect dials the broker and returns a publisher bound to it.
func Connect(cfg Config) (*Publisher, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetConnectTimeout(cfg.Timeout).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.Timeout) {
		return nil, fmt.Errorf("mqtt connect %s: timed out after %s", cfg.Broker, cfg.Timeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, err)
	}
	return New(client, cfg), nil
}

// New wraps an already connected client.
func New(client Client, cfg Config) *Publisher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Publisher{client: client, cfg: cfg, now: time.Now}
}

// PublishSnapshot publishes s unless the previous message is more recent than
// Interval. Failures are logged and counted.
func (p *Publisher) PublishSnapshot(s ahrs.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if !p.last.IsZero() && now.Sub(p.last) < p.cfg.Interval {
		return
	}
	p.last = now

	if err := p.publish(s); err != nil {
		p.failed++
		if p.failed == 1 || p.failed%100 == 0 {
			log.WithError(err).WithFields(log.Fields{"topic": p.cfg.Topic, "failed": p.failed}).Warn("mqtt publish failed")
		}
		return
	}
	p.sent++
}

func (p *Publisher) publish(s ahrs.Snapshot) error {
	payload, err := json.Marshal(NewMessage(s))
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}
	token := p.client.Publish(p.cfg.Topic, p.cfg.QoS, p.cfg.Retained, payload)
	if !token.WaitTimeout(p.cfg.Timeout) {
		return fmt.Errorf("timed out after %s", p.cfg.Timeout)
	}
	return token.Error()
}

// Stats returns the number of published and failed messages.
func (p *Publisher) Stats() (sent, failed uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sent, p.failed
}

// Close disconnects, allowing 250ms for in-flight messages.
func (p *Publisher) Close() {
	p.client.Disconnect(250)
}
