package mqtt

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/pigeon-feeder/internal/feeder"
)

const (
	clientID       = "pigeon-feeder"
	outboxCapacity = 100
	publishTimeout = 5 * time.Second
)

// RealPublisher publishes to an actual MQTT broker.
// Messages published while the connection is down are held in an outbox
// and replayed, oldest first, when paho reconnects.
type RealPublisher struct {
	client paho.Client

	mu        sync.Mutex
	pending   *outbox
	connected bool // set after the first successful connect
}

// NewRealPublisher creates a publisher connected to the given broker.
// The initial connect is retried with exponential backoff for up to
// maxWait; after that paho reconnects on its own.
func NewRealPublisher(broker string, maxWait time.Duration) (*RealPublisher, error) {
	p := &RealPublisher{pending: newOutbox(outboxCapacity)}

	will, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "OFFLINE", Reason: "LWT"})

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(time.Minute).
		SetWill(TopicSystem, string(will), 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("mqtt: connection lost: %v", err)
		})

	p.client = paho.NewClient(opts)

	err := backoff.Retry(func() error {
		token := p.client.Connect()
		if !token.WaitTimeout(10 * time.Second) {
			return errors.New("connection timeout")
		}
		if err := token.Error(); err != nil {
			log.Printf("mqtt: connect to %s: %v", broker, err)
			return err
		}
		return nil
	}, connectPolicy(maxWait))
	if err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return p, nil
}

// connectPolicy retries for up to maxWait. backoff treats a zero
// MaxElapsedTime as unbounded, so a non-positive wait means one attempt.
func connectPolicy(maxWait time.Duration) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 10 * time.Second
	if maxWait <= 0 {
		return backoff.WithMaxRetries(bo, 0)
	}
	bo.MaxElapsedTime = maxWait
	return bo
}

// publishClient is the part of paho.Client used to replay the outbox.
type publishClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

// onConnect runs on paho's goroutine for the first connect and for every
// automatic reconnect.
func (p *RealPublisher) onConnect(c paho.Client) {
	p.replay(c)
}

// replay drains the outbox. On a reconnect the held messages are sent
// oldest first, followed by a RECONNECTED event.
func (p *RealPublisher) replay(c publishClient) {
	p.mu.Lock()
	msgs, dropped := p.pending.drain()
	reconnect := p.connected
	p.connected = true
	p.mu.Unlock()

	if !reconnect {
		if len(msgs) > 0 || dropped > 0 {
			log.Printf("mqtt: first connect, discarding %d held messages (%d dropped)", len(msgs), dropped)
		}
		return
	}
	log.Printf("mqtt: reconnected, replaying %d messages (%d dropped)", len(msgs), dropped)

	for _, m := range msgs {
		token := c.Publish(m.topic, m.qos, m.retained, m.payload)
		if !token.WaitTimeout(publishTimeout) || token.Error() != nil {
			log.Printf("mqtt: replay to %s failed: %v", m.topic, token.Error())
		}
	}

	payload, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"})
	c.Publish(TopicSystem, 1, false, payload)
}

// Publish sends an actuation event to the MQTT broker.
func (p *RealPublisher) Publish(event feeder.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	// QoS 1: every actuation should reach the broker.
	return p.publish(pendingMsg{topic: Topic, payload: payload, qos: 1})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	return p.publish(pendingMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

func (p *RealPublisher) publish(m pendingMsg) error {
	if !p.client.IsConnectionOpen() {
		p.hold(m)
		return nil
	}

	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(publishTimeout) {
		p.hold(m)
		return fmt.Errorf("publish to %s: timeout", m.topic)
	}
	if err := token.Error(); err != nil {
		p.hold(m)
		return fmt.Errorf("publish to %s: %w", m.topic, err)
	}
	return nil
}

func (p *RealPublisher) hold(m pendingMsg) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending.push(m) {
		log.Printf("mqtt: outbox full (%d messages), dropping oldest", outboxCapacity)
	}
}

// IsConnected reports whether the broker connection is currently up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
