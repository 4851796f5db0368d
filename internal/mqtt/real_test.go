package mqtt

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	paho "github.com/eclipse/paho.mqtt.golang"
)

// doneToken is a paho.Token that has already completed.
type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error                   { return t.err }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type sentMsg struct {
	topic    string
	retained bool
	payload  []byte
}

// recordingClient captures what replay publishes.
type recordingClient struct {
	mu   sync.Mutex
	sent []sentMsg
}

func (c *recordingClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, sentMsg{topic: topic, retained: retained, payload: payload.([]byte)})
	return doneToken{}
}

func newTestRealPublisher(capacity int) *RealPublisher {
	return &RealPublisher{pending: newOutbox(capacity)}
}

func TestReplayFirstConnectDiscardsHeld(t *testing.T) {
	p := newTestRealPublisher(4)
	p.hold(pendingMsg{topic: Topic, payload: []byte(`{"n":1}`), qos: 1})

	c := &recordingClient{}
	p.replay(c)

	if len(c.sent) != 0 {
		t.Errorf("first connect should publish nothing, got %d messages", len(c.sent))
	}
	if n := p.pending.len(); n != 0 {
		t.Errorf("outbox should be empty after first connect, has %d", n)
	}
	if !p.connected {
		t.Error("expected connected after first connect")
	}
}

func TestReplayReconnectSendsHeldThenReconnected(t *testing.T) {
	p := newTestRealPublisher(4)
	p.replay(&recordingClient{}) // first connect

	p.hold(pendingMsg{topic: Topic, payload: []byte(`{"n":1}`), qos: 1})
	p.hold(pendingMsg{topic: TopicSystem, payload: []byte(`{"n":2}`), qos: 1, retained: true})

	c := &recordingClient{}
	p.replay(c)

	if len(c.sent) != 3 {
		t.Fatalf("expected 2 replayed + RECONNECTED, got %d messages", len(c.sent))
	}
	if c.sent[0].topic != Topic || string(c.sent[0].payload) != `{"n":1}` {
		t.Errorf("first replayed: got %s %s", c.sent[0].topic, c.sent[0].payload)
	}
	if c.sent[1].topic != TopicSystem || !c.sent[1].retained || string(c.sent[1].payload) != `{"n":2}` {
		t.Errorf("second replayed: got %+v", c.sent[1])
	}

	last := c.sent[2]
	if last.topic != TopicSystem || last.retained {
		t.Errorf("RECONNECTED: got topic %s retained %v", last.topic, last.retained)
	}
	var sp SystemPayload
	if err := json.Unmarshal(last.payload, &sp); err != nil {
		t.Fatalf("unmarshal RECONNECTED: %v", err)
	}
	if sp.System.Event != "RECONNECTED" {
		t.Errorf("event: got %q, want RECONNECTED", sp.System.Event)
	}
	if n := p.pending.len(); n != 0 {
		t.Errorf("outbox should be empty after replay, has %d", n)
	}
}

func TestReplayReconnectAfterOverflowKeepsNewest(t *testing.T) {
	p := newTestRealPublisher(2)
	p.replay(&recordingClient{})

	for _, body := range []string{"a", "b", "c"} {
		p.hold(pendingMsg{topic: Topic, payload: []byte(body), qos: 1})
	}

	c := &recordingClient{}
	p.replay(c)

	if len(c.sent) != 3 {
		t.Fatalf("expected 2 replayed + RECONNECTED, got %d", len(c.sent))
	}
	if string(c.sent[0].payload) != "b" || string(c.sent[1].payload) != "c" {
		t.Errorf("replayed: got %s, %s; want b, c", c.sent[0].payload, c.sent[1].payload)
	}
}

func TestConnectPolicyZeroWaitTriesOnce(t *testing.T) {
	for _, wait := range []time.Duration{0, -time.Second} {
		if d := connectPolicy(wait).NextBackOff(); d != backoff.Stop {
			t.Errorf("connectPolicy(%v): first NextBackOff got %v, want Stop", wait, d)
		}
	}
}

func TestConnectPolicyPositiveWaitRetries(t *testing.T) {
	bo := connectPolicy(30 * time.Second)
	if d := bo.NextBackOff(); d == backoff.Stop {
		t.Error("connectPolicy(30s): expected a retry interval, got Stop")
	}
	eb, ok := bo.(*backoff.ExponentialBackOff)
	if !ok {
		t.Fatalf("expected *ExponentialBackOff, got %T", bo)
	}
	if eb.MaxElapsedTime != 30*time.Second {
		t.Errorf("MaxElapsedTime: got %v, want 30s", eb.MaxElapsedTime)
	}
}
