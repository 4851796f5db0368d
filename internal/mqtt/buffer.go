package mqtt

// pendingMsg is a serialized message held for replay after reconnection.
type pendingMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outbox is a fixed-capacity FIFO of messages published while the broker was
// unreachable. When full, the oldest message is dropped.
// Not safe for concurrent use; the caller must synchronize.
type outbox struct {
	msgs    []pendingMsg
	start   int // index of the oldest message
	n       int
	dropped int // messages lost to overflow since last drain
}

func newOutbox(capacity int) *outbox {
	return &outbox{msgs: make([]pendingMsg, capacity)}
}

// push appends a message, evicting the oldest when full.
// Reports whether a message was evicted.
func (o *outbox) push(m pendingMsg) bool {
	capacity := len(o.msgs)
	if o.n < capacity {
		o.msgs[(o.start+o.n)%capacity] = m
		o.n++
		return false
	}
	o.msgs[o.start] = m
	o.start = (o.start + 1) % capacity
	o.dropped++
	return true
}

// drain returns queued messages oldest first, plus the number dropped,
// and empties the outbox.
func (o *outbox) drain() ([]pendingMsg, int) {
	dropped := o.dropped
	if o.n == 0 {
		o.dropped = 0
		return nil, dropped
	}

	out := make([]pendingMsg, o.n)
	for i := range out {
		out[i] = o.msgs[(o.start+i)%len(o.msgs)]
	}

	o.start, o.n, o.dropped = 0, 0, 0
	return out, dropped
}

func (o *outbox) len() int {
	return o.n
}
