package sink

import (
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

// NatsRingConn realizes the RingConn interface over a NATS connection.
// It stands in for the shared-memory event-transport ring: there is no
// Go client for the ring itself, so published records are instead
// deposited as NATS messages under one subject per shard, which gives
// downstream consumers an equivalent publish/subscribe surface.
type NatsRingConn struct {
	url string
	nc  *nats.Conn
}

// NewNatsRingConn constructs an unopened ring connection.
func NewNatsRingConn(url string) *NatsRingConn {
	return &NatsRingConn{url: url}
}

// Open connects to the NATS server addressed by host:port, falling back
// to the configured URL when host is empty (broadcast-discovery stand-in).
func (c *NatsRingConn) Open(systemPath, host string, port int) error {
	url := c.url
	if host != "" {
		url = fmt.Sprintf("nats://%s:%d", host, port)
	}
	nc, err := nats.Connect(url)
	if err != nil {
		return fmt.Errorf("ring_unavailable: connecting to %s: %w", url, err)
	}
	log.Printf("ring: connected to %s (system=%s)", url, systemPath)
	c.nc = nc
	return nil
}

// Attach returns one per-shard attachment. station is carried through as
// the subject suffix so each shard's attachment is independently
// addressable, mirroring one ET attachment per builder thread.
func (c *NatsRingConn) Attach(station int) (RingAttachment, error) {
	if c.nc == nil {
		return nil, fmt.Errorf("ring_unavailable: not open")
	}
	subject := fmt.Sprintf("e2sar.framebuilder.shard.%d", station)
	return newNatsAttachment(c.nc, subject, 16, 1024*1024), nil
}

// Close drains and closes the underlying NATS connection.
func (c *NatsRingConn) Close() error {
	if c.nc != nil {
		c.nc.Drain()
	}
	return nil
}

// natsAttachment implements RingAttachment. depth bounds the number of
// events allowed in flight at once, standing in for the ring's fixed
// pre-allocated event count; tokens is a buffered channel realizing that
// bound so EventsNew's timeout has real blocking semantics instead of
// being a no-op.
type natsAttachment struct {
	nc      *nats.Conn
	subject string
	tokens  chan struct{}
	maxSize int
}

func newNatsAttachment(nc *nats.Conn, subject string, depth, maxSize int) *natsAttachment {
	tokens := make(chan struct{}, depth)
	for i := 0; i < depth; i++ {
		tokens <- struct{}{}
	}
	return &natsAttachment{nc: nc, subject: subject, tokens: tokens, maxSize: maxSize}
}

// EventsNew blocks for up to timeout waiting for a free token (the
// ring's "pre-allocated event"), then hands back a buffer of the
// requested size.
func (a *natsAttachment) EventsNew(timeout time.Duration, size int) (RingEvent, error) {
	select {
	case <-a.tokens:
		return &natsEvent{attachment: a, buf: make([]byte, 0, size), capacity: size}, nil
	case <-time.After(timeout):
		return nil, ErrRingRequestTimeout
	}
}

// EventsPut publishes the event's current contents to the shard subject
// and releases its token back to the pool.
func (a *natsAttachment) EventsPut(ev RingEvent) error {
	e := ev.(*natsEvent)
	defer a.release()
	if err := a.nc.Publish(a.subject, e.buf); err != nil {
		return fmt.Errorf("%w: %v", ErrFileIO, err)
	}
	return nil
}

// EventsDump discards an event without publishing, releasing its token.
func (a *natsAttachment) EventsDump(ev RingEvent) error {
	a.release()
	return nil
}

func (a *natsAttachment) release() {
	select {
	case a.tokens <- struct{}{}:
	default:
	}
}

func (a *natsAttachment) Detach() error {
	return nil
}

// natsEvent implements RingEvent as an in-memory buffer bounded by the
// attachment's configured event size.
type natsEvent struct {
	attachment *natsAttachment
	buf        []byte
	capacity   int
}

func (e *natsEvent) SetData(buf []byte) error {
	if len(buf) > e.capacity {
		return ErrRingEventTooLarge
	}
	e.buf = append(e.buf[:0], buf...)
	return nil
}

func (e *natsEvent) SetLength(n int) error {
	if n > len(e.buf) {
		return fmt.Errorf("ring event length %d exceeds data length %d", n, len(e.buf))
	}
	e.buf = e.buf[:n]
	return nil
}

func (e *natsEvent) Capacity() int {
	return e.capacity
}
