package sink

import (
	"fmt"
	"time"
)

// eventRequestTimeout is the bounded wait for a pre-allocated ring event,
// per §4.6 of the external interface contract.
const eventRequestTimeout = 2 * time.Second

// RingSink implements OutputSink over one shard's RingAttachment,
// following the request/copy/put sequence: request a pre-allocated event
// with a bounded wait, reject oversized buffers by dumping the event
// rather than publishing it, otherwise copy and publish.
type RingSink struct {
	attachment RingAttachment
	eventSize  int
}

// NewRingSink wraps an already-attached ring handle.
func NewRingSink(attachment RingAttachment, eventSize int) *RingSink {
	return &RingSink{attachment: attachment, eventSize: eventSize}
}

// Write publishes buf as one ring event.
func (s *RingSink) Write(buf []byte) error {
	ev, err := s.attachment.EventsNew(eventRequestTimeout, s.eventSize)
	if err != nil {
		return err
	}

	if len(buf) > s.eventSize {
		if dumpErr := s.attachment.EventsDump(ev); dumpErr != nil {
			return fmt.Errorf("%w (and failed to dump oversized event: %v)", ErrRingEventTooLarge, dumpErr)
		}
		return ErrRingEventTooLarge
	}

	if err := ev.SetData(buf); err != nil {
		s.attachment.EventsDump(ev)
		return err
	}
	if err := ev.SetLength(len(buf)); err != nil {
		s.attachment.EventsDump(ev)
		return err
	}

	return s.attachment.EventsPut(ev)
}

// Close detaches the underlying ring handle.
func (s *RingSink) Close() error {
	return s.attachment.Detach()
}
