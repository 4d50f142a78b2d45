package radio

import (
	"log"

	"github.com/sweeney/power-node/internal/protocol"
)

// queuedFrame is a unicast frame waiting for the broker to come back.
type queuedFrame struct {
	topic   string
	payload []byte
}

// outbox keeps the newest frames sent while disconnected, oldest first.
// Callers hold MQTTRadio.mu.
type outbox struct {
	frames  []queuedFrame
	limit   int
	dropped int // since the last flush
}

func newOutbox(limit int) *outbox {
	return &outbox{frames: make([]queuedFrame, 0, limit), limit: limit}
}

// tag returns the record tag carried by the frame.
func (f queuedFrame) tag() byte {
	_, data, ok := decodeFrame(f.payload)
	if !ok || len(data) == 0 {
		return 0
	}
	return data[0]
}

// add queues f, discarding the oldest frame when full. A PowerState replaces
// any PowerState already queued for the same topic, so a replay never reports
// an older mask after a newer one.
func (o *outbox) add(f queuedFrame) {
	if f.tag() == protocol.TagPowerState {
		kept := o.frames[:0]
		for _, q := range o.frames {
			if q.topic == f.topic && q.tag() == protocol.TagPowerState {
				continue
			}
			kept = append(kept, q)
		}
		o.frames = kept
	}
	if len(o.frames) == o.limit {
		if o.dropped == 0 {
			log.Printf("radio: outbox full (%d frames), dropping oldest", o.limit)
		}
		o.dropped++
		n := copy(o.frames, o.frames[1:])
		o.frames = o.frames[:n]
	}
	o.frames = append(o.frames, f)
}

// flush empties the outbox, returning the queued frames and how many were
// lost to overflow.
func (o *outbox) flush() ([]queuedFrame, int) {
	if len(o.frames) == 0 && o.dropped == 0 {
		return nil, 0
	}
	frames := append([]queuedFrame(nil), o.frames...)
	dropped := o.dropped
	o.frames = o.frames[:0]
	o.dropped = 0
	return frames, dropped
}

func (o *outbox) len() int { return len(o.frames) }
