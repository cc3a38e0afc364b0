package frame

import "log/slog"

type reassemblerState uint8

const (
	stateNormal reassemblerState = iota
	stateOverLong
)

// Reassembler turns an unreliable byte stream into whole COBS frames,
// dropping anything that would overflow its fixed-capacity accumulator
// and resynchronizing on the next frame delimiter.
//
// It is not safe for concurrent use; the session task is its sole
// caller.
type Reassembler struct {
	buf     []byte
	state   reassemblerState
	onFrame func(frame []byte)
	logger  *slog.Logger
}

// NewReassembler allocates an accumulator of the given capacity and
// calls onFrame with each complete, zero-terminated frame it finds.
// onFrame's argument is only valid until the next call to Feed, so copy
// it if it must outlive that call.
func NewReassembler(capacity int, logger *slog.Logger, onFrame func(frame []byte)) *Reassembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reassembler{
		buf:     make([]byte, 0, capacity),
		onFrame: onFrame,
		logger:  logger.With("component", "reassembler"),
	}
}

// Feed processes one fragment of bytes delivered by the transport
// driver. Fragments may be any length; Feed may invoke onFrame zero or
// more times.
func (r *Reassembler) Feed(fragment []byte) {
	for _, b := range fragment {
		switch r.state {
		case stateNormal:
			if len(r.buf) >= cap(r.buf) {
				r.logger.Warn("frame exceeded buffer capacity, discarding until next boundary", "capacity", cap(r.buf))
				r.state = stateOverLong
				if b == 0 {
					r.state = stateNormal
					r.buf = r.buf[:0]
				}
				continue
			}
			r.buf = append(r.buf, b)
			if b == 0 {
				r.onFrame(r.buf)
				r.buf = r.buf[:0]
			}
		case stateOverLong:
			if b == 0 {
				r.state = stateNormal
				r.buf = r.buf[:0]
			}
		}
	}
}
