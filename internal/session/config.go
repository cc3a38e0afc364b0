package session

import "time"

// Config carries the session task's compile-time-ish tunables. On a
// real embedded build these would be #define constants; here they are
// struct fields so cmd/badgelinkd's process wiring can set them from
// its loaded configuration without the core depending on any config
// library.
type Config struct {
	// RebootDelay is how long the start-application handler waits
	// after emitting its Ok response before requesting the reboot, so
	// the response has time to drain over the wire.
	RebootDelay time.Duration

	// FragmentQueueCapacity bounds the single-producer/single-consumer
	// inbound queue.
	FragmentQueueCapacity int

	// FrameBufferCapacity bounds the receive reassembler's accumulator.
	FrameBufferCapacity int
}

// DefaultConfig holds sizing suitable for a small embedded device with
// a few kilobytes of RAM to spare for buffering.
func DefaultConfig() Config {
	return Config{
		RebootDelay:           200 * time.Millisecond,
		FragmentQueueCapacity: 16,
		FrameBufferCapacity:   2048,
	}
}
