package supervisor

import "time"

// Backoff computes reconnect delays: floor * 2^failures, capped at ceiling.
type Backoff struct {
	Floor   time.Duration
	Ceiling time.Duration
}

// Delay returns the wait before the next connect after failures previous
// consecutive failures. The first backoff equals the floor.
func (b Backoff) Delay(failures int) time.Duration {
	delay := b.Floor
	for i := 0; i < failures && delay < b.Ceiling; i++ {
		delay *= 2
	}
	if b.Ceiling > 0 && delay > b.Ceiling {
		return b.Ceiling
	}
	return delay
}
