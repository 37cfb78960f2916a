package stage

import "time"

// Backoff computes retry delays as Initial * 2^(retry-1), capped at Max.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
}

// Delay returns the wait before attempt retry+1. retry counts from 1.
func (b Backoff) Delay(retry int) time.Duration {
	if b.Initial <= 0 {
		return 0
	}
	if retry < 1 {
		retry = 1
	}
	d := b.Initial
	for i := 1; i < retry; i++ {
		d *= 2
		if b.Max > 0 && d >= b.Max {
			return b.Max
		}
	}
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}
