package domain

import "time"

// ExponentialBackoff waits Base*2^attempt, capped at Max. Attempt counts
// from zero.
type ExponentialBackoff struct {
	Base time.Duration
	Max  time.Duration
}

func (b ExponentialBackoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delay := b.Base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if b.Max > 0 && delay >= b.Max {
			return b.Max
		}
	}
	if b.Max > 0 && delay > b.Max {
		return b.Max
	}

	return delay
}

// LinearBackoff waits Step*attempt, capped at Max. Attempt counts from one.
type LinearBackoff struct {
	Step time.Duration
	Max  time.Duration
}

func (b LinearBackoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := b.Step * time.Duration(attempt)
	if b.Max > 0 && delay > b.Max {
		return b.Max
	}

	return delay
}
