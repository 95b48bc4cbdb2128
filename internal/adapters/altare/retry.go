package altare

import (
	"context"
	"errors"
	"fmt"
)

// ErrRequestFailed is returned when every attempt hit a transient error.
var ErrRequestFailed = errors.New("request failed")

// do runs fn up to c.attempts times. Only transient I/O failures are
// retried; rejections and decode errors are returned as is.
func (c *Client) do(ctx context.Context, fn func(context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt < c.attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if !errors.Is(err, errTransient) {
			return err
		}
		lastErr = err

		if attempt == c.attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.clock.After(c.backoff.Delay(attempt)):
		}
	}

	return fmt.Errorf("%w after %d attempts: %v", ErrRequestFailed, c.attempts, lastErr)
}
