package llm

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	maxRetryAfter = 5 * time.Minute
	maxBackoff    = 60 * time.Second
)

type attemptFunc func(ctx context.Context, body []byte) (*http.Response, error)

// doWithRetry runs do up to MaxRetries+1 times. Only connection setup is
// retried: transient network errors and 408/429/5xx responses. The final
// retryable response is returned unchanged so its status and body reach
// the caller. Retry-After is honored; otherwise backoff is exponential
// with full jitter.
func (c *client) doWithRetry(ctx context.Context, body []byte, do attemptFunc) (*http.Response, error) {
	maxAttempts := max(c.cfg.MaxRetries+1, 1)
	var lastErr error

	for attempt := range maxAttempts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		last := attempt == maxAttempts-1

		start := time.Now()
		resp, err := do(ctx, body)

		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		c.logger.Debug("llm upstream attempt",
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", maxAttempts),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)

		wait := time.Duration(0)
		switch {
		case err != nil:
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || !isTransientNetError(err) {
				return nil, err
			}
			lastErr = err

		case !shouldRetryStatus(status) || last:
			return resp, nil

		default:
			lastErr = fmt.Errorf("upstream status %d", status)
			wait = parseRetryAfter(resp)
			if wait <= 0 {
				wait = computeBackoff(c.cfg.BaseBackoff, attempt)
			}
			// a retry that cannot finish in time would only trade the
			// upstream status for a deadline error
			if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) <= wait {
				c.logger.Debug("retry wait exceeds deadline, keeping upstream response",
					zap.Int("status", status),
					zap.Duration("wait", wait),
				)
				return resp, nil
			}
			resp.Body.Close()
		}

		if last {
			break
		}
		if wait <= 0 {
			wait = computeBackoff(c.cfg.BaseBackoff, attempt)
		}
		c.logger.Debug("retrying upstream request",
			zap.Duration("wait", wait),
			zap.Int("next_attempt", attempt+2),
			zap.NamedError("cause", lastErr),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	c.logger.Warn("llm request exhausted all retries",
		zap.Int("attempts", maxAttempts),
		zap.Error(lastErr),
	)
	if maxAttempts == 1 {
		return nil, lastErr
	}
	return nil, fmt.Errorf("llmclient: giving up after %d attempts: %w", maxAttempts, lastErr)
}

// isTransientNetError reports network failures worth another attempt.
// Unknown hosts are not retried: in the playground they are almost
// always a mistyped base URL.
func isTransientNetError(err error) bool {
	if err == nil {
		return false
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return !dnsErr.IsNotFound && (dnsErr.IsTimeout || dnsErr.IsTemporary)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		switch opErr.Op {
		case "dial", "read", "write":
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{"connection refused", "connection reset", "broken pipe", "temporary failure"} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// shouldRetryStatus: 408, 429 and 5xx.
func shouldRetryStatus(status int) bool {
	return status == http.StatusRequestTimeout ||
		status == http.StatusTooManyRequests ||
		(status >= 500 && status <= 599)
}

// parseRetryAfter reads Retry-After as seconds or an HTTP date, capped at
// maxRetryAfter. Zero means absent or unusable.
func parseRetryAfter(resp *http.Response) time.Duration {
	v := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if v == "" {
		return 0
	}

	var d time.Duration
	if seconds, err := strconv.Atoi(v); err == nil {
		d = time.Duration(seconds) * time.Second
	} else if t, err := http.ParseTime(v); err == nil {
		d = time.Until(t)
	}

	if d <= 0 {
		return 0
	}
	return min(d, maxRetryAfter)
}

// computeBackoff returns a random duration in [0, base*2^attempt), capped at maxBackoff.
func computeBackoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	ceiling := maxBackoff
	if attempt < 20 {
		ceiling = min(base<<attempt, maxBackoff)
	}
	if ceiling <= 0 {
		ceiling = maxBackoff
	}
	return time.Duration(rand.Int64N(int64(ceiling) + 1))
}
