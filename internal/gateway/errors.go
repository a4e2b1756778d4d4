package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Kind classifies a gateway failure for retry and propagation decisions.
type Kind int

const (
	// KindTransient covers timeouts, connection failures, and server errors;
	// eligible for backoff retry.
	KindTransient Kind = iota
	// KindRateLimited is an explicit rate-limit signal from the service;
	// retried like a transient failure.
	KindRateLimited
	// KindPermanent covers malformed requests and permanent rejections;
	// failed immediately, never retried.
	KindPermanent
	// KindQuota covers auth failures and exhausted quota with no retry-after;
	// fatal for the run, not just the unit of work.
	KindQuota
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindRateLimited:
		return "rate_limited"
	case KindPermanent:
		return "permanent"
	case KindQuota:
		return "quota"
	default:
		return "unknown"
	}
}

// Error is a typed gateway failure. Callers treat exhausted retries as a
// failure for that single unit of work; only KindQuota halts the run.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("gateway %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsQuota reports whether err is a run-fatal quota/auth failure.
func IsQuota(err error) bool {
	var ge *Error
	return errors.As(err, &ge) && ge.Kind == KindQuota
}

// Retryable reports whether the failure kind is eligible for backoff retry.
func (k Kind) Retryable() bool {
	return k == KindTransient || k == KindRateLimited
}

// classify maps a raw client error onto a failure kind. The model client
// surface is a plain error, so this leans on well-known message fragments in
// addition to the standard timeout interfaces.
func classify(err error) Kind {
	if err == nil {
		return KindTransient
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTransient
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "429") ||
		strings.Contains(msg, "overloaded"):
		return KindRateLimited
	case strings.Contains(msg, "quota") || strings.Contains(msg, "credit") ||
		strings.Contains(msg, "401") || strings.Contains(msg, "403") ||
		strings.Contains(msg, "authentication") || strings.Contains(msg, "api key"):
		return KindQuota
	case strings.Contains(msg, "invalid request") || strings.Contains(msg, "400") ||
		strings.Contains(msg, "not found") || strings.Contains(msg, "unsupported"):
		return KindPermanent
	default:
		// Server errors, connection resets, and anything unidentified get the
		// benefit of a retry.
		return KindTransient
	}
}
