package generator

import (
	"context"
	"errors"
	"net"
)

// Classified generation failures. Callers match with errors.Is - none of
// these results is ever cached.
var (
	// ErrQuotaExceeded means the upstream refused due to rate/billing
	// limits. Callers should fall back to a placeholder, not retry.
	ErrQuotaExceeded = errors.New("generator quota exceeded")
	// ErrTimeout covers upstream timeouts and network-level failures.
	// Safe to retry with backoff.
	ErrTimeout = errors.New("generation timed out")
	// ErrInvalidInput is a malformed request, rejected before or by the
	// upstream. Never retried.
	ErrInvalidInput = errors.New("invalid generation request")
	// ErrCorruptArtifact means the upstream returned unusable bytes.
	ErrCorruptArtifact = errors.New("generator returned an unusable image")
)

// IsTransient reports whether the error is worth retrying later.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrQuotaExceeded) || errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrCorruptArtifact) {
		return false
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	// Unclassified upstream failures are treated as transient
	return true
}
