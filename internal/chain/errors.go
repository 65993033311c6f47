package chain

import (
	"context"
	"errors"
	"strings"
)

// classifyTransient reports whether err is one of the transient RPC
// conditions C1 must retry: timeout, server error, network error,
// connection refused, stale node ("header not found"). Anything else
// (execution reverted, insufficient funds, unpredictable gas limit,
// nonce-already-used) is terminal and MUST NOT be retried.
func classifyTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	transientSubstrings := []string{
		"timeout",
		"timed out",
		"server error",
		"connection refused",
		"connection reset",
		"network is unreachable",
		"no such host",
		"header not found",
		"eof",
	}
	for _, s := range transientSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// TerminalError wraps an on-chain write failure that must not be retried.
// Its Error() is the single-line human-readable reason exposed to callers;
// the raw provider error is kept only for logging, never surfaced directly.
type TerminalError struct {
	Reason string
	cause  error
}

func (e *TerminalError) Error() string { return e.Reason }
func (e *TerminalError) Unwrap() error { return e.cause }

func newTerminalError(reason string, cause error) *TerminalError {
	return &TerminalError{Reason: reason, cause: cause}
}

func classifyTerminalReason(err error) string {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "execution reverted"):
		return "execution reverted"
	case strings.Contains(msg, "insufficient funds"):
		return "insufficient funds"
	case strings.Contains(msg, "gas required exceeds") || strings.Contains(msg, "unpredictable gas limit"):
		return "unpredictable gas limit"
	case strings.Contains(msg, "nonce too low") || strings.Contains(msg, "already known"):
		return "nonce already used"
	default:
		return "transaction failed"
	}
}
