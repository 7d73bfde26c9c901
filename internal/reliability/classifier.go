package reliability

import "time"

// IsQuotaHTTPStatus classifies HTTP status codes that signal provider
// quota or rate-limit exhaustion. These are fatal to a session and never
// retried within it.
func IsQuotaHTTPStatus(code int) bool {
	return code == 429
}

// IsQuotaErrorCode classifies upstream error codes that signal provider
// exhaustion regardless of transport status.
func IsQuotaErrorCode(code string) bool {
	switch code {
	case "insufficient_quota", "quota_exceeded", "resource_exhausted", "rate_limit_exceeded":
		return true
	default:
		return false
	}
}

// IsRetryableHTTPStatus classifies transient upstream failures worth a
// bounded retry.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// ExponentialBackoff computes a deterministic capped backoff duration.
func ExponentialBackoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt <= 0 {
		return base
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	return d
}
