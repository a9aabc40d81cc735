// Package retry holds the redelivery backoff policy for webhook events.
// Delays are advisory: the provider controls redelivery timing, the stored
// next_retry_at only documents when another attempt is welcome.
package retry

import "time"

const DefaultCeiling = 3

type Policy struct {
	Ceiling int
}

func NewPolicy() Policy {
	return Policy{Ceiling: DefaultCeiling}
}

// Delay returns the backoff for the attempt after retryCount prior failures:
// 2m, 4m, 8m.
func (p Policy) Delay(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	return time.Duration(1<<(retryCount+1)) * time.Minute
}

// Exhausted reports whether retryCount prior failures leave no attempts.
func (p Policy) Exhausted(retryCount int) bool {
	return retryCount >= p.Ceiling
}
