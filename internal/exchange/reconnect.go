package exchange

import "time"

// ReconnectPolicy controls automatic WebSocket reconnection. When disabled a
// dropped stream stays down and reads fall back to REST.
type ReconnectPolicy struct {
	Enabled      bool
	InitialDelay time.Duration
	MaxDelay     time.Duration
	MaxAttempts  int // 0 means unlimited
}

// DefaultReconnectPolicy returns a disabled policy with sane backoff values.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		Enabled:      false,
		InitialDelay: 2 * time.Second,
		MaxDelay:     60 * time.Second,
	}
}

// Allow reports whether attempt (zero-based) may run.
func (p ReconnectPolicy) Allow(attempt int) bool {
	if !p.Enabled {
		return false
	}
	return p.MaxAttempts <= 0 || attempt < p.MaxAttempts
}

// Delay returns the wait before attempt: InitialDelay doubled per attempt,
// capped at MaxDelay.
func (p ReconnectPolicy) Delay(attempt int) time.Duration {
	d := p.InitialDelay
	if d <= 0 {
		d = time.Second
	}
	for i := 0; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}
