package supervisor

import (
	"math/rand"
	"time"
)

// Restart timing.
const (
	// InitialRestartDelay is the first delay after a crash.
	InitialRestartDelay = 50 * time.Millisecond

	// MaxRestartDelay is the delay ceiling.
	MaxRestartDelay = 5 * time.Second

	// HealthySessionDuration is how long a worker session must last for
	// the backoff to reset.
	HealthySessionDuration = 10 * time.Second

	// jitterDivisor: each delay gets up to delay/jitterDivisor extra so a
	// fleet of crashed workers does not reconnect in lockstep.
	jitterDivisor = 4
)

// RestartBackoff produces the restart delay sequence: 50ms doubling and
// saturating at 5s. Not safe for concurrent use.
type RestartBackoff struct {
	next time.Duration
}

// NewRestartBackoff returns a backoff at its initial delay.
func NewRestartBackoff() *RestartBackoff {
	return &RestartBackoff{next: InitialRestartDelay}
}

// Next returns the current delay and advances the sequence.
func (b *RestartBackoff) Next() time.Duration {
	d := b.next
	b.next *= 2
	if b.next > MaxRestartDelay {
		b.next = MaxRestartDelay
	}
	return d
}

// Reset returns the sequence to its initial delay.
func (b *RestartBackoff) Reset() {
	b.next = InitialRestartDelay
}

// ObserveSession resets the backoff if the finished session lasted long
// enough to count as healthy.
func (b *RestartBackoff) ObserveSession(lasted time.Duration) {
	if lasted >= HealthySessionDuration {
		b.Reset()
	}
}

// Jitter returns d plus a random extra of up to d/4.
func Jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	return d + time.Duration(rand.Int63n(int64(d)/jitterDivisor+1))
}
