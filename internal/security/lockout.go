package security

import (
	"math"
	"time"
)

// Escalation is spec §4.4's failed-auth delay escalation curve.
type Escalation int

const (
	EscalationConstant Escalation = iota
	EscalationLinear
	EscalationQuadratic
)

// maxDelaySeconds is the saturation ceiling spec §7's Overflow kind
// clamps to — comfortably longer than any real lock-out should ever run,
// chosen so a test can still assert "some very large delay" without the
// assertion depending on float64 range edge cases.
const maxDelaySeconds = float64(1 << 30)

// LockoutParameters is spec §6.4's failed_auth_delay bundle, resolved
// from config.LockoutConfig at wiring time.
type LockoutParameters struct {
	Base            float64
	Escalation      Escalation
	MaxAttempts     uint32 // 0 ⇒ unlimited (spec §9 Open Question, resolved in SPEC_FULL.md)
	IgnoredAttempts uint32
}

// Delay computes the lock-out delay for the given failed-attempt count
// (spec §4.4 step 3 / §8 "Delay monotonicity"). Attempts at or below
// IgnoredAttempts incur no delay. overflowed reports whether the formula
// saturated at maxDelaySeconds (spec §7 Overflow kind).
func (p LockoutParameters) Delay(failedAttempts uint32) (delay time.Duration, overflowed bool) {
	if failedAttempts <= p.IgnoredAttempts {
		return 0, false
	}

	n := float64(failedAttempts - p.IgnoredAttempts)

	var exponent float64
	switch p.Escalation {
	case EscalationConstant:
		exponent = 1
	case EscalationLinear:
		exponent = n
	case EscalationQuadratic:
		exponent = n * n
	default:
		exponent = 1
	}

	seconds := math.Pow(p.Base, exponent)
	if math.IsInf(seconds, 1) || math.IsNaN(seconds) || seconds > maxDelaySeconds {
		return time.Duration(maxDelaySeconds) * time.Second, true
	}

	return time.Duration(seconds * float64(time.Second)), false
}

// LockedOut reports whether, given failedAttempts and the timestamp of
// the last failure, the principal is still inside its computed delay
// window as of now. remaining is how much longer the delay has to run.
// overflowed propagates Delay's saturation flag so the caller can report
// it to the fault sink (spec §7 Overflow kind).
func (p LockoutParameters) LockedOut(failedAttempts uint32, lastFailedAt, now time.Time) (remaining time.Duration, locked bool, overflowed bool) {
	delay, overflowed := p.Delay(failedAttempts)
	if delay == 0 {
		return 0, false, overflowed
	}

	unlockAt := lastFailedAt.Add(delay)
	if now.Before(unlockAt) {
		return unlockAt.Sub(now), true, overflowed
	}
	return 0, false, overflowed
}

// ExceedsMaxAttempts reports whether the next failure (failedAttempts+1)
// would reach or pass MaxAttempts. MaxAttempts == 0 means unlimited
// attempts, so this always reports false in that configuration.
func (p LockoutParameters) ExceedsMaxAttempts(failedAttempts uint32) bool {
	if p.MaxAttempts == 0 {
		return false
	}
	return failedAttempts+1 >= p.MaxAttempts
}
