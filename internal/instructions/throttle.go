package instructions

import (
	"errors"
	"sync"

	"golang.org/x/time/rate"

	"github.com/synccore/authcore/internal/model"
)

// ErrRateLimited is returned by a ThrottledDispatcher when a source
// exceeds its configured instruction rate.
var ErrRateLimited = errors.New("instructions: source exceeded its instruction rate limit")

// ThrottledDispatcher wraps a Dispatcher with a per-source token-bucket
// guard (spec §9's optional abuse-resistance note), grounded on the same
// golang.org/x/time/rate limiter the rest of the pack's HTTP middleware
// uses for request throttling. Unthrottled Process calls are still
// available directly on the embedded Dispatcher for callers that don't
// need it.
type ThrottledDispatcher struct {
	*Dispatcher

	mu       sync.Mutex
	limiters map[SourceID]*rate.Limiter
	rps      rate.Limit
	burst    int
}

// NewThrottled wraps d with a limiter of rps events/sec and the given
// burst, allocated lazily per source on first use.
func NewThrottled(d *Dispatcher, rps float64, burst int) *ThrottledDispatcher {
	return &ThrottledDispatcher{
		Dispatcher: d,
		limiters:   make(map[SourceID]*rate.Limiter),
		rps:        rate.Limit(rps),
		burst:      burst,
	}
}

func (t *ThrottledDispatcher) limiterFor(source SourceID) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()

	l, ok := t.limiters[source]
	if !ok {
		l = rate.NewLimiter(t.rps, t.burst)
		t.limiters[source] = l
	}
	return l
}

// Process enforces the per-source rate limit before delegating to the
// wrapped Dispatcher.
func (t *ThrottledDispatcher) Process(source SourceID, instruction Instruction, token model.AuthorizationToken) error {
	if !t.limiterFor(source).Allow() {
		return ErrRateLimited
	}
	return t.Dispatcher.Process(source, instruction, token)
}
