package instructions

import (
	"fmt"
	"sync"

	"github.com/synccore/authcore/internal/model"
)

// BaseTarget is the reusable half of the C7 target contract (spec §4.7):
// a one-shot AuthorizationToken map plus the consume-once verification
// every securable component needs. Application targets embed this and
// supply SetType/MinimumAccessLevel/Execute.
type BaseTarget struct {
	setType  model.InstructionSetType
	minLevel model.AccessLevel

	mu     sync.Mutex
	tokens map[model.TokenID]model.AuthorizationToken
}

// NewBaseTarget constructs the shared token bookkeeping for a target
// registered under setType with the given minimum access level (spec
// §4.5 supplemented feature: per-set minimum access level is declared at
// registration time, not hardcoded in the dispatcher).
func NewBaseTarget(setType model.InstructionSetType, minLevel model.AccessLevel) *BaseTarget {
	return &BaseTarget{
		setType:  setType,
		minLevel: minLevel,
		tokens:   make(map[model.TokenID]model.AuthorizationToken),
	}
}

// SetType implements Target.
func (b *BaseTarget) SetType() model.InstructionSetType { return b.setType }

// MinimumAccessLevel implements Target.
func (b *BaseTarget) MinimumAccessLevel() model.AccessLevel { return b.minLevel }

// PostAuthorizationToken is called by the security core once it mints a
// one-shot AuthorizationToken for this target (spec §4.7 step 2). The
// target's own lock is held only long enough to insert the token — never
// across a call back into the security core or dispatcher, preserving
// spec §5's lock-ordering rule.
func (b *BaseTarget) PostAuthorizationToken(token model.AuthorizationToken) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens[token.ID] = token
}

// ErrInvalidAuthorizationToken is returned by Consume when the token id
// is unknown, already spent, or its signature does not match what was
// posted (spec §4.7 steps 3-4).
var ErrInvalidAuthorizationToken = fmt.Errorf("instructions: invalid or already-consumed authorization token")

// Consume verifies token against the posted one-shot token for its id
// and, on a match, removes it so it can never be used again (spec §4.7
// "consumed exactly once"). Callers should invoke this at the start of
// Execute before acting on the instruction.
func (b *BaseTarget) Consume(token model.AuthorizationToken) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	posted, ok := b.tokens[token.ID]
	if !ok {
		return ErrInvalidAuthorizationToken
	}

	delete(b.tokens, token.ID)

	if !posted.Equal(token) {
		return ErrInvalidAuthorizationToken
	}

	return nil
}
