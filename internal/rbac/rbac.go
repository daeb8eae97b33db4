// Package rbac wraps a Casbin enforcer for the Security Core's
// authorization-rules check (spec §4.4 step 5: "the user's authorization
// rules must include the set type"), grounded on the RBAC service of the
// reference repo this module's authorization flow was modeled after.
//
// Unlike that service, policy doesn't live in a separate table: a
// UserRecord's AuthorizationRules set already is the policy, so Authorized
// reloads the enforcer's policy from the set handed to it on every call
// rather than querying a store.
package rbac

import (
	"fmt"
	"sync"

	"github.com/casbin/casbin/v2"
	casbinmodel "github.com/casbin/casbin/v2/model"

	"github.com/synccore/authcore/internal/model"
)

const modelDefinition = `
[request_definition]
r = sub, obj

[policy_definition]
p = sub, obj

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && r.obj == p.obj
`

// Enforcer answers "may subject perform against object" questions over a
// policy set supplied by the caller at enforcement time. One Enforcer is
// shared by the whole Security Core; Authorized holds the Enforcer's own
// mutex while it reloads and evaluates policy, so concurrent calls never
// see each other's policy.
type Enforcer struct {
	mu       sync.Mutex
	enforcer *casbin.Enforcer
}

// New constructs an Enforcer.
func New() (*Enforcer, error) {
	m, err := casbinmodel.NewModelFromString(modelDefinition)
	if err != nil {
		return nil, fmt.Errorf("rbac: building casbin model: %w", err)
	}

	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("rbac: constructing enforcer: %w", err)
	}
	e.EnableLog(false)

	return &Enforcer{enforcer: e}, nil
}

// Authorized reports whether subject is allowed to use setType, given
// rules as the complete policy for that subject (a UserRecord's
// AuthorizationRules set, spec §3).
func (e *Enforcer) Authorized(subject string, setType model.InstructionSetType, rules map[model.InstructionSetType]struct{}) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.enforcer.ClearPolicy()
	for rule := range rules {
		if _, err := e.enforcer.AddPolicy(subject, string(rule)); err != nil {
			return false, fmt.Errorf("rbac: loading policy for %q: %w", subject, err)
		}
	}

	return e.enforcer.Enforce(subject, string(setType))
}
