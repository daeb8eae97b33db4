package rbac

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/synccore/authcore/internal/model"
)

func TestEnforcerAuthorizedOnlyForGrantedSet(t *testing.T) {
	e, err := New()
	require.NoError(t, err)

	rules := map[model.InstructionSetType]struct{}{
		"user-self": {},
	}

	ok, err := e.Authorized("alice", "user-self", rules)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = e.Authorized("alice", "admin-console", rules)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEnforcerDeniesWithNoRules(t *testing.T) {
	e, err := New()
	require.NoError(t, err)

	ok, err := e.Authorized("bob", "user-self", nil)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEnforcerPolicyDoesNotLeakBetweenCalls(t *testing.T) {
	e, err := New()
	require.NoError(t, err)

	ok, err := e.Authorized("alice", "user-self", map[model.InstructionSetType]struct{}{"user-self": {}})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = e.Authorized("alice", "user-self", map[model.InstructionSetType]struct{}{})
	require.NoError(t, err)
	require.False(t, ok, "policy from a previous call must not persist")
}
