package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNameRuleSetValidate(t *testing.T) {
	set := NewNameRuleSet()
	set.Add(MinLength(3))
	set.Add(MaxLength(16))
	set.Add(AllowedCharacters("abcdefghijklmnopqrstuvwxyz0123456789_"))

	require.NoError(t, set.Validate("alice_01"))

	err := set.Validate("al")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "minimum required length")

	err = set.Validate("Alice!!")
	require.Error(t, err)
}

func TestNameRuleSetEmptyIsError(t *testing.T) {
	set := NewNameRuleSet()
	err := set.Validate("alice")
	require.ErrorIs(t, err, ErrUnconfigured)
}

func TestNameRuleSetRemove(t *testing.T) {
	set := NewNameRuleSet()
	id := set.Add(MinLength(3))
	set.Add(MaxLength(16))

	assert.True(t, set.Remove(id))
	assert.False(t, set.Remove(id))
	assert.Equal(t, 1, set.Len())
}

func TestPasswordRuleSetValidate(t *testing.T) {
	set := NewPasswordRuleSet()
	set.Add(PasswordMinLength(8))
	set.Add(PasswordAllowedStructure(`^.*[0-9].*$`))

	require.NoError(t, set.Validate("P@ssw0rd1"))

	err := set.Validate("short1")
	require.Error(t, err)

	err = set.Validate("nodigitshere")
	require.Error(t, err)
}

func TestPasswordRuleSetEmptyIsError(t *testing.T) {
	set := NewPasswordRuleSet()
	err := set.Validate("whatever")
	require.ErrorIs(t, err, ErrUnconfigured)
}

func TestRequiredCharacters(t *testing.T) {
	rule := RequiredCharacters("0123456789")
	assert.True(t, rule.IsNameValid("alice1"))
	assert.False(t, rule.IsNameValid("alice"))
}
