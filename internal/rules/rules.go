// Package rules implements the pure name/password predicates the security
// core validates credentials against before anything touches the cache,
// the database, or a lock-out counter (spec §4.1).
package rules

import (
	"fmt"
	"regexp"
)

// NameRule validates a username/device-id style identifier.
type NameRule interface {
	IsNameValid(name string) bool
	Reason() string
}

// PasswordRule validates a raw password.
type PasswordRule interface {
	IsPasswordValid(password string) bool
	Reason() string
}

// RuleID identifies a rule within a RuleSet, assigned on insertion.
type RuleID uint64

type namedRule[T any] struct {
	id   RuleID
	rule T
}

// NameRuleSet owns an ordered collection of NameRule, keyed by RuleID.
// Not safe for concurrent use on its own — the security core serializes
// access under its primary lock (spec §4.4 concurrency).
type NameRuleSet struct {
	next  RuleID
	rules []namedRule[NameRule]
}

// NewNameRuleSet returns an empty rule set.
func NewNameRuleSet() *NameRuleSet {
	return &NameRuleSet{}
}

// Add appends a rule, returning the ID it was assigned.
func (s *NameRuleSet) Add(rule NameRule) RuleID {
	s.next++
	s.rules = append(s.rules, namedRule[NameRule]{id: s.next, rule: rule})
	return s.next
}

// Remove drops the rule with the given ID. Reports whether a rule was
// actually removed.
func (s *NameRuleSet) Remove(id RuleID) bool {
	for i, r := range s.rules {
		if r.id == id {
			s.rules = append(s.rules[:i], s.rules[i+1:]...)
			return true
		}
	}
	return false
}

// Len reports how many rules are currently configured.
func (s *NameRuleSet) Len() int {
	return len(s.rules)
}

// ErrUnconfigured is returned by Validate when called against an empty
// rule set — the caller must be told policy was never set up, rather than
// silently treating "no rules" as "always valid" (spec §4.1).
var ErrUnconfigured = fmt.Errorf("no rules configured")

// Validate runs every rule in insertion order, stopping at the first
// failure. An empty rule set is itself a validation error.
func (s *NameRuleSet) Validate(name string) error {
	if len(s.rules) == 0 {
		return ErrUnconfigured
	}

	for _, r := range s.rules {
		if !r.rule.IsNameValid(name) {
			return fmt.Errorf("%s", r.rule.Reason())
		}
	}

	return nil
}

// PasswordRuleSet is the PasswordRule analogue of NameRuleSet.
type PasswordRuleSet struct {
	next  RuleID
	rules []namedRule[PasswordRule]
}

// NewPasswordRuleSet returns an empty rule set.
func NewPasswordRuleSet() *PasswordRuleSet {
	return &PasswordRuleSet{}
}

// Add appends a rule, returning the ID it was assigned.
func (s *PasswordRuleSet) Add(rule PasswordRule) RuleID {
	s.next++
	s.rules = append(s.rules, namedRule[PasswordRule]{id: s.next, rule: rule})
	return s.next
}

// Remove drops the rule with the given ID. Reports whether a rule was
// actually removed.
func (s *PasswordRuleSet) Remove(id RuleID) bool {
	for i, r := range s.rules {
		if r.id == id {
			s.rules = append(s.rules[:i], s.rules[i+1:]...)
			return true
		}
	}
	return false
}

// Len reports how many rules are currently configured.
func (s *PasswordRuleSet) Len() int {
	return len(s.rules)
}

// Validate runs every rule in insertion order, stopping at the first
// failure. An empty rule set is itself a validation error.
func (s *PasswordRuleSet) Validate(password string) error {
	if len(s.rules) == 0 {
		return ErrUnconfigured
	}

	for _, r := range s.rules {
		if !r.rule.IsPasswordValid(password) {
			return fmt.Errorf("%s", r.rule.Reason())
		}
	}

	return nil
}

// --- concrete NameRule variants ---

type minNameLength struct{ min int }

// MinLength rejects names shorter than min characters.
func MinLength(min int) NameRule { return minNameLength{min: min} }

func (r minNameLength) IsNameValid(name string) bool { return len(name) >= r.min }
func (r minNameLength) Reason() string {
	return fmt.Sprintf("name is below the minimum required length of [%d]", r.min)
}

type maxNameLength struct{ max int }

// MaxLength rejects names longer than max characters.
func MaxLength(max int) NameRule { return maxNameLength{max: max} }

func (r maxNameLength) IsNameValid(name string) bool { return len(name) <= r.max }
func (r maxNameLength) Reason() string {
	return fmt.Sprintf("name is above the maximum allowed length of [%d]", r.max)
}

type allowedCharacters struct{ set map[rune]struct{} }

// AllowedCharacters rejects names containing any rune outside set.
func AllowedCharacters(set string) NameRule {
	m := make(map[rune]struct{}, len(set))
	for _, r := range set {
		m[r] = struct{}{}
	}
	return allowedCharacters{set: m}
}

func (r allowedCharacters) IsNameValid(name string) bool {
	for _, c := range name {
		if _, ok := r.set[c]; !ok {
			return false
		}
	}
	return true
}

func (r allowedCharacters) Reason() string {
	return "name contains characters outside the allowed set"
}

type requiredCharacters struct{ set map[rune]struct{} }

// RequiredCharacters rejects names that contain none of the characters in
// set (at least one must be present).
func RequiredCharacters(set string) NameRule {
	m := make(map[rune]struct{}, len(set))
	for _, r := range set {
		m[r] = struct{}{}
	}
	return requiredCharacters{set: m}
}

func (r requiredCharacters) IsNameValid(name string) bool {
	for _, c := range name {
		if _, ok := r.set[c]; ok {
			return true
		}
	}
	return len(r.set) == 0
}

func (r requiredCharacters) Reason() string {
	return "name does not contain any of the required characters"
}

type allowedNameStructure struct {
	expr *regexp.Regexp
	src  string
}

// AllowedStructure rejects names not matching the given regular expression.
func AllowedStructure(pattern string) NameRule {
	return allowedNameStructure{expr: regexp.MustCompile(pattern), src: pattern}
}

func (r allowedNameStructure) IsNameValid(name string) bool {
	return r.expr.MatchString(name)
}

func (r allowedNameStructure) Reason() string {
	return fmt.Sprintf("name does not match the allowed structure [%s]", r.src)
}

// --- concrete PasswordRule variants ---

type minPasswordLength struct{ min int }

// PasswordMinLength rejects passwords shorter than min characters.
func PasswordMinLength(min int) PasswordRule { return minPasswordLength{min: min} }

func (r minPasswordLength) IsPasswordValid(password string) bool { return len(password) >= r.min }
func (r minPasswordLength) Reason() string {
	return fmt.Sprintf("password is below the minimum required length of [%d]", r.min)
}

type allowedPasswordStructure struct {
	expr *regexp.Regexp
	src  string
}

// PasswordAllowedStructure rejects passwords not matching the given
// regular expression.
func PasswordAllowedStructure(pattern string) PasswordRule {
	return allowedPasswordStructure{expr: regexp.MustCompile(pattern), src: pattern}
}

func (r allowedPasswordStructure) IsPasswordValid(password string) bool {
	return r.expr.MatchString(password)
}

func (r allowedPasswordStructure) Reason() string {
	return fmt.Sprintf("password does not match the allowed structure [%s]", r.src)
}
