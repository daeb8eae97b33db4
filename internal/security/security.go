// Package security implements the Security Core (spec §4.4, component
// C4): credential validation, progressive lock-out, per-request
// authorization, and cryptographic material generation, built on top of
// the rule engine (internal/rules), the hash/salt/key provider
// (internal/crypto), and the entity cache (internal/cache).
package security

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/synccore/authcore/internal/cache"
	"github.com/synccore/authcore/internal/crypto"
	"github.com/synccore/authcore/internal/model"
	"github.com/synccore/authcore/internal/rbac"
	"github.com/synccore/authcore/internal/rules"
	"github.com/synccore/authcore/internal/storage"
	"github.com/synccore/authcore/internal/workerpool"
	"github.com/synccore/authcore/pkg/logger"
)

// ComponentKind identifies a registered source or target of the Security
// Core's own registries (spec §4.4 step 1 "look up source and target
// components by kind") — distinct from the Instruction Dispatcher's
// per-set-type target registry in internal/instructions.
type ComponentKind string

// SecureTarget is the delivery half of the C7 Target Contract (spec
// §4.7): the Security Core calls PostAuthorizationToken synchronously,
// before resolving the caller's authorization future.
type SecureTarget interface {
	PostAuthorizationToken(token model.AuthorizationToken)
}

// AccessLevelSource answers "what is the minimum access level required
// for this instruction set" (spec §4.4 step 4). internal/instructions'
// Dispatcher satisfies this without the security package importing it
// back.
type AccessLevelSource interface {
	MinimumAccessLevelForSet(setType model.InstructionSetType) (model.AccessLevel, bool)
}

// Clock abstracts time.Now so tests can control the passage of time for
// lock-out delays and token expiration without sleeping.
type Clock func() time.Time

// PasswordHashing bundles the current and optional previous hashing
// configuration for one principal kind (spec §4.2 storage format, §4.4
// step 4 verification-with-fallback).
type PasswordHashing struct {
	Current  crypto.HashingConfig
	Previous *crypto.HashingConfig
}

// Config is everything the Security Core needs at construction time,
// assembled by the caller from internal/config.
type Config struct {
	ThreadPoolSize int64

	Cache cache.Config

	AuthTokenSignatureSize int
	AuthzTokenSignatureSize int
	AuthTokenValidity       time.Duration

	UserLockout   LockoutParameters
	DeviceLockout LockoutParameters

	UserHashing   PasswordHashing
	DeviceHashing PasswordHashing

	derivedKeyParams crypto.DerivedKeyParams
	symmetricParams  crypto.SymmetricParams

	Clock Clock
}

// WithKeyGenerator attaches the derived/symmetric key-generation
// parameter bundles (spec §6.4 key_generator) to cfg, returning the
// updated value — kept as a setter rather than exported fields because
// PostDerivedKeyRequest/PostSymmetricKeyRequest read them under the
// primary lock and a stray direct field write from outside this package
// would bypass that.
func (cfg Config) WithKeyGenerator(derived crypto.DerivedKeyParams, symmetric crypto.SymmetricParams) Config {
	cfg.derivedKeyParams = derived
	cfg.symmetricParams = symmetric
	return cfg
}

// Core is the Security Core (spec §4.4). The mu field is spec §5's
// "primary lock" — authentication, authorization, cache mutation, and
// rule-set access all serialize on it; key-generation requests acquire
// it only briefly to validate source registration (spec §4.4
// Concurrency).
type Core struct {
	cfg Config
	log *slog.Logger

	users   storage.Users
	devices storage.Devices

	pool       *workerpool.Pool
	dispatcher AccessLevelSource

	mu      sync.Mutex
	cache   *cache.EntityCache
	tokens  map[model.UserID][]model.AuthenticationToken
	targets map[ComponentKind]SecureTarget
	sources map[ComponentKind]struct{}
	rbac    *rbac.Enforcer

	nameRulesMu   sync.Mutex
	nameRules     *rules.NameRuleSet
	passwordRulesMu sync.Mutex
	passwordRules *rules.PasswordRuleSet

	nextTokenID atomic.Uint64
}

// New constructs a Security Core backed by users/devices persistence and
// dispatcher for minimum-access-level lookups.
func New(cfg Config, log *slog.Logger, users storage.Users, devices storage.Devices, dispatcher AccessLevelSource) (*Core, error) {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	enforcer, err := rbac.New()
	if err != nil {
		return nil, fmt.Errorf("security: %w", err)
	}

	c := &Core{
		cfg:           cfg,
		log:           log,
		users:         users,
		devices:       devices,
		pool:          workerpool.New(cfg.ThreadPoolSize),
		dispatcher:    dispatcher,
		tokens:        make(map[model.UserID][]model.AuthenticationToken),
		targets:       make(map[ComponentKind]SecureTarget),
		sources:       make(map[ComponentKind]struct{}),
		rbac:          enforcer,
		nameRules:     rules.NewNameRuleSet(),
		passwordRules: rules.NewPasswordRuleSet(),
	}

	c.cache = cache.New(cfg.Cache, c.loadUser, c.loadDevice)

	return c, nil
}

func (c *Core) now() time.Time { return c.cfg.Clock() }

// fail wraps cause as a *Error of kind, and for LogicError/Overflow also
// reports it to the fault sink (spec §7: "also re-thrown from the worker
// so the process's supervisor can react") — configuration/persistence
// bugs an operator should be paged on, not just a request-scoped failure
// the caller already sees via its future.
func (c *Core) fail(ctx context.Context, kind Kind, cause error, format string, args ...any) *Error {
	err := wrapError(kind, cause, format, args...)
	if kind == LogicError || kind == Overflow {
		logger.ReportFault(ctx, c.log, "security core fault", err)
	}
	return err
}

func (c *Core) loadUser(ctx context.Context, id model.UserID) (model.UserRecord, error) {
	return c.users.GetByID(ctx, id)
}

func (c *Core) loadDevice(ctx context.Context, id model.DeviceID) (model.DeviceRecord, error) {
	return c.devices.GetByID(ctx, id)
}

// RegisterSecureTarget installs target under kind. At most one target per
// kind (spec §4.4 public contract).
func (c *Core) RegisterSecureTarget(kind ComponentKind, target SecureTarget) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.targets[kind]; exists {
		return newError(LogicError, "a secure target is already registered for kind %q", kind)
	}
	c.targets[kind] = target
	return nil
}

// DeregisterSecureTarget removes the target registered under kind, if any.
func (c *Core) DeregisterSecureTarget(kind ComponentKind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.targets, kind)
}

// RegisterSecureSource declares kind as a valid source_kind for
// authentication/authorization requests (spec §4.4 step 1).
func (c *Core) RegisterSecureSource(kind ComponentKind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sources[kind] = struct{}{}
}

// AddNameRule / RemoveNameRule manage the C1 name rule set (spec §4.4
// rule management), serialized behind their own mutex acquired while
// holding the primary lock (spec §5 lock ordering #4).
func (c *Core) AddNameRule(rule rules.NameRule) rules.RuleID {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nameRulesMu.Lock()
	defer c.nameRulesMu.Unlock()
	return c.nameRules.Add(rule)
}

func (c *Core) RemoveNameRule(id rules.RuleID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nameRulesMu.Lock()
	defer c.nameRulesMu.Unlock()
	return c.nameRules.Remove(id)
}

func (c *Core) AddPasswordRule(rule rules.PasswordRule) rules.RuleID {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.passwordRulesMu.Lock()
	defer c.passwordRulesMu.Unlock()
	return c.passwordRules.Add(rule)
}

func (c *Core) RemovePasswordRule(id rules.RuleID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.passwordRulesMu.Lock()
	defer c.passwordRulesMu.Unlock()
	return c.passwordRules.Remove(id)
}

// ValidateUsername runs the configured name rules against name.
func (c *Core) ValidateUsername(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nameRulesMu.Lock()
	defer c.nameRulesMu.Unlock()
	return c.nameRules.Validate(name)
}

// ValidatePassword runs the configured password rules against password.
func (c *Core) ValidatePassword(password string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.passwordRulesMu.Lock()
	defer c.passwordRulesMu.Unlock()
	return c.passwordRules.Validate(password)
}

// UpdatePasswordHashingConfig rotates current → previous and installs new
// as current, for the given principal kind. Only allowed when there is
// no previous config on file (spec §4.4 public contract).
func (c *Core) UpdatePasswordHashingConfig(forDevice bool, next crypto.HashingConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	hashing := &c.cfg.UserHashing
	if forDevice {
		hashing = &c.cfg.DeviceHashing
	}

	if hashing.Previous != nil {
		return newError(LogicError, "a previous password hashing config is already on file")
	}

	prev := hashing.Current
	hashing.Previous = &prev
	hashing.Current = next
	return nil
}

// DiscardPreviousPasswordHashingConfig drops the compatibility config.
func (c *Core) DiscardPreviousPasswordHashingConfig(forDevice bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if forDevice {
		c.cfg.DeviceHashing.Previous = nil
		return
	}
	c.cfg.UserHashing.Previous = nil
}

// RemoveAuthenticationToken drops the token with id from user's live-token
// list (spec §4.4 public contract, called on session close/re-auth and on
// the "too many sessions" rollback path).
func (c *Core) RemoveAuthenticationToken(userID model.UserID, tokenID model.TokenID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeTokenLocked(userID, tokenID)
}

func (c *Core) removeTokenLocked(userID model.UserID, tokenID model.TokenID) {
	list := c.tokens[userID]
	for i, t := range list {
		if t.ID == tokenID {
			c.tokens[userID] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// TokenIsLive reports whether a live, unexpired token matching (userID,
// deviceID) is on file. deviceID may be model.NilDeviceID for user-scoped
// tokens (spec §4.4 step 3).
func (c *Core) TokenIsLive(userID model.UserID, deviceID model.DeviceID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokenIsLiveLocked(userID, deviceID)
}

func (c *Core) nextTokenIDValue() model.TokenID {
	return model.TokenID(c.nextTokenID.Add(1))
}

// Stats is a read-only operational snapshot (SPEC_FULL supplemented
// feature, grounded on the original SecurityManager's debug-information
// accessors — SecurityManager.h's `//Stats` counters).
type Stats struct {
	LiveTokenUsers    int // number of distinct users with at least one live token
	LiveTokens        int // total live tokens across all users
	RegisteredTargets int
	RegisteredSources int
	NameRules         int
	PasswordRules     int
	Cache             cache.Stats
}

// Stats returns a snapshot of the Security Core's current live state.
func (c *Core) Stats() Stats {
	c.mu.Lock()
	liveTokens, liveTokenUsers := 0, 0
	for _, list := range c.tokens {
		liveTokens += len(list)
		if len(list) > 0 {
			liveTokenUsers++
		}
	}
	s := Stats{
		LiveTokenUsers:    liveTokenUsers,
		LiveTokens:        liveTokens,
		RegisteredTargets: len(c.targets),
		RegisteredSources: len(c.sources),
		Cache:             c.cache.Stats(),
	}
	c.mu.Unlock()

	c.nameRulesMu.Lock()
	s.NameRules = c.nameRules.Len()
	c.nameRulesMu.Unlock()

	c.passwordRulesMu.Lock()
	s.PasswordRules = c.passwordRules.Len()
	c.passwordRulesMu.Unlock()

	return s
}
