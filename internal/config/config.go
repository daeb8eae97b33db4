// Package config assembles the application configuration from the
// environment, the way the teacher repo's original config.go did for its
// much smaller settings surface — extended here to every knob spec §6.4
// recognizes. It depends only on internal/crypto's plain value types;
// cmd/server converts these values into the cache, security and session
// parameter types, so this package never imports those packages.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/synccore/authcore/internal/crypto"
)

// Config holds all application configuration.
type Config struct {
	Env         string
	DatabaseURL string
	SentryDSN   string

	AllowPublicRegistration bool

	ThreadPoolSize int64

	Cache CacheConfig

	Tokens TokenConfig

	UserLockout   LockoutConfig
	DeviceLockout LockoutConfig

	PasswordHashing PasswordHashingConfig

	KeyGenerator KeyGeneratorConfig

	Session SessionConfig
}

// CacheConfig is spec §6.4's entity-cache knobs.
type CacheConfig struct {
	MaxUserEntries   int
	MaxDeviceEntries int
	UserEviction     Eviction
	DeviceEviction   Eviction
}

// Eviction mirrors cache.Policy; callers convert at wiring time so this
// package does not need to import internal/cache.
type Eviction string

const (
	EvictionLRU Eviction = "LRU"
	EvictionMRU Eviction = "MRU"
)

// TokenConfig is spec §6.4's token sizing/TTL knobs.
type TokenConfig struct {
	AuthSignatureSize  int
	AuthzSignatureSize int
	AuthValidity       time.Duration
}

// Escalation mirrors security.Escalation for the same import-direction
// reason as Eviction above.
type Escalation string

const (
	EscalationConstant  Escalation = "Const"
	EscalationLinear    Escalation = "Linear"
	EscalationQuadratic Escalation = "Quadratic"
)

// LockoutConfig is spec §6.4's failed_auth_delay bundle, one instance
// each for users and devices. Base is the exponentiation base in the
// delay_seconds = base^Y formula (spec §4.4) — a plain number, not a
// duration.
type LockoutConfig struct {
	Base            float64
	Escalation      Escalation
	MaxAttempts     uint32
	IgnoredAttempts uint32
}

// PasswordHashingConfig is spec §6.4's current/previous hashing bundles,
// split per principal kind (user vs. device).
type PasswordHashingConfig struct {
	UserCurrent    crypto.HashingConfig
	DeviceCurrent  crypto.HashingConfig
	UserPrevious   *crypto.HashingConfig
	DevicePrevious *crypto.HashingConfig
}

// KeyGeneratorConfig holds the derived and symmetric parameter sets of
// spec §6.4's key_generator bundle; it has no asymmetric parameter set.
type KeyGeneratorConfig struct {
	Derived   crypto.DerivedKeyParams
	Symmetric crypto.SymmetricParams
}

// SessionConfig is spec §6.4's session block.
type SessionConfig struct {
	MaxSessionsPerUser   int
	MaxSessionsPerDevice int
	CommitPolicy         CommitPolicy
	InactivityTimeout    time.Duration
	UnauthGrace          time.Duration
}

// CommitPolicy mirrors session.CommitPolicy without importing that
// package, for the same reason as Eviction above.
type CommitPolicy string

const (
	CommitNever    CommitPolicy = "Never"
	CommitOnClose  CommitPolicy = "OnClose"
	CommitOnReauth CommitPolicy = "OnReauth"
	CommitOnUpdate CommitPolicy = "OnUpdate"
)

// Load reads configuration from environment variables, falling back to
// conservative defaults for anything unset.
func Load() (Config, error) {
	cfg := Config{
		Env:                     getEnv("APP_ENV", "development"),
		DatabaseURL:             os.Getenv("DATABASE_URL"),
		SentryDSN:               os.Getenv("SENTRY_DSN"),
		AllowPublicRegistration: getEnvAsBool("ALLOW_PUBLIC_REGISTRATION", false),
		ThreadPoolSize:          getEnvAsInt64("THREAD_POOL_SIZE", 16),

		Cache: CacheConfig{
			MaxUserEntries:   getEnvAsInt("MAX_USER_CACHE_ENTRIES", 10_000),
			MaxDeviceEntries: getEnvAsInt("MAX_DEVICE_CACHE_ENTRIES", 20_000),
			UserEviction:     Eviction(getEnv("USER_EVICTION", string(EvictionLRU))),
			DeviceEviction:   Eviction(getEnv("DEVICE_EVICTION", string(EvictionLRU))),
		},

		Tokens: TokenConfig{
			AuthSignatureSize:  getEnvAsInt("AUTH_TOKEN_SIGNATURE_SIZE", 32),
			AuthzSignatureSize: getEnvAsInt("AUTHZ_TOKEN_SIGNATURE_SIZE", 32),
			AuthValidity:       getEnvAsSeconds("AUTH_TOKEN_VALIDITY_SECONDS", 300),
		},

		UserLockout: LockoutConfig{
			Base:            getEnvAsFloat("USER_FAILED_AUTH_DELAY_BASE", 2),
			Escalation:      Escalation(getEnv("USER_FAILED_AUTH_DELAY_ESCALATION", string(EscalationLinear))),
			MaxAttempts:     getEnvAsUint32("USER_FAILED_AUTH_MAX_ATTEMPTS", 5),
			IgnoredAttempts: getEnvAsUint32("USER_FAILED_AUTH_IGNORED_ATTEMPTS", 1),
		},
		DeviceLockout: LockoutConfig{
			Base:            getEnvAsFloat("DEVICE_FAILED_AUTH_DELAY_BASE", 2),
			Escalation:      Escalation(getEnv("DEVICE_FAILED_AUTH_DELAY_ESCALATION", string(EscalationLinear))),
			MaxAttempts:     getEnvAsUint32("DEVICE_FAILED_AUTH_MAX_ATTEMPTS", 5),
			IgnoredAttempts: getEnvAsUint32("DEVICE_FAILED_AUTH_IGNORED_ATTEMPTS", 1),
		},

		PasswordHashing: PasswordHashingConfig{
			UserCurrent: crypto.HashingConfig{
				SaltSize: getEnvAsInt("USER_PASSWORD_SALT_SIZE", 16),
				Algo:     parseHashAlgo(getEnv("USER_PASSWORD_ALGO", "SHA256")),
			},
			DeviceCurrent: crypto.HashingConfig{
				SaltSize: getEnvAsInt("DEVICE_PASSWORD_SALT_SIZE", 16),
				Algo:     parseHashAlgo(getEnv("DEVICE_PASSWORD_ALGO", "SHA256")),
			},
		},

		KeyGenerator: KeyGeneratorConfig{
			Derived: crypto.DerivedKeyParams{
				Algo:       parseHashAlgo(getEnv("KEY_GEN_DERIVED_ALGO", "SHA256")),
				Iterations: getEnvAsInt("KEY_GEN_DERIVED_ITERATIONS", 100_000),
				Size:       getEnvAsInt("KEY_GEN_DERIVED_SIZE", 32),
			},
			Symmetric: crypto.SymmetricParams{
				DefaultCipher:  crypto.AES256,
				DefaultMode:    parseAEADMode(getEnv("KEY_GEN_SYMMETRIC_MODE", "GCM")),
				DefaultIVSize:  getEnvAsInt("KEY_GEN_SYMMETRIC_IV_SIZE", 12),
				MinKeySize:     getEnvAsInt("KEY_GEN_SYMMETRIC_MIN_KEY_SIZE", 16),
				DefaultKeySize: getEnvAsInt("KEY_GEN_SYMMETRIC_KEY_SIZE", 32),
			},
		},

		Session: SessionConfig{
			MaxSessionsPerUser:   getEnvAsInt("MAX_SESSIONS_PER_USER", 0),
			MaxSessionsPerDevice: getEnvAsInt("MAX_SESSIONS_PER_DEVICE", 0),
			CommitPolicy:         CommitPolicy(getEnv("SESSION_COMMIT_POLICY", string(CommitOnClose))),
			InactivityTimeout:    getEnvAsSeconds("SESSION_INACTIVITY_TIMEOUT_SECONDS", 0),
			UnauthGrace:          getEnvAsSeconds("SESSION_UNAUTH_GRACE_SECONDS", 30),
		},
	}

	if prevAlgo := os.Getenv("USER_PASSWORD_ALGO_PREVIOUS"); prevAlgo != "" {
		cfg.PasswordHashing.UserPrevious = &crypto.HashingConfig{
			SaltSize: getEnvAsInt("USER_PASSWORD_SALT_SIZE_PREVIOUS", cfg.PasswordHashing.UserCurrent.SaltSize),
			Algo:     parseHashAlgo(prevAlgo),
		}
	}
	if prevAlgo := os.Getenv("DEVICE_PASSWORD_ALGO_PREVIOUS"); prevAlgo != "" {
		cfg.PasswordHashing.DevicePrevious = &crypto.HashingConfig{
			SaltSize: getEnvAsInt("DEVICE_PASSWORD_SALT_SIZE_PREVIOUS", cfg.PasswordHashing.DeviceCurrent.SaltSize),
			Algo:     parseHashAlgo(prevAlgo),
		}
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("config: DATABASE_URL is required")
	}

	return cfg, nil
}

func parseHashAlgo(s string) crypto.HashAlgo {
	switch s {
	case "SHA512":
		return crypto.SHA512
	default:
		return crypto.SHA256
	}
}

func parseAEADMode(s string) crypto.Mode {
	switch s {
	case "CCM":
		return crypto.CCM
	case "EAX":
		return crypto.EAX
	default:
		return crypto.GCM
	}
}

func getEnv(name, defaultVal string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return defaultVal
}

func getEnvAsBool(name string, defaultVal bool) bool {
	valStr := os.Getenv(name)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseBool(valStr)
	if err != nil {
		return defaultVal
	}
	return val
}

func getEnvAsInt(name string, defaultVal int) int {
	valStr := os.Getenv(name)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		return defaultVal
	}
	return val
}

func getEnvAsInt64(name string, defaultVal int64) int64 {
	valStr := os.Getenv(name)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseInt(valStr, 10, 64)
	if err != nil {
		return defaultVal
	}
	return val
}

func getEnvAsUint32(name string, defaultVal uint32) uint32 {
	valStr := os.Getenv(name)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseUint(valStr, 10, 32)
	if err != nil {
		return defaultVal
	}
	return uint32(val)
}

func getEnvAsSeconds(name string, defaultVal int) time.Duration {
	return time.Duration(getEnvAsInt(name, defaultVal)) * time.Second
}

func getEnvAsFloat(name string, defaultVal float64) float64 {
	valStr := os.Getenv(name)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseFloat(valStr, 64)
	if err != nil {
		return defaultVal
	}
	return val
}
