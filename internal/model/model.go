// Package model holds the data shapes shared across the security core,
// session manager, dispatcher, and cache — the entities of spec §3. It
// has no behavior of its own; everything here is a plain value type.
package model

import (
	"net"
	"time"

	"github.com/google/uuid"
)

// UserID and DeviceID are opaque, collision-free identifiers — backed by
// google/uuid the way the teacher repo keys every row it owns.
type UserID = uuid.UUID
type DeviceID = uuid.UUID

// NilUserID / NilDeviceID represent the zero value — used for the
// "purely user-scoped" AuthenticationToken case (spec §3) where
// DeviceID is absent.
var (
	NilUserID   = uuid.Nil
	NilDeviceID = uuid.Nil
)

// AccessLevel is the coarse authorization tier carried on a UserRecord.
type AccessLevel int

const (
	AccessNone AccessLevel = iota
	AccessUser
	AccessAdmin
)

// InstructionSetType namespaces a family of related instructions (spec
// glossary "Set type"). The concrete catalogue of set types is an
// application concern, not fixed by this package — callers define their
// own constants of this type.
type InstructionSetType string

// InternalSessionID identifies a Session Manager session (spec §3).
type InternalSessionID = uuid.UUID

// NilSessionID is the zero value of InternalSessionID.
var NilSessionID = uuid.Nil

// SessionKind distinguishes the two counter families a Session can carry
// (spec §3 invariant (a): "a Command session never increments data
// counters and vice-versa").
type SessionKind int

const (
	SessionCommand SessionKind = iota
	SessionData
)

func (k SessionKind) String() string {
	switch k {
	case SessionCommand:
		return "Command"
	case SessionData:
		return "Data"
	default:
		return "Unknown"
	}
}

// UserRecord is spec §3's UserRecord.
type UserRecord struct {
	ID                 UserID
	Username           string
	PasswordBlob       []byte // salt || hash, per the active hashing config at write time
	AccessLevel        AccessLevel
	AuthorizationRules map[InstructionSetType]struct{}
	Locked             bool
	FailedAuthAttempts uint32
	LastFailedAuthAt   time.Time
	LastSuccessAuthAt  time.Time
	ForcePasswordReset bool
}

// DeviceRecord is spec §3's DeviceRecord.
type DeviceRecord struct {
	ID                 DeviceID
	Owner              UserID
	PasswordBlob       []byte
	TransferType       string
	IPAddress          net.IP
	IPPort             uint16
	Locked             bool
	FailedAuthAttempts uint32
	LastFailedAuthAt   time.Time
	LastSuccessAuthAt  time.Time
	Info               string
}

// TokenID uniquely identifies an Authentication or Authorization token
// within the lifetime of the security core that minted it (spec §8
// "Token uniqueness"). A plain monotonic counter already satisfies the
// only property demanded of it — uniqueness, not unpredictability (spec
// §9) — unpredictability lives in the accompanying signature instead.
type TokenID uint64

// AuthenticationToken is spec §3's AuthenticationToken.
type AuthenticationToken struct {
	ID           TokenID
	Signature    []byte
	ExpirationAt time.Time
	UserID       UserID
	DeviceID     DeviceID // zero value (NilDeviceID) when user-scoped only
}

// Equal compares (TokenID, signature) bit-exact, per spec §3.
func (t AuthenticationToken) Equal(other AuthenticationToken) bool {
	if t.ID != other.ID {
		return false
	}
	if len(t.Signature) != len(other.Signature) {
		return false
	}
	for i := range t.Signature {
		if t.Signature[i] != other.Signature[i] {
			return false
		}
	}
	return true
}

// Valid reports whether the token is unexpired as of now. Liveness
// (whether it is still present in the security core's live-token table)
// is checked by the caller — this only covers the time bound.
func (t AuthenticationToken) Valid(now time.Time) bool {
	return now.Before(t.ExpirationAt)
}

// AuthorizationToken is spec §3's one-shot AuthorizationToken.
type AuthorizationToken struct {
	ID        TokenID
	Signature []byte
	SetType   InstructionSetType
	UserID    UserID
	DeviceID  DeviceID
}

// SessionRecord is the persisted projection of a live Session (spec §3,
// §6.1 "sessions.add(Session) / sessions.update(Session)") — the fields
// an adapter needs to write a row, stripped of the in-memory mutex and
// scheduling state that only the Session Manager itself needs.
type SessionRecord struct {
	ID                    InternalSessionID
	Kind                  SessionKind
	UserID                UserID
	DeviceID              DeviceID // NilDeviceID when not device-bound
	TokenID               TokenID
	TokenExpirationAt     time.Time
	Persistent            bool
	WaitingForReauth      bool
	WaitingForTermination bool
	DataSent              uint64
	DataReceived          uint64
	CommandsSent          uint64
	CommandsReceived      uint64
	LastActivityAt        time.Time
}

// Equal compares an AuthorizationToken bit-exact, the same way
// AuthenticationToken.Equal does, for the one-shot consume check a
// Target performs before executing an instruction (spec §4.7).
func (t AuthorizationToken) Equal(other AuthorizationToken) bool {
	if t.ID != other.ID || t.SetType != other.SetType || t.UserID != other.UserID || t.DeviceID != other.DeviceID {
		return false
	}
	if len(t.Signature) != len(other.Signature) {
		return false
	}
	for i := range t.Signature {
		if t.Signature[i] != other.Signature[i] {
			return false
		}
	}
	return true
}
