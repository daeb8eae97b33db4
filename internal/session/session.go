// Package session implements the Session Manager (spec §4.6, component
// C6): session lifecycle, token re-authentication, expiration
// scheduling, and per-session counters. A primary lock serializes state
// transitions and a dedicated timer thread runs the sweep. Session
// operations run on the caller's goroutine and wait on the Security
// Core's futures; the Manager's own worker pool is constructed but no
// operation submits work to it.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/synccore/authcore/internal/model"
	"github.com/synccore/authcore/internal/security"
	"github.com/synccore/authcore/internal/workerpool"
)

// AuthCore is the narrow slice of the Security Core the Session Manager
// depends on — just enough to request/discard authentication tokens,
// never rule management, key generation, or admin locking. internal/security
// never imports internal/session, so this dependency is one-directional:
// the Session Manager knows about the Security Core, never the reverse.
type AuthCore interface {
	PostAuthenticationRequestUser(ctx context.Context, req security.UserAuthenticationRequest) *workerpool.Future[model.AuthenticationToken]
	PostAuthenticationRequestDevice(ctx context.Context, req security.DeviceAuthenticationRequest) *workerpool.Future[model.AuthenticationToken]
	RemoveAuthenticationToken(userID model.UserID, tokenID model.TokenID)
}

// Store is the session half of spec §6.1's persistence interface, kept
// local to this package rather than added to internal/storage —
// internal/storage is consumed by internal/security, and a shared
// interface package imported by both would invert the ownership spec §3
// states explicitly: "Session Manager owns sessions." Defining it here
// keeps that ownership one-directional.
type Store interface {
	Add(ctx context.Context, rec model.SessionRecord) error
	Update(ctx context.Context, rec model.SessionRecord) error
}

// Error kinds specific to session management (spec §7).
var (
	ErrTooManyUserSessions   = errors.New("session: user has reached its concurrent session limit")
	ErrTooManyDeviceSessions = errors.New("session: device has reached its concurrent session limit")
	ErrLogicError            = errors.New("session: logic error")
)

// CommitPolicy is spec §4.6's persistence policy.
type CommitPolicy int

const (
	CommitNever CommitPolicy = iota
	CommitOnClose
	CommitOnReauth
	CommitOnUpdate
)

func (p CommitPolicy) persistsOn(event commitEvent) bool {
	switch p {
	case CommitNever:
		return false
	case CommitOnClose:
		return event == eventOpen || event == eventClose
	case CommitOnReauth:
		return event == eventOpen || event == eventClose || event == eventReauth
	case CommitOnUpdate:
		return true
	default:
		return false
	}
}

type commitEvent int

const (
	eventOpen commitEvent = iota
	eventCounterUpdate
	eventReauth
	eventClose
)

// Config is the Session Manager's construction-time configuration (spec
// §6.4 "Session:" options).
type Config struct {
	ThreadPoolSize       int64
	MaxSessionsPerUser   uint32 // 0 ⇒ unlimited
	MaxSessionsPerDevice uint32 // 0 ⇒ unlimited
	CommitPolicy         CommitPolicy
	InactivityTimeout    time.Duration // 0 ⇒ unlimited
	UnauthGrace          time.Duration // 0 ⇒ expire immediately, no reauth grace
	SourceKind           security.ComponentKind
}

// Manager is the Session Manager (spec §4.6).
type Manager struct {
	cfg   Config
	log   *slog.Logger
	auth  AuthCore
	store Store
	clock func() time.Time

	pool  *workerpool.Pool
	timer *workerpool.Timer

	mu       sync.Mutex
	active   map[model.InternalSessionID]*session
	byUser   map[model.UserID]map[model.InternalSessionID]struct{}
	byDevice map[model.DeviceID]map[model.InternalSessionID]struct{}

	handlersMu       sync.Mutex
	onSessionExpired []func(model.InternalSessionID)
	onReauthRequired []func(model.InternalSessionID)
}

// session is the live, mutex-guarded counterpart to model.SessionRecord
// (spec §3's Session entity) — kept private because nothing outside the
// Session Manager should observe or mutate it except through the public
// methods below, which take its own per-session mutex before touching
// its fields (spec §4.6 Protocol: "acquire the session's own mutex").
type session struct {
	mu sync.Mutex

	id       model.InternalSessionID
	kind     model.SessionKind
	userID   model.UserID
	deviceID model.DeviceID

	token             model.AuthenticationToken
	tokenExpirationAt time.Time

	waitingForReauth      bool
	waitingForTermination bool
	persistent            bool
	addedToDB             bool

	dataSent, dataReceived         uint64
	commandsSent, commandsReceived uint64

	lastActivityAt time.Time
}

func (s *session) toRecord() model.SessionRecord {
	return model.SessionRecord{
		ID:                    s.id,
		Kind:                  s.kind,
		UserID:                s.userID,
		DeviceID:              s.deviceID,
		TokenID:               s.token.ID,
		TokenExpirationAt:     s.tokenExpirationAt,
		Persistent:            s.persistent,
		WaitingForReauth:      s.waitingForReauth,
		WaitingForTermination: s.waitingForTermination,
		DataSent:              s.dataSent,
		DataReceived:          s.dataReceived,
		CommandsSent:          s.commandsSent,
		CommandsReceived:      s.commandsReceived,
		LastActivityAt:        s.lastActivityAt,
	}
}

// New constructs a Session Manager. auth and store back the two external
// dependencies spec §4.6 relies on; both may be nil-safe stubs in tests
// that only exercise the in-memory state machine.
func New(cfg Config, log *slog.Logger, auth AuthCore, store Store) *Manager {
	m := &Manager{
		cfg:      cfg,
		log:      log,
		auth:     auth,
		store:    store,
		clock:    time.Now,
		pool:     workerpool.New(cfg.ThreadPoolSize),
		active:   make(map[model.InternalSessionID]*session),
		byUser:   make(map[model.UserID]map[model.InternalSessionID]struct{}),
		byDevice: make(map[model.DeviceID]map[model.InternalSessionID]struct{}),
	}
	m.timer = workerpool.NewTimer(m.sweep)
	return m
}

// OnSessionExpired registers a handler invoked (outside the global lock,
// spec §6.3) whenever the sweep terminates a session.
func (m *Manager) OnSessionExpired(fn func(model.InternalSessionID)) {
	m.handlersMu.Lock()
	defer m.handlersMu.Unlock()
	m.onSessionExpired = append(m.onSessionExpired, fn)
}

// OnReauthenticationRequired registers a handler invoked when the sweep
// flips a session into its reauth-grace window.
func (m *Manager) OnReauthenticationRequired(fn func(model.InternalSessionID)) {
	m.handlersMu.Lock()
	defer m.handlersMu.Unlock()
	m.onReauthRequired = append(m.onReauthRequired, fn)
}

func (m *Manager) now() time.Time { return m.clock() }

func (m *Manager) fireSessionExpired(id model.InternalSessionID) {
	m.handlersMu.Lock()
	handlers := append([]func(model.InternalSessionID){}, m.onSessionExpired...)
	m.handlersMu.Unlock()
	for _, h := range handlers {
		h(id)
	}
}

func (m *Manager) fireReauthRequired(id model.InternalSessionID) {
	m.handlersMu.Lock()
	handlers := append([]func(model.InternalSessionID){}, m.onReauthRequired...)
	m.handlersMu.Unlock()
	for _, h := range handlers {
		h(id)
	}
}

func newSessionID() model.InternalSessionID {
	return uuid.New()
}
