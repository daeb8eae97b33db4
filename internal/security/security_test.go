package security

import (
	"context"
	"log/slog"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synccore/authcore/internal/cache"
	"github.com/synccore/authcore/internal/crypto"
	"github.com/synccore/authcore/internal/model"
	"github.com/synccore/authcore/internal/storage"
)

const sourceSession ComponentKind = "session-manager"
const targetSelf ComponentKind = "user-self"
const setUserSelf model.InstructionSetType = "user-self"

type memUsers struct {
	mu   sync.Mutex
	byID map[model.UserID]model.UserRecord
}

func newMemUsers() *memUsers { return &memUsers{byID: make(map[model.UserID]model.UserRecord)} }

func (m *memUsers) GetByID(_ context.Context, id model.UserID) (model.UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.byID[id]
	if !ok {
		return model.UserRecord{}, storage.ErrNotFound
	}
	return rec, nil
}

func (m *memUsers) GetByUsername(_ context.Context, username string) (model.UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.byID {
		if rec.Username == username {
			return rec, nil
		}
	}
	return model.UserRecord{}, storage.ErrNotFound
}

func (m *memUsers) Update(_ context.Context, rec model.UserRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[rec.ID] = rec
	return true, nil
}

type memDevices struct {
	mu   sync.Mutex
	byID map[model.DeviceID]model.DeviceRecord
}

func newMemDevices() *memDevices { return &memDevices{byID: make(map[model.DeviceID]model.DeviceRecord)} }

func (m *memDevices) GetByID(_ context.Context, id model.DeviceID) (model.DeviceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.byID[id]
	if !ok {
		return model.DeviceRecord{}, storage.ErrNotFound
	}
	return rec, nil
}

func (m *memDevices) Update(_ context.Context, rec model.DeviceRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[rec.ID] = rec
	return true, nil
}

type fakeDispatcher struct {
	levels map[model.InstructionSetType]model.AccessLevel
}

func (f fakeDispatcher) MinimumAccessLevelForSet(setType model.InstructionSetType) (model.AccessLevel, bool) {
	level, ok := f.levels[setType]
	return level, ok
}

type fakeTarget struct {
	mu       sync.Mutex
	received []model.AuthorizationToken
}

func (f *fakeTarget) PostAuthorizationToken(token model.AuthorizationToken) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.received = append(f.received, token)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock { return &testClock{now: time.Unix(1_700_000_000, 0)} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCore(t *testing.T, clock *testClock) (*Core, *memUsers, *memDevices) {
	t.Helper()

	users := newMemUsers()
	devices := newMemDevices()
	dispatcher := fakeDispatcher{levels: map[model.InstructionSetType]model.AccessLevel{
		setUserSelf: model.AccessUser,
	}}

	cfg := Config{
		ThreadPoolSize:          4,
		Cache:                   cache.Config{UserEviction: cache.LRU, DeviceEviction: cache.LRU},
		AuthTokenSignatureSize:  16,
		AuthzTokenSignatureSize: 16,
		AuthTokenValidity:       5 * time.Minute,
		UserLockout: LockoutParameters{
			Base: 2, Escalation: EscalationLinear, MaxAttempts: 0, IgnoredAttempts: 1,
		},
		DeviceLockout: LockoutParameters{
			Base: 2, Escalation: EscalationLinear, MaxAttempts: 5, IgnoredAttempts: 1,
		},
		UserHashing: PasswordHashing{
			Current: crypto.HashingConfig{SaltSize: 16, Algo: crypto.SHA256},
		},
		DeviceHashing: PasswordHashing{
			Current: crypto.HashingConfig{SaltSize: 16, Algo: crypto.SHA256},
		},
		Clock: clock.Now,
	}

	core, err := New(cfg, discardLogger(), users, devices, dispatcher)
	require.NoError(t, err)
	core.RegisterSecureSource(sourceSession)

	return core, users, devices
}

func seedUser(t *testing.T, users *memUsers, hashing crypto.HashingConfig, username, password string) model.UserRecord {
	t.Helper()
	blob, err := crypto.HashPasswordBlob(hashing, []byte(password))
	require.NoError(t, err)

	rec := model.UserRecord{
		ID:                 uuid.New(),
		Username:           username,
		PasswordBlob:       blob,
		AccessLevel:        model.AccessUser,
		AuthorizationRules: map[model.InstructionSetType]struct{}{setUserSelf: {}},
	}
	_, err = users.Update(context.Background(), rec)
	require.NoError(t, err)
	return rec
}

func TestHappyUserAuthentication(t *testing.T) {
	clock := newTestClock()
	core, users, _ := newTestCore(t, clock)
	seedUser(t, users, core.cfg.UserHashing.Current, "alice", "P@ssw0rd1")

	future := core.PostAuthenticationRequestUser(context.Background(), UserAuthenticationRequest{
		Username: "alice", Password: "P@ssw0rd1", SourceKind: sourceSession,
	})
	token, err := future.Get(context.Background())
	require.NoError(t, err)

	assert.Equal(t, model.NilDeviceID, token.DeviceID)
	assert.True(t, token.Valid(clock.Now()))

	rec, err := users.GetByUsername(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, uint32(0), rec.FailedAuthAttempts)
	assert.Equal(t, clock.Now(), rec.LastSuccessAuthAt)
}

func TestProgressiveLockout(t *testing.T) {
	clock := newTestClock()
	core, users, _ := newTestCore(t, clock)
	seedUser(t, users, core.cfg.UserHashing.Current, "bob", "correct-horse")

	auth := func(password string) error {
		future := core.PostAuthenticationRequestUser(context.Background(), UserAuthenticationRequest{
			Username: "bob", Password: password, SourceKind: sourceSession,
		})
		_, err := future.Get(context.Background())
		return err
	}

	require.Error(t, auth("wrong-1"))
	require.Error(t, auth("wrong-2"))

	err := auth("wrong-3")
	require.Error(t, err)
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, UserLocked, kind)

	var secErr *Error
	require.ErrorAs(t, err, &secErr)
	assert.GreaterOrEqual(t, secErr.RetryAfter, time.Second)

	clock.Advance(secErr.RetryAfter + time.Millisecond)

	require.NoError(t, auth("correct-horse"))

	rec, err := users.GetByUsername(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, uint32(0), rec.FailedAuthAttempts)
}

func TestPreviousConfigFallback(t *testing.T) {
	clock := newTestClock()
	core, users, _ := newTestCore(t, clock)

	oldCfg := crypto.HashingConfig{SaltSize: 8, Algo: crypto.SHA256}
	rec := seedUser(t, users, oldCfg, "carol", "StaleHash1")

	core.mu.Lock()
	core.cfg.UserHashing.Previous = &oldCfg
	core.cfg.UserHashing.Current = crypto.HashingConfig{SaltSize: 16, Algo: crypto.SHA512}
	core.mu.Unlock()

	future := core.PostAuthenticationRequestUser(context.Background(), UserAuthenticationRequest{
		Username: "carol", Password: "StaleHash1", SourceKind: sourceSession,
	})
	token, err := future.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, rec.ID, token.UserID)
}

func TestAuthorizationDenialPaths(t *testing.T) {
	clock := newTestClock()
	core, users, devices := newTestCore(t, clock)

	target := &fakeTarget{}
	require.NoError(t, core.RegisterSecureTarget(targetSelf, target))
	core.RegisterSecureSource(sourceSession)

	noRules := model.UserRecord{
		ID:                 uuid.New(),
		Username:           "norules",
		AccessLevel:        model.AccessUser,
		AuthorizationRules: map[model.InstructionSetType]struct{}{},
	}
	_, err := users.Update(context.Background(), noRules)
	require.NoError(t, err)

	core.mu.Lock()
	core.tokens[noRules.ID] = []model.AuthenticationToken{{
		ID: 1, ExpirationAt: clock.Now().Add(time.Minute), UserID: noRules.ID, DeviceID: model.NilDeviceID,
	}}
	core.mu.Unlock()

	future := core.PostAuthorizationRequest(context.Background(), AuthorizationRequest{
		UserID: noRules.ID, SourceKind: sourceSession, TargetKind: targetSelf, SetType: setUserSelf,
	})
	_, err = future.Get(context.Background())
	require.Error(t, err)
	kind, _ := KindOf(err)
	assert.Equal(t, InstructionNotAllowed, kind)

	allowed := model.UserRecord{
		ID:                 uuid.New(),
		Username:           "withrules",
		AccessLevel:        model.AccessUser,
		AuthorizationRules: map[model.InstructionSetType]struct{}{setUserSelf: {}},
	}
	_, err = users.Update(context.Background(), allowed)
	require.NoError(t, err)

	lockedDevice := model.DeviceRecord{ID: uuid.New(), Owner: allowed.ID, Locked: true}
	_, err = devices.Update(context.Background(), lockedDevice)
	require.NoError(t, err)

	core.mu.Lock()
	core.tokens[allowed.ID] = []model.AuthenticationToken{{
		ID: 2, ExpirationAt: clock.Now().Add(time.Minute), UserID: allowed.ID, DeviceID: lockedDevice.ID,
	}}
	core.mu.Unlock()

	future = core.PostAuthorizationRequest(context.Background(), AuthorizationRequest{
		UserID: allowed.ID, DeviceID: lockedDevice.ID, SourceKind: sourceSession, TargetKind: targetSelf, SetType: setUserSelf,
	})
	_, err = future.Get(context.Background())
	require.Error(t, err)
	kind, _ = KindOf(err)
	assert.Equal(t, DeviceLocked, kind)
}

func TestLockoutIdempotence(t *testing.T) {
	clock := newTestClock()
	core, users, _ := newTestCore(t, clock)
	rec := seedUser(t, users, core.cfg.UserHashing.Current, "dave", "whatever123")

	updated, err := core.AdminLockUser(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.True(t, updated)

	updated, err = core.AdminLockUser(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.False(t, updated)
}

func TestDelayMonotonicity(t *testing.T) {
	for _, escalation := range []Escalation{EscalationConstant, EscalationLinear, EscalationQuadratic} {
		params := LockoutParameters{Base: 2, Escalation: escalation, IgnoredAttempts: 2}

		zero, _ := params.Delay(2)
		assert.Equal(t, time.Duration(0), zero, "escalation %v", escalation)

		var prev time.Duration
		for n := uint32(3); n < 10; n++ {
			d, _ := params.Delay(n)
			assert.GreaterOrEqual(t, d, prev, "escalation %v attempt %d", escalation, n)
			prev = d
		}
	}
}
