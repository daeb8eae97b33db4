package session

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

	"github.com/synccore/authcore/internal/model"
	"github.com/synccore/authcore/internal/security"
	"github.com/synccore/authcore/internal/workerpool"
)

type fakeAuthCore struct {
	mu       sync.Mutex
	removed  []model.TokenID
	nextID   uint64
	validity time.Duration
	fail     bool
}

func newFakeAuthCore(validity time.Duration) *fakeAuthCore {
	return &fakeAuthCore{validity: validity}
}

func (f *fakeAuthCore) mint(userID model.UserID, deviceID model.DeviceID) model.AuthenticationToken {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	return model.AuthenticationToken{
		ID:           model.TokenID(f.nextID),
		ExpirationAt: time.Now().Add(f.validity),
		UserID:       userID,
		DeviceID:     deviceID,
	}
}

func (f *fakeAuthCore) PostAuthenticationRequestUser(ctx context.Context, req security.UserAuthenticationRequest) *workerpool.Future[model.AuthenticationToken] {
	pool := workerpool.New(4)
	return workerpool.Submit(ctx, pool, func(ctx context.Context) (model.AuthenticationToken, error) {
		if f.fail {
			return model.AuthenticationToken{}, assert.AnError
		}
		return f.mint(uuid.NewSHA1(uuid.NameSpaceOID, []byte(req.Username)), model.NilDeviceID), nil
	})
}

func (f *fakeAuthCore) PostAuthenticationRequestDevice(ctx context.Context, req security.DeviceAuthenticationRequest) *workerpool.Future[model.AuthenticationToken] {
	pool := workerpool.New(4)
	return workerpool.Submit(ctx, pool, func(ctx context.Context) (model.AuthenticationToken, error) {
		if f.fail {
			return model.AuthenticationToken{}, assert.AnError
		}
		return f.mint(uuid.NewSHA1(uuid.NameSpaceOID, req.DeviceID[:]), req.DeviceID), nil
	})
}

func (f *fakeAuthCore) RemoveAuthenticationToken(userID model.UserID, tokenID model.TokenID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, tokenID)
}

type fakeStore struct {
	mu    sync.Mutex
	added map[model.InternalSessionID]model.SessionRecord
}

func newFakeStore() *fakeStore {
	return &fakeStore{added: make(map[model.InternalSessionID]model.SessionRecord)}
}

func (s *fakeStore) Add(_ context.Context, rec model.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.added[rec.ID] = rec
	return nil
}

func (s *fakeStore) Update(_ context.Context, rec model.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.added[rec.ID] = rec
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSessionCounterTyping(t *testing.T) {
	auth := newFakeAuthCore(time.Minute)
	mgr := New(Config{ThreadPoolSize: 4, CommitPolicy: CommitOnUpdate}, discardLogger(), auth, newFakeStore())

	id, err := mgr.OpenUserSession(context.Background(), OpenUserSessionRequest{Username: "alice", Password: "x", Kind: model.SessionCommand})
	require.NoError(t, err)

	require.NoError(t, mgr.AddCommandsSent(context.Background(), id, 3))
	err = mgr.AddDataSent(context.Background(), id, 3)
	require.ErrorIs(t, err, ErrLogicError)
}

func TestReauthStateMachine(t *testing.T) {
	auth := newFakeAuthCore(time.Minute)
	mgr := New(Config{ThreadPoolSize: 4, CommitPolicy: CommitOnReauth}, discardLogger(), auth, newFakeStore())

	id, err := mgr.OpenUserSession(context.Background(), OpenUserSessionRequest{Username: "bob", Password: "x", Kind: model.SessionCommand})
	require.NoError(t, err)

	err = mgr.ReauthenticateUserSession(context.Background(), id, "bob", "x")
	require.ErrorIs(t, err, ErrLogicError, "reauth from a non-waiting state must be rejected")

	s, ok := mgr.lookup(id)
	require.True(t, ok)
	s.mu.Lock()
	s.waitingForReauth = true
	s.mu.Unlock()

	require.NoError(t, mgr.ReauthenticateUserSession(context.Background(), id, "bob", "x"))

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.False(t, s.waitingForReauth)
}

func TestConcurrencyCap(t *testing.T) {
	auth := newFakeAuthCore(time.Minute)
	mgr := New(Config{ThreadPoolSize: 4, MaxSessionsPerUser: 2, CommitPolicy: CommitNever}, discardLogger(), auth, nil)

	_, err := mgr.OpenUserSession(context.Background(), OpenUserSessionRequest{Username: "carol", Password: "x", Kind: model.SessionCommand})
	require.NoError(t, err)
	_, err = mgr.OpenUserSession(context.Background(), OpenUserSessionRequest{Username: "carol", Password: "x", Kind: model.SessionCommand})
	require.NoError(t, err)

	_, err = mgr.OpenUserSession(context.Background(), OpenUserSessionRequest{Username: "carol", Password: "x", Kind: model.SessionCommand})
	require.ErrorIs(t, err, ErrTooManyUserSessions)

	auth.mu.Lock()
	removedCount := len(auth.removed)
	auth.mu.Unlock()
	assert.Equal(t, 1, removedCount, "the rejected session's token must be removed from the core")
}

func TestSessionExpirationSweep(t *testing.T) {
	auth := newFakeAuthCore(50 * time.Millisecond)
	mgr := New(Config{
		ThreadPoolSize: 4,
		CommitPolicy:   CommitNever,
		UnauthGrace:    80 * time.Millisecond,
	}, discardLogger(), auth, nil)

	var reauthFired, expiredFired int32
	var mu sync.Mutex
	var reauthID, expiredID model.InternalSessionID

	mgr.OnReauthenticationRequired(func(id model.InternalSessionID) {
		mu.Lock()
		reauthFired++
		reauthID = id
		mu.Unlock()
	})
	mgr.OnSessionExpired(func(id model.InternalSessionID) {
		mu.Lock()
		expiredFired++
		expiredID = id
		mu.Unlock()
	})

	id, err := mgr.OpenUserSession(context.Background(), OpenUserSessionRequest{Username: "dave", Password: "x", Kind: model.SessionCommand})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return reauthFired == 1 && reauthID == id
	}, 2*time.Second, 10*time.Millisecond, "expected on_reauthentication_required to fire")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return expiredFired == 1 && expiredID == id
	}, 2*time.Second, 10*time.Millisecond, "expected on_session_expired to fire")

	_, ok := mgr.lookup(id)
	assert.False(t, ok, "session must be gone from the active pool after termination")
}
