package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synccore/authcore/internal/model"
	"github.com/synccore/authcore/internal/security"
	"github.com/synccore/authcore/internal/session"
	"github.com/synccore/authcore/internal/workerpool"
)

// stubAuthCore satisfies session.AuthCore with no real credential check —
// enough to drive the HTTP handlers end to end without a Security Core.
type stubAuthCore struct {
	fail bool
}

func (s *stubAuthCore) PostAuthenticationRequestUser(ctx context.Context, req security.UserAuthenticationRequest) *workerpool.Future[model.AuthenticationToken] {
	pool := workerpool.New(2)
	return workerpool.Submit(ctx, pool, func(ctx context.Context) (model.AuthenticationToken, error) {
		if s.fail {
			return model.AuthenticationToken{}, security.ErrUserNotFound
		}
		return model.AuthenticationToken{ID: 1, UserID: model.NilUserID}, nil
	})
}

func (s *stubAuthCore) PostAuthenticationRequestDevice(ctx context.Context, req security.DeviceAuthenticationRequest) *workerpool.Future[model.AuthenticationToken] {
	pool := workerpool.New(2)
	return workerpool.Submit(ctx, pool, func(ctx context.Context) (model.AuthenticationToken, error) {
		return model.AuthenticationToken{ID: 2, UserID: model.NilUserID, DeviceID: req.DeviceID}, nil
	})
}

func (s *stubAuthCore) RemoveAuthenticationToken(userID model.UserID, tokenID model.TokenID) {}

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestLoginReturnsSessionID(t *testing.T) {
	mgr := session.New(session.Config{ThreadPoolSize: 2, CommitPolicy: session.CommitNever}, testLogger(), &stubAuthCore{}, nil)
	srv := NewServer(nil, testLogger(), mgr, nil)

	body, _ := json.Marshal(map[string]any{"username": "alice", "password": "x"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	srv.Router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp loginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.SessionID)
}

func TestLoginRejectsUnknownUser(t *testing.T) {
	mgr := session.New(session.Config{ThreadPoolSize: 2, CommitPolicy: session.CommitNever}, testLogger(), &stubAuthCore{fail: true}, nil)
	srv := NewServer(nil, testLogger(), mgr, nil)

	body, _ := json.Marshal(map[string]any{"username": "ghost", "password": "x"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	srv.Router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealthzWithoutPool(t *testing.T) {
	mgr := session.New(session.Config{ThreadPoolSize: 2, CommitPolicy: session.CommitNever}, testLogger(), &stubAuthCore{}, nil)
	srv := NewServer(nil, testLogger(), mgr, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	srv.Router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
