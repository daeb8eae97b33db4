package security

import (
	"context"

	"github.com/synccore/authcore/internal/crypto"
	"github.com/synccore/authcore/internal/model"
	"github.com/synccore/authcore/internal/storage"
	"github.com/synccore/authcore/internal/workerpool"
	"github.com/synccore/authcore/pkg/logger"
)

// UserAuthenticationRequest is spec §4.4's user-based authentication
// request.
type UserAuthenticationRequest struct {
	Username   string
	Password   string
	SourceKind ComponentKind
}

// DeviceAuthenticationRequest is spec §4.4's device-based authentication
// request.
type DeviceAuthenticationRequest struct {
	DeviceID   model.DeviceID
	Password   string
	SourceKind ComponentKind
}

// PostAuthenticationRequestUser queues a user authentication request and
// returns a future for its AuthenticationToken (spec §4.4).
func (c *Core) PostAuthenticationRequestUser(ctx context.Context, req UserAuthenticationRequest) *workerpool.Future[model.AuthenticationToken] {
	return workerpool.Submit(ctx, c.pool, func(ctx context.Context) (model.AuthenticationToken, error) {
		return c.authenticateUser(ctx, req)
	})
}

// PostAuthenticationRequestDevice queues a device authentication request.
func (c *Core) PostAuthenticationRequestDevice(ctx context.Context, req DeviceAuthenticationRequest) *workerpool.Future[model.AuthenticationToken] {
	return workerpool.Submit(ctx, c.pool, func(ctx context.Context) (model.AuthenticationToken, error) {
		return c.authenticateDevice(ctx, req)
	})
}

func (c *Core) checkSourceKind(kind ComponentKind) error {
	c.mu.Lock()
	_, ok := c.sources[kind]
	c.mu.Unlock()

	if !ok {
		return newError(LogicError, "source kind %q is not registered", kind)
	}
	return nil
}

func (c *Core) authenticateUser(ctx context.Context, req UserAuthenticationRequest) (model.AuthenticationToken, error) {
	if err := c.checkSourceKind(req.SourceKind); err != nil {
		return model.AuthenticationToken{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	rec, err := c.lookupUserByUsernameLocked(ctx, req.Username)
	if err != nil {
		return model.AuthenticationToken{}, err
	}

	// Username lookups bypass the UserID-keyed entity cache by
	// necessity (the ID isn't known yet); route the resolved ID through
	// it now so later ID-based lookups (authorization, device ownership
	// checks) have a warm entry (spec §4.4 step 1 "cache-through").
	if cached, cerr := c.cache.User(ctx, rec.ID); cerr == nil {
		rec = cached
	}

	if rec.Locked {
		return model.AuthenticationToken{}, newError(UserLocked, "user %q is locked", rec.Username)
	}

	now := c.now()
	if remaining, locked, overflowed := c.cfg.UserLockout.LockedOut(rec.FailedAuthAttempts, rec.LastFailedAuthAt, now); locked {
		if overflowed {
			logger.ReportFault(ctx, c.log, "lockout delay saturated", ErrOverflow, "user_id", rec.ID)
		}
		return model.AuthenticationToken{}, &Error{kind: UserLocked, msg: "failed-attempt delay still in effect", RetryAfter: remaining}
	}

	ok, usedPrevious, err := verifyPassword(c.cfg.UserHashing, rec.PasswordBlob, []byte(req.Password))
	if err != nil {
		return model.AuthenticationToken{}, c.fail(ctx, LogicError, err, "verifying user password")
	}

	if !ok {
		rec.LastFailedAuthAt = now
		rec.FailedAuthAttempts++
		if c.cfg.UserLockout.ExceedsMaxAttempts(rec.FailedAuthAttempts - 1) {
			rec.Locked = true
		}
		if _, uerr := c.users.Update(ctx, rec); uerr != nil {
			c.log.Error("persisting failed user auth attempt", "error", uerr, "user_id", rec.ID)
		}
		c.cache.EvictUser(rec.ID)
		return model.AuthenticationToken{}, newError(InvalidPassword, "password does not match for user %q", rec.Username)
	}

	if usedPrevious {
		c.log.Warn("user password verified against previous hashing config", "user_id", rec.ID)
	}

	if rec.AccessLevel != model.AccessUser && rec.AccessLevel != model.AccessAdmin {
		return model.AuthenticationToken{}, newError(InsufficientUserAccess, "user %q has no usable access level", rec.Username)
	}
	if len(rec.AuthorizationRules) == 0 {
		return model.AuthenticationToken{}, newError(InsufficientUserAccess, "user %q has no authorization rules configured", rec.Username)
	}

	rec.LastSuccessAuthAt = now
	rec.FailedAuthAttempts = 0
	if _, err := c.users.Update(ctx, rec); err != nil {
		return model.AuthenticationToken{}, c.fail(ctx, LogicError, err, "persisting successful user auth")
	}
	c.cache.EvictUser(rec.ID)

	token := model.AuthenticationToken{
		ID:           c.nextTokenIDValue(),
		ExpirationAt: now.Add(c.cfg.AuthTokenValidity),
		UserID:       rec.ID,
		DeviceID:     model.NilDeviceID,
	}
	sig, err := crypto.RandomSalt(c.cfg.AuthTokenSignatureSize)
	if err != nil {
		return model.AuthenticationToken{}, c.fail(ctx, LogicError, err, "generating authentication token signature")
	}
	token.Signature = sig

	c.tokens[rec.ID] = append(c.tokens[rec.ID], token)

	return token, nil
}

func (c *Core) authenticateDevice(ctx context.Context, req DeviceAuthenticationRequest) (model.AuthenticationToken, error) {
	if err := c.checkSourceKind(req.SourceKind); err != nil {
		return model.AuthenticationToken{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	rec, err := c.cache.Device(ctx, req.DeviceID)
	if err != nil {
		return model.AuthenticationToken{}, newError(DeviceNotFound, "device %s not found: %v", req.DeviceID, err)
	}

	if rec.Locked {
		return model.AuthenticationToken{}, newError(DeviceLocked, "device %s is locked", rec.ID)
	}

	now := c.now()
	if remaining, locked, overflowed := c.cfg.DeviceLockout.LockedOut(rec.FailedAuthAttempts, rec.LastFailedAuthAt, now); locked {
		if overflowed {
			logger.ReportFault(ctx, c.log, "lockout delay saturated", ErrOverflow, "device_id", rec.ID)
		}
		return model.AuthenticationToken{}, &Error{kind: DeviceLocked, msg: "failed-attempt delay still in effect", RetryAfter: remaining}
	}

	ok, usedPrevious, err := verifyPassword(c.cfg.DeviceHashing, rec.PasswordBlob, []byte(req.Password))
	if err != nil {
		return model.AuthenticationToken{}, c.fail(ctx, LogicError, err, "verifying device password")
	}

	if !ok {
		rec.LastFailedAuthAt = now
		rec.FailedAuthAttempts++
		if c.cfg.DeviceLockout.ExceedsMaxAttempts(rec.FailedAuthAttempts - 1) {
			rec.Locked = true
		}
		if _, uerr := c.devices.Update(ctx, rec); uerr != nil {
			c.log.Error("persisting failed device auth attempt", "error", uerr, "device_id", rec.ID)
		}
		c.cache.EvictDevice(rec.ID)
		return model.AuthenticationToken{}, newError(InvalidPassword, "password does not match for device %s", rec.ID)
	}

	if usedPrevious {
		c.log.Warn("device password verified against previous hashing config", "device_id", rec.ID)
	}

	rec.LastSuccessAuthAt = now
	rec.FailedAuthAttempts = 0
	if _, err := c.devices.Update(ctx, rec); err != nil {
		return model.AuthenticationToken{}, c.fail(ctx, LogicError, err, "persisting successful device auth")
	}
	c.cache.EvictDevice(rec.ID)

	token := model.AuthenticationToken{
		ID:           c.nextTokenIDValue(),
		ExpirationAt: now.Add(c.cfg.AuthTokenValidity),
		UserID:       rec.Owner,
		DeviceID:     rec.ID,
	}
	sig, err := crypto.RandomSalt(c.cfg.AuthTokenSignatureSize)
	if err != nil {
		return model.AuthenticationToken{}, c.fail(ctx, LogicError, err, "generating authentication token signature")
	}
	token.Signature = sig

	c.tokens[rec.Owner] = append(c.tokens[rec.Owner], token)

	return token, nil
}

// lookupUserByUsernameLocked resolves a user by username. Must be called
// while holding c.mu. The entity cache is keyed by UserID, so a username
// lookup goes straight to persistence; the resulting record is then
// pushed into the cache so subsequent ID-keyed lookups (e.g. by the
// dispatcher/authorization path) hit.
func (c *Core) lookupUserByUsernameLocked(ctx context.Context, username string) (model.UserRecord, error) {
	rec, err := c.users.GetByUsername(ctx, username)
	if err != nil {
		if err == storage.ErrNotFound {
			return model.UserRecord{}, newError(UserNotFound, "no user named %q", username)
		}
		return model.UserRecord{}, c.fail(ctx, LogicError, err, "looking up user %q", username)
	}
	return rec, nil
}

// verifyPassword implements spec §4.2's current/previous fallback: try
// current first, then previous if present. usedPrevious reports which
// path succeeded, for the warning log spec §4.4 step 4 calls for.
func verifyPassword(hashing PasswordHashing, blob, raw []byte) (ok bool, usedPrevious bool, err error) {
	ok, err = crypto.VerifyPasswordBlob(hashing.Current, blob, raw)
	if err != nil && err != crypto.ErrBlobTooShort {
		return false, false, err
	}
	if ok {
		return true, false, nil
	}

	if hashing.Previous == nil {
		return false, false, nil
	}

	ok, err = crypto.VerifyPasswordBlob(*hashing.Previous, blob, raw)
	if err != nil && err != crypto.ErrBlobTooShort {
		return false, false, err
	}
	return ok, ok, nil
}
