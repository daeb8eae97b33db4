package security

import (
	"context"

	"github.com/synccore/authcore/internal/crypto"
	"github.com/synccore/authcore/internal/model"
	"github.com/synccore/authcore/internal/workerpool"
)

// AuthorizationRequest is spec §4.4's per-instruction authorization
// request: the dispatcher (or whoever fields the instruction) asks for a
// one-shot AuthorizationToken on behalf of a previously-authenticated
// user, optionally scoped to one of their devices.
type AuthorizationRequest struct {
	UserID     model.UserID
	DeviceID   model.DeviceID // model.NilDeviceID when not device-scoped
	SourceKind ComponentKind
	TargetKind ComponentKind
	SetType    model.InstructionSetType
}

// PostAuthorizationRequest queues an authorization request and returns a
// future for the resulting one-shot AuthorizationToken (spec §4.4).
func (c *Core) PostAuthorizationRequest(ctx context.Context, req AuthorizationRequest) *workerpool.Future[model.AuthorizationToken] {
	return workerpool.Submit(ctx, c.pool, func(ctx context.Context) (model.AuthorizationToken, error) {
		return c.authorize(ctx, req)
	})
}

func (c *Core) authorize(ctx context.Context, req AuthorizationRequest) (model.AuthorizationToken, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Step 1: look up source and target components by kind.
	if _, ok := c.sources[req.SourceKind]; !ok {
		return model.AuthorizationToken{}, newError(LogicError, "source kind %q is not registered", req.SourceKind)
	}
	target, ok := c.targets[req.TargetKind]
	if !ok {
		return model.AuthorizationToken{}, newError(LogicError, "target kind %q is not registered", req.TargetKind)
	}

	// Step 2: fetch the user record (cache-through).
	user, err := c.cache.User(ctx, req.UserID)
	if err != nil {
		return model.AuthorizationToken{}, newError(UserNotFound, "user %s not found: %v", req.UserID, err)
	}

	// Step 3: live, unexpired authentication token on file.
	if !c.tokenIsLiveLocked(req.UserID, req.DeviceID) {
		return model.AuthorizationToken{}, newError(UserNotAuthenticated, "no live authentication token for user %s", req.UserID)
	}

	// Step 4: minimum access level for the instruction's set type.
	minLevel, ok := c.dispatcher.MinimumAccessLevelForSet(req.SetType)
	if !ok {
		return model.AuthorizationToken{}, newError(LogicError, "set type %q has no registered target", req.SetType)
	}
	if user.AccessLevel < minLevel {
		return model.AuthorizationToken{}, newError(InsufficientUserAccess, "user %s access level %v below required %v", req.UserID, user.AccessLevel, minLevel)
	}

	// Step 5: user's authorization rules must include the set type,
	// evaluated by the casbin-backed rbac.Enforcer over the user's
	// AuthorizationRules set rather than a direct map lookup. The name
	// and password rule sets play no part in this check.
	allowed, err := c.rbac.Authorized(req.UserID.String(), req.SetType, user.AuthorizationRules)
	if err != nil {
		return model.AuthorizationToken{}, c.fail(ctx, LogicError, err, "evaluating authorization rules for user %s", req.UserID)
	}
	if !allowed {
		return model.AuthorizationToken{}, newError(InstructionNotAllowed, "user %s is not authorized for set %q", req.UserID, req.SetType)
	}

	// Step 6: device ownership/lock checks, if device-scoped.
	if req.DeviceID != model.NilDeviceID {
		device, err := c.cache.Device(ctx, req.DeviceID)
		if err != nil {
			return model.AuthorizationToken{}, newError(DeviceNotFound, "device %s not found: %v", req.DeviceID, err)
		}
		if device.Owner != req.UserID {
			return model.AuthorizationToken{}, newError(UnexpectedDevice, "device %s is not owned by user %s", req.DeviceID, req.UserID)
		}
		if device.Locked {
			return model.AuthorizationToken{}, newError(DeviceLocked, "device %s is locked", req.DeviceID)
		}
	}

	// Step 7: mint and deliver the one-shot token before resolving.
	sig, err := crypto.RandomSalt(c.cfg.AuthzTokenSignatureSize)
	if err != nil {
		return model.AuthorizationToken{}, c.fail(ctx, LogicError, err, "generating authorization token signature")
	}

	token := model.AuthorizationToken{
		ID:        c.nextTokenIDValue(),
		Signature: sig,
		SetType:   req.SetType,
		UserID:    req.UserID,
		DeviceID:  req.DeviceID,
	}

	target.PostAuthorizationToken(token)

	return token, nil
}

// tokenIsLiveLocked is TokenIsLive's body, for callers already holding
// c.mu (the authorization path runs entirely under the primary lock).
func (c *Core) tokenIsLiveLocked(userID model.UserID, deviceID model.DeviceID) bool {
	now := c.now()
	for _, t := range c.tokens[userID] {
		if deviceID != model.NilDeviceID && t.DeviceID != deviceID {
			continue
		}
		if t.Valid(now) {
			return true
		}
	}
	return false
}
