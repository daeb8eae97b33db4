package security

import (
	"context"

	"github.com/synccore/authcore/internal/model"
)

// AdminLockUser force-locks a user record, the administrative
// counterpart to the automatic lock-out §4.4 step 4 flips on
// max-attempts exhaustion. Idempotent:
// locking an already-locked user is a no-op reporting updated=false
// (spec §8 "Lock-out idempotence").
func (c *Core) AdminLockUser(ctx context.Context, userID model.UserID) (updated bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, cerr := c.cache.User(ctx, userID)
	if cerr != nil {
		return false, newError(UserNotFound, "user %s not found: %v", userID, cerr)
	}

	if rec.Locked {
		return false, nil
	}

	rec.Locked = true
	if _, uerr := c.users.Update(ctx, rec); uerr != nil {
		return false, c.fail(ctx, LogicError, uerr, "persisting user lock")
	}
	c.cache.EvictUser(rec.ID)

	return true, nil
}

// AdminLockDevice is AdminLockUser's device counterpart.
func (c *Core) AdminLockDevice(ctx context.Context, deviceID model.DeviceID) (updated bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, cerr := c.cache.Device(ctx, deviceID)
	if cerr != nil {
		return false, newError(DeviceNotFound, "device %s not found: %v", deviceID, cerr)
	}

	if rec.Locked {
		return false, nil
	}

	rec.Locked = true
	if _, uerr := c.devices.Update(ctx, rec); uerr != nil {
		return false, c.fail(ctx, LogicError, uerr, "persisting device lock")
	}
	c.cache.EvictDevice(rec.ID)

	return true, nil
}
