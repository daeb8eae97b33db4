// Package storage defines the persistence interfaces the security core
// consumes (spec §6.1's users/devices operations). This package never
// defines a schema or a concrete database — that is left to an adapter
// such as internal/storage/postgres; the core only depends on these
// interfaces.
package storage

import (
	"context"
	"errors"

	"github.com/synccore/authcore/internal/model"
)

// ErrNotFound is returned by Get-style methods when no record matches.
// Distinguishing "not found" from a transport/driver error lets the
// security core map it to UserNotFound/DeviceNotFound (spec §4.4 step 1)
// rather than a generic failure.
var ErrNotFound = errors.New("storage: record not found")

// Users is the user half of spec §6.1's persistence interface.
type Users interface {
	GetByID(ctx context.Context, id model.UserID) (model.UserRecord, error)
	GetByUsername(ctx context.Context, username string) (model.UserRecord, error)
	Update(ctx context.Context, rec model.UserRecord) (bool, error)
}

// Devices is the device half of spec §6.1's persistence interface.
type Devices interface {
	GetByID(ctx context.Context, id model.DeviceID) (model.DeviceRecord, error)
	Update(ctx context.Context, rec model.DeviceRecord) (bool, error)
}
