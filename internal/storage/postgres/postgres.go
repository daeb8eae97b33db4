// Package postgres is a pgxpool-backed implementation of
// internal/storage's Users/Devices interfaces and internal/session's
// Store interface — the spec §6.1 "persistence interface (consumed, not
// defined here)" adapter, grounded on the teacher repo's raw
// pgx/pgxpool usage (internal/storage/db_context.go) rather than sqlc,
// since the Security Core's persistence surface here is three narrow
// get/update operations, not a full query layer.
package postgres

import (
	"context"
	"errors"
	"net"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/synccore/authcore/internal/model"
	"github.com/synccore/authcore/internal/storage"
)

// Store bundles the three pgxpool-backed adapters this package exposes.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an already-connected pool. Callers own the pool's lifecycle
// (pgxpool.New / pool.Close) — this package only ever runs queries
// against it.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Users returns the storage.Users view over this store.
func (s *Store) Users() storage.Users { return usersAdapter{s.pool} }

// Devices returns the storage.Devices view over this store.
func (s *Store) Devices() storage.Devices { return devicesAdapter{s.pool} }

// Sessions returns the session.Store view over this store (defined as a
// plain interface locally to avoid importing internal/session, which
// would invert the dependency direction internal/session already has on
// this package's sibling internal/storage).
func (s *Store) Sessions() SessionStore { return sessionsAdapter{s.pool} }

// SessionStore mirrors internal/session.Store's method set so this
// package can implement it without importing internal/session (which
// itself never imports internal/storage/postgres) — callers assign a
// *Store's Sessions() result directly where an internal/session.Store is
// expected; Go's structural interface satisfaction does the rest.
type SessionStore interface {
	Add(ctx context.Context, rec model.SessionRecord) error
	Update(ctx context.Context, rec model.SessionRecord) error
}

type usersAdapter struct{ pool *pgxpool.Pool }

const userColumns = `id, username, password_blob, access_level, authorization_rules, locked, failed_auth_attempts, last_failed_auth_at, last_success_auth_at, force_password_reset`

func (a usersAdapter) GetByID(ctx context.Context, id model.UserID) (model.UserRecord, error) {
	row := a.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (a usersAdapter) GetByUsername(ctx context.Context, username string) (model.UserRecord, error) {
	row := a.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
	return scanUser(row)
}

func (a usersAdapter) Update(ctx context.Context, rec model.UserRecord) (bool, error) {
	tag, err := a.pool.Exec(ctx, `
		UPDATE users SET
			password_blob = $2,
			access_level = $3,
			authorization_rules = $4,
			locked = $5,
			failed_auth_attempts = $6,
			last_failed_auth_at = $7,
			last_success_auth_at = $8,
			force_password_reset = $9
		WHERE id = $1`,
		rec.ID, rec.PasswordBlob, rec.AccessLevel, ruleSetToSlice(rec.AuthorizationRules), rec.Locked,
		rec.FailedAuthAttempts, rec.LastFailedAuthAt, rec.LastSuccessAuthAt, rec.ForcePasswordReset)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func scanUser(row pgx.Row) (model.UserRecord, error) {
	var rec model.UserRecord
	var rules []string
	err := row.Scan(&rec.ID, &rec.Username, &rec.PasswordBlob, &rec.AccessLevel, &rules, &rec.Locked,
		&rec.FailedAuthAttempts, &rec.LastFailedAuthAt, &rec.LastSuccessAuthAt, &rec.ForcePasswordReset)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.UserRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return model.UserRecord{}, err
	}
	rec.AuthorizationRules = sliceToRuleSet(rules)
	return rec, nil
}

func ruleSetToSlice(rules map[model.InstructionSetType]struct{}) []string {
	out := make([]string, 0, len(rules))
	for r := range rules {
		out = append(out, string(r))
	}
	return out
}

func sliceToRuleSet(rules []string) map[model.InstructionSetType]struct{} {
	out := make(map[model.InstructionSetType]struct{}, len(rules))
	for _, r := range rules {
		out[model.InstructionSetType(r)] = struct{}{}
	}
	return out
}

type devicesAdapter struct{ pool *pgxpool.Pool }

const deviceColumns = `id, owner, password_blob, transfer_type, ip_address, ip_port, locked, failed_auth_attempts, last_failed_auth_at, last_success_auth_at, info`

func (a devicesAdapter) GetByID(ctx context.Context, id model.DeviceID) (model.DeviceRecord, error) {
	row := a.pool.QueryRow(ctx, `SELECT `+deviceColumns+` FROM devices WHERE id = $1`, id)

	var rec model.DeviceRecord
	var ip net.IP
	err := row.Scan(&rec.ID, &rec.Owner, &rec.PasswordBlob, &rec.TransferType, &ip, &rec.IPPort, &rec.Locked,
		&rec.FailedAuthAttempts, &rec.LastFailedAuthAt, &rec.LastSuccessAuthAt, &rec.Info)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.DeviceRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return model.DeviceRecord{}, err
	}
	rec.IPAddress = ip
	return rec, nil
}

func (a devicesAdapter) Update(ctx context.Context, rec model.DeviceRecord) (bool, error) {
	tag, err := a.pool.Exec(ctx, `
		UPDATE devices SET
			password_blob = $2,
			transfer_type = $3,
			ip_address = $4,
			ip_port = $5,
			locked = $6,
			failed_auth_attempts = $7,
			last_failed_auth_at = $8,
			last_success_auth_at = $9,
			info = $10
		WHERE id = $1`,
		rec.ID, rec.PasswordBlob, rec.TransferType, rec.IPAddress, rec.IPPort, rec.Locked,
		rec.FailedAuthAttempts, rec.LastFailedAuthAt, rec.LastSuccessAuthAt, rec.Info)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

type sessionsAdapter struct{ pool *pgxpool.Pool }

func (a sessionsAdapter) Add(ctx context.Context, rec model.SessionRecord) error {
	_, err := a.pool.Exec(ctx, `
		INSERT INTO sessions (
			id, kind, user_id, device_id, token_id, token_expiration_at,
			persistent, waiting_for_reauth, waiting_for_termination,
			data_sent, data_received, commands_sent, commands_received, last_activity_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		rec.ID, rec.Kind, rec.UserID, nullDevice(rec.DeviceID), rec.TokenID, rec.TokenExpirationAt,
		rec.Persistent, rec.WaitingForReauth, rec.WaitingForTermination,
		rec.DataSent, rec.DataReceived, rec.CommandsSent, rec.CommandsReceived, rec.LastActivityAt)
	return err
}

func (a sessionsAdapter) Update(ctx context.Context, rec model.SessionRecord) error {
	_, err := a.pool.Exec(ctx, `
		UPDATE sessions SET
			token_id = $2,
			token_expiration_at = $3,
			persistent = $4,
			waiting_for_reauth = $5,
			waiting_for_termination = $6,
			data_sent = $7,
			data_received = $8,
			commands_sent = $9,
			commands_received = $10,
			last_activity_at = $11
		WHERE id = $1`,
		rec.ID, rec.TokenID, rec.TokenExpirationAt, rec.Persistent, rec.WaitingForReauth, rec.WaitingForTermination,
		rec.DataSent, rec.DataReceived, rec.CommandsSent, rec.CommandsReceived, rec.LastActivityAt)
	return err
}

func nullDevice(id model.DeviceID) *model.DeviceID {
	if id == model.NilDeviceID {
		return nil
	}
	return &id
}
