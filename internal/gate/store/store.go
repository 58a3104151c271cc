package store

import (
	"context"
	"errors"
	"time"

	"github.com/caredesk/gatekit/internal/gate/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite, memory)
// implement this. It exposes sub-repositories to keep concerns tidy and
// testable.
type Store interface {
	Users() Users
	Revocations() Revocations
	AuditLog() AuditLog

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	// GetUserByID returns a user by id.
	GetUserByID(ctx context.Context, id int64) (domain.User, error)

	// GetUserByEmail is used during login and refresh.
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	// CreateUser inserts a new user and returns it with the assigned id.
	CreateUser(ctx context.Context, u domain.User) (domain.User, error)

	// UpdateProfile mutates the display name and bumps updated_at.
	UpdateProfile(ctx context.Context, userID int64, name string) error

	// EmailExists reports whether an account already owns the address.
	EmailExists(ctx context.Context, email string) (bool, error)
}

type Revocations interface {
	// Add marks a token id revoked until its natural expiry, after which
	// housekeeping may drop the entry.
	Add(ctx context.Context, tokenID string, expiresAt time.Time) error

	// IsRevoked reports whether the token id has been revoked.
	IsRevoked(ctx context.Context, tokenID string) (bool, error)

	// DeleteExpired drops entries whose tokens have expired on their own.
	// Returns the number of entries removed.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

type AuditLog interface {
	// Append writes one record to the trail. The trail is append-only;
	// there is deliberately no update or delete.
	Append(ctx context.Context, rec domain.AuditRecord) error

	// ListBySubject returns the newest records for a subject, capped at limit.
	ListBySubject(ctx context.Context, subjectID int64, limit int) ([]domain.AuditRecord, error)
}
