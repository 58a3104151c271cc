// Package memory is an in-process Store implementation. It backs the unit
// tests and lets the binary run without a database file when persistence is
// not needed.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/caredesk/gatekit/internal/gate/domain"
	"github.com/caredesk/gatekit/internal/gate/store"
)

type Store struct {
	mu sync.Mutex

	users       map[int64]domain.User
	usersByMail map[string]int64
	nextUserID  int64

	revoked map[string]time.Time

	audit []domain.AuditRecord
}

func NewStore() *Store {
	return &Store{
		users:       make(map[int64]domain.User),
		usersByMail: make(map[string]int64),
		nextUserID:  1,
		revoked:     make(map[string]time.Time),
	}
}

func (s *Store) Users() store.Users             { return &usersRepo{s: s} }
func (s *Store) Revocations() store.Revocations { return &revocationsRepo{s: s} }
func (s *Store) AuditLog() store.AuditLog       { return &auditLogRepo{s: s} }

func (s *Store) ApplyMigrations() error { return nil }

func (s *Store) Close() error { return nil }

func (s *Store) Ping(ctx context.Context) error { return nil }

// Tx returns a view over the same maps. The single mutex already serialises
// every operation, so transactional isolation degenerates to atomic
// per-operation access here; good enough for tests and a single process.
func (s *Store) Tx(ctx context.Context) (store.Tx, error) {
	return &memTx{Store: s}, nil
}

func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.Tx(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

type memTx struct {
	*Store
}

func (t *memTx) Commit() error   { return nil }
func (t *memTx) Rollback() error { return nil }

type usersRepo struct {
	s *Store
}

func (r *usersRepo) GetUserByID(_ context.Context, id int64) (domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[id]
	if !ok {
		return domain.User{}, store.ErrNotFound
	}
	return u, nil
}

func (r *usersRepo) GetUserByEmail(_ context.Context, email string) (domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	id, ok := r.s.usersByMail[email]
	if !ok {
		return domain.User{}, store.ErrNotFound
	}
	return r.s.users[id], nil
}

func (r *usersRepo) CreateUser(_ context.Context, u domain.User) (domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.s.usersByMail[u.Email]; exists {
		return domain.User{}, store.ErrAlreadyExists
	}

	now := time.Now().UTC()
	u.ID = r.s.nextUserID
	u.CreatedAt = now
	u.UpdatedAt = now
	r.s.nextUserID++

	r.s.users[u.ID] = u
	r.s.usersByMail[u.Email] = u.ID
	return u, nil
}

func (r *usersRepo) UpdateProfile(_ context.Context, userID int64, name string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[userID]
	if !ok {
		return store.ErrNotFound
	}
	u.Name = name
	u.UpdatedAt = time.Now().UTC()
	r.s.users[userID] = u
	return nil
}

func (r *usersRepo) EmailExists(_ context.Context, email string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	_, ok := r.s.usersByMail[email]
	return ok, nil
}

type revocationsRepo struct {
	s *Store
}

func (r *revocationsRepo) Add(_ context.Context, tokenID string, expiresAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.revoked[tokenID]; !ok {
		r.s.revoked[tokenID] = expiresAt
	}
	return nil
}

func (r *revocationsRepo) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	_, ok := r.s.revoked[tokenID]
	return ok, nil
}

func (r *revocationsRepo) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	removed := 0
	for id, expiresAt := range r.s.revoked {
		if !expiresAt.After(now) {
			delete(r.s.revoked, id)
			removed++
		}
	}
	return removed, nil
}

type auditLogRepo struct {
	s *Store
}

func (r *auditLogRepo) Append(_ context.Context, rec domain.AuditRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.audit = append(r.s.audit, rec)
	return nil
}

func (r *auditLogRepo) ListBySubject(_ context.Context, subjectID int64, limit int) ([]domain.AuditRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []domain.AuditRecord
	for i := len(r.s.audit) - 1; i >= 0 && len(out) < limit; i-- {
		rec := r.s.audit[i]
		if rec.SubjectID != nil && *rec.SubjectID == subjectID {
			out = append(out, rec)
		}
	}
	return out, nil
}
