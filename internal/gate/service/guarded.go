package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/caredesk/gatekit/internal/gate/domain"
	"github.com/caredesk/gatekit/internal/gate/store"
)

// ErrHostileParam marks a database-bound parameter that failed the injection
// and length checks. The operation it belonged to never reaches the driver.
var ErrHostileParam = errors.New("hostile_parameter")

// dbOp describes one store operation for classification. The query text is
// the shape the classifiers read; the driver binds its own SQL.
type dbOp struct {
	name     string
	query    string
	resource string
}

func (op dbOp) recorded() bool { return IsSensitiveOperation(op.query) }

// details renders the bound parameters for the trail, unless the operation
// touches credential-shaped fields, in which case they stay out of it.
func (op dbOp) details(params []any) string {
	if TouchesSensitiveField(op.query) {
		return op.name + " (params withheld)"
	}
	return fmt.Sprintf("%s %v", op.name, params)
}

var (
	opUserByEmail   = dbOp{"users.get_by_email", "SELECT id, email, name, password_hash FROM users WHERE email = ?", "users"}
	opUserCreate    = dbOp{"users.create", "INSERT INTO users (email, name, password_hash) VALUES (?, ?, ?)", "users"}
	opUserUpdate    = dbOp{"users.update_profile", "UPDATE users SET name = ? WHERE id = ?", "users"}
	opEmailExists   = dbOp{"users.email_exists", "SELECT COUNT(1) FROM users WHERE email = ?", "users"}
	opRevocationAdd = dbOp{"revocations.add", "INSERT INTO revocations (token_id, expires_at) VALUES (?, ?)", "revocations"}
	opRevocationGet = dbOp{"revocations.is_revoked", "SELECT COUNT(1) FROM revocations WHERE token_id = ?", "revocations"}
	opRevocationGC  = dbOp{"revocations.delete_expired", "DELETE FROM revocations WHERE expires_at <= ?", "revocations"}
)

// auditSink is where operation outcomes go. Outside a transaction they land
// in the trail immediately; inside one they queue until commit.
type auditSink interface {
	record(ctx context.Context, ev AuditEvent)
}

// GuardedStore wraps a Store so every operation passes the audit classifiers
// on its way to the driver: bound parameters are validated before the call,
// and destructive operations land in the trail with their outcome.
type GuardedStore struct {
	inner store.Store
	guard *AuditGuard
}

func NewGuardedStore(inner store.Store, guard *AuditGuard) *GuardedStore {
	return &GuardedStore{inner: inner, guard: guard}
}

func (s *GuardedStore) Users() store.Users {
	return &guardedUsers{inner: s.inner.Users(), opGuard: opGuard{guard: s.guard, sink: s}}
}

func (s *GuardedStore) Revocations() store.Revocations {
	return &guardedRevocations{inner: s.inner.Revocations(), opGuard: opGuard{guard: s.guard, sink: s}}
}

// AuditLog is handed through untouched so appending to the trail never
// recurses into the guard.
func (s *GuardedStore) AuditLog() store.AuditLog { return s.inner.AuditLog() }

func (s *GuardedStore) ApplyMigrations() error { return s.inner.ApplyMigrations() }
func (s *GuardedStore) Close() error           { return s.inner.Close() }

func (s *GuardedStore) Ping(ctx context.Context) error { return s.inner.Ping(ctx) }

func (s *GuardedStore) record(ctx context.Context, ev AuditEvent) { s.guard.Record(ctx, ev) }

func (s *GuardedStore) Tx(ctx context.Context) (store.Tx, error) {
	tx, err := s.inner.Tx(ctx)
	if err != nil {
		return nil, err
	}
	return &guardedTx{inner: tx, guard: s.guard}, nil
}

func (s *GuardedStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.Tx(ctx)
	if err != nil {
		return err
	}

	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit()
}

// guardedTx queues trail entries while the transaction is open and flushes
// them after commit, so an append never contends with the write lock the
// transaction holds. Rolled-back work leaves no outcome entries; the
// operations it guarded never happened.
type guardedTx struct {
	inner store.Tx
	guard *AuditGuard

	pending []pendingAudit
}

type pendingAudit struct {
	ctx context.Context
	ev  AuditEvent
}

func (t *guardedTx) record(ctx context.Context, ev AuditEvent) {
	t.pending = append(t.pending, pendingAudit{ctx: ctx, ev: ev})
}

func (t *guardedTx) Users() store.Users {
	return &guardedUsers{inner: t.inner.Users(), opGuard: opGuard{guard: t.guard, sink: t}}
}

func (t *guardedTx) Revocations() store.Revocations {
	return &guardedRevocations{inner: t.inner.Revocations(), opGuard: opGuard{guard: t.guard, sink: t}}
}

func (t *guardedTx) AuditLog() store.AuditLog { return t.inner.AuditLog() }
func (t *guardedTx) ApplyMigrations() error   { return t.inner.ApplyMigrations() }
func (t *guardedTx) Close() error             { return t.inner.Close() }

func (t *guardedTx) Ping(ctx context.Context) error { return t.inner.Ping(ctx) }

func (t *guardedTx) Tx(ctx context.Context) (store.Tx, error) { return t.inner.Tx(ctx) }

func (t *guardedTx) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return t.inner.WithTx(ctx, fn)
}

func (t *guardedTx) Commit() error {
	if err := t.inner.Commit(); err != nil {
		return err
	}
	for _, p := range t.pending {
		t.guard.Record(p.ctx, p.ev)
	}
	t.pending = nil
	return nil
}

func (t *guardedTx) Rollback() error {
	t.pending = nil
	return t.inner.Rollback()
}

// opGuard is the per-repo half of the decorator: check runs before the
// driver call, observe after it.
type opGuard struct {
	guard *AuditGuard
	sink  auditSink
}

// check validates the bound parameters. A rejection is recorded straight
// into the trail, not queued, so a rollback cannot erase the attempt.
func (g opGuard) check(ctx context.Context, op dbOp, params []any) error {
	if ValidateParams(params) {
		return nil
	}
	g.guard.Record(ctx, AuditEvent{
		Action:   op.name,
		Resource: op.resource,
		Details:  "rejected bound parameter",
		Success:  false,
		Error:    ErrHostileParam.Error(),
	})
	return ErrHostileParam
}

func (g opGuard) observe(ctx context.Context, op dbOp, params []any, subjectID *int64, err error) {
	if !op.recorded() {
		return
	}
	ev := AuditEvent{
		SubjectID: subjectID,
		Action:    op.name,
		Resource:  op.resource,
		Details:   op.details(params),
		Success:   err == nil,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	g.sink.record(ctx, ev)
}

type guardedUsers struct {
	inner store.Users
	opGuard
}

func (r *guardedUsers) GetUserByID(ctx context.Context, id int64) (domain.User, error) {
	return r.inner.GetUserByID(ctx, id)
}

func (r *guardedUsers) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	if err := r.check(ctx, opUserByEmail, []any{email}); err != nil {
		return domain.User{}, err
	}
	return r.inner.GetUserByEmail(ctx, email)
}

func (r *guardedUsers) CreateUser(ctx context.Context, u domain.User) (domain.User, error) {
	if err := r.check(ctx, opUserCreate, []any{u.Email, u.Name, u.PasswordHash}); err != nil {
		return domain.User{}, err
	}

	created, err := r.inner.CreateUser(ctx, u)

	var subject *int64
	if err == nil {
		subject = &created.ID
	}
	r.observe(ctx, opUserCreate, []any{u.Email, u.Name}, subject, err)
	return created, err
}

func (r *guardedUsers) UpdateProfile(ctx context.Context, userID int64, name string) error {
	if err := r.check(ctx, opUserUpdate, []any{name}); err != nil {
		return err
	}

	err := r.inner.UpdateProfile(ctx, userID, name)
	r.observe(ctx, opUserUpdate, []any{name, userID}, &userID, err)
	return err
}

func (r *guardedUsers) EmailExists(ctx context.Context, email string) (bool, error) {
	if err := r.check(ctx, opEmailExists, []any{email}); err != nil {
		return false, err
	}
	return r.inner.EmailExists(ctx, email)
}

type guardedRevocations struct {
	inner store.Revocations
	opGuard
}

func (r *guardedRevocations) Add(ctx context.Context, tokenID string, expiresAt time.Time) error {
	if err := r.check(ctx, opRevocationAdd, []any{tokenID}); err != nil {
		return err
	}

	err := r.inner.Add(ctx, tokenID, expiresAt)
	r.observe(ctx, opRevocationAdd, []any{tokenID, expiresAt}, nil, err)
	return err
}

func (r *guardedRevocations) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	if err := r.check(ctx, opRevocationGet, []any{tokenID}); err != nil {
		return false, err
	}
	return r.inner.IsRevoked(ctx, tokenID)
}

func (r *guardedRevocations) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	removed, err := r.inner.DeleteExpired(ctx, now)
	r.observe(ctx, opRevocationGC, []any{now}, nil, err)
	return removed, err
}
