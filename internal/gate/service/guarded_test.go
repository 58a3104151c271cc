package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/caredesk/gatekit/internal/gate/domain"
	"github.com/caredesk/gatekit/internal/gate/store"
	"github.com/caredesk/gatekit/internal/gate/store/drivers/memory"
)

// trailSink captures every appended record, including subject-less ones the
// memory store cannot list back.
type trailSink struct {
	mu   sync.Mutex
	recs []domain.AuditRecord
}

func (s *trailSink) Append(_ context.Context, rec domain.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, rec)
	return nil
}

func (s *trailSink) ListBySubject(_ context.Context, subjectID int64, limit int) ([]domain.AuditRecord, error) {
	return nil, nil
}

func (s *trailSink) byAction(action string) []domain.AuditRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.AuditRecord
	for _, rec := range s.recs {
		if rec.Action == action {
			out = append(out, rec)
		}
	}
	return out
}

func newGuardedStore() (*GuardedStore, *trailSink) {
	sink := &trailSink{}
	return NewGuardedStore(memory.NewStore(), NewAuditGuard(sink, false)), sink
}

func TestGuardedStoreParamValidation(t *testing.T) {
	ctx := context.Background()
	gs, sink := newGuardedStore()

	t.Run("hostile parameter never reaches the driver", func(t *testing.T) {
		_, err := gs.Users().GetUserByEmail(ctx, "x' UNION SELECT password_hash FROM users --")
		require.ErrorIs(t, err, ErrHostileParam)

		recs := sink.byAction("users.get_by_email")
		require.Len(t, recs, 1)
		require.False(t, recs[0].Success)
	})

	t.Run("revocation lookups are checked too", func(t *testing.T) {
		_, err := gs.Revocations().IsRevoked(ctx, "abc'; DROP TABLE revocations")
		require.ErrorIs(t, err, ErrHostileParam)
	})

	t.Run("benign parameters pass through", func(t *testing.T) {
		_, err := gs.Users().GetUserByEmail(ctx, "jo@example.com")
		require.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestGuardedStoreTrail(t *testing.T) {
	ctx := context.Background()
	gs, sink := newGuardedStore()

	user, err := gs.Users().CreateUser(ctx, domain.User{
		Email: "jo@example.com", Name: "Jo Citizen", PasswordHash: "x",
	})
	require.NoError(t, err)

	t.Run("writes land in the trail with the subject", func(t *testing.T) {
		recs := sink.byAction("users.create")
		require.Len(t, recs, 1)
		require.True(t, recs[0].Success)
		require.NotNil(t, recs[0].SubjectID)
		require.Equal(t, user.ID, *recs[0].SubjectID)
	})

	t.Run("credential-shaped writes withhold their parameters", func(t *testing.T) {
		recs := sink.byAction("users.create")
		require.Contains(t, recs[0].Details, "params withheld")
		require.NotContains(t, recs[0].Details, "jo@example.com")
	})

	t.Run("plain reads leave no entries", func(t *testing.T) {
		before := len(sink.byAction("users.get_by_email"))

		_, err := gs.Users().GetUserByEmail(ctx, "jo@example.com")
		require.NoError(t, err)

		require.Len(t, sink.byAction("users.get_by_email"), before)
	})

	t.Run("revocation adds are recorded", func(t *testing.T) {
		require.NoError(t, gs.Revocations().Add(ctx, "deadbeef", time.Now().Add(time.Hour)))

		recs := sink.byAction("revocations.add")
		require.Len(t, recs, 1)
		require.True(t, recs[0].Success)
	})
}

func TestGuardedStoreTx(t *testing.T) {
	ctx := context.Background()
	gs, sink := newGuardedStore()

	t.Run("rolled back work leaves no outcome entries", func(t *testing.T) {
		boom := errors.New("boom")
		err := gs.WithTx(ctx, func(tx store.Tx) error {
			_, err := tx.Users().CreateUser(ctx, domain.User{
				Email: "doomed@example.com", Name: "Doomed", PasswordHash: "x",
			})
			require.NoError(t, err)
			return boom
		})
		require.ErrorIs(t, err, boom)
		require.Empty(t, sink.byAction("users.create"))
	})

	t.Run("entries flush after commit", func(t *testing.T) {
		err := gs.WithTx(ctx, func(tx store.Tx) error {
			_, err := tx.Users().CreateUser(ctx, domain.User{
				Email: "jo@example.com", Name: "Jo Citizen", PasswordHash: "x",
			})
			return err
		})
		require.NoError(t, err)
		require.Len(t, sink.byAction("users.create"), 1)
	})

	t.Run("rejections inside a transaction survive the rollback", func(t *testing.T) {
		err := gs.WithTx(ctx, func(tx store.Tx) error {
			_, err := tx.Users().CreateUser(ctx, domain.User{
				Email: "x' UNION SELECT password_hash FROM users --", Name: "Evil", PasswordHash: "x",
			})
			return err
		})
		require.ErrorIs(t, err, ErrHostileParam)

		recs := sink.byAction("users.create")
		require.Len(t, recs, 2)
		require.False(t, recs[1].Success)
	})
}
