package service

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/caredesk/gatekit/internal/gate/store/drivers/memory"
	"github.com/caredesk/gatekit/pkg/slogx"
)

func TestIsSensitiveOperation(t *testing.T) {
	sensitive := []string{
		"DELETE FROM users WHERE id = ?",
		"drop table audit_log",
		"TRUNCATE sessions",
		"ALTER TABLE users ADD COLUMN x",
		"GRANT ALL ON db.* TO 'x'",
		"INSERT INTO users VALUES (?)",
		"UPDATE users SET name = ?",
		"SELECT * FROM users",
		"SELECT id FROM a UNION SELECT id FROM b",
		"EXEC sp_dump",
	}
	for _, q := range sensitive {
		require.True(t, IsSensitiveOperation(q), q)
	}

	benign := []string{
		"SELECT id, email FROM users WHERE id = ?",
		"SELECT COUNT(1) FROM sessions WHERE user_id = ?",
	}
	for _, q := range benign {
		require.False(t, IsSensitiveOperation(q), q)
	}
}

func TestTouchesSensitiveField(t *testing.T) {
	require.True(t, TouchesSensitiveField("SELECT password_hash FROM users"))
	require.True(t, TouchesSensitiveField("select Token_Id from revocations"))
	require.True(t, TouchesSensitiveField("SELECT api_secret FROM integrations"))
	require.False(t, TouchesSensitiveField("SELECT id, email, name FROM users"))
}

func TestValidateParams(t *testing.T) {
	t.Run("benign values pass", func(t *testing.T) {
		require.True(t, ValidateParams([]any{"jo@example.com", int64(7), true, "Jo Citizen"}))
	})

	t.Run("injection fragments fail", func(t *testing.T) {
		bad := []string{
			"x' UNION SELECT password FROM users --",
			"<script>alert(1)</script>",
			"javascript:alert(1)",
			"1; DROP TABLE users",
			"/* comment smuggling */",
		}
		for _, p := range bad {
			require.False(t, ValidateParams([]any{p}), p)
		}
	})

	t.Run("oversize values fail", func(t *testing.T) {
		require.False(t, ValidateParams([]any{strings.Repeat("a", MaxParamLength+1)}))
		require.True(t, ValidateParams([]any{strings.Repeat("a", MaxParamLength)}))
	})

	t.Run("non-strings are not inspected", func(t *testing.T) {
		require.True(t, ValidateParams([]any{12345, 3.14, nil}))
	})
}

func TestIsSuspiciousIP(t *testing.T) {
	require.True(t, IsSuspiciousIP("127.0.0.1"))
	require.True(t, IsSuspiciousIP("169.254.10.2"))
	require.True(t, IsSuspiciousIP("::1"))
	require.False(t, IsSuspiciousIP("203.0.113.9"))
}

func TestAuditGuardAllow(t *testing.T) {
	ctx := context.Background()
	st := memory.NewStore()
	g := NewAuditGuard(st.AuditLog(), false)

	t.Run("budget is per subject and operation", func(t *testing.T) {
		for i := 0; i < DefaultOperationPolicy.Max; i++ {
			require.True(t, g.Allow(ctx, 1, "user.delete"))
		}
		require.False(t, g.Allow(ctx, 1, "user.delete"))

		// A different subject and a different operation are unaffected.
		require.True(t, g.Allow(ctx, 2, "user.delete"))
		require.True(t, g.Allow(ctx, 1, "user.export"))
	})
}

func TestAuditGuardRecord(t *testing.T) {
	ctx := context.Background()
	st := memory.NewStore()
	g := NewAuditGuard(st.AuditLog(), true)

	subject := int64(7)
	g.Record(ctx, AuditEvent{
		SubjectID:      &subject,
		Action:         "user.update_profile",
		Resource:       "user",
		Details:        `<script>alert(1)</script>changed name`,
		ClientIdentity: "203.0.113.9",
		Success:        true,
	})

	recs, err := st.AuditLog().ListBySubject(ctx, subject, 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)

	rec := recs[0]
	require.Equal(t, "user.update_profile", rec.Action)
	require.Equal(t, "changed name", rec.Details)
	require.True(t, rec.Success)
	require.NotEmpty(t, rec.ID)
	require.False(t, rec.Timestamp.IsZero())

	t.Run("suspicious sources are flagged in the log", func(t *testing.T) {
		var buf bytes.Buffer
		ctx := slogx.WithContext(context.Background(), slog.New(slog.NewTextHandler(&buf, nil)))

		g.Record(ctx, AuditEvent{
			Action:         "auth.login",
			Resource:       "session",
			ClientIdentity: "169.254.10.2",
			Success:        false,
			Error:          "password mismatch",
		})

		require.Contains(t, buf.String(), "suspicious source")
		require.Contains(t, buf.String(), "169.254.10.2")
	})
}
