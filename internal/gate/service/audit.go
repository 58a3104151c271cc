package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/caredesk/gatekit/internal/gate/domain"
	"github.com/caredesk/gatekit/internal/gate/store"
	"github.com/caredesk/gatekit/pkg/idx"
	"github.com/caredesk/gatekit/pkg/ratelimit"
	"github.com/caredesk/gatekit/pkg/sanitize"
	"github.com/caredesk/gatekit/pkg/slogx"
)

// MaxParamLength is the ceiling for any string parameter bound for the
// database; anything longer is treated as hostile.
const MaxParamLength = 1000

// DefaultOperationPolicy caps how often one subject may run one database
// operation. This is distinct from per-client request throttling: it defends
// against logic-level abuse from an authenticated, request-rate-compliant
// caller.
var DefaultOperationPolicy = ratelimit.Policy{Max: 10, Window: time.Minute}

// sensitiveVerbs are query fragments that mark an operation destructive or
// bulk-reading. Matching is case-insensitive substring.
var sensitiveVerbs = []string{
	"delete",
	"drop",
	"truncate",
	"alter",
	"create",
	"grant",
	"revoke",
	"insert into",
	"update",
	"select *",
	"union",
	"exec",
	"execute",
}

// sensitiveFields are credential-shaped column or field names.
var sensitiveFields = []string{
	"password",
	"token",
	"secret",
	"key",
	"credential",
	"auth",
}

// injectionFragments are substrings in a bound parameter that indicate an
// injection attempt.
var injectionFragments = []string{
	"union",
	"select",
	"insert",
	"delete",
	"drop",
	"script",
	"javascript:",
	"vbscript:",
	"data:",
	"--",
	"/*",
}

// suspiciousNets are source prefixes that warrant extra logging. Loopback
// and link-local sources should not be reaching a public endpoint through
// the proxy chain.
var suspiciousNets = []string{
	"127.",
	"0.",
	"169.254.",
	"::1",
	"fe80:",
}

// AuditEvent is the unsanitised input to Record.
type AuditEvent struct {
	SubjectID      *int64
	Action         string
	Resource       string
	Details        string
	ClientIdentity string
	Success        bool
	Error          string
}

// AuditGuard classifies database-bound work as sensitive or suspicious and
// writes the append-only audit trail. Dev deployments also mirror records to
// the process log for local debugging.
type AuditGuard struct {
	Log     store.AuditLog
	DevMode bool

	ops *ratelimit.Limiter
}

func NewAuditGuard(log store.AuditLog, devMode bool) *AuditGuard {
	return &AuditGuard{
		Log:     log,
		DevMode: devMode,
		ops:     ratelimit.New(ratelimit.NewMemoryStore()),
	}
}

// IsSensitiveOperation reports whether the query text contains a destructive
// or bulk-read verb.
func IsSensitiveOperation(query string) bool {
	q := strings.ToLower(query)
	for _, verb := range sensitiveVerbs {
		if strings.Contains(q, verb) {
			return true
		}
	}
	return false
}

// TouchesSensitiveField reports whether the query text references a
// credential-shaped field name.
func TouchesSensitiveField(query string) bool {
	q := strings.ToLower(query)
	for _, field := range sensitiveFields {
		if strings.Contains(q, field) {
			return true
		}
	}
	return false
}

// ValidateParams rejects string parameters carrying injection-indicative
// fragments or exceeding the length ceiling. Non-string parameters pass.
func ValidateParams(params []any) bool {
	for _, p := range params {
		s, ok := p.(string)
		if !ok {
			continue
		}
		if len(s) > MaxParamLength {
			return false
		}
		lower := strings.ToLower(s)
		for _, frag := range injectionFragments {
			if strings.Contains(lower, frag) {
				return false
			}
		}
	}
	return true
}

// IsSuspiciousIP reports whether the client identity comes from an address
// range that should not appear behind the proxy chain.
func IsSuspiciousIP(ip string) bool {
	for _, prefix := range suspiciousNets {
		if strings.HasPrefix(ip, prefix) {
			return true
		}
	}
	return false
}

// Allow enforces the per-subject, per-operation counter. Counter failures
// admit the operation; the request-level limiter already gates volume.
func (g *AuditGuard) Allow(ctx context.Context, subjectID int64, operation string) bool {
	d := g.ops.Admit(ctx, formatSubject(subjectID), operation, DefaultOperationPolicy)
	if !d.Allowed {
		slogx.FromContext(ctx).Warn("operation budget exceeded",
			"subject_id", subjectID, "operation", operation)
	}
	return d.Allowed
}

// Sweep garbage-collects expired operation counters.
func (g *AuditGuard) Sweep(ctx context.Context) (int, error) {
	return g.ops.Sweep(ctx)
}

// Record sanitises free-text fields and appends the entry to the trail.
// Append failures are logged, never propagated: a broken audit sink must
// not take the serving path down with it.
func (g *AuditGuard) Record(ctx context.Context, ev AuditEvent) {
	rec := domain.AuditRecord{
		ID:             idx.New().String(),
		SubjectID:      ev.SubjectID,
		Action:         sanitize.Text(ev.Action, 100),
		Resource:       sanitize.Text(ev.Resource, 100),
		Details:        sanitize.Text(ev.Details, MaxParamLength),
		ClientIdentity: sanitize.Text(ev.ClientIdentity, 100),
		Success:        ev.Success,
		Error:          sanitize.Text(ev.Error, MaxParamLength),
		Timestamp:      time.Now().UTC(),
	}

	if rec.ClientIdentity != "" && IsSuspiciousIP(rec.ClientIdentity) {
		slogx.FromContext(ctx).Warn("audit event from suspicious source",
			"client", rec.ClientIdentity, "action", rec.Action)
	}

	if g.DevMode {
		slogx.FromContext(ctx).Info("audit",
			"action", rec.Action,
			"resource", rec.Resource,
			"client", rec.ClientIdentity,
			"success", rec.Success,
			"error", rec.Error,
		)
	}

	if err := g.Log.Append(ctx, rec); err != nil {
		slogx.FromContext(ctx).Error("audit append failed", "action", rec.Action, "err", err)
	}
}

func formatSubject(id int64) string {
	return "subject:" + strconv.FormatInt(id, 10)
}
