package domain

import "time"

// AuditRecord is one entry in the append-only audit trail. SubjectID is nil
// for unauthenticated attempts.
type AuditRecord struct {
	ID             string
	SubjectID      *int64
	Action         string
	Resource       string
	Details        string
	ClientIdentity string
	Success        bool
	Error          string
	Timestamp      time.Time
}
