package sqlite

import (
	"context"
	"database/sql"

	"github.com/caredesk/gatekit/internal/gate/domain"
)

type auditLogRepo struct {
	q dbtx
}

func (r *auditLogRepo) Append(ctx context.Context, rec domain.AuditRecord) error {
	var subject sql.NullInt64
	if rec.SubjectID != nil {
		subject = sql.NullInt64{Int64: *rec.SubjectID, Valid: true}
	}

	_, err := r.q.ExecContext(ctx,
		`INSERT INTO audit_log
		   (id, subject_id, action, resource, details, client_identity, success, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, subject, rec.Action, rec.Resource, rec.Details,
		rec.ClientIdentity, rec.Success, rec.Error, rec.Timestamp.UTC())
	return err
}

func (r *auditLogRepo) ListBySubject(ctx context.Context, subjectID int64, limit int) ([]domain.AuditRecord, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT id, subject_id, action, resource, details, client_identity, success, error, created_at
		   FROM audit_log
		  WHERE subject_id = ?
		  ORDER BY created_at DESC
		  LIMIT ?`,
		subjectID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AuditRecord
	for rows.Next() {
		var rec domain.AuditRecord
		var subject sql.NullInt64
		if err := rows.Scan(&rec.ID, &subject, &rec.Action, &rec.Resource,
			&rec.Details, &rec.ClientIdentity, &rec.Success, &rec.Error, &rec.Timestamp); err != nil {
			return nil, err
		}
		if subject.Valid {
			v := subject.Int64
			rec.SubjectID = &v
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
