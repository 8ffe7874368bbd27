package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/examguard/examguard/internal/model"
)

// ViolationRepository reads the append-only violation audit trail. Writes
// go through the persistence worker's batched path, not through here.
type ViolationRepository struct {
	pool *pgxpool.Pool
}

// NewViolationRepository creates a new ViolationRepository.
func NewViolationRepository(pool *pgxpool.Pool) *ViolationRepository {
	return &ViolationRepository{pool: pool}
}

// ListBySubmission returns all violations recorded for a submission in
// insertion order.
func (r *ViolationRepository) ListBySubmission(ctx context.Context, submissionID uuid.UUID) ([]model.Violation, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, submission_id, kind, severity, recorded_at
		 FROM violations
		 WHERE submission_id = $1
		 ORDER BY id ASC`, submissionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var violations []model.Violation
	for rows.Next() {
		var v model.Violation
		if err := rows.Scan(&v.ID, &v.SubmissionID, &v.Kind, &v.Severity, &v.RecordedAt); err != nil {
			return nil, err
		}
		violations = append(violations, v)
	}
	return violations, rows.Err()
}

// CountsByExam returns the violation count per student for an exam,
// backing the live monitor view.
func (r *ViolationRepository) CountsByExam(ctx context.Context, examID uuid.UUID) (map[int]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT s.student_id, COUNT(*)
		 FROM violations v
		 JOIN submissions s ON v.submission_id = s.id
		 WHERE s.exam_id = $1
		 GROUP BY s.student_id`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[int]int64)
	for rows.Next() {
		var sid int
		var count int64
		if err := rows.Scan(&sid, &count); err != nil {
			return nil, err
		}
		counts[sid] = count
	}
	return counts, rows.Err()
}
