package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/examguard/examguard/internal/model"
)

// SubmissionResult combines a student's account data with their attempt,
// as listed on the teacher results view.
type SubmissionResult struct {
	StudentID   int        `json:"student_id"`
	Name        string     `json:"name"`
	Email       string     `json:"email"`
	Score       int        `json:"score"`
	TotalMarks  int        `json:"total_marks"`
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	SubmittedAt *time.Time `json:"submitted_at"`
}

// SubmissionRepository handles exam attempt data access.
type SubmissionRepository struct {
	pool *pgxpool.Pool
}

// NewSubmissionRepository creates a new SubmissionRepository.
func NewSubmissionRepository(pool *pgxpool.Pool) *SubmissionRepository {
	return &SubmissionRepository{pool: pool}
}

// GetByID retrieves a submission by id.
func (r *SubmissionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Submission, error) {
	s := &model.Submission{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, exam_id, student_id, status, score, total_marks, started_at, submitted_at
		 FROM submissions WHERE id = $1`, id,
	).Scan(&s.ID, &s.ExamID, &s.StudentID, &s.Status, &s.Score, &s.TotalMarks,
		&s.StartedAt, &s.SubmittedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// GetByExamAndStudent retrieves the attempt for an exam-student pair.
// At most one exists per the unique constraint.
func (r *SubmissionRepository) GetByExamAndStudent(ctx context.Context, examID uuid.UUID, studentID int) (*model.Submission, error) {
	s := &model.Submission{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, exam_id, student_id, status, score, total_marks, started_at, submitted_at
		 FROM submissions
		 WHERE exam_id = $1 AND student_id = $2`, examID, studentID,
	).Scan(&s.ID, &s.ExamID, &s.StudentID, &s.Status, &s.Score, &s.TotalMarks,
		&s.StartedAt, &s.SubmittedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Create inserts a new in-progress attempt.
func (r *SubmissionRepository) Create(ctx context.Context, s *model.Submission) error {
	s.Status = model.SubmissionStatusInProgress
	return r.pool.QueryRow(ctx,
		`INSERT INTO submissions (exam_id, student_id, status)
		 VALUES ($1, $2, $3)
		 RETURNING id, started_at`,
		s.ExamID, s.StudentID, s.Status,
	).Scan(&s.ID, &s.StartedAt)
}

// UpsertAnswers replaces the stored answers for a submission in one
// transaction, keyed by question.
func (r *SubmissionRepository) UpsertAnswers(ctx context.Context, submissionID uuid.UUID, answers []model.Answer) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, a := range answers {
		_, err := tx.Exec(ctx,
			`INSERT INTO answers (submission_id, question_id, value)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (submission_id, question_id)
			 DO UPDATE SET value = EXCLUDED.value`,
			submissionID, a.QuestionID, a.Value)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// Finalize flips an in-progress attempt to submitted and records the
// grade. Returns false when the attempt was already finalized; the
// status guard in the WHERE clause makes finalization at-most-once even
// under concurrent submit requests.
func (r *SubmissionRepository) Finalize(ctx context.Context, id uuid.UUID, score, totalMarks int) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE submissions
		 SET status = $1, score = $2, total_marks = $3, submitted_at = NOW()
		 WHERE id = $4 AND status = $5`,
		model.SubmissionStatusSubmitted, score, totalMarks, id,
		model.SubmissionStatusInProgress)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ListAnswers returns the stored answers for a submission.
func (r *SubmissionRepository) ListAnswers(ctx context.Context, submissionID uuid.UUID) ([]model.Answer, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT question_id, value FROM answers WHERE submission_id = $1`,
		submissionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var answers []model.Answer
	for rows.Next() {
		var a model.Answer
		if err := rows.Scan(&a.QuestionID, &a.Value); err != nil {
			return nil, err
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

// StudentResult is one row of a student's own results list: their
// attempt joined with the exam it belongs to.
type StudentResult struct {
	SubmissionID uuid.UUID  `json:"submission_id"`
	ExamID       uuid.UUID  `json:"exam_id"`
	ExamTitle    string     `json:"exam_title"`
	Status       string     `json:"status"`
	Score        int        `json:"score"`
	TotalMarks   int        `json:"total_marks"`
	StartedAt    time.Time  `json:"started_at"`
	SubmittedAt  *time.Time `json:"submitted_at"`
}

// ListByStudent retrieves all of a student's attempts, newest first.
func (r *SubmissionRepository) ListByStudent(ctx context.Context, studentID int) ([]StudentResult, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT s.id, s.exam_id, e.title, s.status, s.score, s.total_marks, s.started_at, s.submitted_at
		 FROM submissions s
		 JOIN exams e ON s.exam_id = e.id
		 WHERE s.student_id = $1
		 ORDER BY s.started_at DESC`,
		studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []StudentResult
	for rows.Next() {
		var res StudentResult
		if err := rows.Scan(&res.SubmissionID, &res.ExamID, &res.ExamTitle, &res.Status,
			&res.Score, &res.TotalMarks, &res.StartedAt, &res.SubmittedAt); err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

// ListByExam retrieves every student's attempt for an exam, with
// pagination, for the teacher results view.
func (r *SubmissionRepository) ListByExam(ctx context.Context, examID uuid.UUID, limit, offset int) ([]SubmissionResult, int, error) {
	var total int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM submissions WHERE exam_id = $1`, examID,
	).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT u.id, u.name, u.email, s.score, s.total_marks, s.status, s.started_at, s.submitted_at
		 FROM submissions s
		 JOIN users u ON s.student_id = u.id
		 WHERE s.exam_id = $1
		 ORDER BY u.name ASC
		 LIMIT $2 OFFSET $3`,
		examID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var results []SubmissionResult
	for rows.Next() {
		var res SubmissionResult
		if err := rows.Scan(&res.StudentID, &res.Name, &res.Email, &res.Score,
			&res.TotalMarks, &res.Status, &res.StartedAt, &res.SubmittedAt); err != nil {
			return nil, 0, err
		}
		results = append(results, res)
	}
	return results, total, rows.Err()
}
