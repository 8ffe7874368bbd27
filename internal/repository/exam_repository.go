package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/examguard/examguard/internal/model"
)

// ExamRepository handles exam data access, including the nested
// question and option rows.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

// Create inserts an exam together with its questions and options in one
// transaction. IDs and timestamps are filled in on the passed model.
func (r *ExamRepository) Create(ctx context.Context, e *model.Exam) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO exams (title, description, duration_minutes, access_code, created_by)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at, updated_at`,
		e.Title, e.Description, e.DurationMinutes, e.AccessCode, e.CreatedBy,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return err
	}

	for qi := range e.Questions {
		q := &e.Questions[qi]
		q.ExamID = e.ID
		q.OrderNum = qi + 1
		err = tx.QueryRow(ctx,
			`INSERT INTO questions (exam_id, question_text, question_type, points, model_answer, order_num)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 RETURNING id`,
			q.ExamID, q.QuestionText, q.QuestionType, q.Points, q.ModelAnswer, q.OrderNum,
		).Scan(&q.ID)
		if err != nil {
			return err
		}

		for oi := range q.Options {
			o := &q.Options[oi]
			o.QuestionID = q.ID
			o.OrderNum = oi + 1
			err = tx.QueryRow(ctx,
				`INSERT INTO options (question_id, option_text, is_correct, order_num)
				 VALUES ($1, $2, $3, $4)
				 RETURNING id`,
				o.QuestionID, o.OptionText, o.IsCorrect, o.OrderNum,
			).Scan(&o.ID)
			if err != nil {
				return err
			}
		}
	}

	return tx.Commit(ctx)
}

// GetByID retrieves an exam with its full question and option tree.
// Soft-deleted exams are not returned.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	e := &model.Exam{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, description, duration_minutes, access_code, created_by, created_at, updated_at
		 FROM exams WHERE id = $1 AND is_deleted = FALSE`, id,
	).Scan(&e.ID, &e.Title, &e.Description, &e.DurationMinutes, &e.AccessCode,
		&e.CreatedBy, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := r.loadQuestions(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

func (r *ExamRepository) loadQuestions(ctx context.Context, e *model.Exam) error {
	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_id, question_text, question_type, points, model_answer, order_num
		 FROM questions WHERE exam_id = $1
		 ORDER BY order_num ASC`, e.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	index := make(map[uuid.UUID]int)
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.ExamID, &q.QuestionText, &q.QuestionType,
			&q.Points, &q.ModelAnswer, &q.OrderNum); err != nil {
			return err
		}
		index[q.ID] = len(e.Questions)
		e.Questions = append(e.Questions, q)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	optRows, err := r.pool.Query(ctx,
		`SELECT o.id, o.question_id, o.option_text, o.is_correct, o.order_num
		 FROM options o
		 JOIN questions q ON o.question_id = q.id
		 WHERE q.exam_id = $1
		 ORDER BY o.order_num ASC`, e.ID)
	if err != nil {
		return err
	}
	defer optRows.Close()

	for optRows.Next() {
		var o model.Option
		if err := optRows.Scan(&o.ID, &o.QuestionID, &o.OptionText, &o.IsCorrect, &o.OrderNum); err != nil {
			return err
		}
		if qi, ok := index[o.QuestionID]; ok {
			e.Questions[qi].Options = append(e.Questions[qi].Options, o)
		}
	}
	return optRows.Err()
}

// ListByTeacher retrieves exams created by a teacher, newest first, with
// pagination. Questions are not loaded.
func (r *ExamRepository) ListByTeacher(ctx context.Context, teacherID, limit, offset int) ([]model.Exam, int, error) {
	var total int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM exams WHERE created_by = $1 AND is_deleted = FALSE`,
		teacherID,
	).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, title, description, duration_minutes, access_code, created_by, created_at, updated_at
		 FROM exams
		 WHERE created_by = $1 AND is_deleted = FALSE
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`,
		teacherID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var exams []model.Exam
	for rows.Next() {
		var e model.Exam
		if err := rows.Scan(&e.ID, &e.Title, &e.Description, &e.DurationMinutes,
			&e.AccessCode, &e.CreatedBy, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, 0, err
		}
		exams = append(exams, e)
	}
	return exams, total, rows.Err()
}

// SoftDelete marks an exam deleted without touching existing submissions.
func (r *ExamRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE exams SET is_deleted = TRUE, updated_at = NOW()
		 WHERE id = $1 AND is_deleted = FALSE`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("exam %s not found", id)
	}
	return nil
}
