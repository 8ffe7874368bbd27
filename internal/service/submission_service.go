package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/examguard/examguard/internal/model"
	"github.com/examguard/examguard/internal/repository"
)

// Submission domain errors.
var (
	ErrAlreadyCompleted   = errors.New("exam already completed, only one attempt is allowed")
	ErrAlreadySubmitted   = errors.New("submission already finalized")
	ErrInvalidAccessCode  = errors.New("invalid exam access code")
	ErrNotSubmissionOwner = errors.New("submission belongs to another student")
	ErrUnknownQuestion    = errors.New("answer references a question not in this exam")
)

// SubmissionService handles exam attempt lifecycle and grading.
type SubmissionService struct {
	examRepo *repository.ExamRepository
	subRepo  *repository.SubmissionRepository
	log      zerolog.Logger
}

// NewSubmissionService creates a new SubmissionService.
func NewSubmissionService(examRepo *repository.ExamRepository, subRepo *repository.SubmissionRepository, log zerolog.Logger) *SubmissionService {
	return &SubmissionService{
		examRepo: examRepo,
		subRepo:  subRepo,
		log:      log.With().Str("component", "submission_service").Logger(),
	}
}

// Start creates an in-progress attempt, or resumes the existing one. A
// submitted attempt cannot be restarted.
func (s *SubmissionService) Start(ctx context.Context, examID uuid.UUID, studentID int, accessCode string) (*model.Submission, error) {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return nil, err
	}
	if exam.AccessCode != accessCode {
		return nil, ErrInvalidAccessCode
	}

	existing, err := s.subRepo.GetByExamAndStudent(ctx, examID, studentID)
	if err == nil {
		if existing.Status == model.SubmissionStatusSubmitted {
			return nil, ErrAlreadyCompleted
		}
		s.log.Debug().
			Str("submission_id", existing.ID.String()).
			Int("student_id", studentID).
			Msg("Resuming in-progress attempt")
		return existing, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("lookup attempt: %w", err)
	}

	sub := &model.Submission{ExamID: examID, StudentID: studentID}
	if err := s.subRepo.Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("create attempt: %w", err)
	}

	s.log.Info().
		Str("submission_id", sub.ID.String()).
		Str("exam_id", examID.String()).
		Int("student_id", studentID).
		Msg("Attempt started")
	return sub, nil
}

// Submit stores the final answer set, grades it and finalizes the
// attempt. The repository's status guard makes finalization at-most-once:
// a repeated submit for the same attempt gets ErrAlreadySubmitted no
// matter how the requests interleave.
func (s *SubmissionService) Submit(ctx context.Context, submissionID uuid.UUID, studentID int, answers map[string]string) (*model.SubmitResult, error) {
	sub, err := s.subRepo.GetByID(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if sub.StudentID != studentID {
		return nil, ErrNotSubmissionOwner
	}
	if sub.Status == model.SubmissionStatusSubmitted {
		return nil, ErrAlreadySubmitted
	}

	exam, err := s.examRepo.GetByID(ctx, sub.ExamID)
	if err != nil {
		return nil, fmt.Errorf("load exam: %w", err)
	}

	rows, err := answerRows(exam, answers)
	if err != nil {
		return nil, err
	}
	if err := s.subRepo.UpsertAnswers(ctx, submissionID, rows); err != nil {
		return nil, fmt.Errorf("store answers: %w", err)
	}

	score, total := Score(exam, answers)
	ok, err := s.subRepo.Finalize(ctx, submissionID, score, total)
	if err != nil {
		return nil, fmt.Errorf("finalize attempt: %w", err)
	}
	if !ok {
		return nil, ErrAlreadySubmitted
	}

	s.log.Info().
		Str("submission_id", submissionID.String()).
		Int("score", score).
		Int("total_marks", total).
		Msg("Attempt submitted")
	return &model.SubmitResult{SubmissionID: submissionID, Score: score, TotalMarks: total}, nil
}

// GetResult returns a student's own finalized attempt.
func (s *SubmissionService) GetResult(ctx context.Context, submissionID uuid.UUID, studentID int) (*model.Submission, error) {
	sub, err := s.subRepo.GetByID(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if sub.StudentID != studentID {
		return nil, ErrNotSubmissionOwner
	}
	return sub, nil
}

// ListMine returns all of the student's own attempts, newest first.
func (s *SubmissionService) ListMine(ctx context.Context, studentID int) ([]repository.StudentResult, error) {
	results, err := s.subRepo.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []repository.StudentResult{}
	}
	return results, nil
}

// ListResults returns every attempt for an exam, for its author only.
func (s *SubmissionService) ListResults(ctx context.Context, examID uuid.UUID, teacherID, page, perPage int) ([]repository.SubmissionResult, int, error) {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return nil, 0, err
	}
	if exam.CreatedBy != teacherID {
		return nil, 0, ErrNotExamAuthor
	}

	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 1000 {
		perPage = 100
	}
	return s.subRepo.ListByExam(ctx, examID, perPage, (page-1)*perPage)
}

// answerRows validates the answer mapping against the exam's question set
// and converts it to storage rows. Unanswered questions are stored empty.
func answerRows(exam *model.Exam, answers map[string]string) ([]model.Answer, error) {
	known := make(map[string]bool, len(exam.Questions))
	for _, q := range exam.Questions {
		known[q.ID.String()] = true
	}
	for qid := range answers {
		if !known[qid] {
			return nil, ErrUnknownQuestion
		}
	}

	rows := make([]model.Answer, 0, len(exam.Questions))
	for _, q := range exam.Questions {
		rows = append(rows, model.Answer{
			QuestionID: q.ID,
			Value:      answers[q.ID.String()],
		})
	}
	return rows, nil
}

// Score grades an answer mapping against an exam. A multiple-choice
// question earns its full points when the stored answer equals the id of
// the option flagged correct; anything else, including free-text
// questions, earns zero. The total is the sum of all question points.
func Score(exam *model.Exam, answers map[string]string) (score, total int) {
	for _, q := range exam.Questions {
		total += q.Points
		if q.QuestionType != model.QuestionTypeMultipleChoice {
			continue
		}
		correct := q.CorrectOptionID()
		if correct == uuid.Nil {
			continue
		}
		if answers[q.ID.String()] == correct.String() {
			score += q.Points
		}
	}
	return score, total
}
