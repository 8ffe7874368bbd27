package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/examguard/examguard/internal/config"
	"github.com/examguard/examguard/internal/model"
	"github.com/examguard/examguard/internal/repository"
	"github.com/examguard/examguard/internal/response"
)

// Domain errors.
var (
	ErrNotExamAuthor = errors.New("not the author of this exam")
	ErrNoQuestions   = errors.New("exam has no questions")
)

// ExamService handles exam business logic and the Redis payload cache.
type ExamService struct {
	examRepo *repository.ExamRepository
	rdb      *redis.Client
	log      zerolog.Logger
}

// NewExamService creates a new ExamService.
func NewExamService(examRepo *repository.ExamRepository, rdb *redis.Client, log zerolog.Logger) *ExamService {
	return &ExamService{
		examRepo: examRepo,
		rdb:      rdb,
		log:      log.With().Str("component", "exam_service").Logger(),
	}
}

// Create builds and persists an exam from the request payload, then warms
// the student-safe payload cache.
func (s *ExamService) Create(ctx context.Context, teacherID int, req *model.CreateExamRequest) (*model.Exam, error) {
	exam := &model.Exam{
		Title:           req.Title,
		Description:     req.Description,
		DurationMinutes: req.DurationMinutes,
		AccessCode:      req.AccessCode,
		CreatedBy:       teacherID,
	}
	for _, qr := range req.Questions {
		q := model.Question{
			QuestionText: qr.QuestionText,
			QuestionType: model.QuestionType(qr.QuestionType),
			Points:       qr.Points,
			ModelAnswer:  qr.ModelAnswer,
		}
		for _, or := range qr.Options {
			q.Options = append(q.Options, model.Option{
				OptionText: or.OptionText,
				IsCorrect:  or.IsCorrect,
			})
		}
		exam.Questions = append(exam.Questions, q)
	}
	if len(exam.Questions) == 0 {
		return nil, ErrNoQuestions
	}

	if err := s.examRepo.Create(ctx, exam); err != nil {
		return nil, fmt.Errorf("create exam: %w", err)
	}

	// Cache warming is best-effort: a miss falls back to PostgreSQL.
	if err := s.warmPayloadCache(ctx, exam); err != nil {
		s.log.Warn().Err(err).Str("exam_id", exam.ID.String()).Msg("Failed to warm payload cache")
	}

	s.log.Info().
		Str("exam_id", exam.ID.String()).
		Int("questions", len(exam.Questions)).
		Msg("Exam created")
	return exam, nil
}

// GetByID retrieves a full exam, including grading fields.
func (s *ExamService) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	return s.examRepo.GetByID(ctx, id)
}

// ListByTeacher retrieves a teacher's exams with pagination.
func (s *ExamService) ListByTeacher(ctx context.Context, teacherID, page, perPage int) ([]model.Exam, *response.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	if perPage > 100 {
		perPage = 100
	}

	exams, total, err := s.examRepo.ListByTeacher(ctx, teacherID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, nil, err
	}
	if exams == nil {
		exams = []model.Exam{}
	}

	pagination := &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: (total + perPage - 1) / perPage,
	}
	return exams, pagination, nil
}

// Delete soft-deletes an exam after verifying authorship. Existing
// submissions are kept.
func (s *ExamService) Delete(ctx context.Context, id uuid.UUID, teacherID int) error {
	exam, err := s.examRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if exam.CreatedBy != teacherID {
		return ErrNotExamAuthor
	}
	if err := s.examRepo.SoftDelete(ctx, id); err != nil {
		return err
	}
	s.rdb.Del(ctx, config.CacheKey.ExamPayloadKey(id.String()))
	return nil
}

// GetStudentView returns the student-safe exam payload, served from the
// Redis cache when warm.
func (s *ExamService) GetStudentView(ctx context.Context, examID uuid.UUID) (*model.ExamView, error) {
	key := config.CacheKey.ExamPayloadKey(examID.String())
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var view model.ExamView
		if err := json.Unmarshal(data, &view); err == nil {
			return &view, nil
		}
		s.log.Warn().Str("exam_id", examID.String()).Msg("Corrupt payload cache entry, rebuilding")
	} else if !errors.Is(err, redis.Nil) {
		s.log.Warn().Err(err).Msg("Payload cache read failed, falling back to database")
	}

	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return nil, err
	}
	if err := s.warmPayloadCache(ctx, exam); err != nil {
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Failed to warm payload cache")
	}
	return exam.StudentView(), nil
}

func (s *ExamService) warmPayloadCache(ctx context.Context, exam *model.Exam) error {
	payload, err := json.Marshal(exam.StudentView())
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, config.CacheKey.ExamPayloadKey(exam.ID.String()), payload, 0)
	pipe.Set(ctx, config.CacheKey.ExamDurationKey(exam.ID.String()), exam.DurationMinutes, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache to redis: %w", err)
	}
	return nil
}
