package service

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/examguard/examguard/internal/model"
	"github.com/examguard/examguard/internal/repository"
)

// MonitorService gathers the data behind the teacher's live exam view
// and the per-submission violation audit trail.
type MonitorService struct {
	examRepo      *repository.ExamRepository
	subRepo       *repository.SubmissionRepository
	violationRepo *repository.ViolationRepository
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(examRepo *repository.ExamRepository, subRepo *repository.SubmissionRepository, violationRepo *repository.ViolationRepository) *MonitorService {
	return &MonitorService{examRepo: examRepo, subRepo: subRepo, violationRepo: violationRepo}
}

// ExamSnapshot holds per-student attempt state and violation counts for
// one exam.
type ExamSnapshot struct {
	Students        []repository.SubmissionResult `json:"students"`
	ViolationCounts map[int]int64                 `json:"violation_counts"`
	TotalViolations int64                         `json:"total_violations"`
}

// GetSnapshot fetches attempts and violation counts concurrently.
// Violation counts are best-effort; attempt data is critical.
func (s *MonitorService) GetSnapshot(ctx context.Context, examID uuid.UUID) (*ExamSnapshot, error) {
	var (
		students    []repository.SubmissionResult
		counts      map[int]int64
		studentsErr error
		countsErr   error
		wg          sync.WaitGroup
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		students, _, studentsErr = s.subRepo.ListByExam(ctx, examID, 1000, 0)
	}()
	go func() {
		defer wg.Done()
		counts, countsErr = s.violationRepo.CountsByExam(ctx, examID)
	}()
	wg.Wait()

	if studentsErr != nil {
		return nil, studentsErr
	}

	snapshot := &ExamSnapshot{
		Students:        students,
		ViolationCounts: make(map[int]int64),
	}
	if countsErr == nil && counts != nil {
		snapshot.ViolationCounts = counts
		for _, c := range counts {
			snapshot.TotalViolations += c
		}
	}
	return snapshot, nil
}

// ListViolations returns the audit trail for a submission, visible only
// to the exam's author.
func (s *MonitorService) ListViolations(ctx context.Context, submissionID uuid.UUID, teacherID int) ([]model.Violation, error) {
	sub, err := s.subRepo.GetByID(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	exam, err := s.examRepo.GetByID(ctx, sub.ExamID)
	if err != nil {
		return nil, err
	}
	if exam.CreatedBy != teacherID {
		return nil, ErrNotExamAuthor
	}

	violations, err := s.violationRepo.ListBySubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if violations == nil {
		violations = []model.Violation{}
	}
	return violations, nil
}
