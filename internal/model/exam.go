package model

import (
	"time"

	"github.com/google/uuid"
)

// Exam represents an exam entity with its ordered question list.
type Exam struct {
	ID              uuid.UUID  `json:"id"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	DurationMinutes int        `json:"duration_minutes"`
	AccessCode      string     `json:"access_code,omitempty"`
	CreatedBy       int        `json:"created_by"`
	IsDeleted       bool       `json:"-"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	Questions       []Question `json:"questions,omitempty"`
}

// TotalMarks sums the point value of every question.
func (e *Exam) TotalMarks() int {
	total := 0
	for _, q := range e.Questions {
		total += q.Points
	}
	return total
}

// CreateExamRequest is the payload for creating a new exam with its questions.
type CreateExamRequest struct {
	Title           string               `json:"title" binding:"required,min=3,max=255"`
	Description     string               `json:"description" binding:"required,max=2000"`
	DurationMinutes int                  `json:"duration_minutes" binding:"required,min=1,max=480"`
	AccessCode      string               `json:"access_code" binding:"required,min=4,max=20"`
	Questions       []AddQuestionRequest `json:"questions" binding:"required,min=1,dive"`
}

// ExamView is the student-safe exam payload: no correct-option flags and
// no model answers. Cached in Redis and served at session start.
type ExamView struct {
	ExamID          uuid.UUID      `json:"exam_id"`
	Title           string         `json:"title"`
	Description     string         `json:"description"`
	DurationMinutes int            `json:"duration_minutes"`
	Questions       []QuestionView `json:"questions"`
}

// StudentView strips grading fields from the exam for delivery to students.
func (e *Exam) StudentView() *ExamView {
	view := &ExamView{
		ExamID:          e.ID,
		Title:           e.Title,
		Description:     e.Description,
		DurationMinutes: e.DurationMinutes,
		Questions:       make([]QuestionView, 0, len(e.Questions)),
	}
	for _, q := range e.Questions {
		qv := QuestionView{
			ID:           q.ID,
			QuestionText: q.QuestionText,
			QuestionType: q.QuestionType,
			Points:       q.Points,
			OrderNum:     q.OrderNum,
		}
		for _, o := range q.Options {
			qv.Options = append(qv.Options, OptionView{ID: o.ID, OptionText: o.OptionText})
		}
		view.Questions = append(view.Questions, qv)
	}
	return view
}
