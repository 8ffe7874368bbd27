package model

import (
	"github.com/google/uuid"
)

// QuestionType enumerates supported question kinds.
type QuestionType string

const (
	QuestionTypeMultipleChoice QuestionType = "MULTIPLE_CHOICE"
	QuestionTypeFreeText       QuestionType = "FREE_TEXT"
)

// Question represents a single exam question.
type Question struct {
	ID           uuid.UUID    `json:"id"`
	ExamID       uuid.UUID    `json:"exam_id"`
	QuestionText string       `json:"question_text"`
	QuestionType QuestionType `json:"question_type"`
	Points       int          `json:"points"`
	ModelAnswer  *string      `json:"model_answer,omitempty"`
	OrderNum     int          `json:"order_num"`
	Options      []Option     `json:"options,omitempty"`
}

// CorrectOptionID returns the id of the option flagged correct, or uuid.Nil
// for free-text questions.
func (q *Question) CorrectOptionID() uuid.UUID {
	for _, o := range q.Options {
		if o.IsCorrect {
			return o.ID
		}
	}
	return uuid.Nil
}

// Option is one multiple-choice answer candidate.
type Option struct {
	ID         uuid.UUID `json:"id"`
	QuestionID uuid.UUID `json:"question_id"`
	OptionText string    `json:"option_text"`
	IsCorrect  bool      `json:"is_correct,omitempty"`
	OrderNum   int       `json:"order_num"`
}

// QuestionView is a question without grading fields, sent to students.
type QuestionView struct {
	ID           uuid.UUID    `json:"id"`
	QuestionText string       `json:"question_text"`
	QuestionType QuestionType `json:"question_type"`
	Points       int          `json:"points"`
	OrderNum     int          `json:"order_num"`
	Options      []OptionView `json:"options,omitempty"`
}

// OptionView is an option without the is_correct flag.
type OptionView struct {
	ID         uuid.UUID `json:"id"`
	OptionText string    `json:"option_text"`
}

// AddQuestionRequest is the payload for a question inside CreateExamRequest.
type AddQuestionRequest struct {
	QuestionText string             `json:"question_text" binding:"required,min=1,max=2000"`
	QuestionType string             `json:"question_type" binding:"required,oneof=MULTIPLE_CHOICE FREE_TEXT"`
	Points       int                `json:"points" binding:"required,min=1"`
	ModelAnswer  *string            `json:"model_answer" binding:"omitempty,max=5000"`
	Options      []AddOptionRequest `json:"options" binding:"omitempty,dive"`
}

// AddOptionRequest is the payload for an option inside AddQuestionRequest.
type AddOptionRequest struct {
	OptionText string `json:"option_text" binding:"required,min=1,max=500"`
	IsCorrect  bool   `json:"is_correct"`
}
