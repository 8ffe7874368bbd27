package model

import (
	"time"

	"github.com/google/uuid"
)

// SubmissionStatus enumerates exam attempt states.
type SubmissionStatus string

const (
	SubmissionStatusInProgress SubmissionStatus = "IN_PROGRESS"
	SubmissionStatusSubmitted  SubmissionStatus = "SUBMITTED"
)

// Submission represents one student's attempt at one exam.
type Submission struct {
	ID          uuid.UUID        `json:"id"`
	ExamID      uuid.UUID        `json:"exam_id"`
	StudentID   int              `json:"student_id"`
	Status      SubmissionStatus `json:"status"`
	Score       int              `json:"score"`
	TotalMarks  int              `json:"total_marks"`
	StartedAt   time.Time        `json:"started_at"`
	SubmittedAt *time.Time       `json:"submitted_at,omitempty"`
}

// Answer is one stored answer row: an option id for multiple-choice, free
// text for subjective questions, or empty when unanswered.
type Answer struct {
	QuestionID uuid.UUID `json:"question_id"`
	Value      string    `json:"value"`
}

// StartRequest is the payload for starting or resuming an attempt.
type StartRequest struct {
	AccessCode string `json:"access_code" binding:"required"`
}

// UpdateAnswersRequest is the wholesale answer payload sent at submit time,
// keyed by question id.
type UpdateAnswersRequest struct {
	Answers map[string]string `json:"answers" binding:"required"`
}

// SubmitResult is the outcome of grading a submission.
type SubmitResult struct {
	SubmissionID uuid.UUID `json:"submission_id"`
	Score        int       `json:"score"`
	TotalMarks   int       `json:"total_marks"`
}
