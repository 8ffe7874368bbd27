package service

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/examguard/examguard/internal/model"
)

func gradedExam() (*model.Exam, uuid.UUID, uuid.UUID) {
	mcqCorrect := uuid.New()
	mcqWrong := uuid.New()
	q1 := uuid.New()
	q2 := uuid.New()
	q3 := uuid.New()

	exam := &model.Exam{
		ID:    uuid.New(),
		Title: "Physics Quiz",
		Questions: []model.Question{
			{
				ID:           q1,
				QuestionType: model.QuestionTypeMultipleChoice,
				Points:       2,
				Options: []model.Option{
					{ID: mcqCorrect, OptionText: "9.8", IsCorrect: true},
					{ID: uuid.New(), OptionText: "3.14"},
				},
			},
			{
				ID:           q2,
				QuestionType: model.QuestionTypeMultipleChoice,
				Points:       3,
				Options: []model.Option{
					{ID: uuid.New(), OptionText: "Yes", IsCorrect: true},
					{ID: mcqWrong, OptionText: "No"},
				},
			},
			{
				ID:           q3,
				QuestionType: model.QuestionTypeFreeText,
				Points:       5,
			},
		},
	}
	return exam, mcqCorrect, mcqWrong
}

func TestScoreGradesOnlyCorrectMultipleChoice(t *testing.T) {
	exam, mcqCorrect, mcqWrong := gradedExam()

	answers := map[string]string{
		exam.Questions[0].ID.String(): mcqCorrect.String(), // +2
		exam.Questions[1].ID.String(): mcqWrong.String(),   // wrong option
		exam.Questions[2].ID.String(): "long free-text answer",
	}

	score, total := Score(exam, answers)
	if score != 2 {
		t.Fatalf("score = %d, want 2", score)
	}
	if total != 10 {
		t.Fatalf("total = %d, want 10", total)
	}
}

func TestScoreEmptyAnswersEarnsZero(t *testing.T) {
	exam, _, _ := gradedExam()

	score, total := Score(exam, map[string]string{})
	if score != 0 {
		t.Fatalf("score = %d, want 0", score)
	}
	if total != exam.TotalMarks() {
		t.Fatalf("total = %d, want %d", total, exam.TotalMarks())
	}
}

func TestScoreSkipsQuestionWithoutCorrectOption(t *testing.T) {
	// A malformed multiple-choice question with no flagged option can
	// never award points, but still counts toward the total.
	qID := uuid.New()
	optID := uuid.New()
	exam := &model.Exam{
		Questions: []model.Question{
			{
				ID:           qID,
				QuestionType: model.QuestionTypeMultipleChoice,
				Points:       4,
				Options:      []model.Option{{ID: optID, OptionText: "only"}},
			},
		},
	}

	score, total := Score(exam, map[string]string{qID.String(): optID.String()})
	if score != 0 {
		t.Fatalf("score = %d, want 0", score)
	}
	if total != 4 {
		t.Fatalf("total = %d, want 4", total)
	}
}

func TestAnswerRowsRejectsUnknownQuestion(t *testing.T) {
	exam, _, _ := gradedExam()

	_, err := answerRows(exam, map[string]string{uuid.NewString(): "stray"})
	if !errors.Is(err, ErrUnknownQuestion) {
		t.Fatalf("err = %v, want ErrUnknownQuestion", err)
	}
}

func TestAnswerRowsProducesOneRowPerQuestion(t *testing.T) {
	exam, mcqCorrect, _ := gradedExam()

	rows, err := answerRows(exam, map[string]string{
		exam.Questions[0].ID.String(): mcqCorrect.String(),
	})
	if err != nil {
		t.Fatalf("answerRows: %v", err)
	}
	if len(rows) != len(exam.Questions) {
		t.Fatalf("rows = %d, want %d", len(rows), len(exam.Questions))
	}
	if rows[0].Value != mcqCorrect.String() {
		t.Fatalf("answered row value = %q", rows[0].Value)
	}
	if rows[1].Value != "" || rows[2].Value != "" {
		t.Fatal("unanswered questions must be stored empty")
	}
}

func TestStudentViewHidesGradingFields(t *testing.T) {
	exam, _, _ := gradedExam()
	modelAnswer := "F = ma"
	exam.Questions[2].ModelAnswer = &modelAnswer

	view := exam.StudentView()
	if len(view.Questions) != len(exam.Questions) {
		t.Fatalf("view questions = %d, want %d", len(view.Questions), len(exam.Questions))
	}
	for _, q := range view.Questions {
		for _, o := range q.Options {
			if o.OptionText == "" || o.ID == uuid.Nil {
				t.Fatal("option views must keep id and text")
			}
		}
	}
}
