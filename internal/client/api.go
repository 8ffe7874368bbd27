package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/examguard/examguard/internal/model"
	"github.com/examguard/examguard/internal/response"
	"github.com/examguard/examguard/internal/session"
	"github.com/google/uuid"
)

// API is the REST submission coordinator consumed by the session
// controller. It speaks the server's enveloped JSON contract.
type API struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewAPI creates a coordinator client against the given server base URL
// (e.g. "http://localhost:8080") authenticated with a student JWT.
func NewAPI(baseURL, token string) *API {
	return &API{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type envelope struct {
	Data  json.RawMessage     `json:"data"`
	Error *response.ErrorBody `json:"error"`
}

// Start creates or resumes the attempt for an exam, presenting the
// exam's access code.
func (a *API) Start(ctx context.Context, examID uuid.UUID, accessCode string) (uuid.UUID, error) {
	body := model.StartRequest{AccessCode: accessCode}
	var out struct {
		SubmissionID uuid.UUID `json:"submission_id"`
	}
	err := a.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/submissions/start/%s", examID), body, &out)
	if err != nil {
		return uuid.Nil, err
	}
	return out.SubmissionID, nil
}

// FetchExam returns the student-safe exam view.
func (a *API) FetchExam(ctx context.Context, examID uuid.UUID) (*model.ExamView, error) {
	var out model.ExamView
	err := a.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/exams/%s/take", examID), nil, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Submit writes the wholesale answer mapping and returns the graded result.
func (a *API) Submit(ctx context.Context, submissionID uuid.UUID, answers map[string]string) (*model.SubmitResult, error) {
	body := model.UpdateAnswersRequest{Answers: answers}
	var out model.SubmitResult
	err := a.do(ctx, http.MethodPut, fmt.Sprintf("/api/v1/submissions/update/%s", submissionID), body, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) do(ctx context.Context, method, path string, body, out interface{}) error {
	reader := io.Reader(http.NoBody)
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.token)

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}

	if env.Error != nil {
		if env.Error.Code == response.ErrAlreadyCompleted {
			return session.ErrAlreadyCompleted
		}
		return fmt.Errorf("server rejected %s %s: %s (%s)", method, path, env.Error.Message, env.Error.Code)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
	}
	return nil
}
