package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/examcli/internal/auth"
	"github.com/stemsi/examcli/internal/model"
)

// Client talks to the exam platform API. It injects the bearer credential
// from the auth session, tags every request with an X-Request-ID, and
// performs a single refresh-and-retry when an authenticated call comes back
// 401 while a refresh credential is held.
type Client struct {
	baseURL string
	http    *http.Client
	session *auth.Session
	log     zerolog.Logger
}

// NewClient creates a Client rooted at baseURL.
func NewClient(baseURL string, timeout time.Duration, session *auth.Session, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		session: session,
		log:     log.With().Str("component", "api_client").Logger(),
	}
}

// ─── Auth ───────────────────────────────────────────────────────────────────

// Register creates a new account.
func (c *Client) Register(ctx context.Context, req model.RegisterRequest) (*model.User, error) {
	var user model.User
	if err := c.do(ctx, http.MethodPost, "/auth/register", req, &user, false); err != nil {
		return nil, err
	}
	return &user, nil
}

// Login exchanges credentials for a token pair and stores it in the session.
func (c *Client) Login(ctx context.Context, email, password string) (*model.TokenPair, error) {
	var pair model.TokenPair
	req := model.LoginRequest{Email: email, Password: password}
	if err := c.do(ctx, http.MethodPost, "/auth/login", req, &pair, false); err != nil {
		return nil, err
	}
	if err := c.session.SetTokens(pair); err != nil {
		return nil, fmt.Errorf("store credentials: %w", err)
	}
	return &pair, nil
}

// Refresh rotates the token pair using the stored refresh credential.
func (c *Client) Refresh(ctx context.Context) error {
	refresh := c.session.RefreshToken()
	if refresh == "" {
		return &APIError{Status: http.StatusUnauthorized, Detail: "no refresh credential held"}
	}

	var pair model.TokenPair
	req := model.RefreshRequest{RefreshToken: refresh}
	if err := c.do(ctx, http.MethodPost, "/auth/refresh", req, &pair, false); err != nil {
		return err
	}
	if err := c.session.SetTokens(pair); err != nil {
		return fmt.Errorf("store credentials: %w", err)
	}
	return nil
}

// Logout invalidates the server-side session. Local teardown is the auth
// session's concern and happens regardless of the outcome here.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", nil, nil, true)
}

// ─── Student ────────────────────────────────────────────────────────────────

// ListExams returns the published exams currently available to the student.
func (c *Client) ListExams(ctx context.Context) ([]model.Exam, error) {
	var exams []model.Exam
	if err := c.do(ctx, http.MethodGet, "/student/exams", nil, &exams, true); err != nil {
		return nil, err
	}
	return exams, nil
}

// StartAttempt creates (or resumes, server-side) an attempt for examID.
// The returned snapshot never contains correctness data.
func (c *Client) StartAttempt(ctx context.Context, examID string) (*model.AttemptStart, error) {
	var attempt model.AttemptStart
	path := fmt.Sprintf("/student/exams/%s/start", examID)
	if err := c.do(ctx, http.MethodPost, path, nil, &attempt, true); err != nil {
		return nil, err
	}
	return &attempt, nil
}

// SubmitAttempt sends the frozen answer set for grading. Omitted questions
// count as unanswered. The server rejects duplicates independently of any
// client-side guard.
func (c *Client) SubmitAttempt(ctx context.Context, attemptID string, responses []model.AnswerSubmission) (*model.AttemptResult, error) {
	if responses == nil {
		responses = []model.AnswerSubmission{}
	}
	var result model.AttemptResult
	path := fmt.Sprintf("/student/attempts/%s/submit", attemptID)
	if err := c.do(ctx, http.MethodPost, path, model.SubmitRequest{Responses: responses}, &result, true); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListAttempts returns the student's attempt history.
func (c *Client) ListAttempts(ctx context.Context) ([]model.AttemptSummary, error) {
	var attempts []model.AttemptSummary
	if err := c.do(ctx, http.MethodGet, "/student/attempts", nil, &attempts, true); err != nil {
		return nil, err
	}
	return attempts, nil
}

// GetAttemptResult returns the stored graded result for a submitted attempt.
func (c *Client) GetAttemptResult(ctx context.Context, attemptID string) (*model.AttemptResult, error) {
	var result model.AttemptResult
	path := fmt.Sprintf("/student/attempts/%s", attemptID)
	if err := c.do(ctx, http.MethodGet, path, nil, &result, true); err != nil {
		return nil, err
	}
	return &result, nil
}

// ─── Teacher ────────────────────────────────────────────────────────────────

// ListTeacherExams returns the exams authored by the logged-in teacher.
func (c *Client) ListTeacherExams(ctx context.Context) ([]model.Exam, error) {
	var exams []model.Exam
	if err := c.do(ctx, http.MethodGet, "/exams", nil, &exams, true); err != nil {
		return nil, err
	}
	return exams, nil
}

// ─── Transport ──────────────────────────────────────────────────────────────

// detailBody is the backend's error envelope.
type detailBody struct {
	Detail string `json:"detail"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}, authed bool) error {
	err := c.doOnce(ctx, method, path, body, out, authed)

	// One refresh-and-retry on an expired access credential.
	var apiErr *APIError
	if authed && errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized && c.session.RefreshToken() != "" {
		c.log.Debug().Str("path", path).Msg("Access token rejected, refreshing")
		if refreshErr := c.Refresh(ctx); refreshErr != nil {
			return err
		}
		return c.doOnce(ctx, method, path, body, out, authed)
	}
	return err
}

func (c *Client) doOnce(ctx context.Context, method, path string, body, out interface{}, authed bool) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("X-Request-ID", uuid.New().String())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		if token := c.session.AccessToken(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug().Err(err).Str("path", path).Msg("Request transport failure")
		return &APIError{Status: 0, Detail: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// decodeError surfaces the backend's reason text verbatim when present, with
// a generic fallback otherwise.
func decodeError(resp *http.Response) error {
	var body detailBody
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err := json.Unmarshal(raw, &body); err != nil || body.Detail == "" {
		body.Detail = http.StatusText(resp.StatusCode)
	}
	return &APIError{Status: resp.StatusCode, Detail: body.Detail}
}
