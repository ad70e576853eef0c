package mockexam

import (
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/examcli/internal/model"
	"golang.org/x/crypto/bcrypt"
)

// httpError is a store-level failure carrying the status and the reason text
// the handler should surface as {"detail": ...}.
type httpError struct {
	status int
	detail string
}

func (e *httpError) Error() string { return fmt.Sprintf("%d: %s", e.status, e.detail) }

func fail(status int, detail string) *httpError {
	return &httpError{status: status, detail: detail}
}

// userRecord is an account plus server-only fields.
type userRecord struct {
	User         model.User
	PasswordHash []byte
	// SessionID enforces single-login: tokens minted for an older
	// session are rejected once a newer login rotates it.
	SessionID string
}

// keyedOption is an answer choice including the correctness flag. This type
// never leaves the store as-is; secureQuestions strips it.
type keyedOption struct {
	ID        string
	Content   string
	Order     int
	IsCorrect bool
}

type keyedQuestion struct {
	ID      string
	Content string
	Order   int
	Points  int
	Options []keyedOption
}

type examRecord struct {
	Exam      model.Exam // listing fields only, no questions
	AuthorID  string
	Questions []keyedQuestion
}

type attemptRecord struct {
	ID             string
	UserID         string
	ExamID         string
	StartedAt      time.Time
	ExpiresAt      time.Time
	Submitted      bool
	SubmittedAt    *time.Time
	ForceSubmitted bool
	Score          int
	MaxScore       int
	Responses      []model.ResponseResult
}

// Store is the in-memory backing state for the mock backend. One mutex
// guards everything; the dataset is tiny and contention irrelevant here.
type Store struct {
	mu         sync.Mutex
	bcryptCost int
	users      map[string]*userRecord // keyed by user ID
	byEmail    map[string]string      // email → user ID
	exams      map[string]*examRecord
	attempts   map[string]*attemptRecord
	now        func() time.Time
}

// NewStore creates an empty store.
func NewStore(bcryptCost int) *Store {
	return &Store{
		bcryptCost: bcryptCost,
		users:      make(map[string]*userRecord),
		byEmail:    make(map[string]string),
		exams:      make(map[string]*examRecord),
		attempts:   make(map[string]*attemptRecord),
		now:        time.Now,
	}
}

// ─── Users ──────────────────────────────────────────────────────────────────

// CreateUser registers an account. Email uniqueness is enforced.
func (s *Store) CreateUser(req model.RegisterRequest) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[req.Email]; exists {
		return nil, fail(http.StatusBadRequest, "Email already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return nil, fail(http.StatusInternalServerError, "Failed to hash password")
	}

	user := model.User{
		ID:        uuid.New().String(),
		Email:     req.Email,
		FullName:  req.FullName,
		Role:      req.Role,
		IsActive:  true,
		CreatedAt: s.now().UTC(),
	}
	s.users[user.ID] = &userRecord{User: user, PasswordHash: hash}
	s.byEmail[user.Email] = user.ID
	return &user, nil
}

// Authenticate verifies credentials and rotates the user's session ID.
func (s *Store) Authenticate(email, password string) (*model.User, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[email]
	if !ok {
		return nil, "", fail(http.StatusUnauthorized, "Invalid email or password")
	}
	rec := s.users[id]
	if err := bcrypt.CompareHashAndPassword(rec.PasswordHash, []byte(password)); err != nil {
		return nil, "", fail(http.StatusUnauthorized, "Invalid email or password")
	}
	if !rec.User.IsActive {
		return nil, "", fail(http.StatusForbidden, "Account is disabled")
	}

	rec.SessionID = uuid.New().String()
	return &rec.User, rec.SessionID, nil
}

// GetUser returns the account for id.
func (s *Store) GetUser(id string) (*model.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.users[id]
	if !ok {
		return nil, false
	}
	user := rec.User
	return &user, true
}

// VerifySession checks that sessionID is still the user's current one.
func (s *Store) VerifySession(userID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.users[userID]
	if !ok {
		return fail(http.StatusUnauthorized, "User not found")
	}
	if rec.SessionID == "" || rec.SessionID != sessionID {
		return fail(http.StatusUnauthorized, "Session invalidated - logged in elsewhere")
	}
	return nil
}

// ClearSession logs the user out server-side.
func (s *Store) ClearSession(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.users[userID]; ok {
		rec.SessionID = ""
	}
}

// ─── Exams ──────────────────────────────────────────────────────────────────

// ListPublishedExams returns listings (question counts, no questions) for
// exams inside their availability window.
func (s *Store) ListPublishedExams() []model.Exam {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var out []model.Exam
	for _, rec := range s.exams {
		if !s.availableLocked(rec, now) {
			continue
		}
		exam := rec.Exam
		exam.QuestionCount = len(rec.Questions)
		out = append(out, exam)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out
}

// ListExamsByAuthor returns a teacher's exams, published or not.
func (s *Store) ListExamsByAuthor(authorID string) []model.Exam {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Exam
	for _, rec := range s.exams {
		if rec.AuthorID != authorID {
			continue
		}
		exam := rec.Exam
		exam.QuestionCount = len(rec.Questions)
		out = append(out, exam)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out
}

func (s *Store) availableLocked(rec *examRecord, now time.Time) bool {
	e := rec.Exam
	if e.IsPublished == nil || !*e.IsPublished {
		return false
	}
	if e.StartDate != nil && e.StartDate.After(now) {
		return false
	}
	if e.EndDate != nil && e.EndDate.Before(now) {
		return false
	}
	return true
}

// ─── Attempts ───────────────────────────────────────────────────────────────

// StartAttempt creates an attempt, or resumes an unfinished one for the same
// exam (idempotent with respect to page reloads). Completed exams and
// already-expired attempts are rejected.
func (s *Store) StartAttempt(userID, examID string) (*model.AttemptStart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	rec, ok := s.exams[examID]
	if !ok || !s.availableLocked(rec, now) {
		return nil, fail(http.StatusNotFound, "Exam not found or not available")
	}

	var attempt *attemptRecord
	for _, a := range s.attempts {
		if a.UserID != userID || a.ExamID != examID {
			continue
		}
		if a.Submitted {
			return nil, fail(http.StatusBadRequest, "You have already completed this exam")
		}
		attempt = a
		break
	}

	if attempt == nil {
		attempt = &attemptRecord{
			ID:        uuid.New().String(),
			UserID:    userID,
			ExamID:    examID,
			StartedAt: now,
			ExpiresAt: now.Add(time.Duration(rec.Exam.TimeLimitMinutes) * time.Minute),
		}
		s.attempts[attempt.ID] = attempt
	}

	if now.After(attempt.ExpiresAt) {
		// Deadline passed before the client came back: finalize empty.
		attempt.Submitted = true
		attempt.ForceSubmitted = true
		expiredAt := attempt.ExpiresAt
		attempt.SubmittedAt = &expiredAt
		return nil, fail(http.StatusBadRequest, "Exam time has expired")
	}

	snapshot := rec.Exam
	snapshot.Questions = secureQuestions(rec.Questions)

	return &model.AttemptStart{
		AttemptID:  attempt.ID,
		Exam:       snapshot,
		ServerTime: now,
		ExpiresAt:  attempt.ExpiresAt,
	}, nil
}

// SubmitAttempt grades the submission server-side. Duplicate submissions are
// rejected here regardless of any client-side guard, and the deadline check is
// the server's own: a submission arriving past ExpiresAt is still graded but
// closed as force-submitted, whatever the client's clock believed.
func (s *Store) SubmitAttempt(userID, attemptID string, responses []model.AnswerSubmission) (*model.AttemptResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	attempt, ok := s.attempts[attemptID]
	if !ok || attempt.UserID != userID {
		return nil, fail(http.StatusNotFound, "Attempt not found")
	}
	if attempt.Submitted {
		return nil, fail(http.StatusBadRequest, "Exam already submitted")
	}

	rec := s.exams[attempt.ExamID]
	now := s.now().UTC()
	if now.After(attempt.ExpiresAt) {
		attempt.ForceSubmitted = true
	}

	selected := make(map[string]string, len(responses))
	for _, r := range responses {
		selected[r.QuestionID] = r.SelectedOptionID
	}

	score := 0
	maxScore := 0
	var breakdown []model.ResponseResult
	for _, q := range rec.Questions {
		maxScore += q.Points

		var correctID string
		for _, o := range q.Options {
			if o.IsCorrect {
				correctID = o.ID
			}
		}

		chosen, answered := selected[q.ID]
		if !answered {
			continue
		}
		isCorrect := chosen == correctID
		earned := 0
		if isCorrect {
			earned = q.Points
			score += earned
		}
		breakdown = append(breakdown, model.ResponseResult{
			QuestionID:       q.ID,
			QuestionContent:  q.Content,
			SelectedOptionID: chosen,
			CorrectOptionID:  correctID,
			IsCorrect:        isCorrect,
			PointsEarned:     earned,
			MaxPoints:        q.Points,
		})
	}

	attempt.Submitted = true
	attempt.SubmittedAt = &now
	attempt.Score = score
	attempt.MaxScore = maxScore
	attempt.Responses = breakdown

	return s.resultLocked(attempt, rec), nil
}

// ListAttempts returns the user's attempt history, newest first.
func (s *Store) ListAttempts(userID string) []model.AttemptSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.AttemptSummary
	for _, a := range s.attempts {
		if a.UserID != userID {
			continue
		}
		rec := s.exams[a.ExamID]
		summary := model.AttemptSummary{
			ID:          a.ID,
			ExamID:      a.ExamID,
			ExamTitle:   rec.Exam.Title,
			StartedAt:   a.StartedAt,
			SubmittedAt: a.SubmittedAt,
			IsSubmitted: a.Submitted,
		}
		if a.Submitted {
			score, maxScore := a.Score, a.MaxScore
			summary.Score = &score
			summary.MaxScore = &maxScore
		}
		out = append(out, summary)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}

// GetAttemptResult returns the graded outcome of a submitted attempt.
func (s *Store) GetAttemptResult(userID, attemptID string) (*model.AttemptResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	attempt, ok := s.attempts[attemptID]
	if !ok || attempt.UserID != userID {
		return nil, fail(http.StatusNotFound, "Attempt not found")
	}
	if !attempt.Submitted {
		return nil, fail(http.StatusBadRequest, "Exam not yet submitted")
	}
	return s.resultLocked(attempt, s.exams[attempt.ExamID]), nil
}

func (s *Store) resultLocked(attempt *attemptRecord, rec *examRecord) *model.AttemptResult {
	percentage := 0.0
	if attempt.MaxScore > 0 {
		percentage = float64(attempt.Score) / float64(attempt.MaxScore) * 100
	}
	return &model.AttemptResult{
		AttemptID:      attempt.ID,
		ExamTitle:      rec.Exam.Title,
		Score:          attempt.Score,
		MaxScore:       attempt.MaxScore,
		Percentage:     percentage,
		StartedAt:      attempt.StartedAt,
		SubmittedAt:    attempt.SubmittedAt,
		ForceSubmitted: attempt.ForceSubmitted,
		Responses:      attempt.Responses,
	}
}

// secureQuestions converts keyed questions to the wire shape, stripping the
// correctness flag. The answer key must never reach the client.
func secureQuestions(questions []keyedQuestion) []model.Question {
	out := make([]model.Question, 0, len(questions))
	for _, q := range questions {
		options := make([]model.Option, 0, len(q.Options))
		for _, o := range q.Options {
			options = append(options, model.Option{ID: o.ID, Content: o.Content, Order: o.Order})
		}
		sort.Slice(options, func(i, j int) bool { return options[i].Order < options[j].Order })
		out = append(out, model.Question{
			ID:      q.ID,
			Content: q.Content,
			Order:   q.Order,
			Points:  q.Points,
			Options: options,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}
