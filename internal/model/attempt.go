package model

import "time"

// AttemptStart is the snapshot returned when an attempt is created. The exam
// inside it is authoritative for the attempt's lifetime; the client must not
// re-fetch the exam while the attempt is live.
type AttemptStart struct {
	AttemptID  string    `json:"attempt_id"`
	Exam       Exam      `json:"exam"`
	ServerTime time.Time `json:"server_time"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// AnswerSubmission is a single (question, selected option) pair. Unanswered
// questions are omitted from the submission, never defaulted.
type AnswerSubmission struct {
	QuestionID       string `json:"question_id"`
	SelectedOptionID string `json:"selected_option_id"`
}

// SubmitRequest is the full submission payload for an attempt.
type SubmitRequest struct {
	Responses []AnswerSubmission `json:"responses"`
}

// ResponseResult is the graded outcome for one question.
type ResponseResult struct {
	QuestionID       string `json:"question_id"`
	QuestionContent  string `json:"question_content"`
	SelectedOptionID string `json:"selected_option_id,omitempty"`
	CorrectOptionID  string `json:"correct_option_id"`
	IsCorrect        bool   `json:"is_correct"`
	PointsEarned     int    `json:"points_earned"`
	MaxPoints        int    `json:"max_points"`
}

// AttemptResult is the terminal graded outcome of a submitted attempt.
// ForceSubmitted marks attempts the server closed at or past the deadline
// rather than through a timely submission.
type AttemptResult struct {
	AttemptID      string           `json:"attempt_id"`
	ExamTitle      string           `json:"exam_title"`
	Score          int              `json:"score"`
	MaxScore       int              `json:"max_score"`
	Percentage     float64          `json:"percentage"`
	StartedAt      time.Time        `json:"started_at"`
	SubmittedAt    *time.Time       `json:"submitted_at,omitempty"`
	ForceSubmitted bool             `json:"force_submitted"`
	Responses      []ResponseResult `json:"responses"`
}

// AttemptSummary is a brief attempt entry for history listings.
type AttemptSummary struct {
	ID          string     `json:"id"`
	ExamID      string     `json:"exam_id"`
	ExamTitle   string     `json:"exam_title"`
	StartedAt   time.Time  `json:"started_at"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	IsSubmitted bool       `json:"is_submitted"`
	Score       *int       `json:"score,omitempty"`
	MaxScore    *int       `json:"max_score,omitempty"`
}
