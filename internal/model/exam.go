package model

import "time"

// Option is a single answer choice. The correctness flag never appears in
// this shape — answer keys stay server-side for the whole attempt lifecycle.
type Option struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	Order   int    `json:"order"`
}

// Question is one exam question with its display-ordered options.
type Question struct {
	ID      string   `json:"id"`
	Content string   `json:"content"`
	Order   int      `json:"order"`
	Points  int      `json:"points"`
	Options []Option `json:"options"`
}

// Exam represents an exam as delivered to the client. Listings carry
// QuestionCount only; the full question set arrives with an attempt snapshot.
type Exam struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	Description      string     `json:"description,omitempty"`
	TimeLimitMinutes int        `json:"time_limit_minutes"`
	StartDate        *time.Time `json:"start_date,omitempty"`
	EndDate          *time.Time `json:"end_date,omitempty"`
	IsPublished      *bool      `json:"is_published,omitempty"`
	QuestionCount    int        `json:"question_count,omitempty"`
	Questions        []Question `json:"questions,omitempty"`
}
