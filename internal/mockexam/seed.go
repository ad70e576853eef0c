package mockexam

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/stemsi/examcli/internal/model"
)

// SeedOption is an answer choice with its key, for installing exams.
type SeedOption struct {
	Content string
	Correct bool
}

// SeedQuestion is a question definition for installing exams.
type SeedQuestion struct {
	Content string
	Points  int
	Options []SeedOption
}

// AddExam installs a published exam with its answer key and returns the exam
// ID. Used by the dev seed and by tests that need a known key.
func (s *Store) AddExam(authorID, title, description string, timeLimitMinutes int, questions []SeedQuestion) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	published := true
	rec := &examRecord{
		Exam: model.Exam{
			ID:               uuid.New().String(),
			Title:            title,
			Description:      description,
			TimeLimitMinutes: timeLimitMinutes,
			IsPublished:      &published,
		},
		AuthorID: authorID,
	}

	for qi, q := range questions {
		kq := keyedQuestion{
			ID:      uuid.New().String(),
			Content: q.Content,
			Order:   qi,
			Points:  q.Points,
		}
		for oi, o := range q.Options {
			kq.Options = append(kq.Options, keyedOption{
				ID:        uuid.New().String(),
				Content:   o.Content,
				Order:     oi,
				IsCorrect: o.Correct,
			})
		}
		rec.Questions = append(rec.Questions, kq)
	}

	s.exams[rec.Exam.ID] = rec
	return rec.Exam.ID
}

// Seed installs demo accounts and sample exams for local development.
// Accounts: teacher@example.com / password123, student@example.com /
// password123.
func (s *Store) Seed() error {
	teacher, err := s.CreateUser(model.RegisterRequest{
		Email:    "teacher@example.com",
		Password: "password123",
		FullName: "Demo Teacher",
		Role:     model.RoleTeacher,
	})
	if err != nil {
		return fmt.Errorf("seed teacher: %w", err)
	}

	if _, err := s.CreateUser(model.RegisterRequest{
		Email:    "student@example.com",
		Password: "password123",
		FullName: "Demo Student",
		Role:     model.RoleStudent,
	}); err != nil {
		return fmt.Errorf("seed student: %w", err)
	}

	s.AddExam(teacher.ID, "Go Fundamentals", "Syntax, types and tooling basics", 30, []SeedQuestion{
		{
			Content: "Which keyword declares a new variable with inferred type?",
			Points:  5,
			Options: []SeedOption{
				{Content: "var x = 1", Correct: true},
				{Content: "let x = 1"},
				{Content: "auto x = 1"},
				{Content: "def x = 1"},
			},
		},
		{
			Content: "What does the blank identifier _ do?",
			Points:  5,
			Options: []SeedOption{
				{Content: "Declares a global variable"},
				{Content: "Discards a value", Correct: true},
				{Content: "Imports a package for tests"},
				{Content: "Marks a function as private"},
			},
		},
		{
			Content: "Which builtin grows a slice?",
			Points:  5,
			Options: []SeedOption{
				{Content: "push"},
				{Content: "extend"},
				{Content: "append", Correct: true},
				{Content: "insert"},
			},
		},
	})

	s.AddExam(teacher.ID, "Networking Basics", "Transport protocols and addressing", 45, []SeedQuestion{
		{
			Content: "Which protocol guarantees in-order delivery?",
			Points:  10,
			Options: []SeedOption{
				{Content: "UDP"},
				{Content: "TCP", Correct: true},
				{Content: "ICMP"},
				{Content: "ARP"},
			},
		},
		{
			Content: "What is the default HTTPS port?",
			Points:  10,
			Options: []SeedOption{
				{Content: "80"},
				{Content: "8080"},
				{Content: "443", Correct: true},
				{Content: "22"},
			},
		},
	})

	return nil
}
