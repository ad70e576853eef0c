// Package render draws the client's terminal output. It is presentation
// only: nothing here mutates attempt state, and selection input is accepted
// by the command layer solely while the controller reports an attempt in
// progress.
package render

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/stemsi/examcli/internal/model"
	"github.com/stemsi/examcli/internal/session"
)

// OptionLetter maps an option index to its display letter (A, B, C, ...).
func OptionLetter(i int) string {
	return string(rune('A' + i))
}

// ExamTable prints the student's available exams.
func ExamTable(w io.Writer, exams []model.Exam) {
	if len(exams) == 0 {
		fmt.Fprintln(w, "No exams available.")
		return
	}

	fmt.Fprintf(w, "%-36s  %-30s  %5s  %9s\n", "ID", "TITLE", "MIN", "QUESTIONS")
	for _, e := range exams {
		fmt.Fprintf(w, "%-36s  %-30s  %5d  %9d\n",
			e.ID, truncate(e.Title, 30), e.TimeLimitMinutes, e.QuestionCount)
	}
}

// TeacherExamTable prints a teacher's exams including publication state.
func TeacherExamTable(w io.Writer, exams []model.Exam) {
	if len(exams) == 0 {
		fmt.Fprintln(w, "No exams yet.")
		return
	}

	fmt.Fprintf(w, "%-36s  %-30s  %5s  %9s  %s\n", "ID", "TITLE", "MIN", "QUESTIONS", "PUBLISHED")
	for _, e := range exams {
		published := "no"
		if e.IsPublished != nil && *e.IsPublished {
			published = "yes"
		}
		fmt.Fprintf(w, "%-36s  %-30s  %5d  %9d  %s\n",
			e.ID, truncate(e.Title, 30), e.TimeLimitMinutes, e.QuestionCount, published)
	}
}

// AttemptTable prints the student's attempt history.
func AttemptTable(w io.Writer, attempts []model.AttemptSummary) {
	if len(attempts) == 0 {
		fmt.Fprintln(w, "No attempts yet.")
		return
	}

	fmt.Fprintf(w, "%-36s  %-30s  %-20s  %s\n", "ATTEMPT", "EXAM", "STARTED", "SCORE")
	for _, a := range attempts {
		score := "in progress"
		if a.IsSubmitted {
			if a.Score != nil && a.MaxScore != nil {
				score = fmt.Sprintf("%d/%d", *a.Score, *a.MaxScore)
			} else {
				score = "pending"
			}
		}
		fmt.Fprintf(w, "%-36s  %-30s  %-20s  %s\n",
			a.ID, truncate(a.ExamTitle, 30), a.StartedAt.Local().Format("2006-01-02 15:04"), score)
	}
}

// Questions prints every question card with the current selections marked.
func Questions(w io.Writer, exam model.Exam, selections map[string]string) {
	for i, q := range exam.Questions {
		QuestionCard(w, i+1, q, selections[q.ID])
	}
}

// QuestionCard prints one question with lettered options; the selected
// option, if any, is marked.
func QuestionCard(w io.Writer, number int, q model.Question, selectedID string) {
	fmt.Fprintf(w, "\nQ%d. %s  (%d pts)\n", number, q.Content, q.Points)
	for i, o := range q.Options {
		marker := " "
		if o.ID == selectedID {
			marker = "*"
		}
		fmt.Fprintf(w, "  [%s] %s) %s\n", marker, OptionLetter(i), o.Content)
	}
}

// CountdownLine formats the remaining time as MM:SS with an urgency tag.
func CountdownLine(remaining time.Duration, phase session.Phase) string {
	minutes, seconds := session.Countdown(remaining)
	line := fmt.Sprintf("%02d:%02d", minutes, seconds)
	switch phase {
	case session.PhaseDanger:
		return line + " !!"
	case session.PhaseWarning:
		return line + " !"
	default:
		return line
	}
}

// Progress formats the answered/total counter.
func Progress(answered, total int) string {
	return fmt.Sprintf("%d of %d answered", answered, total)
}

// Result prints the graded outcome: the score summary and, when the server
// released it, the per-question breakdown.
func Result(w io.Writer, result *model.AttemptResult) {
	status := "submitted"
	if result.ForceSubmitted {
		status = "force-submitted at the deadline"
	}
	fmt.Fprintf(w, "\n%s\n", strings.Repeat("=", 50))
	fmt.Fprintf(w, "%s — %s\n", result.ExamTitle, status)
	fmt.Fprintf(w, "Score: %d/%d (%.1f%%)\n", result.Score, result.MaxScore, result.Percentage)

	if len(result.Responses) == 0 {
		fmt.Fprintln(w, "Per-question breakdown not released.")
		return
	}

	for i, r := range result.Responses {
		mark := "✗"
		if r.IsCorrect {
			mark = "✓"
		}
		fmt.Fprintf(w, "  %s Q%d: %s  (%d/%d pts)\n",
			mark, i+1, truncate(r.QuestionContent, 50), r.PointsEarned, r.MaxPoints)
	}
}

// truncate shortens s to at most max runes, never splitting a multi-byte
// character.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
