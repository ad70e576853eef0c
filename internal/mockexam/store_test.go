package mockexam

import (
	"errors"
	"testing"
	"time"

	"github.com/stemsi/examcli/internal/model"
	"golang.org/x/crypto/bcrypt"
)

func detailOf(t *testing.T, err error) string {
	t.Helper()
	var he *httpError
	if !errors.As(err, &he) {
		t.Fatalf("error = %v, want *httpError", err)
	}
	return he.detail
}

// fixture builds a store pinned to a fixed clock with one student and one
// two-question, 30-minute exam. Option index 0 is correct on both questions.
func fixture(t *testing.T) (*Store, string, string, *time.Time) {
	t.Helper()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store := NewStore(bcrypt.MinCost)
	store.now = func() time.Time { return now }

	student, err := store.CreateUser(model.RegisterRequest{
		Email:    "student@test.local",
		Password: "password123",
		FullName: "Store Test Student",
		Role:     model.RoleStudent,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	examID := store.AddExam("author-1", "Store Sample", "", 30, []SeedQuestion{
		{Content: "First", Points: 5, Options: []SeedOption{
			{Content: "Right", Correct: true}, {Content: "Wrong"},
		}},
		{Content: "Second", Points: 5, Options: []SeedOption{
			{Content: "Right", Correct: true}, {Content: "Wrong"},
		}},
	})

	return store, student.ID, examID, &now
}

func TestStartAttemptResumesUnfinished(t *testing.T) {
	store, userID, examID, now := fixture(t)

	first, err := store.StartAttempt(userID, examID)
	if err != nil {
		t.Fatalf("first start: %v", err)
	}

	*now = now.Add(5 * time.Minute)
	second, err := store.StartAttempt(userID, examID)
	if err != nil {
		t.Fatalf("resumed start: %v", err)
	}

	if second.AttemptID != first.AttemptID {
		t.Fatal("resuming created a second attempt")
	}
	if !second.ExpiresAt.Equal(first.ExpiresAt) {
		t.Fatalf("deadline moved on resume: %v → %v", first.ExpiresAt, second.ExpiresAt)
	}
	if want := first.ServerTime.Add(30 * time.Minute); !first.ExpiresAt.Equal(want) {
		t.Fatalf("deadline = %v, want start + 30m (%v)", first.ExpiresAt, want)
	}
}

func TestStartAttemptRejectsCompletedExam(t *testing.T) {
	store, userID, examID, _ := fixture(t)

	attempt, err := store.StartAttempt(userID, examID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := store.SubmitAttempt(userID, attempt.AttemptID, nil); err != nil {
		t.Fatalf("submit: %v", err)
	}

	_, err = store.StartAttempt(userID, examID)
	if got := detailOf(t, err); got != "You have already completed this exam" {
		t.Fatalf("detail = %q", got)
	}
}

func TestExpiredAttemptFinalizesOnReturn(t *testing.T) {
	store, userID, examID, now := fixture(t)

	attempt, err := store.StartAttempt(userID, examID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	*now = now.Add(31 * time.Minute)
	_, err = store.StartAttempt(userID, examID)
	if got := detailOf(t, err); got != "Exam time has expired" {
		t.Fatalf("detail = %q", got)
	}

	// The attempt was finalized empty at its deadline.
	result, err := store.GetAttemptResult(userID, attempt.AttemptID)
	if err != nil {
		t.Fatalf("result after forced finalize: %v", err)
	}
	if result.Score != 0 || result.MaxScore != 0 {
		t.Fatalf("forced-finalize result = %d/%d, want 0/0", result.Score, result.MaxScore)
	}
	if result.SubmittedAt == nil || !result.SubmittedAt.Equal(attempt.ExpiresAt) {
		t.Fatalf("submitted_at = %v, want the deadline %v", result.SubmittedAt, attempt.ExpiresAt)
	}
	if !result.ForceSubmitted {
		t.Fatal("deadline finalize not marked force-submitted")
	}
}

func TestLateSubmitClosedAsForceSubmitted(t *testing.T) {
	store, userID, examID, now := fixture(t)

	attempt, err := store.StartAttempt(userID, examID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	q1 := attempt.Exam.Questions[0]

	// The client's clock lied; the answers arrive an hour past the deadline.
	*now = now.Add(90 * time.Minute)
	result, err := store.SubmitAttempt(userID, attempt.AttemptID, []model.AnswerSubmission{
		{QuestionID: q1.ID, SelectedOptionID: q1.Options[0].ID},
	})
	if err != nil {
		t.Fatalf("late submit: %v", err)
	}

	if !result.ForceSubmitted {
		t.Fatal("late submission not closed as force-submitted")
	}
	if result.Score != 5 {
		t.Fatalf("late submission score = %d, want 5 — answers are still graded", result.Score)
	}

	// The marking survives into the stored result.
	stored, err := store.GetAttemptResult(userID, attempt.AttemptID)
	if err != nil {
		t.Fatalf("stored result: %v", err)
	}
	if !stored.ForceSubmitted {
		t.Fatal("stored result lost the force-submitted marking")
	}
}

func TestSubmitGradesAndOmitsUnanswered(t *testing.T) {
	store, userID, examID, _ := fixture(t)

	attempt, err := store.StartAttempt(userID, examID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	q1 := attempt.Exam.Questions[0]

	// Answer only the first question, correctly.
	result, err := store.SubmitAttempt(userID, attempt.AttemptID, []model.AnswerSubmission{
		{QuestionID: q1.ID, SelectedOptionID: q1.Options[0].ID},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if result.Score != 5 || result.MaxScore != 10 || result.Percentage != 50.0 {
		t.Fatalf("result = %d/%d %.1f%%, want 5/10 50.0%%", result.Score, result.MaxScore, result.Percentage)
	}
	if len(result.Responses) != 1 {
		t.Fatalf("breakdown has %d entries, want 1 — unanswered questions are omitted", len(result.Responses))
	}
	if !result.Responses[0].IsCorrect || result.Responses[0].PointsEarned != 5 {
		t.Fatalf("breakdown = %+v", result.Responses[0])
	}
	if result.ForceSubmitted {
		t.Fatal("timely submission marked force-submitted")
	}
}

func TestSubmitRejectsDuplicate(t *testing.T) {
	store, userID, examID, _ := fixture(t)

	attempt, err := store.StartAttempt(userID, examID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := store.SubmitAttempt(userID, attempt.AttemptID, nil); err != nil {
		t.Fatalf("first submit: %v", err)
	}

	_, err = store.SubmitAttempt(userID, attempt.AttemptID, nil)
	if got := detailOf(t, err); got != "Exam already submitted" {
		t.Fatalf("detail = %q", got)
	}
}

func TestSnapshotStripsAnswerKeyAndSorts(t *testing.T) {
	store, userID, examID, _ := fixture(t)

	attempt, err := store.StartAttempt(userID, examID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	questions := attempt.Exam.Questions
	if len(questions) != 2 {
		t.Fatalf("snapshot has %d questions, want 2", len(questions))
	}
	for i, q := range questions {
		if q.Order != i {
			t.Fatalf("question %d has order %d, snapshot must be sorted", i, q.Order)
		}
		for j, o := range q.Options {
			if o.Order != j {
				t.Fatalf("option %d/%d out of order", i, j)
			}
			if o.ID == "" || o.Content == "" {
				t.Fatalf("option %d/%d missing wire fields: %+v", i, j, o)
			}
		}
	}
}

func TestAuthenticateRotatesSession(t *testing.T) {
	store, userID, _, _ := fixture(t)

	_, firstSession, err := store.Authenticate("student@test.local", "password123")
	if err != nil {
		t.Fatalf("first login: %v", err)
	}
	if err := store.VerifySession(userID, firstSession); err != nil {
		t.Fatalf("verify first session: %v", err)
	}

	_, secondSession, err := store.Authenticate("student@test.local", "password123")
	if err != nil {
		t.Fatalf("second login: %v", err)
	}
	if firstSession == secondSession {
		t.Fatal("login did not rotate the session id")
	}

	err = store.VerifySession(userID, firstSession)
	if got := detailOf(t, err); got != "Session invalidated - logged in elsewhere" {
		t.Fatalf("detail = %q", got)
	}

	// Logout clears it entirely; even the current session stops verifying.
	store.ClearSession(userID)
	if err := store.VerifySession(userID, secondSession); err == nil {
		t.Fatal("session verified after logout")
	}
}

func TestListPublishedExamsHonorsWindow(t *testing.T) {
	store, _, examID, now := fixture(t)

	exams := store.ListPublishedExams()
	if len(exams) != 1 || exams[0].ID != examID || exams[0].QuestionCount != 2 {
		t.Fatalf("listing = %+v", exams)
	}
	if len(exams[0].Questions) != 0 {
		t.Fatal("listing must not include question bodies")
	}

	// Close the availability window.
	end := now.Add(-time.Hour)
	store.mu.Lock()
	store.exams[examID].Exam.EndDate = &end
	store.mu.Unlock()

	if got := store.ListPublishedExams(); len(got) != 0 {
		t.Fatalf("listing after window closed = %+v, want empty", got)
	}
}
