package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/examcli/internal/model"
)

// transientErr simulates a retryable backend failure.
type transientErr struct{ msg string }

func (e *transientErr) Error() string   { return e.msg }
func (e *transientErr) Transient() bool { return true }

// fakeBackend scripts start/submit outcomes and records what was sent.
type fakeBackend struct {
	mu sync.Mutex

	startResp *model.AttemptStart
	startErr  error

	submitErrs  []error // consumed one per call; nil entry means success
	submitDelay time.Duration
	result      *model.AttemptResult

	submitCalls   int
	lastResponses []model.AnswerSubmission
}

func (f *fakeBackend) StartAttempt(ctx context.Context, examID string) (*model.AttemptStart, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	return f.startResp, nil
}

func (f *fakeBackend) SubmitAttempt(ctx context.Context, attemptID string, responses []model.AnswerSubmission) (*model.AttemptResult, error) {
	f.mu.Lock()
	f.submitCalls++
	f.lastResponses = responses
	var err error
	if len(f.submitErrs) > 0 {
		err = f.submitErrs[0]
		f.submitErrs = f.submitErrs[1:]
	}
	delay := f.submitDelay
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}
	return f.result, nil
}

func (f *fakeBackend) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitCalls
}

func (f *fakeBackend) sent() []model.AnswerSubmission {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastResponses
}

func twoQuestionAttempt(expiry time.Time) *model.AttemptStart {
	return &model.AttemptStart{
		AttemptID: "attempt-1",
		Exam: model.Exam{
			ID:               "exam-1",
			Title:            "Sample",
			TimeLimitMinutes: 60,
			Questions: []model.Question{
				{ID: "q1", Order: 0, Points: 5, Options: []model.Option{
					{ID: "q1a", Order: 0}, {ID: "q1b", Order: 1},
				}},
				{ID: "q2", Order: 1, Points: 5, Options: []model.Option{
					{ID: "q2a", Order: 0}, {ID: "q2b", Order: 1},
				}},
			},
		},
		ServerTime: time.Now(),
		ExpiresAt:  expiry,
	}
}

func gradedResult() *model.AttemptResult {
	return &model.AttemptResult{
		AttemptID:  "attempt-1",
		ExamTitle:  "Sample",
		Score:      5,
		MaxScore:   10,
		Percentage: 50.0,
	}
}

func newTestController(backend Backend, tick time.Duration) *Controller {
	return NewController(backend, tick, zerolog.Nop())
}

func TestStartTransitionsToInProgress(t *testing.T) {
	backend := &fakeBackend{startResp: twoQuestionAttempt(time.Now().Add(time.Hour))}
	ctrl := newTestController(backend, time.Hour)

	attempt, err := ctrl.Start(context.Background(), "exam-1")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if attempt.AttemptID != "attempt-1" {
		t.Fatalf("attempt id = %q", attempt.AttemptID)
	}
	if got := ctrl.State(); got != StateInProgress {
		t.Fatalf("state = %q, want in_progress", got)
	}

	answered, total := ctrl.Progress()
	if answered != 0 || total != 2 {
		t.Fatalf("Progress() = %d/%d, want 0/2", answered, total)
	}

	// A second start while one is active is refused.
	if _, err := ctrl.Start(context.Background(), "exam-2"); !errors.Is(err, ErrAttemptActive) {
		t.Fatalf("second Start error = %v, want ErrAttemptActive", err)
	}
}

func TestStartFailure(t *testing.T) {
	backend := &fakeBackend{startErr: errors.New("Exam not found or not available")}
	ctrl := newTestController(backend, time.Hour)

	if _, err := ctrl.Start(context.Background(), "missing"); err == nil {
		t.Fatal("Start succeeded, want error")
	}
	if got := ctrl.State(); got != StateFailed {
		t.Fatalf("state = %q, want failed", got)
	}
	if ctrl.Attempt() != nil {
		t.Fatal("failed start retained an attempt")
	}
}

func TestFailedStartDropsPriorClock(t *testing.T) {
	backend := &fakeBackend{
		startResp:  twoQuestionAttempt(time.Now().Add(40 * time.Millisecond)),
		submitErrs: []error{&transientErr{msg: "connection reset"}},
	}
	ctrl := newTestController(backend, time.Hour)

	// Park the controller in retryable-failed, which keeps the attempt's
	// clock around for a manual retry.
	if _, err := ctrl.Start(context.Background(), "exam-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(60 * time.Millisecond)
	if _, err := ctrl.Submit(context.Background(), TriggerManual); err == nil {
		t.Fatal("Submit succeeded, want transient failure")
	}
	if ctrl.clock == nil {
		t.Fatal("retryable failure should retain the clock")
	}

	backend.startErr = errors.New("Exam not found or not available")
	if _, err := ctrl.Start(context.Background(), "missing"); err == nil {
		t.Fatal("Start succeeded, want error")
	}

	if ctrl.clock != nil {
		t.Fatal("failed start kept the prior attempt's clock")
	}
	if got := ctrl.Remaining(); got != 0 {
		t.Fatalf("Remaining() after failed start = %v, want 0", got)
	}
}

func TestSelectRequiresInProgress(t *testing.T) {
	ctrl := newTestController(&fakeBackend{}, time.Hour)
	if err := ctrl.Select("q1", "q1a"); !errors.Is(err, ErrNoActiveAttempt) {
		t.Fatalf("Select error = %v, want ErrNoActiveAttempt", err)
	}
}

func TestDoubleTriggerSubmitsOnce(t *testing.T) {
	backend := &fakeBackend{
		startResp:   twoQuestionAttempt(time.Now().Add(time.Hour)),
		submitDelay: 50 * time.Millisecond,
		result:      gradedResult(),
	}
	ctrl := newTestController(backend, time.Hour)

	if _, err := ctrl.Start(context.Background(), "exam-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var wg sync.WaitGroup
	results := make([]*model.AttemptResult, 2)
	errs := make([]error, 2)
	for i, trigger := range []Trigger{TriggerManual, TriggerExpiry} {
		wg.Add(1)
		go func(i int, trigger Trigger) {
			defer wg.Done()
			results[i], errs[i] = ctrl.Submit(context.Background(), trigger)
		}(i, trigger)
	}
	wg.Wait()

	if got := backend.calls(); got != 1 {
		t.Fatalf("backend received %d submissions, want exactly 1", got)
	}
	for i := range errs {
		if errs[i] != nil {
			t.Fatalf("trigger %d errored: %v", i, errs[i])
		}
	}
	// Exactly one trigger carried the result; the other was the no-op.
	if (results[0] == nil) == (results[1] == nil) {
		t.Fatalf("want exactly one winning trigger, got %v / %v", results[0], results[1])
	}
	if got := ctrl.State(); got != StateGraded {
		t.Fatalf("state = %q, want graded", got)
	}
}

func TestSubmitPayloadUsesLatestSelections(t *testing.T) {
	backend := &fakeBackend{
		startResp: twoQuestionAttempt(time.Now().Add(time.Hour)),
		result:    gradedResult(),
	}
	ctrl := newTestController(backend, time.Hour)

	if _, err := ctrl.Start(context.Background(), "exam-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := ctrl.Select("q1", "q1a"); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if err := ctrl.Select("q2", "q2b"); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if err := ctrl.Select("q1", "q1b"); err != nil { // overwrite
		t.Fatalf("Select: %v", err)
	}

	if _, err := ctrl.Submit(context.Background(), TriggerManual); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	sent := backend.sent()
	want := []model.AnswerSubmission{
		{QuestionID: "q1", SelectedOptionID: "q1b"},
		{QuestionID: "q2", SelectedOptionID: "q2b"},
	}
	if len(sent) != len(want) {
		t.Fatalf("payload has %d entries, want %d", len(sent), len(want))
	}
	for i := range want {
		if sent[i] != want[i] {
			t.Fatalf("payload[%d] = %+v, want %+v", i, sent[i], want[i])
		}
	}

	// Selection after leaving in_progress is refused.
	if err := ctrl.Select("q1", "q1a"); !errors.Is(err, ErrNoActiveAttempt) {
		t.Fatalf("post-submit Select error = %v, want ErrNoActiveAttempt", err)
	}
}

func TestSubmitEmptyAnswerSet(t *testing.T) {
	backend := &fakeBackend{
		startResp: twoQuestionAttempt(time.Now().Add(time.Hour)),
		result:    gradedResult(),
	}
	ctrl := newTestController(backend, time.Hour)

	if _, err := ctrl.Start(context.Background(), "exam-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := ctrl.Submit(context.Background(), TriggerManual); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if got := len(backend.sent()); got != 0 {
		t.Fatalf("payload has %d entries, want 0 — unanswered questions must be omitted", got)
	}
}

func TestGradedResultRetained(t *testing.T) {
	backend := &fakeBackend{
		startResp: twoQuestionAttempt(time.Now().Add(time.Hour)),
		result:    gradedResult(),
	}
	ctrl := newTestController(backend, time.Hour)

	if _, err := ctrl.Start(context.Background(), "exam-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	result, err := ctrl.Submit(context.Background(), TriggerManual)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if result.Score != 5 || result.MaxScore != 10 || result.Percentage != 50.0 {
		t.Fatalf("result = %d/%d %.1f%%, want 5/10 50.0%%", result.Score, result.MaxScore, result.Percentage)
	}
	if got := ctrl.State(); got != StateGraded {
		t.Fatalf("state = %q, want graded", got)
	}
	if ctrl.Attempt() != nil || ctrl.Selections() != nil {
		t.Fatal("graded controller still references attempt working state")
	}
}

func TestTransientFailureReturnsToInProgress(t *testing.T) {
	backend := &fakeBackend{
		startResp:  twoQuestionAttempt(time.Now().Add(time.Hour)),
		submitErrs: []error{&transientErr{msg: "connection reset"}},
		result:     gradedResult(),
	}
	ctrl := newTestController(backend, time.Hour)

	if _, err := ctrl.Start(context.Background(), "exam-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := ctrl.Select("q1", "q1a"); err != nil {
		t.Fatalf("Select: %v", err)
	}

	if _, err := ctrl.Submit(context.Background(), TriggerManual); err == nil {
		t.Fatal("Submit succeeded, want transient failure")
	}
	if got := ctrl.State(); got != StateInProgress {
		t.Fatalf("state after transient failure = %q, want in_progress", got)
	}
	if got := ctrl.Selections(); got["q1"] != "q1a" {
		t.Fatalf("answer set lost on transient failure: %v", got)
	}

	// Retry goes through.
	if _, err := ctrl.Submit(context.Background(), TriggerManual); err != nil {
		t.Fatalf("retry Submit: %v", err)
	}
	if got := backend.calls(); got != 2 {
		t.Fatalf("backend received %d submissions, want 2", got)
	}
	if got := ctrl.State(); got != StateGraded {
		t.Fatalf("state = %q, want graded", got)
	}
}

func TestTransientFailureWithNoTimeLeft(t *testing.T) {
	backend := &fakeBackend{
		startResp:  twoQuestionAttempt(time.Now().Add(40 * time.Millisecond)),
		submitErrs: []error{&transientErr{msg: "connection reset"}},
	}
	// Tick far beyond the test so the clock cannot drive its own submit.
	ctrl := newTestController(backend, time.Hour)

	if _, err := ctrl.Start(context.Background(), "exam-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	time.Sleep(60 * time.Millisecond) // let the deadline pass

	if _, err := ctrl.Submit(context.Background(), TriggerManual); err == nil {
		t.Fatal("Submit succeeded, want transient failure")
	}
	if got := ctrl.State(); got != StateFailed {
		t.Fatalf("state = %q, want failed — no time left to re-arm", got)
	}
	if _, retryable := ctrl.Err(); !retryable {
		t.Fatal("transient failure should stay retryable")
	}
}

func TestTerminalFailureDropsAttempt(t *testing.T) {
	backend := &fakeBackend{
		startResp:  twoQuestionAttempt(time.Now().Add(time.Hour)),
		submitErrs: []error{errors.New("Exam already submitted")},
	}
	ctrl := newTestController(backend, time.Hour)

	if _, err := ctrl.Start(context.Background(), "exam-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := ctrl.Submit(context.Background(), TriggerManual); err == nil {
		t.Fatal("Submit succeeded, want terminal failure")
	}

	if got := ctrl.State(); got != StateFailed {
		t.Fatalf("state = %q, want failed", got)
	}
	if _, retryable := ctrl.Err(); retryable {
		t.Fatal("terminal failure must not be retryable")
	}
	if ctrl.Attempt() != nil {
		t.Fatal("terminal failure retained the attempt")
	}
	if _, err := ctrl.Submit(context.Background(), TriggerManual); !errors.Is(err, ErrNoActiveAttempt) {
		t.Fatalf("Submit after terminal failure = %v, want ErrNoActiveAttempt", err)
	}
}

func TestOnChangeDeliversInOrder(t *testing.T) {
	backend := &fakeBackend{
		startResp: twoQuestionAttempt(time.Now().Add(time.Hour)),
		result:    gradedResult(),
	}
	ctrl := newTestController(backend, time.Hour)

	var mu sync.Mutex
	var seen []State
	done := make(chan struct{}, 1)
	ctrl.OnChange(func(st State) {
		mu.Lock()
		seen = append(seen, st)
		mu.Unlock()
		if st == StateGraded {
			done <- struct{}{}
		}
	})

	if _, err := ctrl.Start(context.Background(), "exam-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := ctrl.Submit(context.Background(), TriggerManual); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("graded notification never arrived")
	}

	mu.Lock()
	defer mu.Unlock()
	want := []State{StateStarting, StateInProgress, StateSubmitting, StateGraded}
	if len(seen) != len(want) {
		t.Fatalf("notifications = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("notification %d = %q, want %q (full sequence %v)", i, seen[i], want[i], seen)
		}
	}
}

func TestExpiryDrivesAutoSubmit(t *testing.T) {
	backend := &fakeBackend{
		startResp: twoQuestionAttempt(time.Now().Add(30 * time.Millisecond)),
		result:    gradedResult(),
	}
	ctrl := newTestController(backend, 5*time.Millisecond)

	graded := make(chan struct{}, 1)
	ctrl.OnChange(func(st State) {
		if st == StateGraded {
			select {
			case graded <- struct{}{}:
			default:
			}
		}
	})

	if _, err := ctrl.Start(context.Background(), "exam-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case <-graded:
	case <-time.After(time.Second):
		t.Fatal("expiry never drove a submission")
	}

	if got := backend.calls(); got != 1 {
		t.Fatalf("backend received %d submissions, want 1", got)
	}

	// A late manual trigger is the deliberate no-op.
	result, err := ctrl.Submit(context.Background(), TriggerManual)
	if err != nil || result != nil {
		t.Fatalf("late manual Submit = (%v, %v), want (nil, nil)", result, err)
	}
}
