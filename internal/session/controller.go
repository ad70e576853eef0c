package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/examcli/internal/model"
)

// State is the attempt lifecycle position.
type State string

const (
	StateIdle       State = "idle"
	StateStarting   State = "starting"
	StateInProgress State = "in_progress"
	StateSubmitting State = "submitting"
	StateGraded     State = "graded"
	StateFailed     State = "failed"
)

// Trigger identifies what initiated a submission.
type Trigger string

const (
	TriggerManual Trigger = "manual"
	TriggerExpiry Trigger = "expiry"
)

// Backend is the exam API surface the controller drives.
type Backend interface {
	StartAttempt(ctx context.Context, examID string) (*model.AttemptStart, error)
	SubmitAttempt(ctx context.Context, attemptID string, responses []model.AnswerSubmission) (*model.AttemptResult, error)
}

// transienter is implemented by backend errors that are safe to retry.
type transienter interface{ Transient() bool }

var (
	ErrAttemptActive   = errors.New("an attempt is already active")
	ErrNoActiveAttempt = errors.New("no attempt in progress")
)

// Controller owns one attempt session: the exam snapshot, the answer store
// and the countdown clock. It is the single authority permitted to trigger
// submission; the in_progress → submitting transition is guarded under the
// mutex so racing triggers (manual submit vs clock expiry) produce exactly
// one backend submission per attempt.
type Controller struct {
	mu      sync.Mutex
	backend Backend
	tick    time.Duration
	log     zerolog.Logger

	state     State
	attempt   *model.AttemptStart
	answers   *AnswerStore
	clock     *Clock
	result    *model.AttemptResult
	lastErr   error
	retryable bool

	notify chan State
}

// NewController creates an idle controller. tick is the clock granularity.
func NewController(backend Backend, tick time.Duration, log zerolog.Logger) *Controller {
	return &Controller{
		backend: backend,
		tick:    tick,
		log:     log.With().Str("component", "attempt_controller").Logger(),
		state:   StateIdle,
	}
}

// OnChange registers a callback invoked (outside the controller lock) after
// every state transition. Deliveries run on a single goroutine in transition
// order. Used by the presentation layer to redraw when the clock drives a
// transition from a background goroutine.
func (c *Controller) OnChange(fn func(State)) {
	ch := make(chan State, 16)
	c.mu.Lock()
	c.notify = ch
	c.mu.Unlock()

	go func() {
		for st := range ch {
			fn(st)
		}
	}()
}

// Start requests attempt creation for examID and, on success, arms a fresh
// answer store and clock from the returned snapshot. Only one non-terminal
// attempt may exist at a time.
func (c *Controller) Start(ctx context.Context, examID string) (*model.AttemptStart, error) {
	c.mu.Lock()
	switch c.state {
	case StateStarting, StateInProgress, StateSubmitting:
		c.mu.Unlock()
		return nil, ErrAttemptActive
	}
	c.setStateLocked(StateStarting)
	c.mu.Unlock()

	attempt, err := c.backend.StartAttempt(ctx, examID)

	c.mu.Lock()
	if err != nil {
		c.lastErr = err
		c.attempt = nil
		c.answers = nil
		c.retryable = false
		if c.clock != nil {
			// A prior retryable-failed attempt may still hold its clock;
			// its countdown must not outlive the attempt.
			c.clock.Stop()
			c.clock = nil
		}
		c.setStateLocked(StateFailed)
		c.mu.Unlock()
		return nil, err
	}

	c.attempt = attempt
	c.answers = NewAnswerStore()
	c.result = nil
	c.lastErr = nil
	c.clock = NewClock(c.tick)
	c.setStateLocked(StateInProgress)
	clock := c.clock
	c.mu.Unlock()

	clock.Arm(attempt.ExpiresAt, c.expire)

	c.log.Info().
		Str("attempt_id", attempt.AttemptID).
		Time("expires_at", attempt.ExpiresAt).
		Msg("Attempt started")

	return attempt, nil
}

// Select records a choice for the current attempt. Pure client-side; allowed
// only while the attempt is in progress.
func (c *Controller) Select(questionID, optionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateInProgress {
		return ErrNoActiveAttempt
	}
	c.answers.Select(questionID, optionID)
	return nil
}

// Submit freezes the answer set and sends it to the backend. A nil result
// with a nil error means the trigger was ignored because a submission is
// already in flight or done — the deliberate no-op for the double-trigger
// race, not an error.
func (c *Controller) Submit(ctx context.Context, trigger Trigger) (*model.AttemptResult, error) {
	c.mu.Lock()
	switch c.state {
	case StateSubmitting, StateGraded:
		c.mu.Unlock()
		c.log.Debug().Str("trigger", string(trigger)).Msg("Duplicate submission trigger ignored")
		return nil, nil
	}
	retry := c.state == StateFailed && c.retryable && c.attempt != nil
	if c.state != StateInProgress && !retry {
		c.mu.Unlock()
		return nil, ErrNoActiveAttempt
	}

	// The guard: flip to submitting before releasing the lock, so the
	// losing trigger sees StateSubmitting above and backs off.
	c.setStateLocked(StateSubmitting)
	attempt := c.attempt
	snapshot := c.answers.Snapshot()
	if c.clock != nil {
		c.clock.Stop()
	}
	c.mu.Unlock()

	payload := buildResponses(attempt.Exam, snapshot)
	c.log.Info().
		Str("attempt_id", attempt.AttemptID).
		Str("trigger", string(trigger)).
		Int("answered", len(payload)).
		Msg("Submitting attempt")

	result, err := c.backend.SubmitAttempt(ctx, attempt.AttemptID, payload)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.lastErr = err
		c.retryable = isTransient(err)

		if c.retryable && c.clock != nil && c.clock.Remaining() > 0 {
			// Transient failure with time on the clock: answers stay
			// intact, countdown resumes toward the same expiry.
			c.setStateLocked(StateInProgress)
			c.clock.Arm(attempt.ExpiresAt, c.expire)
		} else {
			c.setStateLocked(StateFailed)
			if !c.retryable {
				// The attempt is finalized server-side; nothing left
				// to resubmit.
				c.attempt = nil
				c.answers = nil
				c.clock = nil
			}
		}
		return nil, err
	}

	c.result = result
	c.attempt = nil
	c.answers = nil
	c.clock = nil
	c.lastErr = nil
	c.setStateLocked(StateGraded)
	return result, nil
}

// expire is the clock's callback; it drives the timer-side of the race.
func (c *Controller) expire() {
	c.log.Info().Msg("Countdown reached zero, auto-submitting")
	if _, err := c.Submit(context.Background(), TriggerExpiry); err != nil {
		c.log.Error().Err(err).Msg("Auto-submit failed")
	}
}

// State returns the current lifecycle position.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempt returns the live attempt snapshot, or nil outside an attempt.
func (c *Controller) Attempt() *model.AttemptStart {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempt
}

// Result returns the graded outcome once the controller reaches graded.
func (c *Controller) Result() *model.AttemptResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}

// Err returns the most recent failure and whether a retry is worthwhile.
func (c *Controller) Err() (error, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr, c.retryable
}

// Selections returns a copy of the current answer set for display, nil
// outside an attempt.
func (c *Controller) Selections() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.answers == nil {
		return nil
	}
	return c.answers.Snapshot()
}

// Progress reports answered vs total question counts for display.
func (c *Controller) Progress() (answered, total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.attempt == nil || c.answers == nil {
		return 0, 0
	}
	return c.answers.Count(), len(c.attempt.Exam.Questions)
}

// Remaining returns the countdown's remaining duration, zero when no clock
// is armed.
func (c *Controller) Remaining() time.Duration {
	c.mu.Lock()
	clock := c.clock
	c.mu.Unlock()
	if clock == nil {
		return 0
	}
	return clock.Remaining()
}

// ClockPhase returns the countdown urgency for display.
func (c *Controller) ClockPhase() Phase {
	c.mu.Lock()
	clock := c.clock
	c.mu.Unlock()
	if clock == nil {
		return PhaseDanger
	}
	return clock.Phase()
}

func (c *Controller) setStateLocked(next State) {
	c.state = next
	if c.notify != nil {
		// Buffered so the state machine never blocks on the consumer; a
		// consumer that far behind can read the current state from the
		// accessors.
		select {
		case c.notify <- next:
		default:
		}
	}
}

// buildResponses orders the frozen selections by the exam's question order.
// Unanswered questions are omitted, not defaulted.
func buildResponses(exam model.Exam, selected map[string]string) []model.AnswerSubmission {
	out := make([]model.AnswerSubmission, 0, len(selected))
	for _, q := range exam.Questions {
		if opt, ok := selected[q.ID]; ok {
			out = append(out, model.AnswerSubmission{
				QuestionID:       q.ID,
				SelectedOptionID: opt,
			})
		}
	}
	return out
}

func isTransient(err error) bool {
	var t transienter
	return errors.As(err, &t) && t.Transient()
}
