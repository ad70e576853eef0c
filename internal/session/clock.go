package session

import (
	"sync"
	"time"
)

// Phase is the presentation urgency of the remaining time.
type Phase string

const (
	PhaseNormal  Phase = "normal"  // more than 5 minutes left
	PhaseWarning Phase = "warning" // between 1 and 5 minutes left
	PhaseDanger  Phase = "danger"  // final minute
)

// Clock converts an absolute server-issued expiry instant into a locally
// ticking countdown. The expiry callback fires exactly once; a stopped clock
// never fires. The server's own deadline check remains authoritative — this
// countdown is a display convenience on an untrusted local clock.
type Clock struct {
	mu       sync.Mutex
	tick     time.Duration
	now      func() time.Time
	expiry   time.Time
	onExpire func()
	fired    bool
	stop     chan struct{}
}

// NewClock creates an unarmed clock recomputing every tick interval.
func NewClock(tick time.Duration) *Clock {
	if tick <= 0 {
		tick = time.Second
	}
	return &Clock{tick: tick, now: time.Now}
}

// Arm starts the countdown toward expiry and registers the expiry callback.
// Arming an already-armed clock supersedes the prior countdown entirely.
func (c *Clock) Arm(expiry time.Time, onExpire func()) {
	c.mu.Lock()
	c.stopLocked()
	c.expiry = expiry
	c.onExpire = onExpire
	c.fired = false
	stop := make(chan struct{})
	c.stop = stop
	c.mu.Unlock()

	go c.run(stop)
}

// Stop disposes the countdown. Safe to call multiple times and after expiry;
// a stopped clock never invokes its callback.
func (c *Clock) Stop() {
	c.mu.Lock()
	c.stopLocked()
	c.mu.Unlock()
}

// Remaining returns max(0, expiry − now).
func (c *Clock) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remainingLocked()
}

// Phase classifies Remaining into the display urgency thresholds.
func (c *Clock) Phase() Phase {
	rem := c.Remaining()
	switch {
	case rem <= time.Minute:
		return PhaseDanger
	case rem <= 5*time.Minute:
		return PhaseWarning
	default:
		return PhaseNormal
	}
}

// Countdown splits a duration into whole minutes and seconds, rounded down.
func Countdown(d time.Duration) (minutes, seconds int) {
	total := int(d / time.Second)
	if total < 0 {
		total = 0
	}
	return total / 60, total % 60
}

func (c *Clock) run(stop chan struct{}) {
	// Check immediately so an expiry already in the past fires without
	// waiting out a full tick.
	if fire, cb := c.check(stop); fire {
		cb()
		return
	}

	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if fire, cb := c.check(stop); fire {
				cb()
				return
			}
		}
	}
}

// check flips the fired flag if the countdown has hit zero. The zero test and
// the flag flip happen under a single lock acquisition, and the stop channel
// identity ties the decision to this arming, so a re-armed or stopped clock
// can never fire a stale callback.
func (c *Clock) check(stop chan struct{}) (bool, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stop != stop || c.fired {
		return false, nil
	}
	if c.remainingLocked() > 0 {
		return false, nil
	}

	c.fired = true
	c.stop = nil
	return true, c.onExpire
}

func (c *Clock) remainingLocked() time.Duration {
	d := c.expiry.Sub(c.now())
	if d < 0 {
		return 0
	}
	return d
}

func (c *Clock) stopLocked() {
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
}
