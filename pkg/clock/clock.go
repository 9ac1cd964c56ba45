// Package clock provides the monotonic millisecond clock used by both lanes.
package clock

import (
	"context"
	"sync"
	"time"
)

// Clock is the time source for lanes and the acquisition protocol.
type Clock interface {
	// NowMs returns milliseconds since the clock started. Monotonic.
	NowMs() uint64
	// Now returns the local wall clock.
	Now() time.Time
	// Sleep blocks for d or until ctx is done.
	Sleep(ctx context.Context, d time.Duration) error
	// After returns a channel that receives once d has elapsed.
	After(d time.Duration) <-chan time.Time
}

// Ensure implementations satisfy Clock.
var (
	_ Clock = (*System)(nil)
	_ Clock = (*Fake)(nil)
)

// System is the real clock.
type System struct {
	start time.Time
}

// NewSystem creates a clock whose NowMs starts at zero.
func NewSystem() *System {
	return &System{start: time.Now()}
}

// NowMs returns milliseconds since NewSystem.
func (c *System) NowMs() uint64 {
	return uint64(time.Since(c.start).Milliseconds())
}

// Now returns time.Now.
func (c *System) Now() time.Time {
	return time.Now()
}

// Sleep waits for d unless ctx is cancelled first.
func (c *System) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// After returns time.After(d).
func (c *System) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

type fakeTimer struct {
	deadline uint64
	ch       chan time.Time
}

// Fake is a deterministic clock. Time only moves on Sleep and Advance.
type Fake struct {
	mu     sync.Mutex
	ms     uint64
	wall   time.Time
	timers []fakeTimer
}

// NewFake creates a fake clock at NowMs()==0 and the given wall time.
func NewFake(wall time.Time) *Fake {
	return &Fake{wall: wall}
}

// NowMs returns the fake monotonic time.
func (c *Fake) NowMs() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ms
}

// Now returns the fake wall time.
func (c *Fake) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wall
}

// Sleep advances the clock by d without blocking.
func (c *Fake) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.Advance(d)
	return nil
}

// After returns a channel fired once Advance moves past d.
func (c *Fake) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- c.wall
		return ch
	}
	c.timers = append(c.timers, fakeTimer{deadline: c.ms + uint64(d.Milliseconds()), ch: ch})
	return ch
}

// Advance moves both clocks forward and fires due timers.
func (c *Fake) Advance(d time.Duration) {
	if d < 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ms += uint64(d.Milliseconds())
	c.wall = c.wall.Add(d)

	pending := c.timers[:0]
	for _, t := range c.timers {
		if t.deadline <= c.ms {
			t.ch <- c.wall
			continue
		}
		pending = append(pending, t)
	}
	c.timers = pending
}

// SetWall replaces the fake wall time without moving NowMs.
func (c *Fake) SetWall(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.wall = t
}
