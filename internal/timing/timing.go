// Package timing provides lightweight stage timing for the bill
// processing pipeline.
package timing

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Timer measures a single named span.
type Timer struct {
	name     string
	start    time.Time
	duration time.Duration
}

// NewTimer starts a timer with the given name.
func NewTimer(name string) *Timer {
	return &Timer{name: name, start: time.Now()}
}

// Stop stops the timer and returns the elapsed duration.
func (t *Timer) Stop() time.Duration {
	t.duration = time.Since(t.start)
	return t.duration
}

// Duration returns the recorded duration, valid after Stop.
func (t *Timer) Duration() time.Duration { return t.duration }

// Name returns the timer name.
func (t *Timer) Name() string { return t.name }

func (t *Timer) String() string {
	return fmt.Sprintf("%s: %v", t.name, t.duration)
}

// StageClock accumulates durations of consecutive pipeline stages. It is
// not safe for concurrent use; each page worker keeps its own clock.
type StageClock struct {
	stages map[string]time.Duration
	order  []string
}

// NewStageClock creates an empty stage clock.
func NewStageClock() *StageClock {
	return &StageClock{stages: make(map[string]time.Duration)}
}

// Measure runs fn and records its duration under the stage name.
func (c *StageClock) Measure(stage string, fn func()) {
	t := NewTimer(stage)
	fn()
	c.record(stage, t.Stop())
}

// Track returns a stop function that records the elapsed time under the
// stage name. Intended for defer-free inline use around error-returning
// calls.
func (c *StageClock) Track(stage string) func() {
	t := NewTimer(stage)
	return func() { c.record(stage, t.Stop()) }
}

func (c *StageClock) record(stage string, d time.Duration) {
	if _, seen := c.stages[stage]; !seen {
		c.order = append(c.order, stage)
	}
	c.stages[stage] += d
}

// Get returns the accumulated duration of one stage.
func (c *StageClock) Get(stage string) time.Duration { return c.stages[stage] }

// Total sums all recorded stages.
func (c *StageClock) Total() time.Duration {
	var total time.Duration
	for _, d := range c.stages {
		total += d
	}
	return total
}

// Attrs renders the stages as alternating key/value pairs for structured
// logging, in first-recorded order.
func (c *StageClock) Attrs() []any {
	attrs := make([]any, 0, 2*len(c.order))
	for _, stage := range c.order {
		attrs = append(attrs, stage, c.stages[stage])
	}
	return attrs
}

func (c *StageClock) String() string {
	names := make([]string, len(c.order))
	copy(names, c.order)
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, n := range names {
		parts = append(parts, fmt.Sprintf("%s=%v", n, c.stages[n]))
	}
	return strings.Join(parts, " ")
}
