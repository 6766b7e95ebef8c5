package orchestra

import (
	"context"
	"sync/atomic"
	"time"
)

// pausePollInterval bounds how often a paused flow re-checks the flag and
// the cancellation signal.
const pausePollInterval = 100 * time.Millisecond

// FlowController is the cooperative pause/resume switch for a single flow.
// The flow task polls it between commands; pausing never interrupts a
// command mid-effect.
type FlowController struct {
	paused atomic.Bool
}

// NewFlowController creates a controller in the running state.
func NewFlowController() *FlowController {
	return &FlowController{}
}

// Pause requests the flow to suspend before its next command.
func (c *FlowController) Pause() {
	c.paused.Store(true)
}

// Resume lets a paused flow continue.
func (c *FlowController) Resume() {
	c.paused.Store(false)
}

// IsPaused reports the current state of the flag.
func (c *FlowController) IsPaused() bool {
	return c.paused.Load()
}

// WaitIfPaused blocks while the flow is paused, re-checking cancellation
// on every poll. Returns the context error when cancelled.
func (c *FlowController) WaitIfPaused(ctx context.Context) error {
	for c.paused.Load() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pausePollInterval):
		}
	}
	return ctx.Err()
}
