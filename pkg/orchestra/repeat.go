package orchestra

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/devicelab-dev/orchestra/pkg/core"
	"github.com/devicelab-dev/orchestra/pkg/flow"
	"github.com/devicelab-dev/orchestra/pkg/logger"
	"github.com/devicelab-dev/orchestra/pkg/scripting"
)

// retryAttemptCap bounds maxRetries regardless of what the flow asks for.
const retryAttemptCap = 3

// executeRepeat runs the nested commands up to times iterations, gated by
// the while condition each time around. Zero iterations is a skip, not a
// failure. raw keys the metadata entry whose run counter advances.
func (o *Orchestra) executeRepeat(ctx context.Context, raw flow.Command, c *flow.RepeatCommand, cfg *flow.Config) (bool, error) {
	// The while condition must re-substitute from its pre-evaluation form
	// each iteration, so loop variables updated by scripts are observed.
	whileCond := c.While
	if rawRepeat, ok := raw.(*flow.RepeatCommand); ok {
		whileCond = rawRepeat.While
	}

	maxRuns := math.MaxInt
	if c.Times != "" {
		n, err := parseFlowInt(c.Times)
		if err != nil {
			return false, core.NewInvalidCommand(fmt.Sprintf("repeat times %q is not a number", c.Times))
		}
		maxRuns = n
	}

	mutating := false
	runs := 0
	for runs < maxRuns {
		if ctx.Err() != nil {
			break
		}

		if whileCond != nil {
			cond, err := scripting.ExpandCondition(o.engine, whileCond)
			if err != nil {
				return mutating, err
			}
			ok, err := o.evaluateCondition(ctx, cond, c.IsOptional(), 0)
			if err != nil {
				return mutating, err
			}
			if !ok {
				break
			}
		}

		if runs > 0 {
			for _, child := range c.Commands {
				o.resetCommand(child)
			}
		}

		m, err := o.runSubCommands(ctx, c.Commands, cfg)
		mutating = mutating || m
		runs++
		o.updateMetadata(raw, func(md *CommandMetadata) {
			md.NumberOfRuns = runs
		})
		if err != nil {
			return mutating, err
		}
	}

	if runs == 0 {
		return false, core.ErrCommandSkipped
	}
	return mutating, nil
}

// resetCommand clears per-iteration state on a command and its
// descendants, firing OnCommandReset once per command per iteration.
func (o *Orchestra) resetCommand(cmd flow.Command) {
	if l := o.listeners.OnCommandReset; l != nil {
		l(cmd)
	}
	if composite, ok := cmd.(flow.CompositeCommand); ok {
		for _, sub := range composite.SubCommands() {
			o.resetCommand(sub)
		}
	}
}

// executeRetry attempts the nested commands as a sub-flow, retrying on any
// failure up to min(maxRetries, 3) extra attempts. raw keys the warning
// insight reported between attempts.
func (o *Orchestra) executeRetry(ctx context.Context, raw flow.Command, c *flow.RetryCommand, cfg *flow.Config) (bool, error) {
	maxRetries := 1
	if c.MaxRetries != "" {
		n, err := parseFlowInt(c.MaxRetries)
		if err != nil {
			return false, core.NewInvalidCommand(fmt.Sprintf("retry maxRetries %q is not a number", c.MaxRetries))
		}
		maxRetries = n
	}
	if maxRetries > retryAttemptCap {
		maxRetries = retryAttemptCap
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		mutating, err := o.runSubFlow(ctx, c.Commands, cfg, nil, c.Env)
		if err == nil {
			return mutating, nil
		}
		lastErr = err

		if attempt < maxRetries {
			msg := fmt.Sprintf("attempt %d of %d failed, retrying: %v", attempt+1, maxRetries+1, err)
			logger.Warn("retry: %s", msg)
			o.setInsight(raw, InsightWarning, msg)
		}
	}
	return false, lastErr
}

// parseFlowInt parses integers as flows write them, tolerating 10_000
// style separators.
func parseFlowInt(s string) (int, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), "_", "")
	return strconv.Atoi(s)
}
