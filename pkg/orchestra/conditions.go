package orchestra

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/devicelab-dev/orchestra/pkg/core"
	"github.com/devicelab-dev/orchestra/pkg/flow"
)

// notVisiblePollInterval is the find window used for each attempt while
// polling a notVisible clause.
const notVisiblePollInterval = 500 * time.Millisecond

// evaluateCondition decides the truth of a condition against the current
// UI, platform and script state. Clauses are conjunctive; an empty
// condition is true. timeoutMs of zero falls back to the optional lookup
// window for visibility clauses.
func (o *Orchestra) evaluateCondition(ctx context.Context, cond *flow.Condition, commandOptional bool, timeoutMs int) (bool, error) {
	if cond.IsEmpty() {
		return true, nil
	}

	timeout := time.Duration(timeoutMs) * time.Millisecond
	if timeout == 0 {
		timeout = o.optionalLookupTimeout
	}

	if cond.Platform != "" {
		info := o.driver.CachedDeviceInfo()
		if info == nil || !strings.EqualFold(info.Platform, cond.Platform) {
			return false, nil
		}
	}

	if cond.Visible != nil {
		_, err := o.findElement(ctx, cond.Visible, timeout)
		if err != nil {
			var notFound *core.ElementNotFoundError
			if errors.As(err, &notFound) {
				return false, nil
			}
			return false, err
		}
	}

	if cond.NotVisible != nil {
		visible, err := o.waitForNotVisible(ctx, cond.NotVisible, timeout)
		if err != nil {
			return false, err
		}
		if visible {
			return false, nil
		}
	}

	if cond.Script != "" {
		if !scriptResultTruthy(cond.Script) {
			return false, nil
		}
	}

	return true, nil
}

// waitForNotVisible polls with short find attempts within the adjusted
// window and succeeds (returns visible=false) as soon as one attempt
// reports not-found. An element visible for the whole window returns true.
func (o *Orchestra) waitForNotVisible(ctx context.Context, sel *flow.Selector, timeout time.Duration) (visible bool, err error) {
	lookup, err := o.compileSelector(ctx, sel)
	if err != nil {
		return false, err
	}

	deadline := time.Now().Add(o.adjustedToLatestInteraction(timeout))
	for {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		res, err := o.driver.FindElementWithTimeout(ctx, notVisiblePollInterval, lookup, nil)
		if err != nil {
			return false, err
		}
		if res == nil {
			return false, nil
		}
		if time.Now().After(deadline) {
			return true, nil
		}
	}
}

// scriptResultTruthy applies the condition truthiness rules to a
// pre-substituted script expression result: empty strings, "false",
// "undefined", "null" (case-insensitive) and numeric zero are false.
func scriptResultTruthy(result string) bool {
	s := strings.TrimSpace(result)
	if s == "" {
		return false
	}
	switch strings.ToLower(s) {
	case "false", "undefined", "null":
		return false
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil && n == 0 {
		return false
	}
	return true
}
