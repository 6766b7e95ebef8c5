package orchestra

import (
	"context"
	"fmt"
	"time"

	"github.com/devicelab-dev/orchestra/pkg/core"
	"github.com/devicelab-dev/orchestra/pkg/flow"
)

const (
	defaultScrollUntilVisibleTimeout = 20 * time.Second
	scrollFindAttemptWindow          = 500 * time.Millisecond
	defaultScrollSpeed               = 40
	// centerElement settles for partial visibility during the first few
	// swipes when the element already sits near the screen center.
	centerElementMaxRetries    = 4
	centerElementMinVisiblePct = 0.10
)

// executeScrollUntilVisible swipes from the screen center in the given
// direction until the element is sufficiently visible or the deadline
// passes.
func (o *Orchestra) executeScrollUntilVisible(ctx context.Context, c *flow.ScrollUntilVisibleCommand) (bool, error) {
	timeout := time.Duration(c.TimeoutMs) * time.Millisecond
	if timeout == 0 {
		timeout = defaultScrollUntilVisibleTimeout
	}

	visibilityNormalized := float64(c.VisibilityPercentage) / 100
	if c.VisibilityPercentage <= 0 {
		visibilityNormalized = 1
	}

	speed := c.Speed
	if speed <= 0 {
		speed = defaultScrollSpeed
	}
	if speed > 100 {
		speed = 100
	}
	scrollDurationMs := (100 - speed) * 10
	if scrollDurationMs < 100 {
		scrollDurationMs = 100
	}

	direction := parseDirection(c.Direction)
	lookup, err := o.compileSelector(ctx, &c.Element)
	if err != nil {
		return false, err
	}

	deadline := time.Now().Add(timeout)
	retries := 0
	for {
		if err := ctx.Err(); err != nil {
			return retries > 0, err
		}
		if time.Now().After(deadline) {
			break
		}

		res, err := o.driver.FindElementWithTimeout(ctx, scrollFindAttemptWindow, lookup, nil)
		if err != nil {
			return retries > 0, err
		}
		if res != nil {
			visiblePct := o.visiblePercentage(res)
			if c.CenterElement && visiblePct > centerElementMinVisiblePct &&
				retries <= centerElementMaxRetries && o.isNearCenter(res) {
				return true, nil
			}
			if visiblePct >= visibilityNormalized {
				return true, nil
			}
		}

		if err := o.driver.SwipeFromCenter(ctx, direction, scrollDurationMs, c.WaitToSettleTimeoutMs); err != nil {
			return retries > 0, err
		}
		retries++
	}

	hierarchy, _ := o.driver.ViewHierarchy(ctx)
	debug := fmt.Sprintf(
		"Element matching %s did not become visible within the %s timeout after %d scrolls. "+
			"Tuning knobs: timeout (current %dms), speed (current %d, lower swipes slower), "+
			"visibilityPercentage (current %d%%), centerElement (current %t), direction "+
			"(current %s).",
		lookup.Description, timeout, retries,
		int(timeout/time.Millisecond), speed, int(visibilityNormalized*100), c.CenterElement, direction)
	return retries > 0, core.NewElementNotFound(lookup.Description, hierarchy, debug)
}

// visiblePercentage computes the fraction of the element's area inside the
// device's logical grid.
func (o *Orchestra) visiblePercentage(res *core.FindResult) float64 {
	b, ok := res.Node.Bounds()
	if !ok || b.Width <= 0 || b.Height <= 0 {
		return 0
	}

	screenW, screenH := o.screenGrid()

	x1 := max(b.X, 0)
	y1 := max(b.Y, 0)
	x2 := min(b.X+b.Width, screenW)
	y2 := min(b.Y+b.Height, screenH)
	if x2 <= x1 || y2 <= y1 {
		return 0
	}

	visible := float64(x2-x1) * float64(y2-y1)
	total := float64(b.Width) * float64(b.Height)
	return visible / total
}

// isNearCenter reports whether the element's center sits in the middle
// third of the screen along the scroll axis.
func (o *Orchestra) isNearCenter(res *core.FindResult) bool {
	b, ok := res.Node.Bounds()
	if !ok {
		return false
	}
	_, screenH := o.screenGrid()
	_, cy := b.Center()
	return cy >= screenH/3 && cy <= screenH*2/3
}

// screenGrid returns the logical screen dimensions used for visibility
// math, falling back to pixel dimensions when no grid is reported.
func (o *Orchestra) screenGrid() (int, int) {
	info := o.driver.CachedDeviceInfo()
	if info == nil {
		return 1080, 1920
	}
	w, h := info.WidthGrid, info.HeightGrid
	if w == 0 || h == 0 {
		w, h = info.WidthPixels, info.HeightPixels
	}
	if w == 0 || h == 0 {
		return 1080, 1920
	}
	return w, h
}
