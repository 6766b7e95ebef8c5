package orchestra

import (
	"context"
	"fmt"
	"time"

	"github.com/devicelab-dev/orchestra/pkg/core"
	"github.com/devicelab-dev/orchestra/pkg/filters"
	"github.com/devicelab-dev/orchestra/pkg/flow"
)

// compileSelector compiles a selector with anchors resolved against the
// live hierarchy: relative clauses (below, childOf, containsChild) trigger
// recursive lookups through the same path.
func (o *Orchestra) compileSelector(ctx context.Context, sel *flow.Selector) (core.ElementLookup, error) {
	return filters.Compile(sel, func(anchor *flow.Selector) (*core.FindResult, error) {
		return o.findElement(ctx, anchor, o.lookupTimeout)
	})
}

// findElement resolves a selector to a single element, waiting up to the
// interaction-adjusted timeout. Not finding one is an ElementNotFoundError
// carrying the last hierarchy snapshot and a debug hint.
func (o *Orchestra) findElement(ctx context.Context, sel *flow.Selector, timeout time.Duration) (*core.FindResult, error) {
	lookup, err := o.compileSelector(ctx, sel)
	if err != nil {
		return nil, err
	}

	adjusted := o.adjustedToLatestInteraction(timeout)
	res, err := o.driver.FindElementWithTimeout(ctx, adjusted, lookup, nil)
	if err != nil {
		return nil, err
	}
	if res == nil {
		hierarchy, _ := o.driver.ViewHierarchy(ctx)
		debug := fmt.Sprintf(
			"Element matching %s was not found within %s. If the view takes longer to "+
				"appear, increase the timeout; if the element is not always present, mark "+
				"the command optional; otherwise loosen the selector.",
			lookup.Description, adjusted)
		return nil, core.NewElementNotFound(lookup.Description, hierarchy, debug)
	}
	return res, nil
}
