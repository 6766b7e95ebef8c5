// Package filters compiles element selectors into predicates over
// view-hierarchy snapshots.
package filters

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/devicelab-dev/orchestra/pkg/core"
	"github.com/devicelab-dev/orchestra/pkg/flow"
)

// Filter is one compiled selector clause: a predicate plus the fragment it
// contributes to the lookup description.
type Filter struct {
	Description string
	Apply       core.ElementFilter
}

// Resolver resolves an anchor selector eagerly against the live hierarchy.
// Spatial clauses and containsChild need a concrete element before their
// filter can be built; this is the only place filter construction touches
// the device.
type Resolver func(sel *flow.Selector) (*core.FindResult, error)

// Compile translates a selector into an ElementLookup. Clause filters
// compose by intersection; the index/clickable disambiguator is applied
// last by the returned Match function.
func Compile(sel *flow.Selector, resolve Resolver) (core.ElementLookup, error) {
	var clauses []Filter

	if sel.Text != "" {
		f, err := textMatches(sel.Text)
		if err != nil {
			return core.ElementLookup{}, err
		}
		clauses = append(clauses, f)
	}
	if sel.ID != "" {
		f, err := idMatches(sel.ID)
		if err != nil {
			return core.ElementLookup{}, err
		}
		clauses = append(clauses, f)
	}
	if sel.CSS != "" {
		clauses = append(clauses, cssMatches(sel.CSS))
	}
	if sel.Width != 0 || sel.Height != 0 {
		clauses = append(clauses, sizeMatches(sel.Width, sel.Height, sel.Tolerance))
	}
	if sel.Traits != "" {
		clauses = append(clauses, hasTraits(sel.Traits))
	}
	if sel.Enabled != nil {
		clauses = append(clauses, boolAttr("enabled", *sel.Enabled, func(n *core.TreeNode) bool { return n.Enabled }))
	}
	if sel.Selected != nil {
		clauses = append(clauses, boolAttr("selected", *sel.Selected, func(n *core.TreeNode) bool { return n.Selected }))
	}
	if sel.Checked != nil {
		clauses = append(clauses, boolAttr("checked", *sel.Checked, func(n *core.TreeNode) bool { return n.Checked }))
	}
	if sel.Focused != nil {
		clauses = append(clauses, boolAttr("focused", *sel.Focused, func(n *core.TreeNode) bool { return n.Focused }))
	}

	// Spatial clauses resolve their anchor eagerly.
	for _, rel := range []struct {
		name   string
		anchor *flow.Selector
		keep   func(candidate, anchor core.Bounds) bool
		dist   func(candidate, anchor core.Bounds) int
	}{
		{"below", sel.Below,
			func(c, a core.Bounds) bool { return c.Y >= a.Y+a.Height },
			func(c, a core.Bounds) int { return c.Y - (a.Y + a.Height) }},
		{"above", sel.Above,
			func(c, a core.Bounds) bool { return c.Y+c.Height <= a.Y },
			func(c, a core.Bounds) int { return a.Y - (c.Y + c.Height) }},
		{"leftOf", sel.LeftOf,
			func(c, a core.Bounds) bool { return c.X+c.Width <= a.X },
			func(c, a core.Bounds) int { return a.X - (c.X + c.Width) }},
		{"rightOf", sel.RightOf,
			func(c, a core.Bounds) bool { return c.X >= a.X+a.Width },
			func(c, a core.Bounds) int { return c.X - (a.X + a.Width) }},
	} {
		if rel.anchor == nil {
			continue
		}
		anchor, err := resolve(rel.anchor)
		if err != nil {
			return core.ElementLookup{}, err
		}
		clauses = append(clauses, spatial(rel.name, rel.anchor.Describe(), anchor.Bounds(), rel.keep, rel.dist))
	}

	if sel.ChildOf != nil {
		// Each childOf level resolves its own parent, which in turn may
		// carry its own childOf: resolution proceeds iteratively outward
		// through the recursive resolve call.
		parent, err := resolve(sel.ChildOf)
		if err != nil {
			return core.ElementLookup{}, err
		}
		clauses = append(clauses, scopedTo(sel.ChildOf.Describe(), parent.Node))
	}

	if sel.ContainsChild != nil {
		child, err := resolve(sel.ContainsChild)
		if err != nil {
			return core.ElementLookup{}, err
		}
		clauses = append(clauses, containsChild(sel.ContainsChild.Describe(), child.Node))
	}

	for _, inner := range sel.ContainsDescendants {
		f, err := containsDescendant(inner, resolve)
		if err != nil {
			return core.ElementLookup{}, err
		}
		clauses = append(clauses, f)
	}

	index := -1
	if sel.Index != "" {
		i, err := strconv.Atoi(strings.TrimSpace(sel.Index))
		if err != nil {
			return core.ElementLookup{}, core.NewInvalidCommand(
				fmt.Sprintf("selector index %q is not a number", sel.Index))
		}
		index = i
	}

	descriptions := make([]string, 0, len(clauses)+1)
	for _, c := range clauses {
		descriptions = append(descriptions, c.Description)
	}
	if index >= 0 {
		descriptions = append(descriptions, fmt.Sprintf("index %d", index))
	}
	description := strings.Join(descriptions, ", ")
	if description == "" {
		description = "(empty selector)"
	}

	return core.ElementLookup{
		Description: description,
		Match: func(h *core.ViewHierarchy) *core.TreeNode {
			nodes := h.Aggregate()
			for _, c := range clauses {
				nodes = c.Apply(h, nodes)
				if len(nodes) == 0 {
					return nil
				}
			}
			return disambiguate(nodes, index)
		},
	}, nil
}

// disambiguate picks one node out of the surviving candidates: the i-th in
// document order when an index is set; otherwise the first clickable one;
// otherwise the first overall.
func disambiguate(nodes []*core.TreeNode, index int) *core.TreeNode {
	if index >= 0 {
		if index < len(nodes) {
			return nodes[index]
		}
		return nil
	}
	for _, n := range nodes {
		if n.Clickable {
			return n
		}
	}
	return nodes[0]
}

// compileRegex applies the selector regex semantics: case-insensitive,
// dot-matches-all, multiline, whole-value match.
func compileRegex(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(`(?ims)\A(?:` + pattern + `)\z`)
	if err != nil {
		return nil, core.NewInvalidCommand(fmt.Sprintf("invalid selector regex %q: %v", pattern, err))
	}
	return re, nil
}

func textMatches(pattern string) (Filter, error) {
	re, err := compileRegex(pattern)
	if err != nil {
		return Filter{}, err
	}
	return Filter{
		Description: fmt.Sprintf("text matching %q", pattern),
		Apply: func(_ *core.ViewHierarchy, nodes []*core.TreeNode) []*core.TreeNode {
			var out []*core.TreeNode
			for _, n := range nodes {
				if re.MatchString(n.Attr("text")) ||
					re.MatchString(n.Attr("hintText")) ||
					re.MatchString(n.Attr("accessibilityText")) {
					out = append(out, n)
				}
			}
			return out
		},
	}, nil
}

func idMatches(pattern string) (Filter, error) {
	re, err := compileRegex(pattern)
	if err != nil {
		return Filter{}, err
	}
	return Filter{
		Description: fmt.Sprintf("id matching %q", pattern),
		Apply: func(_ *core.ViewHierarchy, nodes []*core.TreeNode) []*core.TreeNode {
			var out []*core.TreeNode
			for _, n := range nodes {
				if re.MatchString(n.Attr("resource-id")) {
					out = append(out, n)
				}
			}
			return out
		},
	}, nil
}

func cssMatches(selector string) Filter {
	return Filter{
		Description: fmt.Sprintf("css %q", selector),
		Apply: func(_ *core.ViewHierarchy, nodes []*core.TreeNode) []*core.TreeNode {
			var out []*core.TreeNode
			for _, n := range nodes {
				if n.Attr("css") == selector {
					out = append(out, n)
				}
			}
			return out
		},
	}
}

func sizeMatches(width, height, tolerance int) Filter {
	within := func(actual, expected int) bool {
		if expected == 0 {
			return true
		}
		d := actual - expected
		if d < 0 {
			d = -d
		}
		return d <= tolerance
	}
	return Filter{
		Description: fmt.Sprintf("size %dx%d (tolerance %d)", width, height, tolerance),
		Apply: func(_ *core.ViewHierarchy, nodes []*core.TreeNode) []*core.TreeNode {
			var out []*core.TreeNode
			for _, n := range nodes {
				b, ok := n.Bounds()
				if !ok {
					continue
				}
				if within(b.Width, width) && within(b.Height, height) {
					out = append(out, n)
				}
			}
			return out
		},
	}
}

func hasTraits(traits string) Filter {
	var want []string
	for _, t := range strings.Split(traits, ",") {
		if t = strings.TrimSpace(t); t != "" {
			want = append(want, strings.ToLower(t))
		}
	}
	return Filter{
		Description: "traits " + traits,
		Apply: func(_ *core.ViewHierarchy, nodes []*core.TreeNode) []*core.TreeNode {
			var out []*core.TreeNode
			for _, n := range nodes {
				have := strings.ToLower(n.Attr("traits"))
				ok := true
				for _, w := range want {
					if !strings.Contains(have, w) {
						ok = false
						break
					}
				}
				if ok {
					out = append(out, n)
				}
			}
			return out
		},
	}
}

func boolAttr(name string, want bool, get func(*core.TreeNode) bool) Filter {
	return Filter{
		Description: fmt.Sprintf("%s=%t", name, want),
		Apply: func(_ *core.ViewHierarchy, nodes []*core.TreeNode) []*core.TreeNode {
			var out []*core.TreeNode
			for _, n := range nodes {
				if get(n) == want {
					out = append(out, n)
				}
			}
			return out
		},
	}
}

// spatial keeps candidates on the requested side of the anchor's bounding
// box, closest first.
func spatial(name, anchorDesc string, anchor core.Bounds,
	keep func(candidate, anchor core.Bounds) bool,
	dist func(candidate, anchor core.Bounds) int) Filter {
	return Filter{
		Description: fmt.Sprintf("%s %s", name, anchorDesc),
		Apply: func(_ *core.ViewHierarchy, nodes []*core.TreeNode) []*core.TreeNode {
			type scored struct {
				node *core.TreeNode
				d    int
			}
			var out []scored
			for _, n := range nodes {
				b, ok := n.Bounds()
				if !ok {
					continue
				}
				if keep(b, anchor) {
					out = append(out, scored{n, dist(b, anchor)})
				}
			}
			sort.SliceStable(out, func(i, j int) bool { return out[i].d < out[j].d })
			result := make([]*core.TreeNode, len(out))
			for i, s := range out {
				result[i] = s.node
			}
			return result
		},
	}
}

// scopedTo restricts the search to the subtree of a resolved parent.
func scopedTo(parentDesc string, parent *core.TreeNode) Filter {
	return Filter{
		Description: "child of " + parentDesc,
		Apply: func(_ *core.ViewHierarchy, nodes []*core.TreeNode) []*core.TreeNode {
			var out []*core.TreeNode
			for _, n := range nodes {
				if n != parent && parent.HasDescendant(n) {
					out = append(out, n)
				}
			}
			return out
		},
	}
}

// containsChild keeps candidates that directly contain the resolved child.
func containsChild(childDesc string, child *core.TreeNode) Filter {
	return Filter{
		Description: "contains child " + childDesc,
		Apply: func(_ *core.ViewHierarchy, nodes []*core.TreeNode) []*core.TreeNode {
			var out []*core.TreeNode
			for _, n := range nodes {
				for _, c := range n.Children {
					if c == child {
						out = append(out, n)
						break
					}
				}
			}
			return out
		},
	}
}

// containsDescendant is lazy: the inner selector compiles to filters that
// run against each candidate's subtree, without touching the device.
func containsDescendant(inner *flow.Selector, resolve Resolver) (Filter, error) {
	lookup, err := Compile(inner, resolve)
	if err != nil {
		return Filter{}, err
	}
	return Filter{
		Description: "contains descendant (" + lookup.Description + ")",
		Apply: func(h *core.ViewHierarchy, nodes []*core.TreeNode) []*core.TreeNode {
			var out []*core.TreeNode
			for _, n := range nodes {
				sub := h.Subtree(n)
				if lookup.Match(sub) != nil {
					out = append(out, n)
				}
			}
			return out
		},
	}, nil
}
