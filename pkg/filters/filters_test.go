package filters

import (
	"strings"
	"testing"

	"github.com/devicelab-dev/orchestra/pkg/core"
	"github.com/devicelab-dev/orchestra/pkg/flow"
)

func node(attrs map[string]string, children ...*core.TreeNode) *core.TreeNode {
	if attrs == nil {
		attrs = map[string]string{}
	}
	return &core.TreeNode{Attributes: attrs, Children: children}
}

func hierarchyOf(children ...*core.TreeNode) *core.ViewHierarchy {
	return &core.ViewHierarchy{Root: node(map[string]string{"bounds": "[0,0][1080,1920]"}, children...)}
}

// failingResolver is used where no relative clauses exist.
func failingResolver(sel *flow.Selector) (*core.FindResult, error) {
	panic("resolver must not be called for non-relative selectors")
}

func staticResolver(h *core.ViewHierarchy) Resolver {
	var resolve Resolver
	resolve = func(sel *flow.Selector) (*core.FindResult, error) {
		lookup, err := Compile(sel, resolve)
		if err != nil {
			return nil, err
		}
		n := lookup.Match(h)
		if n == nil {
			return nil, core.NewElementNotFound(lookup.Description, h, "")
		}
		return &core.FindResult{Node: n, Hierarchy: h}, nil
	}
	return resolve
}

func TestCompile_TextMatchIsCaseInsensitive(t *testing.T) {
	target := node(map[string]string{"text": "Submit Order"})
	h := hierarchyOf(node(map[string]string{"text": "Cancel"}), target)

	lookup, err := Compile(&flow.Selector{Text: "submit order"}, failingResolver)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if got := lookup.Match(h); got != target {
		t.Errorf("Match() = %v, want the submit node", got)
	}
}

func TestCompile_TextMatchesHintAndAccessibilityText(t *testing.T) {
	hint := node(map[string]string{"hintText": "Email"})
	a11y := node(map[string]string{"accessibilityText": "Password"})
	h := hierarchyOf(hint, a11y)

	lookup, _ := Compile(&flow.Selector{Text: "Email"}, failingResolver)
	if got := lookup.Match(h); got != hint {
		t.Errorf("hintText match failed, got %v", got)
	}

	lookup, _ = Compile(&flow.Selector{Text: "Password"}, failingResolver)
	if got := lookup.Match(h); got != a11y {
		t.Errorf("accessibilityText match failed, got %v", got)
	}
}

func TestCompile_TextRegexIsFullMatch(t *testing.T) {
	target := node(map[string]string{"text": "Item 12"})
	h := hierarchyOf(node(map[string]string{"text": "Item 123"}), target)

	lookup, err := Compile(&flow.Selector{Text: `Item \d{2}`}, failingResolver)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if got := lookup.Match(h); got != target {
		t.Errorf("Match() picked %v, want the two-digit node", got)
	}
}

func TestCompile_InvalidRegexIsInvalidCommand(t *testing.T) {
	_, err := Compile(&flow.Selector{Text: "("}, failingResolver)
	if err == nil {
		t.Fatalf("Compile() error = nil, want invalid command")
	}
	if !core.IsDomainError(err) {
		t.Errorf("error %v is not a domain error", err)
	}
}

func TestCompile_IntersectionOfClauses(t *testing.T) {
	match := node(map[string]string{"text": "Go", "resource-id": "btn_go"})
	wrongID := node(map[string]string{"text": "Go", "resource-id": "btn_other"})
	h := hierarchyOf(wrongID, match)

	lookup, err := Compile(&flow.Selector{Text: "Go", ID: "btn_go"}, failingResolver)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if got := lookup.Match(h); got != match {
		t.Errorf("Match() = %v, want intersection result", got)
	}
}

func TestDisambiguate_PrefersClickable(t *testing.T) {
	plain := node(map[string]string{"text": "Tab"})
	clickable := node(map[string]string{"text": "Tab"})
	clickable.Clickable = true
	h := hierarchyOf(plain, clickable)

	lookup, _ := Compile(&flow.Selector{Text: "Tab"}, failingResolver)
	if got := lookup.Match(h); got != clickable {
		t.Errorf("Match() = %v, want the clickable node", got)
	}
}

func TestDisambiguate_IndexPicksDocumentOrder(t *testing.T) {
	first := node(map[string]string{"text": "Row"})
	second := node(map[string]string{"text": "Row"})
	third := node(map[string]string{"text": "Row"})
	h := hierarchyOf(first, second, third)

	lookup, err := Compile(&flow.Selector{Text: "Row", Index: "1"}, failingResolver)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if got := lookup.Match(h); got != second {
		t.Errorf("Match() with index 1 = %v, want second node", got)
	}

	lookup, _ = Compile(&flow.Selector{Text: "Row", Index: "5"}, failingResolver)
	if got := lookup.Match(h); got != nil {
		t.Errorf("Match() with out-of-range index = %v, want nil", got)
	}
}

func TestCompile_BelowUsesAnchorBounds(t *testing.T) {
	anchor := node(map[string]string{"text": "Header", "bounds": "[0,0][1080,100]"})
	above := node(map[string]string{"text": "Row", "bounds": "[0,0][1080,50]"})
	nearBelow := node(map[string]string{"text": "Row", "bounds": "[0,120][1080,180]"})
	farBelow := node(map[string]string{"text": "Row", "bounds": "[0,500][1080,560]"})
	h := hierarchyOf(anchor, above, farBelow, nearBelow)

	lookup, err := Compile(&flow.Selector{
		Text:  "Row",
		Below: &flow.Selector{Text: "Header"},
	}, staticResolver(h))
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if got := lookup.Match(h); got != nearBelow {
		t.Errorf("Match() = %v, want the nearest node below the anchor", got)
	}
}

func TestCompile_ChildOfScopesSearch(t *testing.T) {
	insideTarget := node(map[string]string{"text": "Save"})
	container := node(map[string]string{"resource-id": "dialog", "bounds": "[0,0][500,500]"}, insideTarget)
	outside := node(map[string]string{"text": "Save"})
	h := hierarchyOf(outside, container)

	lookup, err := Compile(&flow.Selector{
		Text:    "Save",
		ChildOf: &flow.Selector{ID: "dialog"},
	}, staticResolver(h))
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if got := lookup.Match(h); got != insideTarget {
		t.Errorf("Match() = %v, want the node inside the dialog", got)
	}
}

func TestCompile_ContainsDescendantsIsLazy(t *testing.T) {
	price := node(map[string]string{"text": "$10"})
	title := node(map[string]string{"text": "Widget"})
	card := node(map[string]string{"resource-id": "card"}, title, price)
	emptyCard := node(map[string]string{"resource-id": "card"})
	h := hierarchyOf(emptyCard, card)

	lookup, err := Compile(&flow.Selector{
		ID: "card",
		ContainsDescendants: []*flow.Selector{
			{Text: "Widget"},
			{Text: `\$10`},
		},
	}, staticResolver(h))
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if got := lookup.Match(h); got != card {
		t.Errorf("Match() = %v, want the populated card", got)
	}
}

func TestCompile_StateFilters(t *testing.T) {
	on := node(map[string]string{"text": "Wifi"})
	on.Checked = true
	off := node(map[string]string{"text": "Wifi"})
	h := hierarchyOf(off, on)

	checked := true
	lookup, _ := Compile(&flow.Selector{Text: "Wifi", Checked: &checked}, failingResolver)
	if got := lookup.Match(h); got != on {
		t.Errorf("Match() = %v, want the checked node", got)
	}
}

func TestCompile_SizeWithTolerance(t *testing.T) {
	match := node(map[string]string{"bounds": "[0,0][104,52]"})
	tooBig := node(map[string]string{"bounds": "[0,0][300,300]"})
	h := hierarchyOf(tooBig, match)

	lookup, _ := Compile(&flow.Selector{Width: 100, Height: 50, Tolerance: 5}, failingResolver)
	if got := lookup.Match(h); got != match {
		t.Errorf("Match() = %v, want the tolerance-sized node", got)
	}
}

func TestCompile_DescriptionListsClauses(t *testing.T) {
	lookup, err := Compile(&flow.Selector{Text: "Pay", Index: "2"}, failingResolver)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	for _, fragment := range []string{`text matching "Pay"`, "index 2"} {
		if !strings.Contains(lookup.Description, fragment) {
			t.Errorf("Description = %q, missing %q", lookup.Description, fragment)
		}
	}
}
