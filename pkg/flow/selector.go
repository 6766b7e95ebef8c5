package flow

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Selector represents element selection criteria. Pure data structure; the
// filters package compiles it into predicates.
//
// Text and ID are regular expressions matched case-insensitively with
// dot-matches-all semantics.
type Selector struct {
	Text string `yaml:"text"`
	ID   string `yaml:"id"`

	// Size matching
	Width     int `yaml:"width"`
	Height    int `yaml:"height"`
	Tolerance int `yaml:"tolerance"`

	// State filters
	Enabled  *bool `yaml:"enabled"`
	Selected *bool `yaml:"selected"`
	Checked  *bool `yaml:"checked"`
	Focused  *bool `yaml:"focused"`

	// Index into multiple matches (string for variable support)
	Index string `yaml:"index"`

	// Traits (comma-separated, e.g. "button,heading")
	Traits string `yaml:"traits"`

	// CSS selector for web views
	CSS string `yaml:"css"`

	// Relative selectors
	ChildOf             *Selector   `yaml:"childOf"`
	Below               *Selector   `yaml:"below"`
	Above               *Selector   `yaml:"above"`
	LeftOf              *Selector   `yaml:"leftOf"`
	RightOf             *Selector   `yaml:"rightOf"`
	ContainsChild       *Selector   `yaml:"containsChild"`
	ContainsDescendants []*Selector `yaml:"containsDescendants"`

	// Optional demotes not-found failures to warnings, same as the
	// command-level flag. Populated by UnmarshalYAML only: when the
	// selector is inlined into a command mapping, the "optional" key
	// belongs to the command envelope.
	Optional *bool `yaml:"-"`
}

// selectorRaw captures the "element" shorthand alongside regular fields.
type selectorRaw struct {
	Text                string      `yaml:"text"`
	Element             string      `yaml:"element"`
	ID                  string      `yaml:"id"`
	Width               int         `yaml:"width"`
	Height              int         `yaml:"height"`
	Tolerance           int         `yaml:"tolerance"`
	Enabled             *bool       `yaml:"enabled"`
	Selected            *bool       `yaml:"selected"`
	Checked             *bool       `yaml:"checked"`
	Focused             *bool       `yaml:"focused"`
	Index               string      `yaml:"index"`
	Traits              string      `yaml:"traits"`
	CSS                 string      `yaml:"css"`
	ChildOf             *Selector   `yaml:"childOf"`
	Below               *Selector   `yaml:"below"`
	Above               *Selector   `yaml:"above"`
	LeftOf              *Selector   `yaml:"leftOf"`
	RightOf             *Selector   `yaml:"rightOf"`
	ContainsChild       *Selector   `yaml:"containsChild"`
	ContainsDescendants []*Selector `yaml:"containsDescendants"`
	Optional            *bool       `yaml:"optional"`
}

// UnmarshalYAML allows Selector to be unmarshaled from a scalar (text
// shorthand) or a mapping.
func (s *Selector) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		s.Text = node.Value
		return nil
	}

	var raw selectorRaw
	if err := node.Decode(&raw); err != nil {
		return err
	}

	s.Text = raw.Text
	s.ID = raw.ID
	s.Width = raw.Width
	s.Height = raw.Height
	s.Tolerance = raw.Tolerance
	s.Enabled = raw.Enabled
	s.Selected = raw.Selected
	s.Checked = raw.Checked
	s.Focused = raw.Focused
	s.Index = raw.Index
	s.Traits = raw.Traits
	s.CSS = raw.CSS
	s.ChildOf = raw.ChildOf
	s.Below = raw.Below
	s.Above = raw.Above
	s.LeftOf = raw.LeftOf
	s.RightOf = raw.RightOf
	s.ContainsChild = raw.ContainsChild
	s.ContainsDescendants = raw.ContainsDescendants
	s.Optional = raw.Optional

	// "element" is a shorthand for "text" (used in scrollUntilVisible, etc.)
	if raw.Element != "" && s.Text == "" {
		s.Text = raw.Element
	}

	return nil
}

// IsEmpty returns true if no selection criteria are set.
func (s *Selector) IsEmpty() bool {
	return s.Text == "" &&
		s.ID == "" &&
		s.CSS == "" &&
		s.Width == 0 &&
		s.Height == 0 &&
		s.Traits == "" &&
		s.Enabled == nil &&
		s.Selected == nil &&
		s.Checked == nil &&
		s.Focused == nil &&
		!s.HasRelativeSelector()
}

// HasRelativeSelector returns true if any relative clause is set.
func (s *Selector) HasRelativeSelector() bool {
	return s.ChildOf != nil ||
		s.Below != nil ||
		s.Above != nil ||
		s.LeftOf != nil ||
		s.RightOf != nil ||
		s.ContainsChild != nil ||
		len(s.ContainsDescendants) > 0
}

// IsOptional returns true if the selector itself is marked optional.
func (s *Selector) IsOptional() bool {
	return s.Optional != nil && *s.Optional
}

// Describe returns a human-readable description listing every clause.
func (s *Selector) Describe() string {
	var parts []string
	if s.Text != "" {
		parts = append(parts, fmt.Sprintf("text matching %q", s.Text))
	}
	if s.ID != "" {
		parts = append(parts, fmt.Sprintf("id matching %q", s.ID))
	}
	if s.CSS != "" {
		parts = append(parts, fmt.Sprintf("css %q", s.CSS))
	}
	if s.Width != 0 || s.Height != 0 {
		parts = append(parts, fmt.Sprintf("size %dx%d", s.Width, s.Height))
	}
	if s.Traits != "" {
		parts = append(parts, "traits "+s.Traits)
	}
	if s.Enabled != nil {
		parts = append(parts, fmt.Sprintf("enabled=%t", *s.Enabled))
	}
	if s.Selected != nil {
		parts = append(parts, fmt.Sprintf("selected=%t", *s.Selected))
	}
	if s.Checked != nil {
		parts = append(parts, fmt.Sprintf("checked=%t", *s.Checked))
	}
	if s.Focused != nil {
		parts = append(parts, fmt.Sprintf("focused=%t", *s.Focused))
	}
	if s.Below != nil {
		parts = append(parts, "below "+s.Below.Describe())
	}
	if s.Above != nil {
		parts = append(parts, "above "+s.Above.Describe())
	}
	if s.LeftOf != nil {
		parts = append(parts, "left of "+s.LeftOf.Describe())
	}
	if s.RightOf != nil {
		parts = append(parts, "right of "+s.RightOf.Describe())
	}
	if s.ChildOf != nil {
		parts = append(parts, "child of "+s.ChildOf.Describe())
	}
	if s.ContainsChild != nil {
		parts = append(parts, "contains child "+s.ContainsChild.Describe())
	}
	for _, d := range s.ContainsDescendants {
		parts = append(parts, "contains descendant "+d.Describe())
	}
	if s.Index != "" {
		parts = append(parts, "index "+s.Index)
	}
	if len(parts) == 0 {
		return "(empty selector)"
	}
	return strings.Join(parts, ", ")
}

// DescribeQuoted returns a short quoted description like text="value".
func (s *Selector) DescribeQuoted() string {
	switch {
	case s.Text != "":
		return "text=\"" + s.Text + "\""
	case s.ID != "":
		return "id=\"" + s.ID + "\""
	case s.CSS != "":
		return "css=\"" + s.CSS + "\""
	default:
		return s.Describe()
	}
}
