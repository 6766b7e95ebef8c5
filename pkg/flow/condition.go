package flow

import (
	"strings"

	"gopkg.in/yaml.v3"
)

// Condition gates command execution. All set clauses must hold
// (conjunction); an empty condition is true.
type Condition struct {
	Platform   string    `yaml:"platform"`
	Visible    *Selector `yaml:"visible"`
	NotVisible *Selector `yaml:"notVisible"`
	Script     string    `yaml:"-"` // script expression, pre-substituted by the caller
}

// conditionRaw accepts both the "true" key (canonical) and the legacy
// "scriptCondition" spelling for the script clause.
type conditionRaw struct {
	Platform        string    `yaml:"platform"`
	Visible         *Selector `yaml:"visible"`
	NotVisible      *Selector `yaml:"notVisible"`
	True            string    `yaml:"true"`
	ScriptCondition string    `yaml:"scriptCondition"`
}

// UnmarshalYAML decodes a condition mapping.
func (c *Condition) UnmarshalYAML(node *yaml.Node) error {
	var raw conditionRaw
	if err := node.Decode(&raw); err != nil {
		return err
	}
	c.Platform = raw.Platform
	c.Visible = raw.Visible
	c.NotVisible = raw.NotVisible
	c.Script = raw.True
	if c.Script == "" {
		c.Script = raw.ScriptCondition
	}
	return nil
}

// IsEmpty returns true when no clause is set.
func (c *Condition) IsEmpty() bool {
	return c == nil ||
		(c.Platform == "" && c.Visible == nil && c.NotVisible == nil && c.Script == "")
}

// Describe returns a human-readable description of the condition.
func (c *Condition) Describe() string {
	if c.IsEmpty() {
		return "(always)"
	}
	var parts []string
	if c.Platform != "" {
		parts = append(parts, "platform is "+c.Platform)
	}
	if c.Visible != nil {
		parts = append(parts, "visible "+c.Visible.DescribeQuoted())
	}
	if c.NotVisible != nil {
		parts = append(parts, "not visible "+c.NotVisible.DescribeQuoted())
	}
	if c.Script != "" {
		parts = append(parts, c.Script+" is true")
	}
	return strings.Join(parts, " and ")
}
