package scripting

import (
	"github.com/devicelab-dev/orchestra/pkg/flow"
)

// EvaluateCommand returns a copy of cmd with ${...} expressions resolved
// in its string fields. The raw command is never modified: the
// orchestrator keys metadata by the raw value and executes the copy.
// Nested commands of composites are substituted when they themselves
// execute, so they are shared, not copied.
func EvaluateCommand(e Engine, cmd flow.Command) (flow.Command, error) {
	x := &expander{engine: e}

	var out flow.Command
	switch c := cmd.(type) {
	case *flow.TapOnCommand:
		cp := *c
		cp.Selector = x.selector(c.Selector)
		out = &cp
	case *flow.TapOnPointCommand:
		cp := *c
		cp.Point = x.str(c.Point)
		out = &cp
	case *flow.SwipeCommand:
		cp := *c
		cp.Start = x.str(c.Start)
		cp.End = x.str(c.End)
		cp.Selector = x.selectorPtr(c.Selector)
		out = &cp
	case *flow.ScrollUntilVisibleCommand:
		cp := *c
		cp.Element = x.selector(c.Element)
		out = &cp
	case *flow.InputTextCommand:
		cp := *c
		cp.Text = x.str(c.Text)
		out = &cp
	case *flow.CopyTextFromCommand:
		cp := *c
		cp.Selector = x.selector(c.Selector)
		out = &cp
	case *flow.SetClipboardCommand:
		cp := *c
		cp.Text = x.str(c.Text)
		out = &cp
	case *flow.AssertConditionCommand:
		cp := *c
		cp.Condition = *x.condition(&c.Condition)
		out = &cp
	case *flow.AssertWithAICommand:
		cp := *c
		cp.Assertion = x.str(c.Assertion)
		out = &cp
	case *flow.ExtractTextWithAICommand:
		cp := *c
		cp.Query = x.str(c.Query)
		out = &cp
	case *flow.LaunchAppCommand:
		cp := *c
		cp.AppID = x.str(c.AppID)
		out = &cp
	case *flow.StopAppCommand:
		cp := *c
		cp.AppID = x.str(c.AppID)
		out = &cp
	case *flow.KillAppCommand:
		cp := *c
		cp.AppID = x.str(c.AppID)
		out = &cp
	case *flow.ClearStateCommand:
		cp := *c
		cp.AppID = x.str(c.AppID)
		out = &cp
	case *flow.SetPermissionsCommand:
		cp := *c
		cp.AppID = x.str(c.AppID)
		out = &cp
	case *flow.OpenLinkCommand:
		cp := *c
		cp.Link = x.str(c.Link)
		out = &cp
	case *flow.PressKeyCommand:
		cp := *c
		cp.Key = x.str(c.Key)
		out = &cp
	case *flow.SetLocationCommand:
		cp := *c
		cp.Latitude = x.str(c.Latitude)
		cp.Longitude = x.str(c.Longitude)
		out = &cp
	case *flow.SetOrientationCommand:
		cp := *c
		cp.Orientation = x.str(c.Orientation)
		out = &cp
	case *flow.TravelCommand:
		cp := *c
		cp.Points = x.strs(c.Points)
		out = &cp
	case *flow.RepeatCommand:
		cp := *c
		cp.Times = x.str(c.Times)
		cp.While = x.condition(c.While)
		out = &cp
	case *flow.RetryCommand:
		cp := *c
		cp.MaxRetries = x.str(c.MaxRetries)
		cp.Env = x.env(c.Env)
		out = &cp
	case *flow.RunFlowCommand:
		cp := *c
		cp.Env = x.env(c.Env)
		out = &cp
	case *flow.RunScriptCommand:
		cp := *c
		cp.Env = x.env(c.Env)
		out = &cp
	case *flow.DefineVariablesCommand:
		cp := *c
		cp.Env = x.env(c.Env)
		out = &cp
	case *flow.TakeScreenshotCommand:
		cp := *c
		cp.Path = x.str(c.Path)
		out = &cp
	case *flow.StartRecordingCommand:
		cp := *c
		cp.Path = x.str(c.Path)
		out = &cp
	case *flow.AddMediaCommand:
		cp := *c
		cp.Files = x.strs(c.Files)
		out = &cp

	// Variants with no substitutable fields of their own still copy, so
	// the envelope condition below never mutates the raw command.
	case *flow.ScrollCommand:
		cp := *c
		out = &cp
	case *flow.BackCommand:
		cp := *c
		out = &cp
	case *flow.HideKeyboardCommand:
		cp := *c
		out = &cp
	case *flow.EraseTextCommand:
		cp := *c
		out = &cp
	case *flow.PasteTextCommand:
		cp := *c
		out = &cp
	case *flow.InputRandomCommand:
		cp := *c
		out = &cp
	case *flow.AssertNoDefectsWithAICommand:
		cp := *c
		out = &cp
	case *flow.EvalScriptCommand:
		cp := *c
		out = &cp
	case *flow.ClearKeychainCommand:
		cp := *c
		out = &cp
	case *flow.SetAirplaneModeCommand:
		cp := *c
		out = &cp
	case *flow.ToggleAirplaneModeCommand:
		cp := *c
		out = &cp
	case *flow.StopRecordingCommand:
		cp := *c
		out = &cp
	case *flow.WaitForAnimationToEndCommand:
		cp := *c
		out = &cp

	default:
		out = cmd
	}

	if x.err != nil {
		return nil, x.err
	}

	// The envelope's gating condition substitutes for every variant.
	if base := baseOf(out); base != nil && base.When != nil {
		base.When = x.condition(base.When)
		if x.err != nil {
			return nil, x.err
		}
	}

	return out, nil
}

// ExpandCondition returns a copy of cond with ${...} expressions in its
// script clause and selectors resolved. Loop conditions re-expand from
// their raw form on every iteration.
func ExpandCondition(e Engine, cond *flow.Condition) (*flow.Condition, error) {
	x := &expander{engine: e}
	out := x.condition(cond)
	if x.err != nil {
		return nil, x.err
	}
	return out, nil
}

// baseOf digs the embedded envelope out of a copied variant. Returns nil
// for shared (uncopied) commands, which carry no substitutable fields.
func baseOf(cmd flow.Command) *flow.BaseCommand {
	switch c := cmd.(type) {
	case *flow.TapOnCommand:
		return &c.BaseCommand
	case *flow.TapOnPointCommand:
		return &c.BaseCommand
	case *flow.SwipeCommand:
		return &c.BaseCommand
	case *flow.ScrollUntilVisibleCommand:
		return &c.BaseCommand
	case *flow.InputTextCommand:
		return &c.BaseCommand
	case *flow.CopyTextFromCommand:
		return &c.BaseCommand
	case *flow.SetClipboardCommand:
		return &c.BaseCommand
	case *flow.AssertConditionCommand:
		return &c.BaseCommand
	case *flow.AssertWithAICommand:
		return &c.BaseCommand
	case *flow.ExtractTextWithAICommand:
		return &c.BaseCommand
	case *flow.LaunchAppCommand:
		return &c.BaseCommand
	case *flow.StopAppCommand:
		return &c.BaseCommand
	case *flow.KillAppCommand:
		return &c.BaseCommand
	case *flow.ClearStateCommand:
		return &c.BaseCommand
	case *flow.SetPermissionsCommand:
		return &c.BaseCommand
	case *flow.OpenLinkCommand:
		return &c.BaseCommand
	case *flow.PressKeyCommand:
		return &c.BaseCommand
	case *flow.SetLocationCommand:
		return &c.BaseCommand
	case *flow.SetOrientationCommand:
		return &c.BaseCommand
	case *flow.TravelCommand:
		return &c.BaseCommand
	case *flow.RepeatCommand:
		return &c.BaseCommand
	case *flow.RetryCommand:
		return &c.BaseCommand
	case *flow.RunFlowCommand:
		return &c.BaseCommand
	case *flow.RunScriptCommand:
		return &c.BaseCommand
	case *flow.DefineVariablesCommand:
		return &c.BaseCommand
	case *flow.TakeScreenshotCommand:
		return &c.BaseCommand
	case *flow.StartRecordingCommand:
		return &c.BaseCommand
	case *flow.AddMediaCommand:
		return &c.BaseCommand
	case *flow.ScrollCommand:
		return &c.BaseCommand
	case *flow.BackCommand:
		return &c.BaseCommand
	case *flow.HideKeyboardCommand:
		return &c.BaseCommand
	case *flow.EraseTextCommand:
		return &c.BaseCommand
	case *flow.PasteTextCommand:
		return &c.BaseCommand
	case *flow.InputRandomCommand:
		return &c.BaseCommand
	case *flow.AssertNoDefectsWithAICommand:
		return &c.BaseCommand
	case *flow.EvalScriptCommand:
		return &c.BaseCommand
	case *flow.ClearKeychainCommand:
		return &c.BaseCommand
	case *flow.SetAirplaneModeCommand:
		return &c.BaseCommand
	case *flow.ToggleAirplaneModeCommand:
		return &c.BaseCommand
	case *flow.StopRecordingCommand:
		return &c.BaseCommand
	case *flow.WaitForAnimationToEndCommand:
		return &c.BaseCommand
	default:
		return nil
	}
}

// expander applies Expand to fields, remembering the first error.
type expander struct {
	engine Engine
	err    error
}

func (x *expander) str(s string) string {
	if x.err != nil || s == "" {
		return s
	}
	out, err := x.engine.Expand(s)
	if err != nil {
		x.err = err
		return s
	}
	return out
}

func (x *expander) strs(in []string) []string {
	if len(in) == 0 {
		return in
	}
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = x.str(s)
	}
	return out
}

func (x *expander) env(in map[string]string) map[string]string {
	if len(in) == 0 {
		return in
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = x.str(v)
	}
	return out
}

func (x *expander) selector(s flow.Selector) flow.Selector {
	return *x.selectorPtr(&s)
}

func (x *expander) selectorPtr(s *flow.Selector) *flow.Selector {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Text = x.str(s.Text)
	cp.ID = x.str(s.ID)
	cp.CSS = x.str(s.CSS)
	cp.Index = x.str(s.Index)
	cp.Traits = x.str(s.Traits)
	cp.ChildOf = x.selectorPtr(s.ChildOf)
	cp.Below = x.selectorPtr(s.Below)
	cp.Above = x.selectorPtr(s.Above)
	cp.LeftOf = x.selectorPtr(s.LeftOf)
	cp.RightOf = x.selectorPtr(s.RightOf)
	cp.ContainsChild = x.selectorPtr(s.ContainsChild)
	if len(s.ContainsDescendants) > 0 {
		cp.ContainsDescendants = make([]*flow.Selector, len(s.ContainsDescendants))
		for i, d := range s.ContainsDescendants {
			cp.ContainsDescendants[i] = x.selectorPtr(d)
		}
	}
	return &cp
}

func (x *expander) condition(c *flow.Condition) *flow.Condition {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Script = x.str(c.Script)
	cp.Visible = x.selectorPtr(c.Visible)
	cp.NotVisible = x.selectorPtr(c.NotVisible)
	return &cp
}
