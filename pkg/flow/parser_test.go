package flow

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParse_ConfigAndCommands(t *testing.T) {
	yaml := `appId: com.example.app
name: Login flow
tags:
  - smoke
env:
  USERNAME: alice
ext:
  jsEngine: graaljs
---
- launchApp
- tapOn: "Log in"
- inputText: "hello"
`
	f, err := Parse([]byte(yaml), "login.yaml")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	wantConfig := Config{
		AppID: "com.example.app",
		Name:  "Login flow",
		Tags:  []string{"smoke"},
		Env:   map[string]string{"USERNAME": "alice"},
		Ext:   map[string]string{"jsEngine": "graaljs"},
	}
	if diff := cmp.Diff(wantConfig, f.Config); diff != "" {
		t.Errorf("Config mismatch (-want +got):\n%s", diff)
	}

	// applyConfiguration is prepended when a config document exists.
	if len(f.Commands) != 4 {
		t.Fatalf("len(Commands) = %d, want 4", len(f.Commands))
	}
	if _, ok := f.Commands[0].(*ApplyConfigurationCommand); !ok {
		t.Errorf("Commands[0] = %T, want *ApplyConfigurationCommand", f.Commands[0])
	}
	if _, ok := f.Commands[1].(*LaunchAppCommand); !ok {
		t.Errorf("Commands[1] = %T, want *LaunchAppCommand", f.Commands[1])
	}

	tap, ok := f.Commands[2].(*TapOnCommand)
	if !ok {
		t.Fatalf("Commands[2] = %T, want *TapOnCommand", f.Commands[2])
	}
	if tap.Selector.Text != "Log in" {
		t.Errorf("tap selector = %q, want %q", tap.Selector.Text, "Log in")
	}

	input, ok := f.Commands[3].(*InputTextCommand)
	if !ok {
		t.Fatalf("Commands[3] = %T, want *InputTextCommand", f.Commands[3])
	}
	if input.Text != "hello" {
		t.Errorf("input text = %q, want hello", input.Text)
	}
}

func TestParse_CommandsOnly(t *testing.T) {
	yaml := `- back
- hideKeyboard
- pressKey: Enter
`
	f, err := Parse([]byte(yaml), "simple.yaml")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(f.Commands) != 3 {
		t.Fatalf("len(Commands) = %d, want 3", len(f.Commands))
	}
	if f.Commands[0].Type() != CommandBack {
		t.Errorf("Commands[0].Type() = %v, want back", f.Commands[0].Type())
	}
	key, ok := f.Commands[2].(*PressKeyCommand)
	if !ok || key.Key != "Enter" {
		t.Errorf("Commands[2] = %#v, want pressKey Enter", f.Commands[2])
	}
}

func TestParse_EnvelopeFields(t *testing.T) {
	yaml := `- tapOn:
    text: "Maybe"
    optional: true
    label: tap the maybe button
    timeout: 5000
`
	f, err := Parse([]byte(yaml), "opt.yaml")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	tap := f.Commands[0].(*TapOnCommand)
	if !tap.IsOptional() {
		t.Errorf("IsOptional() = false, want true")
	}
	if tap.Label() != "tap the maybe button" {
		t.Errorf("Label() = %q", tap.Label())
	}
	if tap.TimeoutMs != 5000 {
		t.Errorf("TimeoutMs = %d, want 5000", tap.TimeoutMs)
	}
}

func TestParse_AliasesDesugar(t *testing.T) {
	yaml := `- doubleTapOn: "Zoom"
- longPressOn: "Item"
- assertVisible: "Welcome"
- assertNotVisible: "Spinner"
- assertTrue: ${1 == 1}
- inputRandomEmail
- openBrowser: https://example.com
`
	f, err := Parse([]byte(yaml), "alias.yaml")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	double := f.Commands[0].(*TapOnCommand)
	if double.Repeat != 2 {
		t.Errorf("doubleTapOn repeat = %d, want 2", double.Repeat)
	}
	long := f.Commands[1].(*TapOnCommand)
	if !long.LongPress {
		t.Errorf("longPressOn did not set LongPress")
	}

	visible := f.Commands[2].(*AssertConditionCommand)
	if visible.Condition.Visible == nil || visible.Condition.Visible.Text != "Welcome" {
		t.Errorf("assertVisible condition = %+v", visible.Condition)
	}
	notVisible := f.Commands[3].(*AssertConditionCommand)
	if notVisible.Condition.NotVisible == nil || notVisible.Condition.NotVisible.Text != "Spinner" {
		t.Errorf("assertNotVisible condition = %+v", notVisible.Condition)
	}
	assertTrue := f.Commands[4].(*AssertConditionCommand)
	if assertTrue.Condition.Script != "${1 == 1}" {
		t.Errorf("assertTrue script = %q", assertTrue.Condition.Script)
	}

	random := f.Commands[5].(*InputRandomCommand)
	if random.DataType != "EMAIL" {
		t.Errorf("inputRandomEmail type = %q, want EMAIL", random.DataType)
	}

	link := f.Commands[6].(*OpenLinkCommand)
	if link.Browser == nil || !*link.Browser {
		t.Errorf("openBrowser did not set Browser")
	}
	if link.Link != "https://example.com" {
		t.Errorf("openBrowser link = %q", link.Link)
	}
}

func TestParse_NestedRepeat(t *testing.T) {
	yaml := `- repeat:
    times: "3"
    commands:
      - pressKey: Tab
      - repeat:
          times: "2"
          commands:
            - back
`
	f, err := Parse([]byte(yaml), "repeat.yaml")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	repeat := f.Commands[0].(*RepeatCommand)
	if repeat.Times != "3" {
		t.Errorf("Times = %q, want 3", repeat.Times)
	}
	if len(repeat.Commands) != 2 {
		t.Fatalf("len(repeat.Commands) = %d, want 2", len(repeat.Commands))
	}
	inner, ok := repeat.Commands[1].(*RepeatCommand)
	if !ok {
		t.Fatalf("nested command = %T, want *RepeatCommand", repeat.Commands[1])
	}
	if len(inner.Commands) != 1 || inner.Commands[0].Type() != CommandBack {
		t.Errorf("inner repeat commands = %v", inner.Commands)
	}

	// Composite traversal exposes the nested commands.
	var composite CompositeCommand = repeat
	if len(composite.SubCommands()) != 2 {
		t.Errorf("SubCommands() = %d entries, want 2", len(composite.SubCommands()))
	}
}

func TestParse_RunFlowWithWhenCondition(t *testing.T) {
	yaml := `- runFlow:
    when:
      platform: android
      visible: "Continue"
    commands:
      - tapOn: "Continue"
`
	f, err := Parse([]byte(yaml), "when.yaml")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	run := f.Commands[0].(*RunFlowCommand)
	when := run.Precondition()
	if when == nil {
		t.Fatalf("Precondition() = nil")
	}
	if when.Platform != "android" {
		t.Errorf("when.Platform = %q, want android", when.Platform)
	}
	if when.Visible == nil || when.Visible.Text != "Continue" {
		t.Errorf("when.Visible = %+v", when.Visible)
	}
	if len(run.Commands) != 1 {
		t.Errorf("len(run.Commands) = %d, want 1", len(run.Commands))
	}
}

func TestParse_LifecycleHooks(t *testing.T) {
	yaml := `appId: com.example.app
onFlowStart:
  - launchApp
onFlowComplete:
  - stopApp
---
- back
`
	f, err := Parse([]byte(yaml), "hooks.yaml")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(f.Config.OnFlowStart) != 1 || f.Config.OnFlowStart[0].Type() != CommandLaunchApp {
		t.Errorf("OnFlowStart = %v", f.Config.OnFlowStart)
	}
	if len(f.Config.OnFlowComplete) != 1 || f.Config.OnFlowComplete[0].Type() != CommandStopApp {
		t.Errorf("OnFlowComplete = %v", f.Config.OnFlowComplete)
	}
}

func TestParse_ScrollUntilVisibleElementShorthand(t *testing.T) {
	yaml := `- scrollUntilVisible:
    element: "Terms of Service"
    direction: DOWN
    timeout: 30000
    speed: 50
    visibilityPercentage: 80
    centerElement: true
`
	f, err := Parse([]byte(yaml), "scroll.yaml")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	scroll := f.Commands[0].(*ScrollUntilVisibleCommand)
	if scroll.Element.Text != "Terms of Service" {
		t.Errorf("Element.Text = %q", scroll.Element.Text)
	}
	if scroll.Direction != "DOWN" || scroll.Speed != 50 ||
		scroll.VisibilityPercentage != 80 || !scroll.CenterElement {
		t.Errorf("scroll fields = %+v", scroll)
	}
	if scroll.TimeoutMs != 30000 {
		t.Errorf("TimeoutMs = %d, want 30000", scroll.TimeoutMs)
	}
}

func TestParse_UnknownCommand(t *testing.T) {
	yaml := `- flyToTheMoon: now
`
	if _, err := Parse([]byte(yaml), "bad.yaml"); err == nil {
		t.Fatalf("Parse() error = nil, want unknown command")
	}
}

func TestParse_EmptyFile(t *testing.T) {
	if _, err := Parse([]byte(""), "empty.yaml"); err == nil {
		t.Fatalf("Parse() error = nil, want empty flow error")
	}
}

func TestParse_DefineVariables(t *testing.T) {
	yaml := `- defineVariables:
    env:
      TOKEN: abc123
`
	f, err := Parse([]byte(yaml), "vars.yaml")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	dv := f.Commands[0].(*DefineVariablesCommand)
	if dv.Env["TOKEN"] != "abc123" {
		t.Errorf("Env = %v, want TOKEN=abc123", dv.Env)
	}
}
