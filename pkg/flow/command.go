// Package flow holds the command taxonomy, selectors and conditions that
// make up an automation flow, plus the YAML parser producing them.
package flow

import (
	"fmt"
	"strings"
)

// CommandType tags a command variant.
type CommandType string

// Command type constants.
const (
	// Navigation & Interaction
	CommandTapOn              CommandType = "tapOn"
	CommandTapOnPoint         CommandType = "tapOnPoint"
	CommandSwipe              CommandType = "swipe"
	CommandScroll             CommandType = "scroll"
	CommandScrollUntilVisible CommandType = "scrollUntilVisible"
	CommandBack               CommandType = "back"
	CommandHideKeyboard       CommandType = "hideKeyboard"
	CommandPressKey           CommandType = "pressKey"

	// Text
	CommandInputText    CommandType = "inputText"
	CommandInputRandom  CommandType = "inputRandom"
	CommandEraseText    CommandType = "eraseText"
	CommandCopyTextFrom CommandType = "copyTextFrom"
	CommandPasteText    CommandType = "pasteText"
	CommandSetClipboard CommandType = "setClipboard"

	// Assertions
	CommandAssertCondition       CommandType = "assertCondition"
	CommandAssertNoDefectsWithAI CommandType = "assertNoDefectsWithAI"
	CommandAssertWithAI          CommandType = "assertWithAI"
	CommandExtractTextWithAI     CommandType = "extractTextWithAI"

	// App Management
	CommandLaunchApp      CommandType = "launchApp"
	CommandStopApp        CommandType = "stopApp"
	CommandKillApp        CommandType = "killApp"
	CommandClearState     CommandType = "clearState"
	CommandClearKeychain  CommandType = "clearKeychain"
	CommandSetPermissions CommandType = "setPermissions"

	// Device Control
	CommandSetLocation        CommandType = "setLocation"
	CommandSetOrientation     CommandType = "setOrientation"
	CommandSetAirplaneMode    CommandType = "setAirplaneMode"
	CommandToggleAirplaneMode CommandType = "toggleAirplaneMode"
	CommandTravel             CommandType = "travel"
	CommandOpenLink           CommandType = "openLink"

	// Flow Control
	CommandRepeat          CommandType = "repeat"
	CommandRetry           CommandType = "retry"
	CommandRunFlow         CommandType = "runFlow"
	CommandRunScript       CommandType = "runScript"
	CommandEvalScript      CommandType = "evalScript"
	CommandDefineVariables CommandType = "defineVariables"

	// Media
	CommandTakeScreenshot CommandType = "takeScreenshot"
	CommandStartRecording CommandType = "startRecording"
	CommandStopRecording  CommandType = "stopRecording"
	CommandAddMedia       CommandType = "addMedia"

	// Other
	CommandWaitForAnimationToEnd CommandType = "waitForAnimationToEnd"
	CommandApplyConfiguration    CommandType = "applyConfiguration"
)

// Command is the interface for all flow commands. Variants are pointer
// values, so interface comparison is pointer identity; the orchestrator
// relies on that for metadata keying.
type Command interface {
	Type() CommandType
	IsOptional() bool
	Label() string
	Describe() string
	Precondition() *Condition
}

// CompositeCommand is implemented by commands that carry nested commands
// (repeat, retry, runFlow). The orchestrator traverses SubCommands when
// resetting state between repeat iterations.
type CompositeCommand interface {
	Command
	SubCommands() []Command
}

// BaseCommand contains the envelope fields shared by all commands.
type BaseCommand struct {
	CommandType  CommandType `yaml:"-"`
	Optional     bool        `yaml:"optional"`
	CommandLabel string      `yaml:"label"`
	TimeoutMs    int         `yaml:"timeout"`
	When         *Condition  `yaml:"when"`
}

// Type returns the command type.
func (b *BaseCommand) Type() CommandType { return b.CommandType }

// IsOptional returns whether failures of this command demote to warnings.
func (b *BaseCommand) IsOptional() bool { return b.Optional }

// Label returns the user-provided command label.
func (b *BaseCommand) Label() string { return b.CommandLabel }

// Describe returns a human-readable description.
func (b *BaseCommand) Describe() string { return string(b.CommandType) }

// Precondition returns the gating condition, or nil.
func (b *BaseCommand) Precondition() *Condition { return b.When }

// ============================================
// Navigation & Interaction
// ============================================

// TapOnCommand taps on an element resolved by a selector.
type TapOnCommand struct {
	BaseCommand           `yaml:",inline"`
	Selector              Selector `yaml:",inline"`
	LongPress             bool     `yaml:"longPress"`
	Repeat                int      `yaml:"repeat"`
	DelayMs               int      `yaml:"delay"`
	RetryIfNoChange       *bool    `yaml:"retryTapIfNoChange"`
	WaitUntilVisible      *bool    `yaml:"waitUntilVisible"`
	WaitToSettleTimeoutMs int      `yaml:"waitToSettleTimeoutMs"`
}

// TapOnPointCommand taps on coordinates: "x,y" absolute or "x%,y%".
type TapOnPointCommand struct {
	BaseCommand           `yaml:",inline"`
	Point                 string `yaml:"point"`
	LongPress             bool   `yaml:"longPress"`
	Repeat                int    `yaml:"repeat"`
	DelayMs               int    `yaml:"delay"`
	RetryIfNoChange       *bool  `yaml:"retryTapIfNoChange"`
	WaitToSettleTimeoutMs int    `yaml:"waitToSettleTimeoutMs"`
}

// SwipeCommand performs a swipe gesture. Four input shapes: direction only,
// direction anchored on an element, absolute points, percent points.
type SwipeCommand struct {
	BaseCommand           `yaml:",inline"`
	Direction             string    `yaml:"direction"`
	Selector              *Selector `yaml:"selector"`
	Start                 string    `yaml:"start"` // "x%, y%" or "x, y"
	End                   string    `yaml:"end"`
	StartX                int       `yaml:"startX"`
	StartY                int       `yaml:"startY"`
	EndX                  int       `yaml:"endX"`
	EndY                  int       `yaml:"endY"`
	Duration              int       `yaml:"duration"`
	WaitToSettleTimeoutMs int       `yaml:"waitToSettleTimeoutMs"`
}

// ScrollCommand scrolls the screen vertically.
type ScrollCommand struct {
	BaseCommand `yaml:",inline"`
	Direction   string `yaml:"direction"`
}

// ScrollUntilVisibleCommand scrolls in a direction until the element
// becomes visible or the timeout elapses.
type ScrollUntilVisibleCommand struct {
	BaseCommand           `yaml:",inline"`
	Element               Selector `yaml:"element"`
	Direction             string   `yaml:"direction"`
	Speed                 int      `yaml:"speed"` // 0-100, maps to swipe duration
	VisibilityPercentage  int      `yaml:"visibilityPercentage"`
	CenterElement         bool     `yaml:"centerElement"`
	WaitToSettleTimeoutMs int      `yaml:"waitToSettleTimeoutMs"`
}

// BackCommand presses the back button.
type BackCommand struct {
	BaseCommand `yaml:",inline"`
}

// HideKeyboardCommand hides the software keyboard.
type HideKeyboardCommand struct {
	BaseCommand `yaml:",inline"`
}

// PressKeyCommand presses a named key.
type PressKeyCommand struct {
	BaseCommand `yaml:",inline"`
	Key         string `yaml:"key"`
}

// ============================================
// Text
// ============================================

// InputTextCommand types text into the focused element.
type InputTextCommand struct {
	BaseCommand `yaml:",inline"`
	Text        string `yaml:"text"`
}

// InputRandomCommand types generated text: TEXT, NUMBER, EMAIL, PERSON_NAME.
type InputRandomCommand struct {
	BaseCommand `yaml:",inline"`
	DataType    string `yaml:"type"`
	Length      int    `yaml:"length"`
}

// EraseTextCommand erases a number of characters.
type EraseTextCommand struct {
	BaseCommand `yaml:",inline"`
	Characters  int `yaml:"characters"`
}

// CopyTextFromCommand copies text out of an element into the flow's copy
// buffer.
type CopyTextFromCommand struct {
	BaseCommand `yaml:",inline"`
	Selector    Selector `yaml:",inline"`
}

// PasteTextCommand types the copy buffer contents.
type PasteTextCommand struct {
	BaseCommand `yaml:",inline"`
}

// SetClipboardCommand sets the copy buffer to a literal value.
type SetClipboardCommand struct {
	BaseCommand `yaml:",inline"`
	Text        string `yaml:"text"`
}

// ============================================
// Assertions
// ============================================

// AssertConditionCommand asserts that a condition holds within the
// command timeout.
type AssertConditionCommand struct {
	BaseCommand `yaml:",inline"`
	Condition   Condition `yaml:"condition"`
}

// AssertNoDefectsWithAICommand asks the AI engine for visual defects.
type AssertNoDefectsWithAICommand struct {
	BaseCommand `yaml:",inline"`
}

// AssertWithAICommand asks the AI engine to verify a natural-language
// assertion against the screen.
type AssertWithAICommand struct {
	BaseCommand `yaml:",inline"`
	Assertion   string `yaml:"assertion"`
}

// ExtractTextWithAICommand asks the AI engine to extract text matching a
// query and stores the result in a flow variable.
type ExtractTextWithAICommand struct {
	BaseCommand `yaml:",inline"`
	Query       string `yaml:"query"`
	Variable    string `yaml:"variable"`
}

// ============================================
// App Management
// ============================================

// LaunchAppCommand launches an app, optionally clearing its state first.
type LaunchAppCommand struct {
	BaseCommand   `yaml:",inline"`
	AppID         string            `yaml:"appId"`
	ClearState    bool              `yaml:"clearState"`
	ClearKeychain bool              `yaml:"clearKeychain"`
	StopApp       *bool             `yaml:"stopApp"`
	Permissions   map[string]string `yaml:"permissions"`
	Arguments     map[string]any    `yaml:"arguments"`
}

// StopAppCommand stops an app.
type StopAppCommand struct {
	BaseCommand `yaml:",inline"`
	AppID       string `yaml:"appId"`
}

// KillAppCommand kills an app without graceful shutdown.
type KillAppCommand struct {
	BaseCommand `yaml:",inline"`
	AppID       string `yaml:"appId"`
}

// ClearStateCommand clears app data and resets permissions.
type ClearStateCommand struct {
	BaseCommand `yaml:",inline"`
	AppID       string `yaml:"appId"`
}

// ClearKeychainCommand clears the device keychain.
type ClearKeychainCommand struct {
	BaseCommand `yaml:",inline"`
}

// SetPermissionsCommand sets app permissions. Values: allow, deny, unset.
type SetPermissionsCommand struct {
	BaseCommand `yaml:",inline"`
	AppID       string            `yaml:"appId"`
	Permissions map[string]string `yaml:"permissions"`
}

// ============================================
// Device Control
// ============================================

// SetLocationCommand sets the simulated device location. Coordinates are
// strings so variables can be substituted into them.
type SetLocationCommand struct {
	BaseCommand `yaml:",inline"`
	Latitude    string `yaml:"latitude"`
	Longitude   string `yaml:"longitude"`
}

// SetOrientationCommand sets device orientation: PORTRAIT or LANDSCAPE.
type SetOrientationCommand struct {
	BaseCommand `yaml:",inline"`
	Orientation string `yaml:"orientation"`
}

// SetAirplaneModeCommand sets airplane mode.
type SetAirplaneModeCommand struct {
	BaseCommand `yaml:",inline"`
	Enabled     bool `yaml:"enabled"`
}

// ToggleAirplaneModeCommand flips the current airplane mode state.
type ToggleAirplaneModeCommand struct {
	BaseCommand `yaml:",inline"`
}

// TravelCommand simulates movement through a series of "lat, long" points
// at the given speed in km/h.
type TravelCommand struct {
	BaseCommand `yaml:",inline"`
	Points      []string `yaml:"points"`
	Speed       float64  `yaml:"speed"`
}

// OpenLinkCommand opens a URL.
type OpenLinkCommand struct {
	BaseCommand `yaml:",inline"`
	Link        string `yaml:"link"`
	AutoVerify  *bool  `yaml:"autoVerify"`
	Browser     *bool  `yaml:"browser"`
}

// ============================================
// Flow Control
// ============================================

// RepeatCommand repeats nested commands a number of times and/or while a
// condition holds.
type RepeatCommand struct {
	BaseCommand `yaml:",inline"`
	Times       string     `yaml:"times"` // string so variables substitute
	While       *Condition `yaml:"while"`
	Commands    []Command  `yaml:"-"`
}

// SubCommands returns the nested commands.
func (c *RepeatCommand) SubCommands() []Command { return c.Commands }

// RetryCommand retries nested commands on failure, up to maxRetries extra
// attempts (capped at 3).
type RetryCommand struct {
	BaseCommand `yaml:",inline"`
	MaxRetries  string            `yaml:"maxRetries"`
	Env         map[string]string `yaml:"env"`
	Commands    []Command         `yaml:"-"`
}

// SubCommands returns the nested commands.
func (c *RetryCommand) SubCommands() []Command { return c.Commands }

// RunFlowCommand runs nested commands as a sub-flow with an isolated
// variable scope and its own lifecycle hooks.
type RunFlowCommand struct {
	BaseCommand `yaml:",inline"`
	File        string            `yaml:"file"`
	Env         map[string]string `yaml:"env"`
	Commands    []Command         `yaml:"-"`
	Config      *Config           `yaml:"-"` // sub-flow config when loaded from file
}

// SubCommands returns the nested commands.
func (c *RunFlowCommand) SubCommands() []Command { return c.Commands }

// RunScriptCommand runs a script in the embedded engine.
type RunScriptCommand struct {
	BaseCommand `yaml:",inline"`
	Script      string            `yaml:"script"`
	File        string            `yaml:"file"`
	Env         map[string]string `yaml:"env"`
}

// Source returns the script source reference (File wins over Script).
func (c *RunScriptCommand) Source() string {
	if c.File != "" {
		return c.File
	}
	return c.Script
}

// EvalScriptCommand evaluates an inline expression.
type EvalScriptCommand struct {
	BaseCommand `yaml:",inline"`
	Script      string `yaml:"script"`
}

// DefineVariablesCommand binds variables in the flow environment. Hoisted
// to the top of the flow before execution.
type DefineVariablesCommand struct {
	BaseCommand `yaml:",inline"`
	Env         map[string]string `yaml:"env"`
}

// ============================================
// Media
// ============================================

// TakeScreenshotCommand captures a screenshot to a file.
type TakeScreenshotCommand struct {
	BaseCommand `yaml:",inline"`
	Path        string `yaml:"path"`
}

// StartRecordingCommand starts a screen recording.
type StartRecordingCommand struct {
	BaseCommand `yaml:",inline"`
	Path        string `yaml:"path"`
}

// StopRecordingCommand stops the active screen recording.
type StopRecordingCommand struct {
	BaseCommand `yaml:",inline"`
}

// AddMediaCommand pushes media files to the device gallery.
type AddMediaCommand struct {
	BaseCommand `yaml:",inline"`
	Files       []string `yaml:"files"`
}

// ============================================
// Other
// ============================================

// WaitForAnimationToEndCommand waits until the screen stops changing.
type WaitForAnimationToEndCommand struct {
	BaseCommand `yaml:",inline"`
}

// ApplyConfigurationCommand carries the flow config document. The parser
// places it first in the command list; the interpreter treats it as a
// no-op marker.
type ApplyConfigurationCommand struct {
	BaseCommand `yaml:",inline"`
	Config      Config `yaml:"-"`
}

// ============================================
// Describe() implementations
// ============================================

// Describe returns a human-readable description of the tap command.
func (c *TapOnCommand) Describe() string {
	if c.LongPress {
		return "longPressOn: " + c.Selector.DescribeQuoted()
	}
	return "tapOn: " + c.Selector.DescribeQuoted()
}

// Describe returns a human-readable description of the point tap command.
func (c *TapOnPointCommand) Describe() string {
	return "tapOnPoint: " + c.Point
}

// Describe returns a human-readable description of the swipe command.
func (c *SwipeCommand) Describe() string {
	if c.Direction != "" {
		return "swipe: " + c.Direction
	}
	return "swipe"
}

// Describe returns a human-readable description of the scroll command.
func (c *ScrollCommand) Describe() string {
	if c.Direction != "" {
		return "scroll: " + c.Direction
	}
	return "scroll"
}

// Describe returns a human-readable description of the scroll-until command.
func (c *ScrollUntilVisibleCommand) Describe() string {
	return "scrollUntilVisible: " + c.Element.DescribeQuoted()
}

// Describe returns a human-readable description of the input command.
func (c *InputTextCommand) Describe() string {
	return "inputText: \"" + c.Text + "\""
}

// Describe returns a human-readable description of the copy command.
func (c *CopyTextFromCommand) Describe() string {
	return "copyTextFrom: " + c.Selector.DescribeQuoted()
}

// Describe returns a human-readable description of the assert command.
func (c *AssertConditionCommand) Describe() string {
	return "assertCondition: " + c.Condition.Describe()
}

// Describe returns a human-readable description of the AI assert command.
func (c *AssertWithAICommand) Describe() string {
	return "assertWithAI: " + c.Assertion
}

// Describe returns a human-readable description of the launch command.
func (c *LaunchAppCommand) Describe() string {
	if c.ClearState {
		return "launchApp " + c.AppID + " (clearState)"
	}
	return "launchApp " + c.AppID
}

// Describe returns a human-readable description of the press-key command.
func (c *PressKeyCommand) Describe() string {
	return "pressKey: " + c.Key
}

// Describe returns a human-readable description of the repeat command.
func (c *RepeatCommand) Describe() string {
	if c.Times != "" {
		return fmt.Sprintf("repeat %s times (%d commands)", c.Times, len(c.Commands))
	}
	return fmt.Sprintf("repeat while (%d commands)", len(c.Commands))
}

// Describe returns a human-readable description of the retry command.
func (c *RetryCommand) Describe() string {
	return fmt.Sprintf("retry (%d commands)", len(c.Commands))
}

// Describe returns a human-readable description of the run-flow command.
func (c *RunFlowCommand) Describe() string {
	if c.File != "" {
		return "runFlow: " + c.File
	}
	return fmt.Sprintf("runFlow (%d commands)", len(c.Commands))
}

// Describe returns a human-readable description of the run-script command.
func (c *RunScriptCommand) Describe() string {
	src := c.Source()
	if len(src) > 40 {
		src = src[:40] + "..."
	}
	return "runScript: " + strings.ReplaceAll(src, "\n", " ")
}

// Describe returns a human-readable description of the travel command.
func (c *TravelCommand) Describe() string {
	return fmt.Sprintf("travel (%d points)", len(c.Points))
}

// Describe returns a human-readable description of the open-link command.
func (c *OpenLinkCommand) Describe() string {
	return "openLink: " + c.Link
}
