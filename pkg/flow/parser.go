package flow

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseError represents a parsing error with location info.
type ParseError struct {
	Path    string
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ParseFile parses a single YAML flow file.
func ParseFile(path string) (*Flow, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- path is user-provided flow file
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return Parse(data, path)
}

// Parse parses YAML flow content. When a config document precedes the
// command list, an ApplyConfigurationCommand carrying it is placed first
// in the command list.
func Parse(data []byte, sourcePath string) (*Flow, error) {
	parts := splitYAMLDocuments(string(data))

	f := &Flow{SourcePath: sourcePath}

	switch len(parts) {
	case 0:
		return nil, &ParseError{Path: sourcePath, Line: 1, Message: "empty flow file"}
	case 1:
		if err := parseCommandList(parts[0], f); err != nil {
			return nil, err
		}
	default:
		if err := parseConfig(parts[0], f); err != nil {
			return nil, err
		}
		if err := parseCommandList(parts[1], f); err != nil {
			return nil, err
		}
		applyCfg := &ApplyConfigurationCommand{
			BaseCommand: BaseCommand{CommandType: CommandApplyConfiguration},
			Config:      f.Config,
		}
		f.Commands = append([]Command{applyCfg}, f.Commands...)
	}

	return f, nil
}

// splitYAMLDocuments splits on "---" lines, keeping multiline block
// scalars intact.
func splitYAMLDocuments(content string) []string {
	var parts []string
	var current strings.Builder
	inMultiline := false
	multilineIndent := 0

	lines := strings.Split(content, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)

		if !inMultiline {
			if strings.HasSuffix(trimmed, "|") || strings.HasSuffix(trimmed, ">") ||
				strings.HasSuffix(trimmed, "|-") || strings.HasSuffix(trimmed, ">-") {
				inMultiline = true
				if i+1 < len(lines) {
					next := lines[i+1]
					multilineIndent = len(next) - len(strings.TrimLeft(next, " \t"))
				}
			}
		} else {
			indent := len(line) - len(strings.TrimLeft(line, " \t"))
			if trimmed != "" && indent < multilineIndent {
				inMultiline = false
			}
		}

		if !inMultiline && trimmed == "---" && strings.TrimLeft(line, " \t") == "---" {
			if current.Len() > 0 {
				parts = append(parts, current.String())
				current.Reset()
			}
		} else {
			current.WriteString(line)
			current.WriteString("\n")
		}
	}

	if current.Len() > 0 {
		if strings.TrimSpace(current.String()) != "" {
			parts = append(parts, current.String())
		}
	}

	return parts
}

func parseConfig(content string, f *Flow) error {
	var config Config
	if err := yaml.Unmarshal([]byte(content), &config); err != nil {
		return &ParseError{
			Path:    f.SourcePath,
			Message: fmt.Sprintf("invalid config: %v", err),
		}
	}

	// Lifecycle hooks are command lists and need the full command parser.
	var rawConfig struct {
		OnFlowStart    []yaml.Node `yaml:"onFlowStart"`
		OnFlowComplete []yaml.Node `yaml:"onFlowComplete"`
	}
	if err := yaml.Unmarshal([]byte(content), &rawConfig); err != nil {
		return &ParseError{
			Path:    f.SourcePath,
			Message: fmt.Sprintf("invalid config: %v", err),
		}
	}

	for i := range rawConfig.OnFlowStart {
		cmd, err := parseCommand(&rawConfig.OnFlowStart[i], f.SourcePath)
		if err != nil {
			return err
		}
		config.OnFlowStart = append(config.OnFlowStart, cmd)
	}
	for i := range rawConfig.OnFlowComplete {
		cmd, err := parseCommand(&rawConfig.OnFlowComplete[i], f.SourcePath)
		if err != nil {
			return err
		}
		config.OnFlowComplete = append(config.OnFlowComplete, cmd)
	}

	f.Config = config
	return nil
}

func parseCommandList(content string, f *Flow) error {
	var rawCommands []yaml.Node
	if err := yaml.Unmarshal([]byte(content), &rawCommands); err != nil {
		return &ParseError{
			Path:    f.SourcePath,
			Message: fmt.Sprintf("invalid commands: %v", err),
		}
	}

	for i := range rawCommands {
		cmd, err := parseCommand(&rawCommands[i], f.SourcePath)
		if err != nil {
			return err
		}
		f.Commands = append(f.Commands, cmd)
	}

	return nil
}

// commandAliases maps YAML sugar onto the core taxonomy.
var commandAliases = map[string]string{
	"doubleTapOn":           string(CommandTapOn),
	"longPressOn":           string(CommandTapOn),
	"assertVisible":         string(CommandAssertCondition),
	"assertNotVisible":      string(CommandAssertCondition),
	"assertTrue":            string(CommandAssertCondition),
	"extendedWaitUntil":     string(CommandAssertCondition),
	"inputRandomEmail":      string(CommandInputRandom),
	"inputRandomNumber":     string(CommandInputRandom),
	"inputRandomPersonName": string(CommandInputRandom),
	"inputRandomText":       string(CommandInputRandom),
	"openBrowser":           string(CommandOpenLink),
}

func parseCommand(node *yaml.Node, sourcePath string) (Command, error) {
	// Scalar shorthand like "- back" (no colon, no params).
	if node.Kind == yaml.ScalarNode {
		name := node.Value
		if !isCommandName(name) {
			return nil, &ParseError{
				Path:    sourcePath,
				Line:    node.Line,
				Message: fmt.Sprintf("unknown command: %s", name),
			}
		}
		emptyNode := &yaml.Node{Kind: yaml.MappingNode}
		return decodeCommand(name, emptyNode, sourcePath)
	}

	if node.Kind != yaml.MappingNode {
		return nil, &ParseError{
			Path:    sourcePath,
			Line:    node.Line,
			Message: "command must be a mapping or command name",
		}
	}

	name, valueNode := extractCommandName(node)
	if name == "" || valueNode == nil {
		return nil, &ParseError{
			Path:    sourcePath,
			Line:    node.Line,
			Message: "unknown command",
		}
	}

	return decodeCommand(name, valueNode, sourcePath)
}

func extractCommandName(node *yaml.Node) (string, *yaml.Node) {
	for i := 0; i < len(node.Content)-1; i += 2 {
		key := node.Content[i].Value
		if isCommandName(key) {
			return key, node.Content[i+1]
		}
	}
	return "", nil
}

func isCommandName(key string) bool {
	if _, ok := commandAliases[key]; ok {
		return true
	}
	switch CommandType(key) {
	case CommandTapOn, CommandTapOnPoint, CommandSwipe, CommandScroll,
		CommandScrollUntilVisible, CommandBack, CommandHideKeyboard, CommandPressKey,
		CommandInputText, CommandInputRandom, CommandEraseText, CommandCopyTextFrom,
		CommandPasteText, CommandSetClipboard,
		CommandAssertCondition, CommandAssertNoDefectsWithAI, CommandAssertWithAI,
		CommandExtractTextWithAI,
		CommandLaunchApp, CommandStopApp, CommandKillApp, CommandClearState,
		CommandClearKeychain, CommandSetPermissions,
		CommandSetLocation, CommandSetOrientation, CommandSetAirplaneMode,
		CommandToggleAirplaneMode, CommandTravel, CommandOpenLink,
		CommandRepeat, CommandRetry, CommandRunFlow, CommandRunScript,
		CommandEvalScript, CommandDefineVariables,
		CommandTakeScreenshot, CommandStartRecording, CommandStopRecording,
		CommandAddMedia, CommandWaitForAnimationToEnd:
		return true
	}
	return false
}

func wrapParseError(path string, line int, err error) error {
	return &ParseError{Path: path, Line: line, Message: err.Error()}
}

// nestedCommands decodes a "commands:" list inside composite commands.
func nestedCommands(valueNode *yaml.Node, sourcePath string) ([]Command, error) {
	var raw struct {
		Commands []yaml.Node `yaml:"commands"`
	}
	if valueNode.Kind != yaml.MappingNode {
		return nil, nil
	}
	if err := valueNode.Decode(&raw); err != nil {
		return nil, wrapParseError(sourcePath, valueNode.Line, err)
	}
	var cmds []Command
	for i := range raw.Commands {
		cmd, err := parseCommand(&raw.Commands[i], sourcePath)
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, cmd)
	}
	return cmds, nil
}

//nolint:gocyclo
func decodeCommand(name string, valueNode *yaml.Node, sourcePath string) (Command, error) {
	switch name {
	case string(CommandTapOn), "doubleTapOn", "longPressOn":
		var c TapOnCommand
		if valueNode.Kind == yaml.ScalarNode {
			c.Selector.Text = valueNode.Value
		} else if err := valueNode.Decode(&c); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		if name == "doubleTapOn" && c.Repeat == 0 {
			c.Repeat = 2
		}
		if name == "longPressOn" {
			c.LongPress = true
		}
		c.CommandType = CommandTapOn
		return &c, nil

	case string(CommandTapOnPoint):
		var c TapOnPointCommand
		if valueNode.Kind == yaml.ScalarNode {
			c.Point = valueNode.Value
		} else if err := valueNode.Decode(&c); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		c.CommandType = CommandTapOnPoint
		return &c, nil

	case string(CommandSwipe):
		var c SwipeCommand
		if valueNode.Kind == yaml.ScalarNode {
			c.Direction = valueNode.Value
		} else if err := valueNode.Decode(&c); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		c.CommandType = CommandSwipe
		return &c, nil

	case string(CommandScroll):
		var c ScrollCommand
		if valueNode.Kind == yaml.ScalarNode {
			c.Direction = valueNode.Value
		} else if err := valueNode.Decode(&c); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		c.CommandType = CommandScroll
		return &c, nil

	case string(CommandScrollUntilVisible):
		var c ScrollUntilVisibleCommand
		if valueNode.Kind == yaml.ScalarNode {
			c.Element.Text = valueNode.Value
		} else if err := valueNode.Decode(&c); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		c.CommandType = CommandScrollUntilVisible
		return &c, nil

	case string(CommandBack):
		c := BackCommand{}
		if err := valueNode.Decode(&c); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		c.CommandType = CommandBack
		return &c, nil

	case string(CommandHideKeyboard):
		c := HideKeyboardCommand{}
		if err := valueNode.Decode(&c); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		c.CommandType = CommandHideKeyboard
		return &c, nil

	case string(CommandPressKey):
		var c PressKeyCommand
		if valueNode.Kind == yaml.ScalarNode {
			c.Key = valueNode.Value
		} else if err := valueNode.Decode(&c); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		c.CommandType = CommandPressKey
		return &c, nil

	case string(CommandInputText):
		var c InputTextCommand
		if valueNode.Kind == yaml.ScalarNode {
			c.Text = valueNode.Value
		} else if err := valueNode.Decode(&c); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		c.CommandType = CommandInputText
		return &c, nil

	case string(CommandInputRandom), "inputRandomEmail", "inputRandomNumber",
		"inputRandomPersonName", "inputRandomText":
		var c InputRandomCommand
		if valueNode.Kind == yaml.ScalarNode {
			c.DataType = valueNode.Value
		} else if err := valueNode.Decode(&c); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		switch name {
		case "inputRandomEmail":
			c.DataType = "EMAIL"
		case "inputRandomNumber":
			c.DataType = "NUMBER"
		case "inputRandomPersonName":
			c.DataType = "PERSON_NAME"
		case "inputRandomText":
			c.DataType = "TEXT"
		}
		c.CommandType = CommandInputRandom
		return &c, nil

	case string(CommandEraseText):
		var c EraseTextCommand
		if valueNode.Kind == yaml.ScalarNode {
			if err := valueNode.Decode(&c.Characters); err != nil {
				return nil, wrapParseError(sourcePath, valueNode.Line, err)
			}
		} else if err := valueNode.Decode(&c); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		c.CommandType = CommandEraseText
		return &c, nil

	case string(CommandCopyTextFrom):
		var c CopyTextFromCommand
		if valueNode.Kind == yaml.ScalarNode {
			c.Selector.Text = valueNode.Value
		} else if err := valueNode.Decode(&c); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		c.CommandType = CommandCopyTextFrom
		return &c, nil

	case string(CommandPasteText):
		c := PasteTextCommand{}
		if err := valueNode.Decode(&c); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		c.CommandType = CommandPasteText
		return &c, nil

	case string(CommandSetClipboard):
		var c SetClipboardCommand
		if valueNode.Kind == yaml.ScalarNode {
			c.Text = valueNode.Value
		} else if err := valueNode.Decode(&c); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		c.CommandType = CommandSetClipboard
		return &c, nil

	case string(CommandAssertCondition):
		var c AssertConditionCommand
		if err := valueNode.Decode(&c); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		if c.Condition.IsEmpty() {
			// Condition clauses may also appear inline, without the
			// "condition:" wrapper.
			var inline Condition
			if err := valueNode.Decode(&inline); err == nil {
				c.Condition = inline
			}
		}
		c.CommandType = CommandAssertCondition
		return &c, nil

	case "assertVisible":
		var sel Selector
		if err := valueNode.Decode(&sel); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		c := AssertConditionCommand{Condition: Condition{Visible: &sel}}
		decodeEnvelope(valueNode, &c.BaseCommand)
		c.CommandType = CommandAssertCondition
		return &c, nil

	case "assertNotVisible":
		var sel Selector
		if err := valueNode.Decode(&sel); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		c := AssertConditionCommand{Condition: Condition{NotVisible: &sel}}
		decodeEnvelope(valueNode, &c.BaseCommand)
		c.CommandType = CommandAssertCondition
		return &c, nil

	case "assertTrue":
		var c AssertConditionCommand
		if valueNode.Kind == yaml.ScalarNode {
			c.Condition.Script = valueNode.Value
		} else {
			var raw struct {
				Condition string `yaml:"condition"`
			}
			if err := valueNode.Decode(&raw); err != nil {
				return nil, wrapParseError(sourcePath, valueNode.Line, err)
			}
			c.Condition.Script = raw.Condition
			decodeEnvelope(valueNode, &c.BaseCommand)
		}
		c.CommandType = CommandAssertCondition
		return &c, nil

	case "extendedWaitUntil":
		var c AssertConditionCommand
		var raw struct {
			Visible    *Selector `yaml:"visible"`
			NotVisible *Selector `yaml:"notVisible"`
		}
		if err := valueNode.Decode(&raw); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		c.Condition.Visible = raw.Visible
		c.Condition.NotVisible = raw.NotVisible
		decodeEnvelope(valueNode, &c.BaseCommand)
		c.CommandType = CommandAssertCondition
		return &c, nil

	case string(CommandAssertNoDefectsWithAI):
		c := AssertNoDefectsWithAICommand{}
		if err := valueNode.Decode(&c); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		c.CommandType = CommandAssertNoDefectsWithAI
		return &c, nil

	case string(CommandAssertWithAI):
		var c AssertWithAICommand
		if valueNode.Kind == yaml.ScalarNode {
			c.Assertion = valueNode.Value
		} else if err := valueNode.Decode(&c); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		c.CommandType = CommandAssertWithAI
		return &c, nil

	case string(CommandExtractTextWithAI):
		var c ExtractTextWithAICommand
		if valueNode.Kind == yaml.ScalarNode {
			c.Query = valueNode.Value
		} else if err := valueNode.Decode(&c); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		c.CommandType = CommandExtractTextWithAI
		return &c, nil

	case string(CommandLaunchApp):
		var c LaunchAppCommand
		if valueNode.Kind == yaml.ScalarNode {
			c.AppID = valueNode.Value
		} else if err := valueNode.Decode(&c); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		c.CommandType = CommandLaunchApp
		return &c, nil

	case string(CommandStopApp):
		var c StopAppCommand
		if valueNode.Kind == yaml.ScalarNode {
			c.AppID = valueNode.Value
		} else if err := valueNode.Decode(&c); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		c.CommandType = CommandStopApp
		return &c, nil

	case string(CommandKillApp):
		var c KillAppCommand
		if valueNode.Kind == yaml.ScalarNode {
			c.AppID = valueNode.Value
		} else if err := valueNode.Decode(&c); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		c.CommandType = CommandKillApp
		return &c, nil

	case string(CommandClearState):
		var c ClearStateCommand
		if valueNode.Kind == yaml.ScalarNode {
			c.AppID = valueNode.Value
		} else if err := valueNode.Decode(&c); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		c.CommandType = CommandClearState
		return &c, nil

	case string(CommandClearKeychain):
		c := ClearKeychainCommand{}
		if err := valueNode.Decode(&c); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		c.CommandType = CommandClearKeychain
		return &c, nil

	case string(CommandSetPermissions):
		var c SetPermissionsCommand
		if err := valueNode.Decode(&c); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		c.CommandType = CommandSetPermissions
		return &c, nil

	case string(CommandSetLocation):
		var c SetLocationCommand
		if err := valueNode.Decode(&c); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		c.CommandType = CommandSetLocation
		return &c, nil

	case string(CommandSetOrientation):
		var c SetOrientationCommand
		if valueNode.Kind == yaml.ScalarNode {
			c.Orientation = valueNode.Value
		} else if err := valueNode.Decode(&c); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		c.CommandType = CommandSetOrientation
		return &c, nil

	case string(CommandSetAirplaneMode):
		var c SetAirplaneModeCommand
		if valueNode.Kind == yaml.ScalarNode {
			if err := valueNode.Decode(&c.Enabled); err != nil {
				return nil, wrapParseError(sourcePath, valueNode.Line, err)
			}
		} else if err := valueNode.Decode(&c); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		c.CommandType = CommandSetAirplaneMode
		return &c, nil

	case string(CommandToggleAirplaneMode):
		c := ToggleAirplaneModeCommand{}
		if err := valueNode.Decode(&c); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		c.CommandType = CommandToggleAirplaneMode
		return &c, nil

	case string(CommandTravel):
		var c TravelCommand
		if err := valueNode.Decode(&c); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		c.CommandType = CommandTravel
		return &c, nil

	case string(CommandOpenLink), "openBrowser":
		var c OpenLinkCommand
		if valueNode.Kind == yaml.ScalarNode {
			c.Link = valueNode.Value
		} else if err := valueNode.Decode(&c); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		if name == "openBrowser" {
			browser := true
			c.Browser = &browser
		}
		c.CommandType = CommandOpenLink
		return &c, nil

	case string(CommandRepeat):
		var c RepeatCommand
		if err := valueNode.Decode(&c); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		cmds, err := nestedCommands(valueNode, sourcePath)
		if err != nil {
			return nil, err
		}
		c.Commands = cmds
		c.CommandType = CommandRepeat
		return &c, nil

	case string(CommandRetry):
		var c RetryCommand
		if err := valueNode.Decode(&c); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		cmds, err := nestedCommands(valueNode, sourcePath)
		if err != nil {
			return nil, err
		}
		c.Commands = cmds
		c.CommandType = CommandRetry
		return &c, nil

	case string(CommandRunFlow):
		var c RunFlowCommand
		if valueNode.Kind == yaml.ScalarNode {
			c.File = valueNode.Value
		} else {
			if err := valueNode.Decode(&c); err != nil {
				return nil, wrapParseError(sourcePath, valueNode.Line, err)
			}
			cmds, err := nestedCommands(valueNode, sourcePath)
			if err != nil {
				return nil, err
			}
			c.Commands = cmds
		}
		c.CommandType = CommandRunFlow
		return &c, nil

	case string(CommandRunScript):
		var c RunScriptCommand
		if valueNode.Kind == yaml.ScalarNode {
			c.Script = valueNode.Value
		} else if err := valueNode.Decode(&c); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		c.CommandType = CommandRunScript
		return &c, nil

	case string(CommandEvalScript):
		var c EvalScriptCommand
		if valueNode.Kind == yaml.ScalarNode {
			c.Script = valueNode.Value
		} else if err := valueNode.Decode(&c); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		c.CommandType = CommandEvalScript
		return &c, nil

	case string(CommandDefineVariables):
		var c DefineVariablesCommand
		if err := valueNode.Decode(&c); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		if len(c.Env) == 0 {
			// Bare form: defineVariables: {FOO: bar}
			var env map[string]string
			if err := valueNode.Decode(&env); err == nil {
				delete(env, "label")
				delete(env, "optional")
				c.Env = env
			}
		}
		c.CommandType = CommandDefineVariables
		return &c, nil

	case string(CommandTakeScreenshot):
		var c TakeScreenshotCommand
		if valueNode.Kind == yaml.ScalarNode {
			c.Path = valueNode.Value
		} else if err := valueNode.Decode(&c); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		c.CommandType = CommandTakeScreenshot
		return &c, nil

	case string(CommandStartRecording):
		var c StartRecordingCommand
		if valueNode.Kind == yaml.ScalarNode {
			c.Path = valueNode.Value
		} else if err := valueNode.Decode(&c); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		c.CommandType = CommandStartRecording
		return &c, nil

	case string(CommandStopRecording):
		c := StopRecordingCommand{}
		if err := valueNode.Decode(&c); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		c.CommandType = CommandStopRecording
		return &c, nil

	case string(CommandAddMedia):
		var c AddMediaCommand
		if valueNode.Kind == yaml.SequenceNode {
			if err := valueNode.Decode(&c.Files); err != nil {
				return nil, wrapParseError(sourcePath, valueNode.Line, err)
			}
		} else if err := valueNode.Decode(&c); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		c.CommandType = CommandAddMedia
		return &c, nil

	case string(CommandWaitForAnimationToEnd):
		c := WaitForAnimationToEndCommand{}
		if err := valueNode.Decode(&c); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		c.CommandType = CommandWaitForAnimationToEnd
		return &c, nil
	}

	return nil, &ParseError{
		Path:    sourcePath,
		Message: fmt.Sprintf("unknown command: %s", name),
	}
}

// decodeEnvelope best-effort decodes envelope fields (optional, label,
// timeout, when) for desugared commands whose value node doubles as a
// selector mapping.
func decodeEnvelope(valueNode *yaml.Node, base *BaseCommand) {
	if valueNode.Kind != yaml.MappingNode {
		return
	}
	var raw struct {
		Optional bool       `yaml:"optional"`
		Label    string     `yaml:"label"`
		Timeout  int        `yaml:"timeout"`
		When     *Condition `yaml:"when"`
	}
	if err := valueNode.Decode(&raw); err == nil {
		base.Optional = raw.Optional
		base.CommandLabel = raw.Label
		base.TimeoutMs = raw.Timeout
		base.When = raw.When
	}
}
