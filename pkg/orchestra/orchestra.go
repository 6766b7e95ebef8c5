// Package orchestra executes a parsed flow against a device driver. It
// interprets commands in order, evaluates conditions and selectors,
// maintains per-command metadata and reports progress through observer
// callbacks.
package orchestra

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/devicelab-dev/orchestra/pkg/ai"
	"github.com/devicelab-dev/orchestra/pkg/core"
	"github.com/devicelab-dev/orchestra/pkg/flow"
	"github.com/devicelab-dev/orchestra/pkg/logger"
	"github.com/devicelab-dev/orchestra/pkg/scripting"
)

// Default selector lookup windows.
const (
	defaultLookupTimeout         = 17 * time.Second
	defaultOptionalLookupTimeout = 7 * time.Second
)

// Config tunes an Orchestra instance.
type Config struct {
	Listeners Listeners
	AIEngine  ai.Engine

	// LookupTimeout bounds selector resolution for required commands;
	// OptionalLookupTimeout for optional ones.
	LookupTimeout         time.Duration
	OptionalLookupTimeout time.Duration
}

// Orchestra runs flows on a single driver. One instance serves one flow at
// a time; parallel flows need independent instances, each with its own
// script engine and controller.
type Orchestra struct {
	driver     core.Driver
	listeners  Listeners
	aiEngine   ai.Engine
	controller *FlowController

	lookupTimeout         time.Duration
	optionalLookupTimeout time.Duration

	engine   scripting.Engine
	engineMu sync.Mutex

	runID   string
	flowDir string

	timeOfLastInteraction time.Time
	copiedText            string
	recording             core.ScreenRecording
	recordingMu           sync.Mutex
	metadata              map[flow.Command]*CommandMetadata
}

// New creates an Orchestra for the given driver.
func New(driver core.Driver, cfg Config) *Orchestra {
	lookup := cfg.LookupTimeout
	if lookup == 0 {
		lookup = defaultLookupTimeout
	}
	optional := cfg.OptionalLookupTimeout
	if optional == 0 {
		optional = defaultOptionalLookupTimeout
	}
	return &Orchestra{
		driver:                driver,
		listeners:             cfg.Listeners,
		aiEngine:              cfg.AIEngine,
		controller:            NewFlowController(),
		lookupTimeout:         lookup,
		optionalLookupTimeout: optional,
		runID:                 uuid.NewString(),
		timeOfLastInteraction: time.Now(),
		metadata:              make(map[flow.Command]*CommandMetadata),
	}
}

// Controller returns the pause/resume switch for this instance.
func (o *Orchestra) Controller() *FlowController {
	return o.controller
}

// CopiedText returns the current copy buffer.
func (o *Orchestra) CopiedText() string {
	return o.copiedText
}

// RunFlow executes a flow and returns overall success. An error is
// returned only for failures that were not resolved by OnCommandFailed;
// the onFlowComplete hooks run before it propagates.
func (o *Orchestra) RunFlow(ctx context.Context, f flow.Flow) (bool, error) {
	cfg := locateApplyConfiguration(f.Commands)
	o.flowDir = ""
	if f.SourcePath != "" {
		o.flowDir = filepath.Dir(f.SourcePath)
	}

	if err := o.initEngine(ctx, cfg); err != nil {
		return false, err
	}
	o.initDriverExtensions(cfg)

	o.metadata = make(map[flow.Command]*CommandMetadata)
	o.timeOfLastInteraction = time.Now()

	if l := o.listeners.OnFlowStart; l != nil {
		l(f.Commands)
	}

	// Variable definitions are hoisted ahead of everything else.
	filtered := o.hoistDefineVariables(f.Commands)

	ok := true
	var runErr error

	onStartOk := true
	if cfg != nil && len(cfg.OnFlowStart) > 0 {
		onStartOk, runErr = o.executeCommands(ctx, cfg.OnFlowStart, cfg)
	}
	if runErr == nil && onStartOk {
		ok, runErr = o.executeCommands(ctx, filtered, cfg)
		o.closeRecording()
	} else if !onStartOk {
		ok = false
	}

	onCompleteOk := true
	if cfg != nil && len(cfg.OnFlowComplete) > 0 {
		var hookErr error
		onCompleteOk, hookErr = o.executeCommands(ctx, cfg.OnFlowComplete, cfg)
		if runErr == nil {
			runErr = hookErr
		}
	}
	o.closeRecording()

	if runErr != nil {
		return false, runErr
	}
	return onCompleteOk && ok, nil
}

// hoistDefineVariables executes every DefineVariables command up front and
// returns the command list without them.
func (o *Orchestra) hoistDefineVariables(commands []flow.Command) []flow.Command {
	filtered := make([]flow.Command, 0, len(commands))
	for _, cmd := range commands {
		if dv, ok := cmd.(*flow.DefineVariablesCommand); ok {
			for k, v := range dv.Env {
				o.engine.PutEnv(k, v)
			}
			continue
		}
		filtered = append(filtered, cmd)
	}
	return filtered
}

// executeCommands is the top-level command loop. It returns false when a
// failure was resolved to ResolutionFail by the listener; unresolved
// failures return as the error.
func (o *Orchestra) executeCommands(ctx context.Context, commands []flow.Command, cfg *flow.Config) (bool, error) {
	for i, raw := range commands {
		if ctx.Err() != nil {
			o.fireSkipped(i, raw)
			continue
		}
		if err := o.controller.WaitIfPaused(ctx); err != nil {
			o.fireSkipped(i, raw)
			continue
		}

		_, status, err := o.executeSingle(ctx, i, raw, cfg)
		if status == core.StatusFailed {
			if o.listeners.OnCommandFailed != nil {
				if o.listeners.OnCommandFailed(i, raw, err) == ResolutionContinue {
					continue
				}
				return false, nil
			}
			return false, err
		}
	}
	return true, nil
}

// executeSingle runs one raw command through substitution, dispatch and
// outcome classification. It fires the per-command callbacks except
// OnCommandFailed, which the callers own because top-level and sub-flow
// loops resolve failures differently.
func (o *Orchestra) executeSingle(ctx context.Context, index int, raw flow.Command, cfg *flow.Config) (mutating bool, status core.CommandStatus, err error) {
	if l := o.listeners.OnCommandStart; l != nil {
		l(index, raw)
	}
	o.metadataFor(raw)

	removeLogSink := o.engine.OnLogMessage(func(msg string) {
		o.updateMetadata(raw, func(md *CommandMetadata) {
			md.LogMessages = append(md.LogMessages, msg)
		})
	})
	defer removeLogSink()

	evaluated, evalErr := scripting.EvaluateCommand(o.engine, raw)
	if evalErr == nil {
		o.updateMetadata(raw, func(md *CommandMetadata) {
			md.EvaluatedCommand = evaluated
		})
	}

	execErr := evalErr
	if execErr == nil {
		var cmdMutating bool
		cmdMutating, execErr = o.executeCommand(ctx, raw, evaluated, cfg)
		if cmdMutating {
			mutating = true
			o.timeOfLastInteraction = time.Now()
		}
	}

	switch {
	case execErr == nil:
		if l := o.listeners.OnCommandComplete; l != nil {
			l(index, raw)
		}
		return mutating, core.StatusComplete, nil

	case errors.Is(execErr, core.ErrCommandSkipped):
		o.fireSkipped(index, raw)
		return mutating, core.StatusSkipped, nil

	case core.IsDomainError(execErr) && isDemoted(raw):
		o.setInsight(raw, InsightWarning, execErr.Error())
		logger.Warn("optional command warned: %s: %v", raw.Describe(), execErr)
		if l := o.listeners.OnCommandWarned; l != nil {
			l(index, raw)
		}
		return mutating, core.StatusWarned, nil

	default:
		logger.Error("command failed: %s: %v", raw.Describe(), execErr)
		return mutating, core.StatusFailed, execErr
	}
}

func (o *Orchestra) fireSkipped(index int, raw flow.Command) {
	o.metadataFor(raw)
	if l := o.listeners.OnCommandSkipped; l != nil {
		l(index, raw)
	}
}

// isDemoted reports whether the raw command opted into warning demotion,
// either on the envelope or on its selector.
func isDemoted(raw flow.Command) bool {
	if raw.IsOptional() {
		return true
	}
	switch c := raw.(type) {
	case *flow.TapOnCommand:
		return c.Selector.IsOptional()
	case *flow.CopyTextFromCommand:
		return c.Selector.IsOptional()
	case *flow.ScrollUntilVisibleCommand:
		return c.Element.IsOptional()
	}
	return false
}

// adjustedToLatestInteraction shrinks a wait window by the wall time that
// already passed since the last device interaction, so a slow previous
// step does not extend the caller's deadline. Applied to selector lookups
// and condition waits only.
func (o *Orchestra) adjustedToLatestInteraction(timeout time.Duration) time.Duration {
	elapsed := time.Since(o.timeOfLastInteraction)
	if elapsed >= timeout {
		return 0
	}
	return timeout - elapsed
}

// locateApplyConfiguration finds the flow config carried in the command
// list, if any.
func locateApplyConfiguration(commands []flow.Command) *flow.Config {
	for _, cmd := range commands {
		if ac, ok := cmd.(*flow.ApplyConfigurationCommand); ok {
			return &ac.Config
		}
	}
	return nil
}

// initEngine (re)creates the script engine for this flow, honoring the
// backend selection in config.ext. The previous engine is closed first.
func (o *Orchestra) initEngine(ctx context.Context, cfg *flow.Config) error {
	o.engineMu.Lock()
	defer o.engineMu.Unlock()

	if o.engine != nil {
		o.engine.Close()
	}

	var ext map[string]string
	if cfg != nil {
		ext = cfg.Ext
	}
	o.engine = scripting.New(ext)

	importSystemEnv(o.engine)

	if cfg != nil {
		for k, v := range cfg.Env {
			o.engine.PutEnv(k, v)
		}
		if cfg.AppID != "" {
			o.engine.PutEnv("APP_ID", cfg.AppID)
		}
	}

	if info := o.driver.CachedDeviceInfo(); info != nil {
		o.engine.SetPlatform(info.Platform)
	} else if info, err := o.driver.DeviceInfo(ctx); err == nil {
		o.engine.SetPlatform(info.Platform)
	}

	return nil
}

// ScriptEngine exposes the current engine, e.g. for embedders that seed
// extra bindings between flows. Nil before the first RunFlow.
func (o *Orchestra) ScriptEngine() scripting.Engine {
	o.engineMu.Lock()
	defer o.engineMu.Unlock()
	return o.engine
}

// Close releases the script engine and any active recording. The engine
// otherwise lives across flows and is only closed on replacement.
func (o *Orchestra) Close() {
	o.closeRecording()
	o.engineMu.Lock()
	defer o.engineMu.Unlock()
	if o.engine != nil {
		o.engine.Close()
		o.engine = nil
	}
}

// initDriverExtensions applies config.ext options the driver cares about.
func (o *Orchestra) initDriverExtensions(cfg *flow.Config) {
	if cfg == nil {
		return
	}
	if cfg.Ext["androidWebViewHierarchy"] == "devtools" {
		o.driver.SetAndroidChromeDevToolsEnabled(true)
	}
}

// closeRecording stops the active screen recording, if any. Idempotent.
func (o *Orchestra) closeRecording() {
	o.recordingMu.Lock()
	defer o.recordingMu.Unlock()
	if o.recording != nil {
		if err := o.recording.Close(); err != nil {
			logger.Warn("failed to close screen recording: %v", err)
		}
		o.recording = nil
	}
}

// requireAI returns the engine or the per-command credential error. The
// check is deliberately per command: flows without AI commands run without
// credentials.
func (o *Orchestra) requireAI(command string) (ai.Engine, error) {
	if o.aiEngine == nil {
		return nil, core.NewCloudAPIKeyNotAvailable(command)
	}
	return o.aiEngine, nil
}

// systemEnviron is swappable in tests.
var systemEnviron = os.Environ

// importSystemEnv seeds ALL_CAPS process environment variables into the
// engine so flows can reference CI configuration directly.
func importSystemEnv(engine scripting.Engine) {
	for _, kv := range systemEnviron() {
		name, value, found := cutEnv(kv)
		if !found {
			continue
		}
		if isEnvVarName(name) {
			engine.PutEnv(name, value)
		}
	}
}

func cutEnv(kv string) (name, value string, found bool) {
	for i := 0; i < len(kv); i++ {
		if kv[i] == '=' {
			return kv[:i], kv[i+1:], true
		}
	}
	return "", "", false
}

// isEnvVarName matches ALL_CAPS identifiers of three or more characters.
func isEnvVarName(name string) bool {
	if len(name) < 3 {
		return false
	}
	if name[0] < 'A' || name[0] > 'Z' {
		return false
	}
	for i := 1; i < len(name); i++ {
		c := name[i]
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') && c != '_' {
			return false
		}
	}
	return true
}

// RunID identifies this orchestra instance across reports and artifacts.
func (o *Orchestra) RunID() string {
	return o.runID
}

// resolvePath resolves a path relative to the flow's source directory.
func (o *Orchestra) resolvePath(path string) string {
	if path == "" || filepath.IsAbs(path) || o.flowDir == "" {
		return path
	}
	return filepath.Join(o.flowDir, path)
}

// describeCommand is used in error paths where only the interface is
// available.
func describeCommand(cmd flow.Command) string {
	if cmd == nil {
		return "<nil>"
	}
	if label := cmd.Label(); label != "" {
		return fmt.Sprintf("%s (%s)", label, cmd.Type())
	}
	return cmd.Describe()
}
