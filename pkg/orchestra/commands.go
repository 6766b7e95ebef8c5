package orchestra

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/devicelab-dev/orchestra/pkg/ai"
	"github.com/devicelab-dev/orchestra/pkg/core"
	"github.com/devicelab-dev/orchestra/pkg/flow"
	"github.com/devicelab-dev/orchestra/pkg/logger"
)

// executeCommand dispatches on the evaluated command's type and performs
// its effect. raw is the pre-substitution command, the key for metadata
// and insights. The returned bool reports whether the command mutated
// device state; the caller advances the interaction clock on true.
//
//nolint:gocyclo
func (o *Orchestra) executeCommand(ctx context.Context, raw, evaluated flow.Command, cfg *flow.Config) (bool, error) {
	if err := o.controller.WaitIfPaused(ctx); err != nil {
		return false, err
	}

	// The envelope condition gates every command kind.
	if when := evaluated.Precondition(); !when.IsEmpty() {
		ok, err := o.evaluateCondition(ctx, when, evaluated.IsOptional(), 0)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, core.ErrCommandSkipped
		}
	}

	logger.Debug("executing %s", describeCommand(evaluated))

	switch c := evaluated.(type) {
	case *flow.TapOnCommand:
		return o.executeTapOnElement(ctx, c, cfg)
	case *flow.TapOnPointCommand:
		return o.executeTapOnPoint(ctx, c, cfg)
	case *flow.SwipeCommand:
		return o.executeSwipe(ctx, c)
	case *flow.ScrollCommand:
		return true, o.driver.ScrollVertical(ctx)
	case *flow.ScrollUntilVisibleCommand:
		return o.executeScrollUntilVisible(ctx, c)
	case *flow.BackCommand:
		return true, o.driver.BackPress(ctx)
	case *flow.HideKeyboardCommand:
		return true, o.driver.HideKeyboard(ctx)
	case *flow.PressKeyCommand:
		return true, o.driver.PressKey(ctx, c.Key)

	case *flow.InputTextCommand:
		return o.executeInputText(ctx, c.Text)
	case *flow.InputRandomCommand:
		return o.executeInputText(ctx, randomInput(c.DataType, c.Length))
	case *flow.EraseTextCommand:
		chars := c.Characters
		if chars <= 0 {
			chars = 50
		}
		return true, o.driver.EraseText(ctx, chars)
	case *flow.CopyTextFromCommand:
		return o.executeCopyTextFrom(ctx, c)
	case *flow.PasteTextCommand:
		if o.copiedText == "" {
			return false, nil
		}
		return true, o.driver.InputText(ctx, o.copiedText)
	case *flow.SetClipboardCommand:
		o.copiedText = c.Text
		o.engine.SetCopiedText(c.Text)
		return false, nil

	case *flow.AssertConditionCommand:
		return false, o.executeAssertCondition(ctx, c)
	case *flow.AssertNoDefectsWithAICommand:
		return false, o.executeAssertNoDefectsWithAI(ctx, raw, c)
	case *flow.AssertWithAICommand:
		return false, o.executeAssertWithAI(ctx, raw, c)
	case *flow.ExtractTextWithAICommand:
		return false, o.executeExtractTextWithAI(ctx, c)

	case *flow.LaunchAppCommand:
		return o.executeLaunchApp(ctx, c, cfg)
	case *flow.StopAppCommand:
		return true, o.driver.StopApp(ctx, appID(c.AppID, cfg))
	case *flow.KillAppCommand:
		return true, o.driver.KillApp(ctx, appID(c.AppID, cfg))
	case *flow.ClearStateCommand:
		return o.executeClearState(ctx, appID(c.AppID, cfg))
	case *flow.ClearKeychainCommand:
		return true, o.driver.ClearKeychain(ctx)
	case *flow.SetPermissionsCommand:
		return true, o.driver.SetPermissions(ctx, appID(c.AppID, cfg), c.Permissions)

	case *flow.SetLocationCommand:
		return o.executeSetLocation(ctx, c)
	case *flow.SetOrientationCommand:
		return true, o.driver.SetOrientation(ctx, c.Orientation)
	case *flow.SetAirplaneModeCommand:
		return true, o.driver.SetAirplaneMode(ctx, c.Enabled)
	case *flow.ToggleAirplaneModeCommand:
		enabled, err := o.driver.IsAirplaneModeEnabled(ctx)
		if err != nil {
			return false, err
		}
		return true, o.driver.SetAirplaneMode(ctx, !enabled)
	case *flow.TravelCommand:
		return o.executeTravel(ctx, c)
	case *flow.OpenLinkCommand:
		return true, o.driver.OpenLink(ctx, c.Link, appID("", cfg),
			c.AutoVerify != nil && *c.AutoVerify,
			c.Browser != nil && *c.Browser)

	case *flow.RepeatCommand:
		return o.executeRepeat(ctx, raw, c, cfg)
	case *flow.RetryCommand:
		return o.executeRetry(ctx, raw, c, cfg)
	case *flow.RunFlowCommand:
		return o.runSubFlow(ctx, c.Commands, cfg, c.Config, c.Env)
	case *flow.RunScriptCommand:
		return o.executeRunScript(c)
	case *flow.EvalScriptCommand:
		_, err := o.engine.EvaluateScript(extractExpression(c.Script), nil, "evalScript", true)
		return true, err
	case *flow.DefineVariablesCommand:
		for k, v := range c.Env {
			o.engine.PutEnv(k, v)
		}
		return false, nil

	case *flow.TakeScreenshotCommand:
		return false, o.executeTakeScreenshot(ctx, c)
	case *flow.StartRecordingCommand:
		return false, o.executeStartRecording(ctx, c)
	case *flow.StopRecordingCommand:
		o.closeRecording()
		return false, nil
	case *flow.AddMediaCommand:
		return true, o.driver.AddMedia(ctx, c.Files)

	case *flow.WaitForAnimationToEndCommand:
		timeout := time.Duration(c.TimeoutMs) * time.Millisecond
		if timeout == 0 {
			timeout = 15 * time.Second
		}
		return false, o.driver.WaitForAnimationToEnd(ctx, timeout)
	}

	// applyConfiguration and unrecognized commands are no-ops.
	return false, nil
}

// appID picks the explicit app id or falls back to the flow config.
func appID(explicit string, cfg *flow.Config) string {
	if explicit != "" {
		return explicit
	}
	if cfg != nil {
		return cfg.AppID
	}
	return ""
}

func (o *Orchestra) executeTapOnElement(ctx context.Context, c *flow.TapOnCommand, cfg *flow.Config) (bool, error) {
	timeout := o.lookupTimeout
	if c.Selector.IsOptional() {
		timeout = o.optionalLookupTimeout
	}
	res, err := o.findElement(ctx, &c.Selector, timeout)
	if err != nil {
		return false, err
	}

	retryIfNoChange := c.RetryIfNoChange == nil || *c.RetryIfNoChange
	waitUntilVisible := c.WaitUntilVisible != nil && *c.WaitUntilVisible

	return true, o.driver.Tap(ctx, core.TapRequest{
		Element:               res,
		InitialHierarchy:      res.Hierarchy,
		LongPress:             c.LongPress,
		Repeat:                c.Repeat,
		DelayMs:               c.DelayMs,
		RetryIfNoChange:       retryIfNoChange,
		WaitUntilVisible:      waitUntilVisible,
		WaitToSettleTimeoutMs: c.WaitToSettleTimeoutMs,
		AppID:                 appID("", cfg),
	})
}

func (o *Orchestra) executeTapOnPoint(ctx context.Context, c *flow.TapOnPointCommand, cfg *flow.Config) (bool, error) {
	req := core.TapRequest{
		LongPress:             c.LongPress,
		Repeat:                c.Repeat,
		DelayMs:               c.DelayMs,
		RetryIfNoChange:       c.RetryIfNoChange == nil || *c.RetryIfNoChange,
		WaitToSettleTimeoutMs: c.WaitToSettleTimeoutMs,
		AppID:                 appID("", cfg),
	}

	if strings.Contains(c.Point, "%") {
		pct, err := parsePercentPoint(c.Point)
		if err != nil {
			return false, err
		}
		req.Percent = pct
	} else {
		pt, err := parsePoint(c.Point)
		if err != nil {
			return false, err
		}
		req.Point = pt
	}

	return true, o.driver.Tap(ctx, req)
}

// parsePoint parses "x,y" absolute coordinates.
func parsePoint(s string) (*core.Point, error) {
	xs, ys, err := splitPair(s)
	if err != nil {
		return nil, err
	}
	x, errX := strconv.Atoi(xs)
	y, errY := strconv.Atoi(ys)
	if errX != nil || errY != nil {
		return nil, core.NewInvalidCommand(fmt.Sprintf("point %q is not a coordinate pair", s))
	}
	return &core.Point{X: x, Y: y}, nil
}

// parsePercentPoint parses "x%,y%"; both values must be within 0..100.
func parsePercentPoint(s string) (*core.PercentPoint, error) {
	xs, ys, err := splitPair(s)
	if err != nil {
		return nil, err
	}
	x, errX := strconv.ParseFloat(strings.TrimSuffix(xs, "%"), 64)
	y, errY := strconv.ParseFloat(strings.TrimSuffix(ys, "%"), 64)
	if errX != nil || errY != nil {
		return nil, core.NewInvalidCommand(fmt.Sprintf("point %q is not a percent pair", s))
	}
	if x < 0 || x > 100 || y < 0 || y > 100 {
		return nil, core.NewInvalidCommand(fmt.Sprintf("percent point %q must be within 0%%..100%%", s))
	}
	return &core.PercentPoint{X: x, Y: y}, nil
}

func splitPair(s string) (string, string, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return "", "", core.NewInvalidCommand(fmt.Sprintf("point %q must be \"x,y\"", s))
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), nil
}

func (o *Orchestra) executeSwipe(ctx context.Context, c *flow.SwipeCommand) (bool, error) {
	req := core.SwipeRequest{
		DurationMs:            c.Duration,
		WaitToSettleTimeoutMs: c.WaitToSettleTimeoutMs,
	}
	if req.DurationMs == 0 {
		req.DurationMs = 400
	}

	switch {
	case c.Start != "" && c.End != "":
		if strings.Contains(c.Start, "%") {
			start, err := parsePercentPoint(c.Start)
			if err != nil {
				return false, err
			}
			end, err := parsePercentPoint(c.End)
			if err != nil {
				return false, err
			}
			req.StartPercent, req.EndPercent = start, end
		} else {
			start, err := parsePoint(c.Start)
			if err != nil {
				return false, err
			}
			end, err := parsePoint(c.End)
			if err != nil {
				return false, err
			}
			req.Start, req.End = start, end
		}

	case c.StartX != 0 || c.StartY != 0 || c.EndX != 0 || c.EndY != 0:
		req.Start = &core.Point{X: c.StartX, Y: c.StartY}
		req.End = &core.Point{X: c.EndX, Y: c.EndY}

	case c.Selector != nil && !c.Selector.IsEmpty():
		res, err := o.findElement(ctx, c.Selector, o.lookupTimeout)
		if err != nil {
			return false, err
		}
		req.Element = res
		req.Direction = parseDirection(c.Direction)

	case c.Direction != "":
		req.Direction = parseDirection(c.Direction)

	default:
		return false, core.NewInvalidCommand("swipe requires a direction, points or a selector")
	}

	return true, o.driver.Swipe(ctx, req)
}

func parseDirection(s string) core.Direction {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "UP":
		return core.DirectionUp
	case "LEFT":
		return core.DirectionLeft
	case "RIGHT":
		return core.DirectionRight
	default:
		return core.DirectionDown
	}
}

func (o *Orchestra) executeInputText(ctx context.Context, text string) (bool, error) {
	if !o.driver.IsUnicodeInputSupported() {
		for _, r := range text {
			if r > unicode.MaxASCII {
				return false, core.NewUnicodeNotSupported(text)
			}
		}
	}
	return true, o.driver.InputText(ctx, text)
}

// randomInput generates text for inputRandom. Length applies to TEXT and
// NUMBER.
func randomInput(dataType string, length int) string {
	if length <= 0 {
		length = 8
	}
	switch strings.ToUpper(dataType) {
	case "NUMBER":
		digits := make([]byte, length)
		for i := range digits {
			digits[i] = byte('0' + rand.Intn(10))
		}
		return string(digits)
	case "EMAIL":
		return randomLetters(8) + "@example.com"
	case "PERSON_NAME":
		names := []string{"Alex Smith", "Maria Garcia", "Wei Chen", "Fatima Khan", "John Doe"}
		return names[rand.Intn(len(names))]
	default:
		return randomLetters(length)
	}
}

func randomLetters(n int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	out := make([]byte, n)
	for i := range out {
		out[i] = letters[rand.Intn(len(letters))]
	}
	return string(out)
}

func (o *Orchestra) executeCopyTextFrom(ctx context.Context, c *flow.CopyTextFromCommand) (bool, error) {
	timeout := o.lookupTimeout
	if c.Selector.IsOptional() {
		timeout = o.optionalLookupTimeout
	}
	res, err := o.findElement(ctx, &c.Selector, timeout)
	if err != nil {
		return false, err
	}

	text := res.Node.Attr("text")
	if text == "" {
		text = res.Node.Attr("hintText")
	}
	if text == "" {
		text = res.Node.Attr("accessibilityText")
	}
	if text == "" {
		return false, core.NewUnableToCopyText(c.Selector.DescribeQuoted())
	}

	o.copiedText = text
	o.engine.SetCopiedText(text)
	return false, nil
}

func (o *Orchestra) executeAssertCondition(ctx context.Context, c *flow.AssertConditionCommand) error {
	timeoutMs := c.TimeoutMs
	if timeoutMs == 0 {
		timeoutMs = int(o.lookupTimeout / time.Millisecond)
	}
	ok, err := o.evaluateCondition(ctx, &c.Condition, c.IsOptional(), timeoutMs)
	if err != nil {
		return err
	}
	if !ok {
		hierarchy, _ := o.driver.ViewHierarchy(ctx)
		return core.NewAssertionError(c.Condition.Describe(), hierarchy,
			fmt.Sprintf("Assertion is false: %s. If the element takes longer to appear, "+
				"increase the timeout (current: %dms); if it never should, invert the condition.",
				c.Condition.Describe(), timeoutMs))
	}
	return nil
}

func (o *Orchestra) executeAssertNoDefectsWithAI(ctx context.Context, raw flow.Command, c *flow.AssertNoDefectsWithAICommand) error {
	engine, err := o.requireAI("assertNoDefectsWithAI")
	if err != nil {
		return err
	}
	screen, err := o.screenshotBytes(ctx)
	if err != nil {
		return err
	}
	defects, err := engine.FindDefects(ctx, screen)
	if err != nil {
		return err
	}
	if len(defects) == 0 {
		return nil
	}

	if l := o.listeners.OnCommandGeneratedOutput; l != nil {
		l(c, defects, screen)
	}

	var reasons []string
	for _, d := range defects {
		reasons = append(reasons, fmt.Sprintf("%s: %s", d.Category, d.Reasoning))
	}
	reasoning := strings.Join(reasons, "; ")
	o.rememberAIReasoning(raw, reasoning)
	hierarchy, _ := o.driver.ViewHierarchy(ctx)
	return core.NewAssertionError("no defects on screen", hierarchy, reasoning)
}

func (o *Orchestra) executeAssertWithAI(ctx context.Context, raw flow.Command, c *flow.AssertWithAICommand) error {
	engine, err := o.requireAI("assertWithAI")
	if err != nil {
		return err
	}
	screen, err := o.screenshotBytes(ctx)
	if err != nil {
		return err
	}
	defect, err := engine.PerformAssertion(ctx, screen, c.Assertion)
	if err != nil {
		return err
	}
	if defect == nil {
		return nil
	}

	if l := o.listeners.OnCommandGeneratedOutput; l != nil {
		l(c, []ai.Defect{*defect}, screen)
	}

	o.rememberAIReasoning(raw, defect.Reasoning)
	hierarchy, _ := o.driver.ViewHierarchy(ctx)
	return core.NewAssertionError(c.Assertion, hierarchy, defect.Reasoning)
}

func (o *Orchestra) executeExtractTextWithAI(ctx context.Context, c *flow.ExtractTextWithAICommand) error {
	engine, err := o.requireAI("extractTextWithAI")
	if err != nil {
		return err
	}
	screen, err := o.screenshotBytes(ctx)
	if err != nil {
		return err
	}
	text, err := engine.ExtractText(ctx, screen, c.Query)
	if err != nil {
		return err
	}

	variable := c.Variable
	if variable == "" {
		variable = "aiOutput"
	}
	o.engine.PutEnv(variable, text)
	return nil
}

func (o *Orchestra) rememberAIReasoning(cmd flow.Command, reasoning string) {
	o.updateMetadata(cmd, func(md *CommandMetadata) {
		md.AIReasoning = reasoning
	})
}

// screenshotBytes captures an uncompressed screenshot for AI calls.
func (o *Orchestra) screenshotBytes(ctx context.Context) ([]byte, error) {
	var buf bytes.Buffer
	if err := o.driver.TakeScreenshot(ctx, &buf, false); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (o *Orchestra) executeLaunchApp(ctx context.Context, c *flow.LaunchAppCommand, cfg *flow.Config) (bool, error) {
	id := appID(c.AppID, cfg)

	// Stage one: keychain, state and permissions. Failures here surface
	// as UnableToClearState.
	if c.ClearKeychain {
		if err := o.driver.ClearKeychain(ctx); err != nil {
			return false, core.NewUnableToClearState(id, err)
		}
	}
	if c.ClearState {
		if err := o.driver.ClearAppState(ctx, id); err != nil {
			return false, core.NewUnableToClearState(id, err)
		}
	}
	permissions := c.Permissions
	if permissions == nil {
		permissions = map[string]string{"all": "allow"}
	}
	if err := o.driver.SetPermissions(ctx, id, permissions); err != nil {
		return false, core.NewUnableToClearState(id, err)
	}

	// Stage two: the launch itself.
	stopIfRunning := c.StopApp == nil || *c.StopApp
	err := o.driver.LaunchApp(ctx, core.LaunchAppRequest{
		AppID:         id,
		Arguments:     c.Arguments,
		StopIfRunning: stopIfRunning,
	})
	if err != nil {
		return false, core.NewUnableToLaunchApp(id, err)
	}
	return true, nil
}

func (o *Orchestra) executeClearState(ctx context.Context, id string) (bool, error) {
	if err := o.driver.ClearAppState(ctx, id); err != nil {
		return false, core.NewUnableToClearState(id, err)
	}
	// Reset permissions on both platforms so clearState behaves the same
	// everywhere.
	if err := o.driver.SetPermissions(ctx, id, map[string]string{"all": "unset"}); err != nil {
		return true, core.NewUnableToClearState(id, err)
	}
	return true, nil
}

func (o *Orchestra) executeSetLocation(ctx context.Context, c *flow.SetLocationCommand) (bool, error) {
	lat, errLat := strconv.ParseFloat(strings.TrimSpace(c.Latitude), 64)
	long, errLong := strconv.ParseFloat(strings.TrimSpace(c.Longitude), 64)
	if errLat != nil || errLong != nil {
		return false, core.NewInvalidCommand(
			fmt.Sprintf("setLocation coordinates %q,%q are not numbers", c.Latitude, c.Longitude))
	}
	return true, o.driver.SetLocation(ctx, lat, long)
}

func (o *Orchestra) executeTravel(ctx context.Context, c *flow.TravelCommand) (bool, error) {
	if len(c.Points) == 0 {
		return false, core.NewInvalidCommand("travel requires at least one point")
	}

	var prevLat, prevLong float64
	for i, point := range c.Points {
		xs, ys, err := splitPair(point)
		if err != nil {
			return i > 0, err
		}
		lat, errLat := strconv.ParseFloat(xs, 64)
		long, errLong := strconv.ParseFloat(ys, 64)
		if errLat != nil || errLong != nil {
			return i > 0, core.NewInvalidCommand(fmt.Sprintf("travel point %q is not \"lat, long\"", point))
		}

		if i > 0 && c.Speed > 0 {
			wait := travelLegDuration(prevLat, prevLong, lat, long, c.Speed)
			select {
			case <-ctx.Done():
				return true, ctx.Err()
			case <-time.After(wait):
			}
		}

		if err := o.driver.SetLocation(ctx, lat, long); err != nil {
			return i > 0, err
		}
		prevLat, prevLong = lat, long
	}
	return true, nil
}

// travelLegDuration approximates the time to move between two coordinates
// at speed km/h, using an equirectangular distance estimate. Capped so a
// typo in coordinates cannot stall a flow for hours.
func travelLegDuration(lat1, long1, lat2, long2, speedKmh float64) time.Duration {
	const metersPerDegree = 111_320.0
	dLat := (lat2 - lat1) * metersPerDegree
	meanLat := (lat1 + lat2) / 2 * math.Pi / 180
	dLong := (long2 - long1) * metersPerDegree * math.Cos(meanLat)
	meters := math.Sqrt(dLat*dLat + dLong*dLong)
	seconds := meters / (speedKmh * 1000 / 3600)
	d := time.Duration(seconds * float64(time.Second))
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	return d
}

func (o *Orchestra) executeRunScript(c *flow.RunScriptCommand) (bool, error) {
	source := c.Source()
	sourceName := "runScript"

	if strings.HasSuffix(source, ".js") {
		path := o.resolvePath(source)
		content, err := os.ReadFile(path) //#nosec G304 -- path comes from the flow file
		if err != nil {
			return false, fmt.Errorf("cannot read script file %s: %w", path, err)
		}
		sourceName = path
		source = string(content)
	}

	_, err := o.engine.EvaluateScript(source, c.Env, sourceName, true)
	return true, err
}

func (o *Orchestra) executeTakeScreenshot(ctx context.Context, c *flow.TakeScreenshotCommand) error {
	path := o.resolvePath(c.Path)
	if path == "" {
		path = fmt.Sprintf("screenshot-%d.png", time.Now().UnixMilli())
	} else if !strings.Contains(path, ".") {
		path += ".png"
	}

	f, err := os.Create(path) //#nosec G304 -- path comes from the flow file
	if err != nil {
		return err
	}
	defer f.Close()
	return o.driver.TakeScreenshot(ctx, f, true)
}

func (o *Orchestra) executeStartRecording(ctx context.Context, c *flow.StartRecordingCommand) error {
	o.recordingMu.Lock()
	active := o.recording != nil
	o.recordingMu.Unlock()
	if active {
		logger.Warn("startRecording: a recording is already active")
		return nil
	}

	path := o.resolvePath(c.Path)
	if path == "" {
		path = fmt.Sprintf("recording-%d.mp4", time.Now().UnixMilli())
	} else if !strings.Contains(path, ".") {
		path += ".mp4"
	}

	f, err := os.Create(path) //#nosec G304 -- path comes from the flow file
	if err != nil {
		return err
	}

	rec, err := o.driver.StartScreenRecording(ctx, f)
	if err != nil {
		f.Close()
		return err
	}

	o.recordingMu.Lock()
	o.recording = &fileBackedRecording{recording: rec, file: f}
	o.recordingMu.Unlock()
	return nil
}

// fileBackedRecording closes the recording and its sink exactly once.
type fileBackedRecording struct {
	recording core.ScreenRecording
	file      *os.File
	closed    bool
}

func (r *fileBackedRecording) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	err := r.recording.Close()
	if cerr := r.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// extractExpression strips the ${...} wrapper off an inline expression.
func extractExpression(script string) string {
	script = strings.TrimSpace(script)
	if strings.HasPrefix(script, "${") && strings.HasSuffix(script, "}") {
		return script[2 : len(script)-1]
	}
	return script
}
