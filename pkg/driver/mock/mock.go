// Package mock provides an in-memory driver for testing flows without a
// device. The hierarchy is mutable, every call is recorded, and failures
// can be injected per method.
package mock

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/devicelab-dev/orchestra/pkg/core"
)

// findPollInterval paces FindElementWithTimeout attempts.
const findPollInterval = 100 * time.Millisecond

var errNoMatch = errors.New("no matching element")

// Config configures mock driver behavior.
type Config struct {
	Platform     string
	DeviceID     string
	UnicodeInput bool
	ScreenWidth  int
	ScreenHeight int
}

// Driver is an in-memory implementation of core.Driver.
type Driver struct {
	Config Config

	mu        sync.Mutex
	hierarchy *core.ViewHierarchy
	calls     []string
	failures  map[string]*failure
	airplane  bool
	devtools  bool
	recording bool
}

type failure struct {
	remaining int
	err       error
}

// New creates a mock driver.
func New(cfg Config) *Driver {
	if cfg.Platform == "" {
		cfg.Platform = "android"
	}
	if cfg.DeviceID == "" {
		cfg.DeviceID = "mock-device"
	}
	if cfg.ScreenWidth == 0 {
		cfg.ScreenWidth = 1080
	}
	if cfg.ScreenHeight == 0 {
		cfg.ScreenHeight = 1920
	}
	return &Driver{
		Config:    cfg,
		hierarchy: &core.ViewHierarchy{Root: Node(nil)},
		failures:  make(map[string]*failure),
	}
}

// Node builds a hierarchy node for tests.
func Node(attrs map[string]string, children ...*core.TreeNode) *core.TreeNode {
	if attrs == nil {
		attrs = map[string]string{}
	}
	return &core.TreeNode{Attributes: attrs, Children: children}
}

// SetHierarchy replaces the current view hierarchy.
func (d *Driver) SetHierarchy(h *core.ViewHierarchy) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hierarchy = h
}

// FailNext makes the next n calls of method return err.
func (d *Driver) FailNext(method string, n int, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures[method] = &failure{remaining: n, err: err}
}

// Calls returns every recorded call in order.
func (d *Driver) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

// CallCount counts recorded calls of the named method.
func (d *Driver) CallCount(method string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.calls {
		if c == method {
			n++
		}
	}
	return n
}

// record logs the call and returns any injected failure.
func (d *Driver) record(method string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, method)
	if f, ok := d.failures[method]; ok && f.remaining > 0 {
		f.remaining--
		return f.err
	}
	return nil
}

// DeviceInfo reports the configured device.
func (d *Driver) DeviceInfo(ctx context.Context) (*core.DeviceInfo, error) {
	if err := d.record("DeviceInfo"); err != nil {
		return nil, err
	}
	return d.CachedDeviceInfo(), nil
}

// CachedDeviceInfo reports the configured device without recording a call.
func (d *Driver) CachedDeviceInfo() *core.DeviceInfo {
	return &core.DeviceInfo{
		Platform:     d.Config.Platform,
		DeviceID:     d.Config.DeviceID,
		WidthGrid:    d.Config.ScreenWidth,
		HeightGrid:   d.Config.ScreenHeight,
		WidthPixels:  d.Config.ScreenWidth,
		HeightPixels: d.Config.ScreenHeight,
	}
}

// ViewHierarchy returns the current snapshot.
func (d *Driver) ViewHierarchy(ctx context.Context) (*core.ViewHierarchy, error) {
	if err := d.record("ViewHierarchy"); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.hierarchy, nil
}

// FindElementWithTimeout polls the hierarchy until the lookup matches or
// the timeout elapses. Returns nil without error when nothing matched.
func (d *Driver) FindElementWithTimeout(ctx context.Context, timeout time.Duration, lookup core.ElementLookup, scope *core.TreeNode) (*core.FindResult, error) {
	if err := d.record("FindElementWithTimeout"); err != nil {
		return nil, err
	}

	var result *core.FindResult
	attempt := func() error {
		d.mu.Lock()
		h := d.hierarchy
		d.mu.Unlock()
		if scope != nil {
			h = h.Subtree(scope)
		}
		if node := lookup.Match(h); node != nil {
			result = &core.FindResult{Node: node, Hierarchy: h}
			return nil
		}
		return errNoMatch
	}

	attempts := uint64(timeout / findPollInterval)
	if attempts == 0 {
		// WithMaxRetries treats zero retries as unlimited, so a timeout
		// shorter than one poll interval gets a single attempt instead.
		if attempt() != nil {
			return nil, nil
		}
		return result, nil
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(findPollInterval), attempts), ctx)
	if err := backoff.Retry(attempt, policy); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, nil
	}
	return result, nil
}

// Tap records a tap.
func (d *Driver) Tap(ctx context.Context, req core.TapRequest) error {
	return d.record("Tap")
}

// Swipe records a swipe.
func (d *Driver) Swipe(ctx context.Context, req core.SwipeRequest) error {
	return d.record("Swipe")
}

// SwipeFromCenter records a directional swipe.
func (d *Driver) SwipeFromCenter(ctx context.Context, direction core.Direction, durationMs, waitToSettleTimeoutMs int) error {
	return d.record("SwipeFromCenter")
}

// ScrollVertical records a scroll.
func (d *Driver) ScrollVertical(ctx context.Context) error {
	return d.record("ScrollVertical")
}

// InputText records typed text.
func (d *Driver) InputText(ctx context.Context, text string) error {
	return d.record("InputText:" + text)
}

// EraseText records an erase.
func (d *Driver) EraseText(ctx context.Context, characters int) error {
	return d.record("EraseText")
}

// PressKey records a key press.
func (d *Driver) PressKey(ctx context.Context, code string) error {
	return d.record("PressKey:" + code)
}

// HideKeyboard records the call.
func (d *Driver) HideKeyboard(ctx context.Context) error {
	return d.record("HideKeyboard")
}

// BackPress records the call.
func (d *Driver) BackPress(ctx context.Context) error {
	return d.record("BackPress")
}

// OpenLink records the call.
func (d *Driver) OpenLink(ctx context.Context, link, appID string, autoVerify, browser bool) error {
	return d.record("OpenLink:" + link)
}

// LaunchApp records the call.
func (d *Driver) LaunchApp(ctx context.Context, req core.LaunchAppRequest) error {
	return d.record("LaunchApp:" + req.AppID)
}

// StopApp records the call.
func (d *Driver) StopApp(ctx context.Context, appID string) error {
	return d.record("StopApp:" + appID)
}

// KillApp records the call.
func (d *Driver) KillApp(ctx context.Context, appID string) error {
	return d.record("KillApp:" + appID)
}

// ClearAppState records the call.
func (d *Driver) ClearAppState(ctx context.Context, appID string) error {
	return d.record("ClearAppState:" + appID)
}

// ClearKeychain records the call.
func (d *Driver) ClearKeychain(ctx context.Context) error {
	return d.record("ClearKeychain")
}

// SetPermissions records the call.
func (d *Driver) SetPermissions(ctx context.Context, appID string, permissions map[string]string) error {
	return d.record("SetPermissions:" + appID)
}

// SetLocation records the call.
func (d *Driver) SetLocation(ctx context.Context, latitude, longitude float64) error {
	return d.record(fmt.Sprintf("SetLocation:%v,%v", latitude, longitude))
}

// SetOrientation records the call.
func (d *Driver) SetOrientation(ctx context.Context, orientation string) error {
	return d.record("SetOrientation:" + orientation)
}

// SetAirplaneMode records and stores the state.
func (d *Driver) SetAirplaneMode(ctx context.Context, enabled bool) error {
	if err := d.record(fmt.Sprintf("SetAirplaneMode:%t", enabled)); err != nil {
		return err
	}
	d.mu.Lock()
	d.airplane = enabled
	d.mu.Unlock()
	return nil
}

// IsAirplaneModeEnabled returns the stored state.
func (d *Driver) IsAirplaneModeEnabled(ctx context.Context) (bool, error) {
	if err := d.record("IsAirplaneModeEnabled"); err != nil {
		return false, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.airplane, nil
}

// AddMedia records the call.
func (d *Driver) AddMedia(ctx context.Context, paths []string) error {
	return d.record("AddMedia")
}

// TakeScreenshot writes a minimal PNG.
func (d *Driver) TakeScreenshot(ctx context.Context, out io.Writer, compressed bool) error {
	if err := d.record("TakeScreenshot"); err != nil {
		return err
	}
	_, err := out.Write([]byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A})
	return err
}

// StartScreenRecording records the call and hands back a closer.
func (d *Driver) StartScreenRecording(ctx context.Context, out io.Writer) (core.ScreenRecording, error) {
	if err := d.record("StartScreenRecording"); err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.recording = true
	d.mu.Unlock()
	return &recording{driver: d}, nil
}

type recording struct {
	driver *Driver
	closed bool
}

func (r *recording) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.driver.mu.Lock()
	r.driver.recording = false
	r.driver.mu.Unlock()
	return r.driver.record("StopScreenRecording")
}

// IsRecording reports whether a recording is active.
func (d *Driver) IsRecording() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.recording
}

// WaitForAnimationToEnd records the call.
func (d *Driver) WaitForAnimationToEnd(ctx context.Context, timeout time.Duration) error {
	return d.record("WaitForAnimationToEnd")
}

// WaitForAppToSettle records the call.
func (d *Driver) WaitForAppToSettle(ctx context.Context) error {
	return d.record("WaitForAppToSettle")
}

// IsUnicodeInputSupported reports the configured capability.
func (d *Driver) IsUnicodeInputSupported() bool {
	return d.Config.UnicodeInput
}

// SetAndroidChromeDevToolsEnabled stores the flag.
func (d *Driver) SetAndroidChromeDevToolsEnabled(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.devtools = enabled
}

// DevToolsEnabled reports the stored flag.
func (d *Driver) DevToolsEnabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.devtools
}
