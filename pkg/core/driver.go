// Package core defines the device driver contract and the shared data
// model the orchestrator executes against.
package core

import (
	"context"
	"io"
	"time"
)

// ElementFilter narrows a candidate node list against a hierarchy snapshot.
// Filters compose by intersection: each one receives the previous filter's
// output as its candidates.
type ElementFilter func(hierarchy *ViewHierarchy, candidates []*TreeNode) []*TreeNode

// ElementLookup pairs a compiled selector match function with the
// human-readable description used in diagnostics.
type ElementLookup struct {
	Description string
	Match       func(hierarchy *ViewHierarchy) *TreeNode
}

// FindResult is a resolved element together with the snapshot it was
// resolved against.
type FindResult struct {
	Node      *TreeNode
	Hierarchy *ViewHierarchy
}

// Bounds returns the resolved element's bounds.
func (r *FindResult) Bounds() Bounds {
	b, _ := r.Node.Bounds()
	return b
}

// Point is an absolute screen coordinate.
type Point struct {
	X int
	Y int
}

// PercentPoint is a screen coordinate given as percentages (0..100).
type PercentPoint struct {
	X float64
	Y float64
}

// Direction of a swipe or scroll gesture.
type Direction string

// Direction values.
const (
	DirectionUp    Direction = "UP"
	DirectionDown  Direction = "DOWN"
	DirectionLeft  Direction = "LEFT"
	DirectionRight Direction = "RIGHT"
)

// TapRequest describes a tap gesture. Exactly one of Element, Point or
// Percent is set.
type TapRequest struct {
	Element *FindResult
	Point   *Point
	Percent *PercentPoint

	InitialHierarchy      *ViewHierarchy
	LongPress             bool
	Repeat                int
	DelayMs               int
	RetryIfNoChange       bool
	WaitUntilVisible      bool
	WaitToSettleTimeoutMs int
	AppID                 string
}

// SwipeRequest describes a swipe gesture. One of the four input shapes is
// set: Direction alone (full-screen), Direction+Element, Start+End points,
// or Start+End percentages.
type SwipeRequest struct {
	Direction             Direction
	Element               *FindResult
	Start                 *Point
	End                   *Point
	StartPercent          *PercentPoint
	EndPercent            *PercentPoint
	DurationMs            int
	WaitToSettleTimeoutMs int
}

// LaunchAppRequest describes an app launch.
type LaunchAppRequest struct {
	AppID         string
	Arguments     map[string]any
	StopIfRunning bool
}

// DeviceInfo contains device and platform details.
type DeviceInfo struct {
	Platform     string `json:"platform"` // ios, android
	DeviceID     string `json:"deviceId"`
	WidthGrid    int    `json:"widthGrid"`  // logical grid width (visibility math)
	HeightGrid   int    `json:"heightGrid"` // logical grid height
	WidthPixels  int    `json:"widthPixels"`
	HeightPixels int    `json:"heightPixels"`
}

// ScreenRecording is an in-progress screen capture. Close stops the
// recording and flushes the sink; closing twice is a no-op.
type ScreenRecording interface {
	Close() error
}

// Driver executes low-level actions on a device. The orchestrator owns all
// flow logic; a driver only performs individual device operations.
type Driver interface {
	// DeviceInfo queries the device; CachedDeviceInfo returns the last
	// known value without I/O.
	DeviceInfo(ctx context.Context) (*DeviceInfo, error)
	CachedDeviceInfo() *DeviceInfo

	// ViewHierarchy captures the current UI tree.
	ViewHierarchy(ctx context.Context) (*ViewHierarchy, error)

	// FindElementWithTimeout polls the hierarchy until the lookup matches
	// or the timeout elapses. A nil scope searches the whole tree. Returns
	// nil (no error) when the element was not found in time.
	FindElementWithTimeout(ctx context.Context, timeout time.Duration, lookup ElementLookup, scope *TreeNode) (*FindResult, error)

	Tap(ctx context.Context, req TapRequest) error
	Swipe(ctx context.Context, req SwipeRequest) error
	SwipeFromCenter(ctx context.Context, direction Direction, durationMs, waitToSettleTimeoutMs int) error
	ScrollVertical(ctx context.Context) error

	InputText(ctx context.Context, text string) error
	EraseText(ctx context.Context, characters int) error
	PressKey(ctx context.Context, code string) error
	HideKeyboard(ctx context.Context) error
	BackPress(ctx context.Context) error

	OpenLink(ctx context.Context, link, appID string, autoVerify, browser bool) error
	LaunchApp(ctx context.Context, req LaunchAppRequest) error
	StopApp(ctx context.Context, appID string) error
	KillApp(ctx context.Context, appID string) error
	ClearAppState(ctx context.Context, appID string) error
	ClearKeychain(ctx context.Context) error
	SetPermissions(ctx context.Context, appID string, permissions map[string]string) error

	SetLocation(ctx context.Context, latitude, longitude float64) error
	SetOrientation(ctx context.Context, orientation string) error
	SetAirplaneMode(ctx context.Context, enabled bool) error
	IsAirplaneModeEnabled(ctx context.Context) (bool, error)

	AddMedia(ctx context.Context, paths []string) error
	TakeScreenshot(ctx context.Context, out io.Writer, compressed bool) error
	StartScreenRecording(ctx context.Context, out io.Writer) (ScreenRecording, error)

	WaitForAnimationToEnd(ctx context.Context, timeout time.Duration) error
	WaitForAppToSettle(ctx context.Context) error

	IsUnicodeInputSupported() bool
	SetAndroidChromeDevToolsEnabled(enabled bool)
}
