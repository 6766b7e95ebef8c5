package mock

import (
	"context"
	"testing"
	"time"

	"github.com/devicelab-dev/orchestra/pkg/core"
)

func textLookup(text string) core.ElementLookup {
	return core.ElementLookup{
		Description: "text=\"" + text + "\"",
		Match: func(h *core.ViewHierarchy) *core.TreeNode {
			for _, n := range h.Aggregate() {
				if n.Attr("text") == text {
					return n
				}
			}
			return nil
		},
	}
}

func TestFindElementWithTimeout_Found(t *testing.T) {
	d := New(Config{})
	target := Node(map[string]string{"text": "Go"})
	d.SetHierarchy(&core.ViewHierarchy{Root: Node(nil, target)})

	res, err := d.FindElementWithTimeout(context.Background(), 200*time.Millisecond, textLookup("Go"), nil)
	if err != nil {
		t.Fatalf("FindElementWithTimeout() error = %v", err)
	}
	if res == nil || res.Node != target {
		t.Errorf("result = %v, want the target node", res)
	}
}

func TestFindElementWithTimeout_TimesOutWithoutError(t *testing.T) {
	d := New(Config{})

	start := time.Now()
	res, err := d.FindElementWithTimeout(context.Background(), 300*time.Millisecond, textLookup("Missing"), nil)
	if err != nil {
		t.Fatalf("FindElementWithTimeout() error = %v", err)
	}
	if res != nil {
		t.Errorf("result = %v, want nil", res)
	}
	if elapsed := time.Since(start); elapsed < 250*time.Millisecond {
		t.Errorf("returned after %v, want the full polling window", elapsed)
	}
}

func TestFindElementWithTimeout_AppearsLate(t *testing.T) {
	d := New(Config{})
	target := Node(map[string]string{"text": "Late"})

	go func() {
		time.Sleep(150 * time.Millisecond)
		d.SetHierarchy(&core.ViewHierarchy{Root: Node(nil, target)})
	}()

	res, err := d.FindElementWithTimeout(context.Background(), time.Second, textLookup("Late"), nil)
	if err != nil {
		t.Fatalf("FindElementWithTimeout() error = %v", err)
	}
	if res == nil || res.Node != target {
		t.Errorf("element that appeared mid-wait was not found")
	}
}

func TestFailNext(t *testing.T) {
	d := New(Config{})
	d.FailNext("BackPress", 1, context.DeadlineExceeded)

	if err := d.BackPress(context.Background()); err == nil {
		t.Errorf("first BackPress did not fail")
	}
	if err := d.BackPress(context.Background()); err != nil {
		t.Errorf("second BackPress failed: %v", err)
	}
	if d.CallCount("BackPress") != 2 {
		t.Errorf("CallCount = %d, want 2", d.CallCount("BackPress"))
	}
}

func TestScreenRecordingLifecycle(t *testing.T) {
	d := New(Config{})
	rec, err := d.StartScreenRecording(context.Background(), nil)
	if err != nil {
		t.Fatalf("StartScreenRecording() error = %v", err)
	}
	if !d.IsRecording() {
		t.Errorf("IsRecording() = false after start")
	}

	if err := rec.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if d.IsRecording() {
		t.Errorf("IsRecording() = true after close")
	}
	// Closing twice is a no-op.
	if err := rec.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if d.CallCount("StopScreenRecording") != 1 {
		t.Errorf("StopScreenRecording recorded %d times, want 1", d.CallCount("StopScreenRecording"))
	}
}
