package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsDomainError(t *testing.T) {
	domain := []error{
		NewElementNotFound("text=\"X\"", nil, "not there"),
		NewAssertionError("visible X", nil, "hint"),
		NewInvalidCommand("bad point"),
		NewUnableToCopyText("id=\"label\""),
		NewUnableToLaunchApp("com.x", errors.New("boom")),
		NewUnableToClearState("com.x", nil),
		NewUnicodeNotSupported("héllo"),
		NewCloudAPIKeyNotAvailable("assertWithAI"),
	}
	for _, err := range domain {
		if !IsDomainError(err) {
			t.Errorf("IsDomainError(%T) = false, want true", err)
		}
	}

	if IsDomainError(errors.New("transport broke")) {
		t.Errorf("IsDomainError(plain error) = true, want false")
	}
	if IsDomainError(ErrCommandSkipped) {
		t.Errorf("IsDomainError(ErrCommandSkipped) = true, want false")
	}
}

func TestIsDomainError_Wrapped(t *testing.T) {
	err := fmt.Errorf("while tapping: %w", NewElementNotFound("text=\"X\"", nil, ""))
	if !IsDomainError(err) {
		t.Errorf("IsDomainError(wrapped) = false, want true")
	}
}

func TestFlowError_UnwrapAndMessage(t *testing.T) {
	cause := errors.New("device gone")
	err := NewUnableToLaunchApp("com.example", cause)
	if !errors.Is(err, cause) {
		t.Errorf("errors.Is did not find the cause")
	}
	if err.Error() != "unable to launch app com.example: device gone" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestElementNotFound_CarriesContext(t *testing.T) {
	h := &ViewHierarchy{Root: &TreeNode{}}
	err := NewElementNotFound("text=\"Pay\"", h, "increase the timeout")
	if err.Hierarchy != h {
		t.Errorf("Hierarchy not retained")
	}
	if err.Selector != "text=\"Pay\"" {
		t.Errorf("Selector = %q", err.Selector)
	}
	if err.DebugMessage != "increase the timeout" {
		t.Errorf("DebugMessage = %q", err.DebugMessage)
	}
}
