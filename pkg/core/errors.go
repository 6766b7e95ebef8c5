package core

import (
	"errors"
	"fmt"
)

// ErrCommandSkipped is a control-flow signal, not a user-visible failure.
// Conditionals, repeats and run-script raise it to mark non-execution; the
// command loop always swallows it.
var ErrCommandSkipped = errors.New("command skipped")

// DomainError marks the failure classes the optional-demotion rule applies
// to. A domain error thrown by an optional command is reclassified as a
// warning instead of failing the flow.
type DomainError interface {
	error
	domainError()
}

// FlowError is the base for all domain errors. Code is a stable
// machine-readable identifier; DebugMessage enumerates likely causes and
// tuning knobs and is surfaced to end users as-is.
type FlowError struct {
	Code         string
	Message      string
	DebugMessage string
	Cause        error
}

func (e *FlowError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *FlowError) Unwrap() error { return e.Cause }

func (e *FlowError) domainError() {}

// IsDomainError reports whether err (or anything it wraps) is a domain
// error subject to optional demotion.
func IsDomainError(err error) bool {
	var de DomainError
	return errors.As(err, &de)
}

// ElementNotFoundError is raised when a selector does not resolve within
// its timeout. It carries the hierarchy snapshot taken at the last attempt.
type ElementNotFoundError struct {
	FlowError
	Selector  string
	Hierarchy *ViewHierarchy
}

// NewElementNotFound builds an ElementNotFoundError for the given selector
// description.
func NewElementNotFound(selector string, hierarchy *ViewHierarchy, debug string) *ElementNotFoundError {
	return &ElementNotFoundError{
		FlowError: FlowError{
			Code:         "element_not_found",
			Message:      fmt.Sprintf("element matching %s not found", selector),
			DebugMessage: debug,
		},
		Selector:  selector,
		Hierarchy: hierarchy,
	}
}

// AssertionError is raised when an assert command's condition is false.
type AssertionError struct {
	FlowError
	Condition string
	Hierarchy *ViewHierarchy
}

// NewAssertionError builds an AssertionError for the given condition
// description.
func NewAssertionError(condition string, hierarchy *ViewHierarchy, debug string) *AssertionError {
	return &AssertionError{
		FlowError: FlowError{
			Code:         "assertion_failure",
			Message:      fmt.Sprintf("assertion failed: %s", condition),
			DebugMessage: debug,
		},
		Condition: condition,
		Hierarchy: hierarchy,
	}
}

// InvalidCommandError is raised when a command's parameters cannot be
// interpreted (malformed points, out-of-range percentages, ...).
type InvalidCommandError struct {
	FlowError
}

// NewInvalidCommand builds an InvalidCommandError with the given message.
func NewInvalidCommand(message string) *InvalidCommandError {
	return &InvalidCommandError{FlowError{Code: "invalid_command", Message: message}}
}

// UnableToCopyTextError is raised when copyTextFrom resolves an element
// that carries no text, hint text or accessibility text.
type UnableToCopyTextError struct {
	FlowError
	Selector string
}

// NewUnableToCopyText builds an UnableToCopyTextError.
func NewUnableToCopyText(selector string) *UnableToCopyTextError {
	return &UnableToCopyTextError{
		FlowError: FlowError{
			Code:    "unable_to_copy_text",
			Message: fmt.Sprintf("unable to copy text from element %s", selector),
		},
		Selector: selector,
	}
}

// UnableToLaunchAppError is raised when the launch stage of launchApp
// fails.
type UnableToLaunchAppError struct {
	FlowError
	AppID string
}

// NewUnableToLaunchApp builds an UnableToLaunchAppError.
func NewUnableToLaunchApp(appID string, cause error) *UnableToLaunchAppError {
	return &UnableToLaunchAppError{
		FlowError: FlowError{
			Code:    "unable_to_launch_app",
			Message: fmt.Sprintf("unable to launch app %s", appID),
			Cause:   cause,
		},
		AppID: appID,
	}
}

// UnableToClearStateError is raised when the permissions/clear stage of
// launchApp or clearState fails.
type UnableToClearStateError struct {
	FlowError
	AppID string
}

// NewUnableToClearState builds an UnableToClearStateError.
func NewUnableToClearState(appID string, cause error) *UnableToClearStateError {
	return &UnableToClearStateError{
		FlowError: FlowError{
			Code:    "unable_to_clear_state",
			Message: fmt.Sprintf("unable to clear state of app %s", appID),
			Cause:   cause,
		},
		AppID: appID,
	}
}

// UnicodeNotSupportedError is raised when inputText receives non-ASCII
// text on a driver without unicode input support.
type UnicodeNotSupportedError struct {
	FlowError
	Text string
}

// NewUnicodeNotSupported builds a UnicodeNotSupportedError.
func NewUnicodeNotSupported(text string) *UnicodeNotSupportedError {
	return &UnicodeNotSupportedError{
		FlowError: FlowError{
			Code:    "unicode_not_supported",
			Message: fmt.Sprintf("unicode input is not supported by this driver: %q", text),
		},
		Text: text,
	}
}

// CloudAPIKeyNotAvailableError is raised by AI commands when no AI engine
// is configured. Non-AI flows never hit it.
type CloudAPIKeyNotAvailableError struct {
	FlowError
}

// NewCloudAPIKeyNotAvailable builds a CloudAPIKeyNotAvailableError for the
// named command.
func NewCloudAPIKeyNotAvailable(command string) *CloudAPIKeyNotAvailableError {
	return &CloudAPIKeyNotAvailableError{FlowError{
		Code:    "cloud_api_key_not_available",
		Message: fmt.Sprintf("%s requires an AI engine; configure an API key", command),
	}}
}
