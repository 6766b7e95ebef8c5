// Package scripting provides the embedded expression engine used for
// variable bindings, ${...} substitution and script commands. Two
// interchangeable backends exist: a goja JavaScript runtime (default) and
// an expr-lang expression evaluator.
package scripting

import (
	"os"
	"strings"
)

// Engine is the scripting contract the orchestrator depends on.
//
// Env scopes isolate variable bindings: PutEnv inside a scope is undone by
// LeaveEnvScope. Lexical scopes isolate script-local declarations; they
// are entered and left symmetrically around sub-flows.
type Engine interface {
	PutEnv(name, value string)

	EnterScope()
	LeaveScope()
	EnterEnvScope()
	LeaveEnvScope()

	// ScopeDepths returns the current lexical and env scope depths.
	ScopeDepths() (lexical, env int)

	// EvaluateScript runs source with env bound for the duration of the
	// call. sourceName labels errors; runInSubScope isolates script-local
	// declarations from the enclosing scope.
	EvaluateScript(source string, env map[string]string, sourceName string, runInSubScope bool) (any, error)

	// Expand resolves ${...} expressions embedded in text.
	Expand(text string) (string, error)

	// OnLogMessage registers a sink for messages the engine logs
	// (console.log and friends). The returned function removes it.
	OnLogMessage(fn func(message string)) (remove func())

	SetCopiedText(text string)
	SetPlatform(platform string)

	Close() error
}

// altEngineEnvVar names the backend when the flow config sets no jsEngine;
// a jsEngine value in the flow config takes precedence over it.
const altEngineEnvVar = "MAESTRO_ALT_JSENGINE"

// New selects a backend from the flow's ext options. "graaljs" historically
// named the alternate engine and maps to the expr backend, as does "expr".
func New(ext map[string]string) Engine {
	backend := ext["jsEngine"]
	if backend == "" {
		backend = os.Getenv(altEngineEnvVar)
	}
	switch strings.ToLower(backend) {
	case "graaljs", "expr":
		return NewExprEngine()
	default:
		return NewGojaEngine()
	}
}

// expandExpressions resolves ${...} segments in text using eval, matching
// nested braces. Segments that fail to evaluate are left as-is.
func expandExpressions(text string, eval func(expr string) (string, error)) (string, error) {
	result := text
	start := 0

	for {
		idx := strings.Index(result[start:], "${")
		if idx == -1 {
			break
		}
		idx += start

		depth := 1
		end := idx + 2
		for end < len(result) && depth > 0 {
			switch result[end] {
			case '{':
				depth++
			case '}':
				depth--
			}
			end++
		}
		if depth != 0 {
			// Unmatched brace, skip.
			start = idx + 2
			continue
		}

		expr := result[idx+2 : end-1]
		value, err := eval(expr)
		if err != nil {
			start = end
			continue
		}

		result = result[:idx] + value + result[end:]
		start = idx + len(value)
	}

	return result, nil
}

// envFrame records prior bindings so LeaveEnvScope can restore them.
type envFrame struct {
	saved map[string]savedBinding
}

type savedBinding struct {
	value   string
	existed bool
}

func newEnvFrame() *envFrame {
	return &envFrame{saved: make(map[string]savedBinding)}
}

// record captures the pre-scope state of name exactly once per frame.
func (f *envFrame) record(name, prior string, existed bool) {
	if _, done := f.saved[name]; !done {
		f.saved[name] = savedBinding{value: prior, existed: existed}
	}
}
