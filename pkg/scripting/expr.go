package scripting

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
)

// ExprEngine is the alternate backend, an expression-only evaluator built
// on expr-lang. It shares the Engine contract with GojaEngine; script
// sources are single expressions rather than programs.
type ExprEngine struct {
	variables    map[string]string
	envScopes    []*envFrame
	lexicalDepth int
	copiedText   string
	platform     string
	logSinks     map[int]func(string)
	nextSink     int
	mu           sync.Mutex
}

// NewExprEngine creates the expr-lang backend.
func NewExprEngine() *ExprEngine {
	return &ExprEngine{
		variables: make(map[string]string),
		envScopes: []*envFrame{newEnvFrame()},
		logSinks:  make(map[int]func(string)),
	}
}

// buildEnv merges variables and built-ins into the evaluation environment.
func (e *ExprEngine) buildEnv() map[string]any {
	env := make(map[string]any, len(e.variables)+2)
	for k, v := range e.variables {
		env[k] = v
	}
	env["maestro"] = map[string]any{
		"copiedText": e.copiedText,
		"platform":   e.platform,
	}
	env["log"] = func(msg string) string {
		for _, sink := range e.logSinks {
			sink(msg)
		}
		return msg
	}
	return env
}

func (e *ExprEngine) evalLocked(source string) (any, error) {
	env := e.buildEnv()
	program, err := expr.Compile(source, expr.Env(env), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("compile expression %q: %w", source, err)
	}
	output, err := expr.Run(program, env)
	if err != nil {
		return nil, fmt.Errorf("eval expression %q: %w", source, err)
	}
	return output, nil
}

// PutEnv binds a variable. Inside an env scope the prior binding is
// recorded and restored on LeaveEnvScope.
func (e *ExprEngine) PutEnv(name, value string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.putEnvLocked(name, value)
}

func (e *ExprEngine) putEnvLocked(name, value string) {
	frame := e.envScopes[len(e.envScopes)-1]
	prior, existed := e.variables[name]
	frame.record(name, prior, existed)
	e.variables[name] = value
}

// EnterScope opens a lexical scope. Expressions cannot declare locals, so
// only the depth is tracked.
func (e *ExprEngine) EnterScope() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lexicalDepth++
}

// LeaveScope closes the innermost lexical scope.
func (e *ExprEngine) LeaveScope() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lexicalDepth > 0 {
		e.lexicalDepth--
	}
}

// EnterEnvScope opens a variable-binding scope.
func (e *ExprEngine) EnterEnvScope() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.envScopes = append(e.envScopes, newEnvFrame())
}

// LeaveEnvScope closes the innermost binding scope, restoring shadowed
// variables.
func (e *ExprEngine) LeaveEnvScope() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.leaveEnvScopeLocked()
}

func (e *ExprEngine) leaveEnvScopeLocked() {
	if len(e.envScopes) <= 1 {
		return
	}
	frame := e.envScopes[len(e.envScopes)-1]
	e.envScopes = e.envScopes[:len(e.envScopes)-1]
	for name, prior := range frame.saved {
		if prior.existed {
			e.variables[name] = prior.value
		} else {
			delete(e.variables, name)
		}
	}
}

// ScopeDepths returns the lexical depth and the number of open env scopes
// (excluding the root frame).
func (e *ExprEngine) ScopeDepths() (lexical, env int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lexicalDepth, len(e.envScopes) - 1
}

// EvaluateScript evaluates source as an expression with env bound for the
// duration of the call. runInSubScope has no effect: expressions cannot
// declare locals.
func (e *ExprEngine) EvaluateScript(source string, env map[string]string, sourceName string, runInSubScope bool) (any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(env) > 0 {
		e.envScopes = append(e.envScopes, newEnvFrame())
		for k, v := range env {
			e.putEnvLocked(k, v)
		}
		defer e.leaveEnvScopeLocked()
	}

	value, err := e.evalLocked(source)
	if err != nil {
		return nil, fmt.Errorf("script %s: %w", sourceName, err)
	}
	return value, nil
}

// Expand resolves ${...} expressions.
func (e *ExprEngine) Expand(text string) (string, error) {
	return expandExpressions(text, func(src string) (string, error) {
		e.mu.Lock()
		defer e.mu.Unlock()
		value, err := e.evalLocked(src)
		if err != nil {
			return "", err
		}
		if value == nil {
			return "", nil
		}
		return fmt.Sprintf("%v", value), nil
	})
}

// OnLogMessage registers a log sink; the returned function removes it.
func (e *ExprEngine) OnLogMessage(fn func(string)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextSink
	e.nextSink++
	e.logSinks[id] = fn
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.logSinks, id)
	}
}

// SetCopiedText sets the value of maestro.copiedText.
func (e *ExprEngine) SetCopiedText(text string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.copiedText = text
}

// SetPlatform sets the value of maestro.platform.
func (e *ExprEngine) SetPlatform(platform string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.platform = platform
}

// Close releases the engine. Safe to call multiple times.
func (e *ExprEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.logSinks = make(map[int]func(string))
	return nil
}
