package scripting

import (
	"fmt"
	"sync"

	"github.com/dop251/goja"
)

// GojaEngine wraps a goja runtime with flow-scoped variables, the maestro
// global object and the http/json helpers.
type GojaEngine struct {
	runtime      *goja.Runtime
	variables    map[string]string
	envScopes    []*envFrame
	lexicalDepth int
	copiedText   string
	platform     string
	logSinks     map[int]func(string)
	nextSink     int
	mu           sync.Mutex
}

// NewGojaEngine creates the default JavaScript backend.
func NewGojaEngine() *GojaEngine {
	e := &GojaEngine{
		runtime:   goja.New(),
		variables: make(map[string]string),
		envScopes: []*envFrame{newEnvFrame()},
		logSinks:  make(map[int]func(string)),
	}
	e.setupBuiltins()
	return e
}

// setupBuiltins registers console, json, http, output and maestro.
func (e *GojaEngine) setupBuiltins() {
	e.setupConsole()
	e.runtime.Set("json", e.jsonFunc())
	e.runtime.Set("http", e.httpModule())
	e.runtime.Set("output", e.runtime.NewObject())
	e.runtime.Set("maestro", e.maestroObject())
}

// setupConsole routes console.log/error/warn to the registered log sinks.
func (e *GojaEngine) setupConsole() {
	makeConsoleFunc := func(prefix string) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			parts := make([]string, len(call.Arguments))
			for i, arg := range call.Arguments {
				parts[i] = fmt.Sprintf("%v", arg.Export())
			}
			msg := prefix + joinSpace(parts)
			e.emitLog(msg)
			return goja.Undefined()
		}
	}

	console := e.runtime.NewObject()
	console.Set("log", makeConsoleFunc(""))
	console.Set("error", makeConsoleFunc("ERROR: "))
	console.Set("warn", makeConsoleFunc("WARN: "))
	e.runtime.Set("console", console)
}

func joinSpace(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += " "
		}
		out += p
	}
	return out
}

func (e *GojaEngine) emitLog(msg string) {
	for _, sink := range e.logSinks {
		sink(msg)
	}
}

// jsonFunc returns the json() helper that parses a JSON string into a JS
// object.
func (e *GojaEngine) jsonFunc() func(call goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 1 {
			panic(e.runtime.NewTypeError("json requires 1 argument"))
		}
		str := call.Arguments[0].String()
		result, err := e.runtime.RunString(fmt.Sprintf("JSON.parse(%q)", str))
		if err != nil {
			panic(e.runtime.NewTypeError(fmt.Sprintf("invalid JSON: %v", err)))
		}
		return result
	}
}

// maestroObject returns the maestro global: copiedText and platform.
func (e *GojaEngine) maestroObject() *goja.Object {
	obj := e.runtime.NewObject()
	obj.DefineAccessorProperty("copiedText", e.runtime.ToValue(func() string {
		return e.copiedText
	}), nil, goja.FLAG_FALSE, goja.FLAG_TRUE)
	obj.DefineAccessorProperty("platform", e.runtime.ToValue(func() string {
		return e.platform
	}), nil, goja.FLAG_FALSE, goja.FLAG_TRUE)
	return obj
}

// PutEnv binds a variable as a JS global. Inside an env scope the prior
// binding is recorded and restored on LeaveEnvScope.
func (e *GojaEngine) PutEnv(name, value string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.putEnvLocked(name, value)
}

func (e *GojaEngine) putEnvLocked(name, value string) {
	frame := e.envScopes[len(e.envScopes)-1]
	prior, existed := e.variables[name]
	frame.record(name, prior, existed)
	e.variables[name] = value
	e.runtime.Set(name, value)
}

// EnterScope opens a lexical scope.
func (e *GojaEngine) EnterScope() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lexicalDepth++
}

// LeaveScope closes the innermost lexical scope.
func (e *GojaEngine) LeaveScope() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lexicalDepth > 0 {
		e.lexicalDepth--
	}
}

// EnterEnvScope opens a variable-binding scope.
func (e *GojaEngine) EnterEnvScope() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.envScopes = append(e.envScopes, newEnvFrame())
}

// LeaveEnvScope closes the innermost binding scope, restoring shadowed
// variables.
func (e *GojaEngine) LeaveEnvScope() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.leaveEnvScopeLocked()
}

func (e *GojaEngine) leaveEnvScopeLocked() {
	if len(e.envScopes) <= 1 {
		return
	}
	frame := e.envScopes[len(e.envScopes)-1]
	e.envScopes = e.envScopes[:len(e.envScopes)-1]
	for name, prior := range frame.saved {
		if prior.existed {
			e.variables[name] = prior.value
			e.runtime.Set(name, prior.value)
		} else {
			delete(e.variables, name)
			e.runtime.Set(name, goja.Undefined())
		}
	}
}

// ScopeDepths returns the lexical depth and the number of open env scopes
// (excluding the root frame).
func (e *GojaEngine) ScopeDepths() (lexical, env int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lexicalDepth, len(e.envScopes) - 1
}

// EvaluateScript runs source with env bound for the duration of the call.
func (e *GojaEngine) EvaluateScript(source string, env map[string]string, sourceName string, runInSubScope bool) (any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(env) > 0 {
		e.envScopes = append(e.envScopes, newEnvFrame())
		for k, v := range env {
			e.putEnvLocked(k, v)
		}
		defer e.leaveEnvScopeLocked()
	}

	src := source
	if runInSubScope {
		src = "(function() {\n" + source + "\n})()"
	}

	value, err := e.runtime.RunScript(sourceName, src)
	if err != nil {
		return nil, fmt.Errorf("script %s: %w", sourceName, err)
	}
	if value == nil {
		return nil, nil
	}
	return value.Export(), nil
}

// Expand resolves ${...} expressions via the JS runtime.
func (e *GojaEngine) Expand(text string) (string, error) {
	return expandExpressions(text, func(expr string) (string, error) {
		e.mu.Lock()
		defer e.mu.Unlock()
		value, err := e.runtime.RunString(expr)
		if err != nil {
			return "", err
		}
		exported := value.Export()
		if exported == nil {
			return "", nil
		}
		return fmt.Sprintf("%v", exported), nil
	})
}

// OnLogMessage registers a console sink; the returned function removes it.
func (e *GojaEngine) OnLogMessage(fn func(string)) func() {
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
func (e *GojaEngine) SetCopiedText(text string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.copiedText = text
}

// SetPlatform sets the value of maestro.platform.
func (e *GojaEngine) SetPlatform(platform string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.platform = platform
}

// Close releases the engine. Safe to call multiple times.
func (e *GojaEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.logSinks = make(map[int]func(string))
	return nil
}
