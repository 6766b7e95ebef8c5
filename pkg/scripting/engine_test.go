package scripting

import (
	"strings"
	"testing"

	"github.com/devicelab-dev/orchestra/pkg/flow"
)

func TestNew_BackendSelection(t *testing.T) {
	if _, ok := New(nil).(*GojaEngine); !ok {
		t.Errorf("New(nil) = %T, want *GojaEngine", New(nil))
	}
	if _, ok := New(map[string]string{"jsEngine": "graaljs"}).(*ExprEngine); !ok {
		t.Errorf("jsEngine=graaljs did not select the expr backend")
	}
	if _, ok := New(map[string]string{"jsEngine": "expr"}).(*ExprEngine); !ok {
		t.Errorf("jsEngine=expr did not select the expr backend")
	}
}

func TestGoja_PutEnvAndExpand(t *testing.T) {
	e := NewGojaEngine()
	defer e.Close()

	e.PutEnv("NAME", "world")
	out, err := e.Expand("hello ${NAME}")
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if out != "hello world" {
		t.Errorf("Expand() = %q, want %q", out, "hello world")
	}
}

func TestGoja_ExpandEvaluatesExpressions(t *testing.T) {
	e := NewGojaEngine()
	defer e.Close()

	out, err := e.Expand("total: ${2 + 3}")
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if out != "total: 5" {
		t.Errorf("Expand() = %q, want %q", out, "total: 5")
	}
}

func TestGoja_ExpandLeavesUnmatchedBraces(t *testing.T) {
	e := NewGojaEngine()
	defer e.Close()

	out, err := e.Expand("broken ${oops")
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if out != "broken ${oops" {
		t.Errorf("Expand() = %q, want input unchanged", out)
	}
}

func TestGoja_EnvScopeIsolation(t *testing.T) {
	e := NewGojaEngine()
	defer e.Close()

	e.PutEnv("A", "outer")

	e.EnterEnvScope()
	e.PutEnv("A", "inner")
	e.PutEnv("B", "only-inner")

	out, _ := e.Expand("${A}")
	if out != "inner" {
		t.Errorf("inside scope A = %q, want inner", out)
	}
	e.LeaveEnvScope()

	out, _ = e.Expand("${A}")
	if out != "outer" {
		t.Errorf("after scope A = %q, want outer", out)
	}
	out, _ = e.Expand("${typeof B}")
	if out != "undefined" {
		t.Errorf("after scope typeof B = %q, want undefined", out)
	}
}

func TestGoja_ScopeDepthsBalance(t *testing.T) {
	e := NewGojaEngine()
	defer e.Close()

	e.EnterEnvScope()
	e.EnterScope()
	if lex, env := e.ScopeDepths(); lex != 1 || env != 1 {
		t.Errorf("ScopeDepths() = (%d, %d), want (1, 1)", lex, env)
	}
	e.LeaveScope()
	e.LeaveEnvScope()
	if lex, env := e.ScopeDepths(); lex != 0 || env != 0 {
		t.Errorf("ScopeDepths() = (%d, %d), want (0, 0)", lex, env)
	}
}

func TestGoja_EvaluateScriptWithEnv(t *testing.T) {
	e := NewGojaEngine()
	defer e.Close()

	result, err := e.EvaluateScript("return GREETING + '!'",
		map[string]string{"GREETING": "hi"}, "test.js", true)
	if err != nil {
		t.Fatalf("EvaluateScript() error = %v", err)
	}
	if result != "hi!" {
		t.Errorf("EvaluateScript() = %v, want %q", result, "hi!")
	}

	// The call-scoped env binding is gone afterwards.
	out, _ := e.Expand("${typeof GREETING}")
	if out != "undefined" {
		t.Errorf("GREETING leaked out of the script env: %q", out)
	}
}

func TestGoja_SubScopeIsolatesDeclarations(t *testing.T) {
	e := NewGojaEngine()
	defer e.Close()

	if _, err := e.EvaluateScript("var local = 42", nil, "a.js", true); err != nil {
		t.Fatalf("EvaluateScript() error = %v", err)
	}
	out, _ := e.Expand("${typeof local}")
	if out != "undefined" {
		t.Errorf("sub-scope declaration leaked: typeof local = %q", out)
	}
}

func TestGoja_LogSink(t *testing.T) {
	e := NewGojaEngine()
	defer e.Close()

	var messages []string
	remove := e.OnLogMessage(func(msg string) {
		messages = append(messages, msg)
	})

	if _, err := e.EvaluateScript("console.log('one', 1)", nil, "log.js", true); err != nil {
		t.Fatalf("EvaluateScript() error = %v", err)
	}
	remove()
	if _, err := e.EvaluateScript("console.log('two')", nil, "log.js", true); err != nil {
		t.Fatalf("EvaluateScript() error = %v", err)
	}

	if len(messages) != 1 || messages[0] != "one 1" {
		t.Errorf("messages = %v, want [one 1]", messages)
	}
}

func TestGoja_MaestroCopiedText(t *testing.T) {
	e := NewGojaEngine()
	defer e.Close()

	e.SetCopiedText("snippet")
	out, err := e.Expand("${maestro.copiedText}")
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if out != "snippet" {
		t.Errorf("maestro.copiedText = %q, want snippet", out)
	}
}

func TestExpr_EvaluateAndScopes(t *testing.T) {
	e := NewExprEngine()
	defer e.Close()

	e.PutEnv("COUNT", "3")
	out, err := e.Expand("${COUNT}")
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if out != "3" {
		t.Errorf("Expand() = %q, want 3", out)
	}

	e.EnterEnvScope()
	e.PutEnv("COUNT", "9")
	out, _ = e.Expand("${COUNT}")
	if out != "9" {
		t.Errorf("inside scope COUNT = %q, want 9", out)
	}
	e.LeaveEnvScope()

	out, _ = e.Expand("${COUNT}")
	if out != "3" {
		t.Errorf("after scope COUNT = %q, want 3", out)
	}
}

func TestExpr_EvaluateScriptExpression(t *testing.T) {
	e := NewExprEngine()
	defer e.Close()

	result, err := e.EvaluateScript(`N == "5"`, map[string]string{"N": "5"}, "cond", false)
	if err != nil {
		t.Fatalf("EvaluateScript() error = %v", err)
	}
	if result != true {
		t.Errorf("EvaluateScript() = %v, want true", result)
	}
}

func TestEvaluateCommand_CopiesAndExpands(t *testing.T) {
	e := NewGojaEngine()
	defer e.Close()
	e.PutEnv("TARGET", "Login")

	raw := &flow.TapOnCommand{
		BaseCommand: flow.BaseCommand{CommandType: flow.CommandTapOn},
		Selector:    flow.Selector{Text: "${TARGET}"},
	}

	evaluated, err := EvaluateCommand(e, raw)
	if err != nil {
		t.Fatalf("EvaluateCommand() error = %v", err)
	}

	tap, ok := evaluated.(*flow.TapOnCommand)
	if !ok {
		t.Fatalf("evaluated = %T, want *flow.TapOnCommand", evaluated)
	}
	if tap == raw {
		t.Fatalf("evaluated command is the raw command, want a copy")
	}
	if tap.Selector.Text != "Login" {
		t.Errorf("evaluated selector text = %q, want Login", tap.Selector.Text)
	}
	if raw.Selector.Text != "${TARGET}" {
		t.Errorf("raw command was modified: %q", raw.Selector.Text)
	}
}

func TestEvaluateCommand_ExpandsEnvelopeCondition(t *testing.T) {
	e := NewGojaEngine()
	defer e.Close()
	e.PutEnv("READY", "true")

	raw := &flow.PressKeyCommand{
		BaseCommand: flow.BaseCommand{
			CommandType: flow.CommandPressKey,
			When:        &flow.Condition{Script: "${READY}"},
		},
		Key: "Enter",
	}

	evaluated, err := EvaluateCommand(e, raw)
	if err != nil {
		t.Fatalf("EvaluateCommand() error = %v", err)
	}
	if got := evaluated.Precondition().Script; got != "true" {
		t.Errorf("evaluated condition script = %q, want true", got)
	}
	if raw.When.Script != "${READY}" {
		t.Errorf("raw condition was modified: %q", raw.When.Script)
	}
}

func TestExpandCondition(t *testing.T) {
	e := NewGojaEngine()
	defer e.Close()
	e.PutEnv("N", "2")

	cond := &flow.Condition{Script: "${N < 5}"}
	out, err := ExpandCondition(e, cond)
	if err != nil {
		t.Fatalf("ExpandCondition() error = %v", err)
	}
	if out.Script != "true" {
		t.Errorf("expanded script = %q, want true", out.Script)
	}
	if cond.Script != "${N < 5}" {
		t.Errorf("input condition was modified: %q", cond.Script)
	}
}

func TestExpandExpressions_NestedBraces(t *testing.T) {
	e := NewGojaEngine()
	defer e.Close()

	out, err := e.Expand("${(function() { return 'ok' })()}")
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if !strings.Contains(out, "ok") {
		t.Errorf("Expand() = %q, want it to contain ok", out)
	}
}
