package orchestra

import (
	"context"

	"github.com/devicelab-dev/orchestra/pkg/core"
	"github.com/devicelab-dev/orchestra/pkg/flow"
)

// runSubFlow executes nested commands with an isolated variable scope and
// the sub-flow's own lifecycle hooks. It returns whether any command
// mutated device state; failures propagate as errors so an enclosing
// retry can catch them.
func (o *Orchestra) runSubFlow(ctx context.Context, commands []flow.Command, cfg, subCfg *flow.Config, env map[string]string) (mutating bool, err error) {
	o.engine.EnterEnvScope()
	o.engine.EnterScope()
	defer func() {
		o.engine.LeaveScope()
		o.engine.LeaveEnvScope()
	}()

	for k, v := range env {
		o.engine.PutEnv(k, v)
	}

	// Hoisting applies inside sub-flows too.
	filtered := o.hoistDefineVariables(commands)

	effectiveCfg := cfg
	if subCfg != nil && subCfg.AppID != "" {
		effectiveCfg = subCfg
	}

	onStartOk := true
	if subCfg != nil && len(subCfg.OnFlowStart) > 0 {
		var m bool
		m, err = o.runSubCommands(ctx, subCfg.OnFlowStart, effectiveCfg)
		mutating = mutating || m
		onStartOk = err == nil
	}

	if err == nil && onStartOk {
		var m bool
		m, err = o.runSubCommands(ctx, filtered, effectiveCfg)
		mutating = mutating || m
	}

	if subCfg != nil && len(subCfg.OnFlowComplete) > 0 {
		m, hookErr := o.runSubCommands(ctx, subCfg.OnFlowComplete, effectiveCfg)
		mutating = mutating || m
		if err == nil {
			err = hookErr
		}
	}

	return mutating, err
}

// runSubCommands is the sub-flow command loop. It matches the top-level
// loop except that unresolved failures return as errors instead of a
// boolean, so enclosing retries observe them.
func (o *Orchestra) runSubCommands(ctx context.Context, commands []flow.Command, cfg *flow.Config) (mutating bool, err error) {
	for i, raw := range commands {
		if ctx.Err() != nil {
			o.fireSkipped(i, raw)
			continue
		}
		if err := o.controller.WaitIfPaused(ctx); err != nil {
			o.fireSkipped(i, raw)
			continue
		}

		cmdMutating, status, cmdErr := o.executeSingle(ctx, i, raw, cfg)
		mutating = mutating || cmdMutating

		if status == core.StatusFailed {
			if o.listeners.OnCommandFailed != nil {
				if o.listeners.OnCommandFailed(i, raw, cmdErr) == ResolutionContinue {
					continue
				}
			}
			return mutating, cmdErr
		}
	}
	return mutating, nil
}
