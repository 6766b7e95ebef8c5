package orchestra

import (
	"github.com/devicelab-dev/orchestra/pkg/ai"
	"github.com/devicelab-dev/orchestra/pkg/flow"
)

// ErrorResolution is the verdict of OnCommandFailed.
type ErrorResolution int

// ErrorResolution values.
const (
	// ResolutionFail aborts the flow. This is the default when no
	// OnCommandFailed listener is set; the error then propagates out of
	// RunFlow after the completion hooks have run.
	ResolutionFail ErrorResolution = iota
	// ResolutionContinue moves on to the next command.
	ResolutionContinue
)

// Listeners are the observer callbacks a reporter plugs into the
// orchestrator. All are optional; nil fields are skipped. Callbacks fire
// synchronously on the flow's task, in order
// start -> (metadata updates...) -> complete|warned|skipped|failed, and
// must not block.
type Listeners struct {
	OnFlowStart func(commands []flow.Command)

	OnCommandStart    func(index int, command flow.Command)
	OnCommandComplete func(index int, command flow.Command)
	OnCommandWarned   func(index int, command flow.Command)
	OnCommandSkipped  func(index int, command flow.Command)

	// OnCommandFailed decides whether a non-demoted failure aborts the
	// flow or execution continues with the next command.
	OnCommandFailed func(index int, command flow.Command, err error) ErrorResolution

	// OnCommandReset fires for each child of a repeat before every
	// iteration after the first.
	OnCommandReset func(command flow.Command)

	// OnCommandMetadataUpdate receives a snapshot after every metadata
	// change, keyed by the raw command.
	OnCommandMetadataUpdate func(command flow.Command, metadata CommandMetadata)

	// OnCommandGeneratedOutput surfaces AI findings together with the
	// screenshot they were produced from.
	OnCommandGeneratedOutput func(command flow.Command, defects []ai.Defect, screenshot []byte)
}
