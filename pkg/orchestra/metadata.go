package orchestra

import (
	"github.com/devicelab-dev/orchestra/pkg/flow"
)

// InsightLevel classifies an insight message.
type InsightLevel int

// Insight levels.
const (
	InsightNone InsightLevel = iota
	InsightInfo
	InsightWarning
)

// Insight is a structured advisory surfaced alongside command metadata.
type Insight struct {
	Level   InsightLevel
	Message string
}

// CommandMetadata accumulates per-command execution detail. Entries are
// keyed by the identity of the raw command, so repeated executions of the
// same command share one entry; the substituted form is stored inside.
type CommandMetadata struct {
	EvaluatedCommand flow.Command
	LogMessages      []string
	Insight          Insight
	NumberOfRuns     int
	AIReasoning      string
	LabeledCommand   string
}

// snapshot returns a copy safe to hand to observers.
func (m *CommandMetadata) snapshot() CommandMetadata {
	cp := *m
	cp.LogMessages = append([]string(nil), m.LogMessages...)
	return cp
}

// metadataFor returns the metadata entry for a raw command, creating it
// lazily on first observation.
func (o *Orchestra) metadataFor(raw flow.Command) *CommandMetadata {
	if md, ok := o.metadata[raw]; ok {
		return md
	}
	md := &CommandMetadata{LabeledCommand: raw.Label()}
	o.metadata[raw] = md
	return md
}

// Metadata returns the current metadata snapshot for a raw command.
func (o *Orchestra) Metadata(raw flow.Command) (CommandMetadata, bool) {
	md, ok := o.metadata[raw]
	if !ok {
		return CommandMetadata{}, false
	}
	return md.snapshot(), true
}

// updateMetadata mutates a command's metadata entry and notifies the
// observer with a snapshot.
func (o *Orchestra) updateMetadata(raw flow.Command, update func(*CommandMetadata)) {
	md := o.metadataFor(raw)
	update(md)
	if l := o.listeners.OnCommandMetadataUpdate; l != nil {
		l(raw, md.snapshot())
	}
}

// setInsight records an insight on a command's metadata.
func (o *Orchestra) setInsight(raw flow.Command, level InsightLevel, message string) {
	o.updateMetadata(raw, func(md *CommandMetadata) {
		md.Insight = Insight{Level: level, Message: message}
	})
}
