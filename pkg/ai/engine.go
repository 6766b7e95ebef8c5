// Package ai defines the remote prediction engine used by the AI-prefixed
// commands. The orchestrator only requires an engine when a flow actually
// contains such a command.
package ai

import "context"

// Defect is a single finding produced by the prediction service.
type Defect struct {
	Category  string `json:"category"`
	Reasoning string `json:"reasoning"`
}

// Engine is the prediction contract. Screenshots are passed uncompressed.
type Engine interface {
	// FindDefects returns visual defects found on the screen.
	FindDefects(ctx context.Context, screen []byte) ([]Defect, error)

	// PerformAssertion checks a natural-language assertion against the
	// screen. A nil result means the assertion holds; otherwise the
	// defect explains why it does not.
	PerformAssertion(ctx context.Context, screen []byte, assertion string) (*Defect, error)

	// ExtractText returns the text matching query on the screen.
	ExtractText(ctx context.Context, screen []byte, query string) (string, error)
}
