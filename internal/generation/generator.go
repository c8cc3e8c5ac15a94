package generation

import (
	"context"
	"encoding/json"
)

// Generator defines the interface for producing document content from a
// subject snapshot.
type Generator interface {
	// GenerateBrief produces the research brief for a subject. The brief is
	// the gate output of the document pipeline: every later section is
	// grounded on it.
	GenerateBrief(ctx context.Context, subject json.RawMessage) (string, error)

	// GenerateSection produces one named section document for a subject,
	// grounded on the previously generated brief.
	GenerateSection(ctx context.Context, subject json.RawMessage, section string, brief string) (string, error)

	// GenerateItem produces one batch item document from the batch's shared
	// parameters. itemNo distinguishes the items of one batch so the model
	// can vary the output.
	GenerateItem(ctx context.Context, params json.RawMessage, itemNo int) (string, error)
}
