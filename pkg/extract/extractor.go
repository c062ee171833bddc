// Package extract turns conversation turns into candidate fact strings.
//
// The Extractor is an external collaborator from the engine's point of
// view: it may return zero candidates, its output is untrusted free text,
// and it is never executed as code or interpreted structurally. The LLM
// implementation calls a model; Static provides a deterministic stand-in
// for tests and demos.
package extract

import "context"

// ConversationTurn is one user/assistant exchange to extract facts from.
type ConversationTurn struct {
	UserMessage      string `json:"user_message"`
	AssistantMessage string `json:"assistant_message"`
}

// Extractor produces candidate fact strings from a conversation turn.
type Extractor interface {
	// Extract returns zero or more candidate facts. An empty result is
	// not an error; it means the turn carried nothing durable.
	Extract(ctx context.Context, turn ConversationTurn) ([]string, error)
}

// Static is a fixed-candidate extractor for deterministic tests.
type Static struct {
	// Candidates is returned verbatim on every Extract call.
	Candidates []string
}

// Extract returns the configured candidate list.
func (s *Static) Extract(_ context.Context, _ ConversationTurn) ([]string, error) {
	out := make([]string, len(s.Candidates))
	copy(out, s.Candidates)
	return out, nil
}
