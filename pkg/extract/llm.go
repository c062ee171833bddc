package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/keepsake-sh/keepsake/pkg/llm"
)

const extractionPromptTemplate = `You are a memory consolidator. Extract DURABLE FACTS from the conversation turn below to store in long-term memory.

INSTRUCTIONS:
- Extract concrete facts about the user's PREFERENCES, DECISIONS, CONSTRAINTS, or PERSONAL DETAILS.
- Ignore polite phrasing, greetings, and questions asked by the assistant.
- If the user expresses a clear intent (e.g. "I want to surf"), capture it.
- If the user sets a budget or a date, capture it.
- Return an empty list when the turn carries nothing durable.

OUTPUT:
Return ONLY a JSON object of the form {"facts": [{"content": "..."}]}. No markdown, no explanations.

Example:
User: "Je veux faire du surf" -> {"facts": [{"content": "User wants to do surfing"}]}

CONVERSATION TURN:
User: %s
Assistant: %s`

// LLM extracts facts by prompting a language model. The model's output is
// treated as untrusted text: anything that doesn't parse as the expected
// JSON shape is an error, and candidate strings are passed through
// verbatim, never interpreted.
type LLM struct {
	call llm.CallFunc
}

// NewLLM creates an LLM-backed extractor over the given call function.
func NewLLM(call llm.CallFunc) *LLM {
	return &LLM{call: call}
}

// Extract prompts the model with the turn and parses the candidate list.
func (e *LLM) Extract(ctx context.Context, turn ConversationTurn) ([]string, error) {
	prompt := fmt.Sprintf(extractionPromptTemplate, turn.UserMessage, turn.AssistantMessage)

	response, err := e.call(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("llm call: %w", err)
	}

	candidates, err := parseExtractionResponse(response)
	if err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	return candidates, nil
}

type extractionResult struct {
	Facts []struct {
		Content string `json:"content"`
	} `json:"facts"`
}

// parseExtractionResponse pulls the JSON object out of the model response
// (which may be wrapped in markdown code blocks) and returns the candidate
// contents, skipping empty ones.
func parseExtractionResponse(response string) ([]string, error) {
	jsonStr := response
	if idx := strings.Index(response, "{"); idx >= 0 {
		endIdx := strings.LastIndex(response, "}")
		if endIdx > idx {
			jsonStr = response[idx : endIdx+1]
		}
	}

	var result extractionResult
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return nil, fmt.Errorf("unmarshal extraction JSON: %w", err)
	}

	var candidates []string
	for _, fact := range result.Facts {
		content := strings.TrimSpace(fact.Content)
		if content == "" {
			continue
		}
		candidates = append(candidates, content)
	}

	return candidates, nil
}
