package extract

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LLM Extractor", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("parses candidates from a clean JSON response", func() {
		extractor := NewLLM(func(_ context.Context, _ string) (string, error) {
			return `{"facts": [{"content": "User wants to do surfing"}, {"content": "Budget is 2000 euros"}]}`, nil
		})

		candidates, err := extractor.Extract(ctx, ConversationTurn{UserMessage: "Je veux faire du surf"})
		Expect(err).NotTo(HaveOccurred())
		Expect(candidates).To(Equal([]string{"User wants to do surfing", "Budget is 2000 euros"}))
	})

	It("strips markdown fences around the JSON object", func() {
		extractor := NewLLM(func(_ context.Context, _ string) (string, error) {
			return "```json\n{\"facts\": [{\"content\": \"Likes espresso\"}]}\n```", nil
		})

		candidates, err := extractor.Extract(ctx, ConversationTurn{UserMessage: "I love espresso"})
		Expect(err).NotTo(HaveOccurred())
		Expect(candidates).To(Equal([]string{"Likes espresso"}))
	})

	It("returns no candidates for an empty fact list", func() {
		extractor := NewLLM(func(_ context.Context, _ string) (string, error) {
			return `{"facts": []}`, nil
		})

		candidates, err := extractor.Extract(ctx, ConversationTurn{UserMessage: "Hello!"})
		Expect(err).NotTo(HaveOccurred())
		Expect(candidates).To(BeEmpty())
	})

	It("skips blank candidate contents", func() {
		extractor := NewLLM(func(_ context.Context, _ string) (string, error) {
			return `{"facts": [{"content": "  "}, {"content": "Lives in Lyon"}]}`, nil
		})

		candidates, err := extractor.Extract(ctx, ConversationTurn{UserMessage: "I live in Lyon"})
		Expect(err).NotTo(HaveOccurred())
		Expect(candidates).To(Equal([]string{"Lives in Lyon"}))
	})

	It("errors on output that is not the expected shape", func() {
		extractor := NewLLM(func(_ context.Context, _ string) (string, error) {
			return "sorry, I can't help with that", nil
		})

		_, err := extractor.Extract(ctx, ConversationTurn{UserMessage: "hi"})
		Expect(err).To(HaveOccurred())
	})

	It("propagates transport failures", func() {
		extractor := NewLLM(func(_ context.Context, _ string) (string, error) {
			return "", errors.New("connection refused")
		})

		_, err := extractor.Extract(ctx, ConversationTurn{UserMessage: "hi"})
		Expect(err).To(HaveOccurred())
	})

	It("includes the turn in the prompt", func() {
		var prompt string
		extractor := NewLLM(func(_ context.Context, got string) (string, error) {
			prompt = got
			return `{"facts": []}`, nil
		})

		_, err := extractor.Extract(ctx, ConversationTurn{
			UserMessage:      "I want a window seat",
			AssistantMessage: "Noted!",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(prompt).To(ContainSubstring("I want a window seat"))
		Expect(prompt).To(ContainSubstring("Noted!"))
	})
})

var _ = Describe("Static Extractor", func() {
	It("returns the configured candidates verbatim", func() {
		extractor := &Static{Candidates: []string{"a", "b"}}

		candidates, err := extractor.Extract(context.Background(), ConversationTurn{})
		Expect(err).NotTo(HaveOccurred())
		Expect(candidates).To(Equal([]string{"a", "b"}))
	})
})
