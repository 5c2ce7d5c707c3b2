package llm_test

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/parley/pkg/llm"
)

var _ = Describe("ChatRequest", func() {
	It("accepts a history of user and assistant messages", func() {
		req := llm.ChatRequest{Messages: []llm.Message{
			llm.NewTextMessage(llm.RoleUser, "hi"),
			llm.NewTextMessage(llm.RoleAssistant, "hello"),
			llm.NewTextMessage(llm.RoleUser, "how are you?"),
		}}
		Expect(req.Validate()).To(Succeed())
	})

	It("rejects an empty history", func() {
		req := llm.ChatRequest{}
		Expect(req.Validate()).To(MatchError("messages is required"))
	})

	DescribeTable("rejects roles a caller may not send",
		func(role string) {
			req := llm.ChatRequest{Messages: []llm.Message{
				llm.NewTextMessage(llm.RoleUser, "hi"),
				llm.NewTextMessage(role, "x"),
			}}
			Expect(req.Validate()).To(MatchError(ContainSubstring("messages[1]: unsupported role")))
		},
		Entry("system", llm.RoleSystem),
		Entry("tool", "tool"),
		Entry("empty", ""),
	)
})

var _ = Describe("CompletionRequest", func() {
	It("encodes with the upstream field names", func() {
		body, err := json.Marshal(llm.CompletionRequest{
			Model:    "openai/gpt-4.1",
			Messages: []llm.Message{llm.NewTextMessage(llm.RoleSystem, llm.DefaultSystemPrompt)},
			Stream:   true,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(body).To(MatchJSON(`{
			"model": "openai/gpt-4.1",
			"messages": [{"role": "system", "content": "` + llm.DefaultSystemPrompt + `"}],
			"stream": true
		}`))
	})
})

var _ = Describe("StreamChunk", func() {
	It("returns the first choice's content", func() {
		var chunk llm.StreamChunk
		Expect(json.Unmarshal([]byte(`{"choices":[{"delta":{"content":"Hel"}},{"delta":{"content":"other"}}]}`), &chunk)).To(Succeed())
		Expect(chunk.Content()).To(Equal("Hel"))
	})

	It("returns nothing without choices", func() {
		var chunk llm.StreamChunk
		Expect(json.Unmarshal([]byte(`{"choices":[]}`), &chunk)).To(Succeed())
		Expect(chunk.Content()).To(BeEmpty())
	})
})
