package generation

import "github.com/cloudwego/eino/schema"

const (
	// charsPerToken is the character-to-token ratio used for estimation.
	// Backends tokenise differently; 4 chars/token holds for English prose.
	charsPerToken = 4

	// DefaultMaxContextTokens is the input budget for system prompt, history,
	// and the context-augmented user message. Twenty rendered titles fit
	// comfortably within it.
	DefaultMaxContextTokens = 12000
)

// estimateTokens returns a rough token count for s.
func estimateTokens(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// estimateMessages sums role, content, and a small per-message overhead.
func estimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		total += 4
		total += estimateTokens(string(m.Role))
		total += estimateTokens(m.Content)
	}
	return total
}

// trimHistory drops the oldest history until fixed plus history fits in
// maxTokens. It drops whole exchanges: once a message goes, any assistant
// replies that follow it go too, so trimmed history always opens with a
// user turn. Fixed messages are never dropped; if they alone exceed the
// budget the history comes back empty.
func trimHistory(fixed, history []*schema.Message, maxTokens int) []*schema.Message {
	fixedTokens := estimateMessages(fixed)
	for len(history) > 0 && fixedTokens+estimateMessages(history) > maxTokens {
		history = history[1:]
		for len(history) > 0 && history[0].Role != schema.User {
			history = history[1:]
		}
	}
	return history
}
