// Package generation builds the outbound chat prompt and relays the
// backend's streamed response to the caller, one delta per write.
package generation

import (
	"strings"

	"github.com/54b3r/cinerag/internal/media"
)

// DefaultSystemPrompt frames the assistant as a curator restricted to the
// retrieved titles.
const DefaultSystemPrompt = `You are a professional film curator and critic. Your role is to analyze the user's preferences and recommend high-quality films or TV shows using the provided context. Do not seek film or TV show options outside of the list provided to you. If the list is empty, say that nothing in the catalogue matches and suggest loosening the filters.
Focus on:

- Artistic merit and storytelling
- Genres, themes, and tone
- Popularity and audience ratings

Provide a brief explanation of why the user might enjoy each movie or TV series. Answer with authority and care. Respond in markdown.`

// ComposeUserMessage builds the outbound user message. A recommendation
// request carries the question, a fixed instruction naming the media kind,
// and the assembled context; any other message is forwarded unchanged.
func ComposeUserMessage(question string, kind media.Kind, contextBlock string, recommend bool) string {
	if !recommend {
		return question
	}
	var b strings.Builder
	b.WriteString(question)
	b.WriteString("\n\nContext:\nBased on the following retrieved ")
	b.WriteString(kind.Plural())
	b.WriteString(", suggest the best recommendations.\n\n")
	b.WriteString(contextBlock)
	return b.String()
}
