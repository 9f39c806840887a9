package pipeline

import (
	"strings"

	"github.com/54b3r/cinerag/internal/media"
)

// contextSeparator sits between consecutive candidate descriptions.
const contextSeparator = "\n\n"

// FormatContext joins the content of each candidate, in rank order, with a
// blank line. An empty list yields the empty string.
func FormatContext(candidates []media.Candidate) string {
	if len(candidates) == 0 {
		return ""
	}
	parts := make([]string, len(candidates))
	for i, c := range candidates {
		parts[i] = c.Content
	}
	return strings.Join(parts, contextSeparator)
}
