package media

// Role identifies the author of a conversation turn.
type Role string

const (
	// RoleUser is a message written by the person asking for recommendations.
	RoleUser Role = "user"
	// RoleAssistant is a message produced by the generation backend.
	RoleAssistant Role = "assistant"
)

// ChatTurn is a single message of a conversation.
type ChatTurn struct {
	Role    Role
	Content string
}

// DefaultHistoryTurns is the number of user+assistant exchanges forwarded to
// the generator when a caller does not configure one.
const DefaultHistoryTurns = 5

// RecentTurns returns a copy of the last turns*2 messages of history. The
// input slice is never modified. A non-positive turns value yields no history.
func RecentTurns(history []ChatTurn, turns int) []ChatTurn {
	if turns <= 0 || len(history) == 0 {
		return nil
	}
	start := len(history) - turns*2
	if start < 0 {
		start = 0
	}
	out := make([]ChatTurn, len(history)-start)
	copy(out, history[start:])
	return out
}
