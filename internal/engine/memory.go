package engine

import (
	"strings"
	"sync"
)

const (
	// defaultMaxTurns bounds how many turns a session retains.
	defaultMaxTurns = 5

	// contextTurns is how many of the most recent turns are rendered into
	// the generation prompt.
	contextTurns = 3
)

// turn is one user/assistant exchange.
type turn struct {
	user string
	bot  string
}

// ConversationMemory holds per-session rolling history used to condition
// answer generation. Sessions are isolated by session id; the oldest turns
// are evicted FIFO once a session exceeds its bound.
type ConversationMemory struct {
	mu sync.Mutex

	// maxTurns is the retention bound per session.
	maxTurns int

	// sessions maps session id to its ordered turn list.
	sessions map[string][]turn
}

// NewConversationMemory returns a memory retaining at most maxTurns turns
// per session (default 5 when maxTurns <= 0).
func NewConversationMemory(maxTurns int) *ConversationMemory {
	if maxTurns <= 0 {
		maxTurns = defaultMaxTurns
	}
	return &ConversationMemory{
		maxTurns: maxTurns,
		sessions: make(map[string][]turn),
	}
}

// AddTurn appends a user/assistant exchange to the session, evicting the
// oldest turn once the session exceeds the retention bound.
func (m *ConversationMemory) AddTurn(sessionID, userMsg, botMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	turns := append(m.sessions[sessionID], turn{user: userMsg, bot: botMsg})
	if len(turns) > m.maxTurns {
		turns = turns[len(turns)-m.maxTurns:]
	}
	m.sessions[sessionID] = turns
}

// Context renders at most the last three turns of the session as
// alternating "User:" / "Assistant:" lines, or the empty string when the
// session has no history.
func (m *ConversationMemory) Context(sessionID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	turns := m.sessions[sessionID]
	if len(turns) == 0 {
		return ""
	}
	if len(turns) > contextTurns {
		turns = turns[len(turns)-contextTurns:]
	}

	lines := make([]string, 0, len(turns)*2)
	for _, t := range turns {
		lines = append(lines, "User: "+t.user, "Assistant: "+t.bot)
	}
	return strings.Join(lines, "\n")
}

// ClearSession removes all history for the session.
func (m *ConversationMemory) ClearSession(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
}

// ActiveSessions returns the number of sessions currently holding history.
func (m *ConversationMemory) ActiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
