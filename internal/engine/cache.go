package engine

import "sync"

// Answer is the result of one answered question.
type Answer struct {
	// Text is the generated (or canned) answer shown to the end user.
	Text string

	// ResponseTimeMs is the wall-clock time from request receipt to
	// completion, including the failure path.
	ResponseTimeMs int64

	// SourceCount is the number of retrieved units used as context.
	SourceCount int
}

// cacheKey is the literal (question, session) pair. No normalization is
// applied: two textually different but semantically identical questions
// are distinct keys.
type cacheKey struct {
	question  string
	sessionID string
}

// responseCache memoizes answered questions for one engine instance.
// Entries never expire; Clear wipes them wholesale.
type responseCache struct {
	mu      sync.RWMutex
	entries map[cacheKey]Answer
}

// newResponseCache returns an empty cache.
func newResponseCache() *responseCache {
	return &responseCache{entries: make(map[cacheKey]Answer)}
}

// Get returns the cached answer for the key and whether it was present.
func (c *responseCache) Get(question, sessionID string) (Answer, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.entries[cacheKey{question: question, sessionID: sessionID}]
	return a, ok
}

// Put stores the answer under the key, replacing any previous entry.
func (c *responseCache) Put(question, sessionID string, a Answer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey{question: question, sessionID: sessionID}] = a
}

// Clear removes every entry.
func (c *responseCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[cacheKey]Answer)
}

// Len returns the number of cached answers.
func (c *responseCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
