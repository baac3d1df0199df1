// Package state keeps bounded, in-memory memory per conversation.
//
// A Conversation is created on first reference and lives for the process
// lifetime; growth per conversation is capped by its FIFOs.
package state

import (
	"sync"
)

// Limits caps the per-conversation FIFOs.
type Limits struct {
	BotTexts   int // recent delivered texts kept for repetition checks
	InboundIDs int // recent inbound message ids
	Nicknames  int // nickname -> user id entries
}

// DefaultLimits returns the stock capacities (5 / 10 / 100).
func DefaultLimits() Limits {
	return Limits{BotTexts: 5, InboundIDs: 10, Nicknames: 100}
}

// Conversation is the mutable state of one conversation id.
type Conversation struct {
	ID string

	mu         sync.Mutex
	botTexts   *boundedQueue[string]
	inboundIDs *boundedQueue[string]
	nicknames  *nameIndex
}

func newConversation(id string, l Limits) *Conversation {
	return &Conversation{
		ID:         id,
		botTexts:   newBoundedQueue[string](l.BotTexts),
		inboundIDs: newBoundedQueue[string](l.InboundIDs),
		nicknames:  newNameIndex(l.Nicknames),
	}
}

// RecordBotText remembers a delivered reply text.
func (c *Conversation) RecordBotText(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.botTexts.push(text)
}

// SentRecently reports whether text equals one of the recent bot texts.
func (c *Conversation) SentRecently(text string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.botTexts.index(text) >= 0
}

// RecentBotTexts returns a copy of the recent bot texts, oldest first.
func (c *Conversation) RecentBotTexts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.botTexts.snapshot()
}

// RecordInbound queues an inbound message id.
func (c *Conversation) RecordInbound(messageID string) {
	if messageID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inboundIDs.push(messageID)
}

// InboundBacklog returns how many inbound messages arrived after messageID.
// ok is false when messageID is no longer tracked.
func (c *Conversation) InboundBacklog(messageID string) (pushed int, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.inboundIDs.index(messageID)
	if idx < 0 {
		return 0, false
	}
	return len(c.inboundIDs.items) - idx - 1, true
}

// ClearInbound empties the inbound id queue.
func (c *Conversation) ClearInbound() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inboundIDs.clear()
}

// RememberNickname maps a display name to a user id.
func (c *Conversation) RememberNickname(name, userID string) {
	if name == "" || userID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nicknames.put(name, userID)
}

// LookupNickname resolves a display name to a user id.
func (c *Conversation) LookupNickname(name string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nicknames.get(name)
}

// NicknameCount returns the number of known display names.
func (c *Conversation) NicknameCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nicknames.len()
}

// Store hands out Conversations by id.
type Store struct {
	limits Limits
	cache  sync.Map // id -> *Conversation
}

// NewStore creates an empty Store. Zero limits fall back to DefaultLimits.
func NewStore(l Limits) *Store {
	def := DefaultLimits()
	if l.BotTexts <= 0 {
		l.BotTexts = def.BotTexts
	}
	if l.InboundIDs <= 0 {
		l.InboundIDs = def.InboundIDs
	}
	if l.Nicknames <= 0 {
		l.Nicknames = def.Nicknames
	}
	return &Store{limits: l}
}

// Conversation returns the state for id, creating it if needed.
func (s *Store) Conversation(id string) *Conversation {
	if v, ok := s.cache.Load(id); ok {
		return v.(*Conversation)
	}
	actual, _ := s.cache.LoadOrStore(id, newConversation(id, s.limits))
	return actual.(*Conversation)
}

// Len returns the number of conversations seen so far.
func (s *Store) Len() int {
	n := 0
	s.cache.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
