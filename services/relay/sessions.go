// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package relay

import (
	"sync"
	"time"
)

// conversation is the stored history of one session.
type conversation struct {
	messages   []Message
	lastActive time.Time
}

// ConversationStore keeps chat history per session id in memory.
//
// # Description
//
// A conversation idle for longer than ttl is dropped. At most maxSessions
// conversations are kept; starting a new one at capacity evicts the least
// recently active. History is capped at maxHistory messages (oldest
// dropped); the system prompt is not stored and never dropped.
//
// # Thread Safety
//
// Safe for concurrent use.
type ConversationStore struct {
	mu            sync.Mutex
	conversations map[string]*conversation
	systemPrompt  string
	ttl           time.Duration
	maxSessions   int
	maxHistory    int
	now           func() time.Time
}

// NewConversationStore creates a store. now may be nil for time.Now.
func NewConversationStore(systemPrompt string, ttl time.Duration, maxSessions, maxHistory int, now func() time.Time) *ConversationStore {
	if now == nil {
		now = time.Now
	}
	if maxSessions <= 0 {
		maxSessions = 1
	}
	return &ConversationStore{
		conversations: make(map[string]*conversation),
		systemPrompt:  systemPrompt,
		ttl:           ttl,
		maxSessions:   maxSessions,
		maxHistory:    maxHistory,
		now:           now,
	}
}

// Snapshot returns the messages to send upstream for id, system prompt
// first. An unknown or expired id starts empty. The store is not modified;
// Commit records the turn once it succeeded.
func (s *ConversationStore) Snapshot(id string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []Message{{Role: RoleSystem, Content: s.systemPrompt}}
	if c, ok := s.conversations[id]; ok && !s.expired(c) {
		out = append(out, c.messages...)
	}
	return out
}

// Commit appends a completed exchange to id's history.
//
// # Outputs
//
//   - string: The id of a conversation evicted to make room, or "".
func (s *ConversationStore) Commit(id string, turn ...Message) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	evicted := ""

	c, ok := s.conversations[id]
	if ok && s.expired(c) {
		delete(s.conversations, id)
		ok = false
	}
	if !ok {
		if len(s.conversations) >= s.maxSessions {
			evicted = s.evictOldest()
		}
		c = &conversation{}
		s.conversations[id] = c
	}

	c.messages = append(c.messages, turn...)
	if s.maxHistory > 0 && len(c.messages) > s.maxHistory {
		c.messages = append([]Message(nil), c.messages[len(c.messages)-s.maxHistory:]...)
	}
	c.lastActive = now
	return evicted
}

// History returns a copy of id's stored messages, without the system prompt.
func (s *ConversationStore) History(id string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[id]
	if !ok || s.expired(c) {
		return nil
	}
	return append([]Message(nil), c.messages...)
}

// Delete drops id. Unknown ids are ignored.
func (s *ConversationStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, id)
}

// Expire removes idle conversations and returns how many were removed.
func (s *ConversationStore) Expire() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, c := range s.conversations {
		if s.expired(c) {
			delete(s.conversations, id)
			n++
		}
	}
	return n
}

// Len is the number of stored conversations, expired ones included until
// the next Expire.
func (s *ConversationStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conversations)
}

func (s *ConversationStore) expired(c *conversation) bool {
	return s.ttl > 0 && s.now().Sub(c.lastActive) > s.ttl
}

// evictOldest must be called with mu held.
func (s *ConversationStore) evictOldest() string {
	var oldestID string
	var oldest time.Time
	for id, c := range s.conversations {
		if oldestID == "" || c.lastActive.Before(oldest) {
			oldestID, oldest = id, c.lastActive
		}
	}
	if oldestID != "" {
		delete(s.conversations, oldestID)
	}
	return oldestID
}
