package bot

import "sync"

// ReferenceImage records a user-uploaded photo used to condition generation.
type ReferenceImage struct {
	FileID  string
	FileURL string
}

// Session is the per-user conversation record. FinalPrompt is set once the
// user has passed the prompt-choice step; it must be present before any
// generation starts.
type Session struct {
	UserID int64
	ChatID int64
	State  State

	OriginalPrompt  string
	EnhancedPrompt  string
	FinalPrompt     string
	Reference       *ReferenceImage
	GeneratedImages []string
}

// Store holds sessions keyed by user id. The dispatcher guarantees no two
// transitions for the same user run concurrently, so the mutex only guards
// the map against cross-user access.
type Store struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
}

func NewStore() *Store {
	return &Store{
		sessions: make(map[int64]*Session),
	}
}

// Get returns the session for userID, creating an empty one at
// StateInitialPrompt on first interaction.
func (s *Store) Get(userID int64) *Session {
	s.mu.RLock()
	sess, ok := s.sessions[userID]
	s.mu.RUnlock()
	if ok {
		return sess
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[userID]; ok {
		return sess
	}
	sess = &Session{
		UserID: userID,
		State:  StateInitialPrompt,
	}
	s.sessions[userID] = sess
	return sess
}

func (s *Store) Set(userID int64, sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[userID] = sess
}

// Reset replaces the session with a fresh one at StateInitialPrompt. With
// preserveOriginal the original prompt survives; the enhanced and final
// prompts, reference image, and generated images are always discarded.
func (s *Store) Reset(userID int64, preserveOriginal bool) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	fresh := &Session{
		UserID: userID,
		State:  StateInitialPrompt,
	}
	if preserveOriginal {
		if old, ok := s.sessions[userID]; ok {
			fresh.OriginalPrompt = old.OriginalPrompt
			fresh.ChatID = old.ChatID
		}
	}
	s.sessions[userID] = fresh
	return fresh
}

// Delete discards the session entirely; used by /cancel.
func (s *Store) Delete(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
}
