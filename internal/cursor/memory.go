package cursor

import "sync"

// MemoryStore is a Store that keeps the token in memory only. Positions do
// not survive a restart; the reader falls back to "now".
type MemoryStore struct {
	mu  sync.Mutex
	tok Token
	ok  bool
}

// NewMemory returns an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{}
}

// Load implements Store.
func (s *MemoryStore) Load() (Token, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ok {
		return nil, false, nil
	}
	return append(Token(nil), s.tok...), true, nil
}

// Save implements Store.
func (s *MemoryStore) Save(tok Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tok = append(Token(nil), tok...)
	s.ok = true
	return nil
}

// Clear removes the stored token.
func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tok, s.ok = nil, false
	return nil
}
