package eventbuilder

import (
	"errors"
	"sync"
)

var errUnreadable = errors.New("unreadable file")

// memorySource serves hits from memory. Files listed in broken fail to
// read.
type memorySource struct {
	mu     sync.Mutex
	files  map[string][]RawHit
	broken map[string]bool
	reads  int
}

func newMemorySource() *memorySource {
	return &memorySource{
		files:  make(map[string][]RawHit),
		broken: make(map[string]bool),
	}
}

func (s *memorySource) CountHits(filename string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.broken[filename] {
		return 0, errUnreadable
	}
	return len(s.files[filename]), nil
}

func (s *memorySource) ReadHits(filename string) ([]RawHit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if s.broken[filename] {
		return nil, &ErrOpenFile{Filename: filename, Err: errUnreadable}
	}
	hits := make([]RawHit, len(s.files[filename]))
	copy(hits, s.files[filename])
	return hits, nil
}
