package cube

import "sync"

// DefaultStoreCapacity bounds how many parsed lattices a Store retains.
// A grading session rarely cycles through more than a handful of LUTs;
// an evicted definition is simply re-parsed on the next Load.
const DefaultStoreCapacity = 10

// Store parses lattice files and caches the definitions by source path.
//
// Eviction is insertion-order (oldest file loaded first goes first): parsed
// definitions are immutable and cheap to re-read, so plain FIFO keeps the
// bookkeeping trivial. Failed parses are never cached.
//
// Store is safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	defs     map[string]*LutDefinition
	order    []string // insertion order, oldest first
	capacity int
}

// NewStore creates a Store with the given capacity.
// A capacity of 0 or less uses DefaultStoreCapacity.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultStoreCapacity
	}
	return &Store{
		defs:     make(map[string]*LutDefinition),
		capacity: capacity,
	}
}

// Load returns the parsed lattice for path, reading and validating the
// file on first use. Load is idempotent: repeated calls for an unchanged
// path return the cached definition.
func (s *Store) Load(path string) (*LutDefinition, error) {
	s.mu.Lock()
	if def, ok := s.defs[path]; ok {
		s.mu.Unlock()
		return def, nil
	}
	s.mu.Unlock()

	// Parse outside the lock; lattice files can be large.
	def, err := LoadFile(path)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Another goroutine may have parsed the same path meanwhile; keep the
	// first definition so callers share one copy.
	if existing, ok := s.defs[path]; ok {
		return existing, nil
	}
	if len(s.defs) >= s.capacity {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.defs, oldest)
	}
	s.defs[path] = def
	s.order = append(s.order, path)
	return def, nil
}

// Cached reports whether a definition for path is currently cached.
func (s *Store) Cached(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.defs[path]
	return ok
}

// Len returns the number of cached definitions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.defs)
}

// Evict drops the definition for path, forcing a re-parse on next Load.
// Used when the viewer detects the file changed on disk.
func (s *Store) Evict(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.defs[path]; !ok {
		return
	}
	delete(s.defs, path)
	for i, p := range s.order {
		if p == path {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}
