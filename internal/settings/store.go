package settings

import "sync"

// Persister saves settings after every change (SQLite in the server).
type Persister interface {
	SaveSettings(Settings) error
}

// Store holds the live settings. Readers get a copy; writes replace the whole value.
type Store struct {
	mu        sync.RWMutex
	cur       Settings
	persister Persister
	onChange  []func(Settings)
}

func NewStore(initial Settings, p Persister) *Store {
	return &Store{cur: initial.Normalize(), persister: p}
}

func (s *Store) Settings() Settings {
	if s == nil {
		return Defaults()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// OnChange registers fn to run after every successful Set or Reset.
func (s *Store) OnChange(fn func(Settings)) {
	s.mu.Lock()
	s.onChange = append(s.onChange, fn)
	s.mu.Unlock()
}

// Set normalizes v, persists it, and makes it current. A persistence error leaves the current
// value unchanged.
func (s *Store) Set(v Settings) (Settings, error) {
	v = v.Normalize()
	s.mu.Lock()
	if s.persister != nil {
		if err := s.persister.SaveSettings(v); err != nil {
			s.mu.Unlock()
			return s.Settings(), err
		}
	}
	s.cur = v
	hooks := append([]func(Settings){}, s.onChange...)
	s.mu.Unlock()

	for _, fn := range hooks {
		fn(v)
	}
	return v, nil
}

func (s *Store) Reset() (Settings, error) { return s.Set(Defaults()) }
