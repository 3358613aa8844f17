package session

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Session is a snapshot of the credential state.
//
// Invariant: IsLoggedIn == (AccessCredential != nil). The Store maintains it
// by construction; Session values handed out are copies and never shared.
type Session struct {
	AccessCredential  *string `json:"access_credential"`
	RefreshCredential *string `json:"refresh_credential"`
	IsLoggedIn        bool    `json:"is_logged_in"`
}

// Persister stores the serialized session snapshot durably.
//
// Save overwrites the previous snapshot. Load returns ok=false when no
// snapshot exists, which is a normal first-run condition and not an error.
type Persister interface {
	Save(data []byte) error
	Load() (data []byte, ok bool, err error)
	Delete() error
}

// Store is the process-wide holder of the credential pair.
//
// All mutations persist before returning. A persistence failure does not roll
// back the in-memory mutation: the in-memory state is authoritative for the
// current process, durability is for the next one.
type Store struct {
	log     *slog.Logger
	persist Persister

	mu   sync.Mutex
	cur  Session
	load sync.Once
}

// NewStore constructs a Store backed by the given persister.
// A nil persister keeps the session in memory only.
func NewStore(log *slog.Logger, persist Persister) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{log: log, persist: persist}
}

// Load rehydrates the session from durable storage. It is idempotent; only
// the first call reads the persister. Call it at startup before the HTTP
// client is wired.
func (s *Store) Load() error {
	var loadErr error
	s.load.Do(func() {
		if s.persist == nil {
			return
		}
		data, ok, err := s.persist.Load()
		if err != nil {
			loadErr = err
			return
		}
		if !ok {
			return
		}
		var sess Session
		if err := json.Unmarshal(data, &sess); err != nil {
			// A corrupt snapshot means a logged-out start, not a fatal error.
			s.log.Warn("session.load.corrupt", "err", err)
			return
		}
		// Re-derive the flag rather than trusting the stored one.
		sess.IsLoggedIn = sess.AccessCredential != nil

		s.mu.Lock()
		s.cur = sess
		s.mu.Unlock()
	})
	return loadErr
}

// Current returns a copy of the session state.
func (s *Store) Current() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

// AccessCredential returns the current access credential, or ok=false when
// the session is logged out.
func (s *Store) AccessCredential() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur.AccessCredential == nil {
		return "", false
	}
	return *s.cur.AccessCredential, true
}

// RefreshCredential returns the current refresh credential, or ok=false when
// none is stored.
func (s *Store) RefreshCredential() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur.RefreshCredential == nil {
		return "", false
	}
	return *s.cur.RefreshCredential, true
}

// Login sets both credentials and marks the session logged in.
func (s *Store) Login(access, refresh string) error {
	s.mu.Lock()
	s.cur = Session{
		AccessCredential:  &access,
		RefreshCredential: &refresh,
		IsLoggedIn:        true,
	}
	snap := s.cur
	s.mu.Unlock()

	return s.save(snap)
}

// Logout clears both credentials and marks the session logged out.
func (s *Store) Logout() error {
	s.mu.Lock()
	s.cur = Session{}
	s.mu.Unlock()

	if s.persist == nil {
		return nil
	}
	if err := s.persist.Delete(); err != nil {
		s.log.Warn("session.persist.delete.fail", "err", err)
		return err
	}
	return nil
}

// SetAccessCredential replaces only the access credential, leaving the
// refresh credential untouched. Passing nil drops the access credential and
// flips the login flag, per the session invariant.
func (s *Store) SetAccessCredential(access *string) error {
	s.mu.Lock()
	s.cur.AccessCredential = access
	s.cur.IsLoggedIn = access != nil
	snap := s.cur
	s.mu.Unlock()

	return s.save(snap)
}

func (s *Store) save(snap Session) error {
	if s.persist == nil {
		return nil
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	if err := s.persist.Save(data); err != nil {
		s.log.Warn("session.persist.save.fail", "err", err)
		return err
	}
	return nil
}
