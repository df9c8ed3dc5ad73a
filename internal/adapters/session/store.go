package session

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	defaultSize = 1024
	defaultTTL  = time.Hour
)

// Session is a verified bearer token.
type Session struct {
	Email     string
	ExpiresAt time.Time
}

// Store caches verified ID tokens so that a token is only checked against
// the identity provider once. Tokens are keyed by their SHA-256 digest.
type Store struct {
	cache *expirable.LRU[string, Session]
	now   func() time.Time
}

// NewStore creates a store holding up to size sessions for at most ttl.
func NewStore(size int, ttl time.Duration) *Store {
	if size <= 0 {
		size = defaultSize
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Store{
		cache: expirable.NewLRU[string, Session](size, nil, ttl),
		now:   time.Now,
	}
}

// Put remembers a verified token. Tokens that already expired are ignored.
func (s *Store) Put(token string, sess Session) {
	if !sess.ExpiresAt.IsZero() && !s.now().Before(sess.ExpiresAt) {
		return
	}
	s.cache.Add(key(token), sess)
}

// Get returns the session for a token, or false if it is unknown or expired.
func (s *Store) Get(token string) (Session, bool) {
	k := key(token)
	sess, ok := s.cache.Get(k)
	if !ok {
		return Session{}, false
	}
	if !sess.ExpiresAt.IsZero() && !s.now().Before(sess.ExpiresAt) {
		s.cache.Remove(k)
		return Session{}, false
	}
	return sess, true
}

// Delete forgets a token.
func (s *Store) Delete(token string) {
	s.cache.Remove(key(token))
}

func (s *Store) Len() int {
	return s.cache.Len()
}

func key(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
