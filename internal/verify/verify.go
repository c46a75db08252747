// CLAUDE:SUMMARY Verification code cache: 6-digit single-use codes keyed by email with TTL expiry and a background sweep
package verify

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"
)

var (
	ErrNotFound = errors.New("no verification code for this email")
	ErrExpired  = errors.New("verification code expired")
	ErrMismatch = errors.New("verification code does not match")
)

// ErrTooManyAttempts is returned on the mismatch that uses up the entry's
// attempts; the code is discarded.
var ErrTooManyAttempts = errors.New("too many verification attempts")

const (
	DefaultTTL         = 10 * time.Minute
	DefaultMaxAttempts = 5
)

type entry struct {
	code      string
	expiresAt time.Time
	failures  int
}

// CodeStore holds at most one pending code per email. It lives in process
// memory and is empty after a restart.
type CodeStore struct {
	mu       sync.Mutex
	entries  map[string]entry
	ttl      time.Duration
	maxTries int
	now      func() time.Time
	logger   *slog.Logger
}

type Option func(*CodeStore)

func WithClock(now func() time.Time) Option { return func(s *CodeStore) { s.now = now } }
func WithLogger(l *slog.Logger) Option { return func(s *CodeStore) { s.logger = l } }

// WithMaxAttempts sets how many wrong codes an entry survives. Values
// below 1 keep the default.
func WithMaxAttempts(n int) Option {
	return func(s *CodeStore) {
		if n > 0 {
			s.maxTries = n
		}
	}
}

func NewCodeStore(ttl time.Duration, opts ...Option) *CodeStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &CodeStore{
		entries:  make(map[string]entry),
		ttl:      ttl,
		maxTries: DefaultMaxAttempts,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Issue creates a fresh code for email, replacing any pending one.
func (s *CodeStore) Issue(email string) (string, error) {
	key := normalize(email)
	if key == "" {
		return "", fmt.Errorf("email is required")
	}
	code, err := newCode()
	if err != nil {
		return "", fmt.Errorf("generating code: %w", err)
	}
	s.mu.Lock()
	s.entries[key] = entry{code: code, expiresAt: s.now().Add(s.ttl)}
	s.mu.Unlock()
	return code, nil
}

// Verify consumes the pending code for email. The entry is removed on
// success, on expiry, and on the mismatch that exhausts its attempts.
func (s *CodeStore) Verify(email, code string) error {
	key := normalize(email)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return ErrNotFound
	}
	if !s.now().Before(e.expiresAt) {
		delete(s.entries, key)
		return ErrExpired
	}
	if subtle.ConstantTimeCompare([]byte(e.code), []byte(strings.TrimSpace(code))) != 1 {
		e.failures++
		if e.failures >= s.maxTries {
			delete(s.entries, key)
			s.logger.Warn("verification code discarded after repeated mismatches", "attempts", e.failures)
			return ErrTooManyAttempts
		}
		s.entries[key] = e
		return ErrMismatch
	}
	delete(s.entries, key)
	return nil
}

// Len returns the number of pending codes.
func (s *CodeStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Evict drops every expired entry and returns how many it removed.
func (s *CodeStore) Evict() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, k)
			n++
		}
	}
	return n
}

// Sweep calls Evict every interval until ctx is cancelled.
func (s *CodeStore) Sweep(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Evict(); n > 0 {
				s.logger.Debug("evicted expired verification codes", "count", n)
			}
		}
	}
}

func newCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
