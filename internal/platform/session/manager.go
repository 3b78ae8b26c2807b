package session

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const contextKey = "portal_session"

// CookieConfig controls the session cookie. The cookie never carries an
// expiry, so it lives exactly as long as the browser session.
type CookieConfig struct {
	Name   string
	Secure bool
}

// Manager hands out Session handles bound to the browser's session cookie.
// Writes to one session id are serialized; the last write wins.
type Manager struct {
	store  Store
	cookie CookieConfig
	locks  [64]sync.Mutex
}

// NewManager creates a session manager on top of a store.
func NewManager(store Store, cookie CookieConfig) *Manager {
	if cookie.Name == "" {
		cookie.Name = "portal_session"
	}
	return &Manager{store: store, cookie: cookie}
}

// Store returns the backing store.
func (m *Manager) Store() Store {
	return m.store
}

// Session returns a handle for the given session id.
func (m *Manager) Session(id string) *Session {
	return &Session{id: id, m: m}
}

func (m *Manager) lock(id string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(id))
	return &m.locks[h.Sum32()%uint32(len(m.locks))]
}

// Middleware resolves the session cookie, issuing a fresh id when the browser
// has none, and attaches the Session handle to the echo context.
func (m *Manager) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := ""
			if ck, err := c.Cookie(m.cookie.Name); err == nil {
				if _, perr := uuid.Parse(ck.Value); perr == nil {
					id = ck.Value
				}
			}
			if id == "" {
				id = uuid.NewString()
				c.SetCookie(&http.Cookie{
					Name:     m.cookie.Name,
					Value:    id,
					Path:     "/",
					HttpOnly: true,
					Secure:   m.cookie.Secure,
					SameSite: http.SameSiteLaxMode,
				})
			}
			c.Set(contextKey, m.Session(id))
			return next(c)
		}
	}
}

// FromContext returns the Session attached by Middleware, or nil.
func FromContext(c echo.Context) *Session {
	s, _ := c.Get(contextKey).(*Session)
	return s
}

// Session is the per-browser session handle. It is the only way views read
// or write the identity.
type Session struct {
	id string
	m  *Manager
}

func (s *Session) ID() string {
	return s.id
}

// Get rebuilds the identity, or returns nil when no user is signed in.
func (s *Session) Get(ctx context.Context) (*Identity, error) {
	fields, err := s.m.store.Get(ctx, s.id)
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	return identityFromFields(fields), nil
}

// Set replaces the stored identity. Identity keys the new identity lacks are
// removed in the same store call, so two users' fields never mix.
func (s *Session) Set(ctx context.Context, id Identity) error {
	if id.UserID == "" {
		return errors.New("identity has no user id")
	}
	fields := id.fields()
	var drop []string
	for _, k := range Keys {
		if _, ok := fields[k]; !ok {
			drop = append(drop, k)
		}
	}

	mu := s.m.lock(s.id)
	mu.Lock()
	defer mu.Unlock()

	if err := s.m.store.Replace(ctx, s.id, fields, drop); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// Clear removes every identity key.
func (s *Session) Clear(ctx context.Context) error {
	mu := s.m.lock(s.id)
	mu.Lock()
	defer mu.Unlock()

	if err := s.m.store.Delete(ctx, s.id, Keys...); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// Expire tells the browser to drop the session cookie. Its next request gets a
// fresh session id, whatever is left in the store under the old one.
func (s *Session) Expire(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     s.m.cookie.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.m.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// BearerToken returns the stored token, or "" when there is none or the store
// cannot be read.
func (s *Session) BearerToken(ctx context.Context) string {
	fields, err := s.m.store.Get(ctx, s.id)
	if err != nil {
		return ""
	}
	return fields[KeyToken]
}
