// Package cookiebridge gives every fragment fetch its own cookie jar, seeded
// from the client's cookies and from cookies kept for the client's session.
package cookiebridge

import (
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/net/publicsuffix"

	"github.com/always-cache/fragment-gateway/fragment"
)

type Config struct {
	// Discard lists cookies that are never forwarded to origins or accepted
	// from them.
	Discard []string
	// Persist lists cookies set by origins that are kept for the session and
	// sent on its later fetches.
	Persist []string
}

// Manager implements fragment.CookieManager.
type Manager struct {
	discard map[string]bool
	persist map[string]bool
	log     zerolog.Logger

	mu       sync.Mutex
	sessions map[string]map[string]*http.Cookie
}

func New(config Config, logger zerolog.Logger) *Manager {
	return &Manager{
		discard:  toSet(config.Discard),
		persist:  toSet(config.Persist),
		log:      logger,
		sessions: make(map[string]map[string]*http.Cookie),
	}
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, name := range names {
		if name = strings.TrimSpace(name); name != "" {
			set[name] = true
		}
	}
	return set
}

func (m *Manager) BridgeStoreFor(in *fragment.IncomingRequest) http.CookieJar {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		// cookiejar.New never fails with a non-nil options value
		m.log.Error().Err(err).Msg("Could not create cookie jar")
		return nil
	}
	return &requestStore{
		manager:  m,
		jar:      jar,
		incoming: in,
		seeded:   make(map[string]bool),
	}
}

// SessionCookies returns the cookies kept for a session.
func (m *Manager) SessionCookies(sessionID string) []*http.Cookie {
	m.mu.Lock()
	defer m.mu.Unlock()
	cookies := make([]*http.Cookie, 0, len(m.sessions[sessionID]))
	for _, c := range m.sessions[sessionID] {
		cp := *c
		cookies = append(cookies, &cp)
	}
	return cookies
}

// persistCookie reports whether c was kept for the session.
func (m *Manager) persistCookie(sessionID string, c *http.Cookie) bool {
	if sessionID == "" || !m.persist[c.Name] {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.MaxAge < 0 {
		delete(m.sessions[sessionID], c.Name)
		return true
	}
	session, ok := m.sessions[sessionID]
	if !ok {
		session = make(map[string]*http.Cookie)
		m.sessions[sessionID] = session
	}
	cp := *c
	session[c.Name] = &cp
	m.log.Trace().Str("session", sessionID).Str("cookie", c.Name).Msg("Persisted cookie")
	return true
}

// requestStore is the jar of a single fetch. The client's cookies are loaded
// for each origin the first time the fetch talks to it.
type requestStore struct {
	manager  *Manager
	jar      *cookiejar.Jar
	incoming *fragment.IncomingRequest

	mu        sync.Mutex
	seeded    map[string]bool
	forwarded []*http.Cookie
}

func (s *requestStore) seed(u *url.URL) {
	s.mu.Lock()
	defer s.mu.Unlock()
	origin := u.Scheme + "://" + u.Host
	if s.seeded[origin] {
		return
	}
	s.seeded[origin] = true
	var cookies []*http.Cookie
	if s.incoming != nil {
		for _, c := range s.incoming.Cookies() {
			if !s.manager.discard[c.Name] {
				cookies = append(cookies, &http.Cookie{Name: c.Name, Value: c.Value, Path: "/"})
			}
		}
		for _, c := range s.manager.SessionCookies(s.incoming.User.SessionID) {
			cookies = append(cookies, &http.Cookie{Name: c.Name, Value: c.Value, Path: "/"})
		}
	}
	if len(cookies) > 0 {
		s.jar.SetCookies(u, cookies)
	}
}

func (s *requestStore) Cookies(u *url.URL) []*http.Cookie {
	s.seed(u)
	return s.jar.Cookies(u)
}

func (s *requestStore) SetCookies(u *url.URL, cookies []*http.Cookie) {
	s.seed(u)
	kept := make([]*http.Cookie, 0, len(cookies))
	for _, c := range cookies {
		if s.manager.discard[c.Name] {
			continue
		}
		persisted := false
		if s.incoming != nil {
			persisted = s.manager.persistCookie(s.incoming.User.SessionID, c)
		}
		if !persisted {
			s.mu.Lock()
			s.forwarded = append(s.forwarded, c)
			s.mu.Unlock()
		}
		kept = append(kept, c)
	}
	s.jar.SetCookies(u, kept)
}

// ForwardedCookies returns the cookies set by origins during the fetch that
// were neither discarded nor kept for the session. They belong to the client.
func (s *requestStore) ForwardedCookies() []*http.Cookie {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*http.Cookie(nil), s.forwarded...)
}
