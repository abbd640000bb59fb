package main

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
)

const sessionCookieName = "oauth2_session"

type sessionContextKey struct{}

// pendingConsent is the authorization request a consent page was rendered for
type pendingConsent struct {
	ClientID string
	Scope    string
	Denied   bool
}

// session is the browser state of one resource owner
type session struct {
	mu        sync.Mutex
	id        string
	csrfToken string
	subject   string
	consent   *pendingConsent
	expiresAt time.Time
}

func (s *session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

func (s *session) Subject() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subject
}

func (s *session) CSRFToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.csrfToken
}

// sessionStore keeps sessions in memory, keyed by a random cookie value
type sessionStore struct {
	mu       sync.Mutex
	sessions map[string]*session
	maxAge   time.Duration
	secure   bool
	now      func() time.Time
}

func newSessionStore(maxAge time.Duration, issuer string) *sessionStore {
	u, err := url.Parse(issuer)
	return &sessionStore{
		sessions: make(map[string]*session),
		maxAge:   maxAge,
		secure:   err == nil && u.Scheme == "https",
		now:      time.Now,
	}
}

// Middleware attaches the caller's session to the request context, starting
// a new one when the cookie is missing or stale.
func (st *sessionStore) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var sess *session
		if c, err := r.Cookie(sessionCookieName); err == nil {
			sess = st.get(c.Value)
		}
		if sess == nil {
			sess = st.create()
			st.setCookie(w, sess)
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionContextKey{}, sess)))
	})
}

func (st *sessionStore) get(id string) *session {
	st.mu.Lock()
	defer st.mu.Unlock()

	sess, ok := st.sessions[id]
	if !ok {
		return nil
	}
	if st.now().After(sess.expiresAt) {
		delete(st.sessions, id)
		return nil
	}
	return sess
}

func (st *sessionStore) create() *session {
	st.mu.Lock()
	defer st.mu.Unlock()

	now := st.now()
	for id, sess := range st.sessions {
		if now.After(sess.expiresAt) {
			delete(st.sessions, id)
		}
	}

	sess := &session{
		id:        uuid.NewString(),
		csrfToken: uuid.NewString(),
		expiresAt: now.Add(st.maxAge),
	}
	st.sessions[sess.id] = sess
	return sess
}

// signIn binds subject to the session and moves it to a fresh identifier
func (st *sessionStore) signIn(w http.ResponseWriter, sess *session, subject string) {
	st.mu.Lock()
	delete(st.sessions, sess.id)
	sess.mu.Lock()
	sess.id = uuid.NewString()
	sess.subject = subject
	sess.mu.Unlock()
	st.sessions[sess.id] = sess
	st.mu.Unlock()

	st.setCookie(w, sess)
}

func (st *sessionStore) setCookie(w http.ResponseWriter, sess *session) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sess.ID(),
		Path:     "/",
		MaxAge:   int(st.maxAge.Seconds()),
		HttpOnly: true,
		Secure:   st.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func sessionFromContext(ctx context.Context) *session {
	sess, _ := ctx.Value(sessionContextKey{}).(*session)
	return sess
}
