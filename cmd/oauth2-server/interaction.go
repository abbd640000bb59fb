package main

import (
	"context"
	"crypto/subtle"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	oauth "github.com/giantswarm/oauth2-server"
	"github.com/giantswarm/oauth2-server/server"
	"github.com/giantswarm/oauth2-server/storage"
)

// demoHost is the resource-owner side of the demo: password sign-in, a
// consent page and access grants remembered per user and client.
type demoHost struct {
	users    map[string]string
	grants   storage.AccessGrantStore
	sessions *sessionStore
	grantTTL time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

func newDemoHost(users map[string]string, grants storage.AccessGrantStore, sessions *sessionStore, grantTTL time.Duration, logger *slog.Logger) *demoHost {
	return &demoHost{
		users:    users,
		grants:   grants,
		sessions: sessions,
		grantTTL: grantTTL,
		now:      time.Now,
		logger:   logger,
	}
}

// Host wires the demo decisions into the protocol handler
func (d *demoHost) Host() oauth.Host {
	return oauth.Host{
		Authenticator: server.AuthenticatorFunc(d.authenticate),
		Authorizer:    server.AuthorizerFunc(d.authorize),
		Interaction:   oauth.InteractionHandlerFunc(d.renderInteraction),
	}
}

func (d *demoHost) authenticate(ctx context.Context, _ *storage.Client, _ *server.AuthorizationRequest) (server.Outcome[string], error) {
	sess := sessionFromContext(ctx)
	if sess == nil || sess.Subject() == "" {
		return server.NeedsInteraction[string](), nil
	}
	return server.Decided(sess.Subject()), nil
}

// authorize grants requests covered by a remembered access grant. Otherwise it
// asks for consent once, and answers with the resource owner's decision on the
// retry.
func (d *demoHost) authorize(ctx context.Context, client *storage.Client, req *server.AuthorizationRequest, subject string) (server.Outcome[bool], error) {
	grant, err := d.grants.GetAccessGrant(ctx, subject, client.ClientID)
	switch {
	case err == nil && grant.Covers(strings.Fields(req.Scope)):
		return server.Decided(true), nil
	case err != nil && !storage.IsNotFound(err):
		return server.Outcome[bool]{}, err
	}

	sess := sessionFromContext(ctx)
	if sess == nil {
		return server.NeedsInteraction[bool](), nil
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if c := sess.consent; c != nil && c.ClientID == client.ClientID && c.Scope == req.Scope {
		if c.Denied {
			sess.consent = nil
			return server.Decided(false), nil
		}
		return server.NeedsInteraction[bool](), nil
	}

	sess.consent = &pendingConsent{ClientID: client.ClientID, Scope: req.Scope}
	return server.NeedsInteraction[bool](), nil
}

type pageData struct {
	Action     string
	CSRFToken  string
	Error      string
	ClientID   string
	ClientName string
	Scopes     []string
}

func (d *demoHost) renderInteraction(w http.ResponseWriter, r *http.Request, interaction *oauth.InteractionRequired) {
	data := pageData{Action: r.URL.RequestURI()}
	if sess := sessionFromContext(r.Context()); sess != nil {
		data.CSRFToken = sess.CSRFToken()
	}

	switch interaction.Kind {
	case server.InteractionUnauthenticated:
		d.render(w, signInPage, data)
	case server.InteractionUnresolvedAuthorization:
		data.ClientID = interaction.Client.ClientID
		data.ClientName = interaction.Client.ClientName
		data.Scopes = strings.Fields(interaction.Request.Scope)
		d.render(w, consentPage, data)
	default:
		http.Error(w, "unexpected interaction", http.StatusInternalServerError)
	}
}

// ServeInteractionForm handles the sign-in and consent forms posted back to
// the authorization endpoint, then replays the authorization request with a
// 303 redirect.
func (d *demoHost) ServeInteractionForm(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	if sess == nil {
		http.Error(w, "no session", http.StatusBadRequest)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	token := r.PostForm.Get("csrf_token")
	if subtle.ConstantTimeCompare([]byte(token), []byte(sess.CSRFToken())) != 1 {
		http.Error(w, "invalid CSRF token", http.StatusForbidden)
		return
	}

	if sess.Subject() == "" {
		username := r.PostForm.Get("username")
		if !d.checkPassword(username, r.PostForm.Get("password")) {
			d.logger.Info("Sign-in failed", "username_present", username != "")
			d.render(w, signInPage, pageData{
				Action:    r.URL.RequestURI(),
				CSRFToken: sess.CSRFToken(),
				Error:     "Invalid username or password",
			})
			return
		}
		d.sessions.signIn(w, sess, username)
	}

	query := r.URL.Query()
	if err := d.recordConsent(r.Context(), sess, query.Get("client_id"), query.Get("scope"), r.PostForm.Get("authorize") == "1"); err != nil {
		d.logger.Error("Failed to record consent", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, r.URL.RequestURI(), http.StatusSeeOther)
}

// recordConsent applies a consent decision to the pending request of the session
func (d *demoHost) recordConsent(ctx context.Context, sess *session, clientID, scope string, authorized bool) error {
	sess.mu.Lock()
	c := sess.consent
	subject := sess.subject
	if c == nil || c.ClientID != clientID || c.Scope != scope {
		sess.mu.Unlock()
		return nil
	}
	if !authorized {
		c.Denied = true
		sess.mu.Unlock()
		return nil
	}
	sess.consent = nil
	sess.mu.Unlock()

	return d.grants.SaveAccessGrant(ctx, &storage.AccessGrant{
		Subject:   subject,
		ClientID:  clientID,
		Scopes:    strings.Fields(scope),
		ExpiresAt: d.now().Add(d.grantTTL),
	})
}

func (d *demoHost) checkPassword(username, password string) bool {
	want, ok := d.users[username]
	if !ok || username == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(password), []byte(want)) == 1
}

func (d *demoHost) render(w http.ResponseWriter, tmpl *template.Template, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Frame-Options", "DENY")
	if err := tmpl.Execute(w, data); err != nil {
		d.logger.Error("Failed to render page", "page", tmpl.Name(), "error", err)
	}
}
