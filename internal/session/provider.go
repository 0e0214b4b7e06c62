package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"

	"firebase.google.com/go/v4/auth"
	"local.dev/nexboard-backend/internal/models"
)

const defaultEndpoint = "https://identitytoolkit.googleapis.com"

const minPasswordLen = 6

// ValidationError blocks the operation before any call to the identity
// service.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// AuthError carries the identity service's message verbatim so forms can
// show it inline.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string { return e.Message }

type EventType string

const (
	EventSignedUp  EventType = "signed_up"
	EventSignedIn  EventType = "signed_in"
	EventSignedOut EventType = "signed_out"
)

// Event is broadcast to watchers whenever the session state changes through
// this provider.
type Event struct {
	Type    EventType      `json:"type"`
	Session models.Session `json:"session"`
}

// Tokens are returned on password sign-in; the client presents IDToken as a
// bearer token on authenticated calls.
type Tokens struct {
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
}

// adminClient is the slice of *auth.Client the provider needs.
type adminClient interface {
	CreateUser(ctx context.Context, user *auth.UserToCreate) (*auth.UserRecord, error)
	UpdateUser(ctx context.Context, uid string, user *auth.UserToUpdate) (*auth.UserRecord, error)
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
	RevokeRefreshTokens(ctx context.Context, uid string) error
}

// Provider wraps Firebase Auth. It owns the current-session lifecycle; every
// other component observes sessions through Verify or Watch, never through
// shared mutable state.
type Provider struct {
	admin    adminClient
	apiKey   string
	endpoint string
	httpc    *http.Client

	mu       sync.Mutex
	watchers map[int]chan Event
	nextID   int
}

func NewProvider(admin *auth.Client, apiKey string) *Provider {
	return newProvider(admin, apiKey, defaultEndpoint, http.DefaultClient)
}

func newProvider(admin adminClient, apiKey, endpoint string, httpc *http.Client) *Provider {
	return &Provider{
		admin:    admin,
		apiKey:   apiKey,
		endpoint: endpoint,
		httpc:    httpc,
		watchers: map[int]chan Event{},
	}
}

// SignUp creates the account, then sets the display name as a follow-up
// call. A failed follow-up does not roll back the account; the session
// still reports the requested name and nothing retries the profile write.
func (p *Provider) SignUp(ctx context.Context, email, password, displayName string) (models.Session, error) {
	if len(password) < minPasswordLen {
		return models.Session{}, &ValidationError{Message: "Password should be at least 6 characters."}
	}
	rec, err := p.admin.CreateUser(ctx, (&auth.UserToCreate{}).Email(email).Password(password))
	if err != nil {
		return models.Session{}, &AuthError{Message: err.Error()}
	}
	if displayName != "" {
		if _, err := p.admin.UpdateUser(ctx, rec.UID, (&auth.UserToUpdate{}).DisplayName(displayName)); err != nil {
			log.Printf("session: set display name for %s: %v", rec.UID, err)
		}
	}
	sess := models.Session{UID: rec.UID, Email: email, DisplayName: displayName}
	p.broadcast(Event{Type: EventSignedUp, Session: sess})
	return sess, nil
}

// SignIn verifies the password against the Identity Toolkit REST API; the
// Admin SDK has no password check.
func (p *Provider) SignIn(ctx context.Context, email, password string) (models.Session, Tokens, error) {
	body, err := json.Marshal(map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	})
	if err != nil {
		return models.Session{}, Tokens{}, err
	}
	url := fmt.Sprintf("%s/v1/accounts:signInWithPassword?key=%s", p.endpoint, p.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return models.Session{}, Tokens{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpc.Do(req)
	if err != nil {
		return models.Session{}, Tokens{}, fmt.Errorf("identity service: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.Session{}, Tokens{}, fmt.Errorf("identity service: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal(raw, &e); err == nil && e.Error.Message != "" {
			return models.Session{}, Tokens{}, &AuthError{Message: e.Error.Message}
		}
		return models.Session{}, Tokens{}, &AuthError{Message: resp.Status}
	}

	var out struct {
		LocalID      string `json:"localId"`
		Email        string `json:"email"`
		DisplayName  string `json:"displayName"`
		IDToken      string `json:"idToken"`
		RefreshToken string `json:"refreshToken"`
		ExpiresIn    string `json:"expiresIn"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return models.Session{}, Tokens{}, fmt.Errorf("identity service: %w", err)
	}
	sess := models.Session{UID: out.LocalID, Email: out.Email, DisplayName: out.DisplayName}
	p.broadcast(Event{Type: EventSignedIn, Session: sess})
	return sess, Tokens{IDToken: out.IDToken, RefreshToken: out.RefreshToken, ExpiresIn: out.ExpiresIn}, nil
}

// SignOut revokes the user's refresh tokens. Already-issued ID tokens stay
// valid until expiry; that is Firebase's token lifecycle, not ours.
func (p *Provider) SignOut(ctx context.Context, uid string) error {
	if err := p.admin.RevokeRefreshTokens(ctx, uid); err != nil {
		return fmt.Errorf("revoke tokens: %w", err)
	}
	p.broadcast(Event{Type: EventSignedOut, Session: models.Session{UID: uid}})
	return nil
}

// Verify resolves a bearer ID token to a Session.
func (p *Provider) Verify(ctx context.Context, idToken string) (models.Session, error) {
	tok, err := p.admin.VerifyIDToken(ctx, idToken)
	if err != nil {
		return models.Session{}, &AuthError{Message: err.Error()}
	}
	sess := models.Session{UID: tok.UID}
	if email, ok := tok.Claims["email"].(string); ok {
		sess.Email = email
	}
	if name, ok := tok.Claims["name"].(string); ok {
		sess.DisplayName = name
	}
	return sess, nil
}

// Watch subscribes to session-change events. The returned cancel func is
// safe to call more than once.
func (p *Provider) Watch() (<-chan Event, func()) {
	ch := make(chan Event, 8)
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.watchers[id] = ch
	p.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.watchers, id)
			p.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (p *Provider) broadcast(ev Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ch := range p.watchers {
		select {
		case ch <- ev:
		default: // slow watcher drops events rather than blocking sign-in
		}
	}
}
