// Package auth owns the client-side login session: the persisted credential
// pair and the identity displayed in the UI.
//
// SECURITY NOTE: claims are decoded from the access token WITHOUT verifying
// its signature. That decode exists purely so the UI can show who is logged
// in and pick the right command set; it grants no security guarantee
// whatsoever. Every authorization decision belongs to the backend, which
// validates the token on each request.
package auth

import (
	"errors"
	"fmt"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stemsi/examcli/internal/model"
	"github.com/stemsi/examcli/internal/state"
)

// Identity is the display-only view of the logged-in account.
type Identity struct {
	UserID string
	Role   model.Role
}

// claims mirrors the platform's access-token payload.
type claims struct {
	jwt.RegisteredClaims
	Role      string `json:"role"`
	SessionID string `json:"session_id"`
	TokenType string `json:"type"`
}

// Session is the explicitly-owned login session. It is constructed once at
// startup and passed to the components that need it; there is no ambient
// package-level session state.
type Session struct {
	mu       sync.Mutex
	store    *state.Store
	tokens   model.TokenPair
	identity *Identity
}

// NewSession creates a session backed by the given state store.
func NewSession(store *state.Store) *Session {
	return &Session{store: store}
}

// Init loads any persisted credential pair and decodes the identity from it.
// A missing or undecodable credential leaves the session logged out; a
// corrupt one is cleared from the store.
func (s *Session) Init() error {
	access, refresh, err := s.store.LoadCredentials()
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return nil
		}
		return err
	}

	identity, err := DecodeIdentity(access)
	if err != nil {
		// Stored credential is not a parseable token; discard it.
		_ = s.store.ClearCredentials()
		return nil
	}

	s.mu.Lock()
	s.tokens = model.TokenPair{AccessToken: access, RefreshToken: refresh}
	s.identity = identity
	s.mu.Unlock()
	return nil
}

// SetTokens stores a fresh pair (login or refresh) and re-decodes identity.
func (s *Session) SetTokens(pair model.TokenPair) error {
	identity, err := DecodeIdentity(pair.AccessToken)
	if err != nil {
		return fmt.Errorf("decode access token: %w", err)
	}
	if err := s.store.SaveCredentials(pair.AccessToken, pair.RefreshToken); err != nil {
		return err
	}

	s.mu.Lock()
	s.tokens = pair
	s.identity = identity
	s.mu.Unlock()
	return nil
}

// Clear tears the session down: stored credentials and in-memory identity.
func (s *Session) Clear() error {
	s.mu.Lock()
	s.tokens = model.TokenPair{}
	s.identity = nil
	s.mu.Unlock()
	return s.store.ClearCredentials()
}

// AccessToken returns the current access credential, empty when logged out.
func (s *Session) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens.AccessToken
}

// RefreshToken returns the current refresh credential, empty when logged out.
func (s *Session) RefreshToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens.RefreshToken
}

// Identity returns the decoded identity, nil when logged out.
func (s *Session) Identity() *Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// Authenticated reports whether a credential pair is held.
func (s *Session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens.AccessToken != ""
}

// DecodeIdentity extracts the display identity from an access token without
// signature verification. See the package note — display only.
func DecodeIdentity(token string) (*Identity, error) {
	var c claims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, &c); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if c.Subject == "" {
		return nil, errors.New("token has no subject claim")
	}
	return &Identity{UserID: c.Subject, Role: model.Role(c.Role)}, nil
}
