package carriers

import (
	"context"
	"encoding/base64"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/usama216/shipping-market-sub004/internal/domain"
	"github.com/usama216/shipping-market-sub004/pkg/logging"
	"github.com/usama216/shipping-market-sub004/pkg/metrics"
)

// tokenExpirySkew treats a token as expired slightly early so a request
// never leaves with a token that dies in flight.
const tokenExpirySkew = 60 * time.Second

// refreshLockTTL bounds how long one process may hold a refresh lock
const refreshLockTTL = 10 * time.Second

// refreshTimeout bounds a token refresh, which outlives the caller's context
const refreshTimeout = 15 * time.Second

// Token is a carrier OAuth access token. A nil ExpiresAt never expires.
type Token struct {
	AccessToken string     `json:"accessToken"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
}

// Valid reports whether the token can still be used at now
func (t Token) Valid(now time.Time) bool {
	if t.AccessToken == "" {
		return false
	}
	if t.ExpiresAt == nil {
		return true
	}
	return now.Add(tokenExpirySkew).Before(*t.ExpiresAt)
}

// TTL is the remaining lifetime of the token; zero when it never expires
func (t Token) TTL(now time.Time) time.Duration {
	if t.ExpiresAt == nil {
		return 0
	}
	return t.ExpiresAt.Sub(now)
}

// expiresIn turns an expires_in value in seconds into an expiry.
// Missing or non-positive values mean the token does not expire.
func expiresIn(now time.Time, seconds int) *time.Time {
	if seconds <= 0 {
		return nil
	}
	at := now.Add(time.Duration(seconds) * time.Second)
	return &at
}

// TokenStore shares carrier tokens between clients. Lock guards a refresh
// so only one holder calls the token endpoint at a time.
type TokenStore interface {
	Load(ctx context.Context, carrier string) (Token, bool, error)
	Save(ctx context.Context, carrier string, token Token) error
	Lock(ctx context.Context, carrier string, ttl time.Duration) (unlock func(), acquired bool, err error)
}

// MemoryTokenStore keeps tokens in process memory
type MemoryTokenStore struct {
	mu     sync.RWMutex
	tokens map[string]Token
}

// NewMemoryTokenStore creates an empty in-memory store
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{tokens: make(map[string]Token)}
}

func (s *MemoryTokenStore) Load(_ context.Context, carrier string) (Token, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tokens[carrier]
	return t, ok, nil
}

func (s *MemoryTokenStore) Save(_ context.Context, carrier string, token Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[carrier] = token
	return nil
}

// Lock always succeeds; refreshes in one process are already collapsed
// by the session.
func (s *MemoryTokenStore) Lock(context.Context, string, time.Duration) (func(), bool, error) {
	return func() {}, true, nil
}

// TokenFetcher calls a carrier token endpoint
type TokenFetcher func(ctx context.Context) (Token, error)

// AuthSession owns the access token of one carrier client. Concurrent
// refreshes collapse into a single token call.
type AuthSession struct {
	carrier string
	fetch   TokenFetcher
	store   TokenStore
	logger  *logging.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	group   singleflight.Group
	mu      sync.RWMutex
	current Token
}

// NewAuthSession creates a session refreshing through fetch
func NewAuthSession(carrier string, fetch TokenFetcher, deps Deps) *AuthSession {
	deps = deps.withDefaults()
	return &AuthSession{
		carrier: carrier,
		fetch:   fetch,
		store:   deps.Tokens,
		logger:  deps.Logger.WithCarrier(carrier).WithComponent("auth"),
		metrics: deps.Metrics,
		now:     time.Now,
	}
}

// IsAuthenticated checks the cached token without I/O
func (s *AuthSession) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Valid(s.now())
}

// Authenticate makes sure a valid token exists
func (s *AuthSession) Authenticate(ctx context.Context) (bool, error) {
	if _, err := s.Token(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Token returns a valid access token, refreshing when needed
func (s *AuthSession) Token(ctx context.Context) (string, error) {
	s.mu.RLock()
	current := s.current
	s.mu.RUnlock()
	if current.Valid(s.now()) {
		return current.AccessToken, nil
	}

	// shared by every waiting caller; one caller's cancellation must not fail the rest
	v, err, _ := s.group.Do(s.carrier, func() (interface{}, error) {
		refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		return s.refresh(refreshCtx)
	})
	if err != nil {
		return "", err
	}
	return v.(Token).AccessToken, nil
}

// Invalidate drops the cached token after the carrier rejected it
func (s *AuthSession) Invalidate() {
	s.mu.Lock()
	s.current = Token{}
	s.mu.Unlock()
}

func (s *AuthSession) refresh(ctx context.Context) (Token, error) {
	if t, ok := s.loadShared(ctx); ok {
		return t, nil
	}

	unlock, acquired, err := s.store.Lock(ctx, s.carrier, refreshLockTTL)
	if err != nil {
		s.logger.WithError(err).Warn("Token refresh lock unavailable, refreshing anyway")
	} else if !acquired {
		if t, ok := s.waitForShared(ctx); ok {
			return t, nil
		}
	} else {
		defer unlock()
	}

	token, err := s.fetch(ctx)
	s.metrics.RecordTokenRefresh(s.carrier, err == nil)
	if err != nil {
		if ce, ok := domain.AsCarrierError(err); ok {
			ce.Kind = domain.ErrorKindAuth
			return Token{}, ce
		}
		return Token{}, authError(s.carrier, "token request failed", err)
	}
	if token.AccessToken == "" {
		return Token{}, authError(s.carrier, "token endpoint returned no access token", nil)
	}

	s.mu.Lock()
	s.current = token
	s.mu.Unlock()

	if err := s.store.Save(ctx, s.carrier, token); err != nil {
		s.logger.WithError(err).Warn("Failed to share carrier token")
	}
	if token.ExpiresAt != nil {
		s.logger.Debug("Carrier token refreshed", "expiresAt", *token.ExpiresAt)
	} else {
		s.logger.Debug("Carrier token refreshed", "expiresAt", "never")
	}
	return token, nil
}

func (s *AuthSession) loadShared(ctx context.Context) (Token, bool) {
	t, ok, err := s.store.Load(ctx, s.carrier)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to load shared carrier token")
		return Token{}, false
	}
	if !ok || !t.Valid(s.now()) {
		return Token{}, false
	}
	s.mu.Lock()
	s.current = t
	s.mu.Unlock()
	return t, true
}

// waitForShared polls the store while another process refreshes
func (s *AuthSession) waitForShared(ctx context.Context) (Token, bool) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.NewTimer(refreshLockTTL)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return Token{}, false
		case <-deadline.C:
			return Token{}, false
		case <-ticker.C:
			if t, ok := s.loadShared(ctx); ok {
				return t, true
			}
		}
	}
}

// authorizer attaches credentials to outgoing requests
type authorizer interface {
	Authenticate(ctx context.Context) (bool, error)
	IsAuthenticated() bool
	authorize(ctx context.Context, header http.Header) error
	invalidate()
}

// bearerAuth sends the session token as a bearer token
type bearerAuth struct {
	session *AuthSession
}

func (b bearerAuth) Authenticate(ctx context.Context) (bool, error) {
	return b.session.Authenticate(ctx)
}

func (b bearerAuth) IsAuthenticated() bool {
	return b.session.IsAuthenticated()
}

func (b bearerAuth) authorize(ctx context.Context, header http.Header) error {
	token, err := b.session.Token(ctx)
	if err != nil {
		return err
	}
	header.Set("Authorization", "Bearer "+token)
	return nil
}

func (b bearerAuth) invalidate() {
	b.session.Invalidate()
}

// staticAuth sends fixed credentials; the session is valid whenever they
// are configured.
type staticAuth struct {
	carrier string
	header  string
	value   string
}

func newBasicAuth(carrier, user, password string) staticAuth {
	if user == "" || password == "" {
		return staticAuth{carrier: carrier}
	}
	return staticAuth{
		carrier: carrier,
		header:  "Authorization",
		value:   "Basic " + basicCredentials(user, password),
	}
}

func newAPIKeyAuth(carrier, key string) staticAuth {
	if key == "" {
		return staticAuth{carrier: carrier}
	}
	return staticAuth{carrier: carrier, header: "Authorization", value: "Bearer " + key}
}

func (s staticAuth) Authenticate(context.Context) (bool, error) {
	if s.value == "" {
		return false, authError(s.carrier, "credentials are not configured", domain.ErrMissingCredentials)
	}
	return true, nil
}

func (s staticAuth) IsAuthenticated() bool {
	return s.value != ""
}

func (s staticAuth) authorize(ctx context.Context, header http.Header) error {
	if _, err := s.Authenticate(ctx); err != nil {
		return err
	}
	header.Set(s.header, s.value)
	return nil
}

func (staticAuth) invalidate() {}

func basicCredentials(user, password string) string {
	return base64.StdEncoding.EncodeToString([]byte(user + ":" + password))
}
