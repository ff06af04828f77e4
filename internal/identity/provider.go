// Package identity signs users up and in and tracks their sessions.
//
// Credentials live in the ledger store with bcrypt password hashes. Sessions
// are HS256 tokens; signing out revokes the token id until it expires.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"carteira/internal/ledger"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const MinPasswordLength = 6

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid or expired session")
	ErrWeakPassword       = fmt.Errorf("password must have at least %d characters", MinPasswordLength)
)

type EventKind string

const (
	SignedIn  EventKind = "signed_in"
	SignedOut EventKind = "signed_out"
)

type (
	Session struct {
		ID        string    `json:"-"`
		Token     string    `json:"token"`
		UserID    string    `json:"userId"`
		Email     string    `json:"email"`
		ExpiresAt time.Time `json:"expiresAt"`
	}

	// SessionEvent is delivered to listeners after a session starts or ends.
	// Session is the ended or started session.
	SessionEvent struct {
		Kind    EventKind
		Session *Session
	}

	Stores interface {
		ledger.CredentialStore
		ledger.SessionStore
	}

	Option func(*Provider)
)

type Provider struct {
	store  Stores
	secret []byte
	ttl    time.Duration
	cost   int
	now    func() time.Time

	mu        sync.Mutex
	listeners map[int]func(SessionEvent)
	nextID    int
}

func WithClock(now func() time.Time) Option {
	return func(p *Provider) { p.now = now }
}

// WithBcryptCost overrides bcrypt.DefaultCost, mostly for tests.
func WithBcryptCost(cost int) Option {
	return func(p *Provider) { p.cost = cost }
}

func NewProvider(store Stores, secret string, ttl time.Duration, opts ...Option) *Provider {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	p := &Provider{
		store:     store,
		secret:    []byte(secret),
		ttl:       ttl,
		cost:      bcrypt.DefaultCost,
		now:       time.Now,
		listeners: map[int]func(SessionEvent){},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SignUp creates credentials for a new account and starts its first session.
func (p *Provider) SignUp(ctx context.Context, email, password string) (Session, error) {
	email = normalizeEmail(email)
	if len(password) < MinPasswordLength {
		return Session{}, ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return Session{}, fmt.Errorf("hash password: %w", err)
	}

	cred := ledger.Credential{
		UserID:       uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    p.now().UTC(),
	}
	if err := p.store.CreateCredential(ctx, cred); err != nil {
		if errors.Is(err, ledger.ErrUniqueViolation) {
			return Session{}, ErrEmailTaken
		}
		return Session{}, fmt.Errorf("create credential: %w", err)
	}

	slog.InfoContext(ctx, "Account created", "user_id", cred.UserID)
	return p.startSession(cred)
}

func (p *Provider) SignIn(ctx context.Context, email, password string) (Session, error) {
	cred, err := p.store.CredentialByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, fmt.Errorf("load credential: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)); err != nil {
		return Session{}, ErrInvalidCredentials
	}
	return p.startSession(cred)
}

// SignOut revokes the session behind token. Signing out an already revoked
// or expired session returns ErrInvalidToken.
func (p *Provider) SignOut(ctx context.Context, token string) error {
	s, err := p.Authenticate(ctx, token)
	if err != nil {
		return err
	}
	if err := p.store.RevokeSession(ctx, s.ID, s.ExpiresAt); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	slog.InfoContext(ctx, "Session revoked", "user_id", s.UserID)
	p.emit(SessionEvent{Kind: SignedOut, Session: &s})
	return nil
}

// Authenticate resolves a token to its live session.
func (p *Provider) Authenticate(ctx context.Context, token string) (Session, error) {
	if token == "" {
		return Session{}, ErrInvalidToken
	}
	claims, err := parseToken(p.secret, token, p.now())
	if err != nil {
		return Session{}, ErrInvalidToken
	}
	revoked, err := p.store.SessionRevoked(ctx, claims.ID)
	if err != nil {
		return Session{}, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return Session{}, ErrInvalidToken
	}
	return Session{
		ID:        claims.ID,
		Token:     token,
		UserID:    claims.Subject,
		Email:     claims.Email,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// OnSessionChange registers fn for session events and returns a function
// that removes it.
func (p *Provider) OnSessionChange(fn func(SessionEvent)) (unsubscribe func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.listeners, id)
	}
}

// PurgeExpired drops revocations of sessions that have expired anyway.
func (p *Provider) PurgeExpired(ctx context.Context) (int, error) {
	return p.store.PurgeRevokedSessions(ctx, p.now())
}

func (p *Provider) startSession(cred ledger.Credential) (Session, error) {
	token, claims, err := issueToken(p.secret, cred.UserID, cred.Email, p.now(), p.ttl)
	if err != nil {
		return Session{}, err
	}
	s := Session{
		ID:        claims.ID,
		Token:     token,
		UserID:    cred.UserID,
		Email:     cred.Email,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	p.emit(SessionEvent{Kind: SignedIn, Session: &s})
	return s, nil
}

func (p *Provider) emit(ev SessionEvent) {
	p.mu.Lock()
	fns := make([]func(SessionEvent), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
