package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"carteira/internal/identity"
	applog "carteira/internal/log"
)

// SessionCookie carries the session token for browser clients.
const SessionCookie = "session"

// Authenticator resolves a bearer token to its session.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (identity.Session, error)
}

type sessionKey struct{}

func withSession(ctx context.Context, s identity.Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

func sessionFrom(ctx context.Context) (identity.Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(identity.Session)
	return s, ok
}

// userID returns the authenticated user, or "" outside protected routes.
func userID(ctx context.Context) string {
	s, _ := sessionFrom(ctx)
	return s.UserID
}

// bearerToken reads the Authorization header first and the session cookie
// second.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return c.Value
	}
	return ""
}

// requireAuth rejects requests without a live session and stores the session
// and a user-scoped logger in the context.
func requireAuth(auth Authenticator, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := auth.Authenticate(r.Context(), bearerToken(r))
		if err != nil {
			writeError(w, r, err, "authenticate", "session", "")
			return
		}
		ctx := withSession(r.Context(), session)
		ctx = applog.NewContext(ctx, applog.FromContext(ctx).With(applog.FieldUserID, session.UserID))
		next(w, r.WithContext(ctx))
	}
}

func setSessionCookie(w http.ResponseWriter, r *http.Request, s identity.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    s.Token,
		Path:     "/",
		Expires:  s.ExpiresAt,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}
