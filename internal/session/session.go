// Package session identifies browser sessions and carries the subscriber's
// bearer credential from the incoming request to backend calls.
package session

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/rs/zerolog"
)

const (
	// CookieName is the portal's own signed session cookie.
	CookieName = "survey_portal"
	// AuthCookieName is set by the hosted auth provider.
	AuthCookieName = "__session"

	idKey = "sid"
)

type ctxKey string

const (
	sessionIDKey ctxKey = "sessionID"
	tokenKey     ctxKey = "bearerToken"
)

// NewCookieStore creates the signed cookie store for session ids.
func NewCookieStore(secret string, secure bool) (*sessions.CookieStore, error) {
	if secret == "" {
		return nil, errors.New("session secret is empty")
	}

	store := sessions.NewCookieStore([]byte(secret))
	store.Options = &sessions.Options{
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return store, nil
}

// Middleware makes sure every request carries a session id and copies the
// bearer credential, if any, into the request context. Tokens are forwarded
// as-is and never validated here.
func Middleware(store sessions.Store, log *zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// a cookie signed with an old secret yields a fresh session
			sess, err := store.Get(r, CookieName)
			if err != nil && log != nil {
				log.Debug().Err(err).Msg("discarding unreadable session cookie")
			}
			if sess == nil {
				sess = sessions.NewSession(store, CookieName)
			}

			id, _ := sess.Values[idKey].(string)
			if _, perr := uuid.Parse(id); perr != nil {
				id = uuid.NewString()
				sess.Values[idKey] = id
				if err := sess.Save(r, w); err != nil && log != nil {
					log.Warn().Err(err).Msg("failed to save session")
				}
			}

			ctx := WithID(r.Context(), id)
			if token := bearerToken(r); token != "" {
				ctx = WithToken(ctx, token)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithID stores a session id in ctx.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}

// ID returns the session id of the request, or "".
func ID(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDKey).(string)
	return id
}

// WithToken stores a bearer token in ctx.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey, token)
}

// ContextTokenProvider yields the token placed in ctx by Middleware. A request
// without credentials yields "" and no error.
func ContextTokenProvider(ctx context.Context) (string, error) {
	token, _ := ctx.Value(tokenKey).(string)
	return token, nil
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		const prefix = "bearer "
		if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
			return strings.TrimSpace(h[len(prefix):])
		}
	}
	if c, err := r.Cookie(AuthCookieName); err == nil {
		return c.Value
	}
	return ""
}
