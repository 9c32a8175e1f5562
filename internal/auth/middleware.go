package auth

import (
	"net/http"
	"strings"
)

// Middleware guards the view API with locally issued bearer tokens.
// The guard is optional: deployments on a trusted network run without a
// secret and every request passes.
type Middleware struct {
	secret         []byte
	exemptPaths    map[string]struct{}
	exemptPrefixes []string
}

// NewMiddleware constructs the guard. An empty secret disables it.
func NewMiddleware(secret []byte, exemptPaths []string, exemptPrefixes []string) *Middleware {
	set := make(map[string]struct{}, len(exemptPaths))
	for _, path := range exemptPaths {
		set[path] = struct{}{}
	}
	return &Middleware{secret: secret, exemptPaths: set, exemptPrefixes: exemptPrefixes}
}

// Wrap enforces bearer auth on the handler.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(m.secret) == 0 || m.isExempt(r) {
			next.ServeHTTP(w, r)
			return
		}

		token := bearerToken(r)
		if token == "" {
			// The push re-broadcast is consumed by EventSource clients,
			// which cannot set headers; they pass the token in the query.
			token = r.URL.Query().Get("token")
		}
		if token == "" {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		claims, err := ParseJWT(token, m.secret)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithSubject(r.Context(), claims.Subject)))
	})
}

func (m *Middleware) isExempt(r *http.Request) bool {
	if r == nil {
		return true
	}
	if _, ok := m.exemptPaths[r.URL.Path]; ok {
		return true
	}
	for _, prefix := range m.exemptPrefixes {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return true
		}
	}
	return false
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
