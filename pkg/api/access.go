package api

import (
	"net"
	"net/http"
	"strings"

	"github.com/marmos91/dittosmb/internal/logger"
	"github.com/marmos91/dittosmb/pkg/api/auth"
)

// requireScope guards routes that expose user identities. With a token
// service, a valid bearer token carrying scope is required. Without one,
// only loopback peers are served.
func requireScope(tokens *auth.TokenService, scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tokens == nil {
				if !isLoopback(r.RemoteAddr) {
					http.Error(w, "set api.jwt_secret to query sessions remotely", http.StatusForbidden)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			token, ok := bearerToken(r)
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer realm="dittosmb"`)
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}
			claims, err := tokens.Validate(token, scope)
			if err != nil {
				logger.DebugCtx(r.Context(), "API token rejected", "path", r.URL.Path, logger.Err(err))
				http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
				return
			}
			logger.DebugCtx(r.Context(), "API token accepted", "subject", claims.Subject)
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", false
	}
	return token, true
}

// isLoopback checks the TCP peer. RemoteAddr is the socket address here:
// the router does not rewrite it from forwarding headers.
func isLoopback(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
