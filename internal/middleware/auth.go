package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/forgo/cadence/api/internal/model"
)

// AdminAuth guards a route with a static admin token. The token arrives
// as a bearer credential and is compared in constant time.
func AdminAuth(token string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if token == "" || presented == "" ||
				subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				model.NewUnauthorizedError("admin token required").WriteJSON(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
