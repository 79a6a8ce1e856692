package httpapi

import (
	"crypto/hmac"
	"net/http"
)

// authenticated wraps next with a shared-secret check on the
// X-Agent-Secret header, comparing in constant time so response
// latency never leaks how many leading bytes matched (spec §6).
func (s *Server) authenticated(next http.Handler) http.Handler {
	secret := []byte(s.Config.HTTP.SharedSecret)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := []byte(r.Header.Get("X-Agent-Secret"))
		if len(secret) == 0 || !hmac.Equal(got, secret) {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
