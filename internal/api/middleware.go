package api

import (
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"
)

// RequireBearerToken wraps next so every request must carry
// "Authorization: Bearer <token>" matching token, mirroring the teacher's
// middleware.IsAuthorized.
func RequireBearerToken(token string, next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeUnauthorized(w, "no authorization header")
			return
		}
		if !strings.HasPrefix(authHeader, "Bearer ") || strings.TrimPrefix(authHeader, "Bearer ") != token {
			writeUnauthorized(w, "invalid token")
			return
		}
		next(w, r, ps)
	}
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = encodeError(w, msg)
}

func encodeError(w http.ResponseWriter, msg string) error {
	_, err := w.Write([]byte(`{"error":"` + msg + `"}`))
	return err
}
