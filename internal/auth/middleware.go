package auth

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Observer is notified of authentication outcomes, e.g. for metrics.
type Observer func(success bool)

func notify(observers []Observer, success bool) {
	for _, fn := range observers {
		fn(success)
	}
}

// IngestAuthMiddleware returns middleware that authenticates report and
// switch producers using a bearer key whose SHA-256 hash matches wantHash.
func IngestAuthMiddleware(wantHash string, observers ...Observer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearerToken(r)
			if token == "" || !VerifyIngestKey(token, wantHash) {
				notify(observers, false)
				writeUnauthorized(w, "missing or invalid ingest key")
				return
			}
			notify(observers, true)
			next.ServeHTTP(w, r)
		})
	}
}

// AdminAuthMiddleware returns middleware that authenticates admin requests
// using a bearer key checked against its bcrypt hash.
func AdminAuthMiddleware(wantHash string, observers ...Observer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearerToken(r)
			if token == "" || !VerifyAdminKey(token, wantHash) {
				notify(observers, false)
				writeUnauthorized(w, "missing or invalid admin key")
				return
			}
			notify(observers, true)
			next.ServeHTTP(w, r)
		})
	}
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Error: errorBody{
			Code:    "unauthorized",
			Message: message,
		},
	})
}
