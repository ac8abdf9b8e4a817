package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/julienschmidt/httprouter"

	"recipebox/auth"
	"recipebox/globals"
	"recipebox/utils"
)

// Validator checks a raw bearer token of the given kind.
type Validator interface {
	Validate(ctx context.Context, raw, kind string) (auth.Identity, error)
}

// Authenticate rejects requests without a valid, unrevoked access token and
// stores the caller's user id in the request context.
func Authenticate(v Validator) func(httprouter.Handle) httprouter.Handle {
	return func(next httprouter.Handle) httprouter.Handle {
		return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
			id, err := v.Validate(r.Context(), utils.BearerToken(r), globals.AccessToken)
			if err != nil {
				utils.RespondWithError(w, err)
				return
			}
			ctx := context.WithValue(r.Context(), globals.UserIDKey, id.UserID)
			next(w, r.WithContext(ctx), ps)
		}
	}
}

// SecurityHeaders applies a set of recommended HTTP security headers.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-XSS-Protection", "1; mode=block")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Content-Security-Policy", "frame-ancestors 'none'")
		// HSTS (must be on HTTPS)
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=()")
		h.Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Logging logs each request method, path, status, remote address, and duration.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Default().WithPrefix("http").Info(r.Method+" "+r.URL.Path,
			"status", rec.status,
			"remote", utils.ClientIP(r),
			"took", time.Since(start),
		)
	})
}
