package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/s2intelligence/ninefold-gateway/internal/domain"
)

type principalKey struct{}

// PrincipalFrom extracts the authenticated principal, if any.
func PrincipalFrom(r *http.Request) (domain.Principal, bool) {
	v := r.Context().Value(principalKey{})
	p, ok := v.(domain.Principal)
	return p, ok
}

// authenticate resolves the caller from an API key or a bearer token.
// API keys are checked first: either the X-API-Key header or a Bearer
// credential with the key prefix.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		credential := r.Header.Get("X-API-Key")
		bearer := ""
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			bearer = strings.TrimPrefix(h, "Bearer ")
		}
		if credential == "" && strings.HasPrefix(bearer, "sk-") {
			credential = bearer
			bearer = ""
		}

		var (
			p   domain.Principal
			err error
		)
		switch {
		case credential != "":
			p, err = s.auth.VerifyAPIKey(credential)
		case bearer != "":
			p, err = s.auth.VerifyToken(bearer)
		default:
			err = domain.Errorf(domain.ErrUnauthorized, "missing credentials")
		}
		if err != nil {
			writeError(w, r, err, nil)
			return
		}

		ctx := context.WithValue(r.Context(), principalKey{}, p)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// rateLimit admits the request against the principal's token bucket.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFrom(r)
		if !ok {
			writeError(w, r, domain.Errorf(domain.ErrUnauthorized, "missing principal"), nil)
			return
		}
		d := s.limiter.Allow(p.Username, p.Tier)
		if !d.Allowed {
			retry := int64(d.RetryAfter.Seconds())
			w.Header().Set("Retry-After", strconv.FormatInt(retry, 10))
			writeError(w, r, domain.Errorf(domain.ErrRateLimited, "allowance exhausted"), map[string]any{
				"retry_after_s": retry,
				"remaining":     d.Remaining,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireMetricsTier gates metrics visibility to beta and premium.
func (s *Server) requireMetricsTier(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFrom(r)
		if !ok || !p.Tier.MetricsVisible() {
			writeError(w, r, domain.Errorf(domain.ErrForbidden, "tier %s cannot read metrics", p.Tier), nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// record publishes per-request counters and the audit event after the
// handler finishes. Failures here never affect the response.
func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		p, ok := PrincipalFrom(r)
		if !ok {
			return
		}
		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		durMS := time.Since(start).Milliseconds()
		status := ww.Status()
		s.agg.Request(p.Username, p.Tier, route, status < 400, durMS)

		if s.audit != nil {
			ev := domain.AuditEvent{
				Time:       start.UTC(),
				RequestID:  RequestIDFrom(r),
				Principal:  p.Username,
				Tier:       p.Tier,
				Method:     r.Method,
				Endpoint:   route,
				Status:     status,
				DurationMS: durMS,
			}
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := s.audit.Publish(ctx, ev); err != nil {
					slog.Warn("audit publish failed", slog.Any("error", err))
				}
			}()
		}
	})
}
