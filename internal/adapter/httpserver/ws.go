package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/s2intelligence/ninefold-gateway/internal/domain"
)

type wsQuery struct {
	Query     string `json:"query"`
	MaxTokens int    `json:"max_tokens"`
}

type wsError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// handleWS serves the streaming query endpoint. The credential rides in
// the token query parameter; each incoming message is rate-limited like
// a REST call. Closing the socket cancels any in-flight routing.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("token")
	if raw == "" {
		writeError(w, r, domain.Errorf(domain.ErrUnauthorized, "missing token parameter"), nil)
		return
	}
	var (
		p   domain.Principal
		err error
	)
	if strings.HasPrefix(raw, "sk-") {
		p, err = s.auth.VerifyAPIKey(raw)
	} else {
		p, err = s.auth.VerifyToken(raw)
	}
	if err != nil {
		writeError(w, r, err, nil)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		slog.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}
	defer func() { _ = conn.Close() }()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	lg := LoggerFrom(r).With(slog.String("principal", p.Username))
	lg.Info("websocket session opened")

	for {
		var msg wsQuery
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				lg.Warn("websocket read failed", slog.Any("error", err))
			}
			return
		}
		if strings.TrimSpace(msg.Query) == "" {
			_ = conn.WriteJSON(wsError{Error: "empty query", Code: "INVALID_ARGUMENT"})
			continue
		}

		if d := s.limiter.Allow(p.Username, p.Tier); !d.Allowed {
			_ = conn.WriteJSON(wsError{Error: "allowance exhausted", Code: "RATE_LIMITED"})
			continue
		}

		start := time.Now()
		result, err := s.router.Route(ctx, msg.Query, msg.MaxTokens)
		ok := err == nil
		s.agg.Request(p.Username, p.Tier, "/ws", ok, time.Since(start).Milliseconds())
		if err != nil {
			code := "INTERNAL"
			switch {
			case errors.Is(err, domain.ErrNoBackends):
				code = "NO_BACKENDS"
			case errors.Is(err, domain.ErrInvalidArgument):
				code = "INVALID_ARGUMENT"
			}
			if werr := conn.WriteJSON(wsError{Error: err.Error(), Code: code}); werr != nil {
				return
			}
			continue
		}
		if err := conn.WriteJSON(result); err != nil {
			return
		}
	}
}
