package httpserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/s2intelligence/ninefold-gateway/internal/domain"
)

type serviceInfoResponse struct {
	Service   string   `json:"service"`
	Version   string   `json:"version"`
	Status    string   `json:"status"`
	Workers   int      `json:"workers"`
	Tiers     []string `json:"tiers"`
	Endpoints []string `json:"endpoints"`
}

func (s *Server) handleServiceInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, serviceInfoResponse{
		Service: "ninefold-gateway",
		Version: Version,
		Status:  "operational",
		Workers: len(s.registry.List()),
		Tiers:   []string{string(domain.TierFree), string(domain.TierBeta), string(domain.TierPremium)},
		Endpoints: []string{
			"POST /auth/login",
			"POST /v1/query",
			"POST /v1/analyze",
			"GET /v1/workers",
			"GET /v1/workers/{name}",
			"GET /v1/metrics",
			"GET /v1/stats",
			"GET /health",
			"GET /ws",
		},
	})
}

type healthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Timestamp     string `json:"timestamp"`
	WorkersLive   int    `json:"workers_live"`
	WorkersTotal  int    `json:"workers_total"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	live := len(s.registry.Available())
	total := len(s.registry.List())
	status := "healthy"
	if live == 0 {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:        status,
		Version:       Version,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		WorkersLive:   live,
		WorkersTotal:  total,
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
	})
}

type loginRequest struct {
	Username string `json:"username" validate:"required,min=1,max=64"`
	Secret   string `json:"secret" validate:"required"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresInS  int64  `json:"expires_in_s"`
	Username    string `json:"username"`
	Tier        string `json:"tier"`
	APIKey      string `json:"api_key"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, err, nil)
		return
	}
	tok, p, err := s.auth.Login(req.Username, req.Secret)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: tok,
		TokenType:   "bearer",
		ExpiresInS:  int64(s.auth.TokenLifetime().Seconds()),
		Username:    p.Username,
		Tier:        string(p.Tier),
		APIKey:      p.APIKey,
	})
}

type queryRequest struct {
	Query     string `json:"query" validate:"required,min=1,max=4000"`
	MaxTokens int    `json:"max_tokens" validate:"omitempty,min=1,max=4096"`
	// Stream is accepted for contract compatibility; streaming delivery
	// rides the /ws endpoint.
	Stream bool `json:"stream"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, err, nil)
		return
	}
	result, err := s.router.Route(r.Context(), req.Query, req.MaxTokens)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type analyzeResponse struct {
	Analysis    domain.QueryAnalysis   `json:"analysis"`
	Decision    domain.RoutingDecision `json:"routing_decision"`
	Recommended string                 `json:"recommended_egregore,omitempty"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, err, nil)
		return
	}
	analysis, decision := s.router.Analyze(req.Query)
	writeJSON(w, http.StatusOK, analyzeResponse{
		Analysis:    analysis,
		Decision:    decision,
		Recommended: s.registry.Recommend(req.Query),
	})
}

type workerView struct {
	domain.Worker
	Status domain.WorkerStatus `json:"status"`
}

func (s *Server) handleWorkers(w http.ResponseWriter, r *http.Request) {
	workers := s.registry.List()
	out := make([]workerView, 0, len(workers))
	for _, wk := range workers {
		st, _ := s.registry.Status(wk.Name)
		out = append(out, workerView{Worker: wk, Status: st})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"workers": out,
		"live":    s.registry.Available(),
	})
}

func (s *Server) handleWorker(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	wk, ok := s.registry.Lookup(name)
	if !ok {
		writeError(w, r, domain.Errorf(domain.ErrNotFound, "worker %q", name), nil)
		return
	}
	st, _ := s.registry.Status(name)
	writeJSON(w, http.StatusOK, workerView{Worker: wk, Status: st})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.agg.Snapshot())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.agg.Stats())
}

// decode parses and validates a JSON request body.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return domain.Errorf(domain.ErrInvalidArgument, "decode body: %v", err)
	}
	if err := s.validate.Struct(v); err != nil {
		return domain.Errorf(domain.ErrInvalidArgument, "validate body: %v", err)
	}
	return nil
}
