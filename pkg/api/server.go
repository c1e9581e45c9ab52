package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/weftlabs/substrate/pkg/auth"
	"github.com/weftlabs/substrate/pkg/governance"
	"github.com/weftlabs/substrate/pkg/proposals"
	"github.com/weftlabs/substrate/pkg/timeline"
	"github.com/weftlabs/substrate/pkg/validator"
)

// Server holds the HTTP surface over the governed substrate.
type Server struct {
	manager     *proposals.Manager
	resolver    *governance.Resolver
	settings    governance.SettingsStore
	timeline    timeline.Store
	advisor     *governance.HybridAdvisor
	validator   *validator.Client
	logger      *slog.Logger
	version     string
	corsOrigins []string
}

// Options carries the collaborators the server routes requests to.
type Options struct {
	Manager     *proposals.Manager
	Resolver    *governance.Resolver
	Settings    governance.SettingsStore
	Timeline    timeline.Store
	Advisor     *governance.HybridAdvisor
	Validator   *validator.Client
	Logger      *slog.Logger
	Version     string
	CORSOrigins []string
}

// NewServer creates the API server.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		manager:     opts.Manager,
		resolver:    opts.Resolver,
		settings:    opts.Settings,
		timeline:    opts.Timeline,
		advisor:     opts.Advisor,
		validator:   opts.Validator,
		logger:      logger,
		version:     opts.Version,
		corsOrigins: opts.CORSOrigins,
	}
}

// Routes assembles the full handler chain: request id, CORS, auth,
// rate limiting, then idempotent replay around the route mux.
func (s *Server) Routes(jwt *auth.JWTValidator, limits auth.LimiterConfig) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /readiness", s.handleHealth)
	mux.HandleFunc("GET /version", s.handleVersion)

	mux.HandleFunc("POST /api/v1/baskets/{id}/work", s.handleWork)
	mux.HandleFunc("POST /api/v1/baskets/{id}/proposals", s.handleCreateProposal)
	mux.HandleFunc("GET /api/v1/baskets/{id}/proposals", s.handleListProposals)
	mux.HandleFunc("POST /api/v1/proposals/{id}/approve", s.handleApprove)
	mux.HandleFunc("POST /api/v1/proposals/{id}/reject", s.handleReject)
	mux.HandleFunc("POST /api/v1/proposals/{id}/validate", s.handleValidate)
	mux.HandleFunc("GET /api/v1/baskets/{id}/timeline", s.handleTimeline)
	mux.HandleFunc("GET /api/v1/workspaces/{id}/governance", s.handleGetSettings)
	mux.HandleFunc("PUT /api/v1/workspaces/{id}/governance", s.handlePutSettings)

	var handler http.Handler = mux
	handler = IdempotencyMiddleware(NewReplayCache(24 * time.Hour))(handler)
	handler = auth.RateLimitMiddleware(limits)(handler)
	handler = auth.NewMiddleware(jwt)(handler)
	handler = auth.CORSMiddleware(s.corsOrigins)(handler)
	handler = auth.RequestIDMiddleware(handler)
	return handler
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"version": s.version})
}
