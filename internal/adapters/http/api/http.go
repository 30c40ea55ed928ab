// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/okian/showcase/internal/domain/dedupe"
	"github.com/okian/showcase/internal/domain/model"
	"github.com/okian/showcase/pkg/logger"
	"github.com/okian/showcase/pkg/validate"
)

const (
	defaultHeartbeat = 15 * time.Second
	maxBodyBytes     = 64 << 10
	userIDRule       = "required,notblank,max=64,printascii"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	dedupe.Deduper

	// Enqueue pushes an interaction for async recording. Returns false on backpressure.
	Enqueue(ctx context.Context, ev model.InteractionEvent) bool

	StartSession(ctx context.Context, userID string) (model.Profile, error)
	Profile(ctx context.Context, userID string) (model.Profile, error)
	AddInterests(ctx context.Context, userID string, tags []string) (model.Profile, error)
	ResetProfile(ctx context.Context, userID string) (model.Profile, error)
	Recommendations(ctx context.Context, userID string, limit int) ([]model.RecommendationScore, error)
	Catalog() []model.Item

	// Subscribe streams the profile changes of one user until ctx is done.
	Subscribe(ctx context.Context, userID string) (<-chan model.ProfileChanged, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	deps      Dependencies
	limiter   *rate.Limiter
	logger    logger.Logger
	heartbeat time.Duration

	healthHandler          *HealthHandler
	statsHandler           *StatsHandler
	interactionsHandler    *InteractionsHandler
	profileHandler         *ProfileHandler
	recommendationsHandler *RecommendationsHandler
	catalogHandler         *CatalogHandler
	streamHandler          *StreamHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	s := &Server{
		deps:      deps,
		logger:    logger.Nop(),
		heartbeat: defaultHeartbeat,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.healthHandler = NewHealthHandler()
	s.statsHandler = NewStatsHandler(statsProvider)
	s.interactionsHandler = NewInteractionsHandler(deps)
	s.profileHandler = NewProfileHandler(deps)
	s.recommendationsHandler = NewRecommendationsHandler(deps)
	s.catalogHandler = NewCatalogHandler(deps)
	s.streamHandler = NewStreamHandler(deps, s.heartbeat, s.logger)
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}

	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /metrics", s.healthHandler.HandleMetrics)
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("GET /v1/catalog", MetricsMiddleware(s.catalogHandler.HandleGetCatalog, "catalog"))

	mux.HandleFunc("POST /v1/users/{userID}/interactions",
		MetricsMiddleware(RateLimit(s.limiter, s.interactionsHandler.HandlePostInteraction), "interactions"))
	mux.HandleFunc("POST /v1/users/{userID}/sessions", MetricsMiddleware(s.profileHandler.HandleStartSession, "sessions"))
	mux.HandleFunc("GET /v1/users/{userID}/profile", MetricsMiddleware(s.profileHandler.HandleGetProfile, "profile"))
	mux.HandleFunc("DELETE /v1/users/{userID}/profile", MetricsMiddleware(s.profileHandler.HandleResetProfile, "profile"))
	mux.HandleFunc("PUT /v1/users/{userID}/interests", MetricsMiddleware(s.profileHandler.HandlePutInterests, "interests"))
	mux.HandleFunc("GET /v1/users/{userID}/recommendations",
		MetricsMiddleware(s.recommendationsHandler.HandleGetRecommendations, "recommendations"))
	mux.HandleFunc("GET /v1/users/{userID}/stream", s.streamHandler.HandleStream)
}

// interactionRequest mirrors the OpenAPI schema for POST /v1/users/{userID}/interactions.
type interactionRequest struct {
	EventID string `json:"event_id" validate:"omitempty,max=128"`
	ItemID  string `json:"item_id" validate:"required,notblank,max=128"`
	Action  string `json:"action" validate:"required,oneof=view click favorite"`
	TS      string `json:"ts" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

// interestsRequest mirrors the OpenAPI schema for PUT /v1/users/{userID}/interests.
type interestsRequest struct {
	Interests []string `json:"interests" validate:"required,min=1,max=50,dive,required,notblank,max=64"`
}

type ackResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
	EventID   string `json:"event_id"`
}

type recommendationsResponse struct {
	UserID          string                      `json:"userId"`
	Recommendations []model.RecommendationScore `json:"recommendations"`
}

type catalogResponse struct {
	Items []model.Item `json:"items"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var errUserID = errors.New("userID must be 1 to 64 printable ASCII characters")

// userID extracts and validates the {userID} path segment.
func userID(op string, r *http.Request) (string, error) {
	id := strings.TrimSpace(r.PathValue("userID"))
	if err := validate.Get().Var(id, userIDRule); err != nil {
		return "", WrapKind(op, ErrBadRequest, errUserID)
	}
	return id, nil
}

// decode reads a JSON body into v and validates it.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	return validate.Struct(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
