package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"mime"
	"net/http"
	"net/url"
	"runtime/debug"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/matthewgall/shelfscrape/internal/auth"
	"github.com/matthewgall/shelfscrape/internal/config"
	"github.com/matthewgall/shelfscrape/internal/fetcher"
	"github.com/matthewgall/shelfscrape/internal/matcher"
	"github.com/matthewgall/shelfscrape/internal/models"
	"github.com/matthewgall/shelfscrape/internal/pipeline"
	"github.com/matthewgall/shelfscrape/internal/relaxjson"
	"github.com/matthewgall/shelfscrape/internal/search"
)

// History lists recorded runs. *db.DB satisfies it.
type History interface {
	ListExtractions(ctx context.Context, limit int) ([]models.Extraction, error)
}

// Services are the components the API exposes. History may be nil when run
// history is disabled.
type Services struct {
	Pipeline *pipeline.Pipeline
	History  History
	Search   *search.Client
	Matcher  *matcher.Matcher
}

type Server struct {
	config   *config.Config
	auth     *auth.AuthService
	pipeline *pipeline.Pipeline
	history  History
	search   *search.Client
	matcher  *matcher.Matcher
	router   *chi.Mux
}

type contextKey string

const claimsContextKey contextKey = "claims"

const defaultMaxBodyBytes = 10 << 20

func New(cfg *config.Config, svc Services) *Server {
	s := &Server{
		config:   cfg,
		auth:     auth.NewAuthService(cfg.Auth.TokenSecret),
		pipeline: svc.Pipeline,
		history:  svc.History,
		search:   svc.Search,
		matcher:  svc.Matcher,
		router:   chi.NewRouter(),
	}
	if s.pipeline == nil {
		s.pipeline = pipeline.New(pipeline.Options{RunKeys: true})
	}
	if s.search == nil {
		s.search = search.New(search.Options{BaseURL: cfg.Search.BaseURL})
	}
	if s.matcher == nil {
		s.matcher = matcher.New(matcher.Options{Model: cfg.LLM.Model, Site: cfg.Search.Site})
	}
	if !s.auth.Enabled() {
		log.Printf("Warning: auth.token_secret is not set, the API is unauthenticated and /api/extract only fetches allowed hosts")
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(s.recoverMiddleware)
	s.router.Use(s.securityHeadersMiddleware)
	s.router.Use(s.authMiddleware)
	s.router.Use(s.maxBodyMiddleware)
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/parse", s.handleParse)
		r.Post("/extract", s.handleExtract)
		r.Get("/extractions", s.handleListExtractions)
		r.Post("/match", s.handleMatch)
	})

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, "not_found", "")
	})
	s.router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
	})
}

func (s *Server) securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) maxBodyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isSafeMethod(r.Method) || r.Body == nil {
			next.ServeHTTP(w, r)
			return
		}
		limit := s.config.Server.MaxBodySize
		if limit <= 0 {
			limit = defaultMaxBodyBytes
		}
		if r.ContentLength > limit {
			respondError(w, http.StatusRequestEntityTooLarge, "request_too_large", "")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, limit)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.auth.Enabled() || !strings.HasPrefix(r.URL.Path, "/api") {
			next.ServeHTTP(w, r)
			return
		}

		token := auth.BearerToken(r)
		if token == "" {
			respondError(w, http.StatusUnauthorized, "unauthorized", "")
			return
		}
		claims, err := s.auth.ValidateToken(token)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "unauthorized", "")
			return
		}

		ctx := context.WithValue(r.Context(), claimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("panic: %v\n%s", err, debug.Stack())
				respondError(w, http.StatusInternalServerError, "internal_server_error", "")
			}
		}()

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"history": s.history != nil,
		"model":   s.matcher.UsesModel(),
	})
}

type parseRequest struct {
	Raw string `json:"raw"`
}

// handleParse accepts either {"raw": "..."} or the page text as the body.
func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	var raw string
	if isJSON(r) {
		var req parseRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid_json", err.Error())
			return
		}
		raw = req.Raw
	} else {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			respondBodyError(w, err)
			return
		}
		raw = string(data)
	}
	if strings.TrimSpace(raw) == "" {
		respondError(w, http.StatusBadRequest, "empty_input", "")
		return
	}

	result, err := s.pipeline.Parse(raw)
	if err != nil {
		respondPipelineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

type extractRequest struct {
	URL string `json:"url"`
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			respondError(w, http.StatusBadRequest, "invalid_json", err.Error())
			return
		}
	}
	target := strings.TrimSpace(req.URL)
	if target == "" {
		target = s.config.Fetch.URL
	}
	parsed, err := url.Parse(target)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		respondError(w, http.StatusBadRequest, "invalid_url", "url must be http or https")
		return
	}
	if !s.auth.Enabled() && !s.hostAllowed(parsed.Hostname()) {
		respondError(w, http.StatusForbidden, "host_not_allowed", parsed.Hostname())
		return
	}

	if claims, ok := currentClaims(r); ok {
		log.Printf("extract %s requested by %s", target, claims.Subject)
	}
	result, err := s.pipeline.ExtractURL(r.Context(), target)
	if err != nil {
		respondPipelineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// hostAllowed reports whether an unauthenticated caller may fetch host.
// The configured allow-list wins; without one only the host of the
// configured page URL is allowed.
func (s *Server) hostAllowed(host string) bool {
	allowed := s.config.Fetch.AllowedHosts
	if len(allowed) == 0 {
		if parsed, err := url.Parse(s.config.Fetch.URL); err == nil && parsed.Hostname() != "" {
			allowed = []string{parsed.Hostname()}
		}
	}
	for _, candidate := range allowed {
		if strings.EqualFold(candidate, host) {
			return true
		}
	}
	return false
}

func (s *Server) handleListExtractions(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		respondError(w, http.StatusServiceUnavailable, "history_disabled", "")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "")
			return
		}
		limit = parsed
	}

	runs, err := s.history.ListExtractions(r.Context(), limit)
	if err != nil {
		log.Printf("list extractions: %v", err)
		respondError(w, http.StatusInternalServerError, "history_failed", "")
		return
	}
	if runs == nil {
		runs = []models.Extraction{}
	}
	respondJSON(w, http.StatusOK, runs)
}

type matchRequest struct {
	Product string `json:"product"`
	Site    string `json:"site"`
	Max     int    `json:"max"`
}

type matchResponse struct {
	Query    string            `json:"query"`
	Results  []search.Result   `json:"results"`
	Decision *matcher.Decision `json:"decision"`
}

func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	var req matchRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			respondError(w, http.StatusBadRequest, "invalid_json", err.Error())
			return
		}
	}
	if strings.TrimSpace(req.Product) == "" {
		req.Product = s.config.Search.Product
	}
	if strings.TrimSpace(req.Site) == "" {
		req.Site = s.config.Search.Site
	}
	if req.Max <= 0 {
		req.Max = s.config.Search.MaxResults
	}

	query := search.Query(req.Site, req.Product)
	results, err := s.search.Text(r.Context(), query, req.Max)
	if err != nil {
		log.Printf("search %q: %v", query, err)
		respondError(w, http.StatusBadGateway, "search_failed", err.Error())
		return
	}

	resp := matchResponse{Query: query, Results: results}
	if resp.Results == nil {
		resp.Results = []search.Result{}
	}
	decision, err := s.matcher.Match(r.Context(), req.Product, results)
	switch {
	case errors.Is(err, matcher.ErrNoResults):
	case err != nil:
		log.Printf("match %q: %v", req.Product, err)
		respondError(w, http.StatusBadGateway, "match_failed", err.Error())
		return
	default:
		resp.Decision = decision
	}
	respondJSON(w, http.StatusOK, resp)
}

func currentClaims(r *http.Request) (*auth.Claims, bool) {
	claims, ok := r.Context().Value(claimsContextKey).(*auth.Claims)
	return claims, ok
}

func respondPipelineError(w http.ResponseWriter, err error) {
	var malformed *relaxjson.MalformedDataError
	var status *fetcher.StatusError
	switch {
	case errors.As(err, &malformed):
		respondJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error":             "malformed_data",
			"message":           err.Error(),
			"artifact_location": malformed.ArtifactLocation,
		})
	case errors.Is(err, relaxjson.ErrAnchorNotFound):
		respondError(w, http.StatusUnprocessableEntity, "anchor_not_found", err.Error())
	case errors.Is(err, models.ErrResourceNotFound):
		respondError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.As(err, &status):
		respondError(w, http.StatusBadGateway, "fetch_failed", err.Error())
	default:
		log.Printf("pipeline: %v", err)
		respondError(w, http.StatusInternalServerError, "extraction_failed", err.Error())
	}
}

func respondBodyError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		respondError(w, http.StatusRequestEntityTooLarge, "request_too_large", "")
		return
	}
	respondError(w, http.StatusBadRequest, "invalid_body", err.Error())
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	payload := map[string]string{"error": code}
	if message != "" {
		payload["message"] = message
	}
	respondJSON(w, status, payload)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		log.Printf("encode json response: %v", err)
	}
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	default:
		return false
	}
}

func isJSON(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/json"
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
