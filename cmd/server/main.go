package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dreamup/visionclick/internal/agent"
	"github.com/dreamup/visionclick/internal/db"
	"github.com/dreamup/visionclick/internal/observability"
	"github.com/dreamup/visionclick/internal/reporter"
	"go.uber.org/zap"
)

const (
	version = "0.1.0"

	// maxRequestBytes bounds uploaded screenshots
	maxRequestBytes = 25 << 20
)

// LocateRequest represents a locate submission
type LocateRequest struct {
	Target string `json:"target"`
	// Image is the base64 encoded screenshot
	Image string `json:"image"`
	Model string `json:"model,omitempty"`
}

// LocateResponse represents the locate result
type LocateResponse struct {
	RunID  string `json:"runId"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Raw    string `json:"raw"`
	Model  string `json:"model"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// ErrorResponse is returned for failed requests
type ErrorResponse struct {
	Error    string              `json:"error"`
	Category agent.ErrorCategory `json:"category,omitempty"`
	Raw      string              `json:"raw,omitempty"`
	RunID    string              `json:"runId,omitempty"`
}

// Server manages the API and resolution requests
type Server struct {
	resolverCfg agent.ResolverConfig
	history     *db.Database
	logger      *zap.Logger
}

// NewServer creates a server; history may be nil
func NewServer(resolverCfg agent.ResolverConfig, history *db.Database, logger *zap.Logger) *Server {
	return &Server{
		resolverCfg: resolverCfg,
		history:     history,
		logger:      logger.Named("server"),
	}
}

// Routes returns the HTTP handler with all endpoints
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.corsMiddleware(s.handleHealth))
	mux.HandleFunc("/api/locate", s.corsMiddleware(s.handleLocate))
	mux.HandleFunc("/api/runs", s.corsMiddleware(s.handleRunList))
	mux.HandleFunc("/api/runs/", s.corsMiddleware(s.handleRun))
	return mux
}

// CORS middleware
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

// Health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"version": version,
		"time":    time.Now(),
	})
}

// Resolve a target against an uploaded screenshot. No pointer action is taken.
func (s *Server) handleLocate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req LocateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request: %v", err), http.StatusBadRequest)
		return
	}

	image, err := base64.StdEncoding.DecodeString(req.Image)
	if err != nil {
		http.Error(w, "image must be base64 encoded", http.StatusBadRequest)
		return
	}

	resolverCfg := s.resolverCfg
	if req.Model != "" {
		resolverCfg.Model = req.Model
	}

	builder := reporter.NewReportBuilder(req.Target)
	builder.AddMetadata("source", "api")

	result, err := s.locate(r.Context(), resolverCfg, req.Target, image)
	builder.SetResult(result)
	if err != nil {
		builder.SetError(err)
	}
	report := builder.Build()
	s.record(report)

	if err != nil {
		s.logger.Warn("Locate failed", zap.String("run_id", report.ReportID), zap.Error(err))
		writeJSON(w, statusFor(err), ErrorResponse{
			Error:    err.Error(),
			Category: agent.CategoryOf(err),
			Raw:      report.RawResponse,
			RunID:    report.ReportID,
		})
		return
	}

	coord := result.Coordinate()
	writeJSON(w, http.StatusOK, LocateResponse{
		RunID:  report.ReportID,
		X:      coord.X,
		Y:      coord.Y,
		Raw:    result.Resolution.Raw,
		Model:  result.Resolution.Model,
		Width:  result.Screenshot.Width,
		Height: result.Screenshot.Height,
	})
}

func (s *Server) locate(ctx context.Context, resolverCfg agent.ResolverConfig, target string, image []byte) (*agent.LocateResult, error) {
	resolver, err := agent.NewVisionResolver(resolverCfg, s.logger)
	if err != nil {
		return nil, err
	}
	preparer := agent.NewImagePreparer(nil, s.logger)
	return agent.NewLocator(preparer, resolver, s.logger).LocateImage(ctx, target, image)
}

// List recorded runs
func (s *Server) handleRunList(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		http.Error(w, "Run history disabled", http.StatusNotFound)
		return
	}

	q := r.URL.Query()
	limit := queryInt(q.Get("limit"), 50)
	offset := queryInt(q.Get("offset"), 0)

	runs, err := s.history.ListRuns(q.Get("status"), limit, offset)
	if err != nil {
		s.logger.Error("Failed to list runs", zap.Error(err))
		http.Error(w, "Failed to list runs", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []db.RunRecord{}
	}

	writeJSON(w, http.StatusOK, runs)
}

// Get a single run
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		http.Error(w, "Run history disabled", http.StatusNotFound)
		return
	}

	runID := r.URL.Path[len("/api/runs/"):]
	if runID == "" {
		s.handleRunList(w, r)
		return
	}

	run, err := s.history.GetRun(runID)
	if err != nil {
		s.logger.Error("Failed to get run", zap.String("run_id", runID), zap.Error(err))
		http.Error(w, "Failed to get run", http.StatusInternalServerError)
		return
	}
	if run == nil {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, run)
}

func (s *Server) record(report *reporter.Report) {
	if s.history == nil {
		return
	}
	if err := s.history.CreateRun(report.RunRecord()); err != nil {
		s.logger.Warn("Failed to record run", zap.String("run_id", report.ReportID), zap.Error(err))
	}
}

// statusFor maps error categories to HTTP status codes
func statusFor(err error) int {
	switch agent.CategoryOf(err) {
	case agent.ErrorCategoryConfig, agent.ErrorCategoryCapture:
		return http.StatusBadRequest
	case agent.ErrorCategoryParse:
		return http.StatusUnprocessableEntity
	case agent.ErrorCategoryLLM:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func queryInt(v string, def int) int {
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func main() {
	logger := observability.NewLogger(observability.LoggerConfig{
		Level:   os.Getenv("LOG_LEVEL"),
		Format:  "json",
		LogFile: os.Getenv("LOG_FILE"),
	})
	defer logger.Sync()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	resolverCfg := agent.ResolverConfig{
		APIKey:  os.Getenv("OPENAI_API_KEY"),
		Model:   os.Getenv("VISION_MODEL"),
		BaseURL: os.Getenv("OPENAI_BASE_URL"),
	}
	if resolverCfg.APIKey == "" {
		logger.Fatal("OPENAI_API_KEY not set")
	}

	var history *db.Database
	if path := os.Getenv("HISTORY_DB"); path != "" {
		var err error
		history, err = db.New(path)
		if err != nil {
			logger.Fatal("Failed to open history database", zap.Error(err))
		}
		defer history.Close()
	}

	server := NewServer(resolverCfg, history, logger)

	// No write timeout: the vision call is a single blocking round trip
	srv := &http.Server{
		Addr:        ":" + port,
		Handler:     server.Routes(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info("visionclick API server listening",
			zap.String("version", version), zap.String("addr", "http://localhost:"+port))

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server error", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server shutdown failed", zap.Error(err))
	}

	logger.Info("Server stopped")
}
