// Package server exposes the ledger, the manual review queue and invoice
// ingestion over a JSON HTTP API.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/farm-ledger/internal/model"
	"github.com/sells-group/farm-ledger/internal/review"
	"github.com/sells-group/farm-ledger/internal/store"
)

// maxUploadBytes caps a single invoice upload.
const maxUploadBytes = 32 << 20

// Processor runs invoices through ingestion. *pipeline.Pipeline satisfies it.
type Processor interface {
	ProcessFile(ctx context.Context, path string) model.Outcome
	ProcessBatch(ctx context.Context, dir string) (*model.Summary, error)
}

// Reviewer resolves manual review items. *review.Service satisfies it.
type Reviewer interface {
	Open(ctx context.Context) ([]model.ReviewQueueItem, error)
	Resolve(ctx context.Context, req review.Request) (*review.Result, error)
}

// Config holds the server's dependencies.
type Config struct {
	Store       store.Store
	Processor   Processor
	Reviewer    Reviewer
	InvoicesDir string
	CORSOrigins []string
}

// Server serves the ledger API. Ingestion requests run one at a time.
type Server struct {
	store       store.Store
	processor   Processor
	reviewer    Reviewer
	invoicesDir string

	ingestMu sync.Mutex
	router   chi.Router
}

// New creates a Server and registers its routes.
func New(cfg Config) *Server {
	s := &Server{
		store:       cfg.Store,
		processor:   cfg.Processor,
		reviewer:    cfg.Reviewer,
		invoicesDir: cfg.InvoicesDir,
	}

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/summary", s.handleSummary)
		r.Get("/farms", s.handleFarms)
		r.Get("/farms/{farmID}", s.handleFarmDetail)
		r.Get("/farm-totals", s.handleFarmTotals)
		r.Get("/transactions", s.handleTransactions)
		r.Get("/transactions/{id}", s.handleTransactionDetail)
		r.Get("/manual-review", s.handleReviewQueue)
		r.Post("/manual-review/{id}", s.handleReviewResolve)
		r.Get("/invoices", s.handleInvoices)
		r.Post("/invoices/upload", s.handleUpload)
		r.Post("/invoices/process", s.handleProcessOne)
		r.Post("/invoices/process-all", s.handleProcessAll)
		r.Get("/parse-failures", s.handleParseFailures)
	})

	s.router = r
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on port until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("server: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx) //nolint:errcheck
	}()

	zap.L().Info("server: listening", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "server: listen")
	}
	return nil
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("server: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("server: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
