// Package devserver serves the challenge backend contract from local
// challenge files and a local Python interpreter, for offline play and tests.
package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"codedojo/internal/catalog"
	"codedojo/internal/grading"
	"codedojo/internal/telemetry"
)

// Source is a catalog that can also resolve a challenge from its
// instructions text, which is all the generation endpoints receive.
type Source interface {
	catalog.Catalog
	FindByInstructions(ctx context.Context, instructions string) (catalog.Challenge, error)
}

type Config struct {
	Catalog Source
	Runner  grading.Runner
	Logger  *telemetry.Logger
	Metrics *telemetry.Metrics
	// SecretName halts a run when the submitted code mentions it.
	SecretName string
}

type Server struct {
	catalog Source
	runner  grading.Runner
	log     *telemetry.Logger
	metrics *telemetry.Metrics
	secret  string
}

func New(cfg Config) *Server {
	secret := cfg.SecretName
	if secret == "" {
		secret = "GEMINI_API_KEY"
	}
	return &Server{
		catalog: cfg.Catalog,
		runner:  cfg.Runner,
		log:     cfg.Logger,
		metrics: cfg.Metrics,
		secret:  secret,
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	r.Use(s.requestLog)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.health)
		r.Get("/challenges", s.listChallenges)
		r.Get("/challenges/{id}", s.getChallenge)
		r.Post("/run-python", s.runPython)
		r.Post("/generate-hint", s.generateHint)
		r.Post("/generate-code", s.generateCode)
		r.Post("/generate-explanation", s.generateExplanation)
		r.Post("/generate-retire-explanation", s.generateRetireExplanation)
	})
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}
	return r
}

// ListenAndServe serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.log.Info("devserver.listening", map[string]any{"addr": ln.Addr().String()})

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("devserver.request", map[string]any{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start).String(),
			"request_id": chiMiddleware.GetReqID(r.Context()),
		})
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"detail": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	return dec.Decode(v)
}
