package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/0xPuncker/batch-registry/pkg/utils"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

type ServerOptions struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// NewRouter wires every route plus the /metrics endpoint served from gatherer.
func NewRouter(handler *Handler, gatherer prometheus.Gatherer) *mux.Router {
	router := mux.NewRouter()

	router.Use(loggingMiddleware(handler.logger))
	router.Use(corsMiddleware)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/health", handler.HealthCheck).Methods(http.MethodGet)

	api.HandleFunc("/applications", handler.RegisterApplication).Methods(http.MethodPost)
	api.HandleFunc("/applications", handler.ListApplications).Methods(http.MethodGet)
	api.HandleFunc("/applications", handler.ClearApplications).Methods(http.MethodDelete)
	api.HandleFunc("/applications/id", handler.GetApplicationID).Methods(http.MethodGet)
	api.HandleFunc("/applications/{id}", handler.GetApplication).Methods(http.MethodGet)
	api.HandleFunc("/applications/{id}", handler.DeleteApplication).Methods(http.MethodDelete)

	api.HandleFunc("/job-configurations", handler.ListJobConfigurations).Methods(http.MethodGet)
	api.HandleFunc("/job-configurations", handler.CreateJobConfiguration).Methods(http.MethodPost)
	api.HandleFunc("/job-configurations/{id}", handler.GetJobConfiguration).Methods(http.MethodGet)
	api.HandleFunc("/job-configurations/{id}", handler.UpdateJobConfiguration).Methods(http.MethodPut)
	api.HandleFunc("/job-configurations/{id}", handler.DeleteJobConfiguration).Methods(http.MethodDelete)

	api.HandleFunc("/jobs", handler.ListJobs).Methods(http.MethodGet)
	api.HandleFunc("/schedulers", handler.ListSchedulers).Methods(http.MethodGet)
	api.HandleFunc("/schedulers/{id}/trigger", handler.TriggerScheduler).Methods(http.MethodPost)
	api.HandleFunc("/scheduler/start", handler.StartScheduler).Methods(http.MethodPost)
	api.HandleFunc("/scheduler/stop", handler.StopScheduler).Methods(http.MethodPost)

	if gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	return router
}

// StartServer serves until ctx is cancelled and then shuts down gracefully.
func StartServer(ctx context.Context, handler *Handler, gatherer prometheus.Gatherer, opts ServerOptions) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", opts.Port),
		Handler:      NewRouter(handler, gatherer),
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	return nil
}

func loggingMiddleware(logger *logrus.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := newResponseWriter(w)
			next.ServeHTTP(rw, r)

			logger.WithFields(logrus.Fields{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     rw.status,
				"duration":   utils.FormatDuration(time.Since(start)),
				"user_agent": r.UserAgent(),
				"remote_ip":  r.RemoteAddr,
			}).Info("Request processed")
		})
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{w, http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
