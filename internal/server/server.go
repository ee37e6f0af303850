package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bundlesmith/bundlesmith/internal/config"
	"github.com/bundlesmith/bundlesmith/internal/logging"
	"github.com/bundlesmith/bundlesmith/internal/service"
)

// Server exposes pipeline statuses and a trigger endpoint over HTTP.
type Server struct {
	config  *config.Service
	service *service.Service
	log     *logging.Logger
}

func New() *Server {
	return &Server{log: logging.NewLogger(logging.Config{})}
}

func (s *Server) WithConfig(config *config.Service) *Server {
	s.config = config
	return s
}

func (s *Server) WithService(svc *service.Service) *Server {
	s.service = svc
	return s
}

func (s *Server) WithLogger(log *logging.Logger) *Server {
	s.log = log
	return s
}

// Run serves the status API until the context is canceled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()

	s.log.Infof("Listening on %s.", s.config.Addr)

	select {
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) Handler() http.Handler {
	prefix := ""
	if s.config != nil {
		prefix = strings.TrimSuffix(s.config.ApiPrefix, "/")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+prefix+"/health", s.health)
	mux.Handle("GET "+prefix+"/metrics", promhttp.Handler())
	mux.HandleFunc("GET "+prefix+"/v1/pipelines", s.listPipelines)
	mux.HandleFunc("GET "+prefix+"/v1/pipelines/{name}", s.getPipeline)
	mux.HandleFunc("POST "+prefix+"/v1/pipelines/{name}/trigger", s.triggerPipeline)
	return mux
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]any{})
}

// Statuses is the response of the pipeline listing endpoint.
type Statuses struct {
	Result []service.Status `json:"result"`
}

func (s *Server) listPipelines(w http.ResponseWriter, _ *http.Request) {
	jsonResponse(w, http.StatusOK, Statuses{Result: s.service.Statuses()})
}

func (s *Server) getPipeline(w http.ResponseWriter, r *http.Request) {
	status, ok := s.service.Status(r.PathValue("name"))
	if !ok {
		errorResponse(w, http.StatusNotFound, "pipeline not found")
		return
	}

	jsonResponse(w, http.StatusOK, map[string]any{"result": status})
}

func (s *Server) triggerPipeline(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Trigger(r.PathValue("name")); err != nil {
		errorResponse(w, http.StatusNotFound, err.Error())
		return
	}

	jsonResponse(w, http.StatusAccepted, map[string]any{})
}

func jsonResponse(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func errorResponse(w http.ResponseWriter, code int, message string) {
	jsonResponse(w, code, map[string]any{"error": message})
}
