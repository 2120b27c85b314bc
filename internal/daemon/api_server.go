package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"hoist/internal/api"
	"hoist/internal/config"
	"hoist/internal/jobs"
	"hoist/internal/logging"
	"hoist/internal/services"
)

type apiServer struct {
	bind   string
	token  string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}

	srv := &apiServer{
		bind:   bind,
		token:  strings.TrimSpace(cfg.Paths.APIToken),
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", srv.withAuth(srv.handleStatus))
	mux.HandleFunc("/api/jobs", srv.withAuth(srv.handleJobs))
	mux.HandleFunc("/api/jobs/", srv.withAuth(srv.handleJobItem))
	mux.HandleFunc("/api/notify/test", srv.withAuth(srv.handleNotifyTest))
	mux.HandleFunc("/api/webhook/telegram", srv.handleWebhook)
	mux.Handle("/downloads/", http.StripPrefix("/downloads/",
		http.FileServer(http.Dir(d.downloadRoot()))))

	srv.server = &http.Server{
		Handler:           srv.logRequests(mux),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// logRequests tags every request with a short id and records its outcome.
func (s *apiServer) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		s.logger.Debug("request handled",
			logging.String(logging.FieldRequestID, requestID),
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", recorder.status),
			logging.Duration("elapsed", time.Since(start)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// withAuth validates bearer tokens. An empty configured token disables
// authentication.
func (s *apiServer) withAuth(next http.HandlerFunc) http.HandlerFunc {
	if s.token == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != s.token {
			s.writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status := s.daemon.Status(r.Context())
	payload := api.DaemonStatus{
		Running:   status.Running,
		PID:       status.PID,
		Workers:   status.Workflow.Workers,
		JobDBPath: status.JobDBPath,
		LockPath:  status.LockFilePath,
		JobStats:  api.MergeJobStats(status.Workflow.JobStats),
		LastError: status.Workflow.LastError,
	}
	if status.Workflow.LastJob != nil {
		view := api.FromJob(status.Workflow.LastJob)
		payload.LastJob = &view
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *apiServer) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListJobs(w, r)
	case http.MethodPost:
		s.handleCreateJob(w, r)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) handleListJobs(w http.ResponseWriter, r *http.Request) {
	filter, err := parseListFilter(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	views, err := s.daemon.jobSvc.List(r.Context(), filter)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobListResponse{Jobs: views})
}

func parseListFilter(r *http.Request) (jobs.Filter, error) {
	var filter jobs.Filter
	query := r.URL.Query()

	if value := strings.TrimSpace(query.Get("status")); value != "" {
		status, ok := jobs.ParseStatus(value)
		if !ok {
			return jobs.Filter{}, fmt.Errorf("unknown status %q", value)
		}
		filter.Status = &status
	}
	for name, target := range map[string]**bool{"watched": &filter.Watched, "starred": &filter.Starred} {
		value := strings.TrimSpace(query.Get(name))
		if value == "" {
			continue
		}
		switch strings.ToLower(value) {
		case "true", "1":
			enabled := true
			*target = &enabled
		case "false", "0":
			enabled := false
			*target = &enabled
		default:
			return jobs.Filter{}, fmt.Errorf("invalid %s value %q", name, value)
		}
	}
	return filter, nil
}

func (s *apiServer) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var request struct {
		SourceURL string `json:"sourceUrl"`
		ChatID    int64  `json:"chatId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	view, err := s.daemon.jobSvc.Create(r.Context(), request.SourceURL, request.ChatID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, view)
}

// handleJobItem dispatches /api/jobs/{id}, /api/jobs/{id}/flags, and
// /api/jobs/{id}/files.
func (s *apiServer) handleJobItem(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" || strings.Contains(sub, "/") {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}

	switch sub {
	case "":
		switch r.Method {
		case http.MethodGet:
			view, err := s.daemon.jobSvc.Get(r.Context(), id)
			if err != nil {
				s.writeServiceError(w, err)
				return
			}
			s.writeJSON(w, http.StatusOK, view)
		case http.MethodDelete:
			result, err := s.daemon.jobSvc.Remove(r.Context(), id)
			if err != nil {
				s.writeServiceError(w, err)
				return
			}
			s.writeJSON(w, http.StatusOK, result)
		default:
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	case "flags":
		if r.Method != http.MethodPatch {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		var update api.FlagsUpdate
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		view, err := s.daemon.jobSvc.UpdateFlags(r.Context(), id, update)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, view)
	case "files":
		if r.Method != http.MethodGet {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		files, err := s.daemon.jobSvc.ListFiles(r.Context(), id)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, files)
	default:
		s.writeError(w, http.StatusNotFound, "job not found")
	}
}

func (s *apiServer) handleNotifyTest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var request struct {
		ChatID int64 `json:"chatId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sent, detail, err := s.daemon.TestNotification(r.Context(), request.ChatID)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, detail)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"sent": sent, "detail": detail})
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeServiceError(w http.ResponseWriter, err error) {
	s.writeError(w, services.HTTPStatus(err), services.Message(err))
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}
