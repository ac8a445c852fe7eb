package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/DeafMist/event-radar/internal/config"
	"github.com/DeafMist/event-radar/internal/logger"
	"github.com/DeafMist/event-radar/internal/models"
	"github.com/DeafMist/event-radar/internal/storage"
)

type groupStore interface {
	Ping(ctx context.Context) error
	Status(ctx context.Context) (models.GroupingStatus, error)
	ListGroups(ctx context.Context, limit int) ([]models.GroupSummary, error)
	SearchGroups(ctx context.Context, term string, limit int) ([]models.GroupSummary, error)
	FetchGroup(ctx context.Context, groupID int64) ([]models.Article, error)
	ResetAllGroups(ctx context.Context) error
}

func main() {
	log := logger.New("api")
	cfg, err := config.LoadAPI()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	store, err := storage.OpenWithRetry(ctx, cfg.Common, log, 10)
	if err != nil {
		log.Error("open storage", slog.Any("err", err))
		os.Exit(1)
	}
	defer store.Close()

	srv := &server{log: log, cfg: cfg, store: store}

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	go func() {
		log.Info("api server starting",
			slog.String("addr", cfg.BindAddr),
			slog.String("backend", cfg.StorageBackend),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", slog.Any("err", err))
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", slog.Any("err", err))
	}
}

type server struct {
	log   *slog.Logger
	cfg   *config.API
	store groupStore
}

type errorResponse struct {
	Error string `json:"error"`
}

type groupResponse struct {
	GroupID  int64            `json:"group_id"`
	Articles []models.Article `json:"articles"`
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Get("/groups", s.handleGroups)
	r.Get("/groups/{id}", s.handleGroup)
	r.Post("/admin/reset", s.handleReset)
	return r
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	st, err := s.store.Status(ctx)
	if err != nil {
		s.internalError(w, "status", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *server) handleGroups(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	limit := clampInt(r.URL.Query().Get("limit"), s.cfg.DefaultPage, s.cfg.MaxPage)
	query := strings.TrimSpace(r.URL.Query().Get("q"))

	var (
		groups []models.GroupSummary
		err    error
	)
	if query != "" {
		groups, err = s.store.SearchGroups(ctx, query, limit)
	} else {
		groups, err = s.store.ListGroups(ctx, limit)
	}
	if err != nil {
		s.internalError(w, "list groups", err)
		return
	}
	if groups == nil {
		groups = []models.GroupSummary{}
	}
	writeJSON(w, http.StatusOK, groups)
}

func (s *server) handleGroup(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "group id must be a positive integer"})
		return
	}

	articles, err := s.store.FetchGroup(ctx, id)
	if err != nil {
		s.internalError(w, "fetch group", err)
		return
	}
	if len(articles) == 0 {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "group not found"})
		return
	}
	writeJSON(w, http.StatusOK, groupResponse{GroupID: id, Articles: articles})
}

func (s *server) handleReset(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.AllowReset {
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "reset is disabled"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	if err := s.store.ResetAllGroups(ctx); err != nil {
		s.internalError(w, "reset groups", err)
		return
	}
	s.log.Warn("event groups reset via api", slog.String("request_id", middleware.GetReqID(r.Context())))
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (s *server) internalError(w http.ResponseWriter, op string, err error) {
	s.log.Error(op, slog.Any("err", err))
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
}

func clampInt(raw string, fallback, max int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	if value <= 0 {
		return fallback
	}
	if value > max {
		return max
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		// nothing better to do
	}
}
