// Package dashboard serves a small local web UI over the run history, with
// a JSON API for tooling.
package dashboard

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/dorsadeh/wheel/internal/history"
)

//go:embed web/templates/*
var templateFS embed.FS

// Server exposes stored backtest runs over HTTP.
type Server struct {
	router *chi.Mux
	server *http.Server
	store  *history.Store
	logger *logrus.Logger
	addr   string
}

// Config holds dashboard settings.
type Config struct {
	Addr string
}

// NewServer builds the dashboard over a history store.
func NewServer(cfg Config, store *history.Store, logger *logrus.Logger) *Server {
	s := &Server{
		router: chi.NewRouter(),
		store:  store,
		logger: logger,
		addr:   cfg.Addr,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Get("/", s.handleIndex)
	s.router.Get("/api/runs", s.handleListRuns)
	s.router.Get("/api/runs/best", s.handleBestRun)
	s.router.Get("/api/runs/{id}", s.handleGetRun)
	s.router.Get("/api/runs/{id}/equity", s.handleRunEquity)
	s.router.Delete("/api/runs/{id}", s.handleDeleteRun)
	s.router.Get("/health", s.handleHealth)
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start blocks serving HTTP until Shutdown is called.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.WithField("addr", s.addr).Info("Starting dashboard server")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.logger.Info("Shutting down dashboard server")
	return s.server.Shutdown(ctx)
}

// indexData feeds the index template.
type indexData struct {
	Runs       []runView
	Count      int
	LastUpdate time.Time
}

// runView is a display-ready row for the index table.
type runView struct {
	ID          string
	ShortID     string
	Ticker      string
	Window      string
	FinalEquity string
	Return      string
	Gained      bool
	Sharpe      string
	MaxDrawdown string
	WinRate     string
	PutsSold    int
	CallsSold   int
	FinalState  string
}

func newRunView(rec history.Record) runView {
	return runView{
		ID:          rec.ID,
		ShortID:     rec.ID[:min(8, len(rec.ID))],
		Ticker:      rec.Ticker,
		Window:      rec.Start.Format("2006-01-02") + " to " + rec.End.Format("2006-01-02"),
		FinalEquity: fmt.Sprintf("%.2f", rec.FinalEquity),
		Return:      fmt.Sprintf("%.2f%%", rec.TotalReturn*100),
		Gained:      rec.TotalReturn >= 0,
		Sharpe:      fmt.Sprintf("%.2f", rec.SharpeRatio),
		MaxDrawdown: fmt.Sprintf("%.2f%%", rec.MaxDrawdown*100),
		WinRate:     fmt.Sprintf("%.0f%%", rec.WinRate*100),
		PutsSold:    rec.PutsSold,
		CallsSold:   rec.CallsSold,
		FinalState:  rec.FinalState,
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	tmpl, err := template.ParseFS(templateFS, "web/templates/index.html")
	if err != nil {
		s.logger.WithError(err).Error("Failed to parse index template")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	runs, err := s.store.List(50)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list runs")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	views := make([]runView, 0, len(runs))
	for _, rec := range runs {
		views = append(views, newRunView(rec))
	}
	data := indexData{Runs: views, Count: len(views), LastUpdate: time.Now()}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		s.logger.WithError(err).Error("Failed to execute index template")
	}
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	var (
		runs []history.Record
		err  error
	)
	if ticker := r.URL.Query().Get("ticker"); ticker != "" {
		runs, err = s.store.ListByTicker(ticker, 100)
	} else {
		runs, err = s.store.List(100)
	}
	if err != nil {
		s.logger.WithError(err).Error("Failed to list runs")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []history.Record{}
	}
	s.writeJSON(w, runs)
}

func (s *Server) handleBestRun(w http.ResponseWriter, r *http.Request) {
	metric := r.URL.Query().Get("metric")
	ticker := r.URL.Query().Get("ticker")
	best, err := s.store.Best(metric, ticker)
	if err != nil {
		if errors.Is(err, history.ErrRunNotFound) {
			http.Error(w, "no runs recorded", http.StatusNotFound)
			return
		}
		if errors.Is(err, history.ErrUnknownMetric) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.logger.WithError(err).Error("Failed to find best run")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, best)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, res, err := s.store.Get(id)
	if err != nil {
		if errors.Is(err, history.ErrRunNotFound) {
			http.Error(w, "run not found", http.StatusNotFound)
			return
		}
		s.logger.WithError(err).WithField("run_id", id).Error("Failed to load run")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, map[string]any{"record": rec, "result": res})
}

func (s *Server) handleRunEquity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	_, res, err := s.store.Get(id)
	if err != nil {
		if errors.Is(err, history.ErrRunNotFound) {
			http.Error(w, "run not found", http.StatusNotFound)
			return
		}
		s.logger.WithError(err).WithField("run_id", id).Error("Failed to load run")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, res.Equity)
}

func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.Delete(id); err != nil {
		if errors.Is(err, history.ErrRunNotFound) {
			http.Error(w, "run not found", http.StatusNotFound)
			return
		}
		s.logger.WithError(err).WithField("run_id", id).Error("Failed to delete run")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}
