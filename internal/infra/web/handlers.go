package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"scanguard/internal/domain"
	"scanguard/internal/domain/model"

	"github.com/go-chi/chi/v5"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the domain error taxonomy onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrForbidden):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, domain.ErrRateLimited):
		http.Error(w, err.Error(), http.StatusTooManyRequests)
	case errors.Is(err, domain.ErrInsufficientSamples):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// statsHandler consolidates feedback statistics with queue depths.
func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats, err := s.feedbackUC.Stats(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("stats query failed")
		writeError(w, err)
		return
	}
	depths, err := s.queue.Depths(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("queue depths query failed")
		writeError(w, err)
		return
	}

	response := struct {
		Feedback    *model.FeedbackStats  `json:"feedback"`
		QueueDepths map[model.JobKind]int `json:"queue_depths"`
	}{
		Feedback:    stats,
		QueueDepths: depths,
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) trendHandler(w http.ResponseWriter, r *http.Request) {
	hours, _ := strconv.Atoi(r.URL.Query().Get("hours"))
	if hours <= 0 || hours > 24*30 {
		hours = 24
	}
	bucketMin, _ := strconv.Atoi(r.URL.Query().Get("bucket_minutes"))
	if bucketMin <= 0 {
		bucketMin = 60
	}

	since := time.Now().Add(-time.Duration(hours) * time.Hour)
	points := s.scanUC.Trend(r.Context(), since, time.Duration(bucketMin)*time.Minute)
	writeJSON(w, http.StatusOK, points)
}

func (s *Server) feedbackPendingHandler(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	items, err := s.feedbackUC.ListPending(r.Context(), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

type reviewRequest struct {
	Approve  bool   `json:"approve"`
	Reviewer string `json:"reviewer"`
	Notes    string `json:"notes"`
}

func (s *Server) feedbackReviewHandler(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	fb, err := s.feedbackUC.Review(r.Context(), chi.URLParam(r, "id"), req.Reviewer, req.Approve, req.Notes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fb)
}

func (s *Server) feedbackExportHandler(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")

	var since *time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "Invalid since timestamp, want RFC3339", http.StatusBadRequest)
			return
		}
		since = &t
	}

	res, err := s.feedbackUC.Export(r.Context(), format, since)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("X-Batch-Id", res.BatchID)
	w.Header().Set("X-Sample-Count", strconv.Itoa(res.Count))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Body)
}

func (s *Server) modelsListHandler(w http.ResponseWriter, r *http.Request) {
	versions, err := s.modelUC.List(r.Context(), r.URL.Query().Get("type"))
	if err != nil {
		writeError(w, err)
		return
	}
	if versions == nil {
		versions = []*model.ModelVersion{}
	}
	writeJSON(w, http.StatusOK, versions)
}

func (s *Server) modelPromoteHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.modelUC.Promote(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deployed", "id": id})
}

type rollbackRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) modelRollbackHandler(w http.ResponseWriter, r *http.Request) {
	var req rollbackRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	id := chi.URLParam(r, "id")
	if err := s.modelUC.Rollback(r.Context(), id, req.Reason); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "rolled_back", "id": id})
}
