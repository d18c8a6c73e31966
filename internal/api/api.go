// Package api exposes the feedback backend over HTTP. Handlers stay
// thin: validation and persistence rules live in the storage layer, and
// the sentiment/categorization agents run out of process.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/civicpulse/civicpulse/internal/storage"
)

const maxBodySize = 1 << 20 // 1MB

// Deps carries everything the handlers need.
type Deps struct {
	Store  *storage.Store
	Logger *slog.Logger
}

// NewHandler builds the API router.
func NewHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Post("/feedback", handleCreateFeedback(deps))
		r.Get("/feedback", handleListFeedback(deps))
		r.Get("/feedback/{id}", handleGetFeedback(deps))
		r.Delete("/feedback/{id}", handleDeleteFeedback(deps))
		r.Get("/summary", handleGetSummary(deps))
		r.Get("/stats", handleGetStats(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleCreateFeedback(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
		defer r.Body.Close()

		var in storage.FeedbackInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		if result := storage.ValidateFeedback(in); !result.IsValid {
			writeJSON(w, http.StatusBadRequest, result)
			return
		}

		fb, err := deps.Store.Feedback.Create(r.Context(), in)
		if err != nil {
			deps.Logger.Error("creating feedback", "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "failed to create feedback")
			return
		}

		writeJSON(w, http.StatusCreated, fb)
	}
}

func handleListFeedback(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := storage.ListQuery{
			Page:  parseIntParam(r, "page", 1, 0),
			Limit: parseIntParam(r, "limit", 20, 100),
		}

		if c := r.URL.Query().Get("category"); c != "" {
			category := storage.Category(c)
			if !category.Valid() {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown category %q", c)
				return
			}
			q.Category = category
		}
		if p := r.URL.Query().Get("processed"); p != "" {
			processed, err := strconv.ParseBool(p)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid processed flag %q", p)
				return
			}
			q.Processed = &processed
		}

		page, err := deps.Store.Feedback.List(r.Context(), q)
		if err != nil {
			deps.Logger.Error("listing feedback", "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list feedback")
			return
		}

		writeJSON(w, http.StatusOK, page)
	}
}

func handleGetFeedback(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		fb, err := deps.Store.Feedback.Get(r.Context(), id)
		if err != nil {
			deps.Logger.Error("getting feedback", "id", id, "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get feedback")
			return
		}
		if fb == nil {
			httpError(w, http.StatusNotFound, "not_found", "feedback not found")
			return
		}

		writeJSON(w, http.StatusOK, fb)
	}
}

func handleDeleteFeedback(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		removed, err := deps.Store.Feedback.Delete(r.Context(), id)
		if err != nil {
			deps.Logger.Error("deleting feedback", "id", id, "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete feedback")
			return
		}
		if !removed {
			httpError(w, http.StatusNotFound, "not_found", "feedback not found")
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func handleGetSummary(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		category := r.URL.Query().Get("category")
		if category != "" && !storage.Category(category).Valid() {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown category %q", category)
			return
		}

		entry, err := deps.Store.Summaries.Get(r.Context(), storage.SummaryKey(category))
		if err != nil {
			deps.Logger.Error("reading summary cache", "category", category, "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "failed to read summary")
			return
		}
		if entry == nil {
			// Summary generation belongs to the summarizer agent; a miss
			// just means it has not run yet (or the entry expired).
			httpError(w, http.StatusNotFound, "not_found", "summary not available")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write(entry.Data)
	}
}

func handleGetStats(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := deps.Store.Feedback.Stats(r.Context())
		if err != nil {
			deps.Logger.Error("computing stats", "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "failed to compute stats")
			return
		}

		writeJSON(w, http.StatusOK, stats)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
