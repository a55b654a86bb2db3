package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"csvquery-backend/internal/domain"
	"csvquery-backend/internal/llm"
	"csvquery-backend/internal/logging"
	"csvquery-backend/internal/query"
	"csvquery-backend/internal/store"
	"csvquery-backend/internal/upload"
	"csvquery-backend/internal/warehouse"
)

// maxChunkMemory bounds how much of a multipart chunk is buffered in memory
// before spilling to disk.
const maxChunkMemory = 32 << 20

// Handler wires HTTP routes to the upload and query services.
type Handler struct {
	uploads *upload.Service
	queries *query.Service

	reqID atomic.Int64
}

// NewHandler creates a Handler instance.
func NewHandler(uploads *upload.Service, queries *query.Service) *Handler {
	return &Handler{uploads: uploads, queries: queries}
}

// Router returns a configured chi router.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(h.requestLogger)

	r.Get("/healthz", h.handleHealth)
	r.Route("/ingestion", func(r chi.Router) {
		r.Post("/upload-chunk", h.handleUploadChunk)
		r.Get("/datasets/{datasetID}/latest", h.handleLatestVersion)
	})
	r.Route("/query", func(r chi.Router) {
		r.Post("/ask", h.handleAsk)
		r.Get("/history/{datasetID}", h.handleHistory)
	})

	return r
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logging.WithLogger(r.Context(), fmt.Sprintf("req-%d", h.reqID.Add(1)))
		start := time.Now()
		next.ServeHTTP(w, r.WithContext(ctx))
		logging.Infof(ctx, "%s %s completed in %s", r.Method, r.URL.Path, time.Since(start))
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// handleUploadChunk accepts one chunk of a CSV upload as multipart form
// data. The final chunk (index == total-1) triggers version registration
// and asynchronous ingestion.
func (h *Handler) handleUploadChunk(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	datasetID := q.Get("dataset_id")
	userID := q.Get("user_id")
	if datasetID == "" || userID == "" {
		writeError(w, http.StatusBadRequest, "dataset_id and user_id are required")
		return
	}
	chunkIndex, err := strconv.Atoi(q.Get("chunk_index"))
	if err != nil || chunkIndex < 0 {
		writeError(w, http.StatusBadRequest, "invalid chunk_index")
		return
	}
	totalChunks, err := strconv.Atoi(q.Get("total_chunks"))
	if err != nil || totalChunks <= 0 {
		writeError(w, http.StatusBadRequest, "invalid total_chunks")
		return
	}

	if err := r.ParseMultipartForm(maxChunkMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart payload")
		return
	}
	chunk, _, err := r.FormFile("chunk")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing chunk file")
		return
	}
	defer chunk.Close()

	res, err := h.uploads.SaveChunk(r.Context(), userID, datasetID, chunkIndex, totalChunks, chunk)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrDuplicateVersion) {
			status = http.StatusConflict
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleLatestVersion(w http.ResponseWriter, r *http.Request) {
	datasetID := chi.URLParam(r, "datasetID")
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	v, err := h.uploads.LatestVersion(r.Context(), datasetID, userID)
	if err != nil {
		if errors.Is(err, store.ErrVersionNotFound) {
			writeError(w, http.StatusNotFound, "dataset not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, versionResponse(v))
}

func (h *Handler) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req domain.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	if req.DatasetID == "" || req.UserID == "" || req.Question == "" {
		writeError(w, http.StatusBadRequest, "dataset_id, user_id, and question are required")
		return
	}

	res, err := h.queries.Ask(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrVersionNotFound):
			writeError(w, http.StatusNotFound, "dataset not found")
		case errors.Is(err, warehouse.ErrTableNotFound):
			writeError(w, http.StatusNotFound, "dataset version is not queryable")
		case errors.Is(err, llm.ErrSQLGeneration):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	datasetID := chi.URLParam(r, "datasetID")
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	history, err := h.queries.History(r.Context(), datasetID, userID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func versionResponse(v *domain.DatasetVersion) domain.VersionResponse {
	return domain.VersionResponse{
		DatasetID: v.DatasetID,
		VersionID: v.VersionID,
		UserID:    v.UserID,
		FilePath:  v.FilePath,
		Status:    v.Status,
		CreatedAt: v.CreatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}
