package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/codeme/heyme/internal/conversation"
	"github.com/codeme/heyme/internal/dashboard"
	"github.com/codeme/heyme/internal/ingest"
	"github.com/codeme/heyme/internal/rag"
	"github.com/codeme/heyme/internal/storage"
)

const maxRequestBodySize = 1 << 20  // 1MB
const maxUploadBodySize = 10 << 20 // 10MB

// Answering runs one retrieval-augmented question. Satisfied by rag.Answerer.
type Answering interface {
	Answer(ctx context.Context, question string, topK int, groupID string) (rag.Response, error)
}

// VectorCleaner removes a document's vectors when the document goes away.
type VectorCleaner interface {
	DeleteByDocument(documentID string) error
}

// Deps carries everything the HTTP handlers need.
type Deps struct {
	Store    *storage.Store
	Answerer Answering
	Vectors  VectorCleaner // optional; if nil, vector cleanup is skipped on delete
	Token    string
}

// NewHandler builds the full REST surface. Share-link endpoints are public;
// everything else under /api/v1 requires the bearer token.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		// Public link-scoped chat: no credential, access tracked per link.
		r.Get("/links/{id}", handleGetLink(deps))
		r.Post("/chat/link", handleLinkChat(deps))

		r.Group(func(r chi.Router) {
			r.Use(BearerAuth(deps.Token))

			r.Post("/chat/rag", handleChatRAG(deps))
			r.Get("/chat/logs", handleListLogs(deps))
			r.Delete("/chat/logs", handleClearLogs(deps))
			r.Post("/qa-logs", handleSaveQALog(deps))
			r.Post("/chat/survey", handleSurvey(deps))

			r.Post("/documents", handleUploadDocument(deps))
			r.Get("/documents", handleListDocuments(deps))
			r.Get("/documents/{id}", handleGetDocument(deps))
			r.Delete("/documents/{id}", handleDeleteDocument(deps))

			r.Post("/links", handleCreateLink(deps))
			r.Get("/dashboard/overview", handleDashboard(deps))
		})
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// --- Chat ---

type chatRequest struct {
	Question string `json:"question"`
	GroupID  string `json:"group_id,omitempty"`
	TopK     int    `json:"top_k"`
}

func handleChatRAG(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Question == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "question is required")
			return
		}
		if req.TopK <= 0 {
			req.TopK = conversation.DefaultTopK
		}

		resp, err := deps.Answerer.Answer(r.Context(), req.Question, req.TopK, req.GroupID)
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "failed to answer: %v", err)
			return
		}

		writeJSON(w, resp)
	}
}

type logEntryResponse struct {
	ID        string    `json:"id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"created_at"`
}

func handleListLogs(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logs, err := deps.Store.ListQALogs()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list logs: %v", err)
			return
		}

		out := make([]logEntryResponse, len(logs))
		for i, l := range logs {
			out[i] = logEntryResponse{ID: l.ID, Question: l.Question, Answer: l.Answer, CreatedAt: l.CreatedAt}
		}
		writeJSON(w, out)
	}
}

func handleClearLogs(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Store.ClearQALogs(); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to clear logs: %v", err)
			return
		}
		writeJSON(w, map[string]string{"status": "cleared"})
	}
}

type qaLogRequest struct {
	Question  string `json:"question"`
	Answer    string `json:"answer"`
	SessionID string `json:"session_id,omitempty"`
	IsFailed  bool   `json:"is_failed"`
}

func handleSaveQALog(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req qaLogRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Question == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "question is required")
			return
		}

		l := storage.QALog{
			ID:        uuid.New().String(),
			Question:  req.Question,
			Answer:    req.Answer,
			SessionID: req.SessionID,
			IsFailed:  req.IsFailed,
		}
		if err := deps.Store.SaveQALog(l); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save log: %v", err)
			return
		}
		writeJSON(w, map[string]string{"id": l.ID, "status": "saved"})
	}
}

type surveyRequest struct {
	Rating    int      `json:"rating"`
	Reasons   []string `json:"reasons,omitempty"`
	SessionID string   `json:"session_id,omitempty"`
}

func handleSurvey(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req surveyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Rating < 1 || req.Rating > 5 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "rating must be between 1 and 5")
			return
		}

		resp := storage.SurveyResponse{
			ID:        uuid.New().String(),
			Rating:    req.Rating,
			Reasons:   storage.MarshalReasons(req.Reasons),
			SessionID: req.SessionID,
		}
		if err := deps.Store.SaveSurveyResponse(resp); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save survey: %v", err)
			return
		}
		writeJSON(w, map[string]string{"id": resp.ID, "status": "saved"})
	}
}

// --- Documents ---

type uploadRequest struct {
	Title    string `json:"title"`
	FileName string `json:"file_name"`
	MimeType string `json:"mime_type"`
	GroupID  string `json:"group_id,omitempty"`
	Content  string `json:"content"`
	Encoding string `json:"encoding,omitempty"` // "base64" for binary uploads
}

func handleUploadDocument(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBodySize)
		defer r.Body.Close()

		var req uploadRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Content == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "content is required")
			return
		}

		var content []byte
		if req.Encoding == "base64" {
			decoded, err := base64.StdEncoding.DecodeString(req.Content)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid base64 content")
				return
			}
			content = decoded
		} else {
			content = []byte(req.Content)
		}

		if req.MimeType == "" {
			req.MimeType = "text/plain"
		}
		if req.Title == "" {
			req.Title = req.FileName
		}

		doc := storage.Document{
			ID:               uuid.New().String(),
			Title:            req.Title,
			OriginalFileName: req.FileName,
			MimeType:         req.MimeType,
			SizeBytes:        int64(len(content)),
			GroupID:          req.GroupID,
			Content:          content,
			Status:           storage.DocStatusUploaded,
		}
		if err := deps.Store.SaveDocument(doc); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save document: %v", err)
			return
		}

		payload, err := json.Marshal(map[string]string{"document_id": doc.ID})
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to create job payload: %v", err)
			return
		}
		job := storage.Job{
			ID:          uuid.New().String(),
			Type:        ingest.JobIndexDocument,
			PayloadJSON: string(payload),
		}
		if err := deps.Store.EnqueueJob(job); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to enqueue job: %v", err)
			return
		}

		writeJSON(w, map[string]string{"id": doc.ID, "status": "queued"})
	}
}

func handleListDocuments(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)

		docs, err := deps.Store.ListDocuments(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list documents: %v", err)
			return
		}
		if docs == nil {
			docs = []storage.Document{}
		}
		writeJSON(w, docs)
	}
}

func handleGetDocument(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		doc, err := deps.Store.GetDocument(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "document not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get document: %v", err)
			return
		}
		writeJSON(w, doc)
	}
}

func handleDeleteDocument(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		if deps.Vectors != nil {
			if err := deps.Vectors.DeleteByDocument(id); err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to delete vectors: %v", err)
				return
			}
		}

		err := deps.Store.DeleteDocument(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "document not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete document: %v", err)
			return
		}
		writeJSON(w, map[string]string{"status": "deleted"})
	}
}

// --- Share links ---

type createLinkRequest struct {
	GroupID   string `json:"group_id"`
	Title     string `json:"title,omitempty"`
	ExpiresIn string `json:"expires_in,omitempty"` // Go duration, e.g. "72h"
}

func handleCreateLink(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req createLinkRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		link := storage.ShareLink{
			ID:       uuid.New().String(),
			GroupID:  req.GroupID,
			Title:    req.Title,
			IsActive: true,
		}
		if req.ExpiresIn != "" {
			d, err := time.ParseDuration(req.ExpiresIn)
			if err != nil || d <= 0 {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid expires_in: %q", req.ExpiresIn)
				return
			}
			t := time.Now().UTC().Add(d)
			link.ExpiresAt = &t
		}

		if err := deps.Store.SaveShareLink(link); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save link: %v", err)
			return
		}
		writeJSON(w, link)
	}
}

func handleGetLink(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		link, err := deps.Store.GetShareLink(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "link not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get link: %v", err)
			return
		}
		writeJSON(w, link)
	}
}

type linkChatRequest struct {
	LinkID   string `json:"link_id"`
	Question string `json:"question"`
	TopK     int    `json:"top_k"`
}

func handleLinkChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req linkChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.LinkID == "" || req.Question == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "link_id and question are required")
			return
		}
		if req.TopK <= 0 {
			req.TopK = conversation.DefaultTopK
		}

		link, err := deps.Store.GetShareLink(req.LinkID)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "link not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get link: %v", err)
			return
		}
		if !link.IsActive {
			httpError(w, http.StatusForbidden, "forbidden", "link is disabled")
			return
		}
		if link.ExpiresAt != nil && time.Now().UTC().After(*link.ExpiresAt) {
			httpError(w, http.StatusForbidden, "forbidden", "link has expired")
			return
		}

		if err := deps.Store.TouchShareLink(link.ID); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to record access: %v", err)
			return
		}

		resp, err := deps.Answerer.Answer(r.Context(), req.Question, req.TopK, link.GroupID)
		isFailed := err != nil
		answer := resp.Answer
		if isFailed {
			answer = "Error response"
		}

		if saveErr := deps.Store.SaveQALog(storage.QALog{
			ID:       uuid.New().String(),
			Question: req.Question,
			Answer:   answer,
			LinkID:   link.ID,
			IsFailed: isFailed,
		}); saveErr != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save log: %v", saveErr)
			return
		}

		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "failed to answer: %v", err)
			return
		}
		writeJSON(w, resp)
	}
}

// --- Dashboard ---

func handleDashboard(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		overview, err := dashboard.Build(r.Context(), deps.Store)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to build overview: %v", err)
			return
		}
		writeJSON(w, overview)
	}
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
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
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
