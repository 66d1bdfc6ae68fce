// Package chi exposes the coderag use cases over a JSON HTTP API.
package chi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/coderag/internal/domain"
	"github.com/kailas-cloud/coderag/internal/domain/batch"
	"github.com/kailas-cloud/coderag/internal/domain/diff"
	"github.com/kailas-cloud/coderag/internal/domain/message"
	"github.com/kailas-cloud/coderag/internal/domain/search/filter"
	"github.com/kailas-cloud/coderag/internal/domain/search/request"
	"github.com/kailas-cloud/coderag/internal/usecase/health"
	"github.com/kailas-cloud/coderag/internal/usecase/retrieval"
)

// maxBodyBytes caps request bodies; patches and model responses can be large.
const maxBodyBytes = 8 << 20

// Server serves the coderag HTTP API.
type Server struct {
	indexer   Indexer
	query     Querier
	editor    Editor
	documents Documents
	health    HealthChecker
	logger    *zap.Logger
}

// Deps lists the services behind the API.
type Deps struct {
	Indexer   Indexer
	Querier   Querier
	Editor    Editor
	Documents Documents
	Health    HealthChecker
}

// NewServer creates an HTTP API server.
func NewServer(deps Deps, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		indexer:   deps.Indexer,
		query:     deps.Querier,
		editor:    deps.Editor,
		documents: deps.Documents,
		health:    deps.Health,
		logger:    logger,
	}
}

// Mount registers the API routes on r.
func (s *Server) Mount(r chi.Router) {
	r.Get("/health", s.HealthCheck)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/index", s.IndexWorkspace)
		r.Post("/index/file", s.ReindexFile)
		r.Delete("/index/file", s.RemoveFile)

		r.Get("/documents/count", s.CountDocuments)
		r.Delete("/documents", s.DeleteDocuments)

		r.Post("/query", s.Query)

		r.Post("/diff", s.ComputeDiff)
		r.Post("/diff/parse", s.ParseDiff)

		r.Post("/edits/preview", s.PreviewEdit)
		r.Post("/edits/apply", s.ApplyEdit)
		r.Post("/edits/patch", s.ApplyPatch)
		r.Post("/edits/response", s.ApplyResponse)

		r.Post("/messages", s.Message)
	})
}

// IndexWorkspace handles POST /v1/index.
func (s *Server) IndexWorkspace(w http.ResponseWriter, r *http.Request) {
	var req message.Index
	if !s.decode(w, r, &req, true) {
		return
	}
	s.index(w, r, req)
}

// ReindexFile handles POST /v1/index/file.
func (s *Server) ReindexFile(w http.ResponseWriter, r *http.Request) {
	var req message.Index
	if !s.decode(w, r, &req, false) {
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "path is required")
		return
	}
	s.index(w, r, req)
}

// RemoveFile handles DELETE /v1/index/file?path=.
func (s *Server) RemoveFile(w http.ResponseWriter, r *http.Request) {
	p := r.URL.Query().Get("path")
	if p == "" {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "path query parameter is required")
		return
	}
	n, err := s.indexer.RemoveFile(r.Context(), p)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": n})
}

// CountDocuments handles GET /v1/documents/count.
func (s *Server) CountDocuments(w http.ResponseWriter, _ *http.Request) {
	files := s.documents.Files()
	if files == nil {
		files = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count": s.documents.Count(),
		"files": files,
	})
}

// DeleteDocuments handles DELETE /v1/documents. An empty filter deletes everything.
func (s *Server) DeleteDocuments(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Filter map[string]any `json:"filter"`
	}
	if !s.decode(w, r, &req, true) {
		return
	}
	f, err := filter.New(req.Filter)
	if err != nil {
		s.handleDomainError(w, r, domain.InvalidInputf("filter: %v", err))
		return
	}
	n, err := s.documents.DeleteDocuments(r.Context(), f)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

// Query handles POST /v1/query. Streams server-sent events when requested.
func (s *Server) Query(w http.ResponseWriter, r *http.Request) {
	var req message.Query
	if !s.decodeMessage(w, r, &req) {
		return
	}
	s.answer(w, r, req)
}

// ComputeDiff handles POST /v1/diff.
func (s *Server) ComputeDiff(w http.ResponseWriter, r *http.Request) {
	var req message.ComputeDiff
	if !s.decodeMessage(w, r, &req) {
		return
	}
	s.computeDiff(w, req)
}

// ParseDiff handles POST /v1/diff/parse. Malformed input yields an empty file list.
func (s *Server) ParseDiff(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Diff string `json:"diff"`
	}
	if !s.decode(w, r, &req, false) {
		return
	}
	files := diff.Parse(req.Diff)
	if files == nil {
		files = []diff.ParsedDiff{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}

// PreviewEdit handles POST /v1/edits/preview.
func (s *Server) PreviewEdit(w http.ResponseWriter, r *http.Request) {
	var req message.ApplyEdit
	if !s.decodeMessage(w, r, &req) {
		return
	}
	p, err := s.editor.Preview(r.Context(), req.Path, req.Content)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ApplyEdit handles POST /v1/edits/apply.
func (s *Server) ApplyEdit(w http.ResponseWriter, r *http.Request) {
	var req message.ApplyEdit
	if !s.decodeMessage(w, r, &req) {
		return
	}
	s.applyEdit(w, r, req)
}

// ApplyPatch handles POST /v1/edits/patch.
func (s *Server) ApplyPatch(w http.ResponseWriter, r *http.Request) {
	var req message.ApplyPatch
	if !s.decodeMessage(w, r, &req) {
		return
	}
	s.applyPatch(w, r, req)
}

// ApplyResponse handles POST /v1/edits/response.
func (s *Server) ApplyResponse(w http.ResponseWriter, r *http.Request) {
	var req message.ApplyResponse
	if !s.decodeMessage(w, r, &req) {
		return
	}
	s.applyResponse(w, r, req)
}

// Message handles POST /v1/messages: a versioned envelope dispatched by type.
func (s *Server) Message(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	msg, err := message.Decode(data)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	switch m := msg.(type) {
	case message.Query:
		s.answer(w, r, m)
	case message.Index:
		s.index(w, r, m)
	case message.ComputeDiff:
		s.computeDiff(w, m)
	case message.ApplyEdit:
		s.applyEdit(w, r, m)
	case message.ApplyPatch:
		s.applyPatch(w, r, m)
	case message.ApplyResponse:
		s.applyResponse(w, r, m)
	default:
		writeError(w, http.StatusBadRequest, CodeValidationFailed, fmt.Sprintf("unsupported message type %q", msg.Type()))
	}
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != health.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

func (s *Server) index(w http.ResponseWriter, r *http.Request, m message.Index) {
	if m.Path != "" {
		res := s.indexer.ReindexFile(r.Context(), m.Path)
		writeJSON(w, http.StatusOK, batchToItems([]batch.Result{res})[0])
		return
	}
	rep, err := s.indexer.IndexWorkspace(r.Context())
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, indexToResponse(rep))
}

func (s *Server) answer(w http.ResponseWriter, r *http.Request, m message.Query) {
	f, err := filter.New(m.Filter)
	if err != nil {
		s.handleDomainError(w, r, domain.InvalidInputf("filter: %v", err))
		return
	}
	if m.Limit > request.MaxLimit {
		writeError(w, http.StatusBadRequest, CodeValidationFailed,
			fmt.Sprintf("limit must be between 1 and %d", request.MaxLimit))
		return
	}
	req := retrieval.Request{Query: m.Query, Filter: f, Limit: m.Limit}

	if m.Stream || strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		s.streamAnswer(w, r, req)
		return
	}

	resp, err := s.query.Query(r.Context(), req)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, queryToResponse(resp))
}

func (s *Server) computeDiff(w http.ResponseWriter, m message.ComputeDiff) {
	text := diff.Compute(m.Original, m.Updated, m.Path)
	var hunks []diff.Hunk
	if parsed := diff.Parse(text); len(parsed) > 0 {
		hunks = parsed[0].Hunks
	}
	writeJSON(w, http.StatusOK, map[string]any{"diff": text, "hunks": hunks})
}

func (s *Server) applyEdit(w http.ResponseWriter, r *http.Request, m message.ApplyEdit) {
	change, err := s.editor.ApplyProposal(r.Context(), m.Path, m.Content, m.Create)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, change)
}

func (s *Server) applyPatch(w http.ResponseWriter, r *http.Request, m message.ApplyPatch) {
	rep, err := s.editor.ApplyPatch(r.Context(), m.Diff)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, editToResponse(rep))
}

func (s *Server) applyResponse(w http.ResponseWriter, r *http.Request, m message.ApplyResponse) {
	rep, err := s.editor.ApplyResponse(r.Context(), m.Text)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, editToResponse(rep))
}

// decode reads a JSON body into v, rejecting unknown fields. An empty body is
// accepted when allowEmpty is set.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) bool {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	if len(bytes.TrimSpace(data)) == 0 {
		if allowEmpty {
			return true
		}
		writeError(w, http.StatusBadRequest, CodeBadRequest, "request body is required")
		return false
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

// decodeMessage decodes a message payload and validates it.
func (s *Server) decodeMessage(w http.ResponseWriter, r *http.Request, m message.Message) bool {
	if !s.decode(w, r, m, false) {
		return false
	}
	if err := m.Validate(); err != nil {
		s.handleDomainError(w, r, err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
