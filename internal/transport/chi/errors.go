package chi

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/kailas-cloud/coderag/internal/domain"
	logpkg "github.com/kailas-cloud/coderag/internal/logger"
)

// ErrorCode is the machine-readable error kind returned to clients.
type ErrorCode string

// Error codes.
const (
	CodeBadRequest         ErrorCode = "bad_request"
	CodeValidationFailed   ErrorCode = "validation_failed"
	CodeUnauthorized       ErrorCode = "unauthorized"
	CodeNotFound           ErrorCode = "not_found"
	CodeFileExists         ErrorCode = "file_exists"
	CodeVectorDimMismatch  ErrorCode = "vector_dim_mismatch"
	CodeEmbeddingProvider  ErrorCode = "embedding_provider_error"
	CodeGenerationProvider ErrorCode = "generation_provider_error"
	CodeIndexBusy          ErrorCode = "index_busy"
	CodePartialApply       ErrorCode = "partial_apply"
	CodeInternal           ErrorCode = "internal_error"
)

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// errorMapping maps a sentinel to an HTTP status and code.
type errorMapping struct {
	sentinel error
	status   int
	code     ErrorCode
}

var errorMappings = []errorMapping{
	{domain.ErrInvalidInput, http.StatusBadRequest, CodeValidationFailed},
	{domain.ErrNotFound, http.StatusNotFound, CodeNotFound},
	{domain.ErrFileExists, http.StatusConflict, CodeFileExists},
	{domain.ErrVectorDimMismatch, http.StatusBadRequest, CodeVectorDimMismatch},
	{domain.ErrIndexBusy, http.StatusConflict, CodeIndexBusy},
	{domain.ErrPartialApply, http.StatusUnprocessableEntity, CodePartialApply},
	{domain.ErrEmbeddingProviderError, http.StatusBadGateway, CodeEmbeddingProvider},
	{domain.ErrGenerationProviderError, http.StatusBadGateway, CodeGenerationProvider},
}

// classify returns the status, code and client-safe message for err.
// Input errors carry their full message since it describes the caller's mistake.
func classify(err error) (int, ErrorCode, string) {
	for _, m := range errorMappings {
		if !errors.Is(err, m.sentinel) {
			continue
		}
		if m.sentinel == domain.ErrInvalidInput || m.sentinel == domain.ErrNotFound || m.sentinel == domain.ErrFileExists {
			return m.status, m.code, err.Error()
		}
		return m.status, m.code, m.sentinel.Error()
	}
	return http.StatusInternalServerError, CodeInternal, "internal error"
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := classify(err)
	logger := s.requestLogger(r)
	if status == http.StatusInternalServerError {
		logger.Error("internal error", zap.Error(err))
	} else {
		logger.Warn("domain error", zap.Error(err))
	}
	writeError(w, status, code, msg)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

// requestLogger returns the request-scoped logger carrying the request ID.
func (s *Server) requestLogger(r *http.Request) *zap.Logger {
	if l, ok := logpkg.Lookup(r.Context()); ok {
		return l
	}
	return s.logger
}
