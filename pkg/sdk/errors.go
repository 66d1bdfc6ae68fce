package coderag

import (
	"errors"
	"fmt"
)

// Sentinel errors matched by APIError.Is. Use errors.Is() to check.
var (
	ErrValidation         = errors.New("validation failed")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrNotFound           = errors.New("not found")
	ErrFileExists         = errors.New("file already exists")
	ErrIndexBusy          = errors.New("index busy")
	ErrPartialApply       = errors.New("partial apply")
	ErrEmbeddingProvider  = errors.New("embedding provider error")
	ErrGenerationProvider = errors.New("generation provider error")
)

var codeSentinels = map[string]error{
	"bad_request":               ErrValidation,
	"validation_failed":         ErrValidation,
	"vector_dim_mismatch":       ErrValidation,
	"unauthorized":              ErrUnauthorized,
	"not_found":                 ErrNotFound,
	"file_exists":               ErrFileExists,
	"index_busy":                ErrIndexBusy,
	"partial_apply":             ErrPartialApply,
	"embedding_provider_error":  ErrEmbeddingProvider,
	"generation_provider_error": ErrGenerationProvider,
}

// APIError is an error response from the server.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("coderag: http %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("coderag: %s: %s", e.Code, e.Message)
}

// Is reports whether target is the sentinel for the error code.
func (e *APIError) Is(target error) bool {
	s, ok := codeSentinels[e.Code]
	return ok && s == target
}
