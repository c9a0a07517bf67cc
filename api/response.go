package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/quixotic-maker/jarvis-sub000/internal/embedding"
	"github.com/quixotic-maker/jarvis-sub000/internal/kb"
	"github.com/quixotic-maker/jarvis-sub000/internal/loader"
	"github.com/quixotic-maker/jarvis-sub000/internal/retrieval"
	"github.com/quixotic-maker/jarvis-sub000/internal/vectorstore"
)

// writeJSON writes a JSON response with the given status code.
// Note: if encoding fails after WriteHeader is called, there's no way to
// notify the client; the error is logged and the response left as-is.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

// ErrorResponse is the JSON error body. Error carries a stable code string;
// Message is human-readable detail.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}

// writeDomainError maps a pipeline error onto a status and stable code.
func writeDomainError(w http.ResponseWriter, err error) {
	status, code := errorStatus(err)
	writeError(w, status, code, err.Error())
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, loader.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType, "unsupported_format"
	case errors.Is(err, loader.ErrNotFound):
		return http.StatusNotFound, "file_not_found"
	case errors.Is(err, loader.ErrDecodeFailure):
		return http.StatusBadRequest, "decode_failure"
	case errors.Is(err, kb.ErrNotFound), errors.Is(err, vectorstore.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, retrieval.ErrInvalidMode):
		return http.StatusBadRequest, "invalid_mode"
	case errors.Is(err, embedding.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, embedding.ErrBackendUnavailable),
		errors.Is(err, embedding.ErrRateLimited),
		errors.Is(err, embedding.ErrEmptyEmbedding):
		return http.StatusBadGateway, "embedding_failure"
	case errors.Is(err, vectorstore.ErrWriteFailed), errors.Is(err, vectorstore.ErrQueryFailed):
		return http.StatusBadGateway, "index_failure"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
