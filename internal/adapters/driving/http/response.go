package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/custodia-labs/docqa/internal/core/domain"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// MessageResponse acknowledges a request without data.
type MessageResponse struct {
	Message string `json:"message"`
}

// UploadResponse reports a processed document.
type UploadResponse struct {
	Message string `json:"message"`
	Chunks  int    `json:"chunks"`
}

// DeleteResponse reports removed sessions.
type DeleteResponse struct {
	Message string   `json:"message"`
	Deleted []string `json:"deleted"`
}

// errorKind maps a domain error to a status, code and safe message.
type errorKind struct {
	err     error
	status  int
	code    string
	message string
}

// errorKinds is checked in order; the first match wins.
var errorKinds = []errorKind{
	{domain.ErrInvalidInput, http.StatusBadRequest, "invalid_input", ""},
	{domain.ErrSourceUnreachable, http.StatusBadRequest, "source_unreachable", "Failed to download file"},
	{domain.ErrTimeout, http.StatusGatewayTimeout, "timeout", "The request timed out"},
	{domain.ErrExtractionFailed, http.StatusInternalServerError, "extraction_failed", "Could not extract text from the document"},
	{domain.ErrEmbeddingFailed, http.StatusInternalServerError, "embedding_failed", "Could not embed the text"},
	{domain.ErrIndexCorrupt, http.StatusInternalServerError, "index_corrupt", "The session index could not be loaded"},
	{domain.ErrGenerationFailed, http.StatusInternalServerError, "generation_failed", "Could not generate an answer"},
	{domain.ErrLLMUnavailable, http.StatusInternalServerError, "llm_unavailable", "No language model is configured"},
}

// writeError responds with the status for err. Client errors carry the
// error text; server errors carry a fixed message and are logged in full.
func (s *Server) writeError(c *gin.Context, err error) {
	for _, k := range errorKinds {
		if !errors.Is(err, k.err) {
			continue
		}
		if k.status < http.StatusInternalServerError {
			message := k.message
			if message == "" {
				message = err.Error()
			}
			c.JSON(k.status, ErrorResponse{Code: k.code, Message: message, Detail: err.Error()})
			return
		}
		s.log.Error("request failed", "path", c.FullPath(), "code", k.code, "error", err)
		c.JSON(k.status, ErrorResponse{Code: k.code, Message: k.message})
		return
	}

	s.log.Error("request failed", "path", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, ErrorResponse{Code: "internal_error", Message: "Internal server error"})
}

// badRequest responds 400 for malformed requests.
func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Code: "invalid_input", Message: message})
}
