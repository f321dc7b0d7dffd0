package apierrors

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// ErrorResponse is the wire format for all error outcomes.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Writer serializes errors into the uniform response envelope.
type Writer struct {
	logger *zap.Logger
}

// NewWriter creates a new error writer.
func NewWriter(logger *zap.Logger) *Writer {
	return &Writer{logger: logger}
}

// WriteError maps an error to its status code and writes the JSON envelope.
// Internal-class failures are logged with their cause and masked on the wire.
func (wr *Writer) WriteError(w http.ResponseWriter, r *http.Request, err error) {
	statusCode := HTTPStatus(err)
	requestID := r.Header.Get("X-Request-ID")

	if CodeOf(err) == CodeInternal {
		wr.logger.Error("internal error",
			zap.Error(err),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", requestID),
		)
	} else {
		wr.logger.Warn("request failed",
			zap.String("error_code", string(CodeOf(err))),
			zap.String("message", PublicMessage(err)),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", requestID),
		)
	}

	wr.WriteErrorResponse(w, statusCode, PublicMessage(err))
}

// WriteErrorResponse writes an error envelope with an explicit status code.
func (wr *Writer) WriteErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}
