package ingestion

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	v1 "github.com/aevon-lab/aevon-rum/internal/api/v1"
	httperr "github.com/aevon-lab/aevon-rum/internal/core/errors"
	"github.com/aevon-lab/aevon-rum/internal/core/storage"
	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"
)

const (
	msgReadBodyFailed   = "Failed to read request body"
	msgInvalidJSON      = "Invalid JSON body"
	msgPersistFailed    = "Failed to persist batch"
	msgListFailed       = "Failed to list session events"
	msgBodyTooLarge     = "Request body exceeds maximum allowed size"
	msgInvalidGzip      = "Invalid gzip body"
	msgUnsupportedMedia = "Unsupported content type"
)

// ingestionError carries the structured HTTP error shape from a helper back to the orchestrator.
// Helpers return this instead of writing to gin.Context directly, keeping them decoupled from HTTP.
type ingestionError struct {
	statusCode int
	errorType  string
	message    string
	details    interface{}
}

func (e *ingestionError) Error() string {
	return e.message
}

// PutRumEventsHandler accepts one batch from either client transport.
func (s *Service) PutRumEventsHandler(c *gin.Context) {
	appID := c.Param("app_id")

	req, payloadSize, err := s.parseBatch(c)
	if err != nil {
		writeError(c, err)
		return
	}
	batch := &req.Batch

	if err := validateBatch(appID, batch); err != nil {
		writeError(c, err)
		return
	}

	slog.Info("[Ingestion] Received batch",
		"app_id", appID,
		"batch_id", batch.BatchID,
		"session_id", batch.UserDetails.SessionID,
		"event_count", len(batch.RumEvents),
		"payload_size", payloadSize,
		"signed", isSigned(c.Request))

	duplicate, err := s.persistBatch(c.Request.Context(), batch)
	if err != nil {
		writeError(c, err)
		return
	}
	if duplicate {
		// Retries of a delivered batch are acknowledged so the client stops resending.
		c.JSON(http.StatusOK, gin.H{"status": "duplicate", "batchId": batch.BatchID})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status":     "accepted",
		"batchId":    batch.BatchID,
		"eventCount": len(batch.RumEvents),
	})
}

// parseBatch reads the (optionally gzip encoded) body and decodes it.
// Returns the request and the decoded payload size.
func (s *Service) parseBatch(c *gin.Context) (*v1.PutRumEventsRequest, int, *ingestionError) {
	switch c.ContentType() {
	case "", gin.MIMEJSON, gin.MIMEPlain:
	default:
		slog.Warn("[Ingestion] Unsupported content type", "content_type", c.ContentType())
		return nil, 0, &ingestionError{
			statusCode: http.StatusUnsupportedMediaType,
			errorType:  httperr.HttpUnsupportedMedia,
			message:    msgUnsupportedMedia,
			details:    map[string]interface{}{"content_type": c.ContentType()},
		}
	}

	body, err := s.bodyReader(c.Request)
	if err != nil {
		return nil, 0, err
	}

	// Enforce maximum body size to prevent OOM attacks
	maxBytes := int64(s.maxBodySizeBytes)
	bodyBytes, readErr := io.ReadAll(io.LimitReader(body, maxBytes+1)) // +1 to detect oversized requests
	if readErr != nil {
		if errors.Is(readErr, gzip.ErrChecksum) || errors.Is(readErr, gzip.ErrHeader) || errors.Is(readErr, io.ErrUnexpectedEOF) {
			return nil, 0, &ingestionError{
				statusCode: http.StatusBadRequest,
				errorType:  httperr.HttpInvalidJsonError,
				message:    msgInvalidGzip,
			}
		}
		slog.Error("[Ingestion] Failed to read request body", "error", readErr)
		return nil, 0, &ingestionError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpInternalError,
			message:    msgReadBodyFailed,
		}
	}

	if int64(len(bodyBytes)) > maxBytes {
		slog.Warn("[Ingestion] Request body exceeds maximum size", "size", len(bodyBytes), "max", maxBytes)
		return nil, len(bodyBytes), &ingestionError{
			statusCode: http.StatusRequestEntityTooLarge,
			errorType:  httperr.HttpPayloadTooLargeError,
			message:    msgBodyTooLarge,
			details: map[string]interface{}{
				"max_size_mb": maxBytes / (1024 * 1024),
			},
		}
	}

	c.Request.Body = io.NopCloser(bytes.NewReader(bodyBytes))

	var req v1.PutRumEventsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.Warn("[Ingestion] Invalid JSON body received", "error", err, "payload_size", len(bodyBytes))
		return nil, len(bodyBytes), &ingestionError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidJsonError,
			message:    msgInvalidJSON,
		}
	}
	return &req, len(bodyBytes), nil
}

// bodyReader unwraps the content encoding of r.
func (s *Service) bodyReader(r *http.Request) (io.Reader, *ingestionError) {
	switch enc := strings.ToLower(strings.TrimSpace(r.Header.Get("Content-Encoding"))); enc {
	case "", "identity":
		return r.Body, nil
	case "gzip":
		zr, err := gzip.NewReader(r.Body)
		if err != nil {
			slog.Warn("[Ingestion] Invalid gzip header", "error", err)
			return nil, &ingestionError{
				statusCode: http.StatusBadRequest,
				errorType:  httperr.HttpInvalidJsonError,
				message:    msgInvalidGzip,
			}
		}
		return zr, nil
	default:
		return nil, &ingestionError{
			statusCode: http.StatusUnsupportedMediaType,
			errorType:  httperr.HttpUnsupportedMedia,
			message:    "Unsupported content encoding",
			details:    map[string]interface{}{"content_encoding": enc},
		}
	}
}

// validateBatch checks the envelope, every event and that the batch
// belongs to the application in the path.
func validateBatch(appID string, batch *v1.Batch) *ingestionError {
	if err := batch.Validate(); err != nil {
		slog.Warn("[Ingestion] Batch validation failed", "error", err, "batch_id", batch.BatchID)
		return &ingestionError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidBatchError,
			message:    err.Error(),
		}
	}

	if batch.AppMonitorDetails.ID != appID {
		slog.Warn("[Ingestion] Batch addressed to another application",
			"path_app_id", appID,
			"batch_app_id", batch.AppMonitorDetails.ID)
		return &ingestionError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpAppMismatchError,
			message:    "application.id does not match the request path",
			details: map[string]interface{}{
				"path_app_id":  appID,
				"batch_app_id": batch.AppMonitorDetails.ID,
			},
		}
	}
	return nil
}

// persistBatch saves the batch. A batch stored before reports duplicate.
func (s *Service) persistBatch(ctx context.Context, batch *v1.Batch) (bool, *ingestionError) {
	if err := s.store.SaveBatch(ctx, batch, s.clock.Now().UTC()); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			slog.Info("[Ingestion] Duplicate batch acknowledged", "batch_id", batch.BatchID)
			return true, nil
		}

		slog.Error("[Ingestion] Failed to persist batch", "error", err, "batch_id", batch.BatchID)
		return false, &ingestionError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpInternalError,
			message:    msgPersistFailed,
		}
	}
	return false, nil
}

// ListSessionEventsHandler returns the stored events of one session.
func (s *Service) ListSessionEventsHandler(c *gin.Context) {
	appID := c.Param("app_id")
	sessionID := c.Param("session_id")

	limit := storage.DefaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > MaxListLimit {
			writeError(c, &ingestionError{
				statusCode: http.StatusBadRequest,
				errorType:  httperr.HttpInvalidQueryError,
				message:    "limit must be an integer between 1 and " + strconv.Itoa(MaxListLimit),
			})
			return
		}
		limit = n
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	events, err := s.store.ListSessionEvents(ctx, appID, sessionID, limit)
	if err != nil {
		slog.Error("[Ingestion] Failed to list session events",
			"error", err,
			"app_id", appID,
			"session_id", sessionID)
		writeError(c, &ingestionError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpInternalError,
			message:    msgListFailed,
		})
		return
	}
	if events == nil {
		events = []storage.StoredEvent{}
	}
	c.JSON(http.StatusOK, events)
}

// isSigned reports whether the request carries a SigV4 signature in a
// header or a presigned query.
func isSigned(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Authorization"), "AWS4-HMAC-SHA256") ||
		r.URL.Query().Get("X-Amz-Signature") != ""
}

// writeError serializes an ingestionError as the JSON HTTP response.
func writeError(c *gin.Context, err *ingestionError) {
	c.JSON(err.statusCode, httperr.ErrorResponse{
		ErrorType: err.errorType,
		Message:   err.message,
		Details:   err.details,
	})
}
