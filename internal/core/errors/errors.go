package errors

// Collector error types reported in ErrorResponse.ErrorType.
const (
	HttpInternalError        = "internal_error"
	HttpInvalidJsonError     = "invalid_json"
	HttpInvalidBatchError    = "invalid_batch"
	HttpAppMismatchError     = "app_mismatch"
	HttpPayloadTooLargeError = "payload_too_large"
	HttpUnsupportedMedia     = "unsupported_media_type"
	HttpInvalidQueryError    = "invalid_query"
	HttpNotFoundError        = "not_found"
)

// ErrorResponse is the error response body of the collector.
type ErrorResponse struct {
	ErrorType string      `json:"error_type"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}
