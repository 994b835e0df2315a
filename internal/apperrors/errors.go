package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// =============================================================================
// Error Codes
// =============================================================================

type ErrorCode string

const (
	ErrorCodeInternalError      ErrorCode = "INTERNAL_ERROR"
	ErrorCodeValidationError    ErrorCode = "VALIDATION_ERROR"
	ErrorCodeNotFound           ErrorCode = "NOT_FOUND"
	ErrorCodeUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrorCodeAuthTokenExpired   ErrorCode = "AUTH_TOKEN_EXPIRED"
	ErrorCodeAuthTokenInvalid   ErrorCode = "AUTH_TOKEN_INVALID"
	ErrorCodeUnknownCommand     ErrorCode = "UNKNOWN_COMMAND"
	ErrorCodeEmptyQuery         ErrorCode = "EMPTY_QUERY"
	ErrorCodeInvalidVolume      ErrorCode = "INVALID_VOLUME"
	ErrorCodeNothingPlaying     ErrorCode = "NOTHING_PLAYING"
	ErrorCodeNoResults          ErrorCode = "NO_RESULTS"
	ErrorCodeLiveContent        ErrorCode = "LIVE_CONTENT"
	ErrorCodeDurationExceeded   ErrorCode = "DURATION_EXCEEDED"
	ErrorCodeInvalidReference   ErrorCode = "INVALID_REFERENCE"
	ErrorCodeUpstreamFormat     ErrorCode = "UPSTREAM_FORMAT"
	ErrorCodeFetchFailed        ErrorCode = "FETCH_FAILED"
	ErrorCodeMissingReference   ErrorCode = "MISSING_REFERENCE"
	ErrorCodeDuplicateReference ErrorCode = "DUPLICATE_REFERENCE"
	ErrorCodeTimeout            ErrorCode = "TIMEOUT"
	ErrorCodeUnreachable        ErrorCode = "UNREACHABLE"
	ErrorCodePlayerNotConnected ErrorCode = "PLAYER_NOT_CONNECTED"
	ErrorCodeShuttingDown       ErrorCode = "SHUTTING_DOWN"
)

// Kind groups error codes by who has to act on them.
type Kind string

const (
	// KindUserInput is a bad command argument. Reported verbatim, no state change.
	KindUserInput Kind = "user_input"
	// KindUpstream is a problem with the media source or the downloader.
	KindUpstream Kind = "upstream"
	// KindLifecycleDefect means temp file accounting has drifted.
	KindLifecycleDefect Kind = "lifecycle_defect"
	// KindTransient covers network failures and timeouts.
	KindTransient Kind = "transient"
	// KindInternal is anything unclassified.
	KindInternal Kind = "internal"
)

// =============================================================================
// Stripe API Error Types
// =============================================================================

// ErrorType categorizes errors following Stripe API conventions.
type ErrorType string

const (
	ErrorTypeInvalidRequest ErrorType = "invalid_request_error"
	ErrorTypeAPIError       ErrorType = "api_error"
	ErrorTypeAuthError      ErrorType = "authentication_error"
)

// StripeErrorBody is the Stripe-style error payload.
// Format: {"type": "invalid_request_error", "code": "NO_RESULTS", "kind": "upstream", "message": "..."}
type StripeErrorBody struct {
	Type    ErrorType `json:"type"`
	Code    string    `json:"code"`
	Kind    Kind      `json:"kind"`
	Message string    `json:"message"`
}

// AppError is the error type shared by the orchestrator and its HTTP surface.
type AppError struct {
	Code       ErrorCode
	Kind       Kind
	Message    string
	StatusCode int
	Details    map[string]any
	Err        error
}

func (err *AppError) Error() string {
	return err.Message
}

func (err *AppError) Unwrap() error {
	return err.Err
}

// Is matches on code so callers can test against the exported sentinels.
func (err *AppError) Is(target error) bool {
	other, ok := target.(*AppError)
	if !ok {
		return false
	}
	return other.Code == err.Code
}

// StripeErrorBody returns the error in Stripe API format.
func (err *AppError) StripeErrorBody() StripeErrorBody {
	errType := ErrorTypeAPIError
	switch {
	case err.StatusCode == http.StatusUnauthorized || err.StatusCode == http.StatusForbidden:
		errType = ErrorTypeAuthError
	case err.StatusCode >= 400 && err.StatusCode < 500:
		errType = ErrorTypeInvalidRequest
	}

	return StripeErrorBody{
		Type:    errType,
		Code:    string(err.Code),
		Kind:    err.Kind,
		Message: err.Message,
	}
}

// Sentinels for errors.Is checks. Messages on returned errors vary; codes do not.
var (
	ErrEmptyQuery         = &AppError{Code: ErrorCodeEmptyQuery}
	ErrInvalidVolume      = &AppError{Code: ErrorCodeInvalidVolume}
	ErrNothingPlaying     = &AppError{Code: ErrorCodeNothingPlaying}
	ErrUnknownCommand     = &AppError{Code: ErrorCodeUnknownCommand}
	ErrNoResults          = &AppError{Code: ErrorCodeNoResults}
	ErrLiveContent        = &AppError{Code: ErrorCodeLiveContent}
	ErrDurationExceeded   = &AppError{Code: ErrorCodeDurationExceeded}
	ErrInvalidReference   = &AppError{Code: ErrorCodeInvalidReference}
	ErrUpstreamFormat     = &AppError{Code: ErrorCodeUpstreamFormat}
	ErrFetchFailed        = &AppError{Code: ErrorCodeFetchFailed}
	ErrMissingReference   = &AppError{Code: ErrorCodeMissingReference}
	ErrDuplicateReference = &AppError{Code: ErrorCodeDuplicateReference}
	ErrTimeout            = &AppError{Code: ErrorCodeTimeout}
	ErrPlayerNotConnected = &AppError{Code: ErrorCodePlayerNotConnected}
	ErrShuttingDown       = &AppError{Code: ErrorCodeShuttingDown}
)

func NewAppError(code ErrorCode, kind Kind, message string, statusCode int, details map[string]any) *AppError {
	return &AppError{
		Code:       code,
		Kind:       kind,
		Message:    message,
		StatusCode: statusCode,
		Details:    details,
	}
}

// =============================================================================
// HTTP surface
// =============================================================================

func NewValidationError(message string, details map[string]any) *AppError {
	return NewAppError(ErrorCodeValidationError, KindUserInput, message, http.StatusBadRequest, details)
}

func NewUnauthorizedError(message string, code ...ErrorCode) *AppError {
	errCode := ErrorCodeUnauthorized
	if len(code) > 0 {
		errCode = code[0]
	}
	return NewAppError(errCode, KindUserInput, message, http.StatusUnauthorized, nil)
}

func NewNotFoundError(message string, details map[string]any) *AppError {
	return NewAppError(ErrorCodeNotFound, KindUserInput, message, http.StatusNotFound, details)
}

func NewInternalError(message string) *AppError {
	return NewAppError(ErrorCodeInternalError, KindInternal, message, http.StatusInternalServerError, nil)
}

// =============================================================================
// User input
// =============================================================================

func NewEmptyQueryError() *AppError {
	return NewAppError(ErrorCodeEmptyQuery, KindUserInput, "No query or URL", http.StatusBadRequest, nil)
}

func NewInvalidVolumeError(raw string) *AppError {
	return NewAppError(ErrorCodeInvalidVolume, KindUserInput, "Volume must be a number between 0 and 100",
		http.StatusBadRequest, map[string]any{"value": raw})
}

func NewNothingPlayingError(message string) *AppError {
	return NewAppError(ErrorCodeNothingPlaying, KindUserInput, message, http.StatusConflict, nil)
}

func NewUnknownCommandError(name string) *AppError {
	return NewAppError(ErrorCodeUnknownCommand, KindUserInput, fmt.Sprintf("Unknown command %q, try /help", name),
		http.StatusBadRequest, map[string]any{"command": name})
}

// =============================================================================
// Upstream
// =============================================================================

func NewNoResultsError(query string) *AppError {
	return NewAppError(ErrorCodeNoResults, KindUpstream, "No results for search query",
		http.StatusNotFound, map[string]any{"query": query})
}

func NewLiveContentError(link string) *AppError {
	return NewAppError(ErrorCodeLiveContent, KindUpstream, fmt.Sprintf("Cannot play livestreams (for <%s>)", link),
		http.StatusUnprocessableEntity, map[string]any{"link": link})
}

func NewDurationExceededError(link string, limitSec int) *AppError {
	return NewAppError(ErrorCodeDurationExceeded, KindUpstream,
		fmt.Sprintf("Over %d minutes in duration (for <%s>)", limitSec/60, link),
		http.StatusUnprocessableEntity, map[string]any{"link": link, "limit_sec": limitSec})
}

func NewInvalidReferenceError(id string) *AppError {
	return NewAppError(ErrorCodeInvalidReference, KindUpstream, "Invalid video ID",
		http.StatusNotFound, map[string]any{"id": id})
}

// NewUpstreamFormatError reports a response shape the resolver cannot interpret.
func NewUpstreamFormatError(source string, err error) *AppError {
	appErr := NewAppError(ErrorCodeUpstreamFormat, KindUpstream, "[Probably a bug] Bad response from "+source,
		http.StatusBadGateway, map[string]any{"source": source})
	appErr.Err = err
	return appErr
}

func NewFetchFailedError(id string, err error) *AppError {
	appErr := NewAppError(ErrorCodeFetchFailed, KindUpstream, "[Probably a bug] Unknown error while fetching video",
		http.StatusBadGateway, map[string]any{"id": id})
	appErr.Err = err
	return appErr
}

// =============================================================================
// Lifecycle defects
// =============================================================================

func NewMissingReferenceError(path string) *AppError {
	return NewAppError(ErrorCodeMissingReference, KindLifecycleDefect, "Trying to remove missing file reference: "+path,
		http.StatusInternalServerError, map[string]any{"path": path})
}

func NewDuplicateReferenceError(path string) *AppError {
	return NewAppError(ErrorCodeDuplicateReference, KindLifecycleDefect, "File reference already registered: "+path,
		http.StatusInternalServerError, map[string]any{"path": path})
}

// =============================================================================
// Transient
// =============================================================================

func NewTimeoutError(operation string, err error) *AppError {
	appErr := NewAppError(ErrorCodeTimeout, KindTransient, operation+" timed out",
		http.StatusGatewayTimeout, map[string]any{"operation": operation})
	appErr.Err = err
	return appErr
}

func NewUpstreamUnreachableError(source string, err error) *AppError {
	appErr := NewAppError(ErrorCodeUnreachable, KindTransient, source+" is unreachable",
		http.StatusServiceUnavailable, map[string]any{"source": source})
	appErr.Err = err
	return appErr
}

func NewPlayerNotConnectedError() *AppError {
	return NewAppError(ErrorCodePlayerNotConnected, KindTransient, "Player is not connected",
		http.StatusServiceUnavailable, nil)
}

func NewShuttingDownError() *AppError {
	return NewAppError(ErrorCodeShuttingDown, KindTransient, "Shutting down", http.StatusServiceUnavailable, nil)
}

// =============================================================================
// Inspection
// =============================================================================

// KindOf reports the kind of the first AppError in the chain, or KindInternal.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Kind != "" {
		return appErr.Kind
	}
	return KindInternal
}

// EnsureAppError converts an arbitrary error into an AppError.
func EnsureAppError(err error) *AppError {
	if err == nil {
		return NewInternalError("Unknown error")
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewInternalError("Internal server error")
}
