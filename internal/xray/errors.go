package xray

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// ErrorCode is the stable classification of a failure.
type ErrorCode string

const (
	ErrCodeAuthFailed     ErrorCode = "AUTH_FAILED"
	ErrCodeNotFound       ErrorCode = "NOT_FOUND"
	ErrCodeInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrCodeRateLimit      ErrorCode = "RATE_LIMIT"
	ErrCodeServerError    ErrorCode = "SERVER_ERROR"
	ErrCodeNetworkError   ErrorCode = "NETWORK_ERROR"
	ErrCodeInvalidInput   ErrorCode = "INVALID_INPUT"
	ErrCodeUnknown        ErrorCode = "UNKNOWN_ERROR"
	// ErrCodeAPIError covers HTTP statuses outside the mapped set (e.g. 405, 409).
	ErrCodeAPIError ErrorCode = "API_ERROR"
)

// Error is the normalized failure returned by every backend operation.
type Error struct {
	Code       ErrorCode
	Message    string
	StatusCode int
	Details    any

	// Step names the failed step of a multi-step operation.
	Step string
	// Completed lists the steps of a multi-step operation that were
	// committed upstream before Step failed. They are not rolled back.
	Completed []string
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches another *Error by code so callers can write
// errors.Is(err, &xray.Error{Code: xray.ErrCodeNotFound}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// CodeOf returns the code of a normalized error, or ErrCodeUnknown.
func CodeOf(err error) ErrorCode {
	var xe *Error
	if errors.As(err, &xe) {
		return xe.Code
	}
	return ErrCodeUnknown
}

// StatusError is produced when the upstream answered with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned %d: %s", e.StatusCode, truncate(string(e.Body), 200))
}

// TransportError is produced when no response was received at all.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "transport failure: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Normalize maps any failure into an *Error. It is the single point every
// backend failure passes through; already-normalized errors are returned unchanged.
func Normalize(err error) error {
	if err == nil {
		return nil
	}

	var xe *Error
	if errors.As(err, &xe) {
		return xe
	}

	var se *StatusError
	if errors.As(err, &se) {
		return fromStatus(se)
	}

	var te *TransportError
	if errors.As(err, &te) {
		return &Error{
			Code:    ErrCodeNetworkError,
			Message: "Network error: Unable to reach Xray API. Please check your connection and base URL.",
			Details: te.Err.Error(),
		}
	}

	return &Error{
		Code:    ErrCodeUnknown,
		Message: err.Error(),
		Details: err,
	}
}

func fromStatus(se *StatusError) *Error {
	details := decodeBody(se.Body)
	e := &Error{
		Code:       ErrCodeAPIError,
		Message:    "Xray API request failed",
		StatusCode: se.StatusCode,
		Details:    details,
	}

	switch status := se.StatusCode; {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.Code = ErrCodeAuthFailed
		e.Message = "Authentication failed. Please check your credentials."
	case status == http.StatusNotFound:
		e.Code = ErrCodeNotFound
		e.Message = "Resource not found. Please check the issue key or test ID."
	case status == http.StatusBadRequest:
		e.Code = ErrCodeInvalidRequest
		e.Message = "Invalid request. Please check your input parameters."
		if obj, ok := details.(map[string]any); ok {
			if obj["error"] != nil || obj["errorMessages"] != nil || obj["message"] != nil {
				e.Message = "Invalid request: " + string(compactJSON(se.Body))
			}
		}
	case status == http.StatusTooManyRequests:
		e.Code = ErrCodeRateLimit
		e.Message = "Rate limit exceeded. Please try again later."
	case status >= http.StatusInternalServerError:
		e.Code = ErrCodeServerError
		e.Message = "Xray server error. Please try again later."
	}
	return e
}

// decodeBody returns the body as parsed JSON when possible, otherwise as text.
func decodeBody(body []byte) any {
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(body, &v); err == nil {
		return v
	}
	return string(body)
}

func compactJSON(body []byte) []byte {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return body
	}
	out, err := json.Marshal(v)
	if err != nil {
		return body
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

var (
	issueKeyPattern   = regexp.MustCompile(`^[A-Z][A-Z0-9]+-\d+$`)
	projectKeyPattern = regexp.MustCompile(`^[A-Z][A-Z0-9]+$`)
)

// ValidateTestKey rejects keys that are not of the form PROJECT-123. The same
// format applies to executions and plans.
func ValidateTestKey(key string) error {
	if !issueKeyPattern.MatchString(key) {
		return &Error{
			Code:    ErrCodeInvalidInput,
			Message: fmt.Sprintf("Invalid test key format: %q. Expected format: PROJECT-123", key),
		}
	}
	return nil
}

// ValidateProjectKey rejects keys that are not of the form PROJECT.
func ValidateProjectKey(key string) error {
	if !projectKeyPattern.MatchString(key) {
		return &Error{
			Code:    ErrCodeInvalidInput,
			Message: fmt.Sprintf("Invalid project key format: %q. Expected format: PROJECT", key),
		}
	}
	return nil
}

// dateLayouts are the created-date forms JQL accepts.
var dateLayouts = []string{"2006-01-02", "2006/01/02", "2006-01-02 15:04", "2006/01/02 15:04"}

// ValidateDate rejects anything other than a JQL date such as 2026-01-31 or
// 2026-01-31 14:00.
func ValidateDate(date string) error {
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, date); err == nil {
			return nil
		}
	}
	return &Error{
		Code:    ErrCodeInvalidInput,
		Message: fmt.Sprintf("Invalid date format: %q. Expected format: YYYY-MM-DD or YYYY-MM-DD HH:mm", date),
	}
}

// projectOf returns the project prefix of an issue key.
func projectOf(issueKey string) string {
	project, _, _ := strings.Cut(issueKey, "-")
	return project
}
