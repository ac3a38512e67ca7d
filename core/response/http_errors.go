package response

import "net/http"

// HTTPError is an error rendered to the client as {"code","message","details"}.
type HTTPError struct {
	Status  int            `json:"-"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (e HTTPError) Error() string {
	return e.Message
}

// StatusCode lets routers pick the status without knowing the type.
func (e HTTPError) StatusCode() int {
	return e.Status
}

// WithMessage returns a copy with a different message.
func (e HTTPError) WithMessage(message string) HTTPError {
	e.Message = message
	return e
}

// WithError returns a copy carrying err as details.cause.
func (e HTTPError) WithError(err error) HTTPError {
	if err == nil {
		return e
	}
	details := make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details["cause"] = err.Error()
	e.Details = details
	return e
}

func newHTTPError(status int, code string) HTTPError {
	return HTTPError{Status: status, Code: code, Message: http.StatusText(status)}
}

var (
	ErrBadRequest           = newHTTPError(http.StatusBadRequest, "bad_request")
	ErrNotFound             = newHTTPError(http.StatusNotFound, "not_found")
	ErrMethodNotAllowed     = newHTTPError(http.StatusMethodNotAllowed, "method_not_allowed")
	ErrNotAcceptable        = newHTTPError(http.StatusNotAcceptable, "not_acceptable")
	ErrRequestTimeout       = newHTTPError(http.StatusRequestTimeout, "request_timeout")
	ErrRequestTooLarge      = newHTTPError(http.StatusRequestEntityTooLarge, "request_entity_too_large")
	ErrUnsupportedMediaType = newHTTPError(http.StatusUnsupportedMediaType, "unsupported_media_type")
	ErrTooManyRequests      = newHTTPError(http.StatusTooManyRequests, "too_many_requests")
	ErrInternalServerError  = newHTTPError(http.StatusInternalServerError, "internal_server_error")
	ErrServiceUnavailable   = newHTTPError(http.StatusServiceUnavailable, "service_unavailable")
)

var httpErrorsByStatus = map[int]HTTPError{
	http.StatusBadRequest:            ErrBadRequest,
	http.StatusNotFound:              ErrNotFound,
	http.StatusMethodNotAllowed:      ErrMethodNotAllowed,
	http.StatusNotAcceptable:         ErrNotAcceptable,
	http.StatusRequestTimeout:        ErrRequestTimeout,
	http.StatusRequestEntityTooLarge: ErrRequestTooLarge,
	http.StatusUnsupportedMediaType:  ErrUnsupportedMediaType,
	http.StatusTooManyRequests:       ErrTooManyRequests,
	http.StatusInternalServerError:   ErrInternalServerError,
	http.StatusServiceUnavailable:    ErrServiceUnavailable,
}
