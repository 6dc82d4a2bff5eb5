package app

import "net/http"

// statusError carries its own HTTP status code (see httpapi.HTTPError).
type statusError struct {
	msg  string
	code int
}

func (e statusError) Error() string   { return e.msg }
func (e statusError) StatusCode() int { return e.code }

func errNotConfigured(what string) error {
	return statusError{msg: what + " is not configured", code: http.StatusServiceUnavailable}
}

var errDownloadInProgress = statusError{msg: "a model download is already running", code: http.StatusConflict}

var errNoModels = statusError{msg: "the model registry lists no known models", code: http.StatusServiceUnavailable}
