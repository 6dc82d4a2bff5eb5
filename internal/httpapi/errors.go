package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"visiond/internal/inference"
	"visiond/internal/modelcache"
	"visiond/internal/orchestrator"
	"visiond/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil && zlog != nil {
		zlog.Warn().Err(err).Msg("encode response")
	}
}

// statusFor maps well-known service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case orchestrator.IsUnknownTask(err):
		return http.StatusNotFound
	case errors.Is(err, modelcache.ErrNotFound), errors.Is(err, os.ErrNotExist):
		return http.StatusNotFound
	case modelcache.IsRateLimited(err):
		return http.StatusTooManyRequests
	case inference.IsDependencyUnavailable(err), modelcache.IsModelUnavailable(err):
		return http.StatusServiceUnavailable
	}
	var he HTTPError
	if errors.As(err, &he) {
		return he.StatusCode()
	}
	return http.StatusInternalServerError
}

// writeServiceError writes err with its mapped status. Rate-limit rejections
// also carry Retry-After in whole seconds.
func writeServiceError(w http.ResponseWriter, err error) int {
	status := statusFor(err)
	switch status {
	case http.StatusTooManyRequests:
		wait := modelcache.RetryAfter(err)
		secs := int64((wait + time.Second - 1) / time.Second)
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
		countRejected(reasonRateLimit)
	case http.StatusConflict:
		countRejected(reasonBusy)
	}
	writeJSONError(w, status, err.Error())
	return status
}
