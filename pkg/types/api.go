package types

// TaskStatus is the user-facing state of one inference task.
type TaskStatus string

const (
	TaskOff     TaskStatus = "off"
	TaskLoading TaskStatus = "loading"
	TaskReady   TaskStatus = "ready"
	TaskError   TaskStatus = "error"
)

// WorkerState summarizes one task worker for GET /status.
type WorkerState struct {
	// Task kind.
	// example: depth
	Task string `json:"task" example:"depth"`
	// True once the worker reported ready at least once since it was started.
	// example: true
	IsReady bool `json:"is_ready" example:"true"`
	// Current lifecycle state (off, loading, ready, error).
	// example: ready
	Status TaskStatus `json:"status" example:"ready"`
	// Model loading progress, 0-100.
	// example: 100
	Progress float64 `json:"progress" example:"100"`
	// Compute backend reported by the worker.
	// example: remote
	Device string `json:"device,omitempty" example:"remote"`
	// Error message when Status is error.
	Error string `json:"error,omitempty"`
	// Instantaneous inferences per second of the last completed request.
	// example: 12.5
	FPS float64 `json:"fps" example:"12.5"`
}

// FrameStats reports frame manager counters.
type FrameStats struct {
	// Real producer invocations.
	// example: 1200
	Captures uint64 `json:"captures" example:"1200"`
	// Calls answered from the cached frame.
	// example: 3400
	CacheHits uint64 `json:"cache_hits" example:"3400"`
	// Whether a producer is registered.
	// example: true
	HasProducer bool `json:"has_producer" example:"true"`
	// Throttle target.
	// example: 30
	TargetFPS int `json:"target_fps" example:"30"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Session identifier.
	SessionID string `json:"session_id"`
	// Per-task worker state.
	Tasks []WorkerState `json:"tasks"`
	// Frame manager counters.
	Frames FrameStats `json:"frames"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}

// LogEntry is a worker log message.
type LogEntry struct {
	// log, warn or error.
	// example: log
	Type string `json:"type" example:"log"`
	// example: processed frame 42
	Message string `json:"message" example:"processed frame 42"`
	// ISO-8601 timestamp.
	// example: 2024-01-01T00:00:00Z
	Timestamp string `json:"timestamp" example:"2024-01-01T00:00:00Z"`
}

// ModelStatus describes the cache state of one model key for GET /models.
type ModelStatus struct {
	// example: depth
	Key string `json:"key" example:"depth"`
	// Local validation result: missing, invalid or valid.
	// example: valid
	Local string `json:"local" example:"valid"`
	// Classification against the remote registry: needsDownload, outdated, upToDate, unavailable.
	// example: upToDate
	Remote string `json:"remote" example:"upToDate"`
	// True when the cached manifest ETag differs from the registry ETag.
	Stale bool `json:"stale,omitempty"`
	// Download and caching progress of the current or last batch.
	Progress *DownloadProgress `json:"progress,omitempty"`
}

// ModelsResponse wraps GET /models.
type ModelsResponse struct {
	Models []ModelStatus `json:"models"`
	// Service readiness keyed by service name.
	Services map[string]bool `json:"services"`
}

// DownloadRequest is the POST /models/download payload.
type DownloadRequest struct {
	// Model keys to download; empty means every key known to the registry.
	// example: ["depth","object-detection"]
	Keys []string `json:"keys" example:"depth,object-detection"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: unknown task: foo
	Error string `json:"error" example:"unknown task: foo"`
	// HTTP status code.
	// example: 404
	Code int `json:"code" example:"404"`
}

// TaskOutput is returned by GET /tasks/{kind}/output. Exactly one of the
// result fields is set, matching Task.
type TaskOutput struct {
	// example: detection
	Task string `json:"task" example:"detection"`
	// Instantaneous inferences per second of this result.
	// example: 8.3
	FPS       float64          `json:"fps" example:"8.3"`
	Depth     *DepthOutput     `json:"depth,omitempty"`
	Detection *DetectionOutput `json:"detection,omitempty"`
	// example: person riding a bike
	Caption string       `json:"caption,omitempty" example:"person riding a bike"`
	Audio   *AudioOutput `json:"audio,omitempty"`
}

// ToggleResponse is returned by POST /tasks/{kind}/toggle.
type ToggleResponse struct {
	// Whether the task has a worker after the toggle.
	// example: true
	Active bool        `json:"active" example:"true"`
	State  WorkerState `json:"state"`
}

// LogsResponse wraps GET /tasks/{kind}/logs.
type LogsResponse struct {
	Logs []LogEntry `json:"logs"`
}

// DistancesResponse wraps GET /distances.
type DistancesResponse struct {
	Distances []Distance `json:"distances"`
}

// DownloadResponse is returned by POST /models/download once the batch has
// been admitted.
type DownloadResponse struct {
	// Keys scheduled for download.
	// example: ["depth"]
	Keys []string `json:"keys" example:"depth"`
}
