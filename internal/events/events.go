// Package events carries lifecycle notifications from task controllers and
// the model downloader to observers such as the websocket stream.
package events

import "time"

// Event represents a lifecycle event.
// Minimal and stable: name + subject (task kind or model key) and optional fields.
type Event struct {
	Name    string         `json:"name"`
	Subject string         `json:"subject"`
	Time    time.Time      `json:"time"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// Publisher receives events. Implementations should be lightweight and
// non-blocking; Publish must not panic.
type Publisher interface {
	Publish(Event)
}

// Nop drops events.
type Nop struct{}

func (Nop) Publish(Event) {}

// New builds an event stamped with the current time.
func New(name, subject string, fields map[string]any) Event {
	return Event{Name: name, Subject: subject, Time: time.Now(), Fields: fields}
}

// Names published by the orchestrator and the downloader.
const (
	WorkerStart     = "worker_start"
	WorkerReady     = "worker_ready"
	WorkerError     = "worker_error"
	WorkerTerminate = "worker_terminate"
	DownloadStart   = "download_start"
	DownloadDone    = "download_done"
	DownloadError   = "download_error"
)
