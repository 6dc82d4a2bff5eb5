package worker

import (
	"time"

	"visiond/pkg/types"
)

// Kind names one inference task.
type Kind string

const (
	KindDepth      Kind = "depth"
	KindDetection  Kind = "detection"
	KindCaptioning Kind = "captioning"
	KindAudio      Kind = "audio"
)

// Kinds lists every task in display order.
var Kinds = []Kind{KindDepth, KindDetection, KindCaptioning, KindAudio}

// ParseKind validates s.
func ParseKind(s string) (Kind, bool) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

// TextDriven reports whether the task consumes text instead of frames.
func (k Kind) TextDriven() bool { return k == KindAudio }

// RequestProcess is the only request type.
const RequestProcess = "process"

// Request is posted by a controller. Frame tasks read Frame and Size; the
// audio task reads Text.
type Request struct {
	Type  string       `json:"type"`
	Frame *types.Frame `json:"frame"`
	// Size is the task-specific input size; frames are scaled so their longer side matches it.
	Size int    `json:"size,omitempty"`
	Text string `json:"text,omitempty"`
}

// ProcessFrame builds a frame request.
func ProcessFrame(f *types.Frame, size int) Request {
	return Request{Type: RequestProcess, Frame: f, Size: size}
}

// ProcessText builds a text request.
func ProcessText(text string) Request {
	return Request{Type: RequestProcess, Text: text}
}

// Status is the outbound message discriminator.
type Status string

const (
	StatusLoading  Status = "loading"
	StatusReady    Status = "ready"
	StatusBusy     Status = "busy"
	StatusError    Status = "error"
	StatusComplete Status = "complete"
	StatusLog      Status = "log"
)

// Log levels carried by log messages.
const (
	LogInfo  = "log"
	LogWarn  = "warn"
	LogError = "error"
)

// Message is emitted by a worker. Which fields are set depends on Status.
type Message struct {
	Status   Status  `json:"status"`
	Progress float64 `json:"progress,omitempty"`
	Device   string  `json:"device,omitempty"`
	Message  string  `json:"message,omitempty"`
	Error    string  `json:"error,omitempty"`
	FPS      float64 `json:"fps,omitempty"`

	// Log messages.
	Type      string `json:"type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`

	// Task outputs on complete.
	Depth     *types.DepthOutput     `json:"depth,omitempty"`
	Detection *types.DetectionOutput `json:"detection,omitempty"`
	Caption   string                 `json:"caption,omitempty"`
	Audio     *types.AudioOutput     `json:"audio,omitempty"`
}

func logMessage(level, msg string, now time.Time) Message {
	return Message{Status: StatusLog, Type: level, Message: msg, Timestamp: now.UTC().Format(time.RFC3339Nano)}
}
