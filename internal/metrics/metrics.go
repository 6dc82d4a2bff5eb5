// Package metrics exposes Prometheus collectors for frame capture, task
// throughput and model downloads.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"visiond/internal/events"
)

const namespace = "visiond"

// Domain holds the domain collectors. It implements frames.Observer and
// events.Publisher so it can be wired without adapters.
type Domain struct {
	framesCaptured prometheus.Counter
	framesCached   prometheus.Counter
	taskFPS        *prometheus.GaugeVec
	taskCompleted  *prometheus.CounterVec
	taskErrors     *prometheus.CounterVec
	downloads      *prometheus.CounterVec
	rateLimited    prometheus.Counter
}

// NewDomain creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewDomain(reg prometheus.Registerer) *Domain {
	d := &Domain{
		framesCaptured: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "frames",
			Name:      "captured_total",
			Help:      "Frames captured from the producer",
		}),
		framesCached: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "frames",
			Name:      "cache_hits_total",
			Help:      "Frame requests served from the throttle cache",
		}),
		taskFPS: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "task",
			Name:      "fps",
			Help:      "Instantaneous rate of the last completed inference",
		}, []string{"task"}),
		taskCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "task",
			Name:      "completed_total",
			Help:      "Completed inferences",
		}, []string{"task"}),
		taskErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "task",
			Name:      "errors_total",
			Help:      "Fatal worker errors",
		}, []string{"task"}),
		downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "models",
			Name:      "downloads_total",
			Help:      "Model downloads by outcome",
		}, []string{"outcome"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "models",
			Name:      "rate_limited_total",
			Help:      "Download requests rejected by the rate limiter",
		}),
	}
	if reg != nil {
		reg.MustRegister(d.framesCaptured, d.framesCached, d.taskFPS, d.taskCompleted, d.taskErrors, d.downloads, d.rateLimited)
	}
	return d
}

func (d *Domain) FrameCaptured()        { d.framesCaptured.Inc() }
func (d *Domain) FrameServedFromCache() { d.framesCached.Inc() }

// TaskCompleted records one completed inference and its rate.
func (d *Domain) TaskCompleted(task string, fps float64) {
	d.taskCompleted.WithLabelValues(task).Inc()
	d.taskFPS.WithLabelValues(task).Set(fps)
}

// RateLimited records one rejected download request.
func (d *Domain) RateLimited() { d.rateLimited.Inc() }

// Publish counts download outcomes and worker errors.
func (d *Domain) Publish(ev events.Event) {
	switch ev.Name {
	case events.DownloadDone:
		d.downloads.WithLabelValues("success").Inc()
	case events.DownloadError:
		d.downloads.WithLabelValues("error").Inc()
	case events.WorkerError:
		d.taskErrors.WithLabelValues(ev.Subject).Inc()
	case events.WorkerTerminate:
		d.taskFPS.DeleteLabelValues(ev.Subject)
	}
}
