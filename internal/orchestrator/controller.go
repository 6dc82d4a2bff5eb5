package orchestrator

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"visiond/internal/events"
	"visiond/internal/worker"
	"visiond/pkg/types"
)

// DefaultLoadingCoalesce is the minimum spacing between applied loading
// progress updates.
const DefaultLoadingCoalesce = 500 * time.Millisecond

// PipelineFactory builds the pipeline of one task.
type PipelineFactory func(kind worker.Kind) (worker.Pipeline, error)

// FrameSource yields the latest shared frame.
type FrameSource interface {
	CurrentFrame() (*types.Frame, error)
}

// CompletionObserver is told about every completed inference.
type CompletionObserver interface {
	TaskCompleted(task string, fps float64)
}

// ControllerConfig wires one task controller.
type ControllerConfig struct {
	Kind    worker.Kind
	Factory PipelineFactory
	Frames  FrameSource
	// Size is forwarded with every frame request; zero leaves the pipeline default.
	Size            int
	Worker          worker.Options
	LoadingCoalesce time.Duration
	MaxLogs         int
	Publisher       events.Publisher
	Observer        CompletionObserver
	// OnComplete runs on the handler goroutine after an output is stored.
	OnComplete func(kind worker.Kind, seq uint64)
	// OnTerminate runs after the worker stopped and the task state was reset.
	OnTerminate func(kind worker.Kind)
	// Text supplies the input of text-driven tasks.
	Text func() string
	// Revoke releases the transient URL of a superseded output.
	Revoke func(url string)
	Logger zerolog.Logger
	Now    func() time.Time
}

// Controller owns the lifetime of one task worker and drives its pull loop:
// every ready or complete message is answered with the next request, so at
// most one request is in flight.
type Controller struct {
	cfg   ControllerConfig
	store *TaskStore
	log   zerolog.Logger

	// lifecycle serializes Initialize and Terminate.
	lifecycle sync.Mutex

	mu   sync.Mutex
	w    *worker.Worker
	stop chan struct{}
	done chan struct{}

	// handler goroutine only
	lastLoading time.Time
	readySeen   bool

	// text-driven tasks
	textMu    sync.Mutex
	textReady bool
	textBusy  bool
	lastText  string
	lastURL   string
}

// NewController builds an idle controller.
func NewController(cfg ControllerConfig) *Controller {
	if cfg.LoadingCoalesce <= 0 {
		cfg.LoadingCoalesce = DefaultLoadingCoalesce
	}
	if cfg.Publisher == nil {
		cfg.Publisher = events.Nop{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Controller{
		cfg:   cfg,
		store: newTaskStore(cfg.Kind, cfg.MaxLogs),
		log:   cfg.Logger.With().Str("component", "controller").Str("task", string(cfg.Kind)).Logger(),
	}
}

func (c *Controller) Kind() worker.Kind { return c.cfg.Kind }

// Store exposes the task's shared state.
func (c *Controller) Store() *TaskStore { return c.store }

// Active reports whether a worker exists.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.w != nil
}

// InitializeWorker starts the worker. It is a no-op when one already exists.
func (c *Controller) InitializeWorker() error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	c.mu.Lock()
	if c.w != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	p, err := c.cfg.Factory(c.cfg.Kind)
	if err != nil {
		return err
	}
	opts := c.cfg.Worker
	opts.Logger = c.cfg.Logger
	w := worker.Start(c.cfg.Kind, p, opts)
	stop, done := make(chan struct{}), make(chan struct{})
	c.lastLoading = time.Time{}
	c.readySeen = false
	c.store.setLoading(0)

	c.mu.Lock()
	c.w, c.stop, c.done = w, stop, done
	c.mu.Unlock()

	c.log.Info().Msg("worker started")
	c.cfg.Publisher.Publish(events.New(events.WorkerStart, string(c.cfg.Kind), nil))
	go c.handle(w, stop, done)
	return nil
}

// TerminateWorker stops the worker, resets the task state and clears its
// logs. It is safe to call when no worker exists.
func (c *Controller) TerminateWorker() {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	c.mu.Lock()
	w, stop, done := c.w, c.stop, c.done
	c.w, c.stop, c.done = nil, nil, nil
	c.mu.Unlock()
	if w == nil {
		return
	}
	w.Terminate()
	close(stop)
	<-done
	w.Wait()
	c.resetText()
	c.store.reset()
	if c.cfg.OnTerminate != nil {
		c.cfg.OnTerminate(c.cfg.Kind)
	}
	c.log.Info().Msg("worker terminated")
	c.cfg.Publisher.Publish(events.New(events.WorkerTerminate, string(c.cfg.Kind), nil))
}

// ToggleWorker terminates an active worker or starts an idle one and
// reports whether the task is active afterwards.
func (c *Controller) ToggleWorker() (bool, error) {
	if c.Active() {
		c.TerminateWorker()
		return false, nil
	}
	if err := c.InitializeWorker(); err != nil {
		return false, err
	}
	return true, nil
}

// TextChanged asks a text-driven task to consider the latest text.
func (c *Controller) TextChanged() {
	c.mu.Lock()
	w := c.w
	c.mu.Unlock()
	if w == nil {
		return
	}
	c.trySynthesize(w)
}

func (c *Controller) handle(w *worker.Worker, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		case msg := <-w.Messages():
			c.onMessage(w, msg)
		}
	}
}

func (c *Controller) onMessage(w *worker.Worker, msg worker.Message) {
	switch msg.Status {
	case worker.StatusLoading:
		now := c.cfg.Now()
		if !c.lastLoading.IsZero() && now.Sub(c.lastLoading) < c.cfg.LoadingCoalesce {
			return
		}
		c.lastLoading = now
		c.store.setLoading(msg.Progress)
	case worker.StatusReady:
		c.store.setReady(msg.Device)
		if !c.readySeen {
			c.readySeen = true
			c.log.Info().Str("device", msg.Device).Msg("worker ready")
			c.cfg.Publisher.Publish(events.New(events.WorkerReady, string(c.cfg.Kind), map[string]any{"device": msg.Device}))
		}
		c.markTextReady()
		c.pull(w)
	case worker.StatusComplete:
		seq := c.store.setOutput(msg)
		if c.cfg.Observer != nil {
			c.cfg.Observer.TaskCompleted(string(c.cfg.Kind), msg.FPS)
		}
		if msg.Audio != nil {
			c.swapURL(msg.Audio.URL)
		}
		if c.cfg.OnComplete != nil {
			c.cfg.OnComplete(c.cfg.Kind, seq)
		}
		c.markTextReady()
		c.pull(w)
	case worker.StatusBusy:
		c.log.Debug().Str("message", msg.Message).Msg("worker busy")
	case worker.StatusError:
		c.store.setError(msg.Error)
		c.textMu.Lock()
		c.textReady = false
		c.textMu.Unlock()
		c.log.Error().Str("error", msg.Error).Msg("worker failed")
		c.cfg.Publisher.Publish(events.New(events.WorkerError, string(c.cfg.Kind), map[string]any{"error": msg.Error}))
	case worker.StatusLog:
		c.store.appendLog(types.LogEntry{Type: msg.Type, Message: msg.Message, Timestamp: msg.Timestamp})
		c.log.Debug().Str("type", msg.Type).Msg(msg.Message)
	}
}

// pull posts the next request. Frame tasks always get one, possibly with a
// nil frame; text tasks only when the text changed.
func (c *Controller) pull(w *worker.Worker) {
	if c.cfg.Kind.TextDriven() {
		c.trySynthesize(w)
		return
	}
	var f *types.Frame
	if c.cfg.Frames != nil {
		var err error
		if f, err = c.cfg.Frames.CurrentFrame(); err != nil {
			c.log.Warn().Err(err).Msg("frame capture failed")
			f = nil
		}
	}
	w.Post(worker.ProcessFrame(f, c.cfg.Size))
}

func (c *Controller) markTextReady() {
	if !c.cfg.Kind.TextDriven() {
		return
	}
	c.textMu.Lock()
	c.textReady = true
	c.textBusy = false
	c.textMu.Unlock()
}

// trySynthesize submits the current text once per distinct value while no
// synthesis is in flight.
func (c *Controller) trySynthesize(w *worker.Worker) {
	if c.cfg.Text == nil {
		return
	}
	c.textMu.Lock()
	defer c.textMu.Unlock()
	if !c.textReady || c.textBusy {
		return
	}
	text := c.cfg.Text()
	if text == "" || text == c.lastText {
		return
	}
	if !w.Post(worker.ProcessText(text)) {
		return
	}
	c.textBusy = true
	c.lastText = text
}

func (c *Controller) swapURL(url string) {
	c.textMu.Lock()
	prev := c.lastURL
	c.lastURL = url
	c.textMu.Unlock()
	if prev != "" && prev != url && c.cfg.Revoke != nil {
		c.cfg.Revoke(prev)
	}
}

func (c *Controller) resetText() {
	c.textMu.Lock()
	prev := c.lastURL
	c.textReady, c.textBusy = false, false
	c.lastText, c.lastURL = "", ""
	c.textMu.Unlock()
	if prev != "" && c.cfg.Revoke != nil {
		c.cfg.Revoke(prev)
	}
}
