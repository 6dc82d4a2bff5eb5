// Package worker runs one inference task as an actor goroutine.
//
// A worker starts loading its pipeline as soon as it is started and answers
// every request it receives before it is ready with a busy message. Once
// ready it processes one request at a time and reports the result with the
// instantaneous rate of that call. Load and process failures are fatal: the
// worker emits an error message and ignores further requests until it is
// terminated.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Defaults applied when corresponding Options fields are unset.
const (
	DefaultNullFrameDelay = 500 * time.Millisecond
	defaultInboxSize      = 8
	defaultOutboxSize     = 64
)

// Pipeline wraps one model. Load runs once; Process runs per request and
// returns a message with the task output fields set.
type Pipeline interface {
	Load(ctx context.Context, progress func(float64)) (device string, err error)
	Process(ctx context.Context, req Request) (Message, error)
}

// Options configures a worker.
type Options struct {
	// Debug enables log messages.
	Debug bool
	// NullFrameDelay is the pause before answering an empty request with ready.
	NullFrameDelay time.Duration
	Logger         zerolog.Logger
	// Now overrides the clock used for log timestamps and fps.
	Now func() time.Time
}

type state int

const (
	stateUninitialized state = iota
	stateLoading
	stateReady
	stateProcessing
	stateError
)

type loadResult struct {
	device string
	err    error
}

// Worker is one running task.
type Worker struct {
	kind     Kind
	pipeline Pipeline
	opts     Options
	log      zerolog.Logger

	in     chan Request
	out    chan Message
	loaded chan loadResult

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// owned by the run goroutine
	state state
}

// Start launches the worker and begins loading immediately.
func Start(kind Kind, p Pipeline, opts Options) *Worker {
	if opts.NullFrameDelay <= 0 {
		opts.NullFrameDelay = DefaultNullFrameDelay
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		kind:     kind,
		pipeline: p,
		opts:     opts,
		log:      opts.Logger.With().Str("component", "worker").Str("task", string(kind)).Logger(),
		in:       make(chan Request, defaultInboxSize),
		out:      make(chan Message, defaultOutboxSize),
		loaded:   make(chan loadResult, 1),
		ctx:      ctx,
		cancel:   cancel,
	}
	w.wg.Add(2)
	go w.load()
	go w.run()
	return w
}

// Kind returns the task kind.
func (w *Worker) Kind() Kind { return w.kind }

// Messages delivers outbound messages. It is never closed; stop reading
// after Terminate.
func (w *Worker) Messages() <-chan Message { return w.out }

// Post delivers a request. It reports false once the worker is terminated.
func (w *Worker) Post(req Request) bool {
	select {
	case <-w.ctx.Done():
		return false
	default:
	}
	select {
	case w.in <- req:
		return true
	case <-w.ctx.Done():
		return false
	}
}

// Terminate stops the worker immediately. In-flight work is discarded.
// It is safe to call more than once.
func (w *Worker) Terminate() {
	w.cancel()
}

// Wait blocks until the worker goroutines exit after Terminate.
func (w *Worker) Wait() { w.wg.Wait() }

func (w *Worker) emit(m Message) {
	select {
	case w.out <- m:
	case <-w.ctx.Done():
	}
}

func (w *Worker) debugf(level, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	w.log.Debug().Str("level", level).Msg(msg)
	if w.opts.Debug {
		w.emit(logMessage(level, msg, w.opts.Now()))
	}
}

func (w *Worker) load() {
	defer w.wg.Done()
	w.emit(Message{Status: StatusLoading, Progress: 0})
	w.debugf(LogInfo, "loading %s pipeline", w.kind)
	device, err := w.loadPipeline()
	select {
	case w.loaded <- loadResult{device: device, err: err}:
	case <-w.ctx.Done():
	}
}

func (w *Worker) run() {
	defer w.wg.Done()
	w.state = stateLoading
	for {
		select {
		case <-w.ctx.Done():
			return
		case res := <-w.loaded:
			if res.err != nil {
				w.fail("load", res.err)
				continue
			}
			w.state = stateReady
			w.debugf(LogInfo, "%s pipeline ready on %s", w.kind, res.device)
			w.emit(Message{Status: StatusReady, Device: res.device})
		case req := <-w.in:
			w.handle(req)
		}
	}
}

func (w *Worker) handle(req Request) {
	switch w.state {
	case stateUninitialized, stateLoading:
		w.emit(Message{Status: StatusBusy, Message: string(w.kind) + " worker is still loading"})
		return
	case stateError:
		w.log.Debug().Msg("request ignored after fatal error")
		return
	}
	if req.Type != RequestProcess {
		w.debugf(LogWarn, "unknown request type %q", req.Type)
		return
	}
	if w.empty(req) {
		select {
		case <-time.After(w.opts.NullFrameDelay):
		case <-w.ctx.Done():
			return
		}
		w.emit(Message{Status: StatusReady})
		return
	}

	w.state = stateProcessing
	start := w.opts.Now()
	msg, err := w.process(req)
	if w.ctx.Err() != nil {
		return
	}
	if err != nil {
		w.fail("process", err)
		return
	}
	elapsed := w.opts.Now().Sub(start)
	msg.Status = StatusComplete
	msg.FPS = fps(elapsed)
	w.state = stateReady
	if req.Frame != nil {
		w.debugf(LogInfo, "processed frame %d in %s", req.Frame.Seq, elapsed)
	} else {
		w.debugf(LogInfo, "processed %d characters in %s", len(req.Text), elapsed)
	}
	w.emit(msg)
}

// loadPipeline and process turn a pipeline panic into an ordinary error so
// it fails this task only.
func (w *Worker) loadPipeline() (device string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return w.pipeline.Load(w.ctx, func(p float64) {
		w.emit(Message{Status: StatusLoading, Progress: clampProgress(p)})
	})
}

func (w *Worker) process(req Request) (msg Message, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return w.pipeline.Process(w.ctx, req)
}

func (w *Worker) empty(req Request) bool {
	if w.kind.TextDriven() {
		return req.Text == ""
	}
	return req.Frame == nil
}

func (w *Worker) fail(phase string, err error) {
	w.state = stateError
	w.log.Error().Err(err).Str("phase", phase).Msg("worker failed")
	w.debugf(LogError, "%s failed: %v", phase, err)
	w.emit(Message{Status: StatusError, Error: err.Error()})
}

// fps is 1000 divided by the elapsed milliseconds of one call.
func fps(elapsed time.Duration) float64 {
	ms := float64(elapsed) / float64(time.Millisecond)
	if ms <= 0 {
		return 0
	}
	return 1000 / ms
}

func clampProgress(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
