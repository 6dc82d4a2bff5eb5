// Package orchestrator owns the task controllers of one application
// session: their worker lifetimes, shared per-task state, the caption to
// audio trigger and object-distance fusion.
package orchestrator

import (
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"visiond/internal/events"
	"visiond/internal/frames"
	"visiond/internal/fusion"
	"visiond/internal/worker"
	"visiond/pkg/types"
)

// DefaultConfidenceThreshold is the fusion score cut-off in percent.
const DefaultConfidenceThreshold = 50

// SessionConfig wires a Session.
type SessionConfig struct {
	Frames  *frames.Manager
	Factory PipelineFactory
	// Sizes overrides the per-task input size.
	Sizes map[worker.Kind]int
	// Worker is the base worker configuration; Debug is taken from DebugTasks.
	Worker     worker.Options
	DebugTasks map[worker.Kind]bool
	// ConfidenceThreshold is the fusion cut-off in percent.
	ConfidenceThreshold float64
	LoadingCoalesce     time.Duration
	MaxLogs             int
	Publisher           events.Publisher
	Observer            CompletionObserver
	// Revoke releases audio blob URLs.
	Revoke func(url string)
	Logger zerolog.Logger
	Now    func() time.Time
}

// Session holds one controller per task kind and the frame manager they
// share. There is one Session per application run; ShutdownAll releases
// everything it owns.
type Session struct {
	id          string
	frames      *frames.Manager
	controllers map[worker.Kind]*Controller
	threshold   float64
	log         zerolog.Logger
	now         func() time.Time
	started     time.Time

	mu        sync.Mutex
	camera    io.Closer
	distances []types.Distance
	// sequence numbers of the outputs the current distances were built from
	fusedDepth     uint64
	fusedDetection uint64
}

func NewSession(cfg SessionConfig) *Session {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Frames == nil {
		cfg.Frames = frames.NewManager(frames.DefaultTargetFPS, frames.WithLogger(cfg.Logger))
	}
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	s := &Session{
		id:          uuid.NewString(),
		frames:      cfg.Frames,
		controllers: make(map[worker.Kind]*Controller, len(worker.Kinds)),
		threshold:   cfg.ConfidenceThreshold,
		now:         cfg.Now,
		started:     cfg.Now(),
	}
	s.log = cfg.Logger.With().Str("component", "session").Str("session", s.id).Logger()
	for _, k := range worker.Kinds {
		opts := cfg.Worker
		opts.Debug = cfg.DebugTasks[k]
		cc := ControllerConfig{
			Kind:            k,
			Factory:         cfg.Factory,
			Frames:          cfg.Frames,
			Size:            cfg.Sizes[k],
			Worker:          opts,
			LoadingCoalesce: cfg.LoadingCoalesce,
			MaxLogs:         cfg.MaxLogs,
			Publisher:       cfg.Publisher,
			Observer:        cfg.Observer,
			Logger:          cfg.Logger,
			Now:             cfg.Now,
		}
		switch k {
		case worker.KindDepth, worker.KindDetection:
			cc.OnComplete = s.fuse
			cc.OnTerminate = s.clearDistances
		case worker.KindCaptioning:
			cc.OnComplete = s.captionChanged
		case worker.KindAudio:
			cc.Text = s.latestCaption
			cc.Revoke = cfg.Revoke
		}
		s.controllers[k] = NewController(cc)
	}
	return s
}

// ID is a random session identifier.
func (s *Session) ID() string { return s.id }

// Frames returns the shared frame manager.
func (s *Session) Frames() *frames.Manager { return s.frames }

// Controller resolves a task name.
func (s *Session) Controller(name string) (*Controller, error) {
	k, ok := worker.ParseKind(name)
	if !ok {
		return nil, ErrUnknownTask(name)
	}
	return s.controllers[k], nil
}

// Toggle flips a task on or off and reports whether it is active afterwards.
func (s *Session) Toggle(name string) (bool, error) {
	c, err := s.Controller(name)
	if err != nil {
		return false, err
	}
	return c.ToggleWorker()
}

// Output returns the latest result of a task.
func (s *Session) Output(name string) (worker.Message, bool, error) {
	c, err := s.Controller(name)
	if err != nil {
		return worker.Message{}, false, err
	}
	msg, _, ok := c.store.Output()
	return msg, ok, nil
}

// Logs returns the buffered log messages of a task.
func (s *Session) Logs(name string) ([]types.LogEntry, error) {
	c, err := s.Controller(name)
	if err != nil {
		return nil, err
	}
	return c.store.Logs(), nil
}

// Distances returns the latest fused per-object distances.
func (s *Session) Distances() []types.Distance {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Distance, len(s.distances))
	copy(out, s.distances)
	return out
}

// Ready reports whether any task is ready.
func (s *Session) Ready() bool {
	for _, k := range worker.Kinds {
		if s.controllers[k].store.State().Status == types.TaskReady {
			return true
		}
	}
	return false
}

// Status summarizes every task and the frame manager.
func (s *Session) Status() types.StatusResponse {
	tasks := make([]types.WorkerState, 0, len(worker.Kinds))
	for _, k := range worker.Kinds {
		tasks = append(tasks, s.controllers[k].store.State())
	}
	now := s.now()
	return types.StatusResponse{
		SessionID:      s.id,
		Tasks:          tasks,
		Frames:         s.frames.Stats(),
		UptimeSeconds:  int64(now.Sub(s.started).Seconds()),
		ServerTimeUnix: now.Unix(),
	}
}

// AttachCamera installs a frame producer. closer, if non-nil, is closed when
// the camera is detached or replaced.
func (s *Session) AttachCamera(p frames.Producer, closer io.Closer) {
	s.mu.Lock()
	prev := s.camera
	s.camera = closer
	s.mu.Unlock()
	if prev != nil {
		_ = prev.Close()
	}
	s.frames.RegisterProducer(p)
	s.log.Info().Msg("camera attached")
}

// DetachCamera unregisters the producer and stops the camera.
func (s *Session) DetachCamera() {
	s.frames.UnregisterProducer()
	s.mu.Lock()
	cam := s.camera
	s.camera = nil
	s.mu.Unlock()
	if cam != nil {
		if err := cam.Close(); err != nil {
			s.log.Warn().Err(err).Msg("camera close failed")
		}
	}
}

// ShutdownAll terminates every worker and releases the camera.
func (s *Session) ShutdownAll() {
	var wg sync.WaitGroup
	for _, k := range worker.Kinds {
		wg.Add(1)
		go func(c *Controller) {
			defer wg.Done()
			c.TerminateWorker()
		}(s.controllers[k])
	}
	wg.Wait()
	s.DetachCamera()
	s.log.Info().Msg("session shut down")
}

func (s *Session) latestCaption() string {
	msg, _, ok := s.controllers[worker.KindCaptioning].store.Output()
	if !ok {
		return ""
	}
	return msg.Caption
}

func (s *Session) captionChanged(worker.Kind, uint64) {
	s.controllers[worker.KindAudio].TextChanged()
}

// clearDistances drops fused results once either input stops.
func (s *Session) clearDistances(worker.Kind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.distances = nil
	s.fusedDepth, s.fusedDetection = 0, 0
}

// fuse recomputes distances once both depth and detection have published
// outputs newer than the ones last fused.
// Outputs are read under s.mu so a concurrent clearDistances wins.
func (s *Session) fuse(worker.Kind, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	depth, dseq, ok := s.controllers[worker.KindDepth].store.Output()
	if !ok || depth.Depth == nil {
		return
	}
	det, tseq, ok := s.controllers[worker.KindDetection].store.Output()
	if !ok || det.Detection == nil {
		return
	}
	if dseq == s.fusedDepth || tseq == s.fusedDetection {
		return
	}
	s.distances = fusion.ComputeDistances(depth.Depth.Raw, det.Detection, s.threshold, depth.Depth.Width, depth.Depth.Height)
	s.fusedDepth, s.fusedDetection = dseq, tseq
}
