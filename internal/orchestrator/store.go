package orchestrator

import (
	"sync"

	"visiond/internal/worker"
	"visiond/pkg/types"
)

// DefaultMaxLogs bounds the per-task log buffer.
const DefaultMaxLogs = 200

// TaskStore is the shared state of one task. The task's message handler is
// the only writer; everyone else reads snapshots.
type TaskStore struct {
	kind    worker.Kind
	maxLogs int

	mu    sync.RWMutex
	state types.WorkerState
	// output is the latest complete message; outputSeq counts them and is
	// never reset so consumers can detect new data across restarts.
	output    *worker.Message
	outputSeq uint64
	logs      []types.LogEntry
}

func newTaskStore(kind worker.Kind, maxLogs int) *TaskStore {
	if maxLogs <= 0 {
		maxLogs = DefaultMaxLogs
	}
	s := &TaskStore{kind: kind, maxLogs: maxLogs}
	s.reset()
	return s
}

// State returns a copy of the worker state.
func (s *TaskStore) State() types.WorkerState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Output returns the latest result and its sequence number.
func (s *TaskStore) Output() (worker.Message, uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.output == nil {
		return worker.Message{}, s.outputSeq, false
	}
	return *s.output, s.outputSeq, true
}

// Logs returns a copy of the buffered log entries, oldest first.
func (s *TaskStore) Logs() []types.LogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.LogEntry, len(s.logs))
	copy(out, s.logs)
	return out
}

func (s *TaskStore) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = types.WorkerState{Task: string(s.kind), Status: types.TaskOff}
	s.output = nil
	s.logs = nil
}

func (s *TaskStore) setLoading(progress float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Status = types.TaskLoading
	s.state.Progress = progress
}

func (s *TaskStore) setReady(device string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.IsReady = true
	s.state.Status = types.TaskReady
	s.state.Progress = 100
	if device != "" {
		s.state.Device = device
	}
}

func (s *TaskStore) setOutput(msg worker.Message) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.output = &msg
	s.outputSeq++
	s.state.FPS = msg.FPS
	return s.outputSeq
}

func (s *TaskStore) setError(err string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.IsReady = false
	s.state.Status = types.TaskError
	s.state.Error = err
}

func (s *TaskStore) appendLog(e types.LogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, e)
	if over := len(s.logs) - s.maxLogs; over > 0 {
		s.logs = append(s.logs[:0:0], s.logs[over:]...)
	}
}
