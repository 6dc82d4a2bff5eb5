package app

import (
	"context"
	"os"

	"visiond/internal/blobs"
	"visiond/internal/events"
	"visiond/internal/worker"
	"visiond/pkg/types"
)

func (a *App) Status() types.StatusResponse { return a.session.Status() }

func (a *App) Ready() bool { return a.session.Ready() }

func (a *App) Toggle(task string) (types.ToggleResponse, error) {
	active, err := a.session.Toggle(task)
	if err != nil {
		return types.ToggleResponse{}, err
	}
	c, err := a.session.Controller(task)
	if err != nil {
		return types.ToggleResponse{}, err
	}
	return types.ToggleResponse{Active: active, State: c.Store().State()}, nil
}

func (a *App) Output(task string) (types.TaskOutput, bool, error) {
	msg, ok, err := a.session.Output(task)
	if err != nil || !ok {
		return types.TaskOutput{}, ok, err
	}
	return taskOutput(task, msg), true, nil
}

func taskOutput(task string, m worker.Message) types.TaskOutput {
	return types.TaskOutput{
		Task:      task,
		FPS:       m.FPS,
		Depth:     m.Depth,
		Detection: m.Detection,
		Caption:   m.Caption,
		Audio:     m.Audio,
	}
}

func (a *App) Logs(task string) ([]types.LogEntry, error) { return a.session.Logs(task) }

func (a *App) Distances() []types.Distance { return a.session.Distances() }

// Registry resolves the registry this process serves.
func (a *App) Registry(ctx context.Context) (map[string]types.RemoteModelInfo, error) {
	if a.source == nil {
		return nil, errNotConfigured("model registry")
	}
	return a.source.Resolve(ctx)
}

// ArchivePath resolves an archive of the local directory registry.
func (a *App) ArchivePath(key, name string) (string, error) {
	if a.archives == nil {
		return "", os.ErrNotExist
	}
	return a.archives.ArchivePath(key, name)
}

func (a *App) Blob(id string) (blobs.Blob, bool) { return a.blobs.Get(id) }

func (a *App) Subscribe() (<-chan events.Event, func()) { return a.broker.Subscribe() }
